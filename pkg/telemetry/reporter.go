package telemetry

import (
	"time"

	"github.com/gammazero/workerpool"
	"github.com/pion/webrtc/v3"

	"github.com/meetkit/meetkit-client/pkg/logger"
	"github.com/meetkit/meetkit-client/pkg/rtc/types"
)

type ReporterParams struct {
	Logger logger.Logger
}

// Reporter records core events into Prometheus off the caller's goroutine.
// Media callbacks must never block on a metrics registry.
type Reporter struct {
	params ReporterParams
	pool   *workerpool.WorkerPool
}

func NewReporter(params ReporterParams) *Reporter {
	if params.Logger == nil {
		params.Logger = logger.GetLogger()
	}
	return &Reporter{
		params: params,
		pool:   workerpool.New(1),
	}
}

func (r *Reporter) ConnectionQuality(quality float64) {
	r.pool.Submit(func() {
		connectionQualityGauge.Set(quality)
	})
}

func (r *Reporter) ConnectionStatusChanged(status types.ConnectionStatusChanged) {
	r.pool.Submit(func() {
		if status.Active {
			statusTransitionCounter.WithLabelValues("active").Inc()
		} else {
			statusTransitionCounter.WithLabelValues("inactive").Inc()
		}
	})
}

func (r *Reporter) TimeToFirstMedia(kind webrtc.RTPCodecType, elapsed time.Duration) {
	r.pool.Submit(func() {
		ttfmHistogram.WithLabelValues(kind.String()).Observe(elapsed.Seconds())
	})
}

func (r *Reporter) TrackAttached(attached types.TrackAttached) {
	r.pool.Submit(func() {
		trackAttachCounter.Inc()
	})
}

// Stop drains pending submissions and stops the worker.
func (r *Reporter) Stop() {
	r.pool.StopWait()
}
