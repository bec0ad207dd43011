package connectionquality

import (
	"math"
	"sync"
	"time"

	"github.com/frostbyte73/core"

	"github.com/meetkit/meetkit-client/pkg/config"
	"github.com/meetkit/meetkit-client/pkg/logger"
	"github.com/meetkit/meetkit-client/pkg/rtc/types"
)

const (
	maxQuality = 100.0
	minQuality = 0.0

	// share of the nominal target an encoder realistically sustains
	targetDiscount = 0.9

	// below this much streaming time the bitrate path is meaningless
	minMeasurementDuration = time.Second
)

// packet-loss-only quality buckets; boundaries resolve to the lower-loss
// bucket
var lossBuckets = []struct {
	maxLoss float64
	quality float64
}{
	{2, 100},
	{4, 70},
	{6, 50},
	{8, 30},
	{12, 10},
}

func qualityFromPacketLoss(lossPercent float64) float64 {
	for _, b := range lossBuckets {
		if lossPercent <= b.maxLoss {
			return b.quality
		}
	}
	return 0
}

// TargetBitrateFunc returns the expected send bitrate in kbps for the
// current encoding layout at the given send resolution. Wired to the
// encoding planner by the conference layer.
type TargetBitrateFunc func(height int) float64

type EstimatorParams struct {
	Config        config.QualityConfig
	TargetBitrate TargetBitrateFunc
	Channel       types.BroadcastChannel
	Logger        logger.Logger
}

// Estimator converts periodic local bitrate/packet-loss samples into a
// damped 0-100 quality score and broadcasts it to the other participants.
//
// The score is allowed to drop instantly but can only climb at a bounded
// rate, so a UI bound to it never flickers from terrible to perfect. During
// stream ramp-up the expected bitrate is capped by what an idealized
// congestion controller could have reached, which keeps a legitimately
// ramping connection from being reported as poor.
type Estimator struct {
	params EstimatorParams

	lock sync.Mutex

	bitrate    types.Rate
	packetLoss types.Rate
	bandwidth  types.Rate
	resolution *types.VideoResolution

	// download bandwidth is first-writer-wins: a bridge-scoped value is
	// never overwritten by a peer-connection-scoped sample
	haveBridgeDownload bool

	quality      float64
	lastUpdateAt time.Time

	iceConnectedAt  time.Time
	videoUnmutedAt  time.Time
	videoMuted      bool
	videoKind       types.VideoKind
	simulcast       bool
	interrupted     bool
	skipDampingOnce bool

	remote *remoteStore

	onLocalStats  func(types.LocalStatsUpdated)
	onRemoteStats func(types.RemoteStatsUpdated)

	done core.Fuse
}

func NewEstimator(params EstimatorParams) *Estimator {
	if params.Logger == nil {
		params.Logger = logger.GetLogger()
	}
	params.Logger = params.Logger.WithComponent("quality")
	cacheSize := params.Config.RemoteStatsCacheSize
	if cacheSize <= 0 {
		cacheSize = 128
	}
	return &Estimator{
		params:    params,
		quality:   maxQuality,
		videoKind: types.VideoKindCamera,
		remote:    newRemoteStore(cacheSize),
	}
}

func (e *Estimator) OnLocalStats(f func(types.LocalStatsUpdated)) {
	e.onLocalStats = f
}

func (e *Estimator) OnRemoteStats(f func(types.RemoteStatsUpdated)) {
	e.onRemoteStats = f
}

// Quality returns the current local score.
func (e *Estimator) Quality() float64 {
	e.lock.Lock()
	defer e.lock.Unlock()

	return e.quality
}

func (e *Estimator) SetVideoKind(kind types.VideoKind) {
	e.lock.Lock()
	defer e.lock.Unlock()

	e.videoKind = kind
}

func (e *Estimator) SetSimulcast(enabled bool) {
	e.lock.Lock()
	defer e.lock.Unlock()

	e.simulcast = enabled
}

func (e *Estimator) OnICEConnected() {
	e.OnICEConnectedAt(time.Now())
}

func (e *Estimator) OnICEConnectedAt(at time.Time) {
	e.lock.Lock()
	defer e.lock.Unlock()

	e.iceConnectedAt = at
	e.interrupted = false
}

// UpdateMute tracks local video mute, which both pauses the bitrate path and
// restarts the ramp-up window on unmute.
func (e *Estimator) UpdateMute(muted bool) {
	e.UpdateMuteAt(muted, time.Now())
}

func (e *Estimator) UpdateMuteAt(muted bool, at time.Time) {
	e.lock.Lock()
	defer e.lock.Unlock()

	e.videoMuted = muted
	if !muted {
		e.videoUnmutedAt = at
	}
}

// OnConnectionInterrupted drops the score to zero immediately; degraded
// connectivity is reported without damping.
func (e *Estimator) OnConnectionInterrupted() {
	e.onConnectionInterruptedAt(time.Now())
}

func (e *Estimator) onConnectionInterruptedAt(at time.Time) {
	e.lock.Lock()
	if e.done.IsBroken() {
		e.lock.Unlock()
		return
	}
	e.interrupted = true
	e.quality = minQuality
	e.lastUpdateAt = at
	stats := e.snapshotLocked(at)
	e.lock.Unlock()

	e.emitAndBroadcast(stats)
}

// OnConnectionRestored restarts scoring. The first sample after a restore is
// exempt from upward damping so a genuinely recovered connection does not
// crawl back from zero.
func (e *Estimator) OnConnectionRestored() {
	e.OnConnectionRestoredAt(time.Now())
}

func (e *Estimator) OnConnectionRestoredAt(at time.Time) {
	e.lock.Lock()
	defer e.lock.Unlock()

	e.interrupted = false
	e.skipDampingOnce = true
	e.iceConnectedAt = at
}

// AddStatsSample folds one periodic sample from the stats collaborator into
// the accumulated local stats, recomputes the score and broadcasts it.
func (e *Estimator) AddStatsSample(sample types.StatsSample) {
	e.AddStatsSampleAt(sample, time.Now())
}

func (e *Estimator) AddStatsSampleAt(sample types.StatsSample, at time.Time) {
	e.lock.Lock()
	if e.done.IsBroken() {
		e.lock.Unlock()
		return
	}

	e.mergeSampleLocked(sample)
	e.recomputeLocked(at)
	stats := e.snapshotLocked(at)
	e.lock.Unlock()

	e.emitAndBroadcast(stats)
}

func (e *Estimator) mergeSampleLocked(sample types.StatsSample) {
	e.bitrate = sample.Bitrate
	e.packetLoss = sample.PacketLoss

	e.bandwidth.Upload = sample.Bandwidth.Upload
	switch sample.Scope {
	case types.StatsScopeBridge:
		e.bandwidth.Download = sample.Bandwidth.Download
		e.haveBridgeDownload = true
	case types.StatsScopePeerConnection:
		if !e.haveBridgeDownload {
			e.bandwidth.Download = sample.Bandwidth.Download
		}
	}

	if sample.Resolution != nil {
		e.resolution = sample.Resolution
	}
}

func (e *Estimator) recomputeLocked(at time.Time) {
	if e.interrupted {
		e.quality = minQuality
		e.lastUpdateAt = at
		return
	}

	raw := e.rawQualityLocked(at)

	// upward damping; drops are applied immediately
	if raw > e.quality && !e.skipDampingOnce {
		elapsed := at.Sub(e.lastUpdateAt).Seconds()
		if e.lastUpdateAt.IsZero() {
			elapsed = 0
		}
		ceiling := e.quality + e.params.Config.MaxIncreasePerSecond*elapsed
		if raw > ceiling {
			raw = ceiling
		}
	}
	e.skipDampingOnce = false

	e.quality = clampQuality(raw)
	e.lastUpdateAt = at
}

func (e *Estimator) rawQualityLocked(at time.Time) float64 {
	loss := e.packetLoss.Upload

	streamingSince := e.iceConnectedAt
	if e.videoUnmutedAt.After(streamingSince) {
		streamingSince = e.videoUnmutedAt
	}
	elapsed := at.Sub(streamingSince)

	lossOnly := e.videoMuted ||
		e.resolution == nil ||
		e.videoKind == types.VideoKindDesktop ||
		streamingSince.IsZero() ||
		elapsed < minMeasurementDuration

	if lossOnly {
		return qualityFromPacketLoss(loss)
	}

	target := targetDiscount * e.targetBitrateLocked(elapsed)
	if target <= 0 {
		return qualityFromPacketLoss(loss)
	}

	quality := maxQuality * e.bitrate.Upload / target
	quality = clampQuality(quality)

	if loss >= e.params.Config.PacketLossCapThreshold && quality > e.params.Config.CappedQuality {
		quality = e.params.Config.CappedQuality
	}
	return quality
}

// targetBitrateLocked returns the expected upload bitrate in kbps, bounded
// by the ramp-up ceiling: an idealized bandwidth estimator starts at the
// configured start bitrate and grows by the growth factor each second, so
// the layout's nominal target is unreachable early on.
func (e *Estimator) targetBitrateLocked(elapsed time.Duration) float64 {
	target := math.MaxFloat64
	if e.params.TargetBitrate != nil && e.resolution != nil {
		target = e.params.TargetBitrate(e.resolution.Height)
	}

	if elapsed < e.params.Config.RampUpDuration {
		ceiling := e.params.Config.StartBitrateKbps *
			math.Pow(e.params.Config.RampUpGrowthFactor, elapsed.Seconds())
		if ceiling < target {
			target = ceiling
		}
	}

	if target == math.MaxFloat64 {
		return 0
	}
	return target
}

func (e *Estimator) snapshotLocked(at time.Time) types.QualityStats {
	stats := types.QualityStats{
		ConnectionQuality: e.quality,
		BitrateUploadKbps: e.bitrate.Upload,
		PacketLossPercent: e.packetLoss.Upload,
		Timestamp:         at,
	}
	if e.resolution != nil {
		res := *e.resolution
		stats.Resolution = &res
	}
	return stats
}

func (e *Estimator) emitAndBroadcast(stats types.QualityStats) {
	if e.onLocalStats != nil {
		e.onLocalStats(types.LocalStatsUpdated{Stats: stats})
	}

	if e.params.Channel == nil {
		return
	}
	if err := e.params.Channel.SendMessage(types.BroadcastAll, stats); err != nil {
		// channel not established yet; the next periodic sample retries
		e.params.Logger.Debugw("could not broadcast quality stats", "error", err)
	}
}

// UpdateRemoteStats stores and re-emits the quality tuple received from a
// remote participant.
func (e *Estimator) UpdateRemoteStats(id types.ParticipantID, stats types.QualityStats) {
	if e.done.IsBroken() {
		return
	}

	e.remote.update(id, stats)
	if e.onRemoteStats != nil {
		e.onRemoteStats(types.RemoteStatsUpdated{ParticipantID: id, Stats: stats})
	}
}

// RemoteStats returns the last stored tuple for a remote participant.
func (e *Estimator) RemoteStats(id types.ParticipantID) (types.QualityStats, bool) {
	return e.remote.get(id)
}

// ParticipantLeft evicts the participant's remote stats.
func (e *Estimator) ParticipantLeft(id types.ParticipantID) {
	e.remote.remove(id)
}

func (e *Estimator) Close() {
	e.done.Break()
}

func clampQuality(q float64) float64 {
	if q > maxQuality {
		return maxQuality
	}
	if q < minQuality {
		return minQuality
	}
	return q
}
