package rtc

import (
	"github.com/meetkit/meetkit-client/pkg/rtc/types"
)

type LocalTrackParams struct {
	TrackParams

	SourceName types.SourceName

	// capture dimensions and frame rate as reported by the capturer,
	// inputs to encoding planning
	CaptureHeight int
	FrameRate     float64
}

// LocalTrack is a track captured on this endpoint and sent to the conference.
type LocalTrack struct {
	Track

	localParams LocalTrackParams
}

func NewLocalTrack(params LocalTrackParams) *LocalTrack {
	return &LocalTrack{
		Track:       newTrack(params.TrackParams, true, ""),
		localParams: params,
	}
}

func (t *LocalTrack) SourceName() types.SourceName {
	return t.localParams.SourceName
}

func (t *LocalTrack) CaptureHeight() int {
	return t.localParams.CaptureHeight
}

func (t *LocalTrack) FrameRate() float64 {
	return t.localParams.FrameRate
}

// SetNative swaps the captured native track, e. g. after a device change.
func (t *LocalTrack) SetNative(native types.NativeTrack) {
	t.setNative(native)
}

// SetRTCMuted records the engine-level mute signal for the local capturer,
// feeding the no-audio-input diagnostic.
func (t *LocalTrack) SetRTCMuted(muted bool) {
	t.setRTCMuted(muted)
}
