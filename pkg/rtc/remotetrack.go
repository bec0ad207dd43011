package rtc

import (
	"github.com/meetkit/meetkit-client/pkg/rtc/types"
)

type RemoteTrackParams struct {
	TrackParams

	Owner types.ParticipantID
	SSRC  uint32
}

// RemoteTrack is a track received from another participant. Its SSRC comes
// from signaling and the adaptation layer must have converted it to a number
// already; a zero SSRC is rejected because it means the conversion failed.
type RemoteTrack struct {
	Track

	ssrc uint32

	levels *AudioLevelObserver

	onRTCMuteChanged func(trackID types.TrackID, owner types.ParticipantID, muted bool)
}

func NewRemoteTrack(params RemoteTrackParams, audioActiveLevel float64) (*RemoteTrack, error) {
	if params.SSRC == 0 {
		return nil, ErrInvalidSSRC
	}
	return &RemoteTrack{
		Track:  newTrack(params.TrackParams, false, params.Owner),
		ssrc:   params.SSRC,
		levels: NewAudioLevelObserver(audioActiveLevel),
	}, nil
}

func (t *RemoteTrack) SSRC() uint32 {
	return t.ssrc
}

func (t *RemoteTrack) OnRTCMuteChanged(f func(trackID types.TrackID, owner types.ParticipantID, muted bool)) {
	t.onRTCMuteChanged = f
}

// SetRTCMuted records the engine-level mute signal. The connectivity monitor
// observes these transitions to detect frozen video.
func (t *RemoteTrack) SetRTCMuted(muted bool) {
	if t.IsDisposed() {
		return
	}

	t.setRTCMuted(muted)
	if t.onRTCMuteChanged != nil {
		t.onRTCMuteChanged(t.params.ID, t.owner, muted)
	}
}

// ObserveAudioLevel folds one received frame's level into the windowed
// observer and forwards the result through the track's level path when the
// window closed with a change.
func (t *RemoteTrack) ObserveAudioLevel(level float64) {
	if t.IsDisposed() {
		return
	}

	windowed, changed := t.levels.Observe(level)
	if changed {
		t.SetAudioLevel(windowed)
	}
}
