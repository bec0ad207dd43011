package rtc

import (
	"sync"

	"github.com/frostbyte73/core"
	"github.com/pion/webrtc/v3"

	"github.com/meetkit/meetkit-client/pkg/logger"
	"github.com/meetkit/meetkit-client/pkg/rtc/types"
)

type TrackParams struct {
	ID        types.TrackID
	Kind      webrtc.RTPCodecType
	VideoKind types.VideoKind
	Native    types.NativeTrack
	Session   *SessionContext
	Logger    logger.Logger
}

// Track owns the lifecycle of one captured or received media track: its
// native track reference, mute state, render-surface attachments and audio
// level. Local and remote variants embed it.
//
// A disposed track is a tombstone: every mutating call becomes a silent
// no-op so that async callbacks outliving disposal cannot crash the host.
type Track struct {
	params  TrackParams
	isLocal bool
	owner   types.ParticipantID

	lock       sync.RWMutex
	native     types.NativeTrack
	containers map[string]types.RenderSurface
	muted      bool
	everMuted  bool
	rtcMuted   bool
	audioLevel float64

	disposed core.Fuse

	onMuteChanged       func(types.TrackMuteChanged)
	onAttached          func(types.TrackAttached)
	onDetached          func(types.TrackDetached)
	onAudioLevelChanged func(types.AudioLevelChanged)
	onNoAudioInput      func(types.NoAudioInput)
}

func newTrack(params TrackParams, isLocal bool, owner types.ParticipantID) Track {
	if params.Logger == nil {
		params.Logger = logger.GetLogger()
	}
	params.Logger = params.Logger.WithValues("trackID", params.ID, "kind", params.Kind.String())
	return Track{
		params:     params,
		isLocal:    isLocal,
		owner:      owner,
		native:     params.Native,
		containers: make(map[string]types.RenderSurface),
	}
}

func (t *Track) ID() types.TrackID {
	return t.params.ID
}

func (t *Track) Kind() webrtc.RTPCodecType {
	return t.params.Kind
}

func (t *Track) VideoKind() types.VideoKind {
	return t.params.VideoKind
}

func (t *Track) Owner() types.ParticipantID {
	return t.owner
}

func (t *Track) IsLocal() bool {
	return t.isLocal
}

func (t *Track) IsDisposed() bool {
	return t.disposed.IsBroken()
}

// Native returns the current underlying native track.
func (t *Track) Native() types.NativeTrack {
	t.lock.RLock()
	defer t.lock.RUnlock()

	return t.native
}

// setNative swaps the underlying native track. The swap is atomic from the
// consumer's point of view: readers see either the old or the new track,
// never nil in between.
func (t *Track) setNative(native types.NativeTrack) {
	if t.disposed.IsBroken() {
		return
	}

	t.lock.Lock()
	t.native = native
	t.lock.Unlock()
}

func (t *Track) OnMuteChanged(f func(types.TrackMuteChanged)) {
	t.onMuteChanged = f
}

func (t *Track) OnAttached(f func(types.TrackAttached)) {
	t.onAttached = f
}

func (t *Track) OnDetached(f func(types.TrackDetached)) {
	t.onDetached = f
}

func (t *Track) OnAudioLevelChanged(f func(types.AudioLevelChanged)) {
	t.onAudioLevelChanged = f
}

func (t *Track) OnNoAudioInput(f func(types.NoAudioInput)) {
	t.onNoAudioInput = f
}

// Attach binds the native track to a render surface and returns the surface
// handle to keep using, which may differ from the one passed in when the
// environment replaces elements on render.
func (t *Track) Attach(surface types.RenderSurface) (types.RenderSurface, error) {
	if surface == nil {
		return nil, ErrSurfaceNil
	}
	if t.disposed.IsBroken() {
		return surface, nil
	}

	t.lock.Lock()
	native := t.native
	if native == nil {
		t.lock.Unlock()
		return surface, ErrNoNativeTrack
	}

	replacement, err := surface.Render(native)
	if err != nil {
		t.lock.Unlock()
		return surface, err
	}
	if replacement != nil {
		surface = replacement
	}
	t.containers[surface.ID()] = surface
	t.lock.Unlock()

	t.params.Logger.Debugw("track attached", "surfaceID", surface.ID())
	if t.onAttached != nil {
		t.onAttached(types.TrackAttached{TrackID: t.params.ID, SurfaceID: surface.ID()})
	}
	if t.params.Session != nil {
		t.params.Session.armFirstMedia(t.params.Kind)
	}
	return surface, nil
}

// Detach removes the track from one surface, or from all surfaces when the
// argument is nil. Detaching an already-detached surface is a no-op.
func (t *Track) Detach(surface types.RenderSurface) {
	if surface == nil {
		t.detachAll()
		return
	}

	t.lock.Lock()
	attached, ok := t.containers[surface.ID()]
	if ok {
		delete(t.containers, surface.ID())
	}
	t.lock.Unlock()

	if !ok {
		return
	}

	attached.Clear()
	if t.onDetached != nil {
		t.onDetached(types.TrackDetached{TrackID: t.params.ID, SurfaceID: surface.ID()})
	}
}

func (t *Track) detachAll() {
	t.lock.Lock()
	detached := make([]types.RenderSurface, 0, len(t.containers))
	for id, surface := range t.containers {
		detached = append(detached, surface)
		delete(t.containers, id)
	}
	t.lock.Unlock()

	for _, surface := range detached {
		surface.Clear()
		if t.onDetached != nil {
			t.onDetached(types.TrackDetached{TrackID: t.params.ID, SurfaceID: surface.ID()})
		}
	}
}

// AttachedSurfaces returns the ids of surfaces currently rendering this track.
func (t *Track) AttachedSurfaces() []string {
	t.lock.RLock()
	defer t.lock.RUnlock()

	ids := make([]string, 0, len(t.containers))
	for id := range t.containers {
		ids = append(ids, id)
	}
	return ids
}

func (t *Track) IsMuted() bool {
	t.lock.RLock()
	defer t.lock.RUnlock()

	return t.muted
}

// HasEverBeenMuted reports whether the track was muted at any point of its
// life. The latch never resets.
func (t *Track) HasEverBeenMuted() bool {
	t.lock.RLock()
	defer t.lock.RUnlock()

	return t.everMuted
}

// SetMute updates the signaling-level mute state. Unchanged values are
// swallowed without an event.
func (t *Track) SetMute(muted bool) {
	if t.disposed.IsBroken() {
		return
	}

	t.lock.Lock()
	if t.muted == muted {
		t.lock.Unlock()
		return
	}
	t.muted = muted
	if muted {
		t.everMuted = true
	}
	t.lock.Unlock()

	t.params.Logger.Debugw("track mute changed", "muted", muted)
	if t.onMuteChanged != nil {
		t.onMuteChanged(types.TrackMuteChanged{
			TrackID: t.params.ID,
			Owner:   t.owner,
			Kind:    t.params.Kind,
			Muted:   muted,
		})
	}
}

// IsRTCMuted reports the engine-level mute state, i. e. whether media has
// stopped flowing regardless of user intent.
func (t *Track) IsRTCMuted() bool {
	t.lock.RLock()
	defer t.lock.RUnlock()

	return t.rtcMuted
}

func (t *Track) setRTCMuted(muted bool) {
	if t.disposed.IsBroken() {
		return
	}

	t.lock.Lock()
	t.rtcMuted = muted
	t.lock.Unlock()
}

// SetAudioLevel records a new audio level and emits a level-changed event
// only when the value actually changed. A local, unmuted track stuck at
// exactly zero emits a no-audio-input diagnostic instead: the microphone is
// capturing, the user expects to be heard, and nothing is arriving.
func (t *Track) SetAudioLevel(level float64) {
	if t.disposed.IsBroken() {
		return
	}

	t.lock.Lock()
	prev := t.audioLevel
	t.audioLevel = level
	muted := t.muted
	rtcMuted := t.rtcMuted
	t.lock.Unlock()

	if level == 0 && prev == 0 {
		if t.isLocal && !muted && !rtcMuted && t.onNoAudioInput != nil {
			t.onNoAudioInput(types.NoAudioInput{TrackID: t.params.ID})
		}
		return
	}
	if level == prev {
		return
	}

	if t.onAudioLevelChanged != nil {
		t.onAudioLevelChanged(types.AudioLevelChanged{
			TrackID: t.params.ID,
			Owner:   t.owner,
			Level:   level,
		})
	}
}

func (t *Track) AudioLevel() float64 {
	t.lock.RLock()
	defer t.lock.RUnlock()

	return t.audioLevel
}

// Dispose detaches every surface, drops all listeners and tombstones the
// track. Safe to call more than once.
func (t *Track) Dispose() {
	t.disposed.Once(func() {
		t.detachAll()

		t.lock.Lock()
		t.onMuteChanged = nil
		t.onAttached = nil
		t.onDetached = nil
		t.onAudioLevelChanged = nil
		t.onNoAudioInput = nil
		t.lock.Unlock()

		t.params.Logger.Debugw("track disposed")
	})
}
