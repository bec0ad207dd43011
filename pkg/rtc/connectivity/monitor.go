package connectivity

import (
	"sync"
	"time"

	"github.com/bep/debounce"
	"github.com/gammazero/deque"
	"github.com/thoas/go-funk"

	"github.com/meetkit/meetkit-client/pkg/config"
	"github.com/meetkit/meetkit-client/pkg/logger"
	"github.com/meetkit/meetkit-client/pkg/rtc/types"
)

type MonitorParams struct {
	Config config.ConnectivityConfig
	Logger logger.Logger
}

// participantRecord is the fused view of one participant's connectivity
// signals. All access is under Monitor.lock.
type participantRecord struct {
	id types.ParticipantID

	// bridge-reported endpoint status; authoritative when present,
	// assumed active when the bridge never said anything
	bridgeActive    bool
	hasBridgeStatus bool

	signalingMuted bool
	rtcMuted       bool
	rtcMutedAt     time.Time
	inLastN        bool
	hasVideoTrack  bool

	isActive bool

	muteTimer *time.Timer
}

type Transition struct {
	ParticipantID types.ParticipantID
	Active        bool
	At            time.Time
}

// Monitor fuses bridge endpoint status, engine-level mute signals,
// signaling-level mute state and last-N membership into one debounced
// per-participant "connection active" boolean.
//
// A participant only goes inactive when their video has been engine-muted
// for at least RTCMuteTimeout while signaling still says unmuted; that is
// the frozen-video signature, and the delay is what keeps a legitimate mute
// from flapping the status.
type Monitor struct {
	params MonitorParams

	lock         sync.Mutex
	participants map[types.ParticipantID]*participantRecord
	lastN        []types.ParticipantID
	hasLastN     bool
	history      *deque.Deque[Transition]
	isClosed     bool

	debouncedRecompute func(func())

	onStatusChanged func(types.ConnectionStatusChanged)
}

func NewMonitor(params MonitorParams) *Monitor {
	if params.Logger == nil {
		params.Logger = logger.GetLogger()
	}
	params.Logger = params.Logger.WithComponent("connectivity")
	if params.Config.RTCMuteTimeout <= 0 {
		params.Config.RTCMuteTimeout = 2000 * time.Millisecond
	}
	if params.Config.TransitionHistorySize <= 0 {
		params.Config.TransitionHistorySize = 16
	}

	m := &Monitor{
		params:       params,
		participants: make(map[types.ParticipantID]*participantRecord),
		history:      &deque.Deque[Transition]{},
	}
	if params.Config.RecomputeDebounce > 0 {
		m.debouncedRecompute = debounce.New(params.Config.RecomputeDebounce)
	}
	return m
}

func (m *Monitor) OnStatusChanged(f func(types.ConnectionStatusChanged)) {
	m.onStatusChanged = f
}

func (m *Monitor) getOrCreateLocked(id types.ParticipantID) *participantRecord {
	r, ok := m.participants[id]
	if !ok {
		r = &participantRecord{
			id:       id,
			isActive: true,
			inLastN:  m.inLastNLocked(id),
		}
		m.participants[id] = r
	}
	return r
}

func (m *Monitor) inLastNLocked(id types.ParticipantID) bool {
	if !m.hasLastN {
		// no last-N constraint means everyone is forwarded
		return true
	}
	return funk.Contains(m.lastN, id)
}

// IsConnectionActive returns the current fused status; unknown participants
// report active.
func (m *Monitor) IsConnectionActive(id types.ParticipantID) bool {
	m.lock.Lock()
	defer m.lock.Unlock()

	r, ok := m.participants[id]
	if !ok {
		return true
	}
	return r.isActive
}

// RecentTransitions returns the retained status flips, oldest first.
func (m *Monitor) RecentTransitions() []Transition {
	m.lock.Lock()
	defer m.lock.Unlock()

	out := make([]Transition, 0, m.history.Len())
	for i := 0; i < m.history.Len(); i++ {
		out = append(out, m.history.At(i))
	}
	return out
}

// SetBridgeStatus records the bridge-reported endpoint status.
func (m *Monitor) SetBridgeStatus(id types.ParticipantID, active bool) {
	m.setBridgeStatusAt(id, active, time.Now())
}

func (m *Monitor) setBridgeStatusAt(id types.ParticipantID, active bool, now time.Time) {
	m.lock.Lock()
	if m.isClosed {
		m.lock.Unlock()
		return
	}
	r := m.getOrCreateLocked(id)
	r.bridgeActive = active
	r.hasBridgeStatus = true
	m.cancelTimerLocked(r)
	emit, status := m.evaluateLocked(r, now)
	m.lock.Unlock()

	m.maybeEmit(emit, status)
}

// SetSignalingMute records the user-intent mute state from signaling. An
// unmute that leaves the track engine-muted re-arms the freeze timer for the
// remainder of the timeout, counted from the original engine mute.
func (m *Monitor) SetSignalingMute(id types.ParticipantID, muted bool) {
	m.setSignalingMuteAt(id, muted, time.Now())
}

func (m *Monitor) setSignalingMuteAt(id types.ParticipantID, muted bool, now time.Time) {
	m.lock.Lock()
	if m.isClosed {
		m.lock.Unlock()
		return
	}
	r := m.getOrCreateLocked(id)
	r.signalingMuted = muted
	m.cancelTimerLocked(r)
	if !muted && r.rtcMuted && !r.rtcMutedAt.IsZero() {
		m.armTimerLocked(r, r.rtcMutedAt.Add(m.params.Config.RTCMuteTimeout).Sub(now))
	}
	emit, status := m.evaluateLocked(r, now)
	m.lock.Unlock()

	m.maybeEmit(emit, status)
}

// SetRTCMute records the engine-level mute signal for the participant's
// video track. The mute timestamp is recorded on every muted transition,
// even while signaling agrees, so a later signaling unmute still sees how
// long the video has been dead. The freeze timer runs only while signaling
// contradicts the engine.
func (m *Monitor) SetRTCMute(id types.ParticipantID, muted bool) {
	m.setRTCMuteAt(id, muted, time.Now())
}

func (m *Monitor) setRTCMuteAt(id types.ParticipantID, muted bool, now time.Time) {
	m.lock.Lock()
	if m.isClosed {
		m.lock.Unlock()
		return
	}
	r := m.getOrCreateLocked(id)
	wasMuted := r.rtcMuted
	r.rtcMuted = muted

	if muted {
		if !wasMuted {
			r.rtcMutedAt = now
		}
		if !r.signalingMuted {
			m.armTimerLocked(r, r.rtcMutedAt.Add(m.params.Config.RTCMuteTimeout).Sub(now))
		}
		m.lock.Unlock()
		return
	}

	r.rtcMutedAt = time.Time{}
	m.cancelTimerLocked(r)
	emit, status := m.evaluateLocked(r, now)
	m.lock.Unlock()

	m.maybeEmit(emit, status)
}

// SetLastN replaces the set of participants whose video the bridge currently
// forwards. Recomputation of all participants is coalesced.
func (m *Monitor) SetLastN(ids []types.ParticipantID) {
	m.lock.Lock()
	if m.isClosed {
		m.lock.Unlock()
		return
	}
	m.lastN = ids
	m.hasLastN = true
	for _, r := range m.participants {
		r.inLastN = m.inLastNLocked(r.id)
	}
	debounced := m.debouncedRecompute
	m.lock.Unlock()

	if debounced != nil {
		debounced(m.recomputeAll)
		return
	}
	m.recomputeAll()
}

func (m *Monitor) recomputeAll() {
	m.recomputeAllAt(time.Now())
}

func (m *Monitor) recomputeAllAt(now time.Time) {
	m.lock.Lock()
	if m.isClosed {
		m.lock.Unlock()
		return
	}
	var pending []types.ConnectionStatusChanged
	for _, r := range m.participants {
		if emit, status := m.evaluateLocked(r, now); emit {
			pending = append(pending, status)
		}
	}
	m.lock.Unlock()

	for _, status := range pending {
		m.maybeEmit(true, status)
	}
}

// TrackAdded tells the monitor the participant has a video track again.
func (m *Monitor) TrackAdded(id types.ParticipantID) {
	m.trackChangedAt(id, true, time.Now())
}

// TrackRemoved cancels any pending freeze timer; with no video track there
// is nothing to freeze.
func (m *Monitor) TrackRemoved(id types.ParticipantID) {
	m.trackChangedAt(id, false, time.Now())
}

func (m *Monitor) trackChangedAt(id types.ParticipantID, has bool, now time.Time) {
	m.lock.Lock()
	if m.isClosed {
		m.lock.Unlock()
		return
	}
	r := m.getOrCreateLocked(id)
	r.hasVideoTrack = has
	if !has {
		r.rtcMuted = false
		r.rtcMutedAt = time.Time{}
	}
	m.cancelTimerLocked(r)
	emit, status := m.evaluateLocked(r, now)
	m.lock.Unlock()

	m.maybeEmit(emit, status)
}

// ParticipantLeft clears the participant's record and timers.
func (m *Monitor) ParticipantLeft(id types.ParticipantID) {
	m.lock.Lock()
	defer m.lock.Unlock()

	r, ok := m.participants[id]
	if !ok {
		m.params.Logger.Warnw("departure for unknown participant", nil, "participantID", id)
		return
	}
	m.cancelTimerLocked(r)
	delete(m.participants, id)
}

// Close cancels every timer and stops emitting.
func (m *Monitor) Close() {
	m.lock.Lock()
	defer m.lock.Unlock()

	if m.isClosed {
		return
	}
	m.isClosed = true
	for _, r := range m.participants {
		m.cancelTimerLocked(r)
	}
	m.participants = make(map[types.ParticipantID]*participantRecord)
}

func (m *Monitor) armTimerLocked(r *participantRecord, d time.Duration) {
	m.cancelTimerLocked(r)
	if d < 0 {
		d = 0
	}
	id := r.id
	r.muteTimer = time.AfterFunc(d, func() {
		m.onMuteTimeout(id)
	})
}

func (m *Monitor) cancelTimerLocked(r *participantRecord) {
	if r.muteTimer != nil {
		r.muteTimer.Stop()
		r.muteTimer = nil
	}
}

func (m *Monitor) onMuteTimeout(id types.ParticipantID) {
	m.onMuteTimeoutAt(id, time.Now())
}

func (m *Monitor) onMuteTimeoutAt(id types.ParticipantID, now time.Time) {
	m.lock.Lock()
	if m.isClosed {
		m.lock.Unlock()
		return
	}
	r, ok := m.participants[id]
	if !ok {
		m.params.Logger.Warnw("mute timeout for unknown participant", nil, "participantID", id)
		m.lock.Unlock()
		return
	}
	r.muteTimer = nil
	emit, status := m.evaluateLocked(r, now)
	m.lock.Unlock()

	m.maybeEmit(emit, status)
}

// isFrozenLocked: engine says no data for longer than the timeout while the
// user has not muted, i. e. the video is stuck, not intentionally off.
func (m *Monitor) isFrozenLocked(r *participantRecord, now time.Time) bool {
	return r.rtcMuted &&
		!r.signalingMuted &&
		!r.rtcMutedAt.IsZero() &&
		now.Sub(r.rtcMutedAt) >= m.params.Config.RTCMuteTimeout
}

func (m *Monitor) evaluateLocked(r *participantRecord, now time.Time) (bool, types.ConnectionStatusChanged) {
	bridgeActive := r.bridgeActive || !r.hasBridgeStatus
	frozen := m.isFrozenLocked(r, now)
	active := bridgeActive && (r.signalingMuted || (r.inLastN && !frozen))

	if active == r.isActive {
		return false, types.ConnectionStatusChanged{}
	}
	r.isActive = active

	transition := Transition{ParticipantID: r.id, Active: active, At: now}
	m.history.PushBack(transition)
	for m.history.Len() > m.params.Config.TransitionHistorySize {
		m.history.PopFront()
	}

	m.params.Logger.Infow("participant connection status changed",
		"participantID", r.id,
		"active", active,
		"bridgeActive", bridgeActive,
		"signalingMuted", r.signalingMuted,
		"inLastN", r.inLastN,
		"frozen", frozen,
	)
	return true, types.ConnectionStatusChanged{ParticipantID: r.id, Active: active, At: now}
}

func (m *Monitor) maybeEmit(emit bool, status types.ConnectionStatusChanged) {
	if emit && m.onStatusChanged != nil {
		m.onStatusChanged(status)
	}
}
