package connectivity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/meetkit/meetkit-client/pkg/config"
	"github.com/meetkit/meetkit-client/pkg/rtc/types"
)

const p1 = types.ParticipantID("p1")

func newTestMonitor(t *testing.T) (*Monitor, *[]types.ConnectionStatusChanged) {
	t.Helper()

	m := NewMonitor(MonitorParams{
		Config: config.ConnectivityConfig{
			RTCMuteTimeout: 2000 * time.Millisecond,
			// no debounce so SetLastN recomputes synchronously
			TransitionHistorySize: 4,
		},
	})
	t.Cleanup(m.Close)

	events := &[]types.ConnectionStatusChanged{}
	m.OnStatusChanged(func(e types.ConnectionStatusChanged) {
		*events = append(*events, e)
	})
	return m, events
}

func TestMonitorDefaults(t *testing.T) {
	m, _ := newTestMonitor(t)

	require.True(t, m.IsConnectionActive("unknown"))

	m.SetBridgeStatus(p1, true)
	require.True(t, m.IsConnectionActive(p1))
}

func TestBridgeStatus(t *testing.T) {
	t.Run("bridge inactive takes the participant down", func(t *testing.T) {
		m, events := newTestMonitor(t)
		now := time.Now()

		m.setBridgeStatusAt(p1, false, now)
		require.False(t, m.IsConnectionActive(p1))
		require.Len(t, *events, 1)
		require.False(t, (*events)[0].Active)

		m.setBridgeStatusAt(p1, true, now.Add(time.Second))
		require.True(t, m.IsConnectionActive(p1))
		require.Len(t, *events, 2)
		require.True(t, (*events)[1].Active)
	})

	t.Run("no bridge report is treated as active", func(t *testing.T) {
		m, events := newTestMonitor(t)

		m.setSignalingMuteAt(p1, false, time.Now())
		require.True(t, m.IsConnectionActive(p1))
		require.Empty(t, *events)
	})
}

func TestRTCMuteFreezeDetection(t *testing.T) {
	t.Run("unmute before the timeout never goes inactive", func(t *testing.T) {
		m, events := newTestMonitor(t)
		now := time.Now()

		m.setRTCMuteAt(p1, true, now)
		require.True(t, m.IsConnectionActive(p1))

		// engine recovers at 1500ms, under the 2000ms timeout
		m.setRTCMuteAt(p1, false, now.Add(1500*time.Millisecond))
		require.True(t, m.IsConnectionActive(p1))
		require.Empty(t, *events)
	})

	t.Run("timeout marks the participant frozen exactly once", func(t *testing.T) {
		m, events := newTestMonitor(t)
		now := time.Now()

		m.setRTCMuteAt(p1, true, now)
		m.onMuteTimeoutAt(p1, now.Add(2000*time.Millisecond))

		require.False(t, m.IsConnectionActive(p1))
		require.Len(t, *events, 1)
		require.False(t, (*events)[0].Active)

		// redundant evaluation does not re-emit
		m.recomputeAllAt(now.Add(2500 * time.Millisecond))
		require.Len(t, *events, 1)
	})

	t.Run("frozen participant recovers only on engine unmute", func(t *testing.T) {
		m, events := newTestMonitor(t)
		now := time.Now()

		m.setRTCMuteAt(p1, true, now)
		m.onMuteTimeoutAt(p1, now.Add(2000*time.Millisecond))
		require.False(t, m.IsConnectionActive(p1))

		// time passing alone changes nothing
		m.recomputeAllAt(now.Add(10 * time.Second))
		require.False(t, m.IsConnectionActive(p1))

		m.setRTCMuteAt(p1, false, now.Add(11*time.Second))
		require.True(t, m.IsConnectionActive(p1))
		require.Len(t, *events, 2)
		require.True(t, (*events)[1].Active)
	})

	t.Run("engine mute while signaling-muted is intentional", func(t *testing.T) {
		m, events := newTestMonitor(t)
		now := time.Now()

		m.setSignalingMuteAt(p1, true, now)
		m.setRTCMuteAt(p1, true, now)
		m.onMuteTimeoutAt(p1, now.Add(3*time.Second))

		require.True(t, m.IsConnectionActive(p1))
		require.Empty(t, *events)
	})

	t.Run("engine mute during signaling mute still detects the freeze", func(t *testing.T) {
		m, events := newTestMonitor(t)
		now := time.Now()

		m.setSignalingMuteAt(p1, true, now)
		m.setRTCMuteAt(p1, true, now.Add(time.Second))

		// user unmutes but the engine never resumes; the freeze clock
		// counts from the engine mute, not from the unmute
		m.setSignalingMuteAt(p1, false, now.Add(2*time.Second))
		require.True(t, m.IsConnectionActive(p1))

		m.onMuteTimeoutAt(p1, now.Add(3*time.Second))
		require.False(t, m.IsConnectionActive(p1))
		require.Len(t, *events, 1)
		require.False(t, (*events)[0].Active)

		m.recomputeAllAt(now.Add(10 * time.Second))
		require.False(t, m.IsConnectionActive(p1))
		require.Len(t, *events, 1)
	})

	t.Run("signaling unmute past the deadline goes inactive immediately", func(t *testing.T) {
		m, events := newTestMonitor(t)
		now := time.Now()

		m.setSignalingMuteAt(p1, true, now)
		m.setRTCMuteAt(p1, true, now.Add(time.Second))
		m.setSignalingMuteAt(p1, false, now.Add(10*time.Second))

		require.False(t, m.IsConnectionActive(p1))
		require.Len(t, *events, 1)
	})

	t.Run("signaling mute arriving later cancels the freeze timer", func(t *testing.T) {
		m, events := newTestMonitor(t)
		now := time.Now()

		m.setRTCMuteAt(p1, true, now)
		m.setSignalingMuteAt(p1, true, now.Add(500*time.Millisecond))

		// even when the old deadline passes, the mute is now explained
		m.onMuteTimeoutAt(p1, now.Add(2100*time.Millisecond))
		require.True(t, m.IsConnectionActive(p1))
		require.Empty(t, *events)
	})
}

func TestLastN(t *testing.T) {
	t.Run("dropping out of last-n deactivates unmuted video", func(t *testing.T) {
		m, events := newTestMonitor(t)

		m.SetBridgeStatus(p1, true)
		m.SetLastN([]types.ParticipantID{"p2", "p3"})

		require.False(t, m.IsConnectionActive(p1))
		require.Len(t, *events, 1)

		m.SetLastN([]types.ParticipantID{"p1", "p2"})
		require.True(t, m.IsConnectionActive(p1))
		require.Len(t, *events, 2)
	})

	t.Run("signaling-muted participant is active regardless of last-n", func(t *testing.T) {
		m, events := newTestMonitor(t)

		m.SetSignalingMute(p1, true)
		m.SetLastN([]types.ParticipantID{"p2"})

		require.True(t, m.IsConnectionActive(p1))
		require.Empty(t, *events)
	})
}

func TestTrackRemoval(t *testing.T) {
	m, _ := newTestMonitor(t)
	now := time.Now()

	m.trackChangedAt(p1, true, now)
	m.setRTCMuteAt(p1, true, now)

	// removing the track clears the engine mute, so the old deadline is moot
	m.trackChangedAt(p1, false, now.Add(time.Second))
	m.onMuteTimeoutAt(p1, now.Add(3*time.Second))

	require.True(t, m.IsConnectionActive(p1))
}

func TestParticipantLeft(t *testing.T) {
	m, _ := newTestMonitor(t)

	m.SetBridgeStatus(p1, false)
	require.False(t, m.IsConnectionActive(p1))

	m.ParticipantLeft(p1)
	require.True(t, m.IsConnectionActive(p1))

	// unknown departure is tolerated
	m.ParticipantLeft("ghost")
}

func TestTransitionHistory(t *testing.T) {
	m, _ := newTestMonitor(t)
	now := time.Now()

	for i := 0; i < 6; i++ {
		m.setBridgeStatusAt(p1, i%2 == 0, now.Add(time.Duration(i)*time.Second))
	}

	transitions := m.RecentTransitions()
	require.Len(t, transitions, 4)
	// oldest retained flip is the third one
	require.Equal(t, now.Add(2*time.Second), transitions[0].At)
	require.Equal(t, now.Add(5*time.Second), transitions[3].At)
	require.False(t, transitions[3].Active)
}

func TestMonitorClose(t *testing.T) {
	m, events := newTestMonitor(t)

	m.SetBridgeStatus(p1, true)
	m.Close()

	m.SetBridgeStatus(p1, false)
	require.Empty(t, *events)
	require.True(t, m.IsConnectionActive(p1))
}
