package rtc

import (
	"testing"

	"github.com/pion/webrtc/v3"
	"github.com/stretchr/testify/require"

	"github.com/meetkit/meetkit-client/pkg/capabilities"
	"github.com/meetkit/meetkit-client/pkg/rtc/types"
)

func videoTransceiver(mid string, sender *FakeSender) *FakeTransceiver {
	return &FakeTransceiver{
		TransceiverMid:  mid,
		TransceiverKind: webrtc.RTPCodecTypeVideo,
		Dir:             webrtc.RTPTransceiverDirectionSendrecv,
		TransceiverSend: sender,
	}
}

func localVideoTrack(id types.TrackID, nativeID string, source types.SourceName) *LocalTrack {
	return NewLocalTrack(LocalTrackParams{
		TrackParams: TrackParams{
			ID:        id,
			Kind:      webrtc.RTPCodecTypeVideo,
			VideoKind: types.VideoKindCamera,
			Native:    &FakeNativeTrack{TrackID: nativeID, TrackKind: webrtc.RTPCodecTypeVideo},
		},
		SourceName:    source,
		CaptureHeight: 720,
	})
}

func TestTransceiverBinding(t *testing.T) {
	t.Run("recorded binding wins over heuristics", func(t *testing.T) {
		pc := &FakePeerConnection{Transceivers: []*FakeTransceiver{
			videoTransceiver("0", NewFakeSender(nil, types.SendParameters{})),
			videoTransceiver("1", NewFakeSender(nil, types.SendParameters{})),
		}}
		b := NewTransceiverBinding(TransceiverBindingParams{PC: pc})
		track := localVideoTrack("t1", "n1", "p1-v0")

		b.Bind(track.ID(), "1")
		tr, err := b.Find(track)
		require.NoError(t, err)
		require.Equal(t, "1", tr.Mid())
	})

	t.Run("matches by sender track identity", func(t *testing.T) {
		native := &FakeNativeTrack{TrackID: "n1", TrackKind: webrtc.RTPCodecTypeVideo}
		pc := &FakePeerConnection{Transceivers: []*FakeTransceiver{
			videoTransceiver("0", NewFakeSender(nil, types.SendParameters{})),
			videoTransceiver("1", NewFakeSender(native, types.SendParameters{})),
		}}
		b := NewTransceiverBinding(TransceiverBindingParams{PC: pc})
		track := localVideoTrack("t1", "n1", "p1-v0")

		tr, err := b.Find(track)
		require.NoError(t, err)
		require.Equal(t, "1", tr.Mid())

		// result must be recorded so the next lookup agrees
		mid, ok := b.Lookup(track.ID())
		require.True(t, ok)
		require.Equal(t, "1", mid.Mid())
	})

	t.Run("reuses a receive-only transceiver with multiplexing", func(t *testing.T) {
		recvOnly := &FakeTransceiver{
			TransceiverMid:  "2",
			TransceiverKind: webrtc.RTPCodecTypeVideo,
			Dir:             webrtc.RTPTransceiverDirectionRecvonly,
			CurrentDir:      webrtc.RTPTransceiverDirectionRecvonly,
			TransceiverSend: NewFakeSender(nil, types.SendParameters{}),
		}
		pc := &FakePeerConnection{Transceivers: []*FakeTransceiver{recvOnly}}
		b := NewTransceiverBinding(TransceiverBindingParams{
			PC:   pc,
			Caps: capabilities.Descriptor{SupportsSourceMultiplexing: true},
		})
		track := localVideoTrack("t1", "n-new", "p1-v0")

		tr, err := b.Find(track)
		require.NoError(t, err)
		require.Equal(t, "2", tr.Mid())
	})

	t.Run("kind index fallback picks the nth unbound transceiver", func(t *testing.T) {
		pc := &FakePeerConnection{Transceivers: []*FakeTransceiver{
			videoTransceiver("0", NewFakeSender(nil, types.SendParameters{})),
			videoTransceiver("1", NewFakeSender(nil, types.SendParameters{})),
		}}
		b := NewTransceiverBinding(TransceiverBindingParams{PC: pc})

		second := localVideoTrack("t2", "n2", "p1-v1")
		tr, err := b.Find(second)
		require.NoError(t, err)
		require.Equal(t, "1", tr.Mid())

		first := localVideoTrack("t1", "n1", "p1-v0")
		tr, err = b.Find(first)
		require.NoError(t, err)
		require.Equal(t, "0", tr.Mid())
	})

	t.Run("fails with a descriptive error when nothing matches", func(t *testing.T) {
		audioOnly := &FakeTransceiver{
			TransceiverMid:  "0",
			TransceiverKind: webrtc.RTPCodecTypeAudio,
			Dir:             webrtc.RTPTransceiverDirectionSendrecv,
		}
		pc := &FakePeerConnection{Transceivers: []*FakeTransceiver{audioOnly}}
		b := NewTransceiverBinding(TransceiverBindingParams{PC: pc})
		track := localVideoTrack("t1", "n1", "p1-v0")

		_, err := b.Find(track)
		require.ErrorIs(t, err, ErrNoTransceiver)
		require.Contains(t, err.Error(), "t1")
	})

	t.Run("unbind invalidates the lookup", func(t *testing.T) {
		pc := &FakePeerConnection{Transceivers: []*FakeTransceiver{
			videoTransceiver("0", NewFakeSender(nil, types.SendParameters{})),
		}}
		b := NewTransceiverBinding(TransceiverBindingParams{PC: pc})

		b.Bind("t1", "0")
		_, ok := b.Lookup("t1")
		require.True(t, ok)

		b.Unbind("t1")
		_, ok = b.Lookup("t1")
		require.False(t, ok)
	})
}

func TestSourceNameTrackIndex(t *testing.T) {
	require.Equal(t, 0, types.SourceName("p1-v0").TrackIndex())
	require.Equal(t, 1, types.SourceName("p1-v1").TrackIndex())
	require.Equal(t, 12, types.SourceName("p1-a12").TrackIndex())
	require.Equal(t, -1, types.SourceName("p1").TrackIndex())
	require.Equal(t, -1, types.SourceName("p1-").TrackIndex())
	require.Equal(t, -1, types.SourceName("p1-vx").TrackIndex())
}
