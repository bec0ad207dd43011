package rtc

import (
	"context"
	"sync"

	"github.com/pion/webrtc/v3"

	"github.com/meetkit/meetkit-client/pkg/rtc/types"
)

// test fakes for the engine collaborators, shared across packages

type FakeNativeTrack struct {
	TrackID   string
	TrackKind webrtc.RTPCodecType
}

func (f *FakeNativeTrack) ID() string                { return f.TrackID }
func (f *FakeNativeTrack) Kind() webrtc.RTPCodecType { return f.TrackKind }

type FakeSurface struct {
	SurfaceID string

	lock     sync.Mutex
	rendered types.NativeTrack
	clears   int
	renders  int

	// when set, Render hands back this surface instead
	Replacement types.RenderSurface
	RenderErr   error
}

func (f *FakeSurface) ID() string { return f.SurfaceID }

func (f *FakeSurface) Render(track types.NativeTrack) (types.RenderSurface, error) {
	f.lock.Lock()
	defer f.lock.Unlock()

	if f.RenderErr != nil {
		return nil, f.RenderErr
	}
	f.rendered = track
	f.renders++
	return f.Replacement, nil
}

func (f *FakeSurface) Clear() {
	f.lock.Lock()
	defer f.lock.Unlock()

	f.rendered = nil
	f.clears++
}

func (f *FakeSurface) Rendered() types.NativeTrack {
	f.lock.Lock()
	defer f.lock.Unlock()

	return f.rendered
}

func (f *FakeSurface) Clears() int {
	f.lock.Lock()
	defer f.lock.Unlock()

	return f.clears
}

type FakeSender struct {
	lock       sync.Mutex
	track      types.NativeTrack
	parameters types.SendParameters

	SetParametersErr error
	ReplaceTrackErr  error

	setParametersCalls int
}

func NewFakeSender(track types.NativeTrack, parameters types.SendParameters) *FakeSender {
	return &FakeSender{track: track, parameters: parameters}
}

func (f *FakeSender) Track() types.NativeTrack {
	f.lock.Lock()
	defer f.lock.Unlock()

	return f.track
}

func (f *FakeSender) GetParameters() types.SendParameters {
	f.lock.Lock()
	defer f.lock.Unlock()

	return f.parameters
}

func (f *FakeSender) SetParameters(_ context.Context, params types.SendParameters) error {
	f.lock.Lock()
	defer f.lock.Unlock()

	if f.SetParametersErr != nil {
		return f.SetParametersErr
	}
	f.parameters = params
	f.setParametersCalls++
	return nil
}

func (f *FakeSender) ReplaceTrack(_ context.Context, track types.NativeTrack) error {
	f.lock.Lock()
	defer f.lock.Unlock()

	if f.ReplaceTrackErr != nil {
		return f.ReplaceTrackErr
	}
	f.track = track
	return nil
}

func (f *FakeSender) SetParametersCalls() int {
	f.lock.Lock()
	defer f.lock.Unlock()

	return f.setParametersCalls
}

type FakeReceiver struct {
	ReceiverTrack types.NativeTrack
}

func (f *FakeReceiver) Track() types.NativeTrack { return f.ReceiverTrack }

type FakeTransceiver struct {
	TransceiverMid  string
	TransceiverKind webrtc.RTPCodecType
	Dir             webrtc.RTPTransceiverDirection
	CurrentDir      webrtc.RTPTransceiverDirection
	TransceiverSend *FakeSender
	TransceiverRecv *FakeReceiver
	TransceiverStop bool
}

func (f *FakeTransceiver) Mid() string                                      { return f.TransceiverMid }
func (f *FakeTransceiver) Kind() webrtc.RTPCodecType                        { return f.TransceiverKind }
func (f *FakeTransceiver) Direction() webrtc.RTPTransceiverDirection        { return f.Dir }
func (f *FakeTransceiver) CurrentDirection() webrtc.RTPTransceiverDirection { return f.CurrentDir }
func (f *FakeTransceiver) Stopped() bool                                    { return f.TransceiverStop }

func (f *FakeTransceiver) Sender() types.RTPSender {
	if f.TransceiverSend == nil {
		return nil
	}
	return f.TransceiverSend
}

func (f *FakeTransceiver) Receiver() types.RTPReceiver {
	if f.TransceiverRecv == nil {
		return nil
	}
	return f.TransceiverRecv
}

type FakePeerConnection struct {
	Transceivers []*FakeTransceiver
}

func (f *FakePeerConnection) GetTransceivers() []types.RTPTransceiver {
	out := make([]types.RTPTransceiver, 0, len(f.Transceivers))
	for _, tr := range f.Transceivers {
		out = append(out, tr)
	}
	return out
}

func (f *FakePeerConnection) GetSenders() []types.RTPSender {
	var out []types.RTPSender
	for _, tr := range f.Transceivers {
		if tr.TransceiverSend != nil {
			out = append(out, tr.TransceiverSend)
		}
	}
	return out
}

func (f *FakePeerConnection) GetReceivers() []types.RTPReceiver {
	var out []types.RTPReceiver
	for _, tr := range f.Transceivers {
		if tr.TransceiverRecv != nil {
			out = append(out, tr.TransceiverRecv)
		}
	}
	return out
}
