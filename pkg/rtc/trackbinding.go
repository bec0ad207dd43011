package rtc

import (
	"fmt"
	"sync"

	"github.com/elliotchance/orderedmap/v2"
	"github.com/pion/webrtc/v3"
	"github.com/pkg/errors"

	"github.com/meetkit/meetkit-client/pkg/capabilities"
	"github.com/meetkit/meetkit-client/pkg/logger"
	"github.com/meetkit/meetkit-client/pkg/rtc/types"
)

type TransceiverBindingParams struct {
	PC     types.PeerConnection
	Caps   capabilities.Descriptor
	Logger logger.Logger
}

// TransceiverBinding is the single source of truth for which transceiver a
// local track sends on. The map is updated transactionally on every
// add/replace/remove; heuristic search only runs for tracks the map has
// never seen, and its result is recorded before being returned so that
// subsequent lookups cannot disagree with it.
//
// Insertion order matters: it mirrors m-line order, which is what the
// per-kind index fallback leans on.
type TransceiverBinding struct {
	params TransceiverBindingParams

	lock     sync.Mutex
	bindings *orderedmap.OrderedMap[types.TrackID, string]
}

func NewTransceiverBinding(params TransceiverBindingParams) *TransceiverBinding {
	if params.Logger == nil {
		params.Logger = logger.GetLogger()
	}
	return &TransceiverBinding{
		params:   params,
		bindings: orderedmap.NewOrderedMap[types.TrackID, string](),
	}
}

// Bind records that trackID sends on the transceiver with the given mid.
func (b *TransceiverBinding) Bind(trackID types.TrackID, mid string) {
	b.lock.Lock()
	defer b.lock.Unlock()

	b.bindings.Set(trackID, mid)
}

// Unbind removes the record for trackID, e. g. on track removal.
func (b *TransceiverBinding) Unbind(trackID types.TrackID) {
	b.lock.Lock()
	defer b.lock.Unlock()

	b.bindings.Delete(trackID)
}

// Lookup resolves the transceiver for a track the binding already knows.
func (b *TransceiverBinding) Lookup(trackID types.TrackID) (types.RTPTransceiver, bool) {
	b.lock.Lock()
	mid, ok := b.bindings.Get(trackID)
	b.lock.Unlock()
	if !ok {
		return nil, false
	}

	for _, tr := range b.params.PC.GetTransceivers() {
		if tr.Mid() == mid && !tr.Stopped() {
			return tr, true
		}
	}
	return nil, false
}

// Find resolves the transceiver for a local track, recording the result.
// Resolution order:
//  1. the binding map
//  2. the transceiver whose sender currently holds this track's native track
//  3. with source multiplexing, a reusable receive-only transceiver of the
//     same kind
//  4. the nth transceiver of the same kind, n derived from the structured
//     source name (falling back to the first)
func (b *TransceiverBinding) Find(track *LocalTrack) (types.RTPTransceiver, error) {
	if tr, ok := b.Lookup(track.ID()); ok {
		return tr, nil
	}

	tr := b.findBySenderTrack(track)
	if tr == nil && b.params.Caps.SupportsSourceMultiplexing {
		tr = b.findReusableReceiver(track.Kind())
	}
	if tr == nil {
		tr = b.findByKindIndex(track.Kind(), track.SourceName().TrackIndex())
	}
	if tr == nil {
		return nil, errors.Wrap(ErrNoTransceiver,
			fmt.Sprintf("trackID: %s, kind: %s, source: %s", track.ID(), track.Kind(), track.SourceName()))
	}

	b.Bind(track.ID(), tr.Mid())
	b.params.Logger.Debugw("transceiver bound",
		"trackID", track.ID(), "mid", tr.Mid(), "kind", track.Kind().String())
	return tr, nil
}

func (b *TransceiverBinding) findBySenderTrack(track *LocalTrack) types.RTPTransceiver {
	native := track.Native()
	if native == nil {
		return nil
	}
	for _, tr := range b.params.PC.GetTransceivers() {
		if tr.Stopped() || tr.Kind() != track.Kind() {
			continue
		}
		sender := tr.Sender()
		if sender == nil {
			continue
		}
		if st := sender.Track(); st != nil && st.ID() == native.ID() {
			return tr
		}
	}
	return nil
}

func (b *TransceiverBinding) findReusableReceiver(kind webrtc.RTPCodecType) types.RTPTransceiver {
	for _, tr := range b.params.PC.GetTransceivers() {
		if tr.Stopped() || tr.Kind() != kind {
			continue
		}
		if tr.Direction() != webrtc.RTPTransceiverDirectionRecvonly {
			continue
		}
		if cd := tr.CurrentDirection(); cd == webrtc.RTPTransceiverDirectionSendrecv ||
			cd == webrtc.RTPTransceiverDirectionSendonly {
			continue
		}
		if b.isBound(tr.Mid()) {
			continue
		}
		return tr
	}
	return nil
}

func (b *TransceiverBinding) findByKindIndex(kind webrtc.RTPCodecType, index int) types.RTPTransceiver {
	if index < 0 {
		index = 0
	}
	n := 0
	var first types.RTPTransceiver
	for _, tr := range b.params.PC.GetTransceivers() {
		if tr.Stopped() || tr.Kind() != kind {
			continue
		}
		if b.isBound(tr.Mid()) {
			continue
		}
		if first == nil {
			first = tr
		}
		if n == index {
			return tr
		}
		n++
	}
	return first
}

func (b *TransceiverBinding) isBound(mid string) bool {
	b.lock.Lock()
	defer b.lock.Unlock()

	for el := b.bindings.Front(); el != nil; el = el.Next() {
		if el.Value == mid {
			return true
		}
	}
	return false
}
