package rtc

import (
	"sync"
	"time"

	"github.com/pion/webrtc/v3"

	"github.com/meetkit/meetkit-client/pkg/logger"
	"github.com/meetkit/meetkit-client/pkg/rtc/types"
)

type SessionContextParams struct {
	Signaling types.SignalingTransport
	StartedAt time.Time
	Logger    logger.Logger
}

// SessionContext owns state that is per conference session rather than per
// track, so that several sessions in one host process cannot bleed into each
// other. Today that is the time-to-first-media observation, armed once per
// media kind by the first track of that kind that gets attached.
type SessionContext struct {
	params SessionContextParams

	lock         sync.Mutex
	firstMediaAt map[webrtc.RTPCodecType]time.Time

	onFirstMedia func(kind webrtc.RTPCodecType, elapsed time.Duration)
}

func NewSessionContext(params SessionContextParams) *SessionContext {
	if params.Logger == nil {
		params.Logger = logger.GetLogger()
	}
	if params.StartedAt.IsZero() {
		params.StartedAt = time.Now()
	}
	return &SessionContext{
		params:       params,
		firstMediaAt: make(map[webrtc.RTPCodecType]time.Time),
	}
}

func (s *SessionContext) MyParticipantID() types.ParticipantID {
	if s.params.Signaling == nil {
		return ""
	}
	return s.params.Signaling.MyParticipantID()
}

// OnFirstMedia registers the once-per-kind time-to-first-media observer.
func (s *SessionContext) OnFirstMedia(f func(kind webrtc.RTPCodecType, elapsed time.Duration)) {
	s.onFirstMedia = f
}

func (s *SessionContext) armFirstMedia(kind webrtc.RTPCodecType) {
	s.armFirstMediaAt(kind, time.Now())
}

func (s *SessionContext) armFirstMediaAt(kind webrtc.RTPCodecType, at time.Time) {
	s.lock.Lock()
	if _, seen := s.firstMediaAt[kind]; seen {
		s.lock.Unlock()
		return
	}
	s.firstMediaAt[kind] = at
	elapsed := at.Sub(s.params.StartedAt)
	s.lock.Unlock()

	s.params.Logger.Infow("time to first media", "kind", kind.String(), "elapsed", elapsed)
	if s.onFirstMedia != nil {
		s.onFirstMedia(kind, elapsed)
	}
}

// FirstMediaAt returns when the first media of a kind was rendered, if ever.
func (s *SessionContext) FirstMediaAt(kind webrtc.RTPCodecType) (time.Time, bool) {
	s.lock.Lock()
	defer s.lock.Unlock()

	at, ok := s.firstMediaAt[kind]
	return at, ok
}
