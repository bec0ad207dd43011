package connectionquality

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/meetkit/meetkit-client/pkg/rtc/types"
)

// remoteStore keeps the last quality tuple per remote participant. The LRU
// bound is a backstop for departures the signaling layer never delivered;
// regular departures evict explicitly.
type remoteStore struct {
	entries *lru.Cache[types.ParticipantID, types.QualityStats]
}

func newRemoteStore(size int) *remoteStore {
	entries, err := lru.New[types.ParticipantID, types.QualityStats](size)
	if err != nil {
		// only fails for non-positive sizes, which the caller guards
		panic(err)
	}
	return &remoteStore{entries: entries}
}

func (s *remoteStore) update(id types.ParticipantID, stats types.QualityStats) {
	s.entries.Add(id, stats)
}

func (s *remoteStore) get(id types.ParticipantID) (types.QualityStats, bool) {
	return s.entries.Get(id)
}

func (s *remoteStore) remove(id types.ParticipantID) {
	s.entries.Remove(id)
}
