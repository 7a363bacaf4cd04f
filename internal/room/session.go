package room

import (
	"sync"

	"github.com/viksharma04/ludo-stacked-backend/internal/engine"
)

// sessions holds the live, in-memory GameState for every room with a
// game in progress on this process, per spec.md §3: "GameState is owned
// by the room's session; mutated only by C8 via value-replacement. The
// room service owns a reference; C8 never touches cache or DB."
type sessions struct {
	mu     sync.Mutex
	states map[string]*engine.GameState
}

func newSessions() *sessions {
	return &sessions{states: make(map[string]*engine.GameState)}
}

func (s *sessions) get(roomID string) (*engine.GameState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[roomID]
	return st, ok
}

func (s *sessions) set(roomID string, state *engine.GameState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[roomID] = state
}

func (s *sessions) delete(roomID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, roomID)
}
