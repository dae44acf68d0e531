package memory

import (
	"context"
	"sync"
	"time"

	"bird-quiz-service/internal/app"
	"bird-quiz-service/internal/domain"
)

// StateStore keeps suspended session state in memory with a TTL.
type StateStore struct {
	ttl   time.Duration
	clock func() time.Time

	mu     sync.Mutex
	states map[string]storedState
}

type storedState struct {
	state     app.SessionState
	expiresAt time.Time
}

func NewStateStore(ttl time.Duration) *StateStore {
	return &StateStore{
		ttl:    ttl,
		clock:  time.Now,
		states: make(map[string]storedState),
	}
}

func (s *StateStore) SaveState(_ context.Context, st app.SessionState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry := storedState{state: st}
	if s.ttl > 0 {
		entry.expiresAt = s.clock().Add(s.ttl)
	}
	s.states[st.ID] = entry
	return nil
}

func (s *StateStore) LoadState(_ context.Context, sessionID string) (app.SessionState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.states[sessionID]
	if !ok {
		return app.SessionState{}, domain.ErrSessionNotFound
	}
	if !entry.expiresAt.IsZero() && !entry.expiresAt.After(s.clock()) {
		delete(s.states, sessionID)
		return app.SessionState{}, domain.ErrSessionNotFound
	}
	return entry.state, nil
}

func (s *StateStore) DeleteState(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, sessionID)
	return nil
}
