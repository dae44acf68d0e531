package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"bird-quiz-service/internal/app"
	"bird-quiz-service/internal/domain"
)

// StateStore persists suspended sessions as JSON:
// SET quiz:state:{sessionID} {state JSON} EX ttl
type StateStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewStateStore(client *redis.Client, ttl time.Duration) *StateStore {
	return &StateStore{client: client, ttl: ttl}
}

func (s *StateStore) SaveState(ctx context.Context, st app.SessionState) error {
	raw, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode session state: %w", err)
	}
	return s.client.Set(ctx, s.key(st.ID), raw, s.ttl).Err()
}

func (s *StateStore) LoadState(ctx context.Context, sessionID string) (app.SessionState, error) {
	raw, err := s.client.Get(ctx, s.key(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return app.SessionState{}, domain.ErrSessionNotFound
	}
	if err != nil {
		return app.SessionState{}, err
	}
	var st app.SessionState
	if err := json.Unmarshal(raw, &st); err != nil {
		return app.SessionState{}, fmt.Errorf("decode session state: %w", err)
	}
	return st, nil
}

func (s *StateStore) DeleteState(ctx context.Context, sessionID string) error {
	return s.client.Del(ctx, s.key(sessionID)).Err()
}

func (s *StateStore) key(sessionID string) string {
	return "quiz:state:" + sessionID
}
