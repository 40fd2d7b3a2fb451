package session

import (
	"context"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// MemoryStore keeps histories in process memory. Once MaxSessions is
// reached the least recently used session is dropped.
type MemoryStore struct {
	mu       sync.Mutex
	sessions *lru.Cache[string, []Turn]
}

func NewMemoryStore(maxSessions int) (*MemoryStore, error) {
	if maxSessions <= 0 {
		maxSessions = 10_000
	}
	cache, err := lru.New[string, []Turn](maxSessions)
	if err != nil {
		return nil, fmt.Errorf("create session cache: %w", err)
	}
	return &MemoryStore{sessions: cache}, nil
}

func (s *MemoryStore) History(_ context.Context, sessionID string) ([]Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	turns, _ := s.sessions.Get(sessionID)
	return cloneTurns(turns), nil
}

func (s *MemoryStore) Append(_ context.Context, sessionID string, turn Turn) ([]Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	turns, _ := s.sessions.Get(sessionID)
	updated := append(cloneTurns(turns), turn)
	s.sessions.Add(sessionID, updated)
	return cloneTurns(updated), nil
}

func (s *MemoryStore) Sessions(context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions.Keys(), nil
}

func cloneTurns(turns []Turn) []Turn {
	out := make([]Turn, len(turns))
	copy(out, turns)
	return out
}
