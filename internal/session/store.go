// Package session provides the two guarantees the orchestrator leans on:
// strictly sequential handling of all messages sharing a session key, and a
// small durable scratch slot per session. The scratch slot is an explicit
// key-value store rather than a transport feature, so any broker can sit
// underneath.
package session

import (
	"context"
	"sync"
)

// Store is the durable per-session scratch slot. State is opaque bytes;
// the orchestrator keeps its saga record there as JSON. Processed and
// MarkProcessed form the duplicate-delivery guard: a (session, message)
// pair is marked only after the message was fully handled, so a delivery
// that failed mid-flight is reprocessed when the broker redelivers it.
type Store interface {
	Load(ctx context.Context, sessionID string) ([]byte, bool, error)
	Save(ctx context.Context, sessionID string, state []byte) error
	Processed(ctx context.Context, sessionID, messageID string) (bool, error)
	MarkProcessed(ctx context.Context, sessionID, messageID string) error
}

// MemoryStore keeps session state in process memory. Suitable for tests
// and single-binary runs only: state does not survive a restart.
type MemoryStore struct {
	mu        sync.Mutex
	state     map[string][]byte
	processed map[string]struct{}
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		state:     make(map[string][]byte),
		processed: make(map[string]struct{}),
	}
}

func (s *MemoryStore) Load(_ context.Context, sessionID string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.state[sessionID]
	if !ok {
		return nil, false, nil
	}
	cp := make([]byte, len(b))
	copy(cp, b)
	return cp, true, nil
}

func (s *MemoryStore) Save(_ context.Context, sessionID string, state []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(state))
	copy(cp, state)
	s.state[sessionID] = cp
	return nil
}

func (s *MemoryStore) Processed(_ context.Context, sessionID, messageID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, seen := s.processed[sessionID+"/"+messageID]
	return seen, nil
}

func (s *MemoryStore) MarkProcessed(_ context.Context, sessionID, messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.processed[sessionID+"/"+messageID] = struct{}{}
	return nil
}
