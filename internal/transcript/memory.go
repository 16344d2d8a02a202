package transcript

import (
	"context"
	"sync"
)

// MemoryStore keeps transcripts in process memory. Contents are lost on
// restart, which callers treat as an empty conversation.
type MemoryStore struct {
	mu       sync.RWMutex
	maxTurns int
	sessions map[string]*memSession
}

type memSession struct {
	seq   int64
	turns []Turn
}

// NewMemoryStore returns a store retaining maxTurns per session.
func NewMemoryStore(maxTurns int) *MemoryStore {
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}
	return &MemoryStore{maxTurns: maxTurns, sessions: make(map[string]*memSession)}
}

func (m *MemoryStore) Append(ctx context.Context, sessionID string, turns ...Turn) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(turns) == 0 {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		s = &memSession{}
		m.sessions[sessionID] = s
	}
	for _, t := range turns {
		s.seq++
		t.Sequence = s.seq
		s.turns = append(s.turns, t)
	}
	if over := len(s.turns) - m.maxTurns; over > 0 {
		s.turns = append([]Turn(nil), s.turns[over:]...)
	}
	return nil
}

func (m *MemoryStore) Read(ctx context.Context, sessionID string, limit int) ([]Turn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, nil
	}
	tail := Tail(s.turns, limit)
	return append([]Turn(nil), tail...), nil
}

func (m *MemoryStore) Clear(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	delete(m.sessions, sessionID)
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) ClearAll(ctx context.Context) error {
	m.mu.Lock()
	m.sessions = make(map[string]*memSession)
	m.mu.Unlock()
	return nil
}

// Sessions returns the number of sessions with retained turns.
func (m *MemoryStore) Sessions(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions), nil
}
