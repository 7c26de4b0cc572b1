// AngelaMos | 2026
// memstore.go

package onboarding

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kyora-app/kyora-backend/internal/core"
)

// MemoryStore is a mutex-guarded Store used by tests and local
// development. It implements the same compare-and-swap semantics as the
// Postgres store.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]Session
	clock    func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]Session),
		clock:    time.Now,
	}
}

// SetClock replaces the store's time source. Test helper.
func (m *MemoryStore) SetClock(clock func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clock = clock
}

func (m *MemoryStore) Create(ctx context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.sessions[s.Token]; exists {
		return fmt.Errorf("create session: %w", ErrTokenCollision)
	}

	now := m.clock()
	s.CreatedAt = now
	s.UpdatedAt = now

	m.sessions[s.Token] = *s
	return nil
}

func (m *MemoryStore) Load(ctx context.Context, token string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[token]
	if !ok {
		return nil, fmt.Errorf("load session: %w", core.ErrNotFound)
	}

	if s.IsExpired(m.clock()) {
		return nil, fmt.Errorf("load session: %w", ErrExpired)
	}

	copied := s
	return &copied, nil
}

func (m *MemoryStore) Save(
	ctx context.Context,
	s *Session,
	expectedVersion int,
) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.sessions[s.Token]
	if !ok {
		return fmt.Errorf("save session: %w", core.ErrNotFound)
	}

	if stored.Version != expectedVersion {
		return fmt.Errorf("save session: %w", ErrVersionConflict)
	}

	s.Version = expectedVersion + 1
	s.UpdatedAt = m.clock()

	m.sessions[s.Token] = *s
	return nil
}
