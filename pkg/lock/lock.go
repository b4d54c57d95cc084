package lock

import (
	"context"
	"errors"
	"sync"
)

// ErrHeld is returned when another holder owns the key.
var ErrHeld = errors.New("lock is held")

// Locker hands out exclusive, non-blocking locks keyed by invoice id.
type Locker interface {
	// TryLock returns ErrHeld immediately instead of waiting.
	TryLock(ctx context.Context, key string) (release func(), err error)
}

// Memory is an in-process Locker.
type Memory struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewMemory() *Memory {
	return &Memory{held: make(map[string]struct{})}
}

func (m *Memory) TryLock(_ context.Context, key string) (func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.held[key]; ok {
		return nil, ErrHeld
	}
	m.held[key] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.held, key)
			m.mu.Unlock()
		})
	}, nil
}
