// Package mutex provides a FIFO mutual-exclusion lock with optional reentrancy
// and acquisition deadlines.
//
// Unlike sync.Mutex, a Mutex hands ownership to waiters strictly in arrival
// order, lets the same Owner re-acquire it without blocking, and gives up
// waiting when the caller's context ends:
//
//	owner := mutex.NewOwner()
//	release, err := m.Lock(ctx, owner)
//	if err != nil {
//	    return err
//	}
//	defer release()
package mutex

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrTimeout is returned when the lock could not be acquired before the
// caller's context ended.
var ErrTimeout = errors.New("mutex: lock timed out")

// Owner identifies a logical task for reentrant locking. The zero Owner never
// re-enters: every Lock call with it queues like a stranger.
type Owner string

// NewOwner returns a unique owner token.
func NewOwner() Owner {
	return Owner(uuid.NewString())
}

type waiter struct {
	owner Owner
	ready chan struct{}
}

// Mutex is a FIFO, optionally reentrant lock. The zero value is unlocked.
type Mutex struct {
	mu     sync.Mutex
	locked bool
	owner  Owner
	count  int
	queue  []*waiter
}

// Lock acquires the lock and returns its release function.
//
// If the lock is free it is taken immediately. If it is held by the same
// non-zero owner the reentrancy count grows and Lock returns at once.
// Otherwise the caller waits in FIFO order until the lock is handed over or
// ctx ends, in which case the waiter leaves the queue and ErrTimeout is returned.
func (m *Mutex) Lock(ctx context.Context, owner Owner) (func(), error) {
	m.mu.Lock()
	if m.locked && owner != "" && m.owner == owner {
		m.count++
		m.mu.Unlock()
		return m.releaser(owner), nil
	}
	if !m.locked {
		m.locked = true
		m.owner = owner
		m.count = 1
		m.mu.Unlock()
		return m.releaser(owner), nil
	}

	w := &waiter{owner: owner, ready: make(chan struct{})}
	m.queue = append(m.queue, w)
	m.mu.Unlock()

	select {
	case <-w.ready:
		return m.releaser(owner), nil
	case <-ctx.Done():
		m.mu.Lock()
		removed := m.remove(w)
		m.mu.Unlock()
		if removed {
			return nil, fmt.Errorf("%w: %w", ErrTimeout, ctx.Err())
		}
		// Ownership was handed over while the deadline fired.
		return m.releaser(owner), nil
	}
}

// LockTimeout is Lock with a relative deadline. A non-positive timeout waits forever.
func (m *Mutex) LockTimeout(timeout time.Duration, owner Owner) (func(), error) {
	if timeout <= 0 {
		return m.Lock(context.Background(), owner)
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return m.Lock(ctx, owner)
}

// IsLocked reports whether the lock is currently held. The answer may be
// stale by the time the caller acts on it.
func (m *Mutex) IsLocked() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.locked
}

func (m *Mutex) releaser(owner Owner) func() {
	var once sync.Once
	return func() {
		once.Do(func() { m.unlock(owner) })
	}
}

func (m *Mutex) unlock(owner Owner) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.locked {
		return
	}
	if owner != "" && m.owner == owner && m.count > 1 {
		m.count--
		return
	}

	if len(m.queue) == 0 {
		m.locked = false
		m.owner = ""
		m.count = 0
		return
	}

	next := m.queue[0]
	m.queue[0] = nil
	m.queue = m.queue[1:]
	m.owner = next.owner
	m.count = 1
	close(next.ready)
}

// remove drops w from the queue. It reports false when w was already granted.
func (m *Mutex) remove(w *waiter) bool {
	for i, q := range m.queue {
		if q == w {
			m.queue = append(m.queue[:i], m.queue[i+1:]...)
			return true
		}
	}
	return false
}

func (m *Mutex) waiting() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}
