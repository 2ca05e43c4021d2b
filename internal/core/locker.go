package core

// locker.go serializes steps per job id inside one process.
//
// Each id gets a one-slot semaphore. A step that finds the slot taken waits
// up to maxWait before failing with ErrBusy, so a client that double-fires
// a step gets a clear retry signal instead of queuing behind a long chunk.
// Slots are reference counted and dropped once nobody holds or waits on them.

import (
	"context"
	"sync"
	"time"
)

// DefaultLockWait is how long a step waits for a busy job before giving up.
const DefaultLockWait = 2 * time.Second

type slot struct {
	sem  chan struct{}
	refs int
}

// KeyedLocker is an in-process Locker. Different keys never contend.
type KeyedLocker struct {
	maxWait time.Duration

	mu    sync.Mutex
	slots map[string]*slot
}

var _ Locker = (*KeyedLocker)(nil)

// NewKeyedLocker creates a locker whose Lock waits at most maxWait.
// A zero maxWait fails immediately when the key is held.
func NewKeyedLocker(maxWait time.Duration) *KeyedLocker {
	if maxWait < 0 {
		maxWait = DefaultLockWait
	}
	return &KeyedLocker{
		maxWait: maxWait,
		slots:   make(map[string]*slot),
	}
}

// Lock acquires key. The returned unlock must be called exactly once.
func (l *KeyedLocker) Lock(ctx context.Context, key string) (func(), error) {
	s := l.ref(key)

	// Fast path without a timer.
	select {
	case s.sem <- struct{}{}:
		return l.unlocker(key, s), nil
	default:
	}

	if l.maxWait == 0 {
		l.unref(key, s)
		return nil, ErrBusy
	}

	waitCtx, cancel := context.WithTimeout(ctx, l.maxWait)
	defer cancel()

	select {
	case s.sem <- struct{}{}:
		return l.unlocker(key, s), nil
	case <-waitCtx.Done():
		l.unref(key, s)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, ErrBusy
	}
}

// Held returns the number of keys currently locked or waited on.
func (l *KeyedLocker) Held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.slots)
}

func (l *KeyedLocker) ref(key string) *slot {
	l.mu.Lock()
	defer l.mu.Unlock()

	s, ok := l.slots[key]
	if !ok {
		s = &slot{sem: make(chan struct{}, 1)}
		l.slots[key] = s
	}
	s.refs++
	return s
}

func (l *KeyedLocker) unref(key string, s *slot) {
	l.mu.Lock()
	defer l.mu.Unlock()

	s.refs--
	if s.refs == 0 {
		delete(l.slots, key)
	}
}

func (l *KeyedLocker) unlocker(key string, s *slot) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			<-s.sem
			l.unref(key, s)
		})
	}
}
