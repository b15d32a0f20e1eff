package usecase

import (
	"context"
	"fmt"
	"sync"
)

// SessionLocker serializes whole turns per session id. Turns on different
// ids never block each other.
type SessionLocker struct {
	mu    sync.Mutex
	slots map[string]*sessionSlot
}

type sessionSlot struct {
	sem  chan struct{}
	refs int
}

// NewSessionLocker creates a new session locker.
func NewSessionLocker() *SessionLocker {
	return &SessionLocker{slots: make(map[string]*sessionSlot)}
}

// Lock blocks until the session is free or ctx is done. The returned unlock
// function is safe to call more than once.
func (sl *SessionLocker) Lock(ctx context.Context, sessionID string) (unlock func(), err error) {
	sl.mu.Lock()
	slot, ok := sl.slots[sessionID]
	if !ok {
		slot = &sessionSlot{sem: make(chan struct{}, 1)}
		sl.slots[sessionID] = slot
	}
	slot.refs++
	sl.mu.Unlock()

	select {
	case slot.sem <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-slot.sem
				sl.release(sessionID, slot)
			})
		}, nil
	case <-ctx.Done():
		sl.release(sessionID, slot)
		return nil, fmt.Errorf("session lock %q: %w", sessionID, ctx.Err())
	}
}

func (sl *SessionLocker) release(sessionID string, slot *sessionSlot) {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	slot.refs--
	if slot.refs == 0 {
		delete(sl.slots, sessionID)
	}
}

// ActiveCount returns the number of sessions with held or pending locks.
func (sl *SessionLocker) ActiveCount() int {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	return len(sl.slots)
}
