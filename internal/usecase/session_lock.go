package usecase

import (
	"context"
	"fmt"
	"sync"
)

// SessionLocker serialises turns per session: at most one utterance of a
// session is in flight at a time. Sessions never contend with each other.
type SessionLocker struct {
	mu    sync.Mutex
	locks map[string]*sessionSlot
}

// sessionSlot is a one-token semaphore plus the number of holders and waiters.
type sessionSlot struct {
	token chan struct{}
	refs  int
}

// NewSessionLocker creates a new session locker.
func NewSessionLocker() *SessionLocker {
	return &SessionLocker{locks: make(map[string]*sessionSlot)}
}

// Lock blocks until the session is free or ctx is done. The returned unlock
// must be called exactly once.
func (sl *SessionLocker) Lock(ctx context.Context, sessionID string) (unlock func(), err error) {
	sl.mu.Lock()
	slot, ok := sl.locks[sessionID]
	if !ok {
		slot = &sessionSlot{token: make(chan struct{}, 1)}
		sl.locks[sessionID] = slot
	}
	slot.refs++
	sl.mu.Unlock()

	select {
	case slot.token <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-slot.token
				sl.release(sessionID, slot)
			})
		}, nil
	case <-ctx.Done():
		sl.release(sessionID, slot)
		return nil, fmt.Errorf("session lock: %w", ctx.Err())
	}
}

func (sl *SessionLocker) release(sessionID string, slot *sessionSlot) {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	slot.refs--
	if slot.refs == 0 {
		delete(sl.locks, sessionID)
	}
}

// ActiveCount returns the number of sessions with holders or waiters.
func (sl *SessionLocker) ActiveCount() int {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	return len(sl.locks)
}
