// Package lane serializes memory writes per user. The dedup decision and
// the write it leads to must see a consistent view of that user's records,
// while unrelated users proceed in parallel.
package lane

import "sync"

// Locks hands out one mutex per user ID. A global mutex guards the map and
// is held only long enough to look up or create an entry; the per-user
// mutex is taken outside it so other users never block on the lookup.
type Locks struct {
	mu    sync.Mutex
	users map[string]*userLane
}

// userLane tracks one user's mutex. refs counts holders and waiters so the
// entry can be dropped from the map the moment nobody needs it.
type userLane struct {
	mu   sync.Mutex
	refs int
}

// NewLocks creates a ready-to-use lock table.
func NewLocks() *Locks {
	return &Locks{users: make(map[string]*userLane)}
}

// Acquire locks the lane for userID, creating it on first use. The caller
// must Release with the same ID when done.
func (l *Locks) Acquire(userID string) {
	l.mu.Lock()
	ln, ok := l.users[userID]
	if !ok {
		ln = &userLane{}
		l.users[userID] = ln
	}
	ln.refs++
	l.mu.Unlock()

	ln.mu.Lock()
}

// Release unlocks the lane for userID and drops the map entry once the last
// holder or waiter is gone, so the table stays bounded by the number of
// users with writes in flight.
func (l *Locks) Release(userID string) {
	l.mu.Lock()
	ln, ok := l.users[userID]
	if !ok {
		l.mu.Unlock()
		return
	}
	ln.refs--
	if ln.refs == 0 {
		delete(l.users, userID)
	}
	l.mu.Unlock()

	ln.mu.Unlock()
}

// Len reports how many users currently have a lane entry.
func (l *Locks) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.users)
}
