// Package tracker counts how many distinct threads have mentioned a topic
// per user. A topic seen in enough threads earns tier1 promotion for the
// next capture. State is bounded by two LRU layers (users, then topics per
// user); evicting an entry only costs a promotion opportunity, never
// stored data.
package tracker

import (
	"container/list"
	"sync"
	"time"
)

const (
	// DefaultMaxUsers bounds how many users hold tracker state at once.
	DefaultMaxUsers = 1024

	// DefaultMaxTopics bounds the topics remembered per user.
	DefaultMaxTopics = 256

	// DefaultPromoteThreads is how many distinct threads a topic needs
	// before it is promotion-eligible.
	DefaultPromoteThreads = 2
)

// Observation is a read-only view of one tracked topic.
type Observation struct {
	Topic    string
	Threads  int
	LastSeen time.Time
}

// Tracker is safe for concurrent use.
type Tracker struct {
	mu             sync.Mutex
	users          map[string]*userEntry
	order          *list.List // user LRU, front is most recent
	maxUsers       int
	maxTopics      int
	promoteThreads int
}

type userEntry struct {
	id     string
	elem   *list.Element
	topics map[string]*topicEntry
	order  *list.List // topic LRU, front is most recent
}

type topicEntry struct {
	key      string
	elem     *list.Element
	threads  map[string]struct{}
	lastSeen time.Time
}

// New creates a Tracker. Non-positive limits use the defaults.
func New(maxUsers, maxTopics, promoteThreads int) *Tracker {
	if maxUsers <= 0 {
		maxUsers = DefaultMaxUsers
	}
	if maxTopics <= 0 {
		maxTopics = DefaultMaxTopics
	}
	if promoteThreads <= 0 {
		promoteThreads = DefaultPromoteThreads
	}
	return &Tracker{
		users:          make(map[string]*userEntry),
		order:          list.New(),
		maxUsers:       maxUsers,
		maxTopics:      maxTopics,
		promoteThreads: promoteThreads,
	}
}

// Observe records that topic was mentioned by userID in threadID and
// returns the distinct-thread count after the observation. Empty topic,
// user, or thread IDs contribute nothing beyond the current count.
func (t *Tracker) Observe(userID, topic, threadID string, now time.Time) int {
	if userID == "" || topic == "" {
		return 0
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	ue := t.user(userID)
	te := ue.topic(topic, t.maxTopics)
	if threadID != "" {
		te.threads[threadID] = struct{}{}
	}
	te.lastSeen = now
	return len(te.threads)
}

// Eligible reports whether the topic has been seen in enough distinct
// threads to warrant tier1 promotion.
func (t *Tracker) Eligible(userID, topic string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	ue, ok := t.users[userID]
	if !ok {
		return false
	}
	te, ok := ue.topics[topic]
	if !ok {
		return false
	}
	return len(te.threads) >= t.promoteThreads
}

// Snapshot returns the tracked state of one topic without bumping LRU
// order.
func (t *Tracker) Snapshot(userID, topic string) (Observation, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	ue, ok := t.users[userID]
	if !ok {
		return Observation{}, false
	}
	te, ok := ue.topics[topic]
	if !ok {
		return Observation{}, false
	}
	return Observation{Topic: topic, Threads: len(te.threads), LastSeen: te.lastSeen}, true
}

// Len reports how many users currently hold tracker state.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.users)
}

// user returns the entry for userID, creating it and evicting the least
// recently seen user when over capacity. Caller holds t.mu.
func (t *Tracker) user(userID string) *userEntry {
	if ue, ok := t.users[userID]; ok {
		t.order.MoveToFront(ue.elem)
		return ue
	}

	ue := &userEntry{
		id:     userID,
		topics: make(map[string]*topicEntry),
		order:  list.New(),
	}
	ue.elem = t.order.PushFront(ue)
	t.users[userID] = ue

	for len(t.users) > t.maxUsers {
		oldest := t.order.Back()
		if oldest == nil {
			break
		}
		evicted := t.order.Remove(oldest).(*userEntry)
		delete(t.users, evicted.id)
	}
	return ue
}

// topic returns the entry for key, creating it and evicting the least
// recently mentioned topic when over capacity. Caller holds t.mu.
func (ue *userEntry) topic(key string, maxTopics int) *topicEntry {
	if te, ok := ue.topics[key]; ok {
		ue.order.MoveToFront(te.elem)
		return te
	}

	te := &topicEntry{
		key:     key,
		threads: make(map[string]struct{}),
	}
	te.elem = ue.order.PushFront(te)
	ue.topics[key] = te

	for len(ue.topics) > maxTopics {
		oldest := ue.order.Back()
		if oldest == nil {
			break
		}
		evicted := ue.order.Remove(oldest).(*topicEntry)
		delete(ue.topics, evicted.key)
	}
	return te
}
