// Package event carries record lifecycle notifications between components.
// The capture pipeline and retention sweeper publish; the profile cache and
// metrics listen. Dispatch is synchronous and in subscription order, so
// handlers must stay cheap.
package event

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mnemod/mnemod/internal/record"
)

// Type identifies what happened to a record.
type Type string

const (
	// RecordInserted fires on every new record write.
	RecordInserted Type = "record.inserted"

	// RecordSuperseded fires when a duplicate merged into an existing
	// record.
	RecordSuperseded Type = "record.superseded"

	// RecordUpdated fires on explicit owner edits.
	RecordUpdated Type = "record.updated"

	// RecordDeleted fires on owner-requested soft deletes.
	RecordDeleted Type = "record.deleted"

	// RecordExpired fires when the retention sweep removes records.
	RecordExpired Type = "record.expired"
)

// Event is one record lifecycle notification.
type Event struct {
	ID        string
	Type      Type
	UserID    string
	RecordID  string
	Tier      record.Tier
	Timestamp time.Time
}

// Handler receives published events.
type Handler func(Event)

// Bus fans events out to subscribers. Safe for concurrent use.
type Bus struct {
	mu       sync.RWMutex
	handlers map[Type][]Handler
	all      []Handler
}

// NewBus creates an empty Bus.
func NewBus() *Bus {
	return &Bus{handlers: make(map[Type][]Handler)}
}

// Subscribe registers a handler for one event type.
func (b *Bus) Subscribe(t Type, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[t] = append(b.handlers[t], h)
}

// SubscribeAll registers a handler for every event type.
func (b *Bus) SubscribeAll(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.all = append(b.all, h)
}

// Publish delivers the event to all matching handlers, filling in the ID
// and timestamp when the caller left them empty.
func (b *Bus) Publish(ev Event) {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}

	b.mu.RLock()
	typed := b.handlers[ev.Type]
	all := b.all
	b.mu.RUnlock()

	for _, h := range typed {
		h(ev)
	}
	for _, h := range all {
		h(ev)
	}
}
