// Package profile derives a compact per-user summary from durable memories
// and caches it. Record lifecycle events invalidate cached entries; a short
// TTL catches anything the events miss.
package profile

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/dgraph-io/ristretto"

	"github.com/mnemod/mnemod/internal/event"
	"github.com/mnemod/mnemod/internal/record"
	"github.com/mnemod/mnemod/internal/store"
)

const (
	// DefaultMaxFacts caps how many durable memories a profile carries.
	DefaultMaxFacts = 12

	defaultTTL         = 5 * time.Minute
	defaultMaxProfiles = 4096
)

// Fact is one durable memory in profile form.
type Fact struct {
	RecordID  string      `json:"record_id"`
	Content   string      `json:"content"`
	Tier      record.Tier `json:"tier"`
	Priority  float64     `json:"priority"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// Profile is the derived per-user view: the strongest tier1/tier2 facts
// plus live record counts.
type Profile struct {
	UserID      string                `json:"user_id"`
	Facts       []Fact                `json:"facts"`
	Counts      map[record.Tier]int64 `json:"counts"`
	GeneratedAt time.Time             `json:"generated_at"`
}

// Config groups the service dependencies.
type Config struct {
	Store store.Store

	// Bus supplies invalidation: any record event for a user drops that
	// user's cached profile. Nil relies on the TTL alone.
	Bus *event.Bus

	// MaxFacts caps the facts per profile. Zero means DefaultMaxFacts.
	MaxFacts int

	// MaxProfiles bounds the cache. Zero picks a default.
	MaxProfiles int64

	// TTL bounds staleness when no event arrives. Zero picks a default.
	TTL time.Duration

	Logger *slog.Logger

	// Now overrides the clock in tests.
	Now func() time.Time
}

// Service builds and caches user profiles.
type Service struct {
	store    store.Store
	cache    *ristretto.Cache
	maxFacts int
	ttl      time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

// New creates a Service and subscribes it to the bus when one is given.
func New(cfg Config) (*Service, error) {
	if cfg.MaxFacts <= 0 {
		cfg.MaxFacts = DefaultMaxFacts
	}
	if cfg.MaxProfiles <= 0 {
		cfg.MaxProfiles = defaultMaxProfiles
	}
	if cfg.TTL <= 0 {
		cfg.TTL = defaultTTL
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: cfg.MaxProfiles * 10,
		MaxCost:     cfg.MaxProfiles,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("profile: create cache: %w", err)
	}

	s := &Service{
		store:    cfg.Store,
		cache:    cache,
		maxFacts: cfg.MaxFacts,
		ttl:      cfg.TTL,
		logger:   cfg.Logger,
		now:      cfg.Now,
	}
	if cfg.Bus != nil {
		cfg.Bus.SubscribeAll(func(ev event.Event) {
			switch {
			case ev.UserID != "":
				s.cache.Del(ev.UserID)
			case ev.Type == event.RecordExpired:
				// Retention sweeps are bulk and carry no user.
				s.cache.Clear()
			}
		})
	}
	return s, nil
}

// Get returns the user's profile, served from cache when fresh.
func (s *Service) Get(ctx context.Context, userID string) (*Profile, error) {
	if userID == "" {
		return nil, record.ErrMissingUser
	}
	if v, ok := s.cache.Get(userID); ok {
		if p, ok := v.(*Profile); ok {
			return p, nil
		}
	}

	p, err := s.build(ctx, userID)
	if err != nil {
		return nil, err
	}
	s.cache.SetWithTTL(userID, p, 1, s.ttl)
	return p, nil
}

func (s *Service) build(ctx context.Context, userID string) (*Profile, error) {
	counts, err := s.store.CountByTier(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("profile: count records: %w", err)
	}

	var facts []Fact
	for _, tier := range []record.Tier{record.Tier1, record.Tier2} {
		items, err := s.store.List(ctx, store.ListQuery{
			UserID: userID,
			Tier:   tier,
			Limit:  s.maxFacts,
		})
		if err != nil {
			return nil, fmt.Errorf("profile: list %s records: %w", tier, err)
		}
		for _, r := range items {
			facts = append(facts, Fact{
				RecordID:  r.ID,
				Content:   r.Content,
				Tier:      r.Tier,
				Priority:  r.Priority,
				UpdatedAt: r.UpdatedAt,
			})
		}
	}

	slices.SortFunc(facts, func(a, b Fact) int {
		if ra, rb := a.Tier.Rank(), b.Tier.Rank(); ra != rb {
			return ra - rb
		}
		switch {
		case a.Priority > b.Priority:
			return -1
		case a.Priority < b.Priority:
			return 1
		}
		switch {
		case a.UpdatedAt.After(b.UpdatedAt):
			return -1
		case b.UpdatedAt.After(a.UpdatedAt):
			return 1
		}
		return 0
	})
	if len(facts) > s.maxFacts {
		facts = facts[:s.maxFacts]
	}

	return &Profile{
		UserID:      userID,
		Facts:       facts,
		Counts:      counts,
		GeneratedAt: s.now().UTC(),
	}, nil
}

// Wait drains the cache write buffers so a just-stored profile or a just-
// processed invalidation is visible. Intended for tests.
func (s *Service) Wait() {
	s.cache.Wait()
}

// Close releases the cache.
func (s *Service) Close() {
	s.cache.Close()
}
