// Package cache is a two-tier key/value store: a bounded in-memory map with
// per-entry expiry in front of an optional durable Store.
package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	defaultMaxEntries = 256
	defaultMemoryTTL  = 5 * time.Minute
	defaultDurableTTL = time.Hour
)

// Config configures a Manager. Zero values fall back to defaults; Store is
// optional and nil disables the durable tier.
type Config struct {
	MaxEntries int
	MemoryTTL  time.Duration
	DurableTTL time.Duration
	Store      Store
	Logger     zerolog.Logger
	// OnEvict is called with the evicted key while the cache lock is held;
	// it must be fast and must not call back into the Manager.
	OnEvict func(key string)
}

// SetOptions override per-entry TTLs on Set.
type SetOptions struct {
	TTL        time.Duration
	DurableTTL time.Duration
}

// Stats are running counters. All fields are cumulative since construction.
type Stats struct {
	MemoryHits  int64 `json:"memory_hits"`
	DurableHits int64 `json:"durable_hits"`
	Misses      int64 `json:"misses"`
	Sets        int64 `json:"sets"`
	Evictions   int64 `json:"evictions"`
	Swept       int64 `json:"swept"`
}

type entry struct {
	value     interface{}
	expiresAt time.Time // zero = no expiry
	seq       uint64
}

// Manager implements the two-tier cache. Safe for concurrent use. Capacity
// is never exceeded: an insert that would overflow evicts first.
type Manager struct {
	mu      sync.Mutex
	entries map[string]*entry
	seq     uint64
	stats   Stats

	maxEntries int
	memoryTTL  time.Duration
	durableTTL time.Duration
	store      Store
	logger     zerolog.Logger
	onEvict    func(key string)
}

// New creates a Manager.
func New(cfg Config) *Manager {
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = defaultMaxEntries
	}
	if cfg.MemoryTTL <= 0 {
		cfg.MemoryTTL = defaultMemoryTTL
	}
	if cfg.DurableTTL <= 0 {
		cfg.DurableTTL = defaultDurableTTL
	}
	return &Manager{
		entries:    make(map[string]*entry, cfg.MaxEntries),
		maxEntries: cfg.MaxEntries,
		memoryTTL:  cfg.MemoryTTL,
		durableTTL: cfg.DurableTTL,
		store:      cfg.Store,
		logger:     cfg.Logger.With().Str("component", "cache").Logger(),
		onEvict:    cfg.OnEvict,
	}
}

// Get returns the cached value for key. Memory is checked first; on a miss
// the durable tier (if configured) is read and an unexpired hit is promoted
// back into memory. Durable read errors are logged and treated as a miss.
func (m *Manager) Get(ctx context.Context, key string) (interface{}, bool) {
	now := time.Now()

	m.mu.Lock()
	if e, ok := m.entries[key]; ok {
		if e.expiresAt.IsZero() || now.Before(e.expiresAt) {
			m.stats.MemoryHits++
			value := e.value
			m.mu.Unlock()
			return value, true
		}
		delete(m.entries, key)
	}
	m.mu.Unlock()

	if m.store == nil {
		m.miss()
		return nil, false
	}

	data, expiresAt, ok, err := m.store.Get(ctx, key)
	if err != nil {
		m.logger.Warn().Err(err).Str("key", key).Msg("Durable read failed")
		m.miss()
		return nil, false
	}
	if !ok {
		m.miss()
		return nil, false
	}

	var value interface{}
	if err := json.Unmarshal(data, &value); err != nil {
		m.logger.Warn().Err(err).Str("key", key).Msg("Durable entry is not decodable")
		m.miss()
		return nil, false
	}

	// Promote with the memory TTL, capped at the durable expiry.
	promoteExpiry := now.Add(m.memoryTTL)
	if !expiresAt.IsZero() && expiresAt.Before(promoteExpiry) {
		promoteExpiry = expiresAt
	}
	m.mu.Lock()
	m.insertLocked(key, value, promoteExpiry)
	m.stats.DurableHits++
	m.mu.Unlock()

	return value, true
}

// Set writes key to memory and, when a durable store is configured, mirrors
// it there with its own (longer by default) TTL. Durable write errors are
// logged and otherwise a no-op.
func (m *Manager) Set(ctx context.Context, key string, value interface{}, opts *SetOptions) {
	ttl := m.memoryTTL
	durableTTL := m.durableTTL
	if opts != nil {
		if opts.TTL > 0 {
			ttl = opts.TTL
		}
		if opts.DurableTTL > 0 {
			durableTTL = opts.DurableTTL
		}
	}

	now := time.Now()
	m.mu.Lock()
	m.insertLocked(key, value, now.Add(ttl))
	m.stats.Sets++
	m.mu.Unlock()

	if m.store == nil {
		return
	}
	data, err := json.Marshal(value)
	if err != nil {
		m.logger.Warn().Err(err).Str("key", key).Msg("Value is not durable-encodable")
		return
	}
	if err := m.store.Set(ctx, key, data, now.Add(durableTTL)); err != nil {
		m.logger.Warn().Err(err).Str("key", key).Msg("Durable write failed")
	}
}

// Delete removes key from both tiers.
func (m *Manager) Delete(ctx context.Context, key string) {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()

	if m.store != nil {
		if err := m.store.Delete(ctx, key); err != nil {
			m.logger.Warn().Err(err).Str("key", key).Msg("Durable delete failed")
		}
	}
}

// Sweep removes memory entries past expiry regardless of access and returns
// how many were removed. Intended to run periodically.
func (m *Manager) Sweep() int {
	now := time.Now()
	removed := 0

	m.mu.Lock()
	for key, e := range m.entries {
		if !e.expiresAt.IsZero() && now.After(e.expiresAt) {
			delete(m.entries, key)
			removed++
		}
	}
	m.stats.Swept += int64(removed)
	m.mu.Unlock()

	if removed > 0 {
		m.logger.Debug().Int("removed", removed).Msg("Swept expired entries")
	}
	return removed
}

// Len returns the number of entries in the memory tier.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Stats returns a snapshot of the running counters.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

// Close releases the durable store, if any.
func (m *Manager) Close() error {
	if m.store != nil {
		return m.store.Close()
	}
	return nil
}

// insertLocked places an entry, evicting first when the tier is full. The
// victim is the entry with the nearest expiry; if no entry carries one, the
// oldest-inserted entry goes. Callers hold the lock.
func (m *Manager) insertLocked(key string, value interface{}, expiresAt time.Time) {
	if _, exists := m.entries[key]; !exists && len(m.entries) >= m.maxEntries {
		m.evictLocked()
	}
	m.seq++
	m.entries[key] = &entry{value: value, expiresAt: expiresAt, seq: m.seq}
}

func (m *Manager) evictLocked() {
	var victim string
	var victimExpiry time.Time
	var victimSeq uint64
	haveExpiring := false

	for key, e := range m.entries {
		if !e.expiresAt.IsZero() {
			if !haveExpiring || e.expiresAt.Before(victimExpiry) {
				victim, victimExpiry, haveExpiring = key, e.expiresAt, true
			}
			continue
		}
		if !haveExpiring && (victim == "" || e.seq < victimSeq) {
			victim, victimSeq = key, e.seq
		}
	}

	if victim != "" {
		delete(m.entries, victim)
		m.stats.Evictions++
		if m.onEvict != nil {
			m.onEvict(victim)
		}
		m.logger.Debug().Str("key", victim).Msg("Evicted entry")
	}
}

func (m *Manager) miss() {
	m.mu.Lock()
	m.stats.Misses++
	m.mu.Unlock()
}
