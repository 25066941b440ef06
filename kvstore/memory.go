// Package kvstore provides the durable key-value implementations backing the
// auth core: a bun-on-sqlite store for single-node deployments and a
// mutex-guarded in-memory store for tests and embedded use.
package kvstore

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-gate"
)

type memEntry struct {
	value     string
	expiresAt time.Time // zero means no expiry
}

// Memory is an in-memory gate.KV. All operations are atomic under a single
// mutex, which also makes SetNX and Incr honest compare-and-swap primitives.
type Memory struct {
	mu      sync.Mutex
	entries map[string]memEntry
	sets    map[string]map[string]struct{}
	now     func() time.Time
}

var _ gate.KV = (*Memory)(nil)

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		entries: map[string]memEntry{},
		sets:    map[string]map[string]struct{}{},
		now:     time.Now,
	}
}

// WithNow replaces the clock, for tests.
func (m *Memory) WithNow(now func() time.Time) *Memory {
	if now != nil {
		m.now = now
	}
	return m
}

func (m *Memory) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.live(key)
	if !ok {
		return "", false, nil
	}
	return entry.value, true, nil
}

func (m *Memory) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[key] = memEntry{value: value}
	return nil
}

func (m *Memory) SetTTL(_ context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[key] = memEntry{value: value, expiresAt: m.now().Add(ttl)}
	return nil
}

func (m *Memory) SetNX(_ context.Context, key, value string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.live(key); ok {
		return false, nil
	}

	entry := memEntry{value: value}
	if ttl > 0 {
		entry.expiresAt = m.now().Add(ttl)
	}
	m.entries[key] = entry
	return true, nil
}

func (m *Memory) Incr(_ context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var current int64
	if entry, ok := m.live(key); ok {
		parsed, err := strconv.ParseInt(entry.value, 10, 64)
		if err != nil {
			return 0, errors.New("value at key is not an integer", errors.CategoryBadInput)
		}
		current = parsed
	}

	current++
	existing := m.entries[key]
	existing.value = strconv.FormatInt(current, 10)
	m.entries[key] = existing
	return current, nil
}

func (m *Memory) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, key := range keys {
		delete(m.entries, key)
	}
	return nil
}

func (m *Memory) Exists(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.live(key)
	return ok, nil
}

func (m *Memory) Expire(_ context.Context, key string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.live(key)
	if !ok {
		return nil
	}
	entry.expiresAt = m.now().Add(ttl)
	m.entries[key] = entry
	return nil
}

func (m *Memory) SAdd(_ context.Context, set, member string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	members, ok := m.sets[set]
	if !ok {
		members = map[string]struct{}{}
		m.sets[set] = members
	}
	members[member] = struct{}{}
	return nil
}

func (m *Memory) SRem(_ context.Context, set, member string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if members, ok := m.sets[set]; ok {
		delete(members, member)
		if len(members) == 0 {
			delete(m.sets, set)
		}
	}
	return nil
}

func (m *Memory) SMembers(_ context.Context, set string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	members := make([]string, 0, len(m.sets[set]))
	for member := range m.sets[set] {
		members = append(members, member)
	}
	sort.Strings(members)
	return members, nil
}

// live returns the entry at key, dropping it when expired. Callers hold mu.
func (m *Memory) live(key string) (memEntry, bool) {
	entry, ok := m.entries[key]
	if !ok {
		return memEntry{}, false
	}
	if !entry.expiresAt.IsZero() && !m.now().Before(entry.expiresAt) {
		delete(m.entries, key)
		return memEntry{}, false
	}
	return entry, true
}
