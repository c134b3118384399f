package store

import (
	"context"
	"path"
	"sync"
	"time"
)

// Memory is an in-process KV used by unit tests and local development
// without Redis. Expiry is checked lazily on access.
type Memory struct {
	mu      sync.RWMutex
	strings map[string]memEntry
	sets    map[string]*memSet
}

type memEntry struct {
	value     string
	expiresAt time.Time // zero means no expiry
}

type memSet struct {
	members   map[string]struct{}
	expiresAt time.Time
}

func NewMemory() *Memory {
	return &Memory{
		strings: make(map[string]memEntry),
		sets:    make(map[string]*memSet),
	}
}

func expired(at time.Time) bool {
	return !at.IsZero() && time.Now().After(at)
}

func (m *Memory) Get(ctx context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.strings[key]
	if !ok {
		return "", false, nil
	}
	if expired(e.expiresAt) {
		delete(m.strings, key)
		return "", false, nil
	}
	return e.value, true, nil
}

func (m *Memory) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := memEntry{value: value}
	if ttl > 0 {
		e.expiresAt = time.Now().Add(ttl)
	}
	m.strings[key] = e
	return nil
}

func (m *Memory) Del(ctx context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, key := range keys {
		delete(m.strings, key)
		delete(m.sets, key)
	}
	return nil
}

func (m *Memory) Expire(ctx context.Context, key string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e, ok := m.strings[key]; ok && !expired(e.expiresAt) {
		e.expiresAt = time.Now().Add(ttl)
		m.strings[key] = e
	}
	if s, ok := m.sets[key]; ok && !expired(s.expiresAt) {
		s.expiresAt = time.Now().Add(ttl)
	}
	return nil
}

// set returns the live set at key, dropping it first if expired.
func (m *Memory) set(key string) (*memSet, bool) {
	s, ok := m.sets[key]
	if !ok {
		return nil, false
	}
	if expired(s.expiresAt) {
		delete(m.sets, key)
		return nil, false
	}
	return s, true
}

func (m *Memory) SAdd(ctx context.Context, key string, members ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.set(key)
	if !ok {
		s = &memSet{members: make(map[string]struct{})}
		m.sets[key] = s
	}
	for _, member := range members {
		s.members[member] = struct{}{}
	}
	return nil
}

func (m *Memory) SRem(ctx context.Context, key string, members ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.set(key)
	if !ok {
		return nil
	}
	for _, member := range members {
		delete(s.members, member)
	}
	if len(s.members) == 0 {
		delete(m.sets, key)
	}
	return nil
}

func (m *Memory) SMembers(ctx context.Context, key string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.set(key)
	if !ok {
		return []string{}, nil
	}
	members := make([]string, 0, len(s.members))
	for member := range s.members {
		members = append(members, member)
	}
	return members, nil
}

func (m *Memory) SCard(ctx context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.set(key)
	if !ok {
		return 0, nil
	}
	return int64(len(s.members)), nil
}

func (m *Memory) SIsMember(ctx context.Context, key, member string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.set(key)
	if !ok {
		return false, nil
	}
	_, found := s.members[member]
	return found, nil
}

func (m *Memory) Keys(ctx context.Context, pattern string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var keys []string
	for key, e := range m.strings {
		if expired(e.expiresAt) {
			continue
		}
		if ok, _ := path.Match(pattern, key); ok {
			keys = append(keys, key)
		}
	}
	for key, s := range m.sets {
		if expired(s.expiresAt) {
			continue
		}
		if ok, _ := path.Match(pattern, key); ok {
			keys = append(keys, key)
		}
	}
	return keys, nil
}
