// Package replycache holds short-lived NLP replies keyed by user and
// language, so repeated balance checks within the TTL do not trigger a new
// model call.
package replycache

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Cache stores generated replies with a time-to-live. Implementations must
// be safe for concurrent use; the lock must not be held across network calls.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool)
	Set(ctx context.Context, key string, reply string, ttl time.Duration)
}

// Key builds the cache key for a user and language.
func Key(telegramID int64, language string) string {
	return fmt.Sprintf("nlp:%d:%s", telegramID, language)
}

type entry struct {
	reply     string
	expiresAt time.Time
}

// Memory is the default in-process cache. Entries expire lazily: an expired
// entry is dropped on the read that finds it, never by a background sweep.
type Memory struct {
	mu      sync.Mutex
	entries map[string]entry
	now     func() time.Time
}

// NewMemory creates an in-memory reply cache.
func NewMemory() *Memory {
	return &Memory{
		entries: make(map[string]entry),
		now:     time.Now,
	}
}

// Get returns the cached reply if present and unexpired.
func (m *Memory) Get(ctx context.Context, key string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		return "", false
	}
	if !m.now().Before(e.expiresAt) {
		delete(m.entries, key)
		return "", false
	}
	return e.reply, true
}

// Set stores a reply. Concurrent writers for the same key are last-write-wins.
func (m *Memory) Set(ctx context.Context, key string, reply string, ttl time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[key] = entry{
		reply:     reply,
		expiresAt: m.now().Add(ttl),
	}
}
