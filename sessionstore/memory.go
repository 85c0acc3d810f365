package sessionstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bitrise-io/go-resumable-upload/upload"
)

type memoryEntry struct {
	session   upload.UploadSession
	expiresAt time.Time
}

// Memory is an in-process Store.
type Memory struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemory ...
func NewMemory() *Memory {
	return &Memory{
		entries: map[string]memoryEntry{},
		now:     time.Now,
	}
}

// Save ...
func (m *Memory) Save(_ context.Context, key string, session *upload.UploadSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if TTL(session, now) <= 0 {
		delete(m.entries, key)
		return fmt.Errorf("save %s: %w", key, upload.ErrSessionExpired)
	}

	cp := *session
	cp.NextExpectedRanges = append([]string(nil), session.NextExpectedRanges...)
	m.entries[key] = memoryEntry{session: cp, expiresAt: session.ExpirationDateTime}
	return nil
}

// Load ...
func (m *Memory) Load(_ context.Context, key string) (*upload.UploadSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[key]
	if !ok {
		return nil, ErrNotFound
	}
	if !entry.expiresAt.After(m.now()) {
		delete(m.entries, key)
		return nil, ErrNotFound
	}

	cp := entry.session
	cp.NextExpectedRanges = append([]string(nil), entry.session.NextExpectedRanges...)
	return &cp, nil
}

// Delete ...
func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}
