package relay

import (
	"context"
	"sync"
)

// Entry is the persisted mailbox content: the encoded record and its timestamp.
type Entry struct {
	Result    string
	Timestamp int64
}

// Store persists the single latest entry. Save replaces the whole entry;
// Load returns the zero Entry when nothing has been written.
type Store interface {
	Save(ctx context.Context, e Entry) error
	Load(ctx context.Context) (Entry, error)
}

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu    sync.RWMutex
	entry Entry
}

// NewMemoryStore creates an empty in-memory mailbox.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Save(_ context.Context, e Entry) error {
	s.mu.Lock()
	s.entry = e
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Load(_ context.Context) (Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.entry, nil
}
