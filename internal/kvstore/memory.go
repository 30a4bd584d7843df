package kvstore

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// MemoryBackend keeps documents in process memory.
//
// Documents are stored encoded, so callers never share maps with the store.
// The native TTL hint is honored the way Cosmos DB honors it: an expired
// document is hidden from reads at once and physically removed by a
// background sweep.
type MemoryBackend struct {
	mu              sync.RWMutex
	partitions      map[string]map[string]memoryItem
	cleanupInterval time.Duration
	now             func() time.Time
	logger          *slog.Logger
	stop            chan struct{}
	stopOnce        sync.Once
}

type memoryItem struct {
	data      []byte
	expiresAt time.Time // zero when the document carries no TTL hint
}

// MemoryOption configures a MemoryBackend.
type MemoryOption func(*MemoryBackend)

// WithCleanupInterval sets how often hinted-expired documents are swept.
// Zero disables the sweep.
func WithCleanupInterval(d time.Duration) MemoryOption {
	return func(m *MemoryBackend) {
		m.cleanupInterval = d
	}
}

// WithMemoryClock replaces time.Now for TTL hint evaluation.
func WithMemoryClock(now func() time.Time) MemoryOption {
	return func(m *MemoryBackend) {
		if now != nil {
			m.now = now
		}
	}
}

// NewMemoryBackend creates an in-memory backend with a one minute sweep.
// Call Close to stop the sweep goroutine.
func NewMemoryBackend(opts ...MemoryOption) *MemoryBackend {
	m := &MemoryBackend{
		partitions:      make(map[string]map[string]memoryItem),
		cleanupInterval: time.Minute,
		now:             time.Now,
		logger:          slog.Default(),
		stop:            make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.cleanupInterval > 0 {
		go m.cleanupExpired()
	}
	return m
}

// Kind implements Backend.
func (m *MemoryBackend) Kind() string {
	return "memory"
}

// ReadDocument implements Backend.
func (m *MemoryBackend) ReadDocument(ctx context.Context, collection, id string) (*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	item, ok := m.partitions[collection][id]
	m.mu.RUnlock()

	if !ok || item.hintExpired(m.now()) {
		return nil, ErrNotFound
	}
	return UnmarshalDocument(item.data)
}

// UpsertDocument implements Backend.
func (m *MemoryBackend) UpsertDocument(ctx context.Context, doc *Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if doc.Collection == "" {
		return fmt.Errorf("document %q has no partition key", doc.ID)
	}

	data, err := MarshalDocument(doc)
	if err != nil {
		return err
	}
	item := memoryItem{data: data}
	if doc.TTL != nil {
		item.expiresAt = m.now().Add(time.Duration(*doc.TTL) * time.Second)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	partition, ok := m.partitions[doc.Collection]
	if !ok {
		partition = make(map[string]memoryItem)
		m.partitions[doc.Collection] = partition
	}
	partition[doc.ID] = item
	return nil
}

// DeleteDocument implements Backend.
func (m *MemoryBackend) DeleteDocument(ctx context.Context, collection, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.partitions[collection][id]
	if !ok || item.hintExpired(m.now()) {
		delete(m.partitions[collection], id)
		return ErrNotFound
	}
	delete(m.partitions[collection], id)
	return nil
}

// Len returns the number of documents physically held, including
// hinted-expired ones that have not been swept yet.
func (m *MemoryBackend) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, partition := range m.partitions {
		n += len(partition)
	}
	return n
}

// Close stops the background sweep.
func (m *MemoryBackend) Close() error {
	m.stopOnce.Do(func() { close(m.stop) })
	return nil
}

// Sweep removes every document whose TTL hint has elapsed and returns the count.
func (m *MemoryBackend) Sweep() int {
	now := m.now()

	// Collect under the read lock first; most sweeps find nothing.
	m.mu.RLock()
	var expired [][2]string
	for collection, partition := range m.partitions {
		for id, item := range partition {
			if item.hintExpired(now) {
				expired = append(expired, [2]string{collection, id})
			}
		}
	}
	m.mu.RUnlock()

	if len(expired) == 0 {
		return 0
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for _, ref := range expired {
		// Re-check: the document may have been rewritten since the scan.
		if item, ok := m.partitions[ref[0]][ref[1]]; ok && item.hintExpired(now) {
			delete(m.partitions[ref[0]], ref[1])
			removed++
		}
	}
	return removed
}

func (m *MemoryBackend) cleanupExpired() {
	ticker := time.NewTicker(m.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			if n := m.Sweep(); n > 0 {
				m.logger.Debug("swept expired documents", "component", "kvstore", "count", n)
			}
		}
	}
}

func (i memoryItem) hintExpired(now time.Time) bool {
	return !i.expiresAt.IsZero() && !now.Before(i.expiresAt)
}
