package kvstore

import (
	"context"
	"errors"
	"sync"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

var errBackendDown = errors.New("backend unavailable")

// flakyBackend wraps a MemoryBackend and fails selected operations.
type flakyBackend struct {
	*MemoryBackend
	mu          sync.Mutex
	failReads   bool
	failDeletes bool
	failWriteAt int // 1-based upsert call that fails; 0 never
	upserts     int
	deletes     int
}

func (f *flakyBackend) ReadDocument(ctx context.Context, collection, id string) (*Document, error) {
	f.mu.Lock()
	fail := f.failReads
	f.mu.Unlock()
	if fail {
		return nil, errBackendDown
	}
	return f.MemoryBackend.ReadDocument(ctx, collection, id)
}

func (f *flakyBackend) UpsertDocument(ctx context.Context, doc *Document) error {
	f.mu.Lock()
	f.upserts++
	fail := f.failWriteAt != 0 && f.upserts == f.failWriteAt
	f.mu.Unlock()
	if fail {
		return errBackendDown
	}
	return f.MemoryBackend.UpsertDocument(ctx, doc)
}

func (f *flakyBackend) DeleteDocument(ctx context.Context, collection, id string) error {
	f.mu.Lock()
	f.deletes++
	fail := f.failDeletes
	f.mu.Unlock()
	if fail {
		return errBackendDown
	}
	return f.MemoryBackend.DeleteDocument(ctx, collection, id)
}
