// Package dedupe tracks rating period ids between submission and apply.
package dedupe

import (
	"container/list"
	"context"
	"sync"
	"sync/atomic"

	"github.com/okian/periodrank/pkg/metrics"
)

const defaultMaxSize = 10_000

// Deduper records period ids that were accepted but not yet applied, so the
// same log submitted twice is queued at most once.
type Deduper interface {
	// SeenAndRecord reports whether id is already tracked and records it if
	// it was not. Check and record happen under one lock.
	SeenAndRecord(ctx context.Context, id string) bool

	// Unrecord forgets id. Called once the period is applied, or when it
	// could not be queued and may be submitted again.
	Unrecord(ctx context.Context, id string)

	Size() int64
}

// inMemoryDeduper is a bounded id set. When full, the oldest id is evicted.
type inMemoryDeduper struct {
	mu      sync.Mutex
	seen    map[string]*list.Element
	order   *list.List // front is the oldest id
	maxSize int        // 0 or negative means unbounded
	size    atomic.Int64
}

// NewInMemoryDeduper creates a deduper. Default capacity is 10000 ids.
func NewInMemoryDeduper(opts ...Option) Deduper {
	d := &inMemoryDeduper{
		maxSize: defaultMaxSize,
		seen:    make(map[string]*list.Element),
		order:   list.New(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *inMemoryDeduper) SeenAndRecord(_ context.Context, id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.seen[id]; ok {
		return true
	}
	if d.maxSize > 0 && len(d.seen) >= d.maxSize {
		d.evictOldest()
	}
	d.seen[id] = d.order.PushBack(id)
	d.publish()
	return false
}

func (d *inMemoryDeduper) Unrecord(_ context.Context, id string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	el, ok := d.seen[id]
	if !ok {
		return
	}
	d.order.Remove(el)
	delete(d.seen, id)
	d.publish()
}

// evictOldest must be called with d.mu held.
func (d *inMemoryDeduper) evictOldest() {
	front := d.order.Front()
	if front == nil {
		return
	}
	id, _ := d.order.Remove(front).(string)
	delete(d.seen, id)
}

// publish must be called with d.mu held.
func (d *inMemoryDeduper) publish() {
	n := int64(len(d.seen))
	d.size.Store(n)
	metrics.UpdateInFlightPeriods(n)
}

func (d *inMemoryDeduper) Size() int64 {
	return d.size.Load()
}
