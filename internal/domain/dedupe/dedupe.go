// Package dedupe tracks recently seen event ids so that redelivered events can
// be recognised.
package dedupe

import (
	"context"
	"sync"
)

const defaultMaxSize = 100_000

// Deduper records seen event ids.
type Deduper interface {
	// SeenAndRecord reports whether id was already recorded and records it if not.
	SeenAndRecord(ctx context.Context, id string) bool
	// Unrecord forgets id so that a later delivery is treated as new.
	Unrecord(ctx context.Context, id string)
	Size() int64
}

// inMemoryDeduper keeps the most recent maxSize ids; the oldest id is evicted
// first once the ring is full.
type inMemoryDeduper struct {
	mu      sync.Mutex
	seen    map[string]int // id -> slot in ring
	ring    []string
	next    int
	maxSize int
}

// NewInMemoryDeduper creates a bounded in-memory deduper.
func NewInMemoryDeduper(opts ...Option) Deduper {
	d := &inMemoryDeduper{maxSize: defaultMaxSize}
	for _, opt := range opts {
		opt(d)
	}
	if d.maxSize <= 0 {
		d.maxSize = defaultMaxSize
	}
	d.seen = make(map[string]int, d.maxSize)
	d.ring = make([]string, d.maxSize)
	return d
}

func (d *inMemoryDeduper) SeenAndRecord(_ context.Context, id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.seen[id]; ok {
		return true
	}
	if old := d.ring[d.next]; old != "" {
		delete(d.seen, old)
	}
	d.ring[d.next] = id
	d.seen[id] = d.next
	d.next = (d.next + 1) % d.maxSize
	return false
}

func (d *inMemoryDeduper) Unrecord(_ context.Context, id string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	slot, ok := d.seen[id]
	if !ok {
		return
	}
	delete(d.seen, id)
	d.ring[slot] = ""
}

func (d *inMemoryDeduper) Size() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return int64(len(d.seen))
}
