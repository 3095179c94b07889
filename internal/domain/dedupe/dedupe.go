// Package dedupe tracks which departments already have a refresh queued so
// repeated requests collapse into one job.
package dedupe

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Deduper records pending keys.
type Deduper interface {
	// SeenAndRecord atomically checks if id is pending and marks it if not.
	// Returns true if id was already pending.
	SeenAndRecord(ctx context.Context, id string) bool

	// Unrecord clears id, either because its job started or because it
	// could not be enqueued.
	Unrecord(ctx context.Context, id string)

	// Pending lists pending ids with the time they were marked.
	Pending() []Mark

	Size() int64
}

// Mark is one pending id.
type Mark struct {
	ID    string    `json:"id"`
	Since time.Time `json:"since"`
}

type inMemoryDeduper struct {
	mu   sync.Mutex
	seen map[string]time.Time
	now  func() time.Time
}

// NewInMemoryDeduper creates an empty pending set.
func NewInMemoryDeduper(opts ...Option) Deduper {
	d := &inMemoryDeduper{
		seen: make(map[string]time.Time),
		now:  time.Now,
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
	d.seen[id] = d.now()
	return false
}

func (d *inMemoryDeduper) Unrecord(_ context.Context, id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.seen, id)
}

func (d *inMemoryDeduper) Pending() []Mark {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Mark, 0, len(d.seen))
	for id, since := range d.seen {
		out = append(out, Mark{ID: id, Since: since})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (d *inMemoryDeduper) Size() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return int64(len(d.seen))
}
