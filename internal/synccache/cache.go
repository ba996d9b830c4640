// Package synccache maintains a local ordered snapshot of a server-pushed
// collection. Every push replaces the whole in-memory sequence; there is no
// incremental patching. Writes never go through the cache.
package synccache

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"notesync/internal/pkg/logger"
	"notesync/pkg/remotestore"
)

// SyncError marks a subscription failure. It is sticky: the cache stops
// updating until it is reopened.
type SyncError struct {
	Collection string
	Cause      error
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("sync failed for collection %q: %v", e.Collection, e.Cause)
}

func (e *SyncError) Unwrap() error {
	return e.Cause
}

// Decoder converts a raw document into the cached entity type.
type Decoder[T any] func(remotestore.Document) (T, error)

type Cache[T any] struct {
	collection string
	sub        remotestore.Subscription
	log        logger.ILogger

	mu       sync.RWMutex
	snapshot []T
	err      *SyncError

	revision int64
	updates  chan struct{}
	done     chan struct{}
	close    sync.Once
}

// Open establishes the live subscription and starts applying pushes in
// delivery order. decode failures skip the document; less fixes the
// presentation order of every snapshot.
func Open[T any](ctx context.Context, store remotestore.Store, path remotestore.CollectionPath, decode Decoder[T], less func(a, b T) bool, log logger.ILogger) (*Cache[T], error) {
	sub, err := store.Subscribe(ctx, path)
	if err != nil {
		return nil, &SyncError{Collection: path.Collection, Cause: err}
	}

	c := &Cache[T]{
		collection: path.Collection,
		sub:        sub,
		log:        log,
		updates:    make(chan struct{}, 1),
		done:       make(chan struct{}),
	}
	go c.run(decode, less)
	return c, nil
}

func (c *Cache[T]) run(decode Decoder[T], less func(a, b T) bool) {
	defer close(c.done)

	for ev := range c.sub.Events() {
		if ev.Err != nil {
			c.mu.Lock()
			c.err = &SyncError{Collection: c.collection, Cause: ev.Err}
			c.mu.Unlock()
			c.log.Error("SyncCache", "Subscription failed", map[string]interface{}{
				"collection": c.collection,
				"error":      ev.Err.Error(),
			})
			c.signal()
			return
		}

		next := make([]T, 0, len(ev.Documents))
		for _, doc := range ev.Documents {
			item, err := decode(doc)
			if err != nil {
				c.log.Warn("SyncCache", "Skipping undecodable document", map[string]interface{}{
					"collection": c.collection,
					"id":         doc.Id,
					"error":      err.Error(),
				})
				continue
			}
			next = append(next, item)
		}
		sort.SliceStable(next, func(i, j int) bool { return less(next[i], next[j]) })

		c.mu.Lock()
		c.snapshot = next
		c.mu.Unlock()
		atomic.AddInt64(&c.revision, 1)
		c.signal()
	}
}

// Snapshot returns a copy of the current ordered sequence.
func (c *Cache[T]) Snapshot() []T {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]T, len(c.snapshot))
	copy(out, c.snapshot)
	return out
}

// Err reports the sticky sync error, if any.
func (c *Cache[T]) Err() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.err == nil {
		return nil
	}
	return c.err
}

// Revision increments on every applied push; derivations memoize on it.
func (c *Cache[T]) Revision() int64 {
	return atomic.LoadInt64(&c.revision)
}

// Updates signals after each applied push or failure. Coalescing channel:
// consumers re-read Snapshot, so only the latest signal matters.
func (c *Cache[T]) Updates() <-chan struct{} {
	return c.updates
}

// Collection names the synced collection, mostly for error surfaces.
func (c *Cache[T]) Collection() string {
	return c.collection
}

// Close releases the subscription. Idempotent; no further pushes are
// delivered afterwards. Watchers blocked on Updates are signaled once so
// they can observe the closure and re-resolve their cache.
func (c *Cache[T]) Close() {
	c.close.Do(func() {
		_ = c.sub.Close()
		c.signal()
	})
}

func (c *Cache[T]) signal() {
	select {
	case c.updates <- struct{}{}:
	default:
	}
}
