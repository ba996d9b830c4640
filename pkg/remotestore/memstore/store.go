// Package memstore is an in-process remotestore.Store. Documents live in
// memory and every mutation republishes the full collection snapshot through
// a watermill gochannel bus, mirroring the push behavior of the real backend.
package memstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/google/uuid"

	"notesync/pkg/remotestore"
)

type Store struct {
	mu          sync.RWMutex
	collections map[string]map[string]remotestore.Fields
	pubsub      *gochannel.GoChannel
	now         func() time.Time
}

func New() *Store {
	return NewWithClock(time.Now)
}

// NewWithClock injects the server clock, letting tests control resolved
// timestamps.
func NewWithClock(now func() time.Time) *Store {
	return &Store{
		collections: make(map[string]map[string]remotestore.Fields),
		pubsub:      gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{}),
		now:         now,
	}
}

func (s *Store) ServerTime() interface{} {
	return remotestore.ServerTimestamp{}
}

func (s *Store) Subscribe(ctx context.Context, path remotestore.CollectionPath) (remotestore.Subscription, error) {
	subCtx, cancel := context.WithCancel(ctx)
	messages, err := s.pubsub.Subscribe(subCtx, topic(path))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("memstore subscribe %s: %w", path, err)
	}

	events := make(chan remotestore.SnapshotEvent, 1)
	sub := &subscription{events: events, cancel: cancel}

	initial := s.snapshot(path)
	go func() {
		defer close(events)
		select {
		case events <- remotestore.SnapshotEvent{Documents: initial}:
		case <-subCtx.Done():
			return
		}
		for msg := range messages {
			var docs []remotestore.Document
			if err := json.Unmarshal(msg.Payload, &docs); err != nil {
				msg.Nack()
				select {
				case events <- remotestore.SnapshotEvent{Err: err}:
				case <-subCtx.Done():
				}
				return
			}
			msg.Ack()
			select {
			case events <- remotestore.SnapshotEvent{Documents: docs}:
			case <-subCtx.Done():
				return
			}
		}
	}()

	return sub, nil
}

func (s *Store) Create(ctx context.Context, path remotestore.CollectionPath, fields remotestore.Fields) (string, error) {
	id := uuid.NewString()

	s.mu.Lock()
	docs, ok := s.collections[topic(path)]
	if !ok {
		docs = make(map[string]remotestore.Fields)
		s.collections[topic(path)] = docs
	}
	docs[id] = s.resolve(fields)
	s.mu.Unlock()

	s.publish(path)
	return id, nil
}

func (s *Store) Update(ctx context.Context, path remotestore.DocumentPath, fields remotestore.Fields) error {
	s.mu.Lock()
	docs := s.collections[topic(path.CollectionPath)]
	existing, ok := docs[path.DocumentId]
	if !ok {
		s.mu.Unlock()
		return remotestore.ErrNotFound
	}
	for k, v := range s.resolve(fields) {
		existing[k] = v
	}
	s.mu.Unlock()

	s.publish(path.CollectionPath)
	return nil
}

// Delete removes the document if present. Deleting a missing id is success,
// keeping the operation idempotent for callers.
func (s *Store) Delete(ctx context.Context, path remotestore.DocumentPath) error {
	s.mu.Lock()
	docs := s.collections[topic(path.CollectionPath)]
	_, existed := docs[path.DocumentId]
	delete(docs, path.DocumentId)
	s.mu.Unlock()

	if existed {
		s.publish(path.CollectionPath)
	}
	return nil
}

// Close shuts the bus down; open subscriptions see their channels close.
func (s *Store) Close() error {
	return s.pubsub.Close()
}

func (s *Store) resolve(fields remotestore.Fields) remotestore.Fields {
	resolved := make(remotestore.Fields, len(fields))
	stamp := s.now().UTC().Format(time.RFC3339Nano)
	for k, v := range fields {
		if remotestore.IsServerTimestamp(v) {
			resolved[k] = stamp
			continue
		}
		resolved[k] = v
	}
	return resolved
}

func (s *Store) snapshot(path remotestore.CollectionPath) []remotestore.Document {
	s.mu.RLock()
	defer s.mu.RUnlock()

	docs := make([]remotestore.Document, 0, len(s.collections[topic(path)]))
	for id, fields := range s.collections[topic(path)] {
		copied := make(remotestore.Fields, len(fields))
		for k, v := range fields {
			copied[k] = v
		}
		docs = append(docs, remotestore.Document{Id: id, Fields: copied})
	}
	// Deterministic delivery order; consumers re-sort by their comparator.
	sort.Slice(docs, func(i, j int) bool { return docs[i].Id < docs[j].Id })
	return docs
}

func (s *Store) publish(path remotestore.CollectionPath) {
	payload, err := json.Marshal(s.snapshot(path))
	if err != nil {
		return
	}
	_ = s.pubsub.Publish(topic(path), message.NewMessage(watermill.NewUUID(), payload))
}

func topic(path remotestore.CollectionPath) string {
	return path.String()
}

type subscription struct {
	events    chan remotestore.SnapshotEvent
	cancel    context.CancelFunc
	closeOnce sync.Once
}

func (s *subscription) Events() <-chan remotestore.SnapshotEvent {
	return s.events
}

func (s *subscription) Close() error {
	s.closeOnce.Do(s.cancel)
	return nil
}
