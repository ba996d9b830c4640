package service

import (
	"context"
	"sync"

	"notesync/pkg/remotestore"
)

// recordingStore wraps a real store, counts every command, and can be told
// to fail specific operations.
type recordingStore struct {
	inner remotestore.Store

	mu        sync.Mutex
	creates   int
	updates   int
	deletes   int
	createErr error
	updateErr error
	deleteErr error
	subErr    error
}

func newRecordingStore(inner remotestore.Store) *recordingStore {
	return &recordingStore{inner: inner}
}

func (r *recordingStore) Subscribe(ctx context.Context, path remotestore.CollectionPath) (remotestore.Subscription, error) {
	r.mu.Lock()
	err := r.subErr
	r.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return r.inner.Subscribe(ctx, path)
}

func (r *recordingStore) Create(ctx context.Context, path remotestore.CollectionPath, fields remotestore.Fields) (string, error) {
	r.mu.Lock()
	r.creates++
	err := r.createErr
	r.mu.Unlock()
	if err != nil {
		return "", err
	}
	return r.inner.Create(ctx, path, fields)
}

func (r *recordingStore) Update(ctx context.Context, path remotestore.DocumentPath, fields remotestore.Fields) error {
	r.mu.Lock()
	r.updates++
	err := r.updateErr
	r.mu.Unlock()
	if err != nil {
		return err
	}
	return r.inner.Update(ctx, path, fields)
}

func (r *recordingStore) Delete(ctx context.Context, path remotestore.DocumentPath) error {
	r.mu.Lock()
	r.deletes++
	err := r.deleteErr
	r.mu.Unlock()
	if err != nil {
		return err
	}
	return r.inner.Delete(ctx, path)
}

func (r *recordingStore) ServerTime() interface{} {
	return r.inner.ServerTime()
}

func (r *recordingStore) callCounts() (creates, updates, deletes int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.creates, r.updates, r.deletes
}

func (r *recordingStore) failCreates(err error)    { r.mu.Lock(); r.createErr = err; r.mu.Unlock() }
func (r *recordingStore) failUpdates(err error)    { r.mu.Lock(); r.updateErr = err; r.mu.Unlock() }
func (r *recordingStore) failDeletes(err error)    { r.mu.Lock(); r.deleteErr = err; r.mu.Unlock() }
func (r *recordingStore) failSubscribes(err error) { r.mu.Lock(); r.subErr = err; r.mu.Unlock() }
