// Package remotestore defines the narrow collection/document contract the
// sync engine talks to: per-user collections of schemaless documents with
// create/update/delete commands and full-snapshot subscriptions.
package remotestore

import (
	"context"
	"errors"
	"fmt"
)

// Fields is the schemaless payload of a document.
type Fields map[string]interface{}

// Document is a stored record decorated with its server-assigned id.
type Document struct {
	Id     string `json:"id"`
	Fields Fields `json:"fields"`
}

// CollectionPath scopes a collection to an owning user,
// logically /users/{userId}/{collection}.
type CollectionPath struct {
	UserId     string
	Collection string
}

func (p CollectionPath) String() string {
	return fmt.Sprintf("/users/%s/%s", p.UserId, p.Collection)
}

// DocumentPath addresses a single document inside a collection.
type DocumentPath struct {
	CollectionPath
	DocumentId string
}

func (p DocumentPath) String() string {
	return fmt.Sprintf("%s/%s", p.CollectionPath.String(), p.DocumentId)
}

// SnapshotEvent carries either a full document set or a subscription failure.
// Err is terminal for the subscription that delivered it.
type SnapshotEvent struct {
	Documents []Document
	Err       error
}

// Subscription is a live feed of snapshots for one collection.
type Subscription interface {
	// Events delivers snapshots in push order. The channel is closed after
	// Close or after a terminal error event.
	Events() <-chan SnapshotEvent

	// Close releases the subscription. Idempotent.
	Close() error
}

// Store is the remote persistent store. Writes never mutate local state
// directly; they surface back through Subscribe.
type Store interface {
	Subscribe(ctx context.Context, path CollectionPath) (Subscription, error)
	Create(ctx context.Context, path CollectionPath, fields Fields) (string, error)
	Update(ctx context.Context, path DocumentPath, fields Fields) error
	Delete(ctx context.Context, path DocumentPath) error

	// ServerTime returns an opaque marker resolved to the server clock at
	// write time. Clients never fabricate createdAt/updatedAt values.
	ServerTime() interface{}
}

// ServerTimestamp is the wire marker produced by Store.ServerTime.
type ServerTimestamp struct{}

func (ServerTimestamp) MarshalJSON() ([]byte, error) {
	return []byte(`{"$serverTime":true}`), nil
}

// IsServerTimestamp reports whether a decoded field value is the marker,
// either as the typed value or as its JSON object form.
func IsServerTimestamp(v interface{}) bool {
	if _, ok := v.(ServerTimestamp); ok {
		return true
	}
	if m, ok := v.(map[string]interface{}); ok {
		flag, ok := m["$serverTime"].(bool)
		return ok && flag
	}
	return false
}

var (
	// ErrNotFound is returned for updates addressing a missing document.
	// Deletes of a missing document succeed; see Store.Delete callers.
	ErrNotFound = errors.New("remotestore: document not found")

	// ErrClosed is returned when the store connection is gone.
	ErrClosed = errors.New("remotestore: store closed")
)

// Collection names used by the sync engine.
const (
	CollectionNotebooks = "notebooks"
	CollectionNotes     = "notes"
)
