// Package mapper converts between remote store documents and domain
// entities. Field decoding is tolerant: wrong-typed or missing fields fall
// back to zero values rather than failing a whole snapshot.
package mapper

import (
	"time"

	"notesync/internal/entity"
	"notesync/pkg/remotestore"
)

const (
	fieldName       = "name"
	fieldTitle      = "title"
	fieldContent    = "content"
	fieldNotebookId = "notebookId"
	fieldCreatedAt  = "createdAt"
	fieldUpdatedAt  = "updatedAt"
)

func NotebookFromDocument(doc remotestore.Document) (entity.Notebook, error) {
	return entity.Notebook{
		Id:        doc.Id,
		Name:      stringField(doc.Fields, fieldName),
		CreatedAt: timeField(doc.Fields, fieldCreatedAt),
	}, nil
}

func NoteFromDocument(doc remotestore.Document) (entity.Note, error) {
	return entity.Note{
		Id:         doc.Id,
		Title:      stringField(doc.Fields, fieldTitle),
		Content:    stringField(doc.Fields, fieldContent),
		NotebookId: stringPtrField(doc.Fields, fieldNotebookId),
		CreatedAt:  timeField(doc.Fields, fieldCreatedAt),
		UpdatedAt:  timePtrField(doc.Fields, fieldUpdatedAt),
	}, nil
}

// NotebookCreateFields builds the write payload for a new notebook.
func NotebookCreateFields(name string, serverTime interface{}) remotestore.Fields {
	return remotestore.Fields{
		fieldName:      name,
		fieldCreatedAt: serverTime,
	}
}

// NoteCreateFields builds the write payload for a new note.
func NoteCreateFields(title, content string, notebookId *string, serverTime interface{}) remotestore.Fields {
	fields := remotestore.Fields{
		fieldTitle:     title,
		fieldContent:   content,
		fieldCreatedAt: serverTime,
		fieldUpdatedAt: serverTime,
	}
	if notebookId != nil {
		fields[fieldNotebookId] = *notebookId
	}
	return fields
}

// NoteSaveFields builds the partial update payload of an explicit save.
func NoteSaveFields(title, content string, serverTime interface{}) remotestore.Fields {
	return remotestore.Fields{
		fieldTitle:     title,
		fieldContent:   content,
		fieldUpdatedAt: serverTime,
	}
}

func stringField(fields remotestore.Fields, key string) string {
	s, _ := fields[key].(string)
	return s
}

func stringPtrField(fields remotestore.Fields, key string) *string {
	if s, ok := fields[key].(string); ok && s != "" {
		return &s
	}
	return nil
}

func timeField(fields remotestore.Fields, key string) time.Time {
	if s, ok := fields[key].(string); ok {
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

func timePtrField(fields remotestore.Fields, key string) *time.Time {
	if s, ok := fields[key].(string); ok {
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			return &t
		}
	}
	return nil
}
