package service

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"notesync/internal/dto"
	"notesync/internal/entity"
	"notesync/internal/mapper"
	"notesync/internal/pkg/logger"
	"notesync/pkg/remotestore"
)

const defaultNoteTitle = "New Note"

// MutationError marks a failed remote command. The local draft or
// pre-delete state survives it; retry is a user re-action, never automatic.
type MutationError struct {
	Op       string
	EntityId string
	Cause    error
}

func (e *MutationError) Error() string {
	if e.EntityId == "" {
		return fmt.Sprintf("%s failed: %v", e.Op, e.Cause)
	}
	return fmt.Sprintf("%s failed for %s: %v", e.Op, e.EntityId, e.Cause)
}

func (e *MutationError) Unwrap() error {
	return e.Cause
}

// IMutationService translates user intents into remote commands and keeps
// the local active-note selection consistent. It never touches the synced
// snapshots; writes surface back through the subscription.
type IMutationService interface {
	CreateNotebook(ctx context.Context, name string) error
	CreateNote(ctx context.Context, filter dto.FilterState) (*dto.NoteDraft, error)
	SaveNote(ctx context.Context) error
	DeleteNote(ctx context.Context, id string) error

	SelectNote(note entity.Note)
	ClearSelection()
	EditDraft(title, content string)
	ActiveDraft() *dto.NoteDraft
	IsSaving() bool
}

type mutationService struct {
	store   remotestore.Store
	session ISessionService
	log     logger.ILogger

	mu     sync.Mutex
	draft  *dto.NoteDraft
	saving bool
}

func NewMutationService(store remotestore.Store, session ISessionService, log logger.ILogger) IMutationService {
	return &mutationService{
		store:   store,
		session: session,
		log:     log,
	}
}

// CreateNotebook is a silent no-op for a blank name or an absent identity.
func (m *mutationService) CreateNotebook(ctx context.Context, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil
	}
	ident, ok := m.session.Identity()
	if !ok {
		return nil
	}

	path := remotestore.CollectionPath{UserId: ident.UserId, Collection: remotestore.CollectionNotebooks}
	fields := mapper.NotebookCreateFields(name, m.store.ServerTime())
	if _, err := m.store.Create(ctx, path, fields); err != nil {
		m.log.Error("Mutation", "Notebook create failed", map[string]interface{}{"error": err.Error()})
		return &MutationError{Op: "createNotebook", Cause: err}
	}
	return nil
}

// CreateNote creates a note inside the currently filtered notebook
// ("all"/"uncategorized" map to uncategorized) and, on success, immediately
// makes it the active selection with the server-returned id. This is the one
// sanctioned optimistic step: the user can start typing before the
// subscription push arrives.
func (m *mutationService) CreateNote(ctx context.Context, filter dto.FilterState) (*dto.NoteDraft, error) {
	ident, ok := m.session.Identity()
	if !ok {
		return nil, nil
	}

	var notebookId *string
	if filter.SelectedNotebookId != dto.FilterAll && filter.SelectedNotebookId != dto.FilterUncategorized && filter.SelectedNotebookId != "" {
		selected := filter.SelectedNotebookId
		notebookId = &selected
	}

	path := remotestore.CollectionPath{UserId: ident.UserId, Collection: remotestore.CollectionNotes}
	fields := mapper.NoteCreateFields(defaultNoteTitle, "", notebookId, m.store.ServerTime())
	id, err := m.store.Create(ctx, path, fields)
	if err != nil {
		m.log.Error("Mutation", "Note create failed", map[string]interface{}{"error": err.Error()})
		return nil, &MutationError{Op: "createNote", Cause: err}
	}

	draft := &dto.NoteDraft{
		Id:         id,
		Title:      defaultNoteTitle,
		Content:    "",
		NotebookId: notebookId,
	}

	m.mu.Lock()
	m.draft = draft
	m.mu.Unlock()

	copied := *draft
	return &copied, nil
}

// SaveNote pushes the active draft's title and content. No-op without an
// identity or a draft, and while a save for it is already in flight. On
// failure the draft is retained untouched.
func (m *mutationService) SaveNote(ctx context.Context) error {
	ident, ok := m.session.Identity()
	if !ok {
		return nil
	}

	m.mu.Lock()
	if m.draft == nil || m.saving {
		m.mu.Unlock()
		return nil
	}
	m.saving = true
	draft := *m.draft
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.saving = false
		m.mu.Unlock()
	}()

	path := remotestore.DocumentPath{
		CollectionPath: remotestore.CollectionPath{UserId: ident.UserId, Collection: remotestore.CollectionNotes},
		DocumentId:     draft.Id,
	}
	fields := mapper.NoteSaveFields(draft.Title, draft.Content, m.store.ServerTime())
	if err := m.store.Update(ctx, path, fields); err != nil {
		m.log.Error("Mutation", "Note save failed", map[string]interface{}{"note_id": draft.Id, "error": err.Error()})
		return &MutationError{Op: "saveNote", EntityId: draft.Id, Cause: err}
	}
	return nil
}

// DeleteNote issues the delete and clears the active selection iff it was
// the deleted note. Idempotent for the caller: deleting an already-deleted
// id succeeds and the selection is cleared at most once.
func (m *mutationService) DeleteNote(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	ident, ok := m.session.Identity()
	if !ok {
		return nil
	}

	path := remotestore.DocumentPath{
		CollectionPath: remotestore.CollectionPath{UserId: ident.UserId, Collection: remotestore.CollectionNotes},
		DocumentId:     id,
	}
	if err := m.store.Delete(ctx, path); err != nil {
		m.log.Error("Mutation", "Note delete failed", map[string]interface{}{"note_id": id, "error": err.Error()})
		return &MutationError{Op: "deleteNote", EntityId: id, Cause: err}
	}

	m.mu.Lock()
	if m.draft != nil && m.draft.Id == id {
		m.draft = nil
	}
	m.mu.Unlock()
	return nil
}

// SelectNote replaces the active draft with the picked note's synced state.
// An unsaved draft is discarded without confirmation.
func (m *mutationService) SelectNote(note entity.Note) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.draft = &dto.NoteDraft{
		Id:         note.Id,
		Title:      note.Title,
		Content:    note.Content,
		NotebookId: note.NotebookId,
	}
}

func (m *mutationService) ClearSelection() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.draft = nil
}

// EditDraft buffers edits locally; they stay authoritative until saved or
// replaced by selecting a different note.
func (m *mutationService) EditDraft(title, content string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.draft == nil {
		return
	}
	m.draft.Title = title
	m.draft.Content = content
}

func (m *mutationService) ActiveDraft() *dto.NoteDraft {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.draft == nil {
		return nil
	}
	copied := *m.draft
	return &copied
}

func (m *mutationService) IsSaving() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saving
}
