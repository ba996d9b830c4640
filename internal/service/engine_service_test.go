package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notesync/internal/dto"
	"notesync/internal/entity"
	"notesync/internal/identity"
	"notesync/internal/pkg/logger"
	"notesync/pkg/remotestore"
	"notesync/pkg/remotestore/memstore"
)

func newEngineFixture(t *testing.T, store *memstore.Store) (IEngineService, context.CancelFunc) {
	t.Helper()
	log := logger.NewNopLogger()
	session := NewSessionService(store, identity.NewStatic(entity.Identity{UserId: "user-1"}), log)
	mutation := NewMutationService(store, session, log)
	engine := NewEngineService(session, NewViewService(), mutation, log)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, engine.Run(ctx))
	t.Cleanup(func() {
		cancel()
		engine.Close()
	})
	return engine, cancel
}

// awaitState drains view states until one satisfies pred.
func awaitState(t *testing.T, engine IEngineService, msg string, pred func(dto.ViewState) bool) dto.ViewState {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case state := <-engine.States():
			if pred(state) {
				return state
			}
		case <-deadline:
			t.Fatalf("timed out waiting for view state: %s", msg)
			return dto.ViewState{}
		}
	}
}

func TestEngineEmitsInitialState(t *testing.T) {
	engine, _ := newEngineFixture(t, memstore.New())

	state := awaitState(t, engine, "initial state", func(s dto.ViewState) bool {
		return s.UserId == "user-1"
	})

	assert.Empty(t, state.Notebooks)
	assert.Empty(t, state.Notes)
	assert.Equal(t, dto.FilterAll, state.Filter.SelectedNotebookId)
	assert.Nil(t, state.Draft)
	assert.NoError(t, state.Err)
}

func TestEngineNotebookAndNoteFlow(t *testing.T) {
	engine, _ := newEngineFixture(t, memstore.New())
	ctx := context.Background()

	require.NoError(t, engine.AddNotebook(ctx, "Ideas"))
	awaitState(t, engine, "notebook synced", func(s dto.ViewState) bool {
		return len(s.Notebooks) == 1 && s.Notebooks[0].Name == "Ideas"
	})

	require.NoError(t, engine.AddNote(ctx))
	state := awaitState(t, engine, "note synced and selected", func(s dto.ViewState) bool {
		return len(s.Notes) == 1 && s.Draft != nil
	})
	assert.Equal(t, "New Note", state.Notes[0].Title)
	assert.Equal(t, state.Notes[0].Id, state.Draft.Id)

	engine.EditDraft("Grocery list", "milk, eggs, coffee")
	require.NoError(t, engine.SaveActiveNote(ctx))
	awaitState(t, engine, "saved title synced", func(s dto.ViewState) bool {
		return len(s.Notes) == 1 && s.Notes[0].Title == "Grocery list"
	})
}

func TestEngineSearchNarrowsVisibleNotes(t *testing.T) {
	engine, _ := newEngineFixture(t, memstore.New())
	ctx := context.Background()

	require.NoError(t, engine.AddNote(ctx))
	engine.EditDraft("Grocery list", "milk, eggs, coffee")
	require.NoError(t, engine.SaveActiveNote(ctx))
	awaitState(t, engine, "note saved", func(s dto.ViewState) bool {
		return len(s.Notes) == 1 && s.Notes[0].Title == "Grocery list"
	})

	engine.SetSearchTerm("zebra")
	awaitState(t, engine, "search excludes all", func(s dto.ViewState) bool {
		return s.Filter.SearchTerm == "zebra" && len(s.Notes) == 0
	})

	engine.SetSearchTerm("coffee")
	awaitState(t, engine, "search matches content", func(s dto.ViewState) bool {
		return s.Filter.SearchTerm == "coffee" && len(s.Notes) == 1
	})
}

func TestEngineSelectNotebookResetsSelectionKeepsSearch(t *testing.T) {
	engine, _ := newEngineFixture(t, memstore.New())
	ctx := context.Background()

	require.NoError(t, engine.AddNote(ctx))
	awaitState(t, engine, "note selected", func(s dto.ViewState) bool {
		return s.Draft != nil
	})

	engine.SetSearchTerm("new")
	engine.SelectNotebook(dto.FilterUncategorized)

	state := awaitState(t, engine, "selection reset", func(s dto.ViewState) bool {
		return s.Filter.SelectedNotebookId == dto.FilterUncategorized && s.Draft == nil
	})
	assert.Equal(t, "new", state.Filter.SearchTerm)
}

func TestEngineNotesOrderedByRecency(t *testing.T) {
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := memstore.NewWithClock(func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	})
	engine, _ := newEngineFixture(t, store)
	ctx := context.Background()

	require.NoError(t, engine.AddNote(ctx))
	engine.EditDraft("first", "")
	require.NoError(t, engine.SaveActiveNote(ctx))
	awaitState(t, engine, "first note saved", func(s dto.ViewState) bool {
		return len(s.Notes) == 1 && s.Notes[0].Title == "first"
	})

	require.NoError(t, engine.AddNote(ctx))
	engine.EditDraft("second", "")
	require.NoError(t, engine.SaveActiveNote(ctx))

	state := awaitState(t, engine, "both notes synced", func(s dto.ViewState) bool {
		return len(s.Notes) == 2 && s.Notes[0].Title == "second"
	})
	assert.Equal(t, "first", state.Notes[1].Title)
}

func TestEngineFollowsReopenedNotesCache(t *testing.T) {
	store := memstore.New()
	log := logger.NewNopLogger()
	session := NewSessionService(store, identity.NewStatic(entity.Identity{UserId: "user-1"}), log)
	mutation := NewMutationService(store, session, log)
	engine := NewEngineService(session, NewViewService(), mutation, log)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, engine.Run(ctx))
	t.Cleanup(func() {
		cancel()
		engine.Close()
	})

	awaitState(t, engine, "initial state", func(s dto.ViewState) bool {
		return s.UserId == "user-1"
	})

	require.NoError(t, session.ReopenNotes(ctx))

	// Written directly to the store: only the reopened subscription can
	// surface it, no intent nudges the engine.
	path := remotestore.CollectionPath{UserId: "user-1", Collection: remotestore.CollectionNotes}
	_, err := store.Create(ctx, path, remotestore.Fields{
		"title":     "after reopen",
		"updatedAt": store.ServerTime(),
	})
	require.NoError(t, err)

	awaitState(t, engine, "push through reopened cache", func(s dto.ViewState) bool {
		return len(s.Notes) == 1 && s.Notes[0].Title == "after reopen"
	})
}

func TestEngineFollowsReopenedNotebooksCache(t *testing.T) {
	store := memstore.New()
	log := logger.NewNopLogger()
	session := NewSessionService(store, identity.NewStatic(entity.Identity{UserId: "user-1"}), log)
	mutation := NewMutationService(store, session, log)
	engine := NewEngineService(session, NewViewService(), mutation, log)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, engine.Run(ctx))
	t.Cleanup(func() {
		cancel()
		engine.Close()
	})

	awaitState(t, engine, "initial state", func(s dto.ViewState) bool {
		return s.UserId == "user-1"
	})

	require.NoError(t, session.ReopenNotebooks(ctx))

	path := remotestore.CollectionPath{UserId: "user-1", Collection: remotestore.CollectionNotebooks}
	_, err := store.Create(ctx, path, remotestore.Fields{"name": "Ideas"})
	require.NoError(t, err)

	awaitState(t, engine, "push through reopened cache", func(s dto.ViewState) bool {
		return len(s.Notebooks) == 1 && s.Notebooks[0].Name == "Ideas"
	})
}

func TestEngineDeleteNoteClearsSelection(t *testing.T) {
	engine, _ := newEngineFixture(t, memstore.New())
	ctx := context.Background()

	require.NoError(t, engine.AddNote(ctx))
	state := awaitState(t, engine, "note selected", func(s dto.ViewState) bool {
		return s.Draft != nil && len(s.Notes) == 1
	})

	require.NoError(t, engine.DeleteNote(ctx, state.Draft.Id))
	awaitState(t, engine, "note removed", func(s dto.ViewState) bool {
		return len(s.Notes) == 0 && s.Draft == nil
	})

	// Idempotent: deleting the same id again is still success.
	require.NoError(t, engine.DeleteNote(ctx, state.Draft.Id))
}
