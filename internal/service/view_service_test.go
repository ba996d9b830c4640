package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"notesync/internal/dto"
	"notesync/internal/entity"
)

func strPtr(s string) *string { return &s }

func timePtr(t time.Time) *time.Time { return &t }

func sampleNotes() []entity.Note {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return []entity.Note{
		{Id: "n1", Title: "Meeting notes", Content: "quarterly planning", NotebookId: strPtr("work"), UpdatedAt: timePtr(base.Add(3 * time.Hour))},
		{Id: "n2", Title: "Grocery list", Content: "milk, eggs, coffee", NotebookId: nil, UpdatedAt: timePtr(base.Add(2 * time.Hour))},
		{Id: "n3", Title: "Recipe", Content: "Coffee cake with walnuts", NotebookId: strPtr("home"), UpdatedAt: timePtr(base.Add(time.Hour))},
		{Id: "n4", Title: "Untitled", Content: "", NotebookId: nil, UpdatedAt: nil},
		{Id: "n5", Title: "Café list", Content: "espresso bars downtown", NotebookId: strPtr("home"), UpdatedAt: nil},
	}
}

func TestDeriveAllNotebooksIsIdentity(t *testing.T) {
	view := NewViewService()
	notes := sampleNotes()

	derived := view.Derive(notes, dto.FilterState{SelectedNotebookId: dto.FilterAll})

	assert.Equal(t, notes, derived)
}

func TestDeriveEmptySelectionBehavesLikeAll(t *testing.T) {
	view := NewViewService()
	notes := sampleNotes()

	derived := view.Derive(notes, dto.FilterState{})

	assert.Equal(t, notes, derived)
}

func TestDeriveByNotebook(t *testing.T) {
	view := NewViewService()

	derived := view.Derive(sampleNotes(), dto.FilterState{SelectedNotebookId: "work"})

	assert.Len(t, derived, 1)
	assert.Equal(t, "n1", derived[0].Id)
}

func TestDeriveUncategorized(t *testing.T) {
	view := NewViewService()

	derived := view.Derive(sampleNotes(), dto.FilterState{SelectedNotebookId: dto.FilterUncategorized})

	assert.Len(t, derived, 2)
	assert.Equal(t, "n2", derived[0].Id)
	assert.Equal(t, "n4", derived[1].Id)
}

func TestDeriveStaleNotebookIdMatchesNothing(t *testing.T) {
	view := NewViewService()

	derived := view.Derive(sampleNotes(), dto.FilterState{SelectedNotebookId: "deleted-notebook"})

	assert.Empty(t, derived)
}

func TestDeriveSearchMatchesTitleAndContent(t *testing.T) {
	view := NewViewService()

	tests := []struct {
		name string
		term string
		ids  []string
	}{
		{name: "content match", term: "coffee", ids: []string{"n2", "n3"}},
		{name: "title match", term: "meeting", ids: []string{"n1"}},
		{name: "case insensitive", term: "COFFEE", ids: []string{"n2", "n3"}},
		{name: "unicode case folding", term: "CAFÉ", ids: []string{"n5"}},
		{name: "surrounding whitespace trimmed", term: "  coffee  ", ids: []string{"n2", "n3"}},
		{name: "no match", term: "zebra", ids: []string{}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			derived := view.Derive(sampleNotes(), dto.FilterState{
				SelectedNotebookId: dto.FilterAll,
				SearchTerm:         tc.term,
			})

			ids := make([]string, 0, len(derived))
			for _, n := range derived {
				ids = append(ids, n.Id)
			}
			assert.Equal(t, tc.ids, ids)
		})
	}
}

func TestDeriveComposesNotebookAndSearch(t *testing.T) {
	view := NewViewService()

	derived := view.Derive(sampleNotes(), dto.FilterState{
		SelectedNotebookId: dto.FilterUncategorized,
		SearchTerm:         "coffee",
	})

	assert.Len(t, derived, 1)
	assert.Equal(t, "n2", derived[0].Id)
}

func TestDerivePreservesInputOrder(t *testing.T) {
	view := NewViewService()
	notes := sampleNotes()

	derived := view.Derive(notes, dto.FilterState{
		SelectedNotebookId: dto.FilterAll,
		SearchTerm:         "e",
	})

	// Input order survives: derivation filters, never re-sorts.
	var last int = -1
	for _, d := range derived {
		for i, n := range notes {
			if n.Id == d.Id {
				assert.Greater(t, i, last)
				last = i
			}
		}
	}
}

func TestDeriveDoesNotAliasInput(t *testing.T) {
	view := NewViewService()
	notes := sampleNotes()

	derived := view.Derive(notes, dto.FilterState{SelectedNotebookId: dto.FilterAll})
	derived[0].Title = "mutated"

	assert.Equal(t, "Meeting notes", notes[0].Title)
}
