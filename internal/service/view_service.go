package service

import (
	"strings"

	"notesync/internal/dto"
	"notesync/internal/entity"
)

// IViewService derives the visible note list from the synced snapshot and
// the current filter state. Pure: no side effects, never re-sorts — the
// snapshot order established by the sync cache is preserved.
type IViewService interface {
	Derive(notes []entity.Note, filter dto.FilterState) []entity.Note
}

type viewService struct{}

func NewViewService() IViewService {
	return &viewService{}
}

func (v *viewService) Derive(notes []entity.Note, filter dto.FilterState) []entity.Note {
	term := strings.ToLower(strings.TrimSpace(filter.SearchTerm))

	result := make([]entity.Note, 0, len(notes))
	for _, note := range notes {
		if !matchesNotebook(note, filter.SelectedNotebookId) {
			continue
		}
		if term != "" && !matchesSearch(note, term) {
			continue
		}
		result = append(result, note)
	}
	return result
}

func matchesNotebook(note entity.Note, selected string) bool {
	switch selected {
	case dto.FilterAll, "":
		return true
	case dto.FilterUncategorized:
		return note.NotebookId == nil
	default:
		// A stale id (notebook deleted remotely) simply matches nothing.
		return note.NotebookId != nil && *note.NotebookId == selected
	}
}

func matchesSearch(note entity.Note, term string) bool {
	return strings.Contains(strings.ToLower(note.Title), term) ||
		strings.Contains(strings.ToLower(note.Content), term)
}
