package dto

import "notesync/internal/entity"

// Notebook filter sentinels. Anything else is a concrete notebook id.
const (
	FilterAll           = "all"
	FilterUncategorized = "uncategorized"
)

// FilterState is the client-only, transient filter input of the view
// derivation. A notebook change resets the active note selection but never
// the search term.
type FilterState struct {
	SelectedNotebookId string
	SearchTerm         string
}

// NoteDraft is the local working copy of the active note. Edits buffer here
// until an explicit save; it may run ahead of the synced snapshot.
type NoteDraft struct {
	Id         string
	Title      string
	Content    string
	NotebookId *string
}

// ViewState is the full render input handed to the presentation layer.
type ViewState struct {
	UserId    string
	Notebooks []entity.Notebook
	Notes     []entity.Note // filtered, snapshot order preserved
	Filter    FilterState
	Draft     *NoteDraft
	IsSaving  bool
	Err       error
}
