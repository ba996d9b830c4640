package entity

import (
	"strings"
	"time"
)

// Note is the synced shape of a note. Ids are server-assigned and opaque.
// NotebookId nil means uncategorized. UpdatedAt is optional: notes written
// before the field existed carry none and sort as the zero time.
type Note struct {
	Id         string
	Title      string
	Content    string
	NotebookId *string
	CreatedAt  time.Time
	UpdatedAt  *time.Time
}

// UpdatedAtOrZero is the defined ordering value for a missing timestamp.
func (n Note) UpdatedAtOrZero() time.Time {
	if n.UpdatedAt == nil {
		return time.Time{}
	}
	return *n.UpdatedAt
}

// NoteLess orders notes by updatedAt descending, missing timestamps last.
// Ties keep their incoming (push) order under a stable sort.
func NoteLess(a, b Note) bool {
	return a.UpdatedAtOrZero().After(b.UpdatedAtOrZero())
}

// NotebookLess orders notebooks by name ascending, case-insensitive.
func NotebookLess(a, b Notebook) bool {
	return strings.ToLower(a.Name) < strings.ToLower(b.Name)
}
