package schema

import (
	"fmt"
	"time"
)

// DefaultNoteTitle is used when a note is created without a title.
const DefaultNoteTitle = "Untitled"

// Note is a document stored in a folder. Content is opaque to the sync
// engine; PlainText is its searchable projection.
type Note struct {
	ID        string    `json:"id" yaml:"id"`
	FolderID  string    `json:"folderId" yaml:"folderId"`
	Title     string    `json:"title" yaml:"title"`
	Content   string    `json:"content" yaml:"content"`
	PlainText string    `json:"plainText" yaml:"plainText"`
	SortOrder int       `json:"sortOrder" yaml:"sortOrder"`
	CreatedAt time.Time `json:"createdAt" yaml:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt" yaml:"updatedAt"`
}

// Validate checks if the Note has valid field values.
func (n *Note) Validate() error {
	if n.ID == "" {
		return fmt.Errorf("%w: note id is required", ErrInvalid)
	}
	if n.FolderID == "" {
		return fmt.Errorf("%w: note %s: folderId is required", ErrInvalid, n.ID)
	}
	return validateTimes("note", n.ID, n.CreatedAt, n.UpdatedAt)
}

// Clone returns a copy of n.
func (n *Note) Clone() *Note {
	c := *n
	return &c
}
