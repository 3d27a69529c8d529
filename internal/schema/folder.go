package schema

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrInvalid is wrapped by every validation failure in this package.
var ErrInvalid = errors.New("invalid record")

// Folder is a node in the folder tree.
type Folder struct {
	ID        string    `json:"id" yaml:"id"`
	Name      string    `json:"name" yaml:"name"`
	ParentID  *string   `json:"parentId" yaml:"parentId"`
	SortOrder int       `json:"sortOrder" yaml:"sortOrder"`
	CreatedAt time.Time `json:"createdAt" yaml:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt" yaml:"updatedAt"`
}

// Validate checks if the Folder has valid field values.
func (f *Folder) Validate() error {
	if f.ID == "" {
		return fmt.Errorf("%w: folder id is required", ErrInvalid)
	}
	if f.Name == "" {
		return fmt.Errorf("%w: folder %s: name is required", ErrInvalid, f.ID)
	}
	if f.ParentID != nil && *f.ParentID == f.ID {
		return fmt.Errorf("%w: folder %s cannot be its own parent", ErrInvalid, f.ID)
	}
	return validateTimes("folder", f.ID, f.CreatedAt, f.UpdatedAt)
}

// Clone returns a deep copy of f.
func (f *Folder) Clone() *Folder {
	c := *f
	if f.ParentID != nil {
		p := *f.ParentID
		c.ParentID = &p
	}
	return &c
}

// IsRoot reports whether the folder has no parent.
func (f *Folder) IsRoot() bool {
	return f.ParentID == nil || *f.ParentID == ""
}

// NewID returns a fresh client-generated record identifier.
func NewID() string {
	return uuid.NewString()
}

// StringPtr returns a pointer to s, or nil when s is empty.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func validateTimes(kind, id string, createdAt, updatedAt time.Time) error {
	if createdAt.IsZero() {
		return fmt.Errorf("%w: %s %s: createdAt is required", ErrInvalid, kind, id)
	}
	if updatedAt.IsZero() {
		return fmt.Errorf("%w: %s %s: updatedAt is required", ErrInvalid, kind, id)
	}
	if updatedAt.Before(createdAt) {
		return fmt.Errorf("%w: %s %s: updatedAt precedes createdAt", ErrInvalid, kind, id)
	}
	return nil
}
