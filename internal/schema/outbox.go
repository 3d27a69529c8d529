package schema

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EntityType names the collection an outbox entry concerns.
type EntityType string

const (
	EntityFolder EntityType = "folder"
	EntityNote   EntityType = "note"
)

// Valid reports whether t is a known entity type.
func (t EntityType) Valid() bool {
	return t == EntityFolder || t == EntityNote
}

// Collection returns the remote collection name ("folders" or "notes").
func (t EntityType) Collection() string {
	return string(t) + "s"
}

// Action is the kind of mutation an outbox entry replays remotely.
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Valid reports whether a is a known action.
func (a Action) Valid() bool {
	switch a {
	case ActionCreate, ActionUpdate, ActionDelete:
		return true
	}
	return false
}

// OutboxEntry is a pending mutation not yet confirmed by the remote store.
//
// Exactly one of Folder and Note is set for create and update entries,
// matching Type. Delete entries carry neither.
type OutboxEntry struct {
	ID        string
	Seq       int64
	Type      EntityType
	Action    Action
	EntityID  string
	Folder    *Folder
	Note      *Note
	CreatedAt time.Time
}

// NewFolderEntry builds a create or update entry carrying a snapshot of f.
func NewFolderEntry(action Action, f *Folder, now time.Time) *OutboxEntry {
	return &OutboxEntry{
		ID:        uuid.NewString(),
		Type:      EntityFolder,
		Action:    action,
		EntityID:  f.ID,
		Folder:    f.Clone(),
		CreatedAt: Stamp(now),
	}
}

// NewNoteEntry builds a create or update entry carrying a snapshot of n.
func NewNoteEntry(action Action, n *Note, now time.Time) *OutboxEntry {
	return &OutboxEntry{
		ID:        uuid.NewString(),
		Type:      EntityNote,
		Action:    action,
		EntityID:  n.ID,
		Note:      n.Clone(),
		CreatedAt: Stamp(now),
	}
}

// NewDeleteEntry builds a delete entry for the given entity.
func NewDeleteEntry(typ EntityType, id string, now time.Time) *OutboxEntry {
	return &OutboxEntry{
		ID:        uuid.NewString(),
		Type:      typ,
		Action:    ActionDelete,
		EntityID:  id,
		CreatedAt: Stamp(now),
	}
}

// Validate checks that the payload shape matches {Type, Action}.
func (e *OutboxEntry) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("%w: outbox entry id is required", ErrInvalid)
	}
	if !e.Type.Valid() {
		return fmt.Errorf("%w: outbox entry %s: unknown type %q", ErrInvalid, e.ID, e.Type)
	}
	if !e.Action.Valid() {
		return fmt.Errorf("%w: outbox entry %s: unknown action %q", ErrInvalid, e.ID, e.Action)
	}
	if e.EntityID == "" {
		return fmt.Errorf("%w: outbox entry %s: entityId is required", ErrInvalid, e.ID)
	}
	if e.CreatedAt.IsZero() {
		return fmt.Errorf("%w: outbox entry %s: createdAt is required", ErrInvalid, e.ID)
	}

	if e.Action == ActionDelete {
		if e.Folder != nil || e.Note != nil {
			return fmt.Errorf("%w: outbox entry %s: delete carries no payload", ErrInvalid, e.ID)
		}
		return nil
	}

	switch e.Type {
	case EntityFolder:
		if e.Folder == nil || e.Note != nil {
			return fmt.Errorf("%w: outbox entry %s: folder %s needs a folder snapshot", ErrInvalid, e.ID, e.Action)
		}
		if e.Folder.ID != e.EntityID {
			return fmt.Errorf("%w: outbox entry %s: snapshot id %s does not match entity %s", ErrInvalid, e.ID, e.Folder.ID, e.EntityID)
		}
	case EntityNote:
		if e.Note == nil || e.Folder != nil {
			return fmt.Errorf("%w: outbox entry %s: note %s needs a note snapshot", ErrInvalid, e.ID, e.Action)
		}
		if e.Note.ID != e.EntityID {
			return fmt.Errorf("%w: outbox entry %s: snapshot id %s does not match entity %s", ErrInvalid, e.ID, e.Note.ID, e.EntityID)
		}
	}
	return nil
}

// EncodePayload serializes the snapshot for storage. Deletes encode as "{}".
func (e *OutboxEntry) EncodePayload() (string, error) {
	var v any
	switch {
	case e.Action == ActionDelete:
		return "{}", nil
	case e.Type == EntityFolder:
		v = e.Folder
	default:
		v = e.Note
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to marshal %s payload: %w", e.Type, err)
	}
	return string(data), nil
}

// DecodePayload fills the snapshot field from a stored payload. Type and
// Action must already be set.
func (e *OutboxEntry) DecodePayload(payload string) error {
	e.Folder, e.Note = nil, nil
	if e.Action == ActionDelete {
		return nil
	}

	switch e.Type {
	case EntityFolder:
		var f Folder
		if err := json.Unmarshal([]byte(payload), &f); err != nil {
			return fmt.Errorf("failed to parse folder payload of %s: %w", e.ID, err)
		}
		e.Folder = &f
	case EntityNote:
		var n Note
		if err := json.Unmarshal([]byte(payload), &n); err != nil {
			return fmt.Errorf("failed to parse note payload of %s: %w", e.ID, err)
		}
		e.Note = &n
	default:
		return fmt.Errorf("%w: outbox entry %s: unknown type %q", ErrInvalid, e.ID, e.Type)
	}
	return nil
}

// String returns a short human-readable description, e.g. "note update n1".
func (e *OutboxEntry) String() string {
	return fmt.Sprintf("%s %s %s", e.Type, e.Action, e.EntityID)
}
