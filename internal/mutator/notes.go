package mutator

import (
	"context"
	"errors"

	"github.com/slatenotes/slate/internal/schema"
	"github.com/slatenotes/slate/internal/store"
)

// NoteInput describes a note to create. ID is generated when empty, Title
// defaults to schema.DefaultNoteTitle, and PlainText is projected from
// Content when empty.
type NoteInput struct {
	ID        string
	FolderID  string
	Title     string
	Content   string
	PlainText string
	SortOrder int
}

// NotePatch lists the fields to change. Nil fields are left as they are.
// When Content changes and PlainText is nil, PlainText is re-projected.
type NotePatch struct {
	FolderID  *string
	Title     *string
	Content   *string
	PlainText *string
	SortOrder *int
}

// CreateNote stores a new note and queues its creation.
func (m *Mutator) CreateNote(ctx context.Context, in NoteInput) (*schema.Note, error) {
	now := m.stamp()
	n := &schema.Note{
		ID:        in.ID,
		FolderID:  in.FolderID,
		Title:     in.Title,
		Content:   in.Content,
		PlainText: in.PlainText,
		SortOrder: in.SortOrder,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if n.ID == "" {
		n.ID = schema.NewID()
	}
	if n.Title == "" {
		n.Title = schema.DefaultNoteTitle
	}
	if n.PlainText == "" && n.Content != "" {
		n.PlainText = m.project(n.Content)
	}
	if err := n.Validate(); err != nil {
		return nil, err
	}

	err := m.commit(ctx, func(tx *store.Tx) error {
		if err := tx.UpsertNote(ctx, n); err != nil {
			return err
		}
		return tx.AppendOutbox(ctx, schema.NewNoteEntry(schema.ActionCreate, n, now))
	})
	if err != nil {
		return nil, err
	}
	return n, nil
}

// UpdateNote applies patch to the note with the given id and queues the full
// updated record. A missing note yields (nil, nil) and queues nothing.
func (m *Mutator) UpdateNote(ctx context.Context, id string, patch NotePatch) (*schema.Note, error) {
	var updated *schema.Note
	err := m.db.Update(ctx, func(tx *store.Tx) error {
		n, err := tx.GetNote(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		if patch.FolderID != nil {
			n.FolderID = *patch.FolderID
		}
		if patch.Title != nil {
			n.Title = *patch.Title
		}
		if patch.Content != nil {
			n.Content = *patch.Content
			if patch.PlainText == nil {
				n.PlainText = m.project(n.Content)
			}
		}
		if patch.PlainText != nil {
			n.PlainText = *patch.PlainText
		}
		if patch.SortOrder != nil {
			n.SortOrder = *patch.SortOrder
		}

		now := m.stamp()
		if now.Before(n.CreatedAt) {
			now = n.CreatedAt
		}
		n.UpdatedAt = now
		if err := n.Validate(); err != nil {
			return err
		}

		if err := tx.UpsertNote(ctx, n); err != nil {
			return err
		}
		if err := tx.AppendOutbox(ctx, schema.NewNoteEntry(schema.ActionUpdate, n, now)); err != nil {
			return err
		}
		updated = n
		return nil
	})
	if err != nil {
		return nil, err
	}
	if updated != nil && m.trigger != nil {
		m.trigger.Trigger()
	}
	return updated, nil
}

// DeleteNote removes a note and queues its deletion.
func (m *Mutator) DeleteNote(ctx context.Context, id string) error {
	return m.commit(ctx, func(tx *store.Tx) error {
		if err := tx.DeleteNote(ctx, id); err != nil {
			return err
		}
		return tx.AppendOutbox(ctx, schema.NewDeleteEntry(schema.EntityNote, id, m.stamp()))
	})
}
