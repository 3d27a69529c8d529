package mutator

import (
	"context"
	"errors"

	"github.com/slatenotes/slate/internal/schema"
	"github.com/slatenotes/slate/internal/store"
)

// FolderInput describes a folder to create. ID is generated when empty.
type FolderInput struct {
	ID        string
	Name      string
	ParentID  string
	SortOrder int
}

// FolderPatch lists the fields to change. Nil fields are left as they are.
// A ParentID pointing at "" moves the folder to the root.
type FolderPatch struct {
	Name      *string
	ParentID  *string
	SortOrder *int
}

// CreateFolder stores a new folder and queues its creation.
func (m *Mutator) CreateFolder(ctx context.Context, in FolderInput) (*schema.Folder, error) {
	now := m.stamp()
	f := &schema.Folder{
		ID:        in.ID,
		Name:      in.Name,
		ParentID:  schema.StringPtr(in.ParentID),
		SortOrder: in.SortOrder,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if f.ID == "" {
		f.ID = schema.NewID()
	}

	err := m.commit(ctx, func(tx *store.Tx) error {
		if err := checkParent(ctx, tx, f.ID, f.ParentID); err != nil {
			return err
		}
		if err := f.Validate(); err != nil {
			return err
		}
		if err := tx.UpsertFolder(ctx, f); err != nil {
			return err
		}
		return tx.AppendOutbox(ctx, schema.NewFolderEntry(schema.ActionCreate, f, now))
	})
	if err != nil {
		return nil, err
	}
	return f, nil
}

// UpdateFolder applies patch to the folder with the given id and queues the
// full updated record. A missing folder yields (nil, nil) and queues nothing.
func (m *Mutator) UpdateFolder(ctx context.Context, id string, patch FolderPatch) (*schema.Folder, error) {
	var updated *schema.Folder
	err := m.db.Update(ctx, func(tx *store.Tx) error {
		f, err := tx.GetFolder(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		if patch.Name != nil {
			f.Name = *patch.Name
		}
		if patch.ParentID != nil {
			f.ParentID = schema.StringPtr(*patch.ParentID)
			if err := checkParent(ctx, tx, f.ID, f.ParentID); err != nil {
				return err
			}
		}
		if patch.SortOrder != nil {
			f.SortOrder = *patch.SortOrder
		}

		now := m.stamp()
		if now.Before(f.CreatedAt) {
			now = f.CreatedAt
		}
		f.UpdatedAt = now
		if err := f.Validate(); err != nil {
			return err
		}

		if err := tx.UpsertFolder(ctx, f); err != nil {
			return err
		}
		if err := tx.AppendOutbox(ctx, schema.NewFolderEntry(schema.ActionUpdate, f, now)); err != nil {
			return err
		}
		updated = f
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

// RenameFolder changes a folder's name.
func (m *Mutator) RenameFolder(ctx context.Context, id, name string) (*schema.Folder, error) {
	return m.UpdateFolder(ctx, id, FolderPatch{Name: &name})
}

// MoveFolder reparents a folder. An empty parentID moves it to the root.
func (m *Mutator) MoveFolder(ctx context.Context, id, parentID string) (*schema.Folder, error) {
	return m.UpdateFolder(ctx, id, FolderPatch{ParentID: &parentID})
}

// DeleteFolder removes a folder and every local note filed in it, and queues
// a single folder delete. The remote store cascades the notes itself.
// Subfolders are left in place.
func (m *Mutator) DeleteFolder(ctx context.Context, id string) error {
	var removed int64
	err := m.commit(ctx, func(tx *store.Tx) error {
		var err error
		if removed, err = tx.DeleteNotesInFolder(ctx, id); err != nil {
			return err
		}
		if err := tx.DeleteFolder(ctx, id); err != nil {
			return err
		}
		return tx.AppendOutbox(ctx, schema.NewDeleteEntry(schema.EntityFolder, id, m.stamp()))
	})
	if err != nil {
		return err
	}
	if removed > 0 {
		m.logger.Printf("deleted folder %s with %d notes", id, removed)
	}
	return nil
}
