package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/slatenotes/slate/internal/schema"
)

// Tx is a write transaction handed to the callback of DB.Update.
type Tx struct {
	tx *sql.Tx
}

// GetFolder reads a folder inside the transaction.
func (t *Tx) GetFolder(ctx context.Context, id string) (*schema.Folder, error) {
	return getFolder(ctx, t.tx, id)
}

// GetNote reads a note inside the transaction.
func (t *Tx) GetNote(ctx context.Context, id string) (*schema.Note, error) {
	return getNote(ctx, t.tx, id)
}

// UpsertFolder inserts or fully overwrites a folder.
func (t *Tx) UpsertFolder(ctx context.Context, f *schema.Folder) error {
	return upsertFolder(ctx, t.tx, f)
}

// UpsertNote inserts or fully overwrites a note.
func (t *Tx) UpsertNote(ctx context.Context, n *schema.Note) error {
	return upsertNote(ctx, t.tx, n)
}

// DeleteFolder removes a folder row. Deleting a missing folder is not an error.
func (t *Tx) DeleteFolder(ctx context.Context, id string) error {
	if _, err := t.tx.ExecContext(ctx, `DELETE FROM folders WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete folder %s: %w", id, err)
	}
	return nil
}

// DeleteNote removes a note row. Deleting a missing note is not an error.
func (t *Tx) DeleteNote(ctx context.Context, id string) error {
	if _, err := t.tx.ExecContext(ctx, `DELETE FROM notes WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete note %s: %w", id, err)
	}
	return nil
}

// DeleteNotesInFolder removes every note whose folder_id is folderID and
// returns how many were removed.
func (t *Tx) DeleteNotesInFolder(ctx context.Context, folderID string) (int64, error) {
	res, err := t.tx.ExecContext(ctx, `DELETE FROM notes WHERE folder_id = ?`, folderID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete notes of folder %s: %w", folderID, err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// AppendOutbox validates e and appends it to the outbox. On success e.Seq
// holds the assigned sequence number.
func (t *Tx) AppendOutbox(ctx context.Context, e *schema.OutboxEntry) error {
	if err := e.Validate(); err != nil {
		return err
	}
	payload, err := e.EncodePayload()
	if err != nil {
		return err
	}

	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO outbox (id, type, action, entity_id, payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID,
		string(e.Type),
		string(e.Action),
		e.EntityID,
		payload,
		schema.FormatTime(e.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to append outbox entry %s: %w", e, err)
	}
	if seq, err := res.LastInsertId(); err == nil {
		e.Seq = seq
	}
	return nil
}

// FolderAncestors returns the ids on the parent chain of id, nearest first.
// The walk stops at a missing parent. A chain that loops back terminates
// after visiting each folder once.
func (t *Tx) FolderAncestors(ctx context.Context, id string) ([]string, error) {
	query := `
	WITH RECURSIVE chain(id) AS (
		SELECT parent_id FROM folders WHERE id = ? AND parent_id IS NOT NULL AND parent_id <> ''
		UNION
		SELECT f.parent_id
		FROM folders f JOIN chain c ON f.id = c.id
		WHERE f.parent_id IS NOT NULL AND f.parent_id <> ''
	)
	SELECT id FROM chain
	`
	rows, err := t.tx.QueryContext(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("failed to walk ancestors of %s: %w", id, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var ancestor string
		if err := rows.Scan(&ancestor); err != nil {
			return nil, fmt.Errorf("failed to scan ancestor: %w", err)
		}
		ids = append(ids, ancestor)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate ancestors: %w", err)
	}
	return ids, nil
}
