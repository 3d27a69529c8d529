package remotedb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/slatenotes/slate/internal/schema"
)

// NoteFilter narrows ListNotes.
type NoteFilter struct {
	Since    *time.Time
	FolderID string
}

// NoteUpdate lists the note fields a PUT replaces. Nil fields keep their
// stored value.
type NoteUpdate struct {
	FolderID  *string
	Title     *string
	Content   *string
	PlainText *string
	SortOrder *int
	UpdatedAt *time.Time
}

const noteColumns = `id, folder_id, title, content, plain_text, sort_order, created_at, updated_at`

// ListNotes returns the notes matching f ordered by sort_order.
func (db *DB) ListNotes(ctx context.Context, f NoteFilter) ([]*schema.Note, error) {
	var (
		conds []string
		args  []any
	)
	if f.Since != nil {
		conds = append(conds, `updated_at > ?`)
		args = append(args, schema.FormatTime(*f.Since))
	}
	if f.FolderID != "" {
		conds = append(conds, `folder_id = ?`)
		args = append(args, f.FolderID)
	}

	query := `SELECT ` + noteColumns + ` FROM notes`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, ` AND `)
	}
	query += ` ORDER BY sort_order, id`
	return db.queryNotes(ctx, query, args...)
}

func (db *DB) queryNotes(ctx context.Context, query string, args ...any) ([]*schema.Note, error) {
	rows, err := db.query(ctx, db.conn, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query notes: %w", err)
	}
	defer rows.Close()

	notes := []*schema.Note{}
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan note: %w", err)
		}
		notes = append(notes, n)
	}
	return notes, rows.Err()
}

// GetNote returns the note with id, or nil if there is none.
func (db *DB) GetNote(ctx context.Context, id string) (*schema.Note, error) {
	return db.getNote(ctx, db.conn, id)
}

func (db *DB) getNote(ctx context.Context, q querier, id string) (*schema.Note, error) {
	row := db.queryRow(ctx, q, `SELECT `+noteColumns+` FROM notes WHERE id = ?`, id)
	n, err := scanNote(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get note %s: %w", id, err)
	}
	return n, nil
}

// InsertNote creates n with the same timestamp rules as InsertFolder.
// Inserting an id that already exists is a successful no-op.
func (db *DB) InsertNote(ctx context.Context, n *schema.Note) error {
	if n.ID == "" {
		return fmt.Errorf("%w: note id is required", schema.ErrInvalid)
	}
	if n.FolderID == "" {
		return fmt.Errorf("%w: note %s: folderId is required", schema.ErrInvalid, n.ID)
	}
	created, updated := insertTimes(n.CreatedAt, n.UpdatedAt, db.now())

	_, err := db.exec(ctx, db.conn, `
		INSERT INTO notes (id, folder_id, title, content, plain_text, sort_order, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING`,
		n.ID, n.FolderID, n.Title, n.Content, n.PlainText, n.SortOrder,
		schema.FormatTime(created), schema.FormatTime(updated),
	)
	if err != nil && !isUniqueViolation(err) {
		return fmt.Errorf("failed to insert note %s: %w", n.ID, err)
	}
	return nil
}

// UpdateNote applies u to the note with id. It reports whether the note
// exists; updating a missing note is not an error.
func (db *DB) UpdateNote(ctx context.Context, id string, u NoteUpdate) (bool, error) {
	found := false
	err := db.inTx(ctx, func(tx *sql.Tx) error {
		n, err := db.getNote(ctx, tx, id)
		if err != nil || n == nil {
			return err
		}
		found = true

		if u.FolderID != nil && *u.FolderID != "" {
			n.FolderID = *u.FolderID
		}
		if u.Title != nil {
			n.Title = *u.Title
		}
		if u.Content != nil {
			n.Content = *u.Content
		}
		if u.PlainText != nil {
			n.PlainText = *u.PlainText
		}
		if u.SortOrder != nil {
			n.SortOrder = *u.SortOrder
		}
		n.UpdatedAt = schema.Stamp(db.now())
		if u.UpdatedAt != nil {
			n.UpdatedAt = schema.Stamp(*u.UpdatedAt)
		}

		_, err = db.exec(ctx, tx, `
			UPDATE notes SET folder_id = ?, title = ?, content = ?, plain_text = ?, sort_order = ?, updated_at = ?
			WHERE id = ?`,
			n.FolderID, n.Title, n.Content, n.PlainText, n.SortOrder, schema.FormatTime(n.UpdatedAt), id,
		)
		if err != nil {
			return fmt.Errorf("failed to update note %s: %w", id, err)
		}
		return nil
	})
	return found, err
}

// DeleteNote removes a note. Deleting a missing note is not an error.
func (db *DB) DeleteNote(ctx context.Context, id string) error {
	if _, err := db.exec(ctx, db.conn, `DELETE FROM notes WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete note %s: %w", id, err)
	}
	return nil
}

// Counts returns the number of stored folders and notes.
func (db *DB) Counts(ctx context.Context) (folders, notes int, err error) {
	if err = db.queryRow(ctx, db.conn, `SELECT COUNT(*) FROM folders`).Scan(&folders); err != nil {
		return 0, 0, fmt.Errorf("failed to count folders: %w", err)
	}
	if err = db.queryRow(ctx, db.conn, `SELECT COUNT(*) FROM notes`).Scan(&notes); err != nil {
		return 0, 0, fmt.Errorf("failed to count notes: %w", err)
	}
	return folders, notes, nil
}

func scanNote(s scanner) (*schema.Note, error) {
	var (
		n                    schema.Note
		createdAt, updatedAt string
	)
	if err := s.Scan(&n.ID, &n.FolderID, &n.Title, &n.Content, &n.PlainText, &n.SortOrder, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	var err error
	if n.CreatedAt, err = schema.ParseTime(createdAt); err != nil {
		return nil, err
	}
	if n.UpdatedAt, err = schema.ParseTime(updatedAt); err != nil {
		return nil, err
	}
	return &n, nil
}
