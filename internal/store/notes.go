package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/slatenotes/slate/internal/schema"
)

const noteColumns = `id, folder_id, title, content, plain_text, sort_order, created_at, updated_at`

// GetNote retrieves a single note by id.
// Returns ErrNotFound if the note does not exist.
func (db *DB) GetNote(ctx context.Context, id string) (*schema.Note, error) {
	return getNote(ctx, db.conn, id)
}

// ListNotes returns the notes of folderID ordered by sort_order.
func (db *DB) ListNotes(ctx context.Context, folderID string) ([]*schema.Note, error) {
	query := `SELECT ` + noteColumns + ` FROM notes
		WHERE folder_id = ?
		ORDER BY sort_order, created_at, id`
	return queryNotes(ctx, db.conn, query, folderID)
}

// ListNotesModifiedSince returns notes whose updated_at is after since,
// most recently modified first.
func (db *DB) ListNotesModifiedSince(ctx context.Context, since time.Time) ([]*schema.Note, error) {
	query := `SELECT ` + noteColumns + ` FROM notes
		WHERE updated_at > ?
		ORDER BY updated_at DESC, id`
	return queryNotes(ctx, db.conn, query, schema.FormatTime(since))
}

// SearchNotes finds notes whose title or plain text contains q,
// case-insensitively for ASCII. Results are most recently modified first.
func (db *DB) SearchNotes(ctx context.Context, q string, limit int) ([]*schema.Note, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 20
	}

	pattern := "%" + escapeLike(q) + "%"
	query := `SELECT ` + noteColumns + ` FROM notes
		WHERE title LIKE ? ESCAPE '\' OR plain_text LIKE ? ESCAPE '\'
		ORDER BY updated_at DESC, id
		LIMIT ?`
	return queryNotes(ctx, db.conn, query, pattern, pattern, limit)
}

// NoteCount returns the number of notes.
func (db *DB) NoteCount(ctx context.Context) (int, error) {
	var count int
	if err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM notes`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count notes: %w", err)
	}
	return count, nil
}

func getNote(ctx context.Context, q querier, id string) (*schema.Note, error) {
	row := q.QueryRowContext(ctx, `SELECT `+noteColumns+` FROM notes WHERE id = ?`, id)
	n, err := scanNote(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("note %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get note %s: %w", id, err)
	}
	return n, nil
}

func queryNotes(ctx context.Context, q querier, query string, args ...any) ([]*schema.Note, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query notes: %w", err)
	}
	defer rows.Close()

	var notes []*schema.Note
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan note: %w", err)
		}
		notes = append(notes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate notes: %w", err)
	}
	return notes, nil
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

func upsertNote(ctx context.Context, q querier, n *schema.Note) error {
	query := `
	INSERT INTO notes (id, folder_id, title, content, plain_text, sort_order, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		folder_id = excluded.folder_id,
		title = excluded.title,
		content = excluded.content,
		plain_text = excluded.plain_text,
		sort_order = excluded.sort_order,
		created_at = excluded.created_at,
		updated_at = excluded.updated_at
	`
	_, err := q.ExecContext(ctx, query,
		n.ID,
		n.FolderID,
		n.Title,
		n.Content,
		n.PlainText,
		n.SortOrder,
		schema.FormatTime(n.CreatedAt),
		schema.FormatTime(n.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert note %s: %w", n.ID, err)
	}
	return nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
