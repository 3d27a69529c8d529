package remotedb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/slatenotes/slate/internal/schema"
)

// FolderUpdate lists the folder fields a PUT replaces. Nil fields keep their
// stored value. SetParent distinguishes an explicit null parent from an
// absent one.
type FolderUpdate struct {
	Name      *string
	SetParent bool
	ParentID  *string
	SortOrder *int
	UpdatedAt *time.Time
}

const folderColumns = `id, name, parent_id, sort_order, created_at, updated_at`

// ListFolders returns folders modified after since, or all of them when
// since is nil, ordered by sort_order.
func (db *DB) ListFolders(ctx context.Context, since *time.Time) ([]*schema.Folder, error) {
	query := `SELECT ` + folderColumns + ` FROM folders`
	var args []any
	if since != nil {
		query += ` WHERE updated_at > ?`
		args = append(args, schema.FormatTime(*since))
	}
	query += ` ORDER BY sort_order, id`

	rows, err := db.query(ctx, db.conn, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query folders: %w", err)
	}
	defer rows.Close()

	folders := []*schema.Folder{}
	for rows.Next() {
		f, err := scanFolder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan folder: %w", err)
		}
		folders = append(folders, f)
	}
	return folders, rows.Err()
}

// GetFolder returns the folder with id, or nil if there is none.
func (db *DB) GetFolder(ctx context.Context, id string) (*schema.Folder, error) {
	return db.getFolder(ctx, db.conn, id)
}

func (db *DB) getFolder(ctx context.Context, q querier, id string) (*schema.Folder, error) {
	row := db.queryRow(ctx, q, `SELECT `+folderColumns+` FROM folders WHERE id = ?`, id)
	f, err := scanFolder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get folder %s: %w", id, err)
	}
	return f, nil
}

// InsertFolder creates f. createdAt is kept from the payload when present;
// updatedAt is never earlier than server time, so a record created offline
// still sorts after the watermark of every client that pulled meanwhile.
// Inserting an id that already exists is a successful no-op, so a replayed
// create never fails or duplicates.
func (db *DB) InsertFolder(ctx context.Context, f *schema.Folder) error {
	if f.ID == "" {
		return fmt.Errorf("%w: folder id is required", schema.ErrInvalid)
	}
	created, updated := insertTimes(f.CreatedAt, f.UpdatedAt, db.now())

	_, err := db.exec(ctx, db.conn, `
		INSERT INTO folders (id, name, parent_id, sort_order, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING`,
		f.ID, f.Name, nullString(f.ParentID), f.SortOrder,
		schema.FormatTime(created), schema.FormatTime(updated),
	)
	if err != nil && !isUniqueViolation(err) {
		return fmt.Errorf("failed to insert folder %s: %w", f.ID, err)
	}
	return nil
}

// UpdateFolder applies u to the folder with id. It reports whether the
// folder exists; updating a missing folder is not an error.
func (db *DB) UpdateFolder(ctx context.Context, id string, u FolderUpdate) (bool, error) {
	found := false
	err := db.inTx(ctx, func(tx *sql.Tx) error {
		f, err := db.getFolder(ctx, tx, id)
		if err != nil || f == nil {
			return err
		}
		found = true

		if u.Name != nil {
			f.Name = *u.Name
		}
		if u.SetParent {
			f.ParentID = schema.StringPtr(deref(u.ParentID))
		}
		if u.SortOrder != nil {
			f.SortOrder = *u.SortOrder
		}
		f.UpdatedAt = schema.Stamp(db.now())
		if u.UpdatedAt != nil {
			f.UpdatedAt = schema.Stamp(*u.UpdatedAt)
		}

		_, err = db.exec(ctx, tx, `
			UPDATE folders SET name = ?, parent_id = ?, sort_order = ?, updated_at = ?
			WHERE id = ?`,
			f.Name, nullString(f.ParentID), f.SortOrder, schema.FormatTime(f.UpdatedAt), id,
		)
		if err != nil {
			return fmt.Errorf("failed to update folder %s: %w", id, err)
		}
		return nil
	})
	return found, err
}

// DeleteFolder removes a folder and every note filed in it. Subfolders are
// left in place.
func (db *DB) DeleteFolder(ctx context.Context, id string) error {
	return db.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := db.exec(ctx, tx, `DELETE FROM notes WHERE folder_id = ?`, id); err != nil {
			return fmt.Errorf("failed to delete notes of folder %s: %w", id, err)
		}
		if _, err := db.exec(ctx, tx, `DELETE FROM folders WHERE id = ?`, id); err != nil {
			return fmt.Errorf("failed to delete folder %s: %w", id, err)
		}
		return nil
	})
}

type scanner interface {
	Scan(dest ...any) error
}

func scanFolder(s scanner) (*schema.Folder, error) {
	var (
		f                    schema.Folder
		parentID             sql.NullString
		createdAt, updatedAt string
	)
	if err := s.Scan(&f.ID, &f.Name, &parentID, &f.SortOrder, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	if parentID.Valid && parentID.String != "" {
		f.ParentID = &parentID.String
	}
	var err error
	if f.CreatedAt, err = schema.ParseTime(createdAt); err != nil {
		return nil, err
	}
	if f.UpdatedAt, err = schema.ParseTime(updatedAt); err != nil {
		return nil, err
	}
	return &f, nil
}

func nullString(s *string) sql.NullString {
	if s == nil || *s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
