package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/slatenotes/slate/internal/schema"
)

const folderColumns = `id, name, parent_id, sort_order, created_at, updated_at`

// GetFolder retrieves a single folder by id.
// Returns ErrNotFound if the folder does not exist.
func (db *DB) GetFolder(ctx context.Context, id string) (*schema.Folder, error) {
	return getFolder(ctx, db.conn, id)
}

// ListFolders returns all folders ordered by sort_order.
func (db *DB) ListFolders(ctx context.Context) ([]*schema.Folder, error) {
	query := `SELECT ` + folderColumns + ` FROM folders ORDER BY sort_order, created_at, id`
	return queryFolders(ctx, db.conn, query)
}

// ListChildFolders returns the direct children of parentID ordered by
// sort_order. An empty parentID lists the root folders.
func (db *DB) ListChildFolders(ctx context.Context, parentID string) ([]*schema.Folder, error) {
	if parentID == "" {
		query := `SELECT ` + folderColumns + ` FROM folders
			WHERE parent_id IS NULL OR parent_id = ''
			ORDER BY sort_order, created_at, id`
		return queryFolders(ctx, db.conn, query)
	}
	query := `SELECT ` + folderColumns + ` FROM folders
		WHERE parent_id = ?
		ORDER BY sort_order, created_at, id`
	return queryFolders(ctx, db.conn, query, parentID)
}

// FolderCount returns the number of folders.
func (db *DB) FolderCount(ctx context.Context) (int, error) {
	var count int
	if err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM folders`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count folders: %w", err)
	}
	return count, nil
}

func getFolder(ctx context.Context, q querier, id string) (*schema.Folder, error) {
	row := q.QueryRowContext(ctx, `SELECT `+folderColumns+` FROM folders WHERE id = ?`, id)
	f, err := scanFolder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("folder %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get folder %s: %w", id, err)
	}
	return f, nil
}

func queryFolders(ctx context.Context, q querier, query string, args ...any) ([]*schema.Folder, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query folders: %w", err)
	}
	defer rows.Close()

	var folders []*schema.Folder
	for rows.Next() {
		f, err := scanFolder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan folder: %w", err)
		}
		folders = append(folders, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate folders: %w", err)
	}
	return folders, nil
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

func upsertFolder(ctx context.Context, q querier, f *schema.Folder) error {
	query := `
	INSERT INTO folders (id, name, parent_id, sort_order, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		name = excluded.name,
		parent_id = excluded.parent_id,
		sort_order = excluded.sort_order,
		created_at = excluded.created_at,
		updated_at = excluded.updated_at
	`
	_, err := q.ExecContext(ctx, query,
		f.ID,
		f.Name,
		nullString(f.ParentID),
		f.SortOrder,
		schema.FormatTime(f.CreatedAt),
		schema.FormatTime(f.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert folder %s: %w", f.ID, err)
	}
	return nil
}

func nullString(s *string) sql.NullString {
	if s == nil || *s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
