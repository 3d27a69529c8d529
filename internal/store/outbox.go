package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/slatenotes/slate/internal/schema"
)

const outboxColumns = `seq, id, type, action, entity_id, payload, created_at`

// ListOutbox returns every pending entry in FIFO order.
func (db *DB) ListOutbox(ctx context.Context) ([]*schema.OutboxEntry, error) {
	query := `SELECT ` + outboxColumns + ` FROM outbox ORDER BY seq`
	return db.queryOutbox(ctx, query)
}

// PendingFor returns the pending entries referencing entityID in FIFO order.
func (db *DB) PendingFor(ctx context.Context, entityID string) ([]*schema.OutboxEntry, error) {
	query := `SELECT ` + outboxColumns + ` FROM outbox WHERE entity_id = ? ORDER BY seq`
	return db.queryOutbox(ctx, query, entityID)
}

// OutboxDepth returns the number of pending entries.
func (db *DB) OutboxDepth(ctx context.Context) (int, error) {
	var count int
	if err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM outbox`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count outbox: %w", err)
	}
	return count, nil
}

// DeleteOutbox removes the given entries in a single statement.
// Unknown ids are ignored.
func (db *DB) DeleteOutbox(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	query := `DELETE FROM outbox WHERE id IN (` + placeholders + `)`
	if _, err := db.conn.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to delete %d outbox entries: %w", len(ids), err)
	}
	return nil
}

func (db *DB) queryOutbox(ctx context.Context, query string, args ...any) ([]*schema.OutboxEntry, error) {
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query outbox: %w", err)
	}
	defer rows.Close()

	var entries []*schema.OutboxEntry
	for rows.Next() {
		var (
			e                      schema.OutboxEntry
			typ, action, createdAt string
			payload                string
		)
		if err := rows.Scan(&e.Seq, &e.ID, &typ, &action, &e.EntityID, &payload, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan outbox entry: %w", err)
		}
		e.Type = schema.EntityType(typ)
		e.Action = schema.Action(action)
		if e.CreatedAt, err = schema.ParseTime(createdAt); err != nil {
			return nil, fmt.Errorf("outbox entry %s: %w", e.ID, err)
		}
		if err := e.DecodePayload(payload); err != nil {
			return nil, err
		}
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate outbox: %w", err)
	}
	return entries, nil
}
