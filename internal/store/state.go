package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/slatenotes/slate/internal/schema"
)

const watermarkKey = "last_sync_time"

// Watermark returns the persisted pull watermark, or nil if the store has
// never completed a pull.
func (db *DB) Watermark(ctx context.Context) (*time.Time, error) {
	var value string
	err := db.conn.QueryRowContext(ctx, `SELECT value FROM sync_state WHERE key = ?`, watermarkKey).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read watermark: %w", err)
	}

	t, err := schema.ParseTime(value)
	if err != nil {
		return nil, fmt.Errorf("failed to parse watermark: %w", err)
	}
	return &t, nil
}

// SetWatermark persists t as the pull watermark.
func (db *DB) SetWatermark(ctx context.Context, t time.Time) error {
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO sync_state (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		watermarkKey, schema.FormatTime(t))
	if err != nil {
		return fmt.Errorf("failed to persist watermark: %w", err)
	}
	return nil
}

// ApplyRemote writes pulled records into the store in one transaction. Each
// record fully overwrites any local row with the same id. No outbox entries
// are created.
func (db *DB) ApplyRemote(ctx context.Context, folders []*schema.Folder, notes []*schema.Note) error {
	return db.Update(ctx, func(tx *Tx) error {
		for _, f := range folders {
			if err := tx.UpsertFolder(ctx, f); err != nil {
				return err
			}
		}
		for _, n := range notes {
			if err := tx.UpsertNote(ctx, n); err != nil {
				return err
			}
		}
		return nil
	})
}

// Leases are sync_state rows whose value is "<expiry>|<owner>". The expiry
// is fixed-width time text so it can be compared in SQL.
const leaseOwnerOffset = len(schema.TimeLayout) + 2

// AcquireLease takes or extends the named lease for owner until now+ttl. It
// reports false when another owner holds an unexpired lease. Processes
// sharing the database file use this to keep a single outbox drain.
func (db *DB) AcquireLease(ctx context.Context, name, owner string, now time.Time, ttl time.Duration) (bool, error) {
	value := schema.FormatTime(now.Add(ttl)) + "|" + owner
	res, err := db.conn.ExecContext(ctx, `
		INSERT INTO sync_state (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
		WHERE substr(sync_state.value, 1, ?) <= ? OR substr(sync_state.value, ?) = ?`,
		name, value, len(schema.TimeLayout), schema.FormatTime(now), leaseOwnerOffset, owner)
	if err != nil {
		return false, fmt.Errorf("failed to acquire lease %s: %w", name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lease %s: %w", name, err)
	}
	return n > 0, nil
}

// ReleaseLease drops the named lease if owner still holds it.
func (db *DB) ReleaseLease(ctx context.Context, name, owner string) error {
	_, err := db.conn.ExecContext(ctx,
		`DELETE FROM sync_state WHERE key = ? AND substr(value, ?) = ?`,
		name, leaseOwnerOffset, owner)
	if err != nil {
		return fmt.Errorf("failed to release lease %s: %w", name, err)
	}
	return nil
}
