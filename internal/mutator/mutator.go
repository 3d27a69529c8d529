// Package mutator implements the domain operations that change folders and
// notes. Each operation writes the record and its outbox entry in one local
// transaction and then nudges the reconciler; it never waits on the network.
package mutator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/slatenotes/slate/internal/schema"
	"github.com/slatenotes/slate/internal/store"
)

// ErrFolderCycle is returned when a folder would become its own ancestor.
var ErrFolderCycle = errors.New("folder cycle")

// Trigger requests a push. Implementations must not block.
type Trigger interface {
	Trigger()
}

// Projector derives the plain-text projection of note content.
type Projector func(content string) string

// Mutator is the only writer of folders, notes and the outbox.
type Mutator struct {
	db      *store.DB
	trigger Trigger
	now     func() time.Time
	logger  *log.Logger
	project Projector
}

// Option configures a Mutator.
type Option func(*Mutator)

// WithClock overrides the clock used to stamp createdAt and updatedAt.
func WithClock(now func() time.Time) Option {
	return func(m *Mutator) { m.now = now }
}

// WithLogger sets the logger.
func WithLogger(logger *log.Logger) Option {
	return func(m *Mutator) { m.logger = logger }
}

// WithProjector replaces the default plain-text projector.
func WithProjector(p Projector) Option {
	return func(m *Mutator) { m.project = p }
}

// New creates a Mutator over db. trigger may be nil, in which case queued
// entries wait for the next explicit sync.
func New(db *store.DB, trigger Trigger, opts ...Option) *Mutator {
	m := &Mutator{
		db:      db,
		trigger: trigger,
		now:     time.Now,
		project: PlainText,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = log.New(os.Stderr, "[mutate] ", log.LstdFlags)
	}
	return m
}

func (m *Mutator) stamp() time.Time {
	return schema.Stamp(m.now())
}

// commit runs fn in a transaction and triggers a push once it commits.
func (m *Mutator) commit(ctx context.Context, fn func(tx *store.Tx) error) error {
	if err := m.db.Update(ctx, fn); err != nil {
		return err
	}
	if m.trigger != nil {
		m.trigger.Trigger()
	}
	return nil
}

// checkParent rejects a parent assignment that would put id on its own
// ancestor chain. Unknown parents are accepted.
func checkParent(ctx context.Context, tx *store.Tx, id string, parentID *string) error {
	if parentID == nil || *parentID == "" {
		return nil
	}
	if *parentID == id {
		return fmt.Errorf("%w: folder %s cannot be its own parent", ErrFolderCycle, id)
	}

	ancestors, err := tx.FolderAncestors(ctx, *parentID)
	if err != nil {
		return err
	}
	for _, a := range ancestors {
		if a == id {
			return fmt.Errorf("%w: folder %s is an ancestor of %s", ErrFolderCycle, id, *parentID)
		}
	}
	return nil
}
