package reconcile

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/slatenotes/slate/internal/schema"
	"github.com/slatenotes/slate/internal/store"
)

// Remote is the remote store surface the reconciler needs. *remote.Client
// implements it.
type Remote interface {
	ListFolders(ctx context.Context, since *time.Time) ([]*schema.Folder, error)
	ListNotes(ctx context.Context, since *time.Time, folderID string) ([]*schema.Note, error)
	CreateFolder(ctx context.Context, f *schema.Folder) error
	UpdateFolder(ctx context.Context, f *schema.Folder) error
	DeleteFolder(ctx context.Context, id string) error
	CreateNote(ctx context.Context, n *schema.Note) error
	UpdateNote(ctx context.Context, n *schema.Note) error
	DeleteNote(ctx context.Context, id string) error
}

// Reconciler owns push and pull for one local store.
type Reconciler struct {
	db     *store.DB
	remote Remote
	now    func() time.Time
	logger *log.Logger

	// drain is held for the whole of an outbox pass; the lease row keeps
	// other processes on the same store out for the same span.
	drain    sync.Mutex
	owner    string
	leaseTTL time.Duration
	trigger  chan struct{}
}

// pushLease names the sync_state row guarding the outbox drain.
const pushLease = "push_lease"

// DefaultLeaseTTL bounds how long a crashed process can block other drains.
const DefaultLeaseTTL = 2 * time.Minute

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithClock overrides the clock used for watermarks.
func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) { r.now = now }
}

// WithLeaseTTL overrides DefaultLeaseTTL.
func WithLeaseTTL(ttl time.Duration) Option {
	return func(r *Reconciler) {
		if ttl > 0 {
			r.leaseTTL = ttl
		}
	}
}

// WithLogger sets the logger. A nil logger keeps the default.
func WithLogger(logger *log.Logger) Option {
	return func(r *Reconciler) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// New creates a Reconciler.
//
// The store must have its schema initialized.
//
// Example:
//
//	client, _ := remote.New("https://notes.example.com", remote.Options{APIKey: key})
//	rec := reconcile.New(db, client)
//	go rec.Run(ctx)
//	m := mutator.New(db, rec)
func New(db *store.DB, remote Remote, opts ...Option) *Reconciler {
	r := &Reconciler{
		db:      db,
		remote:  remote,
		now:      time.Now,
		logger:   log.New(os.Stderr, "[sync] ", log.LstdFlags),
		owner:    schema.NewID(),
		leaseTTL: DefaultLeaseTTL,
		trigger:  make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Trigger requests a push pass. It never blocks; triggers that arrive while
// a request is already pending are merged into it.
func (r *Reconciler) Trigger() {
	select {
	case r.trigger <- struct{}{}:
	default:
	}
}

// Run drains the outbox each time Trigger fires until ctx is done. Storage
// errors are logged and the loop carries on.
func (r *Reconciler) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.trigger:
			r.drain.Lock()
			res, err := r.drainOutbox(ctx)
			r.drain.Unlock()
			if err != nil {
				r.logger.Printf("WARNING: push failed: %v", err)
				continue
			}
			r.logPush(res)
		}
	}
}

// SyncResult reports one FullSync.
type SyncResult struct {
	Push PushResult
	Pull PullResult
}

// FullSync waits for any in-flight drain, pushes until the outbox is empty or
// an entry fails, then pulls. This is the start-up and periodic sync.
func (r *Reconciler) FullSync(ctx context.Context) (SyncResult, error) {
	var res SyncResult

	r.drain.Lock()
	push, err := r.drainOutbox(ctx)
	r.drain.Unlock()
	if err != nil {
		return res, err
	}
	res.Push = push
	r.logPush(push)

	pull, err := r.PullOnce(ctx)
	if err != nil {
		return res, err
	}
	res.Pull = pull
	return res, nil
}

func (r *Reconciler) logPush(res PushResult) {
	switch {
	case res.Failure != nil:
		r.logger.Printf("Push stopped at %s after %d/%d: %v", res.Failed, res.Pushed, res.Attempted, res.Failure)
	case res.Pushed > 0:
		r.logger.Printf("Pushed %d outbox entries", res.Pushed)
	}
}

// String renders the result for status output.
func (s SyncResult) String() string {
	return fmt.Sprintf("push: %s; pull: %s", s.Push, s.Pull)
}
