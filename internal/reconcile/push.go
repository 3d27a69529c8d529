package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/slatenotes/slate/internal/metrics"
	"github.com/slatenotes/slate/internal/schema"
)

// PushResult reports one outbox pass.
type PushResult struct {
	// Coalesced is set when another drain was already running and this call
	// did nothing.
	Coalesced bool
	// Attempted is the number of entries read at the start of the pass.
	Attempted int
	// Pushed is the number of entries confirmed and removed.
	Pushed int
	// Remaining is the outbox depth after the pass.
	Remaining int
	// Failed is the entry the pass stopped at, if any.
	Failed *schema.OutboxEntry
	// Failure is the remote error for Failed.
	Failure error
}

// OK reports whether the pass ran and every entry was confirmed.
func (p PushResult) OK() bool {
	return !p.Coalesced && p.Failure == nil
}

func (p PushResult) String() string {
	switch {
	case p.Coalesced:
		return "coalesced with a running push"
	case p.Failure != nil:
		return fmt.Sprintf("%d/%d pushed, stopped at %s: %v", p.Pushed, p.Attempted, p.Failed, p.Failure)
	case p.Attempted == 0:
		return "nothing to push"
	default:
		return fmt.Sprintf("%d pushed", p.Pushed)
	}
}

// Push drains the outbox once. If a drain is already in flight it returns
// immediately with Coalesced set. Remote failures end the pass and are
// reported in the result; only local storage errors are returned.
func (r *Reconciler) Push(ctx context.Context) (PushResult, error) {
	if !r.drain.TryLock() {
		metrics.PushPassesTotal.WithLabelValues(metrics.ResultCoalesced).Inc()
		return PushResult{Coalesced: true}, nil
	}
	defer r.drain.Unlock()
	return r.drainOutbox(ctx)
}

// drainOutbox must be called with r.drain held.
func (r *Reconciler) drainOutbox(ctx context.Context) (PushResult, error) {
	start := time.Now()
	defer func() {
		metrics.SyncDuration.WithLabelValues("push").Observe(time.Since(start).Seconds())
	}()

	held, err := r.db.AcquireLease(ctx, pushLease, r.owner, r.now(), r.leaseTTL)
	if err != nil {
		return PushResult{}, err
	}
	if !held {
		// Another process is draining the same store.
		metrics.PushPassesTotal.WithLabelValues(metrics.ResultCoalesced).Inc()
		return PushResult{Coalesced: true}, nil
	}
	defer func() {
		if err := r.db.ReleaseLease(context.WithoutCancel(ctx), pushLease, r.owner); err != nil {
			r.logger.Printf("WARNING: %v", err)
		}
	}()
	renewed := r.now()

	entries, err := r.db.ListOutbox(ctx)
	if err != nil {
		return PushResult{}, fmt.Errorf("failed to read outbox: %w", err)
	}

	res := PushResult{Attempted: len(entries)}
	confirmed := make([]string, 0, len(entries))
	for _, e := range entries {
		if now := r.now(); now.Sub(renewed) > r.leaseTTL/2 {
			held, err := r.db.AcquireLease(ctx, pushLease, r.owner, now, r.leaseTTL)
			if err != nil {
				r.logger.Printf("WARNING: %v", err)
			}
			if !held {
				// Lost the lease; stop and let the new holder finish.
				break
			}
			renewed = now
		}
		if err := r.replay(ctx, e); err != nil {
			metrics.PushOpsTotal.WithLabelValues(string(e.Type), string(e.Action), metrics.ResultFailed).Inc()
			res.Failed = e
			res.Failure = err
			break
		}
		metrics.PushOpsTotal.WithLabelValues(string(e.Type), string(e.Action), metrics.ResultOK).Inc()
		confirmed = append(confirmed, e.ID)
	}

	// Confirmed entries are removed even when the pass stopped early or the
	// caller's context was cancelled mid-pass.
	if len(confirmed) > 0 {
		if err := r.db.DeleteOutbox(context.WithoutCancel(ctx), confirmed...); err != nil {
			return res, err
		}
	}
	res.Pushed = len(confirmed)

	if depth, err := r.db.OutboxDepth(context.WithoutCancel(ctx)); err == nil {
		res.Remaining = depth
		metrics.OutboxDepth.Set(float64(depth))
	}

	result := metrics.ResultOK
	if res.Failure != nil {
		result = metrics.ResultFailed
	}
	metrics.PushPassesTotal.WithLabelValues(result).Inc()
	return res, nil
}

// replay performs the single remote call for e.
func (r *Reconciler) replay(ctx context.Context, e *schema.OutboxEntry) error {
	switch {
	case e.Type == schema.EntityFolder && e.Action == schema.ActionCreate:
		return r.remote.CreateFolder(ctx, e.Folder)
	case e.Type == schema.EntityFolder && e.Action == schema.ActionUpdate:
		return r.remote.UpdateFolder(ctx, e.Folder)
	case e.Type == schema.EntityFolder && e.Action == schema.ActionDelete:
		return r.remote.DeleteFolder(ctx, e.EntityID)
	case e.Type == schema.EntityNote && e.Action == schema.ActionCreate:
		return r.remote.CreateNote(ctx, e.Note)
	case e.Type == schema.EntityNote && e.Action == schema.ActionUpdate:
		return r.remote.UpdateNote(ctx, e.Note)
	case e.Type == schema.EntityNote && e.Action == schema.ActionDelete:
		return r.remote.DeleteNote(ctx, e.EntityID)
	}
	return fmt.Errorf("%w: cannot replay %s", schema.ErrInvalid, e)
}
