package reconcile

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/slatenotes/slate/internal/metrics"
	"github.com/slatenotes/slate/internal/schema"
)

// PullResult reports one pull.
type PullResult struct {
	// Watermark is the value to persist for the next pull. It equals the
	// input watermark unless Advanced is set.
	Watermark *time.Time
	// Advanced is set when both collections were fetched and applied.
	Advanced bool
	// Offline is set when a fetch failed; nothing was applied.
	Offline bool
	Folders int
	Notes   int
	// Failure is the fetch error when Offline is set.
	Failure error
}

func (p PullResult) String() string {
	switch {
	case p.Offline:
		return fmt.Sprintf("offline: %v", p.Failure)
	case p.Advanced:
		return fmt.Sprintf("%d folders, %d notes", p.Folders, p.Notes)
	default:
		return "not run"
	}
}

// Pull fetches folders and notes modified after since and applies them to
// the local store in one transaction. A nil since fetches everything.
//
// Pull does not read or write the persisted watermark. On success the
// returned watermark is the clock reading taken before the fetches started,
// so records modified while the fetch was in flight are seen again next time.
// If either fetch fails nothing is applied and the input watermark is
// returned unchanged with a nil error. Only local storage failures are
// returned as errors.
func (r *Reconciler) Pull(ctx context.Context, since *time.Time) (PullResult, error) {
	start := schema.Stamp(r.now())
	began := time.Now()
	defer func() {
		metrics.SyncDuration.WithLabelValues("pull").Observe(time.Since(began).Seconds())
	}()

	var (
		folders []*schema.Folder
		notes   []*schema.Note
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		folders, err = r.remote.ListFolders(gctx, since)
		return err
	})
	g.Go(func() error {
		var err error
		notes, err = r.remote.ListNotes(gctx, since, "")
		return err
	})
	if err := g.Wait(); err != nil {
		metrics.PullCyclesTotal.WithLabelValues(metrics.ResultOffline).Inc()
		r.logger.Printf("Pull skipped: %v", err)
		return PullResult{Watermark: since, Offline: true, Failure: err}, nil
	}

	if err := r.db.ApplyRemote(ctx, folders, notes); err != nil {
		metrics.PullCyclesTotal.WithLabelValues(metrics.ResultFailed).Inc()
		return PullResult{Watermark: since}, fmt.Errorf("failed to apply pulled records: %w", err)
	}

	metrics.PullCyclesTotal.WithLabelValues(metrics.ResultOK).Inc()
	metrics.PulledRecordsTotal.WithLabelValues(string(schema.EntityFolder)).Add(float64(len(folders)))
	metrics.PulledRecordsTotal.WithLabelValues(string(schema.EntityNote)).Add(float64(len(notes)))
	if len(folders)+len(notes) > 0 {
		r.logger.Printf("Pulled %d folders, %d notes", len(folders), len(notes))
	}

	return PullResult{
		Watermark: &start,
		Advanced:  true,
		Folders:   len(folders),
		Notes:     len(notes),
	}, nil
}

// PullOnce runs Pull from the persisted watermark and persists the new one
// when the pull advanced.
func (r *Reconciler) PullOnce(ctx context.Context) (PullResult, error) {
	since, err := r.db.Watermark(ctx)
	if err != nil {
		return PullResult{}, err
	}

	res, err := r.Pull(ctx, since)
	if err != nil {
		return res, err
	}
	if res.Advanced {
		if err := r.db.SetWatermark(ctx, *res.Watermark); err != nil {
			return res, err
		}
	}
	return res, nil
}
