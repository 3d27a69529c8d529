// Package loadtest simulates many clients syncing against one server.
//
// Each simulated client owns its own local store. Clients write concurrently,
// pushing after every write, then all of them pull. The run checks that every
// client ends up with every note written during the run and records push
// and pull latency.
package loadtest

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/slatenotes/slate/internal/mutator"
	"github.com/slatenotes/slate/internal/reconcile"
	"github.com/slatenotes/slate/internal/store"
)

// Config describes a run.
type Config struct {
	// Clients is the number of simulated clients.
	Clients int
	// NotesPerClient is how many notes each client writes.
	NotesPerClient int
	// Dir holds the client stores. It must exist.
	Dir string
	// NewRemote returns the remote for one client.
	NewRemote func() (reconcile.Remote, error)
	// Logger for run progress. Defaults to a discarding logger.
	Logger *log.Logger
}

// LatencyStats captures performance metrics from load tests.
type LatencyStats struct {
	Min   time.Duration
	Max   time.Duration
	Mean  time.Duration
	P50   time.Duration // Median
	P95   time.Duration
	P99   time.Duration
	Count int
}

// Report is the outcome of a run.
type Report struct {
	Clients int
	Written int
	Push    *LatencyStats
	Pull    *LatencyStats
	// Errors counts failed pushes and pulls.
	Errors int
	// Missing counts notes absent from a client after the final pull,
	// summed over clients. Zero means the run converged.
	Missing int
	Elapsed time.Duration
}

// Converged reports whether every client saw every note.
func (r *Report) Converged() bool {
	return r.Missing == 0 && r.Errors == 0
}

type client struct {
	id  int
	db  *store.DB
	mut *mutator.Mutator
	rec *reconcile.Reconciler
}

// Run executes the load test described by cfg.
func Run(ctx context.Context, cfg Config) (*Report, error) {
	if cfg.Clients <= 0 || cfg.NotesPerClient <= 0 {
		return nil, fmt.Errorf("clients and notes per client must be positive")
	}
	if cfg.NewRemote == nil {
		return nil, fmt.Errorf("NewRemote is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	clients := make([]*client, 0, cfg.Clients)
	defer func() {
		for _, c := range clients {
			_ = c.db.Close()
		}
	}()
	for i := 0; i < cfg.Clients; i++ {
		c, err := openClient(ctx, cfg, i, logger)
		if err != nil {
			return nil, err
		}
		clients = append(clients, c)
	}

	start := time.Now()
	report := &Report{Clients: cfg.Clients}

	// Write phase: every client writes and pushes concurrently.
	var mu sync.Mutex
	var pushes []time.Duration
	written := make(map[string]bool)
	errs := 0

	var wg sync.WaitGroup
	for _, c := range clients {
		wg.Add(1)
		go func(c *client) {
			defer wg.Done()
			ids, durations, failed := c.write(ctx, cfg.NotesPerClient)

			mu.Lock()
			defer mu.Unlock()
			pushes = append(pushes, durations...)
			errs += failed
			for _, id := range ids {
				written[id] = true
			}
		}(c)
	}
	wg.Wait()
	logger.Printf("Write phase done: %d notes, %d errors", len(written), errs)

	// Read phase: every client pulls concurrently and checks what it has.
	var pulls []time.Duration
	missing := 0
	for _, c := range clients {
		wg.Add(1)
		go func(c *client) {
			defer wg.Done()
			t := time.Now()
			res, err := c.rec.PullOnce(ctx)
			elapsed := time.Since(t)

			absent := 0
			if err == nil && res.Advanced {
				for id := range written {
					if _, err := c.db.GetNote(ctx, id); err != nil {
						absent++
					}
				}
			}

			mu.Lock()
			defer mu.Unlock()
			pulls = append(pulls, elapsed)
			if err != nil || !res.Advanced {
				errs++
				absent = len(written)
			}
			missing += absent
		}(c)
	}
	wg.Wait()

	report.Written = len(written)
	report.Push = computeLatencyStats(pushes)
	report.Pull = computeLatencyStats(pulls)
	report.Errors = errs
	report.Missing = missing
	report.Elapsed = time.Since(start)
	return report, nil
}

func openClient(ctx context.Context, cfg Config, i int, logger *log.Logger) (*client, error) {
	db, err := store.Open(filepath.Join(cfg.Dir, fmt.Sprintf("client-%03d.db", i)))
	if err != nil {
		return nil, fmt.Errorf("failed to open client %d store: %w", i, err)
	}
	if err := db.InitSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize client %d store: %w", i, err)
	}
	remote, err := cfg.NewRemote()
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create client %d remote: %w", i, err)
	}

	quiet := log.New(io.Discard, "", 0)
	return &client{
		id:  i,
		db:  db,
		mut: mutator.New(db, nil, mutator.WithLogger(quiet)),
		rec: reconcile.New(db, remote, reconcile.WithLogger(quiet)),
	}, nil
}

// write creates one folder and n notes, pushing after each write. It returns
// the ids of the notes that reached the server.
func (c *client) write(ctx context.Context, n int) ([]string, []time.Duration, int) {
	var ids []string
	var durations []time.Duration
	failed := 0

	f, err := c.mut.CreateFolder(ctx, mutator.FolderInput{Name: fmt.Sprintf("Load client %d", c.id)})
	if err != nil {
		return nil, nil, 1
	}
	for i := 0; i < n; i++ {
		note, err := c.mut.CreateNote(ctx, mutator.NoteInput{
			FolderID: f.ID,
			Title:    fmt.Sprintf("Client %d note %d", c.id, i),
			Content:  fmt.Sprintf("<p>load test note %d from client %d</p>", i, c.id),
		})
		if err != nil {
			failed++
			continue
		}

		t := time.Now()
		res, err := c.rec.Push(ctx)
		durations = append(durations, time.Since(t))
		if err != nil || !res.OK() {
			failed++
			continue
		}
		ids = append(ids, note.ID)
	}
	return ids, durations, failed
}

// computeLatencyStats calculates statistics from a slice of durations.
func computeLatencyStats(durations []time.Duration) *LatencyStats {
	if len(durations) == 0 {
		return &LatencyStats{}
	}

	sorted := make([]time.Duration, len(durations))
	copy(sorted, durations)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i] < sorted[j]
	})

	var sum time.Duration
	for _, d := range durations {
		sum += d
	}

	return &LatencyStats{
		Min:   sorted[0],
		Max:   sorted[len(sorted)-1],
		Mean:  sum / time.Duration(len(durations)),
		P50:   sorted[len(sorted)*50/100],
		P95:   sorted[len(sorted)*95/100],
		P99:   sorted[len(sorted)*99/100],
		Count: len(durations),
	}
}

// Fprint writes the statistics under a heading.
func (s *LatencyStats) Fprint(w io.Writer, heading string) {
	fmt.Fprintf(w, "%s:\n", heading)
	fmt.Fprintf(w, "  Count:         %d\n", s.Count)
	fmt.Fprintf(w, "  Min:           %v\n", s.Min)
	fmt.Fprintf(w, "  P50 (Median):  %v\n", s.P50)
	fmt.Fprintf(w, "  Mean:          %v\n", s.Mean)
	fmt.Fprintf(w, "  P95:           %v\n", s.P95)
	fmt.Fprintf(w, "  P99:           %v\n", s.P99)
	fmt.Fprintf(w, "  Max:           %v\n", s.Max)
}

// PrintStats writes the report to stdout.
func (r *Report) PrintStats() {
	fmt.Fprintf(os.Stdout, "Clients: %d, notes written: %d, errors: %d, missing: %d, elapsed: %v\n",
		r.Clients, r.Written, r.Errors, r.Missing, r.Elapsed.Round(time.Millisecond))
	r.Push.Fprint(os.Stdout, "Push latency")
	r.Pull.Fprint(os.Stdout, "Pull latency")
}
