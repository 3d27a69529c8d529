// Package daemon owns background synchronization for a local store.
//
// The daemon:
//  1. Runs a full sync (push then pull) on start
//  2. Keeps the reconciler's push loop running so local writes drain promptly
//  3. Runs a full sync on a fixed interval
//  4. Optionally listens to the server's change feed and syncs when another
//     client writes
//  5. Handles graceful shutdown
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/slatenotes/slate/internal/reconcile"
)

// Syncer is the part of *reconcile.Reconciler the daemon drives.
type Syncer interface {
	FullSync(ctx context.Context) (reconcile.SyncResult, error)
	Run(ctx context.Context)
	Trigger()
}

// Config holds configuration for the daemon.
type Config struct {
	// SyncInterval is how often to run a full sync.
	SyncInterval time.Duration

	// DebounceInterval is how long to wait after a sync request before
	// running it. Requests arriving in that window share one sync.
	DebounceInterval time.Duration

	// NotifyURL is the websocket change feed. Empty disables it.
	NotifyURL string

	// APIKey is sent with the change feed handshake.
	APIKey string

	// ReconnectDelay is how long the change watcher waits before redialing.
	ReconnectDelay time.Duration

	// Logger for daemon activity
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		SyncInterval:     30 * time.Second,
		DebounceInterval: 250 * time.Millisecond,
		ReconnectDelay:   5 * time.Second,
		Logger:           log.New(os.Stderr, "[daemon] ", log.LstdFlags),
	}
}

// Daemon runs the reconciler in the background.
type Daemon struct {
	syncer Syncer
	config *Config

	intervalMu sync.Mutex
	interval   time.Duration
	reset      chan struct{}
	requests   chan struct{}

	watcher *ChangeWatcher
	syncs   atomic.Int64

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// New creates a daemon around a reconciler. Use Start() to begin syncing.
func New(syncer Syncer, config *Config) (*Daemon, error) {
	if syncer == nil {
		return nil, errors.New("syncer cannot be nil")
	}
	if config == nil {
		config = DefaultConfig()
	}
	defaults := DefaultConfig()
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}
	if config.SyncInterval <= 0 {
		config.SyncInterval = defaults.SyncInterval
	}
	if config.DebounceInterval < 0 {
		config.DebounceInterval = 0
	}
	if config.ReconnectDelay <= 0 {
		config.ReconnectDelay = defaults.ReconnectDelay
	}

	d := &Daemon{
		syncer:   syncer,
		config:   config,
		interval: config.SyncInterval,
		reset:    make(chan struct{}, 1),
		requests: make(chan struct{}, 1),
	}
	d.ctx, d.cancel = context.WithCancel(context.Background())

	if config.NotifyURL != "" {
		w, err := NewChangeWatcher(config.NotifyURL, WatcherOptions{
			APIKey:         config.APIKey,
			ReconnectDelay: config.ReconnectDelay,
		})
		if err != nil {
			d.cancel()
			return nil, err
		}
		d.watcher = w
	}
	return d, nil
}

// Start begins the daemon's operation.
//
// The daemon will:
//  1. Perform a full sync
//  2. Start the push loop
//  3. Periodically run a full sync
//  4. Sync when the change feed reports a remote write
//
// This blocks until ctx is cancelled or Stop is called.
func (d *Daemon) Start(ctx context.Context) error {
	d.config.Logger.Println("Starting daemon")

	if err := d.runSync(); err != nil {
		return fmt.Errorf("initial sync failed: %w", err)
	}

	d.wg.Add(2)
	go func() {
		defer d.wg.Done()
		d.syncer.Run(d.ctx)
	}()
	go d.syncLoop()

	if d.watcher != nil {
		if err := d.watcher.Start(d.ctx); err != nil {
			d.Stop()
			return fmt.Errorf("failed to start change watcher: %w", err)
		}
		d.wg.Add(1)
		go d.watchChanges()
		d.config.Logger.Printf("Listening for changes: %s", d.config.NotifyURL)
	}

	select {
	case <-ctx.Done():
		d.config.Logger.Println("Shutdown signal received")
		return d.Stop()
	case <-d.ctx.Done():
		return nil
	}
}

// Stop gracefully shuts down the daemon. It is safe to call more than once.
func (d *Daemon) Stop() error {
	d.stopOnce.Do(func() {
		d.config.Logger.Println("Stopping daemon")
		d.cancel()

		if d.watcher != nil {
			if err := d.watcher.Stop(); err != nil {
				d.config.Logger.Printf("Error closing change watcher: %v", err)
			}
		}

		d.wg.Wait()
		d.config.Logger.Println("Daemon stopped")
	})
	return nil
}

// RequestSync asks for a full sync. It never blocks; requests made while one
// is pending are merged.
func (d *Daemon) RequestSync() {
	select {
	case d.requests <- struct{}{}:
	default:
	}
}

// PushNow triggers the reconciler's push loop without a pull.
func (d *Daemon) PushNow() {
	d.syncer.Trigger()
}

// SetSyncInterval changes the periodic sync interval. The running ticker is
// reset. Non-positive values are ignored.
func (d *Daemon) SetSyncInterval(interval time.Duration) {
	if interval <= 0 {
		d.config.Logger.Printf("Warning: ignoring sync interval %v", interval)
		return
	}
	d.intervalMu.Lock()
	changed := d.interval != interval
	d.interval = interval
	d.intervalMu.Unlock()

	if !changed {
		return
	}
	d.config.Logger.Printf("Sync interval set to %v", interval)
	select {
	case d.reset <- struct{}{}:
	default:
	}
}

// SyncInterval returns the current periodic sync interval.
func (d *Daemon) SyncInterval() time.Duration {
	d.intervalMu.Lock()
	defer d.intervalMu.Unlock()
	return d.interval
}

// SyncCount returns how many full syncs have completed.
func (d *Daemon) SyncCount() int64 {
	return d.syncs.Load()
}

// syncLoop runs periodic and requested syncs.
func (d *Daemon) syncLoop() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.SyncInterval())
	defer ticker.Stop()

	var debounce <-chan time.Time
	for {
		select {
		case <-d.ctx.Done():
			return

		case <-d.reset:
			ticker.Reset(d.SyncInterval())

		case <-ticker.C:
			d.logSync(d.runSync())

		case <-d.requests:
			if debounce == nil {
				debounce = time.After(d.config.DebounceInterval)
			}

		case <-debounce:
			debounce = nil
			d.logSync(d.runSync())
		}
	}
}

func (d *Daemon) runSync() error {
	res, err := d.syncer.FullSync(d.ctx)
	if err != nil {
		return err
	}
	d.syncs.Add(1)
	if res.Pull.Offline {
		d.config.Logger.Printf("Remote unreachable, will retry: %v", res.Pull.Failure)
	}
	return nil
}

func (d *Daemon) logSync(err error) {
	if err != nil && d.ctx.Err() == nil {
		d.config.Logger.Printf("Error during sync: %v", err)
	}
}

// watchChanges turns change feed events into sync requests.
func (d *Daemon) watchChanges() {
	defer d.wg.Done()

	events, errs := d.watcher.Events(), d.watcher.Errors()
	for {
		select {
		case <-d.ctx.Done():
			return

		case ev, ok := <-events:
			if !ok {
				return
			}
			d.config.Logger.Printf("Remote change: %s %s %s", ev.Entity, ev.Action, ev.ID)
			d.RequestSync()

		case err, ok := <-errs:
			if !ok {
				return
			}
			d.config.Logger.Printf("Change feed error: %v", err)
		}
	}
}
