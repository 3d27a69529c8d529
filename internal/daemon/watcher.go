package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/slatenotes/slate/internal/remote"
	"github.com/slatenotes/slate/internal/schema"
)

// NotifyURL derives the change feed address from a server base URL.
func NotifyURL(baseURL string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("failed to parse server URL: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported server URL scheme %q", u.Scheme)
	}
	return u.JoinPath("api", "ws").String(), nil
}

// WatcherOptions configures a ChangeWatcher.
type WatcherOptions struct {
	APIKey         string
	ReconnectDelay time.Duration
}

// ChangeWatcher follows the server's change feed, redialing after failures.
type ChangeWatcher struct {
	url    string
	opts   WatcherOptions
	events chan schema.ChangeEvent
	errors chan error
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	running   bool
	connected bool
}

// NewChangeWatcher creates a watcher for a ws:// or wss:// URL. It must be
// started with Start() before it will emit events.
func NewChangeWatcher(rawURL string, opts WatcherOptions) (*ChangeWatcher, error) {
	if !strings.HasPrefix(rawURL, "ws://") && !strings.HasPrefix(rawURL, "wss://") {
		return nil, fmt.Errorf("change feed URL must be ws:// or wss://, got %q", rawURL)
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = 5 * time.Second
	}
	return &ChangeWatcher{
		url:    rawURL,
		opts:   opts,
		events: make(chan schema.ChangeEvent, 100),
		errors: make(chan error, 10),
	}, nil
}

// Start begins following the feed in the background.
func (w *ChangeWatcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return errors.New("watcher already running")
	}
	ctx, w.cancel = context.WithCancel(ctx)
	w.running = true

	w.wg.Add(1)
	go w.loop(ctx)
	return nil
}

// Stop closes the connection and waits for the watcher to exit. The Events()
// and Errors() channels are closed afterwards.
func (w *ChangeWatcher) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	w.mu.Unlock()

	w.cancel()
	w.wg.Wait()

	close(w.events)
	close(w.errors)
	return nil
}

// Events returns the channel of change notifications.
func (w *ChangeWatcher) Events() <-chan schema.ChangeEvent {
	return w.events
}

// Errors returns the channel of dial and read failures.
func (w *ChangeWatcher) Errors() <-chan error {
	return w.errors
}

// IsRunning returns true if the watcher is currently running.
func (w *ChangeWatcher) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// Connected reports whether the feed connection is currently open.
func (w *ChangeWatcher) Connected() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.connected
}

func (w *ChangeWatcher) setConnected(v bool) {
	w.mu.Lock()
	w.connected = v
	w.mu.Unlock()
}

func (w *ChangeWatcher) loop(ctx context.Context) {
	defer w.wg.Done()

	for {
		err := w.follow(ctx)
		if ctx.Err() != nil {
			return
		}
		w.report(ctx, err)

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.opts.ReconnectDelay):
		}
	}
}

// follow holds one connection until it fails.
func (w *ChangeWatcher) follow(ctx context.Context) error {
	var header http.Header
	if w.opts.APIKey != "" {
		header = http.Header{remote.APIKeyHeader: {w.opts.APIKey}}
	}

	conn, _, err := websocket.Dial(ctx, w.url, &websocket.DialOptions{HTTPHeader: header})
	if err != nil {
		return fmt.Errorf("failed to dial change feed: %w", err)
	}
	defer conn.CloseNow()

	w.setConnected(true)
	defer w.setConnected(false)

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return fmt.Errorf("change feed closed: %w", err)
		}

		var ev schema.ChangeEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			w.report(ctx, fmt.Errorf("failed to decode change event: %w", err))
			continue
		}
		if ev.Type != schema.ChangeEventType {
			continue
		}

		select {
		case w.events <- ev:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (w *ChangeWatcher) report(ctx context.Context, err error) {
	select {
	case w.errors <- err:
	case <-ctx.Done():
	default:
	}
}
