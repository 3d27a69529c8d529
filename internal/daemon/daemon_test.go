package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/slatenotes/slate/internal/reconcile"
	"github.com/slatenotes/slate/internal/schema"
)

type fakeSyncer struct {
	mu       sync.Mutex
	syncs    int
	err      error
	triggers atomic.Int64
	running  atomic.Bool
}

func (f *fakeSyncer) FullSync(ctx context.Context) (reconcile.SyncResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return reconcile.SyncResult{}, f.err
	}
	f.syncs++
	return reconcile.SyncResult{}, nil
}

func (f *fakeSyncer) Run(ctx context.Context) {
	f.running.Store(true)
	<-ctx.Done()
	f.running.Store(false)
}

func (f *fakeSyncer) Trigger() { f.triggers.Add(1) }

func (f *fakeSyncer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.syncs
}

func testConfig() *Config {
	config := DefaultConfig()
	config.SyncInterval = time.Hour
	config.DebounceInterval = 20 * time.Millisecond
	config.ReconnectDelay = 20 * time.Millisecond
	config.Logger = log.New(io.Discard, "", 0)
	return config
}

// startDaemon runs Start in the background and stops it on cleanup.
func startDaemon(t *testing.T, f *fakeSyncer, config *Config) *Daemon {
	t.Helper()

	d, err := New(f, config)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Start(ctx) }()

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("Start() returned %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Error("daemon did not stop")
		}
	})
	waitFor(t, "initial sync", func() bool { return f.count() >= 1 })
	return d
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		syncer  Syncer
		notify  string
		wantErr bool
	}{
		{"valid configuration", &fakeSyncer{}, "", false},
		{"with change feed", &fakeSyncer{}, "ws://localhost:8080/api/ws", false},
		{"nil syncer", nil, "", true},
		{"http change feed", &fakeSyncer{}, "http://localhost:8080/api/ws", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := testConfig()
			config.NotifyURL = tt.notify
			d, err := New(tt.syncer, config)
			if (err != nil) != tt.wantErr {
				t.Errorf("New() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if d != nil {
				d.Stop()
			}
		})
	}
}

func TestNew_Defaults(t *testing.T) {
	d, err := New(&fakeSyncer{}, &Config{})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	defer d.Stop()

	if d.SyncInterval() != DefaultConfig().SyncInterval {
		t.Errorf("SyncInterval() = %v, want default", d.SyncInterval())
	}
	if d.config.Logger == nil {
		t.Error("Logger not defaulted")
	}
}

func TestDaemon_InitialSyncFailure(t *testing.T) {
	f := &fakeSyncer{err: errors.New("disk full")}
	d, err := New(f, testConfig())
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	defer d.Stop()

	if err := d.Start(context.Background()); err == nil {
		t.Error("Start() succeeded, want initial sync error")
	}
}

func TestDaemon_RunsPushLoop(t *testing.T) {
	f := &fakeSyncer{}
	d := startDaemon(t, f, testConfig())

	waitFor(t, "push loop", f.running.Load)
	d.PushNow()
	if f.triggers.Load() != 1 {
		t.Errorf("triggers = %d, want 1", f.triggers.Load())
	}
}

func TestDaemon_RequestSyncCoalesces(t *testing.T) {
	f := &fakeSyncer{}
	config := testConfig()
	config.DebounceInterval = 50 * time.Millisecond
	d := startDaemon(t, f, config)

	for i := 0; i < 5; i++ {
		d.RequestSync()
	}
	waitFor(t, "requested sync", func() bool { return f.count() >= 2 })

	time.Sleep(150 * time.Millisecond)
	if got := f.count(); got != 2 {
		t.Errorf("syncs = %d, want 2 (initial plus one coalesced request)", got)
	}
	if d.SyncCount() != 2 {
		t.Errorf("SyncCount() = %d, want 2", d.SyncCount())
	}
}

func TestDaemon_PeriodicSync(t *testing.T) {
	f := &fakeSyncer{}
	config := testConfig()
	config.SyncInterval = 10 * time.Millisecond
	startDaemon(t, f, config)

	waitFor(t, "periodic syncs", func() bool { return f.count() >= 4 })
}

func TestDaemon_SetSyncInterval(t *testing.T) {
	f := &fakeSyncer{}
	d := startDaemon(t, f, testConfig())

	d.SetSyncInterval(0)
	if d.SyncInterval() != time.Hour {
		t.Errorf("SyncInterval() = %v after invalid value, want 1h", d.SyncInterval())
	}

	d.SetSyncInterval(10 * time.Millisecond)
	waitFor(t, "syncs after interval change", func() bool { return f.count() >= 3 })
}

func TestNotifyURL(t *testing.T) {
	tests := []struct {
		base    string
		want    string
		wantErr bool
	}{
		{"http://localhost:8080", "ws://localhost:8080/api/ws", false},
		{"https://notes.example.com/", "wss://notes.example.com/api/ws", false},
		{"https://example.com/slate", "wss://example.com/slate/api/ws", false},
		{"ftp://example.com", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.base, func(t *testing.T) {
			got, err := NotifyURL(tt.base)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NotifyURL() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("NotifyURL() = %q, want %q", got, tt.want)
			}
		})
	}
}

// feedServer serves a change feed that sends one event per connection and
// then closes it if closeAfter is set.
type feedServer struct {
	accepts    atomic.Int64
	apiKey     atomic.Value
	closeAfter bool
}

func (s *feedServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.apiKey.Store(r.Header.Get("X-API-Key"))
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	defer conn.CloseNow()
	n := s.accepts.Add(1)

	ev := schema.ChangeEvent{
		Type:      schema.ChangeEventType,
		Entity:    schema.EntityNote,
		Action:    schema.ActionUpdate,
		ID:        "n" + strings.Repeat("1", int(n)),
		Timestamp: schema.Now(),
	}
	data, _ := json.Marshal(ev)
	if err := conn.Write(r.Context(), websocket.MessageText, data); err != nil {
		return
	}
	if s.closeAfter {
		conn.Close(websocket.StatusGoingAway, "restart")
		return
	}
	conn.Read(r.Context())
}

func wsURL(ts *httptest.Server) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http")
}

func TestDaemon_ChangeFeedRequestsSync(t *testing.T) {
	feed := &feedServer{}
	ts := httptest.NewServer(feed)
	defer ts.Close()

	f := &fakeSyncer{}
	config := testConfig()
	config.NotifyURL = wsURL(ts)
	config.APIKey = "secret"
	startDaemon(t, f, config)

	waitFor(t, "sync from change feed", func() bool { return f.count() >= 2 })
	if got, _ := feed.apiKey.Load().(string); got != "secret" {
		t.Errorf("handshake API key = %q, want secret", got)
	}
}

func TestChangeWatcher_Reconnects(t *testing.T) {
	feed := &feedServer{closeAfter: true}
	ts := httptest.NewServer(feed)
	defer ts.Close()

	w, err := NewChangeWatcher(wsURL(ts), WatcherOptions{ReconnectDelay: 10 * time.Millisecond})
	if err != nil {
		t.Fatalf("NewChangeWatcher() failed: %v", err)
	}
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}

	var ids []string
	timeout := time.After(5 * time.Second)
	for len(ids) < 2 {
		select {
		case ev := <-w.Events():
			ids = append(ids, ev.ID)
		case <-w.Errors():
		case <-timeout:
			t.Fatalf("got events %v, want two connections' worth", ids)
		}
	}
	if ids[0] != "n1" || ids[1] != "n11" {
		t.Errorf("events = %v, want [n1 n11]", ids)
	}

	if err := w.Stop(); err != nil {
		t.Fatalf("Stop() failed: %v", err)
	}
	if w.IsRunning() {
		t.Error("IsRunning() = true after Stop")
	}
	if _, ok := <-w.Events(); ok {
		t.Error("Events() still open after Stop")
	}
}

func TestChangeWatcher_DoubleStart(t *testing.T) {
	w, err := NewChangeWatcher("ws://127.0.0.1:1/api/ws", WatcherOptions{ReconnectDelay: time.Hour})
	if err != nil {
		t.Fatalf("NewChangeWatcher() failed: %v", err)
	}
	defer w.Stop()

	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	if err := w.Start(context.Background()); err == nil {
		t.Error("second Start() succeeded, want error")
	}
}
