package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/google/go-cmp/cmp"

	"github.com/slatenotes/slate/internal/mutator"
	"github.com/slatenotes/slate/internal/reconcile"
	"github.com/slatenotes/slate/internal/remote"
	"github.com/slatenotes/slate/internal/remotedb"
	"github.com/slatenotes/slate/internal/schema"
	"github.com/slatenotes/slate/internal/store"
)

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

// setupTestServer runs the API over a SQLite remote store.
func setupTestServer(t *testing.T, apiKey string) (*Server, *httptest.Server, *remotedb.DB) {
	t.Helper()

	db, err := remotedb.Open(context.Background(), remotedb.Config{
		DSN:    filepath.Join(t.TempDir(), "remote.db"),
		Logger: quietLogger(),
	})
	if err != nil {
		t.Fatalf("remotedb.Open() failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	s := New(db, &Config{APIKey: apiKey, Logger: quietLogger()})
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		ts.Close()
		s.hub.Close()
	})
	return s, ts, db
}

func newClient(t *testing.T, url, key string) *remote.Client {
	t.Helper()
	c, err := remote.New(url, remote.Options{APIKey: key})
	if err != nil {
		t.Fatalf("remote.New() failed: %v", err)
	}
	return c
}

func do(t *testing.T, method, url, body string, header http.Header) (int, string) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	if err != nil {
		t.Fatalf("NewRequest() failed: %v", err)
	}
	for k, v := range header {
		req.Header[k] = v
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, url, err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(data)
}

func TestAPIKeyMiddleware(t *testing.T) {
	_, ts, _ := setupTestServer(t, "secret")

	tests := []struct {
		name   string
		header http.Header
		want   int
	}{
		{"matching key", http.Header{"X-Api-Key": {"secret"}}, http.StatusOK},
		{"absent header tolerated", nil, http.StatusOK},
		{"mismatched key", http.Header{"X-Api-Key": {"wrong"}}, http.StatusUnauthorized},
		{"empty key tolerated", http.Header{"X-Api-Key": {""}}, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body := do(t, http.MethodGet, ts.URL+"/api/folders", "", tt.header)
			if code != tt.want {
				t.Errorf("status = %d, want %d (body %s)", code, tt.want, body)
			}
		})
	}
}

func TestCreateFolder_Responses(t *testing.T) {
	_, ts, db := setupTestServer(t, "")

	tests := []struct {
		name string
		body string
		want int
	}{
		{"created", `{"id":"f1","name":"Work","createdAt":"2026-03-01T12:00:00.000Z","updatedAt":"2026-03-01T12:00:00.000Z"}`, http.StatusCreated},
		{"duplicate id is success", `{"id":"f1","name":"Again"}`, http.StatusCreated},
		{"missing id", `{"name":"NoID"}`, http.StatusBadRequest},
		{"bad json", `{"id":`, http.StatusBadRequest},
		{"bad time", `{"id":"f2","createdAt":"yesterday"}`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body := do(t, http.MethodPost, ts.URL+"/api/folders", tt.body, nil)
			if code != tt.want {
				t.Errorf("status = %d, want %d (body %s)", code, tt.want, body)
			}
		})
	}

	f, err := db.GetFolder(context.Background(), "f1")
	if err != nil || f == nil {
		t.Fatalf("GetFolder() = %v, %v", f, err)
	}
	if f.Name != "Work" {
		t.Errorf("Name = %q, want the first create to win", f.Name)
	}
}

func TestUpdateFolder_NullParent(t *testing.T) {
	_, ts, db := setupTestServer(t, "")
	ctx := context.Background()

	parent := "p"
	db.InsertFolder(ctx, &schema.Folder{ID: "f1", Name: "A", ParentID: &parent, CreatedAt: baseTime, UpdatedAt: baseTime})

	code, body := do(t, http.MethodPut, ts.URL+"/api/folders/f1", `{"sortOrder":4}`, nil)
	if code != http.StatusOK || !strings.Contains(body, `"id":"f1"`) {
		t.Fatalf("PUT = %d %s", code, body)
	}
	f, _ := db.GetFolder(ctx, "f1")
	if f.ParentID == nil || f.SortOrder != 4 {
		t.Errorf("folder = %+v, want parent kept and sort order 4", f)
	}

	do(t, http.MethodPut, ts.URL+"/api/folders/f1", `{"parentId":null}`, nil)
	f, _ = db.GetFolder(ctx, "f1")
	if f.ParentID != nil {
		t.Errorf("ParentID = %q, want nil after explicit null", *f.ParentID)
	}

	code, _ = do(t, http.MethodPut, ts.URL+"/api/folders/missing", `{"name":"x"}`, nil)
	if code != http.StatusOK {
		t.Errorf("PUT missing = %d, want 200", code)
	}
}

func TestStatus_NoDatabase(t *testing.T) {
	s := New(nil, &Config{Logger: quietLogger()})
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()
	defer s.hub.Close()

	c := newClient(t, ts.URL, "")
	st, err := c.CheckCompatible(context.Background())
	if err != nil {
		t.Fatalf("CheckCompatible() failed: %v", err)
	}
	if st.DBConfigured {
		t.Error("DBConfigured = true without a database")
	}

	_, err = c.ListFolders(context.Background(), nil)
	var se *remote.StatusError
	if !errors.As(err, &se) || se.Code != http.StatusServiceUnavailable {
		t.Errorf("ListFolders() error = %v, want 503", err)
	}
}

func TestClientServerRoundTrip(t *testing.T) {
	_, ts, rdb := setupTestServer(t, "secret")
	ctx := context.Background()

	local, err := store.Open(filepath.Join(t.TempDir(), "slate.db"))
	if err != nil {
		t.Fatalf("store.Open() failed: %v", err)
	}
	defer local.Close()
	if err := local.InitSchema(ctx); err != nil {
		t.Fatalf("InitSchema() failed: %v", err)
	}

	client := newClient(t, ts.URL, "secret")
	rec := reconcile.New(local, client, reconcile.WithLogger(quietLogger()))
	mut := mutator.New(local, nil, mutator.WithLogger(quietLogger()))

	f, err := mut.CreateFolder(ctx, mutator.FolderInput{ID: "f1", Name: "Work"})
	if err != nil {
		t.Fatalf("CreateFolder() failed: %v", err)
	}
	n, err := mut.CreateNote(ctx, mutator.NoteInput{ID: "n1", FolderID: "f1", Title: "Draft", Content: "<p>hello world</p>"})
	if err != nil {
		t.Fatalf("CreateNote() failed: %v", err)
	}

	res, err := rec.FullSync(ctx)
	if err != nil {
		t.Fatalf("FullSync() failed: %v", err)
	}
	if !res.Push.OK() || res.Push.Pushed != 2 || !res.Pull.Advanced {
		t.Fatalf("FullSync() = %s", res)
	}

	// The pull brought back the server's copies; they must match what was
	// pushed apart from the server-assigned updatedAt.
	gotF, _ := rdb.GetFolder(ctx, "f1")
	localF, _ := local.GetFolder(ctx, "f1")
	if diff := cmp.Diff(localF, gotF); diff != "" {
		t.Errorf("remote folder mismatch (-local +remote):\n%s", diff)
	}
	if gotF.Name != f.Name || !gotF.CreatedAt.Equal(f.CreatedAt) || gotF.UpdatedAt.Before(f.UpdatedAt) {
		t.Errorf("remote folder = %+v, want %+v with updatedAt not earlier", gotF, f)
	}
	gotN, _ := rdb.GetNote(ctx, "n1")
	localN, _ := local.GetNote(ctx, "n1")
	if diff := cmp.Diff(localN, gotN); diff != "" {
		t.Errorf("remote note mismatch (-local +remote):\n%s", diff)
	}
	if gotN.PlainText != n.PlainText || !gotN.CreatedAt.Equal(n.CreatedAt) {
		t.Errorf("remote note = %+v, want %+v", gotN, n)
	}

	title := "Final"
	updated, err := mut.UpdateNote(ctx, "n1", mutator.NotePatch{Title: &title})
	if err != nil {
		t.Fatalf("UpdateNote() failed: %v", err)
	}
	if _, err := rec.Push(ctx); err != nil {
		t.Fatalf("Push() failed: %v", err)
	}
	gotN, _ = rdb.GetNote(ctx, "n1")
	if gotN.Title != "Final" || !gotN.UpdatedAt.Equal(updated.UpdatedAt) {
		t.Errorf("remote note = %+v, want title Final with the client's updatedAt", gotN)
	}

	hits, err := client.Search(ctx, "HELLO")
	if err != nil {
		t.Fatalf("Search() failed: %v", err)
	}
	if len(hits) != 1 || hits[0].Snippet != "<mark>hello</mark> world" {
		t.Errorf("Search() = %+v", hits)
	}

	if err := mut.DeleteFolder(ctx, "f1"); err != nil {
		t.Fatalf("DeleteFolder() failed: %v", err)
	}
	if _, err := rec.Push(ctx); err != nil {
		t.Fatalf("Push() failed: %v", err)
	}
	folders, notes, _ := rdb.Counts(ctx)
	if folders != 0 || notes != 0 {
		t.Errorf("remote counts = %d/%d after folder delete, want 0/0", folders, notes)
	}
	if depth, _ := local.OutboxDepth(ctx); depth != 0 {
		t.Errorf("outbox depth = %d, want 0", depth)
	}
}

// syncClient is one device: a local store with its reconciler and mutators.
type syncClient struct {
	db  *store.DB
	mut *mutator.Mutator
	rec *reconcile.Reconciler
}

func newSyncClient(t *testing.T, url string, now func() time.Time) *syncClient {
	t.Helper()
	ctx := context.Background()

	db, err := store.Open(filepath.Join(t.TempDir(), "slate.db"))
	if err != nil {
		t.Fatalf("store.Open() failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.InitSchema(ctx); err != nil {
		t.Fatalf("InitSchema() failed: %v", err)
	}

	client := newClient(t, url, "")
	return &syncClient{
		db:  db,
		mut: mutator.New(db, nil, mutator.WithClock(now), mutator.WithLogger(quietLogger())),
		rec: reconcile.New(db, client, reconcile.WithClock(now), reconcile.WithLogger(quietLogger())),
	}
}

func TestOfflineCreateReachesClientThatPulledMeanwhile(t *testing.T) {
	_, ts, _ := setupTestServer(t, "")
	ctx := context.Background()

	// A's writes happen while it is offline, before B's last pull.
	a := newSyncClient(t, ts.URL, func() time.Time { return time.Now().Add(-2 * time.Hour) })
	b := newSyncClient(t, ts.URL, func() time.Time { return time.Now().Add(-time.Hour) })

	f, err := a.mut.CreateFolder(ctx, mutator.FolderInput{Name: "Trip"})
	if err != nil {
		t.Fatalf("CreateFolder() failed: %v", err)
	}
	n, err := a.mut.CreateNote(ctx, mutator.NoteInput{FolderID: f.ID, Title: "Packing"})
	if err != nil {
		t.Fatalf("CreateNote() failed: %v", err)
	}

	if res, err := b.rec.FullSync(ctx); err != nil || !res.Pull.Advanced {
		t.Fatalf("B FullSync() = %s, %v", res, err)
	}

	res, err := a.rec.Push(ctx)
	if err != nil || res.Pushed != 2 {
		t.Fatalf("A Push() = %+v, %v", res, err)
	}

	if res, err := b.rec.FullSync(ctx); err != nil || !res.Pull.Advanced {
		t.Fatalf("B FullSync() = %s, %v", res, err)
	}
	if _, err := b.db.GetFolder(ctx, f.ID); err != nil {
		t.Errorf("B GetFolder(%s) failed: %v", f.ID, err)
	}
	got, err := b.db.GetNote(ctx, n.ID)
	if err != nil {
		t.Fatalf("B GetNote(%s) failed: %v", n.ID, err)
	}
	if got.Title != "Packing" || !got.CreatedAt.Equal(n.CreatedAt) {
		t.Errorf("B note = %+v, want %+v", got, n)
	}

	// A picks up its own rows with the server's updatedAt and nothing else.
	if res, err := a.rec.FullSync(ctx); err != nil || !res.Pull.Advanced {
		t.Fatalf("A FullSync() = %s, %v", res, err)
	}
	if depth, _ := a.db.OutboxDepth(ctx); depth != 0 {
		t.Errorf("A outbox depth = %d, want 0", depth)
	}
}

func TestChangeNotifications(t *testing.T) {
	s, ts, _ := setupTestServer(t, "")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/ws"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("Dial() failed: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	for s.hub.ClientCount() == 0 {
		select {
		case <-ctx.Done():
			t.Fatal("subscriber never registered")
		case <-time.After(10 * time.Millisecond):
		}
	}

	code, _ := do(t, http.MethodPost, ts.URL+"/api/notes", `{"id":"n1","folderId":"f1"}`, nil)
	if code != http.StatusCreated {
		t.Fatalf("POST /api/notes = %d", code)
	}

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("Read() failed: %v", err)
	}
	var ev schema.ChangeEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		t.Fatalf("bad event %s: %v", data, err)
	}
	if ev.Type != schema.ChangeEventType || ev.Entity != schema.EntityNote || ev.Action != schema.ActionCreate || ev.ID != "n1" {
		t.Errorf("event = %+v, want note create n1", ev)
	}
}
