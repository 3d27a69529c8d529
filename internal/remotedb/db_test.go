package remotedb

import (
	"context"
	"io"
	"log"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/slatenotes/slate/internal/schema"
)

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// setupTestDB opens a SQLite-backed remote store with a fixed server clock.
func setupTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := Open(context.Background(), Config{
		DSN:    filepath.Join(t.TempDir(), "remote.db"),
		Logger: log.New(io.Discard, "", 0),
	})
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	db.now = func() time.Time { return baseTime.Add(24 * time.Hour) }
	return db
}

func TestParseDialect(t *testing.T) {
	tests := []struct {
		dsn  string
		want Dialect
	}{
		{"/var/lib/slate/remote.db", DialectSQLite},
		{"file:remote.db", DialectSQLite},
		{"libsql://notes-acme.turso.io", DialectLibSQL},
		{"https://notes-acme.turso.io", DialectLibSQL},
		{"postgres://slate:pw@localhost/slate?sslmode=disable", DialectPostgres},
		{"postgresql://localhost/slate", DialectPostgres},
	}

	for _, tt := range tests {
		t.Run(tt.dsn, func(t *testing.T) {
			if got := ParseDialect(tt.dsn); got != tt.want {
				t.Errorf("ParseDialect(%q) = %s, want %s", tt.dsn, got, tt.want)
			}
		})
	}
}

func TestRebind(t *testing.T) {
	pg := &DB{dialect: DialectPostgres}
	lite := &DB{dialect: DialectSQLite}
	query := `UPDATE notes SET title = ?, sort_order = ? WHERE id = ?`

	if got, want := pg.rebind(query), `UPDATE notes SET title = $1, sort_order = $2 WHERE id = $3`; got != want {
		t.Errorf("rebind() = %q, want %q", got, want)
	}
	if got := lite.rebind(query); got != query {
		t.Errorf("sqlite rebind() changed the query: %q", got)
	}
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "remote.db")
	cfg := Config{DSN: path, Logger: log.New(io.Discard, "", 0)}

	for i := 0; i < 2; i++ {
		db, err := Open(context.Background(), cfg)
		if err != nil {
			t.Fatalf("Open() #%d failed: %v", i+1, err)
		}
		if db.Dialect() != DialectSQLite {
			t.Errorf("Dialect() = %s, want sqlite", db.Dialect())
		}
		db.Close()
	}
}

func TestInsertFolder_DuplicateIsNoOp(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	f := &schema.Folder{ID: "f1", Name: "Work", CreatedAt: baseTime, UpdatedAt: baseTime}
	if err := db.InsertFolder(ctx, f); err != nil {
		t.Fatalf("InsertFolder() failed: %v", err)
	}

	replay := f.Clone()
	replay.Name = "Replayed"
	if err := db.InsertFolder(ctx, replay); err != nil {
		t.Fatalf("duplicate InsertFolder() failed: %v", err)
	}

	folders, err := db.ListFolders(ctx, nil)
	if err != nil {
		t.Fatalf("ListFolders() failed: %v", err)
	}
	if len(folders) != 1 {
		t.Fatalf("ListFolders() returned %d rows, want 1", len(folders))
	}
	want := f.Clone()
	want.UpdatedAt = db.now()
	if diff := cmp.Diff(want, folders[0]); diff != "" {
		t.Errorf("folder mismatch (-want +got):\n%s", diff)
	}
}

func TestInsertNote_StampsMissingTimes(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	if err := db.InsertNote(ctx, &schema.Note{ID: "n1", FolderID: "f1", Title: "T"}); err != nil {
		t.Fatalf("InsertNote() failed: %v", err)
	}
	n, err := db.GetNote(ctx, "n1")
	if err != nil || n == nil {
		t.Fatalf("GetNote() = %v, %v", n, err)
	}
	want := db.now()
	if !n.CreatedAt.Equal(want) || !n.UpdatedAt.Equal(want) {
		t.Errorf("timestamps = %v/%v, want server time %v", n.CreatedAt, n.UpdatedAt, want)
	}
}

func TestInsertTimes(t *testing.T) {
	now := baseTime.Add(time.Hour)
	tests := []struct {
		name        string
		created     time.Time
		updated     time.Time
		wantCreated time.Time
		wantUpdated time.Time
	}{
		{"missing times", time.Time{}, time.Time{}, now, now},
		{"offline create raised to server time", baseTime, baseTime, baseTime, now},
		{"client ahead of server kept", baseTime, now.Add(time.Minute), baseTime, now.Add(time.Minute)},
		{"created ahead of everything", now.Add(time.Hour), time.Time{}, now.Add(time.Hour), now.Add(time.Hour)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			created, updated := insertTimes(tt.created, tt.updated, now)
			if !created.Equal(tt.wantCreated) || !updated.Equal(tt.wantUpdated) {
				t.Errorf("insertTimes() = %v, %v; want %v, %v", created, updated, tt.wantCreated, tt.wantUpdated)
			}
		})
	}
}

func TestInsertNote_OfflineCreateVisibleAfterWatermark(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	// Created offline long before another client's last pull, pushed now.
	watermark := db.now().Add(-time.Minute)
	n := &schema.Note{ID: "n1", FolderID: "f1", CreatedAt: baseTime, UpdatedAt: baseTime}
	if err := db.InsertNote(ctx, n); err != nil {
		t.Fatalf("InsertNote() failed: %v", err)
	}

	notes, err := db.ListNotes(ctx, NoteFilter{Since: &watermark})
	if err != nil {
		t.Fatalf("ListNotes() failed: %v", err)
	}
	if len(notes) != 1 || notes[0].ID != "n1" {
		t.Fatalf("ListNotes(since) = %d notes, want n1", len(notes))
	}
	if !notes[0].CreatedAt.Equal(baseTime) {
		t.Errorf("CreatedAt = %v, want the client's %v", notes[0].CreatedAt, baseTime)
	}
}

func TestUpdateFolder(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	parent := "p1"
	db.InsertFolder(ctx, &schema.Folder{ID: "f1", Name: "Work", ParentID: &parent, SortOrder: 3, CreatedAt: baseTime, UpdatedAt: baseTime})

	clientTime := baseTime.Add(time.Hour)
	name := "Office"
	found, err := db.UpdateFolder(ctx, "f1", FolderUpdate{Name: &name, UpdatedAt: &clientTime})
	if err != nil || !found {
		t.Fatalf("UpdateFolder() = %v, %v", found, err)
	}
	f, _ := db.GetFolder(ctx, "f1")
	if f.Name != "Office" || f.SortOrder != 3 || f.ParentID == nil || *f.ParentID != "p1" {
		t.Errorf("folder = %+v, want renamed with other fields kept", f)
	}
	if !f.UpdatedAt.Equal(clientTime) {
		t.Errorf("UpdatedAt = %v, want client time %v", f.UpdatedAt, clientTime)
	}

	// Explicit null parent moves to the root; no updatedAt means server time.
	if _, err := db.UpdateFolder(ctx, "f1", FolderUpdate{SetParent: true}); err != nil {
		t.Fatalf("UpdateFolder() failed: %v", err)
	}
	f, _ = db.GetFolder(ctx, "f1")
	if f.ParentID != nil {
		t.Errorf("ParentID = %q, want nil", *f.ParentID)
	}
	if !f.UpdatedAt.Equal(db.now()) {
		t.Errorf("UpdatedAt = %v, want server time", f.UpdatedAt)
	}

	found, err = db.UpdateFolder(ctx, "missing", FolderUpdate{Name: &name})
	if err != nil || found {
		t.Errorf("UpdateFolder(missing) = %v, %v; want false, nil", found, err)
	}
}

func TestUpdateNote(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	db.InsertNote(ctx, &schema.Note{ID: "n1", FolderID: "f1", Title: "Draft", Content: "c", PlainText: "c", SortOrder: 1, CreatedAt: baseTime, UpdatedAt: baseTime})

	title, folder := "Final", "f2"
	clientTime := baseTime.Add(time.Minute)
	if _, err := db.UpdateNote(ctx, "n1", NoteUpdate{Title: &title, FolderID: &folder, UpdatedAt: &clientTime}); err != nil {
		t.Fatalf("UpdateNote() failed: %v", err)
	}

	got, _ := db.GetNote(ctx, "n1")
	want := &schema.Note{ID: "n1", FolderID: "f2", Title: "Final", Content: "c", PlainText: "c", SortOrder: 1, CreatedAt: baseTime, UpdatedAt: clientTime}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("note mismatch (-want +got):\n%s", diff)
	}
}

func TestListNotes_Filters(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	for _, n := range []*schema.Note{
		{ID: "a", FolderID: "f1", SortOrder: 2, CreatedAt: baseTime, UpdatedAt: baseTime},
		{ID: "b", FolderID: "f1", SortOrder: 1, CreatedAt: baseTime, UpdatedAt: baseTime.Add(2 * time.Hour)},
		{ID: "c", FolderID: "f2", SortOrder: 0, CreatedAt: baseTime, UpdatedAt: baseTime.Add(2 * time.Hour)},
	} {
		db.now = func() time.Time { return n.UpdatedAt }
		if err := db.InsertNote(ctx, n); err != nil {
			t.Fatalf("InsertNote() failed: %v", err)
		}
	}

	since := baseTime.Add(time.Hour)
	tests := []struct {
		name   string
		filter NoteFilter
		want   []string
	}{
		{"all by sort order", NoteFilter{}, []string{"c", "b", "a"}},
		{"folder", NoteFilter{FolderID: "f1"}, []string{"b", "a"}},
		{"since", NoteFilter{Since: &since}, []string{"c", "b"}},
		{"since and folder", NoteFilter{Since: &since, FolderID: "f1"}, []string{"b"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			notes, err := db.ListNotes(ctx, tt.filter)
			if err != nil {
				t.Fatalf("ListNotes() failed: %v", err)
			}
			var got []string
			for _, n := range notes {
				got = append(got, n.ID)
			}
			if !cmp.Equal(got, tt.want) {
				t.Errorf("ListNotes() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDeleteFolder_Cascades(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	db.InsertFolder(ctx, &schema.Folder{ID: "f1", Name: "A"})
	db.InsertFolder(ctx, &schema.Folder{ID: "f2", Name: "B"})
	db.InsertNote(ctx, &schema.Note{ID: "n1", FolderID: "f1"})
	db.InsertNote(ctx, &schema.Note{ID: "n2", FolderID: "f2"})

	if err := db.DeleteFolder(ctx, "f1"); err != nil {
		t.Fatalf("DeleteFolder() failed: %v", err)
	}
	folders, notes, err := db.Counts(ctx)
	if err != nil {
		t.Fatalf("Counts() failed: %v", err)
	}
	if folders != 1 || notes != 1 {
		t.Errorf("Counts() = %d folders, %d notes; want 1, 1", folders, notes)
	}
	if n, _ := db.GetNote(ctx, "n1"); n != nil {
		t.Error("note of deleted folder survived")
	}

	if err := db.DeleteNote(ctx, "missing"); err != nil {
		t.Errorf("DeleteNote(missing) failed: %v", err)
	}
}

func TestSearchNotes(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	for _, n := range []*schema.Note{
		{ID: "n1", FolderID: "f1", Title: "Shopping", PlainText: "Buy MILK and eggs", CreatedAt: baseTime, UpdatedAt: baseTime},
		{ID: "n2", FolderID: "f1", Title: "Milk report", PlainText: "quarterly numbers", CreatedAt: baseTime, UpdatedAt: baseTime.Add(time.Hour)},
		{ID: "n3", FolderID: "f1", Title: "Other", PlainText: "nothing", CreatedAt: baseTime, UpdatedAt: baseTime},
	} {
		db.now = func() time.Time { return n.UpdatedAt }
		db.InsertNote(ctx, n)
	}

	hits, err := db.SearchNotes(ctx, "milk", 10)
	if err != nil {
		t.Fatalf("SearchNotes() failed: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("SearchNotes() returned %d hits, want 2", len(hits))
	}
	if hits[0].ID != "n2" || hits[1].ID != "n1" {
		t.Errorf("hit order = %s, %s; want n2, n1", hits[0].ID, hits[1].ID)
	}
	if want := "Buy <mark>MILK</mark> and eggs"; hits[1].Snippet != want {
		t.Errorf("Snippet = %q, want %q", hits[1].Snippet, want)
	}

	empty, err := db.SearchNotes(ctx, " ", 10)
	if err != nil || len(empty) != 0 {
		t.Errorf("SearchNotes(blank) = %v, %v", empty, err)
	}
}

func TestSnippet(t *testing.T) {
	long := "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa needle bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
	got := Snippet(long, "NEEDLE")
	want := "...aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa <mark>needle</mark> bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb..."
	if got != want {
		t.Errorf("Snippet() = %q, want %q", got, want)
	}
	if got := Snippet("short text", "zzz"); got != "short text" {
		t.Errorf("Snippet(no match) = %q", got)
	}
}
