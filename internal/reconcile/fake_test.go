package reconcile

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/slatenotes/slate/internal/schema"
)

var errOffline = errors.New("connection refused")

// fakeRemote is an in-memory remote store recording every call.
type fakeRemote struct {
	mu      sync.Mutex
	folders map[string]*schema.Folder
	notes   map[string]*schema.Note
	calls   []string

	offline     bool
	failFolders bool
	failNotes   bool
	// failAfter fails every mutation once this many have succeeded; -1 disables.
	failAfter int
	succeeded int

	// block, when set, is waited on by every mutation after signalling
	// entered.
	block   chan struct{}
	entered chan struct{}
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		folders:   make(map[string]*schema.Folder),
		notes:     make(map[string]*schema.Note),
		failAfter: -1,
		entered:   make(chan struct{}, 1),
	}
}

func (f *fakeRemote) mutate(ctx context.Context, call string, apply func()) error {
	if f.block != nil {
		select {
		case f.entered <- struct{}{}:
		default:
		}
		select {
		case <-f.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.offline || (f.failAfter >= 0 && f.succeeded >= f.failAfter) {
		return errOffline
	}
	f.calls = append(f.calls, call)
	f.succeeded++
	apply()
	return nil
}

func (f *fakeRemote) ListFolders(ctx context.Context, since *time.Time) ([]*schema.Folder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.offline || f.failFolders {
		return nil, errOffline
	}
	var out []*schema.Folder
	for _, v := range f.folders {
		if since == nil || v.UpdatedAt.After(*since) {
			out = append(out, v.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeRemote) ListNotes(ctx context.Context, since *time.Time, folderID string) ([]*schema.Note, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.offline || f.failNotes {
		return nil, errOffline
	}
	var out []*schema.Note
	for _, v := range f.notes {
		if (since == nil || v.UpdatedAt.After(*since)) && (folderID == "" || v.FolderID == folderID) {
			out = append(out, v.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeRemote) CreateFolder(ctx context.Context, v *schema.Folder) error {
	return f.mutate(ctx, "create folder "+v.ID, func() {
		if _, ok := f.folders[v.ID]; !ok {
			f.folders[v.ID] = v.Clone()
		}
	})
}

func (f *fakeRemote) UpdateFolder(ctx context.Context, v *schema.Folder) error {
	return f.mutate(ctx, "update folder "+v.ID, func() {
		if _, ok := f.folders[v.ID]; ok {
			f.folders[v.ID] = v.Clone()
		}
	})
}

func (f *fakeRemote) DeleteFolder(ctx context.Context, id string) error {
	return f.mutate(ctx, "delete folder "+id, func() {
		delete(f.folders, id)
		for nid, n := range f.notes {
			if n.FolderID == id {
				delete(f.notes, nid)
			}
		}
	})
}

func (f *fakeRemote) CreateNote(ctx context.Context, v *schema.Note) error {
	return f.mutate(ctx, "create note "+v.ID, func() {
		if _, ok := f.notes[v.ID]; !ok {
			f.notes[v.ID] = v.Clone()
		}
	})
}

func (f *fakeRemote) UpdateNote(ctx context.Context, v *schema.Note) error {
	return f.mutate(ctx, "update note "+v.ID, func() {
		if _, ok := f.notes[v.ID]; ok {
			f.notes[v.ID] = v.Clone()
		}
	})
}

func (f *fakeRemote) DeleteNote(ctx context.Context, id string) error {
	return f.mutate(ctx, "delete note "+id, func() {
		delete(f.notes, id)
	})
}

func (f *fakeRemote) setOffline(v bool) {
	f.mu.Lock()
	f.offline = v
	f.mu.Unlock()
}

func (f *fakeRemote) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}
