// Package export writes and reads JSONL backups of a local store.
//
// Each line is one record:
//
//	{"kind":"folder","folder":{...}}
//	{"kind":"note","note":{...}}
//
// Folders come first, parents before children, so an import never sees a
// child before its parent.
package export

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/slatenotes/slate/internal/mutator"
	"github.com/slatenotes/slate/internal/schema"
	"github.com/slatenotes/slate/internal/store"
)

// Record kinds.
const (
	KindFolder = "folder"
	KindNote   = "note"
)

// Record is one JSONL line.
type Record struct {
	Kind   string         `json:"kind"`
	Folder *schema.Folder `json:"folder,omitempty"`
	Note   *schema.Note   `json:"note,omitempty"`
}

// Result contains statistics about an export or import.
type Result struct {
	Folders int
	Notes   int
	Skipped int
}

func (r Result) String() string {
	return fmt.Sprintf("%d folders, %d notes, %d skipped", r.Folders, r.Notes, r.Skipped)
}

// Export writes every folder and note in db to w.
func Export(ctx context.Context, db *store.DB, w io.Writer) (Result, error) {
	var res Result

	folders, err := db.ListFolders(ctx)
	if err != nil {
		return res, fmt.Errorf("failed to list folders: %w", err)
	}
	notes, err := db.ListNotesModifiedSince(ctx, time.Time{})
	if err != nil {
		return res, fmt.Errorf("failed to list notes: %w", err)
	}
	sort.SliceStable(notes, func(i, j int) bool {
		return notes[i].CreatedAt.Before(notes[j].CreatedAt)
	})

	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	for _, f := range parentsFirst(folders) {
		if err := enc.Encode(Record{Kind: KindFolder, Folder: f}); err != nil {
			return res, fmt.Errorf("failed to write folder %s: %w", f.ID, err)
		}
		res.Folders++
	}
	for _, n := range notes {
		if err := enc.Encode(Record{Kind: KindNote, Note: n}); err != nil {
			return res, fmt.Errorf("failed to write note %s: %w", n.ID, err)
		}
		res.Notes++
	}
	if err := bw.Flush(); err != nil {
		return res, fmt.Errorf("failed to flush export: %w", err)
	}
	return res, nil
}

// parentsFirst orders folders breadth-first from the roots. Folders whose
// parent is missing are treated as roots; anything left over (a corrupt
// parent loop) is appended in its original order.
func parentsFirst(folders []*schema.Folder) []*schema.Folder {
	byID := make(map[string]bool, len(folders))
	children := make(map[string][]*schema.Folder)
	for _, f := range folders {
		byID[f.ID] = true
	}
	var queue []*schema.Folder
	for _, f := range folders {
		if f.IsRoot() || !byID[*f.ParentID] {
			queue = append(queue, f)
			continue
		}
		children[*f.ParentID] = append(children[*f.ParentID], f)
	}

	out := make([]*schema.Folder, 0, len(folders))
	seen := make(map[string]bool, len(folders))
	for len(queue) > 0 {
		f := queue[0]
		queue = queue[1:]
		out = append(out, f)
		seen[f.ID] = true
		queue = append(queue, children[f.ID]...)
	}
	for _, f := range folders {
		if !seen[f.ID] {
			out = append(out, f)
		}
	}
	return out
}

// Import re-creates the records in r through m, so each one is queued for
// push. Records whose id already exists in db are skipped.
func Import(ctx context.Context, r io.Reader, db *store.DB, m *mutator.Mutator) (Result, error) {
	var res Result

	dec := json.NewDecoder(r)
	for line := 1; ; line++ {
		var rec Record
		if err := dec.Decode(&rec); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return res, fmt.Errorf("invalid JSON at line %d: %w", line, err)
		}

		var err error
		switch {
		case rec.Kind == KindFolder && rec.Folder != nil:
			err = importFolder(ctx, db, m, rec.Folder, &res)
		case rec.Kind == KindNote && rec.Note != nil:
			err = importNote(ctx, db, m, rec.Note, &res)
		default:
			err = fmt.Errorf("unknown record kind %q", rec.Kind)
		}
		if err != nil {
			return res, fmt.Errorf("line %d: %w", line, err)
		}
	}
	return res, nil
}

func importFolder(ctx context.Context, db *store.DB, m *mutator.Mutator, f *schema.Folder, res *Result) error {
	if _, err := db.GetFolder(ctx, f.ID); err == nil {
		res.Skipped++
		return nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return err
	}

	in := mutator.FolderInput{ID: f.ID, Name: f.Name, SortOrder: f.SortOrder}
	if f.ParentID != nil {
		in.ParentID = *f.ParentID
	}
	if _, err := m.CreateFolder(ctx, in); err != nil {
		return fmt.Errorf("failed to import folder %s: %w", f.ID, err)
	}
	res.Folders++
	return nil
}

func importNote(ctx context.Context, db *store.DB, m *mutator.Mutator, n *schema.Note, res *Result) error {
	if _, err := db.GetNote(ctx, n.ID); err == nil {
		res.Skipped++
		return nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return err
	}

	_, err := m.CreateNote(ctx, mutator.NoteInput{
		ID:        n.ID,
		FolderID:  n.FolderID,
		Title:     n.Title,
		Content:   n.Content,
		PlainText: n.PlainText,
		SortOrder: n.SortOrder,
	})
	if err != nil {
		return fmt.Errorf("failed to import note %s: %w", n.ID, err)
	}
	res.Notes++
	return nil
}
