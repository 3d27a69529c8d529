package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestOutput_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "slate.log")
	out, err := Open(Options{File: path, MaxSizeMB: 1, Quiet: true})
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}

	out.New("sync").Printf("pushed %d entries", 3)
	out.New("daemon").Println("stopped")
	if err := out.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read log: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2: %q", len(lines), data)
	}
	if !strings.HasPrefix(lines[0], "[sync] ") || !strings.HasSuffix(lines[0], "pushed 3 entries") {
		t.Errorf("line 0 = %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "[daemon] ") {
		t.Errorf("line 1 = %q", lines[1])
	}
}

func TestOutput_QuietWithoutFile(t *testing.T) {
	out, err := Open(Options{Quiet: true})
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer out.Close()

	out.New("api").Println("dropped")
	if out.Writer() == os.Stderr {
		t.Error("Writer() is stderr in quiet mode")
	}
}
