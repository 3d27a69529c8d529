package config

import (
	"errors"
	"io"
	"log"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
)

func quietLoader(t *testing.T, opts Options) *Loader {
	t.Helper()
	if opts.Home == "" {
		opts.Home = t.TempDir()
	}
	if opts.EnvFile == "" {
		opts.EnvFile = filepath.Join(opts.Home, "missing.env")
	}
	opts.Logger = log.New(io.Discard, "", 0)
	return NewLoader(opts)
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
}

func TestLoad_Defaults(t *testing.T) {
	home := t.TempDir()
	cfg, err := quietLoader(t, Options{Home: home}).Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.DataDir != home {
		t.Errorf("DataDir = %q, want %q", cfg.DataDir, home)
	}
	if cfg.Sync.Interval != 30*time.Second || !cfg.Sync.Notify {
		t.Errorf("Sync = %+v", cfg.Sync)
	}
	if cfg.Server.DatabaseURL != filepath.Join(home, "server.db") {
		t.Errorf("Server.DatabaseURL = %q", cfg.Server.DatabaseURL)
	}
	if cfg.DBPath() != filepath.Join(home, "slate.db") {
		t.Errorf("DBPath() = %q", cfg.DBPath())
	}
}

func TestLoad_FileAndEnv(t *testing.T) {
	home := t.TempDir()
	writeFile(t, filepath.Join(home, FileName), `
[remote]
url = "https://notes.example.com"
api_key = "from-file"

[sync]
interval = "2m"
notify = false
`)
	t.Setenv("SLATE_REMOTE_API_KEY", "from-env")

	l := quietLoader(t, Options{Home: home})
	cfg, err := l.Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if l.ConfigFileUsed() != filepath.Join(home, FileName) {
		t.Errorf("ConfigFileUsed() = %q", l.ConfigFileUsed())
	}
	if cfg.Remote.URL != "https://notes.example.com" {
		t.Errorf("Remote.URL = %q", cfg.Remote.URL)
	}
	if cfg.Remote.APIKey != "from-env" {
		t.Errorf("Remote.APIKey = %q, want the environment to win", cfg.Remote.APIKey)
	}
	if cfg.Sync.Interval != 2*time.Minute || cfg.Sync.Notify {
		t.Errorf("Sync = %+v", cfg.Sync)
	}
	if cfg.Remote.Timeout != 30*time.Second {
		t.Errorf("Remote.Timeout = %v, want default", cfg.Remote.Timeout)
	}
}

func TestLoad_EnvFile(t *testing.T) {
	home := t.TempDir()
	envFile := filepath.Join(home, "test.env")
	writeFile(t, envFile, "SLATE_SERVER_ADDR=127.0.0.1:9999\n")
	t.Cleanup(func() { os.Unsetenv("SLATE_SERVER_ADDR") })

	cfg, err := quietLoader(t, Options{Home: home, EnvFile: envFile}).Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Server.Addr != "127.0.0.1:9999" {
		t.Errorf("Server.Addr = %q, want value from env file", cfg.Server.Addr)
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		file    bool
	}{
		{"explicit file missing", "", true},
		{"bad toml", "[sync\ninterval = 1", false},
		{"non-positive interval", "[sync]\ninterval = \"0s\"\n", false},
		{"bad remote url", "[remote]\nurl = \"ftp://x\"\n", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			home := t.TempDir()
			opts := Options{Home: home}
			if tt.file {
				opts.File = filepath.Join(home, "nope.toml")
			} else {
				writeFile(t, filepath.Join(home, FileName), tt.content)
			}
			if _, err := quietLoader(t, opts).Load(); err == nil {
				t.Error("Load() succeeded, want error")
			}
		})
	}
}

func TestWriteDefault_RoundTrip(t *testing.T) {
	home := t.TempDir()
	path := filepath.Join(home, "nested", FileName)

	want := defaultsFor(home)
	want.Remote.URL = "http://localhost:8080"
	want.Sync.Interval = 45 * time.Second
	if err := WriteDefault(path, want); err != nil {
		t.Fatalf("WriteDefault() failed: %v", err)
	}

	got, err := quietLoader(t, Options{Home: home, File: path}).Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if *got != *want {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", got, want)
	}

	if err := WriteDefault(path, want); !errors.Is(err, os.ErrExist) {
		t.Errorf("second WriteDefault() error = %v, want ErrExist", err)
	}
}

func TestWatch(t *testing.T) {
	home := t.TempDir()
	path := filepath.Join(home, FileName)
	writeFile(t, path, "[sync]\ninterval = \"10s\"\n")

	l := quietLoader(t, Options{Home: home})
	if _, err := l.Load(); err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	changes := make(chan time.Duration, 10)
	l.Watch(func(cfg *Config, e fsnotify.Event) {
		changes <- cfg.Sync.Interval
	})

	writeFile(t, path, "[sync]\ninterval = \"20s\"\n")

	timeout := time.After(5 * time.Second)
	for {
		select {
		case d := <-changes:
			if d == 20*time.Second {
				return
			}
		case <-timeout:
			t.Fatal("config change not observed")
		}
	}
}
