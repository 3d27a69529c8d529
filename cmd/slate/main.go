// Command slate is a local-first notes client with an optional sync server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/slatenotes/slate/internal/config"
	"github.com/slatenotes/slate/internal/logging"
	"github.com/slatenotes/slate/internal/mutator"
	"github.com/slatenotes/slate/internal/reconcile"
	"github.com/slatenotes/slate/internal/remote"
	"github.com/slatenotes/slate/internal/schema"
	"github.com/slatenotes/slate/internal/store"
	"github.com/slatenotes/slate/internal/ui"
)

var (
	configFile string
	homeDir    string
	noColor    bool
	quiet      bool
)

var rootCmd = &cobra.Command{
	Use:   "slate",
	Short: "Local-first folders and notes with background sync",
	Long: `slate keeps folders and notes in a local SQLite database and syncs them
with a slate server when one is configured. Every edit is saved locally first
and queued; 'slate sync' or 'slate daemon' delivers the queue.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if noColor || !ui.IsTerminal(os.Stdout) {
			ui.DisableColor()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (default is $SLATE_HOME/slate.toml)")
	rootCmd.PersistentFlags().StringVar(&homeDir, "home", "", "slate home directory (default is $SLATE_HOME or the user config dir)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "only write logs to the log file")

	rootCmd.AddGroup(
		&cobra.Group{ID: "notes", Title: "Notes:"},
		&cobra.Group{ID: "sync", Title: "Sync:"},
		&cobra.Group{ID: "advanced", Title: "Advanced:"},
	)
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", ui.RenderFail("Error:"), err)
		cancel()
		os.Exit(1)
	}
}

// app holds what a client command needs. The remote side is nil when no
// remote.url is configured.
type app struct {
	cfg    *config.Config
	loader *config.Loader
	out    *logging.Output
	db     *store.DB
	mut    *mutator.Mutator
	client *remote.Client
	rec    *reconcile.Reconciler
}

func loadConfig() (*config.Loader, *config.Config, error) {
	loader := config.NewLoader(config.Options{
		File:   configFile,
		Home:   homeDir,
		Logger: log.New(os.Stderr, "[config] ", log.LstdFlags),
	})
	cfg, err := loader.Load()
	if err != nil {
		return nil, nil, err
	}
	return loader, cfg, nil
}

// openApp loads config, opens the local store and wires the reconciler.
func openApp(ctx context.Context) (*app, error) {
	loader, cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	opts := logging.FromConfig(cfg.Log)
	opts.Quiet = quiet
	out, err := logging.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open log: %w", err)
	}

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		out.Close()
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}
	db, err := store.Open(cfg.DBPath())
	if err != nil {
		out.Close()
		return nil, err
	}
	if err := db.InitSchema(ctx); err != nil {
		db.Close()
		out.Close()
		return nil, err
	}

	a := &app{cfg: cfg, loader: loader, out: out, db: db}
	var trigger mutator.Trigger
	if cfg.Remote.URL != "" {
		a.client, err = remote.New(cfg.Remote.URL, remote.Options{
			APIKey:     cfg.Remote.APIKey,
			HTTPClient: &http.Client{Timeout: cfg.Remote.Timeout},
		})
		if err != nil {
			a.Close()
			return nil, err
		}
		a.rec = reconcile.New(db, a.client, reconcile.WithLogger(out.New("sync")))
		trigger = a.rec
	}
	a.mut = mutator.New(db, trigger, mutator.WithLogger(out.New("mutate")))
	return a, nil
}

func (a *app) Close() {
	a.db.Close()
	a.out.Close()
}

var errNoRemote = errors.New("remote.url is not configured (run 'slate config init' or set SLATE_REMOTE_URL)")

func (a *app) requireRemote() error {
	if a.rec == nil {
		return errNoRemote
	}
	return nil
}

// pushAfterWrite delivers the outbox right away when a remote is configured.
// Failures leave the entries queued.
func (a *app) pushAfterWrite(ctx context.Context) {
	if a.rec == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, a.cfg.Sync.PushTimeout)
	defer cancel()

	res, err := a.rec.Push(ctx)
	switch {
	case err != nil:
		fmt.Fprintf(os.Stderr, "%s push failed: %v\n", ui.RenderWarn("⚠"), err)
	case res.Coalesced:
		fmt.Printf("%s Saved locally; another sync is delivering it\n", ui.RenderMuted("•"))
	case res.Failure != nil:
		fmt.Printf("%s Saved locally; %d change(s) queued until the server is reachable\n",
			ui.RenderWarn("⚠"), res.Remaining)
	case res.Pushed > 0:
		fmt.Printf("%s Synced\n", ui.RenderPass("✓"))
	}
}

// withApp runs fn with an opened app and closes it afterwards.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func folderLabel(f *schema.Folder) string {
	if f == nil {
		return ""
	}
	return fmt.Sprintf("%s (%s)", f.Name, f.ID)
}
