package main

import (
	"fmt"
	"os"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/slatenotes/slate/internal/api"
	"github.com/slatenotes/slate/internal/config"
	"github.com/slatenotes/slate/internal/logging"
	"github.com/slatenotes/slate/internal/remotedb"
	"github.com/slatenotes/slate/internal/ui"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	GroupID: "advanced",
	Short:   "Run the sync server",
	Long: `Run the HTTP server that clients sync with.

The database is chosen by server.database_url:
  /path/to/server.db              SQLite file
  libsql://<db>.turso.io          Turso, through a local embedded replica
  postgres://user@host/db         PostgreSQL

Endpoints:
  /api/folders, /api/notes        CRUD used by 'slate sync'
  /api/search?q=...               server-side search
  /api/ws                         change notifications
  /api/status, /api/health        status and health checks
  /api/metrics                    Prometheus metrics`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		loader, cfg, err := loadConfig()
		if err != nil {
			return err
		}
		flags := cmd.Flags()
		if flags.Changed("addr") {
			cfg.Server.Addr, _ = flags.GetString("addr")
		}
		if flags.Changed("db") {
			cfg.Server.DatabaseURL, _ = flags.GetString("db")
		}

		opts := logging.FromConfig(cfg.Log)
		opts.Quiet = quiet
		out, err := logging.Open(opts)
		if err != nil {
			return fmt.Errorf("failed to open log: %w", err)
		}
		defer out.Close()

		var db *remotedb.DB
		if cfg.Server.DatabaseURL != "" {
			db, err = remotedb.Open(ctx, remotedb.Config{
				DSN:         cfg.Server.DatabaseURL,
				AuthToken:   cfg.Server.AuthToken,
				ReplicaPath: cfg.Server.ReplicaPath,
				Logger:      out.New("remotedb"),
			})
			if err != nil {
				return err
			}
			defer db.Close()
		} else {
			fmt.Fprintf(os.Stderr, "%s server.database_url is empty; data endpoints will return 503\n", ui.RenderWarn("⚠"))
		}

		server := api.New(db, &api.Config{
			Addr:   cfg.Server.Addr,
			APIKey: cfg.Server.APIKey,
			Logger: out.New("api"),
		})
		if err := server.Start(); err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}

		loader.Watch(func(c *config.Config, e fsnotify.Event) {
			server.SetAPIKey(c.Server.APIKey)
		})

		fmt.Printf("%s Slate server listening on %s\n", ui.RenderAccent("🚀"), server.Addr())
		if db != nil {
			fmt.Printf("   Database: %s\n", db.Dialect())
		}
		if cfg.Server.APIKey == "" {
			fmt.Printf("   %s no server.api_key set; requests are not authenticated\n", ui.RenderWarn("⚠"))
		}
		fmt.Println("\nPress Ctrl+C to stop...")

		<-ctx.Done()

		fmt.Println("\nShutting down server...")
		if err := server.Stop(); err != nil {
			return fmt.Errorf("error during shutdown: %w", err)
		}
		fmt.Println("Server stopped")
		return nil
	},
}

func init() {
	serveCmd.Flags().String("addr", "", "listen address (overrides server.addr)")
	serveCmd.Flags().String("db", "", "database URL or path (overrides server.database_url)")
	rootCmd.AddCommand(serveCmd)
}
