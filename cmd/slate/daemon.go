package main

import (
	"context"
	"fmt"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/slatenotes/slate/internal/config"
	"github.com/slatenotes/slate/internal/daemon"
	"github.com/slatenotes/slate/internal/ui"
)

var daemonCmd = &cobra.Command{
	Use:     "daemon",
	GroupID: "sync",
	Short:   "Run background sync in the foreground",
	Long: `Run the sync daemon until interrupted.

The daemon will:
  1. Sync once on start
  2. Push local changes as they are queued
  3. Sync every sync.interval
  4. Sync when the server reports a change from another client (sync.notify)

Edits to the config file are picked up without a restart: sync.interval and
remote.api_key take effect immediately.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			if err := a.requireRemote(); err != nil {
				return err
			}

			dcfg := &daemon.Config{
				SyncInterval:     a.cfg.Sync.Interval,
				DebounceInterval: daemon.DefaultConfig().DebounceInterval,
				APIKey:           a.cfg.Remote.APIKey,
				Logger:           a.out.New("daemon"),
			}
			if a.cfg.Sync.Notify {
				url, err := daemon.NotifyURL(a.cfg.Remote.URL)
				if err != nil {
					return err
				}
				dcfg.NotifyURL = url
			}

			d, err := daemon.New(a.rec, dcfg)
			if err != nil {
				return fmt.Errorf("failed to create daemon: %w", err)
			}

			a.loader.Watch(func(cfg *config.Config, e fsnotify.Event) {
				d.SetSyncInterval(cfg.Sync.Interval)
				a.client.SetAPIKey(cfg.Remote.APIKey)
			})

			fmt.Printf("%s Starting slate sync daemon...\n", ui.RenderAccent("🚀"))
			fmt.Printf("   Store: %s\n", a.db.Path())
			fmt.Printf("   Server: %s\n", a.cfg.Remote.URL)
			fmt.Printf("   Interval: %v\n", a.cfg.Sync.Interval)
			if dcfg.NotifyURL != "" {
				fmt.Printf("   Change feed: %s\n", dcfg.NotifyURL)
			}
			fmt.Printf("\nPress Ctrl+C to stop\n\n")

			if err := d.Start(ctx); err != nil {
				return fmt.Errorf("daemon stopped with error: %w", err)
			}
			fmt.Printf("%s Daemon stopped after %d syncs\n", ui.RenderPass("✓"), d.SyncCount())
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(daemonCmd)
}
