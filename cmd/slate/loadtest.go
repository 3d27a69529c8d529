package main

import (
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/slatenotes/slate/internal/loadtest"
	"github.com/slatenotes/slate/internal/reconcile"
	"github.com/slatenotes/slate/internal/remote"
	"github.com/slatenotes/slate/internal/ui"
)

var loadtestCmd = &cobra.Command{
	Use:     "loadtest",
	GroupID: "advanced",
	Short:   "Simulate many clients syncing against the server",
	Long: `Simulate concurrent clients against the configured server. Each client
gets a throwaway local store, writes notes while pushing after every write,
then pulls. Reports push and pull latency and whether every client ended up
with every note.

This writes real folders and notes to the server. Point it at a test server.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		clients, _ := cmd.Flags().GetInt("clients")
		notes, _ := cmd.Flags().GetInt("notes")

		_, cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.Remote.URL == "" {
			return errNoRemote
		}

		dir, err := os.MkdirTemp("", "slate-loadtest-")
		if err != nil {
			return fmt.Errorf("failed to create temp dir: %w", err)
		}
		defer os.RemoveAll(dir)

		fmt.Printf("%s Running %d clients x %d notes against %s...\n",
			ui.RenderAccent("🏁"), clients, notes, cfg.Remote.URL)
		report, err := loadtest.Run(cmd.Context(), loadtest.Config{
			Clients:        clients,
			NotesPerClient: notes,
			Dir:            dir,
			NewRemote: func() (reconcile.Remote, error) {
				return remote.New(cfg.Remote.URL, remote.Options{
					APIKey:     cfg.Remote.APIKey,
					HTTPClient: &http.Client{Timeout: cfg.Remote.Timeout},
				})
			},
		})
		if err != nil {
			return err
		}

		fmt.Println()
		report.PrintStats()
		fmt.Println()
		if !report.Converged() {
			return fmt.Errorf("clients did not converge: %d errors, %d missing notes", report.Errors, report.Missing)
		}
		fmt.Printf("%s All clients converged\n", ui.RenderPass("✓"))
		return nil
	},
}

func init() {
	loadtestCmd.Flags().Int("clients", 10, "number of simulated clients")
	loadtestCmd.Flags().Int("notes", 20, "notes written per client")
	rootCmd.AddCommand(loadtestCmd)
}
