package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/slatenotes/slate/internal/remote"
	"github.com/slatenotes/slate/internal/schema"
	"github.com/slatenotes/slate/internal/ui"
)

var syncCmd = &cobra.Command{
	Use:     "sync",
	GroupID: "sync",
	Short:   "Push queued changes and pull remote changes",
	Long: `Sync with the configured server:
  1. Push every queued change in order, stopping at the first failure
  2. Pull folders and notes modified since the last successful pull

Use --push or --pull to run one half only.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		pushOnly, _ := cmd.Flags().GetBool("push")
		pullOnly, _ := cmd.Flags().GetBool("pull")
		if pushOnly && pullOnly {
			return fmt.Errorf("--push and --pull are mutually exclusive")
		}

		return withApp(cmd, func(ctx context.Context, a *app) error {
			if err := a.requireRemote(); err != nil {
				return err
			}
			if _, err := a.client.CheckCompatible(ctx); err != nil && !remote.IsOffline(err) {
				return err
			}

			fmt.Printf("%s Syncing with %s...\n", ui.RenderAccent("🔄"), a.client.BaseURL())
			start := time.Now()

			switch {
			case pushOnly:
				res, err := a.rec.Push(ctx)
				if err != nil {
					return err
				}
				fmt.Printf("   Push: %s\n", res)
			case pullOnly:
				res, err := a.rec.PullOnce(ctx)
				if err != nil {
					return err
				}
				fmt.Printf("   Pull: %s\n", res)
			default:
				res, err := a.rec.FullSync(ctx)
				if err != nil {
					return err
				}
				fmt.Printf("   Push: %s\n", res.Push)
				fmt.Printf("   Pull: %s\n", res.Pull)
			}

			depth, _ := a.db.OutboxDepth(ctx)
			mark := ui.RenderPass("✓")
			if depth > 0 {
				mark = ui.RenderWarn("⚠")
			}
			fmt.Printf("%s Done in %v, %d change(s) still queued\n", mark, time.Since(start).Round(time.Millisecond), depth)
			return nil
		})
	},
}

var statusCmd = &cobra.Command{
	Use:     "status",
	GroupID: "sync",
	Short:   "Show local store and sync status",
	RunE: func(cmd *cobra.Command, args []string) error {
		offline, _ := cmd.Flags().GetBool("offline")

		return withApp(cmd, func(ctx context.Context, a *app) error {
			folders, err := a.db.FolderCount(ctx)
			if err != nil {
				return err
			}
			notes, err := a.db.NoteCount(ctx)
			if err != nil {
				return err
			}
			depth, err := a.db.OutboxDepth(ctx)
			if err != nil {
				return err
			}
			watermark, err := a.db.Watermark(ctx)
			if err != nil {
				return err
			}

			fmt.Printf("\n%s Slate Status\n\n", ui.RenderAccent("📊"))
			fmt.Printf("Store: %s", a.db.Path())
			if info, err := os.Stat(a.db.Path()); err == nil {
				fmt.Printf(" (%s)", humanize.Bytes(uint64(info.Size())))
			}
			fmt.Println()
			fmt.Printf("Folders: %d\n", folders)
			fmt.Printf("Notes: %d\n", notes)
			fmt.Printf("Queued changes: %d\n", depth)
			if watermark == nil {
				fmt.Println("Last pull: never")
			} else {
				fmt.Printf("Last pull: %s\n", humanize.Time(*watermark))
			}

			if a.client == nil {
				fmt.Printf("Server: %s\n\n", ui.RenderMuted("not configured"))
				return nil
			}
			fmt.Printf("Server: %s", a.client.BaseURL())
			if offline {
				fmt.Println()
				fmt.Println()
				return nil
			}
			ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			st, err := a.client.CheckCompatible(ctx)
			switch {
			case err != nil && remote.IsOffline(err):
				fmt.Printf(" %s\n", ui.RenderWarn("unreachable"))
			case err != nil:
				fmt.Printf(" %s\n", ui.RenderFail(err.Error()))
			case !st.DBConfigured:
				fmt.Printf(" %s\n", ui.RenderWarn("no database configured"))
			default:
				fmt.Printf(" %s\n", ui.RenderPass(fmt.Sprintf("ok (api %s, %s)", st.APIVersion, st.Dialect)))
			}
			fmt.Println()
			return nil
		})
	},
}

// outboxRow is the printable form of an outbox entry.
type outboxRow struct {
	Seq      int64          `yaml:"seq"`
	ID       string         `yaml:"id"`
	Type     string         `yaml:"type"`
	Action   string         `yaml:"action"`
	EntityID string         `yaml:"entityId"`
	Queued   string         `yaml:"queued"`
	Folder   *schema.Folder `yaml:"folder,omitempty"`
	Note     *schema.Note   `yaml:"note,omitempty"`
}

func newOutboxRow(e *schema.OutboxEntry) outboxRow {
	return outboxRow{
		Seq:      e.Seq,
		ID:       e.ID,
		Type:     string(e.Type),
		Action:   string(e.Action),
		EntityID: e.EntityID,
		Queued:   schema.FormatTime(e.CreatedAt),
		Folder:   e.Folder,
		Note:     e.Note,
	}
}

var outboxCmd = &cobra.Command{
	Use:     "outbox",
	GroupID: "sync",
	Short:   "List changes waiting to be pushed",
	RunE: func(cmd *cobra.Command, args []string) error {
		asYAML, _ := cmd.Flags().GetBool("yaml")

		return withApp(cmd, func(ctx context.Context, a *app) error {
			entries, err := a.db.ListOutbox(ctx)
			if err != nil {
				return err
			}

			if asYAML {
				out := make([]outboxRow, 0, len(entries))
				for _, e := range entries {
					out = append(out, newOutboxRow(e))
				}
				enc := yaml.NewEncoder(os.Stdout)
				enc.SetIndent(2)
				defer enc.Close()
				return enc.Encode(out)
			}

			if len(entries) == 0 {
				fmt.Printf("%s Nothing queued\n", ui.RenderPass("✓"))
				return nil
			}
			rows := make([][]string, 0, len(entries))
			for _, e := range entries {
				rows = append(rows, []string{
					fmt.Sprint(e.Seq), string(e.Type), string(e.Action), e.EntityID, humanize.Time(e.CreatedAt),
				})
			}
			fmt.Println(ui.Table([]string{"#", "Type", "Action", "Entity", "Queued"}, rows))
			return nil
		})
	},
}

func init() {
	syncCmd.Flags().Bool("push", false, "only push queued changes")
	syncCmd.Flags().Bool("pull", false, "only pull remote changes")
	statusCmd.Flags().Bool("offline", false, "do not contact the server")
	outboxCmd.Flags().Bool("yaml", false, "print entries as YAML, including payloads")

	rootCmd.AddCommand(syncCmd, statusCmd, outboxCmd)
}
