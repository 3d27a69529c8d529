package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/slatenotes/slate/internal/export"
	"github.com/slatenotes/slate/internal/ui"
)

var exportCmd = &cobra.Command{
	Use:     "export [file]",
	GroupID: "advanced",
	Short:   "Write all folders and notes as JSONL",
	Long: `Write every folder and note in the local store as JSON lines, to a file
or to standard output.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			var w io.Writer = os.Stdout
			if len(args) == 1 {
				f, err := os.Create(args[0])
				if err != nil {
					return fmt.Errorf("failed to create %s: %w", args[0], err)
				}
				defer f.Close()
				w = f
			}

			res, err := export.Export(ctx, a.db, w)
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "%s Exported %s\n", ui.RenderPass("✓"), res)
			return nil
		})
	},
}

var importCmd = &cobra.Command{
	Use:     "import <file>",
	GroupID: "advanced",
	Short:   "Re-create folders and notes from a JSONL export",
	Long: `Re-create folders and notes from a file written by 'slate export'.
Records whose id already exists are skipped. Imported records are queued
for push like any other edit.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		// #nosec G304 - controlled path from CLI
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", args[0], err)
		}
		defer f.Close()

		return withApp(cmd, func(ctx context.Context, a *app) error {
			res, err := export.Import(ctx, f, a.db, a.mut)
			if err != nil {
				return err
			}
			fmt.Printf("%s Imported %s\n", ui.RenderPass("✓"), res)
			a.pushAfterWrite(ctx)
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(exportCmd, importCmd)
}
