package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/slatenotes/slate/internal/mutator"
	"github.com/slatenotes/slate/internal/schema"
	"github.com/slatenotes/slate/internal/store"
	"github.com/slatenotes/slate/internal/ui"
)

var folderCmd = &cobra.Command{
	Use:     "folder",
	GroupID: "notes",
	Short:   "Create, list and organize folders",
}

var folderCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a folder",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		parent, _ := cmd.Flags().GetString("parent")
		order, _ := cmd.Flags().GetInt("order")

		return withApp(cmd, func(ctx context.Context, a *app) error {
			f, err := a.mut.CreateFolder(ctx, mutator.FolderInput{
				Name:      args[0],
				ParentID:  parent,
				SortOrder: order,
			})
			if err != nil {
				return err
			}
			fmt.Printf("%s Created folder %s\n", ui.RenderPass("✓"), folderLabel(f))
			a.pushAfterWrite(ctx)
			return nil
		})
	},
}

var folderListCmd = &cobra.Command{
	Use:   "list",
	Short: "List folders",
	RunE: func(cmd *cobra.Command, args []string) error {
		tree, _ := cmd.Flags().GetBool("tree")

		return withApp(cmd, func(ctx context.Context, a *app) error {
			if tree {
				return printFolderTree(ctx, a.db, "", 0, map[string]bool{})
			}

			folders, err := a.db.ListFolders(ctx)
			if err != nil {
				return err
			}
			if len(folders) == 0 {
				fmt.Println("No folders yet. Create one with 'slate folder create <name>'.")
				return nil
			}
			rows := make([][]string, 0, len(folders))
			for _, f := range folders {
				parent := "-"
				if !f.IsRoot() {
					parent = *f.ParentID
				}
				rows = append(rows, []string{f.ID, f.Name, parent, humanize.Time(f.UpdatedAt)})
			}
			fmt.Println(ui.Table([]string{"ID", "Name", "Parent", "Updated"}, rows))
			return nil
		})
	},
}

// printFolderTree prints the subtree under parentID. seen guards against
// parent loops that arrived from the server.
func printFolderTree(ctx context.Context, db *store.DB, parentID string, depth int, seen map[string]bool) error {
	children, err := db.ListChildFolders(ctx, parentID)
	if err != nil {
		return err
	}
	for _, f := range children {
		if seen[f.ID] {
			continue
		}
		seen[f.ID] = true

		notes, err := db.ListNotes(ctx, f.ID)
		if err != nil {
			return err
		}
		fmt.Printf("%s%s %s\n", strings.Repeat("  ", depth), ui.RenderAccent(f.Name),
			ui.RenderMuted(fmt.Sprintf("%s · %d notes", f.ID, len(notes))))
		if err := printFolderTree(ctx, db, f.ID, depth+1, seen); err != nil {
			return err
		}
	}
	return nil
}

var folderRenameCmd = &cobra.Command{
	Use:   "rename <id> <name>",
	Short: "Rename a folder",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			f, err := a.mut.RenameFolder(ctx, args[0], args[1])
			if err != nil {
				return err
			}
			if f == nil {
				return fmt.Errorf("folder %s not found", args[0])
			}
			fmt.Printf("%s Renamed to %s\n", ui.RenderPass("✓"), folderLabel(f))
			a.pushAfterWrite(ctx)
			return nil
		})
	},
}

var folderMoveCmd = &cobra.Command{
	Use:   "move <id> [parent-id]",
	Short: "Move a folder under another folder, or to the top level",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		parent := ""
		if len(args) == 2 {
			parent = args[1]
		}

		return withApp(cmd, func(ctx context.Context, a *app) error {
			f, err := a.mut.MoveFolder(ctx, args[0], parent)
			if err != nil {
				return err
			}
			if f == nil {
				return fmt.Errorf("folder %s not found", args[0])
			}
			where := "the top level"
			if parent != "" {
				where = parent
			}
			fmt.Printf("%s Moved %s to %s\n", ui.RenderPass("✓"), folderLabel(f), where)
			a.pushAfterWrite(ctx)
			return nil
		})
	},
}

var folderDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a folder and the notes in it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force")

		return withApp(cmd, func(ctx context.Context, a *app) error {
			f, err := a.db.GetFolder(ctx, args[0])
			if err != nil {
				return fmt.Errorf("folder %s: %w", args[0], err)
			}
			notes, err := a.db.ListNotes(ctx, f.ID)
			if err != nil {
				return err
			}

			if !force && ui.IsTerminal(os.Stdin) {
				ok, err := confirmDelete(f, len(notes))
				if err != nil {
					return err
				}
				if !ok {
					fmt.Println("Cancelled")
					return nil
				}
			}

			if err := a.mut.DeleteFolder(ctx, f.ID); err != nil {
				return err
			}
			fmt.Printf("%s Deleted %s and %d notes\n", ui.RenderPass("✓"), folderLabel(f), len(notes))
			a.pushAfterWrite(ctx)
			return nil
		})
	},
}

func confirmDelete(f *schema.Folder, notes int) (bool, error) {
	var ok bool
	err := huh.NewConfirm().
		Title(fmt.Sprintf("Delete folder %q?", f.Name)).
		Description(fmt.Sprintf("Its %d notes will be deleted too. Subfolders are kept.", notes)).
		Affirmative("Delete").
		Negative("Cancel").
		Value(&ok).
		Run()
	if err != nil {
		return false, fmt.Errorf("failed to confirm: %w", err)
	}
	return ok, nil
}

func init() {
	folderCreateCmd.Flags().StringP("parent", "p", "", "parent folder id")
	folderCreateCmd.Flags().Int("order", 0, "sort order among siblings")
	folderListCmd.Flags().Bool("tree", false, "show the folder hierarchy")
	folderDeleteCmd.Flags().BoolP("force", "f", false, "skip the confirmation prompt")

	folderCmd.AddCommand(folderCreateCmd, folderListCmd, folderRenameCmd, folderMoveCmd, folderDeleteCmd)
	rootCmd.AddCommand(folderCmd)
}
