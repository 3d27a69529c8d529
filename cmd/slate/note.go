package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"github.com/spf13/cobra"

	"github.com/slatenotes/slate/internal/mutator"
	"github.com/slatenotes/slate/internal/schema"
	"github.com/slatenotes/slate/internal/ui"
)

var noteCmd = &cobra.Command{
	Use:     "note",
	GroupID: "notes",
	Short:   "Create, read, edit and search notes",
}

var noteCreateCmd = &cobra.Command{
	Use:   "create <folder-id> [title]",
	Short: "Create a note",
	Long: `Create a note in a folder. The content comes from --content, or from
standard input when --stdin is set. The title defaults to "Untitled".`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		content, _ := cmd.Flags().GetString("content")
		fromStdin, _ := cmd.Flags().GetBool("stdin")
		order, _ := cmd.Flags().GetInt("order")

		in := mutator.NoteInput{FolderID: args[0], Content: content, SortOrder: order}
		if len(args) == 2 {
			in.Title = args[1]
		}
		if fromStdin {
			data, err := io.ReadAll(os.Stdin)
			if err != nil {
				return fmt.Errorf("failed to read stdin: %w", err)
			}
			in.Content = string(data)
		}

		return withApp(cmd, func(ctx context.Context, a *app) error {
			if _, err := a.db.GetFolder(ctx, in.FolderID); err != nil {
				return fmt.Errorf("folder %s: %w", in.FolderID, err)
			}
			n, err := a.mut.CreateNote(ctx, in)
			if err != nil {
				return err
			}
			fmt.Printf("%s Created note %q (%s)\n", ui.RenderPass("✓"), n.Title, n.ID)
			a.pushAfterWrite(ctx)
			return nil
		})
	},
}

var noteListCmd = &cobra.Command{
	Use:   "list",
	Short: "List notes",
	Long: `List notes, optionally filtered by folder and by modification time.

--since accepts natural language ("yesterday", "2 hours ago", "last monday")
as well as RFC 3339 timestamps and YYYY-MM-DD dates.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		folderID, _ := cmd.Flags().GetString("folder")
		sinceText, _ := cmd.Flags().GetString("since")

		var since time.Time
		if sinceText != "" {
			var err error
			if since, err = parseSince(sinceText, time.Now()); err != nil {
				return err
			}
		}

		return withApp(cmd, func(ctx context.Context, a *app) error {
			var notes []*schema.Note
			var err error
			if folderID != "" && since.IsZero() {
				notes, err = a.db.ListNotes(ctx, folderID)
			} else {
				notes, err = a.db.ListNotesModifiedSince(ctx, since)
			}
			if err != nil {
				return err
			}

			rows := make([][]string, 0, len(notes))
			for _, n := range notes {
				if folderID != "" && n.FolderID != folderID {
					continue
				}
				rows = append(rows, []string{n.ID, n.Title, n.FolderID, humanize.Time(n.UpdatedAt)})
			}
			if len(rows) == 0 {
				fmt.Println("No notes found")
				return nil
			}
			fmt.Println(ui.Table([]string{"ID", "Title", "Folder", "Updated"}, rows))
			return nil
		})
	},
}

// parseSince reads a natural-language or absolute time.
func parseSince(text string, now time.Time) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, schema.TimeLayout, "2006-01-02"} {
		if t, err := time.ParseInLocation(layout, text, time.Local); err == nil {
			return t, nil
		}
	}

	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	r, err := w.Parse(text, now)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse --since %q: %w", text, err)
	}
	if r == nil {
		return time.Time{}, fmt.Errorf("could not understand --since %q", text)
	}
	return r.Time, nil
}

var noteShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a note",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, _ := cmd.Flags().GetBool("raw")

		return withApp(cmd, func(ctx context.Context, a *app) error {
			n, err := a.db.GetNote(ctx, args[0])
			if err != nil {
				return fmt.Errorf("note %s: %w", args[0], err)
			}
			if raw {
				fmt.Println(n.Content)
				return nil
			}

			folder := n.FolderID
			if f, err := a.db.GetFolder(ctx, n.FolderID); err == nil {
				folder = folderLabel(f)
			}
			fmt.Printf("\n%s\n", ui.RenderAccent(n.Title))
			fmt.Println(ui.RenderMuted(fmt.Sprintf("in %s · updated %s · created %s",
				folder, humanize.Time(n.UpdatedAt), n.CreatedAt.Local().Format("2006-01-02 15:04"))))
			fmt.Printf("\n%s\n\n", n.PlainText)

			pending, err := a.db.PendingFor(ctx, n.ID)
			if err == nil && len(pending) > 0 {
				fmt.Printf("%s %d unsynced change(s)\n", ui.RenderWarn("⚠"), len(pending))
			}
			return nil
		})
	},
}

var noteEditCmd = &cobra.Command{
	Use:   "edit <id>",
	Short: "Edit a note",
	Long: `Edit a note's fields with flags, or open its content in your editor
(config key 'editor', or $EDITOR) when no field flag is given.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var patch mutator.NotePatch
		flags := cmd.Flags()
		if flags.Changed("title") {
			v, _ := flags.GetString("title")
			patch.Title = &v
		}
		if flags.Changed("content") {
			v, _ := flags.GetString("content")
			patch.Content = &v
		}
		if flags.Changed("folder") {
			v, _ := flags.GetString("folder")
			patch.FolderID = &v
		}
		if flags.Changed("order") {
			v, _ := flags.GetInt("order")
			patch.SortOrder = &v
		}
		useEditor := patch == (mutator.NotePatch{})

		return withApp(cmd, func(ctx context.Context, a *app) error {
			if useEditor {
				n, err := a.db.GetNote(ctx, args[0])
				if err != nil {
					return fmt.Errorf("note %s: %w", args[0], err)
				}
				content, err := editInEditor(editorFor(a), n.ID, n.Content)
				if err != nil {
					return err
				}
				if content == n.Content {
					fmt.Println("No changes")
					return nil
				}
				patch.Content = &content
			}

			n, err := a.mut.UpdateNote(ctx, args[0], patch)
			if err != nil {
				return err
			}
			if n == nil {
				return fmt.Errorf("note %s not found", args[0])
			}
			fmt.Printf("%s Updated %q\n", ui.RenderPass("✓"), n.Title)
			a.pushAfterWrite(ctx)
			return nil
		})
	},
}

func editorFor(a *app) string {
	if e := os.Getenv("EDITOR"); e != "" {
		return e
	}
	return a.cfg.Editor
}

// editInEditor opens content in editor and returns what was saved.
func editInEditor(editor, id, content string) (string, error) {
	dir, err := os.MkdirTemp("", "slate-edit-")
	if err != nil {
		return "", fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, id+".html")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		return "", fmt.Errorf("failed to write temp file: %w", err)
	}

	fields := strings.Fields(editor)
	if len(fields) == 0 {
		return "", errors.New("no editor configured")
	}
	// #nosec G204 - editor comes from the user's own config
	c := exec.Command(fields[0], append(fields[1:], path)...)
	c.Stdin = os.Stdin
	c.Stdout = os.Stdout
	c.Stderr = os.Stderr
	if err := c.Run(); err != nil {
		return "", fmt.Errorf("failed to open editor (%s): %w", editor, err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read edited file: %w", err)
	}
	return string(data), nil
}

var noteDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a note",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			if err := a.mut.DeleteNote(ctx, args[0]); err != nil {
				return err
			}
			fmt.Printf("%s Deleted note %s\n", ui.RenderPass("✓"), args[0])
			a.pushAfterWrite(ctx)
			return nil
		})
	},
}

var noteSearchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search note titles and text",
	Long: `Search note titles and text in the local store. With --remote the
server's search is used instead and matches are shown in context.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query := strings.Join(args, " ")
		limit, _ := cmd.Flags().GetInt("limit")
		useRemote, _ := cmd.Flags().GetBool("remote")

		return withApp(cmd, func(ctx context.Context, a *app) error {
			if useRemote {
				if err := a.requireRemote(); err != nil {
					return err
				}
				hits, err := a.client.Search(ctx, query)
				if err != nil {
					return err
				}
				for _, h := range hits {
					snippet := strings.NewReplacer("<mark>", "", "</mark>", "").Replace(h.Snippet)
					fmt.Printf("%s %s\n    %s\n", ui.RenderAccent(h.Title), ui.RenderMuted(h.ID), snippet)
				}
				fmt.Printf("\n%d result(s)\n", len(hits))
				return nil
			}

			notes, err := a.db.SearchNotes(ctx, query, limit)
			if err != nil {
				return err
			}
			rows := make([][]string, 0, len(notes))
			for _, n := range notes {
				rows = append(rows, []string{n.ID, n.Title, humanize.Time(n.UpdatedAt)})
			}
			if len(rows) == 0 {
				fmt.Println("No matches")
				return nil
			}
			fmt.Println(ui.Table([]string{"ID", "Title", "Updated"}, rows))
			return nil
		})
	},
}

func init() {
	noteCreateCmd.Flags().String("content", "", "note content (HTML)")
	noteCreateCmd.Flags().Bool("stdin", false, "read content from standard input")
	noteCreateCmd.Flags().Int("order", 0, "sort order within the folder")

	noteListCmd.Flags().StringP("folder", "f", "", "only notes in this folder")
	noteListCmd.Flags().String("since", "", "only notes modified since this time")

	noteShowCmd.Flags().Bool("raw", false, "print the stored content instead of plain text")

	noteEditCmd.Flags().String("title", "", "new title")
	noteEditCmd.Flags().String("content", "", "new content (HTML)")
	noteEditCmd.Flags().String("folder", "", "move to this folder")
	noteEditCmd.Flags().Int("order", 0, "new sort order")

	noteSearchCmd.Flags().Int("limit", 20, "maximum number of results")
	noteSearchCmd.Flags().Bool("remote", false, "search on the server")

	noteCmd.AddCommand(noteCreateCmd, noteListCmd, noteShowCmd, noteEditCmd, noteDeleteCmd, noteSearchCmd)
	rootCmd.AddCommand(noteCmd)
}
