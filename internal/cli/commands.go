package cli

import (
	"fmt"
	"strings"

	"github.com/lotas/doctrack/internal/render"
	"github.com/lotas/doctrack/internal/tracker"
	"github.com/spf13/cobra"
)

func (a *app) treeCmd() *cobra.Command {
	var (
		format   string
		headings bool
	)
	cmd := &cobra.Command{
		Use:   "tree <url|file>",
		Short: "Print a page's table of contents with completion state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withSession(cmd.Context(), args[0], func(sess *tracker.Session) error {
				st := sess.Structure()
				switch format {
				case "markdown", "md":
					fmt.Fprint(a.out, render.Markdown(st))
				case "json":
					out, err := render.JSON(st)
					if err != nil {
						return err
					}
					fmt.Fprint(a.out, out)
				case "text":
					fmt.Fprintf(a.out, "%s\nProgress: %s\n\n", st.Title, sess.Progress())
					fmt.Fprint(a.out, render.Text(st.Sidebar))
					if headings {
						fmt.Fprintf(a.out, "\nHeadings: %s\n", sess.HeadingProgress())
						fmt.Fprint(a.out, render.Text(st.Headings))
					}
				default:
					return fmt.Errorf("unknown format %q (use text, markdown or json)", format)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "text", "Output format: text, markdown or json")
	cmd.Flags().BoolVar(&headings, "headings", false, "Also print tracked headings (text format)")
	return cmd
}

func (a *app) checkCmd() *cobra.Command {
	var undo, headings bool
	cmd := &cobra.Command{
		Use:   "check <url|file> <id>",
		Short: "Mark an item and its children as completed",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withSession(cmd.Context(), args[0], func(sess *tracker.Session) error {
				changes, err := sess.SetCompletion(cmd.Context(), viewFlag(headings), args[1], !undo)
				verb := "Completed"
				if undo {
					verb = "Uncompleted"
				}
				return a.printChanges(sess, verb, changeIDs(changes), err)
			})
		},
	}
	cmd.Flags().BoolVar(&undo, "undo", false, "Mark as not completed instead")
	cmd.Flags().BoolVar(&headings, "headings", false, "The id refers to a heading")
	return cmd
}

func (a *app) noteCmd() *cobra.Command {
	var clearNotes bool
	cmd := &cobra.Command{
		Use:   "note <url|file> <id> [text...]",
		Short: "Show or replace the notes of an item",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withSession(cmd.Context(), args[0], func(sess *tracker.Session) error {
				id := args[1]
				if len(args) == 2 && !clearNotes {
					n := tracker.Find(sess.Sidebar(), id)
					if n == nil {
						n = tracker.Find(sess.AllHeadings(), id)
					}
					if n == nil {
						return fmt.Errorf("no item with that id on this page")
					}
					fmt.Fprintln(a.out, n.Notes)
					return nil
				}
				changes, err := sess.SaveNotes(cmd.Context(), id, strings.Join(args[2:], " "))
				return a.printChanges(sess, "Saved notes on", changeIDs(changes), err)
			})
		},
	}
	cmd.Flags().BoolVar(&clearNotes, "clear", false, "Clear the notes")
	return cmd
}

func (a *app) removeCmd() *cobra.Command {
	var headings bool
	cmd := &cobra.Command{
		Use:   "remove <url|file> <id>",
		Short: "Hide an item and its children from tracking",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withSession(cmd.Context(), args[0], func(sess *tracker.Session) error {
				changes, err := sess.MarkRemoved(cmd.Context(), viewFlag(headings), args[1])
				return a.printChanges(sess, "Removed", changeIDs(changes), err)
			})
		},
	}
	cmd.Flags().BoolVar(&headings, "headings", false, "The id refers to a heading")
	return cmd
}

func (a *app) restoreCmd() *cobra.Command {
	var headings bool
	cmd := &cobra.Command{
		Use:   "restore <url|file> <id>",
		Short: "Bring back a removed item and its children",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withSession(cmd.Context(), args[0], func(sess *tracker.Session) error {
				changes, err := sess.Restore(cmd.Context(), viewFlag(headings), args[1])
				return a.printChanges(sess, "Restored", changeIDs(changes), err)
			})
		},
	}
	cmd.Flags().BoolVar(&headings, "headings", false, "The id refers to a heading")
	return cmd
}

func (a *app) progressCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "progress <url|file>",
		Short: "Print completion progress of a page",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withSession(cmd.Context(), args[0], func(sess *tracker.Session) error {
				fmt.Fprintf(a.out, "Sidebar:  %s\n", sess.Progress())
				fmt.Fprintf(a.out, "Headings: %s\n", sess.HeadingProgress())
				return nil
			})
		},
	}
}
