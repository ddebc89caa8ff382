package cli

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/lotas/doctrack/internal/identity"
	"github.com/lotas/doctrack/internal/snapshot"
	"github.com/lotas/doctrack/internal/storage"
	"github.com/spf13/cobra"
)

func (a *app) snapshotCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Record and compare extracted page structures",
		Long:  "Snapshots store the extracted tree of a page (ids, titles, links) so later extractions can be checked for id stability.",
	}
	cmd.AddCommand(
		a.snapshotCreateCmd(),
		a.snapshotListCmd(),
		a.snapshotDiffCmd(),
		a.snapshotDeleteCmd(),
	)
	return cmd
}

func (a *app) snapshotCreateCmd() *cobra.Command {
	var label string
	cmd := &cobra.Command{
		Use:   "create <url|file>",
		Short: "Store the current sidebar structure of a page",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.loadStructure(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			db, err := a.openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			page := identity.PageKey(st.URL)
			rev, created, diff, err := snapshot.Create(db, page, st.Sidebar, label)
			if err != nil {
				return fmt.Errorf("create snapshot: %w", err)
			}
			if !created {
				fmt.Fprintf(a.out, "No changes since snapshot #%d\n", rev)
				return nil
			}
			fmt.Fprintf(a.out, "Snapshot #%d created for %s\n", rev, page)
			if diff != nil && !diff.Stable() {
				fmt.Fprintln(a.out)
				fmt.Fprint(a.out, snapshot.FormatDiff(diff))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&label, "label", "", "Optional label for the snapshot")
	return cmd
}

func (a *app) snapshotListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list [url]",
		Short: "List stored snapshots",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := a.openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			var snaps []storage.SnapshotSummary
			if len(args) == 1 {
				snaps, err = storage.ListSnapshotsByPage(db, a.pageKey(args[0]))
			} else {
				snaps, err = storage.ListSnapshots(db)
			}
			if err != nil {
				return fmt.Errorf("list snapshots: %w", err)
			}
			if len(snaps) == 0 {
				fmt.Fprintln(a.out, "No snapshots found.")
				return nil
			}

			fmt.Fprintf(a.out, "%-5s %6s %8s  %-16s %-14s  %s\n", "REV", "ITEMS", "SIZE", "LABEL", "CREATED", "PAGE")
			for _, s := range snaps {
				fmt.Fprintf(a.out, "%5d %6d %8s  %-16s %-14s  %s\n",
					s.Rev,
					s.NodeCount,
					humanize.Bytes(uint64(s.Size)),
					s.Label,
					humanize.Time(s.CreatedAt),
					s.Page,
				)
			}
			return nil
		},
	}
}

func (a *app) snapshotDiffCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "diff <url|file> [rev] [rev2]",
		Short: "Compare a snapshot with the current page or another snapshot",
		Long: "With no revision, compares the latest snapshot with the page as extracted now. " +
			"With one, compares that revision with the current page. With two, compares the revisions.",
		Args: cobra.RangeArgs(1, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			revs := make([]int, 0, 2)
			for _, s := range args[1:] {
				rev, err := strconv.Atoi(s)
				if err != nil {
					return fmt.Errorf("invalid revision number: %s", s)
				}
				revs = append(revs, rev)
			}

			db, err := a.openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			var result *snapshot.DiffResult
			if len(revs) == 2 {
				// Two stored revisions: the page itself is not loaded.
				result, err = snapshot.DiffRevisions(db, a.pageKey(args[0]), revs[0], revs[1])
			} else {
				st, lerr := a.loadStructure(cmd.Context(), args[0])
				if lerr != nil {
					return lerr
				}
				rev := 0
				if len(revs) == 1 {
					rev = revs[0]
				}
				result, err = snapshot.DiffAgainstCurrent(db, identity.PageKey(st.URL), rev, st.Sidebar)
			}
			if err != nil {
				return err
			}
			fmt.Fprint(a.out, snapshot.FormatDiff(result))
			return nil
		},
	}
}

func (a *app) snapshotDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <url> <rev>",
		Short: "Delete one snapshot",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			rev, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid revision number: %s", args[1])
			}
			db, err := a.openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			page := a.pageKey(args[0])
			if err := storage.DeleteSnapshot(db, page, rev); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Deleted snapshot #%d of %s\n", rev, page)
			return nil
		},
	}
}

// pageKey identifies a page without loading it. --base-url wins so saved
// copies share snapshots with the live page.
func (a *app) pageKey(ref string) string {
	if a.baseURL != "" {
		return identity.PageKey(a.baseURL)
	}
	if !strings.Contains(ref, "://") {
		if abs, err := filepath.Abs(ref); err == nil {
			ref = (&url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}).String()
		}
	}
	return identity.PageKey(ref)
}
