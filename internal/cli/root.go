// Package cli implements the doctrack command line.
package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/lotas/doctrack/internal/applog"
	"github.com/lotas/doctrack/internal/config"
	"github.com/lotas/doctrack/internal/page"
	"github.com/lotas/doctrack/internal/storage"
	"github.com/lotas/doctrack/internal/tracker"
	"github.com/lotas/doctrack/internal/types"
	"github.com/spf13/cobra"
)

// Version is set at build time.
var Version = "dev"

// app carries the resolved configuration and global flags to every command.
type app struct {
	cfg config.Config

	dbPath          string
	logDir          string
	baseURL         string
	sidebarSelector string
	contentSelector string
	captions        []string

	out    io.Writer
	errOut io.Writer
}

// Execute runs the root command and exits non-zero on misuse or failure.
func Execute() {
	err := NewRootCmd().Execute()
	applog.Close()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// NewRootCmd builds the full command tree.
func NewRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "doctrack",
		Short:         "Track reading progress through documentation sites",
		Long:          "doctrack extracts the table of contents of a documentation page and keeps per-item completion, notes and removal in a local database.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			a.out = cmd.OutOrStdout()
			a.errOut = cmd.ErrOrStderr()
			a.cfg = config.Load()
			if a.dbPath != "" {
				a.cfg.DBPath = a.dbPath
			}
			if a.logDir != "" {
				a.cfg.LogDir = a.logDir
			}
			if a.sidebarSelector != "" {
				a.cfg.SidebarSelector = a.sidebarSelector
			}
			if a.contentSelector != "" {
				a.cfg.ContentSelector = a.contentSelector
			}
			if len(a.captions) > 0 {
				a.cfg.Captions = a.captions
			}
			if err := applog.Init(a.cfg.LogDir); err != nil {
				fmt.Fprintf(a.errOut, "Warning: logging disabled: %v\n", err)
			}
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			applog.Close()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.dbPath, "db", "", "Path to the state database (env DOCTRACK_DB)")
	flags.StringVar(&a.logDir, "log-dir", "", "Directory for doctrack.log (env DOCTRACK_LOG_DIR)")
	flags.StringVar(&a.baseURL, "base-url", "", "Page URL to use for ids when reading a saved local copy")
	flags.StringVar(&a.sidebarSelector, "sidebar-selector", "", "CSS selector of the sidebar region")
	flags.StringVar(&a.contentSelector, "content-selector", "", "CSS selector of the article region scanned for headings")
	flags.StringSliceVar(&a.captions, "captions", nil, "Sidebar captions whose lists are tracked")

	root.AddCommand(
		a.treeCmd(),
		a.checkCmd(),
		a.noteCmd(),
		a.removeCmd(),
		a.restoreCmd(),
		a.progressCmd(),
		a.linksCmd(),
		a.tuiCmd(),
		a.serveCmd(),
		a.mcpCmd(),
		a.snapshotCmd(),
	)
	return root
}

func (a *app) openDB() (*sql.DB, error) {
	db, err := storage.OpenDB(a.cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return db, nil
}

// loadStructure fetches or reads ref and extracts its trees.
func (a *app) loadStructure(ctx context.Context, ref string) (types.Structure, error) {
	p, err := page.Load(ctx, ref, page.Options{Timeout: a.cfg.FetchTimeout, BaseURL: a.baseURL})
	if err != nil {
		return types.Structure{}, err
	}
	return page.Structure(p, a.cfg)
}

// openSession loads ref into a new session backed by store. A failed state
// read is reported as a warning and the session is still returned.
func (a *app) openSession(ctx context.Context, store *storage.StateStore, ref string) (*tracker.Session, error) {
	st, err := a.loadStructure(ctx, ref)
	if err != nil {
		return nil, err
	}
	for _, w := range st.Warnings {
		fmt.Fprintf(a.errOut, "Warning: %s\n", w)
	}
	sess := tracker.NewSession(store, store)
	if err := sess.Load(ctx, st); err != nil {
		fmt.Fprintf(a.errOut, "Warning: %v\n", err)
	}
	return sess, nil
}

// withSession opens the database and a session for ref, runs fn and cleans up.
func (a *app) withSession(ctx context.Context, ref string, fn func(*tracker.Session) error) error {
	db, err := a.openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	sess, err := a.openSession(ctx, storage.NewStateStore(db), ref)
	if err != nil {
		return err
	}
	defer sess.Close()
	return fn(sess)
}

func viewFlag(headings bool) types.ViewKind {
	if headings {
		return types.ViewHeadings
	}
	return types.ViewSidebar
}

// printChanges reports a mutation. A persistence failure is a warning: the
// in-memory result is still printed.
func (a *app) printChanges(sess *tracker.Session, verb string, ids []string, err error) error {
	if err != nil && !errors.Is(err, tracker.ErrPersist) {
		return err
	}
	if len(ids) == 0 {
		return fmt.Errorf("no item with that id on this page")
	}
	fmt.Fprintf(a.out, "%s %d item(s): %s\n", verb, len(ids), strings.Join(ids, ", "))
	fmt.Fprintf(a.out, "Progress: %s\n", sess.Progress())
	if err != nil {
		fmt.Fprintf(a.errOut, "Warning: %v\n", err)
	}
	return nil
}

func changeIDs(changes []types.Change) []string {
	ids := make([]string, len(changes))
	for i, c := range changes {
		ids[i] = c.ID
	}
	return ids
}
