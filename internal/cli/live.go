package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/lotas/doctrack/internal/api"
	"github.com/lotas/doctrack/internal/applog"
	"github.com/lotas/doctrack/internal/mcptools"
	"github.com/lotas/doctrack/internal/server"
	"github.com/lotas/doctrack/internal/storage"
	"github.com/lotas/doctrack/internal/tracker"
	"github.com/lotas/doctrack/internal/tui"
	"github.com/lotas/doctrack/internal/types"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
)

func (a *app) tuiCmd() *cobra.Command {
	var (
		live bool
		port int
	)
	cmd := &cobra.Command{
		Use:   "tui [url|file]",
		Short: "Browse and update a page's progress interactively",
		Long:  "Opens the interactive tree for a page. With --live the page is taken from the browser extension's active tab instead.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !live && len(args) == 0 {
				return errors.New("a page url or file is required unless --live is set")
			}
			db, err := a.openDB()
			if err != nil {
				return err
			}
			defer db.Close()
			store := storage.NewStateStore(db)

			opts := tui.Options{Store: store, Settings: store, Timeout: a.cfg.FetchTimeout}
			if live {
				if port > 0 {
					a.cfg.Port = port
				}
				srv := server.New(a.cfg.Port)
				opts.Server = srv
				opts.Timeout = a.cfg.RequestTimeout
				opts.Load = srv.RequestStructure
			} else {
				ref := args[0]
				opts.Load = func(ctx context.Context) (types.Structure, error) {
					return a.loadStructure(ctx, ref)
				}
			}

			p := tea.NewProgram(tui.NewModel(opts), tea.WithAltScreen())
			_, err = p.Run()
			return err
		},
	}
	cmd.Flags().BoolVar(&live, "live", false, "Take the page from the browser extension")
	cmd.Flags().IntVar(&port, "port", 0, "WebSocket port for live mode (env DOCTRACK_PORT)")
	return cmd
}

func (a *app) serveCmd() *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the local HTTP API and extension bridge",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if port > 0 {
				a.cfg.Port = port
			}
			db, err := a.openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			bridge := server.New(a.cfg.Port)
			handler := api.NewServer(storage.NewStateStore(db), bridge, applog.Logger(), a.cfg)
			addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(a.cfg.Port))
			srv := &http.Server{
				Addr:              addr,
				Handler:           handler,
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				applog.Info("api.start", "addr", addr)
				errCh <- srv.ListenAndServe()
			}()
			fmt.Fprintf(a.out, "Listening on http://%s (ws at /ws)\n", addr)

			select {
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			applog.Info("api.stop", "addr", addr)
			return srv.Shutdown(shutdownCtx)
		},
	}
	cmd.Flags().IntVar(&port, "port", 0, "Listen port (env DOCTRACK_PORT)")
	return cmd
}

func (a *app) mcpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the doc tracking tools over MCP on stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := a.openDB()
			if err != nil {
				return err
			}
			defer db.Close()
			store := storage.NewStateStore(db)

			s := mcptools.NewServer(Version, func(ctx context.Context, ref string) (*tracker.Session, error) {
				st, err := a.loadStructure(ctx, ref)
				if err != nil {
					return nil, err
				}
				sess := tracker.NewSession(store, store)
				if err := sess.Load(ctx, st); err != nil {
					applog.Error("mcp.session.load", err, "page", ref)
				}
				return sess, nil
			})
			return mcpserver.ServeStdio(s)
		},
	}
}
