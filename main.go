package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/tektrg/command-bar-extension-sub000/internal/applog"
	"github.com/tektrg/command-bar-extension-sub000/internal/bus"
	"github.com/tektrg/command-bar-extension-sub000/internal/firefox"
	"github.com/tektrg/command-bar-extension-sub000/internal/host"
	"github.com/tektrg/command-bar-extension-sub000/internal/server"
	"github.com/tektrg/command-bar-extension-sub000/internal/storage"
	"github.com/tektrg/command-bar-extension-sub000/internal/surface"
	"github.com/tektrg/command-bar-extension-sub000/internal/tui"
)

// DefaultPort is where the extension bridge and the HTTP API listen.
const DefaultPort = 19192

// connectTimeout bounds how long one-shot commands wait for the extension.
const connectTimeout = 30 * time.Second

type app struct {
	DBPath  string
	LogDir  string
	Profile string
	Surface string
	Port    int
	Live    bool
	Demo    bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}

	cmd := &cobra.Command{
		Use:          "command-bar",
		Short:        "Bookmarks, tabs and history in one keyboard-driven panel",
		SilenceUsage: true,
		Example: strings.TrimSpace(`
  # Browse the default Firefox profile (read-only)
  command-bar

  # Drive the browser through the extension
  command-bar --live

  # Run the bridge and HTTP API without a terminal UI
  command-bar serve
`),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPanel(cmd, a)
		},
	}

	cmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if a.LogDir == "" {
			return nil
		}
		if err := applog.Init(a.LogDir); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Warning: logging disabled: %v\n", err)
		}
		return nil
	}
	cmd.PersistentPostRun = func(cmd *cobra.Command, args []string) {
		applog.Close()
	}

	cmd.PersistentFlags().StringVar(&a.DBPath, "db", envOr("COMMANDBAR_DB", ""), "Path to the state database (default ~/.local/share/command-bar/state.db)")
	cmd.PersistentFlags().StringVar(&a.LogDir, "log-dir", envOr("COMMANDBAR_LOG_DIR", defaultLogDir()), "Directory for command-bar.log (empty disables logging)")
	cmd.PersistentFlags().StringVar(&a.Profile, "profile", envOr("COMMANDBAR_PROFILE", ""), "Firefox profile name (skips the picker)")
	cmd.PersistentFlags().StringVar(&a.Surface, "surface", envOr("COMMANDBAR_SURFACE", string(surface.Sidepanel)), "Surface kind (popup|sidepanel|overlay)")
	cmd.PersistentFlags().IntVar(&a.Port, "port", DefaultPort, "Port for the extension bridge and HTTP API")
	cmd.PersistentFlags().BoolVar(&a.Live, "live", false, "Connect to the browser extension instead of reading a profile")
	cmd.PersistentFlags().BoolVar(&a.Demo, "demo", false, "Use built-in sample data")

	cmd.AddCommand(newServeCmd(a))
	cmd.AddCommand(newExportCmd(a))
	cmd.AddCommand(newPinnedCmd(a))
	cmd.AddCommand(newProfilesCmd(a))

	return cmd
}

func envOr(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func defaultLogDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".local", "share", "command-bar")
}

func (a *app) dbPath() (string, error) {
	if a.DBPath != "" {
		return a.DBPath, nil
	}
	return storage.DefaultDBPath()
}

func (a *app) openDB() (*sql.DB, string, error) {
	path, err := a.dbPath()
	if err != nil {
		return nil, "", err
	}
	db, err := storage.OpenDB(path)
	if err != nil {
		return nil, "", err
	}
	return db, path, nil
}

// source is where a surface's browser data comes from.
type source struct {
	host  host.Host
	srv   *server.Server
	label string
}

func (s *source) connected() func() bool {
	if s.srv == nil {
		return nil
	}
	return s.srv.Connected
}

// openSource picks the extension bridge (--live), sample data (--demo) or a
// Firefox profile. interactive allows the profile picker.
func (a *app) openSource(interactive bool) (*source, error) {
	if a.Live {
		srv := server.New(a.Port)
		return &source{host: srv, srv: srv, label: fmt.Sprintf("live :%d", a.Port)}, nil
	}
	if a.Demo {
		return &source{host: demoHost(), label: "demo"}, nil
	}

	profiles, err := firefox.DiscoverProfiles()
	if err != nil {
		return nil, fmt.Errorf("discover Firefox profiles: %w", err)
	}
	profile, err := firefox.SelectProfile(profiles, a.Profile)
	if err != nil {
		return nil, err
	}
	if interactive && a.Profile == "" && len(profiles) > 1 {
		if profile, err = tui.PickProfile(profiles); err != nil {
			return nil, err
		}
	}
	off, err := firefox.Open(profile)
	if err != nil {
		return nil, err
	}
	return &source{host: off, label: "offline: " + profile.Name}, nil
}

// startSurface builds and boots a surface over src. In live mode it serves
// the bridge and API in g and waits for the extension before booting.
func (a *app) startSurface(ctx context.Context, g *errgroup.Group, src *source, db *sql.DB, b *bus.Bus, wait time.Duration) (*surface.Surface, error) {
	kind, err := surface.ParseKind(a.Surface)
	if err != nil {
		return nil, err
	}
	sf := surface.New(kind, src.host, db, b)

	if src.srv != nil {
		srv := src.srv
		api := server.NewAPI(sf, srv)
		g.Go(func() error { return srv.ListenAndServe(ctx, api.Handler()) })
		if b != nil {
			g.Go(func() error {
				srv.Forward(ctx, b)
				return nil
			})
		}

		fmt.Fprintf(os.Stderr, "Waiting for the extension on port %d…\n", srv.Port())
		waitCtx := ctx
		if wait > 0 {
			var cancel context.CancelFunc
			waitCtx, cancel = context.WithTimeout(ctx, wait)
			defer cancel()
		}
		if err := srv.WaitConnected(waitCtx); err != nil {
			return nil, fmt.Errorf("extension did not connect: %w", err)
		}
	}

	if err := sf.Boot(ctx); err != nil {
		return nil, err
	}
	return sf, nil
}

// follow keeps sf in sync with the browser and with other processes sharing
// the database until ctx is cancelled.
func follow(ctx context.Context, g *errgroup.Group, sf *surface.Surface, dbPath string) {
	g.Go(func() error { return sf.Run(ctx) })
	g.Go(func() error {
		if err := storage.Watch(ctx, sf.KV(), dbPath); err != nil {
			applog.Error("storage.watch", err)
		}
		return nil
	})
}

func runPanel(cmd *cobra.Command, a *app) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	db, dbPath, err := a.openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	src, err := a.openSource(true)
	if err != nil {
		return err
	}

	b := bus.New()
	defer b.Close()

	ctx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)

	sf, err := a.startSurface(gctx, g, src, db, b, 0)
	if err != nil {
		cancel()
		g.Wait()
		return err
	}
	follow(gctx, g, sf, dbPath)

	uiErr := tui.Run(gctx, sf, tui.Options{Source: src.label, Connected: src.connected()})
	cancel()
	if err := g.Wait(); err != nil {
		return err
	}
	return uiErr
}

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the extension bridge and HTTP API without a terminal UI",
		RunE: func(cmd *cobra.Command, args []string) error {
			a.Live = true
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			db, dbPath, err := a.openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			src, err := a.openSource(false)
			if err != nil {
				return err
			}
			b := bus.New()
			defer b.Close()

			g, gctx := errgroup.WithContext(ctx)
			sf, err := a.startSurface(gctx, g, src, db, b, 0)
			if err != nil {
				stop()
				g.Wait()
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
			follow(gctx, g, sf, dbPath)
			applog.Info("serve.ready", "surface", sf.ID, "port", a.Port)
			fmt.Fprintf(cmd.OutOrStdout(), "Serving on 127.0.0.1:%d\n", a.Port)
			return g.Wait()
		},
	}
}
