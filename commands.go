package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/tektrg/command-bar-extension-sub000/internal/export"
	"github.com/tektrg/command-bar-extension-sub000/internal/firefox"
	"github.com/tektrg/command-bar-extension-sub000/internal/pinned"
	"github.com/tektrg/command-bar-extension-sub000/internal/prefs"
	"github.com/tektrg/command-bar-extension-sub000/internal/storage"
)

func newExportCmd(a *app) *cobra.Command {
	var asJSON bool
	var outFile string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the panel as markdown or JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			db, _, err := a.openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			src, err := a.openSource(false)
			if err != nil {
				return err
			}
			g, gctx := errgroup.WithContext(ctx)
			defer func() {
				cancel()
				g.Wait()
			}()
			sf, err := a.startSurface(gctx, g, src, db, nil, connectTimeout)
			if err != nil {
				return err
			}

			var output string
			if asJSON {
				output, err = export.JSON(string(sf.Kind), sf.Panel)
				if err != nil {
					return err
				}
			} else {
				output = export.Markdown(string(sf.Kind), sf.Panel)
			}

			if outFile != "" {
				if err := os.WriteFile(outFile, []byte(output), 0o644); err != nil {
					return err
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "Exported to %s\n", outFile)
				return nil
			}
			fmt.Fprint(cmd.OutOrStdout(), output)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Export as JSON instead of markdown")
	cmd.Flags().StringVarP(&outFile, "out", "o", "", "Output file (default stdout)")
	return cmd
}

func newProfilesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "profiles",
		Short: "List usable Firefox profiles",
		RunE: func(cmd *cobra.Command, args []string) error {
			profiles, err := firefox.DiscoverProfiles()
			if err != nil {
				return err
			}
			if len(profiles) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No Firefox profiles found.")
				return nil
			}
			for _, p := range profiles {
				def := ""
				if p.IsDefault {
					def = " (default)"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "  %s%s\n    %s\n", p.Name, def, p.Path)
			}
			return nil
		},
	}
}

func newPinnedCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pinned",
		Short: "Manage the pinned-tab collection",
	}

	// open works on the state database directly. Only sync consults the
	// browser.
	open := func(withBrowser bool) (*pinned.Coordinator, func(), error) {
		db, _, err := a.openDB()
		if err != nil {
			return nil, nil, err
		}
		kv := storage.NewKV(db, "cli")
		var c *pinned.Coordinator
		if withBrowser {
			src, err := a.openSource(false)
			if err != nil {
				db.Close()
				return nil, nil, err
			}
			if src.srv != nil {
				db.Close()
				return nil, nil, fmt.Errorf("pinned sync reads a profile; use the panel or serve for live mode")
			}
			c = pinned.New(src.host, prefs.New(kv, nil))
		} else {
			c = pinned.New(nil, prefs.New(kv, nil))
		}
		return c, func() { db.Close() }, nil
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List pinned entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, done, err := open(false)
			if err != nil {
				return err
			}
			defer done()
			entries, err := c.Entries(cmd.Context())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for i, e := range entries {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", i+1, e.Title, e.URL, e.PinnedAt.Local().Format("2006-01-02 15:04"))
			}
			return w.Flush()
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "add <url> [title]",
		Short: "Pin a url",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, done, err := open(false)
			if err != nil {
				return err
			}
			defer done()
			title := args[0]
			if len(args) > 1 {
				title = args[1]
			}
			res, err := c.Add(cmd.Context(), args[0], title, "", nil)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), res)
			if res != pinned.Added {
				return fmt.Errorf("not pinned: %s", res)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "remove <url>",
		Short: "Unpin a url",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, done, err := open(false)
			if err != nil {
				return err
			}
			defer done()
			removed, err := c.Remove(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !removed {
				return fmt.Errorf("%s is not pinned", args[0])
			}
			fmt.Fprintln(cmd.OutOrStdout(), "removed")
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "sync",
		Short: "Add the browser's pinned tabs to the collection",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, done, err := open(true)
			if err != nil {
				return err
			}
			defer done()
			added, err := c.SyncNow(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d added\n", added)
			return nil
		},
	})

	return cmd
}
