package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/example/thaw/internal/client"
	"github.com/example/thaw/internal/menu"
	"github.com/example/thaw/internal/resolver"
)

var itemsCmd = &cobra.Command{
	Use:   "items",
	Short: "List menu bar items and the processes that own them",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		registry, err := resolver.NewSystemRegistry()
		if err != nil {
			return err
		}
		defer registry.Close()

		ctx, stop := signalContext(cmd.Context())
		defer stop()

		proxy, err := client.New(cfg)
		if err != nil {
			return err
		}
		defer proxy.Close()

		entries, err := menu.Collect(ctx, registry, proxy, cfg.RequestTimeout)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		return writeItems(out, entries, isTerminal(out))
	},
}

func init() {
	rootCmd.AddCommand(itemsCmd)
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// writeItems prints an aligned table for terminals and tab-separated lines
// without a header otherwise.
func writeItems(w io.Writer, entries []menu.Entry, table bool) error {
	if !table {
		for _, e := range entries {
			if _, err := fmt.Fprintf(w, "%d\t%s\t%s\n", e.Window.WindowID, e.Label(), e.OwnerLabel()); err != nil {
				return err
			}
		}
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "WINDOW\tTITLE\tOWNER")
	for _, e := range entries {
		fmt.Fprintf(tw, "%d\t%s\t%s\n", e.Window.WindowID, e.Label(), e.OwnerLabel())
	}
	return tw.Flush()
}
