package main

import (
	"context"
	"errors"
	"log"

	"github.com/spf13/cobra"

	"github.com/example/thaw/internal/client"
	"github.com/example/thaw/internal/menu"
	"github.com/example/thaw/internal/resolver"
)

var trayCmd = &cobra.Command{
	Use:   "tray",
	Short: "Show menu bar items and their owners in the system tray",
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

		// A failed start is retried by the first refresh.
		if err := proxy.Start(ctx); err != nil {
			log.Printf("client: %v", err)
		}

		err = menu.NewRunner(cfg, registry, proxy).Start(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	},
}

func init() {
	rootCmd.AddCommand(trayCmd)
}
