package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/example/thaw/internal/client"
	"github.com/example/thaw/internal/logging"
	"github.com/example/thaw/internal/protocol"
	"github.com/example/thaw/internal/resolver"
)

var resolveTimeout time.Duration

var resolveCmd = &cobra.Command{
	Use:   "resolve <window-id>",
	Short: "Resolve the process that owns a menu bar item window",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseWindowID(args[0])
		if err != nil {
			return err
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		ctx, stop := signalContext(cmd.Context())
		defer stop()

		proxy, err := client.New(cfg)
		if err != nil {
			return err
		}
		defer proxy.Close()

		owner, err := proxy.ResolveSourcePID(ctx, lookupWindow(ctx, id), resolveTimeout)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), formatOwner(id, owner))
		return nil
	},
}

func init() {
	resolveCmd.Flags().DurationVar(&resolveTimeout, "timeout", 0, "request timeout (default from config)")
	rootCmd.AddCommand(resolveCmd)
}

func parseWindowID(raw string) (uint32, error) {
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid window id %q: %w", raw, err)
	}
	return uint32(id), nil
}

// lookupWindow fills in what the local registry knows about id. The helper
// only needs the window id, so a bare value is fine when the lookup fails.
func lookupWindow(ctx context.Context, id uint32) protocol.WindowInfo {
	info := protocol.WindowInfo{WindowID: id}
	registry, err := resolver.NewSystemRegistry()
	if err != nil {
		logging.Debugf("resolve: %v", err)
		return info
	}
	defer registry.Close()

	windows, err := registry.Windows(ctx)
	if err != nil {
		logging.Debugf("resolve: %v", err)
		return info
	}
	for _, w := range windows {
		if w.WindowID == id {
			return w
		}
	}
	return info
}

func formatOwner(id uint32, owner protocol.Owner) string {
	switch owner.Status {
	case protocol.OwnerFound:
		return fmt.Sprintf("window %d: pid %d", id, owner.PID)
	case protocol.OwnerNotFound:
		return fmt.Sprintf("window %d: no owner found", id)
	default:
		return fmt.Sprintf("window %d: owner unavailable", id)
	}
}
