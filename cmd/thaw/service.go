package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/example/thaw/internal/ipc"
	"github.com/example/thaw/internal/logging"
	"github.com/example/thaw/internal/resolver"
	"github.com/example/thaw/internal/service"
)

var (
	serviceSocket       string
	serviceName         string
	serviceLogFile      string
	serviceFakeRegistry bool
)

var serviceCmd = &cobra.Command{
	Use:   "service",
	Short: "Run the menu bar item service helper",
	Long: `Run the helper that answers menu bar item ownership queries.
thaw launches it on demand; running it by hand is useful for debugging.`,
	Args: cobra.NoArgs,
	RunE: runService,
}

func init() {
	serviceCmd.Flags().StringVar(&serviceSocket, "socket", "", "listen on this socket path instead of the runtime directory")
	serviceCmd.Flags().StringVar(&serviceName, "name", "", "service name (defaults to the configured name)")
	serviceCmd.Flags().StringVar(&serviceLogFile, "log-file", "", "append logs to this file (default when detached: state dir)")
	serviceCmd.Flags().BoolVar(&serviceFakeRegistry, "fake-registry", false, "serve a built-in demo window list")
	rootCmd.AddCommand(serviceCmd)
}

func runService(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if serviceName != "" {
		cfg.ServiceName = serviceName
	}

	logPath := serviceLogFile
	if logPath == "" && !term.IsTerminal(int(os.Stderr.Fd())) {
		if logPath, err = logging.DefaultLogPath("service"); err != nil {
			return err
		}
	}
	if logPath != "" {
		closer, err := logging.SetOutputFile(logPath)
		if err != nil {
			return err
		}
		defer closer.Close()
	}

	registry := openRegistry(serviceFakeRegistry)
	defer registry.Close()

	var opts []service.Option
	if serviceSocket != "" {
		opts = append(opts, service.WithEndpoint(ipc.AtPath(cfg.ServiceName, serviceSocket)))
	}
	svc, err := service.New(cfg, resolver.NewEngine(registry), opts...)
	if err != nil {
		return fmt.Errorf("create service: %w", err)
	}

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	err = svc.Run(ctx)
	switch {
	case errors.Is(err, context.Canceled):
		return nil
	case errors.Is(err, ipc.ErrAlreadyRunning):
		log.Printf("service: %v on %s", err, svc.Endpoint())
		return nil
	default:
		return err
	}
}

// openRegistry returns the system registry, or one that answers every query
// as unavailable when the window system cannot be reached.
func openRegistry(fake bool) resolver.Registry {
	if fake {
		log.Printf("service: serving demo window list")
		return resolver.NewStaticRegistry(resolver.DemoWindows()...)
	}
	registry, err := resolver.NewSystemRegistry()
	if err != nil {
		log.Printf("service: %v", err)
		return resolver.FailingRegistry{Err: err}
	}
	return registry
}
