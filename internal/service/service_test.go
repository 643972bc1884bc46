package service

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/example/thaw/internal/config"
	"github.com/example/thaw/internal/ipc"
	"github.com/example/thaw/internal/protocol"
	"github.com/example/thaw/internal/resolver"
)

func testConfig() config.Config {
	cfg := config.Default()
	cfg.GracePeriod = 100 * time.Millisecond
	return cfg
}

func newTestService(t *testing.T, cfg config.Config) (*Service, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "s.sock")
	engine := resolver.NewEngine(resolver.NewStaticRegistry(protocol.WindowInfo{WindowID: 7, OwnerPID: 1234}))
	svc, err := New(cfg, engine, WithEndpoint(ipc.AtPath(cfg.ServiceName, path)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return svc, path
}

func runService(ctx context.Context, svc *Service) <-chan error {
	errCh := make(chan error, 1)
	go func() { errCh <- svc.Run(ctx) }()
	return errCh
}

func waitSocket(t *testing.T, path string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := ipc.WaitForSocket(ctx, path); err != nil {
		t.Fatalf("WaitForSocket: %v", err)
	}
}

func TestServiceServesClients(t *testing.T) {
	svc, path := newTestService(t, testConfig())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := runService(ctx, svc)
	waitSocket(t, path)

	conn, err := net.Dial("unix", path)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	client := testClient{t: t, conn: conn}
	client.start()

	token := client.send(protocol.SourcePIDRequest{Window: protocol.WindowInfo{WindowID: 7}})
	got, msg := client.receive()
	if got != token {
		t.Fatalf("response token mismatch")
	}
	if resp := msg.(protocol.SourcePIDResponse); resp.Owner != protocol.FoundOwner(1234) {
		t.Fatalf("owner = %s", resp.Owner)
	}

	cancel()
	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Run error = %v, want context.Canceled", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("service did not stop")
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("socket not removed: %v", err)
	}
}

func TestServiceRefusesSecondInstance(t *testing.T) {
	cfg := testConfig()
	svc, path := newTestService(t, cfg)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runService(ctx, svc)
	waitSocket(t, path)

	second, err := New(cfg, resolver.NewEngine(resolver.NewStaticRegistry()), WithEndpoint(ipc.AtPath(cfg.ServiceName, path)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := second.Run(ctx); !errors.Is(err, ipc.ErrAlreadyRunning) {
		t.Fatalf("second Run error = %v, want ErrAlreadyRunning", err)
	}
}

func TestServiceReplacesStaleSocket(t *testing.T) {
	svc, path := newTestService(t, testConfig())

	stale, err := net.Listen("unix", path)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	stale.(*net.UnixListener).SetUnlinkOnClose(false)
	stale.Close()
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("stale socket missing: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runService(ctx, svc)

	waitFor(t, func() bool {
		alive, _ := ipc.AtPath("test", path).Probe(context.Background(), 100*time.Millisecond)
		return alive
	})
}

func TestServiceExitsWhenIdle(t *testing.T) {
	cfg := testConfig()
	cfg.IdleTimeout = 100 * time.Millisecond
	svc, path := newTestService(t, cfg)

	errCh := runService(context.Background(), svc)
	waitSocket(t, path)

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("Run error = %v, want nil", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("service did not exit when idle")
	}
}

func TestServiceStaysUpWhileConnected(t *testing.T) {
	cfg := testConfig()
	cfg.IdleTimeout = 100 * time.Millisecond
	svc, path := newTestService(t, cfg)

	errCh := runService(context.Background(), svc)
	waitSocket(t, path)

	conn, err := net.Dial("unix", path)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	testClient{t: t, conn: conn}.start()

	select {
	case err := <-errCh:
		t.Fatalf("service exited while connected: %v", err)
	case <-time.After(300 * time.Millisecond):
	}

	conn.Close()
	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("Run error = %v, want nil", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("service did not exit after last client left")
	}
}
