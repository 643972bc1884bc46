package main

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/example/thaw/internal/config"
	"github.com/example/thaw/internal/ipc"
	"github.com/example/thaw/internal/menu"
	"github.com/example/thaw/internal/protocol"
	"github.com/example/thaw/internal/resolver"
	"github.com/example/thaw/internal/service"
)

func TestParseWindowID(t *testing.T) {
	id, err := parseWindowID("42")
	if err != nil || id != 42 {
		t.Fatalf("parseWindowID(42) = %d, %v", id, err)
	}
	for _, raw := range []string{"", "-1", "abc", "4294967296"} {
		if _, err := parseWindowID(raw); err == nil {
			t.Fatalf("parseWindowID(%q) succeeded", raw)
		}
	}
}

func TestFormatOwner(t *testing.T) {
	cases := map[string]protocol.Owner{
		"window 7: pid 1234":          protocol.FoundOwner(1234),
		"window 7: no owner found":    {Status: protocol.OwnerNotFound},
		"window 7: owner unavailable": {Status: protocol.OwnerUnavailable},
	}
	for want, owner := range cases {
		if got := formatOwner(7, owner); got != want {
			t.Fatalf("formatOwner = %q, want %q", got, want)
		}
	}
}

func TestWriteItems(t *testing.T) {
	entries := []menu.Entry{
		{Window: protocol.WindowInfo{WindowID: 7, Title: "Wi-Fi"}, Owner: protocol.FoundOwner(1234)},
		{Window: protocol.WindowInfo{WindowID: 42}, Owner: protocol.Owner{Status: protocol.OwnerNotFound}},
	}

	var plain bytes.Buffer
	if err := writeItems(&plain, entries, false); err != nil {
		t.Fatalf("writeItems: %v", err)
	}
	want := "7\tWi-Fi\tpid 1234\n42\twindow 42\tnot-found\n"
	if got := plain.String(); got != want {
		t.Fatalf("plain output = %q, want %q", got, want)
	}

	var table bytes.Buffer
	if err := writeItems(&table, entries, true); err != nil {
		t.Fatalf("writeItems: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(table.String()), "\n")
	if len(lines) != 3 || !strings.HasPrefix(lines[0], "WINDOW") {
		t.Fatalf("table output = %q", table.String())
	}
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"version"})
	defer rootCmd.SetArgs(nil)

	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.HasPrefix(out.String(), "thaw dev") {
		t.Fatalf("unexpected version output %q", out.String())
	}
}

func TestResolveCommandUsesRunningHelper(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("THAW_CONFIG_PATH", filepath.Join(dir, "missing.yaml"))
	t.Setenv("THAW_SOCKET_DIR", dir)
	t.Setenv("THAW_SERVICE_NAME", "thaw.test")
	t.Setenv("DISPLAY", "")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("config.Load: %v", err)
	}
	engine := resolver.NewEngine(resolver.NewStaticRegistry(resolver.DemoWindows()...))
	svc, err := service.New(cfg, engine)
	if err != nil {
		t.Fatalf("service.New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := make(chan error, 1)
	go func() { errCh <- svc.Run(ctx) }()

	endpoint, err := ipc.ForService(cfg.ServiceName, dir)
	if err != nil {
		t.Fatalf("ForService: %v", err)
	}
	waitCtx, waitCancel := context.WithTimeout(ctx, 2*time.Second)
	defer waitCancel()
	if err := ipc.WaitForSocket(waitCtx, endpoint.Path); err != nil {
		t.Fatalf("WaitForSocket: %v", err)
	}

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"resolve", "7"})
	defer rootCmd.SetArgs(nil)
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got := strings.TrimSpace(out.String()); got != "window 7: pid 1234" {
		t.Fatalf("resolve output = %q", got)
	}

	cancel()
	if err := <-errCh; !errors.Is(err, context.Canceled) {
		t.Fatalf("service Run: %v", err)
	}
}
