package logging

import (
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestDefaultLogPathUsesXDGStateHome(t *testing.T) {
	state := t.TempDir()
	t.Setenv("XDG_STATE_HOME", state)

	path, err := DefaultLogPath("service")
	if err != nil {
		t.Fatalf("DefaultLogPath: %v", err)
	}
	if want := filepath.Join(state, "thaw", "service.log"); path != want {
		t.Fatalf("DefaultLogPath = %q, want %q", path, want)
	}
}

func TestDefaultLogPathFallsBackToHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("XDG_STATE_HOME", "")
	t.Setenv("HOME", home)

	path, err := DefaultLogPath("client")
	if err != nil {
		t.Fatalf("DefaultLogPath: %v", err)
	}
	if want := filepath.Join(home, ".local", "state", "thaw", "client.log"); path != want {
		t.Fatalf("DefaultLogPath = %q, want %q", path, want)
	}
}

func TestSetOutputFileWritesPrivateFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "service.log")

	closer, err := SetOutputFile(path)
	if err != nil {
		t.Fatalf("SetOutputFile: %v", err)
	}
	log.Printf("service: unit-test-line")
	if err := closer.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !strings.Contains(string(data), "unit-test-line") {
		t.Fatalf("log file missing line: %q", data)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("log file mode = %v, want 0600", info.Mode().Perm())
	}
}

func TestEnvDebug(t *testing.T) {
	for value, want := range map[string]bool{"1": true, "TRUE": true, "on": true, "": false, "0": false, "nope": false} {
		t.Setenv("THAW_DEBUG", value)
		if got := EnvDebug(); got != want {
			t.Fatalf("EnvDebug(%q) = %v, want %v", value, got, want)
		}
	}
}

func TestMaskIdentifier(t *testing.T) {
	cases := map[string]string{
		"":               "",
		"abc":            "****",
		"Wi-Fi Status":   "********atus",
		"  Battery 80% ": "******* 80%",
		"Café ☕ Münster": "**********ster",
		"日本語の天気予報":       "****天気予報",
		"ütf8":           "****",
	}
	for in, want := range cases {
		got := MaskIdentifier(in)
		if got != want {
			t.Fatalf("MaskIdentifier(%q) = %q, want %q", in, got, want)
		}
		if !utf8.ValidString(got) {
			t.Fatalf("MaskIdentifier(%q) produced invalid UTF-8 %q", in, got)
		}
	}
}
