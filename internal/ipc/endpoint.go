package ipc

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/crypto/blake2b"
)

// maxSocketPath is the sun_path limit on darwin, the stricter of the platforms
// the helper runs on.
const maxSocketPath = 104

// Endpoint describes where the helper listens for the main process.
type Endpoint struct {
	Name string
	Path string
}

// ForService resolves the socket endpoint for the named service. An empty dir
// selects the per-user runtime directory.
func ForService(name, dir string) (Endpoint, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Endpoint{}, errors.New("empty service name")
	}

	if dir == "" {
		var err error
		dir, err = RuntimeDir()
		if err != nil {
			return Endpoint{}, err
		}
	}

	path := filepath.Join(dir, name+".sock")
	if len(path) >= maxSocketPath {
		path = filepath.Join(dir, shortSocketName(name))
	}
	if len(path) >= maxSocketPath {
		return Endpoint{}, fmt.Errorf("socket path %s exceeds %d bytes", path, maxSocketPath-1)
	}
	return Endpoint{Name: name, Path: path}, nil
}

// AtPath returns an endpoint for an explicit socket path.
func AtPath(name, path string) Endpoint {
	return Endpoint{Name: name, Path: path}
}

// RuntimeDir returns the per-user directory that holds the helper socket.
// Priority: XDG_RUNTIME_DIR, /run/user/<uid>, then a private directory below
// the temp dir.
func RuntimeDir() (string, error) {
	if runtimeDir := strings.TrimSpace(os.Getenv("XDG_RUNTIME_DIR")); runtimeDir != "" {
		return runtimeDir, nil
	}

	uid := os.Getuid()
	runUserDir := fmt.Sprintf("/run/user/%d", uid)
	if info, err := os.Stat(runUserDir); err == nil && info.IsDir() {
		return runUserDir, nil
	}

	tmpDir := filepath.Join(os.TempDir(), fmt.Sprintf("thaw-%d", uid))
	if err := os.MkdirAll(tmpDir, 0o700); err != nil {
		return "", fmt.Errorf("create runtime dir: %w", err)
	}
	return tmpDir, nil
}

func shortSocketName(name string) string {
	sum := blake2b.Sum256([]byte(name))
	return "thaw-" + hex.EncodeToString(sum[:8]) + ".sock"
}

// Listen binds the endpoint socket and restricts it to the current user.
func (e Endpoint) Listen() (net.Listener, error) {
	if err := os.MkdirAll(filepath.Dir(e.Path), 0o700); err != nil {
		return nil, fmt.Errorf("ensure socket dir: %w", err)
	}
	l, err := net.Listen("unix", e.Path)
	if err != nil {
		return nil, err
	}
	if err := os.Chmod(e.Path, 0o600); err != nil {
		l.Close()
		return nil, fmt.Errorf("set socket permissions: %w", err)
	}
	return l, nil
}

// DialContext connects to the helper with a bounded connect timeout.
func (e Endpoint) DialContext(ctx context.Context) (net.Conn, error) {
	d := &net.Dialer{Timeout: 2 * time.Second}
	return d.DialContext(ctx, "unix", e.Path)
}

// String provides a readable representation for logs.
func (e Endpoint) String() string {
	return fmt.Sprintf("%s (unix://%s)", e.Name, e.Path)
}
