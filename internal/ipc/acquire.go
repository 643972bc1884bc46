package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"syscall"
	"time"
)

// ErrAlreadyRunning is returned when another helper already serves the endpoint.
var ErrAlreadyRunning = errors.New("menu bar item service already running")

// Acquire binds the endpoint, clearing a stale socket left behind by a helper
// that exited without cleanup. A socket that still accepts connections is
// never removed.
func (e Endpoint) Acquire(ctx context.Context, probeTimeout time.Duration, retries int) (net.Listener, error) {
	for attempt := 0; attempt <= retries; attempt++ {
		listener, err := e.Listen()
		if err == nil {
			return listener, nil
		}
		if !errors.Is(err, syscall.EADDRINUSE) {
			return nil, fmt.Errorf("listen unix %s: %w", e.Path, err)
		}

		alive, probeErr := e.Probe(ctx, probeTimeout)
		if alive {
			return nil, ErrAlreadyRunning
		}
		if probeErr != nil {
			return nil, fmt.Errorf("probe existing socket %s: %w", e.Path, probeErr)
		}

		if removeErr := os.Remove(e.Path); removeErr != nil && !errors.Is(removeErr, os.ErrNotExist) {
			return nil, fmt.Errorf("remove stale socket %s: %w", e.Path, removeErr)
		}

		if attempt < retries {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(25*(attempt+1)) * time.Millisecond):
			}
		}
	}

	return nil, fmt.Errorf("failed to acquire socket %s after %d retries", e.Path, retries)
}

// Probe reports whether something accepts connections on the endpoint.
func (e Endpoint) Probe(ctx context.Context, timeout time.Duration) (bool, error) {
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "unix", e.Path)
	if err == nil {
		conn.Close()
		return true, nil
	}
	if IsNotListening(err) {
		return false, nil
	}
	return false, err
}

// IsNotListening reports dial failures that mean no helper owns the socket.
func IsNotListening(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, os.ErrNotExist) || errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ENOENT)
}
