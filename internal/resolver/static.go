package resolver

import (
	"context"
	"fmt"
	"sync"

	"github.com/example/thaw/internal/protocol"
)

// StaticRegistry serves a fixed, replaceable set of windows.
type StaticRegistry struct {
	mu      sync.RWMutex
	windows []protocol.WindowInfo
}

// NewStaticRegistry returns a registry listing windows.
func NewStaticRegistry(windows ...protocol.WindowInfo) *StaticRegistry {
	r := &StaticRegistry{}
	r.Set(windows...)
	return r
}

// Set replaces the listed windows.
func (r *StaticRegistry) Set(windows ...protocol.WindowInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.windows = append([]protocol.WindowInfo(nil), windows...)
}

// Windows returns a copy of the listed windows.
func (r *StaticRegistry) Windows(ctx context.Context) ([]protocol.WindowInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]protocol.WindowInfo(nil), r.windows...), nil
}

// Close is a no-op.
func (r *StaticRegistry) Close() error { return nil }

// FailingRegistry fails every query.
type FailingRegistry struct {
	Err error
}

// Windows always fails with an error wrapping ErrUnavailable.
func (r FailingRegistry) Windows(context.Context) ([]protocol.WindowInfo, error) {
	if r.Err == nil {
		return nil, ErrUnavailable
	}
	return nil, fmt.Errorf("%w: %v", ErrUnavailable, r.Err)
}

// Close is a no-op.
func (FailingRegistry) Close() error { return nil }

// DemoWindows is a small menu bar used by the fake registry diagnostics mode.
func DemoWindows() []protocol.WindowInfo {
	const hostPID = 311
	item := func(id uint32, pid int32, title string, x float64) protocol.WindowInfo {
		return protocol.WindowInfo{
			WindowID:  id,
			OwnerPID:  pid,
			OwnerName: "Control Center",
			Title:     title,
			Layer:     protocol.MenuBarLayer,
			Frame:     protocol.Rect{X: x, Y: 0, Width: 32, Height: 24},
			OnScreen:  true,
		}
	}
	return []protocol.WindowInfo{
		item(7, 1234, "Item-0", 1180),
		item(8, 2048, "Item-0", 1212),
		item(9, hostPID, "Clock", 1244),
		{WindowID: 100, OwnerPID: 4096, OwnerName: "Terminal", Title: "shell", Frame: protocol.Rect{Y: 24, Width: 800, Height: 600}, OnScreen: true},
	}
}
