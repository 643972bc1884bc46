package resolver

import (
	"context"
	"errors"
	"fmt"

	"github.com/example/thaw/internal/logging"
	"github.com/example/thaw/internal/protocol"
)

// ErrUnavailable is returned when the window registry cannot be queried.
var ErrUnavailable = errors.New("window registry unavailable")

// Registry snapshots the OS window registry. OwnerPID in each entry holds the
// process that actually owns the window, as far as the backend can tell.
// Implementations must be safe for concurrent use.
type Registry interface {
	Windows(ctx context.Context) ([]protocol.WindowInfo, error)
	Close() error
}

// Engine answers ownership queries against a registry.
type Engine struct {
	registry Registry
}

// NewEngine returns an engine backed by registry.
func NewEngine(registry Registry) *Engine {
	return &Engine{registry: registry}
}

// ResolveOwner reports the process owning the window described by info. A
// window that is gone, or that the registry lists without a usable pid,
// resolves to OwnerNotFound with a nil error. Registry failures resolve to
// OwnerUnavailable and an error wrapping ErrUnavailable.
func (e *Engine) ResolveOwner(ctx context.Context, info protocol.WindowInfo) (protocol.Owner, error) {
	unavailable := protocol.Owner{Status: protocol.OwnerUnavailable}
	if err := ctx.Err(); err != nil {
		return unavailable, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	windows, err := e.registry.Windows(ctx)
	if err != nil {
		if errors.Is(err, ErrUnavailable) {
			return unavailable, err
		}
		return unavailable, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	for _, w := range windows {
		if w.WindowID != info.WindowID {
			continue
		}
		if w.OwnerPID <= 0 {
			logging.Debugf("resolver: window %d listed without owner pid", info.WindowID)
			return protocol.Owner{Status: protocol.OwnerNotFound}, nil
		}
		logging.Debugf("resolver: window %d (%s) owned by pid %d", info.WindowID, logging.MaskIdentifier(w.Title), w.OwnerPID)
		return protocol.FoundOwner(w.OwnerPID), nil
	}

	logging.Debugf("resolver: window %d not in registry snapshot of %d windows", info.WindowID, len(windows))
	return protocol.Owner{Status: protocol.OwnerNotFound}, nil
}

// MenuBarItems returns the menu-bar item windows currently in the registry.
func MenuBarItems(ctx context.Context, registry Registry) ([]protocol.WindowInfo, error) {
	windows, err := registry.Windows(ctx)
	if err != nil {
		return nil, err
	}
	items := make([]protocol.WindowInfo, 0, len(windows))
	for _, w := range windows {
		if w.IsMenuBarItem() {
			items = append(items, w)
		}
	}
	return items, nil
}
