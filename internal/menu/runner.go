package menu

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/example/thaw/internal/config"
	"github.com/example/thaw/internal/logging"
	"github.com/example/thaw/internal/resolver"
)

type trayController interface {
	Run(ctx context.Context, updates <-chan UpdatePayload) error
}

// UpdatePayload is one rendering of the menu-bar listing.
type UpdatePayload struct {
	Groups []Group
	Err    error
}

// Runner periodically lists menu-bar items, resolves their owners through
// the helper and publishes the result to the tray.
type Runner struct {
	refreshInterval time.Duration
	requestTimeout  time.Duration
	registry        resolver.Registry
	resolver        OwnerResolver

	mu          sync.RWMutex
	lastEntries []Entry
	lastDigest  string

	tray            trayController
	updates         chan UpdatePayload
	refreshRequests chan struct{}
}

// NewRunner constructs a Runner listing registry and resolving through res.
func NewRunner(cfg config.Config, registry resolver.Registry, res OwnerResolver) *Runner {
	r := &Runner{
		refreshInterval: cfg.RefreshInterval,
		requestTimeout:  cfg.RequestTimeout,
		registry:        registry,
		resolver:        res,
		refreshRequests: make(chan struct{}, 1),
		updates:         make(chan UpdatePayload, 1),
	}
	r.tray = newTrayController(r.requestRefresh)
	return r
}

// Start runs the tray and refreshes the listing until ctx is canceled or the
// tray exits.
func (r *Runner) Start(ctx context.Context) error {
	logging.Debugf("menu: runner initialising with refresh interval %s", r.refreshInterval)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	trayErr := make(chan error, 1)
	go func() {
		trayErr <- r.tray.Run(ctx, r.updates)
	}()

	if err := r.syncOnce(ctx); err != nil {
		log.Printf("menu: initial refresh failed: %v", err)
	}

	ticker := time.NewTicker(r.refreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("menu: tray stopping")
			return ctx.Err()
		case <-ticker.C:
			if err := r.syncOnce(ctx); err != nil {
				log.Printf("menu: refresh failed: %v", err)
			}
		case <-r.refreshRequests:
			logging.Debugf("menu: manual refresh requested")
			if err := r.syncOnce(ctx); err != nil {
				log.Printf("menu: manual refresh failed: %v", err)
			}
		case err := <-trayErr:
			return err
		}
	}
}

// LatestEntries returns the most recently published entries.
func (r *Runner) LatestEntries() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Entry, len(r.lastEntries))
	copy(out, r.lastEntries)
	return out
}

func (r *Runner) syncOnce(ctx context.Context) error {
	entries, err := Collect(ctx, r.registry, r.resolver, r.requestTimeout)
	if err != nil {
		r.publish(UpdatePayload{Groups: GroupByOwner(r.LatestEntries()), Err: err})
		return err
	}
	logging.Debugf("menu: resolved %d menu bar items", len(entries))
	r.setTrayState(entries)
	return nil
}

func (r *Runner) setTrayState(entries []Entry) {
	digest := hashEntries(entries)

	r.mu.Lock()
	if digest == r.lastDigest && r.lastEntries != nil {
		r.mu.Unlock()
		return
	}
	r.lastEntries = make([]Entry, len(entries))
	copy(r.lastEntries, entries)
	r.lastDigest = digest
	r.mu.Unlock()

	logging.Debugf("menu: published %d entries (digest=%s)", len(entries), digest)
	r.publish(UpdatePayload{Groups: GroupByOwner(entries)})
}

func (r *Runner) requestRefresh() {
	select {
	case r.refreshRequests <- struct{}{}:
	default:
	}
}

// publish replaces any update the tray has not consumed yet.
func (r *Runner) publish(update UpdatePayload) {
	select {
	case r.updates <- update:
	default:
		select {
		case <-r.updates:
		default:
		}
		select {
		case r.updates <- update:
		default:
		}
	}
}

func hashEntries(entries []Entry) string {
	h := sha256.New()
	for _, e := range entries {
		fmt.Fprintf(h, "%d\x00%s\x00%s\x00%s\n", e.Window.WindowID, e.Window.Title, e.Owner, e.OwnerLabel())
	}
	return hex.EncodeToString(h.Sum(nil))
}
