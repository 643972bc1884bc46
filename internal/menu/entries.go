package menu

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/example/thaw/internal/protocol"
	"github.com/example/thaw/internal/resolver"
)

const maxParallelResolves = 8

// OwnerResolver asks the helper who owns a menu-bar item window.
type OwnerResolver interface {
	ResolveSourcePID(ctx context.Context, info protocol.WindowInfo, timeout time.Duration) (protocol.Owner, error)
}

// Entry is a menu-bar item together with its resolved owner.
type Entry struct {
	Window protocol.WindowInfo
	Owner  protocol.Owner
	Err    error
}

// Label is the text shown for the entry in listings.
func (e Entry) Label() string {
	title := e.Window.Title
	if title == "" {
		title = fmt.Sprintf("window %d", e.Window.WindowID)
	}
	return title
}

// OwnerLabel describes the resolved owner, or why there is none.
func (e Entry) OwnerLabel() string {
	switch {
	case e.Err != nil:
		return "error: " + e.Err.Error()
	case e.Owner.Found():
		return fmt.Sprintf("pid %d", e.Owner.PID)
	default:
		return e.Owner.Status.String()
	}
}

// Collect lists the menu-bar items in registry, left to right, and resolves
// the owner of each. Per-item failures are recorded on the entry.
func Collect(ctx context.Context, registry resolver.Registry, res OwnerResolver, timeout time.Duration) ([]Entry, error) {
	items, err := resolver.MenuBarItems(ctx, registry)
	if err != nil {
		return nil, fmt.Errorf("list menu bar items: %w", err)
	}
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Frame.X < items[j].Frame.X
	})

	entries := make([]Entry, len(items))
	sem := make(chan struct{}, maxParallelResolves)
	var wg sync.WaitGroup
	for i, item := range items {
		entries[i].Window = item
		wg.Add(1)
		go func(e *Entry) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			e.Owner, e.Err = res.ResolveSourcePID(ctx, e.Window, timeout)
		}(&entries[i])
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return entries, err
	}
	return entries, nil
}

// Group is the set of entries sharing one owner.
type Group struct {
	Name    string
	Owner   protocol.Owner
	Entries []Entry
}

const unresolvedGroup = "Unresolved"

// GroupByOwner groups entries by owning process in order of first
// appearance. Entries without an owner share one trailing group.
func GroupByOwner(entries []Entry) []Group {
	var (
		groups     []Group
		index      = make(map[int32]int)
		unresolved []Entry
	)
	for _, e := range entries {
		if e.Err != nil || !e.Owner.Found() {
			unresolved = append(unresolved, e)
			continue
		}
		i, ok := index[e.Owner.PID]
		if !ok {
			i = len(groups)
			index[e.Owner.PID] = i
			groups = append(groups, Group{Name: fmt.Sprintf("pid %d", e.Owner.PID), Owner: e.Owner})
		}
		groups[i].Entries = append(groups[i].Entries, e)
	}
	if len(unresolved) > 0 {
		groups = append(groups, Group{Name: unresolvedGroup, Entries: unresolved})
	}
	return groups
}
