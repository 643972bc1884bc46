package resolver

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/example/thaw/internal/protocol"
)

func menuItem(id uint32, pid int32) protocol.WindowInfo {
	return protocol.WindowInfo{
		WindowID:  id,
		OwnerPID:  pid,
		OwnerName: "Control Center",
		Title:     "Item-0",
		Layer:     protocol.MenuBarLayer,
		OnScreen:  true,
	}
}

func TestResolveOwnerFound(t *testing.T) {
	engine := NewEngine(NewStaticRegistry(menuItem(7, 1234), menuItem(8, 99)))

	owner, err := engine.ResolveOwner(context.Background(), protocol.WindowInfo{WindowID: 7})
	require.NoError(t, err)
	require.Equal(t, protocol.FoundOwner(1234), owner)
}

func TestResolveOwnerMissingWindow(t *testing.T) {
	engine := NewEngine(NewStaticRegistry(menuItem(7, 1234)))

	owner, err := engine.ResolveOwner(context.Background(), protocol.WindowInfo{WindowID: 42})
	require.NoError(t, err)
	require.Equal(t, protocol.OwnerNotFound, owner.Status)
}

func TestResolveOwnerWithoutPID(t *testing.T) {
	engine := NewEngine(NewStaticRegistry(menuItem(7, 0), menuItem(8, -1)))

	for _, id := range []uint32{7, 8} {
		owner, err := engine.ResolveOwner(context.Background(), protocol.WindowInfo{WindowID: id})
		require.NoError(t, err)
		require.Equal(t, protocol.OwnerNotFound, owner.Status)
	}
}

func TestResolveOwnerIgnoresStaleObservation(t *testing.T) {
	registry := NewStaticRegistry(menuItem(7, 1234))
	engine := NewEngine(registry)
	observed := menuItem(7, 311)

	registry.Set(menuItem(7, 5678))
	owner, err := engine.ResolveOwner(context.Background(), observed)
	require.NoError(t, err)
	require.Equal(t, protocol.FoundOwner(5678), owner)

	registry.Set()
	owner, err = engine.ResolveOwner(context.Background(), observed)
	require.NoError(t, err)
	require.Equal(t, protocol.OwnerNotFound, owner.Status)
}

func TestResolveOwnerRegistryFailure(t *testing.T) {
	engine := NewEngine(FailingRegistry{Err: errors.New("window server gone")})

	owner, err := engine.ResolveOwner(context.Background(), protocol.WindowInfo{WindowID: 7})
	require.ErrorIs(t, err, ErrUnavailable)
	require.Equal(t, protocol.OwnerUnavailable, owner.Status)
	require.Contains(t, err.Error(), "window server gone")
}

func TestResolveOwnerCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	owner, err := NewEngine(NewStaticRegistry(menuItem(7, 1234))).ResolveOwner(ctx, protocol.WindowInfo{WindowID: 7})
	require.ErrorIs(t, err, ErrUnavailable)
	require.Equal(t, protocol.OwnerUnavailable, owner.Status)
}

func TestResolveOwnerConcurrent(t *testing.T) {
	registry := NewStaticRegistry()
	windows := make([]protocol.WindowInfo, 0, 64)
	for i := 1; i <= 64; i++ {
		windows = append(windows, menuItem(uint32(i), int32(1000+i)))
	}
	registry.Set(windows...)
	engine := NewEngine(registry)

	var wg sync.WaitGroup
	errs := make(chan error, 64)
	for i := 1; i <= 64; i++ {
		wg.Add(1)
		go func(id uint32) {
			defer wg.Done()
			owner, err := engine.ResolveOwner(context.Background(), protocol.WindowInfo{WindowID: id})
			if err != nil {
				errs <- err
				return
			}
			if owner != protocol.FoundOwner(int32(1000+id)) {
				errs <- errors.New("wrong owner for " + owner.String())
			}
		}(uint32(i))
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatal(err)
	}
}

func TestMenuBarItemsFiltersLayer(t *testing.T) {
	items, err := MenuBarItems(context.Background(), NewStaticRegistry(DemoWindows()...))
	require.NoError(t, err)
	require.Len(t, items, 3)
	for _, item := range items {
		require.True(t, item.IsMenuBarItem())
	}

	_, err = MenuBarItems(context.Background(), FailingRegistry{})
	require.ErrorIs(t, err, ErrUnavailable)
}
