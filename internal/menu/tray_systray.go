//go:build cgo

package menu

import (
	"context"
	"sync"

	"github.com/getlantern/systray"

	"github.com/example/thaw/internal/logging"
)

type systrayController struct {
	refresh func()

	mu     sync.Mutex
	slots  groupSlots
	status *systray.MenuItem
	cancel context.CancelFunc
}

// systrayGroup adapts a top-level systray item to groupItem. Listing items
// are informational, so clicks are drained and sub-items stay disabled.
type systrayGroup struct {
	*systray.MenuItem
}

func (g systrayGroup) addChild(title, tooltip string) menuItem {
	mi := g.AddSubMenuItem(title, tooltip)
	mi.Disable()
	return mi
}

func newTrayController(refresh func()) trayController {
	return &systrayController{refresh: refresh}
}

func (c *systrayController) addGroup(ctx context.Context) func(string) groupItem {
	return func(title string) groupItem {
		item := systray.AddMenuItem(title, "")
		go drainClicks(ctx, item.ClickedCh)
		return systrayGroup{item}
	}
}

func (c *systrayController) Run(ctx context.Context, updates <-chan UpdatePayload) error {
	done := make(chan struct{})

	go systray.Run(func() {
		setTemplateIcon(iconData)
		systray.SetTooltip("Thaw menu bar items")

		c.mu.Lock()
		c.status = systray.AddMenuItem("Loading menu bar items…", "")
		c.status.Disable()
		itemCtx, cancel := context.WithCancel(ctx)
		c.cancel = cancel
		c.slots.addGroup = c.addGroup(itemCtx)
		c.mu.Unlock()
		systray.AddSeparator()

		refresh := systray.AddMenuItem("Refresh", "List menu bar items again")
		quit := systray.AddMenuItem("Quit Thaw", "Exit the application")
		systray.AddSeparator()
		go func() {
			for {
				select {
				case <-ctx.Done():
					systray.Quit()
					return
				case <-refresh.ClickedCh:
					if c.refresh != nil {
						c.refresh()
					}
				case <-quit.ClickedCh:
					systray.Quit()
					return
				}
			}
		}()

		go c.listen(ctx, updates)
	}, func() {
		c.shutdown()
		close(done)
	})

	select {
	case <-ctx.Done():
		systray.Quit()
		<-done
		return ctx.Err()
	case <-done:
		return nil
	}
}

func (c *systrayController) listen(ctx context.Context, updates <-chan UpdatePayload) {
	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				systray.Quit()
				return
			}
			c.render(update)
		}
	}
}

func (c *systrayController) render(update UpdatePayload) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.status != nil {
		c.status.SetTitle(statusLine(update))
	}
	c.slots.render(update.Groups)
	logging.Debugf("menu: rendered %d groups on %d tray items", len(update.Groups), c.slots.items())
}

func drainClicks(ctx context.Context, ch <-chan struct{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-ch:
			if !ok {
				return
			}
		}
	}
}

func (c *systrayController) shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
	}
}
