//go:build linux

package resolver

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/BurntSushi/xgb/xproto"
	"github.com/BurntSushi/xgbutil"
	"github.com/BurntSushi/xgbutil/ewmh"
	"github.com/BurntSushi/xgbutil/icccm"
	"github.com/BurntSushi/xgbutil/xprop"

	"github.com/example/thaw/internal/logging"
	"github.com/example/thaw/internal/protocol"
)

// dockLayer mirrors the CoreGraphics dock window level.
const dockLayer int32 = 20

// x11Registry lists managed clients and system tray icons. Tray icons are the
// X11 counterpart of menu-bar items and are reported at MenuBarLayer.
//
// mu guards only the xu pointer. Queries run on a snapshot of it without the
// lock, so concurrent resolutions pipeline on the one X connection.
type x11Registry struct {
	mu   sync.Mutex
	xu   *xgbutil.XUtil
	dial func() (*xgbutil.XUtil, error)
}

// NewSystemRegistry connects to the X server named by DISPLAY. A connection
// lost later is re-established on the next query.
func NewSystemRegistry() (Registry, error) {
	r := &x11Registry{dial: xgbutil.NewConn}
	if _, err := r.conn(); err != nil {
		return nil, err
	}
	return r, nil
}

// conn returns the current connection, dialing one when there is none.
func (r *x11Registry) conn() (*xgbutil.XUtil, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.xu != nil {
		return r.xu, nil
	}
	xu, err := r.dial()
	if err != nil {
		return nil, fmt.Errorf("%w: connect to X server: %v", ErrUnavailable, err)
	}
	r.xu = xu
	return xu, nil
}

// drop discards xu after it failed mid-query so the next call reconnects. A
// connection that already replaced xu is left alone.
func (r *x11Registry) drop(xu *xgbutil.XUtil) {
	r.mu.Lock()
	if r.xu != xu {
		r.mu.Unlock()
		return
	}
	r.xu = nil
	r.mu.Unlock()
	closeConn(xu)
}

func closeConn(xu *xgbutil.XUtil) {
	if xu == nil {
		return
	}
	if c := xu.Conn(); c != nil {
		c.Close()
	}
}

func (r *x11Registry) Windows(ctx context.Context) ([]protocol.WindowInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	xu, err := r.conn()
	if err != nil {
		return nil, err
	}

	clients, err := ewmh.ClientListGet(xu)
	if err != nil {
		r.drop(xu)
		return nil, fmt.Errorf("%w: read client list: %v", ErrUnavailable, err)
	}

	windows := make([]protocol.WindowInfo, 0, len(clients)+8)
	for _, win := range trayIcons(xu) {
		if info, ok := describe(xu, win, protocol.MenuBarLayer); ok {
			windows = append(windows, info)
		}
	}
	for _, win := range clients {
		layer := int32(0)
		if isDock(xu, win) {
			layer = dockLayer
		}
		if info, ok := describe(xu, win, layer); ok {
			windows = append(windows, info)
		}
	}
	return windows, nil
}

func (r *x11Registry) Close() error {
	r.mu.Lock()
	xu := r.xu
	r.xu = nil
	r.mu.Unlock()
	closeConn(xu)
	return nil
}

// trayIcons returns the icon windows embedded in the system tray of the
// default screen. No tray manager yields no icons.
func trayIcons(xu *xgbutil.XUtil) []xproto.Window {
	name := "_NET_SYSTEM_TRAY_S" + strconv.Itoa(xu.Conn().DefaultScreen)
	atom, err := xprop.Atm(xu, name)
	if err != nil {
		logging.Debugf("resolver: intern %s: %v", name, err)
		return nil
	}
	owner, err := xproto.GetSelectionOwner(xu.Conn(), atom).Reply()
	if err != nil || owner.Owner == xproto.WindowNone {
		return nil
	}
	tree, err := xproto.QueryTree(xu.Conn(), owner.Owner).Reply()
	if err != nil {
		logging.Debugf("resolver: query tray tree: %v", err)
		return nil
	}
	return tree.Children
}

func isDock(xu *xgbutil.XUtil, win xproto.Window) bool {
	types, err := ewmh.WmWindowTypeGet(xu, win)
	if err != nil {
		return false
	}
	for _, t := range types {
		if t == "_NET_WM_WINDOW_TYPE_DOCK" {
			return true
		}
	}
	return false
}

func describe(xu *xgbutil.XUtil, win xproto.Window, layer int32) (protocol.WindowInfo, bool) {
	conn := xu.Conn()
	geom, err := xproto.GetGeometry(conn, xproto.Drawable(win)).Reply()
	if err != nil {
		return protocol.WindowInfo{}, false
	}
	translate, err := xproto.TranslateCoordinates(conn, win, xu.RootWin(), 0, 0).Reply()
	if err != nil {
		return protocol.WindowInfo{}, false
	}

	onScreen := false
	if attrs, err := xproto.GetWindowAttributes(conn, win).Reply(); err == nil {
		onScreen = attrs.MapState == xproto.MapStateViewable
	}

	var pid int32
	if p, err := ewmh.WmPidGet(xu, win); err == nil {
		pid = int32(p)
	}

	return protocol.WindowInfo{
		WindowID:  uint32(win),
		OwnerPID:  pid,
		OwnerName: processName(pid),
		Title:     windowTitle(xu, win),
		Layer:     layer,
		Frame: protocol.Rect{
			X:      float64(translate.DstX),
			Y:      float64(translate.DstY),
			Width:  float64(geom.Width),
			Height: float64(geom.Height),
		},
		OnScreen: onScreen,
	}, true
}

func windowTitle(xu *xgbutil.XUtil, win xproto.Window) string {
	if title, err := ewmh.WmNameGet(xu, win); err == nil {
		if title = strings.TrimSpace(title); title != "" {
			return title
		}
	}
	if title, err := icccm.WmNameGet(xu, win); err == nil {
		return strings.TrimSpace(title)
	}
	return ""
}

func processName(pid int32) string {
	if pid <= 0 {
		return ""
	}
	data, err := os.ReadFile("/proc/" + strconv.Itoa(int(pid)) + "/comm")
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
