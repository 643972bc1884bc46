//go:build darwin && cgo

package resolver

/*
#cgo CFLAGS: -x objective-c -fmodules -fobjc-arc
#cgo LDFLAGS: -framework CoreGraphics -framework CoreFoundation -framework ApplicationServices
#include <CoreGraphics/CoreGraphics.h>
#include <CoreFoundation/CoreFoundation.h>
#include <ApplicationServices/ApplicationServices.h>
#include <libproc.h>
#include <stdlib.h>
#include <stdint.h>

static CFArrayRef thawCopyWindowInfo(void) {
	return CGWindowListCopyWindowInfo(kCGWindowListOptionOnScreenOnly, kCGNullWindowID);
}

static char* thawCopyCString(CFStringRef ref) {
	if (ref == NULL) {
		return NULL;
	}
	CFIndex length = CFStringGetLength(ref);
	CFIndex maxSize = CFStringGetMaximumSizeForEncoding(length, kCFStringEncodingUTF8) + 1;
	char *buffer = (char *)malloc(maxSize);
	if (buffer == NULL) {
		return NULL;
	}
	if (CFStringGetCString(ref, buffer, maxSize, kCFStringEncodingUTF8)) {
		return buffer;
	}
	free(buffer);
	return NULL;
}

static CFStringRef thawGetString(CFDictionaryRef dict, CFStringRef key) {
	const void *value = CFDictionaryGetValue(dict, key);
	if (value != NULL && CFGetTypeID(value) == CFStringGetTypeID()) {
		return (CFStringRef)value;
	}
	return NULL;
}

static int thawReadSInt64(CFDictionaryRef dict, CFStringRef key, int64_t *out) {
	const void *value = CFDictionaryGetValue(dict, key);
	if (value != NULL && CFGetTypeID(value) == CFNumberGetTypeID()) {
		return CFNumberGetValue((CFNumberRef)value, kCFNumberSInt64Type, out);
	}
	return 0;
}

static int thawReadBool(CFDictionaryRef dict, CFStringRef key) {
	const void *value = CFDictionaryGetValue(dict, key);
	if (value != NULL && CFGetTypeID(value) == CFBooleanGetTypeID()) {
		return CFBooleanGetValue((CFBooleanRef)value) ? 1 : 0;
	}
	return 0;
}

static int thawReadBounds(CFDictionaryRef dict, CGRect *out) {
	const void *value = CFDictionaryGetValue(dict, kCGWindowBounds);
	if (value != NULL && CFGetTypeID(value) == CFDictionaryGetTypeID()) {
		return CGRectMakeWithDictionaryRepresentation((CFDictionaryRef)value, out) ? 1 : 0;
	}
	return 0;
}

static int thawListPIDs(pid_t *out, int max) {
	int n = proc_listallpids(out, max * (int)sizeof(pid_t));
	return n < 0 ? 0 : n;
}

// thawCopyExtras writes the frames of the status items a process exposes
// through its accessibility extras menu bar. Untrusted callers get none.
static int thawCopyExtras(pid_t pid, CGRect *out, int max) {
	AXUIElementRef app = AXUIElementCreateApplication(pid);
	if (app == NULL) {
		return 0;
	}
	AXUIElementSetMessagingTimeout(app, 0.1);

	CFTypeRef bar = NULL;
	if (AXUIElementCopyAttributeValue(app, CFSTR("AXExtrasMenuBar"), &bar) != kAXErrorSuccess || bar == NULL) {
		CFRelease(app);
		return 0;
	}
	CFArrayRef children = NULL;
	if (AXUIElementCopyAttributeValue((AXUIElementRef)bar, kAXChildrenAttribute, (CFTypeRef*)&children) != kAXErrorSuccess || children == NULL) {
		CFRelease(bar);
		CFRelease(app);
		return 0;
	}

	int n = 0;
	CFIndex count = CFArrayGetCount(children);
	for (CFIndex i = 0; i < count && n < max; i++) {
		AXUIElementRef item = (AXUIElementRef)CFArrayGetValueAtIndex(children, i);
		CFTypeRef pos = NULL;
		CFTypeRef size = NULL;
		CGPoint p;
		CGSize s;
		if (AXUIElementCopyAttributeValue(item, kAXPositionAttribute, &pos) == kAXErrorSuccess && pos != NULL &&
			AXUIElementCopyAttributeValue(item, kAXSizeAttribute, &size) == kAXErrorSuccess && size != NULL &&
			AXValueGetValue((AXValueRef)pos, kAXValueCGPointType, &p) &&
			AXValueGetValue((AXValueRef)size, kAXValueCGSizeType, &s)) {
			out[n++] = CGRectMake(p.x, p.y, s.width, s.height);
		}
		if (pos != NULL) {
			CFRelease(pos);
		}
		if (size != NULL) {
			CFRelease(size);
		}
	}
	CFRelease(children);
	CFRelease(bar);
	CFRelease(app);
	return n;
}
*/
import "C"

import (
	"context"
	"fmt"
	"math"
	"unsafe"

	"github.com/example/thaw/internal/logging"
	"github.com/example/thaw/internal/protocol"
)

const (
	maxPIDs         = 4096
	maxExtrasPerApp = 32
	frameMatchSlack = 1.0
)

// cgRegistry reads the CoreGraphics window list. Menu-bar item windows are
// hosted by the window server, so their CoreGraphics owner is replaced by the
// process whose accessibility extras menu bar has an item at the same frame.
type cgRegistry struct{}

// NewSystemRegistry returns the CoreGraphics registry.
func NewSystemRegistry() (Registry, error) {
	return cgRegistry{}, nil
}

func (cgRegistry) Close() error { return nil }

func (cgRegistry) Windows(ctx context.Context) ([]protocol.WindowInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	windows, err := copyWindowList()
	if err != nil {
		return nil, err
	}

	var extras []extra
	for i := range windows {
		if !windows[i].IsMenuBarItem() {
			continue
		}
		if extras == nil {
			extras = collectExtras(ctx)
		}
		if pid, ok := matchExtra(extras, windows[i].Frame); ok {
			windows[i].OwnerPID = pid
		}
	}
	return windows, nil
}

func copyWindowList() ([]protocol.WindowInfo, error) {
	array := C.thawCopyWindowInfo()
	if array == 0 {
		return nil, fmt.Errorf("%w: copy window info", ErrUnavailable)
	}
	defer C.CFRelease(C.CFTypeRef(array))

	count := int(C.CFArrayGetCount(array))
	result := make([]protocol.WindowInfo, 0, count)
	for i := 0; i < count; i++ {
		entry := C.CFArrayGetValueAtIndex(array, C.CFIndex(i))
		if entry == nil {
			continue
		}
		dict := C.CFDictionaryRef(entry)

		var number, pid, layer C.int64_t
		if C.thawReadSInt64(dict, C.kCGWindowNumber, &number) == 0 {
			continue
		}
		C.thawReadSInt64(dict, C.kCGWindowOwnerPID, &pid)
		C.thawReadSInt64(dict, C.kCGWindowLayer, &layer)

		var bounds C.CGRect
		C.thawReadBounds(dict, &bounds)

		result = append(result, protocol.WindowInfo{
			WindowID:  uint32(number),
			OwnerPID:  int32(pid),
			OwnerName: cfStringToGo(C.thawGetString(dict, C.kCGWindowOwnerName)),
			Title:     cfStringToGo(C.thawGetString(dict, C.kCGWindowName)),
			Layer:     int32(layer),
			Frame: protocol.Rect{
				X:      float64(bounds.origin.x),
				Y:      float64(bounds.origin.y),
				Width:  float64(bounds.size.width),
				Height: float64(bounds.size.height),
			},
			OnScreen: C.thawReadBool(dict, C.kCGWindowIsOnscreen) == 1,
		})
	}
	return result, nil
}

type extra struct {
	pid   int32
	frame protocol.Rect
}

func collectExtras(ctx context.Context) []extra {
	pids := make([]C.pid_t, maxPIDs)
	n := int(C.thawListPIDs(&pids[0], C.int(len(pids))))
	if n > len(pids) {
		n = len(pids)
	}

	frames := make([]C.CGRect, maxExtrasPerApp)
	out := make([]extra, 0, 32)
	for _, pid := range pids[:n] {
		if pid <= 0 || ctx.Err() != nil {
			continue
		}
		count := int(C.thawCopyExtras(pid, &frames[0], C.int(len(frames))))
		for _, f := range frames[:count] {
			out = append(out, extra{
				pid: int32(pid),
				frame: protocol.Rect{
					X:      float64(f.origin.x),
					Y:      float64(f.origin.y),
					Width:  float64(f.size.width),
					Height: float64(f.size.height),
				},
			})
		}
	}
	logging.Debugf("resolver: collected %d accessibility extras", len(out))
	return out
}

func matchExtra(extras []extra, frame protocol.Rect) (int32, bool) {
	for _, e := range extras {
		if near(e.frame.X, frame.X) && near(e.frame.Y, frame.Y) &&
			near(e.frame.Width, frame.Width) && near(e.frame.Height, frame.Height) {
			return e.pid, true
		}
	}
	return 0, false
}

func near(a, b float64) bool {
	return math.Abs(a-b) <= frameMatchSlack
}

func cfStringToGo(ref C.CFStringRef) string {
	if ref == 0 {
		return ""
	}
	cstr := C.thawCopyCString(ref)
	if cstr == nil {
		return ""
	}
	defer C.free(unsafe.Pointer(cstr))
	return C.GoString(cstr)
}
