package protocol

import "fmt"

// MenuBarLayer is the window layer used by status items in the menu bar.
const MenuBarLayer int32 = 25

// Rect is a window frame in global screen coordinates.
type Rect struct {
	X      float64
	Y      float64
	Width  float64
	Height float64
}

// WindowInfo describes a single observation of an on-screen window as seen by
// an unprivileged observer. Two values describe the same observation only; the
// window identifier may be reused once the window closes.
type WindowInfo struct {
	WindowID  uint32
	OwnerPID  int32
	OwnerName string
	Title     string
	Layer     int32
	Frame     Rect
	OnScreen  bool
}

// IsMenuBarItem reports whether the observed window sits at the status item layer.
func (w WindowInfo) IsMenuBarItem() bool {
	return w.Layer == MenuBarLayer
}

func (w WindowInfo) String() string {
	return fmt.Sprintf("window %d (%s, layer %d)", w.WindowID, w.OwnerName, w.Layer)
}

// OwnerStatus tells apart the three outcomes of an ownership lookup.
type OwnerStatus uint8

const (
	// OwnerNotFound means the window no longer exists in the registry. It is a
	// definitive answer and must not be retried.
	OwnerNotFound OwnerStatus = iota
	// OwnerFound means PID holds the owning process.
	OwnerFound
	// OwnerUnavailable means the registry could not be queried.
	OwnerUnavailable
)

func (s OwnerStatus) String() string {
	switch s {
	case OwnerNotFound:
		return "not-found"
	case OwnerFound:
		return "found"
	case OwnerUnavailable:
		return "unavailable"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}

// Owner is the result of resolving a window's owning process.
type Owner struct {
	Status OwnerStatus
	PID    int32
}

// FoundOwner returns an Owner carrying pid.
func FoundOwner(pid int32) Owner {
	return Owner{Status: OwnerFound, PID: pid}
}

// Found reports whether the owning process is known.
func (o Owner) Found() bool {
	return o.Status == OwnerFound
}

func (o Owner) String() string {
	if o.Found() {
		return fmt.Sprintf("pid %d", o.PID)
	}
	return o.Status.String()
}
