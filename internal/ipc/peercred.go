package ipc

import (
	"errors"
	"fmt"
	"net"
	"os"
	"syscall"

	"github.com/example/thaw/internal/logging"
)

// ErrPeerRejected is returned when a connecting process runs as another user.
var ErrPeerRejected = errors.New("peer rejected")

var errPeerCredUnsupported = errors.New("peer credentials unsupported")

// CheckPeer admits connections from the current user and from root. Transports
// without kernel peer credentials are admitted unchecked.
func CheckPeer(conn net.Conn) error {
	uc, ok := conn.(*net.UnixConn)
	if !ok {
		logging.Debugf("ipc: %T carries no peer credentials; admitting", conn)
		return nil
	}

	raw, err := uc.SyscallConn()
	if err != nil {
		return fmt.Errorf("peer credentials: %w", err)
	}

	uid, err := peerUID(raw)
	if errors.Is(err, errPeerCredUnsupported) {
		logging.Debugf("ipc: peer credentials unsupported on this platform; admitting")
		return nil
	}
	if err != nil {
		return fmt.Errorf("peer credentials: %w", err)
	}

	if uid != 0 && uid != uint32(os.Getuid()) {
		return fmt.Errorf("%w: uid %d", ErrPeerRejected, uid)
	}
	return nil
}

func controlFD(raw syscall.RawConn, fn func(fd int) error) error {
	var opErr error
	if err := raw.Control(func(fd uintptr) {
		opErr = fn(int(fd))
	}); err != nil {
		return err
	}
	return opErr
}
