//go:build linux

package ipc

import (
	"syscall"

	"golang.org/x/sys/unix"
)

func peerUID(raw syscall.RawConn) (uint32, error) {
	var uid uint32
	err := controlFD(raw, func(fd int) error {
		cred, err := unix.GetsockoptUcred(fd, unix.SOL_SOCKET, unix.SO_PEERCRED)
		if err != nil {
			return err
		}
		uid = cred.Uid
		return nil
	})
	return uid, err
}
