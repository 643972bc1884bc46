//go:build !linux && !darwin

package ipc

import "syscall"

func peerUID(syscall.RawConn) (uint32, error) {
	return 0, errPeerCredUnsupported
}
