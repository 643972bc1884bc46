//go:build unix

package client

import (
	"os/exec"
	"syscall"
)

// detach puts the helper in its own session so terminal signals aimed at the
// main process do not reach it.
func detach(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
}

func terminateProcess(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	return cmd.Process.Signal(syscall.SIGTERM)
}
