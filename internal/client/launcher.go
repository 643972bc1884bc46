package client

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"time"
)

// HelperProcess is a launched helper.
type HelperProcess interface {
	Done() <-chan struct{}
	Err() error
	Stop() error
}

// HelperSpec describes how to launch the helper.
type HelperSpec struct {
	Path   string
	Socket string
	Name   string
	Debug  bool
	// ConfigPath is the config file the main process loaded. The helper
	// reads the same file so its session settings match.
	ConfigPath string
}

// Args returns the command line the helper is started with.
func (s HelperSpec) Args() []string {
	var args []string
	if s.ConfigPath != "" {
		args = append(args, "--config", s.ConfigPath)
	}
	args = append(args, "service", "--socket", s.Socket, "--name", s.Name)
	if s.Debug {
		args = append(args, "--debug")
	}
	return args
}

// LaunchFunc starts a helper process.
type LaunchFunc func(ctx context.Context, spec HelperSpec) (HelperProcess, error)

type execHelper struct {
	cmd  *exec.Cmd
	done chan struct{}
	mu   sync.Mutex
	err  error
}

// launchHelperProcess starts the helper detached from the caller's context so
// it outlives the Start call that launched it.
func launchHelperProcess(_ context.Context, spec HelperSpec) (HelperProcess, error) {
	path := spec.Path
	if path == "" {
		exe, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("resolve executable: %w", err)
		}
		path = exe
	}

	cmd := exec.Command(path, spec.Args()...)
	cmd.Env = os.Environ()
	detach(cmd)

	helper := &execHelper{
		cmd:  cmd,
		done: make(chan struct{}),
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start helper: %w", err)
	}

	go helper.wait()
	return helper, nil
}

func (h *execHelper) wait() {
	err := h.cmd.Wait()
	h.mu.Lock()
	h.err = err
	h.mu.Unlock()
	close(h.done)
}

func (h *execHelper) Done() <-chan struct{} {
	return h.done
}

func (h *execHelper) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

func (h *execHelper) Stop() error {
	if h.cmd.Process == nil {
		return nil
	}
	if err := terminateProcess(h.cmd); err != nil {
		if !errors.Is(err, os.ErrProcessDone) {
			return err
		}
	}
	select {
	case <-h.done:
		return nil
	case <-time.After(5 * time.Second):
		return h.cmd.Process.Kill()
	}
}
