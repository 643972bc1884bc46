//go:build !cgo

package menu

import (
	"context"
	"errors"
)

type stubController struct{}

func newTrayController(func()) trayController {
	return stubController{}
}

// Run reports that the tray needs a cgo build.
func (stubController) Run(context.Context, <-chan UpdatePayload) error {
	return errors.New("system tray is unavailable without cgo support")
}
