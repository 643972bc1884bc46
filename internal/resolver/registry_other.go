//go:build !linux && !(darwin && cgo)

package resolver

import "fmt"

// NewSystemRegistry reports that no window registry backend is built in.
func NewSystemRegistry() (Registry, error) {
	return nil, fmt.Errorf("%w: no window registry backend for this platform", ErrUnavailable)
}
