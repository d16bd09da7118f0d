//go:build !linux || !(amd64 || arm64)

package native

import (
	"fmt"

	"github.com/pboyd/swizzle"
)

// Registry is unavailable on this platform.
type Registry struct{}

// New always fails on this platform.
func New(opts ...Option) (*Registry, error) {
	return nil, ErrUnsupportedPlatform
}

// Bind always fails on this platform.
func (r *Registry) Bind(class swizzle.Class, sel string, fn any) error {
	return ErrUnsupportedPlatform
}

func (r *Registry) RespondsTo(class swizzle.Class, sel string, scope swizzle.Scope) bool {
	return false
}

func (r *Registry) Implementation(t swizzle.Target) *swizzle.Imp {
	return nil
}

func (r *Registry) SetImplementation(t swizzle.Target, imp *swizzle.Imp) (*swizzle.Imp, error) {
	return nil, fmt.Errorf("%v: %w", t, ErrUnsupportedPlatform)
}
