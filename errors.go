package swizzle

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidArgument is returned by the constructors when an argument is
	// missing or unusable. Nothing has been changed when it is returned.
	ErrInvalidArgument = errors.New("swizzle: invalid argument")

	// ErrUnsupportedTarget means the class, or its instances, don't implement
	// the selector. It wraps ErrInvalidArgument.
	ErrUnsupportedTarget = fmt.Errorf("%w: unsupported target", ErrInvalidArgument)
)
