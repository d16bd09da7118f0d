package native

import (
	"errors"
	"reflect"

	"github.com/pboyd/swizzle"
	"go.uber.org/zap"
)

// ErrUnsupportedPlatform is returned by New where functions can't be patched.
var ErrUnsupportedPlatform = errors.New("native: unsupported platform")

// typeClass is a Go type used as a swizzle.Class.
type typeClass struct {
	t reflect.Type
}

func (c typeClass) Name() string {
	return c.t.String()
}

// Type returns the class for t.
func Type(t reflect.Type) swizzle.Class {
	if t == nil {
		return nil
	}
	return typeClass{t: t}
}

// TypeOf returns the class for the dynamic type of v. Use a pointer to get
// methods with pointer receivers.
func TypeOf(v any) swizzle.Class {
	return Type(reflect.TypeOf(v))
}

// Option configures a Registry.
type Option func(*options)

type options struct {
	log *zap.Logger
}

// WithLogger sets the registry's logger.
func WithLogger(log *zap.Logger) Option {
	return func(o *options) {
		if log != nil {
			o.log = log
		}
	}
}

// method finds the method expression for sel on class.
func method(class swizzle.Class, sel string) (reflect.Value, bool) {
	tc, ok := class.(typeClass)
	if !ok || tc.t.Kind() == reflect.Interface {
		return reflect.Value{}, false
	}
	m, ok := tc.t.MethodByName(sel)
	if !ok {
		return reflect.Value{}, false
	}
	return m.Func, true
}
