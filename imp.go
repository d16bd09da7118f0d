package swizzle

import (
	"fmt"
	"reflect"
	"runtime"
)

// Imp is an implementation bound to a selector. Two Imps are the same
// implementation only if they are the same pointer, so wrap a function once
// and pass the *Imp around.
type Imp struct {
	fn any
}

// NewImp wraps fn. The concrete function type is up to the Registry.
func NewImp(fn any) *Imp {
	return &Imp{fn: fn}
}

// Func returns the wrapped function.
func (i *Imp) Func() any {
	if i == nil {
		return nil
	}
	return i.fn
}

// FuncOf returns the wrapped function as a T.
func FuncOf[T any](i *Imp) (T, bool) {
	fn, ok := i.Func().(T)
	return fn, ok
}

func (i *Imp) String() string {
	if i == nil {
		return "<nil>"
	}
	fnv := reflect.ValueOf(i.fn)
	if fnv.Kind() != reflect.Func || fnv.IsNil() {
		return fmt.Sprintf("<%T>", i.fn)
	}
	if f := runtime.FuncForPC(fnv.Pointer()); f != nil {
		return f.Name()
	}
	return fmt.Sprintf("%#x", fnv.Pointer())
}

func checkFunc(i *Imp) error {
	if i == nil {
		return fmt.Errorf("%w: nil implementation", ErrInvalidArgument)
	}
	fnv := reflect.ValueOf(i.fn)
	if fnv.Kind() != reflect.Func {
		return fmt.Errorf("%w: not a function, kind: %v", ErrInvalidArgument, fnv.Kind())
	}
	if fnv.IsNil() {
		return fmt.Errorf("%w: nil function", ErrInvalidArgument)
	}
	return nil
}
