package swizzle

import (
	"fmt"
	"reflect"

	"github.com/google/uuid"
)

// PolymorphicFunc builds a replacement from the implementation it replaces,
// so the replacement can call through to it. It is called once, while the
// redefinition is being created. An error it returns is passed back to the
// caller as is.
type PolymorphicFunc func(sel string, original *Imp) (*Imp, error)

// Polymorphic adapts a typed generator to a PolymorphicFunc. The original
// implementation must hold a T.
//
//	swizzle.Polymorphic(func(sel string, original objrt.Method) objrt.Method {
//		return func(self any, args ...any) (any, error) {
//			v, err := original(self, args...)
//			...
//		}
//	})
func Polymorphic[T any](gen func(sel string, original T) T) PolymorphicFunc {
	if gen == nil {
		return nil
	}
	return func(sel string, original *Imp) (*Imp, error) {
		fn, ok := FuncOf[T](original)
		if !ok {
			return nil, fmt.Errorf("%w: original implementation of %q is %T, not %T", ErrInvalidArgument, sel, original.Func(), fn)
		}
		return NewImp(gen(sel, fn)), nil
	}
}

// New creates a redefinition of target without starting it.
func New(reg Registry, target Target, imp *Imp, opts ...Option) (*Redefinition, error) {
	if err := checkFunc(imp); err != nil {
		return nil, err
	}
	return build(reg, target, func(string, *Imp) (*Imp, error) {
		return imp, nil
	}, opts)
}

// NewPolymorphic creates a redefinition of target without starting it. The
// replacement comes from calling gen with the current implementation.
func NewPolymorphic(reg Registry, target Target, gen PolymorphicFunc, opts ...Option) (*Redefinition, error) {
	if gen == nil {
		return nil, fmt.Errorf("%w: nil polymorphic implementation", ErrInvalidArgument)
	}
	return build(reg, target, gen, opts)
}

// RedefineClass redefines a class selector and starts the redefinition.
func RedefineClass(reg Registry, class Class, sel string, imp *Imp, opts ...Option) (*Redefinition, error) {
	return started(New(reg, Target{Class: class, Selector: sel, Scope: ClassScope}, imp, opts...))
}

// RedefineClassPolymorphic redefines a class selector with a replacement
// built by gen and starts the redefinition.
func RedefineClassPolymorphic(reg Registry, class Class, sel string, gen PolymorphicFunc, opts ...Option) (*Redefinition, error) {
	return started(NewPolymorphic(reg, Target{Class: class, Selector: sel, Scope: ClassScope}, gen, opts...))
}

// RedefineInstances redefines a selector for every instance of class and
// starts the redefinition.
func RedefineInstances(reg Registry, class Class, sel string, imp *Imp, opts ...Option) (*Redefinition, error) {
	return started(New(reg, Target{Class: class, Selector: sel, Scope: InstanceScope}, imp, opts...))
}

// RedefineInstancesPolymorphic redefines a selector for every instance of
// class with a replacement built by gen and starts the redefinition.
func RedefineInstancesPolymorphic(reg Registry, class Class, sel string, gen PolymorphicFunc, opts ...Option) (*Redefinition, error) {
	return started(NewPolymorphic(reg, Target{Class: class, Selector: sel, Scope: InstanceScope}, gen, opts...))
}

func started(r *Redefinition, err error) (*Redefinition, error) {
	if err != nil {
		return nil, err
	}
	r.Start()
	return r, nil
}

func build(reg Registry, target Target, gen PolymorphicFunc, opts []Option) (*Redefinition, error) {
	if reg == nil {
		return nil, fmt.Errorf("%w: nil registry", ErrInvalidArgument)
	}
	if isNil(target.Class) {
		return nil, fmt.Errorf("%w: nil class", ErrInvalidArgument)
	}
	if target.Selector == "" {
		return nil, fmt.Errorf("%w: empty selector", ErrInvalidArgument)
	}
	if !reg.RespondsTo(target.Class, target.Selector, target.Scope) {
		return nil, fmt.Errorf("%w: %v is not implemented", ErrUnsupportedTarget, target)
	}

	original := reg.Implementation(target)
	if original == nil {
		return nil, fmt.Errorf("%w: no implementation bound to %v", ErrUnsupportedTarget, target)
	}

	replacement, err := gen(target.Selector, original)
	if err != nil {
		return nil, err
	}
	if replacement == nil {
		return nil, fmt.Errorf("%w: polymorphic implementation of %v returned nil", ErrInvalidArgument, target)
	}
	if err := checkFunc(replacement); err != nil {
		return nil, err
	}
	if checker, ok := reg.(ImpChecker); ok {
		if err := checker.CheckImp(target, replacement); err != nil {
			return nil, fmt.Errorf("%w: %v: %w", ErrInvalidArgument, target, err)
		}
	}

	o := buildOptions(opts)
	return newRedefinition(&record{
		id:          uuid.New(),
		reg:         reg,
		target:      target,
		key:         slotKey(reg, target),
		original:    original,
		replacement: replacement,
		log:         o.log,
	}), nil
}

func isNil(class Class) bool {
	if class == nil {
		return true
	}
	v := reflect.ValueOf(class)
	switch v.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Interface, reflect.Func, reflect.Slice, reflect.Chan:
		return v.IsNil()
	}
	return false
}
