package objrt

import (
	"errors"
	"fmt"

	"github.com/pboyd/swizzle"
	"go.uber.org/zap"
)

var _ interface {
	swizzle.Registry
	swizzle.ImpChecker
	swizzle.SlotKeyer
} = (*Runtime)(nil)

// errNotResolved is returned by SetImplementation for a target the runtime
// can't resolve.
var errNotResolved = errors.New("objrt: target not resolved")

// resolve finds the method slot for t. Inherited selectors resolve to the
// superclass's slot, so redefining one through a subclass changes it for the
// superclass too.
func (rt *Runtime) resolve(t swizzle.Target) *method {
	c, ok := t.Class.(*Class)
	if !ok || c == nil || c.rt != rt {
		return nil
	}
	return c.lookup(t.Selector, t.Scope)
}

// SlotKey implements swizzle.SlotKeyer. A target naming an inherited selector
// has the same key as the class that implements it.
func (rt *Runtime) SlotKey(t swizzle.Target) any {
	if m := rt.resolve(t); m != nil {
		return m
	}
	return nil
}

// RespondsTo implements swizzle.Registry.
func (rt *Runtime) RespondsTo(class swizzle.Class, sel string, scope swizzle.Scope) bool {
	return rt.resolve(swizzle.Target{Class: class, Selector: sel, Scope: scope}) != nil
}

// Implementation implements swizzle.Registry.
func (rt *Runtime) Implementation(t swizzle.Target) *swizzle.Imp {
	m := rt.resolve(t)
	if m == nil {
		return nil
	}
	return m.imp.Load()
}

// SetImplementation implements swizzle.Registry.
func (rt *Runtime) SetImplementation(t swizzle.Target, imp *swizzle.Imp) (*swizzle.Imp, error) {
	m := rt.resolve(t)
	if m == nil {
		return nil, fmt.Errorf("%w: %v", errNotResolved, t)
	}
	if err := rt.CheckImp(t, imp); err != nil {
		return nil, err
	}

	prev := m.imp.Swap(imp)
	rt.log.Debug("implementation set",
		zap.Stringer("target", t),
		zap.String("owner", m.owner.name),
		zap.Stringer("imp", imp),
		zap.Stringer("prev", prev))
	return prev, nil
}

// CheckImp implements swizzle.ImpChecker. Only Methods can be bound.
func (rt *Runtime) CheckImp(t swizzle.Target, imp *swizzle.Imp) error {
	if _, ok := asMethod(imp); !ok {
		return fmt.Errorf("objrt: %v needs an objrt.Method, got %T", t, imp.Func())
	}
	return nil
}
