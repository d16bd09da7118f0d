// Package swizzletest has helpers for tests that redefine things.
package swizzletest

import (
	"fmt"
	"sync"
	"testing"

	"github.com/pboyd/swizzle"
)

// Class is a class known to a Registry.
type Class struct {
	name string
}

// Name implements swizzle.Class.
func (c *Class) Name() string {
	return c.name
}

// Registry is an in-memory swizzle.Registry that counts writes. Bind the
// targets a test needs before using it.
type Registry struct {
	mu       sync.Mutex
	slots    map[swizzle.Target]*swizzle.Imp
	responds map[swizzle.Target]bool
	writes   int
}

var _ swizzle.Registry = (*Registry)(nil)

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		slots:    map[swizzle.Target]*swizzle.Imp{},
		responds: map[swizzle.Target]bool{},
	}
}

// NewClass returns a class that can be used with any Registry.
func NewClass(name string) *Class {
	return &Class{name: name}
}

// Bind sets the implementation of t without counting it as a write.
func (r *Registry) Bind(t swizzle.Target, imp *swizzle.Imp) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.slots[t] = imp
}

// Respond overrides the RespondsTo answer for t, whether or not t is bound.
func (r *Registry) Respond(t swizzle.Target, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.responds[t] = ok
}

// ClearRespond removes an override set by Respond.
func (r *Registry) ClearRespond(t swizzle.Target) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.responds, t)
}

// RespondsTo implements swizzle.Registry. Targets respond if they are bound,
// unless Respond said otherwise.
func (r *Registry) RespondsTo(class swizzle.Class, sel string, scope swizzle.Scope) bool {
	t := swizzle.Target{Class: class, Selector: sel, Scope: scope}

	r.mu.Lock()
	defer r.mu.Unlock()
	if ok, set := r.responds[t]; set {
		return ok
	}
	_, ok := r.slots[t]
	return ok
}

// Implementation implements swizzle.Registry.
func (r *Registry) Implementation(t swizzle.Target) *swizzle.Imp {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.slots[t]
}

// SetImplementation implements swizzle.Registry.
func (r *Registry) SetImplementation(t swizzle.Target, imp *swizzle.Imp) (*swizzle.Imp, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev, ok := r.slots[t]
	if !ok {
		return nil, fmt.Errorf("swizzletest: %v is not bound", t)
	}
	r.slots[t] = imp
	r.writes++
	return prev, nil
}

// Writes returns the number of SetImplementation calls so far.
func (r *Registry) Writes() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.writes
}

// Snapshot copies every binding.
func (r *Registry) Snapshot() map[swizzle.Target]*swizzle.Imp {
	r.mu.Lock()
	defer r.mu.Unlock()
	snap := make(map[swizzle.Target]*swizzle.Imp, len(r.slots))
	for t, imp := range r.slots {
		snap[t] = imp
	}
	return snap
}

// Redefine creates and starts a redefinition that is closed when the test
// finishes. The test fails immediately if it can't be created.
func Redefine(tb testing.TB, reg swizzle.Registry, target swizzle.Target, imp *swizzle.Imp, opts ...swizzle.Option) *swizzle.Redefinition {
	tb.Helper()

	r, err := swizzle.New(reg, target, imp, opts...)
	if err != nil {
		tb.Fatalf("redefining %v: %v", target, err)
	}
	tb.Cleanup(func() { r.Close() })
	r.Start()
	return r
}

// RedefinePolymorphic is Redefine with a replacement built from the current
// implementation.
func RedefinePolymorphic(tb testing.TB, reg swizzle.Registry, target swizzle.Target, gen swizzle.PolymorphicFunc, opts ...swizzle.Option) *swizzle.Redefinition {
	tb.Helper()

	r, err := swizzle.NewPolymorphic(reg, target, gen, opts...)
	if err != nil {
		tb.Fatalf("redefining %v: %v", target, err)
	}
	tb.Cleanup(func() { r.Close() })
	r.Start()
	return r
}
