// Package objrt is a small object runtime with per-class method tables.
//
// Every Object carries a pointer to its Class, every Class owns a table of
// instance methods and a table of class methods, and Send dispatches by
// looking the selector up, walking superclasses, then calling what it found.
// A *Runtime is a swizzle.Registry, so its methods can be redefined while the
// program runs.
package objrt

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/pboyd/swizzle"
	"go.uber.org/zap"
)

var (
	// ErrDoesNotRespond is returned by Send when the receiver has no method
	// for the selector.
	ErrDoesNotRespond = errors.New("objrt: does not respond to selector")
	// ErrClassExists is returned when a class name is defined twice.
	ErrClassExists = errors.New("objrt: class already defined")
	// ErrUnknownClass is returned when a superclass name can't be found.
	ErrUnknownClass = errors.New("objrt: unknown class")
	// ErrMethodExists is returned when a class already has a method for a
	// selector.
	ErrMethodExists = errors.New("objrt: method already defined")
	// ErrBadReceiver is returned by Send when the receiver is neither an
	// *Object nor a *Class.
	ErrBadReceiver = errors.New("objrt: receiver is not an object or class")
)

// Method is the function type of every implementation in this runtime. self
// is the *Object for instance methods and the *Class for class methods.
type Method func(self any, args ...any) (any, error)

// NewImp wraps m for use with swizzle.
func NewImp(m Method) *swizzle.Imp {
	return swizzle.NewImp(m)
}

// method is a slot in a method table.
type method struct {
	owner *Class
	sel   string
	imp   atomic.Pointer[swizzle.Imp]
}

// asMethod unwraps imp. Plain function literals with the same signature as
// Method are accepted too.
func asMethod(imp *swizzle.Imp) (Method, bool) {
	switch fn := imp.Func().(type) {
	case Method:
		return fn, fn != nil
	case func(any, ...any) (any, error):
		return fn, fn != nil
	}
	return nil, false
}

func (m *method) call(self any, args []any) (any, error) {
	fn, ok := asMethod(m.imp.Load())
	if !ok {
		return nil, fmt.Errorf("objrt: %s %q is bound to a non-Method implementation", m.owner.name, m.sel)
	}
	return fn(self, args...)
}

// Class is a class in a Runtime.
type Class struct {
	rt    *Runtime
	name  string
	super *Class

	mu       sync.RWMutex
	instance map[string]*method
	class    map[string]*method
}

// Name returns the class name.
func (c *Class) Name() string {
	return c.name
}

// Superclass returns the superclass, or nil for a root class.
func (c *Class) Superclass() *Class {
	return c.super
}

func (c *Class) String() string {
	return c.name
}

// AddMethod adds an instance method.
func (c *Class) AddMethod(sel string, m Method) error {
	return c.add(c.instance, sel, m)
}

// AddClassMethod adds a class method.
func (c *Class) AddClassMethod(sel string, m Method) error {
	return c.add(c.class, sel, m)
}

func (c *Class) add(table map[string]*method, sel string, m Method) error {
	if sel == "" || m == nil {
		return fmt.Errorf("objrt: %s: empty selector or nil method", c.name)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := table[sel]; ok {
		return fmt.Errorf("%w: %s %q", ErrMethodExists, c.name, sel)
	}
	slot := &method{owner: c, sel: sel}
	slot.imp.Store(NewImp(m))
	table[sel] = slot
	return nil
}

// lookup finds the method for sel, walking up the superclass chain.
func (c *Class) lookup(sel string, scope swizzle.Scope) *method {
	for k := c; k != nil; k = k.super {
		k.mu.RLock()
		var m *method
		if scope == swizzle.ClassScope {
			m = k.class[sel]
		} else {
			m = k.instance[sel]
		}
		k.mu.RUnlock()
		if m != nil {
			return m
		}
	}
	return nil
}

// IsSubclassOf reports whether c is other or inherits from it.
func (c *Class) IsSubclassOf(other *Class) bool {
	for k := c; k != nil; k = k.super {
		if k == other {
			return true
		}
	}
	return false
}

// New returns a new instance of c.
func (c *Class) New() *Object {
	return &Object{class: c, ivars: map[string]any{}}
}

// Object is an instance of a Class.
type Object struct {
	class *Class

	mu    sync.RWMutex
	ivars map[string]any
}

// Class returns the object's class.
func (o *Object) Class() *Class {
	return o.class
}

// Get returns an instance variable.
func (o *Object) Get(name string) (any, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	v, ok := o.ivars[name]
	return v, ok
}

// Set sets an instance variable.
func (o *Object) Set(name string, v any) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.ivars[name] = v
}

// RespondsTo reports whether Send(recv, sel) would find a method.
func RespondsTo(recv any, sel string) bool {
	switch r := recv.(type) {
	case *Object:
		return r != nil && r.class.lookup(sel, swizzle.InstanceScope) != nil
	case *Class:
		return r != nil && r.lookup(sel, swizzle.ClassScope) != nil
	}
	return false
}

// Send dispatches sel to recv, which is an *Object for instance methods or a
// *Class for class methods.
func Send(recv any, sel string, args ...any) (any, error) {
	var m *method
	switch r := recv.(type) {
	case *Object:
		if r == nil {
			return nil, ErrBadReceiver
		}
		m = r.class.lookup(sel, swizzle.InstanceScope)
	case *Class:
		if r == nil {
			return nil, ErrBadReceiver
		}
		m = r.lookup(sel, swizzle.ClassScope)
	default:
		return nil, fmt.Errorf("%w: %T", ErrBadReceiver, recv)
	}

	if m == nil {
		return nil, fmt.Errorf("%w: %v %q", ErrDoesNotRespond, recv, sel)
	}
	return m.call(recv, args)
}

func (o *Object) String() string {
	return fmt.Sprintf("<%s %p>", o.class.name, o)
}

// Runtime owns a set of named classes.
type Runtime struct {
	log *zap.Logger

	mu      sync.RWMutex
	classes map[string]*Class
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithLogger sets the runtime's logger.
func WithLogger(log *zap.Logger) Option {
	return func(rt *Runtime) {
		if log != nil {
			rt.log = log
		}
	}
}

// New returns an empty runtime.
func New(opts ...Option) *Runtime {
	rt := &Runtime{
		log:     zap.NewNop(),
		classes: map[string]*Class{},
	}
	for _, opt := range opts {
		opt(rt)
	}
	return rt
}

// Define creates a class. superName may be empty for a root class.
func (rt *Runtime) Define(name, superName string) (*Class, error) {
	if name == "" {
		return nil, errors.New("objrt: empty class name")
	}

	rt.mu.Lock()
	defer rt.mu.Unlock()

	if _, ok := rt.classes[name]; ok {
		return nil, fmt.Errorf("%w: %s", ErrClassExists, name)
	}

	var super *Class
	if superName != "" {
		var ok bool
		super, ok = rt.classes[superName]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownClass, superName)
		}
	}

	c := &Class{
		rt:       rt,
		name:     name,
		super:    super,
		instance: map[string]*method{},
		class:    map[string]*method{},
	}
	rt.classes[name] = c
	rt.log.Debug("class defined", zap.String("class", name), zap.String("super", superName))
	return c, nil
}

// Class looks up a class by name.
func (rt *Runtime) Class(name string) (*Class, bool) {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	c, ok := rt.classes[name]
	return c, ok
}
