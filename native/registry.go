//go:build linux && (amd64 || arm64)

package native

import (
	"fmt"
	"reflect"
	"runtime"
	"sync"
	"unsafe"

	"github.com/pboyd/swizzle"
	"go.uber.org/zap"
)

var _ interface {
	swizzle.Registry
	swizzle.ImpChecker
	swizzle.SlotKeyer
} = (*Registry)(nil)

// codeKey names a patched function. Every target reaching the same code
// shares it.
type codeKey struct {
	reg   *Registry
	entry uintptr
}

type boundKey struct {
	class swizzle.Class
	sel   string
}

// slot is one patched (or patchable) function.
type slot struct {
	name string
	typ  reflect.Type

	// code is the function's own text, saved is a copy of it from before
	// anything was written.
	code  []byte
	saved []byte

	// clone is the relocated copy behind original, nil if the function
	// couldn't be cloned.
	clone    []byte
	original *swizzle.Imp
	current  *swizzle.Imp

	// stub is arena memory for a redirect that didn't fit in code.
	stub []byte
}

// Registry redefines Go functions. Functions are only copied and patched
// once a target is looked up, and a function reached through more than one
// target is patched in one place.
type Registry struct {
	log *zap.Logger

	mu    sync.Mutex
	bound map[boundKey]reflect.Value
	slots map[uintptr]*slot
}

// New returns an empty Registry.
func New(opts ...Option) (*Registry, error) {
	o := options{log: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	return &Registry{
		log:   o.log,
		bound: map[boundKey]reflect.Value{},
		slots: map[uintptr]*slot{},
	}, nil
}

// Bind makes fn the class selector sel of class.
func (r *Registry) Bind(class swizzle.Class, sel string, fn any) error {
	fnv := reflect.ValueOf(fn)
	if fnv.Kind() != reflect.Func {
		return fmt.Errorf("not a function, kind: %v", fnv.Kind())
	}
	if fnv.IsNil() {
		return fmt.Errorf("nil function")
	}
	if class == nil || sel == "" {
		return fmt.Errorf("native: bind needs a class and a selector")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.bound[boundKey{class: class, sel: sel}] = fnv
	return nil
}

func (r *Registry) funcFor(t swizzle.Target) (reflect.Value, bool) {
	if t.Scope == swizzle.ClassScope {
		r.mu.Lock()
		defer r.mu.Unlock()
		fnv, ok := r.bound[boundKey{class: t.Class, sel: t.Selector}]
		return fnv, ok
	}
	return method(t.Class, t.Selector)
}

// RespondsTo implements swizzle.Registry.
func (r *Registry) RespondsTo(class swizzle.Class, sel string, scope swizzle.Scope) bool {
	_, ok := r.funcFor(swizzle.Target{Class: class, Selector: sel, Scope: scope})
	return ok
}

// SlotKey implements swizzle.SlotKeyer. Targets that reach the same function,
// e.g. one function bound under two classes, share a key.
func (r *Registry) SlotKey(t swizzle.Target) any {
	fnv, ok := r.funcFor(t)
	if !ok {
		return nil
	}
	return codeKey{reg: r, entry: fnv.Pointer()}
}

// slotLocked returns the slot for t, cloning the function the first time.
func (r *Registry) slotLocked(t swizzle.Target, fnv reflect.Value) (*slot, error) {
	entry := fnv.Pointer()
	if s, ok := r.slots[entry]; ok {
		return s, nil
	}

	code, err := funcCode(entry)
	if err != nil {
		return nil, err
	}
	if len(code) < jumpSize {
		return nil, fmt.Errorf("%v: function too small to redefine (%d bytes)", t, len(code))
	}

	s := &slot{
		typ:   fnv.Type(),
		code:  code,
		saved: append([]byte(nil), code...),
	}
	if f := runtime.FuncForPC(entry); f != nil {
		s.name = f.Name()
	}

	clone, err := cloneCode(code)
	if err != nil {
		// Plain redefinitions still work, calling the original once it
		// has been replaced does not.
		r.log.Warn("unable to clone function, the original won't be callable while redefined",
			zap.Stringer("target", t), zap.String("func", s.name), zap.Error(err))
		s.original = swizzle.NewImp(fnv.Interface())
	} else {
		s.clone = clone
		s.original = swizzle.NewImp(makeFunc(s.typ, uintptr(unsafe.Pointer(unsafe.SliceData(clone)))))
		if ce := r.log.Check(zap.DebugLevel, "function cloned"); ce != nil {
			listing, _ := disassemble(clone)
			ce.Write(zap.String("func", s.name), zap.String("code", listing))
		}
	}
	s.current = s.original

	r.slots[entry] = s
	return s, nil
}

// Implementation implements swizzle.Registry. The first lookup of a function
// clones it.
func (r *Registry) Implementation(t swizzle.Target) *swizzle.Imp {
	fnv, ok := r.funcFor(t)
	if !ok {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	s, err := r.slotLocked(t, fnv)
	if err != nil {
		r.log.Warn("unable to resolve function", zap.Stringer("target", t), zap.Error(err))
		return nil
	}
	return s.current
}

// CheckImp implements swizzle.ImpChecker. The replacement must have the same
// signature as the function it replaces.
func (r *Registry) CheckImp(t swizzle.Target, imp *swizzle.Imp) error {
	fnv, ok := r.funcFor(t)
	if !ok {
		return fmt.Errorf("%v: not found", t)
	}
	newFnv := reflect.ValueOf(imp.Func())
	if newFnv.Kind() != reflect.Func {
		return fmt.Errorf("not a function, kind: %v", newFnv.Kind())
	}
	if diff := diffFuncs(fnv.Type(), newFnv.Type()); !diff.Empty() {
		return fmt.Errorf("function signatures do not match: %w", diff.Error())
	}
	return nil
}

// SetImplementation implements swizzle.Registry.
func (r *Registry) SetImplementation(t swizzle.Target, imp *swizzle.Imp) (*swizzle.Imp, error) {
	if err := r.CheckImp(t, imp); err != nil {
		return nil, err
	}
	fnv, _ := r.funcFor(t)

	r.mu.Lock()
	defer r.mu.Unlock()

	s, err := r.slotLocked(t, fnv)
	if err != nil {
		return nil, err
	}

	prev := s.current
	if imp == prev {
		return prev, nil
	}

	if imp == s.original {
		err = r.restore(s)
	} else {
		err = r.redirect(s, imp)
	}
	if err != nil {
		return nil, fmt.Errorf("%v: %w", t, err)
	}

	s.current = imp
	r.log.Debug("function redefined",
		zap.Stringer("target", t),
		zap.String("func", s.name),
		zap.Stringer("imp", imp))
	return prev, nil
}

func (r *Registry) restore(s *slot) error {
	err := patch(s.code, func() error {
		copy(s.code, s.saved)
		return nil
	})
	if err != nil {
		return err
	}

	freeArena(s.stub)
	s.stub = nil
	return nil
}

// redirect overwrites the start of the function with a stub that calls the
// replacement. Functions too small to hold the stub jump to a copy of it in
// the arena instead.
func (r *Registry) redirect(s *slot, imp *swizzle.Imp) error {
	closure, entry := closureOf(imp.Func())
	stub := redirectStub(closure, entry)

	var arenaStub []byte
	if len(stub) > len(s.code) {
		var err error
		arenaStub, err = writeArena(stub)
		if err != nil {
			return err
		}
	}

	err := patch(s.code, func() error {
		if arenaStub == nil {
			copy(s.code, stub)
			padStub(s.code, len(stub))
			return nil
		}

		dest := uintptr(unsafe.Pointer(unsafe.SliceData(arenaStub)))
		if jump := longJump(dest); len(jump) <= len(s.code) {
			copy(s.code, jump)
			padStub(s.code, len(jump))
			return nil
		}
		return insertJump(s.code, dest)
	})
	if err != nil {
		freeArena(arenaStub)
		return err
	}

	freeArena(s.stub)
	s.stub = arenaStub
	return nil
}
