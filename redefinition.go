package swizzle

import (
	"fmt"
	"runtime"
	"sync"
	"weak"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// record is the part of a Redefinition the target table and the leak cleanup
// hold on to. It must never point back at the Redefinition.
type record struct {
	id          uuid.UUID
	reg         Registry
	target      Target
	key         any
	original    *Imp
	replacement *Imp
	log         *zap.Logger

	// Guarded by the target's entry lock.
	installed bool
	closed    bool
	version   uint64
}

func (rec *record) set(imp *Imp) {
	if _, err := rec.reg.SetImplementation(rec.target, imp); err != nil {
		// The target was resolved when the record was built, so the
		// registry isn't holding up its end.
		panic(fmt.Errorf("swizzle: setting implementation of %v: %w", rec.target, err))
	}
}

// startLocked installs the replacement, stopping whatever was started on the
// target before. It returns the owner of the record it stopped, if that owner
// is still around.
func (rec *record) startLocked(e *entry, owner weak.Pointer[Redefinition]) (prev *Redefinition, prevVersion uint64, started bool) {
	if rec.installed || rec.closed {
		return nil, 0, false
	}

	if p := e.current; p != nil && p != rec {
		if p.stopLocked(e) {
			prev = e.owner.Value()
			prevVersion = p.version
		}
	}

	rec.set(rec.replacement)
	rec.installed = true
	rec.version++
	e.current = rec
	e.owner = owner

	rec.log.Debug("redefinition started",
		zap.Stringer("id", rec.id),
		zap.Stringer("target", rec.target),
		zap.Stringer("imp", rec.replacement))
	return prev, prevVersion, true
}

// stopLocked puts the original back unless somebody else's implementation
// has been bound to the target since, in which case the registry is left
// alone. Reports whether the record changed state.
func (rec *record) stopLocked(e *entry) bool {
	if !rec.installed {
		return false
	}

	current := rec.reg.Implementation(rec.target)
	if current == rec.replacement {
		rec.set(rec.original)
		rec.log.Debug("redefinition stopped",
			zap.Stringer("id", rec.id),
			zap.Stringer("target", rec.target),
			zap.Stringer("imp", rec.original))
	} else {
		rec.log.Debug("redefinition superseded, registry left alone",
			zap.Stringer("id", rec.id),
			zap.Stringer("target", rec.target),
			zap.Stringer("current", current))
	}

	if e.current == rec {
		e.current = nil
		e.owner = weak.Pointer[Redefinition]{}
	}
	rec.installed = false
	rec.version++
	return true
}

// release runs when a Redefinition is garbage collected without Close.
func (rec *record) release() {
	e := targets.lock(rec.key)
	defer targets.unlock(rec.key, e)

	if rec.closed {
		return
	}
	rec.closed = true
	if rec.installed {
		rec.log.Warn("redefinition collected while started, call Close",
			zap.Stringer("id", rec.id),
			zap.Stringer("target", rec.target))
		rec.stopLocked(e)
	}
}

// Redefinition controls one replacement implementation for a target.
//
// All methods are safe for concurrent use. Callers must call Close when they
// are done with it.
type Redefinition struct {
	rec     *record
	cleanup runtime.Cleanup

	obsMu     sync.Mutex
	observers map[int]func(bool)
	nextObs   int
	delivered uint64
}

func newRedefinition(rec *record) *Redefinition {
	r := &Redefinition{
		rec:       rec,
		observers: map[int]func(bool){},
	}
	r.cleanup = runtime.AddCleanup(r, (*record).release, rec)
	return r
}

// Start makes the replacement the active implementation. If another
// redefinition is started on the same target it is stopped first. Calling
// Start on a started redefinition does nothing, and so does calling it after
// Close.
func (r *Redefinition) Start() {
	var (
		prev        *Redefinition
		prevVersion uint64
		started     bool
		version     uint64
	)
	r.locked(func(e *entry) {
		prev, prevVersion, started = r.rec.startLocked(e, weak.Make(r))
		version = r.rec.version
	})

	if prev != nil {
		prev.notify(prevVersion, false)
	}
	if started {
		r.notify(version, true)
	}
}

// Stop puts the original implementation back. If another implementation has
// been bound to the target since this one was started, the registry isn't
// touched and the redefinition is simply marked as stopped.
//
// The original is whatever was bound when the redefinition was created. If
// that was another redefinition's replacement (B created while A was started),
// stopping B brings A's code back even though A is no longer started, and it
// stays there after A is closed, whatever the order. To get the real original
// back, start and stop A again after B is stopped, or create B while nothing
// else is started on the target.
func (r *Redefinition) Stop() {
	var (
		stopped bool
		version uint64
	)
	r.locked(func(e *entry) {
		stopped = r.rec.stopLocked(e)
		version = r.rec.version
	})

	if stopped {
		r.notify(version, false)
	}
}

// Close stops the redefinition for good. It is safe to call more than once
// and always returns nil. Closing a chained redefinition has the same caveat
// as Stop: it restores the implementation captured at creation, which may
// belong to a redefinition that has already been closed.
func (r *Redefinition) Close() error {
	r.cleanup.Stop()

	var (
		stopped bool
		version uint64
	)
	r.locked(func(e *entry) {
		r.rec.closed = true
		stopped = r.rec.stopLocked(e)
		version = r.rec.version
	})

	if stopped {
		r.notify(version, false)
	}
	return nil
}

// UsingRedefinition reports whether the replacement is in place.
func (r *Redefinition) UsingRedefinition() bool {
	var using bool
	r.locked(func(*entry) {
		using = r.rec.installed
	})
	return using
}

// locked runs fn holding the lock for the redefinition's slot.
func (r *Redefinition) locked(fn func(e *entry)) {
	key := r.rec.key
	e := targets.lock(key)
	defer targets.unlock(key, e)
	fn(e)
}

// OnChange registers fn to be called with the new value of UsingRedefinition
// each time it changes. fn runs on the goroutine that caused the change,
// after all locks have been released. Under contention, changes that have
// already been overtaken by a newer one may be skipped. The returned function
// removes fn.
func (r *Redefinition) OnChange(fn func(using bool)) (cancel func()) {
	r.obsMu.Lock()
	defer r.obsMu.Unlock()

	id := r.nextObs
	r.nextObs++
	r.observers[id] = fn

	return func() {
		r.obsMu.Lock()
		defer r.obsMu.Unlock()
		delete(r.observers, id)
	}
}

func (r *Redefinition) notify(version uint64, using bool) {
	r.obsMu.Lock()
	if version <= r.delivered {
		r.obsMu.Unlock()
		return
	}
	r.delivered = version
	fns := make([]func(bool), 0, len(r.observers))
	for _, fn := range r.observers {
		fns = append(fns, fn)
	}
	r.obsMu.Unlock()

	for _, fn := range fns {
		fn(using)
	}
}

// Target returns what is being redefined.
func (r *Redefinition) Target() Target {
	return r.rec.target
}

// Original returns the implementation that was bound to the target when the
// redefinition was created.
func (r *Redefinition) Original() *Imp {
	return r.rec.original
}

// Replacement returns the implementation installed by Start.
func (r *Redefinition) Replacement() *Imp {
	return r.rec.replacement
}

// ID identifies the redefinition in logs.
func (r *Redefinition) ID() uuid.UUID {
	return r.rec.id
}

func (r *Redefinition) String() string {
	return fmt.Sprintf("redefinition %s of %v", r.rec.id, r.rec.target)
}
