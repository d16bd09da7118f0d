package swizzle

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testClass string

func (c testClass) Name() string { return string(c) }

// mapRegistry responds to every bound target.
type mapRegistry struct {
	mu    sync.Mutex
	slots map[Target]*Imp
}

func newMapRegistry(targets ...Target) *mapRegistry {
	reg := &mapRegistry{slots: map[Target]*Imp{}}
	for _, t := range targets {
		reg.slots[t] = NewImp(func() string { return "original" })
	}
	return reg
}

func (r *mapRegistry) RespondsTo(class Class, sel string, scope Scope) bool {
	return r.Implementation(Target{Class: class, Selector: sel, Scope: scope}) != nil
}

func (r *mapRegistry) Implementation(t Target) *Imp {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.slots[t]
}

func (r *mapRegistry) SetImplementation(t Target, imp *Imp) (*Imp, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev := r.slots[t]
	r.slots[t] = imp
	return prev, nil
}

func TestTable_EntryLifetime(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	target := Target{Class: testClass("Lifetime"), Selector: "do"}
	reg := newMapRegistry(target)
	base := targets.len()

	r, err := New(reg, target, NewImp(func() string { return "new" }))
	require.NoError(err)
	assert.Equal(base, targets.len(), "entry created before Start")

	r.Start()
	assert.Equal(base+1, targets.len())

	cur, ok := Current(reg, target)
	assert.True(ok)
	assert.Same(r, cur)

	r.Stop()
	assert.Equal(base, targets.len(), "entry kept after Stop")

	_, ok = Current(reg, target)
	assert.False(ok)
	assert.Equal(base, targets.len(), "Current left an entry behind")

	r.Start()
	require.NoError(r.Close())
	assert.Equal(base, targets.len(), "entry kept after Close")
}

func TestTable_TargetsIndependent(t *testing.T) {
	busy := Target{Class: testClass("Busy"), Selector: "do"}
	free := Target{Class: testClass("Free"), Selector: "do"}

	e := targets.lock(busy)
	defer targets.unlock(busy, e)

	done := make(chan struct{})
	go func() {
		defer close(done)
		f := targets.lock(free)
		targets.unlock(free, f)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("locking one target waited on another")
	}
}

func TestTable_SameTargetSerialized(t *testing.T) {
	target := Target{Class: testClass("Serial"), Selector: "do"}
	base := targets.len()

	var (
		wg         sync.WaitGroup
		holders    int
		maxHolders int
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e := targets.lock(target)
			holders++
			if holders > maxHolders {
				maxHolders = holders
			}
			time.Sleep(time.Millisecond)
			holders--
			targets.unlock(target, e)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxHolders)
	assert.Equal(t, base, targets.len())
}

func TestTable_ScopesAreDistinct(t *testing.T) {
	class := testClass("Scoped")
	inst := Target{Class: class, Selector: "do"}
	cls := Target{Class: class, Selector: "do", Scope: ClassScope}
	reg := newMapRegistry(inst, cls)

	a, err := New(reg, inst, NewImp(func() string { return "a" }))
	require.NoError(t, err)
	defer a.Close()
	b, err := New(reg, cls, NewImp(func() string { return "b" }))
	require.NoError(t, err)
	defer b.Close()

	a.Start()
	b.Start()
	assert.True(t, a.UsingRedefinition())
	assert.True(t, b.UsingRedefinition())
	assert.Same(t, a.Replacement(), reg.Implementation(inst))
	assert.Same(t, b.Replacement(), reg.Implementation(cls))
}
