package swizzletest_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/pboyd/swizzle"
	"github.com/pboyd/swizzle/swizzletest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	reg := swizzletest.NewRegistry()
	class := swizzletest.NewClass("Clock")
	now := swizzle.Target{Class: class, Selector: "now"}
	original := swizzle.NewImp(func() int { return 1 })
	reg.Bind(now, original)

	assert.Equal("Clock", class.Name())
	assert.True(reg.RespondsTo(class, "now", swizzle.InstanceScope))
	assert.False(reg.RespondsTo(class, "now", swizzle.ClassScope))
	assert.Same(original, reg.Implementation(now))
	assert.Zero(reg.Writes())

	frozen := swizzle.NewImp(func() int { return 2 })
	prev, err := reg.SetImplementation(now, frozen)
	require.NoError(err)
	assert.Same(original, prev)
	assert.Equal(1, reg.Writes())

	want := map[swizzle.Target]*swizzle.Imp{now: frozen}
	if diff := cmp.Diff(want, reg.Snapshot(), cmp.Comparer(func(a, b *swizzle.Imp) bool { return a == b })); diff != "" {
		t.Errorf("snapshot (-want +got):\n%s", diff)
	}

	_, err = reg.SetImplementation(swizzle.Target{Class: class, Selector: "later"}, frozen)
	assert.Error(err)
	assert.Equal(1, reg.Writes())
}

func TestRedefine(t *testing.T) {
	reg := swizzletest.NewRegistry()
	target := swizzle.Target{Class: swizzletest.NewClass("Clock"), Selector: "now"}
	original := swizzle.NewImp(func() int { return 1 })
	reg.Bind(target, original)

	frozen := swizzle.NewImp(func() int { return 2 })
	t.Run("redefined", func(t *testing.T) {
		r := swizzletest.Redefine(t, reg, target, frozen)
		assert.True(t, r.UsingRedefinition())
		assert.Same(t, frozen, reg.Implementation(target))
	})
	assert.Same(t, original, reg.Implementation(target))

	t.Run("polymorphic", func(t *testing.T) {
		r := swizzletest.RedefinePolymorphic(t, reg, target, swizzle.Polymorphic(func(sel string, orig func() int) func() int {
			return func() int { return orig() + 10 }
		}))
		fn, ok := swizzle.FuncOf[func() int](reg.Implementation(target))
		require.True(t, ok)
		assert.Equal(t, 11, fn())
		assert.Same(t, original, r.Original())
	})
	assert.Same(t, original, reg.Implementation(target))
	assert.Equal(t, 4, reg.Writes())
}

func TestRegistry_Respond(t *testing.T) {
	assert := assert.New(t)

	reg := swizzletest.NewRegistry()
	class := swizzletest.NewClass("Clock")
	now := swizzle.Target{Class: class, Selector: "now"}
	original := swizzle.NewImp(func() int { return 1 })
	reg.Bind(now, original)

	reg.Respond(now, false)
	assert.False(reg.RespondsTo(class, "now", swizzle.InstanceScope))

	before := reg.Snapshot()
	for name, create := range map[string]func() (*swizzle.Redefinition, error){
		"New": func() (*swizzle.Redefinition, error) {
			return swizzle.New(reg, now, swizzle.NewImp(func() int { return 2 }))
		},
		"RedefineInstances": func() (*swizzle.Redefinition, error) {
			return swizzle.RedefineInstances(reg, class, "now", swizzle.NewImp(func() int { return 2 }))
		},
		"RedefineInstancesPolymorphic": func() (*swizzle.Redefinition, error) {
			return swizzle.RedefineInstancesPolymorphic(reg, class, "now", func(string, *swizzle.Imp) (*swizzle.Imp, error) {
				t.Error("generator called for a target that doesn't respond")
				return nil, nil
			})
		},
	} {
		r, err := create()
		assert.ErrorIs(err, swizzle.ErrUnsupportedTarget, name)
		assert.Nil(r, name)
	}
	assert.Zero(reg.Writes())
	if diff := cmp.Diff(before, reg.Snapshot(), cmp.Comparer(func(a, b *swizzle.Imp) bool { return a == b })); diff != "" {
		t.Errorf("registry changed (-before +after):\n%s", diff)
	}

	// Responding without a bound implementation is still unsupported.
	later := swizzle.Target{Class: class, Selector: "later"}
	reg.Respond(later, true)
	assert.True(reg.RespondsTo(class, "later", swizzle.InstanceScope))
	_, err := swizzle.New(reg, later, swizzle.NewImp(func() int { return 2 }))
	assert.ErrorIs(err, swizzle.ErrUnsupportedTarget)

	reg.ClearRespond(now)
	assert.True(reg.RespondsTo(class, "now", swizzle.InstanceScope))
	assert.Zero(reg.Writes())
}
