package swizzle_test

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/pboyd/swizzle"
	"github.com/pboyd/swizzle/objrt"
	"github.com/pboyd/swizzle/swizzletest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_InvalidArgument(t *testing.T) {
	reg := swizzletest.NewRegistry()
	class := swizzletest.NewClass("Thing")
	target := swizzle.Target{Class: class, Selector: "do"}
	reg.Bind(target, swizzle.NewImp(func() {}))
	valid := swizzle.NewImp(func() {})

	before := reg.Snapshot()

	cases := map[string]struct {
		reg    swizzle.Registry
		target swizzle.Target
		imp    *swizzle.Imp
	}{
		"nil registry": {
			target: target,
			imp:    valid,
		},
		"nil class": {
			reg:    reg,
			target: swizzle.Target{Selector: "do"},
			imp:    valid,
		},
		"typed nil class": {
			reg:    reg,
			target: swizzle.Target{Class: (*swizzletest.Class)(nil), Selector: "do"},
			imp:    valid,
		},
		"empty selector": {
			reg:    reg,
			target: swizzle.Target{Class: class},
			imp:    valid,
		},
		"nil implementation": {
			reg:    reg,
			target: target,
		},
		"not a function": {
			reg:    reg,
			target: target,
			imp:    swizzle.NewImp(42),
		},
		"nil function": {
			reg:    reg,
			target: target,
			imp:    swizzle.NewImp((func())(nil)),
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			r, err := swizzle.New(tc.reg, tc.target, tc.imp)
			assert.ErrorIs(t, err, swizzle.ErrInvalidArgument)
			assert.NotErrorIs(t, err, swizzle.ErrUnsupportedTarget)
			assert.Nil(t, r)

			r, err = swizzle.RedefineInstances(tc.reg, tc.target.Class, tc.target.Selector, tc.imp)
			assert.ErrorIs(t, err, swizzle.ErrInvalidArgument)
			assert.Nil(t, r)
		})
	}

	assert.Zero(t, reg.Writes())
	if diff := cmp.Diff(before, reg.Snapshot(), cmp.Comparer(func(a, b *swizzle.Imp) bool { return a == b })); diff != "" {
		t.Errorf("registry changed (-before +after):\n%s", diff)
	}
}

func TestNew_UnsupportedTarget(t *testing.T) {
	assert := assert.New(t)
	rt, animal, dog := newZoo(t)
	meow := objrt.NewImp(returns("meow"))

	cases := map[string]func() (*swizzle.Redefinition, error){
		"missing instance selector": func() (*swizzle.Redefinition, error) {
			return swizzle.RedefineInstances(rt, dog, "fly", meow)
		},
		"class selector as instance selector": func() (*swizzle.Redefinition, error) {
			return swizzle.RedefineInstances(rt, dog, "kind", meow)
		},
		"instance selector as class selector": func() (*swizzle.Redefinition, error) {
			return swizzle.RedefineClass(rt, dog, "speak", meow)
		},
		"subclass selector on superclass": func() (*swizzle.Redefinition, error) {
			return swizzle.RedefineClass(rt, animal, "kind", meow)
		},
		"class from another runtime": func() (*swizzle.Redefinition, error) {
			other, _, _ := newZoo(t)
			return swizzle.RedefineInstances(other, dog, "speak", meow)
		},
		"polymorphic": func() (*swizzle.Redefinition, error) {
			return swizzle.RedefineInstancesPolymorphic(rt, dog, "fly", func(string, *swizzle.Imp) (*swizzle.Imp, error) {
				t.Error("generator called for an unsupported target")
				return meow, nil
			})
		},
	}

	for name, fn := range cases {
		t.Run(name, func(t *testing.T) {
			r, err := fn()
			assert.ErrorIs(err, swizzle.ErrUnsupportedTarget)
			assert.ErrorIs(err, swizzle.ErrInvalidArgument)
			assert.Nil(r)
		})
	}

	assert.Equal("woof", send(t, dog.New(), "speak"))
}

func TestNewPolymorphic_InvalidArgument(t *testing.T) {
	reg := swizzletest.NewRegistry()
	target := swizzle.Target{Class: swizzletest.NewClass("Thing"), Selector: "do"}
	reg.Bind(target, swizzle.NewImp(func() string { return "original" }))

	t.Run("nil generator", func(t *testing.T) {
		_, err := swizzle.NewPolymorphic(reg, target, nil)
		assert.ErrorIs(t, err, swizzle.ErrInvalidArgument)

		_, err = swizzle.NewPolymorphic(reg, target, swizzle.Polymorphic[func() string](nil))
		assert.ErrorIs(t, err, swizzle.ErrInvalidArgument)
	})

	t.Run("generator returns nil", func(t *testing.T) {
		_, err := swizzle.NewPolymorphic(reg, target, func(string, *swizzle.Imp) (*swizzle.Imp, error) {
			return nil, nil
		})
		assert.ErrorIs(t, err, swizzle.ErrInvalidArgument)

		_, err = swizzle.NewPolymorphic(reg, target, swizzle.Polymorphic(func(string, func() string) func() string {
			return nil
		}))
		assert.ErrorIs(t, err, swizzle.ErrInvalidArgument)
	})

	t.Run("original has another type", func(t *testing.T) {
		_, err := swizzle.NewPolymorphic(reg, target, swizzle.Polymorphic(func(string, func() int) func() int {
			return func() int { return 1 }
		}))
		assert.ErrorIs(t, err, swizzle.ErrInvalidArgument)
	})

	t.Run("generator error is returned as is", func(t *testing.T) {
		errNope := errors.New("nope")
		_, err := swizzle.NewPolymorphic(reg, target, func(string, *swizzle.Imp) (*swizzle.Imp, error) {
			return nil, errNope
		})
		assert.Same(t, errNope, err)
		assert.NotErrorIs(t, err, swizzle.ErrInvalidArgument)
	})

	assert.Zero(t, reg.Writes())
}

func TestNew_CheckImp(t *testing.T) {
	rt, _, dog := newZoo(t)

	_, err := swizzle.RedefineInstances(rt, dog, "speak", swizzle.NewImp(func() string { return "meow" }))
	assert.ErrorIs(t, err, swizzle.ErrInvalidArgument)
	assert.Equal(t, "woof", send(t, dog.New(), "speak"))

	// A function literal with Method's signature is fine.
	r, err := swizzle.RedefineInstances(rt, dog, "speak", swizzle.NewImp(func(self any, args ...any) (any, error) {
		return "meow", nil
	}))
	require.NoError(t, err)
	defer r.Close()
	assert.Equal(t, "meow", send(t, dog.New(), "speak"))
}

func TestImp(t *testing.T) {
	assert := assert.New(t)

	imp := swizzle.NewImp(TestImp)
	assert.Contains(imp.String(), "TestImp")

	fn, ok := swizzle.FuncOf[func(*testing.T)](imp)
	assert.True(ok)
	assert.NotNil(fn)

	_, ok = swizzle.FuncOf[func()](imp)
	assert.False(ok)

	var nilImp *swizzle.Imp
	assert.Nil(nilImp.Func())
	assert.Equal("<nil>", nilImp.String())
	assert.Equal("<int>", swizzle.NewImp(1).String())
}

func TestTargetString(t *testing.T) {
	class := swizzletest.NewClass("Thing")
	assert.Equal(t, "-[Thing do]", swizzle.Target{Class: class, Selector: "do"}.String())
	assert.Equal(t, "+[Thing do]", swizzle.Target{Class: class, Selector: "do", Scope: swizzle.ClassScope}.String())
	assert.Equal(t, "-[<nil> do]", swizzle.Target{Selector: "do"}.String())
	assert.Equal(t, "Scope(7)", swizzle.Scope(7).String())
}
