package native

import (
	"errors"
	"fmt"
	"reflect"
)

type funcDifferences struct {
	In  []*argDifference
	Out []*argDifference
}

func (d *funcDifferences) Empty() bool {
	for _, diffs := range [][]*argDifference{d.In, d.Out} {
		for _, diff := range diffs {
			if diff != nil {
				return false
			}
		}
	}
	return true
}

func (d *funcDifferences) Error() error {
	errs := []error{}
	for i, arg := range d.In {
		if arg != nil {
			errs = append(errs, fmt.Errorf("argument %d: %v != %v", i, arg.A, arg.B))
		}
	}
	for i, out := range d.Out {
		if out != nil {
			errs = append(errs, fmt.Errorf("output %d: %v != %v", i, out.A, out.B))
		}
	}

	return errors.Join(errs...)
}

type argDifference struct {
	A reflect.Type
	B reflect.Type
}

// diffFuncs compares the signatures of two function types. A nil type on one
// side of an argDifference means that side has fewer arguments.
func diffFuncs(at, bt reflect.Type) *funcDifferences {
	diff := funcDifferences{
		In:  diffArgs(at.NumIn(), bt.NumIn(), at.In, bt.In),
		Out: diffArgs(at.NumOut(), bt.NumOut(), at.Out, bt.Out),
	}
	if at.IsVariadic() != bt.IsVariadic() && len(diff.In) > 0 {
		last := len(diff.In) - 1
		if diff.In[last] == nil {
			diff.In[last] = &argDifference{A: at.In(last), B: bt.In(last)}
		}
	}
	return &diff
}

func diffArgs(an, bn int, a, b func(int) reflect.Type) []*argDifference {
	diffs := make([]*argDifference, max(an, bn))
	for i := range diffs {
		var at, bt reflect.Type
		if i < an {
			at = a(i)
		}
		if i < bn {
			bt = b(i)
		}
		if at != bt {
			diffs[i] = &argDifference{A: at, B: bt}
		}
	}
	return diffs
}
