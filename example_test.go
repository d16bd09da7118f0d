package swizzle_test

import (
	"fmt"
	"strings"

	"github.com/pboyd/swizzle"
	"github.com/pboyd/swizzle/objrt"
)

func ExampleRedefineInstances() {
	rt := objrt.New()
	dog, _ := rt.Define("Dog", "")
	dog.AddMethod("speak", func(self any, args ...any) (any, error) {
		return "woof", nil
	})

	rex := dog.New()
	r, err := swizzle.RedefineInstances(rt, dog, "speak", objrt.NewImp(func(self any, args ...any) (any, error) {
		return "meow", nil
	}))
	if err != nil {
		panic(err)
	}
	defer r.Close()

	v, _ := objrt.Send(rex, "speak")
	fmt.Println(v)

	r.Stop()
	v, _ = objrt.Send(rex, "speak")
	fmt.Println(v)
	// Output:
	// meow
	// woof
}

func ExampleRedefineInstancesPolymorphic() {
	rt := objrt.New()
	dog, _ := rt.Define("Dog", "")
	dog.AddMethod("speak", func(self any, args ...any) (any, error) {
		return "woof", nil
	})

	r, err := swizzle.RedefineInstancesPolymorphic(rt, dog, "speak", swizzle.Polymorphic(func(sel string, original objrt.Method) objrt.Method {
		return func(self any, args ...any) (any, error) {
			v, err := original(self, args...)
			if err != nil {
				return nil, err
			}
			return strings.ToUpper(v.(string)), nil
		}
	}))
	if err != nil {
		panic(err)
	}
	defer r.Close()

	v, _ := objrt.Send(dog.New(), "speak")
	fmt.Println(v)
	// Output: WOOF
}

func ExampleRedefinition_OnChange() {
	rt := objrt.New()
	clock, _ := rt.Define("Clock", "")
	clock.AddClassMethod("now", func(self any, args ...any) (any, error) {
		return "12:00", nil
	})
	target := swizzle.Target{Class: clock, Selector: "now", Scope: swizzle.ClassScope}

	first, _ := swizzle.New(rt, target, objrt.NewImp(func(self any, args ...any) (any, error) {
		return "01:00", nil
	}))
	defer first.Close()
	second, _ := swizzle.New(rt, target, objrt.NewImp(func(self any, args ...any) (any, error) {
		return "02:00", nil
	}))
	defer second.Close()

	first.OnChange(func(using bool) {
		fmt.Println("first started:", using)
	})

	first.Start()
	second.Start()
	v, _ := objrt.Send(clock, "now")
	fmt.Println(v)
	// Output:
	// first started: true
	// first started: false
	// 02:00
}
