// Swap the implementation behind a selector at runtime, and put it back.
//
// A Redefinition wraps one (class, selector, implementation) triple. Start
// makes the new implementation the one that gets dispatched, Stop restores the
// implementation that was there when the redefinition was created. Only one
// redefinition is active per target at a time: starting another one on the
// same target stops the first.
//
//	r, err := swizzle.RedefineInstances(rt, dog, "speak", objrt.NewImp(meow))
//	if err != nil {
//		return err
//	}
//	defer r.Close()
//
// Close is the scoped release. Always call it (usually with defer); the
// garbage collector is only a backstop.
//
// The package doesn't know how classes or methods are stored. That is the
// job of a Registry. See the objrt package for an in-process object runtime
// and the native package for compiled Go functions.
package swizzle
