// Package native is a swizzle.Registry for compiled Go code.
//
// Instance selectors are the methods of a Go type, found with reflect.
// Go has no class methods, so class selectors are package-level functions
// bound to a type with Bind, usually its constructors.
//
// Redefining a function overwrites the start of its machine code with a jump
// to the replacement. Before that happens the function is copied into an
// executable arena, so the original implementation handed to a
// swizzle.PolymorphicFunc can still be called.
//
// Limitations:
//   - Only supports linux on amd64 and arm64
//   - Relies on internal Go APIs that can break at any time
//   - Silently fails to redefine inlined functions
//   - Silently fails to redefine generic functions
//   - The original is called through a relocated copy that the runtime
//     doesn't know about, so it must not grow the stack or panic
package native
