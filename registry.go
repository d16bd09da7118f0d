package swizzle

// Registry is the host runtime's method table. It must make a single
// SetImplementation call atomic; consistency across calls is handled by this
// package.
type Registry interface {
	// RespondsTo reports whether class (ClassScope) or its instances
	// (InstanceScope) implement sel.
	RespondsTo(class Class, sel string, scope Scope) bool

	// Implementation returns the implementation currently bound to t, or nil
	// if there isn't one.
	Implementation(t Target) *Imp

	// SetImplementation binds imp to t and returns the implementation it
	// replaced.
	SetImplementation(t Target, imp *Imp) (*Imp, error)
}

// ImpChecker is implemented by registries that can tell ahead of time whether
// an implementation is usable for a target, e.g. by comparing signatures.
type ImpChecker interface {
	CheckImp(t Target, imp *Imp) error
}

// SlotKeyer is implemented by registries where more than one Target can reach
// the same implementation slot, e.g. through inheritance. SlotKey returns a
// comparable value naming the slot t is bound to. Targets with equal keys
// share a lock, and at most one redefinition is started across them.
// Registries that don't implement it get one slot per Target.
type SlotKeyer interface {
	SlotKey(t Target) any
}

func slotKey(reg Registry, t Target) any {
	if k, ok := reg.(SlotKeyer); ok {
		if key := k.SlotKey(t); key != nil {
			return key
		}
	}
	return t
}
