package swizzle

import "fmt"

// Scope selects between selectors implemented by the class itself and
// selectors implemented by its instances.
type Scope uint8

const (
	InstanceScope Scope = iota
	ClassScope
)

func (s Scope) String() string {
	switch s {
	case InstanceScope:
		return "instance"
	case ClassScope:
		return "class"
	default:
		return fmt.Sprintf("Scope(%d)", uint8(s))
	}
}

// Class is a class known to a Registry. Implementations must be comparable
// and two values must be equal only if they are the same class, since Target
// is used as a map key.
type Class interface {
	Name() string
}

// Target identifies what is redefined.
type Target struct {
	Class    Class
	Selector string
	Scope    Scope
}

func (t Target) String() string {
	name := "<nil>"
	if t.Class != nil {
		name = t.Class.Name()
	}
	if t.Scope == ClassScope {
		return fmt.Sprintf("+[%s %s]", name, t.Selector)
	}
	return fmt.Sprintf("-[%s %s]", name, t.Selector)
}
