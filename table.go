package swizzle

import (
	"sync"
	"weak"
)

// entry is the lock for one target plus the redefinition started on it.
type entry struct {
	mu sync.Mutex

	// refs counts goroutines holding or waiting for mu. Guarded by table.mu.
	refs int

	// Guarded by mu, or by table.mu once refs is zero.
	current *record
	owner   weak.Pointer[Redefinition]
}

// table maps each slot key (see SlotKeyer) to its entry. Entries exist while
// a redefinition is started on the slot or while someone holds the slot's
// lock, so unrelated targets never wait on each other.
type table struct {
	mu      sync.Mutex
	entries map[any]*entry
}

var targets = &table{entries: map[any]*entry{}}

func (tb *table) lock(key any) *entry {
	tb.mu.Lock()
	e, ok := tb.entries[key]
	if !ok {
		e = &entry{}
		tb.entries[key] = e
	}
	e.refs++
	tb.mu.Unlock()

	e.mu.Lock()
	return e
}

func (tb *table) unlock(key any, e *entry) {
	e.mu.Unlock()

	tb.mu.Lock()
	defer tb.mu.Unlock()
	e.refs--
	if e.refs == 0 && e.current == nil {
		delete(tb.entries, key)
	}
}

func (tb *table) len() int {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return len(tb.entries)
}

// Current returns the redefinition started on t in reg, if there is one. When
// reg shares slots between targets, that redefinition may have been created
// for another target reaching the same slot.
func Current(reg Registry, t Target) (*Redefinition, bool) {
	key := slotKey(reg, t)
	e := targets.lock(key)
	defer targets.unlock(key, e)
	if e.current == nil {
		return nil, false
	}
	r := e.owner.Value()
	return r, r != nil
}
