//go:build linux && (amd64 || arm64)

package native

import (
	"errors"
	"fmt"
	"reflect"
	"sync"
	"unsafe"

	"github.com/pboyd/malloc"
)

type allocator struct {
	*malloc.Arena
	mprotect func(int) error
	mu       sync.Mutex
	initOnce sync.Once
	mutable  bool
}

func (a *allocator) init(startSize int) error {
	var err error
	a.initOnce.Do(func() {
		be := malloc.MmapBackend(malloc.MmapProt(mprotectRWX), malloc.MmapFlags(mmapFlags))
		if protBE, ok := be.(malloc.ProtectedArenaBackend); ok {
			a.mprotect = protBE.Protect
		} else {
			a.mprotect = func(int) error {
				return nil
			}
		}

		a.Arena = malloc.NewArena(uint64(startSize), malloc.Backend(be))
		if a.Arena == nil {
			err = errors.New("unable to initialize arena")
			return
		}
		a.mutable = true
	})
	return err
}

func (a *allocator) BeginMutate() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	// Note that BeginMutate can be called before the initial allocation.

	if a.mprotect == nil || a.mutable {
		return nil
	}

	err := a.mprotect(mprotectRWX)
	if err == nil {
		a.mutable = true
	}
	return err
}

func (a *allocator) EndMutate() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.mutable {
		return nil
	}

	err := a.mprotect(mprotectRX)
	if err == nil {
		a.mutable = false
	}
	return err
}

func (a *allocator) Allocate(size int) ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	err := a.init(size)
	if err != nil {
		return nil, fmt.Errorf("error initializing allocator: %w", err)
	}

	if !a.mutable {
		panic("Allocate called in immutable state")
	}

	return malloc.MallocSlice[byte](a.Arena, size)
}

func (a *allocator) Free(buf []byte) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.mutable {
		panic("Free called in immutable state")
	}

	malloc.FreeSlice(a.Arena, buf)
}

var execAllocator = &allocator{}

// cloneCode copies the machine code of a function into the arena, fixing up
// PC-relative instructions so the copy behaves like the original.
func cloneCode(code []byte) ([]byte, error) {
	if err := execAllocator.BeginMutate(); err != nil {
		return nil, err
	}
	defer execAllocator.EndMutate()

	// Leave room for the trampolines relocateFunc may append.
	buf, err := execAllocator.Allocate(len(code) * 2)
	if err != nil {
		return nil, err
	}

	clone, err := relocateFunc(code, buf)
	if err != nil {
		execAllocator.Free(buf)
		return nil, err
	}
	if unsafe.SliceData(clone) != unsafe.SliceData(buf) {
		execAllocator.Free(buf)
		return nil, errors.New("relocated code outgrew its buffer")
	}

	cacheflush(clone)
	return clone, nil
}

// writeArena copies code into new arena memory.
func writeArena(code []byte) ([]byte, error) {
	if err := execAllocator.BeginMutate(); err != nil {
		return nil, err
	}
	defer execAllocator.EndMutate()

	buf, err := execAllocator.Allocate(len(code))
	if err != nil {
		return nil, err
	}
	copy(buf, code)
	cacheflush(buf)
	return buf, nil
}

// freeArena releases memory from cloneCode or writeArena.
func freeArena(buf []byte) {
	if buf == nil {
		return
	}
	execAllocator.BeginMutate()
	defer execAllocator.EndMutate()
	execAllocator.Free(buf)
}

// funcval is the runtime's representation of a func value: a pointer to this,
// followed by any captured variables.
type funcval struct {
	fn uintptr
}

// makeFunc returns a func of type typ that runs the code at entry.
func makeFunc(typ reflect.Type, entry uintptr) any {
	fv := unsafe.Pointer(&funcval{fn: entry})
	return reflect.NewAt(typ, unsafe.Pointer(&fv)).Elem().Interface()
}

// closureOf returns the func value behind fn, which must hold a func, along
// with its code address.
func closureOf(fn any) (closure, entry uintptr) {
	fv := (*[2]unsafe.Pointer)(unsafe.Pointer(&fn))[1]
	return uintptr(fv), (*funcval)(fv).fn
}
