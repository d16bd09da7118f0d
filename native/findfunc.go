//go:build linux && (amd64 || arm64)

package native

import (
	"fmt"
	"unsafe"
)

type funcInfo struct {
	*_func
	datap *moduledata
}

type _func struct {
	//sys.NotInHeap // Only in static data

	entryOff uint32 // start pc, as offset from moduledata.text/pcHeader.textStart
	nameOff  int32  // function name, as index into moduledata.funcnametab.

	args        int32  // in/out args size
	deferreturn uint32 // offset of start of a deferreturn call instruction from entry, if any.

	pcsp      uint32
	pcfile    uint32
	pcln      uint32
	npcdata   uint32
	cuOffset  uint32 // runtime.cutab offset of this function's CU
	startLine int32  // line number of start of function (func keyword/TEXT directive)
	funcID    uint8  // set for certain special runtime functions
	flag      uint8
	_         [1]byte // pad
	nfuncdata uint8   // must be last, must end on a uint32-aligned boundary
}

// moduledata records information about the layout of the executable
// image. It is written by the linker. Any changes here must be
// matched changes to the code in cmd/link/internal/ld/symtab.go:symtab.
// moduledata is stored in statically allocated non-pointer memory;
// none of the pointers here are visible to the garbage collector.
type moduledata struct {
	pcHeader     *pcHeader
	funcnametab  []byte
	cutab        []uint32
	filetab      []byte
	pctab        []byte
	pclntable    []byte
	ftab         []functab
	findfunctab  uintptr
	minpc, maxpc uintptr

	text, etext           uintptr
	noptrdata, enoptrdata uintptr
	data, edata           uintptr
	bss, ebss             uintptr
	noptrbss, enoptrbss   uintptr
	covctrs, ecovctrs     uintptr
	end, gcdata, gcbss    uintptr
	types, etypes         uintptr
	rodata                uintptr
	gofunc                uintptr // go.func.*

	// Struct continues, omitting unused fields.
}

// pcHeader holds data used by the pclntab lookups.
type pcHeader struct {
	magic          uint32  // 0xFFFFFFF1
	pad1, pad2     uint8   // 0,0
	minLC          uint8   // min instruction size
	ptrSize        uint8   // size of a ptr in bytes
	nfunc          int     // number of functions in the module
	nfiles         uint    // number of entries in the file tab
	textStart      uintptr // base for function entry PC offsets in this module, equal to moduledata.text
	funcnameOffset uintptr // offset to the funcnametab variable from pcHeader
	cuOffset       uintptr // offset to the cutab variable from pcHeader
	filetabOffset  uintptr // offset to the filetab variable from pcHeader
	pctabOffset    uintptr // offset to the pctab variable from pcHeader
	pclnOffset     uintptr // offset to the pclntab variable from pcHeader
}

type functab struct {
	entryoff uint32 // relative to runtime.text
	funcoff  uint32
}

//go:linkname findfunc runtime.findfunc
func findfunc(pc uintptr) funcInfo

// funcCode returns the machine code of the function starting at entry. The
// slice runs up to the next function in the module, so it includes any
// alignment padding.
func funcCode(entry uintptr) ([]byte, error) {
	info := findfunc(entry)
	if info._func == nil || info.datap == nil {
		return nil, fmt.Errorf("no function at %#x", entry)
	}

	funcOffset := uint32(entry - info.datap.text)
	if info.entryOff != funcOffset {
		return nil, fmt.Errorf("%#x is not the start of a function", entry)
	}

	// ftab isn't guaranteed to be sorted by entry, so look at every
	// function for the nearest one after this one.
	length := uint32(info.datap.etext - entry)
	for _, ft := range info.datap.ftab {
		if ft.entryoff <= funcOffset {
			continue
		}
		if ft.entryoff-funcOffset < length {
			length = ft.entryoff - funcOffset
		}
	}

	return unsafe.Slice((*byte)(unsafe.Pointer(entry)), length), nil
}
