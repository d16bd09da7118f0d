//go:build linux

package native

import "syscall"

// Keep the arena in the low 2GB so a rel32 JMP or CALL from the text segment
// can reach it.
const mmapFlags = syscall.MAP_32BIT
