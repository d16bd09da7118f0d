//go:build linux

package native

// There is no arm64 equivalent to MAP_32BIT. Redirects are written inline
// whenever they fit, so the arena is rarely a jump target.
const mmapFlags = 0
