// Package pipeid generates the canonical host pipe name described in
// spec.md §4.1: a pure function of an installation key, a socket type, and
// a unique per-socket id.
package pipeid

import "fmt"

// SockType is the subset of socket types this layer emulates.
type SockType int

const (
	SockStream SockType = iota
	SockDgram
)

// typeChar is the single character embedded at offset 29 of the canonical
// pipe name, which peers use to advertise (and verify) their socket type.
func (t SockType) typeChar() byte {
	switch t {
	case SockStream:
		return 's'
	case SockDgram:
		return 'd'
	default:
		return '?'
	}
}

// NameLen is the fixed length of every canonical pipe name.
const NameLen = 47

// TypeCharOffset is the zero-based character position of the type letter
// within the canonical name, per spec.md §4.1.
const TypeCharOffset = 29

// Generate produces the 47-character canonical pipe name
// "cygwin-<installKey>-unix-[s|d]-<16 hex digits>". installKey must be
// exactly 16 hex characters (Cygwin's installation-key format: a per-host
// value derived once at setup time and shared by every pipe socket on the
// host); id is the socket's 64-bit unique id. The type character lands at
// TypeCharOffset for every installKey of that length, by construction.
func Generate(installKey string, stype SockType, id uint64) string {
	return fmt.Sprintf("cygwin-%s-unix-%c-%016x", installKey, stype.typeChar(), id)
}

// TypeCharAt reads the type character out of a canonical (or
// canonical-shaped) name at the fixed offset, without assuming the name was
// produced by Generate. Used by the resolver (spec.md §4.2) to recover the
// peer's socket type and to reject cross-type connections.
func TypeCharAt(name string) (byte, bool) {
	if len(name) != NameLen {
		return 0, false
	}
	return name[TypeCharOffset], true
}

// ParseSockType maps a recovered type character back to a SockType. Only
// 's' and 'd' are legal; anything else (including the generator's own '?'
// fallback) is rejected.
func ParseSockType(c byte) (SockType, bool) {
	switch c {
	case 's':
		return SockStream, true
	case 'd':
		return SockDgram, true
	default:
		return 0, false
	}
}
