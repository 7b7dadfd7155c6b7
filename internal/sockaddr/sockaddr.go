// Package sockaddr implements the AF_UNIX address data model from spec.md
// §3: the SunName byte buffer, its three distinguishable shapes, and
// autobind allocation.
package sockaddr

import (
	"crypto/rand"
	"fmt"

	"github.com/cygcompat/afunix/internal/errno"
)

// MaxSunPath mirrors sizeof(sockaddr_un.sun_path) on the systems this layer
// is compatible with.
const MaxSunPath = 108

// Shape classifies a SunName by inspection, per spec.md §3.
type Shape int

const (
	// ShapeUnnamed means un_len == 2: the address carries no path at all
	// and is a candidate for autobind.
	ShapeUnnamed Shape = iota
	// ShapeAbstract means un_len >= 3 and path[0] == 0, i.e. a
	// namespace-only name with no filesystem object.
	ShapeAbstract
	// ShapePathname means un_len >= 3 and path[0] != 0: backed by a
	// filesystem object.
	ShapePathname
)

func (s Shape) String() string {
	switch s {
	case ShapeUnnamed:
		return "unnamed"
	case ShapeAbstract:
		return "abstract"
	case ShapePathname:
		return "pathname"
	default:
		return "invalid"
	}
}

// SunName is a value-typed AF_UNIX address: the exact bytes the caller
// supplied in sun_path, up to UnLen, plus the family word. Unlike the
// C++ original's raw-pointer sun_path/peer_sun_path, a SunName has no
// aliasing: copying the value deep-copies the path, matching spec.md §9's
// "dup performs a deep copy" restatement.
type SunName struct {
	// path holds exactly UnLen-2 bytes: the live prefix of sun_path,
	// including any embedded NULs for abstract names.
	path []byte
}

// Unnamed returns the empty, not-yet-bound address (un_len == 2).
func Unnamed() SunName { return SunName{} }

// New builds a SunName from the raw bytes a caller passed as sun_path; the
// slice's length is the declared length (un_len - 2, i.e. the path portion
// only). It performs only the shape-rejection validation that is common to
// both bind and connect (spec.md §4.2): the degenerate 3-byte all-NUL
// address is invalid.
func New(path []byte) (SunName, error) {
	if len(path) == 1 && path[0] == 0 {
		// un_len == 3 && sun_path[0] == '\0': rejected everywhere.
		return SunName{}, errno.EINVAL
	}
	cp := make([]byte, len(path))
	copy(cp, path)
	return SunName{path: cp}, nil
}

// UnLen returns the live sockaddr_un length, always >= 2.
func (s SunName) UnLen() int { return len(s.path) + 2 }

// Shape classifies s per spec.md §3.
func (s SunName) Shape() Shape {
	switch {
	case len(s.path) == 0:
		return ShapeUnnamed
	case s.path[0] == 0:
		return ShapeAbstract
	default:
		return ShapePathname
	}
}

// Bytes returns the exact path bytes (sun_path[0:un_len-2]), including any
// embedded NULs. The caller must not mutate the returned slice.
func (s SunName) Bytes() []byte { return s.path }

// IsZero reports whether s is the unnamed address.
func (s SunName) IsZero() bool { return len(s.path) == 0 }

// String renders a debug form; abstract names render their leading NUL as
// "@" in the conventional Linux style, for logging only.
func (s SunName) String() string {
	switch s.Shape() {
	case ShapeUnnamed:
		return "(unnamed)"
	case ShapeAbstract:
		return "@" + string(s.path[1:])
	default:
		return string(s.path)
	}
}

// Equal compares two SunName values byte-for-byte, honoring the
// exact-bytes-preserved invariant (embedded NULs included).
func Equal(a, b SunName) bool {
	if len(a.path) != len(b.path) {
		return false
	}
	for i := range a.path {
		if a.path[i] != b.path[i] {
			return false
		}
	}
	return true
}

// Autobind allocates a fresh abstract name "\0XXXXX" (leading NUL followed
// by five hex digits) from the low 20 bits of seed, per spec.md §4.2. taken
// reports whether a candidate id is already published; Autobind retries
// with freshly drawn ids until taken returns false for one, matching the
// publisher's "retries the abstract publication until a collision-free id
// is found".
func Autobind(seed uint64, taken func(SunName) bool) (SunName, error) {
	id := uint32(seed) & 0xfffff
	for attempt := 0; attempt < 1<<20; attempt++ {
		cand, err := New([]byte(fmt.Sprintf("\x00%05x", id)))
		if err != nil {
			return SunName{}, err
		}
		if !taken(cand) {
			return cand, nil
		}
		id = nextID(id)
	}
	return SunName{}, errno.ENOBUFS
}

func nextID(id uint32) uint32 {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		return (id + 1) & 0xfffff
	}
	return (id + 1 + (uint32(b[0])<<12 | uint32(b[1])<<4 | uint32(b[2])&0xf)) & 0xfffff
}
