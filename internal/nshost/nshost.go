// Package nshost implements the address publisher/resolver from spec.md
// §4.2: it materializes AF_UNIX addresses into host-namespace objects that
// name a canonical pipe, and reads them back. Abstract addresses become
// symbolic-link objects under a shared parent directory; pathname
// addresses become filesystem reparse points tagged IO_REPARSE_TAG_CYGUNIX.
//
// The tag/GUID/payload codec in this file has no platform dependency and
// is exercised directly by tests; nshost_windows.go and nshost_stub.go
// supply the object-manager and reparse-point syscalls, grounded the same
// way the teacher's fltlib_windows.go and ntdll_windows.go reach raw NTDLL
// entry points: NewLazySystemDLL, NewProc, and a manual NTSTATUS check.
package nshost

import (
	"encoding/binary"
	"fmt"
	"unicode/utf16"

	"github.com/google/uuid"

	"github.com/cygcompat/afunix/internal/errno"
	"github.com/cygcompat/afunix/internal/pipeid"
	"github.com/cygcompat/afunix/internal/sockaddr"
)

// CygunixGUID is the well-known 16-byte GUID spec.md §8 assigns to the
// pathname reparse-point tag.
var CygunixGUID = uuid.MustParse("efc1714d-7b19-4407-bab3-c5b1f92cb88c")

// ReparseTagCygunix is the reparse-point tag. Bit 29 (0x20000000, "is
// alias") is left clear and bit 31 (0x80000000, "Microsoft-owned") is left
// clear: this is a third-party tag, recognized only by this layer's own
// resolver, not by any filesystem filter.
const ReparseTagCygunix uint32 = 0x00000027

// EncodePathnamePayload builds the tag-specific payload spec.md §8
// describes: a 16-byte GUID, a little-endian u16 byte length, and the pipe
// name as NUL-terminated UTF-16.
func EncodePathnamePayload(pipeName string) ([]byte, error) {
	if len(pipeName) == 0 {
		return nil, fmt.Errorf("nshost: empty pipe name")
	}
	units := utf16.Encode([]rune(pipeName))
	nameBytes := make([]byte, 2*(len(units)+1)) // +1 wchar for the NUL terminator
	for i, u := range units {
		binary.LittleEndian.PutUint16(nameBytes[2*i:], u)
	}
	// Trailing two bytes are already zero: the NUL terminator.

	lengthField := 2 * len(units) // length/2+1 wchars in the array, per spec.md §8
	buf := make([]byte, 16+2+len(nameBytes))
	copy(buf[0:16], cygunixGUIDBytes())
	binary.LittleEndian.PutUint16(buf[16:18], uint16(lengthField))
	copy(buf[18:], nameBytes)
	return buf, nil
}

// DecodePathnamePayload reverses EncodePathnamePayload, rejecting a
// tag/GUID mismatch with EINVAL per spec.md §4.2's resolver contract.
func DecodePathnamePayload(tag uint32, buf []byte) (string, error) {
	if tag != ReparseTagCygunix {
		return "", errno.EINVAL
	}
	if len(buf) < 18 {
		return "", errno.EINVAL
	}
	if !guidEqual(buf[0:16], cygunixGUIDBytes()) {
		return "", errno.EINVAL
	}
	lengthField := int(binary.LittleEndian.Uint16(buf[16:18])) // byte length of the name, excluding the NUL terminator
	if lengthField < 0 || 18+lengthField > len(buf) {
		return "", errno.EINVAL
	}
	nameBytes := buf[18 : 18+lengthField]
	units := make([]uint16, len(nameBytes)/2)
	for i := range units {
		units[i] = binary.LittleEndian.Uint16(nameBytes[2*i:])
	}
	return string(utf16.Decode(units)), nil
}

func cygunixGUIDBytes() []byte {
	b := CygunixGUID // [16]byte array value
	return b[:]
}

func guidEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// ObjectName builds the symbolic-link object name for an abstract address,
// per spec.md §3: "af-unix-<transposed-sun_path>", an ISO-8859-1 transpose
// of the raw bytes (one byte -> one wide character), preserving embedded
// NULs, under a shared parent directory.
func ObjectName(sharedParentDir string, addr sockaddr.SunName) (string, error) {
	if addr.Shape() != sockaddr.ShapeAbstract {
		return "", fmt.Errorf("nshost: ObjectName requires an abstract address, got %s", addr.Shape())
	}
	transposed := make([]rune, len(addr.Bytes()))
	for i, b := range addr.Bytes() {
		transposed[i] = rune(b)
	}
	return fmt.Sprintf(`%s\af-unix-%s`, sharedParentDir, string(transposed)), nil
}

// validateAddr applies the shape-rejection rule spec.md §4.2 shares between
// the publisher and the resolver: un_len <= 2 (Unnamed) has no business
// reaching either, and the degenerate 3-byte all-NUL case is already
// rejected by sockaddr.New. Both publisher entry points call this first.
func validateAddr(addr sockaddr.SunName) error {
	if addr.Shape() == sockaddr.ShapeUnnamed {
		return errno.EINVAL
	}
	return nil
}

// recoverType extracts and validates the socket-type character embedded in
// a resolved pipe name, per spec.md §4.2's "extracts the socket-type
// character from position 29".
func recoverType(pipeName string) (pipeid.SockType, error) {
	c, ok := pipeid.TypeCharAt(pipeName)
	if !ok {
		return 0, errno.EINVAL
	}
	t, ok := pipeid.ParseSockType(c)
	if !ok {
		return 0, errno.EINVAL
	}
	return t, nil
}
