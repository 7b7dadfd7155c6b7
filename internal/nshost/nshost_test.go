package nshost

import (
	"strings"
	"testing"

	"github.com/cygcompat/afunix/internal/errno"
	"github.com/cygcompat/afunix/internal/sockaddr"
)

func TestPathnamePayloadRoundTrip(t *testing.T) {
	buf, err := EncodePathnamePayload("cygwin-0123456789abcdef-unix-s-deadbeefcafef00d")
	if err != nil {
		t.Fatalf("EncodePathnamePayload: %v", err)
	}
	got, err := DecodePathnamePayload(ReparseTagCygunix, buf)
	if err != nil {
		t.Fatalf("DecodePathnamePayload: %v", err)
	}
	if got != "cygwin-0123456789abcdef-unix-s-deadbeefcafef00d" {
		t.Fatalf("got %q", got)
	}
}

func TestPathnamePayloadRejectsWrongTag(t *testing.T) {
	buf, err := EncodePathnamePayload("pipe-name")
	if err != nil {
		t.Fatalf("EncodePathnamePayload: %v", err)
	}
	if _, err := DecodePathnamePayload(0xdeadbeef, buf); err != errno.EINVAL {
		t.Fatalf("err = %v, want EINVAL", err)
	}
}

func TestPathnamePayloadRejectsWrongGUID(t *testing.T) {
	buf, err := EncodePathnamePayload("pipe-name")
	if err != nil {
		t.Fatalf("EncodePathnamePayload: %v", err)
	}
	buf[0] ^= 0xff // corrupt the GUID
	if _, err := DecodePathnamePayload(ReparseTagCygunix, buf); err != errno.EINVAL {
		t.Fatalf("err = %v, want EINVAL", err)
	}
}

func TestObjectNamePreservesEmbeddedNuls(t *testing.T) {
	addr, err := sockaddr.New([]byte("\x00hello\x00world"))
	if err != nil {
		t.Fatalf("sockaddr.New: %v", err)
	}
	name, err := ObjectName(`\Sessions\0\BaseNamedObjects\afunix`, addr)
	if err != nil {
		t.Fatalf("ObjectName: %v", err)
	}
	if !strings.HasPrefix(name, `\Sessions\0\BaseNamedObjects\afunix\af-unix-`) {
		t.Fatalf("name = %q, unexpected prefix", name)
	}
	// Embedded NULs survive the rune transpose, even though they don't
	// print; the important property is ObjectName never errors on them
	// and the suffix length matches the address length.
	suffix := strings.TrimPrefix(name, `\Sessions\0\BaseNamedObjects\afunix\af-unix-`)
	if len(suffix) != len(addr.Bytes()) {
		t.Fatalf("suffix len = %d, want %d", len(suffix), len(addr.Bytes()))
	}
}

func TestObjectNameRejectsNonAbstract(t *testing.T) {
	addr, err := sockaddr.New([]byte("/tmp/s"))
	if err != nil {
		t.Fatalf("sockaddr.New: %v", err)
	}
	if _, err := ObjectName(`\BaseNamedObjects\afunix`, addr); err == nil {
		t.Fatal("expected error for pathname address")
	}
}
