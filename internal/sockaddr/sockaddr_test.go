package sockaddr

import (
	"errors"
	"testing"

	"github.com/cygcompat/afunix/internal/errno"
)

func TestShapeClassification(t *testing.T) {
	cases := []struct {
		name string
		path []byte
		want Shape
	}{
		{"unnamed", nil, ShapeUnnamed},
		{"abstract", []byte("\x00foo"), ShapeAbstract},
		{"abstract with embedded NUL", []byte("\x00fo\x00o"), ShapeAbstract},
		{"pathname", []byte("/tmp/s"), ShapePathname},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			s, err := New(c.path)
			if err != nil {
				t.Fatalf("New(%q): %v", c.path, err)
			}
			if got := s.Shape(); got != c.want {
				t.Errorf("Shape() = %v, want %v", got, c.want)
			}
			if s.UnLen() != len(c.path)+2 {
				t.Errorf("UnLen() = %d, want %d", s.UnLen(), len(c.path)+2)
			}
		})
	}
}

func TestDegenerateThreeByteAllNulRejected(t *testing.T) {
	_, err := New([]byte{0})
	if !errors.Is(err, errno.EINVAL) {
		t.Fatalf("New(single NUL) = %v, want EINVAL", err)
	}
}

func TestEmbeddedNulsPreservedEndToEnd(t *testing.T) {
	raw := []byte("\x00a\x00b\x00c")
	s, err := New(raw)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	got := s.Bytes()
	if len(got) != len(raw) {
		t.Fatalf("Bytes() length = %d, want %d", len(got), len(raw))
	}
	for i := range raw {
		if got[i] != raw[i] {
			t.Fatalf("byte %d: got %#x, want %#x", i, got[i], raw[i])
		}
	}
}

func TestEqual(t *testing.T) {
	a, _ := New([]byte("\x00foo"))
	b, _ := New([]byte("\x00foo"))
	c, _ := New([]byte("\x00bar"))
	if !Equal(a, b) {
		t.Error("Equal(a, b) = false, want true")
	}
	if Equal(a, c) {
		t.Error("Equal(a, c) = true, want false")
	}
}

func TestAutobindProducesAbstractFiveHexDigits(t *testing.T) {
	s, err := Autobind(0x1234, func(SunName) bool { return false })
	if err != nil {
		t.Fatalf("Autobind: %v", err)
	}
	if s.Shape() != ShapeAbstract {
		t.Fatalf("Shape() = %v, want abstract", s.Shape())
	}
	if s.UnLen() != 8 {
		t.Fatalf("UnLen() = %d, want 8", s.UnLen())
	}
	b := s.Bytes()
	if b[0] != 0 {
		t.Fatalf("first byte = %#x, want 0", b[0])
	}
	for _, c := range b[1:] {
		if !isHexDigit(c) {
			t.Fatalf("byte %q is not a hex digit", c)
		}
	}
}

func TestAutobindRetriesOnCollision(t *testing.T) {
	seen := map[string]bool{}
	calls := 0
	taken := func(s SunName) bool {
		calls++
		k := string(s.Bytes())
		if calls <= 3 {
			return true // force a few collisions
		}
		return seen[k]
	}
	s, err := Autobind(7, taken)
	if err != nil {
		t.Fatalf("Autobind: %v", err)
	}
	if calls < 4 {
		t.Fatalf("expected Autobind to retry past forced collisions, got %d calls", calls)
	}
	if s.Shape() != ShapeAbstract {
		t.Fatalf("Shape() = %v, want abstract", s.Shape())
	}
}

func isHexDigit(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')
}
