package pipeid

import "testing"

const testInstallKey = "0123456789abcdef"

func TestGenerateLengthAndShape(t *testing.T) {
	name := Generate(testInstallKey, SockStream, 0xdeadbeefcafef00d)
	if len(name) != NameLen {
		t.Fatalf("len(name) = %d, want %d (%q)", len(name), NameLen, name)
	}
	want := "cygwin-0123456789abcdef-unix-s-deadbeefcafef00d"
	if name != want {
		t.Fatalf("Generate() = %q, want %q", name, want)
	}
}

func TestTypeCharOffsetMatchesGenerate(t *testing.T) {
	for _, st := range []SockType{SockStream, SockDgram} {
		name := Generate(testInstallKey, st, 1)
		c, ok := TypeCharAt(name)
		if !ok {
			t.Fatalf("TypeCharAt(%q) reported bad shape", name)
		}
		got, ok := ParseSockType(c)
		if !ok {
			t.Fatalf("ParseSockType(%q) = false", c)
		}
		if got != st {
			t.Fatalf("round-tripped type = %v, want %v", got, st)
		}
	}
}

func TestParseSockTypeRejectsOther(t *testing.T) {
	if _, ok := ParseSockType('?'); ok {
		t.Fatal("ParseSockType('?') should be rejected")
	}
	if _, ok := ParseSockType('x'); ok {
		t.Fatal("ParseSockType('x') should be rejected")
	}
}

func TestTypeCharAtRejectsWrongLength(t *testing.T) {
	if _, ok := TypeCharAt("too-short"); ok {
		t.Fatal("TypeCharAt should reject names of the wrong length")
	}
}
