package afunix

import (
	"context"
	"runtime"
	"testing"

	"github.com/cygcompat/afunix/internal/config"
)

func testConfig() config.Config {
	cfg := config.Default()
	cfg.InstallKey = "0123456789abcdef"
	return cfg
}

func TestNewRejectsInvalidInstallKey(t *testing.T) {
	cfg := testConfig()
	cfg.InstallKey = "too-short"
	if _, err := New(cfg, SockStream); err == nil {
		t.Fatal("expected error for malformed install key")
	}
}

func TestUnnamedAddrIsUnnamedShape(t *testing.T) {
	addr := Unnamed()
	if !addr.IsZero() {
		t.Fatal("Unnamed() is not zero")
	}
}

func TestNewAddrRejectsDegenerateAllNul(t *testing.T) {
	if _, err := NewAddr([]byte{0}); err == nil {
		t.Fatal("expected EINVAL for the degenerate all-NUL address")
	}
}

func TestNewSocketStartsUnboundAndUnconnected(t *testing.T) {
	s, err := New(testConfig(), SockStream)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()
	if !s.GetSockName().IsZero() {
		t.Fatal("fresh socket has a non-empty local address")
	}
	if !s.GetPeerName().IsZero() {
		t.Fatal("fresh socket has a non-empty peer address")
	}
}

// TestBindRequiresWindows exercises the stub transport/namespace backends
// on every platform but Windows, mirroring the teacher's
// TestListenNamedPipeStub/TestDialNamedPipeStub pattern: bind must fail
// cleanly, never panic, when named pipes are unavailable.
func TestBindRequiresWindows(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("bind succeeds on Windows; covered by platform-specific integration tests")
	}
	s, err := New(testConfig(), SockStream)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()

	addr, err := NewAddr([]byte("/tmp/afunix-test-stub"))
	if err != nil {
		t.Fatalf("NewAddr: %v", err)
	}
	if err := s.Bind(addr); err == nil {
		t.Fatal("expected Bind to fail without a real namespace/transport backend")
	}
}

func TestShutdownRecordsBitsWithoutError(t *testing.T) {
	s, err := New(testConfig(), SockStream)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()
	if err := s.Shutdown(ShutRD); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
}

func TestSocketPairRequiresWindows(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("socketpair succeeds on Windows; covered by platform-specific integration tests")
	}
	if _, _, err := SocketPair(testConfig(), SockStream); err == nil {
		t.Fatal("expected SocketPair to fail without a real namespace/transport backend")
	}
}

func TestAcceptWithoutListenReturnsError(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires a bound, listening socket; covered by platform-specific integration tests")
	}
	s, err := New(testConfig(), SockStream)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()
	if _, err := s.Accept(context.Background()); err == nil {
		t.Fatal("expected Accept on a non-listening socket to fail")
	}
}
