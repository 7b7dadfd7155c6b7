package sockopt

import (
	"encoding/binary"
	"errors"
	"testing"
	"time"

	"github.com/cygcompat/afunix/internal/connstate"
	"github.com/cygcompat/afunix/internal/errno"
	"github.com/cygcompat/afunix/internal/pipeid"
)

type fakeSocket struct {
	err          errno.Errno
	stype        pipeid.SockType
	peerCred     connstate.PeerCred
	connectState connstate.ConnectState
	reuseAddr    bool
	rcvBuf       int32
	sndBuf       int32
	rcvTimeout   time.Duration
	sndTimeout   time.Duration
}

func (f *fakeSocket) ConsumeError() errno.Errno {
	v := f.err
	f.err = 0
	return v
}
func (f *fakeSocket) Type() pipeid.SockType               { return f.stype }
func (f *fakeSocket) PeerCred() connstate.PeerCred        { return f.peerCred }
func (f *fakeSocket) ConnectState() connstate.ConnectState { return f.connectState }
func (f *fakeSocket) SetReuseAddr(v bool)                 { f.reuseAddr = v }
func (f *fakeSocket) ReuseAddr() bool                     { return f.reuseAddr }
func (f *fakeSocket) SetRcvBuf(n int32)                   { f.rcvBuf = n }
func (f *fakeSocket) RcvBuf() int32                       { return f.rcvBuf }
func (f *fakeSocket) SetSndBuf(n int32)                   { f.sndBuf = n }
func (f *fakeSocket) SndBuf() int32                       { return f.sndBuf }
func (f *fakeSocket) SetRcvTimeout(d time.Duration)       { f.rcvTimeout = d }
func (f *fakeSocket) RcvTimeout() time.Duration           { return f.rcvTimeout }
func (f *fakeSocket) SetSndTimeout(d time.Duration)       { f.sndTimeout = d }
func (f *fakeSocket) SndTimeout() time.Duration           { return f.sndTimeout }

func TestSOErrorReadAndClear(t *testing.T) {
	s := &fakeSocket{err: errno.ECONNABORTED}
	b, err := Get(s, SOL_SOCKET, SO_ERROR)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if int32(binary.LittleEndian.Uint32(b)) != int32(errno.ECONNABORTED) {
		t.Fatalf("SO_ERROR = %d, want %d", binary.LittleEndian.Uint32(b), errno.ECONNABORTED)
	}
	b, err = Get(s, SOL_SOCKET, SO_ERROR)
	if err != nil {
		t.Fatalf("second Get: %v", err)
	}
	if binary.LittleEndian.Uint32(b) != 0 {
		t.Fatalf("SO_ERROR after clear = %d, want 0", binary.LittleEndian.Uint32(b))
	}
}

func TestOtherLevelReturnsENOPROTOOPT(t *testing.T) {
	s := &fakeSocket{}
	_, err := Get(s, Level(999), SO_REUSEADDR)
	if !errors.Is(err, errno.ENOPROTOOPT) {
		t.Fatalf("err = %v, want ENOPROTOOPT", err)
	}
}

func TestReuseAddrRoundTrip(t *testing.T) {
	s := &fakeSocket{}
	if err := Set(s, SOL_SOCKET, SO_REUSEADDR, encodeBool(true)); err != nil {
		t.Fatalf("Set: %v", err)
	}
	b, err := Get(s, SOL_SOCKET, SO_REUSEADDR)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	v, _ := decodeBool(b)
	if !v {
		t.Fatal("SO_REUSEADDR did not round-trip true")
	}
}

func TestPeerCredRequiresConnected(t *testing.T) {
	s := &fakeSocket{stype: pipeid.SockStream, connectState: connstate.Unconnected}
	_, err := Get(s, SOL_SOCKET, SO_PEERCRED)
	if !errors.Is(err, errno.ENOTCONN) {
		t.Fatalf("err = %v, want ENOTCONN", err)
	}
}

func TestPeerCredReturnsStoredValueWhenConnected(t *testing.T) {
	s := &fakeSocket{
		stype:        pipeid.SockStream,
		connectState: connstate.Connected,
		peerCred:     connstate.PeerCred{PID: 42, UID: 1000, GID: 1000},
	}
	b, err := Get(s, SOL_SOCKET, SO_PEERCRED)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if binary.LittleEndian.Uint32(b[0:4]) != 42 {
		t.Fatalf("PID = %d, want 42", binary.LittleEndian.Uint32(b[0:4]))
	}
}

func TestRcvTimeoutRoundTrip(t *testing.T) {
	s := &fakeSocket{}
	want := 1500 * time.Millisecond
	if err := Set(s, SOL_SOCKET, SO_RCVTIMEO, encodeTimeval(want)); err != nil {
		t.Fatalf("Set: %v", err)
	}
	b, err := Get(s, SOL_SOCKET, SO_RCVTIMEO)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	got, err := decodeTimeval(b)
	if err != nil {
		t.Fatalf("decodeTimeval: %v", err)
	}
	if got != want {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestUnknownOptionIsSilentlyAcceptedAndZeroFilled(t *testing.T) {
	s := &fakeSocket{}
	if err := Set(s, SOL_SOCKET, Option(9999), []byte{1, 2, 3, 4}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	b, err := Get(s, SOL_SOCKET, Option(9999))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	for _, c := range b {
		if c != 0 {
			t.Fatalf("unknown option value not zero-filled: %v", b)
		}
	}
}

func TestSetReadOnlyOptionsAreSilentlyAccepted(t *testing.T) {
	s := &fakeSocket{}
	for _, opt := range []Option{SO_ERROR, SO_PEERCRED, SO_TYPE, SO_LINGER} {
		if err := Set(s, SOL_SOCKET, opt, []byte{0, 0, 0, 0}); err != nil {
			t.Fatalf("Set(%d): %v, want nil", opt, err)
		}
	}
}

func TestPeerCredOnDatagramSocketReturnsEINVAL(t *testing.T) {
	s := &fakeSocket{stype: pipeid.SockDgram, connectState: connstate.Connected}
	_, err := Get(s, SOL_SOCKET, SO_PEERCRED)
	if !errors.Is(err, errno.EINVAL) {
		t.Fatalf("err = %v, want EINVAL", err)
	}
}
