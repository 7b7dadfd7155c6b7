// Package sockopt implements the SOL_SOCKET option shim from spec.md §6:
// a fixed table of option codes, each either backed by a stored value on
// the socket, computed, or accepted-and-ignored. Any other level is
// ENOPROTOOPT.
package sockopt

import (
	"time"

	"github.com/cygcompat/afunix/internal/connstate"
	"github.com/cygcompat/afunix/internal/errno"
	"github.com/cygcompat/afunix/internal/pipeid"
)

// Level is the setsockopt/getsockopt level argument.
type Level int

const SOL_SOCKET Level = 1

// Option is one of the SOL_SOCKET option codes this layer recognizes. Any
// value not listed here still round-trips through the "any other" row of
// spec.md §6's table: set is silently accepted, get returns a zero value.
type Option int

const (
	SO_ERROR Option = iota + 1
	SO_PASSCRED
	SO_PEERCRED
	SO_REUSEADDR
	SO_RCVBUF
	SO_SNDBUF
	SO_RCVTIMEO
	SO_SNDTIMEO
	SO_TYPE
	SO_LINGER
)

// Linger mirrors struct linger's two fields; spec.md §6 only ever returns
// it zeroed.
type Linger struct {
	Onoff  int32
	Linger int32
}

// Socket is the subset of connstate.Socket's surface this package
// dispatches onto. Declaring it here (rather than depending on the
// concrete type) keeps sockopt testable against a fake.
type Socket interface {
	ConsumeError() errno.Errno
	Type() pipeid.SockType
	PeerCred() connstate.PeerCred
	ConnectState() connstate.ConnectState

	SetReuseAddr(bool)
	ReuseAddr() bool
	SetRcvBuf(int32)
	RcvBuf() int32
	SetSndBuf(int32)
	SndBuf() int32
	SetRcvTimeout(time.Duration)
	RcvTimeout() time.Duration
	SetSndTimeout(time.Duration)
	SndTimeout() time.Duration
}

// Set implements setsockopt for the SOL_SOCKET level.
func Set(s Socket, level Level, opt Option, value []byte) error {
	if level != SOL_SOCKET {
		return errno.ENOPROTOOPT
	}
	switch opt {
	case SO_PASSCRED:
		return nil // accepted, no-op
	case SO_REUSEADDR:
		v, err := decodeBool(value)
		if err != nil {
			return err
		}
		s.SetReuseAddr(v)
		return nil
	case SO_RCVBUF:
		v, err := decodeInt32(value)
		if err != nil {
			return err
		}
		s.SetRcvBuf(clampBuf(v))
		return nil
	case SO_SNDBUF:
		v, err := decodeInt32(value)
		if err != nil {
			return err
		}
		s.SetSndBuf(clampBuf(v))
		return nil
	case SO_RCVTIMEO:
		d, err := decodeTimeval(value)
		if err != nil {
			return err
		}
		s.SetRcvTimeout(d)
		return nil
	case SO_SNDTIMEO:
		d, err := decodeTimeval(value)
		if err != nil {
			return err
		}
		s.SetSndTimeout(d)
		return nil
	default:
		return nil // "any other": silently accepted
	}
}

// Get implements getsockopt for the SOL_SOCKET level.
func Get(s Socket, level Level, opt Option) ([]byte, error) {
	if level != SOL_SOCKET {
		return nil, errno.ENOPROTOOPT
	}
	switch opt {
	case SO_ERROR:
		return encodeInt32(int32(s.ConsumeError())), nil
	case SO_PASSCRED:
		return encodeBool(false), nil
	case SO_PEERCRED:
		if s.Type() != pipeid.SockStream {
			return nil, errno.EINVAL
		}
		if s.ConnectState() != connstate.Connected {
			return nil, errno.ENOTCONN
		}
		return encodePeerCred(s.PeerCred()), nil
	case SO_REUSEADDR:
		return encodeBool(s.ReuseAddr()), nil
	case SO_RCVBUF:
		return encodeInt32(s.RcvBuf()), nil
	case SO_SNDBUF:
		return encodeInt32(s.SndBuf()), nil
	case SO_RCVTIMEO:
		return encodeTimeval(s.RcvTimeout()), nil
	case SO_SNDTIMEO:
		return encodeTimeval(s.SndTimeout()), nil
	case SO_TYPE:
		return encodeInt32(int32(s.Type())), nil
	case SO_LINGER:
		return encodeLinger(Linger{}), nil
	default:
		return make([]byte, 4), nil // "any other": zero-filled value
	}
}

func clampBuf(v int32) int32 {
	const maxReasonable = 16 << 20 // 16 MiB, beyond which the host pipe buffer would refuse anyway
	if v < 0 {
		return 0
	}
	if v > maxReasonable {
		return maxReasonable
	}
	return v
}
