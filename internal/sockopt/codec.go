package sockopt

import (
	"encoding/binary"
	"time"

	"github.com/cygcompat/afunix/internal/connstate"
	"github.com/cygcompat/afunix/internal/errno"
)

// The wire shape of every option value here is a fixed-width little-endian
// buffer, the same convention setsockopt/getsockopt use for an int or a
// struct timeval/linger argument.

func decodeBool(b []byte) (bool, error) {
	v, err := decodeInt32(b)
	if err != nil {
		return false, err
	}
	return v != 0, nil
}

func encodeBool(v bool) []byte {
	if v {
		return encodeInt32(1)
	}
	return encodeInt32(0)
}

func decodeInt32(b []byte) (int32, error) {
	if len(b) < 4 {
		return 0, errno.EINVAL
	}
	return int32(binary.LittleEndian.Uint32(b)), nil
}

func encodeInt32(v int32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, uint32(v))
	return b
}

// timeval is struct timeval's two fields: seconds and microseconds.
type timeval struct {
	Sec  int64
	Usec int64
}

func decodeTimeval(b []byte) (time.Duration, error) {
	if len(b) < 16 {
		return 0, errno.EINVAL
	}
	sec := int64(binary.LittleEndian.Uint64(b[0:8]))
	usec := int64(binary.LittleEndian.Uint64(b[8:16]))
	if sec < 0 || usec < 0 {
		return 0, errno.EDOM
	}
	d := time.Duration(sec)*time.Second + time.Duration(usec)*time.Microsecond
	if d < 0 {
		return 0, errno.EDOM // overflowed
	}
	return d, nil
}

func encodeTimeval(d time.Duration) []byte {
	b := make([]byte, 16)
	binary.LittleEndian.PutUint64(b[0:8], uint64(d/time.Second))
	binary.LittleEndian.PutUint64(b[8:16], uint64((d%time.Second)/time.Microsecond))
	return b
}

func encodePeerCred(c connstate.PeerCred) []byte {
	b := make([]byte, 12)
	binary.LittleEndian.PutUint32(b[0:4], uint32(c.PID))
	binary.LittleEndian.PutUint32(b[4:8], uint32(c.UID))
	binary.LittleEndian.PutUint32(b[8:12], uint32(c.GID))
	return b
}

func encodeLinger(l Linger) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint32(b[0:4], uint32(l.Onoff))
	binary.LittleEndian.PutUint32(b[4:8], uint32(l.Linger))
	return b
}
