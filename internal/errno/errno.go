// Package errno defines the POSIX-style error codes the AF_UNIX compatibility
// layer reports to callers, and the mapping from host (Windows) status codes
// to them.
package errno

import "fmt"

// Errno is a numeric error code from the taxonomy in spec.md §7. It
// implements error so it can be returned directly or wrapped with
// fmt.Errorf("...: %w", err) and compared with errors.Is.
type Errno int

const (
	EINVAL Errno = iota + 1
	EADDRINUSE
	EADDRNOTAVAIL
	EDESTADDRREQ
	EALREADY
	EISCONN
	ENOTCONN
	ECONNABORTED
	ECONNREFUSED
	ENOBUFS
	EIO
	EINTR
	EPROTONOSUPPORT
	EAFNOSUPPORT
	EOPNOTSUPP
	EINPROGRESS
	EWOULDBLOCK
	ETIMEDOUT
	EDOM
	ENOTSOCK
	ENOPROTOOPT
)

var names = map[Errno]string{
	EINVAL:          "EINVAL",
	EADDRINUSE:      "EADDRINUSE",
	EADDRNOTAVAIL:   "EADDRNOTAVAIL",
	EDESTADDRREQ:    "EDESTADDRREQ",
	EALREADY:        "EALREADY",
	EISCONN:         "EISCONN",
	ENOTCONN:        "ENOTCONN",
	ECONNABORTED:    "ECONNABORTED",
	ECONNREFUSED:    "ECONNREFUSED",
	ENOBUFS:         "ENOBUFS",
	EIO:             "EIO",
	EINTR:           "EINTR",
	EPROTONOSUPPORT: "EPROTONOSUPPORT",
	EAFNOSUPPORT:    "EAFNOSUPPORT",
	EOPNOTSUPP:      "EOPNOTSUPP",
	EINPROGRESS:     "EINPROGRESS",
	EWOULDBLOCK:     "EWOULDBLOCK",
	ETIMEDOUT:       "ETIMEDOUT",
	EDOM:            "EDOM",
	ENOTSOCK:        "ENOTSOCK",
	ENOPROTOOPT:     "ENOPROTOOPT",
}

func (e Errno) Error() string {
	if n, ok := names[e]; ok {
		return n
	}
	return fmt.Sprintf("errno(%d)", int(e))
}

// Is lets errors.Is(err, errno.EADDRINUSE) work through fmt.Errorf wrapping.
func (e Errno) Is(target error) bool {
	t, ok := target.(Errno)
	return ok && t == e
}

// HostStatusKind is the small family of host (NTSTATUS/Win32) outcomes the
// connect-waiter and resolver distinguish, independent of the concrete
// numeric status value. The pipetransport and nshost Windows backends
// translate raw host errors into these before connstate ever sees them, so
// the state machine and its tests stay platform-agnostic (spec.md §7:
// "mapping is authoritative — callers never inspect host codes").
type HostStatusKind int

const (
	HostStatusOK          HostStatusKind = iota
	HostStatusNotFound                   // OBJECT_NAME_NOT_FOUND
	HostStatusTimeout                    // IO_TIMEOUT
	HostStatusNoResources                // INSUFFICIENT_RESOURCES
	HostStatusInterrupted                // thread-terminating / cancellation
	HostStatusPipeBusy                   // no pipe instance available
	HostStatusOther
)

func (k HostStatusKind) String() string {
	switch k {
	case HostStatusOK:
		return "ok"
	case HostStatusNotFound:
		return "not found"
	case HostStatusTimeout:
		return "timeout"
	case HostStatusNoResources:
		return "insufficient resources"
	case HostStatusInterrupted:
		return "interrupted"
	case HostStatusPipeBusy:
		return "pipe busy"
	default:
		return "other host error"
	}
}

// FromHostStatus implements the connect-waiter's exit mapping from spec.md
// §4.4: "OBJECT_NAME_NOT_FOUND -> EADDRNOTAVAIL, IO_TIMEOUT -> ETIMEDOUT,
// INSUFFICIENT_RESOURCES -> ENOBUFS, thread-terminating -> EINTR, any other
// -> EIO".
func FromHostStatus(k HostStatusKind) Errno {
	switch k {
	case HostStatusNotFound:
		return EADDRNOTAVAIL
	case HostStatusTimeout:
		return ETIMEDOUT
	case HostStatusNoResources:
		return ENOBUFS
	case HostStatusInterrupted:
		return EINTR
	default:
		return EIO
	}
}
