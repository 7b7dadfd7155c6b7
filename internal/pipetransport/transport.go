// Package pipetransport abstracts the host named-pipe primitives spec.md
// §4.3 and §6 describe: creating the first (and subsequent) instance of a
// pipe, opening an existing instance, and toggling completion mode. The
// interfaces here are platform-agnostic so internal/connstate — the
// package that owns the actual connect/accept state machine — can be unit
// tested without a live Windows host; transport_windows.go supplies the
// real implementation on top of github.com/Microsoft/go-winio and
// golang.org/x/sys/windows, and transport_stub.go supplies the
// unsupported-platform stub.
package pipetransport

import (
	"context"
	"io"
	"time"

	"github.com/cygcompat/afunix/internal/errno"
)

// Conn is one connected pipe instance. Completion mode (blocking vs
// non-blocking, spec.md §4.3) is implemented with read/write deadlines,
// the idiomatic Go equivalent of toggling a Windows handle's completion
// mode: SetNonBlocking(true) sets an immediate deadline, SetNonBlocking(false)
// clears it.
type Conn interface {
	io.ReadWriteCloser

	SetReadDeadline(time.Time) error
	SetWriteDeadline(time.Time) error

	// Disconnect forcibly disconnects the pipe instance so the peer
	// observes an immediate close, per spec.md §7's failed-accept
	// recovery rule. For a client-side Conn this is equivalent to Close.
	Disconnect() error
}

// SetNonBlocking toggles c's completion mode. The flag the socket tracks
// is authoritative and the underlying deadline is just the cache, per
// spec.md §4.3.
func SetNonBlocking(c Conn, nonBlocking bool) error {
	var deadline time.Time
	if nonBlocking {
		deadline = time.Unix(1, 0) // already-past instant: every I/O call returns immediately
	}
	if err := c.SetReadDeadline(deadline); err != nil {
		return err
	}
	return c.SetWriteDeadline(deadline)
}

// Listener is the listening end of a pipe: the "current unconnected
// instance" a listener socket waits on (spec.md §3). Each call to Accept
// hands back the instance that just connected and arranges for a freshly
// created instance to take its place, per spec.md §4.4.
type Listener interface {
	Accept(ctx context.Context) (Conn, error)
	Close() error
}

// Config mirrors the host pipe attributes spec.md §4.3 and §6 call for:
// message type, message read mode, and a security descriptor restricting
// who may connect.
type Config struct {
	SecurityDescriptor string
	InputBufferSize    int32
	OutputBufferSize   int32
	// MaxInstances bounds concurrent instances: 1 for datagram sockets
	// (single peer), 0 for "unlimited" (stream listeners). A nonzero value
	// routes Create through a raw CreateNamedPipe call with nMaxInstances
	// set, since go-winio's PipeConfig has no such field.
	MaxInstances int32
}

// Transport is the host-pipe collaborator referenced, but only by
// contract, in spec.md §6.
type Transport interface {
	// Create creates the first instance of the canonical pipe for a
	// socket and returns a listener for it (spec.md §4.3 create_pipe).
	Create(name string, cfg Config) (Listener, error)

	// Dial opens an existing pipe instance by name (spec.md §4.3
	// open_pipe), retrying the host's bounded "wait for instance"
	// primitive until an instance appears, ctx is done, or a
	// non-recoverable error occurs. The returned error, when non-nil and
	// not ctx.Err(), is a *DialError carrying the classification spec.md
	// §4.4's connect-waiter needs to pick an errno without inspecting host
	// status codes directly.
	Dial(ctx context.Context, name string) (Conn, error)
}

// DialError classifies a failed Dial the way spec.md §4.4 requires: by a
// small enumerated kind, not a raw host status code.
type DialError struct {
	Kind errno.HostStatusKind
	Err  error
}

func (e *DialError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Kind.String()
}

func (e *DialError) Unwrap() error { return e.Err }
