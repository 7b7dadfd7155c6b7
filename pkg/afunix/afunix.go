// Package afunix is the public surface of the AF_UNIX compatibility
// layer: it composes pipeid, sockaddr, nshost, pipetransport, connstate,
// wire, sockopt, and fsmeta into the small socket API spec.md §1
// describes — socket, bind, listen, accept, connect, getsockname,
// getpeername, credentials, setsockopt, and blocking/non-blocking modes —
// the same way the teacher's top-level packages compose its internal
// subsystems behind one entry point.
package afunix

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"io/fs"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"github.com/cygcompat/afunix/internal/connstate"
	"github.com/cygcompat/afunix/internal/config"
	"github.com/cygcompat/afunix/internal/errno"
	"github.com/cygcompat/afunix/internal/fsmeta"
	"github.com/cygcompat/afunix/internal/nshost"
	"github.com/cygcompat/afunix/internal/pipeid"
	"github.com/cygcompat/afunix/internal/pipetransport"
	"github.com/cygcompat/afunix/internal/sockaddr"
	"github.com/cygcompat/afunix/internal/sockopt"
)

// SockType re-exports pipeid.SockType so callers never need to import an
// internal package.
type SockType = pipeid.SockType

const (
	SockStream = pipeid.SockStream
	SockDgram  = pipeid.SockDgram
)

// Addr re-exports sockaddr.SunName.
type Addr = sockaddr.SunName

// PeerCred re-exports connstate.PeerCred.
type PeerCred = connstate.PeerCred

// ShutInfo re-exports connstate.ShutInfo, the shutdown(2) how bits.
type ShutInfo = connstate.ShutInfo

const (
	ShutRD   = connstate.ShutRD
	ShutWR   = connstate.ShutWR
	ShutBoth = connstate.ShutBoth
)

// Unnamed returns the not-yet-bound address.
func Unnamed() Addr { return sockaddr.Unnamed() }

// NewAddr builds an address from raw sun_path bytes, per spec.md §3.
func NewAddr(path []byte) (Addr, error) { return sockaddr.New(path) }

var nextUniqueID atomic.Uint64

func init() {
	var seed [8]byte
	if _, err := rand.Read(seed[:]); err == nil {
		nextUniqueID.Store(binary.LittleEndian.Uint64(seed[:]))
	}
}

func allocUniqueID() uint64 { return nextUniqueID.Add(1) }

// Socket is one AF_UNIX-compatible socket.
type Socket struct {
	state *connstate.Socket
	cfg   config.Config
}

// New creates a socket, the equivalent of socket(AF_UNIX, stype, 0).
func New(cfg config.Config, stype SockType) (*Socket, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Socket{
		state: connstate.New(connstate.Config{
			Type:           stype,
			InstallKey:     cfg.InstallKey,
			UniqueID:       allocUniqueID(),
			Transport:      pipetransport.New(),
			Namespace:      nshost.NewPublisher(cfg.InstallKey, cfg.Namespace.SharedParentDir),
			ConnectTimeout: cfg.Connect.Timeout,
			AnnounceReadTO: cfg.Connect.PeerNameReadTimeout,
			PipeConfig: pipetransport.Config{
				InputBufferSize:  int32(cfg.Buffers.PipeInputBuffer),
				OutputBufferSize: int32(cfg.Buffers.PipeOutputBuffer),
			},
			Logger: newLogger(cfg.Logging),
		}),
		cfg: cfg,
	}, nil
}

func newLogger(lc config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch lc.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if lc.JSON {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// Bind implements bind(2).
func (s *Socket) Bind(addr Addr) error { return s.state.Bind(addr) }

// Listen implements listen(2).
func (s *Socket) Listen(backlog int) error { return s.state.Listen(backlog) }

// Accept implements accept(2).
func (s *Socket) Accept(ctx context.Context) (*Socket, error) {
	child, err := s.state.Accept(ctx)
	if err != nil {
		return nil, err
	}
	return &Socket{state: child, cfg: s.cfg}, nil
}

// Connect implements connect(2).
func (s *Socket) Connect(ctx context.Context, addr Addr) error {
	return s.state.Connect(ctx, addr)
}

// Close releases the socket's host resources.
func (s *Socket) Close() error { return s.state.Close() }

// Shutdown implements shutdown(2)'s signaling half: the how bits are
// recorded and carried on subsequent peer-name announcements, but no
// receive-side consequence is implemented (spec.md §9 Open Question).
func (s *Socket) Shutdown(how connstate.ShutInfo) error { return s.state.Shutdown(how) }

// Read and Write are intentionally absent: payload data transfer
// (recvmsg/sendmsg reassembly policy) is out of scope per spec.md §9.

// GetSockName implements getsockname(2).
func (s *Socket) GetSockName() Addr { return s.state.LocalAddr() }

// GetPeerName implements getpeername(2).
func (s *Socket) GetPeerName() Addr { return s.state.PeerAddr() }

// SetNonBlocking toggles O_NONBLOCK.
func (s *Socket) SetNonBlocking(v bool) { s.state.SetNonBlocking(v) }

// NonBlocking reports the configured completion mode.
func (s *Socket) NonBlocking() bool { return s.state.NonBlocking() }

// SetSockopt implements setsockopt(2).
func (s *Socket) SetSockopt(level sockopt.Level, opt sockopt.Option, value []byte) error {
	return sockopt.Set(s.state, level, opt, value)
}

// GetSockopt implements getsockopt(2).
func (s *Socket) GetSockopt(level sockopt.Level, opt sockopt.Option) ([]byte, error) {
	return sockopt.Get(s.state, level, opt)
}

// Stat implements fstat(2) on a pathname-bound socket (spec.md §6): the
// backing file's metadata with st_mode overridden to S_IFSOCK.
func (s *Socket) Stat() (fsmeta.Info, error) {
	addr := s.state.LocalAddr()
	if addr.Shape() != sockaddr.ShapePathname {
		return fsmeta.Info{}, errno.EOPNOTSUPP
	}
	return fsmeta.Stat(string(addr.Bytes()))
}

// Chmod implements fchmod(2) on a pathname-bound socket.
func (s *Socket) Chmod(mode fs.FileMode) error {
	addr := s.state.LocalAddr()
	if addr.Shape() != sockaddr.ShapePathname {
		return errno.EOPNOTSUPP
	}
	return fsmeta.Chmod(string(addr.Bytes()), mode)
}

// Chown implements fchown(2) on a pathname-bound socket.
func (s *Socket) Chown(uid, gid int) error {
	addr := s.state.LocalAddr()
	if addr.Shape() != sockaddr.ShapePathname {
		return errno.EOPNOTSUPP
	}
	return fsmeta.Chown(string(addr.Bytes()), uid, gid)
}

// Fstatvfs implements fstatvfs(2) on a pathname-bound socket.
func (s *Socket) Fstatvfs() (fsmeta.VFSStat, error) {
	addr := s.state.LocalAddr()
	if addr.Shape() != sockaddr.ShapePathname {
		return fsmeta.VFSStat{}, errno.EOPNOTSUPP
	}
	return fsmeta.Fstatvfs(string(addr.Bytes()))
}

// Facl implements facl(2) on a pathname-bound socket, reporting the
// backing file's security descriptor in SDDL form.
func (s *Socket) Facl() (string, error) {
	addr := s.state.LocalAddr()
	if addr.Shape() != sockaddr.ShapePathname {
		return "", errno.EOPNOTSUPP
	}
	return fsmeta.Facl(string(addr.Bytes()))
}

// Link implements link(2) on a pathname-bound socket: newPath becomes a
// second directory entry for the same backing file.
func (s *Socket) Link(newPath string) error {
	addr := s.state.LocalAddr()
	if addr.Shape() != sockaddr.ShapePathname {
		return errno.EOPNOTSUPP
	}
	return fsmeta.Link(string(addr.Bytes()), newPath)
}

// PrepareFork reinitializes the socket's locks before a fork, per
// spec.md §5.
func (s *Socket) PrepareFork() { s.state.PrepareFork() }

// AfterExec releases the socket if closeOnExec is set, per spec.md §5.
func (s *Socket) AfterExec(closeOnExec bool) error { return s.state.AfterExec(closeOnExec) }

// Deadline is a convenience for callers that want a bounded Connect/Accept
// without importing context directly.
func Deadline(d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), d)
}

// SocketPair implements spec.md §9's socketpair Open Question resolution:
// a connected pair built from bind+listen+connect+accept on an autobound
// abstract name. The name is published through the host namespace like any
// other autobound name, so a third socket could resolve it while it exists:
// for a stream pair the listening socket, and with it the name, is closed
// once Accept returns; for a datagram pair b keeps the name. Both ends are
// yours to Close.
func SocketPair(cfg config.Config, stype SockType) (a, b *Socket, err error) {
	listener, err := New(cfg, stype)
	if err != nil {
		return nil, nil, err
	}

	if err := listener.Bind(Unnamed()); err != nil {
		listener.Close()
		return nil, nil, err
	}
	if stype == SockStream {
		if err := listener.Listen(1); err != nil {
			listener.Close()
			return nil, nil, err
		}
	}

	timeout := cfg.Connect.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	client, err := New(cfg, stype)
	if err != nil {
		listener.Close()
		return nil, nil, err
	}
	ctx, cancel := Deadline(timeout)
	defer cancel()
	if err := client.Connect(ctx, listener.GetSockName()); err != nil {
		client.Close()
		listener.Close()
		return nil, nil, err
	}

	if stype != SockStream {
		// Datagram sockets have no accept step: the listener side is
		// simply the other bound endpoint. It is not itself connected, so
		// its peer address stays unnamed.
		return client, listener, nil
	}

	acceptCtx, acceptCancel := Deadline(timeout)
	defer acceptCancel()
	server, err := listener.Accept(acceptCtx)
	listener.Close()
	if err != nil {
		client.Close()
		return nil, nil, err
	}
	return client, server, nil
}
