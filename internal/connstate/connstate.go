// Package connstate owns the connection state machine from spec.md §4.4
// and §5: binding_state, connect_state, the three reader/writer locks, the
// interlocked so_error word, and the background connect-waiter. It is
// built against the pipetransport.Transport and Namespace interfaces so it
// can be exercised in tests without a live Windows host, the same
// separation the teacher keeps between internal/ipc's platform-agnostic
// interface and its OS-specific backends.
package connstate

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cygcompat/afunix/internal/errno"
	"github.com/cygcompat/afunix/internal/pipeid"
	"github.com/cygcompat/afunix/internal/pipetransport"
	"github.com/cygcompat/afunix/internal/sockaddr"
	"github.com/cygcompat/afunix/internal/wire"
)

// ShutInfo re-exports wire.ShutInfo so callers never need to import the
// wire package just to call Shutdown.
type ShutInfo = wire.ShutInfo

const (
	ShutRD   = wire.ShutRD
	ShutWR   = wire.ShutWR
	ShutBoth = wire.ShutRDWR
)

// BindingState is binding_state from spec.md §3.
type BindingState int

const (
	Unbound BindingState = iota
	BindPending
	Bound
)

func (b BindingState) String() string {
	switch b {
	case Unbound:
		return "unbound"
	case BindPending:
		return "bind_pending"
	case Bound:
		return "bound"
	default:
		return "invalid"
	}
}

// ConnectState is connect_state from spec.md §3 and §4.4.
type ConnectState int

const (
	Unconnected ConnectState = iota
	ConnectPending
	Connected
	Listener
	ConnectFailed
)

func (c ConnectState) String() string {
	switch c {
	case Unconnected:
		return "unconnected"
	case ConnectPending:
		return "connect_pending"
	case Connected:
		return "connected"
	case Listener:
		return "listener"
	case ConnectFailed:
		return "connect_failed"
	default:
		return "invalid"
	}
}

// PeerCred is peer_cred from spec.md §3: initialized to (0, -1, -1).
type PeerCred struct {
	PID int32
	UID int32
	GID int32
}

// DefaultPeerCred is the initial, unauthenticated peer credential.
func DefaultPeerCred() PeerCred { return PeerCred{PID: 0, UID: -1, GID: -1} }

// Namespace is the address publisher/resolver collaborator from spec.md
// §4.2, injected so connstate never depends on the concrete Windows
// object-manager/reparse-point implementation.
type Namespace interface {
	// Publish materializes addr into a host-namespace object naming
	// pipeName. It returns a release func to tear the object down, and
	// errno.EADDRINUSE on collision. ctx bounds any retry the backend
	// performs internally (spec.md §4.2).
	Publish(ctx context.Context, addr sockaddr.SunName, pipeName string) (release func() error, err error)

	// Resolve reads back the pipe name and advertised socket type for
	// addr. It returns errno.EADDRNOTAVAIL if no publisher owns addr. ctx
	// bounds the backend's sharing-violation retry loop, the same way it
	// already bounds the connect-waiter (spec.md §4.2, §4.4).
	Resolve(ctx context.Context, addr sockaddr.SunName) (pipeName string, peerType pipeid.SockType, err error)
}

// Config bundles the pieces of a socket's identity and timing that do not
// change after construction.
type Config struct {
	Type           pipeid.SockType
	InstallKey     string
	UniqueID       uint64
	Transport      pipetransport.Transport
	Namespace      Namespace
	ConnectTimeout time.Duration // AF_UNIX_CONNECT_TIMEOUT
	AnnounceReadTO time.Duration // accepted side's bounded read of the announcement
	PipeConfig     pipetransport.Config
	Logger         *slog.Logger
}

// Socket is the connection state machine for one AF_UNIX-compatible
// socket. The zero value is not usable; construct with New.
type Socket struct {
	cfg Config
	log *slog.Logger

	bindMu sync.RWMutex // bind_lock
	connMu sync.RWMutex // conn_lock
	ioMu   sync.Mutex   // io_lock

	bindingState   BindingState
	sunPath        sockaddr.SunName
	localPipeName  string
	publishRelease func() error

	connectState ConnectState
	peerSunPath  sockaddr.SunName
	peerCred     PeerCred
	ln           pipetransport.Listener
	conn         pipetransport.Conn

	soError atomic.Int32

	nonBlocking atomic.Bool
	reuseAddr   atomic.Bool
	rcvBuf      atomic.Int64
	sndBuf      atomic.Int64
	rcvTimeoMs  atomic.Int64
	sndTimeoMs  atomic.Int64
	shutInfo    atomic.Uint32 // wire.ShutInfo bits, widened for atomic.Uint32

	waiter atomic.Pointer[connectWaiter]

	closed atomic.Bool
}

type connectWaiter struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// New constructs an unbound, unconnected socket.
func New(cfg Config) *Socket {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	s := &Socket{cfg: cfg, log: cfg.Logger, peerCred: DefaultPeerCred()}
	s.rcvBuf.Store(int64(cfg.PipeConfig.InputBufferSize))
	s.sndBuf.Store(int64(cfg.PipeConfig.OutputBufferSize))
	return s
}

// Type returns the socket's immutable type.
func (s *Socket) Type() pipeid.SockType { return s.cfg.Type }

// BindingState returns the current binding_state, for tests and
// diagnostics.
func (s *Socket) BindingState() BindingState {
	s.bindMu.RLock()
	defer s.bindMu.RUnlock()
	return s.bindingState
}

// ConnectState returns the current connect_state, for tests and
// diagnostics.
func (s *Socket) ConnectState() ConnectState {
	s.connMu.RLock()
	defer s.connMu.RUnlock()
	return s.connectState
}

// LocalAddr implements getsockname.
func (s *Socket) LocalAddr() sockaddr.SunName {
	s.bindMu.RLock()
	defer s.bindMu.RUnlock()
	return s.sunPath
}

// PeerAddr implements getpeername.
func (s *Socket) PeerAddr() sockaddr.SunName {
	s.connMu.RLock()
	defer s.connMu.RUnlock()
	return s.peerSunPath
}

// PeerCred returns the peer credential readout (spec.md §6's SO_PEERCRED).
func (s *Socket) PeerCred() PeerCred {
	s.connMu.RLock()
	defer s.connMu.RUnlock()
	return s.peerCred
}

// Bind implements bind(2), including autobind when addr is unnamed and
// the late-bind announcement when the socket is already connected.
func (s *Socket) Bind(addr sockaddr.SunName) error {
	s.bindMu.Lock()
	switch s.bindingState {
	case BindPending:
		s.bindMu.Unlock()
		return errno.EALREADY
	case Bound:
		s.bindMu.Unlock()
		return errno.EINVAL
	}
	s.bindingState = BindPending
	s.bindMu.Unlock()

	rollback := func() {
		s.bindMu.Lock()
		s.bindingState = Unbound
		s.bindMu.Unlock()
	}

	bound, pipeName, release, err := s.publishAddr(addr)
	if err != nil {
		rollback()
		return err
	}

	pcfg := s.cfg.PipeConfig
	if s.cfg.Type == pipeid.SockDgram {
		pcfg.MaxInstances = 1
	}
	ln, err := s.cfg.Transport.Create(pipeName, pcfg)
	if err != nil {
		release()
		rollback()
		return errno.EIO
	}

	s.bindMu.Lock()
	s.sunPath = bound
	s.localPipeName = pipeName
	s.publishRelease = release
	s.bindingState = Bound
	s.bindMu.Unlock()

	s.connMu.Lock()
	s.ln = ln
	alreadyConnected := s.connectState == Connected
	conn := s.conn
	s.connMu.Unlock()

	s.log.Debug("bind succeeded", "addr", bound, "pipe", pipeName)

	// Late bind on an already-connected socket: send the peer-name
	// announcement once more (spec.md §4.5).
	if alreadyConnected && conn != nil {
		s.sendAnnouncement(conn, bound)
	}

	return nil
}

// publishAddr runs with context.Background(): bind(2) is synchronous and
// has no ctx of its own to thread through (only Accept/Connect do), and the
// publish side's CreateFile calls use CREATE_NEW, which a sharing violation
// essentially never contends with a brand-new object.
func (s *Socket) publishAddr(addr sockaddr.SunName) (bound sockaddr.SunName, pipeName string, release func() error, err error) {
	pipeName = pipeid.Generate(s.cfg.InstallKey, s.cfg.Type, s.cfg.UniqueID)

	if addr.Shape() != sockaddr.ShapeUnnamed {
		release, err = s.cfg.Namespace.Publish(context.Background(), addr, pipeName)
		if err != nil {
			return sockaddr.SunName{}, "", nil, err
		}
		return addr, pipeName, release, nil
	}

	// Autobind (spec.md §4.2): allocate a fresh abstract name, retrying on
	// EADDRINUSE until one is accepted by the publisher.
	var publishErr error
	cand, aerr := sockaddr.Autobind(s.cfg.UniqueID, func(c sockaddr.SunName) bool {
		r, perr := s.cfg.Namespace.Publish(context.Background(), c, pipeName)
		if perr == nil {
			release = r
			return false
		}
		if errors.Is(perr, errno.EADDRINUSE) {
			return true
		}
		publishErr = perr
		return false
	})
	if aerr != nil {
		return sockaddr.SunName{}, "", nil, aerr
	}
	if publishErr != nil {
		return sockaddr.SunName{}, "", nil, publishErr
	}
	return cand, pipeName, release, nil
}

// Listen implements listen(2).
func (s *Socket) Listen(backlog int) error {
	if s.cfg.Type == pipeid.SockDgram {
		return errno.EOPNOTSUPP
	}

	// Cooperatively wait out a brief bind_pending window, per spec.md
	// §4.4 ("waits out bind_pending by cooperative yielding under a
	// shared bind_lock").
	for {
		s.bindMu.RLock()
		pending := s.bindingState == BindPending
		s.bindMu.RUnlock()
		if !pending {
			break
		}
		runtime.Gosched()
	}

	s.connMu.Lock()
	defer s.connMu.Unlock()

	switch s.connectState {
	case Listener:
		return errno.EADDRINUSE
	case Unconnected, ConnectFailed:
		s.bindMu.RLock()
		bound := s.bindingState == Bound
		s.bindMu.RUnlock()
		if !bound {
			return errno.EDESTADDRREQ
		}
		s.connectState = Listener
		return nil
	default:
		return errno.EINVAL
	}
}

// Accept implements accept(2) for stream sockets: it blocks (subject to
// ctx) on the listener's current instance, and on success the current
// instance becomes the accepted socket's handle while the underlying
// transport installs a fresh instance in the listener's place, per
// spec.md §4.4.
func (s *Socket) Accept(ctx context.Context) (*Socket, error) {
	if s.cfg.Type != pipeid.SockStream {
		return nil, errno.EOPNOTSUPP
	}

	s.connMu.Lock()
	if s.connectState != Listener {
		s.connMu.Unlock()
		return nil, errno.EINVAL
	}
	ln := s.ln
	s.connMu.Unlock()

	s.ioMu.Lock()
	conn, err := ln.Accept(ctx)
	s.ioMu.Unlock()
	if err != nil {
		return nil, translateWaitErr(err)
	}

	accepted := New(Config{
		Type:           s.cfg.Type,
		InstallKey:     s.cfg.InstallKey,
		UniqueID:       s.cfg.UniqueID + 1<<32, // accepted sockets mint from a disjoint range
		Transport:      s.cfg.Transport,
		Namespace:      s.cfg.Namespace,
		ConnectTimeout: s.cfg.ConnectTimeout,
		AnnounceReadTO: s.cfg.AnnounceReadTO,
		PipeConfig:     s.cfg.PipeConfig,
		Logger:         s.log,
	})
	accepted.connectState = Connected
	accepted.conn = conn

	readCtx, cancel := context.WithTimeout(ctx, s.cfg.AnnounceReadTO)
	defer cancel()
	peer, err := readAnnouncement(readCtx, conn)
	if err != nil {
		conn.Disconnect()
		return nil, translateAnnouncementErr(err)
	}
	accepted.peerSunPath = peer

	s.log.Debug("accept succeeded", "peer", peer)
	return accepted, nil
}

// Connect implements connect(2), including the background connect-waiter
// and EINPROGRESS/blocking semantics from spec.md §4.4.
func (s *Socket) Connect(ctx context.Context, addr sockaddr.SunName) error {
	s.connMu.Lock()
	switch s.connectState {
	case Listener:
		s.connMu.Unlock()
		return errno.EADDRINUSE
	case Connected:
		if s.cfg.Type == pipeid.SockStream {
			s.connMu.Unlock()
			return errno.EISCONN
		}
		// Datagram re-connect is allowed; fall through to re-resolve.
	case ConnectPending:
		s.connMu.Unlock()
		return errno.EALREADY
	}
	s.connectState = ConnectPending
	s.connMu.Unlock()

	pipeName, peerType, err := s.cfg.Namespace.Resolve(ctx, addr)
	if err != nil {
		var e errno.Errno
		if !errors.As(err, &e) {
			e = errno.EADDRNOTAVAIL
		}
		s.failConnect(e)
		return e
	}
	if peerType != s.cfg.Type {
		s.failConnect(errno.EINVAL)
		return errno.EINVAL
	}

	if s.cfg.Type != pipeid.SockStream {
		// Datagram connect only records the peer; there is no pipe to dial
		// and no waiter to join (spec.md §4.4, fhandler_socket_unix.cc's
		// connect(): "if (get_socket_type () != SOCK_DGRAM) { connect_pipe
		// (...) ... } connect_state (connected);").
		s.connMu.Lock()
		s.peerSunPath = addr
		s.connectState = Connected
		s.connMu.Unlock()
		return nil
	}

	waiterCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ConnectTimeout)
	w := &connectWaiter{cancel: cancel, done: make(chan struct{})}
	s.waiter.Store(w)

	go s.runConnectWaiter(w, waiterCtx, pipeName, addr)

	if s.nonBlocking.Load() {
		return errno.EINPROGRESS
	}

	select {
	case <-w.done:
		cancel()
		return s.connectOutcome()
	case <-ctx.Done():
		cancel()
		<-w.done // join before returning, per spec.md §4.4
		return errno.EINTR
	}
}

func (s *Socket) runConnectWaiter(w *connectWaiter, ctx context.Context, pipeName string, local sockaddr.SunName) {
	defer close(w.done)
	conn, err := s.cfg.Transport.Dial(ctx, pipeName)

	s.connMu.Lock()
	if err != nil {
		kind := classifyDialErr(err)
		s.soError.Store(int32(errno.FromHostStatus(kind)))
		s.connectState = ConnectFailed
		s.connMu.Unlock()
		s.log.Warn("background connect failed", "pipe", pipeName, "kind", kind)
		s.waiter.CompareAndSwap(w, nil)
		return
	}
	s.conn = conn
	s.peerSunPath = local
	s.connectState = Connected
	s.connMu.Unlock()

	s.sendAnnouncement(conn, s.LocalAddr())
	s.waiter.CompareAndSwap(w, nil)
}

func (s *Socket) failConnect(e errno.Errno) {
	s.connMu.Lock()
	s.soError.Store(int32(e))
	s.connectState = ConnectFailed
	s.connMu.Unlock()
}

// connectOutcome reads so_error the way a blocking connect that just
// joined its waiter would: zero means success, non-zero is returned (and
// left in so_error for a subsequent SO_ERROR read, matching real socket
// semantics where a blocking connect's own return value does not clear
// so_error).
func (s *Socket) connectOutcome() error {
	if v := s.soError.Load(); v != 0 {
		return errno.Errno(v)
	}
	return nil
}

func classifyDialErr(err error) errno.HostStatusKind {
	var de *pipetransport.DialError
	if errors.As(err, &de) {
		return de.Kind
	}
	return errno.HostStatusOther
}

// ConsumeError implements the SO_ERROR atomic read-and-clear (spec.md §6,
// §8: "so_error is cleared by any successful read via
// getsockopt(SO_ERROR)").
func (s *Socket) ConsumeError() errno.Errno {
	return errno.Errno(s.soError.Swap(0))
}

// SetNonBlocking implements the O_NONBLOCK toggle (spec.md §4.3).
func (s *Socket) SetNonBlocking(v bool) { s.nonBlocking.Store(v) }

// NonBlocking reports the socket's configured completion mode.
func (s *Socket) NonBlocking() bool { return s.nonBlocking.Load() }

// The following accessors back the SOL_SOCKET option shim (spec.md §6);
// internal/sockopt dispatches by option code onto these.

func (s *Socket) SetReuseAddr(v bool) { s.reuseAddr.Store(v) }
func (s *Socket) ReuseAddr() bool     { return s.reuseAddr.Load() }

func (s *Socket) SetRcvBuf(n int32) { s.rcvBuf.Store(int64(n)) }
func (s *Socket) RcvBuf() int32     { return int32(s.rcvBuf.Load()) }

func (s *Socket) SetSndBuf(n int32) { s.sndBuf.Store(int64(n)) }
func (s *Socket) SndBuf() int32     { return int32(s.sndBuf.Load()) }

func (s *Socket) SetRcvTimeout(d time.Duration) { s.rcvTimeoMs.Store(d.Milliseconds()) }
func (s *Socket) RcvTimeout() time.Duration {
	return time.Duration(s.rcvTimeoMs.Load()) * time.Millisecond
}

// Shutdown records how on the socket's shut_info word (spec.md §9): the
// next announcement carries it, but no receive-side consequence is
// implemented, matching spec.md's shutdown Open Question decision.
func (s *Socket) Shutdown(how ShutInfo) error {
	for {
		old := s.shutInfo.Load()
		next := old | uint32(how)
		if s.shutInfo.CompareAndSwap(old, next) {
			return nil
		}
	}
}

// ShutdownState returns the shut_info bits set so far.
func (s *Socket) ShutdownState() ShutInfo { return ShutInfo(s.shutInfo.Load()) }

func (s *Socket) SetSndTimeout(d time.Duration) { s.sndTimeoMs.Store(d.Milliseconds()) }
func (s *Socket) SndTimeout() time.Duration {
	return time.Duration(s.sndTimeoMs.Load()) * time.Millisecond
}

// Close tears the socket down: it cancels and joins any running
// connect-waiter (the interlocked pointer swap spec.md §5 describes, so
// close and a racing waiter exit never double-free), releases the pipe and
// publisher handles, and resets state so the socket could, in principle,
// be rebound.
func (s *Socket) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	if w := s.waiter.Swap(nil); w != nil {
		w.cancel()
		<-w.done
	}

	s.connMu.Lock()
	conn, ln := s.conn, s.ln
	s.conn, s.ln = nil, nil
	s.connectState = Unconnected
	s.connMu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
	if ln != nil {
		_ = ln.Close()
	}

	s.bindMu.Lock()
	release := s.publishRelease
	s.publishRelease = nil
	s.bindingState = Unbound
	s.bindMu.Unlock()
	if release != nil {
		_ = release()
	}
	return nil
}

// PrepareFork reinitializes the three locks and clears the waiter field so
// a forked child never inherits a live lock or a racing waiter goroutine
// from the parent (spec.md §5 "Fork/exec").
func (s *Socket) PrepareFork() {
	s.bindMu = sync.RWMutex{}
	s.connMu = sync.RWMutex{}
	s.ioMu = sync.Mutex{}
	s.waiter.Store(nil)
}

// AfterExec releases the socket's handles when closeOnExec is set,
// matching spec.md §5's "otherwise both pipe_handle and backing_handle are
// released" rule.
func (s *Socket) AfterExec(closeOnExec bool) error {
	if !closeOnExec {
		return nil
	}
	return s.Close()
}

// sendAnnouncement fires the peer-name announcement described in
// spec.md §4.5: a single write under exclusive io_lock, bounded by a write
// deadline of AnnounceReadTO (the same bound the accepting side puts on its
// read of this packet) so the call cannot stall the caller for longer than
// that. Afterwards the socket's configured completion mode is restored;
// failures are logged and ignored.
func (s *Socket) sendAnnouncement(conn pipetransport.Conn, local sockaddr.SunName) {
	s.ioMu.Lock()
	defer s.ioMu.Unlock()

	prev := s.nonBlocking.Load()
	// An already-past deadline would fail the write before any byte is
	// sent, so the write gets a bounded deadline instead.
	if err := conn.SetWriteDeadline(time.Now().Add(s.cfg.AnnounceReadTO)); err != nil {
		s.log.Warn("announcement: failed to bound the write", "err", err)
		return
	}
	defer func() {
		if err := pipetransport.SetNonBlocking(conn, prev); err != nil {
			s.log.Warn("announcement: failed to restore completion mode", "err", err)
		}
	}()

	pkt := wire.Announcement(local.Bytes())
	pkt.ShutInfo = s.ShutdownState()
	buf, err := wire.Encode(pkt)
	if err != nil {
		s.log.Warn("announcement: encode failed", "err", err)
		return
	}
	if _, err := conn.Write(buf); err != nil {
		s.log.Warn("announcement: send failed", "err", err)
	}
}

func readAnnouncement(ctx context.Context, conn pipetransport.Conn) (sockaddr.SunName, error) {
	if dl, ok := ctx.Deadline(); ok {
		if err := conn.SetReadDeadline(dl); err != nil {
			return sockaddr.SunName{}, err
		}
		defer conn.SetReadDeadline(time.Time{})
	}

	hdr := make([]byte, wire.HeaderLen)
	if _, err := io.ReadFull(conn, hdr); err != nil {
		return sockaddr.SunName{}, err
	}
	h, err := wire.DecodeHeader(hdr)
	if err != nil {
		return sockaddr.SunName{}, err
	}
	body := make([]byte, h.RemainderLen())
	if len(body) > 0 {
		if _, err := io.ReadFull(conn, body); err != nil {
			return sockaddr.SunName{}, err
		}
	}
	pkt, err := wire.DecodeBody(h, body)
	if err != nil {
		return sockaddr.SunName{}, err
	}
	if len(pkt.Name) == 0 {
		// Zero-length name is legal: the peer is unbound (spec.md §4.5).
		return sockaddr.SunName{}, nil
	}
	return sockaddr.New(pkt.Name)
}

func translateWaitErr(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return errno.EINTR
	}
	return errno.EIO
}

func translateAnnouncementErr(err error) error {
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return errno.ECONNABORTED
	}
	if errors.Is(err, context.Canceled) {
		return errno.EINTR
	}
	return errno.EIO
}
