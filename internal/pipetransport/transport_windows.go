//go:build windows

package pipetransport

import (
	"context"
	"errors"
	"net"
	"os"
	"sync"
	"unsafe"

	winio "github.com/Microsoft/go-winio"
	"golang.org/x/sys/windows"

	"github.com/cygcompat/afunix/internal/errno"
)

// winTransport is the production Transport, built on go-winio's named pipe
// support the same way the teacher's named_pipe_windows.go builds a plain
// net.Listener/net.Conn pair, and the way other_examples'
// AgentShepherd-agentshepherd and LanternOps-breeze construct
// winio.PipeConfig listeners with an SDDL security descriptor.
type winTransport struct{}

// New returns the Windows pipe transport.
func New() Transport { return winTransport{} }

func (winTransport) Create(name string, cfg Config) (Listener, error) {
	// go-winio's PipeConfig has no instance cap: ListenPipe always creates
	// instances with PIPE_UNLIMITED_INSTANCES underneath. Datagram's
	// one-peer-at-a-time bind (spec.md §4.2) needs a real nMaxInstances, so
	// that case bypasses go-winio and talks to CreateNamedPipe directly.
	if cfg.MaxInstances > 0 {
		return createRawListener(name, cfg)
	}

	wc := &winio.PipeConfig{
		SecurityDescriptor: cfg.SecurityDescriptor,
		MessageMode:        true, // message type, message read mode (spec.md §4.3)
		InputBufferSize:    cfg.InputBufferSize,
		OutputBufferSize:   cfg.OutputBufferSize,
	}
	ln, err := winio.ListenPipe(name, wc)
	if err != nil {
		return nil, err
	}
	return &winListener{ln: ln}, nil
}

func (winTransport) Dial(ctx context.Context, name string) (Conn, error) {
	conn, err := winio.DialPipeContext(ctx, name)
	if err != nil {
		return nil, classifyDialErr(err)
	}
	return &winConn{Conn: conn}, nil
}

// classifyDialErr turns the error go-winio's DialPipeContext returns into
// the small HostStatusKind enum spec.md §4.4's connect-waiter switches on,
// so that neither connstate nor its tests ever need to recognize a raw
// Windows error value.
func classifyDialErr(err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &DialError{Kind: errno.HostStatusTimeout, Err: err}
	case errors.Is(err, context.Canceled):
		return &DialError{Kind: errno.HostStatusInterrupted, Err: err}
	case errors.Is(err, windows.ERROR_FILE_NOT_FOUND), errors.Is(err, windows.ERROR_PATH_NOT_FOUND):
		return &DialError{Kind: errno.HostStatusNotFound, Err: err}
	case errors.Is(err, windows.ERROR_PIPE_BUSY):
		return &DialError{Kind: errno.HostStatusPipeBusy, Err: err}
	case errors.Is(err, windows.ERROR_NOT_ENOUGH_MEMORY), errors.Is(err, windows.ERROR_NO_SYSTEM_RESOURCES):
		return &DialError{Kind: errno.HostStatusNoResources, Err: err}
	default:
		return &DialError{Kind: errno.HostStatusOther, Err: err}
	}
}

type winListener struct {
	ln net.Listener
}

// Accept races go-winio's blocking Accept against ctx, since
// winio.PipeListener.Accept takes no context and the listen-wait is
// otherwise unbounded (spec.md §5).
func (w *winListener) Accept(ctx context.Context) (Conn, error) {
	type result struct {
		conn net.Conn
		err  error
	}
	done := make(chan result, 1)
	go func() {
		c, err := w.ln.Accept()
		done <- result{c, err}
	}()
	select {
	case r := <-done:
		if r.err != nil {
			return nil, r.err
		}
		return &winConn{Conn: r.conn}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (w *winListener) Close() error { return w.ln.Close() }

// winConn wraps the net.Conn go-winio hands back for a connected pipe
// instance. net.Conn already satisfies everything Conn needs but
// Disconnect; a forced disconnect is an immediate Close, which is
// observably equivalent to the peer (their next I/O sees EOF / a
// pipe-not-connected error).
type winConn struct {
	net.Conn
}

func (c *winConn) Disconnect() error { return c.Conn.Close() }

// rawListener creates and holds a fixed-cap CreateNamedPipe instance: the
// one path Create takes when cfg.MaxInstances bounds the pipe (datagram
// binds only, as of spec.md §4.2). Once cfg.MaxInstances instances have
// been connected and consumed, the host itself refuses the next client's
// open with ERROR_PIPE_BUSY, instead of go-winio silently spinning up
// another unbounded instance.
type rawListener struct {
	mu      sync.Mutex
	name    string
	cfg     Config
	h       windows.Handle
	created int32
	closed  bool
}

func createRawListener(name string, cfg Config) (*rawListener, error) {
	h, err := createRawInstance(name, cfg, true)
	if err != nil {
		return nil, err
	}
	return &rawListener{name: name, cfg: cfg, h: h, created: 1}, nil
}

func createRawInstance(name string, cfg Config, first bool) (windows.Handle, error) {
	namep, err := windows.UTF16PtrFromString(name)
	if err != nil {
		return 0, err
	}

	var sa *windows.SecurityAttributes
	if cfg.SecurityDescriptor != "" {
		sd, err := windows.SecurityDescriptorFromString(cfg.SecurityDescriptor)
		if err != nil {
			return 0, err
		}
		sa = &windows.SecurityAttributes{
			Length:             uint32(unsafe.Sizeof(windows.SecurityAttributes{})),
			SecurityDescriptor: sd,
		}
	}

	flags := uint32(windows.PIPE_ACCESS_DUPLEX)
	if first {
		flags |= windows.FILE_FLAG_FIRST_PIPE_INSTANCE
	}
	pipeMode := uint32(windows.PIPE_TYPE_MESSAGE | windows.PIPE_READMODE_MESSAGE | windows.PIPE_WAIT)

	return windows.CreateNamedPipe(namep, flags, pipeMode, uint32(cfg.MaxInstances),
		uint32(cfg.OutputBufferSize), uint32(cfg.InputBufferSize), 0, sa)
}

// Accept blocks (subject to ctx) on the current instance the same way
// winListener.Accept races go-winio's blocking Accept against ctx: there is
// no overlapped handle here to cancel outright, so a ctx cancellation
// abandons the ConnectNamedPipe call in its goroutine and returns early.
func (l *rawListener) Accept(ctx context.Context) (Conn, error) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil, os.ErrClosed
	}
	h := l.h
	l.mu.Unlock()

	done := make(chan error, 1)
	go func() { done <- windows.ConnectNamedPipe(h, nil) }()

	select {
	case err := <-done:
		if err != nil && !errors.Is(err, windows.ERROR_PIPE_CONNECTED) {
			return nil, err
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	conn := &winConn{Conn: rawPipeConn{os.NewFile(uintptr(h), l.name)}}
	if l.created < int32(l.cfg.MaxInstances) {
		next, err := createRawInstance(l.name, l.cfg, false)
		if err == nil {
			l.h = next
			l.created++
		}
	}
	return conn, nil
}

func (l *rawListener) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	return windows.CloseHandle(l.h)
}

// rawPipeConn adapts *os.File to net.Conn's subset winConn expects from a
// raw CreateNamedPipe instance. Deadlines are best-effort: a synchronous
// pipe handle has none of go-winio's overlapped-I/O deadline support, so
// SetReadDeadline/SetWriteDeadline surface whatever *os.File reports
// (ErrNoDeadline on a non-overlapped handle) rather than pretending to
// support something the raw instance cannot do.
type rawPipeConn struct {
	*os.File
}

func (rawPipeConn) LocalAddr() net.Addr  { return pipeAddr{} }
func (rawPipeConn) RemoteAddr() net.Addr { return pipeAddr{} }

type pipeAddr struct{}

func (pipeAddr) Network() string { return "pipe" }
func (pipeAddr) String() string  { return "" }
