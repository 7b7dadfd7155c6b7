// Package faketransport is an in-memory pipetransport.Transport used by
// internal/connstate's tests to exercise the connection state machine
// without a live Windows host, the same separation the teacher keeps
// between an IPC monitor's platform-agnostic interface
// (internal/ipc/monitor.go) and its OS-specific backends.
package faketransport

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/cygcompat/afunix/internal/errno"
	"github.com/cygcompat/afunix/internal/pipetransport"
)

// Transport is a shared in-memory namespace of named pipes. Construct it
// with New: the zero value has no map, and Create on it panics. Each test
// should construct its own so namespaces never bleed between tests.
type Transport struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// New returns a fresh, empty fake transport.
func New() *Transport {
	return &Transport{entries: make(map[string]*entry)}
}

type entry struct {
	mu       sync.Mutex
	waiting  bool
	closed   bool
	acceptCh chan dialReq
}

type dialReq struct {
	result chan dialResult
}

type dialResult struct {
	conn net.Conn
	err  error
}

// Create implements pipetransport.Transport.
func (t *Transport) Create(name string, cfg pipetransport.Config) (pipetransport.Listener, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.entries[name]; ok {
		return nil, errors.New("faketransport: pipe already exists")
	}
	e := &entry{acceptCh: make(chan dialReq)}
	t.entries[name] = e
	return &listener{t: t, name: name, e: e}, nil
}

// Dial implements pipetransport.Transport. It polls for an available
// instance until one is accepted, ctx is done, or the pipe is closed or
// never existed, mirroring the retry loop spec.md §4.4 describes for the
// background connect-waiter.
func (t *Transport) Dial(ctx context.Context, name string) (pipetransport.Conn, error) {
	for {
		t.mu.Lock()
		e, ok := t.entries[name]
		t.mu.Unlock()
		if !ok {
			return nil, &pipetransport.DialError{Kind: errno.HostStatusNotFound, Err: errors.New("faketransport: no such pipe")}
		}

		e.mu.Lock()
		if e.closed {
			e.mu.Unlock()
			return nil, &pipetransport.DialError{Kind: errno.HostStatusNotFound, Err: errors.New("faketransport: pipe closed")}
		}
		if e.waiting {
			e.mu.Unlock()
			select {
			case <-time.After(2 * time.Millisecond):
				continue
			case <-ctx.Done():
				return nil, classifyCtxErr(ctx)
			}
		}
		e.waiting = true
		e.mu.Unlock()

		req := dialReq{result: make(chan dialResult, 1)}
		select {
		case e.acceptCh <- req:
		case <-ctx.Done():
			e.mu.Lock()
			e.waiting = false
			e.mu.Unlock()
			return nil, classifyCtxErr(ctx)
		}

		select {
		case res := <-req.result:
			e.mu.Lock()
			e.waiting = false
			e.mu.Unlock()
			if res.err != nil {
				return nil, &pipetransport.DialError{Kind: errno.HostStatusOther, Err: res.err}
			}
			return &fakeConn{Conn: res.conn}, nil
		case <-ctx.Done():
			e.mu.Lock()
			e.waiting = false
			e.mu.Unlock()
			return nil, classifyCtxErr(ctx)
		}
	}
}

func classifyCtxErr(ctx context.Context) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &pipetransport.DialError{Kind: errno.HostStatusTimeout, Err: ctx.Err()}
	}
	return &pipetransport.DialError{Kind: errno.HostStatusInterrupted, Err: ctx.Err()}
}

type listener struct {
	t    *Transport
	name string
	e    *entry
}

func (l *listener) Accept(ctx context.Context) (pipetransport.Conn, error) {
	select {
	case req := <-l.e.acceptCh:
		server, client := net.Pipe()
		req.result <- dialResult{conn: client}
		return &fakeConn{Conn: server}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (l *listener) Close() error {
	l.t.mu.Lock()
	delete(l.t.entries, l.name)
	l.t.mu.Unlock()

	l.e.mu.Lock()
	l.e.closed = true
	l.e.mu.Unlock()
	return nil
}

type fakeConn struct {
	net.Conn
}

func (c *fakeConn) Disconnect() error { return c.Conn.Close() }
