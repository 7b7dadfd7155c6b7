//go:build !windows

package pipetransport

import (
	"context"
	"fmt"
)

// stubTransport reports that named pipes are only available on Windows,
// mirroring the teacher's named_pipe_stub.go.
type stubTransport struct{}

// New returns the stub transport used on non-Windows hosts.
func New() Transport { return stubTransport{} }

func (stubTransport) Create(name string, cfg Config) (Listener, error) {
	return nil, fmt.Errorf("pipetransport: named pipes only available on Windows")
}

func (stubTransport) Dial(ctx context.Context, name string) (Conn, error) {
	return nil, fmt.Errorf("pipetransport: named pipes only available on Windows")
}
