//go:build !windows

package nshost

import (
	"context"
	"fmt"

	"github.com/cygcompat/afunix/internal/pipeid"
	"github.com/cygcompat/afunix/internal/sockaddr"
)

// Publisher is the unsupported-platform stub, mirroring the teacher's
// named_pipe_stub.go.
type Publisher struct{}

// NewPublisher returns the stub publisher/resolver used on non-Windows
// hosts.
func NewPublisher(installKey, sharedParentDir string) *Publisher {
	return &Publisher{}
}

func (p *Publisher) Publish(ctx context.Context, addr sockaddr.SunName, pipeName string) (func() error, error) {
	return nil, fmt.Errorf("nshost: host namespace publishing only available on Windows")
}

func (p *Publisher) Resolve(ctx context.Context, addr sockaddr.SunName) (string, pipeid.SockType, error) {
	return "", 0, fmt.Errorf("nshost: host namespace resolution only available on Windows")
}
