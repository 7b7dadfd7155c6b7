package probecli

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewRootRegistersSubcommands(t *testing.T) {
	cmd := NewRoot("dev")
	var names []string
	for _, c := range cmd.Commands() {
		names = append(names, c.Name())
	}
	require.ElementsMatch(t, []string{"bind", "listen", "connect", "stat", "socketpair"}, names)
}
