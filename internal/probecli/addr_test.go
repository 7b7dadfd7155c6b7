package probecli

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseAddrUnnamed(t *testing.T) {
	addr, err := parseAddr("")
	require.NoError(t, err)
	require.True(t, addr.IsZero())
}

func TestParseAddrAbstract(t *testing.T) {
	addr, err := parseAddr("@probe")
	require.NoError(t, err)
	require.Equal(t, "@probe", addr.String())
}

func TestParseAddrPathname(t *testing.T) {
	addr, err := parseAddr("/tmp/afunix-probe.sock")
	require.NoError(t, err)
	require.Equal(t, "/tmp/afunix-probe.sock", addr.String())
}

func TestParseAddrBareAtIsDegenerateAndRejected(t *testing.T) {
	_, err := parseAddr("@")
	require.Error(t, err)
}
