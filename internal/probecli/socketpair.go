package probecli

import (
	"github.com/spf13/cobra"

	"github.com/cygcompat/afunix/pkg/afunix"
)

func newSocketpairCmd(pcfg *probeConfig) *cobra.Command {
	var dgram bool
	cmd := &cobra.Command{
		Use:   "socketpair",
		Short: "Build a connected pair via bind+listen+connect+accept on a private abstract name and report both ends",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := pcfg.load()
			if err != nil {
				return err
			}
			stype := afunix.SockStream
			if dgram {
				stype = afunix.SockDgram
			}
			a, b, err := afunix.SocketPair(cfg, stype)
			if err != nil {
				return err
			}
			defer a.Close()
			defer b.Close()
			return printJSON(cmd, map[string]string{
				"a_local": a.GetSockName().String(),
				"a_peer":  a.GetPeerName().String(),
				"b_local": b.GetSockName().String(),
				"b_peer":  b.GetPeerName().String(),
			})
		},
	}
	cmd.Flags().BoolVar(&dgram, "dgram", false, "build a SOCK_DGRAM pair instead of SOCK_STREAM")
	return cmd
}
