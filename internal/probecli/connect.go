package probecli

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/cygcompat/afunix/pkg/afunix"
)

func newConnectCmd(pcfg *probeConfig) *cobra.Command {
	var dgram bool
	var nonBlocking bool
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "connect ADDRESS",
		Short: "Connect to ADDRESS and report the resulting local/peer address pair",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := pcfg.load()
			if err != nil {
				return err
			}
			addr, err := parseAddr(args[0])
			if err != nil {
				return err
			}
			stype := afunix.SockStream
			if dgram {
				stype = afunix.SockDgram
			}
			s, err := afunix.New(cfg, stype)
			if err != nil {
				return err
			}
			defer s.Close()
			s.SetNonBlocking(nonBlocking)

			ctx, cancel := afunix.Deadline(timeout)
			defer cancel()
			err = s.Connect(ctx, addr)
			result := map[string]any{
				"local_address": s.GetSockName().String(),
				"peer_address":  s.GetPeerName().String(),
				"non_blocking":  nonBlocking,
			}
			if err != nil {
				result["error"] = err.Error()
				_ = printJSON(cmd, result)
				return &ExitError{code: 1, message: err.Error()}
			}
			return printJSON(cmd, result)
		},
	}
	cmd.Flags().BoolVar(&dgram, "dgram", false, "connect with a SOCK_DGRAM socket instead of SOCK_STREAM")
	cmd.Flags().BoolVar(&nonBlocking, "non-blocking", false, "connect in non-blocking mode (returns EINPROGRESS immediately)")
	cmd.Flags().DurationVar(&timeout, "timeout", 20*time.Second, "bound on a blocking connect")
	return cmd
}
