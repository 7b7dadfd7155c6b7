package probecli

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/cygcompat/afunix/internal/sockopt"
	"github.com/cygcompat/afunix/pkg/afunix"
)

func newListenCmd(pcfg *probeConfig) *cobra.Command {
	var dgram bool
	var backlog int
	var count int
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "listen ADDRESS",
		Short: "Bind, listen, and accept COUNT connections, printing each peer's address and the byte length of its SO_PEERCRED value",
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
			if err := s.Bind(addr); err != nil {
				return err
			}
			if err := s.Listen(backlog); err != nil {
				return err
			}

			var accepted []map[string]any
			for i := 0; i < count; i++ {
				ctx, cancel := afunix.Deadline(timeout)
				child, err := s.Accept(ctx)
				cancel()
				if err != nil {
					return err
				}
				entry := map[string]any{"peer_address": child.GetPeerName().String()}
				if cred, err := child.GetSockopt(sockopt.SOL_SOCKET, sockopt.SO_PEERCRED); err == nil {
					entry["peer_cred_bytes"] = len(cred)
				}
				accepted = append(accepted, entry)
				child.Close()
			}
			return printJSON(cmd, map[string]any{
				"listen_address": s.GetSockName().String(),
				"accepted":       accepted,
			})
		},
	}
	cmd.Flags().BoolVar(&dgram, "dgram", false, "listen with a SOCK_DGRAM socket instead of SOCK_STREAM (rejected: EOPNOTSUPP)")
	cmd.Flags().IntVar(&backlog, "backlog", 16, "listen backlog")
	cmd.Flags().IntVar(&count, "count", 1, "number of connections to accept before exiting")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "bound on each Accept call")
	return cmd
}
