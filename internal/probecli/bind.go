package probecli

import (
	"github.com/spf13/cobra"

	"github.com/cygcompat/afunix/pkg/afunix"
)

func newBindCmd(pcfg *probeConfig) *cobra.Command {
	var dgram bool
	var simulateFork bool
	cmd := &cobra.Command{
		Use:   "bind [ADDRESS]",
		Short: "Bind a socket to ADDRESS and report its bound address",
		Long:  "ADDRESS is \"\" for autobind, \"@name\" for an abstract address, or a filesystem path. The socket is closed before this command returns.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := pcfg.load()
			if err != nil {
				return err
			}
			var raw string
			if len(args) == 1 {
				raw = args[0]
			}
			addr, err := parseAddr(raw)
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
			if simulateFork {
				// Exercises the lock-reinitialization fixups a forking
				// host process would need around fork()/exec() (spec.md
				// §5): harmless on an already-bound socket since no I/O
				// is in flight.
				s.PrepareFork()
				if err := s.AfterExec(false); err != nil {
					return err
				}
			}
			return printJSON(cmd, map[string]string{
				"bound_address": s.GetSockName().String(),
			})
		},
	}
	cmd.Flags().BoolVar(&dgram, "dgram", false, "bind a SOCK_DGRAM socket instead of SOCK_STREAM")
	cmd.Flags().BoolVar(&simulateFork, "simulate-fork", false, "exercise PrepareFork/AfterExec after binding")
	return cmd
}
