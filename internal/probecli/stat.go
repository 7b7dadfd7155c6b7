package probecli

import (
	"github.com/spf13/cobra"

	"github.com/cygcompat/afunix/internal/fsmeta"
)

func newStatCmd(pcfg *probeConfig) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stat PATH",
		Short: "Report the S_IFSOCK-overridden metadata of a pathname-bound socket's reparse point",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			info, err := fsmeta.Stat(args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]any{
				"name":     info.Name(),
				"size":     info.Size(),
				"mode":     info.Mode().String(),
				"mod_time": info.ModTime(),
				"is_dir":   info.IsDir(),
			})
		},
	}
	return cmd
}
