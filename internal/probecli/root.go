package probecli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/cygcompat/afunix/internal/config"
)

// NewRoot builds the afunix-probe root command: a small diagnostic CLI
// over pkg/afunix, the same way the teacher's internal/cli.NewRoot wires
// its subcommands onto one persistent-flag-bearing root.
func NewRoot(version string) *cobra.Command {
	pcfg := &probeConfig{}
	cmd := &cobra.Command{
		Use:           "afunix-probe",
		Short:         "afunix-probe: exercise the AF_UNIX-over-named-pipes compatibility layer",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.Version = version
	cmd.SetVersionTemplate("afunix-probe {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&pcfg.configPath, "config", getenvDefault("AFUNIX_PROBE_CONFIG", ""), "YAML config file (defaults built in if omitted)")
	cmd.PersistentFlags().StringVar(&pcfg.installKey, "install-key", getenvDefault("AFUNIX_PROBE_INSTALL_KEY", "0123456789abcdef"), "16 lowercase-hex install key shared by every pipe socket on this host")

	cmd.AddCommand(newBindCmd(pcfg))
	cmd.AddCommand(newListenCmd(pcfg))
	cmd.AddCommand(newConnectCmd(pcfg))
	cmd.AddCommand(newStatCmd(pcfg))
	cmd.AddCommand(newSocketpairCmd(pcfg))

	return cmd
}

type probeConfig struct {
	configPath string
	installKey string
}

func (p *probeConfig) load() (config.Config, error) {
	var cfg config.Config
	var err error
	if p.configPath != "" {
		cfg, err = config.Load(p.configPath)
		if err != nil {
			return config.Config{}, err
		}
	} else {
		cfg = config.Default()
	}
	if p.installKey != "" {
		cfg.InstallKey = p.installKey
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
