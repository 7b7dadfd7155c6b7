// Package config loads the compatibility layer's YAML configuration,
// following the nested-struct-with-yaml-tags style the rest of this
// corpus's configuration packages use.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration for the AF_UNIX compatibility
// layer: the installation key shared by every pipe socket on the host, the
// shared namespace directory abstract addresses publish into, and the
// timeouts and buffer sizes the connection state machine and pipe
// transport use.
type Config struct {
	// InstallKey is the 16-hex-character key embedded in every canonical
	// pipe name (spec.md §4.1). It is per-host and constant once set.
	InstallKey string `yaml:"install_key"`

	Namespace NamespaceConfig `yaml:"namespace"`
	Connect   ConnectConfig   `yaml:"connect"`
	Buffers   BuffersConfig   `yaml:"buffers"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// NamespaceConfig configures the host-namespace object directory abstract
// addresses publish into (spec.md §6).
type NamespaceConfig struct {
	// SharedParentDir is the process group's shared parent directory for
	// abstract-address symbolic link objects.
	SharedParentDir string `yaml:"shared_parent_dir"`
}

// ConnectConfig configures connect-waiter timing (spec.md §5).
type ConnectConfig struct {
	// Timeout is AF_UNIX_CONNECT_TIMEOUT: the default bound on a blocking
	// connect, including retries.
	Timeout time.Duration `yaml:"timeout"`

	// PeerNameReadTimeout bounds the accepted side's blocking read of the
	// peer-name announcement packet (spec.md §4.5).
	PeerNameReadTimeout time.Duration `yaml:"peer_name_read_timeout"`
}

// BuffersConfig configures the pipe's own I/O buffer sizes, which are also
// a socket's initial SO_RCVBUF/SO_SNDBUF values. DefaultRcvBuf and
// DefaultSndBuf are loaded but not read by any socket.
type BuffersConfig struct {
	DefaultRcvBuf    int `yaml:"default_rcv_buf"`
	DefaultSndBuf    int `yaml:"default_snd_buf"`
	PipeInputBuffer  int `yaml:"pipe_input_buffer"`
	PipeOutputBuffer int `yaml:"pipe_output_buffer"`
}

// LoggingConfig configures the slog handler the rest of the layer logs
// through.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
	JSON  bool   `yaml:"json"`
}

// Default returns the configuration this layer runs with when no config
// file is supplied. InstallKey is intentionally left for the caller to
// override: unlike the other fields, it is host identity, not policy.
func Default() Config {
	return Config{
		Namespace: NamespaceConfig{
			SharedParentDir: `\BaseNamedObjects\cygwin-unix`,
		},
		Connect: ConnectConfig{
			Timeout:             20 * time.Second,
			PeerNameReadTimeout: 20 * time.Second,
		},
		Buffers: BuffersConfig{
			DefaultRcvBuf:    64 * 1024,
			DefaultSndBuf:    64 * 1024,
			PipeInputBuffer:  65536,
			PipeOutputBuffer: 65536,
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Load reads and parses a YAML config file, starting from Default() so a
// partial file only overrides what it sets.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the invariants the rest of the layer assumes hold.
func (c Config) Validate() error {
	if c.InstallKey != "" && len(c.InstallKey) != 16 {
		return fmt.Errorf("install_key must be 16 hex characters, got %d", len(c.InstallKey))
	}
	for _, r := range c.InstallKey {
		if !((r >= '0' && r <= '9') || (r >= 'a' && r <= 'f')) {
			return fmt.Errorf("install_key must be lowercase hex, got %q", c.InstallKey)
		}
	}
	if c.Connect.Timeout < 0 {
		return fmt.Errorf("connect.timeout must not be negative")
	}
	return nil
}
