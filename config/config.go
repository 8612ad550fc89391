// Package config loads synwatch configuration using viper: built-in
// defaults, an optional YAML file, SYNWATCH_* environment variables and
// bound command-line flags, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"synwatch/logging"
	"synwatch/output"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid configuration")

const EnvPrefix = "SYNWATCH"

// Attachment modes and directions for the kernel probe.
const (
	ModeTCX     = "tcx"
	ModeNetlink = "netlink"

	DirectionIngress = "ingress"
	DirectionEgress  = "egress"
)

type Config struct {
	Interface string         `mapstructure:"interface" yaml:"interface"`
	Attach    AttachConfig   `mapstructure:"attach" yaml:"attach"`
	Capture   CaptureConfig  `mapstructure:"capture" yaml:"capture"`
	Sinks     SinksConfig    `mapstructure:"sinks" yaml:"sinks"`
	Metrics   MetricsConfig  `mapstructure:"metrics" yaml:"metrics"`
	Log       logging.Config `mapstructure:"log" yaml:"log"`
}

// AttachConfig drives the kernel probe loader.
type AttachConfig struct {
	Mode         string `mapstructure:"mode" yaml:"mode"`
	Direction    string `mapstructure:"direction" yaml:"direction"`
	Object       string `mapstructure:"object" yaml:"object"` // empty = probe.o next to the executable
	PerCPUPages  int    `mapstructure:"per_cpu_pages" yaml:"per_cpu_pages"`
	TUI          bool   `mapstructure:"tui" yaml:"tui"`
	StatsSeconds int    `mapstructure:"stats_seconds" yaml:"stats_seconds"`
}

// CaptureConfig drives the user-space capture path.
type CaptureConfig struct {
	Pcap         string `mapstructure:"pcap" yaml:"pcap"`
	SnapLen      int    `mapstructure:"snap_len" yaml:"snap_len"`
	BufferSizeMB int    `mapstructure:"buffer_size_mb" yaml:"buffer_size_mb"`
	TimeoutMs    int    `mapstructure:"timeout_ms" yaml:"timeout_ms"`
	RingSize     int    `mapstructure:"ring_size" yaml:"ring_size"`
}

type SinksConfig struct {
	Console bool            `mapstructure:"console" yaml:"console"`
	JSON    JSONSinkConfig  `mapstructure:"json" yaml:"json"`
	Kafka   KafkaSinkConfig `mapstructure:"kafka" yaml:"kafka"`
}

type JSONSinkConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Path    string `mapstructure:"path" yaml:"path"` // "-" or empty = stdout
}

type KafkaSinkConfig struct {
	Enabled      bool          `mapstructure:"enabled" yaml:"enabled"`
	Brokers      []string      `mapstructure:"brokers" yaml:"brokers"`
	Topic        string        `mapstructure:"topic" yaml:"topic"`
	BatchSize    int           `mapstructure:"batch_size" yaml:"batch_size"`
	BatchTimeout time.Duration `mapstructure:"batch_timeout" yaml:"batch_timeout"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Listen  string `mapstructure:"listen" yaml:"listen"`
	Path    string `mapstructure:"path" yaml:"path"`
}

// New returns a viper instance with defaults and environment binding set up.
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func SetDefaults(v *viper.Viper) {
	v.SetDefault("interface", "")

	v.SetDefault("attach.mode", ModeTCX)
	v.SetDefault("attach.direction", DirectionIngress)
	v.SetDefault("attach.object", "")
	v.SetDefault("attach.per_cpu_pages", 64)
	v.SetDefault("attach.tui", false)
	v.SetDefault("attach.stats_seconds", 1)

	v.SetDefault("capture.pcap", "")
	v.SetDefault("capture.snap_len", 128)
	v.SetDefault("capture.buffer_size_mb", 8)
	v.SetDefault("capture.timeout_ms", 100)
	v.SetDefault("capture.ring_size", 4096)

	v.SetDefault("sinks.console", true)
	v.SetDefault("sinks.json.enabled", false)
	v.SetDefault("sinks.json.path", "")
	v.SetDefault("sinks.kafka.enabled", false)
	v.SetDefault("sinks.kafka.brokers", []string{})
	v.SetDefault("sinks.kafka.topic", "synwatch-handshakes")
	v.SetDefault("sinks.kafka.batch_size", 100)
	v.SetDefault("sinks.kafka.batch_timeout", 100*time.Millisecond)

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.listen", "127.0.0.1:9464")
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 50)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 7)
	v.SetDefault("log.compress", false)
}

// Load reads path (if not empty) into v, decodes and validates the result.
func Load(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	switch c.Attach.Mode {
	case ModeTCX, ModeNetlink:
	default:
		return fmt.Errorf("%w: attach.mode %q (want %s or %s)", ErrInvalid, c.Attach.Mode, ModeTCX, ModeNetlink)
	}
	switch c.Attach.Direction {
	case DirectionIngress, DirectionEgress:
	default:
		return fmt.Errorf("%w: attach.direction %q (want %s or %s)", ErrInvalid, c.Attach.Direction, DirectionIngress, DirectionEgress)
	}
	if c.Attach.PerCPUPages <= 0 {
		return fmt.Errorf("%w: attach.per_cpu_pages must be positive", ErrInvalid)
	}
	if c.Capture.RingSize <= 0 || c.Capture.RingSize > output.MaxCapacity {
		return fmt.Errorf("%w: capture.ring_size must be in [1, %d]", ErrInvalid, output.MaxCapacity)
	}
	if c.Capture.SnapLen < 64 {
		return fmt.Errorf("%w: capture.snap_len must be at least 64", ErrInvalid)
	}
	if c.Sinks.Kafka.Enabled {
		if len(c.Sinks.Kafka.Brokers) == 0 {
			return fmt.Errorf("%w: sinks.kafka.brokers is required", ErrInvalid)
		}
		if c.Sinks.Kafka.Topic == "" {
			return fmt.Errorf("%w: sinks.kafka.topic is required", ErrInvalid)
		}
	}
	if c.Metrics.Enabled && c.Metrics.Listen == "" {
		return fmt.Errorf("%w: metrics.listen is required", ErrInvalid)
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}

// YAML renders the effective configuration.
func (c *Config) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}
