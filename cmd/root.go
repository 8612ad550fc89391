// Package cmd implements the synwatch CLI using the cobra framework.
package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"synwatch/config"
	"synwatch/logging"
	"synwatch/metrics"
	"synwatch/sink"
)

// viperKey is the flag annotation naming the configuration key a flag
// overrides.
const viperKey = "viper-key"

const shutdownTimeout = 5 * time.Second

var (
	// Global flags
	configFile string

	v   = config.New()
	cfg *config.Config
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "synwatch",
	Short: "synwatch - TCP handshake (SYN / SYN-ACK) classifier",
	Long: `synwatch recognizes TCP handshake-initiating segments on a network
interface and reports each one as a compact handshake event.

Two capture paths share one classifier contract:
  - attach:  a TC eBPF probe classifies in the kernel and streams events
             through a perf buffer
  - capture: frames are read in user space (AF_PACKET or a pcap file) and
             classified by the Go classifier`,
	Version:           "0.1.0",
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: loadConfig,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "",
		"config file path (YAML)")
	rootCmd.PersistentFlags().String("log-level", "info",
		"log level: trace, debug, info, warn, error")
	bindKey(rootCmd.PersistentFlags(), "log-level", "log.level")

	rootCmd.AddCommand(attachCmd)
	rootCmd.AddCommand(captureCmd)
	rootCmd.AddCommand(configCmd)
}

// bindKey marks flag name as an override for the configuration key.
func bindKey(fs *pflag.FlagSet, name, key string) {
	if err := fs.SetAnnotation(name, viperKey, []string{key}); err != nil {
		panic(fmt.Sprintf("annotate flag %s: %v", name, err))
	}
}

// bindFlags binds the annotated flags of the running command only, so
// commands sharing a flag name do not override each other.
func bindFlags(vp *viper.Viper, fs *pflag.FlagSet) error {
	var err error
	fs.VisitAll(func(f *pflag.Flag) {
		keys, ok := f.Annotations[viperKey]
		if !ok || err != nil {
			return
		}
		err = vp.BindPFlag(keys[0], f)
	})
	return err
}

func loadConfig(cmd *cobra.Command, _ []string) error {
	if err := bindFlags(v, cmd.Flags()); err != nil {
		return fmt.Errorf("bind flags: %w", err)
	}
	loaded, err := config.Load(v, configFile)
	if err != nil {
		return err
	}
	if err := logging.Init(loaded.Log); err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	cfg = loaded
	return nil
}

// buildSinks opens every enabled sink. Console output goes to out.
func buildSinks(c *config.Config, out io.Writer, console bool) (*sink.Multi, error) {
	var sinks []sink.Sink
	closeAll := func() {
		for _, s := range sinks {
			s.Close()
		}
	}

	if console && c.Sinks.Console {
		sinks = append(sinks, sink.NewConsole(out))
	}
	if c.Sinks.JSON.Enabled {
		s, err := sink.OpenJSON(c.Sinks.JSON.Path)
		if err != nil {
			closeAll()
			return nil, err
		}
		sinks = append(sinks, s)
	}
	if c.Sinks.Kafka.Enabled {
		s, err := sink.NewKafka(sink.KafkaConfig{
			Brokers:      c.Sinks.Kafka.Brokers,
			Topic:        c.Sinks.Kafka.Topic,
			BatchSize:    c.Sinks.Kafka.BatchSize,
			BatchTimeout: c.Sinks.Kafka.BatchTimeout,
		})
		if err != nil {
			closeAll()
			return nil, err
		}
		sinks = append(sinks, s)
	}
	return sink.NewMulti(sinks...), nil
}

// startMetrics starts the metrics endpoint when enabled. The returned
// stop function is always safe to call.
func startMetrics(c *config.Config) (func(), error) {
	if !c.Metrics.Enabled {
		return func() {}, nil
	}
	srv := metrics.NewServer(c.Metrics.Listen, c.Metrics.Path)
	if err := srv.Start(); err != nil {
		return nil, err
	}
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Stop(ctx); err != nil {
			logging.WithComponent("metrics").WithError(err).Warn("metrics server shutdown")
		}
	}, nil
}
