package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"synwatch/capture"
	"synwatch/config"
	"synwatch/logging"
)

var captureCmd = &cobra.Command{
	Use:   "capture",
	Short: "Classify handshakes in user space from a live interface or a pcap file",
	Long: `Read Ethernet frames from an AF_PACKET ring (linux) or a pcap / pcapng
file and run each through the Go classifier.

Examples:
  synwatch capture -i eth0
  synwatch capture --pcap trace.pcapng --ring-size 8192`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return runCapture(ctx, cfg, cmd)
	},
}

func init() {
	f := captureCmd.Flags()
	f.StringP("interface", "i", "", "network interface to capture on")
	f.String("pcap", "", "replay a pcap or pcapng file instead of capturing live")
	f.Int("ring-size", 4096, "event ring capacity (rounded up to a power of two)")
	f.Int("snaplen", 128, "bytes captured per frame")

	bindKey(f, "interface", "interface")
	bindKey(f, "pcap", "capture.pcap")
	bindKey(f, "ring-size", "capture.ring_size")
	bindKey(f, "snaplen", "capture.snap_len")
}

func openSource(c *config.Config) (capture.Source, error) {
	if c.Capture.Pcap != "" {
		src, err := capture.OpenFile(c.Capture.Pcap)
		if err != nil {
			return nil, err
		}
		return src, nil
	}
	if c.Interface == "" {
		return nil, fmt.Errorf("%w: --interface or --pcap is required", config.ErrInvalid)
	}
	src, err := capture.OpenLive(capture.LiveConfig{
		Device:       c.Interface,
		SnapLen:      c.Capture.SnapLen,
		BufferSizeMB: c.Capture.BufferSizeMB,
		TimeoutMs:    c.Capture.TimeoutMs,
	})
	if err != nil {
		return nil, err
	}
	return src, nil
}

func runCapture(ctx context.Context, c *config.Config, cmd *cobra.Command) error {
	log := logging.WithComponent("capture")

	src, err := openSource(c)
	if err != nil {
		return err
	}
	defer src.Close()

	sinks, err := buildSinks(c, cmd.OutOrStdout(), true)
	if err != nil {
		return err
	}
	defer sinks.Close()

	stopMetrics, err := startMetrics(c)
	if err != nil {
		return err
	}
	defer stopMetrics()

	p, err := capture.NewPipeline(src, c.Capture.RingSize, sinks.Handle)
	if err != nil {
		return err
	}

	log.WithFields(logrus.Fields{
		"interface": c.Interface,
		"pcap":      c.Capture.Pcap,
		"ring_size": c.Capture.RingSize,
		"sinks":     sinks.Len(),
	}).Info("starting capture")

	err = p.Run(ctx)
	st := p.Stats()
	log.WithFields(logrus.Fields{
		"frames":  st.Frames,
		"emitted": st.Emitted,
		"dropped": st.Dropped,
	}).Info("capture stopped")
	return err
}
