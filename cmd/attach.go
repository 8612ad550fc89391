package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/cilium/ebpf/rlimit"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"synwatch/config"
	"synwatch/event"
	"synwatch/logging"
	"synwatch/sink"
	"synwatch/tccollector"
	"synwatch/ui"
)

var attachCmd = &cobra.Command{
	Use:   "attach",
	Short: "Classify handshakes in the kernel with the TC probe",
	Long: `Load probe.o, attach it to an interface as a TC classifier and stream
the handshake events it emits through the perf buffer.

Requires CAP_BPF / CAP_NET_ADMIN (usually root).

Examples:
  synwatch attach -i eth0
  synwatch attach -i eth0 --direction egress --mode netlink
  synwatch attach --tui`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return runAttach(ctx, cfg, cmd)
	},
}

func init() {
	f := attachCmd.Flags()
	f.StringP("interface", "i", "", "network interface to attach the probe to (prompted when empty)")
	f.String("mode", config.ModeTCX, "attach mode: tcx or netlink")
	f.String("direction", config.DirectionIngress, "traffic direction: ingress or egress")
	f.String("object", "", "path to probe.o (default: next to the executable)")
	f.Int("per-cpu-pages", 64, "perf buffer size per CPU, in pages")
	f.Bool("tui", false, "show the terminal UI")

	bindKey(f, "interface", "interface")
	bindKey(f, "mode", "attach.mode")
	bindKey(f, "direction", "attach.direction")
	bindKey(f, "object", "attach.object")
	bindKey(f, "per-cpu-pages", "attach.per_cpu_pages")
	bindKey(f, "tui", "attach.tui")
}

func runAttach(ctx context.Context, c *config.Config, cmd *cobra.Command) error {
	log := logging.WithComponent("attach")

	iface := c.Interface
	if iface == "" {
		selected, err := ui.SelectNetworkInterface()
		if err != nil {
			return err
		}
		iface = selected
	}

	if err := rlimit.RemoveMemlock(); err != nil {
		return fmt.Errorf("remove memlock limit: %w", err)
	}

	// Console lines would tear the TUI apart.
	sinks, err := buildSinks(c, cmd.OutOrStdout(), !c.Attach.TUI)
	if err != nil {
		return err
	}
	defer sinks.Close()

	stopMetrics, err := startMetrics(c)
	if err != nil {
		return err
	}
	defer stopMetrics()

	if c.Attach.StatsSeconds > 0 {
		tccollector.StatsInterval = time.Duration(c.Attach.StatsSeconds) * time.Second
	}

	opts := tccollector.Options{
		Interface:   iface,
		Object:      c.Attach.Object,
		Mode:        c.Attach.Mode,
		Direction:   c.Attach.Direction,
		PerCPUPages: c.Attach.PerCPUPages,
		Handler:     sinks.Handle,
	}

	if !c.Attach.TUI {
		coll, err := tccollector.New(opts)
		if err != nil {
			return fmt.Errorf("collector initialization failed: %w", err)
		}
		log.WithField("interface", iface).Info("starting TC collector")
		err = coll.Run(ctx)
		st := coll.Stats()
		log.WithFields(logrus.Fields{
			"received": st.Received,
			"syn":      st.SYN,
			"syn_ack":  st.SYNACK,
			"lost":     st.Lost,
		}).Info("collector stopped")
		return err
	}

	return runAttachTUI(ctx, iface, opts, sinks)
}

// tuiChannels feeds the TUI panes. close must run only after the collector
// and the UI have both stopped, since they are the only senders.
type tuiChannels struct {
	sys        chan string
	net        chan string
	stats      chan tccollector.Stats
	counts     chan ui.Counts
	restoreLog func()
}

// newTUIChannels also redirects logging into the system log pane.
func newTUIChannels() *tuiChannels {
	c := &tuiChannels{
		sys:    make(chan string, 200),
		net:    make(chan string, 200),
		stats:  make(chan tccollector.Stats, 8),
		counts: make(chan ui.Counts, 8),
	}
	c.restoreLog = logging.SetOutput(ui.ChannelWriter{Ch: c.sys})
	return c
}

// close puts logging back on its previous output before closing the pane
// channels, so late log lines never block on an undrained pane.
func (c *tuiChannels) close() {
	c.restoreLog()
	close(c.stats)
	close(c.net)
	close(c.sys)
}

// relayCounts converts collector stats to counter snapshots until stats is
// closed, then closes counts.
func relayCounts(stats <-chan tccollector.Stats, counts chan<- ui.Counts) {
	defer close(counts)
	for st := range stats {
		counts <- ui.Counts{SYN: st.SYN, SYNACK: st.SYNACK, Lost: st.Lost}
	}
}

func runAttachTUI(ctx context.Context, iface string, opts tccollector.Options, sinks *sink.Multi) error {
	ch := newTUIChannels()

	view := ui.SetupUI()
	filter := ui.NewFilter(nil)
	view.BindCommands(filter, ch.sys)

	feed := ui.EventFeeder(filter, ch.net)
	opts.Handler = func(ev event.Handshake) {
		sinks.Handle(ev)
		feed(ev)
	}
	opts.StatsChan = ch.stats

	coll, err := tccollector.New(opts)
	if err != nil {
		ch.close()
		return fmt.Errorf("collector initialization failed: %w", err)
	}
	logging.WithComponent("attach").WithField("interface", iface).Info("starting TC collector")

	var sysLines, netLines []string
	go ui.PumpTextview(view.App, view.SysView, ch.sys, &sysLines)
	go ui.PumpTextview(view.App, view.EventView, ch.net, &netLines)
	go view.PumpCounters(ch.counts)
	go relayCounts(ch.stats, ch.counts)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- coll.Run(runCtx)
		view.App.Stop()
	}()
	go func() {
		<-runCtx.Done()
		view.App.Stop()
	}()

	uiErr := view.App.SetRoot(view.Layout, true).SetFocus(view.Input).Run()
	cancel()
	runErr := <-done
	ch.close()
	if uiErr != nil {
		uiErr = fmt.Errorf("terminal UI: %w", uiErr)
	}
	return errors.Join(uiErr, runErr)
}
