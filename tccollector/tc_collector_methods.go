package tccollector

import (
	"context"
	"errors"
	"time"

	"github.com/cilium/ebpf/perf"
	"golang.org/x/sync/errgroup"

	"synwatch/event"
	"synwatch/metrics"
)

// StatsInterval is how often Run pushes Stats to the stats channel.
var StatsInterval = time.Second

// Run starts both the event consumer and a periodic stats pump.
// It returns when the context is canceled or an error occurs.
func (c *collector) Run(ctx context.Context) error {
	defer c.Close()
	c.log.WithField("direction", c.direction).Info("TC probe attached, waiting for TCP handshakes")

	g, gctx := errgroup.WithContext(ctx)

	// Pump events
	g.Go(func() error { return c.consume(gctx) })

	// Unblock the reader on cancellation
	g.Go(func() error {
		<-gctx.Done()
		c.rd.Close()
		return nil
	})

	// Pump stats
	if c.statsChan != nil {
		g.Go(func() error {
			ticker := time.NewTicker(StatsInterval)
			defer ticker.Stop()
			for {
				select {
				case <-gctx.Done():
					return nil
				case <-ticker.C:
					select {
					case c.statsChan <- c.Stats():
					default:
					}
				}
			}
		})
	}

	return g.Wait()
}

// consume reads perf records and hands decoded events to the handler
// until the reader is closed.
func (c *collector) consume(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		rec, err := c.rd.Read()
		if err != nil {
			if errors.Is(err, perf.ErrClosed) || errors.Is(err, context.Canceled) {
				return nil
			}
			c.log.WithError(err).Warn("perf read")
			continue
		}

		c.process(rec.RawSample, rec.LostSamples)
	}
}

// process handles one perf record: either a lost-samples notification or a
// raw handshake record.
func (c *collector) process(raw []byte, lost uint64) {
	if lost != 0 {
		c.lost.Add(lost)
		metrics.LostSamplesTotal.Add(float64(lost))
		c.log.WithField("lost", lost).Warn("perf buffer overrun, events lost")
		return
	}

	ev, err := event.Decode(raw)
	if err != nil {
		c.decodeErrors.Add(1)
		metrics.DecodeErrorsTotal.Inc()
		c.log.WithError(err).Debug("decode error")
		return
	}

	c.received.Add(1)
	if ev.ACK {
		c.synAck.Add(1)
	} else {
		c.syn.Add(1)
	}
	metrics.ObserveHandshake(ev)
	c.handle(ev)
}

// Stats returns the reader counters.
func (c *collector) Stats() Stats {
	return Stats{
		Received:     c.received.Load(),
		SYN:          c.syn.Load(),
		SYNACK:       c.synAck.Load(),
		Lost:         c.lost.Load(),
		DecodeErrors: c.decodeErrors.Load(),
	}
}
