package capture

import (
	"context"
	"errors"
	"io"
	"sync/atomic"

	"github.com/google/gopacket/layers"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"synwatch/classifier"
	"synwatch/event"
	"synwatch/logging"
	"synwatch/metrics"
	"synwatch/output"
)

// Stats counts frames and classifier results.
type Stats struct {
	Frames  uint64
	Emitted uint64
	Dropped uint64
	Pending int
}

// Pipeline reads frames from a Source, classifies them on the reading
// goroutine and delivers events to a handler from a separate goroutine
// through the output ring.
type Pipeline struct {
	src    Source
	ring   *output.Ring
	cls    *classifier.Classifier
	handle func(event.Handshake)
	log    *logrus.Entry

	frames  atomic.Uint64
	emitted atomic.Uint64
	dropped atomic.Uint64
}

// NewPipeline wires src through a classifier into a ring of ringSize
// events. handle runs on the drain goroutine.
func NewPipeline(src Source, ringSize int, handle func(event.Handshake), opts ...classifier.Option) (*Pipeline, error) {
	if src.LinkType() != layers.LinkTypeEthernet {
		return nil, ErrLinkType
	}
	p := &Pipeline{
		src:    src,
		ring:   output.NewRing(ringSize),
		handle: handle,
		log:    logging.WithComponent("capture"),
	}
	opts = append([]classifier.Option{classifier.WithObserver(p.observe)}, opts...)
	p.cls = classifier.New(p.ring, opts...)
	return p, nil
}

func (p *Pipeline) observe(r classifier.Result) {
	p.frames.Add(1)
	switch r {
	case classifier.Emitted:
		p.emitted.Add(1)
	case classifier.Dropped:
		p.dropped.Add(1)
	}
	metrics.ObserveResult(r)
}

// Run blocks until the source is exhausted, fails, or ctx is done. Events
// already queued are delivered before Run returns.
func (p *Pipeline) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	drainCtx, stopDrain := context.WithCancel(context.Background())

	g.Go(func() error {
		defer stopDrain()
		return p.read(gctx)
	})
	g.Go(func() error {
		return p.ring.Drain(drainCtx, func(ev event.Handshake) {
			metrics.ObserveHandshake(ev)
			p.handle(ev)
		})
	})

	err := g.Wait()
	p.ring.Close()
	return err
}

func (p *Pipeline) read(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		data, _, err := p.src.ReadPacketData()
		switch {
		case err == nil:
			p.cls.Classify(data)
			metrics.RingPending.Set(float64(p.ring.Len()))
		case errors.Is(err, ErrTimeout):
		case errors.Is(err, io.EOF):
			p.log.WithField("frames", p.frames.Load()).Info("capture source exhausted")
			return nil
		default:
			return err
		}
	}
}

// Stats returns the pipeline counters.
func (p *Pipeline) Stats() Stats {
	return Stats{
		Frames:  p.frames.Load(),
		Emitted: p.emitted.Load(),
		Dropped: p.dropped.Load(),
		Pending: p.ring.Len(),
	}
}
