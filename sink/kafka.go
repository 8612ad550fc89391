package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"synwatch/event"
	"synwatch/logging"
	"synwatch/metrics"
)

const (
	defaultBatchSize    = 100
	defaultBatchTimeout = 100 * time.Millisecond
)

// KafkaConfig configures the Kafka sink.
type KafkaConfig struct {
	Brokers      []string
	Topic        string
	BatchSize    int
	BatchTimeout time.Duration
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Kafka publishes each event as a JSON message keyed by source address.
// The writer runs asynchronously; delivery failures surface through
// metrics and the log, never through Write.
type Kafka struct {
	w   messageWriter
	log *logrus.Entry

	sent   atomic.Uint64
	failed atomic.Uint64
}

func NewKafka(cfg KafkaConfig) (*Kafka, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka sink requires brokers")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("kafka sink requires a topic")
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = defaultBatchTimeout
	}

	k := &Kafka{log: logging.WithComponent("sink.kafka").WithField("topic", cfg.Topic)}
	k.w = &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    cfg.BatchSize,
		BatchTimeout: cfg.BatchTimeout,
		RequiredAcks: kafka.RequireOne,
		Async:        true,
		Completion:   k.completion,
	}
	return k, nil
}

func newKafkaWithWriter(w messageWriter) *Kafka {
	return &Kafka{w: w, log: logging.WithComponent("sink.kafka")}
}

func (k *Kafka) Name() string { return "kafka" }

func (k *Kafka) Write(ev event.Handshake) error {
	value, err := json.Marshal(NewRecord(ev))
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(ev.Src().Addr().String()),
		Value: value,
	}
	return k.w.WriteMessages(context.Background(), msg)
}

func (k *Kafka) completion(msgs []kafka.Message, err error) {
	if err != nil {
		k.failed.Add(uint64(len(msgs)))
		metrics.SinkErrorsTotal.WithLabelValues(k.Name()).Add(float64(len(msgs)))
		k.log.WithError(err).WithField("messages", len(msgs)).Warn("kafka delivery failed")
		return
	}
	k.sent.Add(uint64(len(msgs)))
}

func (k *Kafka) Close() error {
	return k.w.Close()
}
