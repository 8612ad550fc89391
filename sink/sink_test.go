package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/netip"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"synwatch/event"
	"synwatch/metrics"
	"synwatch/tccollector/utility"
)

func synAck() event.Handshake {
	return event.Handshake{
		SrcAddr:   event.MappedAddr(netip.MustParseAddr("10.0.0.1")),
		DstAddr:   event.MappedAddr(netip.MustParseAddr("10.0.0.2")),
		SrcPort:   443,
		DstPort:   51000,
		SYN:       true,
		ACK:       true,
		Timestamp: 1_000_000,
	}
}

func TestNewRecord(t *testing.T) {
	r := NewRecord(synAck())
	assert.Equal(t, "SYN-ACK", r.Kind)
	assert.Equal(t, "ipv4", r.Family)
	assert.Equal(t, "10.0.0.1", r.SrcAddr)
	assert.Equal(t, uint16(443), r.SrcPort)
	assert.Equal(t, "10.0.0.2", r.DstAddr)
	assert.Equal(t, uint16(51000), r.DstPort)
	assert.True(t, r.SYN)
	assert.True(t, r.ACK)
	assert.Equal(t, uint64(1_000_000), r.MonotonicNs)
	assert.True(t, r.Time.Equal(utility.ConvertMonotonic(1_000_000)))

	v6 := event.Handshake{
		SrcAddr: netip.MustParseAddr("2001:db8::1").As16(),
		DstAddr: netip.MustParseAddr("2001:db8::2").As16(),
		SYN:     true,
	}
	r = NewRecord(v6)
	assert.Equal(t, "ipv6", r.Family)
	assert.Equal(t, "SYN", r.Kind)
	assert.Equal(t, "2001:db8::1", r.SrcAddr)
}

func TestJSONWritesOneLinePerEvent(t *testing.T) {
	var buf bytes.Buffer
	s := NewJSON(&buf)
	require.NoError(t, s.Write(synAck()))
	require.NoError(t, s.Write(synAck()))
	require.NoError(t, s.Close())

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var got Record
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &got))
	assert.Equal(t, "10.0.0.1", got.SrcAddr)
	assert.Equal(t, uint16(51000), got.DstPort)
	assert.Equal(t, "SYN-ACK", got.Kind)
}

func TestOpenJSONAppendsToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")

	for i := 0; i < 2; i++ {
		s, err := OpenJSON(path)
		require.NoError(t, err)
		require.NoError(t, s.Write(synAck()))
		require.NoError(t, s.Close())
	}

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(string(data), "\n"))
}

func TestOpenJSONBadPath(t *testing.T) {
	_, err := OpenJSON(filepath.Join(t.TempDir(), "missing", "events.jsonl"))
	assert.Error(t, err)
}

func TestConsole(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(&buf)
	require.NoError(t, c.Write(synAck()))
	require.NoError(t, c.Close())

	line := buf.String()
	assert.True(t, strings.HasSuffix(line, "\n"))
	assert.Contains(t, line, "SYN-ACK")
	assert.Contains(t, line, "10.0.0.1:443")
	assert.Contains(t, line, "10.0.0.2:51000")
}

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func TestKafkaWriteKeysBySource(t *testing.T) {
	w := &fakeWriter{}
	k := newKafkaWithWriter(w)

	require.NoError(t, k.Write(synAck()))
	require.Len(t, w.msgs, 1)
	assert.Equal(t, "10.0.0.1", string(w.msgs[0].Key))

	var rec Record
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &rec))
	assert.Equal(t, uint16(443), rec.SrcPort)

	require.NoError(t, k.Close())
	assert.True(t, w.closed)
}

func TestKafkaCompletionCountsFailures(t *testing.T) {
	k := newKafkaWithWriter(&fakeWriter{})
	before := testutil.ToFloat64(metrics.SinkErrorsTotal.WithLabelValues("kafka"))

	k.completion(make([]kafka.Message, 3), errors.New("broker down"))
	k.completion(make([]kafka.Message, 2), nil)

	assert.Equal(t, uint64(3), k.failed.Load())
	assert.Equal(t, uint64(2), k.sent.Load())
	assert.Equal(t, before+3, testutil.ToFloat64(metrics.SinkErrorsTotal.WithLabelValues("kafka")))
}

func TestNewKafkaValidation(t *testing.T) {
	tests := []struct {
		name    string
		cfg     KafkaConfig
		wantErr bool
	}{
		{name: "missing brokers", cfg: KafkaConfig{Topic: "t"}, wantErr: true},
		{name: "missing topic", cfg: KafkaConfig{Brokers: []string{"localhost:9092"}}, wantErr: true},
		{name: "defaults", cfg: KafkaConfig{Brokers: []string{"localhost:9092"}, Topic: "t"}},
		{name: "explicit batching", cfg: KafkaConfig{Brokers: []string{"a:9092", "b:9092"}, Topic: "t", BatchSize: 10, BatchTimeout: time.Second}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			k, err := NewKafka(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			w, ok := k.w.(*kafka.Writer)
			require.True(t, ok)
			assert.Equal(t, "t", w.Topic)
			assert.True(t, w.Async)
			assert.Positive(t, w.BatchSize)
			assert.True(t, w.BatchTimeout > 0)
		})
	}
}

type recordingSink struct {
	name   string
	events []event.Handshake
	err    error
	closed bool
}

func (r *recordingSink) Name() string { return r.name }

func (r *recordingSink) Write(ev event.Handshake) error {
	r.events = append(r.events, ev)
	return r.err
}

func (r *recordingSink) Close() error {
	r.closed = true
	return r.err
}

func TestMultiFansOutPastFailures(t *testing.T) {
	bad := &recordingSink{name: "bad", err: errors.New("nope")}
	good := &recordingSink{name: "good"}
	m := NewMulti(bad, good)
	require.Equal(t, 2, m.Len())

	before := testutil.ToFloat64(metrics.SinkErrorsTotal.WithLabelValues("bad"))
	err := m.Write(synAck())
	assert.ErrorIs(t, err, bad.err)
	assert.Len(t, good.events, 1)
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.SinkErrorsTotal.WithLabelValues("bad")))

	m.Handle(synAck())
	assert.Len(t, good.events, 2)

	assert.ErrorIs(t, m.Close(), bad.err)
	assert.True(t, good.closed)
}
