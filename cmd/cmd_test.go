package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"synwatch/config"
	"synwatch/logging"
	"synwatch/sink"
	"synwatch/tccollector"
	"synwatch/ui"
)

func synAckFrame(t *testing.T) []byte {
	t.Helper()
	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{2, 0, 0, 0, 0, 1},
		DstMAC:       net.HardwareAddr{2, 0, 0, 0, 0, 2},
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version: 4, IHL: 5, TTL: 64, Protocol: layers.IPProtocolTCP,
		SrcIP: net.IPv4(10, 0, 0, 1).To4(), DstIP: net.IPv4(10, 0, 0, 2).To4(),
	}
	tcp := &layers.TCP{SrcPort: 443, DstPort: 51000, SYN: true, ACK: true, Window: 1024}
	require.NoError(t, tcp.SetNetworkLayerForChecksum(ip))

	buf := gopacket.NewSerializeBuffer()
	require.NoError(t, gopacket.SerializeLayers(buf,
		gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}, eth, ip, tcp))
	return buf.Bytes()
}

func writeTrace(t *testing.T, frames ...[]byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "trace.pcap")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	w := pcapgo.NewWriter(f)
	require.NoError(t, w.WriteFileHeader(65535, layers.LinkTypeEthernet))
	for _, fr := range frames {
		ci := gopacket.CaptureInfo{Timestamp: time.Now(), CaptureLength: len(fr), Length: len(fr)}
		require.NoError(t, w.WritePacket(ci, fr))
	}
	return path
}

func defaultConfig(t *testing.T) *config.Config {
	t.Helper()
	c, err := config.Load(config.New(), "")
	require.NoError(t, err)
	return c
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
		_ = rootCmd.PersistentFlags().Set("log-level", "info")
	})
	err := rootCmd.Execute()
	return out.String(), err
}

func TestConfigCommandHonorsFlags(t *testing.T) {
	out, err := execute(t, "config", "--log-level", "debug")
	require.NoError(t, err)
	assert.Contains(t, out, "level: debug")
	assert.Contains(t, out, "mode: tcx")
	assert.Contains(t, out, "ring_size: 4096")
}

func TestCaptureCommandReplaysPcap(t *testing.T) {
	path := writeTrace(t, synAckFrame(t), []byte{0xde, 0xad})

	out, err := execute(t, "capture", "--pcap", path, "--ring-size", "16")
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(out, "SYN-ACK"))
	assert.Contains(t, out, "10.0.0.1:443")
	assert.Contains(t, out, "10.0.0.2:51000")
	assert.Equal(t, 16, cfg.Capture.RingSize)
}

func TestCaptureCommandRejectsBadConfig(t *testing.T) {
	_, err := execute(t, "capture", "--pcap", filepath.Join(t.TempDir(), "missing.pcap"))
	assert.Error(t, err)

	_, err = execute(t, "config", "--log-level", "chatty")
	assert.ErrorIs(t, err, config.ErrInvalid)
}

func TestOpenSourceRequiresInput(t *testing.T) {
	c := defaultConfig(t)
	_, err := openSource(c)
	assert.ErrorIs(t, err, config.ErrInvalid)
}

func TestBuildSinks(t *testing.T) {
	c := defaultConfig(t)
	c.Sinks.JSON.Enabled = true
	c.Sinks.JSON.Path = filepath.Join(t.TempDir(), "events.jsonl")

	var out bytes.Buffer
	m, err := buildSinks(c, &out, true)
	require.NoError(t, err)
	assert.Equal(t, 2, m.Len())
	require.NoError(t, m.Close())

	m, err = buildSinks(c, &out, false)
	require.NoError(t, err)
	assert.Equal(t, 1, m.Len(), "console suppressed")
	require.NoError(t, m.Close())

	c.Sinks.Kafka.Enabled = true
	c.Sinks.Kafka.Brokers = nil
	_, err = buildSinks(c, &out, true)
	assert.Error(t, err)
}

func TestCaptureWritesJSONSink(t *testing.T) {
	c := defaultConfig(t)
	c.Capture.Pcap = writeTrace(t, synAckFrame(t))
	c.Sinks.Console = false
	c.Sinks.JSON.Enabled = true
	c.Sinks.JSON.Path = filepath.Join(t.TempDir(), "events.jsonl")

	require.NoError(t, runCapture(context.Background(), c, captureCmd))

	data, err := os.ReadFile(c.Sinks.JSON.Path)
	require.NoError(t, err)
	var rec sink.Record
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(data), &rec))
	assert.Equal(t, "SYN-ACK", rec.Kind)
	assert.Equal(t, uint16(51000), rec.DstPort)
}

func TestBindFlagsOnlyAnnotated(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("ring", "1", "")
	fs.String("other", "x", "")
	bindKey(fs, "ring", "capture.ring_size")
	require.NoError(t, fs.Parse([]string{"--ring", "32", "--other", "y"}))

	vp := viper.New()
	require.NoError(t, bindFlags(vp, fs))
	assert.Equal(t, 32, vp.GetInt("capture.ring_size"))
	assert.False(t, vp.IsSet("other"))
}

func TestTUIChannelsTeardown(t *testing.T) {
	var after bytes.Buffer
	restore := logging.SetOutput(&after)
	defer restore()

	ch := newTUIChannels()
	logging.Logger().Info("into the pane")
	assert.Contains(t, <-ch.sys, "into the pane")

	relayed := make(chan struct{})
	go func() {
		relayCounts(ch.stats, ch.counts)
		close(relayed)
	}()
	ch.stats <- tccollector.Stats{SYN: 3, SYNACK: 2, Lost: 1}
	assert.Equal(t, ui.Counts{SYN: 3, SYNACK: 2, Lost: 1}, <-ch.counts)

	ch.close()

	select {
	case <-relayed:
	case <-time.After(time.Second):
		t.Fatal("relay did not stop after stats closed")
	}
	_, open := <-ch.counts
	assert.False(t, open)

	// more lines than the pane buffer holds, with nobody draining it
	for i := 0; i < 500; i++ {
		logging.Logger().Info("after the UI")
	}
	assert.Contains(t, after.String(), "after the UI")
}
