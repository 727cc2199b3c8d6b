package wifisim

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWifiTcpConfigValidate(t *testing.T) {
	cfg := DefaultWifiTcpConfig()
	assert.NoError(t, cfg.Validate())

	bad := []func(c *WifiTcpConfig){
		func(c *WifiTcpConfig) { c.PayloadSize = 0 },
		func(c *WifiTcpConfig) { c.DataRate = "fast" },
		func(c *WifiTcpConfig) { c.TcpVariant = "TcpCubic" },
		func(c *WifiTcpConfig) { c.SimulationTime = 0 },
	}
	for idx, mod := range bad {
		c := DefaultWifiTcpConfig()
		mod(&c)
		assert.Error(t, c.Validate(), "case %d", idx)
		_, err := RunWifiTcp(c, RunOptions{})
		assert.Error(t, err, "case %d", idx)
	}
}

func TestRunWifiTcp(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultWifiTcpConfig()
	cfg.SimulationTime = 1.0
	var out bytes.Buffer
	opts := RunOptions{
		Out:       &out,
		TraceFile: filepath.Join(dir, "trace.yaml"),
		TopoFile:  filepath.Join(dir, "topo.yaml"),
	}
	res, err := RunWifiTcp(cfg, opts)
	require.NoError(t, err)

	assert.True(t, res.Associated)
	assert.Equal(t, "TcpNewReno", res.TcpVariant)
	assert.Greater(t, res.TotalRx, 0)
	assert.LessOrEqual(t, res.TotalRx, res.TxBytes)
	assert.Greater(t, res.AverageMbps, 0.0)
	assert.InDelta(t, AverageThroughputMbps(res.TotalRx, 1.0), res.AverageMbps, 1e-9)
	require.NotEmpty(t, res.Samples)
	assert.Greater(t, res.MeanMbps, 0.0)
	assert.Greater(t, res.TraceRecords, 0)
	assert.Empty(t, res.PcapFiles)

	// the windows tile the measured period, so their rates add up to the average
	sum, prev := 0.0, 1.0
	for _, smp := range res.Samples {
		sum += smp.Mbps * (smp.Time - prev)
		prev = smp.Time
	}
	assert.InDelta(t, 2.0, prev, 1e-6)
	assert.InEpsilon(t, res.AverageMbps*cfg.SimulationTime, sum, 0.01)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	assert.Len(t, lines, len(res.Samples))
	assert.True(t, strings.HasPrefix(lines[0], "1.1s: \t"), lines[0])
	assert.True(t, strings.HasSuffix(lines[0], "Mbit/s"), lines[0])
	assert.NotContains(t, lines[0], " Mbit/s")

	ok, err := CheckReadableFiles([]string{opts.TraceFile, opts.TopoFile})
	assert.True(t, ok, err)
	td, err := ReadTopoDesc(opts.TopoFile, true, nil)
	require.NoError(t, err)
	assert.Len(t, td.Nodes, 2)
	require.Len(t, td.Channels, 1)
	assert.Equal(t, "wifi", td.Channels[0].ChanType)
}

func TestRunWifiTcpParameters(t *testing.T) {
	cfg := DefaultWifiTcpConfig()
	cfg.SimulationTime = 0.5
	opts := RunOptions{
		Out:      &bytes.Buffer{},
		Defaults: map[string]string{"TcpSocket::DelAckCount": "1"},
		Parameters: []ExpParameter{{ParamObj: "App", Attributes: []AttrbStruct{{AttrbName: "*"}},
			Param: "MaxBytes", Value: "100096"}},
	}
	res, err := RunWifiTcp(cfg, opts)
	require.NoError(t, err)
	assert.Equal(t, 68*1472, res.TxBytes)
	assert.Equal(t, 68*1472, res.TotalRx)

	// user defaults are applied after the scenario's own, and are checked
	opts.Defaults = map[string]string{"TcpSocket::SegmentSize": "bad"}
	_, err = RunWifiTcp(cfg, opts)
	assert.Error(t, err)

	for _, path := range []string{"TcpSocket::SegmentSize", "TcpSocket::InitialCwnd"} {
		opts.Defaults = map[string]string{path: "0"}
		_, err = RunWifiTcp(cfg, opts)
		assert.Error(t, err, path)
	}
	opts.Defaults = map[string]string{"TcpL4Protocol::SocketType": "TcpBogus"}
	_, err = RunWifiTcp(cfg, opts)
	assert.Error(t, err)
}

func TestRunWifiTcpMeetsThreshold(t *testing.T) {
	if testing.Short() {
		t.Skip("runs the full ten seconds of traffic")
	}
	cfg := DefaultWifiTcpConfig()
	res, err := RunWifiTcp(cfg, RunOptions{Out: &bytes.Buffer{}})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, res.AverageMbps, WifiTcpThreshold)
	assert.NoError(t, res.Check())
}

func TestBridgingConfigValidate(t *testing.T) {
	cfg := DefaultBridgingConfig()
	assert.NoError(t, cfg.Validate())
	cfg.NWifis = 1
	assert.Error(t, cfg.Validate())
	_, err := RunBridging(cfg, RunOptions{})
	assert.Error(t, err)

	cfg = DefaultBridgingConfig()
	cfg.NStas = 1
	assert.Error(t, cfg.Validate())
	cfg = DefaultBridgingConfig()
	cfg.WriteMobility = true
	cfg.MobilityFile = ""
	assert.Error(t, cfg.Validate())
}

func TestRunBridgingUdp(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultBridgingConfig()
	cfg.PcapPrefix = filepath.Join(dir, "br")
	cfg.WriteMobility = true
	cfg.MobilityFile = filepath.Join(dir, "br.mob")

	res, err := RunBridging(cfg, RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, cfg.NWifis*cfg.NStas, res.Associated)
	assert.Equal(t, "192.168.0.6:1025", res.Destination)
	assert.Greater(t, res.TxPackets, 0)
	assert.Greater(t, res.RxBytes, 0)
	assert.LessOrEqual(t, res.RxBytes, res.TxBytes)
	assert.Len(t, res.BridgeTables, cfg.NWifis)
	assert.Greater(t, res.Forwarded+res.Flooded, 0)

	require.Len(t, res.PcapFiles, 2)
	ok, err := CheckReadableFiles(append(res.PcapFiles, cfg.MobilityFile))
	assert.True(t, ok, err)
	for _, name := range res.PcapFiles {
		assert.True(t, strings.HasPrefix(name, cfg.PcapPrefix+"-"), name)
	}
}

func TestRunBridgingClosesPcapsOnError(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultBridgingConfig()
	cfg.PcapPrefix = filepath.Join(dir, "br")
	cfg.WriteMobility = true
	cfg.MobilityFile = filepath.Join(dir, "missing", "br.mob")

	// the capture files are open when the mobility file fails to be created
	_, err := RunBridging(cfg, RunOptions{})
	require.Error(t, err)
	assert.Empty(t, openPcaps)

	cfg.WriteMobility = false
	res, err := RunBridging(cfg, RunOptions{})
	require.NoError(t, err)
	require.Len(t, res.PcapFiles, 2)
	assert.Empty(t, openPcaps)
	ok, err := CheckReadableFiles(res.PcapFiles)
	assert.True(t, ok, err)
}

func TestRunBridgingPcapFilesBelongToRun(t *testing.T) {
	dir := t.TempDir()
	leftover := filepath.Join(dir, "leftover.pcap")
	pw, err := createPcapWriter(leftover, layers.LinkTypeEthernet)
	require.NoError(t, err)
	require.Contains(t, openPcaps, pw)

	cfg := DefaultBridgingConfig()
	cfg.PcapPrefix = filepath.Join(dir, "run")
	res, err := RunBridging(cfg, RunOptions{})
	require.NoError(t, err)
	require.Len(t, res.PcapFiles, 2)
	assert.NotContains(t, res.PcapFiles, leftover)
}

func TestRunBridgingRawFrames(t *testing.T) {
	cfg := DefaultBridgingConfig()
	cfg.SendIp = false
	cfg.NWifis = 3
	cfg.PcapPrefix = ""

	res, err := RunBridging(cfg, RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, cfg.NWifis*cfg.NStas, res.Associated)
	assert.Greater(t, res.RxPackets, 0)
	assert.LessOrEqual(t, res.RxBytes, res.TxBytes)
	assert.Empty(t, res.PcapFiles)
	assert.Len(t, res.BridgeTables, 3)
}
