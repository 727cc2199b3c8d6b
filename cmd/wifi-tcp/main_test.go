package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/sneaker-rohit/wifisim"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flags answers flag lookups from a map, as the parsed command line would
func flags(given map[string]string) flagValue {
	return func(name string) string { return given[name] }
}

func TestConfigureDefaults(t *testing.T) {
	cfg, opts, err := configure(flags(nil))
	require.NoError(t, err)
	assert.Equal(t, wifisim.DefaultWifiTcpConfig(), cfg)
	assert.Empty(t, opts.TraceFile)
}

func TestConfigureFlags(t *testing.T) {
	dir := t.TempDir()
	cfg, opts, err := configure(flags(map[string]string{
		"payloadSize":    "1000",
		"tcpVariant":     "TcpWestwoodPlus",
		"simulationTime": "2.5",
		"pcap":           "true",
		"trace":          filepath.Join(dir, "trace.yaml"),
	}))
	require.NoError(t, err)
	assert.Equal(t, 1000, cfg.PayloadSize)
	assert.Equal(t, "TcpWestwoodPlus", cfg.TcpVariant)
	assert.Equal(t, 2.5, cfg.SimulationTime)
	assert.True(t, cfg.Pcap)
	assert.Equal(t, "100Mbps", cfg.DataRate)
	assert.Equal(t, filepath.Join(dir, "trace.yaml"), opts.TraceFile)
}

func TestConfigureBadFlags(t *testing.T) {
	bad := []map[string]string{
		{"payloadSize": "large"},
		{"payloadSize": "0"},
		{"simulationTime": "ten"},
		{"simulationTime": "-1"},
		{"pcap": "maybe"},
		{"tcpVariant": "TcpCubic"},
		{"dataRate": "fast"},
		{"v": "chatty"},
		{"config": filepath.Join(t.TempDir(), "absent.yaml")},
		{"trace": filepath.Join(t.TempDir(), "no", "trace.yaml")},
	}
	for _, given := range bad {
		_, _, err := configure(flags(given))
		assert.Error(t, err, "%v", given)
	}
}

func TestConfigureScenarioFile(t *testing.T) {
	dir := t.TempDir()
	cfgFile := filepath.Join(dir, "scenario.yaml")
	body := "name: short\ndefaults:\n  TcpSocket::DelAckCount: \"1\"\nwifitcp:\n  simulationtime: 3\n"
	require.NoError(t, os.WriteFile(cfgFile, []byte(body), 0644))

	cfg, opts, err := configure(flags(map[string]string{"config": cfgFile, "payloadSize": "1200"}))
	require.NoError(t, err)

	// fields the file leaves out keep their defaults, flags win over the file
	expected := wifisim.DefaultWifiTcpConfig()
	expected.SimulationTime = 3
	expected.PayloadSize = 1200
	assert.Equal(t, expected, cfg)
	assert.Equal(t, map[string]string{"TcpSocket::DelAckCount": "1"}, opts.Defaults)
}

func TestReport(t *testing.T) {
	var out bytes.Buffer
	assert.Equal(t, 1, report(&out, nil, assert.AnError))
	assert.Empty(t, out.String())

	assert.Equal(t, 1, report(&out, &wifisim.WifiTcpResult{AverageMbps: 10}, nil))
	assert.Empty(t, out.String())

	assert.Equal(t, 0, report(&out, &wifisim.WifiTcpResult{AverageMbps: 60}, nil))
	assert.Equal(t, "\nAverage throughput: 60 Mbit/s\n", out.String())
}
