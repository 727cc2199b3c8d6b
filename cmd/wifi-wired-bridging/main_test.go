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

func flags(given map[string]string) flagValue {
	return func(name string) string { return given[name] }
}

func TestConfigureFlags(t *testing.T) {
	cfg, _, err := configure(flags(map[string]string{"nWifis": "3", "nStas": "4", "SendIp": "false"}))
	require.NoError(t, err)
	expected := wifisim.DefaultBridgingConfig()
	expected.NWifis, expected.NStas, expected.SendIp = 3, 4, false
	assert.Equal(t, expected, cfg)
}

func TestConfigureBadFlags(t *testing.T) {
	dir := t.TempDir()
	bad := []map[string]string{
		{"nWifis": "two"},
		{"nWifis": "1"},
		{"nStas": "0"},
		{"SendIp": "yes please"},
		{"writeMobility": "sometimes"},
		{"config": filepath.Join(dir, "absent.yaml")},
		{"topo": filepath.Join(dir, "no", "topo.yaml")},
	}
	for _, given := range bad {
		_, _, err := configure(flags(given))
		assert.Error(t, err, "%v", given)
	}
}

func TestConfigureMobilityFile(t *testing.T) {
	dir := t.TempDir()
	cfgFile := filepath.Join(dir, "scenario.yaml")
	body := "name: mob\nbridging:\n  mobilityfile: " + filepath.Join(dir, "no", "br.mob") + "\n"
	require.NoError(t, os.WriteFile(cfgFile, []byte(body), 0644))

	// the mobility file is only checked when it is going to be written
	cfg, _, err := configure(flags(map[string]string{"config": cfgFile}))
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.NWifis)
	assert.True(t, cfg.SendIp)

	_, _, err = configure(flags(map[string]string{"config": cfgFile, "writeMobility": "true"}))
	assert.Error(t, err)
}

func TestReport(t *testing.T) {
	var out bytes.Buffer
	assert.Equal(t, 1, report(&out, nil, assert.AnError))
	assert.Empty(t, out.String())

	res := &wifisim.BridgingResult{Source: "192.168.0.3", Destination: "192.168.0.6:1025",
		TxPackets: 10, TxBytes: 5120, RxPackets: 9, RxBytes: 4608}
	assert.Equal(t, 0, report(&out, res, nil))
	assert.Equal(t, "192.168.0.3 -> 192.168.0.6:1025: sent 5120 bytes in 10 packets, received 4608 bytes in 9 packets\n",
		out.String())
}
