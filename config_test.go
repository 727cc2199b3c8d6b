package wifisim

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleScenarioCfg(t *testing.T) *ScenarioCfg {
	sc := CreateScenarioCfg("bulk-tcp")
	sc.Defaults["TcpSocket::DelAckCount"] = "1"
	wt := DefaultWifiTcpConfig()
	wt.TcpVariant = "TcpWestwood"
	sc.WifiTcp = &wt
	require.NoError(t, sc.AddParameter(ExpParameter{ParamObj: "Phy",
		Attributes: []AttrbStruct{{AttrbName: "*"}}, Param: "TxPowerStart", Value: "16"}))
	return sc
}

func TestScenarioCfgRoundTrip(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"scenario.yaml", "scenario.json"} {
		sc := sampleScenarioCfg(t)
		filename := filepath.Join(dir, name)
		require.NoError(t, sc.WriteToFile(filename))

		back, err := ReadScenarioCfg(filename, UseYAML(filename), nil)
		require.NoError(t, err)
		assert.Equal(t, sc, back, name)

		opts := back.Options()
		assert.Equal(t, "1", opts.Defaults["TcpSocket::DelAckCount"])
		assert.Len(t, opts.Parameters, 1)
	}
}

func TestScenarioCfgFromBytes(t *testing.T) {
	dict := []byte(`
name: cells
bridging:
  nwifis: 3
  nstas: 4
`)
	sc, err := ReadScenarioCfg("inline", true, dict)
	require.NoError(t, err)
	require.NotNil(t, sc.Bridging)
	assert.Equal(t, 3, sc.Bridging.NWifis)
	assert.Equal(t, 4, sc.Bridging.NStas)
	assert.NotNil(t, sc.Defaults)
	assert.Nil(t, sc.WifiTcp)

	// what the file leaves out keeps its default
	dflt := DefaultBridgingConfig()
	assert.True(t, sc.Bridging.SendIp)
	assert.Equal(t, dflt.PcapPrefix, sc.Bridging.PcapPrefix)
	assert.Equal(t, dflt.MobilityFile, sc.Bridging.MobilityFile)

	dict = []byte(`bridging:
  sendip: false
`)
	sc, err = ReadScenarioCfg("inline", true, dict)
	require.NoError(t, err)
	assert.False(t, sc.Bridging.SendIp)
	assert.Equal(t, 2, sc.Bridging.NWifis)
}

func TestScenarioCfgPartialWifiTcp(t *testing.T) {
	expected := DefaultWifiTcpConfig()
	expected.SimulationTime = 3

	sc, err := ReadScenarioCfg("inline", true, []byte("wifitcp:\n  simulationtime: 3\n"))
	require.NoError(t, err)
	require.NotNil(t, sc.WifiTcp)
	assert.Equal(t, expected, *sc.WifiTcp)
	assert.NoError(t, sc.WifiTcp.Validate())
	assert.Nil(t, sc.Bridging)

	sc, err = ReadScenarioCfg("inline.json", false, []byte(`{"name": "short", "wifitcp": {"simulationtime": 3}}`))
	require.NoError(t, err)
	require.NotNil(t, sc.WifiTcp)
	assert.Equal(t, expected, *sc.WifiTcp)
	assert.Nil(t, sc.Bridging)

	// a file with no scenario section leaves both unset
	sc, err = ReadScenarioCfg("inline", true, []byte("name: bare\n"))
	require.NoError(t, err)
	assert.Nil(t, sc.WifiTcp)
	assert.Nil(t, sc.Bridging)
}

func TestScenarioCfgErrors(t *testing.T) {
	sc := CreateScenarioCfg("bad")
	assert.Error(t, sc.AddParameter(ExpParameter{ParamObj: "Router", Param: "Speed"}))
	assert.Error(t, sc.WriteToFile(filepath.Join(t.TempDir(), "scenario.txt")))

	_, err := ReadScenarioCfg(filepath.Join(t.TempDir(), "missing.yaml"), true, nil)
	assert.Error(t, err)

	_, err = ReadScenarioCfg("inline", true, []byte("parameters:\n  - paramobj: Phy\n    param: Volume\n"))
	assert.Error(t, err)
}

func TestApplyDefaults(t *testing.T) {
	ResetDefaults()
	defer ResetDefaults()
	require.NoError(t, applyDefaults(map[string]string{
		"TcpSocket::SegmentSize": "1000",
		"CsmaChannel::DataRate":  "10Mbps",
	}))
	assert.Equal(t, 1000, attrInt("TcpSocket::SegmentSize"))
	assert.Equal(t, DataRate(10e6), attrRate("CsmaChannel::DataRate"))

	err := applyDefaults(map[string]string{"Nothing::Here": "1", "TcpSocket::SegmentSize": "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Nothing::Here")
}

func TestCheckFiles(t *testing.T) {
	dir := t.TempDir()
	present := filepath.Join(dir, "present.yaml")
	require.NoError(t, os.WriteFile(present, []byte("name: x\n"), 0644))

	ok, err := CheckReadableFiles([]string{present, ""})
	assert.True(t, ok)
	assert.NoError(t, err)

	ok, err = CheckReadableFiles([]string{filepath.Join(dir, "absent.yaml")})
	assert.False(t, ok)
	assert.Error(t, err)

	ok, _ = CheckOutputFiles([]string{filepath.Join(dir, "new.yaml")})
	assert.True(t, ok)
	ok, _ = CheckOutputFiles([]string{filepath.Join(dir, "nodir", "new.yaml")})
	assert.False(t, ok)

	ok, _ = CheckDirectories([]string{dir})
	assert.True(t, ok)
	ok, _ = CheckDirectories([]string{present})
	assert.False(t, ok)
}

func TestReportErrs(t *testing.T) {
	assert.NoError(t, ReportErrs([]error{nil, nil}))
	err := ReportErrs([]error{nil, os.ErrNotExist, os.ErrExist})
	require.Error(t, err)
	assert.Equal(t, os.ErrNotExist.Error()+","+os.ErrExist.Error(), err.Error())
}
