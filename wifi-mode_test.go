package wifisim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookupWifiStandard(t *testing.T) {
	for _, name := range []string{"80211a", "802.11a", "WIFI_PHY_STANDARD_80211a"} {
		std, err := LookupWifiStandard(name)
		require.NoError(t, err, name)
		assert.Same(t, Standard80211a, std)
	}
	for _, name := range []string{"80211n_5GHZ", "802.11n-5GHz"} {
		std, err := LookupWifiStandard(name)
		require.NoError(t, err, name)
		assert.Same(t, Standard80211n5GHz, std)
	}
	_, err := LookupWifiStandard("802.11ax")
	assert.Error(t, err)
	assert.InDelta(t, 34e-6, Standard80211n5GHz.Difs(), 1e-12)
}

func TestModesFor(t *testing.T) {
	ht := ModesFor(Standard80211n5GHz)
	require.Len(t, ht, 8)
	assert.Equal(t, "HtMcs0", ht[0].Name)
	assert.Equal(t, "HtMcs7", ht[7].Name)

	legacy := ModesFor(Standard80211a)
	require.Len(t, legacy, 8)
	assert.Equal(t, "OfdmRate6Mbps", legacy[0].Name)
	assert.Equal(t, "OfdmRate54Mbps", legacy[7].Name)

	_, err := LookupWifiMode("HtMcs8")
	assert.Error(t, err)
}

func TestPpduDuration(t *testing.T) {
	mcs7, err := LookupWifiMode("HtMcs7")
	require.NoError(t, err)
	// 12022 bits at 260 bits per symbol: 47 symbols after the HT preamble
	assert.InDelta(t, 36e-6+47*4e-6, PpduDuration(1500, mcs7), 1e-12)

	ofdm6, err := LookupWifiMode("OfdmRate6Mbps")
	require.NoError(t, err)
	// an ACK: 134 bits at 24 bits per symbol
	assert.InDelta(t, 20e-6+6*4e-6, PpduDuration(ackFrameLen, ofdm6), 1e-12)

	assert.Less(t, PpduDuration(1500, mcs7), PpduDuration(1500, ofdm6))
}

func TestChunkSuccessRate(t *testing.T) {
	em := &CodedBerErrorModel{}
	mcs7, _ := LookupWifiMode("HtMcs7")
	mcs0, _ := LookupWifiMode("HtMcs0")
	bits := 1500 * 8

	assert.Equal(t, 1.0, em.ChunkSuccessRate(mcs7, 0.001, 0, 20e6))
	assert.InDelta(t, 1.0, em.ChunkSuccessRate(mcs7, dbToRatio(40), bits, 20e6), 1e-9)
	assert.Less(t, em.ChunkSuccessRate(mcs7, dbToRatio(5), bits, 20e6), 0.01)

	// the robust mode survives where the fast one does not
	snr := dbToRatio(8)
	assert.Greater(t, em.ChunkSuccessRate(mcs0, snr, bits, 20e6), em.ChunkSuccessRate(mcs7, snr, bits, 20e6))

	// longer chunks are less likely to survive
	snr = dbToRatio(22)
	assert.GreaterOrEqual(t, em.ChunkSuccessRate(mcs7, snr, 800, 20e6), em.ChunkSuccessRate(mcs7, snr, bits, 20e6))
}

func TestCreateStationManager(t *testing.T) {
	mgr, err := createStationManager("ns3::ConstantRateWifiManager",
		map[string]string{"DataMode": "HtMcs7", "ControlMode": "HtMcs0"}, Standard80211n5GHz)
	require.NoError(t, err)
	assert.Equal(t, "HtMcs7", mgr.DataMode(BroadcastMac).Name)
	assert.Equal(t, "HtMcs0", mgr.ControlMode().Name)

	_, err = createStationManager("MinstrelWifiManager", nil, Standard80211a)
	assert.Error(t, err)
	_, err = createStationManager("ConstantRateWifiManager", map[string]string{"Speed": "1"}, Standard80211a)
	assert.Error(t, err)
	_, err = createStationManager("ArfWifiManager", map[string]string{"DataMode": "HtMcs7"}, Standard80211a)
	assert.Error(t, err)
}

func TestArfSteps(t *testing.T) {
	mgr, err := createStationManager("ArfWifiManager", nil, Standard80211a)
	require.NoError(t, err)
	peer := allocateMac()
	assert.Equal(t, "OfdmRate6Mbps", mgr.DataMode(peer).Name)

	for idx := 0; idx < arfSuccessThreshold; idx++ {
		mgr.ReportDataOk(peer)
	}
	assert.Equal(t, "OfdmRate9Mbps", mgr.DataMode(peer).Name)

	// the first failure after stepping up steps back
	mgr.ReportDataFailed(peer)
	assert.Equal(t, "OfdmRate6Mbps", mgr.DataMode(peer).Name)

	for idx := 0; idx < arfSuccessThreshold; idx++ {
		mgr.ReportDataOk(peer)
	}
	mgr.ReportDataOk(peer)
	assert.Equal(t, "OfdmRate9Mbps", mgr.DataMode(peer).Name)

	// out of recovery it takes consecutive failures
	mgr.ReportDataFailed(peer)
	assert.Equal(t, "OfdmRate9Mbps", mgr.DataMode(peer).Name)
	mgr.ReportDataFailed(peer)
	assert.Equal(t, "OfdmRate6Mbps", mgr.DataMode(peer).Name)

	// stations are tracked separately
	other := allocateMac()
	assert.Equal(t, "OfdmRate6Mbps", mgr.DataMode(other).Name)
}
