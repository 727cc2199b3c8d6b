package wifisim

// wifi-mode.go describes the 802.11 standards and transmission modes the PHY supports,
// and computes frame airtimes from them

import (
	"fmt"
	"math"
	"strings"
)

// WifiStandard holds the timing parameters of a PHY standard
type WifiStandard struct {
	Name         string
	Frequency    float64 // carrier, Hz
	ChannelWidth float64 // Hz
	Slot         float64
	Sifs         float64
	CwMin        int
	CwMax        int
	HT           bool
	// mode used for beacons and control responses when none is configured
	DefaultControlMode string
	DefaultDataMode    string
}

// Difs is SIFS plus two slots
func (std *WifiStandard) Difs() float64 {
	return std.Sifs + 2*std.Slot
}

var (
	Standard80211a = &WifiStandard{Name: "802.11a", Frequency: 5.18e9, ChannelWidth: 20e6,
		Slot: 9e-6, Sifs: 16e-6, CwMin: 15, CwMax: 1023, HT: false,
		DefaultControlMode: "OfdmRate6Mbps", DefaultDataMode: "OfdmRate6Mbps"}
	Standard80211n5GHz = &WifiStandard{Name: "802.11n-5GHz", Frequency: 5.18e9, ChannelWidth: 20e6,
		Slot: 9e-6, Sifs: 16e-6, CwMin: 15, CwMax: 1023, HT: true,
		DefaultControlMode: "HtMcs0", DefaultDataMode: "HtMcs0"}
)

// LookupWifiStandard accepts "80211a", "802.11a", "80211n_5GHZ", "802.11n-5GHz"
func LookupWifiStandard(name string) (*WifiStandard, error) {
	key := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(name)), "wifi_phy_standard_")
	key = strings.NewReplacer(".", "", "-", "", "_", "").Replace(key)
	switch key {
	case "80211a":
		return Standard80211a, nil
	case "80211n5ghz", "80211n":
		return Standard80211n5GHz, nil
	}
	return nil, fmt.Errorf("unknown wifi standard %q", name)
}

// WifiMode is one modulation and coding choice
type WifiMode struct {
	Name          string
	Rate          float64 // data rate, bps
	Constellation int     // 2 (BPSK), 4 (QPSK), 16, 64
	CodeRate      float64
	HT            bool
	Mcs           int
}

// symbol duration, 800 ns guard interval
const ofdmSymbol = 4e-6

// preamble durations
const (
	legacyPreamble = 16e-6 + 4e-6                      // L-STF, L-LTF, L-SIG
	htMfPreamble   = 16e-6 + 4e-6 + 8e-6 + 4e-6 + 4e-6 // plus HT-SIG, HT-STF, one HT-LTF
)

var wifiModes = map[string]*WifiMode{}

func addMode(m *WifiMode) {
	wifiModes[m.Name] = m
}

func init() {
	addMode(&WifiMode{Name: "OfdmRate6Mbps", Rate: 6e6, Constellation: 2, CodeRate: 1.0 / 2})
	addMode(&WifiMode{Name: "OfdmRate9Mbps", Rate: 9e6, Constellation: 2, CodeRate: 3.0 / 4})
	addMode(&WifiMode{Name: "OfdmRate12Mbps", Rate: 12e6, Constellation: 4, CodeRate: 1.0 / 2})
	addMode(&WifiMode{Name: "OfdmRate18Mbps", Rate: 18e6, Constellation: 4, CodeRate: 3.0 / 4})
	addMode(&WifiMode{Name: "OfdmRate24Mbps", Rate: 24e6, Constellation: 16, CodeRate: 1.0 / 2})
	addMode(&WifiMode{Name: "OfdmRate36Mbps", Rate: 36e6, Constellation: 16, CodeRate: 3.0 / 4})
	addMode(&WifiMode{Name: "OfdmRate48Mbps", Rate: 48e6, Constellation: 64, CodeRate: 2.0 / 3})
	addMode(&WifiMode{Name: "OfdmRate54Mbps", Rate: 54e6, Constellation: 64, CodeRate: 3.0 / 4})

	htRates := []float64{6.5e6, 13e6, 19.5e6, 26e6, 39e6, 52e6, 58.5e6, 65e6}
	htConst := []int{2, 4, 4, 16, 16, 64, 64, 64}
	htCode := []float64{1.0 / 2, 1.0 / 2, 3.0 / 4, 1.0 / 2, 3.0 / 4, 2.0 / 3, 3.0 / 4, 5.0 / 6}
	for mcs := 0; mcs < 8; mcs++ {
		addMode(&WifiMode{Name: fmt.Sprintf("HtMcs%d", mcs), Rate: htRates[mcs],
			Constellation: htConst[mcs], CodeRate: htCode[mcs], HT: true, Mcs: mcs})
	}
}

// LookupWifiMode returns the mode with the given name, e.g. "HtMcs7" or "OfdmRate54Mbps"
func LookupWifiMode(name string) (*WifiMode, error) {
	m, present := wifiModes[strings.TrimSpace(name)]
	if !present {
		return nil, fmt.Errorf("unknown wifi mode %q", name)
	}
	return m, nil
}

// ModesFor lists the modes usable with the standard, slowest first
func ModesFor(std *WifiStandard) []*WifiMode {
	modes := []*WifiMode{}
	for _, m := range wifiModes {
		if m.HT && !std.HT {
			continue
		}
		if !m.HT && std.HT {
			continue
		}
		modes = append(modes, m)
	}
	// insertion sort on rate, the list is short
	for i := 1; i < len(modes); i++ {
		for j := i; j > 0 && modes[j].Rate < modes[j-1].Rate; j-- {
			modes[j], modes[j-1] = modes[j-1], modes[j]
		}
	}
	return modes
}

// bitsPerSymbol is the number of data bits carried by one OFDM symbol
func (m *WifiMode) bitsPerSymbol() float64 {
	return math.Round(m.Rate * ofdmSymbol)
}

// PpduDuration is the airtime of a PPDU carrying psduBytes bytes:
// preamble, then SERVICE (16) + data + tail (6) bits in whole symbols
func PpduDuration(psduBytes int, m *WifiMode) float64 {
	preamble := legacyPreamble
	if m.HT {
		preamble = htMfPreamble
	}
	nbits := float64(16 + 8*psduBytes + 6)
	nsym := math.Ceil(nbits / m.bitsPerSymbol())
	return preamble + nsym*ofdmSymbol
}

// control frame sizes, bytes including FCS
const (
	ackFrameLen      = 14
	blockAckFrameLen = 32
	beaconFrameLen   = 80
	assocFrameLen    = 40
)

// MAC framing sizes, bytes
const (
	wifiDataHdrLen   = 26 // QoS data header
	wifiFcsLen       = 4
	ampduDelimiter   = 4
	maxMpdusPerAmpdu = 64
)
