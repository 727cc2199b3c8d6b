package wifisim

// wifi-phy.go holds the PHY of a wifi device: its transmit power and gains, its
// receiver noise and thresholds, and the reception decision for an arriving PPDU

import (
	"fmt"
	"math"

	"github.com/iti/rngstream"
)

// thermal noise density at 290 K, in dBm/Hz
const thermalNoiseDbmHz = -174.0

// WifiPhy carries the radio attributes of one wifi device
type WifiPhy struct {
	Name     string
	Role     string // "ap" or "sta", used to select ExpParameters
	Standard *WifiStandard

	TxPowerStart             float64 // dBm
	TxPowerEnd               float64 // dBm
	TxPowerLevels            int
	TxGain                   float64 // dB
	RxGain                   float64 // dB
	RxNoiseFigure            float64 // dB
	CcaMode1Threshold        float64 // dBm
	EnergyDetectionThreshold float64 // dBm

	ErrorModel ErrorRateModel

	channel *YansWifiChannel
	device  *WifiNetDevice
	rng     *rngstream.RngStream

	// counters
	RxOk      int
	RxErr     int
	RxBelowEd int
	Tx        int
}

// createWifiPhy is a constructor, the attribute values are copied from the helper settings
func createWifiPhy(name string, std *WifiStandard, attrbs PhyAttributes, em ErrorRateModel) *WifiPhy {
	phy := new(WifiPhy)
	phy.Name = name
	phy.Standard = std
	phy.applyAttributes(attrbs)
	phy.ErrorModel = em
	phy.rng = rngstream.New(name)
	return phy
}

// TxPowerDbm is the radiated power at power level 0, including the antenna gain
func (phy *WifiPhy) TxPowerDbm() float64 {
	return phy.TxPowerStart + phy.TxGain
}

// NoiseW is the receiver's thermal noise power over the channel width, scaled by the noise figure
func (phy *WifiPhy) NoiseW() float64 {
	noiseDbm := thermalNoiseDbmHz + 10.0*math.Log10(phy.Standard.ChannelWidth) + phy.RxNoiseFigure
	return dbmToW(noiseDbm)
}

// Snr is the linear signal to noise ratio of a signal arriving with power rxDbm at the antenna
func (phy *WifiPhy) Snr(rxDbm float64) float64 {
	return dbmToW(rxDbm+phy.RxGain) / phy.NoiseW()
}

// canDetect reports whether a signal at rxDbm (before receive gain) triggers reception
func (phy *WifiPhy) canDetect(rxDbm float64) bool {
	return rxDbm+phy.RxGain >= phy.EnergyDetectionThreshold
}

// mpduSuccess draws whether an MPDU of nbytes sent with mode m survives at the given snr
func (phy *WifiPhy) mpduSuccess(m *WifiMode, snr float64, nbytes int) bool {
	csr := phy.ErrorModel.ChunkSuccessRate(m, snr, 8*nbytes, phy.Standard.ChannelWidth)
	return phy.rng.RandU01() < csr
}

// PhyAttributes are the settable attributes of a PHY, as held by YansWifiPhyHelper
type PhyAttributes struct {
	TxPowerStart             float64 `json:"txpowerstart" yaml:"txpowerstart"`
	TxPowerEnd               float64 `json:"txpowerend" yaml:"txpowerend"`
	TxPowerLevels            int     `json:"txpowerlevels" yaml:"txpowerlevels"`
	TxGain                   float64 `json:"txgain" yaml:"txgain"`
	RxGain                   float64 `json:"rxgain" yaml:"rxgain"`
	RxNoiseFigure            float64 `json:"rxnoisefigure" yaml:"rxnoisefigure"`
	CcaMode1Threshold        float64 `json:"ccamode1threshold" yaml:"ccamode1threshold"`
	EnergyDetectionThreshold float64 `json:"energydetectionthreshold" yaml:"energydetectionthreshold"`
}

// DefaultPhyAttributes are the values a PHY gets when nothing is set
func DefaultPhyAttributes() PhyAttributes {
	return PhyAttributes{TxPowerStart: 16.0206, TxPowerEnd: 16.0206, TxPowerLevels: 1,
		TxGain: 0, RxGain: 0, RxNoiseFigure: 7, CcaMode1Threshold: -62, EnergyDetectionThreshold: -96}
}

// set assigns the attribute named name from its string form
func (pa *PhyAttributes) set(name string, vs valueStruct) error {
	switch name {
	case "TxPowerStart":
		pa.TxPowerStart = vs.floatValue
	case "TxPowerEnd":
		pa.TxPowerEnd = vs.floatValue
	case "TxPowerLevels":
		if vs.intValue < 1 {
			return fmt.Errorf("TxPowerLevels must be at least 1")
		}
		pa.TxPowerLevels = vs.intValue
	case "TxGain":
		pa.TxGain = vs.floatValue
	case "RxGain":
		pa.RxGain = vs.floatValue
	case "RxNoiseFigure":
		pa.RxNoiseFigure = vs.floatValue
	case "CcaMode1Threshold":
		pa.CcaMode1Threshold = vs.floatValue
	case "EnergyDetectionThreshold":
		pa.EnergyDetectionThreshold = vs.floatValue
	default:
		return fmt.Errorf("PHY attribute %q not recognized", name)
	}
	return nil
}

func (phy *WifiPhy) attributes() PhyAttributes {
	return PhyAttributes{TxPowerStart: phy.TxPowerStart, TxPowerEnd: phy.TxPowerEnd,
		TxPowerLevels: phy.TxPowerLevels, TxGain: phy.TxGain, RxGain: phy.RxGain,
		RxNoiseFigure: phy.RxNoiseFigure, CcaMode1Threshold: phy.CcaMode1Threshold,
		EnergyDetectionThreshold: phy.EnergyDetectionThreshold}
}

func (phy *WifiPhy) paramObjName() string {
	return phy.Name
}

func (phy *WifiPhy) matchParam(attrbName, attrbValue string) bool {
	switch attrbName {
	case "name":
		return phy.Name == attrbValue
	case "role":
		return phy.Role == attrbValue
	case "standard":
		return phy.Standard.Name == attrbValue
	}
	return false
}

func (phy *WifiPhy) setParam(param string, value valueStruct) error {
	attrbs := phy.attributes()
	if err := attrbs.set(param, value); err != nil {
		return err
	}
	phy.applyAttributes(attrbs)
	return nil
}

func (phy *WifiPhy) applyAttributes(attrbs PhyAttributes) {
	phy.TxPowerStart = attrbs.TxPowerStart
	phy.TxPowerEnd = attrbs.TxPowerEnd
	phy.TxPowerLevels = attrbs.TxPowerLevels
	phy.TxGain = attrbs.TxGain
	phy.RxGain = attrbs.RxGain
	phy.RxNoiseFigure = attrbs.RxNoiseFigure
	phy.CcaMode1Threshold = attrbs.CcaMode1Threshold
	phy.EnergyDetectionThreshold = attrbs.EnergyDetectionThreshold
}
