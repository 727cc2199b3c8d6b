package wifisim

// propagation.go holds the models of signal delay and attenuation between two positions

import (
	"math"
)

// SpeedOfLight in m/s
const SpeedOfLight = 299792458.0

// PropagationDelayModel computes the time a signal takes between two positions
type PropagationDelayModel interface {
	Delay(a, b Vector) float64
}

// ConstantSpeedPropagationDelay is distance over a constant speed
type ConstantSpeedPropagationDelay struct {
	Speed float64
}

func NewConstantSpeedPropagationDelay() *ConstantSpeedPropagationDelay {
	return &ConstantSpeedPropagationDelay{Speed: SpeedOfLight}
}

func (cs *ConstantSpeedPropagationDelay) Delay(a, b Vector) float64 {
	return a.Distance(b) / cs.Speed
}

// PropagationLossModel computes a received power (dBm) from a transmit power (dBm)
type PropagationLossModel interface {
	CalcRxPower(txPowerDbm float64, a, b Vector) float64
}

// FriisPropagationLoss is free-space loss at Frequency (Hz).  SystemLoss is a
// dimensionless factor >= 1; MinLoss (dB) floors the loss at short distances
type FriisPropagationLoss struct {
	Frequency  float64
	SystemLoss float64
	MinLoss    float64
}

func NewFriisPropagationLoss(frequency float64) *FriisPropagationLoss {
	return &FriisPropagationLoss{Frequency: frequency, SystemLoss: 1.0, MinLoss: 0.0}
}

func (fl *FriisPropagationLoss) CalcRxPower(txPowerDbm float64, a, b Vector) float64 {
	d := a.Distance(b)
	if d <= 0 {
		return txPowerDbm - fl.MinLoss
	}
	lambda := SpeedOfLight / fl.Frequency
	numerator := lambda * lambda
	denominator := 16 * math.Pi * math.Pi * d * d * fl.SystemLoss
	lossDb := -10 * math.Log10(numerator/denominator)
	return txPowerDbm - math.Max(lossDb, fl.MinLoss)
}

// LogDistancePropagationLoss is ReferenceLoss at ReferenceDistance, growing as
// 10*Exponent*log10(d/ReferenceDistance) beyond it
type LogDistancePropagationLoss struct {
	Exponent          float64
	ReferenceDistance float64
	ReferenceLoss     float64
}

// NewLogDistancePropagationLoss has the defaults used by the default channel: exponent 3,
// and the free-space loss at 1 m and 5.15 GHz as reference
func NewLogDistancePropagationLoss() *LogDistancePropagationLoss {
	return &LogDistancePropagationLoss{Exponent: 3.0, ReferenceDistance: 1.0, ReferenceLoss: 46.6777}
}

func (ld *LogDistancePropagationLoss) CalcRxPower(txPowerDbm float64, a, b Vector) float64 {
	d := a.Distance(b)
	if d <= ld.ReferenceDistance {
		return txPowerDbm - ld.ReferenceLoss
	}
	pathLossDb := 10 * ld.Exponent * math.Log10(d/ld.ReferenceDistance)
	return txPowerDbm - ld.ReferenceLoss - pathLossDb
}

// lossChain applies a sequence of loss models, each to the output of the one before
type lossChain []PropagationLossModel

func (lc lossChain) CalcRxPower(txPowerDbm float64, a, b Vector) float64 {
	rx := txPowerDbm
	for _, model := range lc {
		rx = model.CalcRxPower(rx, a, b)
	}
	return rx
}

// dBm <-> watts
func dbmToW(dbm float64) float64 {
	return math.Pow(10.0, dbm/10.0) / 1000.0
}

func wToDbm(w float64) float64 {
	return 10.0*math.Log10(w) + 30.0
}

func dbToRatio(db float64) float64 {
	return math.Pow(10.0, db/10.0)
}

func ratioToDb(ratio float64) float64 {
	return 10.0 * math.Log10(ratio)
}
