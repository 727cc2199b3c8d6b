package wifisim

// error-model.go estimates the probability that a chunk of bits survives reception
// at a given signal to noise ratio

import (
	"math"
)

// ErrorRateModel returns the probability that nbits bits sent with mode m arrive
// intact at linear signal to noise ratio snr
type ErrorRateModel interface {
	ChunkSuccessRate(m *WifiMode, snr float64, nbits int, channelWidth float64) float64
}

// CodedBerErrorModel computes an uncoded bit error rate for the mode's constellation
// at Eb/N0, after applying an approximate gain for the convolutional code rate
type CodedBerErrorModel struct{}

// codingGainDb approximates the gain of the 802.11 convolutional code at each rate
func codingGainDb(codeRate float64) float64 {
	switch {
	case codeRate <= 0.5:
		return 5.0
	case codeRate <= 2.0/3:
		return 4.0
	case codeRate <= 0.75:
		return 3.5
	}
	return 3.0
}

// bitErrorRate is the bit error rate of an M-ary constellation at linear Eb/N0
func bitErrorRate(constellation int, ebno float64) float64 {
	switch constellation {
	case 2, 4:
		return 0.5 * math.Erfc(math.Sqrt(ebno))
	}
	M := float64(constellation)
	k := math.Log2(M)
	return (2.0 / k) * (1.0 - 1.0/math.Sqrt(M)) * math.Erfc(math.Sqrt(3.0*k*ebno/(2.0*(M-1.0))))
}

func (em *CodedBerErrorModel) ChunkSuccessRate(m *WifiMode, snr float64, nbits int, channelWidth float64) float64 {
	if nbits <= 0 {
		return 1.0
	}
	ebno := snr * channelWidth / m.Rate
	ebno *= dbToRatio(codingGainDb(m.CodeRate))
	ber := math.Min(bitErrorRate(m.Constellation, ebno), 0.5)
	if ber <= 0 {
		return 1.0
	}
	return math.Exp(float64(nbits) * math.Log1p(-ber))
}
