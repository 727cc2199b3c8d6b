package wifisim

// tcp-congestion.go holds the congestion control variants a TCP socket can use.
// Every variant grows the window the same way (slow start, then one segment per
// window of acknowledged data); they differ in how they recover from loss and how
// they choose the slow start threshold

import (
	"fmt"
	"math"
	"strings"
)

// CongestionState is the part of a socket's state congestion control reads and writes
type CongestionState struct {
	Cwnd        int // bytes
	SsThresh    int // bytes
	SegmentSize int
	cwndCnt     int // segments acknowledged since the last increase in congestion avoidance
}

// InSlowStart reports whether the window is below the slow start threshold
func (cs *CongestionState) InSlowStart() bool {
	return cs.Cwnd < cs.SsThresh
}

// recovery styles after three duplicate acknowledgements
const (
	noFastRecovery      = iota // back to slow start (Tahoe)
	classicRecovery            // recovery ends at the first new ack (Reno)
	partialAckRecovery         // partial acks retransmit and stay in recovery (NewReno)
)

// CongestionOps is satisfied by each congestion control variant
type CongestionOps interface {
	Name() string
	// SsThresh is the threshold to use after a loss with bytesInFlight outstanding
	SsThresh(cs *CongestionState, bytesInFlight int) int
	// IncreaseWindow grows the window for segmentsAcked newly acknowledged segments
	IncreaseWindow(cs *CongestionState, segmentsAcked int)
	// PktsAcked is told of every ack that advances the window, with the RTT sample if there is one
	PktsAcked(cs *CongestionState, ackedBytes int, rtt float64, now float64)
	recoveryStyle() int
}

// slowStart grows the window by a segment per acknowledged segment, up to the threshold.
// It returns the segments not used
func slowStart(cs *CongestionState, segmentsAcked int) int {
	if segmentsAcked <= 0 {
		return 0
	}
	room := int(math.Ceil(float64(cs.SsThresh-cs.Cwnd) / float64(cs.SegmentSize)))
	used := min(segmentsAcked, max(room, 1))
	cs.Cwnd += used * cs.SegmentSize
	return segmentsAcked - used
}

// congestionAvoidance grows the window by one segment per window's worth of acknowledged segments
func congestionAvoidance(cs *CongestionState, segmentsAcked int) {
	w := cs.Cwnd / cs.SegmentSize
	if w < 1 {
		w = 1
	}
	cs.cwndCnt += segmentsAcked
	if cs.cwndCnt >= w {
		delta := cs.cwndCnt / w
		cs.cwndCnt -= delta * w
		cs.Cwnd += delta * cs.SegmentSize
	}
}

func renoIncrease(cs *CongestionState, segmentsAcked int) {
	if cs.InSlowStart() {
		segmentsAcked = slowStart(cs, segmentsAcked)
	}
	if !cs.InSlowStart() && segmentsAcked > 0 {
		congestionAvoidance(cs, segmentsAcked)
	}
}

func halfFlight(cs *CongestionState, bytesInFlight int) int {
	return max(2*cs.SegmentSize, bytesInFlight/2)
}

// TcpNewReno stays in fast recovery across partial acknowledgements
type TcpNewReno struct{}

func (nr *TcpNewReno) Name() string { return "TcpNewReno" }
func (nr *TcpNewReno) SsThresh(cs *CongestionState, bytesInFlight int) int {
	return halfFlight(cs, bytesInFlight)
}
func (nr *TcpNewReno) IncreaseWindow(cs *CongestionState, segmentsAcked int) {
	renoIncrease(cs, segmentsAcked)
}
func (nr *TcpNewReno) PktsAcked(cs *CongestionState, ackedBytes int, rtt float64, now float64) {
}
func (nr *TcpNewReno) recoveryStyle() int { return partialAckRecovery }

// TcpReno leaves fast recovery at the first acknowledgement of new data
type TcpReno struct {
	TcpNewReno
}

func (r *TcpReno) Name() string       { return "TcpReno" }
func (r *TcpReno) recoveryStyle() int { return classicRecovery }

// TcpTahoe has no fast recovery: after a fast retransmit it slow starts from one segment
type TcpTahoe struct {
	TcpNewReno
}

func (t *TcpTahoe) Name() string       { return "TcpTahoe" }
func (t *TcpTahoe) recoveryStyle() int { return noFastRecovery }

// Westwood filter gain
const westwoodAlpha = 0.9

// TcpWestwood estimates the bandwidth from the rate of returning acknowledgements and
// sets the slow start threshold after a loss to the estimate times the minimum RTT.
// The plain variant samples on every ack; the Plus variant once per RTT
type TcpWestwood struct {
	Plus bool

	currentBW    float64 // bytes per second
	lastSampleBW float64
	lastBW       float64
	minRtt       float64
	ackedCount   int
	lastAckTime  float64
	started      bool
}

func (ww *TcpWestwood) Name() string {
	if ww.Plus {
		return "TcpWestwoodPlus"
	}
	return "TcpWestwood"
}

func (ww *TcpWestwood) recoveryStyle() int { return partialAckRecovery }

func (ww *TcpWestwood) IncreaseWindow(cs *CongestionState, segmentsAcked int) {
	renoIncrease(cs, segmentsAcked)
}

func (ww *TcpWestwood) PktsAcked(cs *CongestionState, ackedBytes int, rtt float64, now float64) {
	if rtt > 0 && (ww.minRtt == 0 || rtt < ww.minRtt) {
		ww.minRtt = rtt
	}
	if !ww.started {
		ww.started = true
		ww.lastAckTime = now
		return
	}
	ww.ackedCount += ackedBytes

	elapsed := now - ww.lastAckTime
	if elapsed <= 0 {
		return
	}
	if ww.Plus && (rtt <= 0 || elapsed < rtt) {
		return
	}
	sample := float64(ww.ackedCount) / elapsed
	ww.ackedCount = 0
	ww.lastAckTime = now

	// Tustin approximation of a low pass filter
	ww.currentBW = westwoodAlpha*ww.lastBW + (1-westwoodAlpha)*(sample+ww.lastSampleBW)/2
	ww.lastSampleBW = sample
	ww.lastBW = ww.currentBW
}

func (ww *TcpWestwood) SsThresh(cs *CongestionState, bytesInFlight int) int {
	if ww.currentBW <= 0 || ww.minRtt <= 0 {
		return halfFlight(cs, bytesInFlight)
	}
	return max(2*cs.SegmentSize, int(ww.currentBW*ww.minRtt))
}

// BandwidthEstimate is the filtered estimate, in bits per second
func (ww *TcpWestwood) BandwidthEstimate() float64 {
	return 8 * ww.currentBW
}

// TcpVariants lists the names CreateCongestionOps accepts
var TcpVariants = []string{"TcpTahoe", "TcpReno", "TcpNewReno", "TcpWestwood", "TcpWestwoodPlus"}

// CreateCongestionOps returns a fresh instance of the named variant.  The "ns3::" prefix is optional
func CreateCongestionOps(name string) (CongestionOps, error) {
	switch strings.TrimPrefix(strings.TrimSpace(name), "ns3::") {
	case "TcpTahoe":
		return new(TcpTahoe), nil
	case "TcpReno":
		return new(TcpReno), nil
	case "TcpNewReno":
		return new(TcpNewReno), nil
	case "TcpWestwood":
		return &TcpWestwood{Plus: false}, nil
	case "TcpWestwoodPlus":
		return &TcpWestwood{Plus: true}, nil
	}
	return nil, fmt.Errorf("TCP variant %q not recognized, expected one of %s", name, strings.Join(TcpVariants, ", "))
}
