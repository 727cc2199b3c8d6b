package wifisim

// throughput.go samples the bytes a sink has received at a fixed interval and
// reports the rate of each interval

import (
	"fmt"
	"io"
	"os"

	"github.com/iti/evt/evtm"
	"gonum.org/v1/gonum/stat"
)

// ThroughputSample is the rate measured over the interval ending at Time
type ThroughputSample struct {
	Time float64 `json:"time" yaml:"time"`
	Mbps float64 `json:"mbps" yaml:"mbps"`
}

// ThroughputMonitor polls a byte counter every Interval seconds
type ThroughputMonitor struct {
	Interval  float64
	Samples   []ThroughputSample
	Out       io.Writer
	counter   func() int
	lastTotal int
	lastTime  float64
	stopped   bool
	tick      *timer
}

// CreateThroughputMonitor is a constructor.  counter returns the bytes received so far
func CreateThroughputMonitor(counter func() int, interval float64) *ThroughputMonitor {
	tm := &ThroughputMonitor{Interval: interval, counter: counter, Out: os.Stdout}
	tm.tick = newTimer(tm.sample)
	return tm
}

// Start takes the first sample at absolute time t.  The first interval runs from
// t-Interval, so nothing received before then is counted
func (tm *ThroughputMonitor) Start(evtMgr *evtm.EventManager, t float64) {
	tm.lastTime = t - tm.Interval
	tm.lastTotal = tm.counter()
	tm.tick.start(evtMgr, t-evtMgr.CurrentSeconds())
}

// StopAt schedules the final sample at absolute time t
func (tm *ThroughputMonitor) StopAt(evtMgr *evtm.EventManager, t float64) {
	scheduleAt(evtMgr, t, tm, nil, throughputStopHdlr)
}

func throughputStopHdlr(evtMgr *evtm.EventManager, context any, data any) any {
	tm := context.(*ThroughputMonitor)
	tm.flush(evtMgr)
	return nil
}

func (tm *ThroughputMonitor) sample(evtMgr *evtm.EventManager) {
	if tm.stopped {
		return
	}
	tm.record(evtMgr.CurrentSeconds())
	tm.tick.start(evtMgr, tm.Interval)
}

// flush records what arrived since the last sample, if any time has passed, and stops sampling
func (tm *ThroughputMonitor) flush(evtMgr *evtm.EventManager) {
	if tm.stopped {
		return
	}
	tm.stopped = true
	tm.tick.cancel()
	now := evtMgr.CurrentSeconds()
	if now > tm.lastTime+1e-9 {
		tm.record(now)
	}
}

func (tm *ThroughputMonitor) record(now float64) {
	total := tm.counter()
	elapsed := now - tm.lastTime
	mbps := 0.0
	if elapsed > 0 {
		mbps = float64(total-tm.lastTotal) * 8 / (elapsed * 1e6)
	}
	tm.Samples = append(tm.Samples, ThroughputSample{Time: now, Mbps: mbps})
	fmt.Fprintf(tm.Out, "%.6gs: \t%.6gMbit/s\n", now, mbps)
	tm.lastTotal = total
	tm.lastTime = now
}

// MeanStdDev summarizes the interval rates
func (tm *ThroughputMonitor) MeanStdDev() (float64, float64) {
	if len(tm.Samples) == 0 {
		return 0, 0
	}
	rates := make([]float64, len(tm.Samples))
	for idx, s := range tm.Samples {
		rates[idx] = s.Mbps
	}
	if len(rates) == 1 {
		return rates[0], 0
	}
	return stat.MeanStdDev(rates, nil)
}

// AverageThroughputMbps is the rate totalBytes represent when spread over simTime seconds
func AverageThroughputMbps(totalBytes int, simTime float64) float64 {
	if simTime <= 0 {
		return 0
	}
	return float64(totalBytes) * 8 / (1e6 * simTime)
}

// CheckThroughput returns an error when avg is below threshold
func CheckThroughput(avg, threshold float64) error {
	if avg < threshold {
		return fmt.Errorf("obtained throughput %g Mbit/s is not within the limits (expected at least %g)", avg, threshold)
	}
	return nil
}
