package wifisim

// sim.go holds the wrapper around the event manager that drives a scenario,
// plus the small scheduling helpers the rest of the package uses

import (
	"fmt"
	"math"

	"github.com/iti/evt/evtm"
	"github.com/iti/evt/vrtime"
)

// Simulator bundles the event manager with the time at which the run ends
type Simulator struct {
	EvtMgr   *evtm.EventManager
	StopTime float64
}

// NewSimulator is a constructor.  The stop time must be set with Stop before Run
func NewSimulator() *Simulator {
	sim := new(Simulator)
	sim.EvtMgr = evtm.New()
	sim.StopTime = math.Inf(1)
	return sim
}

// Now returns the current simulation time in seconds
func (sim *Simulator) Now() float64 {
	return sim.EvtMgr.CurrentSeconds()
}

// Stop sets the absolute time at which the event loop halts
func (sim *Simulator) Stop(t float64) {
	sim.StopTime = t
}

// Run executes events until the stop time.  Periodic activities (beacons,
// mobility) keep the event list non-empty, so a finite stop time is required
func (sim *Simulator) Run() error {
	if math.IsInf(sim.StopTime, 1) || sim.StopTime < 0 {
		return fmt.Errorf("simulator stop time not set")
	}
	sim.EvtMgr.Run(sim.StopTime)
	return nil
}

// Schedule runs hdlr with cxt and data delay seconds from now
func (sim *Simulator) Schedule(delay float64, hdlr evtm.EventHandlerFunction, cxt any, data any) {
	scheduleIn(sim.EvtMgr, delay, cxt, data, hdlr)
}

// ScheduleAt runs hdlr with cxt and data at absolute time t
func (sim *Simulator) ScheduleAt(t float64, hdlr evtm.EventHandlerFunction, cxt any, data any) {
	scheduleAt(sim.EvtMgr, t, cxt, data, hdlr)
}

// scheduleIn schedules hdlr to run dt seconds from now
func scheduleIn(evtMgr *evtm.EventManager, dt float64, cxt any, data any, hdlr evtm.EventHandlerFunction) {
	if dt < 0.0 {
		dt = 0.0
	}
	evtMgr.Schedule(cxt, data, hdlr, vrtime.SecondsToTime(dt))
}

// scheduleAt schedules hdlr at absolute time t, or now if t has passed
func scheduleAt(evtMgr *evtm.EventManager, t float64, cxt any, data any, hdlr evtm.EventHandlerFunction) {
	scheduleIn(evtMgr, t-evtMgr.CurrentSeconds(), cxt, data, hdlr)
}

// timer is a restartable one-shot.  Scheduled events cannot be withdrawn from the
// event list, so each (re)start bumps a generation number and expirations carrying
// an older generation are ignored
type timer struct {
	gen     int
	running bool
	expires float64
	expire  func(evtMgr *evtm.EventManager)
}

func newTimer(expire func(evtMgr *evtm.EventManager)) *timer {
	return &timer{expire: expire}
}

// start (re)arms the timer to fire delay seconds from now
func (tm *timer) start(evtMgr *evtm.EventManager, delay float64) {
	tm.gen += 1
	tm.running = true
	tm.expires = evtMgr.CurrentSeconds() + delay
	scheduleIn(evtMgr, delay, tm, tm.gen, timerFired)
}

func (tm *timer) cancel() {
	tm.gen += 1
	tm.running = false
}

func (tm *timer) isRunning() bool {
	return tm.running
}

func timerFired(evtMgr *evtm.EventManager, context any, data any) any {
	tm := context.(*timer)
	if !tm.running || data.(int) != tm.gen {
		return nil
	}
	tm.running = false
	tm.expire(evtMgr)
	return nil
}

// NumIDs counts the ids handed out so far
var NumIDs int = 0

// nxtID creates an id that is unique among the objects created in this package
func nxtID() int {
	NumIDs += 1
	return NumIDs
}
