package wifisim

import (
	"testing"

	"github.com/iti/evt/evtm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunNeedsStopTime(t *testing.T) {
	sim := NewSimulator()
	assert.Error(t, sim.Run())
}

func TestTimerRestartAndCancel(t *testing.T) {
	sim := NewSimulator()
	fired := []float64{}
	tm := newTimer(func(evtMgr *evtm.EventManager) {
		fired = append(fired, evtMgr.CurrentSeconds())
	})

	tm.start(sim.EvtMgr, 1.0)
	// restarting supersedes the first expiration
	scheduleAt(sim.EvtMgr, 0.5, nil, nil, func(evtMgr *evtm.EventManager, context any, data any) any {
		tm.start(evtMgr, 1.0)
		return nil
	})
	assert.True(t, tm.isRunning())

	other := newTimer(func(evtMgr *evtm.EventManager) {
		fired = append(fired, -1)
	})
	other.start(sim.EvtMgr, 0.2)
	other.cancel()

	sim.Stop(3.0)
	require.NoError(t, sim.Run())
	require.Len(t, fired, 1)
	assert.InDelta(t, 1.5, fired[0], 1e-9)
	assert.False(t, tm.isRunning())
	assert.False(t, other.isRunning())
}

func TestSimulatorSchedule(t *testing.T) {
	sim := NewSimulator()
	seen := []string{}
	hdlr := func(evtMgr *evtm.EventManager, context any, data any) any {
		seen = append(seen, data.(string))
		return nil
	}
	sim.ScheduleAt(2.0, hdlr, nil, "at")
	sim.Schedule(1.0, hdlr, nil, "in")
	sim.Schedule(5.0, hdlr, nil, "late")
	sim.Stop(3.0)
	require.NoError(t, sim.Run())
	assert.Equal(t, []string{"in", "at"}, seen)
}
