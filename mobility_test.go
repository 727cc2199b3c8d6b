package wifisim

import (
	"bytes"
	"strings"
	"testing"

	"github.com/iti/evt/evtm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGridPositionAllocator(t *testing.T) {
	grid := &GridPositionAllocator{MinX: 20, MinY: 0, DeltaX: 5, DeltaY: 5, GridWidth: 1, LayoutType: RowFirst}
	assert.Equal(t, Vector{X: 20, Y: 0}, grid.Next())
	assert.Equal(t, Vector{X: 20, Y: 5}, grid.Next())
	assert.Equal(t, Vector{X: 20, Y: 10}, grid.Next())

	cols := &GridPositionAllocator{DeltaX: 1, DeltaY: 2, GridWidth: 2, LayoutType: ColumnFirst}
	assert.Equal(t, Vector{X: 0, Y: 0}, cols.Next())
	assert.Equal(t, Vector{X: 0, Y: 2}, cols.Next())
	assert.Equal(t, Vector{X: 1, Y: 0}, cols.Next())
}

func TestListPositionAllocatorWraps(t *testing.T) {
	lpa := new(ListPositionAllocator)
	lpa.Add(Vector{X: 1})
	lpa.Add(Vector{X: 2})
	assert.Equal(t, 1.0, lpa.Next().X)
	assert.Equal(t, 2.0, lpa.Next().X)
	assert.Equal(t, 1.0, lpa.Next().X)
}

func TestRandomWalkStaysInBounds(t *testing.T) {
	sim := freshRun()
	nodes := NodeContainer{}
	nodes.Create(3)

	bounds := Rectangle{XMin: 0, XMax: 5, YMin: 0, YMax: 15}
	mobility := CreateMobilityHelper()
	mobility.SetPositionAllocator(&GridPositionAllocator{DeltaX: 5, DeltaY: 5, GridWidth: 1, LayoutType: RowFirst})
	mobility.SetMobilityModel(NewRandomWalk2dMobility(bounds, WalkModeTime, 2.0, 0, ConstantRV{Value: 3.0}))
	mobility.Install(sim.EvtMgr, nodes.Nodes...)

	var log bytes.Buffer
	EnableMobilityAscii(&log, nodes.Nodes)

	outside := 0
	var sampleAt func(evtMgr *evtm.EventManager, context any, data any) any
	sampleAt = func(evtMgr *evtm.EventManager, context any, data any) any {
		now := evtMgr.CurrentSeconds()
		for _, node := range nodes.Nodes {
			if !bounds.IsInside(node.Position(now)) {
				outside += 1
			}
		}
		scheduleIn(evtMgr, 0.05, nil, nil, sampleAt)
		return nil
	}
	scheduleIn(sim.EvtMgr, 0.0, nil, nil, sampleAt)

	sim.Stop(20.0)
	require.NoError(t, sim.Run())
	assert.Zero(t, outside)

	lines := strings.Split(strings.TrimSpace(log.String()), "\n")
	// at least one course every 2 seconds for each node
	assert.GreaterOrEqual(t, len(lines), 3*10)
	assert.True(t, strings.HasPrefix(lines[0], "now=+0ns node="))

	for _, node := range nodes.Nodes {
		v := node.Mobility.Velocity(sim.Now())
		assert.InDelta(t, 3.0, Vector{}.Distance(v), 1e-9)
	}
}

func TestConstantPositionReportsOnce(t *testing.T) {
	sim := freshRun()
	nodes := NodeContainer{}
	nodes.Create(1)
	lpa := new(ListPositionAllocator)
	lpa.Add(Vector{X: 1, Y: 1, Z: 1})
	mobility := CreateMobilityHelper()
	mobility.SetPositionAllocator(lpa)
	mobility.Install(sim.EvtMgr, nodes.Nodes...)

	var log bytes.Buffer
	EnableMobilityAscii(&log, nodes.Nodes)
	sim.Stop(1.0)
	require.NoError(t, sim.Run())

	assert.Equal(t, 1, strings.Count(log.String(), "\n"))
	assert.Contains(t, log.String(), "pos=1.000:1.000:1.000 vel=0.000:0.000:0.000")
	assert.Equal(t, Vector{X: 1, Y: 1, Z: 1}, nodes.Get(0).Position(0.5))
}
