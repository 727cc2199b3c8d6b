package wifisim

// mobility.go holds the position allocators and mobility models that place nodes
// and move them, and the ascii trace of their course changes

import (
	"fmt"
	"io"
	"math"

	"github.com/iti/evt/evtm"
	"github.com/iti/rngstream"
)

// Vector is a position or velocity in meters (per second)
type Vector struct {
	X, Y, Z float64
}

func (v Vector) Add(w Vector) Vector       { return Vector{v.X + w.X, v.Y + w.Y, v.Z + w.Z} }
func (v Vector) Scale(s float64) Vector    { return Vector{v.X * s, v.Y * s, v.Z * s} }
func (v Vector) Distance(w Vector) float64 { return math.Sqrt(sq(v.X-w.X) + sq(v.Y-w.Y) + sq(v.Z-w.Z)) }

func sq(x float64) float64 { return x * x }

// Rectangle bounds two-dimensional motion
type Rectangle struct {
	XMin, XMax, YMin, YMax float64
}

// IsInside includes the boundary
func (r Rectangle) IsInside(v Vector) bool {
	return v.X >= r.XMin && v.X <= r.XMax && v.Y >= r.YMin && v.Y <= r.YMax
}

// PositionAllocator hands out initial positions
type PositionAllocator interface {
	Next() Vector
}

// ListPositionAllocator returns the positions added to it in order, wrapping around at the end
type ListPositionAllocator struct {
	positions []Vector
	current   int
}

func (lpa *ListPositionAllocator) Add(v Vector) {
	lpa.positions = append(lpa.positions, v)
}

func (lpa *ListPositionAllocator) Next() Vector {
	if len(lpa.positions) == 0 {
		panic("ListPositionAllocator has no positions")
	}
	v := lpa.positions[lpa.current]
	lpa.current = (lpa.current + 1) % len(lpa.positions)
	return v
}

// grid layouts
const (
	RowFirst    = "RowFirst"
	ColumnFirst = "ColumnFirst"
)

// GridPositionAllocator lays positions out on a rectangular grid, GridWidth
// objects per row (RowFirst) or per column (ColumnFirst)
type GridPositionAllocator struct {
	MinX, MinY, Z  float64
	DeltaX, DeltaY float64
	GridWidth      int
	LayoutType     string
	current        int
}

func (gpa *GridPositionAllocator) Next() Vector {
	width := gpa.GridWidth
	if width < 1 {
		width = 1
	}
	var x, y float64
	switch gpa.LayoutType {
	case ColumnFirst:
		x = gpa.MinX + gpa.DeltaX*float64(gpa.current/width)
		y = gpa.MinY + gpa.DeltaY*float64(gpa.current%width)
	default:
		x = gpa.MinX + gpa.DeltaX*float64(gpa.current%width)
		y = gpa.MinY + gpa.DeltaY*float64(gpa.current/width)
	}
	gpa.current += 1
	return Vector{X: x, Y: y, Z: gpa.Z}
}

// MobilityModel gives a node's position and velocity as functions of time
type MobilityModel interface {
	Position(now float64) Vector
	Velocity(now float64) Vector
	setPosition(now float64, v Vector)
	start(evtMgr *evtm.EventManager)
	setCourseChange(func(now float64, m MobilityModel))
	ModelName() string
}

// ConstantPositionMobility never moves
type ConstantPositionMobility struct {
	pos    Vector
	change func(now float64, m MobilityModel)
}

func NewConstantPositionMobility() MobilityModel {
	return &ConstantPositionMobility{}
}

func (cpm *ConstantPositionMobility) Position(now float64) Vector { return cpm.pos }
func (cpm *ConstantPositionMobility) Velocity(now float64) Vector { return Vector{} }
func (cpm *ConstantPositionMobility) ModelName() string           { return "ConstantPositionMobilityModel" }

// start reports the initial position as a course change once the run begins
func (cpm *ConstantPositionMobility) start(evtMgr *evtm.EventManager) {
	scheduleIn(evtMgr, 0.0, cpm, nil, notifyPositionHdlr)
}

func notifyPositionHdlr(evtMgr *evtm.EventManager, context any, data any) any {
	cpm := context.(*ConstantPositionMobility)
	if cpm.change != nil {
		cpm.change(evtMgr.CurrentSeconds(), cpm)
	}
	return nil
}

func (cpm *ConstantPositionMobility) setPosition(now float64, v Vector) {
	cpm.pos = v
}

func (cpm *ConstantPositionMobility) setCourseChange(cb func(now float64, m MobilityModel)) {
	cpm.change = cb
}

// random walk modes
const (
	WalkModeTime     = "Time"
	WalkModeDistance = "Distance"
)

// RandomWalk2dMobility moves at a speed and direction drawn at random, for a fixed
// time or a fixed distance, then draws again.  It rebounds off the Bounds rectangle
type RandomWalk2dMobility struct {
	Bounds    Rectangle
	Mode      string
	Time      float64
	Distance  float64
	Speed     RandomVariable
	Direction RandomVariable

	base     Vector
	baseTime float64
	velocity Vector
	rng      *rngstream.RngStream
	change   func(now float64, m MobilityModel)
}

// NewRandomWalk2dMobility returns a constructor producing models with the given attributes
func NewRandomWalk2dMobility(bounds Rectangle, mode string, walkTime, distance float64, speed RandomVariable) func() MobilityModel {
	return func() MobilityModel {
		rw := new(RandomWalk2dMobility)
		rw.Bounds = bounds
		rw.Mode = mode
		rw.Time = walkTime
		rw.Distance = distance
		rw.Speed = speed
		rw.Direction = UniformRV{Min: 0, Max: 2 * math.Pi}
		rw.rng = rngstream.New(fmt.Sprintf("randomwalk-%d", nxtID()))
		return rw
	}
}

func (rw *RandomWalk2dMobility) ModelName() string { return "RandomWalk2dMobilityModel" }

func (rw *RandomWalk2dMobility) Position(now float64) Vector {
	p := rw.base.Add(rw.velocity.Scale(now - rw.baseTime))
	// floating point can carry a position a hair outside the bounds
	p.X = math.Min(math.Max(p.X, rw.Bounds.XMin), rw.Bounds.XMax)
	p.Y = math.Min(math.Max(p.Y, rw.Bounds.YMin), rw.Bounds.YMax)
	return p
}

func (rw *RandomWalk2dMobility) Velocity(now float64) Vector { return rw.velocity }

func (rw *RandomWalk2dMobility) setPosition(now float64, v Vector) {
	rw.base = v
	rw.baseTime = now
}

func (rw *RandomWalk2dMobility) setCourseChange(cb func(now float64, m MobilityModel)) {
	rw.change = cb
}

// start draws the first course from an event, so course-change observers attached
// after installation still see it
func (rw *RandomWalk2dMobility) start(evtMgr *evtm.EventManager) {
	scheduleIn(evtMgr, 0.0, rw, nil, newCourseHdlr)
}

// newCourse draws a speed and direction and walks
func (rw *RandomWalk2dMobility) newCourse(evtMgr *evtm.EventManager) {
	now := evtMgr.CurrentSeconds()
	rw.base = rw.Position(now)
	rw.baseTime = now

	speed := rw.Speed.Sample(rw.rng)
	direction := rw.Direction.Sample(rw.rng)
	rw.velocity = Vector{X: speed * math.Cos(direction), Y: speed * math.Sin(direction)}

	delay := rw.Time
	if rw.Mode == WalkModeDistance {
		if speed > 0 {
			delay = rw.Distance / speed
		} else {
			delay = math.Inf(1)
		}
	}
	rw.walk(evtMgr, delay)
}

// walk continues on the current course for delay seconds, or until a boundary is reached
func (rw *RandomWalk2dMobility) walk(evtMgr *evtm.EventManager, delay float64) {
	now := evtMgr.CurrentSeconds()
	if rw.change != nil {
		rw.change(now, rw)
	}

	tHit, axis := rw.timeToBoundary()
	if tHit < delay {
		scheduleIn(evtMgr, tHit, rw, reboundData{axis: axis, left: delay - tHit}, reboundHdlr)
		return
	}
	if math.IsInf(delay, 1) {
		return
	}
	scheduleIn(evtMgr, delay, rw, nil, newCourseHdlr)
}

// timeToBoundary returns how long until the current course leaves the bounds, and
// which axis ("x" or "y") is crossed first
func (rw *RandomWalk2dMobility) timeToBoundary() (float64, string) {
	tx, ty := math.Inf(1), math.Inf(1)
	if rw.velocity.X > 0 {
		tx = (rw.Bounds.XMax - rw.base.X) / rw.velocity.X
	} else if rw.velocity.X < 0 {
		tx = (rw.Bounds.XMin - rw.base.X) / rw.velocity.X
	}
	if rw.velocity.Y > 0 {
		ty = (rw.Bounds.YMax - rw.base.Y) / rw.velocity.Y
	} else if rw.velocity.Y < 0 {
		ty = (rw.Bounds.YMin - rw.base.Y) / rw.velocity.Y
	}
	tx = math.Max(tx, 0.0)
	ty = math.Max(ty, 0.0)
	if tx <= ty {
		return tx, "x"
	}
	return ty, "y"
}

type reboundData struct {
	axis string
	left float64
}

func reboundHdlr(evtMgr *evtm.EventManager, context any, data any) any {
	rw := context.(*RandomWalk2dMobility)
	rd := data.(reboundData)
	now := evtMgr.CurrentSeconds()
	rw.base = rw.Position(now)
	rw.baseTime = now
	if rd.axis == "x" {
		rw.velocity.X = -rw.velocity.X
	} else {
		rw.velocity.Y = -rw.velocity.Y
	}
	rw.walk(evtMgr, rd.left)
	return nil
}

func newCourseHdlr(evtMgr *evtm.EventManager, context any, data any) any {
	rw := context.(*RandomWalk2dMobility)
	rw.newCourse(evtMgr)
	return nil
}

// MobilityHelper installs mobility models on nodes, drawing initial positions from an allocator
type MobilityHelper struct {
	allocator PositionAllocator
	model     func() MobilityModel
}

func CreateMobilityHelper() *MobilityHelper {
	mh := new(MobilityHelper)
	mh.allocator = &ListPositionAllocator{positions: []Vector{{}}}
	mh.model = NewConstantPositionMobility
	return mh
}

func (mh *MobilityHelper) SetPositionAllocator(pa PositionAllocator) {
	mh.allocator = pa
}

func (mh *MobilityHelper) SetMobilityModel(model func() MobilityModel) {
	mh.model = model
}

// Install gives each node a fresh model placed at the allocator's next position.
// Motion begins at the current simulation time
func (mh *MobilityHelper) Install(evtMgr *evtm.EventManager, nodes ...*Node) {
	now := evtMgr.CurrentSeconds()
	for _, node := range nodes {
		m := mh.model()
		m.setPosition(now, mh.allocator.Next())
		node.Mobility = m
		m.start(evtMgr)
		TopoLog.Debugf("%s: %s at %v", node.Name, m.ModelName(), m.Position(now))
	}
}

// EnableMobilityAscii writes a line to w whenever one of the nodes changes course.
// The line format is "now=+<ns>ns node=<id> pos=x:y:z vel=x:y:z"
func EnableMobilityAscii(w io.Writer, nodes []*Node) {
	for _, node := range nodes {
		if node.Mobility == nil {
			continue
		}
		nodeID := node.ID
		node.Mobility.setCourseChange(func(now float64, m MobilityModel) {
			pos := m.Position(now)
			vel := m.Velocity(now)
			fmt.Fprintf(w, "now=+%.0fns node=%d pos=%.3f:%.3f:%.3f vel=%.3f:%.3f:%.3f\n",
				now*1e9, nodeID, pos.X, pos.Y, pos.Z, vel.X, vel.Y, vel.Z)
		})
	}
}
