package wifisim

// trace.go gathers a record of what devices do with frames during a run:
// transmissions, receptions and drops, keyed by the id of the node involved.
// The collection is written to yaml or json after the run

import (
	"fmt"
	"strconv"

	"github.com/iti/evt/vrtime"
	"gopkg.in/yaml.v3"
)

// TraceInst is one entry of the trace: its time, a type tag and the serialized record
type TraceInst struct {
	TraceTime string `json:"tracetime" yaml:"tracetime"`
	TraceType string `json:"tracetype" yaml:"tracetype"`
	TraceStr  string `json:"tracestr" yaml:"tracestr"`
}

// NameType is an entry in a dictionary created for a trace
// that maps object id numbers to a (name,type) pair
type NameType struct {
	Name string `json:"name" yaml:"name"`
	Type string `json:"type" yaml:"type"`
}

// TraceManager collects device events for one run.  A manager that is not in use
// ignores everything given to it, so calls to it can be left in place everywhere
type TraceManager struct {
	// experiment uses trace
	InUse bool `json:"inuse" yaml:"inuse"`

	// name of experiment
	ExpName string `json:"expname" yaml:"expname"`

	// text name associated with each objID
	NameByID map[int]NameType `json:"namebyid" yaml:"namebyid"`

	// all trace records for this experiment, by node id
	Traces map[int][]TraceInst `json:"traces" yaml:"traces"`
}

// CreateTraceManager is a constructor.  It saves the name of the experiment
// and a flag indicating whether the trace manager is active
func CreateTraceManager(expName string, active bool) *TraceManager {
	tm := new(TraceManager)
	tm.InUse = active
	tm.ExpName = expName
	tm.NameByID = make(map[int]NameType)
	tm.Traces = make(map[int][]TraceInst)
	return tm
}

// Active tells the caller whether the Trace Manager is actively being used
func (tm *TraceManager) Active() bool {
	return tm != nil && tm.InUse
}

// AddTrace stores a record under objID
func (tm *TraceManager) AddTrace(objID int, trace TraceInst) {
	if !tm.Active() {
		return
	}
	tm.Traces[objID] = append(tm.Traces[objID], trace)
}

// AddName is used to add an element to the id -> (name,type) dictionary for the trace file
func (tm *TraceManager) AddName(id int, name string, objDesc string) {
	if !tm.Active() {
		return
	}
	if prev, present := tm.NameByID[id]; present && prev.Name != name {
		panic(fmt.Errorf("trace id %d named both %s and %s", id, prev.Name, name))
	}
	tm.NameByID[id] = NameType{Name: name, Type: objDesc}
}

// NumRecords counts the records gathered so far
func (tm *TraceManager) NumRecords() int {
	n := 0
	for _, recs := range tm.Traces {
		n += len(recs)
	}
	return n
}

// DevTrace records a frame passing through a device
type DevTrace struct {
	Time     float64 `yaml:"time"`
	Ticks    int64   `yaml:"ticks"`
	NodeID   int     `yaml:"nodeid"`
	IfIndex  int     `yaml:"ifindex"`
	Device   string  `yaml:"device"`
	Op       string  `yaml:"op"` // "tx", "rx", "drop", "forward", "flood"
	PcktID   int     `yaml:"pcktid"`
	Bytes    int     `yaml:"bytes"`
	Protocol string  `yaml:"protocol"`
	Detail   string  `yaml:"detail,omitempty"`
}

func (dtr *DevTrace) Serialize() string {
	bytes, merr := yaml.Marshal(*dtr)
	if merr != nil {
		panic(merr)
	}
	return string(bytes[:])
}

// pcktProtocol names the outermost protocol a packet carries
func pcktProtocol(pckt *Packet) string {
	switch {
	case pckt.Tcp != nil:
		return "tcp"
	case pckt.Udp != nil:
		return "udp"
	case pckt.IP != nil:
		return "ipv4"
	}
	return fmt.Sprintf("0x%04x", pckt.Protocol)
}

// AddDevTrace creates a record of a device event and stores it under the node's id
func (tm *TraceManager) AddDevTrace(now float64, nodeID, ifIndex int, devName, op string, pckt *Packet, detail string) {
	if !tm.Active() {
		return
	}
	vrt := vrtime.SecondsToTime(now)
	dtr := &DevTrace{Time: now, Ticks: vrt.Ticks(), NodeID: nodeID, IfIndex: ifIndex,
		Device: devName, Op: op, Detail: detail}
	if pckt != nil {
		dtr.PcktID = pckt.UID
		dtr.Bytes = pckt.Size()
		dtr.Protocol = pcktProtocol(pckt)
	}
	traceTime := strconv.FormatFloat(now, 'f', -1, 64)
	tm.AddTrace(nodeID, TraceInst{TraceTime: traceTime, TraceType: "device", TraceStr: dtr.Serialize()})
}

// WriteToFile stores the Traces struct to the file whose name is given.
// Serialization to json or to yaml is selected based on the extension of this name.
func (tm *TraceManager) WriteToFile(filename string) error {
	if !tm.Active() {
		return nil
	}
	return writeSerialized(filename, tm)
}
