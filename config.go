package wifisim

// config.go holds the scenario file: attribute defaults, run-time parameters and
// the options of each scenario, read from yaml or json.  Command line flags given
// explicitly are applied on top of what the file holds

import (
	"io"
	"os"
	"sort"
	"strings"
)

// ScenarioCfg is the content of a scenario file.  Defaults maps attribute paths
// (e.g. "TcpSocket::SegmentSize") to values, and Parameters are applied to the
// objects of a built scenario before it runs
type ScenarioCfg struct {
	Name       string            `json:"name" yaml:"name"`
	Defaults   map[string]string `json:"defaults,omitempty" yaml:"defaults,omitempty"`
	Parameters []ExpParameter    `json:"parameters,omitempty" yaml:"parameters,omitempty"`
	WifiTcp    *WifiTcpConfig    `json:"wifitcp,omitempty" yaml:"wifitcp,omitempty"`
	Bridging   *BridgingConfig   `json:"bridging,omitempty" yaml:"bridging,omitempty"`
}

// CreateScenarioCfg is a constructor
func CreateScenarioCfg(name string) *ScenarioCfg {
	return &ScenarioCfg{Name: name, Defaults: make(map[string]string), Parameters: []ExpParameter{}}
}

// ReadScenarioCfg deserializes a slice of bytes into a ScenarioCfg.  If the input arg of bytes
// is empty, the file whose name is given is read
func ReadScenarioCfg(filename string, useYAML bool, dict []byte) (*ScenarioCfg, error) {
	// the scenario sections are decoded over the defaults, so that a file gives only what it changes
	wifiTcp, bridging := DefaultWifiTcpConfig(), DefaultBridgingConfig()
	sc := &ScenarioCfg{WifiTcp: &wifiTcp, Bridging: &bridging}
	sections := make(map[string]any)
	for _, v := range []any{&sections, sc} {
		if err := readSerialized(filename, useYAML, dict, v); err != nil {
			return nil, err
		}
	}
	if !hasSection(sections, "wifitcp") {
		sc.WifiTcp = nil
	}
	if !hasSection(sections, "bridging") {
		sc.Bridging = nil
	}
	if sc.Defaults == nil {
		sc.Defaults = make(map[string]string)
	}
	errs := []error{}
	for idx := range sc.Parameters {
		errs = append(errs, sc.Parameters[idx].Validate())
	}
	if err := ReportErrs(errs); err != nil {
		return nil, err
	}
	CfgLog.Debugf("%s: %d defaults, %d parameters", filename, len(sc.Defaults), len(sc.Parameters))
	return sc, nil
}

// hasSection reports whether the decoded file holds a non-empty top-level key name.
// Keys are compared without case, as encoding/json matches them
func hasSection(sections map[string]any, name string) bool {
	for key, value := range sections {
		if strings.EqualFold(key, name) && value != nil {
			return true
		}
	}
	return false
}

// WriteToFile stores the ScenarioCfg in the named file, as yaml or json by extension
func (sc *ScenarioCfg) WriteToFile(filename string) error {
	return writeSerialized(filename, sc)
}

// AddParameter appends a parameter assignment after checking it
func (sc *ScenarioCfg) AddParameter(ep ExpParameter) error {
	if err := ep.Validate(); err != nil {
		return err
	}
	sc.Parameters = append(sc.Parameters, ep)
	return nil
}

// RunOptions collects what a scenario run takes besides its own options
type RunOptions struct {
	// attribute defaults applied after the scenario's own
	Defaults map[string]string

	// applied to the objects of the built scenario
	Parameters []ExpParameter

	// when not empty, the device trace is written here
	TraceFile string

	// when not empty, the topology description is written here
	TopoFile string

	// destination of the per-interval report lines, stdout when nil
	Out io.Writer
}

// Options builds the options of a run from the file's defaults and parameters
func (sc *ScenarioCfg) Options() RunOptions {
	return RunOptions{Defaults: sc.Defaults, Parameters: sc.Parameters}
}

func (ro *RunOptions) out() io.Writer {
	if ro.Out == nil {
		return os.Stdout
	}
	return ro.Out
}

// applyDefaults sets the attribute defaults in key order, so that a run is reproducible
func applyDefaults(defaults map[string]string) error {
	keys := make([]string, 0, len(defaults))
	for key := range defaults {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	errs := []error{}
	for _, key := range keys {
		errs = append(errs, SetDefault(key, defaults[key]))
	}
	return ReportErrs(errs)
}

// collectParamObjs gathers the objects of the nodes' devices and the applications
// that parameters may be applied to, keyed by the object type a parameter names
func collectParamObjs(nodes []*Node, apps []Application) map[string][]paramObj {
	objs := map[string][]paramObj{"Phy": {}, "Mac": {}, "Csma": {}, "App": {}}
	seen := make(map[*CsmaChannel]bool)
	for _, node := range nodes {
		for _, dev := range node.Devices {
			switch d := dev.(type) {
			case *WifiNetDevice:
				objs["Phy"] = append(objs["Phy"], d.phy)
				objs["Mac"] = append(objs["Mac"], d.mac)
			case *CsmaNetDevice:
				if !seen[d.channel] {
					seen[d.channel] = true
					objs["Csma"] = append(objs["Csma"], d.channel)
				}
			}
		}
	}
	for _, app := range apps {
		if po, ok := app.(paramObj); ok {
			objs["App"] = append(objs["App"], po)
		}
	}
	return objs
}

// beginRun clears what a previous run left behind and creates the simulator and
// the trace manager of a new one
func beginRun(name string, opts RunOptions) (*Simulator, *TraceManager) {
	ResetNodes()
	ResetInternet()
	ResetDefaults()
	NumIDs = 0
	if err := ClosePcaps(); err != nil {
		MainLog.Warnf("%s: closing capture files of the previous run: %v", name, err)
	}
	MainLog.Infof("%s: starting", name)
	return NewSimulator(), CreateTraceManager(name, len(opts.TraceFile) > 0)
}

// prepareObjects applies the run's parameters to the built scenario and writes
// its topology description when asked for
func prepareObjects(name string, opts RunOptions, sim *Simulator, nodes []*Node, apps []Application) error {
	if err := ApplyParameters(opts.Parameters, collectParamObjs(nodes, apps)); err != nil {
		return err
	}
	if len(opts.TopoFile) > 0 {
		if err := DescribeTopology(name, nodes, sim.Now()).WriteToFile(opts.TopoFile); err != nil {
			return err
		}
	}
	return nil
}

// endRun closes the capture files and writes the trace
func endRun(opts RunOptions, tm *TraceManager) error {
	errs := []error{ClosePcaps()}
	if len(opts.TraceFile) > 0 {
		errs = append(errs, tm.WriteToFile(opts.TraceFile))
	}
	return ReportErrs(errs)
}
