package wifisim

// rate-control.go holds the remote station managers that choose the mode each
// unicast data frame is sent with

import (
	"fmt"
	"strings"
)

// RemoteStationManager chooses transmission modes per remote station and learns
// from the outcome of each transmission
type RemoteStationManager interface {
	ManagerName() string
	DataMode(remote Mac48) *WifiMode
	ControlMode() *WifiMode
	ReportDataOk(remote Mac48)
	ReportDataFailed(remote Mac48)
	ReportFinalDataFailed(remote Mac48)
	setDataMode(name string) error
	setControlMode(name string) error
}

// ConstantRateWifiManager always uses the same data and control modes
type ConstantRateWifiManager struct {
	dataMode    *WifiMode
	controlMode *WifiMode
}

func (cr *ConstantRateWifiManager) ManagerName() string                { return "ConstantRateWifiManager" }
func (cr *ConstantRateWifiManager) DataMode(remote Mac48) *WifiMode    { return cr.dataMode }
func (cr *ConstantRateWifiManager) ControlMode() *WifiMode             { return cr.controlMode }
func (cr *ConstantRateWifiManager) ReportDataOk(remote Mac48)          {}
func (cr *ConstantRateWifiManager) ReportDataFailed(remote Mac48)      {}
func (cr *ConstantRateWifiManager) ReportFinalDataFailed(remote Mac48) {}

func (cr *ConstantRateWifiManager) setDataMode(name string) error {
	m, err := LookupWifiMode(name)
	if err != nil {
		return err
	}
	cr.dataMode = m
	return nil
}

func (cr *ConstantRateWifiManager) setControlMode(name string) error {
	m, err := LookupWifiMode(name)
	if err != nil {
		return err
	}
	cr.controlMode = m
	return nil
}

// ARF thresholds
const (
	arfSuccessThreshold = 10
	arfTimerThreshold   = 15
	arfFailureThreshold = 2
)

type arfState struct {
	rate     int
	success  int
	failed   int
	timer    int
	recovery bool
}

// ArfWifiManager steps the data rate up after a run of successes and down after failures.
// Each station starts at the slowest mode
type ArfWifiManager struct {
	modes       []*WifiMode
	controlMode *WifiMode
	startRate   int
	stations    map[Mac48]*arfState
}

func createArfWifiManager(std *WifiStandard) *ArfWifiManager {
	arf := new(ArfWifiManager)
	arf.modes = ModesFor(std)
	ctrl, err := LookupWifiMode(std.DefaultControlMode)
	if err != nil {
		panic(err)
	}
	arf.controlMode = ctrl
	arf.stations = make(map[Mac48]*arfState)
	return arf
}

func (arf *ArfWifiManager) ManagerName() string    { return "ArfWifiManager" }
func (arf *ArfWifiManager) ControlMode() *WifiMode { return arf.controlMode }

func (arf *ArfWifiManager) state(remote Mac48) *arfState {
	st, present := arf.stations[remote]
	if !present {
		st = &arfState{rate: arf.startRate}
		arf.stations[remote] = st
	}
	return st
}

func (arf *ArfWifiManager) DataMode(remote Mac48) *WifiMode {
	return arf.modes[arf.state(remote).rate]
}

func (arf *ArfWifiManager) ReportDataOk(remote Mac48) {
	st := arf.state(remote)
	st.timer += 1
	st.success += 1
	st.failed = 0
	st.recovery = false
	if (st.success == arfSuccessThreshold || st.timer == arfTimerThreshold) && st.rate < len(arf.modes)-1 {
		st.rate += 1
		st.timer = 0
		st.success = 0
		st.recovery = true
		MacLog.Debugf("arf %s: up to %s", remote, arf.modes[st.rate].Name)
	}
}

func (arf *ArfWifiManager) ReportDataFailed(remote Mac48) {
	st := arf.state(remote)
	st.timer += 1
	st.failed += 1
	st.success = 0

	// right after stepping up, a single failure steps back down
	if st.recovery {
		if st.failed == 1 && st.rate > 0 {
			st.rate -= 1
			MacLog.Debugf("arf %s: back to %s", remote, arf.modes[st.rate].Name)
		}
		st.timer = 0
		return
	}
	if st.failed == arfFailureThreshold {
		if st.rate > 0 {
			st.rate -= 1
			MacLog.Debugf("arf %s: down to %s", remote, arf.modes[st.rate].Name)
		}
		st.timer = 0
		st.failed = 0
	}
}

func (arf *ArfWifiManager) ReportFinalDataFailed(remote Mac48) {}

// setDataMode sets the mode stations start from
func (arf *ArfWifiManager) setDataMode(name string) error {
	m, err := LookupWifiMode(name)
	if err != nil {
		return err
	}
	for idx, mode := range arf.modes {
		if mode == m {
			arf.startRate = idx
			return nil
		}
	}
	return fmt.Errorf("mode %s not usable by %s", name, arf.ManagerName())
}

func (arf *ArfWifiManager) setControlMode(name string) error {
	m, err := LookupWifiMode(name)
	if err != nil {
		return err
	}
	arf.controlMode = m
	return nil
}

// createStationManager builds the manager named by typ (an optional "ns3::" prefix
// is dropped), applying the DataMode and ControlMode attributes when present
func createStationManager(typ string, attrbs map[string]string, std *WifiStandard) (RemoteStationManager, error) {
	var mgr RemoteStationManager
	switch strings.TrimPrefix(typ, "ns3::") {
	case "ConstantRateWifiManager":
		cr := new(ConstantRateWifiManager)
		if err := cr.setDataMode(std.DefaultDataMode); err != nil {
			return nil, err
		}
		if err := cr.setControlMode(std.DefaultControlMode); err != nil {
			return nil, err
		}
		mgr = cr
	case "ArfWifiManager":
		mgr = createArfWifiManager(std)
	default:
		return nil, fmt.Errorf("remote station manager %q not recognized", typ)
	}

	for name, value := range attrbs {
		var err error
		switch name {
		case "DataMode":
			err = mgr.setDataMode(value)
		case "ControlMode":
			err = mgr.setControlMode(value)
		default:
			err = fmt.Errorf("%s has no attribute %q", mgr.ManagerName(), name)
		}
		if err != nil {
			return nil, err
		}
	}
	return mgr, nil
}
