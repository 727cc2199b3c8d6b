package wifisim

// params.go has two layers of run-time configuration.  The first is a registry
// of global attribute defaults, addressed by "Type::Attribute" paths, that
// components consult when they are built.  The second applies lists of
// ExpParameter assignments to already-built objects (PHYs, MACs, CSMA channels),
// selecting objects by attributes and applying the most general assignments first

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

type attrKind int

const (
	intAttr attrKind = iota
	floatAttr
	stringAttr
	timeAttr
	rateAttr
)

type attrSpec struct {
	kind attrKind
	dflt string

	// smallest value accepted for an intAttr
	min uint64

	// extra check of the value, when not nil
	check func(value string) error
}

// checkSocketType accepts the names CreateCongestionOps accepts
func checkSocketType(value string) error {
	_, err := CreateCongestionOps(value)
	return err
}

// attrSpecs lists every attribute path SetDefault recognizes, with its built-in default
var attrSpecs = map[string]attrSpec{
	"WifiRemoteStationManager::FragmentationThreshold": {kind: intAttr, dflt: "2346"},
	"WifiRemoteStationManager::RtsCtsThreshold":        {kind: intAttr, dflt: "65535"},
	"WifiRemoteStationManager::MaxSlrc":                {kind: intAttr, dflt: "7"},
	"WifiRemoteStationManager::MaxSsrc":                {kind: intAttr, dflt: "7"},
	"WifiMacQueue::MaxSize":                            {kind: intAttr, dflt: "500", min: 1},
	"WifiMac::MaxAmpduSize":                            {kind: intAttr, dflt: "65535"},
	"ApWifiMac::BeaconInterval":                        {kind: timeAttr, dflt: "102.4ms"},
	"TcpSocket::SegmentSize":                           {kind: intAttr, dflt: "536", min: 1},
	"TcpSocket::SndBufSize":                            {kind: intAttr, dflt: "131072", min: 1},
	"TcpSocket::RcvBufSize":                            {kind: intAttr, dflt: "131072", min: 1},
	"TcpSocket::InitialCwnd":                           {kind: intAttr, dflt: "10", min: 1},
	"TcpSocket::InitialSlowStartThreshold":             {kind: intAttr, dflt: "4294967295", min: 1},
	"TcpSocket::DelAckCount":                           {kind: intAttr, dflt: "2", min: 1},
	"TcpSocket::DelAckTimeout":                         {kind: timeAttr, dflt: "200ms"},
	"TcpSocket::ConnTimeout":                           {kind: timeAttr, dflt: "3s"},
	"TcpSocketBase::MinRto":                            {kind: timeAttr, dflt: "1s"},
	"TcpL4Protocol::SocketType":                        {kind: stringAttr, dflt: "TcpNewReno", check: checkSocketType},
	"BridgeNetDevice::ExpirationTime":                  {kind: timeAttr, dflt: "300s"},
	"CsmaChannel::DataRate":                            {kind: rateAttr, dflt: "4294967295bps"},
	"CsmaChannel::Delay":                               {kind: timeAttr, dflt: "0s"},
	"OnOffApplication::PacketSize":                     {kind: intAttr, dflt: "512", min: 1},
}

// attrValues holds the current defaults, keyed by normalized path
var attrValues map[string]string = make(map[string]string)

// normalizeAttrPath drops an optional "ns3::" prefix
func normalizeAttrPath(path string) string {
	return strings.TrimPrefix(strings.TrimSpace(path), "ns3::")
}

// SetDefault changes the default used for the attribute at path.  The value is
// checked against the attribute's kind; unknown paths are errors
func SetDefault(path, value string) error {
	key := normalizeAttrPath(path)
	spec, present := attrSpecs[key]
	if !present {
		return fmt.Errorf("unknown attribute path %q", path)
	}
	value = strings.TrimSpace(value)

	var err error
	switch spec.kind {
	case intAttr:
		// queue sizes may be given with a packet suffix, e.g. "500p"
		value = strings.TrimSuffix(value, "p")
		var n uint64
		if n, err = strconv.ParseUint(value, 10, 64); err == nil && n < spec.min {
			err = fmt.Errorf("must be at least %d", spec.min)
		}
	case floatAttr:
		_, err = strconv.ParseFloat(value, 64)
	case timeAttr:
		_, err = ParseTime(value)
	case rateAttr:
		_, err = ParseDataRate(value)
	}
	if err == nil && spec.check != nil {
		err = spec.check(value)
	}
	if err != nil {
		return fmt.Errorf("attribute %s: bad value %q: %w", key, value, err)
	}
	attrValues[key] = value
	CfgLog.Debugf("default %s = %s", key, value)
	return nil
}

// ResetDefaults restores every attribute to its built-in default
func ResetDefaults() {
	attrValues = make(map[string]string)
}

func attrString(path string) string {
	if v, present := attrValues[path]; present {
		return v
	}
	spec, present := attrSpecs[path]
	if !present {
		panic(fmt.Errorf("attribute %s not registered", path))
	}
	return spec.dflt
}

func attrInt(path string) int {
	v, err := strconv.ParseUint(strings.TrimSuffix(attrString(path), "p"), 10, 64)
	if err != nil {
		panic(err)
	}
	return int(v)
}

func attrTime(path string) float64 {
	v, err := ParseTime(attrString(path))
	if err != nil {
		panic(err)
	}
	return v
}

func attrRate(path string) DataRate {
	v, err := ParseDataRate(attrString(path))
	if err != nil {
		panic(err)
	}
	return v
}

// A valueStruct type holds the different types a parameter value might have,
// typically only one of these is used, and which one is known by context
type valueStruct struct {
	intValue    int
	floatValue  float64
	stringValue string
	boolValue   bool
}

// stringToValueStruct takes a string and determines whether it is an integer,
// floating point, boolean or a string
func stringToValueStruct(v string) valueStruct {
	vs := valueStruct{}

	ivalue, ierr := strconv.Atoi(v)
	if ierr == nil {
		vs.intValue = ivalue
		vs.floatValue = float64(ivalue)
		vs.stringValue = v
		return vs
	}

	fvalue, ferr := strconv.ParseFloat(v, 64)
	if ferr == nil {
		vs.floatValue = fvalue
		vs.stringValue = v
		return vs
	}

	if v == "true" || v == "True" {
		vs.boolValue = true
	}
	vs.stringValue = v
	return vs
}

// paramObj is satisfied by the objects ExpParameters may be applied to
type paramObj interface {
	matchParam(attrbName, attrbValue string) bool
	setParam(param string, value valueStruct) error
	paramObjName() string
}

// AttrbStruct names an attribute an object has to carry for a parameter to apply to it.
// AttrbName "*" matches every object
type AttrbStruct struct {
	AttrbName  string `json:"attrbname" yaml:"attrbname"`
	AttrbValue string `json:"attrbvalue" yaml:"attrbvalue"`
}

// ExpParameter assigns Value to parameter Param of every ParamObj-typed object matching all Attributes
type ExpParameter struct {
	ParamObj   string        `json:"paramobj" yaml:"paramobj"`
	Attributes []AttrbStruct `json:"attributes" yaml:"attributes"`
	Param      string        `json:"param" yaml:"param"`
	Value      string        `json:"value" yaml:"value"`
}

// ExpParams lists the object types an ExpParameter may name, with their settable parameters
var ExpParams map[string][]string = map[string][]string{
	"Phy": {"TxPowerStart", "TxPowerEnd", "TxPowerLevels", "TxGain", "RxGain",
		"RxNoiseFigure", "CcaMode1Threshold", "EnergyDetectionThreshold"},
	"Mac":  {"MaxAmpduSize", "QueueSize", "DataMode", "ControlMode"},
	"Csma": {"DataRate", "Delay"},
	"App":  {"PacketSize", "DataRate", "OnTime", "OffTime", "MaxBytes"},
}

// Validate checks that the object type and parameter are known
func (ep *ExpParameter) Validate() error {
	params, present := ExpParams[ep.ParamObj]
	if !present {
		return fmt.Errorf("parameter object type %q not recognized", ep.ParamObj)
	}
	for _, p := range params {
		if p == ep.Param {
			return nil
		}
	}
	return fmt.Errorf("parameter %q not recognized for %s", ep.Param, ep.ParamObj)
}

// generality ranks a parameter for application order: wildcard first, named last
func (ep *ExpParameter) generality() int {
	for _, attrb := range ep.Attributes {
		if attrb.AttrbName == "*" {
			return 0
		}
	}
	for _, attrb := range ep.Attributes {
		if attrb.AttrbName == "name" {
			return 2
		}
	}
	return 1
}

// orderExpParams returns a copy of pL sorted so that more general assignments come
// before more specific ones.  Within a class the input order is kept, so a later
// assignment of the same thing overrides an earlier one
func orderExpParams(pL []ExpParameter) []ExpParameter {
	ordered := make([]ExpParameter, len(pL))
	copy(ordered, pL)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].generality() < ordered[j].generality()
	})
	return ordered
}

// ApplyParameters applies the parameter list to the objects, grouped by object type
func ApplyParameters(pL []ExpParameter, objs map[string][]paramObj) error {
	errs := []error{}
	for _, param := range orderExpParams(pL) {
		if err := param.Validate(); err != nil {
			errs = append(errs, err)
			continue
		}
		vs := stringToValueStruct(param.Value)
		for _, obj := range objs[param.ParamObj] {
			matched := true
			for _, attrb := range param.Attributes {
				if attrb.AttrbName == "*" {
					matched = true
					break
				}
				if !obj.matchParam(attrb.AttrbName, attrb.AttrbValue) {
					matched = false
					break
				}
			}
			if !matched {
				continue
			}
			if err := obj.setParam(param.Param, vs); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", obj.paramObjName(), err))
			}
		}
	}
	return ReportErrs(errs)
}
