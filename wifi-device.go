package wifisim

// wifi-device.go holds the wifi network device, which joins a MAC and a PHY under
// the NetDevice interface, and the helpers that build and install them

import (
	"fmt"
	"strings"

	"github.com/iti/evt/evtm"
)

// default MTU of a wifi device
const wifiMtu = 2296

// WifiNetDevice is a wifi interface of a node
type WifiNetDevice struct {
	deviceBase
	mac *WifiMac
	phy *WifiPhy
}

func (wd *WifiNetDevice) DevType() string { return "wifi" }
func (wd *WifiNetDevice) Mac() *WifiMac   { return wd.mac }
func (wd *WifiNetDevice) Phy() *WifiPhy   { return wd.phy }

func (wd *WifiNetDevice) Send(evtMgr *evtm.EventManager, pckt *Packet, dst Mac48, protocol uint16) bool {
	return wd.mac.enqueueData(evtMgr, pckt, protocol, wd.address, dst)
}

// SendFrom is only available on access points; a station can only send as itself
func (wd *WifiNetDevice) SendFrom(evtMgr *evtm.EventManager, pckt *Packet, src, dst Mac48, protocol uint16) bool {
	if !wd.SupportsSendFrom() {
		MacLog.Errorf("%s: SendFrom on a station device", wd.name)
		return false
	}
	return wd.mac.enqueueData(evtMgr, pckt, protocol, src, dst)
}

func (wd *WifiNetDevice) SupportsSendFrom() bool {
	return wd.mac.Type == ApMacType
}

// receiveFromMac passes a data frame from the MAC up the stack
func (wd *WifiNetDevice) receiveFromMac(evtMgr *evtm.EventManager, pckt *Packet, protocol uint16, src, dst Mac48) {
	wd.addTrace(evtMgr.CurrentSeconds(), "rx", pckt, src.String())
	wd.forwardUp(evtMgr, wd, pckt, protocol, src, dst)
}

// YansWifiPhyHelper holds the channel and attribute values given to the PHYs it creates
type YansWifiPhyHelper struct {
	channel    *YansWifiChannel
	attrbs     PhyAttributes
	errorModel string
}

// DefaultYansWifiPhyHelper has the default PHY attributes and no channel
func DefaultYansWifiPhyHelper() *YansWifiPhyHelper {
	return &YansWifiPhyHelper{attrbs: DefaultPhyAttributes(), errorModel: "YansErrorRateModel"}
}

func (ph *YansWifiPhyHelper) SetChannel(ch *YansWifiChannel) {
	ph.channel = ch
}

// Set assigns a PHY attribute, e.g. Set("TxPowerStart", "10.0")
func (ph *YansWifiPhyHelper) Set(name, value string) error {
	return ph.attrbs.set(name, stringToValueStruct(strings.TrimSpace(value)))
}

// SetErrorRateModel picks the error model by name
func (ph *YansWifiPhyHelper) SetErrorRateModel(name string) error {
	if _, err := createErrorModel(name); err != nil {
		return err
	}
	ph.errorModel = name
	return nil
}

// Attributes returns the values new PHYs get
func (ph *YansWifiPhyHelper) Attributes() PhyAttributes {
	return ph.attrbs
}

// EnablePcap opens a pcap file for each wifi device, named <prefix>-<node>-<ifindex>.pcap
func (ph *YansWifiPhyHelper) EnablePcap(prefix string, devs NetDeviceContainer) error {
	errs := []error{}
	for _, dev := range devs.Devices {
		if dev.DevType() != "wifi" {
			continue
		}
		if err := EnablePcap(prefix, dev); err != nil {
			errs = append(errs, err)
		}
	}
	return ReportErrs(errs)
}

func createErrorModel(name string) (ErrorRateModel, error) {
	switch strings.TrimPrefix(name, "ns3::") {
	case "YansErrorRateModel", "NistErrorRateModel", "CodedBerErrorModel":
		return new(CodedBerErrorModel), nil
	}
	return nil, fmt.Errorf("error rate model %q not recognized", name)
}

// WifiMacHelper chooses the MAC type and SSID of the devices installed with it
type WifiMacHelper struct {
	typ  string
	ssid Ssid
}

func CreateWifiMacHelper() *WifiMacHelper {
	return &WifiMacHelper{typ: StaMacType, ssid: Ssid("default")}
}

// SetType takes "ApWifiMac" or "StaWifiMac", with or without the "ns3::" prefix
func (mh *WifiMacHelper) SetType(typ string, ssid Ssid) error {
	typ = strings.TrimPrefix(typ, "ns3::")
	if typ != ApMacType && typ != StaMacType {
		return fmt.Errorf("wifi MAC type %q not recognized", typ)
	}
	mh.typ = typ
	mh.ssid = ssid
	return nil
}

// WifiHelper holds the standard and rate control used by the devices it installs
type WifiHelper struct {
	standard      *WifiStandard
	managerType   string
	managerAttrbs map[string]string
	traceMgr      *TraceManager
}

func CreateWifiHelper() *WifiHelper {
	wh := new(WifiHelper)
	wh.standard = Standard80211a
	wh.managerType = "ArfWifiManager"
	wh.managerAttrbs = make(map[string]string)
	return wh
}

func (wh *WifiHelper) SetStandard(std *WifiStandard) {
	wh.standard = std
}

// SetRemoteStationManager names the rate control and its attributes (DataMode, ControlMode)
func (wh *WifiHelper) SetRemoteStationManager(typ string, attrbs map[string]string) error {
	if _, err := createStationManager(typ, attrbs, wh.standard); err != nil {
		return err
	}
	wh.managerType = typ
	wh.managerAttrbs = attrbs
	return nil
}

// SetTraceManager attaches a trace manager to the devices installed from now on
func (wh *WifiHelper) SetTraceManager(tm *TraceManager) {
	wh.traceMgr = tm
}

// Install creates a wifi device on each node, attached to the PHY helper's channel
func (wh *WifiHelper) Install(evtMgr *evtm.EventManager, ph *YansWifiPhyHelper, mh *WifiMacHelper, nodes ...*Node) (NetDeviceContainer, error) {
	devs := NetDeviceContainer{}
	if ph.channel == nil {
		return devs, fmt.Errorf("wifi PHY helper has no channel")
	}
	for _, node := range nodes {
		station, err := createStationManager(wh.managerType, wh.managerAttrbs, wh.standard)
		if err != nil {
			return devs, err
		}
		if !wh.standard.HT && (station.ControlMode().HT || station.DataMode(BroadcastMac).HT) {
			return devs, fmt.Errorf("HT modes cannot be used with %s", wh.standard.Name)
		}
		em, err := createErrorModel(ph.errorModel)
		if err != nil {
			return devs, err
		}

		dev := new(WifiNetDevice)
		dev.node = node
		dev.address = allocateMac()
		dev.mtu = wifiMtu
		dev.traceMgr = wh.traceMgr
		wh.traceMgr.AddName(node.ID, node.Name, "node")
		idx := node.AddDevice(dev)
		dev.name = fmt.Sprintf("%s-wifi-%d", node.Name, idx)

		phy := createWifiPhy(dev.name+"-phy", wh.standard, ph.attrbs, em)
		phy.device = dev
		phy.Role = "sta"
		if mh.typ == ApMacType {
			phy.Role = "ap"
		}
		mac := createWifiMac(mh.typ, mh.ssid, dev.name+"-mac", wh.standard, station)
		mac.device = dev
		mac.phy = phy
		dev.phy = phy
		dev.mac = mac

		ph.channel.Add(phy)
		mac.start(evtMgr)
		devs.Add(dev)
		MacLog.Debugf("%s: %s %s ssid %s on %s", dev.name, mh.typ, dev.address, mh.ssid, ph.channel.Name)
	}
	return devs, nil
}
