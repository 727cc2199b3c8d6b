package wifisim

// scenario-bridging.go builds and runs wifi cells joined by a wired backbone.  Each
// backbone node is the access point of one cell and bridges its wifi device with
// its CSMA device, so every station shares one IPv4 subnet.  A station in the first
// cell sends a constant 500kb/s stream, over UDP or as raw frames, to a station in
// the second
//
//	  +-----+      +-----+            +-----+      +-----+
//	  | STA |      | STA |            | STA |      | STA |
//	  +-----+      +-----+            +-----+      +-----+
//	192.168.0.2  192.168.0.3        192.168.0.5  192.168.0.6
//	    ((*))       ((*))       |      ((*))        ((*))
//	                            |
//	          ((*))             |             ((*))
//	         WIFI AP   CSMA ========= CSMA   WIFI AP
//	         ##############           ##############
//	             BRIDGE                   BRIDGE
//	           192.168.0.1              192.168.0.4

import (
	"fmt"
	"net/netip"
	"os"
)

// protocol number of the raw frames sent when SendIp is false
const rawFrameProtocol uint16 = 0x807

// BridgingConfig holds the options of the scenario
type BridgingConfig struct {
	// number of wifi cells, at least 2
	NWifis int `json:"nwifis" yaml:"nwifis"`

	// number of stations per cell, at least 2
	NStas int `json:"nstas" yaml:"nstas"`

	// send UDP datagrams when true, raw frames through packet sockets when false
	SendIp bool `json:"sendip" yaml:"sendip"`

	// write course changes to MobilityFile
	WriteMobility bool   `json:"writemobility" yaml:"writemobility"`
	MobilityFile  string `json:"mobilityfile" yaml:"mobilityfile"`

	// pcap files are <PcapPrefix>-<node>-<device>.pcap; none are written when empty
	PcapPrefix string `json:"pcapprefix" yaml:"pcapprefix"`
}

// DefaultBridgingConfig returns the scenario's default options
func DefaultBridgingConfig() BridgingConfig {
	return BridgingConfig{NWifis: 2, NStas: 2, SendIp: true, WriteMobility: false,
		MobilityFile: "wifi-wired-bridging.mob", PcapPrefix: "wifi-wired-bridging"}
}

// Validate checks that the cells and stations the traffic runs between exist
func (cfg *BridgingConfig) Validate() error {
	errs := []error{}
	if cfg.NWifis < 2 {
		errs = append(errs, fmt.Errorf("nWifis must be at least 2, not %d", cfg.NWifis))
	}
	if cfg.NStas < 2 {
		errs = append(errs, fmt.Errorf("nStas must be at least 2, not %d", cfg.NStas))
	}
	if cfg.WriteMobility && len(cfg.MobilityFile) == 0 {
		errs = append(errs, fmt.Errorf("writeMobility needs a mobility file name"))
	}
	return ReportErrs(errs)
}

// BridgingResult reports what a run measured
type BridgingResult struct {
	Source       string                    `json:"source" yaml:"source"`
	Destination  string                    `json:"destination" yaml:"destination"`
	TxPackets    int                       `json:"txpackets" yaml:"txpackets"`
	TxBytes      int                       `json:"txbytes" yaml:"txbytes"`
	RxPackets    int                       `json:"rxpackets" yaml:"rxpackets"`
	RxBytes      int                       `json:"rxbytes" yaml:"rxbytes"`
	Associated   int                       `json:"associated" yaml:"associated"`
	BridgeTables map[string]map[string]int `json:"bridgetables" yaml:"bridgetables"`
	Forwarded    int                       `json:"forwarded" yaml:"forwarded"`
	Flooded      int                       `json:"flooded" yaml:"flooded"`
	TraceRecords int                       `json:"tracerecords" yaml:"tracerecords"`
	PcapFiles    []string                  `json:"pcapfiles,omitempty" yaml:"pcapfiles,omitempty"`
}

// RunBridging builds the scenario and runs it for 5 seconds
func RunBridging(cfg BridgingConfig, opts RunOptions) (*BridgingResult, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	sim, tm := beginRun("wifi-wired-bridging", opts)
	defer ClosePcaps()
	evtMgr := sim.EvtMgr
	if err := applyDefaults(opts.Defaults); err != nil {
		return nil, err
	}

	backboneNodes := NodeContainer{}
	staNodes := []NodeContainer{}
	staDevices := []NetDeviceContainer{}
	apDevices := []NetDeviceContainer{}
	staInterfaces := []Ipv4InterfaceContainer{}
	apInterfaces := []Ipv4InterfaceContainer{}
	bridges := []*BridgeNetDevice{}

	stack := InternetStackHelper{}
	csma := CreateCsmaHelper()
	csma.SetTraceManager(tm)
	ip := Ipv4AddressHelper{}
	if err := ip.SetBase("192.168.0.0", "255.255.255.0"); err != nil {
		return nil, err
	}

	backboneNodes.Create(cfg.NWifis)
	stack.Install(backboneNodes.Nodes...)
	backboneDevices, _ := csma.Install(backboneNodes.Nodes...)

	wifiX := 0.0
	wifiPhy := DefaultYansWifiPhyHelper()

	for idx := 0; idx < cfg.NWifis; idx++ {
		ssid := Ssid(fmt.Sprintf("wifi-default-%d", idx))
		bridge := BridgeHelper{}
		wifi := CreateWifiHelper()
		wifi.SetTraceManager(tm)
		wifiMac := CreateWifiMacHelper()
		channel, err := DefaultYansWifiChannelHelper().Create()
		if err != nil {
			return nil, err
		}
		wifiPhy.SetChannel(channel)

		sta := NodeContainer{}
		sta.Create(cfg.NStas)
		mobility := CreateMobilityHelper()
		mobility.SetPositionAllocator(&GridPositionAllocator{MinX: wifiX, MinY: 0, DeltaX: 5, DeltaY: 5,
			GridWidth: 1, LayoutType: RowFirst})

		// the AP
		apNode := backboneNodes.Get(idx)
		mobility.SetMobilityModel(NewConstantPositionMobility)
		mobility.Install(evtMgr, apNode)
		if err := wifiMac.SetType("ns3::ApWifiMac", ssid); err != nil {
			return nil, err
		}
		apDev, err := wifi.Install(evtMgr, wifiPhy, wifiMac, apNode)
		if err != nil {
			return nil, err
		}
		ports := NetDeviceContainer{}
		ports.Add(apDev.Get(0), backboneDevices.Get(idx))
		bridgeDev, err := bridge.Install(apNode, ports)
		if err != nil {
			return nil, err
		}
		bridges = append(bridges, bridgeDev)

		// the AP's address goes on the bridge, not on the wifi device
		bridgeDevs := NetDeviceContainer{}
		bridgeDevs.Add(bridgeDev)
		apInterface, err := ip.Assign(bridgeDevs)
		if err != nil {
			return nil, err
		}

		// the STAs
		stack.Install(sta.Nodes...)
		bounds := Rectangle{XMin: wifiX, XMax: wifiX + 5, YMin: 0, YMax: float64(cfg.NStas+1) * 5}
		mobility.SetMobilityModel(NewRandomWalk2dMobility(bounds, "Time", 2.0, 0, ConstantRV{Value: 1.0}))
		mobility.Install(evtMgr, sta.Nodes...)
		if err := wifiMac.SetType("ns3::StaWifiMac", ssid); err != nil {
			return nil, err
		}
		staDev, err := wifi.Install(evtMgr, wifiPhy, wifiMac, sta.Nodes...)
		if err != nil {
			return nil, err
		}
		staInterface, err := ip.Assign(staDev)
		if err != nil {
			return nil, err
		}

		staNodes = append(staNodes, sta)
		apDevices = append(apDevices, apDev)
		apInterfaces = append(apInterfaces, apInterface)
		staDevices = append(staDevices, staDev)
		staInterfaces = append(staInterfaces, staInterface)

		wifiX += 20.0
	}

	res := &BridgingResult{BridgeTables: make(map[string]map[string]int)}
	var onoff *OnOffApplication
	var sink *PacketSink
	var err error
	srcNode := staNodes[0].Get(0)
	if cfg.SendIp {
		dest := netip.AddrPortFrom(staInterfaces[1].GetAddress(1), 1025)
		if onoff, err = CreateOnOffApplication(srcNode, "ns3::UdpSocketFactory", dest); err != nil {
			return nil, err
		}
		sink, err = CreatePacketSink(staNodes[1].Get(1), "ns3::UdpSocketFactory", netip.AddrPortFrom(netip.IPv4Unspecified(), 1025))
		res.Destination = dest.String()
	} else {
		dest := PacketSocketAddress{IfIndex: staDevices[0].Get(0).IfIndex(),
			Physical: staDevices[1].Get(0).Address(), Protocol: rawFrameProtocol}
		if onoff, err = CreateOnOffApplication(srcNode, "ns3::PacketSocketFactory", dest); err != nil {
			return nil, err
		}
		sink, err = CreatePacketSink(staNodes[1].Get(0), "ns3::PacketSocketFactory",
			PacketSocketAddress{IfIndex: -1, Protocol: rawFrameProtocol})
		res.Destination = dest.String()
	}
	if err != nil {
		return nil, err
	}
	res.Source = srcNode.Name
	rate, _ := ParseDataRate("500kb/s")
	onoff.SetConstantRate(rate, 0)

	allNodes := append([]*Node{}, backboneNodes.Nodes...)
	for _, sta := range staNodes {
		allNodes = append(allNodes, sta.Nodes...)
	}
	if err := prepareObjects("wifi-wired-bridging", opts, sim, allNodes, []Application{onoff, sink}); err != nil {
		return nil, err
	}

	apps := ApplicationContainer{}
	apps.Add(onoff)
	apps.Start(evtMgr, 0.5)
	apps.Stop(evtMgr, 3.0)
	sinkApps := ApplicationContainer{}
	sinkApps.Add(sink)
	sinkApps.Start(evtMgr, 0.0)

	if len(cfg.PcapPrefix) > 0 {
		pcapErrs := []error{wifiPhy.EnablePcap(cfg.PcapPrefix, apDevices[0]), wifiPhy.EnablePcap(cfg.PcapPrefix, apDevices[1])}
		if err := ReportErrs(pcapErrs); err != nil {
			return nil, err
		}
		for _, pw := range openPcaps {
			res.PcapFiles = append(res.PcapFiles, pw.Filename)
		}
	}

	var mobFile *os.File
	if cfg.WriteMobility {
		if mobFile, err = os.Create(cfg.MobilityFile); err != nil {
			return nil, err
		}
		defer mobFile.Close()
		EnableMobilityAscii(mobFile, allNodes)
	}

	sim.Stop(5.0)
	if err := sim.Run(); err != nil {
		return nil, err
	}
	now := sim.Now()

	res.TxPackets = onoff.TxPackets
	res.TxBytes = onoff.TotBytes
	res.RxPackets = sink.RxPackets
	res.RxBytes = sink.GetTotalRx()
	for _, devs := range staDevices {
		for _, dev := range devs.Devices {
			if dev.(*WifiNetDevice).Mac().IsAssociated() {
				res.Associated += 1
			}
		}
	}
	for _, br := range bridges {
		res.BridgeTables[br.DevName()] = br.LearnedTable(now)
		res.Forwarded += br.Forwarded
		res.Flooded += br.Flooded
	}
	res.TraceRecords = tm.NumRecords()
	MainLog.Infof("wifi-wired-bridging: %d of %d bytes delivered to %s (%d APs, %d stations associated)",
		res.RxBytes, res.TxBytes, res.Destination, len(apInterfaces), res.Associated)
	if err := endRun(opts, tm); err != nil {
		return res, err
	}
	return res, nil
}
