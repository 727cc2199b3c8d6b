package wifisim

// scenario-wifi-tcp.go builds and runs TCP over 802.11n: one station sends bulk
// TCP traffic to its access point at a constant PHY rate, the throughput of every
// 100ms window is reported, and the run ends with the average throughput
//
//	  AP    STA
//	  *      *
//	  |      |
//	  n0     n1
//	10.0.0.1 10.0.0.2

import (
	"fmt"
	"net/netip"
	"strings"
)

// WifiTcpThreshold is the lowest average throughput, in Mbit/s, a run is expected to reach
const WifiTcpThreshold = 50.0

// WifiTcpConfig holds the options of the scenario
type WifiTcpConfig struct {
	// transport layer payload size in bytes
	PayloadSize int `json:"payloadsize" yaml:"payloadsize"`

	// application data rate, e.g. "100Mbps"
	DataRate string `json:"datarate" yaml:"datarate"`

	// TcpTahoe, TcpReno, TcpNewReno, TcpWestwood or TcpWestwoodPlus, "ns3::" prefix optional
	TcpVariant string `json:"tcpvariant" yaml:"tcpvariant"`

	// name of the constant data mode, e.g. "HtMcs7"
	PhyRate string `json:"phyrate" yaml:"phyrate"`

	// seconds of traffic; the run lasts one second longer
	SimulationTime float64 `json:"simulationtime" yaml:"simulationtime"`

	// write AccessPoint-*.pcap and Station-*.pcap
	Pcap bool `json:"pcap" yaml:"pcap"`
}

// DefaultWifiTcpConfig returns the scenario's default options
func DefaultWifiTcpConfig() WifiTcpConfig {
	return WifiTcpConfig{PayloadSize: 1472, DataRate: "100Mbps", TcpVariant: "ns3::TcpNewReno",
		PhyRate: "HtMcs7", SimulationTime: 10, Pcap: false}
}

// Validate checks the options that can be checked before anything is built
func (cfg *WifiTcpConfig) Validate() error {
	errs := []error{}
	if cfg.PayloadSize <= 0 {
		errs = append(errs, fmt.Errorf("payloadSize must be positive"))
	}
	if rate, err := ParseDataRate(cfg.DataRate); err != nil {
		errs = append(errs, err)
	} else if rate <= 0 {
		errs = append(errs, fmt.Errorf("dataRate must be positive"))
	}
	if _, err := CreateCongestionOps(cfg.TcpVariant); err != nil {
		errs = append(errs, err)
	}
	if cfg.SimulationTime <= 0 {
		errs = append(errs, fmt.Errorf("simulationTime must be positive"))
	}
	return ReportErrs(errs)
}

// WifiTcpResult reports what a run measured
type WifiTcpResult struct {
	TotalRx      int                `json:"totalrx" yaml:"totalrx"`
	AverageMbps  float64            `json:"averagembps" yaml:"averagembps"`
	MeanMbps     float64            `json:"meanmbps" yaml:"meanmbps"`
	StdDevMbps   float64            `json:"stddevmbps" yaml:"stddevmbps"`
	Samples      []ThroughputSample `json:"samples" yaml:"samples"`
	TcpVariant   string             `json:"tcpvariant" yaml:"tcpvariant"`
	TxBytes      int                `json:"txbytes" yaml:"txbytes"`
	Retransmits  int                `json:"retransmits" yaml:"retransmits"`
	Timeouts     int                `json:"timeouts" yaml:"timeouts"`
	Associated   bool               `json:"associated" yaml:"associated"`
	TraceRecords int                `json:"tracerecords" yaml:"tracerecords"`
	PcapFiles    []string           `json:"pcapfiles,omitempty" yaml:"pcapfiles,omitempty"`
}

// Check returns an error when the average throughput is below WifiTcpThreshold
func (res *WifiTcpResult) Check() error {
	return CheckThroughput(res.AverageMbps, WifiTcpThreshold)
}

// RunWifiTcp builds the scenario, runs it to SimulationTime+1 seconds and reports
func RunWifiTcp(cfg WifiTcpConfig, opts RunOptions) (*WifiTcpResult, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	sim, tm := beginRun("wifi-tcp", opts)
	defer ClosePcaps()
	evtMgr := sim.EvtMgr

	variant := strings.TrimPrefix(cfg.TcpVariant, "ns3::")
	// no fragmentation and no RTS/CTS
	scenarioDefaults := [][2]string{
		{"WifiRemoteStationManager::FragmentationThreshold", "999999"},
		{"WifiRemoteStationManager::RtsCtsThreshold", "999999"},
		{"TcpSocket::SegmentSize", fmt.Sprint(cfg.PayloadSize)},
		{"TcpL4Protocol::SocketType", variant},
	}
	for _, dflt := range scenarioDefaults {
		if err := SetDefault(dflt[0], dflt[1]); err != nil {
			return nil, err
		}
	}
	if err := applyDefaults(opts.Defaults); err != nil {
		return nil, err
	}

	wifiHelper := CreateWifiHelper()
	wifiHelper.SetStandard(Standard80211n5GHz)
	wifiHelper.SetTraceManager(tm)

	// legacy channel
	channelHelper := NewYansWifiChannelHelper()
	channelHelper.SetPropagationDelay(NewConstantSpeedPropagationDelay())
	channelHelper.AddPropagationLoss(NewFriisPropagationLoss(5e9))
	channel, err := channelHelper.Create()
	if err != nil {
		return nil, err
	}

	wifiPhy := DefaultYansWifiPhyHelper()
	wifiPhy.SetChannel(channel)
	phyAttrbs := [][2]string{
		{"TxPowerStart", "10.0"}, {"TxPowerEnd", "10.0"}, {"TxPowerLevels", "1"},
		{"TxGain", "0"}, {"RxGain", "0"}, {"RxNoiseFigure", "10"},
		{"CcaMode1Threshold", "-79"}, {"EnergyDetectionThreshold", "-76"},
	}
	errs := []error{}
	for _, attrb := range phyAttrbs {
		errs = append(errs, wifiPhy.Set(attrb[0], attrb[1]))
	}
	errs = append(errs, wifiPhy.SetErrorRateModel("ns3::YansErrorRateModel"))
	errs = append(errs, wifiHelper.SetRemoteStationManager("ns3::ConstantRateWifiManager",
		map[string]string{"DataMode": cfg.PhyRate, "ControlMode": "HtMcs0"}))
	if err := ReportErrs(errs); err != nil {
		return nil, err
	}

	networkNodes := NodeContainer{}
	networkNodes.Create(2)
	apWifiNode := networkNodes.Get(0)
	staWifiNode := networkNodes.Get(1)

	ssid := Ssid("network")
	wifiMac := CreateWifiMacHelper()
	if err := wifiMac.SetType("ns3::ApWifiMac", ssid); err != nil {
		return nil, err
	}
	apDevice, err := wifiHelper.Install(evtMgr, wifiPhy, wifiMac, apWifiNode)
	if err != nil {
		return nil, err
	}
	if err := wifiMac.SetType("ns3::StaWifiMac", ssid); err != nil {
		return nil, err
	}
	staDevices, err := wifiHelper.Install(evtMgr, wifiPhy, wifiMac, staWifiNode)
	if err != nil {
		return nil, err
	}

	positionAlloc := new(ListPositionAllocator)
	positionAlloc.Add(Vector{X: 0, Y: 0, Z: 0})
	positionAlloc.Add(Vector{X: 1, Y: 1, Z: 1})
	mobility := CreateMobilityHelper()
	mobility.SetPositionAllocator(positionAlloc)
	mobility.SetMobilityModel(NewConstantPositionMobility)
	mobility.Install(evtMgr, apWifiNode)
	mobility.Install(evtMgr, staWifiNode)

	stack := InternetStackHelper{}
	stack.Install(networkNodes.Nodes...)
	address := Ipv4AddressHelper{}
	if err := address.SetBase("10.0.0.0", "255.255.255.0"); err != nil {
		return nil, err
	}
	apInterface, err := address.Assign(apDevice)
	if err != nil {
		return nil, err
	}
	if _, err := address.Assign(staDevices); err != nil {
		return nil, err
	}
	if err := PopulateRoutingTables(networkNodes.Nodes); err != nil {
		return nil, err
	}

	// TCP receiver on the access point
	sink, err := CreatePacketSink(apWifiNode, "ns3::TcpSocketFactory", netip.AddrPortFrom(netip.IPv4Unspecified(), 9))
	if err != nil {
		return nil, err
	}
	sinkApp := ApplicationContainer{}
	sinkApp.Add(sink)

	// TCP transmitter on the station
	server, err := CreateOnOffApplication(staWifiNode, "ns3::TcpSocketFactory", netip.AddrPortFrom(apInterface.GetAddress(0), 9))
	if err != nil {
		return nil, err
	}
	appAttrbs := [][2]string{
		{"PacketSize", fmt.Sprint(cfg.PayloadSize)},
		{"OnTime", "ns3::ConstantRandomVariable[Constant=1]"},
		{"OffTime", "ns3::ConstantRandomVariable[Constant=0]"},
		{"DataRate", cfg.DataRate},
	}
	for _, attrb := range appAttrbs {
		if err := server.SetAttribute(attrb[0], attrb[1]); err != nil {
			return nil, err
		}
	}
	serverApp := ApplicationContainer{}
	serverApp.Add(server)

	if err := prepareObjects("wifi-tcp", opts, sim, networkNodes.Nodes, []Application{sink, server}); err != nil {
		return nil, err
	}

	sinkApp.Start(evtMgr, 0.0)
	serverApp.Start(evtMgr, 1.0)
	monitor := CreateThroughputMonitor(sink.GetTotalRx, 0.1)
	monitor.Out = opts.out()
	monitor.Start(evtMgr, 1.1)

	res := &WifiTcpResult{TcpVariant: variant}
	if cfg.Pcap {
		pcapErrs := []error{wifiPhy.EnablePcap("AccessPoint", apDevice), wifiPhy.EnablePcap("Station", staDevices)}
		if err := ReportErrs(pcapErrs); err != nil {
			return nil, err
		}
		for _, pw := range openPcaps {
			res.PcapFiles = append(res.PcapFiles, pw.Filename)
		}
	}

	stopTime := cfg.SimulationTime + 1
	monitor.StopAt(evtMgr, stopTime)
	sim.Stop(stopTime)
	if err := sim.Run(); err != nil {
		return nil, err
	}

	res.TotalRx = sink.GetTotalRx()
	res.AverageMbps = AverageThroughputMbps(res.TotalRx, cfg.SimulationTime)
	res.Samples = monitor.Samples
	res.MeanMbps, res.StdDevMbps = monitor.MeanStdDev()
	res.Associated = staDevices.Get(0).(*WifiNetDevice).Mac().IsAssociated()
	if server.tcp != nil {
		res.TxBytes = server.tcp.TxBytes
		res.Retransmits = server.tcp.Retransmits
		res.Timeouts = server.tcp.Timeouts
	}
	res.TraceRecords = tm.NumRecords()
	if err := endRun(opts, tm); err != nil {
		return res, err
	}
	MainLog.Infof("wifi-tcp: %d bytes received, average %.4g Mbit/s", res.TotalRx, res.AverageMbps)
	return res, nil
}
