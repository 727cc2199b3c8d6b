package wifisim

import (
	"net/netip"
	"testing"

	"github.com/iti/evt/evtm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSocketFactoryNames(t *testing.T) {
	name, err := socketFactory("ns3::UdpSocketFactory")
	require.NoError(t, err)
	assert.Equal(t, UdpSocketFactory, name)

	_, err = socketFactory("ns3::RawSocketFactory")
	assert.Error(t, err)
}

func TestOnOffUdpConstantRate(t *testing.T) {
	sim, nodes, _, ifaces := buildLan(t, 2)
	evtMgr := sim.EvtMgr

	onoff, err := CreateOnOffApplication(nodes.Get(0), "ns3::UdpSocketFactory", netip.AddrPortFrom(ifaces.GetAddress(1), 1025))
	require.NoError(t, err)
	rate, _ := ParseDataRate("500kb/s")
	onoff.SetConstantRate(rate, 0)
	assert.Equal(t, 512, onoff.PacketSize)

	sink, err := CreatePacketSink(nodes.Get(1), "ns3::UdpSocketFactory", netip.AddrPortFrom(netip.IPv4Unspecified(), 1025))
	require.NoError(t, err)
	hooked := 0
	sink.SetRxCallback(func(evtMgr *evtm.EventManager, nbytes int) {
		hooked += nbytes
	})

	apps := ApplicationContainer{}
	apps.Add(onoff)
	apps.Start(evtMgr, 0.0)
	apps.Stop(evtMgr, 1.0)
	sinks := ApplicationContainer{}
	sinks.Add(sink)
	sinks.Start(evtMgr, 0.0)

	sim.Stop(2.0)
	require.NoError(t, sim.Run())

	// one 512 byte packet every 8.192ms
	assert.InDelta(t, 122, onoff.TxPackets, 1)
	assert.Equal(t, onoff.TxPackets*512, onoff.TotBytes)
	assert.Zero(t, onoff.Unsent)
	assert.Equal(t, onoff.TotBytes, sink.GetTotalRx())
	assert.Equal(t, onoff.TxPackets, sink.RxPackets)
	assert.Equal(t, sink.TotalRx, hooked)
}

func TestOnOffAlternates(t *testing.T) {
	sim, nodes, _, ifaces := buildLan(t, 2)
	evtMgr := sim.EvtMgr

	onoff, err := CreateOnOffApplication(nodes.Get(0), "UdpSocketFactory", netip.AddrPortFrom(ifaces.GetAddress(1), 7))
	require.NoError(t, err)
	require.NoError(t, onoff.SetAttribute("DataRate", "512kbps"))
	require.NoError(t, onoff.SetAttribute("PacketSize", "1024"))
	require.NoError(t, onoff.SetAttribute("OnTime", "ns3::ConstantRandomVariable[Constant=0.5]"))
	require.NoError(t, onoff.SetAttribute("OffTime", "ns3::ConstantRandomVariable[Constant=0.5]"))

	apps := ApplicationContainer{}
	apps.Add(onoff)
	apps.Start(evtMgr, 0.0)
	apps.Stop(evtMgr, 2.0)
	sim.Stop(2.5)
	require.NoError(t, sim.Run())

	// on during [0.5,1) and [1.5,2): 62.5 packets per second of on time
	assert.InDelta(t, 62, onoff.TxPackets, 2)
}

func TestOnOffMaxBytes(t *testing.T) {
	sim, nodes, _, ifaces := buildLan(t, 2)
	evtMgr := sim.EvtMgr

	onoff, err := CreateOnOffApplication(nodes.Get(0), "ns3::UdpSocketFactory", netip.AddrPortFrom(ifaces.GetAddress(1), 7))
	require.NoError(t, err)
	onoff.SetConstantRate(DataRate(1e6), 100)
	require.NoError(t, onoff.SetAttribute("MaxBytes", "1000"))

	apps := ApplicationContainer{}
	apps.Add(onoff)
	apps.Start(evtMgr, 0.0)
	sim.Stop(1.0)
	require.NoError(t, sim.Run())

	assert.Equal(t, 1000, onoff.TotBytes)
	assert.Equal(t, 10, onoff.TxPackets)
}

func TestOnOffAttributes(t *testing.T) {
	freshRun()
	node := CreateNode()
	onoff, err := CreateOnOffApplication(node, "ns3::TcpSocketFactory", netip.MustParseAddrPort("10.0.0.1:9"))
	require.NoError(t, err)

	assert.Error(t, onoff.SetAttribute("PacketSize", "0"))
	assert.Error(t, onoff.SetAttribute("PacketSize", "-3"))
	assert.Error(t, onoff.SetAttribute("DataRate", "0bps"))
	assert.Error(t, onoff.SetAttribute("OnTime", "NormalRandomVariable"))
	assert.Error(t, onoff.SetAttribute("Jitter", "1"))

	_, err = CreateOnOffApplication(node, "ns3::PacketSocketFactory", netip.MustParseAddrPort("10.0.0.1:9"))
	assert.Error(t, err)
	_, err = CreateOnOffApplication(node, "ns3::UdpSocketFactory", PacketSocketAddress{})
	assert.Error(t, err)
	_, err = CreateOnOffApplication(node, "ns3::UdpSocketFactory", "10.0.0.1:9")
	assert.Error(t, err)

	onoff.Groups = []string{"senders"}
	assert.True(t, onoff.matchParam("group", "senders"))
	assert.True(t, onoff.matchParam("protocol", "ns3::TcpSocketFactory"))
	assert.True(t, onoff.matchParam("name", onoff.Name))
	assert.False(t, onoff.matchParam("group", "receivers"))

	pL := []ExpParameter{{ParamObj: "App", Attributes: []AttrbStruct{{AttrbName: "group", AttrbValue: "senders"}},
		Param: "DataRate", Value: "2Mbps"}}
	require.NoError(t, ApplyParameters(pL, map[string][]paramObj{"App": {onoff}}))
	assert.Equal(t, DataRate(2e6), onoff.DataRate)
}

func TestOnOffTcpBulk(t *testing.T) {
	sim, nodes, _, ifaces := buildLan(t, 2)
	evtMgr := sim.EvtMgr

	sink, err := CreatePacketSink(nodes.Get(1), "ns3::TcpSocketFactory", netip.AddrPortFrom(netip.IPv4Unspecified(), 9))
	require.NoError(t, err)
	onoff, err := CreateOnOffApplication(nodes.Get(0), "ns3::TcpSocketFactory", netip.AddrPortFrom(ifaces.GetAddress(1), 9))
	require.NoError(t, err)
	onoff.SetConstantRate(DataRate(1e6), 1000)

	sinks := ApplicationContainer{}
	sinks.Add(sink)
	sinks.Start(evtMgr, 0.0)
	apps := ApplicationContainer{}
	apps.Add(onoff)
	apps.Start(evtMgr, 0.1)
	apps.Stop(evtMgr, 1.1)
	sim.Stop(3.0)
	require.NoError(t, sim.Run())

	// 1Mb/s for a second is 125 packets of 1000 bytes, all delivered once the socket closes
	assert.InDelta(t, 125, onoff.TxPackets, 1)
	assert.Zero(t, onoff.Unsent)
	assert.Equal(t, onoff.TotBytes, sink.GetTotalRx())
	require.NotNil(t, onoff.tcp)
	assert.Equal(t, onoff.TotBytes, onoff.tcp.TxBytes)
}

func TestPacketSocketTraffic(t *testing.T) {
	sim, nodes, devs, _ := buildLan(t, 3)
	evtMgr := sim.EvtMgr

	dest := PacketSocketAddress{IfIndex: 0, Physical: devs.Get(2).Address(), Protocol: 0x807}
	onoff, err := CreateOnOffApplication(nodes.Get(0), "ns3::PacketSocketFactory", dest)
	require.NoError(t, err)
	onoff.SetConstantRate(DataRate(500e3), 0)

	sink, err := CreatePacketSink(nodes.Get(2), "ns3::PacketSocketFactory", PacketSocketAddress{IfIndex: -1, Protocol: 0x807})
	require.NoError(t, err)
	// a socket on the bystander sees nothing, the frames are not addressed to it
	other, err := CreatePacketSink(nodes.Get(1), "ns3::PacketSocketFactory", PacketSocketAddress{IfIndex: -1, Protocol: 0x807})
	require.NoError(t, err)

	sinks := ApplicationContainer{}
	sinks.Add(sink, other)
	sinks.Start(evtMgr, 0.0)
	apps := ApplicationContainer{}
	apps.Add(onoff)
	apps.Start(evtMgr, 0.5)
	apps.Stop(evtMgr, 1.0)
	sim.Stop(1.5)
	require.NoError(t, sim.Run())

	assert.Greater(t, onoff.TxPackets, 0)
	assert.Equal(t, onoff.TotBytes, sink.GetTotalRx())
	assert.Zero(t, other.GetTotalRx())
}

func TestPacketSocketBindErrors(t *testing.T) {
	_, nodes, _, _ := buildLan(t, 1)
	ps := CreatePacketSocket(nodes.Get(0))
	assert.Error(t, ps.Bind(PacketSocketAddress{IfIndex: 4}))
	require.NoError(t, ps.Bind(PacketSocketAddress{IfIndex: 0}))
	assert.Error(t, ps.Bind(PacketSocketAddress{IfIndex: 0}))
	assert.Error(t, ps.Connect(PacketSocketAddress{IfIndex: -1}))
	assert.False(t, ps.Send(nil, NewPacket(10, 0)))
}

func TestUdpBind(t *testing.T) {
	_, nodes, _, _ := buildLan(t, 1)
	a, err := CreateUdpSocket(nodes.Get(0))
	require.NoError(t, err)
	b, _ := CreateUdpSocket(nodes.Get(0))
	require.NoError(t, a.Bind(1025))
	assert.Error(t, b.Bind(1025))
	a.Close()
	assert.NoError(t, b.Bind(1025))

	c, _ := CreateUdpSocket(nodes.Get(0))
	require.NoError(t, c.Bind(0))
	assert.False(t, c.Send(nil, NewPacket(10, 0)))
}
