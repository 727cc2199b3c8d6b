package wifisim

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// bridgedLan is A on one CSMA segment and C on another, joined by a bridge on B
type bridgedLan struct {
	sim    *Simulator
	a, c   *Node
	bridge *BridgeNetDevice
	devA   NetDevice
	devC   NetDevice
	addrC  netip.Addr
}

func buildBridgedLan(t *testing.T) *bridgedLan {
	sim := freshRun()
	nodes := NodeContainer{}
	nodes.Create(3)
	a, b, c := nodes.Get(0), nodes.Get(1), nodes.Get(2)

	csma := CreateCsmaHelper()
	require.NoError(t, csma.SetChannelAttribute("DataRate", "100Mbps"))
	left, _ := csma.Install(a, b)
	right, _ := csma.Install(b, c)

	ports := NetDeviceContainer{}
	ports.Add(left.Get(1), right.Get(0))
	bridge, err := (&BridgeHelper{}).Install(b, ports)
	require.NoError(t, err)

	stack := InternetStackHelper{}
	stack.Install(a, c)
	ip := Ipv4AddressHelper{}
	require.NoError(t, ip.SetBase("10.1.1.0", "255.255.255.0"))
	ends := NetDeviceContainer{}
	ends.Add(left.Get(0), right.Get(1))
	ifaces, err := ip.Assign(ends)
	require.NoError(t, err)

	return &bridgedLan{sim: sim, a: a, c: c, bridge: bridge, devA: left.Get(0), devC: right.Get(1),
		addrC: ifaces.GetAddress(1)}
}

func TestBridgeFloodsUnknownDestinations(t *testing.T) {
	bl := buildBridgedLan(t)
	evtMgr := bl.sim.EvtMgr
	assert.Equal(t, 2, bl.bridge.NPorts())
	assert.Equal(t, "bridge", bl.bridge.DevType())

	onoff, err := CreateOnOffApplication(bl.a, "ns3::UdpSocketFactory", netip.AddrPortFrom(bl.addrC, 1025))
	require.NoError(t, err)
	onoff.SetConstantRate(DataRate(500e3), 0)
	sink, err := CreatePacketSink(bl.c, "ns3::UdpSocketFactory", netip.AddrPortFrom(netip.IPv4Unspecified(), 1025))
	require.NoError(t, err)

	apps := ApplicationContainer{}
	apps.Add(onoff)
	apps.Start(evtMgr, 0.5)
	apps.Stop(evtMgr, 1.0)
	sinks := ApplicationContainer{}
	sinks.Add(sink)
	sinks.Start(evtMgr, 0.0)
	bl.sim.Stop(2.0)
	require.NoError(t, bl.sim.Run())

	// C never sends, so the bridge never learns where it is
	require.Greater(t, onoff.TxPackets, 0)
	assert.Equal(t, onoff.TxPackets, bl.bridge.Flooded)
	assert.Zero(t, bl.bridge.Forwarded)
	assert.Equal(t, onoff.TotBytes, sink.GetTotalRx())

	table := bl.bridge.LearnedTable(bl.sim.Now())
	assert.Equal(t, map[string]int{bl.devA.Address().String(): 0}, table)
}

func TestBridgeForwardsLearnedDestinations(t *testing.T) {
	bl := buildBridgedLan(t)
	evtMgr := bl.sim.EvtMgr

	sink, err := CreatePacketSink(bl.c, "ns3::TcpSocketFactory", netip.AddrPortFrom(netip.IPv4Unspecified(), 9))
	require.NoError(t, err)
	onoff, err := CreateOnOffApplication(bl.a, "ns3::TcpSocketFactory", netip.AddrPortFrom(bl.addrC, 9))
	require.NoError(t, err)
	onoff.SetConstantRate(DataRate(1e6), 1000)

	sinks := ApplicationContainer{}
	sinks.Add(sink)
	sinks.Start(evtMgr, 0.0)
	apps := ApplicationContainer{}
	apps.Add(onoff)
	apps.Start(evtMgr, 0.1)
	apps.Stop(evtMgr, 0.6)
	bl.sim.Stop(2.0)
	require.NoError(t, bl.sim.Run())

	// only the SYN crosses before C has answered
	assert.Equal(t, 1, bl.bridge.Flooded)
	assert.Greater(t, bl.bridge.Forwarded, 0)
	assert.Equal(t, onoff.TotBytes, sink.GetTotalRx())

	table := bl.bridge.LearnedTable(bl.sim.Now())
	assert.Equal(t, 0, table[bl.devA.Address().String()])
	assert.Equal(t, 1, table[bl.devC.Address().String()])
}

func TestBridgeEntriesExpire(t *testing.T) {
	freshRun()
	node := CreateNode()
	csma := CreateCsmaHelper()
	left, _ := csma.Install(node)
	right, _ := csma.Install(node)
	ports := NetDeviceContainer{}
	ports.Add(left.Get(0), right.Get(0))
	br, err := (&BridgeHelper{}).Install(node, ports)
	require.NoError(t, err)
	assert.Equal(t, left.Get(0).Address(), br.Address())

	station := Mac48{0, 0, 0, 0, 0, 0x42}
	br.learn(10.0, station, right.Get(0))
	assert.Equal(t, right.Get(0), br.lookup(11.0, station))
	assert.Nil(t, br.lookup(10.0+br.ExpirationTime, station))
	assert.Empty(t, br.LearnedTable(11.0))

	// group addresses are never learned
	br.learn(0, BroadcastMac, left.Get(0))
	assert.Nil(t, br.lookup(1.0, BroadcastMac))
}

func TestBridgePortsMustBeLocal(t *testing.T) {
	freshRun()
	nodes := NodeContainer{}
	nodes.Create(2)
	devs, _ := CreateCsmaHelper().Install(nodes.Nodes...)
	_, err := (&BridgeHelper{}).Install(nodes.Get(0), devs)
	assert.Error(t, err)
}

func TestMacAddresses(t *testing.T) {
	ResetNodes()
	first := allocateMac()
	assert.Equal(t, "00:00:00:00:00:01", first.String())
	assert.False(t, first.IsGroup())
	assert.True(t, BroadcastMac.IsBroadcast())
	assert.True(t, BroadcastMac.IsGroup())
	ResetNodes()
	assert.Equal(t, first, allocateMac())
}
