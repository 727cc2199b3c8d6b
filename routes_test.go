package wifisim

import (
	"net/netip"
	"testing"

	"github.com/iti/evt/evtm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildRoutedLans joins two CSMA segments through node R: A - R - C
func buildRoutedLans(t *testing.T) (*Simulator, NodeContainer, netip.Addr, netip.Addr) {
	sim := freshRun()
	nodes := NodeContainer{}
	nodes.Create(3)
	a, r, c := nodes.Get(0), nodes.Get(1), nodes.Get(2)

	left, _ := CreateCsmaHelper().Install(a, r)
	right, _ := CreateCsmaHelper().Install(r, c)
	stack := InternetStackHelper{}
	stack.Install(nodes.Nodes...)

	ip := Ipv4AddressHelper{}
	require.NoError(t, ip.SetBase("10.1.1.0", "255.255.255.0"))
	leftIfs, err := ip.Assign(left)
	require.NoError(t, err)
	require.NoError(t, ip.SetBase("10.1.2.0", "255.255.255.0"))
	rightIfs, err := ip.Assign(right)
	require.NoError(t, err)
	return sim, nodes, leftIfs.GetAddress(0), rightIfs.GetAddress(1)
}

func TestPopulateRoutingTablesGateway(t *testing.T) {
	sim, nodes, addrA, addrC := buildRoutedLans(t)
	a, r, c := nodes.Get(0), nodes.Get(1), nodes.Get(2)
	require.NoError(t, PopulateRoutingTables(nodes.Nodes))

	rt := a.Ipv4.lookup(addrC)
	require.NotNil(t, rt)
	assert.Equal(t, 32, rt.Dst.Bits())
	assert.Equal(t, "10.1.1.2", rt.Gateway.String())

	rt = c.Ipv4.lookup(addrA)
	require.NotNil(t, rt)
	assert.Equal(t, "10.1.2.1", rt.Gateway.String())

	// the router reaches both ends over connected routes
	rt = r.Ipv4.lookup(addrC)
	require.NotNil(t, rt)
	assert.False(t, rt.Gateway.IsValid())

	r.Ipv4.Forwarding = true
	recv, err := CreateUdpSocket(c)
	require.NoError(t, err)
	require.NoError(t, recv.Bind(9))
	got := 0
	recv.SetRecvCallback(func(evtMgr *evtm.EventManager, sock *UdpSocket, pckt *Packet, from netip.AddrPort) {
		got += pckt.Payload
		assert.Equal(t, addrA, from.Addr())
	})
	send, err := CreateUdpSocket(a)
	require.NoError(t, err)
	assert.True(t, send.SendTo(sim.EvtMgr, NewPacket(300, 0), netip.AddrPortFrom(addrC, 9)))

	sim.Stop(1.0)
	require.NoError(t, sim.Run())
	assert.Equal(t, 300, got)
	assert.Equal(t, 1, r.Ipv4.Forwarded)
}

func TestPopulateRoutingTablesNoForwarding(t *testing.T) {
	sim, nodes, _, addrC := buildRoutedLans(t)
	a, r := nodes.Get(0), nodes.Get(1)
	require.NoError(t, PopulateRoutingTables(nodes.Nodes))

	send, err := CreateUdpSocket(a)
	require.NoError(t, err)
	send.SendTo(sim.EvtMgr, NewPacket(300, 0), netip.AddrPortFrom(addrC, 9))
	sim.Stop(1.0)
	require.NoError(t, sim.Run())
	assert.Zero(t, r.Ipv4.Forwarded)
	assert.Equal(t, 1, r.Ipv4.Drops)
}

func TestPopulateRoutingTablesUnreachable(t *testing.T) {
	freshRun()
	nodes := NodeContainer{}
	nodes.Create(4)
	left, _ := CreateCsmaHelper().Install(nodes.Get(0), nodes.Get(1))
	right, _ := CreateCsmaHelper().Install(nodes.Get(2), nodes.Get(3))
	stack := InternetStackHelper{}
	stack.Install(nodes.Nodes...)
	ip := Ipv4AddressHelper{}
	require.NoError(t, ip.SetBase("10.1.1.0", "255.255.255.0"))
	_, err := ip.Assign(left)
	require.NoError(t, err)
	require.NoError(t, ip.SetBase("10.1.2.0", "255.255.255.0"))
	_, err = ip.Assign(right)
	require.NoError(t, err)

	err = PopulateRoutingTables(nodes.Nodes)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no path from "+nodes.Get(0).Name+" to "+nodes.Get(2).Name)

	// routes inside each segment are unaffected
	assert.NotNil(t, nodes.Get(0).Ipv4.lookup(netip.MustParseAddr("10.1.1.2")))
}

func TestRouteGraphPathThroughBridge(t *testing.T) {
	bl := buildBridgedLan(t)
	b := bl.bridge.Node()
	nodes := []*Node{bl.a, b, bl.c}
	rg := buildRouteGraph(nodes)
	ids := rg.Path(bl.a, bl.c)
	// node, segment, bridge node, segment, node
	require.Len(t, ids, 5)
	assert.Equal(t, int64(b.ID), ids[2])
	assert.True(t, bridgesBetween(b, ids[1], ids[3]))

	back := rg.Path(bl.c, bl.a)
	assert.Equal(t, []int64{ids[4], ids[3], ids[2], ids[1], ids[0]}, back)
	assert.Contains(t, rg.ShowPath(ids), "segment-")

	// the far end is on-link through the bridge, so no host route is added
	require.NoError(t, PopulateRoutingTables(nodes))
	rt := bl.a.Ipv4.lookup(bl.addrC)
	require.NotNil(t, rt)
	assert.Equal(t, 24, rt.Dst.Bits())
}
