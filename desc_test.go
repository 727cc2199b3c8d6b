package wifisim

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDescribeTopology(t *testing.T) {
	sim, nodes, _, _ := buildLan(t, 2)
	td := DescribeTopology("lan", nodes.Nodes, sim.Now())

	require.Len(t, td.Nodes, 2)
	require.Len(t, td.Channels, 1)
	assert.Equal(t, "csma", td.Channels[0].ChanType)
	assert.Len(t, td.Channels[0].Devices, 2)
	assert.Equal(t, "100000000bps", td.Channels[0].Attributes["DataRate"])

	nd, ok := td.NodeNamed(nodes.Get(1).Name)
	require.True(t, ok)
	assert.Equal(t, []string{"10.1.1.2/24"}, nd.Addresses)
	assert.Equal(t, "csma", nd.Devices[0].DevType)
	_, ok = td.NodeNamed("nowhere")
	assert.False(t, ok)

	for _, name := range []string{"topo.yaml", "topo.json"} {
		filename := filepath.Join(t.TempDir(), name)
		require.NoError(t, td.WriteToFile(filename))
		back, err := ReadTopoDesc(filename, UseYAML(filename), nil)
		require.NoError(t, err)
		assert.Equal(t, td, back)
	}
}

func TestTraceManager(t *testing.T) {
	idle := CreateTraceManager("idle", false)
	idle.AddDevTrace(0, 1, 0, "dev", "tx", NewPacket(10, 0), "")
	assert.Zero(t, idle.NumRecords())
	assert.NoError(t, idle.WriteToFile("never-written.yaml"))

	var none *TraceManager
	assert.False(t, none.Active())

	tm := CreateTraceManager("lan", true)
	tm.AddName(1, "node-1", "node")
	pckt := NewPacket(100, 0)
	pckt.IP = &Ipv4Header{Proto: IpProtoUdp}
	pckt.Udp = &UdpHeader{DstPort: 9}
	tm.AddDevTrace(0.25, 1, 0, "node-1-csma-0", "rx", pckt, "")
	require.Equal(t, 1, tm.NumRecords())
	assert.Equal(t, "0.25", tm.Traces[1][0].TraceTime)
	assert.Contains(t, tm.Traces[1][0].TraceStr, "protocol: udp")
	assert.Contains(t, tm.Traces[1][0].TraceStr, "bytes: 128")

	assert.Panics(t, func() { tm.AddName(1, "someone-else", "node") })

	filename := filepath.Join(t.TempDir(), "trace.json")
	require.NoError(t, tm.WriteToFile(filename))
}

func TestLanTraceRecordsDeviceEvents(t *testing.T) {
	sim := freshRun()
	tm := CreateTraceManager("traced", true)
	nodes := NodeContainer{}
	nodes.Create(2)
	csma := CreateCsmaHelper()
	csma.SetTraceManager(tm)
	devs, _ := csma.Install(nodes.Nodes...)
	stack := InternetStackHelper{}
	stack.Install(nodes.Nodes...)
	ip := Ipv4AddressHelper{}
	require.NoError(t, ip.SetBase("10.1.1.0", "255.255.255.0"))
	_, err := ip.Assign(devs)
	require.NoError(t, err)

	ps := CreatePacketSocket(nodes.Get(0))
	require.NoError(t, ps.Connect(PacketSocketAddress{IfIndex: 0, Physical: devs.Get(1).Address(), Protocol: 0x807}))
	assert.True(t, ps.Send(sim.EvtMgr, NewPacket(50, 0)))
	sim.Stop(1.0)
	require.NoError(t, sim.Run())

	// enqueue and tx on the sender, rx on the receiver
	assert.Equal(t, 3, tm.NumRecords())
	assert.Len(t, tm.Traces[nodes.Get(1).ID], 1)
	assert.Equal(t, "node", tm.NameByID[nodes.Get(0).ID].Type)
}

func TestAddressHelper(t *testing.T) {
	ah := Ipv4AddressHelper{}
	assert.Error(t, ah.SetBase("10.0.0.0", "255.0.255.0"))
	assert.Error(t, ah.SetBase("::1", "255.255.255.0"))
	_, err := ah.nextAddress()
	assert.Error(t, err)

	require.NoError(t, ah.SetBase("192.168.0.0", "255.255.255.252"))
	a, err := ah.nextAddress()
	require.NoError(t, err)
	assert.Equal(t, "192.168.0.1", a.String())
	b, err := ah.nextAddress()
	require.NoError(t, err)
	assert.Equal(t, "192.168.0.2", b.String())
	_, err = ah.nextAddress()
	assert.Error(t, err)
}
