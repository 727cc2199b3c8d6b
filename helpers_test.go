package wifisim

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// freshRun clears the package state a previous test left behind
func freshRun() *Simulator {
	ResetNodes()
	ResetInternet()
	ResetDefaults()
	ClosePcaps()
	return NewSimulator()
}

// buildLan puts n nodes with IP addresses in 10.1.1.0/24 on one 100Mbps CSMA bus
func buildLan(t *testing.T, n int) (*Simulator, NodeContainer, NetDeviceContainer, Ipv4InterfaceContainer) {
	sim := freshRun()
	nodes := NodeContainer{}
	nodes.Create(n)
	csma := CreateCsmaHelper()
	require.NoError(t, csma.SetChannelAttribute("DataRate", "100Mbps"))
	require.NoError(t, csma.SetChannelAttribute("Delay", "6560ns"))
	devs, _ := csma.Install(nodes.Nodes...)
	stack := InternetStackHelper{}
	stack.Install(nodes.Nodes...)
	ip := Ipv4AddressHelper{}
	require.NoError(t, ip.SetBase("10.1.1.0", "255.255.255.0"))
	ifaces, err := ip.Assign(devs)
	require.NoError(t, err)
	return sim, nodes, devs, ifaces
}
