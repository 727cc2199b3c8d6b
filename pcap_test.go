package wifisim

import (
	"io"
	"net/netip"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCsmaPcap(t *testing.T) {
	sim, nodes, devs, ifaces := buildLan(t, 2)
	prefix := filepath.Join(t.TempDir(), "lan")
	csma := CreateCsmaHelper()
	require.NoError(t, csma.EnablePcap(prefix, devs))

	onoff, err := CreateOnOffApplication(nodes.Get(0), "ns3::UdpSocketFactory", netip.AddrPortFrom(ifaces.GetAddress(1), 1025))
	require.NoError(t, err)
	onoff.SetConstantRate(DataRate(500e3), 0)
	apps := ApplicationContainer{}
	apps.Add(onoff)
	apps.Start(sim.EvtMgr, 0.0)
	apps.Stop(sim.EvtMgr, 0.1)
	sim.Stop(0.2)
	require.NoError(t, sim.Run())
	require.NoError(t, ClosePcaps())

	f, err := os.Open(prefix + "-1-0.pcap")
	require.NoError(t, err)
	defer f.Close()
	r, err := pcapgo.NewReader(f)
	require.NoError(t, err)
	assert.Equal(t, layers.LinkTypeEthernet, r.LinkType())

	count := 0
	for {
		data, _, err := r.ReadPacketData()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		count += 1

		pckt := gopacket.NewPacket(data, layers.LayerTypeEthernet, gopacket.Default)
		udp, ok := pckt.Layer(layers.LayerTypeUDP).(*layers.UDP)
		require.True(t, ok)
		assert.Equal(t, layers.UDPPort(1025), udp.DstPort)
		assert.Len(t, udp.Payload, 512)
		ip := pckt.Layer(layers.LayerTypeIPv4).(*layers.IPv4)
		assert.Equal(t, ifaces.GetAddress(0).String(), ip.SrcIP.String())
	}
	assert.Equal(t, onoff.TxPackets, count)
}

func TestPcapNeedsKnownDevice(t *testing.T) {
	freshRun()
	node := CreateNode()
	left, _ := CreateCsmaHelper().Install(node)
	right, _ := CreateCsmaHelper().Install(node)
	ports := NetDeviceContainer{}
	ports.Add(left.Get(0), right.Get(0))
	br, err := (&BridgeHelper{}).Install(node, ports)
	require.NoError(t, err)
	assert.Error(t, EnablePcap(filepath.Join(t.TempDir(), "br"), br))
}

func TestRadiotapHeader(t *testing.T) {
	mode, err := LookupWifiMode("HtMcs7")
	require.NoError(t, err)
	hdr := radiotapHeader(mode, -40, -95)

	pckt := gopacket.NewPacket(append([]byte(hdr), make([]byte, 24)...), layers.LayerTypeRadioTap, gopacket.Default)
	rt, ok := pckt.Layer(layers.LayerTypeRadioTap).(*layers.RadioTap)
	require.True(t, ok)
	assert.Equal(t, int8(-40), int8(rt.DBMAntennaSignal))
	assert.Equal(t, int8(-95), int8(rt.DBMAntennaNoise))
}
