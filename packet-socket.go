package wifisim

// packet-socket.go holds sockets that send and receive raw frames on a device,
// bypassing the IP layer

import (
	"fmt"

	"github.com/iti/evt/evtm"
)

// PacketSocketAddress selects a device (by interface index, -1 for any), a peer
// hardware address and a protocol number
type PacketSocketAddress struct {
	IfIndex  int
	Physical Mac48
	Protocol uint16
}

func (psa PacketSocketAddress) String() string {
	return fmt.Sprintf("%d/%s/0x%04x", psa.IfIndex, psa.Physical, psa.Protocol)
}

// PacketRecvFunc is called with each frame a packet socket receives
type PacketRecvFunc func(evtMgr *evtm.EventManager, sock *PacketSocket, pckt *Packet, from PacketSocketAddress)

// PacketSocket is bound to a device and protocol of its node
type PacketSocket struct {
	node      *Node
	local     PacketSocketAddress
	remote    PacketSocketAddress
	bound     bool
	connected bool
	rcv       PacketRecvFunc

	TxPackets int
	RxPackets int
	RxBytes   int
}

func CreatePacketSocket(node *Node) *PacketSocket {
	return &PacketSocket{node: node, local: PacketSocketAddress{IfIndex: -1}}
}

// Bind registers the socket to receive frames of local.Protocol (0 for every protocol)
// arriving on device local.IfIndex (-1 for every device)
func (ps *PacketSocket) Bind(local PacketSocketAddress) error {
	if local.IfIndex >= len(ps.node.Devices) {
		return fmt.Errorf("%s has no device %d", ps.node.Name, local.IfIndex)
	}
	if ps.bound {
		return fmt.Errorf("packet socket already bound")
	}
	ps.local = local
	ps.bound = true
	ps.node.sockets.packet = append(ps.node.sockets.packet, ps)
	return nil
}

// Connect sets the device, destination and protocol frames are sent with
func (ps *PacketSocket) Connect(remote PacketSocketAddress) error {
	if remote.IfIndex < 0 || remote.IfIndex >= len(ps.node.Devices) {
		return fmt.Errorf("%s has no device %d", ps.node.Name, remote.IfIndex)
	}
	if !ps.bound {
		if err := ps.Bind(PacketSocketAddress{IfIndex: remote.IfIndex, Protocol: remote.Protocol}); err != nil {
			return err
		}
	}
	ps.remote = remote
	ps.connected = true
	return nil
}

func (ps *PacketSocket) SetRecvCallback(rcv PacketRecvFunc) {
	ps.rcv = rcv
}

// Send passes the frame to the connected device
func (ps *PacketSocket) Send(evtMgr *evtm.EventManager, pckt *Packet) bool {
	if !ps.connected {
		return false
	}
	dev := ps.node.GetDevice(ps.remote.IfIndex)
	ps.TxPackets += 1
	return dev.Send(evtMgr, pckt, ps.remote.Physical, ps.remote.Protocol)
}

func (ps *PacketSocket) receive(evtMgr *evtm.EventManager, dev NetDevice, pckt *Packet, protocol uint16, src, dst Mac48) {
	if ps.local.Protocol != 0 && ps.local.Protocol != protocol {
		return
	}
	if ps.local.IfIndex >= 0 && ps.local.IfIndex != dev.IfIndex() {
		return
	}
	ps.RxPackets += 1
	ps.RxBytes += pckt.Payload
	if ps.rcv != nil {
		ps.rcv(evtMgr, ps, pckt, PacketSocketAddress{IfIndex: dev.IfIndex(), Physical: src, Protocol: protocol})
	}
}

// Close stops delivery to the socket
func (ps *PacketSocket) Close() {
	st := ps.node.sockets
	for idx, s := range st.packet {
		if s == ps {
			st.packet = append(st.packet[:idx], st.packet[idx+1:]...)
			break
		}
	}
	ps.bound = false
	ps.connected = false
}
