package wifisim

// udp.go holds the per-node table that hands arriving transport packets to sockets,
// and the UDP socket

import (
	"fmt"
	"net/netip"

	"github.com/iti/evt/evtm"
)

// first port handed out to sockets that bind without choosing one
const ephemeralPortBase = 49153

type tcpEndpoints struct {
	localPort uint16
	remote    netip.AddrPort
}

// socketTable demultiplexes arriving packets to the sockets of one node
type socketTable struct {
	udp       map[uint16]*UdpSocket
	tcpListen map[uint16]*TcpSocket
	tcpConns  map[tcpEndpoints]*TcpSocket
	packet    []*PacketSocket
	nextPort  uint16
}

func createSocketTable() *socketTable {
	st := new(socketTable)
	st.udp = make(map[uint16]*UdpSocket)
	st.tcpListen = make(map[uint16]*TcpSocket)
	st.tcpConns = make(map[tcpEndpoints]*TcpSocket)
	st.packet = []*PacketSocket{}
	st.nextPort = ephemeralPortBase
	return st
}

// portInUse reports whether any socket is bound to port
func (st *socketTable) portInUse(port uint16) bool {
	if _, present := st.udp[port]; present {
		return true
	}
	if _, present := st.tcpListen[port]; present {
		return true
	}
	for key := range st.tcpConns {
		if key.localPort == port {
			return true
		}
	}
	return false
}

// allocPort returns an unused ephemeral port
func (st *socketTable) allocPort() uint16 {
	for {
		port := st.nextPort
		st.nextPort += 1
		if st.nextPort == 0 {
			st.nextPort = ephemeralPortBase
		}
		if !st.portInUse(port) {
			return port
		}
	}
}

func (st *socketTable) deliverUdp(evtMgr *evtm.EventManager, pckt *Packet) {
	if pckt.Udp == nil {
		return
	}
	sock, present := st.udp[pckt.Udp.DstPort]
	if !present {
		IPLog.Debugf("udp packet %d to closed port %d", pckt.UID, pckt.Udp.DstPort)
		return
	}
	sock.receive(evtMgr, pckt)
}

func (st *socketTable) deliverTcp(evtMgr *evtm.EventManager, node *Node, pckt *Packet) {
	if pckt.Tcp == nil {
		return
	}
	remote := netip.AddrPortFrom(pckt.IP.Src, pckt.Tcp.SrcPort)
	if sock, present := st.tcpConns[tcpEndpoints{localPort: pckt.Tcp.DstPort, remote: remote}]; present {
		sock.receive(evtMgr, pckt)
		return
	}
	if listener, present := st.tcpListen[pckt.Tcp.DstPort]; present {
		listener.receive(evtMgr, pckt)
		return
	}
	TcpLog.Debugf("%s: tcp segment to closed port %d", node.Name, pckt.Tcp.DstPort)
}

// deliverPacket offers a frame to the node's packet sockets
func (st *socketTable) deliverPacket(evtMgr *evtm.EventManager, dev NetDevice, pckt *Packet, protocol uint16, src, dst Mac48) {
	for _, ps := range st.packet {
		ps.receive(evtMgr, dev, pckt, protocol, src, dst)
	}
}

// UdpRecvFunc is called with each datagram a UDP socket receives
type UdpRecvFunc func(evtMgr *evtm.EventManager, sock *UdpSocket, pckt *Packet, from netip.AddrPort)

// UdpSocket sends and receives datagrams
type UdpSocket struct {
	node      *Node
	localPort uint16
	remote    netip.AddrPort
	bound     bool
	rcv       UdpRecvFunc

	TxPackets int
	RxPackets int
	RxBytes   int
}

// CreateUdpSocket is a constructor; the node must have an IP layer
func CreateUdpSocket(node *Node) (*UdpSocket, error) {
	if node.Ipv4 == nil {
		return nil, fmt.Errorf("%s has no internet stack", node.Name)
	}
	return &UdpSocket{node: node}, nil
}

// Bind attaches the socket to port, or to an ephemeral port when port is 0
func (us *UdpSocket) Bind(port uint16) error {
	if us.bound {
		return fmt.Errorf("udp socket already bound to %d", us.localPort)
	}
	st := us.node.sockets
	if port == 0 {
		port = st.allocPort()
	} else if _, present := st.udp[port]; present {
		return fmt.Errorf("%s: udp port %d in use", us.node.Name, port)
	}
	us.localPort = port
	us.bound = true
	st.udp[port] = us
	return nil
}

// Connect sets the default destination, binding first if needed
func (us *UdpSocket) Connect(remote netip.AddrPort) error {
	if !us.bound {
		if err := us.Bind(0); err != nil {
			return err
		}
	}
	us.remote = remote
	return nil
}

func (us *UdpSocket) SetRecvCallback(rcv UdpRecvFunc) {
	us.rcv = rcv
}

// Send sends to the connected destination
func (us *UdpSocket) Send(evtMgr *evtm.EventManager, pckt *Packet) bool {
	if !us.remote.IsValid() {
		return false
	}
	return us.SendTo(evtMgr, pckt, us.remote)
}

// SendTo adds the UDP header and passes the datagram to the IP layer
func (us *UdpSocket) SendTo(evtMgr *evtm.EventManager, pckt *Packet, to netip.AddrPort) bool {
	if !us.bound {
		if err := us.Bind(0); err != nil {
			return false
		}
	}
	src, err := us.node.Ipv4.SourceFor(to.Addr())
	if err != nil {
		IPLog.Debug(err)
		return false
	}
	pckt.Udp = &UdpHeader{SrcPort: us.localPort, DstPort: to.Port()}
	us.TxPackets += 1
	return us.node.Ipv4.Send(evtMgr, pckt, src, to.Addr(), IpProtoUdp)
}

func (us *UdpSocket) receive(evtMgr *evtm.EventManager, pckt *Packet) {
	us.RxPackets += 1
	us.RxBytes += pckt.Payload
	if us.rcv != nil {
		us.rcv(evtMgr, us, pckt, netip.AddrPortFrom(pckt.IP.Src, pckt.Udp.SrcPort))
	}
}

// Close releases the port
func (us *UdpSocket) Close() {
	if us.bound {
		delete(us.node.sockets.udp, us.localPort)
		us.bound = false
	}
}
