package wifisim

// packet-sink.go holds the application that receives and counts traffic

import (
	"fmt"
	"net/netip"

	"github.com/iti/evt/evtm"
)

// PacketSink accepts traffic on a TCP or UDP port, or on a packet socket, and counts the bytes
type PacketSink struct {
	Name        string
	node        *Node
	Protocol    string
	Local       netip.AddrPort
	PacketLocal PacketSocketAddress

	running  bool
	udp      *UdpSocket
	tcp      *TcpSocket
	pkt      *PacketSocket
	accepted []*TcpSocket
	rxHook   func(evtMgr *evtm.EventManager, nbytes int)

	TotalRx   int
	RxPackets int
}

// CreatePacketSink is a constructor.  local is a netip.AddrPort for TCP and UDP
// (an invalid address accepts on any local address) and a PacketSocketAddress for
// packet sockets
func CreatePacketSink(node *Node, protocol string, local any) (*PacketSink, error) {
	factory, err := socketFactory(protocol)
	if err != nil {
		return nil, err
	}
	sink := &PacketSink{node: node, Protocol: factory}
	sink.Name = fmt.Sprintf("%s-sink-%d", node.Name, nxtID())
	switch addr := local.(type) {
	case netip.AddrPort:
		if factory == PacketSocketFactory {
			return nil, fmt.Errorf("%s: packet sockets need a PacketSocketAddress", sink.Name)
		}
		sink.Local = addr
	case PacketSocketAddress:
		if factory != PacketSocketFactory {
			return nil, fmt.Errorf("%s: %s needs an address and port", sink.Name, factory)
		}
		sink.PacketLocal = addr
	default:
		return nil, fmt.Errorf("%s: local address of type %T not recognized", sink.Name, local)
	}
	return sink, nil
}

func (sink *PacketSink) AppName() string { return sink.Name }
func (sink *PacketSink) AppNode() *Node  { return sink.node }

// GetTotalRx returns the number of bytes received so far
func (sink *PacketSink) GetTotalRx() int {
	return sink.TotalRx
}

// SetRxCallback is called with the size of everything the sink receives
func (sink *PacketSink) SetRxCallback(hook func(evtMgr *evtm.EventManager, nbytes int)) {
	sink.rxHook = hook
}

func (sink *PacketSink) received(evtMgr *evtm.EventManager, nbytes int) {
	sink.TotalRx += nbytes
	sink.RxPackets += 1
	if sink.rxHook != nil {
		sink.rxHook(evtMgr, nbytes)
	}
}

func (sink *PacketSink) startApplication(evtMgr *evtm.EventManager) {
	if sink.running {
		return
	}
	if err := sink.openSocket(); err != nil {
		AppLog.Errorf("%s: %v", sink.Name, err)
		return
	}
	sink.running = true
}

func (sink *PacketSink) openSocket() error {
	switch sink.Protocol {
	case UdpSocketFactory:
		sock, err := CreateUdpSocket(sink.node)
		if err != nil {
			return err
		}
		if err := sock.Bind(sink.Local.Port()); err != nil {
			return err
		}
		sock.SetRecvCallback(func(evtMgr *evtm.EventManager, sock *UdpSocket, pckt *Packet, from netip.AddrPort) {
			sink.received(evtMgr, pckt.Payload)
		})
		sink.udp = sock
	case TcpSocketFactory:
		sock, err := CreateTcpSocket(sink.node)
		if err != nil {
			return err
		}
		if err := sock.Bind(sink.Local.Port()); err != nil {
			return err
		}
		if err := sock.Listen(); err != nil {
			return err
		}
		sock.SetAcceptCallback(sink.accept)
		sink.tcp = sock
	case PacketSocketFactory:
		sock := CreatePacketSocket(sink.node)
		if err := sock.Bind(sink.PacketLocal); err != nil {
			return err
		}
		sock.SetRecvCallback(func(evtMgr *evtm.EventManager, sock *PacketSocket, pckt *Packet, from PacketSocketAddress) {
			sink.received(evtMgr, pckt.Payload)
		})
		sink.pkt = sock
	}
	return nil
}

// accept takes a connection handed over by the listener
func (sink *PacketSink) accept(evtMgr *evtm.EventManager, conn *TcpSocket) {
	AppLog.Debugf("%s: accepted %s", sink.Name, conn.RemoteAddr())
	sink.accepted = append(sink.accepted, conn)
	conn.SetRecvCallback(func(evtMgr *evtm.EventManager, sock *TcpSocket, nbytes int) {
		sink.received(evtMgr, nbytes)
	})
	conn.SetCloseCallback(func(evtMgr *evtm.EventManager, sock *TcpSocket) {
		sock.Close(evtMgr)
	})
}

func (sink *PacketSink) stopApplication(evtMgr *evtm.EventManager) {
	if !sink.running {
		return
	}
	sink.running = false
	for _, conn := range sink.accepted {
		conn.Close(evtMgr)
	}
	sink.accepted = nil
	switch {
	case sink.tcp != nil:
		sink.tcp.Close(evtMgr)
	case sink.udp != nil:
		sink.udp.Close()
	case sink.pkt != nil:
		sink.pkt.Close()
	}
	AppLog.Infof("%s: received %d bytes in %d deliveries", sink.Name, sink.TotalRx, sink.RxPackets)
}
