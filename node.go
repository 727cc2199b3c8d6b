package wifisim

// node.go defines nodes, the network device interface every device type satisfies,
// hardware addresses, and the packet representation carried between layers

import (
	"fmt"
	"net/netip"

	"github.com/iti/evt/evtm"
	"github.com/iti/rngstream"
)

// Mac48 is a 48-bit hardware address
type Mac48 [6]byte

// BroadcastMac is ff:ff:ff:ff:ff:ff
var BroadcastMac = Mac48{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}

// macCounter is the last allocated address, as an integer
var macCounter uint64 = 0

// allocateMac hands out 00:00:00:00:00:01, 00:00:00:00:00:02, ...
func allocateMac() Mac48 {
	macCounter += 1
	var m Mac48
	v := macCounter
	for idx := 5; idx >= 0; idx-- {
		m[idx] = byte(v & 0xff)
		v >>= 8
	}
	return m
}

func (m Mac48) String() string {
	return fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x", m[0], m[1], m[2], m[3], m[4], m[5])
}

func (m Mac48) IsBroadcast() bool {
	return m == BroadcastMac
}

// IsGroup reports whether the individual/group bit is set
func (m Mac48) IsGroup() bool {
	return m[0]&0x01 == 0x01
}

// ethertypes used by the stack
const (
	ProtoIPv4 uint16 = 0x0800
	ProtoArp  uint16 = 0x0806
)

// header sizes, in bytes
const (
	ipv4HdrLen     = 20
	udpHdrLen      = 8
	tcpHdrLen      = 20
	llcSnapLen     = 8
	ethHdrLen      = 14
	ethFcsLen      = 4
	ethMinFrameLen = 64
)

// Ipv4Header carries the fields of the IP header the simulation uses
type Ipv4Header struct {
	Src   netip.Addr
	Dst   netip.Addr
	Proto uint8
	TTL   uint8
}

// UdpHeader carries source and destination ports
type UdpHeader struct {
	SrcPort uint16
	DstPort uint16
}

// TCP flag bits
const (
	TcpFin uint8 = 0x01
	TcpSyn uint8 = 0x02
	TcpRst uint8 = 0x04
	TcpPsh uint8 = 0x08
	TcpAck uint8 = 0x10
)

// TcpHeader carries the fields of the TCP header the simulation uses
type TcpHeader struct {
	SrcPort uint16
	DstPort uint16
	Seq     uint32
	Ack     uint32
	Flags   uint8
	Window  uint32
}

// Packet is a unit of data moving through the stack.  Payload counts application
// bytes; the headers present determine the size at each layer
type Packet struct {
	UID      int
	Payload  int
	Protocol uint16
	IP       *Ipv4Header
	Udp      *UdpHeader
	Tcp      *TcpHeader
	Created  float64
}

// pcktCounter numbers packets as they are created
var pcktCounter int = 0

// NewPacket is a constructor for a packet carrying payload application bytes
func NewPacket(payload int, created float64) *Packet {
	pcktCounter += 1
	return &Packet{UID: pcktCounter, Payload: payload, Created: created}
}

// Size returns the number of bytes handed to a device: payload plus L3/L4 headers
func (p *Packet) Size() int {
	size := p.Payload
	if p.IP != nil {
		size += ipv4HdrLen
	}
	if p.Udp != nil {
		size += udpHdrLen
	}
	if p.Tcp != nil {
		size += tcpHdrLen
	}
	return size
}

// Copy makes a copy whose headers can be modified independently
func (p *Packet) Copy() *Packet {
	cp := *p
	if p.IP != nil {
		ip := *p.IP
		cp.IP = &ip
	}
	if p.Udp != nil {
		udp := *p.Udp
		cp.Udp = &udp
	}
	if p.Tcp != nil {
		tcp := *p.Tcp
		cp.Tcp = &tcp
	}
	return &cp
}

// ReceiveFunc is called by a device when a frame addressed to it (or to a group) arrives
type ReceiveFunc func(evtMgr *evtm.EventManager, dev NetDevice, pckt *Packet, protocol uint16, src, dst Mac48)

// NetDevice is satisfied by every device type a node may hold
type NetDevice interface {
	DevName() string
	Address() Mac48
	Node() *Node
	IfIndex() int
	setIfIndex(int)
	Mtu() int
	// Send transmits pckt to dst, reporting whether it was accepted for transmission
	Send(evtMgr *evtm.EventManager, pckt *Packet, dst Mac48, protocol uint16) bool
	// SendFrom is Send with a source address other than the device's own (used by bridges)
	SendFrom(evtMgr *evtm.EventManager, pckt *Packet, src, dst Mac48, protocol uint16) bool
	SupportsSendFrom() bool
	SetReceiveCallback(rcv ReceiveFunc)
	// SetPromiscReceiveCallback is given every frame the device receives, whoever it is addressed to
	SetPromiscReceiveCallback(rcv ReceiveFunc)
	DevType() string
}

// Node is a host in the simulated network
type Node struct {
	ID       int
	Name     string
	Devices  []NetDevice
	Ipv4     *Ipv4
	Mobility MobilityModel
	Rng      *rngstream.RngStream
	sockets  *socketTable
}

// nodeList holds every node created, indexed by position in creation order
var nodeList []*Node

// CreateNode is a constructor
func CreateNode() *Node {
	node := new(Node)
	node.ID = len(nodeList)
	node.Name = fmt.Sprintf("node-%d", node.ID)
	node.Devices = make([]NetDevice, 0)
	node.Rng = rngstream.New(node.Name)
	node.sockets = createSocketTable()
	nodeList = append(nodeList, node)
	return node
}

// ResetNodes forgets all nodes, so that node ids and hardware addresses restart for a new scenario
func ResetNodes() {
	nodeList = nil
	macCounter = 0
}

// AddDevice attaches dev to the node and assigns its interface index
func (node *Node) AddDevice(dev NetDevice) int {
	idx := len(node.Devices)
	dev.setIfIndex(idx)
	node.Devices = append(node.Devices, dev)
	return idx
}

// GetDevice returns the device with interface index idx
func (node *Node) GetDevice(idx int) NetDevice {
	return node.Devices[idx]
}

// Position returns the node's position, the origin when no mobility model is installed
func (node *Node) Position(now float64) Vector {
	if node.Mobility == nil {
		return Vector{}
	}
	return node.Mobility.Position(now)
}

// receive is the receive handler of the node's devices: packet sockets see every
// frame, and IPv4 frames go on to the IP layer
func (node *Node) receive(evtMgr *evtm.EventManager, dev NetDevice, pckt *Packet, protocol uint16, src, dst Mac48) {
	node.sockets.deliverPacket(evtMgr, dev, pckt, protocol, src, dst)
	if protocol == ProtoIPv4 && node.Ipv4 != nil {
		node.Ipv4.receive(evtMgr, pckt)
	}
}

// NodeContainer holds an ordered list of nodes
type NodeContainer struct {
	Nodes []*Node
}

// Create adds n new nodes to the container
func (nc *NodeContainer) Create(n int) {
	for idx := 0; idx < n; idx++ {
		nc.Nodes = append(nc.Nodes, CreateNode())
	}
}

func (nc *NodeContainer) Add(nodes ...*Node) {
	nc.Nodes = append(nc.Nodes, nodes...)
}

func (nc *NodeContainer) Get(idx int) *Node {
	return nc.Nodes[idx]
}

func (nc *NodeContainer) N() int {
	return len(nc.Nodes)
}

// NetDeviceContainer holds an ordered list of devices
type NetDeviceContainer struct {
	Devices []NetDevice
}

func (dc *NetDeviceContainer) Add(devs ...NetDevice) {
	dc.Devices = append(dc.Devices, devs...)
}

func (dc *NetDeviceContainer) Get(idx int) NetDevice {
	return dc.Devices[idx]
}

func (dc *NetDeviceContainer) N() int {
	return len(dc.Devices)
}

// deviceBase holds the fields every device type shares
type deviceBase struct {
	name      string
	node      *Node
	ifIndex   int
	address   Mac48
	mtu       int
	rcv       ReceiveFunc
	promisc   ReceiveFunc
	pcapSinks []*PcapWriter
	traceMgr  *TraceManager
}

func (db *deviceBase) DevName() string { return db.name }
func (db *deviceBase) Address() Mac48  { return db.address }
func (db *deviceBase) Node() *Node     { return db.node }
func (db *deviceBase) IfIndex() int    { return db.ifIndex }
func (db *deviceBase) setIfIndex(idx int) {
	db.ifIndex = idx
}
func (db *deviceBase) Mtu() int { return db.mtu }

func (db *deviceBase) SetReceiveCallback(rcv ReceiveFunc) {
	db.rcv = rcv
}

func (db *deviceBase) SetPromiscReceiveCallback(rcv ReceiveFunc) {
	db.promisc = rcv
}

// forwardUp hands a received frame to the promiscuous handler (when a bridge owns the device)
// or to the ordinary handler when the frame is addressed to this device or a group
func (db *deviceBase) forwardUp(evtMgr *evtm.EventManager, dev NetDevice, pckt *Packet, protocol uint16, src, dst Mac48) {
	if db.promisc != nil {
		db.promisc(evtMgr, dev, pckt, protocol, src, dst)
		return
	}
	if db.rcv == nil {
		return
	}
	if dst == db.address || dst.IsGroup() {
		db.rcv(evtMgr, dev, pckt, protocol, src, dst)
	}
}

// addTrace records a device event when a trace manager is attached
func (db *deviceBase) addTrace(now float64, op string, pckt *Packet, detail string) {
	if db.traceMgr == nil || !db.traceMgr.Active() {
		return
	}
	db.traceMgr.AddDevTrace(now, db.node.ID, db.ifIndex, db.name, op, pckt, detail)
}
