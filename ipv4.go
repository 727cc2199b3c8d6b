package wifisim

// ipv4.go holds the IPv4 layer of a node: its interfaces and addresses, its route
// table, and the static neighbour cache that maps addresses to hardware addresses

import (
	"fmt"
	"net/netip"

	"github.com/iti/evt/evtm"
)

// IP protocol numbers
const (
	IpProtoTcp uint8 = 6
	IpProtoUdp uint8 = 17
)

const defaultTTL = 64

// Ipv4Interface is an address assigned to one of the node's devices
type Ipv4Interface struct {
	Index  int
	Dev    NetDevice
	Addr   netip.Addr
	Prefix netip.Prefix
}

// broadcast is the directed broadcast address of the interface's subnet
func (iface *Ipv4Interface) broadcast() netip.Addr {
	bytes := iface.Prefix.Masked().Addr().As4()
	bits := iface.Prefix.Bits()
	for idx := 0; idx < 4; idx++ {
		for b := 0; b < 8; b++ {
			if idx*8+b >= bits {
				bytes[idx] |= 0x80 >> b
			}
		}
	}
	return netip.AddrFrom4(bytes)
}

// ipv4Route sends traffic for Dst out of Iface, to Gateway when it is valid and
// directly to the destination otherwise
type ipv4Route struct {
	Dst     netip.Prefix
	Iface   *Ipv4Interface
	Gateway netip.Addr
}

// Ipv4 is the IP layer of a node
type Ipv4 struct {
	node       *Node
	Interfaces []*Ipv4Interface
	routes     []*ipv4Route
	Forwarding bool

	TxPackets int
	RxPackets int
	Forwarded int
	Drops     int
}

func createIpv4(node *Node) *Ipv4 {
	ip := new(Ipv4)
	ip.node = node
	ip.Interfaces = []*Ipv4Interface{}
	ip.routes = []*ipv4Route{}
	return ip
}

// neighbours is the static neighbour cache shared by all nodes, filled as addresses are assigned
var neighbours map[netip.Addr]Mac48 = make(map[netip.Addr]Mac48)

// ResetInternet forgets every neighbour entry
func ResetInternet() {
	neighbours = make(map[netip.Addr]Mac48)
}

// addInterface assigns addr/prefix to dev and adds the connected route
func (ip *Ipv4) addInterface(dev NetDevice, prefix netip.Prefix) *Ipv4Interface {
	iface := &Ipv4Interface{Index: len(ip.Interfaces), Dev: dev, Addr: prefix.Addr(), Prefix: prefix.Masked()}
	ip.Interfaces = append(ip.Interfaces, iface)
	ip.routes = append(ip.routes, &ipv4Route{Dst: iface.Prefix, Iface: iface})
	neighbours[iface.Addr] = dev.Address()
	dev.SetReceiveCallback(ip.node.receive)
	return iface
}

// addHostRoute installs a route to a single address, replacing an earlier one to the same address
func (ip *Ipv4) addHostRoute(dst netip.Addr, iface *Ipv4Interface, gateway netip.Addr) {
	pfx := netip.PrefixFrom(dst, 32)
	for _, rt := range ip.routes {
		if rt.Dst == pfx {
			rt.Iface = iface
			rt.Gateway = gateway
			return
		}
	}
	ip.routes = append(ip.routes, &ipv4Route{Dst: pfx, Iface: iface, Gateway: gateway})
}

// lookup returns the longest-prefix route to dst, nil when there is none
func (ip *Ipv4) lookup(dst netip.Addr) *ipv4Route {
	var best *ipv4Route
	for _, rt := range ip.routes {
		if !rt.Dst.Contains(dst) {
			continue
		}
		if best == nil || rt.Dst.Bits() > best.Dst.Bits() {
			best = rt
		}
	}
	return best
}

// IsLocal reports whether addr is one of the node's addresses
func (ip *Ipv4) IsLocal(addr netip.Addr) bool {
	for _, iface := range ip.Interfaces {
		if iface.Addr == addr {
			return true
		}
	}
	return false
}

// isBroadcast reports whether addr is the limited broadcast or the directed broadcast of an interface
func (ip *Ipv4) isBroadcast(addr netip.Addr) (*Ipv4Interface, bool) {
	for _, iface := range ip.Interfaces {
		if addr == iface.broadcast() {
			return iface, true
		}
	}
	if addr == netip.AddrFrom4([4]byte{255, 255, 255, 255}) && len(ip.Interfaces) > 0 {
		return ip.Interfaces[0], true
	}
	return nil, false
}

// Address returns the address of interface idx
func (ip *Ipv4) Address(idx int) netip.Addr {
	return ip.Interfaces[idx].Addr
}

// SourceFor picks the source address used to reach dst
func (ip *Ipv4) SourceFor(dst netip.Addr) (netip.Addr, error) {
	if iface, bcast := ip.isBroadcast(dst); bcast {
		return iface.Addr, nil
	}
	rt := ip.lookup(dst)
	if rt == nil {
		return netip.Addr{}, fmt.Errorf("%s: no route to %s", ip.node.Name, dst)
	}
	return rt.Iface.Addr, nil
}

// Send adds the IP header and hands the packet to the device the route selects.
// It returns false if the packet could not be sent
func (ip *Ipv4) Send(evtMgr *evtm.EventManager, pckt *Packet, src, dst netip.Addr, proto uint8) bool {
	pckt.IP = &Ipv4Header{Src: src, Dst: dst, Proto: proto, TTL: defaultTTL}
	ip.TxPackets += 1

	if ip.IsLocal(dst) {
		scheduleIn(evtMgr, 0.0, ip, pckt, loopbackHdlr)
		return true
	}
	if iface, bcast := ip.isBroadcast(dst); bcast {
		return iface.Dev.Send(evtMgr, pckt, BroadcastMac, ProtoIPv4)
	}
	return ip.sendOnRoute(evtMgr, pckt)
}

// sendOnRoute resolves the next hop of a packet whose header is already set
func (ip *Ipv4) sendOnRoute(evtMgr *evtm.EventManager, pckt *Packet) bool {
	dst := pckt.IP.Dst
	rt := ip.lookup(dst)
	if rt == nil {
		ip.Drops += 1
		IPLog.Debugf("%s: no route to %s", ip.node.Name, dst)
		return false
	}
	nextHop := dst
	if rt.Gateway.IsValid() {
		nextHop = rt.Gateway
	}
	mac, present := neighbours[nextHop]
	if !present {
		ip.Drops += 1
		IPLog.Debugf("%s: no neighbour entry for %s", ip.node.Name, nextHop)
		return false
	}
	return rt.Iface.Dev.Send(evtMgr, pckt, mac, ProtoIPv4)
}

func loopbackHdlr(evtMgr *evtm.EventManager, context any, data any) any {
	ip := context.(*Ipv4)
	ip.deliver(evtMgr, data.(*Packet))
	return nil
}

// receive is given IPv4 packets by the node's protocol demultiplexer
func (ip *Ipv4) receive(evtMgr *evtm.EventManager, pckt *Packet) {
	if pckt.IP == nil {
		ip.Drops += 1
		return
	}
	dst := pckt.IP.Dst
	if _, bcast := ip.isBroadcast(dst); bcast || ip.IsLocal(dst) {
		ip.deliver(evtMgr, pckt)
		return
	}
	if !ip.Forwarding || pckt.IP.TTL <= 1 {
		ip.Drops += 1
		return
	}
	pckt.IP.TTL -= 1
	ip.Forwarded += 1
	ip.sendOnRoute(evtMgr, pckt)
}

// deliver passes a packet addressed to this node to its transport protocol
func (ip *Ipv4) deliver(evtMgr *evtm.EventManager, pckt *Packet) {
	ip.RxPackets += 1
	switch pckt.IP.Proto {
	case IpProtoUdp:
		ip.node.sockets.deliverUdp(evtMgr, pckt)
	case IpProtoTcp:
		ip.node.sockets.deliverTcp(evtMgr, ip.node, pckt)
	default:
		ip.Drops += 1
	}
}

// InternetStackHelper installs the IP layer
type InternetStackHelper struct{}

// Install gives each node an IP layer and attaches it to the devices the node already has
func (ish *InternetStackHelper) Install(nodes ...*Node) {
	for _, node := range nodes {
		if node.Ipv4 != nil {
			continue
		}
		node.Ipv4 = createIpv4(node)
		for _, dev := range node.Devices {
			dev.SetReceiveCallback(node.receive)
		}
	}
}

// Ipv4AddressHelper hands out consecutive host addresses from a network
type Ipv4AddressHelper struct {
	network netip.Prefix
	next    uint32
}

// SetBase sets the network and mask (e.g. "10.0.0.0", "255.255.255.0") and restarts
// host numbering at .1
func (ah *Ipv4AddressHelper) SetBase(network, mask string) error {
	addr, err := netip.ParseAddr(network)
	if err != nil {
		return err
	}
	maskAddr, err := netip.ParseAddr(mask)
	if err != nil {
		return err
	}
	if !addr.Is4() || !maskAddr.Is4() {
		return fmt.Errorf("only IPv4 networks are supported")
	}
	m := maskAddr.As4()
	bits := 0
	seenZero := false
	for _, b := range m {
		for bit := 7; bit >= 0; bit-- {
			if b&(1<<bit) != 0 {
				if seenZero {
					return fmt.Errorf("mask %s is not contiguous", mask)
				}
				bits += 1
			} else {
				seenZero = true
			}
		}
	}
	ah.network = netip.PrefixFrom(addr, bits).Masked()
	ah.next = 1
	return nil
}

// nextAddress returns the next host address, or an error when the network is exhausted
func (ah *Ipv4AddressHelper) nextAddress() (netip.Addr, error) {
	if !ah.network.IsValid() {
		return netip.Addr{}, fmt.Errorf("address helper has no base network")
	}
	hostBits := 32 - ah.network.Bits()
	if hostBits < 32 && ah.next >= (uint32(1)<<hostBits)-1 {
		return netip.Addr{}, fmt.Errorf("network %s has no addresses left", ah.network)
	}
	base := ah.network.Addr().As4()
	v := uint32(base[0])<<24 | uint32(base[1])<<16 | uint32(base[2])<<8 | uint32(base[3])
	v += ah.next
	ah.next += 1
	return netip.AddrFrom4([4]byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}), nil
}

// Assign gives each device the next address.  The device's node must have an IP layer
func (ah *Ipv4AddressHelper) Assign(devs NetDeviceContainer) (Ipv4InterfaceContainer, error) {
	ic := Ipv4InterfaceContainer{}
	for _, dev := range devs.Devices {
		node := dev.Node()
		if node.Ipv4 == nil {
			return ic, fmt.Errorf("%s has no internet stack", node.Name)
		}
		addr, err := ah.nextAddress()
		if err != nil {
			return ic, err
		}
		iface := node.Ipv4.addInterface(dev, netip.PrefixFrom(addr, ah.network.Bits()))
		ic.ifaces = append(ic.ifaces, iface)
		IPLog.Debugf("%s: %s on %s", node.Name, iface.Prefix, dev.DevName())
	}
	return ic, nil
}

// Ipv4InterfaceContainer holds the interfaces an Assign created, in device order
type Ipv4InterfaceContainer struct {
	ifaces []*Ipv4Interface
}

func (ic *Ipv4InterfaceContainer) GetAddress(idx int) netip.Addr {
	return ic.ifaces[idx].Addr
}

func (ic *Ipv4InterfaceContainer) N() int {
	return len(ic.ifaces)
}

// Add appends the interfaces of another container
func (ic *Ipv4InterfaceContainer) Add(other Ipv4InterfaceContainer) {
	ic.ifaces = append(ic.ifaces, other.ifaces...)
}
