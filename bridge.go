package wifisim

// bridge.go holds the learning bridge that joins several devices of a node into
// one broadcast domain.  The bridge takes over reception on its ports, learns on
// which port each source address lives, forwards frames to the learned port and
// floods those whose destination it has not learned or is a group address

import (
	"fmt"

	"github.com/iti/evt/evtm"
)

type learnedPort struct {
	port    NetDevice
	expires float64
}

// BridgeNetDevice is a learning bridge over its port devices
type BridgeNetDevice struct {
	deviceBase
	ports          []NetDevice
	learned        map[Mac48]*learnedPort
	ExpirationTime float64

	Forwarded int
	Flooded   int
	Delivered int
}

func createBridgeNetDevice(node *Node) *BridgeNetDevice {
	br := new(BridgeNetDevice)
	br.node = node
	br.mtu = csmaMtu
	br.ports = []NetDevice{}
	br.learned = make(map[Mac48]*learnedPort)
	br.ExpirationTime = attrTime("BridgeNetDevice::ExpirationTime")
	return br
}

func (br *BridgeNetDevice) DevType() string        { return "bridge" }
func (br *BridgeNetDevice) SupportsSendFrom() bool { return true }
func (br *BridgeNetDevice) NPorts() int            { return len(br.ports) }
func (br *BridgeNetDevice) Port(idx int) NetDevice { return br.ports[idx] }

// AddBridgePort attaches a port.  The bridge forwards on behalf of other stations,
// so the port has to be able to send with a foreign source address.  The first
// port's address becomes the bridge's own
func (br *BridgeNetDevice) AddBridgePort(port NetDevice) error {
	if !port.SupportsSendFrom() {
		return fmt.Errorf("device %s cannot be a bridge port: it does not support SendFrom", port.DevName())
	}
	if len(br.ports) == 0 {
		br.address = port.Address()
	}
	br.ports = append(br.ports, port)
	port.SetPromiscReceiveCallback(br.receiveFromPort)
	return nil
}

// learn records that src was heard on port
func (br *BridgeNetDevice) learn(now float64, src Mac48, port NetDevice) {
	if src.IsGroup() {
		return
	}
	entry, present := br.learned[src]
	if !present {
		entry = new(learnedPort)
		br.learned[src] = entry
	}
	entry.port = port
	entry.expires = now + br.ExpirationTime
}

// lookup returns the port dst was learned on, or nil when it is unknown or the entry has expired
func (br *BridgeNetDevice) lookup(now float64, dst Mac48) NetDevice {
	entry, present := br.learned[dst]
	if !present {
		return nil
	}
	if entry.expires <= now {
		delete(br.learned, dst)
		return nil
	}
	return entry.port
}

// LearnedTable lists the unexpired entries as address -> port interface index
func (br *BridgeNetDevice) LearnedTable(now float64) map[string]int {
	table := make(map[string]int)
	for addr, entry := range br.learned {
		if entry.expires > now {
			table[addr.String()] = entry.port.IfIndex()
		}
	}
	return table
}

// receiveFromPort is installed as the promiscuous receive handler of every port
func (br *BridgeNetDevice) receiveFromPort(evtMgr *evtm.EventManager, inPort NetDevice, pckt *Packet, protocol uint16, src, dst Mac48) {
	now := evtMgr.CurrentSeconds()
	br.learn(now, src, inPort)

	switch {
	case dst == br.address:
		br.deliver(evtMgr, pckt, protocol, src, dst)
	case dst.IsGroup():
		br.deliver(evtMgr, pckt.Copy(), protocol, src, dst)
		br.flood(evtMgr, inPort, pckt, protocol, src, dst)
	default:
		br.forwardUnicast(evtMgr, inPort, pckt, protocol, src, dst)
	}
}

// deliver passes a frame to the node's own stack
func (br *BridgeNetDevice) deliver(evtMgr *evtm.EventManager, pckt *Packet, protocol uint16, src, dst Mac48) {
	br.Delivered += 1
	if br.rcv != nil {
		br.rcv(evtMgr, br, pckt, protocol, src, dst)
	}
}

func (br *BridgeNetDevice) forwardUnicast(evtMgr *evtm.EventManager, inPort NetDevice, pckt *Packet, protocol uint16, src, dst Mac48) {
	out := br.lookup(evtMgr.CurrentSeconds(), dst)
	if out == nil {
		br.flood(evtMgr, inPort, pckt, protocol, src, dst)
		return
	}
	// destination is on the segment the frame came from
	if out == inPort {
		return
	}
	br.Forwarded += 1
	BrLog.Debugf("%s: %s -> %s via %s", br.name, src, dst, out.DevName())
	out.SendFrom(evtMgr, pckt, src, dst, protocol)
}

// flood sends a copy of the frame out of every port but the one it came in on
func (br *BridgeNetDevice) flood(evtMgr *evtm.EventManager, inPort NetDevice, pckt *Packet, protocol uint16, src, dst Mac48) {
	br.Flooded += 1
	for _, port := range br.ports {
		if port == inPort {
			continue
		}
		port.SendFrom(evtMgr, pckt.Copy(), src, dst, protocol)
	}
}

func (br *BridgeNetDevice) Send(evtMgr *evtm.EventManager, pckt *Packet, dst Mac48, protocol uint16) bool {
	return br.SendFrom(evtMgr, pckt, br.address, dst, protocol)
}

// SendFrom sends a frame originating at this node: out of the learned port, or
// out of every port when the destination is unknown or a group
func (br *BridgeNetDevice) SendFrom(evtMgr *evtm.EventManager, pckt *Packet, src, dst Mac48, protocol uint16) bool {
	if !dst.IsGroup() {
		if out := br.lookup(evtMgr.CurrentSeconds(), dst); out != nil {
			return out.SendFrom(evtMgr, pckt, src, dst, protocol)
		}
	}
	accepted := false
	for _, port := range br.ports {
		if port.SendFrom(evtMgr, pckt.Copy(), src, dst, protocol) {
			accepted = true
		}
	}
	return accepted
}

// BridgeHelper creates bridges
type BridgeHelper struct{}

// Install adds to node a bridge over the given port devices
func (bh *BridgeHelper) Install(node *Node, ports NetDeviceContainer) (*BridgeNetDevice, error) {
	br := createBridgeNetDevice(node)
	for _, port := range ports.Devices {
		if port.Node() != node {
			return nil, fmt.Errorf("bridge port %s is not on %s", port.DevName(), node.Name)
		}
		if err := br.AddBridgePort(port); err != nil {
			return nil, err
		}
	}
	idx := node.AddDevice(br)
	br.name = fmt.Sprintf("%s-bridge-%d", node.Name, idx)
	BrLog.Debugf("%s: %d ports, address %s", br.name, len(br.ports), br.address)
	return br, nil
}
