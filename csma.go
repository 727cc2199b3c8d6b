package wifisim

// csma.go holds the wired segment: a shared bus carrying Ethernet frames between
// the devices attached to it, one transmission at a time

import (
	"fmt"

	"github.com/iti/evt/evtm"
)

const (
	csmaMtu      = 1500
	csmaQueueLen = 100
)

// CsmaChannel is a bus with a bit rate and a propagation delay
type CsmaChannel struct {
	ID       int
	Name     string
	DataRate DataRate
	Delay    float64
	devices  []*CsmaNetDevice
	medium   *Medium
}

func createCsmaChannel(rate DataRate, delay float64) *CsmaChannel {
	ch := new(CsmaChannel)
	ch.ID = nxtID()
	ch.Name = fmt.Sprintf("csma-channel-%d", ch.ID)
	ch.DataRate = rate
	ch.Delay = delay
	ch.devices = []*CsmaNetDevice{}
	ch.medium = createMedium(ch.Name)
	return ch
}

// NDevices is the number of attached devices
func (ch *CsmaChannel) NDevices() int {
	return len(ch.devices)
}

func (ch *CsmaChannel) paramObjName() string {
	return ch.Name
}

func (ch *CsmaChannel) matchParam(attrbName, attrbValue string) bool {
	return attrbName == "name" && ch.Name == attrbValue
}

func (ch *CsmaChannel) setParam(param string, value valueStruct) error {
	switch param {
	case "DataRate":
		rate, err := ParseDataRate(value.stringValue)
		if err != nil {
			return err
		}
		ch.DataRate = rate
	case "Delay":
		delay, err := ParseTime(value.stringValue)
		if err != nil {
			return err
		}
		ch.Delay = delay
	default:
		return fmt.Errorf("CSMA parameter %q not recognized", param)
	}
	return nil
}

// csmaFrame is an Ethernet frame waiting for or crossing the bus
type csmaFrame struct {
	pckt     *Packet
	protocol uint16
	src      Mac48
	dst      Mac48
}

// length is the frame's size on the wire, padded to the Ethernet minimum
func (cf *csmaFrame) length() int {
	return max(ethHdrLen+cf.pckt.Size()+ethFcsLen, ethMinFrameLen)
}

// CsmaNetDevice is a node's attachment to a CSMA channel
type CsmaNetDevice struct {
	deviceBase
	channel  *CsmaChannel
	queue    []*csmaFrame
	MaxQueue int
	current  *csmaFrame

	TxFrames int
	RxFrames int
	Drops    int
}

func (cd *CsmaNetDevice) DevType() string        { return "csma" }
func (cd *CsmaNetDevice) SupportsSendFrom() bool { return true }
func (cd *CsmaNetDevice) Channel() *CsmaChannel  { return cd.channel }

func (cd *CsmaNetDevice) Send(evtMgr *evtm.EventManager, pckt *Packet, dst Mac48, protocol uint16) bool {
	return cd.SendFrom(evtMgr, pckt, cd.address, dst, protocol)
}

// SendFrom queues the frame and asks for the bus
func (cd *CsmaNetDevice) SendFrom(evtMgr *evtm.EventManager, pckt *Packet, src, dst Mac48, protocol uint16) bool {
	now := evtMgr.CurrentSeconds()
	if len(cd.queue) >= cd.MaxQueue {
		cd.Drops += 1
		cd.addTrace(now, "drop", pckt, "queue full")
		return false
	}
	cd.queue = append(cd.queue, &csmaFrame{pckt: pckt, protocol: protocol, src: src, dst: dst})
	cd.addTrace(now, "enqueue", pckt, dst.String())
	cd.channel.medium.Request(evtMgr, cd)
	return true
}

// startTxop puts the head frame on the bus for its serialization time
func (cd *CsmaNetDevice) startTxop(evtMgr *evtm.EventManager) float64 {
	if len(cd.queue) == 0 {
		return 0.0
	}
	frame := cd.queue[0]
	cd.queue = cd.queue[1:]
	cd.current = frame

	now := evtMgr.CurrentSeconds()
	for _, pw := range cd.pcapSinks {
		pw.WriteEthernet(now, frame.pckt, frame.src, frame.dst, frame.protocol)
	}
	cd.addTrace(now, "tx", frame.pckt, frame.dst.String())
	cd.TxFrames += 1
	return cd.channel.DataRate.TxTime(frame.length())
}

// txopDone propagates the frame to every other device on the bus
func (cd *CsmaNetDevice) txopDone(evtMgr *evtm.EventManager) {
	frame := cd.current
	cd.current = nil
	if frame != nil {
		for _, peer := range cd.channel.devices {
			if peer == cd {
				continue
			}
			scheduleIn(evtMgr, cd.channel.Delay, peer, frame, csmaRxHdlr)
		}
	}
	if len(cd.queue) > 0 {
		cd.channel.medium.Request(evtMgr, cd)
	}
}

func csmaRxHdlr(evtMgr *evtm.EventManager, context any, data any) any {
	cd := context.(*CsmaNetDevice)
	frame := data.(*csmaFrame)
	now := evtMgr.CurrentSeconds()

	for _, pw := range cd.pcapSinks {
		pw.WriteEthernet(now, frame.pckt, frame.src, frame.dst, frame.protocol)
	}
	cd.RxFrames += 1
	cd.addTrace(now, "rx", frame.pckt, frame.src.String())
	cd.forwardUp(evtMgr, cd, frame.pckt.Copy(), frame.protocol, frame.src, frame.dst)
	return nil
}

// CsmaHelper builds a channel and attaches devices on the given nodes to it
type CsmaHelper struct {
	rate     DataRate
	delay    float64
	traceMgr *TraceManager
}

// CreateCsmaHelper takes its channel attributes from the CsmaChannel defaults
func CreateCsmaHelper() *CsmaHelper {
	return &CsmaHelper{rate: attrRate("CsmaChannel::DataRate"), delay: attrTime("CsmaChannel::Delay")}
}

// SetChannelAttribute sets "DataRate" (e.g. "100Mbps") or "Delay" (e.g. "6560ns")
func (ch *CsmaHelper) SetChannelAttribute(name, value string) error {
	switch name {
	case "DataRate":
		rate, err := ParseDataRate(value)
		if err != nil {
			return err
		}
		ch.rate = rate
	case "Delay":
		delay, err := ParseTime(value)
		if err != nil {
			return err
		}
		ch.delay = delay
	default:
		return fmt.Errorf("CSMA channel attribute %q not recognized", name)
	}
	return nil
}

func (ch *CsmaHelper) SetTraceManager(tm *TraceManager) {
	ch.traceMgr = tm
}

// Install creates one channel and a device on each node attached to it
func (ch *CsmaHelper) Install(nodes ...*Node) (NetDeviceContainer, *CsmaChannel) {
	channel := createCsmaChannel(ch.rate, ch.delay)
	devs := NetDeviceContainer{}
	for _, node := range nodes {
		cd := new(CsmaNetDevice)
		cd.node = node
		cd.address = allocateMac()
		cd.mtu = csmaMtu
		cd.MaxQueue = csmaQueueLen
		cd.traceMgr = ch.traceMgr
		ch.traceMgr.AddName(node.ID, node.Name, "node")
		cd.queue = []*csmaFrame{}
		cd.channel = channel
		idx := node.AddDevice(cd)
		cd.name = fmt.Sprintf("%s-csma-%d", node.Name, idx)
		channel.devices = append(channel.devices, cd)
		devs.Add(cd)
	}
	TopoLog.Debugf("%s: %d devices at %s", channel.Name, len(nodes), channel.DataRate)
	return devs, channel
}

// EnablePcap opens an Ethernet pcap file for each CSMA device
func (ch *CsmaHelper) EnablePcap(prefix string, devs NetDeviceContainer) error {
	errs := []error{}
	for _, dev := range devs.Devices {
		if dev.DevType() != "csma" {
			continue
		}
		if err := EnablePcap(prefix, dev); err != nil {
			errs = append(errs, err)
		}
	}
	return ReportErrs(errs)
}
