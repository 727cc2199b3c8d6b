package wifisim

// wifi-mac.go holds the MAC of the wifi devices.  An access point MAC sends beacons,
// keeps the table of associated stations and relays frames between them; a station
// MAC associates with an access point advertising its SSID and then exchanges data
// only through it.  Both share the transmit path: a management queue served ahead
// of a bounded data queue, DCF-style backoff before each transmission, A-MPDU
// aggregation on HT standards, and acknowledgement driven retries

import (
	"fmt"

	"github.com/iti/evt/evtm"
	"github.com/iti/rngstream"
)

// MAC types, named after the attribute values that select them
const (
	ApMacType  = "ApWifiMac"
	StaMacType = "StaWifiMac"
)

// Ssid names a wifi network
type Ssid string

type frameType int

const (
	dataFrame frameType = iota
	beaconFrame
	assocReqFrame
	assocRespFrame
)

func (ft frameType) String() string {
	switch ft {
	case dataFrame:
		return "data"
	case beaconFrame:
		return "beacon"
	case assocReqFrame:
		return "assoc-req"
	case assocRespFrame:
		return "assoc-resp"
	}
	return "unknown"
}

// mpdu is a MAC frame.  addr1 is the receiver and addr2 the transmitter; sa and da
// are the original source and final destination of a data frame
type mpdu struct {
	ftype    frameType
	addr1    Mac48
	addr2    Mac48
	sa       Mac48
	da       Mac48
	bssid    Mac48
	toDs     bool
	fromDs   bool
	ssid     Ssid
	seq      uint16
	retries  int
	pckt     *Packet
	protocol uint16
	enqueued float64
}

// size is the length of the frame on air, FCS included
func (f *mpdu) size() int {
	switch f.ftype {
	case beaconFrame:
		return beaconFrameLen + len(f.ssid)
	case assocReqFrame, assocRespFrame:
		return assocFrameLen + len(f.ssid)
	}
	return wifiDataHdrLen + llcSnapLen + f.pckt.Size() + wifiFcsLen
}

// ampduLength is the PSDU length of an A-MPDU holding the frames, each subframe
// carrying a delimiter and all but the last padded to a multiple of 4 bytes
func ampduLength(frames []*mpdu) int {
	total := 0
	for idx, f := range frames {
		sub := ampduDelimiter + f.size()
		if idx < len(frames)-1 && sub%4 != 0 {
			sub += 4 - sub%4
		}
		total += sub
	}
	return total
}

// dupWindow is how many recent sequence numbers per transmitter are remembered
const dupWindow = 256

// dupCache recognizes retransmissions of frames already received
type dupCache struct {
	seen map[uint16]bool
	ring [dupWindow]uint16
	n    int
}

// duplicate records seq and reports whether a retransmitted frame was seen before
func (dc *dupCache) duplicate(seq uint16, retry bool) bool {
	if retry && dc.seen[seq] {
		return true
	}
	if dc.n >= dupWindow {
		delete(dc.seen, dc.ring[dc.n%dupWindow])
	}
	dc.ring[dc.n%dupWindow] = seq
	dc.seen[seq] = true
	dc.n += 1
	return false
}

// WifiMac holds the state of one MAC, access point or station
type WifiMac struct {
	Type string
	Name string
	Ssid Ssid

	device  *WifiNetDevice
	phy     *WifiPhy
	std     *WifiStandard
	station RemoteStationManager
	rng     *rngstream.RngStream

	mgmtQueue []*mpdu
	queue     []*mpdu
	current   *wifiPpdu
	cw        int
	seqNext   uint16

	MaxQueue      int
	MaxAmpduSize  int
	MaxRetries    int
	RtsThreshold  int
	FragThreshold int

	// station side
	associated   bool
	assocPending bool
	bssid        Mac48

	// access point side
	BeaconInterval float64
	stations       map[Mac48]bool

	dups map[Mac48]*dupCache

	// counters
	TxOk       int
	TxFailed   int
	Retries    int
	QueueDrops int
	Beacons    int
	Forwarded  int
}

// createWifiMac is a constructor; limits and intervals come from the attribute defaults
func createWifiMac(typ string, ssid Ssid, name string, std *WifiStandard, station RemoteStationManager) *WifiMac {
	mac := new(WifiMac)
	mac.Type = typ
	mac.Name = name
	mac.Ssid = ssid
	mac.std = std
	mac.station = station
	mac.rng = rngstream.New(name)
	mac.mgmtQueue = []*mpdu{}
	mac.queue = []*mpdu{}
	mac.cw = std.CwMin

	mac.MaxQueue = attrInt("WifiMacQueue::MaxSize")
	mac.MaxAmpduSize = attrInt("WifiMac::MaxAmpduSize")
	mac.MaxRetries = attrInt("WifiRemoteStationManager::MaxSlrc")
	mac.RtsThreshold = attrInt("WifiRemoteStationManager::RtsCtsThreshold")
	mac.FragThreshold = attrInt("WifiRemoteStationManager::FragmentationThreshold")
	mac.BeaconInterval = attrTime("ApWifiMac::BeaconInterval")

	mac.stations = make(map[Mac48]bool)
	mac.dups = make(map[Mac48]*dupCache)
	return mac
}

func (mac *WifiMac) address() Mac48 {
	return mac.device.Address()
}

// IsAssociated reports whether a station MAC has completed association
func (mac *WifiMac) IsAssociated() bool {
	return mac.associated
}

// Bssid is the address of the access point a station is associated with
func (mac *WifiMac) Bssid() Mac48 {
	return mac.bssid
}

// AssociatedStations lists the stations an access point has accepted
func (mac *WifiMac) AssociatedStations() []Mac48 {
	stas := []Mac48{}
	for sta := range mac.stations {
		stas = append(stas, sta)
	}
	return stas
}

// QueueLen is the number of data frames waiting
func (mac *WifiMac) QueueLen() int {
	return len(mac.queue)
}

// start begins the MAC's own activity.  An access point sends its first beacon
// after a random fraction of the beacon interval
func (mac *WifiMac) start(evtMgr *evtm.EventManager) {
	if mac.Type != ApMacType {
		return
	}
	mac.bssid = mac.address()
	jitter := mac.rng.RandU01() * mac.BeaconInterval
	scheduleIn(evtMgr, jitter, mac, nil, beaconHdlr)
}

// beaconHdlr queues a beacon and schedules the next one
func beaconHdlr(evtMgr *evtm.EventManager, context any, data any) any {
	mac := context.(*WifiMac)
	beacon := &mpdu{ftype: beaconFrame, addr1: BroadcastMac, addr2: mac.address(),
		bssid: mac.address(), ssid: mac.Ssid}
	mac.Beacons += 1
	mac.enqueueMgmt(evtMgr, beacon)
	scheduleIn(evtMgr, mac.BeaconInterval, mac, nil, beaconHdlr)
	return nil
}

func (mac *WifiMac) enqueueMgmt(evtMgr *evtm.EventManager, f *mpdu) {
	f.enqueued = evtMgr.CurrentSeconds()
	f.seq = mac.nextSeq()
	mac.mgmtQueue = append(mac.mgmtQueue, f)
	mac.phy.channel.medium.Request(evtMgr, mac)
}

func (mac *WifiMac) nextSeq() uint16 {
	seq := mac.seqNext
	mac.seqNext = (mac.seqNext + 1) % 4096
	return seq
}

// enqueueData accepts a packet from the device for delivery to da, on behalf of sa.
// It returns false when the packet is dropped
func (mac *WifiMac) enqueueData(evtMgr *evtm.EventManager, pckt *Packet, protocol uint16, sa, da Mac48) bool {
	now := evtMgr.CurrentSeconds()
	f := &mpdu{ftype: dataFrame, addr2: mac.address(), sa: sa, da: da, pckt: pckt, protocol: protocol}

	switch mac.Type {
	case StaMacType:
		if !mac.associated {
			mac.device.addTrace(now, "drop", pckt, "not associated")
			MacLog.Debugf("%s: dropping packet %d, not associated", mac.Name, pckt.UID)
			return false
		}
		f.addr1 = mac.bssid
		f.bssid = mac.bssid
		f.toDs = true
	case ApMacType:
		if !da.IsGroup() && !mac.stations[da] {
			mac.device.addTrace(now, "drop", pckt, "destination not associated")
			MacLog.Debugf("%s: dropping packet %d, %s not associated", mac.Name, pckt.UID, da)
			return false
		}
		f.addr1 = da
		f.bssid = mac.address()
		f.fromDs = true
	}
	return mac.enqueueFrame(evtMgr, f)
}

// enqueueFrame puts a data frame on the bounded queue and asks for the medium
func (mac *WifiMac) enqueueFrame(evtMgr *evtm.EventManager, f *mpdu) bool {
	now := evtMgr.CurrentSeconds()
	if len(mac.queue) >= mac.MaxQueue {
		mac.QueueDrops += 1
		mac.device.addTrace(now, "drop", f.pckt, "queue full")
		return false
	}
	if f.size() > mac.FragThreshold {
		MacLog.Debugf("%s: %d byte frame above fragmentation threshold, sent whole", mac.Name, f.size())
	}
	f.seq = mac.nextSeq()
	f.enqueued = now
	mac.queue = append(mac.queue, f)
	mac.device.addTrace(now, "enqueue", f.pckt, f.addr1.String())
	mac.phy.channel.medium.Request(evtMgr, mac)
	return true
}

// aggregating reports whether unicast data frames go out as A-MPDUs
func (mac *WifiMac) aggregating() bool {
	return mac.std.HT && mac.MaxAmpduSize > 0
}

// dequeueFrames takes the frames for the next transmission: the head management
// frame if there is one, else the head data frame plus, when aggregating, the
// following frames to the same receiver that fit in an A-MPDU
func (mac *WifiMac) dequeueFrames() []*mpdu {
	if len(mac.mgmtQueue) > 0 {
		f := mac.mgmtQueue[0]
		mac.mgmtQueue = mac.mgmtQueue[1:]
		return []*mpdu{f}
	}
	if len(mac.queue) == 0 {
		return nil
	}
	head := mac.queue[0]
	if !mac.aggregating() || head.addr1.IsGroup() {
		mac.queue = mac.queue[1:]
		return []*mpdu{head}
	}

	frames := []*mpdu{}
	rest := []*mpdu{}
	total := 0
	full := false
	for _, f := range mac.queue {
		if !full && f.addr1 == head.addr1 {
			sub := ampduDelimiter + f.size()
			sub += (4 - sub%4) % 4
			if len(frames) == 0 || (total+sub <= mac.MaxAmpduSize && len(frames) < maxMpdusPerAmpdu) {
				frames = append(frames, f)
				total += sub
				continue
			}
			full = true
		}
		rest = append(rest, f)
	}
	mac.queue = rest
	return frames
}

// startTxop is called when the medium is granted.  It builds the PPDU, schedules
// its transmission after DIFS and the backoff, and returns how long the exchange,
// response included, holds the medium
func (mac *WifiMac) startTxop(evtMgr *evtm.EventManager) float64 {
	frames := mac.dequeueFrames()
	if len(frames) == 0 {
		return 0.0
	}
	head := frames[0]
	receiver := head.addr1
	unicast := !receiver.IsGroup()

	mode := mac.station.ControlMode()
	if head.ftype == dataFrame && unicast {
		mode = mac.station.DataMode(receiver)
	}

	ampdu := head.ftype == dataFrame && unicast && mac.aggregating()
	psdu := head.size()
	if ampdu {
		psdu = ampduLength(frames)
	}

	ppdu := &wifiPpdu{mpdus: frames, mode: mode, psduBytes: psdu, duration: PpduDuration(psdu, mode),
		txPowerDbm: mac.phy.TxPowerDbm(), sender: mac.phy, receiver: receiver}
	if unicast {
		ppdu.respMode = mac.station.ControlMode()
		ppdu.respBytes = ackFrameLen
		if ampdu {
			ppdu.respBytes = blockAckFrameLen
		}
	}
	if psdu > mac.RtsThreshold {
		MacLog.Debugf("%s: %d byte PSDU above RTS threshold, sent without protection", mac.Name, psdu)
	}

	backoff := int(mac.rng.RandInt(0, mac.cw))
	access := mac.std.Difs() + float64(backoff)*mac.std.Slot
	hold := access + ppdu.duration
	if ppdu.respMode != nil {
		hold += mac.std.Sifs + PpduDuration(ppdu.respBytes, ppdu.respMode)
	}
	mac.current = ppdu
	scheduleIn(evtMgr, access, mac, ppdu, macTxStartHdlr)
	return hold
}

// macTxStartHdlr puts the PPDU on the channel once the backoff has counted down
func macTxStartHdlr(evtMgr *evtm.EventManager, context any, data any) any {
	mac := context.(*WifiMac)
	ppdu := data.(*wifiPpdu)
	now := evtMgr.CurrentSeconds()
	noiseDbm := wToDbm(mac.phy.NoiseW())
	for _, f := range ppdu.mpdus {
		for _, pw := range mac.device.pcapSinks {
			pw.WriteWifi(now, f, ppdu.mode, ppdu.txPowerDbm, noiseDbm)
		}
		if f.pckt != nil {
			mac.device.addTrace(now, "tx", f.pckt, ppdu.mode.Name)
		}
	}
	mac.phy.channel.transmit(evtMgr, ppdu)
	return nil
}

// txopDone settles the outcome of the transmission: acknowledged frames are done,
// the others are retried ahead of anything queued since, or dropped at the retry limit
func (mac *WifiMac) txopDone(evtMgr *evtm.EventManager) {
	ppdu := mac.current
	mac.current = nil
	if ppdu == nil {
		return
	}
	now := evtMgr.CurrentSeconds()

	if ppdu.respMode == nil {
		mac.TxOk += len(ppdu.mpdus)
	} else {
		anyOk := false
		retryMgmt := []*mpdu{}
		retryData := []*mpdu{}
		for idx, f := range ppdu.mpdus {
			if ppdu.reached && ppdu.respOk && ppdu.rxOk[idx] {
				anyOk = true
				mac.TxOk += 1
				continue
			}
			f.retries += 1
			mac.Retries += 1
			if f.retries >= mac.MaxRetries {
				mac.TxFailed += 1
				mac.finalFailure(now, f)
				continue
			}
			if f.ftype == dataFrame {
				retryData = append(retryData, f)
			} else {
				retryMgmt = append(retryMgmt, f)
			}
		}

		if ppdu.mpdus[0].ftype == dataFrame {
			if anyOk {
				mac.station.ReportDataOk(ppdu.receiver)
			} else {
				mac.station.ReportDataFailed(ppdu.receiver)
			}
		}
		if anyOk {
			mac.cw = mac.std.CwMin
		} else {
			mac.cw = min(2*(mac.cw+1)-1, mac.std.CwMax)
		}
		mac.mgmtQueue = append(retryMgmt, mac.mgmtQueue...)
		mac.queue = append(retryData, mac.queue...)
	}

	if len(mac.mgmtQueue)+len(mac.queue) > 0 {
		mac.phy.channel.medium.Request(evtMgr, mac)
	}
}

// finalFailure gives up on a frame
func (mac *WifiMac) finalFailure(now float64, f *mpdu) {
	switch f.ftype {
	case dataFrame:
		mac.station.ReportFinalDataFailed(f.addr1)
		mac.device.addTrace(now, "drop", f.pckt, "retry limit")
		MacLog.Debugf("%s: packet %d to %s dropped after %d attempts", mac.Name, f.pckt.UID, f.addr1, f.retries)
	case assocReqFrame:
		// try again on the next beacon
		mac.assocPending = false
		MacLog.Debugf("%s: association request to %s unanswered", mac.Name, f.addr1)
	}
}

// receive is given each frame the PHY decoded without error
func (mac *WifiMac) receive(evtMgr *evtm.EventManager, f *mpdu) {
	own := mac.address()
	if f.addr2 == own || (f.addr1 != own && !f.addr1.IsGroup()) {
		return
	}

	switch f.ftype {
	case beaconFrame:
		if mac.Type == StaMacType {
			mac.receiveBeacon(evtMgr, f)
		}
	case assocReqFrame:
		if mac.Type == ApMacType {
			mac.receiveAssocReq(evtMgr, f)
		}
	case assocRespFrame:
		if mac.Type == StaMacType && mac.assocPending && f.addr2 == mac.bssid {
			mac.assocPending = false
			mac.associated = true
			MacLog.Infof("%s: associated with %s (%s) at %.6fs", mac.Name, mac.bssid, mac.Ssid, evtMgr.CurrentSeconds())
		}
	case dataFrame:
		mac.receiveData(evtMgr, f)
	}
}

// receiveBeacon starts association with the first access point heard advertising our SSID
func (mac *WifiMac) receiveBeacon(evtMgr *evtm.EventManager, f *mpdu) {
	if mac.associated || mac.assocPending || f.ssid != mac.Ssid {
		return
	}
	mac.bssid = f.addr2
	mac.assocPending = true
	req := &mpdu{ftype: assocReqFrame, addr1: f.addr2, addr2: mac.address(), bssid: f.addr2, ssid: mac.Ssid}
	mac.enqueueMgmt(evtMgr, req)
}

func (mac *WifiMac) receiveAssocReq(evtMgr *evtm.EventManager, f *mpdu) {
	if f.ssid != mac.Ssid {
		return
	}
	if !mac.stations[f.addr2] {
		mac.stations[f.addr2] = true
		MacLog.Debugf("%s: %s joined %s", mac.Name, f.addr2, mac.Ssid)
	}
	resp := &mpdu{ftype: assocRespFrame, addr1: f.addr2, addr2: mac.address(), bssid: mac.address(), ssid: mac.Ssid}
	mac.enqueueMgmt(evtMgr, resp)
}

func (mac *WifiMac) receiveData(evtMgr *evtm.EventManager, f *mpdu) {
	if !f.addr1.IsGroup() {
		dc, present := mac.dups[f.addr2]
		if !present {
			dc = &dupCache{seen: make(map[uint16]bool)}
			mac.dups[f.addr2] = dc
		}
		if dc.duplicate(f.seq, f.retries > 0) {
			return
		}
	}
	pckt := f.pckt.Copy()

	if mac.Type == ApMacType {
		if !f.toDs || !mac.stations[f.addr2] {
			MacLog.Debugf("%s: data from unassociated %s ignored", mac.Name, f.addr2)
			return
		}
		if f.da.IsGroup() {
			// group frames go back out into the cell as well as up
			mac.Forwarded += 1
			mac.enqueueFromDs(evtMgr, pckt.Copy(), f.protocol, f.sa, f.da)
			mac.device.receiveFromMac(evtMgr, pckt, f.protocol, f.sa, f.da)
			return
		}
		if f.da != mac.address() && mac.stations[f.da] {
			mac.Forwarded += 1
			mac.enqueueFromDs(evtMgr, pckt, f.protocol, f.sa, f.da)
			return
		}
		mac.device.receiveFromMac(evtMgr, pckt, f.protocol, f.sa, f.da)
		return
	}

	if !f.fromDs || !mac.associated || f.addr2 != mac.bssid || f.sa == mac.address() {
		return
	}
	mac.device.receiveFromMac(evtMgr, pckt, f.protocol, f.sa, f.da)
}

// enqueueFromDs queues a frame the access point relays into its cell
func (mac *WifiMac) enqueueFromDs(evtMgr *evtm.EventManager, pckt *Packet, protocol uint16, sa, da Mac48) {
	f := &mpdu{ftype: dataFrame, addr1: da, addr2: mac.address(), sa: sa, da: da,
		bssid: mac.address(), fromDs: true, pckt: pckt, protocol: protocol}
	mac.enqueueFrame(evtMgr, f)
}

// mac attribute settings reachable through ExpParameters
func (mac *WifiMac) paramObjName() string {
	return mac.Name
}

func (mac *WifiMac) matchParam(attrbName, attrbValue string) bool {
	switch attrbName {
	case "name":
		return mac.Name == attrbValue
	case "role":
		return (attrbValue == "ap" && mac.Type == ApMacType) || (attrbValue == "sta" && mac.Type == StaMacType)
	case "ssid":
		return string(mac.Ssid) == attrbValue
	}
	return false
}

func (mac *WifiMac) setParam(param string, value valueStruct) error {
	switch param {
	case "MaxAmpduSize":
		if value.intValue < 0 || value.intValue > 65535 {
			return fmt.Errorf("MaxAmpduSize %d out of range", value.intValue)
		}
		mac.MaxAmpduSize = value.intValue
	case "QueueSize":
		if value.intValue < 1 {
			return fmt.Errorf("QueueSize must be positive")
		}
		mac.MaxQueue = value.intValue
	case "DataMode":
		return mac.station.setDataMode(value.stringValue)
	case "ControlMode":
		return mac.station.setControlMode(value.stringValue)
	default:
		return fmt.Errorf("MAC parameter %q not recognized", param)
	}
	return nil
}
