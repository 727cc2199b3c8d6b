package wifisim

// pcap.go writes the frames a device sends and receives to a pcap file: wifi devices
// with a radiotap header ahead of the 802.11 frame, CSMA devices as Ethernet.
// Application payloads are zero bytes of the recorded length

import (
	"encoding/binary"
	"fmt"
	"math"
	"net"
	"os"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

const pcapSnapLen = 65535

// PcapWriter is one open capture file
type PcapWriter struct {
	Filename string
	LinkType layers.LinkType
	Frames   int
	file     *os.File
	w        *pcapgo.Writer
}

// openPcaps lists the writers ClosePcaps will close
var openPcaps []*PcapWriter

func createPcapWriter(filename string, lt layers.LinkType) (*PcapWriter, error) {
	f, err := os.Create(filename)
	if err != nil {
		return nil, err
	}
	w := pcapgo.NewWriter(f)
	if err := w.WriteFileHeader(pcapSnapLen, lt); err != nil {
		f.Close()
		return nil, fmt.Errorf("pcap %s: %w", filename, err)
	}
	pw := &PcapWriter{Filename: filename, LinkType: lt, file: f, w: w}
	openPcaps = append(openPcaps, pw)
	return pw, nil
}

// EnablePcap opens <prefix>-<node id>-<interface index>.pcap for the device and
// attaches it.  Wifi devices get radiotap link type, CSMA devices Ethernet
func EnablePcap(prefix string, dev NetDevice) error {
	var lt layers.LinkType
	var base *deviceBase
	switch d := dev.(type) {
	case *WifiNetDevice:
		lt = layers.LinkTypeIEEE80211Radio
		base = &d.deviceBase
	case *CsmaNetDevice:
		lt = layers.LinkTypeEthernet
		base = &d.deviceBase
	default:
		return fmt.Errorf("%s: pcap is not supported on %s devices", dev.DevName(), dev.DevType())
	}
	filename := fmt.Sprintf("%s-%d-%d.pcap", prefix, dev.Node().ID, dev.IfIndex())
	pw, err := createPcapWriter(filename, lt)
	if err != nil {
		return err
	}
	base.pcapSinks = append(base.pcapSinks, pw)
	MainLog.Debugf("%s: pcap to %s", dev.DevName(), filename)
	return nil
}

// ClosePcaps flushes and closes every open capture file
func ClosePcaps() error {
	errs := []error{}
	for _, pw := range openPcaps {
		if err := pw.file.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	openPcaps = nil
	return ReportErrs(errs)
}

var serializeOpts = gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}

func (pw *PcapWriter) write(now float64, ls ...gopacket.SerializableLayer) {
	buf := gopacket.NewSerializeBuffer()
	if err := gopacket.SerializeLayers(buf, serializeOpts, ls...); err != nil {
		MainLog.Warnf("pcap %s: %v", pw.Filename, err)
		return
	}
	data := buf.Bytes()
	ci := gopacket.CaptureInfo{Timestamp: time.Unix(0, int64(math.Round(now*1e9))).UTC(),
		CaptureLength: min(len(data), pcapSnapLen), Length: len(data)}
	if err := pw.w.WritePacket(ci, data[:ci.CaptureLength]); err != nil {
		MainLog.Warnf("pcap %s: %v", pw.Filename, err)
		return
	}
	pw.Frames += 1
}

// packetLayers rebuilds the IP and transport headers a packet carries
func packetLayers(pckt *Packet) []gopacket.SerializableLayer {
	payload := gopacket.Payload(make([]byte, pckt.Payload))
	if pckt.IP == nil {
		return []gopacket.SerializableLayer{payload}
	}
	ip := &layers.IPv4{Version: 4, IHL: 5, TTL: pckt.IP.TTL, Protocol: layers.IPProtocol(pckt.IP.Proto),
		SrcIP: net.IP(pckt.IP.Src.AsSlice()), DstIP: net.IP(pckt.IP.Dst.AsSlice())}
	ls := []gopacket.SerializableLayer{ip}
	switch {
	case pckt.Udp != nil:
		udp := &layers.UDP{SrcPort: layers.UDPPort(pckt.Udp.SrcPort), DstPort: layers.UDPPort(pckt.Udp.DstPort)}
		udp.SetNetworkLayerForChecksum(ip)
		ls = append(ls, udp)
	case pckt.Tcp != nil:
		h := pckt.Tcp
		tcp := &layers.TCP{SrcPort: layers.TCPPort(h.SrcPort), DstPort: layers.TCPPort(h.DstPort),
			Seq: h.Seq, Ack: h.Ack, Window: uint16(min(h.Window, math.MaxUint16)),
			FIN: h.Flags&TcpFin != 0, SYN: h.Flags&TcpSyn != 0, RST: h.Flags&TcpRst != 0,
			PSH: h.Flags&TcpPsh != 0, ACK: h.Flags&TcpAck != 0}
		tcp.SetNetworkLayerForChecksum(ip)
		ls = append(ls, tcp)
	}
	return append(ls, payload)
}

func hwAddr(m Mac48) net.HardwareAddr {
	return net.HardwareAddr(append([]byte{}, m[:]...))
}

// WriteEthernet records a CSMA frame
func (pw *PcapWriter) WriteEthernet(now float64, pckt *Packet, src, dst Mac48, protocol uint16) {
	eth := &layers.Ethernet{SrcMAC: hwAddr(src), DstMAC: hwAddr(dst), EthernetType: layers.EthernetType(protocol)}
	pw.write(now, append([]gopacket.SerializableLayer{eth}, packetLayers(pckt)...)...)
}

func clampDbm(dbm float64) int8 {
	return int8(math.Max(math.Min(math.Round(dbm), 127), -128))
}

// radiotapHeader describes the mode and the signal and noise levels of a frame.
// gopacket decodes radiotap but does not serialize it, so the header is laid out
// here; every field used is a single byte and needs no alignment
func radiotapHeader(mode *WifiMode, signalDbm, noiseDbm float64) gopacket.Payload {
	present := layers.RadioTapPresentDBMAntennaSignal | layers.RadioTapPresentDBMAntennaNoise
	fields := []byte{}
	if mode.HT {
		present |= layers.RadioTapPresentMCS
	} else {
		present |= layers.RadioTapPresentRate
		fields = append(fields, byte(layers.RadioTapRate(mode.Rate/500e3)))
	}
	fields = append(fields, byte(clampDbm(signalDbm)), byte(clampDbm(noiseDbm)))
	if mode.HT {
		fields = append(fields, byte(layers.RadioTapMCSKnownMCSIndex|layers.RadioTapMCSKnownBandwidth|layers.RadioTapMCSKnownGuardInterval),
			0, uint8(mode.Mcs))
	}
	hdr := make([]byte, 8, 8+len(fields))
	binary.LittleEndian.PutUint16(hdr[2:], uint16(8+len(fields)))
	binary.LittleEndian.PutUint32(hdr[4:], uint32(present))
	return gopacket.Payload(append(hdr, fields...))
}

// dot11Header fills the 802.11 header of a frame
func dot11Header(f *mpdu) *layers.Dot11 {
	d := &layers.Dot11{Address1: hwAddr(f.addr1), Address2: hwAddr(f.addr2), Address3: hwAddr(f.bssid),
		SequenceNumber: f.seq}
	switch f.ftype {
	case beaconFrame:
		d.Type = layers.Dot11TypeMgmtBeacon
	case assocReqFrame:
		d.Type = layers.Dot11TypeMgmtAssociationReq
	case assocRespFrame:
		d.Type = layers.Dot11TypeMgmtAssociationResp
	default:
		d.Type = layers.Dot11TypeData
		switch {
		case f.toDs:
			d.Flags |= layers.Dot11FlagsToDS
			d.Address3 = hwAddr(f.da)
		case f.fromDs:
			d.Flags |= layers.Dot11FlagsFromDS
			d.Address3 = hwAddr(f.sa)
		}
	}
	if f.retries > 0 {
		d.Flags |= layers.Dot11FlagsRetry
	}
	return d
}

// mgmtLayers are the fixed fields and SSID element of a management frame
func mgmtLayers(f *mpdu) []gopacket.SerializableLayer {
	ssid := &layers.Dot11InformationElement{ID: layers.Dot11InformationElementIDSSID, Info: []byte(f.ssid)}
	switch f.ftype {
	case beaconFrame:
		// interval in time units, ESS capability
		return []gopacket.SerializableLayer{&layers.Dot11MgmtBeacon{Interval: 100, Flags: 1}, ssid}
	case assocReqFrame:
		return []gopacket.SerializableLayer{&layers.Dot11MgmtAssociationReq{CapabilityInfo: 1, ListenInterval: 10}, ssid}
	case assocRespFrame:
		return []gopacket.SerializableLayer{&layers.Dot11MgmtAssociationResp{CapabilityInfo: 1}}
	}
	return nil
}

// WriteWifi records an 802.11 frame sent or received in the given mode
func (pw *PcapWriter) WriteWifi(now float64, f *mpdu, mode *WifiMode, signalDbm, noiseDbm float64) {
	ls := []gopacket.SerializableLayer{radiotapHeader(mode, signalDbm, noiseDbm), dot11Header(f)}
	if f.ftype != dataFrame {
		ls = append(ls, mgmtLayers(f)...)
	} else {
		ls = append(ls, &layers.LLC{DSAP: 0xaa, SSAP: 0xaa, Control: 3},
			&layers.SNAP{OrganizationalCode: []byte{0, 0, 0}, Type: layers.EthernetType(f.protocol)})
		ls = append(ls, packetLayers(f.pckt)...)
	}
	pw.write(now, ls...)
}
