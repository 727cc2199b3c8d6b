package wifisim

// onoff.go holds the on/off traffic generator.  It alternates between on periods,
// during which it sends PacketSize-byte packets at DataRate, and off periods when it
// is silent; the length of each period is drawn from the OnTime and OffTime random
// variables.  A packet that was partly timed when an on period ended is finished
// first when the next one begins

import (
	"fmt"
	"net/netip"
	"strconv"
	"strings"

	"github.com/iti/evt/evtm"
	"github.com/iti/rngstream"
	"golang.org/x/exp/slices"
)

// OnOffApplication sends to a remote address over TCP, UDP or a packet socket
type OnOffApplication struct {
	Name         string
	Groups       []string
	node         *Node
	Protocol     string
	Remote       netip.AddrPort
	PacketRemote PacketSocketAddress
	PacketSize   int
	DataRate     DataRate
	OnTime       RandomVariable
	OffTime      RandomVariable
	MaxBytes     int // 0 for no limit

	rng           *rngstream.RngStream
	running       bool
	residualBits  float64
	lastStartTime float64
	sendTimer     *timer
	switchTimer   *timer
	udp           *UdpSocket
	tcp           *TcpSocket
	pkt           *PacketSocket

	TotBytes  int
	TxPackets int
	Unsent    int
}

// CreateOnOffApplication is a constructor.  remote is a netip.AddrPort for TCP and UDP
// sockets and a PacketSocketAddress for packet sockets
func CreateOnOffApplication(node *Node, protocol string, remote any) (*OnOffApplication, error) {
	factory, err := socketFactory(protocol)
	if err != nil {
		return nil, err
	}
	app := new(OnOffApplication)
	app.node = node
	app.Name = fmt.Sprintf("%s-onoff-%d", node.Name, nxtID())
	app.Protocol = factory
	switch addr := remote.(type) {
	case netip.AddrPort:
		if factory == PacketSocketFactory {
			return nil, fmt.Errorf("%s: packet sockets need a PacketSocketAddress", app.Name)
		}
		app.Remote = addr
	case PacketSocketAddress:
		if factory != PacketSocketFactory {
			return nil, fmt.Errorf("%s: %s needs an address and port", app.Name, factory)
		}
		app.PacketRemote = addr
	default:
		return nil, fmt.Errorf("%s: remote address of type %T not recognized", app.Name, remote)
	}
	app.PacketSize = attrInt("OnOffApplication::PacketSize")
	app.DataRate, _ = ParseDataRate("500kb/s")
	app.OnTime = ConstantRV{Value: 1.0}
	app.OffTime = ConstantRV{Value: 1.0}
	app.rng = rngstream.New(app.Name)
	app.sendTimer = newTimer(app.sendPacket)
	app.switchTimer = newTimer(nil)
	return app, nil
}

func (app *OnOffApplication) AppName() string { return app.Name }
func (app *OnOffApplication) AppNode() *Node  { return app.node }

// SetConstantRate makes the application send continuously at rate
func (app *OnOffApplication) SetConstantRate(rate DataRate, packetSize int) {
	app.OnTime = ConstantRV{Value: 1000}
	app.OffTime = ConstantRV{Value: 0}
	app.DataRate = rate
	if packetSize > 0 {
		app.PacketSize = packetSize
	}
}

// SetAttribute sets PacketSize, DataRate, OnTime, OffTime or MaxBytes from its string form
func (app *OnOffApplication) SetAttribute(name, value string) error {
	switch name {
	case "PacketSize", "MaxBytes":
		v, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil || v < 0 {
			return fmt.Errorf("%s: bad %s %q", app.Name, name, value)
		}
		if name == "PacketSize" {
			if v == 0 {
				return fmt.Errorf("%s: PacketSize must be positive", app.Name)
			}
			app.PacketSize = v
		} else {
			app.MaxBytes = v
		}
	case "DataRate":
		rate, err := ParseDataRate(value)
		if err != nil {
			return fmt.Errorf("%s: %w", app.Name, err)
		}
		if rate <= 0 {
			return fmt.Errorf("%s: DataRate must be positive", app.Name)
		}
		app.DataRate = rate
	case "OnTime", "OffTime":
		rv, err := ParseRandomVariable(value)
		if err != nil {
			return fmt.Errorf("%s: %w", app.Name, err)
		}
		if name == "OnTime" {
			app.OnTime = rv
		} else {
			app.OffTime = rv
		}
	default:
		return fmt.Errorf("on/off application attribute %q not recognized", name)
	}
	return nil
}

// matchParam, paramObjName and setParam let ExpParameters of type "App" reach the application
func (app *OnOffApplication) matchParam(attrbName, attrbValue string) bool {
	switch attrbName {
	case "name":
		return app.Name == attrbValue
	case "group":
		return slices.Contains(app.Groups, attrbValue)
	case "protocol":
		return app.Protocol == strings.TrimPrefix(attrbValue, "ns3::")
	}
	return false
}

func (app *OnOffApplication) paramObjName() string {
	return app.Name
}

func (app *OnOffApplication) setParam(param string, value valueStruct) error {
	return app.SetAttribute(param, value.stringValue)
}

// openSocket creates and connects the socket of the application's type
func (app *OnOffApplication) openSocket(evtMgr *evtm.EventManager) error {
	switch app.Protocol {
	case UdpSocketFactory:
		sock, err := CreateUdpSocket(app.node)
		if err != nil {
			return err
		}
		if err := sock.Connect(app.Remote); err != nil {
			return err
		}
		app.udp = sock
	case TcpSocketFactory:
		sock, err := CreateTcpSocket(app.node)
		if err != nil {
			return err
		}
		sock.SetConnectCallback(
			func(evtMgr *evtm.EventManager, sock *TcpSocket) {
				AppLog.Debugf("%s: connected to %s", app.Name, sock.RemoteAddr())
			},
			func(evtMgr *evtm.EventManager, sock *TcpSocket) {
				AppLog.Errorf("%s: connection to %s failed", app.Name, sock.RemoteAddr())
			})
		if err := sock.Connect(evtMgr, app.Remote); err != nil {
			return err
		}
		app.tcp = sock
	case PacketSocketFactory:
		sock := CreatePacketSocket(app.node)
		if err := sock.Connect(app.PacketRemote); err != nil {
			return err
		}
		app.pkt = sock
	}
	return nil
}

func (app *OnOffApplication) startApplication(evtMgr *evtm.EventManager) {
	if app.running {
		return
	}
	if err := app.openSocket(evtMgr); err != nil {
		AppLog.Errorf("%s: %v", app.Name, err)
		return
	}
	app.running = true
	app.scheduleStartEvent(evtMgr)
}

func (app *OnOffApplication) stopApplication(evtMgr *evtm.EventManager) {
	if !app.running {
		return
	}
	app.cancelEvents(evtMgr)
	app.switchTimer.cancel()
	app.running = false
	switch {
	case app.tcp != nil:
		app.tcp.Close(evtMgr)
	case app.udp != nil:
		app.udp.Close()
	case app.pkt != nil:
		app.pkt.Close()
	}
	AppLog.Infof("%s: sent %d bytes in %d packets, %d not accepted", app.Name, app.TotBytes, app.TxPackets, app.Unsent)
}

// scheduleStartEvent begins the next on period after an off period
func (app *OnOffApplication) scheduleStartEvent(evtMgr *evtm.EventManager) {
	offInterval := app.OffTime.Sample(app.rng)
	app.switchTimer.expire = app.startSending
	app.switchTimer.start(evtMgr, offInterval)
}

// scheduleStopEvent ends the on period just begun
func (app *OnOffApplication) scheduleStopEvent(evtMgr *evtm.EventManager) {
	onInterval := app.OnTime.Sample(app.rng)
	app.switchTimer.expire = app.stopSending
	app.switchTimer.start(evtMgr, onInterval)
}

func (app *OnOffApplication) startSending(evtMgr *evtm.EventManager) {
	app.lastStartTime = evtMgr.CurrentSeconds()
	app.scheduleNextTx(evtMgr)
	app.scheduleStopEvent(evtMgr)
}

func (app *OnOffApplication) stopSending(evtMgr *evtm.EventManager) {
	app.cancelEvents(evtMgr)
	app.scheduleStartEvent(evtMgr)
}

// cancelEvents withdraws the pending send, keeping the bits already timed
func (app *OnOffApplication) cancelEvents(evtMgr *evtm.EventManager) {
	if app.sendTimer.isRunning() {
		delta := evtMgr.CurrentSeconds() - app.lastStartTime
		app.residualBits += delta * float64(app.DataRate)
		app.sendTimer.cancel()
	}
}

// scheduleNextTx times the next packet at the data rate
func (app *OnOffApplication) scheduleNextTx(evtMgr *evtm.EventManager) {
	if app.MaxBytes > 0 && app.TotBytes >= app.MaxBytes {
		app.stopApplication(evtMgr)
		return
	}
	bits := float64(app.PacketSize*8) - app.residualBits
	app.sendTimer.start(evtMgr, bits/float64(app.DataRate))
}

func (app *OnOffApplication) sendPacket(evtMgr *evtm.EventManager) {
	now := evtMgr.CurrentSeconds()
	accepted := false
	switch {
	case app.tcp != nil:
		accepted = app.tcp.Send(evtMgr, app.PacketSize) == app.PacketSize
	case app.udp != nil:
		accepted = app.udp.Send(evtMgr, NewPacket(app.PacketSize, now))
	case app.pkt != nil:
		accepted = app.pkt.Send(evtMgr, NewPacket(app.PacketSize, now))
	}
	app.TxPackets += 1
	if accepted {
		app.TotBytes += app.PacketSize
	} else {
		app.Unsent += 1
	}
	app.residualBits = 0
	app.lastStartTime = now
	app.scheduleNextTx(evtMgr)
}
