package wifisim

// wifi-channel.go connects the PHYs of wifi devices.  A PPDU put on the channel
// reaches every other attached PHY after the propagation delay, with a power set
// by the loss models.  Access to the channel is arbitrated by its Medium

import (
	"fmt"

	"github.com/iti/evt/evtm"
)

// YansWifiChannel holds the PHYs sharing a frequency and the models between them
type YansWifiChannel struct {
	ID     int
	Name   string
	Delay  PropagationDelayModel
	Loss   PropagationLossModel
	phys   []*WifiPhy
	medium *Medium
}

// createYansWifiChannel is a constructor
func createYansWifiChannel(delay PropagationDelayModel, loss PropagationLossModel) *YansWifiChannel {
	ch := new(YansWifiChannel)
	ch.ID = nxtID()
	ch.Name = fmt.Sprintf("wifi-channel-%d", ch.ID)
	ch.Delay = delay
	ch.Loss = loss
	ch.phys = []*WifiPhy{}
	ch.medium = createMedium(ch.Name)
	return ch
}

// Add attaches a PHY to the channel
func (ch *YansWifiChannel) Add(phy *WifiPhy) {
	ch.phys = append(ch.phys, phy)
	phy.channel = ch
}

// NPhys is the number of attached PHYs
func (ch *YansWifiChannel) NPhys() int {
	return len(ch.phys)
}

// Medium returns the arbiter of the channel
func (ch *YansWifiChannel) Medium() *Medium {
	return ch.medium
}

// wifiPpdu is one transmission: one MPDU, or an A-MPDU, sent with one mode.
// The outcome fields describe what happened at the addressed receiver and are
// filled in when the PPDU is put on the channel
type wifiPpdu struct {
	mpdus      []*mpdu
	mode       *WifiMode
	psduBytes  int
	duration   float64
	txPowerDbm float64
	sender     *WifiPhy
	receiver   Mac48

	// response expected from the receiver (ACK or BlockAck), if any
	respMode  *WifiMode
	respBytes int

	reached bool
	rxOk    []bool
	respOk  bool
}

// rxEvent is what a PHY is handed when a PPDU has fully arrived
type rxEvent struct {
	ppdu  *wifiPpdu
	ok    []bool
	rxDbm float64
}

// transmit puts the PPDU on the channel.  Reception at each PHY is decided now,
// from the positions at the start of transmission, and delivered when the last bit arrives
func (ch *YansWifiChannel) transmit(evtMgr *evtm.EventManager, ppdu *wifiPpdu) {
	now := evtMgr.CurrentSeconds()
	sender := ppdu.sender
	senderPos := sender.device.Node().Position(now)
	sender.Tx += 1

	for _, phy := range ch.phys {
		if phy == sender {
			continue
		}
		rxPos := phy.device.Node().Position(now)
		rxDbm := ch.Loss.CalcRxPower(ppdu.txPowerDbm, senderPos, rxPos)
		if !phy.canDetect(rxDbm) {
			phy.RxBelowEd += 1
			continue
		}

		snr := phy.Snr(rxDbm)
		ok := make([]bool, len(ppdu.mpdus))
		for idx, frame := range ppdu.mpdus {
			ok[idx] = phy.mpduSuccess(ppdu.mode, snr, frame.size())
		}

		if phy.device.Address() == ppdu.receiver {
			ppdu.reached = true
			ppdu.rxOk = ok

			// the response travels back over the same path
			if ppdu.respMode != nil && anyTrue(ok) {
				backDbm := ch.Loss.CalcRxPower(phy.TxPowerDbm(), rxPos, senderPos)
				if sender.canDetect(backDbm) {
					ppdu.respOk = sender.mpduSuccess(ppdu.respMode, sender.Snr(backDbm), ppdu.respBytes)
				}
			}
		}

		delay := ch.Delay.Delay(senderPos, rxPos)
		scheduleIn(evtMgr, ppdu.duration+delay, phy, rxEvent{ppdu: ppdu, ok: ok, rxDbm: rxDbm}, phyRxEndHdlr)
	}
}

// phyRxEndHdlr passes the frames that survived to the MAC of the receiving PHY
func phyRxEndHdlr(evtMgr *evtm.EventManager, context any, data any) any {
	phy := context.(*WifiPhy)
	ev := data.(rxEvent)
	now := evtMgr.CurrentSeconds()
	noiseDbm := wToDbm(phy.NoiseW())

	for idx, frame := range ev.ppdu.mpdus {
		if !ev.ok[idx] {
			phy.RxErr += 1
			continue
		}
		phy.RxOk += 1
		for _, pw := range phy.device.pcapSinks {
			pw.WriteWifi(now, frame, ev.ppdu.mode, ev.rxDbm+phy.RxGain, noiseDbm)
		}
		phy.device.mac.receive(evtMgr, frame)
	}
	return nil
}

func anyTrue(flags []bool) bool {
	for _, f := range flags {
		if f {
			return true
		}
	}
	return false
}

// YansWifiChannelHelper builds channels from a delay model and a chain of loss models
type YansWifiChannelHelper struct {
	delay  PropagationDelayModel
	losses lossChain
}

// NewYansWifiChannelHelper returns a helper with no models; both a delay model
// and at least one loss model must be given before Create
func NewYansWifiChannelHelper() *YansWifiChannelHelper {
	return &YansWifiChannelHelper{losses: lossChain{}}
}

// DefaultYansWifiChannelHelper uses constant-speed delay and log-distance loss
func DefaultYansWifiChannelHelper() *YansWifiChannelHelper {
	ch := NewYansWifiChannelHelper()
	ch.SetPropagationDelay(NewConstantSpeedPropagationDelay())
	ch.AddPropagationLoss(NewLogDistancePropagationLoss())
	return ch
}

func (ych *YansWifiChannelHelper) SetPropagationDelay(delay PropagationDelayModel) {
	ych.delay = delay
}

// AddPropagationLoss appends a loss model, applied after those already added
func (ych *YansWifiChannelHelper) AddPropagationLoss(loss PropagationLossModel) {
	ych.losses = append(ych.losses, loss)
}

// Create returns a new channel with the helper's models
func (ych *YansWifiChannelHelper) Create() (*YansWifiChannel, error) {
	if ych.delay == nil {
		return nil, fmt.Errorf("wifi channel helper has no propagation delay model")
	}
	if len(ych.losses) == 0 {
		return nil, fmt.Errorf("wifi channel helper has no propagation loss model")
	}
	var loss PropagationLossModel = ych.losses
	if len(ych.losses) == 1 {
		loss = ych.losses[0]
	}
	ch := createYansWifiChannel(ych.delay, loss)
	PhyLog.Debugf("created %s", ch.Name)
	return ch, nil
}
