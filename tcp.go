package wifisim

// tcp.go holds the TCP socket.  Application data is counted, not carried: a segment
// records how many payload bytes it holds and the sequence numbers they occupy.
//
// Sequence numbers are kept internally as 64-bit offsets from the initial sequence
// number (which is 0), so no wrap-around arithmetic is needed; the 32-bit header
// fields are unwrapped against the nearest expected value on arrival

import (
	"fmt"
	"math"
	"net/netip"

	"github.com/iti/evt/evtm"
)

type tcpState int

const (
	tcpClosed tcpState = iota
	tcpListen
	tcpSynSent
	tcpSynRcvd
	tcpEstablished
	tcpCloseWait
	tcpLastAck
	tcpFinWait1
	tcpFinWait2
	tcpClosing
	tcpTimeWait
)

var tcpStateNames = []string{"CLOSED", "LISTEN", "SYN_SENT", "SYN_RCVD", "ESTABLISHED",
	"CLOSE_WAIT", "LAST_ACK", "FIN_WAIT_1", "FIN_WAIT_2", "CLOSING", "TIME_WAIT"}

func (ts tcpState) String() string {
	return tcpStateNames[ts]
}

const (
	maxRto           = 60.0
	rtoGranularity   = 0.001
	tcpSynRetries    = 6
	tcpTimeWaitDelay = 240.0
	dupAckThreshold  = 3
	maxAdvertisedWin = math.MaxUint32
)

// TcpSocket is one end of a TCP connection, or a listener
type TcpSocket struct {
	Name   string
	node   *Node
	state  tcpState
	local  netip.AddrPort
	remote netip.AddrPort
	bound  bool
	cc     CongestionOps
	cs     CongestionState

	segSize       int
	sndBufSize    int
	rcvBufSize    int
	delAckCount   int
	delAckTimeout float64
	minRto        float64
	connTimeout   float64

	// send side
	iss        int64
	sndUna     int64
	sndNxt     int64
	highTx     int64
	written    int64 // one past the last byte the application has handed over
	finSeq     int64 // sequence number of our FIN, -1 until one is queued
	closeReq   bool
	rwnd       int
	ackedCarry int

	// receive side
	irs        int64
	rcvNxt     int64
	ooo        map[int64]int
	oooBytes   int
	ackPending int

	// loss recovery
	dupAcks    int
	inRecovery bool
	recover    int64

	// RTT estimation
	srtt       float64
	rttvar     float64
	rto        float64
	backoff    float64
	rttTiming  bool
	rttSeq     int64
	rttStart   float64
	synRetries int

	retxTimer   *timer
	delAckTimer *timer
	closeTimer  *timer

	listener        *TcpSocket
	onConnected     func(evtMgr *evtm.EventManager, sock *TcpSocket)
	onConnectFailed func(evtMgr *evtm.EventManager, sock *TcpSocket)
	onAccept        func(evtMgr *evtm.EventManager, sock *TcpSocket)
	onRecv          func(evtMgr *evtm.EventManager, sock *TcpSocket, nbytes int)
	onPeerClose     func(evtMgr *evtm.EventManager, sock *TcpSocket)

	TxBytes         int
	RxBytes         int
	Retransmits     int
	Timeouts        int
	FastRetransmits int
}

// CreateTcpSocket is a constructor.  Sizes and timers come from the TcpSocket defaults
// and the congestion control from TcpL4Protocol::SocketType
func CreateTcpSocket(node *Node) (*TcpSocket, error) {
	if node.Ipv4 == nil {
		return nil, fmt.Errorf("%s has no internet stack", node.Name)
	}
	cc, err := CreateCongestionOps(attrString("TcpL4Protocol::SocketType"))
	if err != nil {
		return nil, err
	}
	ts := new(TcpSocket)
	ts.node = node
	ts.Name = fmt.Sprintf("%s-tcp-%d", node.Name, nxtID())
	ts.cc = cc
	ts.segSize = attrInt("TcpSocket::SegmentSize")
	ts.sndBufSize = attrInt("TcpSocket::SndBufSize")
	ts.rcvBufSize = attrInt("TcpSocket::RcvBufSize")
	ts.delAckCount = attrInt("TcpSocket::DelAckCount")
	ts.delAckTimeout = attrTime("TcpSocket::DelAckTimeout")
	ts.connTimeout = attrTime("TcpSocket::ConnTimeout")
	ts.minRto = attrTime("TcpSocketBase::MinRto")

	ts.cs = CongestionState{SegmentSize: ts.segSize,
		Cwnd:     attrInt("TcpSocket::InitialCwnd") * ts.segSize,
		SsThresh: attrInt("TcpSocket::InitialSlowStartThreshold")}
	ts.init()
	return ts, nil
}

func (ts *TcpSocket) init() {
	ts.finSeq = -1
	ts.rto = math.Max(1.0, ts.minRto)
	ts.backoff = 1.0
	ts.rwnd = ts.segSize
	ts.ooo = make(map[int64]int)
	ts.retxTimer = newTimer(ts.retxExpired)
	ts.delAckTimer = newTimer(ts.delAckExpired)
	ts.closeTimer = newTimer(ts.timeWaitExpired)
}

// fork makes the socket that carries a connection accepted by a listener
func (ts *TcpSocket) fork() *TcpSocket {
	child := &TcpSocket{node: ts.node, segSize: ts.segSize, sndBufSize: ts.sndBufSize,
		rcvBufSize: ts.rcvBufSize, delAckCount: ts.delAckCount, delAckTimeout: ts.delAckTimeout,
		minRto: ts.minRto, connTimeout: ts.connTimeout, cs: ts.cs, listener: ts, bound: true}
	child.Name = fmt.Sprintf("%s-tcp-%d", ts.node.Name, nxtID())
	child.cc, _ = CreateCongestionOps(ts.cc.Name())
	child.init()
	return child
}

// State is the connection state, e.g. "ESTABLISHED"
func (ts *TcpSocket) State() string              { return ts.state.String() }
func (ts *TcpSocket) Congestion() CongestionOps  { return ts.cc }
func (ts *TcpSocket) Cwnd() int                  { return ts.cs.Cwnd }
func (ts *TcpSocket) SsThresh() int              { return ts.cs.SsThresh }
func (ts *TcpSocket) Rto() float64               { return ts.currentRto() }
func (ts *TcpSocket) LocalAddr() netip.AddrPort  { return ts.local }
func (ts *TcpSocket) RemoteAddr() netip.AddrPort { return ts.remote }

// TxAvailable is the free space in the send buffer
func (ts *TcpSocket) TxAvailable() int {
	return max(ts.sndBufSize-int(ts.written-ts.sndUna), 0)
}

func (ts *TcpSocket) SetConnectCallback(succeeded, failed func(evtMgr *evtm.EventManager, sock *TcpSocket)) {
	ts.onConnected = succeeded
	ts.onConnectFailed = failed
}

// SetAcceptCallback is called on a listener with each new connection
func (ts *TcpSocket) SetAcceptCallback(accept func(evtMgr *evtm.EventManager, sock *TcpSocket)) {
	ts.onAccept = accept
}

// SetRecvCallback is called with the number of bytes delivered in order
func (ts *TcpSocket) SetRecvCallback(rcv func(evtMgr *evtm.EventManager, sock *TcpSocket, nbytes int)) {
	ts.onRecv = rcv
}

// SetCloseCallback is called when the peer closes its side
func (ts *TcpSocket) SetCloseCallback(closed func(evtMgr *evtm.EventManager, sock *TcpSocket)) {
	ts.onPeerClose = closed
}

// Bind claims a local port, or an ephemeral one when port is 0
func (ts *TcpSocket) Bind(port uint16) error {
	if ts.bound {
		return fmt.Errorf("%s already bound", ts.Name)
	}
	st := ts.node.sockets
	if port == 0 {
		port = st.allocPort()
	} else if st.portInUse(port) {
		return fmt.Errorf("%s: tcp port %d in use", ts.node.Name, port)
	}
	ts.local = netip.AddrPortFrom(netip.IPv4Unspecified(), port)
	ts.bound = true
	return nil
}

// Listen accepts connections on the bound port
func (ts *TcpSocket) Listen() error {
	if !ts.bound {
		return fmt.Errorf("%s: listen before bind", ts.Name)
	}
	if ts.state != tcpClosed {
		return fmt.Errorf("%s: listen in state %s", ts.Name, ts.state)
	}
	ts.state = tcpListen
	ts.node.sockets.tcpListen[ts.local.Port()] = ts
	return nil
}

// Connect starts the handshake with remote
func (ts *TcpSocket) Connect(evtMgr *evtm.EventManager, remote netip.AddrPort) error {
	if ts.state != tcpClosed {
		return fmt.Errorf("%s: connect in state %s", ts.Name, ts.state)
	}
	if !ts.bound {
		if err := ts.Bind(0); err != nil {
			return err
		}
	}
	src, err := ts.node.Ipv4.SourceFor(remote.Addr())
	if err != nil {
		return err
	}
	ts.local = netip.AddrPortFrom(src, ts.local.Port())
	ts.remote = remote
	ts.register()

	ts.state = tcpSynSent
	ts.sndUna = ts.iss
	ts.sndNxt = ts.iss + 1
	ts.highTx = ts.sndNxt
	ts.written = ts.sndNxt
	ts.rttTiming = true
	ts.rttSeq = ts.sndNxt
	ts.rttStart = evtMgr.CurrentSeconds()
	ts.sendSegment(evtMgr, TcpSyn, ts.iss, 0)
	ts.retxTimer.start(evtMgr, ts.connTimeout)
	TcpLog.Debugf("%s: connecting %s -> %s (%s)", ts.Name, ts.local, remote, ts.cc.Name())
	return nil
}

func (ts *TcpSocket) register() {
	ts.node.sockets.tcpConns[tcpEndpoints{localPort: ts.local.Port(), remote: ts.remote}] = ts
}

func (ts *TcpSocket) unregister() {
	st := ts.node.sockets
	key := tcpEndpoints{localPort: ts.local.Port(), remote: ts.remote}
	if st.tcpConns[key] == ts {
		delete(st.tcpConns, key)
	}
	if st.tcpListen[ts.local.Port()] == ts {
		delete(st.tcpListen, ts.local.Port())
	}
}

// Send hands nbytes of application data to the socket.  Data is accepted whole or
// not at all; the return is the number of bytes accepted
func (ts *TcpSocket) Send(evtMgr *evtm.EventManager, nbytes int) int {
	switch ts.state {
	case tcpSynSent, tcpSynRcvd, tcpEstablished, tcpCloseWait:
	default:
		return 0
	}
	if ts.closeReq || nbytes <= 0 || nbytes > ts.TxAvailable() {
		return 0
	}
	ts.written += int64(nbytes)
	ts.sendPending(evtMgr)
	return nbytes
}

// Close sends a FIN once the data written so far has been sent
func (ts *TcpSocket) Close(evtMgr *evtm.EventManager) {
	switch ts.state {
	case tcpClosed, tcpListen, tcpSynSent:
		ts.state = tcpClosed
		ts.retxTimer.cancel()
		ts.unregister()
	case tcpSynRcvd, tcpEstablished, tcpCloseWait:
		ts.closeReq = true
		ts.sendPending(evtMgr)
	}
}

// sendSegment builds a segment and passes it to the IP layer
func (ts *TcpSocket) sendSegment(evtMgr *evtm.EventManager, flags uint8, seq int64, nbytes int) {
	pckt := NewPacket(nbytes, evtMgr.CurrentSeconds())
	if ts.state != tcpSynSent {
		flags |= TcpAck
	}
	pckt.Tcp = &TcpHeader{SrcPort: ts.local.Port(), DstPort: ts.remote.Port(),
		Seq: uint32(seq), Ack: uint32(ts.rcvNxt), Flags: flags, Window: ts.advertisedWindow()}
	if flags&TcpAck != 0 {
		ts.ackPending = 0
		ts.delAckTimer.cancel()
	}
	ts.node.Ipv4.Send(evtMgr, pckt, ts.local.Addr(), ts.remote.Addr(), IpProtoTcp)
}

func (ts *TcpSocket) sendAck(evtMgr *evtm.EventManager) {
	ts.sendSegment(evtMgr, 0, ts.sndNxt, 0)
}

func (ts *TcpSocket) advertisedWindow() uint32 {
	return uint32(min(max(ts.rcvBufSize-ts.oooBytes, 0), maxAdvertisedWin))
}

func (ts *TcpSocket) currentRto() float64 {
	return math.Min(ts.rto*ts.backoff, maxRto)
}

// updateRto folds an RTT sample into the estimator
func (ts *TcpSocket) updateRto(sample float64) {
	if ts.srtt == 0 {
		ts.srtt = sample
		ts.rttvar = sample / 2
	} else {
		ts.rttvar = 0.75*ts.rttvar + 0.25*math.Abs(ts.srtt-sample)
		ts.srtt = 0.875*ts.srtt + 0.125*sample
	}
	ts.rto = math.Max(ts.minRto, ts.srtt+math.Max(rtoGranularity, 4*ts.rttvar))
	ts.backoff = 1.0
}

// Srtt is the smoothed round trip time
func (ts *TcpSocket) Srtt() float64 {
	return ts.srtt
}

// sendPending sends what the congestion and receive windows allow, then the FIN if one is due
func (ts *TcpSocket) sendPending(evtMgr *evtm.EventManager) {
	switch ts.state {
	case tcpEstablished, tcpCloseWait, tcpFinWait1, tcpLastAck, tcpClosing:
	default:
		return
	}
	win := min(ts.cs.Cwnd, ts.rwnd)
	dataEnd := ts.written
	for {
		avail := int(dataEnd - ts.sndNxt)
		if avail <= 0 {
			break
		}
		seg := min(ts.segSize, avail)
		inFlight := int(ts.sndNxt - ts.sndUna)
		if win-inFlight < seg {
			break
		}
		ts.sendData(evtMgr, ts.sndNxt, seg)
		ts.sndNxt += int64(seg)
		if ts.sndNxt > ts.highTx {
			ts.highTx = ts.sndNxt
		}
	}

	if ts.closeReq && ts.finSeq < 0 && ts.sndNxt == ts.written {
		ts.finSeq = ts.written
		switch ts.state {
		case tcpEstablished:
			ts.state = tcpFinWait1
		case tcpCloseWait:
			ts.state = tcpLastAck
		}
	}
	if ts.finSeq >= 0 && ts.sndNxt == ts.finSeq {
		ts.sendSegment(evtMgr, TcpFin, ts.finSeq, 0)
		ts.sndNxt = ts.finSeq + 1
		if ts.sndNxt > ts.highTx {
			ts.highTx = ts.sndNxt
		}
		if !ts.retxTimer.isRunning() {
			ts.retxTimer.start(evtMgr, ts.currentRto())
		}
	}
}

// sendData sends nbytes starting at seq; sequence numbers below highTx are retransmissions
func (ts *TcpSocket) sendData(evtMgr *evtm.EventManager, seq int64, nbytes int) {
	if seq < ts.highTx {
		ts.Retransmits += 1
	} else {
		ts.TxBytes += nbytes
		if !ts.rttTiming {
			ts.rttTiming = true
			ts.rttSeq = seq + int64(nbytes)
			ts.rttStart = evtMgr.CurrentSeconds()
		}
	}
	ts.sendSegment(evtMgr, TcpPsh, seq, nbytes)
	if !ts.retxTimer.isRunning() {
		ts.retxTimer.start(evtMgr, ts.currentRto())
	}
}

// retransmitHead resends the oldest unacknowledged segment
func (ts *TcpSocket) retransmitHead(evtMgr *evtm.EventManager) {
	ts.rttTiming = false
	if ts.finSeq >= 0 && ts.sndUna >= ts.finSeq {
		ts.sendSegment(evtMgr, TcpFin, ts.finSeq, 0)
	} else {
		dataEnd := min(ts.written, ts.highTx)
		nbytes := min(ts.segSize, int(dataEnd-ts.sndUna))
		if nbytes <= 0 {
			return
		}
		ts.sendData(evtMgr, ts.sndUna, nbytes)
	}
	ts.retxTimer.start(evtMgr, ts.currentRto())
}

// retxExpired handles the retransmission timeout
func (ts *TcpSocket) retxExpired(evtMgr *evtm.EventManager) {
	switch ts.state {
	case tcpSynSent, tcpSynRcvd:
		ts.synRetries += 1
		if ts.synRetries > tcpSynRetries {
			TcpLog.Warnf("%s: connection to %s timed out", ts.Name, ts.remote)
			failed := ts.state == tcpSynSent
			ts.state = tcpClosed
			ts.unregister()
			if failed && ts.onConnectFailed != nil {
				ts.onConnectFailed(evtMgr, ts)
			}
			return
		}
		ts.rttTiming = false
		ts.backoff *= 2
		ts.sendSegment(evtMgr, TcpSyn, ts.iss, 0)
		ts.retxTimer.start(evtMgr, math.Min(ts.connTimeout*ts.backoff, maxRto))
		return
	case tcpClosed, tcpListen, tcpTimeWait, tcpFinWait2:
		return
	}
	if ts.sndUna >= ts.highTx {
		return
	}

	ts.Timeouts += 1
	inFlight := int(ts.highTx - ts.sndUna)
	ts.cs.SsThresh = ts.cc.SsThresh(&ts.cs, inFlight)
	ts.cs.Cwnd = ts.segSize
	ts.cs.cwndCnt = 0
	ts.inRecovery = false
	ts.dupAcks = 0
	ts.rttTiming = false
	ts.backoff = math.Min(ts.backoff*2, maxRto)
	TcpLog.Debugf("%s: timeout at %d, ssthresh %d, rto %.3f", ts.Name, ts.sndUna, ts.cs.SsThresh, ts.currentRto())

	// go back to the first unacknowledged byte
	ts.sndNxt = ts.sndUna
	ts.retxTimer.start(evtMgr, ts.currentRto())
	ts.sendPending(evtMgr)
}

func (ts *TcpSocket) delAckExpired(evtMgr *evtm.EventManager) {
	if ts.ackPending > 0 {
		ts.sendAck(evtMgr)
	}
}

func (ts *TcpSocket) timeWaitExpired(evtMgr *evtm.EventManager) {
	ts.state = tcpClosed
	ts.unregister()
}

// unwrap maps a 32-bit sequence number to the 64-bit value nearest base
func unwrap(base int64, v uint32) int64 {
	return base + int64(int32(v-uint32(base)))
}

// receive is given every segment addressed to this socket
func (ts *TcpSocket) receive(evtMgr *evtm.EventManager, pckt *Packet) {
	h := pckt.Tcp
	if h.Flags&TcpRst != 0 {
		ts.reset(evtMgr)
		return
	}

	switch ts.state {
	case tcpListen:
		ts.receiveListen(evtMgr, pckt)
	case tcpSynSent:
		ts.receiveSynSent(evtMgr, pckt)
	case tcpSynRcvd:
		if h.Flags&TcpSyn != 0 {
			// our SYN-ACK was lost
			ts.sendSegment(evtMgr, TcpSyn, ts.iss, 0)
			return
		}
		if h.Flags&TcpAck == 0 || unwrap(ts.sndUna, h.Ack) != ts.iss+1 {
			return
		}
		ts.retxTimer.cancel()
		ts.sndUna = ts.iss + 1
		ts.backoff = 1.0
		ts.rwnd = int(h.Window)
		ts.state = tcpEstablished
		TcpLog.Debugf("%s: accepted %s", ts.Name, ts.remote)
		if ts.listener != nil && ts.listener.onAccept != nil {
			ts.listener.onAccept(evtMgr, ts)
		}
		ts.receiveSynchronized(evtMgr, pckt)
	case tcpClosed:
		return
	default:
		ts.receiveSynchronized(evtMgr, pckt)
	}
}

func (ts *TcpSocket) reset(evtMgr *evtm.EventManager) {
	failed := ts.state == tcpSynSent
	ts.state = tcpClosed
	ts.retxTimer.cancel()
	ts.delAckTimer.cancel()
	ts.unregister()
	if failed && ts.onConnectFailed != nil {
		ts.onConnectFailed(evtMgr, ts)
	}
}

// receiveListen forks a socket for each new connection request
func (ts *TcpSocket) receiveListen(evtMgr *evtm.EventManager, pckt *Packet) {
	h := pckt.Tcp
	if h.Flags&TcpSyn == 0 || h.Flags&TcpAck != 0 {
		return
	}
	child := ts.fork()
	child.local = netip.AddrPortFrom(pckt.IP.Dst, ts.local.Port())
	child.remote = netip.AddrPortFrom(pckt.IP.Src, h.SrcPort)
	child.register()
	child.state = tcpSynRcvd
	child.irs = int64(h.Seq)
	child.rcvNxt = child.irs + 1
	child.rwnd = int(h.Window)
	child.sndUna = child.iss
	child.sndNxt = child.iss + 1
	child.highTx = child.sndNxt
	child.written = child.sndNxt
	child.sendSegment(evtMgr, TcpSyn, child.iss, 0)
	child.retxTimer.start(evtMgr, child.connTimeout)
}

func (ts *TcpSocket) receiveSynSent(evtMgr *evtm.EventManager, pckt *Packet) {
	h := pckt.Tcp
	if h.Flags&TcpSyn == 0 || h.Flags&TcpAck == 0 || unwrap(ts.sndUna, h.Ack) != ts.iss+1 {
		return
	}
	now := evtMgr.CurrentSeconds()
	ts.retxTimer.cancel()
	if ts.rttTiming {
		ts.updateRto(now - ts.rttStart)
		ts.rttTiming = false
	}
	ts.irs = int64(h.Seq)
	ts.rcvNxt = ts.irs + 1
	ts.sndUna = ts.iss + 1
	ts.rwnd = int(h.Window)
	ts.state = tcpEstablished
	ts.sendAck(evtMgr)
	TcpLog.Debugf("%s: connected to %s at %.6fs", ts.Name, ts.remote, now)
	if ts.onConnected != nil {
		ts.onConnected(evtMgr, ts)
	}
	ts.sendPending(evtMgr)
}

// receiveSynchronized handles segments once the handshake is complete
func (ts *TcpSocket) receiveSynchronized(evtMgr *evtm.EventManager, pckt *Packet) {
	h := pckt.Tcp
	if h.Flags&TcpSyn != 0 {
		// the peer did not see our ack of its SYN
		ts.sendAck(evtMgr)
		return
	}
	if h.Flags&TcpAck != 0 {
		ts.processAck(evtMgr, h, pckt.Payload)
	}
	if ts.state == tcpClosed {
		return
	}
	seq := unwrap(ts.rcvNxt, h.Seq)
	if pckt.Payload > 0 {
		ts.processData(evtMgr, seq, pckt.Payload)
	}
	if h.Flags&TcpFin != 0 {
		ts.processFin(evtMgr, seq+int64(pckt.Payload))
	}
}

// processAck applies an acknowledgement: new data acknowledged grows the window or
// advances recovery; repeated acknowledgements trigger fast retransmit
func (ts *TcpSocket) processAck(evtMgr *evtm.EventManager, h *TcpHeader, payload int) {
	now := evtMgr.CurrentSeconds()
	ack := unwrap(ts.sndUna, h.Ack)
	ts.rwnd = int(h.Window)
	if ack > ts.highTx {
		return
	}

	if ack > ts.sndUna {
		acked := int(ack - ts.sndUna)
		rtt := 0.0
		if ts.rttTiming && ack >= ts.rttSeq {
			rtt = now - ts.rttStart
			ts.rttTiming = false
			ts.updateRto(rtt)
		}
		ts.backoff = 1.0
		ts.sndUna = ack
		if ts.sndNxt < ack {
			ts.sndNxt = ack
		}

		ts.ackedCarry += acked
		segs := ts.ackedCarry / ts.segSize
		ts.ackedCarry -= segs * ts.segSize

		switch {
		case ts.inRecovery && ts.cc.recoveryStyle() == partialAckRecovery && ack < ts.recover:
			// a partial ack shows the next hole was lost too
			ts.retransmitHead(evtMgr)
			ts.cs.Cwnd = max(ts.cs.Cwnd-acked+ts.segSize, ts.segSize)
		case ts.inRecovery:
			ts.inRecovery = false
			ts.dupAcks = 0
			ts.cs.Cwnd = ts.cs.SsThresh
		default:
			ts.dupAcks = 0
			ts.cc.IncreaseWindow(&ts.cs, segs)
		}
		ts.cc.PktsAcked(&ts.cs, acked, rtt, now)

		if ts.sndUna >= ts.highTx {
			ts.retxTimer.cancel()
		} else {
			ts.retxTimer.start(evtMgr, ts.currentRto())
		}
		if ts.finSeq >= 0 && ack > ts.finSeq {
			ts.finAcked(evtMgr)
			return
		}
		ts.sendPending(evtMgr)
		return
	}

	if ack != ts.sndUna || payload > 0 || ts.highTx <= ts.sndUna || h.Flags&TcpFin != 0 {
		return
	}
	ts.dupAcks += 1
	switch {
	case ts.dupAcks == dupAckThreshold && !ts.inRecovery:
		ts.enterRecovery(evtMgr)
	case ts.dupAcks > dupAckThreshold && ts.inRecovery:
		// each further duplicate means another segment has left the network
		ts.cs.Cwnd += ts.segSize
		ts.sendPending(evtMgr)
	}
}

// enterRecovery is the fast retransmit after three duplicate acknowledgements
func (ts *TcpSocket) enterRecovery(evtMgr *evtm.EventManager) {
	inFlight := int(ts.highTx - ts.sndUna)
	ts.cs.SsThresh = ts.cc.SsThresh(&ts.cs, inFlight)
	ts.FastRetransmits += 1
	TcpLog.Debugf("%s: fast retransmit at %d, ssthresh %d", ts.Name, ts.sndUna, ts.cs.SsThresh)

	if ts.cc.recoveryStyle() == noFastRecovery {
		ts.cs.Cwnd = ts.segSize
		ts.cs.cwndCnt = 0
		ts.dupAcks = 0
		ts.rttTiming = false
		ts.sndNxt = ts.sndUna
		ts.sendPending(evtMgr)
		return
	}
	ts.inRecovery = true
	ts.recover = ts.highTx
	ts.cs.Cwnd = ts.cs.SsThresh + dupAckThreshold*ts.segSize
	ts.retransmitHead(evtMgr)
	ts.sendPending(evtMgr)
}

// finAcked moves the close sequence on once our FIN is acknowledged
func (ts *TcpSocket) finAcked(evtMgr *evtm.EventManager) {
	ts.retxTimer.cancel()
	switch ts.state {
	case tcpFinWait1:
		ts.state = tcpFinWait2
	case tcpClosing:
		ts.state = tcpTimeWait
		ts.closeTimer.start(evtMgr, tcpTimeWaitDelay)
	case tcpLastAck:
		ts.state = tcpClosed
		ts.unregister()
	}
}

// processData accepts payload bytes at seq: in-order bytes are delivered at once,
// along with any buffered bytes they make contiguous; bytes beyond a hole are buffered
func (ts *TcpSocket) processData(evtMgr *evtm.EventManager, seq int64, nbytes int) {
	end := seq + int64(nbytes)
	switch {
	case end <= ts.rcvNxt:
		// all seen before
		ts.sendAck(evtMgr)
	case end > ts.rcvNxt+int64(ts.rcvBufSize):
		// beyond the window
		ts.sendAck(evtMgr)
	case seq <= ts.rcvNxt:
		hadGap := len(ts.ooo) > 0
		ts.deliver(evtMgr, int(end-ts.rcvNxt))
		ts.rcvNxt = end
		ts.pullBuffered(evtMgr)
		if hadGap {
			ts.sendAck(evtMgr)
		} else {
			ts.delayedAck(evtMgr)
		}
	default:
		if prev, present := ts.ooo[seq]; !present || prev < nbytes {
			ts.oooBytes += nbytes - prev
			ts.ooo[seq] = nbytes
		}
		ts.sendAck(evtMgr)
	}
}

// pullBuffered delivers buffered segments that are now in order
func (ts *TcpSocket) pullBuffered(evtMgr *evtm.EventManager) {
	for progress := true; progress; {
		progress = false
		for seq, nbytes := range ts.ooo {
			if seq > ts.rcvNxt {
				continue
			}
			delete(ts.ooo, seq)
			ts.oooBytes -= nbytes
			if end := seq + int64(nbytes); end > ts.rcvNxt {
				ts.deliver(evtMgr, int(end-ts.rcvNxt))
				ts.rcvNxt = end
			}
			progress = true
		}
	}
}

func (ts *TcpSocket) deliver(evtMgr *evtm.EventManager, nbytes int) {
	ts.RxBytes += nbytes
	if ts.onRecv != nil {
		ts.onRecv(evtMgr, ts, nbytes)
	}
}

// delayedAck acknowledges every delAckCount segments, or when the timer runs out
func (ts *TcpSocket) delayedAck(evtMgr *evtm.EventManager) {
	ts.ackPending += 1
	if ts.ackPending >= ts.delAckCount {
		ts.sendAck(evtMgr)
		return
	}
	if !ts.delAckTimer.isRunning() {
		ts.delAckTimer.start(evtMgr, ts.delAckTimeout)
	}
}

// processFin handles the peer's FIN at sequence number finAt
func (ts *TcpSocket) processFin(evtMgr *evtm.EventManager, finAt int64) {
	if finAt != ts.rcvNxt {
		// it follows a hole; it will come again
		return
	}
	ts.rcvNxt += 1
	ts.sendAck(evtMgr)
	switch ts.state {
	case tcpEstablished:
		ts.state = tcpCloseWait
		if ts.onPeerClose != nil {
			ts.onPeerClose(evtMgr, ts)
		}
	case tcpFinWait1:
		ts.state = tcpClosing
	case tcpFinWait2:
		ts.state = tcpTimeWait
		ts.closeTimer.start(evtMgr, tcpTimeWaitDelay)
	}
}
