package wifisim

// medium.go arbitrates access to a shared transmission medium.
//
// Every transmitter that has something to send asks for the medium.  Requests are
// served first-come first-serve, one at a time: when a request is granted the
// transmitter is told to start its transmit opportunity (TXOP) and reports how
// long the medium stays busy.  When that time has passed the transmitter is told
// the TXOP is over, and the next waiting request is granted.  A transmitter that
// still has work re-enters the queue at the tail, which spreads the medium among
// contenders round-robin

import (
	"github.com/iti/evt/evtm"
	"golang.org/x/exp/slices"
)

// mediumUser is satisfied by anything that contends for a Medium
type mediumUser interface {
	// startTxop begins a transmission and returns how long it holds the medium.
	// A return of zero or less means there was nothing to send after all
	startTxop(evtMgr *evtm.EventManager) float64

	// txopDone is called when the medium is released
	txopDone(evtMgr *evtm.EventManager)
}

// Medium holds the data structures supporting first-come first-serve access
type Medium struct {
	name      string
	busy      bool
	holder    mediumUser
	waiting   []mediumUser
	busyTime  float64 // accumulated busy seconds, for utilization reports
	grants    int
	lastGrant float64
}

// createMedium is a constructor
func createMedium(name string) *Medium {
	md := new(Medium)
	md.name = name
	md.waiting = []mediumUser{}
	return md
}

// Request puts the user in line for the medium.  A user already holding or waiting
// for the medium is not queued a second time
func (md *Medium) Request(evtMgr *evtm.EventManager, user mediumUser) {
	if md.holder == user || slices.Contains(md.waiting, user) {
		return
	}
	md.waiting = append(md.waiting, user)
	if !md.busy {
		md.grantNext(evtMgr)
	}
}

// grantNext gives the medium to the first waiting user that has something to send
func (md *Medium) grantNext(evtMgr *evtm.EventManager) {
	for len(md.waiting) > 0 {
		user := md.waiting[0]
		md.waiting = md.waiting[1:]

		duration := user.startTxop(evtMgr)
		if duration <= 0.0 {
			continue
		}
		md.busy = true
		md.holder = user
		md.grants += 1
		md.lastGrant = evtMgr.CurrentSeconds()
		md.busyTime += duration
		scheduleIn(evtMgr, duration, md, user, txopComplete)
		return
	}
}

// txopComplete is called when the TXOP granted to a user has run its course
func txopComplete(evtMgr *evtm.EventManager, context any, data any) any {
	md := context.(*Medium)
	user := data.(mediumUser)

	md.busy = false
	md.holder = nil

	// the user may ask for the medium again from inside txopDone, which
	// puts it behind anyone already waiting
	user.txopDone(evtMgr)

	if !md.busy {
		md.grantNext(evtMgr)
	}
	return nil
}

// Utilization is the fraction of elapsed time the medium has been busy
func (md *Medium) Utilization(now float64) float64 {
	if now <= 0 {
		return 0
	}
	return md.busyTime / now
}
