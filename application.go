package wifisim

// application.go holds what traffic applications share: starting and stopping at
// scheduled times, and the names of the socket types they may use

import (
	"fmt"
	"strings"

	"github.com/iti/evt/evtm"
)

// socket types, named after the factories that make them
const (
	TcpSocketFactory    = "TcpSocketFactory"
	UdpSocketFactory    = "UdpSocketFactory"
	PacketSocketFactory = "PacketSocketFactory"
)

// socketFactory normalizes a socket type name; the "ns3::" prefix is optional
func socketFactory(name string) (string, error) {
	name = strings.TrimPrefix(strings.TrimSpace(name), "ns3::")
	switch name {
	case TcpSocketFactory, UdpSocketFactory, PacketSocketFactory:
		return name, nil
	}
	return "", fmt.Errorf("socket type %q not recognized", name)
}

// Application is satisfied by the traffic generators and sinks
type Application interface {
	AppName() string
	AppNode() *Node
	startApplication(evtMgr *evtm.EventManager)
	stopApplication(evtMgr *evtm.EventManager)
}

func appStartHdlr(evtMgr *evtm.EventManager, context any, data any) any {
	app := context.(Application)
	AppLog.Debugf("%s: start at %.6fs", app.AppName(), evtMgr.CurrentSeconds())
	app.startApplication(evtMgr)
	return nil
}

func appStopHdlr(evtMgr *evtm.EventManager, context any, data any) any {
	app := context.(Application)
	AppLog.Debugf("%s: stop at %.6fs", app.AppName(), evtMgr.CurrentSeconds())
	app.stopApplication(evtMgr)
	return nil
}

// ApplicationContainer holds applications that start and stop together
type ApplicationContainer struct {
	Apps []Application
}

func (ac *ApplicationContainer) Add(apps ...Application) {
	ac.Apps = append(ac.Apps, apps...)
}

func (ac *ApplicationContainer) Get(idx int) Application {
	return ac.Apps[idx]
}

// Start schedules every application to start at absolute time t
func (ac *ApplicationContainer) Start(evtMgr *evtm.EventManager, t float64) {
	for _, app := range ac.Apps {
		scheduleAt(evtMgr, t, app, nil, appStartHdlr)
	}
}

// Stop schedules every application to stop at absolute time t
func (ac *ApplicationContainer) Stop(evtMgr *evtm.EventManager, t float64) {
	for _, app := range ac.Apps {
		scheduleAt(evtMgr, t, app, nil, appStopHdlr)
	}
}
