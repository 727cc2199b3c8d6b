package wifisim

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorder is a paramObj that remembers the assignments applied to it
type recorder struct {
	name  string
	group string
	set   []string
}

func (r *recorder) paramObjName() string { return r.name }

func (r *recorder) matchParam(attrbName, attrbValue string) bool {
	switch attrbName {
	case "name":
		return r.name == attrbValue
	case "group":
		return r.group == attrbValue
	}
	return false
}

func (r *recorder) setParam(param string, value valueStruct) error {
	if value.stringValue == "bad" {
		return fmt.Errorf("rejected")
	}
	r.set = append(r.set, param+"="+value.stringValue)
	return nil
}

func TestSetDefault(t *testing.T) {
	ResetDefaults()
	defer ResetDefaults()

	assert.Equal(t, 536, attrInt("TcpSocket::SegmentSize"))
	require.NoError(t, SetDefault("ns3::TcpSocket::SegmentSize", "1448"))
	assert.Equal(t, 1448, attrInt("TcpSocket::SegmentSize"))

	require.NoError(t, SetDefault("WifiMacQueue::MaxSize", "100p"))
	assert.Equal(t, 100, attrInt("WifiMacQueue::MaxSize"))

	require.NoError(t, SetDefault("CsmaChannel::Delay", "2ms"))
	assert.InDelta(t, 2e-3, attrTime("CsmaChannel::Delay"), 1e-12)

	assert.Error(t, SetDefault("TcpSocket::Nonsense", "1"))
	assert.Error(t, SetDefault("TcpSocket::SegmentSize", "big"))
	assert.Error(t, SetDefault("CsmaChannel::DataRate", "quick"))

	ResetDefaults()
	assert.Equal(t, 536, attrInt("TcpSocket::SegmentSize"))
}

func TestSetDefaultRejectsUnusableValues(t *testing.T) {
	ResetDefaults()
	defer ResetDefaults()

	for _, path := range []string{"TcpSocket::SegmentSize", "TcpSocket::InitialCwnd", "TcpSocket::SndBufSize",
		"TcpSocket::RcvBufSize", "TcpSocket::DelAckCount", "WifiMacQueue::MaxSize", "OnOffApplication::PacketSize"} {
		err := SetDefault(path, "0")
		require.Error(t, err, path)
		assert.Contains(t, err.Error(), "at least 1", path)
	}
	assert.Error(t, SetDefault("WifiMacQueue::MaxSize", "0p"))
	assert.Equal(t, 536, attrInt("TcpSocket::SegmentSize"))
	assert.Equal(t, 10, attrInt("TcpSocket::InitialCwnd"))

	// zero still disables aggregation and retries
	assert.NoError(t, SetDefault("WifiMac::MaxAmpduSize", "0"))
	assert.NoError(t, SetDefault("WifiRemoteStationManager::MaxSlrc", "0"))

	assert.Error(t, SetDefault("TcpL4Protocol::SocketType", "TcpBogus"))
	assert.Equal(t, "TcpNewReno", attrString("TcpL4Protocol::SocketType"))
	require.NoError(t, SetDefault("ns3::TcpL4Protocol::SocketType", "ns3::TcpWestwoodPlus"))
	cc, err := CreateCongestionOps(attrString("TcpL4Protocol::SocketType"))
	require.NoError(t, err)
	assert.Equal(t, &TcpWestwood{Plus: true}, cc)
}

func TestStringToValueStruct(t *testing.T) {
	vs := stringToValueStruct("12")
	assert.Equal(t, 12, vs.intValue)
	assert.Equal(t, 12.0, vs.floatValue)

	vs = stringToValueStruct("-79.5")
	assert.Equal(t, -79.5, vs.floatValue)

	vs = stringToValueStruct("true")
	assert.True(t, vs.boolValue)

	vs = stringToValueStruct("HtMcs7")
	assert.Equal(t, "HtMcs7", vs.stringValue)
}

func TestExpParameterValidate(t *testing.T) {
	ep := ExpParameter{ParamObj: "Phy", Param: "TxGain", Value: "1"}
	assert.NoError(t, ep.Validate())

	ep.Param = "Bogus"
	assert.Error(t, ep.Validate())

	ep.ParamObj = "Router"
	assert.Error(t, ep.Validate())
}

func TestApplyParametersOrder(t *testing.T) {
	a := &recorder{name: "a", group: "g1"}
	b := &recorder{name: "b", group: "g2"}
	objs := map[string][]paramObj{"Phy": {a, b}}

	pL := []ExpParameter{
		{ParamObj: "Phy", Attributes: []AttrbStruct{{AttrbName: "name", AttrbValue: "a"}}, Param: "TxGain", Value: "3"},
		{ParamObj: "Phy", Attributes: []AttrbStruct{{AttrbName: "group", AttrbValue: "g2"}}, Param: "RxGain", Value: "2"},
		{ParamObj: "Phy", Attributes: []AttrbStruct{{AttrbName: "*"}}, Param: "TxGain", Value: "1"},
	}
	require.NoError(t, ApplyParameters(pL, objs))

	// the wildcard is applied first so the named assignment wins
	assert.Equal(t, []string{"TxGain=1", "TxGain=3"}, a.set)
	assert.Equal(t, []string{"TxGain=1", "RxGain=2"}, b.set)
}

func TestApplyParametersErrors(t *testing.T) {
	a := &recorder{name: "a"}
	objs := map[string][]paramObj{"Phy": {a}}

	pL := []ExpParameter{
		{ParamObj: "Phy", Attributes: []AttrbStruct{{AttrbName: "*"}}, Param: "TxGain", Value: "bad"},
		{ParamObj: "Phy", Attributes: []AttrbStruct{{AttrbName: "*"}}, Param: "Unknown", Value: "1"},
		{ParamObj: "Phy", Attributes: []AttrbStruct{{AttrbName: "*"}}, Param: "RxGain", Value: "4"},
	}
	err := ApplyParameters(pL, objs)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rejected")
	assert.Contains(t, err.Error(), "Unknown")
	assert.Equal(t, []string{"RxGain=4"}, a.set)
}
