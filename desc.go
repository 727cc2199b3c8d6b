package wifisim

// desc.go holds serializable descriptions of a built scenario: the nodes, their
// devices and addresses, and the channels that join them.  A description is a
// snapshot for inspection and comparison, written to yaml or json after a run is
// set up; nothing is rebuilt from it.
//
// It also holds the helpers shared by every file this package reads or writes:
// serialization selected by file extension, file and directory checks, and the
// aggregation of error lists

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"golang.org/x/exp/slices"
	"gopkg.in/yaml.v3"
)

// DeviceDesc describes one network device
type DeviceDesc struct {
	Name    string   `json:"name" yaml:"name"`
	DevType string   `json:"devtype" yaml:"devtype"`
	IfIndex int      `json:"ifindex" yaml:"ifindex"`
	Address string   `json:"address" yaml:"address"`
	Channel string   `json:"channel,omitempty" yaml:"channel,omitempty"`
	MacType string   `json:"mactype,omitempty" yaml:"mactype,omitempty"`
	Ssid    string   `json:"ssid,omitempty" yaml:"ssid,omitempty"`
	Ports   []string `json:"ports,omitempty" yaml:"ports,omitempty"`
}

// NodeDesc describes a node, its position when described and its IPv4 addresses
type NodeDesc struct {
	ID        int          `json:"id" yaml:"id"`
	Name      string       `json:"name" yaml:"name"`
	Mobility  string       `json:"mobility,omitempty" yaml:"mobility,omitempty"`
	Position  [3]float64   `json:"position" yaml:"position,flow"`
	Devices   []DeviceDesc `json:"devices" yaml:"devices"`
	Addresses []string     `json:"addresses,omitempty" yaml:"addresses,omitempty"`
}

// ChannelDesc describes a wifi channel or CSMA bus and the devices attached to it
type ChannelDesc struct {
	Name       string            `json:"name" yaml:"name"`
	ChanType   string            `json:"chantype" yaml:"chantype"`
	Devices    []string          `json:"devices" yaml:"devices"`
	Attributes map[string]string `json:"attributes,omitempty" yaml:"attributes,omitempty"`
}

// TopoDesc is the description of a whole scenario
type TopoDesc struct {
	Name     string        `json:"name" yaml:"name"`
	Time     float64       `json:"time" yaml:"time"`
	Nodes    []NodeDesc    `json:"nodes" yaml:"nodes"`
	Channels []ChannelDesc `json:"channels" yaml:"channels"`
}

func describeDevice(dev NetDevice) DeviceDesc {
	dd := DeviceDesc{Name: dev.DevName(), DevType: dev.DevType(), IfIndex: dev.IfIndex(),
		Address: dev.Address().String()}
	switch d := dev.(type) {
	case *WifiNetDevice:
		dd.Channel = d.phy.channel.Name
		dd.MacType = d.mac.Type
		dd.Ssid = string(d.mac.Ssid)
	case *CsmaNetDevice:
		dd.Channel = d.channel.Name
	case *BridgeNetDevice:
		for _, port := range d.ports {
			dd.Ports = append(dd.Ports, port.DevName())
		}
	}
	return dd
}

// DescribeTopology takes a snapshot of the nodes at time now
func DescribeTopology(name string, nodes []*Node, now float64) *TopoDesc {
	td := &TopoDesc{Name: name, Time: now, Nodes: []NodeDesc{}, Channels: []ChannelDesc{}}
	chanIdx := make(map[string]int)

	addToChannel := func(chName, chType, devName string, attrbs map[string]string) {
		idx, present := chanIdx[chName]
		if !present {
			idx = len(td.Channels)
			chanIdx[chName] = idx
			td.Channels = append(td.Channels, ChannelDesc{Name: chName, ChanType: chType, Attributes: attrbs})
		}
		td.Channels[idx].Devices = append(td.Channels[idx].Devices, devName)
	}

	for _, node := range nodes {
		pos := node.Position(now)
		nd := NodeDesc{ID: node.ID, Name: node.Name, Position: [3]float64{pos.X, pos.Y, pos.Z}}
		if node.Mobility != nil {
			nd.Mobility = node.Mobility.ModelName()
		}
		for _, dev := range node.Devices {
			nd.Devices = append(nd.Devices, describeDevice(dev))
			switch d := dev.(type) {
			case *WifiNetDevice:
				addToChannel(d.phy.channel.Name, "wifi", d.DevName(), nil)
			case *CsmaNetDevice:
				addToChannel(d.channel.Name, "csma", d.DevName(),
					map[string]string{"DataRate": d.channel.DataRate.String(),
						"Delay": fmt.Sprintf("%gs", d.channel.Delay)})
			}
		}
		if node.Ipv4 != nil {
			for _, iface := range node.Ipv4.Interfaces {
				nd.Addresses = append(nd.Addresses, netipPrefixString(iface))
			}
		}
		td.Nodes = append(td.Nodes, nd)
	}
	return td
}

func netipPrefixString(iface *Ipv4Interface) string {
	return fmt.Sprintf("%s/%d", iface.Addr, iface.Prefix.Bits())
}

// NodeNamed returns the description of the named node
func (td *TopoDesc) NodeNamed(name string) (*NodeDesc, bool) {
	idx := slices.IndexFunc(td.Nodes, func(nd NodeDesc) bool { return nd.Name == name })
	if idx < 0 {
		return nil, false
	}
	return &td.Nodes[idx], true
}

// WriteToFile serializes the TopoDesc and writes to the file whose name is given as an input argument.
// Extension of the file name selects whether serialization is to json or to yaml format.
func (td *TopoDesc) WriteToFile(filename string) error {
	return writeSerialized(filename, td)
}

// ReadTopoDesc deserializes a slice of bytes into a TopoDesc.  If the input arg of bytes
// is empty, the file whose name is given is read
func ReadTopoDesc(filename string, useYAML bool, dict []byte) (*TopoDesc, error) {
	td := new(TopoDesc)
	if err := readSerialized(filename, useYAML, dict, td); err != nil {
		return nil, err
	}
	return td, nil
}

// UseYAML reports whether the extension of filename selects yaml rather than json
func UseYAML(filename string) bool {
	switch path.Ext(filename) {
	case ".yaml", ".YAML", ".yml":
		return true
	}
	return false
}

// writeSerialized writes v to filename as yaml or json, chosen by the extension
func writeSerialized(filename string, v any) error {
	var bytes []byte
	var merr error

	switch path.Ext(filename) {
	case ".yaml", ".YAML", ".yml":
		bytes, merr = yaml.Marshal(v)
	case ".json", ".JSON":
		bytes, merr = json.MarshalIndent(v, "", "\t")
	default:
		return fmt.Errorf("%s: extension must be .yaml, .yml or .json", filename)
	}
	if merr != nil {
		return merr
	}
	return os.WriteFile(filename, bytes, 0644)
}

// readSerialized fills v from dict, or from the file when dict is empty
func readSerialized(filename string, useYAML bool, dict []byte, v any) error {
	var err error
	if len(dict) == 0 {
		fileInfo, serr := os.Stat(filename)
		if serr != nil || fileInfo.IsDir() {
			return fmt.Errorf("%s does not exist or cannot be read", filename)
		}
		dict, err = os.ReadFile(filename)
		if err != nil {
			return err
		}
	}
	if useYAML {
		err = yaml.Unmarshal(dict, v)
	} else {
		err = json.Unmarshal(dict, v)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", filename, err)
	}
	return nil
}

// ReportErrs transforms a list of errors and transforms the non-nil ones into a single error
// with comma-separated report of all the constituent errors, and returns it.
func ReportErrs(errs []error) error {
	errMsg := make([]string, 0)
	for _, err := range errs {
		if err != nil {
			errMsg = append(errMsg, err.Error())
		}
	}
	if len(errMsg) == 0 {
		return nil
	}
	return errors.New(strings.Join(errMsg, ","))
}

// CheckDirectories checks the file system for the existence
// of every directory listed.  Returns a boolean
// indicating whether all dirs are valid, and an aggregated error
// if any checks failed.
func CheckDirectories(dirs []string) (bool, error) {
	failures := []error{}
	for _, dir := range dirs {
		if len(dir) == 0 {
			continue
		}
		fileInfo, err := os.Stat(dir)
		if err != nil {
			failures = append(failures, fmt.Errorf("%s not reachable", dir))
			continue
		}
		if !fileInfo.IsDir() {
			failures = append(failures, fmt.Errorf("%s not a directory", dir))
		}
	}
	if len(failures) == 0 {
		return true, nil
	}
	return false, ReportErrs(failures)
}

// CheckReadableFiles checks the file system to ensure that every
// one of the argument filenames exists and is readable
func CheckReadableFiles(names []string) (bool, error) {
	return CheckFiles(names, true)
}

// CheckOutputFiles checks the file system to ensure that every
// argument filename can be written.
func CheckOutputFiles(names []string) (bool, error) {
	return CheckFiles(names, false)
}

// CheckFiles checks the file system for permitted access to all the
// argument filenames, optionally checking also for the existence
// of those files for the purposes of reading them.  Empty names are skipped
func CheckFiles(names []string, checkExistence bool) (bool, error) {
	errs := make([]error, 0)
	for _, name := range names {
		if len(name) == 0 {
			continue
		}
		directory, _ := filepath.Split(name)
		if len(directory) > 0 {
			if _, err := os.Stat(directory); err != nil {
				errs = append(errs, err)
				continue
			}
		}
		if checkExistence {
			if _, err := os.Stat(name); err != nil {
				errs = append(errs, err)
			}
		}
	}
	if len(errs) == 0 {
		return true, nil
	}
	return false, ReportErrs(errs)
}
