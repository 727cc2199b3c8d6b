package wifisim

// routes.go computes routes between the nodes of a scenario.
//
// The topology is turned into a graph the gonum packages can search.  Every node is a
// vertex, and so is every layer-2 segment (a wifi channel or a CSMA bus).  A device
// attached to a segment gives an edge between its node and the segment.  Weighting
// each edge by 1, a shortest path minimizes the number of segments crossed.
//
//   A node on a path between two segments passes traffic along at layer 2 if it bridges
// a device on each of them, and at layer 3 otherwise.  Destinations reached across
// layer-2 hops only are on-link; a layer-3 hop becomes the gateway of a host route.
//
//   The Dijkstra algorithm computes a tree of shortest paths from one vertex, and trees
// are cached by root so each is computed once

import (
	"fmt"
	"math"
	"net/netip"
	"strings"

	"golang.org/x/exp/slices"
	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/path"
	"gonum.org/v1/gonum/graph/simple"
)

// segment vertices are numbered above every node id
const segmentBase = 1 << 20

// segmentOf returns the vertex id of the segment a device is attached to, if any
func segmentOf(dev NetDevice) (int64, bool) {
	switch d := dev.(type) {
	case *WifiNetDevice:
		if d.phy != nil && d.phy.channel != nil {
			return int64(segmentBase + d.phy.channel.ID), true
		}
	case *CsmaNetDevice:
		if d.channel != nil {
			return int64(segmentBase + d.channel.ID), true
		}
	}
	return 0, false
}

// RouteGraph is the searchable form of a topology
type RouteGraph struct {
	nodes    []*Node
	byID     map[int64]*Node
	names    map[int64]string
	conn     *simple.WeightedUndirectedGraph
	cachedSP map[int64]path.Shortest
}

// buildRouteGraph links every node to the segments its devices are attached to
func buildRouteGraph(nodes []*Node) *RouteGraph {
	rg := new(RouteGraph)
	rg.nodes = nodes
	rg.byID = make(map[int64]*Node)
	rg.names = make(map[int64]string)
	rg.conn = simple.NewWeightedUndirectedGraph(0, math.Inf(1))
	rg.cachedSP = make(map[int64]path.Shortest)

	for _, node := range nodes {
		id := int64(node.ID)
		rg.byID[id] = node
		rg.names[id] = node.Name
		if rg.conn.Node(id) == nil {
			rg.conn.AddNode(simple.Node(id))
		}
		for _, dev := range node.Devices {
			seg, attached := segmentOf(dev)
			if !attached {
				continue
			}
			if rg.conn.Node(seg) == nil {
				rg.conn.AddNode(simple.Node(seg))
				rg.names[seg] = fmt.Sprintf("segment-%d", seg-segmentBase)
			}
			rg.conn.SetWeightedEdge(simple.WeightedEdge{F: simple.Node(id), T: simple.Node(seg), W: 1.0})
		}
	}
	return rg
}

// spTree returns the shortest path tree rooted at from, computing and caching it when needed
func (rg *RouteGraph) spTree(from int64) path.Shortest {
	tree, present := rg.cachedSP[from]
	if present {
		return tree
	}
	tree = path.DijkstraFrom(simple.Node(from), rg.conn)
	rg.cachedSP[from] = tree
	return tree
}

// Path returns the vertex ids on a shortest path from src to dst, empty when there is none
func (rg *RouteGraph) Path(src, dst *Node) []int64 {
	// a tree already rooted at dst serves by symmetry
	if _, present := rg.cachedSP[int64(src.ID)]; !present {
		if tree, present := rg.cachedSP[int64(dst.ID)]; present {
			nodeSeq, _ := tree.To(int64(src.ID))
			ids := convertNodeSeq(nodeSeq)
			slices.Reverse(ids)
			return ids
		}
	}
	nodeSeq, _ := rg.spTree(int64(src.ID)).To(int64(dst.ID))
	return convertNodeSeq(nodeSeq)
}

func convertNodeSeq(nsQ []graph.Node) []int64 {
	ids := []int64{}
	for _, n := range nsQ {
		ids = append(ids, n.ID())
	}
	return ids
}

// ShowPath lists the names of the vertices on a path, comma separated
func (rg *RouteGraph) ShowPath(ids []int64) string {
	names := []string{}
	for _, id := range ids {
		names = append(names, rg.names[id])
	}
	return strings.Join(names, ",")
}

// bridgesBetween reports whether node carries traffic from segment a to segment b at layer 2
func bridgesBetween(node *Node, a, b int64) bool {
	for _, dev := range node.Devices {
		br, isBridge := dev.(*BridgeNetDevice)
		if !isBridge {
			continue
		}
		onA, onB := false, false
		for _, port := range br.ports {
			seg, attached := segmentOf(port)
			if !attached {
				continue
			}
			onA = onA || seg == a
			onB = onB || seg == b
		}
		if onA && onB {
			return true
		}
	}
	return false
}

// interfaceOn returns the node's IP interface that reaches segment seg, directly or through a bridge
func interfaceOn(node *Node, seg int64) *Ipv4Interface {
	for _, iface := range node.Ipv4.Interfaces {
		if s, attached := segmentOf(iface.Dev); attached && s == seg {
			return iface
		}
		if br, isBridge := iface.Dev.(*BridgeNetDevice); isBridge {
			for _, port := range br.ports {
				if s, attached := segmentOf(port); attached && s == seg {
					return iface
				}
			}
		}
	}
	return nil
}

// PopulateRoutingTables installs a host route on every node with an IP layer to every
// address of every other such node.  Pairs of nodes with no path between them are
// reported in the returned error; routes between the others are still installed
func PopulateRoutingTables(nodes []*Node) error {
	rg := buildRouteGraph(nodes)
	errs := []error{}
	for _, src := range nodes {
		if src.Ipv4 == nil || len(src.Ipv4.Interfaces) == 0 {
			continue
		}
		for _, dst := range nodes {
			if dst == src || dst.Ipv4 == nil || len(dst.Ipv4.Interfaces) == 0 {
				continue
			}
			ids := rg.Path(src, dst)
			if len(ids) < 3 {
				errs = append(errs, fmt.Errorf("no path from %s to %s", src.Name, dst.Name))
				continue
			}
			if err := rg.installRoute(src, dst, ids); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return ReportErrs(errs)
}

// installRoute adds src's routes to dst's addresses along the path ids, which alternates
// node, segment, node, ..., node
func (rg *RouteGraph) installRoute(src, dst *Node, ids []int64) error {
	out := interfaceOn(src, ids[1])
	if out == nil {
		return fmt.Errorf("%s has no address on the way to %s", src.Name, dst.Name)
	}

	// the first node along the way that does not bridge its two segments is the gateway
	var gateway netip.Addr
	for idx := 2; idx < len(ids)-1; idx += 2 {
		hop := rg.byID[ids[idx]]
		if bridgesBetween(hop, ids[idx-1], ids[idx+1]) {
			continue
		}
		gwIface := interfaceOn(hop, ids[idx-1])
		if gwIface == nil {
			return fmt.Errorf("%s has no address facing %s", hop.Name, src.Name)
		}
		gateway = gwIface.Addr
		break
	}

	for _, iface := range dst.Ipv4.Interfaces {
		if !gateway.IsValid() && out.Prefix.Contains(iface.Addr) {
			// the connected route covers it
			continue
		}
		src.Ipv4.addHostRoute(iface.Addr, out, gateway)
	}
	IPLog.Debugf("route %s", rg.ShowPath(ids))
	return nil
}
