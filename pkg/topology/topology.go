// Package topology models the airport surface as an undirected graph of
// stands, taxiways, and runways and provides the BFS impact-zone
// computation used by the spatial tools.
package topology

import (
	"embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"os"
	"sort"
	"strings"
)

//go:embed data/topology.json
var defaultFS embed.FS

// NodeType classifies a topology node.
type NodeType string

const (
	NodeStand   NodeType = "stand"
	NodeTaxiway NodeType = "taxiway"
	NodeRunway  NodeType = "runway"
)

// IsValid reports whether the node type is one of the known classes.
func (t NodeType) IsValid() bool {
	switch t {
	case NodeStand, NodeTaxiway, NodeRunway:
		return true
	}
	return false
}

// Node is one point of the airport surface.
type Node struct {
	ID   string   `json:"id"`
	Type NodeType `json:"type"`
	Lat  float64  `json:"lat"`
	Lon  float64  `json:"lon"`
}

// Edge is an undirected connection; Distance is in meters and computed from
// coordinates when omitted.
type Edge struct {
	From     string  `json:"from"`
	To       string  `json:"to"`
	Distance float64 `json:"distance,omitempty"`
}

type topologyFile struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// Graph is the immutable airport topology, loaded once at start and shared
// read-only by all sessions.
type Graph struct {
	nodes map[string]Node
	adj   map[string][]string
	dist  map[[2]string]float64
}

// Load parses a topology JSON document and enforces the reachability
// invariant: every node must be reachable from at least one stand and one
// taxiway; violating nodes are dropped with a warning.
func Load(raw []byte, logger *slog.Logger) (*Graph, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var doc topologyFile
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse topology: %w", err)
	}
	if len(doc.Nodes) == 0 {
		return nil, fmt.Errorf("parse topology: no nodes")
	}

	g := &Graph{
		nodes: make(map[string]Node, len(doc.Nodes)),
		adj:   make(map[string][]string),
		dist:  make(map[[2]string]float64),
	}
	for _, n := range doc.Nodes {
		if n.ID == "" {
			return nil, fmt.Errorf("parse topology: node with empty id")
		}
		if !n.Type.IsValid() {
			return nil, fmt.Errorf("parse topology: node %s has unknown type %q", n.ID, n.Type)
		}
		if _, dup := g.nodes[n.ID]; dup {
			return nil, fmt.Errorf("parse topology: duplicate node id %s", n.ID)
		}
		g.nodes[n.ID] = n
	}
	for _, e := range doc.Edges {
		from, okF := g.nodes[e.From]
		to, okT := g.nodes[e.To]
		if !okF || !okT {
			return nil, fmt.Errorf("parse topology: edge %s-%s references unknown node", e.From, e.To)
		}
		d := e.Distance
		if d <= 0 {
			d = haversineMeters(from.Lat, from.Lon, to.Lat, to.Lon)
		}
		g.addEdge(e.From, e.To, d)
	}

	g.dropUnreachable(logger)
	for id := range g.adj {
		sort.Strings(g.adj[id])
	}
	return g, nil
}

// LoadFile loads a topology JSON file from disk.
func LoadFile(path string, logger *slog.Logger) (*Graph, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read topology file: %w", err)
	}
	return Load(raw, logger)
}

// LoadDefault loads the embedded default airport topology.
func LoadDefault(logger *slog.Logger) (*Graph, error) {
	raw, err := defaultFS.ReadFile("data/topology.json")
	if err != nil {
		return nil, fmt.Errorf("read embedded topology: %w", err)
	}
	return Load(raw, logger)
}

func (g *Graph) addEdge(a, b string, d float64) {
	for _, n := range g.adj[a] {
		if n == b {
			return
		}
	}
	g.adj[a] = append(g.adj[a], b)
	g.adj[b] = append(g.adj[b], a)
	g.dist[edgeKey(a, b)] = d
}

func edgeKey(a, b string) [2]string {
	if a > b {
		a, b = b, a
	}
	return [2]string{a, b}
}

// dropUnreachable removes nodes that cannot reach both a stand and a
// taxiway.
func (g *Graph) dropUnreachable(logger *slog.Logger) {
	var dropped []string
	for id := range g.nodes {
		if g.nodes[id].Type == NodeStand && g.reaches(id, NodeTaxiway) {
			continue
		}
		if g.nodes[id].Type == NodeTaxiway && g.reaches(id, NodeStand) {
			continue
		}
		if g.reaches(id, NodeStand) && g.reaches(id, NodeTaxiway) {
			continue
		}
		dropped = append(dropped, id)
	}
	sort.Strings(dropped)
	for _, id := range dropped {
		logger.Warn("dropping unreachable topology node",
			"node", id, "type", string(g.nodes[id].Type))
		for _, n := range g.adj[id] {
			g.adj[n] = remove(g.adj[n], id)
			delete(g.dist, edgeKey(id, n))
		}
		delete(g.adj, id)
		delete(g.nodes, id)
	}
}

func (g *Graph) reaches(start string, want NodeType) bool {
	seen := map[string]bool{start: true}
	queue := []string{start}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if g.nodes[cur].Type == want {
			return true
		}
		for _, n := range g.adj[cur] {
			if !seen[n] {
				seen[n] = true
				queue = append(queue, n)
			}
		}
	}
	return false
}

func remove(list []string, v string) []string {
	out := list[:0]
	for _, x := range list {
		if x != v {
			out = append(out, x)
		}
	}
	return out
}

// Node returns a node by id.
func (g *Graph) Node(id string) (Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// Len returns the number of nodes.
func (g *Graph) Len() int { return len(g.nodes) }

// Neighbors returns the adjacent node ids in lexicographic order.
func (g *Graph) Neighbors(id string) []string {
	out := make([]string, len(g.adj[id]))
	copy(out, g.adj[id])
	return out
}

// NodesOfType returns all node ids of a type, sorted.
func (g *Graph) NodesOfType(t NodeType) []string {
	var out []string
	for id, n := range g.nodes {
		if n.Type == t {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// NearestNode returns the node closest to the coordinate by great-circle
// distance.
func (g *Graph) NearestNode(lat, lon float64) (Node, bool) {
	best := Node{}
	bestDist := math.Inf(1)
	found := false
	for _, n := range g.nodes {
		d := haversineMeters(lat, lon, n.Lat, n.Lon)
		if d < bestDist || (d == bestDist && found && n.ID < best.ID) {
			best, bestDist, found = n, d, true
		}
	}
	return best, found
}

// ResolveNodeID maps a reported position string to a topology node id.
// Exact match wins; otherwise the position is stripped of spoken prefixes
// (机位, 滑行道, 跑道, stand, taxiway, runway) and upper-cased before a second
// exact attempt, then a unique-substring attempt.
func (g *Graph) ResolveNodeID(position string) (string, bool) {
	if position == "" {
		return "", false
	}
	if _, ok := g.nodes[position]; ok {
		return position, true
	}
	cleaned := strings.ToUpper(strings.TrimSpace(position))
	for _, prefix := range []string{"机位", "滑行道", "跑道", "STAND", "TAXIWAY", "RUNWAY", "RWY"} {
		cleaned = strings.TrimSpace(strings.TrimPrefix(cleaned, prefix))
	}
	if _, ok := g.nodes[cleaned]; ok {
		return cleaned, true
	}
	var match string
	for id := range g.nodes {
		if strings.Contains(strings.ToUpper(id), cleaned) && cleaned != "" {
			if match != "" {
				return "", false // ambiguous
			}
			match = id
		}
	}
	return match, match != ""
}
