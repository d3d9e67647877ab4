package topology

import (
	"sort"

	"github.com/airside-ops/apron/pkg/models"
)

// PropagationRule bounds impact diffusion for one (fluid, level) pair.
type PropagationRule struct {
	RadiusHops    int  `yaml:"radius_hops" json:"radius_hops"`
	AffectsRunway bool `yaml:"affects_runway" json:"affects_runway"`
}

// PropagationTable maps "FLUID|LEVEL" to a rule. Scenario configuration may
// override individual entries.
type PropagationTable map[string]PropagationRule

// DefaultPropagationTable returns the built-in diffusion rules.
func DefaultPropagationTable() PropagationTable {
	t := PropagationTable{}
	add := func(fluid, level string, radius int, runway bool) {
		t[fluid+"|"+level] = PropagationRule{RadiusHops: radius, AffectsRunway: runway}
	}
	add("FUEL", "LOW", 1, false)
	add("FUEL", "MEDIUM", 2, false)
	add("FUEL", "MEDIUM_HIGH", 2, true)
	add("FUEL", "HIGH", 3, true)
	add("FUEL", "CRITICAL", 4, true)
	add("HYDRAULIC", "LOW", 1, false)
	add("HYDRAULIC", "MEDIUM", 1, false)
	add("HYDRAULIC", "MEDIUM_HIGH", 2, false)
	add("HYDRAULIC", "HIGH", 2, false)
	add("HYDRAULIC", "CRITICAL", 3, true)
	add("OIL", "LOW", 1, false)
	add("OIL", "MEDIUM", 1, false)
	add("OIL", "MEDIUM_HIGH", 2, false)
	add("OIL", "HIGH", 2, false)
	add("OIL", "CRITICAL", 3, false)
	return t
}

// Rule returns the propagation rule for a fluid/level pair. Missing entries
// fall back to radius 1 without runway impact.
func (t PropagationTable) Rule(fluid, level string) PropagationRule {
	if r, ok := t[fluid+"|"+level]; ok {
		return r
	}
	return PropagationRule{RadiusHops: 1, AffectsRunway: false}
}

// Wind carries the parameters that may widen or reorder the diffusion.
// Direction is the meteorological origin bearing in degrees.
type Wind struct {
	SpeedMS   float64
	Direction float64
}

const (
	windWidenThresholdMS = 5.0
	maxRadiusHops        = 4
)

// BFS returns the graph distance (in hops) of every node within radius of
// start, including start at distance 0. Traversal order is deterministic:
// lexicographic among equidistant nodes, or downwind-first when wind is
// strong enough to matter. Order never changes set membership.
func (g *Graph) BFS(start string, radius int, wind *Wind) map[string]int {
	depth := map[string]int{start: 0}
	if radius <= 0 {
		return depth
	}
	origin := g.nodes[start]
	queue := []string{start}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if depth[cur] == radius {
			continue
		}
		next := g.Neighbors(cur)
		if wind != nil && wind.SpeedMS > windWidenThresholdMS {
			next = g.downwindFirst(origin, next, wind.Direction)
		}
		for _, n := range next {
			if _, seen := depth[n]; !seen {
				depth[n] = depth[cur] + 1
				queue = append(queue, n)
			}
		}
	}
	return depth
}

// downwindFirst stable-sorts candidates so that nodes whose bearing from the
// origin lies within ±90° of the downwind vector come first.
func (g *Graph) downwindFirst(origin Node, ids []string, windDirection float64) []string {
	downwind := windDirection + 180
	out := make([]string, len(ids))
	copy(out, ids)
	sort.SliceStable(out, func(i, j int) bool {
		bi := bearingDegrees(origin.Lat, origin.Lon, g.nodes[out[i]].Lat, g.nodes[out[i]].Lon)
		bj := bearingDegrees(origin.Lat, origin.Lon, g.nodes[out[j]].Lat, g.nodes[out[j]].Lon)
		di := angularDiff(bi, downwind) <= 90
		dj := angularDiff(bj, downwind) <= 90
		return di && !dj
	})
	return out
}

// ImpactZone runs the bounded diffusion from the node resolved for the
// incident position and classifies the reached nodes.
func (g *Graph) ImpactZone(startID string, rule PropagationRule, wind *Wind) *models.SpatialAnalysis {
	radius := rule.RadiusHops
	if wind != nil && wind.SpeedMS > windWidenThresholdMS && radius < maxRadiusHops {
		radius++
	}

	depth := g.BFS(startID, radius, wind)

	analysis := &models.SpatialAnalysis{
		IsolatedNodes:    []string{},
		AffectedStands:   []string{},
		AffectedTaxiways: []string{},
		AffectedRunways:  []string{},
		RadiusHops:       radius,
	}

	ids := make([]string, 0, len(depth))
	for id := range depth {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	runwayReached := false
	for _, id := range ids {
		n := g.nodes[id]
		if depth[id] <= 1 {
			analysis.IsolatedNodes = append(analysis.IsolatedNodes, id)
		}
		switch n.Type {
		case NodeStand:
			analysis.AffectedStands = append(analysis.AffectedStands, id)
		case NodeTaxiway:
			analysis.AffectedTaxiways = append(analysis.AffectedTaxiways, id)
		case NodeRunway:
			analysis.AffectedRunways = append(analysis.AffectedRunways, id)
			runwayReached = true
		}
	}

	if rule.AffectsRunway && !runwayReached {
		analysis.AffectedRunways = append(analysis.AffectedRunways, g.nearestRunway(startID)...)
	}
	return analysis
}

// nearestRunway finds the closest runway node(s) by hop count when the
// propagation rule forces runway impact without BFS reaching one.
func (g *Graph) nearestRunway(start string) []string {
	seen := map[string]bool{start: true}
	queue := []string{start}
	for len(queue) > 0 {
		var next []string
		var found []string
		for _, cur := range queue {
			for _, n := range g.adj[cur] {
				if seen[n] {
					continue
				}
				seen[n] = true
				if g.nodes[n].Type == NodeRunway {
					found = append(found, n)
				}
				next = append(next, n)
			}
		}
		if len(found) > 0 {
			sort.Strings(found)
			return found
		}
		queue = next
	}
	return nil
}
