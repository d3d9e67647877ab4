package topology

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testGraph(t *testing.T) *Graph {
	t.Helper()
	g, err := LoadDefault(nil)
	require.NoError(t, err)
	return g
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr bool
		errMsg  string
	}{
		{
			name: "valid minimal",
			raw: `{"nodes":[
				{"id":"S1","type":"stand","lat":30.0,"lon":103.0},
				{"id":"T1","type":"taxiway","lat":30.001,"lon":103.0}],
				"edges":[{"from":"S1","to":"T1"}]}`,
		},
		{
			name:    "empty document",
			raw:     `{"nodes":[],"edges":[]}`,
			wantErr: true,
			errMsg:  "no nodes",
		},
		{
			name: "duplicate node id",
			raw: `{"nodes":[
				{"id":"S1","type":"stand","lat":30,"lon":103},
				{"id":"S1","type":"stand","lat":30,"lon":103}],"edges":[]}`,
			wantErr: true,
			errMsg:  "duplicate node id",
		},
		{
			name: "unknown node type",
			raw: `{"nodes":[
				{"id":"X1","type":"terminal","lat":30,"lon":103}],"edges":[]}`,
			wantErr: true,
			errMsg:  "unknown type",
		},
		{
			name: "edge references unknown node",
			raw: `{"nodes":[
				{"id":"S1","type":"stand","lat":30,"lon":103}],
				"edges":[{"from":"S1","to":"T9"}]}`,
			wantErr: true,
			errMsg:  "unknown node",
		},
		{
			name:    "malformed json",
			raw:     `{"nodes":`,
			wantErr: true,
			errMsg:  "parse topology",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := Load([]byte(tt.raw), nil)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
				return
			}
			require.NoError(t, err)
			assert.Greater(t, g.Len(), 0)
		})
	}
}

func TestLoadDropsUnreachableNodes(t *testing.T) {
	// R9 is a runway with no path to any stand or taxiway.
	raw := `{"nodes":[
		{"id":"S1","type":"stand","lat":30.0,"lon":103.0},
		{"id":"T1","type":"taxiway","lat":30.001,"lon":103.0},
		{"id":"R9","type":"runway","lat":30.002,"lon":103.0}],
		"edges":[{"from":"S1","to":"T1"}]}`

	g, err := Load([]byte(raw), nil)
	require.NoError(t, err)

	_, ok := g.Node("R9")
	assert.False(t, ok, "isolated runway should be dropped")
	_, ok = g.Node("S1")
	assert.True(t, ok)
	assert.Equal(t, 2, g.Len())
}

func TestLoadDefault(t *testing.T) {
	g := testGraph(t)

	require.Greater(t, g.Len(), 15)
	for _, id := range []string{"217", "501", "502", "27L", "02L"} {
		_, ok := g.Node(id)
		assert.True(t, ok, "default topology should contain %s", id)
	}
	assert.NotEmpty(t, g.NodesOfType(NodeRunway))
}

func TestResolveNodeID(t *testing.T) {
	g := testGraph(t)

	tests := []struct {
		name     string
		position string
		want     string
		wantOK   bool
	}{
		{name: "exact stand", position: "217", want: "217", wantOK: true},
		{name: "exact runway", position: "27L", want: "27L", wantOK: true},
		{name: "stand prefix stripped", position: "机位501", want: "501", wantOK: true},
		{name: "runway prefix stripped", position: "跑道02L", want: "02L", wantOK: true},
		{name: "lowercase runway", position: "27l", want: "27L", wantOK: true},
		{name: "unknown", position: "999", wantOK: false},
		{name: "empty", position: "", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := g.ResolveNodeID(tt.position)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestNearestNode(t *testing.T) {
	g := testGraph(t)

	n217, ok := g.Node("217")
	require.True(t, ok)

	got, ok := g.NearestNode(n217.Lat+0.00001, n217.Lon)
	require.True(t, ok)
	assert.Equal(t, "217", got.ID)
}

func TestBFSCorrectness(t *testing.T) {
	g := testGraph(t)

	// Every returned node must be within radius, and every node within
	// radius must be returned.
	for _, radius := range []int{0, 1, 2, 3} {
		depth := g.BFS("217", radius, nil)
		for id, d := range depth {
			assert.LessOrEqual(t, d, radius, "node %s beyond radius %d", id, radius)
		}
		// Reference distances from an unbounded walk.
		full := g.BFS("217", g.Len(), nil)
		for id, d := range full {
			if d <= radius {
				_, ok := depth[id]
				assert.True(t, ok, "node %s at distance %d missing for radius %d", id, d, radius)
			}
		}
	}
}

func TestBFSWindOrderDoesNotChangeMembership(t *testing.T) {
	g := testGraph(t)

	plain := g.BFS("501", 3, nil)
	windy := g.BFS("501", 3, &Wind{SpeedMS: 9, Direction: 270})

	assert.Equal(t, len(plain), len(windy))
	for id, d := range plain {
		assert.Equal(t, d, windy[id], "distance for %s changed under wind ordering", id)
	}
}

func TestImpactZone(t *testing.T) {
	g := testGraph(t)
	table := DefaultPropagationTable()

	t.Run("low risk oil spill stays off runways", func(t *testing.T) {
		zone := g.ImpactZone("502", table.Rule("OIL", "LOW"), nil)

		assert.Equal(t, []string{"502"}, zone.AffectedStands)
		assert.Empty(t, zone.AffectedRunways)
		assert.Contains(t, zone.IsolatedNodes, "502")
		assert.Contains(t, zone.IsolatedNodes, "C1")
		assert.Equal(t, 1, zone.RadiusHops)
	})

	t.Run("high risk fuel forces runway impact", func(t *testing.T) {
		zone := g.ImpactZone("217", table.Rule("FUEL", "HIGH"), nil)

		assert.Equal(t, 3, zone.RadiusHops)
		assert.NotEmpty(t, zone.AffectedRunways, "affects_runway must pull in the nearest runway")
		assert.Contains(t, zone.AffectedStands, "217")
		assert.Contains(t, zone.AffectedStands, "218")
	})

	t.Run("strong wind widens radius by one hop", func(t *testing.T) {
		calm := g.ImpactZone("217", table.Rule("HYDRAULIC", "HIGH"), nil)
		windy := g.ImpactZone("217", table.Rule("HYDRAULIC", "HIGH"), &Wind{SpeedMS: 7, Direction: 180})

		assert.Equal(t, calm.RadiusHops+1, windy.RadiusHops)
	})

	t.Run("radius capped at four hops", func(t *testing.T) {
		zone := g.ImpactZone("217", table.Rule("FUEL", "CRITICAL"), &Wind{SpeedMS: 12, Direction: 90})
		assert.Equal(t, 4, zone.RadiusHops)
	})
}

func TestPropagationTableFallback(t *testing.T) {
	table := DefaultPropagationTable()

	r := table.Rule("HYDRAULIC", "HIGH")
	assert.Equal(t, 2, r.RadiusHops)
	assert.False(t, r.AffectsRunway)

	unknown := table.Rule("WATER", "HIGH")
	assert.Equal(t, 1, unknown.RadiusHops)
	assert.False(t, unknown.AffectsRunway)
}
