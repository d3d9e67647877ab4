package assessment

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBaseCleanupMinutes(t *testing.T) {
	tests := []struct {
		name     string
		fluid    string
		size     string
		facility string
		want     int
	}{
		{"fuel large stand", "FUEL", "LARGE", "stand", 60},
		{"fuel small runway", "FUEL", "SMALL", "runway", 60},
		{"oil small stand", "OIL", "SMALL", "stand", 20},
		{"hydraulic medium taxiway", "HYDRAULIC", "MEDIUM", "taxiway", 50},
		{"case and spacing tolerated", " fuel ", "large", "STAND", 60},
		{"unknown fluid falls back to oil", "COFFEE", "SMALL", "stand", 20},
		{"unknown size falls back to medium", "FUEL", "HUGE", "stand", 45},
		{"unknown facility falls back to stand", "FUEL", "LARGE", "hangar", 60},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, BaseCleanupMinutes(tt.fluid, tt.size, tt.facility))
		})
	}
}

func TestEstimateCleanup(t *testing.T) {
	t.Run("neutral factors keep the base", func(t *testing.T) {
		got := EstimateCleanup("FUEL", "LARGE", "stand", 1.0, 1.0, 1.0)
		assert.Equal(t, 60, got.BaseTimeMinutes)
		assert.Equal(t, 60, got.AdjustedTimeMinutes)
		assert.InDelta(t, 1.0, got.Factors["total"], 0.001)
	})

	t.Run("factors clamp individually", func(t *testing.T) {
		got := EstimateCleanup("OIL", "SMALL", "stand", 5.0, 0.1, 1.0)
		assert.InDelta(t, 2.0, got.Factors["wind"], 0.001)
		assert.InDelta(t, 0.8, got.Factors["temperature"], 0.001)
	})

	t.Run("total clamps to three times base", func(t *testing.T) {
		got := EstimateCleanup("FUEL", "LARGE", "runway", 2.0, 2.0, 2.0)
		assert.InDelta(t, 3.0, got.Factors["total"], 0.001)
		assert.Equal(t, 360, got.AdjustedTimeMinutes)
	})

	t.Run("total floor", func(t *testing.T) {
		got := EstimateCleanup("OIL", "SMALL", "stand", 0.5, 0.5, 1.0)
		// Each factor clamps to 0.8 first; 0.8*0.8 = 0.64 sits on the floor.
		assert.InDelta(t, 0.64, got.Factors["total"], 0.001)
		assert.Equal(t, 13, got.AdjustedTimeMinutes)
	})

	t.Run("describe mentions both times", func(t *testing.T) {
		got := EstimateCleanup("FUEL", "MEDIUM", "taxiway", 1.0, 1.0, 1.0)
		assert.Contains(t, got.Describe(), "base 60 min")
		assert.Contains(t, got.Describe(), "adjusted 60 min")
	})
}
