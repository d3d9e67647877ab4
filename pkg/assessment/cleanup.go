// Package assessment holds the deterministic estimators: cleanup time,
// weather adjustment factors, and the dynamic-window flight-impact
// prediction.
package assessment

import (
	"fmt"
	"strings"
)

// Factor clamps shared by the estimators.
const (
	factorMin      = 0.8
	factorMax      = 2.0
	totalFactorMin = 0.64
	totalFactorMax = 3.0
)

// CleanupEstimate is the output of the cleanup-time estimator.
type CleanupEstimate struct {
	BaseTimeMinutes     int                `json:"base_time_minutes"`
	AdjustedTimeMinutes int                `json:"adjusted_time_minutes"`
	Factors             map[string]float64 `json:"factors"`
}

// baseCleanupMinutes is the 3-axis base table: fluid x leak size x facility
// class. Values are minutes.
var baseCleanupMinutes = map[string]map[string]map[string]int{
	"FUEL": {
		"SMALL":  {"stand": 30, "taxiway": 40, "runway": 60},
		"MEDIUM": {"stand": 45, "taxiway": 60, "runway": 90},
		"LARGE":  {"stand": 60, "taxiway": 90, "runway": 120},
	},
	"HYDRAULIC": {
		"SMALL":  {"stand": 25, "taxiway": 35, "runway": 50},
		"MEDIUM": {"stand": 40, "taxiway": 50, "runway": 75},
		"LARGE":  {"stand": 55, "taxiway": 75, "runway": 100},
	},
	"OIL": {
		"SMALL":  {"stand": 20, "taxiway": 30, "runway": 45},
		"MEDIUM": {"stand": 35, "taxiway": 45, "runway": 60},
		"LARGE":  {"stand": 50, "taxiway": 60, "runway": 90},
	},
}

// BaseCleanupMinutes looks up the base table. Unknown axes fall back to the
// MEDIUM row and stand column so the estimator always yields something.
func BaseCleanupMinutes(fluid, leakSize, facility string) int {
	fluid = strings.ToUpper(strings.TrimSpace(fluid))
	leakSize = strings.ToUpper(strings.TrimSpace(leakSize))
	facility = strings.ToLower(strings.TrimSpace(facility))

	byFluid, ok := baseCleanupMinutes[fluid]
	if !ok {
		byFluid = baseCleanupMinutes["OIL"]
	}
	bySize, ok := byFluid[leakSize]
	if !ok {
		bySize = byFluid["MEDIUM"]
	}
	minutes, ok := bySize[facility]
	if !ok {
		minutes = bySize["stand"]
	}
	return minutes
}

// clampFactor bounds a single adjustment factor.
func clampFactor(f float64) float64 {
	if f < factorMin {
		return factorMin
	}
	if f > factorMax {
		return factorMax
	}
	return f
}

// clampTotal bounds the combined adjustment.
func clampTotal(f float64) float64 {
	if f < totalFactorMin {
		return totalFactorMin
	}
	if f > totalFactorMax {
		return totalFactorMax
	}
	return f
}

// EstimateCleanup computes the adjusted cleanup time. The three factors are
// clamped individually to [0.8, 2.0] and the product to [0.64, 3.0].
func EstimateCleanup(fluid, leakSize, facility string, wind, temperature, visibility float64) CleanupEstimate {
	base := BaseCleanupMinutes(fluid, leakSize, facility)

	w := clampFactor(wind)
	tf := clampFactor(temperature)
	v := clampFactor(visibility)
	total := clampTotal(w * tf * v)

	return CleanupEstimate{
		BaseTimeMinutes:     base,
		AdjustedTimeMinutes: int(float64(base)*total + 0.5),
		Factors: map[string]float64{
			"wind":        w,
			"temperature": tf,
			"visibility":  v,
			"total":       total,
		},
	}
}

// Describe renders the estimate for tool observations.
func (e CleanupEstimate) Describe() string {
	return fmt.Sprintf("base %d min, adjusted %d min (total factor %.2f)",
		e.BaseTimeMinutes, e.AdjustedTimeMinutes, e.Factors["total"])
}
