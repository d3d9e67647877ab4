package assessment

import (
	"github.com/airside-ops/apron/pkg/models"
)

// Observation is the weather snapshot consumed by the estimators. Values
// come from the reference-data provider or directly from the caller.
type Observation struct {
	WindSpeedMS   float64 `json:"wind_speed_ms"`
	WindDirection float64 `json:"wind_direction"`
	TemperatureC  float64 `json:"temperature_c"`
	VisibilityKM  float64 `json:"visibility_km"`
}

// windFactor slows cleanup as wind picks up.
func windFactor(speedMS float64) float64 {
	switch {
	case speedMS < 5:
		return 1.0
	case speedMS < 10:
		return 1.2
	case speedMS < 15:
		return 1.5
	default:
		return 2.0
	}
}

// temperatureFactor penalises freezing and very hot apron conditions.
func temperatureFactor(tempC float64) float64 {
	switch {
	case tempC < 0:
		return 1.3
	case tempC < 10:
		return 1.1
	case tempC <= 30:
		return 1.0
	default:
		return 1.2
	}
}

// visibilityFactor penalises low-visibility operations.
func visibilityFactor(visKM float64) float64 {
	switch {
	case visKM >= 5:
		return 1.0
	case visKM >= 1:
		return 1.2
	default:
		return 1.5
	}
}

// ComputeWeatherImpact converts an observation into the adjustment factors
// shared by the cleanup estimator and the spatial diffusion.
func ComputeWeatherImpact(obs Observation) *models.WeatherImpact {
	w := clampFactor(windFactor(obs.WindSpeedMS))
	tf := clampFactor(temperatureFactor(obs.TemperatureC))
	v := clampFactor(visibilityFactor(obs.VisibilityKM))

	radiusAdj := 0
	if obs.WindSpeedMS > 5 {
		radiusAdj = 1
	}

	return &models.WeatherImpact{
		WindImpact: models.WindImpact{
			Speed:            obs.WindSpeedMS,
			Direction:        obs.WindDirection,
			RadiusAdjustment: radiusAdj,
		},
		TemperatureImpact: models.FactorImpact{Factor: tf},
		VisibilityImpact:  models.FactorImpact{Factor: v},
		TotalFactor:       clampTotal(w * tf * v),
	}
}

// WindFactorOf extracts the wind factor from a stored impact, defaulting to
// neutral when absent.
func WindFactorOf(wi *models.WeatherImpact) float64 {
	if wi == nil {
		return 1.0
	}
	return clampFactor(windFactor(wi.WindImpact.Speed))
}

// TemperatureFactorOf extracts the temperature factor, neutral when absent.
func TemperatureFactorOf(wi *models.WeatherImpact) float64 {
	if wi == nil {
		return 1.0
	}
	return wi.TemperatureImpact.Factor
}

// VisibilityFactorOf extracts the visibility factor, neutral when absent.
func VisibilityFactorOf(wi *models.WeatherImpact) float64 {
	if wi == nil {
		return 1.0
	}
	return wi.VisibilityImpact.Factor
}
