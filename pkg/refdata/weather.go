package refdata

import (
	"encoding/json"
	"fmt"
	"time"
)

// WeatherObservation is one station report.
type WeatherObservation struct {
	Station       string    `json:"station"`
	WindSpeedMS   float64   `json:"wind_speed_ms"`
	WindDirection float64   `json:"wind_direction_deg"`
	TemperatureC  float64   `json:"temperature_c"`
	VisibilityKM  float64   `json:"visibility_km"`
	Precipitation string    `json:"precipitation"`
	ObservedAt    time.Time `json:"observed_at"`
}

type weatherFileDoc struct {
	Observations []WeatherObservation `json:"observations"`
}

// WeatherProvider serves the most recent observation.
type WeatherProvider struct {
	observations []WeatherObservation
}

func parseWeather(raw []byte) (*WeatherProvider, error) {
	var file weatherFileDoc
	if err := json.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse weather observations: %w", err)
	}
	for i, obs := range file.Observations {
		if obs.ObservedAt.IsZero() {
			return nil, fmt.Errorf("weather observation %d has no observed_at", i)
		}
	}
	return &WeatherProvider{observations: file.Observations}, nil
}

// Len returns the number of observations held.
func (w *WeatherProvider) Len() int {
	return len(w.observations)
}

// Current returns the latest observation by observed_at.
func (w *WeatherProvider) Current() (WeatherObservation, bool) {
	if len(w.observations) == 0 {
		return WeatherObservation{}, false
	}
	latest := w.observations[0]
	for _, obs := range w.observations[1:] {
		if obs.ObservedAt.After(latest.ObservedAt) {
			latest = obs
		}
	}
	return latest, true
}
