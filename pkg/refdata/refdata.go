// Package refdata serves the reference lookups behind the information
// tools: the daily flight plan, the aircraft type registry, and weather
// observations. Data comes from JSON files; a complete default data set is
// compiled into the binary and individual files may be overridden from a
// directory at deployment time.
package refdata

import (
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
)

//go:embed defaults
var defaultsFS embed.FS

const (
	flightPlanFile = "flight_plan.json"
	aircraftFile   = "aircraft.json"
	weatherFile    = "weather.json"
)

// Store bundles the three providers.
type Store struct {
	FlightPlan *FlightPlan
	Aircraft   *AircraftRegistry
	Weather    *WeatherProvider
}

// LoadDefault builds a store from the embedded data set.
func LoadDefault() (*Store, error) {
	return load(func(name string) ([]byte, error) {
		return fs.ReadFile(defaultsFS, "defaults/"+name)
	})
}

// Load builds a store from dir. Files absent from dir fall back to the
// embedded defaults, so a deployment can override just the flight plan.
func Load(dir string) (*Store, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("refdata dir %s: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("refdata dir %s: not a directory", dir)
	}
	return load(func(name string) ([]byte, error) {
		raw, err := os.ReadFile(filepath.Join(dir, name))
		if err == nil {
			return raw, nil
		}
		if !os.IsNotExist(err) {
			return nil, err
		}
		slog.Debug("Reference data file not overridden, using embedded default", "file", name)
		return fs.ReadFile(defaultsFS, "defaults/"+name)
	})
}

func load(read func(name string) ([]byte, error)) (*Store, error) {
	store := &Store{}

	raw, err := read(flightPlanFile)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", flightPlanFile, err)
	}
	if store.FlightPlan, err = parseFlightPlan(raw); err != nil {
		return nil, fmt.Errorf("%s: %w", flightPlanFile, err)
	}

	if raw, err = read(aircraftFile); err != nil {
		return nil, fmt.Errorf("read %s: %w", aircraftFile, err)
	}
	if store.Aircraft, err = parseAircraft(raw); err != nil {
		return nil, fmt.Errorf("%s: %w", aircraftFile, err)
	}

	if raw, err = read(weatherFile); err != nil {
		return nil, fmt.Errorf("read %s: %w", weatherFile, err)
	}
	if store.Weather, err = parseWeather(raw); err != nil {
		return nil, fmt.Errorf("%s: %w", weatherFile, err)
	}

	slog.Info("Reference data loaded",
		"flights", store.FlightPlan.Len(),
		"aircraft_types", store.Aircraft.Len(),
		"weather_observations", store.Weather.Len())
	return store, nil
}
