package refdata

import (
	"encoding/json"
	"fmt"
	"strings"
)

// AircraftType describes one airframe type in the registry.
type AircraftType struct {
	Type          string  `json:"type"`
	Manufacturer  string  `json:"manufacturer"`
	Category      string  `json:"category"`
	FuelCapacityL int     `json:"fuel_capacity_l"`
	WingspanM     float64 `json:"wingspan_m"`
	Seats         int     `json:"seats"`
}

type aircraftFileDoc struct {
	Types []AircraftType `json:"types"`
}

// AircraftRegistry resolves aircraft type codes.
type AircraftRegistry struct {
	types map[string]AircraftType
}

func parseAircraft(raw []byte) (*AircraftRegistry, error) {
	var file aircraftFileDoc
	if err := json.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse aircraft registry: %w", err)
	}
	reg := &AircraftRegistry{types: make(map[string]AircraftType, len(file.Types))}
	for i, t := range file.Types {
		if t.Type == "" {
			return nil, fmt.Errorf("aircraft entry %d has no type", i)
		}
		key := strings.ToUpper(t.Type)
		if _, dup := reg.types[key]; dup {
			return nil, fmt.Errorf("duplicate aircraft type %s", t.Type)
		}
		reg.types[key] = t
	}
	return reg, nil
}

// Len returns the number of registered types.
func (r *AircraftRegistry) Len() int {
	return len(r.types)
}

// Get resolves a type code, ignoring case.
func (r *AircraftRegistry) Get(code string) (AircraftType, bool) {
	t, ok := r.types[strings.ToUpper(strings.TrimSpace(code))]
	return t, ok
}
