package refdata

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/airside-ops/apron/pkg/models"
)

// Flight is one flight-plan row enriched with airline metadata the tools
// surface in observations.
type Flight struct {
	models.FlightPlanEntry
	Airline string
}

// planEntry is the on-disk row; scheduled_time is a local HH:MM clock
// resolved onto a concrete date at query time.
type planEntry struct {
	FlightNo      string `json:"flight_no"`
	Airline       string `json:"airline,omitempty"`
	ScheduledTime string `json:"scheduled_time"`
	Movement      string `json:"movement"`
	Stand         string `json:"stand,omitempty"`
	Taxiway       string `json:"taxiway,omitempty"`
	Runway        string `json:"runway,omitempty"`
	AircraftType  string `json:"aircraft_type,omitempty"`
}

type planFile struct {
	Flights []planEntry `json:"flights"`
}

// FlightPlan answers flight lookups against the daily plan.
type FlightPlan struct {
	entries []planEntry
}

func parseFlightPlan(raw []byte) (*FlightPlan, error) {
	var file planFile
	if err := json.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse flight plan: %w", err)
	}
	seen := make(map[string]bool, len(file.Flights))
	for i, e := range file.Flights {
		if e.FlightNo == "" {
			return nil, fmt.Errorf("flight plan entry %d has no flight_no", i)
		}
		key := canonicalFlightNo(e.FlightNo)
		if seen[key] {
			return nil, fmt.Errorf("duplicate flight %s in plan", e.FlightNo)
		}
		seen[key] = true
		if _, err := time.Parse("15:04", e.ScheduledTime); err != nil {
			return nil, fmt.Errorf("flight %s: bad scheduled_time %q", e.FlightNo, e.ScheduledTime)
		}
		switch e.Movement {
		case "DEPARTURE", "ARRIVAL":
		default:
			return nil, fmt.Errorf("flight %s: bad movement %q", e.FlightNo, e.Movement)
		}
	}
	return &FlightPlan{entries: file.Flights}, nil
}

// Len returns the number of plan rows.
func (p *FlightPlan) Len() int {
	return len(p.entries)
}

// Entries materialises the whole plan on the date of day, for the
// flight-impact window selection.
func (p *FlightPlan) Entries(day time.Time) []models.FlightPlanEntry {
	out := make([]models.FlightPlanEntry, 0, len(p.entries))
	for _, e := range p.entries {
		out = append(out, e.resolve(day))
	}
	return out
}

// Find looks a flight up by number, ignoring case and surrounding space.
func (p *FlightPlan) Find(flightNo string, day time.Time) (Flight, bool) {
	want := canonicalFlightNo(flightNo)
	if want == "" {
		return Flight{}, false
	}
	for _, e := range p.entries {
		if canonicalFlightNo(e.FlightNo) == want {
			return Flight{FlightPlanEntry: e.resolve(day), Airline: e.Airline}, true
		}
	}
	return Flight{}, false
}

// AtStand returns the flights planned onto a stand, in schedule order as
// listed.
func (p *FlightPlan) AtStand(stand string, day time.Time) []Flight {
	var out []Flight
	for _, e := range p.entries {
		if e.Stand == stand {
			out = append(out, Flight{FlightPlanEntry: e.resolve(day), Airline: e.Airline})
		}
	}
	return out
}

func (e planEntry) resolve(day time.Time) models.FlightPlanEntry {
	clock, _ := time.Parse("15:04", e.ScheduledTime)
	return models.FlightPlanEntry{
		FlightNo: e.FlightNo,
		ScheduledTime: time.Date(day.Year(), day.Month(), day.Day(),
			clock.Hour(), clock.Minute(), 0, 0, day.Location()),
		Movement:     e.Movement,
		Stand:        e.Stand,
		Taxiway:      e.Taxiway,
		Runway:       e.Runway,
		AircraftType: e.AircraftType,
	}
}

func canonicalFlightNo(no string) string {
	return strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(no), " ", ""))
}
