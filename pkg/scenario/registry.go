package scenario

import (
	"errors"
	"fmt"
	"strings"

	"github.com/airside-ops/apron/pkg/models"
	"github.com/airside-ops/apron/pkg/rules"
)

// DefaultScenarioID is used when keyword identification matches nothing.
const DefaultScenarioID = "oil_spill"

// ErrUnknownScenario is returned by Get for ids the registry does not hold.
var ErrUnknownScenario = errors.New("unknown scenario")

// Registry holds every loaded scenario descriptor plus the compiled
// weighted rule sets. It is immutable after load and safe for concurrent
// readers.
type Registry struct {
	scenarios map[string]*models.Scenario
	ruleSets  map[string]*rules.RuleSet
	ids       []string
}

// Get returns the descriptor for id.
func (r *Registry) Get(id string) (*models.Scenario, error) {
	sc, ok := r.scenarios[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownScenario, id)
	}
	return sc, nil
}

// IDs returns all scenario ids in ascending order.
func (r *Registry) IDs() []string {
	return append([]string(nil), r.ids...)
}

// Len returns the number of loaded scenarios.
func (r *Registry) Len() int {
	return len(r.ids)
}

// RuleSet returns the compiled weighted rule set for id, or nil when the
// scenario scores through an inline priority rule table instead.
func (r *Registry) RuleSet(id string) *rules.RuleSet {
	return r.ruleSets[id]
}

// Identify picks the scenario for a free-text report by keyword match.
// The scenario matching the most distinct keywords wins; ties go to the
// lexicographically lower id. With no match at all the default scenario
// is returned.
func (r *Registry) Identify(message string) string {
	best := ""
	bestCount := 0
	for _, id := range r.ids {
		count := 0
		for _, kw := range r.scenarios[id].Keywords {
			if strings.Contains(message, kw) {
				count++
			}
		}
		if count > bestCount {
			best = id
			bestCount = count
		}
	}
	if best == "" {
		return DefaultScenarioID
	}
	return best
}
