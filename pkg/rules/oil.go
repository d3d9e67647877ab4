package rules

import (
	"fmt"
	"sort"

	"github.com/airside-ops/apron/pkg/models"
)

// ValidateOilRules checks the priority rule table at load time: priorities
// unique, levels known, scores in range, conditions non-empty.
func ValidateOilRules(ruleList []models.OilRiskRule) error {
	seen := make(map[int]string, len(ruleList))
	for _, r := range ruleList {
		if r.ID == "" {
			return fmt.Errorf("risk rule with empty id")
		}
		if other, dup := seen[r.Priority]; dup {
			return fmt.Errorf("risk rules %s and %s share priority %d", other, r.ID, r.Priority)
		}
		seen[r.Priority] = r.ID
		if !KnownLevel(r.Level) {
			return fmt.Errorf("risk rule %s has unknown level %q", r.ID, r.Level)
		}
		if r.Score < 0 || r.Score > 100 {
			return fmt.Errorf("risk rule %s score %d out of range [0,100]", r.ID, r.Score)
		}
		if len(r.Conditions) == 0 {
			return fmt.Errorf("risk rule %s has no conditions", r.ID)
		}
	}
	return nil
}

// EvaluateOilRules scans the table in ascending priority and returns the
// first rule whose conditions all equal-match the incident. When nothing
// matches, a LOW/10 default is returned.
func EvaluateOilRules(ruleList []models.OilRiskRule, incident map[string]any) *models.RiskAssessment {
	ordered := make([]models.OilRiskRule, len(ruleList))
	copy(ordered, ruleList)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Priority < ordered[j].Priority })

	for _, r := range ordered {
		factors := matchConditions(r.Conditions, incident)
		if factors == nil {
			continue
		}
		return &models.RiskAssessment{
			Level:            r.Level,
			Score:            r.Score,
			Factors:          factors,
			Rationale:        r.Rationale,
			RulesTriggered:   []string{r.ID},
			ImmediateActions: append([]string(nil), r.ImmediateActions...),
		}
	}

	return &models.RiskAssessment{
		Level:     LevelLow,
		Score:     10,
		Rationale: "no high-risk rule matched",
	}
}

// matchConditions returns the matched "field=value" factors when every
// condition equal-matches the incident, or nil on any miss.
func matchConditions(conditions map[string]any, incident map[string]any) []string {
	keys := make([]string, 0, len(conditions))
	for k := range conditions {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	factors := make([]string, 0, len(keys))
	for _, k := range keys {
		v, ok := incident[k]
		if !ok || !looseEqual(v, conditions[k]) {
			return nil
		}
		factors = append(factors, fmt.Sprintf("%s=%v", k, v))
	}
	return factors
}
