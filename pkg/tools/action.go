package tools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/airside-ops/apron/pkg/models"
	"github.com/airside-ops/apron/pkg/rules"
)

// notifyFlag returns the mandatory-action key a department notification
// satisfies. Fire keeps its historical fire_dept_notified key.
func notifyFlag(department string) string {
	if department == "fire" {
		return "fire_dept_notified"
	}
	return department + "_notified"
}

const notifyDepartmentSchema = `{
  "type": "object",
  "properties": {
    "department": {"type": "string", "enum": ["fire", "maintenance", "atc", "airfield", "medical", "security"]},
    "priority":   {"type": "string", "enum": ["immediate", "urgent", "normal"]}
  },
  "required": ["department"],
  "additionalProperties": false
}`

// notifyDepartment dispatches a coordination notification. Repeats of an
// already-sent (department, priority) pair are no-ops. Critical: the
// compliance validator runs right after it.
func (b *builder) notifyDepartment() *Tool {
	return &Tool{
		Name:        "notify_department",
		Description: "通知协同部门（消防、机务、塔台、场务、医疗、安保），可指定优先级。",
		Scenarios:   []string{"common"},
		Critical:    true,
		BareKey:     "department",
		schemaRaw:   notifyDepartmentSchema,
		run: func(ctx context.Context, state *models.State, input map[string]any) Result {
			department := inputString(input, "department")
			priority := stringOr(input, "priority", "normal")
			if state.HasNotification(department, priority) && state.MandatoryActionsDone[notifyFlag(department)] {
				return success("%s already notified at %s priority", department, priority)
			}
			state.NotificationsSent = append(state.NotificationsSent, models.Notification{
				Department: department,
				Priority:   priority,
				Timestamp:  b.deps.Now().UTC(),
			})
			state.MandatoryActionsDone[notifyFlag(department)] = true
			return success("notified %s at %s priority", department, priority)
		},
	}
}

// generateReport assembles the final report and closes the incident. A
// second call is refused; is_complete stays set.
func (b *builder) generateReport() *Tool {
	return &Tool{
		Name:        "generate_report",
		Description: "生成最终处置报告并结束事件处理。事件结束前的最后一步。",
		Scenarios:   []string{"common"},
		run: func(ctx context.Context, state *models.State, input map[string]any) Result {
			if state.FinalReport != nil || state.MandatoryActionsDone["report_generated"] {
				return failure("report already generated")
			}
			sc, err := b.scenarioFor(state)
			if err != nil {
				return failure("unknown scenario %q", state.ScenarioType)
			}
			report := BuildReport(state, sc, b.deps.Now())
			state.FinalReport = report
			state.MandatoryActionsDone["report_generated"] = true
			state.IsComplete = true

			obs := fmt.Sprintf("report generated: %d timeline entries, %d units notified",
				len(report.Timeline), len(report.UnitsNotified))
			if report.RiskAssessment != nil {
				obs += ", risk " + report.RiskAssessment.Level
			}
			return success("%s", obs)
		},
	}
}

// BuildReport assembles the structured end-of-incident report from the
// session state. The report tool stores it; the output generator renders
// it.
func BuildReport(state *models.State, sc *models.Scenario, now time.Time) *models.FinalReport {
	report := &models.FinalReport{
		SessionID:       state.SessionID,
		ScenarioType:    state.ScenarioType,
		EventSummary:    eventSummary(state),
		RiskAssessment:  state.RiskAssessment,
		Timeline:        make([]models.TimelineEntry, 0, len(state.ActionsTaken)),
		Checklist:       make([]models.ChecklistItem, 0, len(sc.FieldOrder)),
		UnitsNotified:   append([]models.Notification{}, state.NotificationsSent...),
		Recommendations: recommendationsFor(state.RiskAssessment),
		GeneratedAt:     now.UTC(),
	}
	for _, a := range state.ActionsTaken {
		report.Timeline = append(report.Timeline, models.TimelineEntry{
			Timestamp:   a.Timestamp,
			Action:      a.Action,
			Observation: a.Observation,
			Success:     a.Success,
		})
	}
	for _, key := range sc.FieldOrder {
		name := sc.FieldNames[key]
		if name == "" {
			name = key
		}
		report.Checklist = append(report.Checklist, models.ChecklistItem{
			Key:       key,
			Name:      name,
			Collected: state.Checklist[key],
			Value:     incidentDisplay(state, key),
		})
	}
	if sa := state.SpatialAnalysis; sa != nil {
		report.Impact.AffectedStands = append([]string{}, sa.AffectedStands...)
		report.Impact.AffectedTaxiways = append([]string{}, sa.AffectedTaxiways...)
		report.Impact.AffectedRunways = append([]string{}, sa.AffectedRunways...)
	}
	if fp := state.FlightImpactPrediction; fp != nil {
		report.Impact.AffectedFlights = fp.Statistics.Total
		report.Impact.TotalDelayMinutes = fp.Statistics.TotalDelayMinutes
	}
	return report
}

func eventSummary(state *models.State) string {
	parts := []string{state.ScenarioType + " incident"}
	if flight := displayField(state, "flight_no"); flight != "" {
		parts = append(parts, "flight "+flight)
	}
	if pos := displayField(state, "position"); pos != "" {
		parts = append(parts, "at "+pos)
	}
	if t := state.IncidentString("incident_time"); t != "" {
		parts = append(parts, "reported "+t)
	}
	return strings.Join(parts, ", ")
}

// displayField prefers the verbatim display form over the canonical value.
func displayField(state *models.State, key string) string {
	if d := state.IncidentString(key + "_display"); d != "" {
		return d
	}
	return state.IncidentString(key)
}

func incidentDisplay(state *models.State, key string) string {
	if d := state.IncidentString(key + "_display"); d != "" {
		return d
	}
	if v, ok := state.Incident[key]; ok {
		return fmt.Sprintf("%v", v)
	}
	return ""
}

// recommendationsFor derives the report recommendations from the risk
// outcome.
func recommendationsFor(ra *models.RiskAssessment) []string {
	if ra == nil {
		return []string{"按标准程序完成现场处置并复盘事件记录"}
	}
	recs := append([]string{}, ra.ImmediateActions...)
	if rules.Rank(ra.Level) >= 4 {
		recs = append(recs, "持续监控现场直至风险解除")
	}
	if ra.Guardrails != nil && ra.Guardrails.RequiresHumanApproval {
		recs = append(recs, "恢复运行前需人工批准")
	}
	if len(recs) == 0 {
		recs = []string{"按标准程序完成现场处置"}
	}
	return recs
}
