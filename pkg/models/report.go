package models

import "time"

// TimelineEntry is one row of the handling timeline in the final report.
type TimelineEntry struct {
	Timestamp   time.Time `json:"timestamp"`
	Action      string    `json:"action"`
	Observation string    `json:"observation"`
	Success     bool      `json:"success"`
}

// ChecklistItem is one row of the report checklist section.
type ChecklistItem struct {
	Key       string `json:"key"`
	Name      string `json:"name"`
	Collected bool   `json:"collected"`
	Value     string `json:"value,omitempty"`
}

// OperationalImpact summarises spatial and flight impact for the report.
type OperationalImpact struct {
	AffectedStands    []string `json:"affected_stands,omitempty"`
	AffectedTaxiways  []string `json:"affected_taxiways,omitempty"`
	AffectedRunways   []string `json:"affected_runways,omitempty"`
	AffectedFlights   int      `json:"affected_flights"`
	TotalDelayMinutes int      `json:"total_delay_minutes"`
}

// FinalReport is the structured end-of-incident report.
type FinalReport struct {
	SessionID       string            `json:"session_id"`
	ScenarioType    string            `json:"scenario_type"`
	EventSummary    string            `json:"event_summary"`
	RiskAssessment  *RiskAssessment   `json:"risk_assessment,omitempty"`
	Timeline        []TimelineEntry   `json:"timeline"`
	Checklist       []ChecklistItem   `json:"checklist"`
	UnitsNotified   []Notification    `json:"units_notified"`
	Impact          OperationalImpact `json:"impact"`
	Recommendations []string          `json:"recommendations"`
	GeneratedAt     time.Time         `json:"generated_at"`
}
