// Package models contains the session state, scenario descriptors, and
// request/response types shared across the engine.
package models

import (
	"encoding/json"
	"time"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// FSM phase identifiers fixed across all scenarios. Everything between
// them is declared by the scenario descriptor.
const (
	FSMStateInit      = "INIT"
	FSMStateCompleted = "COMPLETED"
)

// Common incident fields writable regardless of scenario.
var CommonIncidentFields = map[string]bool{
	"flight_no":         true,
	"flight_no_display": true,
	"position":          true,
	"position_display":  true,
}

// Message is one entry of the conversation history.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// ReasoningStep records one ReAct iteration.
type ReasoningStep struct {
	Thought     string         `json:"thought"`
	Action      string         `json:"action,omitempty"`
	ActionInput map[string]any `json:"action_input,omitempty"`
	Observation string         `json:"observation,omitempty"`
}

// ActionRecord is an executed tool call, append-only.
type ActionRecord struct {
	Action      string         `json:"action"`
	Timestamp   time.Time      `json:"timestamp"`
	Inputs      map[string]any `json:"inputs,omitempty"`
	Observation string         `json:"observation"`
	Success     bool           `json:"success"`
}

// Guardrails constrain what the operator may do at a risk level.
type Guardrails struct {
	AllowedActions        []string `json:"allowed_actions,omitempty"`
	ForbiddenActions      []string `json:"forbidden_actions,omitempty"`
	RequiresHumanApproval bool     `json:"requires_human_approval"`
}

// RiskAssessment is the output of either risk evaluator.
type RiskAssessment struct {
	Level            string      `json:"level"`
	Score            int         `json:"score"`
	Factors          []string    `json:"factors,omitempty"`
	Rationale        string      `json:"rationale,omitempty"`
	RulesTriggered   []string    `json:"rules_triggered,omitempty"`
	ImmediateActions []string    `json:"immediate_actions,omitempty"`
	Guardrails       *Guardrails `json:"guardrails,omitempty"`
	RiskFloorApplied string      `json:"risk_floor_applied,omitempty"`
}

// SpatialAnalysis is the BFS impact-zone result.
type SpatialAnalysis struct {
	IsolatedNodes    []string `json:"isolated_nodes"`
	AffectedStands   []string `json:"affected_stands"`
	AffectedTaxiways []string `json:"affected_taxiways"`
	AffectedRunways  []string `json:"affected_runways"`
	RadiusHops       int      `json:"radius_hops"`
}

// ReferenceFlight anchors the flight-impact window.
type ReferenceFlight struct {
	FlightNo      string    `json:"flight_no"`
	ReferenceTime time.Time `json:"reference_time"`
}

// FlightPlanEntry is one row of the flight-plan table.
type FlightPlanEntry struct {
	FlightNo      string    `json:"flight_no"`
	ScheduledTime time.Time `json:"scheduled_time"`
	Movement      string    `json:"movement"` // DEPARTURE or ARRIVAL
	Stand         string    `json:"stand,omitempty"`
	Taxiway       string    `json:"taxiway,omitempty"`
	Runway        string    `json:"runway,omitempty"`
	AircraftType  string    `json:"aircraft_type,omitempty"`
}

// TimeWindow is a closed interval.
type TimeWindow struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// AffectedFlight is one predicted impact.
type AffectedFlight struct {
	FlightNo      string    `json:"flight_no"`
	ScheduledTime time.Time `json:"scheduled_time"`
	Facility      string    `json:"facility"`
	FacilityType  string    `json:"facility_type"`
	DelayMinutes  int       `json:"delay_minutes"`
	Severity      string    `json:"severity"`
}

// ImpactStatistics summarises a flight-impact prediction.
type ImpactStatistics struct {
	Total                int            `json:"total"`
	TotalDelayMinutes    int            `json:"total_delay_minutes"`
	SeverityDistribution map[string]int `json:"severity_distribution"`
}

// FlightImpactPrediction is the dynamic-window prediction result.
type FlightImpactPrediction struct {
	TimeWindow      TimeWindow       `json:"time_window"`
	AffectedFlights []AffectedFlight `json:"affected_flights"`
	Statistics      ImpactStatistics `json:"statistics"`
}

// WindImpact is the wind component of a weather assessment.
type WindImpact struct {
	Speed            float64 `json:"speed"`
	Direction        float64 `json:"direction"`
	RadiusAdjustment int     `json:"radius_adjustment"`
}

// FactorImpact carries a single multiplicative adjustment factor.
type FactorImpact struct {
	Factor float64 `json:"factor"`
}

// WeatherImpact aggregates weather adjustment factors.
type WeatherImpact struct {
	WindImpact        WindImpact   `json:"wind_impact"`
	TemperatureImpact FactorImpact `json:"temperature_impact"`
	VisibilityImpact  FactorImpact `json:"visibility_impact"`
	TotalFactor       float64      `json:"total_factor"`
}

// Notification is a dispatched department notification, append-only.
type Notification struct {
	Department string    `json:"department"`
	Priority   string    `json:"priority"`
	Timestamp  time.Time `json:"timestamp"`
}

// State is the complete per-session agent state. It is owned by the
// session store between open and close; graph nodes are its only writers.
type State struct {
	SessionID    string    `json:"session_id"`
	ScenarioType string    `json:"scenario_type"`
	CreatedAt    time.Time `json:"created_at"`

	Incident  map[string]any  `json:"incident"`
	Checklist map[string]bool `json:"checklist"`

	Messages       []Message       `json:"messages"`
	ReasoningSteps []ReasoningStep `json:"reasoning_steps"`
	ActionsTaken   []ActionRecord  `json:"actions_taken"`

	RiskAssessment         *RiskAssessment         `json:"risk_assessment,omitempty"`
	SpatialAnalysis        *SpatialAnalysis        `json:"spatial_analysis,omitempty"`
	FlightPlanTable        []FlightPlanEntry       `json:"flight_plan_table,omitempty"`
	ReferenceFlight        *ReferenceFlight        `json:"reference_flight,omitempty"`
	FlightImpactPrediction *FlightImpactPrediction `json:"flight_impact_prediction,omitempty"`
	WeatherImpact          *WeatherImpact          `json:"weather_impact,omitempty"`

	MandatoryActionsDone map[string]bool `json:"mandatory_actions_done"`
	NotificationsSent    []Notification  `json:"notifications_sent"`

	FSMState       string `json:"fsm_state"`
	IterationCount int    `json:"iteration_count"`
	IsComplete     bool   `json:"is_complete"`
	AwaitingUser   bool   `json:"awaiting_user"`
	NextQuestion   string `json:"next_question,omitempty"`

	FinalReport *FinalReport `json:"final_report,omitempty"`
	FinalAnswer string       `json:"final_answer,omitempty"`

	// Per-iteration scratch consumed by the next node; cleared when the
	// turn yields.
	CurrentThought      string         `json:"current_thought,omitempty"`
	CurrentAction       string         `json:"current_action,omitempty"`
	CurrentActionInput  map[string]any `json:"current_action_input,omitempty"`
	CurrentObservation  string         `json:"current_observation,omitempty"`
	PendingObservations []string       `json:"pending_observations,omitempty"`
}

// NewState initialises a session state for a scenario.
func NewState(sessionID, scenarioType string) *State {
	return &State{
		SessionID:            sessionID,
		ScenarioType:         scenarioType,
		CreatedAt:            time.Now().UTC(),
		Incident:             make(map[string]any),
		Checklist:            make(map[string]bool),
		MandatoryActionsDone: make(map[string]bool),
		FSMState:             FSMStateInit,
	}
}

// AppendMessage records a conversation entry.
func (s *State) AppendMessage(role, content string) {
	s.Messages = append(s.Messages, Message{
		Role:      role,
		Content:   content,
		Timestamp: time.Now().UTC(),
	})
}

// AppendWarning records a recovered sub-step failure as a system message.
func (s *State) AppendWarning(stage, reason string) {
	s.AppendMessage(RoleSystem, "[warning] "+stage+": "+reason)
}

// AppendReasoningStep records one ReAct iteration.
func (s *State) AppendReasoningStep(step ReasoningStep) {
	s.ReasoningSteps = append(s.ReasoningSteps, step)
}

// AppendAction records an executed tool call.
func (s *State) AppendAction(rec ActionRecord) {
	s.ActionsTaken = append(s.ActionsTaken, rec)
}

// HasNotification reports whether a (department, priority) pair was already
// dispatched.
func (s *State) HasNotification(department, priority string) bool {
	for _, n := range s.NotificationsSent {
		if n.Department == department && n.Priority == priority {
			return true
		}
	}
	return false
}

// IncidentString returns the incident field as a string, or "" when absent
// or not a string.
func (s *State) IncidentString(key string) string {
	v, ok := s.Incident[key]
	if !ok {
		return ""
	}
	str, ok := v.(string)
	if !ok {
		return ""
	}
	return str
}

// ClearIterationScratch drops the per-iteration fields before the turn
// yields control.
func (s *State) ClearIterationScratch() {
	s.CurrentThought = ""
	s.CurrentAction = ""
	s.CurrentActionInput = nil
	s.CurrentObservation = ""
	s.PendingObservations = nil
}

// Clone deep-copies the state via its JSON form. The memory store relies on
// this to hand out isolated snapshots.
func (s *State) Clone() (*State, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	var out State
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
