package models

// Event processing statuses reported to callers.
const (
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusError      = "error"
)

// StartEventRequest opens (or reopens) a session with an initial report.
type StartEventRequest struct {
	Message      string `json:"message" binding:"required"`
	ScenarioType string `json:"scenario_type,omitempty"`
	SessionID    string `json:"session_id,omitempty"`
}

// ChatRequest continues an existing session.
type ChatRequest struct {
	SessionID string `json:"session_id" binding:"required"`
	Message   string `json:"message" binding:"required"`
}

// ParseRequest runs extraction without opening a session.
type ParseRequest struct {
	Message      string `json:"message" binding:"required"`
	ScenarioType string `json:"scenario_type,omitempty"`
}

// ParseResponse is the dry-run extraction result.
type ParseResponse struct {
	ScenarioType          string          `json:"scenario_type"`
	Incident              map[string]any  `json:"incident"`
	Checklist             map[string]bool `json:"checklist"`
	EnrichmentObservation string          `json:"enrichment_observation,omitempty"`
}

// EventResponse is the projection of session state returned by the start,
// chat, and get endpoints.
type EventResponse struct {
	SessionID              string                  `json:"session_id"`
	Status                 string                  `json:"status"`
	Message                string                  `json:"message"`
	FSMState               string                  `json:"fsm_state"`
	Checklist              map[string]bool         `json:"checklist"`
	RiskLevel              string                  `json:"risk_level,omitempty"`
	ScenarioType           string                  `json:"scenario_type"`
	Incident               map[string]any          `json:"incident"`
	FSMStates              []string                `json:"fsm_states"`
	NextQuestion           string                  `json:"next_question,omitempty"`
	ReasoningSteps         []ReasoningStep         `json:"reasoning_steps"`
	ToolCalls              []ActionRecord          `json:"tool_calls"`
	SpatialAnalysis        *SpatialAnalysis        `json:"spatial_analysis,omitempty"`
	FlightImpactPrediction *FlightImpactPrediction `json:"flight_impact_prediction,omitempty"`
}

// NewEventResponse projects a state into the response shape. fsmStates is
// the scenario's declared phase order; message is the operator-facing text
// for this turn.
func NewEventResponse(state *State, fsmStates []string, status, message string) *EventResponse {
	resp := &EventResponse{
		SessionID:              state.SessionID,
		Status:                 status,
		Message:                message,
		FSMState:               state.FSMState,
		Checklist:              state.Checklist,
		ScenarioType:           state.ScenarioType,
		Incident:               state.Incident,
		FSMStates:              fsmStates,
		NextQuestion:           state.NextQuestion,
		ReasoningSteps:         state.ReasoningSteps,
		ToolCalls:              state.ActionsTaken,
		SpatialAnalysis:        state.SpatialAnalysis,
		FlightImpactPrediction: state.FlightImpactPrediction,
	}
	if state.RiskAssessment != nil {
		resp.RiskLevel = state.RiskAssessment.Level
	}
	return resp
}
