// Package events defines the SSE frames streamed to callers while a turn
// runs. Every graph node execution produces one node_update frame; the
// stream ends with a single complete or error frame.
//
// Frames are deltas: a frame carries only the fields the node touched, and
// consumers merge frames into their local session view. Sending an
// unchanged sub-structure again is allowed (the merge is idempotent);
// omitting a changed one is not.
package events

import (
	"time"

	"github.com/airside-ops/apron/pkg/models"
)

// SSE event names.
const (
	EventNodeUpdate = "node_update"
	EventComplete   = "complete"
	EventError      = "error"
)

// Graph node names as they appear in frames.
const (
	NodeInputParser     = "input_parser"
	NodeReasoning       = "reasoning"
	NodeToolExecutor    = "tool_executor"
	NodeFSMValidator    = "fsm_validator"
	NodeOutputGenerator = "output_generator"
)

// NodeUpdate is one delta frame emitted after a graph node execution.
type NodeUpdate struct {
	Node      string    `json:"node"`
	Timestamp time.Time `json:"timestamp"`
	SessionID string    `json:"session_id"`

	FSMState  string          `json:"fsm_state,omitempty"`
	Checklist map[string]bool `json:"checklist,omitempty"`

	CurrentThought     string         `json:"current_thought,omitempty"`
	CurrentAction      string         `json:"current_action,omitempty"`
	CurrentActionInput map[string]any `json:"current_action_input,omitempty"`
	CurrentObservation string         `json:"current_observation,omitempty"`

	ReasoningSteps []models.ReasoningStep `json:"reasoning_steps,omitempty"`
	ToolCalls      []models.ActionRecord  `json:"tool_calls,omitempty"`

	RiskAssessment         *models.RiskAssessment         `json:"risk_assessment,omitempty"`
	SpatialAnalysis        *models.SpatialAnalysis        `json:"spatial_analysis,omitempty"`
	FlightImpactPrediction *models.FlightImpactPrediction `json:"flight_impact_prediction,omitempty"`

	NextQuestion string `json:"next_question,omitempty"`
	IsComplete   bool   `json:"is_complete,omitempty"`
	FinalAnswer  string `json:"final_answer,omitempty"`
}

// NewNodeUpdate starts a frame for one node execution.
func NewNodeUpdate(node, sessionID string) *NodeUpdate {
	return &NodeUpdate{
		Node:      node,
		Timestamp: time.Now().UTC(),
		SessionID: sessionID,
	}
}

// ErrorFrame is the terminal frame of a failed turn.
type ErrorFrame struct {
	SessionID   string    `json:"session_id"`
	Timestamp   time.Time `json:"timestamp"`
	Error       string    `json:"error"`
	FSMState    string    `json:"fsm_state,omitempty"`
	FinalAnswer string    `json:"final_answer,omitempty"`
}

// NewErrorFrame builds the terminal error frame for a session.
func NewErrorFrame(sessionID, message string) *ErrorFrame {
	return &ErrorFrame{
		SessionID: sessionID,
		Timestamp: time.Now().UTC(),
		Error:     message,
	}
}
