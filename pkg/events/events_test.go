package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/airside-ops/apron/pkg/models"
)

func TestNewNodeUpdate(t *testing.T) {
	before := time.Now().UTC()
	u := NewNodeUpdate(NodeReasoning, "sess-1")
	after := time.Now().UTC()

	assert.Equal(t, NodeReasoning, u.Node)
	assert.Equal(t, "sess-1", u.SessionID)
	assert.False(t, u.Timestamp.Before(before))
	assert.False(t, u.Timestamp.After(after))
	assert.Equal(t, time.UTC, u.Timestamp.Location())
}

func TestNodeUpdateOmitsEmptyFields(t *testing.T) {
	u := NewNodeUpdate(NodeToolExecutor, "sess-2")
	u.CurrentObservation = "notified fire at immediate priority"

	raw, err := json.Marshal(u)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(raw, &got))

	assert.Contains(t, got, "node")
	assert.Contains(t, got, "session_id")
	assert.Contains(t, got, "timestamp")
	assert.Contains(t, got, "current_observation")
	assert.NotContains(t, got, "fsm_state")
	assert.NotContains(t, got, "checklist")
	assert.NotContains(t, got, "risk_assessment")
	assert.NotContains(t, got, "final_answer")
	assert.NotContains(t, got, "is_complete")
}

func TestNodeUpdateCarriesEnrichment(t *testing.T) {
	u := NewNodeUpdate(NodeToolExecutor, "sess-3")
	u.RiskAssessment = &models.RiskAssessment{Level: "HIGH", Score: 95}
	u.SpatialAnalysis = &models.SpatialAnalysis{AffectedRunways: []string{"02L"}}

	raw, err := json.Marshal(u)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(raw, &got))

	risk, ok := got["risk_assessment"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "HIGH", risk["level"])
	spatial, ok := got["spatial_analysis"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, []any{"02L"}, spatial["affected_runways"])
}

func TestNewErrorFrame(t *testing.T) {
	f := NewErrorFrame("sess-4", "session is busy")
	assert.Equal(t, "sess-4", f.SessionID)
	assert.Equal(t, "session is busy", f.Error)
	assert.Equal(t, time.UTC, f.Timestamp.Location())
}

func TestStreamDeliversInOrder(t *testing.T) {
	s := NewStream(8)
	assert.True(t, s.Publish(EventNodeUpdate, NewNodeUpdate(NodeInputParser, "s")))
	assert.True(t, s.Publish(EventNodeUpdate, NewNodeUpdate(NodeReasoning, "s")))
	s.Close(EventComplete, NewNodeUpdate(NodeOutputGenerator, "s"))

	var got []Frame
	for f := range s.Frames() {
		got = append(got, f)
	}
	require.Len(t, got, 3)
	assert.Equal(t, EventNodeUpdate, got[0].Event)
	assert.Equal(t, NodeInputParser, got[0].Data.(*NodeUpdate).Node)
	assert.Equal(t, EventComplete, got[2].Event)
}

func TestStreamDropsWhenFull(t *testing.T) {
	s := NewStream(2)
	assert.True(t, s.Publish(EventNodeUpdate, 1))
	assert.True(t, s.Publish(EventNodeUpdate, 2))
	assert.False(t, s.Publish(EventNodeUpdate, 3))
	assert.Equal(t, 1, s.Dropped())
}

func TestStreamCloseDeliversTerminalFrameWhenFull(t *testing.T) {
	s := NewStream(1)
	require.True(t, s.Publish(EventNodeUpdate, "update"))
	s.Close(EventError, "boom")

	var got []Frame
	for f := range s.Frames() {
		got = append(got, f)
	}
	// The oldest buffered frame is evicted so the terminal frame lands.
	require.Len(t, got, 1)
	assert.Equal(t, EventError, got[0].Event)
	assert.Equal(t, "boom", got[0].Data)
}

func TestStreamCloseIsIdempotent(t *testing.T) {
	s := NewStream(4)
	s.Close(EventComplete, nil)
	s.Close(EventComplete, nil)
	assert.False(t, s.Publish(EventNodeUpdate, "late"))

	var n int
	for range s.Frames() {
		n++
	}
	assert.Equal(t, 1, n)
}
