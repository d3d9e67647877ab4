package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/airside-ops/apron/pkg/agent"
	"github.com/airside-ops/apron/pkg/events"
	"github.com/airside-ops/apron/pkg/models"
)

// sseEvents posts a request and collects the event names of every SSE
// frame until the stream ends.
func sseEvents(t *testing.T, url string, body any) (int, string, []string) {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)

	resp, err := http.Post(url, "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	defer resp.Body.Close()

	var names []string
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "event:") {
			names = append(names, strings.TrimSpace(strings.TrimPrefix(line, "event:")))
		}
	}
	require.NoError(t, scanner.Err())
	return resp.StatusCode, resp.Header.Get("Content-Type"), names
}

func TestStartStreamEmitsFramesAndCompletes(t *testing.T) {
	srv := newTestServer(t, nil, runnerFunc(func(_ context.Context, state *models.State, _ string, emit agent.EmitFunc) error {
		u := events.NewNodeUpdate(events.NodeInputParser, state.SessionID)
		emit(u)
		u = events.NewNodeUpdate(events.NodeReasoning, state.SessionID)
		u.CurrentThought = "评估风险"
		emit(u)
		state.IsComplete = true
		state.AwaitingUser = true
		state.FinalAnswer = "处置流程已完成。"
		state.FinalReport = &models.FinalReport{SessionID: state.SessionID}
		return nil
	}), nil)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	code, contentType, names := sseEvents(t, ts.URL+"/event/start/stream", models.StartEventRequest{
		Message:      "机位217燃油泄漏",
		ScenarioType: "oil_spill",
	})
	require.Equal(t, http.StatusOK, code)
	assert.True(t, strings.HasPrefix(contentType, "text/event-stream"))
	require.NotEmpty(t, names)
	assert.Equal(t, []string{events.EventNodeUpdate, events.EventNodeUpdate, events.EventComplete}, names)
}

func TestStreamEndsWithErrorFrameOnRecursion(t *testing.T) {
	srv := newTestServer(t, nil, runnerFunc(func(_ context.Context, state *models.State, _ string, _ agent.EmitFunc) error {
		state.FinalAnswer = "处置流程中断，请人工介入"
		state.AwaitingUser = true
		return agent.ErrRecursionLimit
	}), nil)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	code, _, names := sseEvents(t, ts.URL+"/event/start/stream", models.StartEventRequest{
		Message:      "机位217燃油泄漏",
		ScenarioType: "oil_spill",
	})
	require.Equal(t, http.StatusOK, code)
	require.NotEmpty(t, names)
	assert.Equal(t, events.EventError, names[len(names)-1])
}

func TestChatStreamSessionErrorIsPlainJSON(t *testing.T) {
	srv := newTestServer(t, nil, nil, nil)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	raw, err := json.Marshal(models.ChatRequest{SessionID: "missing", Message: "继续"})
	require.NoError(t, err)
	resp, err := http.Post(ts.URL+"/event/chat/stream", "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.True(t, strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json"))
}
