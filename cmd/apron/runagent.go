package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/gin-contrib/sse"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/airside-ops/apron/pkg/config"
	"github.com/airside-ops/apron/pkg/events"
	"github.com/airside-ops/apron/pkg/models"
	"github.com/airside-ops/apron/pkg/version"
)

var (
	agentScenario   string
	agentShowEvents bool
)

var runAgentCmd = &cobra.Command{
	Use:   "run-agent",
	Short: "Run the engine as an interactive terminal agent",
	Long: `Opens a terminal conversation with the response engine over an
in-memory session. Every line runs the same turn pipeline the server
runs: extraction, enrichment, reasoning, tools, compliance validation.
When the procedure completes, the disposal report prints and the agent
exits.`,
	RunE: runAgent,
}

func init() {
	runAgentCmd.Flags().StringVar(&agentScenario, "scenario", "", "scenario id to pin (default: keyword identification)")
	runAgentCmd.Flags().BoolVar(&agentShowEvents, "show-events", false, "print node_update frames in SSE wire format")
}

func runAgent(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	logger := slog.Default()

	cfg, err := config.Initialize(ctx)
	if err != nil {
		return fmt.Errorf("initialize configuration: %w", err)
	}
	// The terminal agent is self-contained; sessions never outlive it.
	cfg.Session.Backend = config.SessionBackendMemory

	rt, err := buildRuntime(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer rt.Close()

	if agentScenario != "" {
		if _, err := rt.scenarios.Get(agentScenario); err != nil {
			return fmt.Errorf("unknown scenario %q (have %s)", agentScenario, strings.Join(rt.scenarios.IDs(), ", "))
		}
	}

	return interact(ctx, rt, os.Stdin, os.Stdout)
}

// interact drives the line-oriented conversation loop until the
// procedure completes, the operator quits, or stdin closes.
func interact(ctx context.Context, rt *runtime, in io.Reader, out io.Writer) error {
	sessionID := uuid.New().String()
	fmt.Fprintf(out, "apron %s interactive agent, session %s\n", version.GitCommit, sessionID)
	fmt.Fprintln(out, `报告机坪事件即可开始，"exit" 退出。`)

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 64*1024)
	started := false
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			break
		}

		var (
			stream *events.Stream
			err    error
		)
		if started {
			stream, err = rt.service.ChatStream(ctx, &models.ChatRequest{
				SessionID: sessionID,
				Message:   line,
			})
		} else {
			stream, err = rt.service.StartStream(ctx, &models.StartEventRequest{
				Message:      line,
				ScenarioType: agentScenario,
				SessionID:    sessionID,
			})
		}
		if err != nil {
			fmt.Fprintf(out, "! %v\n", err)
			continue
		}
		started = true

		if done := renderTurn(out, stream); done {
			if md, mdErr := rt.service.ReportMarkdown(ctx, sessionID); mdErr == nil {
				fmt.Fprintln(out)
				fmt.Fprintln(out, md)
			}
			return nil
		}
	}
	return scanner.Err()
}

// renderTurn prints a turn's frames and reports whether the procedure
// completed.
func renderTurn(out io.Writer, stream *events.Stream) bool {
	done := false
	for frame := range stream.Frames() {
		switch frame.Event {
		case events.EventNodeUpdate:
			if agentShowEvents {
				_ = sse.Encode(out, sse.Event{Event: frame.Event, Data: frame.Data})
			}
		case events.EventComplete:
			if resp, ok := frame.Data.(*models.EventResponse); ok {
				fmt.Fprintln(out, resp.Message)
				done = resp.Status == models.StatusCompleted
			}
		case events.EventError:
			if ef, ok := frame.Data.(*events.ErrorFrame); ok {
				fmt.Fprintf(out, "! %s\n", ef.Error)
				if ef.FinalAnswer != "" {
					fmt.Fprintln(out, ef.FinalAnswer)
				}
			}
		}
	}
	return done
}
