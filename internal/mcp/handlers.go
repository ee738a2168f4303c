package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/nvandessel/sleepsync/internal/constants"
	"github.com/nvandessel/sleepsync/internal/ratelimit"
	"github.com/nvandessel/sleepsync/internal/session"
)

const statusResourceURI = "sleepsync://session/status"

// registerTools registers all sleepsync MCP tools with the server.
func (s *Server) registerTools() {
	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "sleep_start",
		Description: "Start a sleep session: score the optional sleep description, compute the dose from biometric history and send it to the actuator",
	}, s.handleSleepStart)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "sleep_status",
		Description: "Report the current sleep session: status, remaining/total time, active dose and dispatch outcome",
	}, s.handleSleepStatus)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "sleep_cancel",
		Description: "Cancel the running sleep session",
	}, s.handleSleepCancel)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "sleep_feedback",
		Description: "Score a description of last night's sleep and store it as feedback for the next dose",
	}, s.handleSleepFeedback)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "dose_series",
		Description: "Preview the dose series for each historical hour without starting a session",
	}, s.handleDoseSeries)
}

// registerResources registers MCP resources for auto-loading into context.
func (s *Server) registerResources() {
	s.server.AddResource(&sdk.Resource{
		URI:         statusResourceURI,
		Name:        "sleepsync-session-status",
		Description: "Current sleep session status and active dose.",
		MIMEType:    "text/markdown",
	}, s.handleStatusResource)
}

func (s *Server) handleStatusResource(ctx context.Context, req *sdk.ReadResourceRequest) (*sdk.ReadResourceResult, error) {
	return &sdk.ReadResourceResult{
		Contents: []*sdk.ResourceContents{
			{
				URI:      statusResourceURI,
				MIMEType: "text/markdown",
				Text:     formatStatusMarkdown(s.sessions.Snapshot()),
			},
		},
	}, nil
}

func formatStatusMarkdown(snap session.Snapshot) string {
	var sb strings.Builder
	sb.WriteString("# Sleep Session\n\n")
	if snap.Status == constants.StatusIdle {
		sb.WriteString("No session. Start one with `sleep_start`.\n")
		return sb.String()
	}
	fmt.Fprintf(&sb, "- Status: %s\n", snap.Status)
	fmt.Fprintf(&sb, "- Remaining: %s\n", snap.Ratio())
	if snap.HasDose {
		fmt.Fprintf(&sb, "- Active dose: %.2f mg/hour\n", snap.ActiveDose)
	}
	if snap.Dispatch != session.DispatchNone {
		fmt.Fprintf(&sb, "- Dispatch: %s\n", snap.Dispatch)
	}
	if snap.DispatchError != "" {
		fmt.Fprintf(&sb, "- Dispatch error: %s\n", snap.DispatchError)
	}
	return sb.String()
}

// handleSleepStart implements the sleep_start tool.
func (s *Server) handleSleepStart(ctx context.Context, req *sdk.CallToolRequest, args SleepStartInput) (_ *sdk.CallToolResult, _ SleepStartOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("sleep_start", start, retErr, sanitizeToolParams(map[string]any{
			"minutes": args.Minutes, "description": args.Description,
		}))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "sleep_start"); err != nil {
		return nil, SleepStartOutput{}, err
	}
	if args.Minutes <= 0 {
		return nil, SleepStartOutput{}, fmt.Errorf("'minutes' must be a positive integer, got %d", args.Minutes)
	}

	var out SleepStartOutput
	if desc := strings.TrimSpace(args.Description); desc != "" {
		score, err := s.analyzer.Analyze(ctx, desc)
		if err != nil {
			// A failed analysis never blocks the session.
			out.FeedbackError = err.Error()
		} else {
			out.FeedbackScore = &score
		}
	}

	snap, err := s.sessions.Start(ctx, args.Minutes, args.Description)
	if err != nil {
		if errors.Is(err, session.ErrSessionAlreadyActive) {
			return nil, SleepStartOutput{}, fmt.Errorf("a sleep session is already running; cancel it first")
		}
		return nil, SleepStartOutput{}, fmt.Errorf("failed to start session: %w", err)
	}

	out.Session = summarize(snap)
	out.Message = fmt.Sprintf("Session started for %d minutes. Sending %.2f mg/hour to actuator.", args.Minutes, snap.ActiveDose)
	return nil, out, nil
}

// handleSleepStatus implements the sleep_status tool.
func (s *Server) handleSleepStatus(ctx context.Context, req *sdk.CallToolRequest, args SleepStatusInput) (_ *sdk.CallToolResult, _ SleepStatusOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("sleep_status", start, retErr, nil)
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "sleep_status"); err != nil {
		return nil, SleepStatusOutput{}, err
	}

	snap := s.sessions.Snapshot()
	msg := fmt.Sprintf("%s (R/T %s)", snap.Status, snap.Ratio())
	if snap.HasDose {
		msg += fmt.Sprintf(", dose %.2f mg/hour", snap.ActiveDose)
	}
	return nil, SleepStatusOutput{Session: summarize(snap), Message: msg}, nil
}

// handleSleepCancel implements the sleep_cancel tool.
func (s *Server) handleSleepCancel(ctx context.Context, req *sdk.CallToolRequest, args SleepCancelInput) (_ *sdk.CallToolResult, _ SleepCancelOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("sleep_cancel", start, retErr, nil)
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "sleep_cancel"); err != nil {
		return nil, SleepCancelOutput{}, err
	}

	snap, err := s.sessions.Cancel(ctx)
	if err != nil {
		if errors.Is(err, session.ErrNotRunning) {
			return nil, SleepCancelOutput{}, fmt.Errorf("no sleep session is running")
		}
		return nil, SleepCancelOutput{}, fmt.Errorf("failed to cancel session: %w", err)
	}
	return nil, SleepCancelOutput{Session: summarize(snap), Message: "Sleep session cancelled."}, nil
}

// handleSleepFeedback implements the sleep_feedback tool.
func (s *Server) handleSleepFeedback(ctx context.Context, req *sdk.CallToolRequest, args SleepFeedbackInput) (_ *sdk.CallToolResult, _ SleepFeedbackOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("sleep_feedback", start, retErr, sanitizeToolParams(map[string]any{
			"description": args.Description,
		}))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "sleep_feedback"); err != nil {
		return nil, SleepFeedbackOutput{}, err
	}
	if strings.TrimSpace(args.Description) == "" {
		return nil, SleepFeedbackOutput{}, fmt.Errorf("'description' parameter is required")
	}

	score, err := s.analyzer.Analyze(ctx, args.Description)
	if err != nil {
		return nil, SleepFeedbackOutput{}, err
	}
	return nil, SleepFeedbackOutput{
		Score:   score,
		Stored:  s.feedback.Get(),
		Message: fmt.Sprintf("Feedback recorded: score %.2f", score),
	}, nil
}

// handleDoseSeries implements the dose_series tool.
func (s *Server) handleDoseSeries(ctx context.Context, req *sdk.CallToolRequest, args DoseSeriesInput) (_ *sdk.CallToolResult, _ DoseSeriesOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("dose_series", start, retErr, sanitizeToolParams(map[string]any{
			"remaining_minutes": args.RemainingMinutes, "total_minutes": args.TotalMinutes,
		}))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "dose_series"); err != nil {
		return nil, DoseSeriesOutput{}, err
	}

	remaining, total := args.RemainingMinutes, args.TotalMinutes
	if total == 0 {
		total = 60
	}
	if remaining == 0 {
		remaining = total
	}

	res, err := s.doseResult(ctx, remaining, total)
	if err != nil {
		return nil, DoseSeriesOutput{}, fmt.Errorf("failed to compute dose series: %w", err)
	}

	out := DoseSeriesOutput{
		Samples:  toDoseSamples(res.Series),
		BaseDose: res.Base,
		Feedback: res.Feedback,
		Source:   res.Source,
	}
	if active, ok := res.Series.Active(); ok {
		out.ActiveDose = active.Dose
	}
	return nil, out, nil
}
