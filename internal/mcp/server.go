// Package mcp provides an MCP (Model Context Protocol) server for sleepsync.
package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"time"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/nvandessel/sleepsync/internal/constants"
	"github.com/nvandessel/sleepsync/internal/dose"
	"github.com/nvandessel/sleepsync/internal/ratelimit"
	"github.com/nvandessel/sleepsync/internal/session"
)

// Sessions is the session surface the server drives. *session.Machine
// satisfies it.
type Sessions interface {
	Start(ctx context.Context, minutes int, description string) (session.Snapshot, error)
	Cancel(ctx context.Context) (session.Snapshot, error)
	Tick(ctx context.Context) session.Snapshot
	Suspend(ctx context.Context) error
	Snapshot() session.Snapshot
}

// Analyzer scores a sleep description. *feedback.Analyzer satisfies it.
type Analyzer interface {
	Analyze(ctx context.Context, description string) (float64, error)
}

// FeedbackReader exposes the stored feedback score.
type FeedbackReader interface {
	Get() float64
}

// Config holds server configuration.
type Config struct {
	Name    string // Server name (e.g., "sleepsync")
	Version string // Server version
	DataDir string // Audit log directory; empty disables auditing

	Sessions Sessions
	Engine   session.Calculator
	Analyzer Analyzer
	Feedback FeedbackReader
	Logger   *slog.Logger

	// TickInterval overrides the countdown period. Zero means one second.
	TickInterval time.Duration
}

// Server wraps the MCP SDK server and exposes sleep session tools.
type Server struct {
	server       *sdk.Server
	sessions     Sessions
	engine       session.Calculator
	analyzer     Analyzer
	feedback     FeedbackReader
	logger       *slog.Logger
	auditLogger  *AuditLogger
	toolLimiters ratelimit.ToolLimiters
	tickInterval time.Duration
}

// NewServer creates a new MCP server with sleepsync tools.
func NewServer(cfg *Config) (*Server, error) {
	if cfg.Sessions == nil || cfg.Engine == nil || cfg.Analyzer == nil || cfg.Feedback == nil {
		return nil, fmt.Errorf("mcp server requires sessions, engine, analyzer and feedback")
	}

	mcpServer := sdk.NewServer(&sdk.Implementation{
		Name:    cfg.Name,
		Version: cfg.Version,
	}, nil)

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	tick := cfg.TickInterval
	if tick <= 0 {
		tick = constants.TickInterval
	}

	s := &Server{
		server:       mcpServer,
		sessions:     cfg.Sessions,
		engine:       cfg.Engine,
		analyzer:     cfg.Analyzer,
		feedback:     cfg.Feedback,
		logger:       logger,
		toolLimiters: ratelimit.NewToolLimiters(),
		tickInterval: tick,
	}
	if cfg.DataDir != "" {
		s.auditLogger = NewAuditLogger(cfg.DataDir)
	}

	s.registerTools()
	s.registerResources()

	return s, nil
}

// Run starts the MCP server over stdio transport and drives the session
// countdown while it runs. A running session is suspended on exit.
// This blocks until the client disconnects or the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, shutdownSignals...)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.tickLoop(ctx)
	}()

	err := s.server.Run(ctx, &sdk.StdioTransport{})

	cancel()
	<-done
	if suspendErr := s.sessions.Suspend(context.WithoutCancel(ctx)); suspendErr != nil {
		s.logger.Debug("no session suspended", "reason", suspendErr)
	}
	return err
}

func (s *Server) tickLoop(ctx context.Context) {
	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sessions.Tick(ctx)
		}
	}
}

// Close releases the audit log.
func (s *Server) Close() error {
	return s.auditLogger.Close()
}

func summarize(snap session.Snapshot) SessionSummary {
	out := SessionSummary{
		ID:               snap.ID,
		Status:           snap.Status.String(),
		Remaining:        session.FormatClock(snap.RemainingSeconds),
		Total:            session.FormatClock(snap.TotalSeconds),
		RemainingSeconds: snap.RemainingSeconds,
		TotalSeconds:     snap.TotalSeconds,
		TargetTime:       snap.TargetTime,
		Dispatch:         string(snap.Dispatch),
		DispatchError:    snap.DispatchError,
	}
	if snap.HasDose {
		d := snap.ActiveDose
		out.ActiveDose = &d
	}
	return out
}

// doseResult computes a preview series without touching session state.
func (s *Server) doseResult(ctx context.Context, remainingMin, totalMin float64) (*dose.Result, error) {
	return s.engine.Compute(ctx, remainingMin*constants.SecondsPerMinute, totalMin*constants.SecondsPerMinute)
}
