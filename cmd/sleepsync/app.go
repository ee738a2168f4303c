package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/nvandessel/sleepsync/internal/actuator"
	"github.com/nvandessel/sleepsync/internal/biometrics"
	"github.com/nvandessel/sleepsync/internal/config"
	"github.com/nvandessel/sleepsync/internal/dose"
	"github.com/nvandessel/sleepsync/internal/feedback"
	"github.com/nvandessel/sleepsync/internal/llm"
	"github.com/nvandessel/sleepsync/internal/logging"
	"github.com/nvandessel/sleepsync/internal/session"
	"github.com/nvandessel/sleepsync/internal/store"
	"github.com/nvandessel/sleepsync/internal/ui"
)

// app is the wired object graph shared by subcommands.
type app struct {
	cfg       *config.SleepSyncConfig
	dataDir   string
	logger    *slog.Logger
	decisions *logging.DecisionLogger

	sessions store.SessionStore
	history  store.HistoryStore
	feedLog  store.FeedbackLog
	closer   io.Closer

	feedback *feedback.Store
	client   llm.Client
	analyzer *feedback.Analyzer
	provider biometrics.Provider
	engine   *dose.Engine
	actuator *actuator.Client
	bridge   *ui.Bridge
	notifier session.Notifier
	machine  *session.Machine
}

type appOption func(*app)

// withLogNotifier sends session notifications to the log instead of
// holding them for a countdown.
func withLogNotifier() appOption {
	return func(a *app) { a.notifier = session.LogNotifier(a.logger) }
}

// loadConfig loads and validates configuration.
func loadConfig() (*config.SleepSyncConfig, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// newApp wires configuration, persistence, the dose engine, the actuator
// and the session machine. Callers must Close it.
func newApp(cmd *cobra.Command, opts ...appOption) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	dataDir, err := store.EnsureDataDir()
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:     cfg,
		dataDir: dataDir,
		logger:  logging.NewLoggerWithFormat(cfg.Logging.Level, cfg.Logging.Format, cmd.ErrOrStderr()),
		bridge:  &ui.Bridge{},
	}
	a.decisions = logging.NewDecisionLogger(dataDir, cfg.Logging.Level)
	for _, opt := range opts {
		opt(a)
	}
	if a.notifier == nil {
		a.notifier = a.bridge
	}

	if err := a.openStore(); err != nil {
		a.Close()
		return nil, err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a.feedback = feedback.NewStore()
	a.restoreFeedback(ctx)

	a.client = a.newLLMClient()
	var recorder feedback.Recorder
	if a.feedLog != nil {
		recorder = a.feedLog
	}
	a.analyzer = feedback.NewAnalyzer(a.client, a.feedback, recorder, cfg.Feedback.Provider, a.logger)

	a.provider, err = a.newProvider()
	if err != nil {
		a.Close()
		return nil, err
	}
	a.engine = dose.NewEngine(a.provider, a.feedback,
		dose.WithBaseDose(cfg.Dose.BaseDose),
		dose.WithLogger(a.logger),
		dose.WithDecisionLogger(a.decisions),
	)
	a.actuator = actuator.NewClient(cfg.Actuator, a.logger)

	machineOpts := []session.Option{
		session.WithNotifier(a.notifier),
		session.WithLogger(a.logger),
		session.WithDecisionLogger(a.decisions),
	}
	if a.history != nil {
		machineOpts = append(machineOpts, session.WithHistory(a.history))
	}
	a.machine = session.NewMachine(a.engine, a.actuator, a.sessions, machineOpts...)

	return a, nil
}

// openStore opens SQLite, or the JSON file store when configured or when
// SQLite cannot be opened. The file store keeps sessions only.
func (a *app) openStore() error {
	if a.cfg.Session.Storage != "file" {
		s, err := store.NewSQLiteStore(a.dataDir)
		if err == nil {
			a.sessions, a.history, a.feedLog, a.closer = s, s, s, s
			return nil
		}
		a.logger.Warn("sqlite store unavailable, falling back to file store", "error", err)
	}
	a.sessions = store.NewFileStore(a.dataDir)
	return nil
}

// restoreFeedback seeds the in-memory score with the last recorded analysis.
func (a *app) restoreFeedback(ctx context.Context) {
	if a.feedLog == nil {
		return
	}
	ev, err := a.feedLog.LatestFeedback(ctx)
	if err != nil {
		a.logger.Warn("failed to restore feedback score", "error", err)
		return
	}
	if ev != nil {
		a.feedback.Set(ev.Score)
		a.logger.Debug("restored feedback score", "score", ev.Score, "provider", ev.Provider)
	}
}

// newLLMClient builds the configured analyzer backend, falling back to the
// rule-based client when that backend cannot be used.
func (a *app) newLLMClient() llm.Client {
	fc := a.cfg.Feedback
	client, err := llm.NewClient(fc.ClientConfig(), fc.LocalConfig())
	if err != nil {
		a.logger.Warn("invalid feedback provider, using rule-based analysis", "error", err)
		return llm.NewFallbackClient()
	}
	if !client.Available() {
		a.logger.Warn("feedback provider unavailable, using rule-based analysis", "provider", fc.Provider)
		if c, ok := client.(llm.Closer); ok {
			c.Close()
		}
		return llm.NewFallbackClient()
	}
	return client
}

func (a *app) newProvider() (biometrics.Provider, error) {
	var fallback biometrics.Provider = biometrics.NewStaticProvider()
	if path := a.cfg.Biometrics.DatasetPath; path != "" {
		p, err := biometrics.NewStaticProviderFromFile(path)
		if err != nil {
			return nil, fmt.Errorf("loading biometric dataset: %w", err)
		}
		fallback = p
	}
	live := biometrics.NewHTTPProvider(a.cfg.Biometrics.HTTPConfig())
	return biometrics.NewFallbackProvider(live, fallback, a.logger), nil
}

// Close releases the store, the analyzer backend and the decision log.
func (a *app) Close() {
	if a.machine != nil {
		a.machine.Wait()
	}
	if c, ok := a.client.(llm.Closer); ok {
		c.Close()
	}
	if a.closer != nil {
		if err := a.closer.Close(); err != nil {
			a.logger.Warn("failed to close store", "error", err)
		}
	}
	a.decisions.Close()
}

// signalContext returns a context cancelled on SIGINT/SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, shutdownSignals...)
}
