// Package session runs the sleep countdown: it starts a session with a
// freshly computed dose, dispatches that dose once, ticks the countdown,
// and persists enough state to survive the process being suspended.
//
// All public methods are safe for concurrent use.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nvandessel/sleepsync/internal/actuator"
	"github.com/nvandessel/sleepsync/internal/constants"
	"github.com/nvandessel/sleepsync/internal/dose"
	"github.com/nvandessel/sleepsync/internal/logging"
	"github.com/nvandessel/sleepsync/internal/store"
)

var (
	// ErrInvalidInput is returned when the requested duration is not positive.
	ErrInvalidInput = errors.New("session duration must be a positive number of minutes")

	// ErrSessionAlreadyActive is returned when a session is running or starting.
	ErrSessionAlreadyActive = errors.New("a sleep session is already active")

	// ErrNotRunning is returned by operations that need a running session.
	ErrNotRunning = errors.New("no sleep session is running")
)

// Calculator computes the dose series for a session. *dose.Engine satisfies it.
type Calculator interface {
	Compute(ctx context.Context, remaining, total float64) (*dose.Result, error)
}

// Machine owns the single session slot.
type Machine struct {
	calc      Calculator
	sender    actuator.Sender
	sessions  store.SessionStore
	history   store.HistoryStore
	notifier  Notifier
	logger    *slog.Logger
	decisions *logging.DecisionLogger
	nowFunc   func() time.Time
	newID     func() string

	mu       sync.Mutex
	state    state
	starting bool

	wg sync.WaitGroup
}

// state is the mutable session slot, guarded by Machine.mu.
type state struct {
	id          string
	status      constants.SessionStatus
	total       int64
	remaining   int64
	elapsed     int64
	startedAt   time.Time
	targetTime  time.Time
	series      dose.Series
	activeDose  float64
	hasDose     bool
	dispatch    DispatchState
	dispatchErr error
	description string
}

// Option configures a Machine.
type Option func(*Machine)

// WithHistory records every computed series and its dispatch outcome.
func WithHistory(h store.HistoryStore) Option {
	return func(m *Machine) { m.history = h }
}

// WithNotifier sets the receiver of user-facing messages.
func WithNotifier(n Notifier) Option {
	return func(m *Machine) { m.notifier = n }
}

// WithLogger sets the operational logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Machine) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithDecisionLogger enables decision tracing.
func WithDecisionLogger(dl *logging.DecisionLogger) Option {
	return func(m *Machine) { m.decisions = dl }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Machine) { m.nowFunc = now }
}

// NewMachine creates an idle Machine. sessions may be nil, in which case
// nothing is persisted.
func NewMachine(calc Calculator, sender actuator.Sender, sessions store.SessionStore, opts ...Option) *Machine {
	m := &Machine{
		calc:     calc,
		sender:   sender,
		sessions: sessions,
		notifier: NopNotifier{},
		logger:   slog.Default(),
		nowFunc:  time.Now,
		newID:    uuid.NewString,
		state:    state{status: constants.StatusIdle},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start begins a session of the given length. The dose series is computed
// from the full history with remaining = total, the most recent sample
// becomes the active dose, and that dose is dispatched once in the
// background. Start may be called from Idle, Completed or Cancelled.
func (m *Machine) Start(ctx context.Context, minutes int, description string) (Snapshot, error) {
	if minutes <= 0 {
		return Snapshot{}, fmt.Errorf("%w: got %d", ErrInvalidInput, minutes)
	}

	m.mu.Lock()
	if m.state.status == constants.StatusRunning || m.starting {
		m.mu.Unlock()
		return Snapshot{}, ErrSessionAlreadyActive
	}
	m.starting = true
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.starting = false
		m.mu.Unlock()
	}()

	total := int64(minutes) * constants.SecondsPerMinute
	res, err := m.calc.Compute(ctx, float64(total), float64(total))
	if err != nil {
		return Snapshot{}, fmt.Errorf("computing dose: %w", err)
	}
	active, ok := res.Series.Active()
	if !ok {
		return Snapshot{}, fmt.Errorf("computing dose: empty dose series")
	}

	now := m.nowFunc()
	id := m.newID()

	runID := m.recordRun(ctx, id, res, active.Dose, total, now)

	m.mu.Lock()
	m.state = state{
		id:          id,
		status:      constants.StatusRunning,
		total:       total,
		remaining:   total,
		startedAt:   now,
		targetTime:  now.Add(time.Duration(minutes) * time.Minute),
		series:      res.Series,
		activeDose:  active.Dose,
		hasDose:     true,
		dispatch:    DispatchPending,
		description: description,
	}
	snap := m.snapshotLocked()
	rec := m.recordLocked(now)
	m.mu.Unlock()

	m.logger.Info("sleep session started", "session", id, "minutes", minutes, "active_dose", active.Dose)
	m.decisions.Log(logging.EventActiveDose, map[string]any{
		"session":    id,
		"dose":       active.Dose,
		"hour_label": active.HourLabel,
		"samples":    len(res.Series),
	})
	m.persist(ctx, rec)

	m.wg.Add(1)
	go m.dispatch(context.WithoutCancel(ctx), id, active.Dose, runID)

	return snap, nil
}

// dispatch sends the dose and applies the outcome unless the session it
// belongs to has since been cancelled or replaced.
func (m *Machine) dispatch(ctx context.Context, id string, value float64, runID int64) {
	defer m.wg.Done()

	err := m.sender.Dispatch(ctx, value)

	if m.history != nil && runID > 0 {
		if herr := m.history.MarkDispatch(ctx, runID, err); herr != nil {
			m.logger.Warn("failed to record dispatch outcome", "run", runID, "error", herr)
		}
	}
	m.decisions.Log(logging.EventDispatch, map[string]any{
		"session": id,
		"dose":    value,
		"ok":      err == nil,
		"error":   errString(err),
	})

	m.mu.Lock()
	if m.state.id != id || m.state.status != constants.StatusRunning {
		m.mu.Unlock()
		m.logger.Info("discarding dispatch result for inactive session", "session", id, "error", err)
		return
	}
	n := Notification{SessionID: id, Dose: value, Err: err}
	if err != nil {
		m.state.dispatch = DispatchFailed
		m.state.dispatchErr = err
		n.Kind = EventDispatchFailed
		n.Message = actuator.FailureMessage(err)
	} else {
		m.state.dispatch = DispatchSent
		n.Kind = EventDispatched
		n.Message = actuator.SuccessMessage(value)
	}
	m.mu.Unlock()

	m.notifier.Notify(n)
}

// Tick advances a running session by one second. At zero the session
// completes. Ticks on a session that is not running do nothing.
func (m *Machine) Tick(ctx context.Context) Snapshot {
	m.mu.Lock()
	if m.state.status != constants.StatusRunning {
		snap := m.snapshotLocked()
		m.mu.Unlock()
		return snap
	}
	m.state.remaining--
	m.state.elapsed = min(m.state.elapsed+1, m.state.total)
	if m.state.remaining > 0 {
		snap := m.snapshotLocked()
		m.mu.Unlock()
		return snap
	}
	return m.completeAndUnlock(ctx)
}

// completeAndUnlock moves a running session to Completed. Caller holds m.mu.
func (m *Machine) completeAndUnlock(ctx context.Context) Snapshot {
	m.state.remaining = 0
	m.state.status = constants.StatusCompleted
	id := m.state.id
	snap := m.snapshotLocked()
	m.mu.Unlock()

	m.logger.Info("sleep session completed", "session", id)
	m.decisions.Log(logging.EventSessionState, map[string]any{"session": id, "status": string(constants.StatusCompleted)})
	m.forget(ctx)
	m.notifier.Notify(Notification{Kind: EventCompleted, SessionID: id, Message: "Sleep session complete."})
	return snap
}

// Cancel stops a running session, drops its dose series and its persisted
// record. A dispatch still in flight has its result discarded.
func (m *Machine) Cancel(ctx context.Context) (Snapshot, error) {
	m.mu.Lock()
	if m.state.status != constants.StatusRunning {
		m.mu.Unlock()
		return Snapshot{}, ErrNotRunning
	}
	m.state.status = constants.StatusCancelled
	m.state.series = nil
	id := m.state.id
	snap := m.snapshotLocked()
	m.mu.Unlock()

	m.logger.Info("sleep session cancelled", "session", id)
	m.decisions.Log(logging.EventSessionState, map[string]any{"session": id, "status": string(constants.StatusCancelled)})
	m.forget(ctx)
	m.notifier.Notify(Notification{Kind: EventCancelled, SessionID: id, Message: "Sleep session cancelled."})
	return snap, nil
}

// Clear returns a finished session to Idle. Clearing a running session is
// refused; clearing an idle machine does nothing.
func (m *Machine) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state.status == constants.StatusRunning {
		return ErrSessionAlreadyActive
	}
	m.state = state{status: constants.StatusIdle}
	return nil
}

// Suspend persists a running session so Resume can pick it up later,
// possibly in another process. It is a no-op when nothing is running.
func (m *Machine) Suspend(ctx context.Context) error {
	m.mu.Lock()
	if m.state.status != constants.StatusRunning {
		m.mu.Unlock()
		return nil
	}
	rec := m.recordLocked(m.nowFunc())
	m.mu.Unlock()

	if m.sessions == nil {
		return nil
	}
	if err := m.sessions.SaveSession(ctx, constants.SessionRecordKey, rec); err != nil {
		m.logger.Warn("failed to persist session", "session", rec.ID, "error", err)
		return fmt.Errorf("persisting session: %w", err)
	}
	m.logger.Debug("session suspended", "session", rec.ID, "remaining", rec.RemainingSeconds)
	return nil
}

// Resume restores a persisted session, charging it for the wall-clock time
// that passed while suspended. A session whose time ran out completes
// immediately. With nothing persisted the machine stays as it is.
func (m *Machine) Resume(ctx context.Context) (Snapshot, error) {
	m.mu.Lock()
	if m.state.status == constants.StatusRunning {
		snap := m.snapshotLocked()
		m.mu.Unlock()
		return snap, nil
	}
	m.mu.Unlock()

	if m.sessions == nil {
		return m.Snapshot(), nil
	}
	rec, err := m.sessions.LoadSession(ctx, constants.SessionRecordKey)
	if err != nil {
		m.logger.Warn("failed to load persisted session", "error", err)
		return m.Snapshot(), nil
	}
	if rec == nil {
		return m.Snapshot(), nil
	}

	now := m.nowFunc()
	projected := Project(*rec, now)

	m.mu.Lock()
	if m.state.status == constants.StatusRunning || m.starting {
		m.mu.Unlock()
		return Snapshot{}, ErrSessionAlreadyActive
	}
	id := rec.ID
	if id == "" {
		id = m.newID()
	}
	startedAt := time.UnixMilli(rec.StartEpochMillis).Add(-time.Duration(rec.ElapsedSeconds) * time.Second)
	m.state = state{
		id:          id,
		status:      constants.StatusRunning,
		total:       rec.TotalSeconds,
		remaining:   projected.RemainingSeconds,
		elapsed:     projected.ElapsedSeconds,
		startedAt:   startedAt,
		targetTime:  now.Add(time.Duration(max(projected.RemainingSeconds, 0)) * time.Second),
		activeDose:  rec.ActiveDose,
		hasDose:     rec.HasDose,
		description: rec.Description,
	}
	m.logger.Info("sleep session resumed", "session", id,
		"stored_remaining", rec.RemainingSeconds, "remaining", projected.RemainingSeconds)

	if projected.RemainingSeconds <= 0 {
		return m.completeAndUnlock(ctx), nil
	}
	snap := m.snapshotLocked()
	m.mu.Unlock()
	return snap, nil
}

// Snapshot returns the current session state.
func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

// Wait blocks until every in-flight dispatch has finished.
func (m *Machine) Wait() {
	m.wg.Wait()
}

func (m *Machine) snapshotLocked() Snapshot {
	s := m.state
	return Snapshot{
		ID:               s.id,
		Status:           s.status,
		TotalSeconds:     s.total,
		RemainingSeconds: s.remaining,
		ElapsedSeconds:   s.elapsed,
		StartedAt:        s.startedAt,
		TargetTime:       s.targetTime,
		ActiveDose:       s.activeDose,
		HasDose:          s.hasDose,
		Series:           s.series,
		Dispatch:         s.dispatch,
		DispatchError:    errString(s.dispatchErr),
		Description:      s.description,
	}
}

// recordLocked builds the persisted form with now as the reference time.
func (m *Machine) recordLocked(now time.Time) store.SessionRecord {
	return store.SessionRecord{
		ID:               m.state.id,
		RemainingSeconds: m.state.remaining,
		TotalSeconds:     m.state.total,
		ElapsedSeconds:   m.state.elapsed,
		StartEpochMillis: now.UnixMilli(),
		ActiveDose:       m.state.activeDose,
		HasDose:          m.state.hasDose,
		Description:      m.state.description,
	}
}

func (m *Machine) persist(ctx context.Context, rec store.SessionRecord) {
	if m.sessions == nil {
		return
	}
	if err := m.sessions.SaveSession(ctx, constants.SessionRecordKey, rec); err != nil {
		m.logger.Warn("failed to persist session", "session", rec.ID, "error", err)
	}
}

func (m *Machine) forget(ctx context.Context) {
	if m.sessions == nil {
		return
	}
	if err := m.sessions.DeleteSession(ctx, constants.SessionRecordKey); err != nil {
		m.logger.Warn("failed to delete persisted session", "error", err)
	}
}

func (m *Machine) recordRun(ctx context.Context, id string, res *dose.Result, active float64, total int64, now time.Time) int64 {
	if m.history == nil {
		return 0
	}
	runID, err := m.history.RecordDoseRun(ctx, store.DoseRun{
		SessionID:        id,
		CreatedAt:        now,
		RemainingSeconds: float64(total),
		TotalSeconds:     float64(total),
		BaseDose:         res.Base,
		Feedback:         res.Feedback,
		Source:           res.Source,
		ActiveDose:       active,
		Samples:          res.Series,
	})
	if err != nil {
		m.logger.Warn("failed to record dose run", "session", id, "error", err)
		return 0
	}
	return runID
}

// Project returns rec as it stands at now: remaining time is reduced by the
// whole seconds elapsed since rec was written, and elapsed grows by the same
// amount up to the total. A clock that moved backwards charges nothing.
func Project(rec store.SessionRecord, now time.Time) store.SessionRecord {
	gap := max(now.UnixMilli()-rec.StartEpochMillis, 0) / 1000
	rec.RemainingSeconds -= gap
	rec.ElapsedSeconds = min(rec.ElapsedSeconds+gap, rec.TotalSeconds)
	return rec
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
