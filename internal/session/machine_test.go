package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nvandessel/sleepsync/internal/actuator"
	"github.com/nvandessel/sleepsync/internal/constants"
	"github.com/nvandessel/sleepsync/internal/dose"
	"github.com/nvandessel/sleepsync/internal/store"
)

type fakeCalc struct {
	mu        sync.Mutex
	series    dose.Series
	err       error
	remaining []float64
	total     []float64
}

func (c *fakeCalc) Compute(_ context.Context, remaining, total float64) (*dose.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.remaining = append(c.remaining, remaining)
	c.total = append(c.total, total)
	if c.err != nil {
		return nil, c.err
	}
	return &dose.Result{Series: c.series, Base: 1, Source: "fake"}, nil
}

type fakeSender struct {
	mu      sync.Mutex
	doses   []float64
	err     error
	release chan struct{}
	entered chan struct{}
}

func (s *fakeSender) Dispatch(_ context.Context, value float64) error {
	if s.entered != nil {
		close(s.entered)
	}
	if s.release != nil {
		<-s.release
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doses = append(s.doses, value)
	return s.err
}

func (s *fakeSender) calls() []float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]float64(nil), s.doses...)
}

type recordingNotifier struct {
	mu    sync.Mutex
	items []Notification
}

func (r *recordingNotifier) Notify(n Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, n)
}

func (r *recordingNotifier) kinds() []EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EventKind, len(r.items))
	for i, n := range r.items {
		out[i] = n.Kind
	}
	return out
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

var testSeries = dose.Series{
	{HourLabel: 2, Dose: 0.8},
	{HourLabel: 1, Dose: 0.9},
	{HourLabel: 0, Dose: 1.1},
}

type fixture struct {
	m        *Machine
	calc     *fakeCalc
	sender   *fakeSender
	store    *store.MemoryStore
	notifier *recordingNotifier
	clock    *clock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		calc:     &fakeCalc{series: testSeries},
		sender:   &fakeSender{},
		store:    store.NewMemoryStore(),
		notifier: &recordingNotifier{},
		clock:    &clock{now: time.Date(2025, 3, 1, 22, 0, 0, 0, time.UTC)},
	}
	f.m = f.newMachine()
	return f
}

func (f *fixture) newMachine() *Machine {
	return NewMachine(f.calc, f.sender, f.store,
		WithHistory(f.store),
		WithNotifier(f.notifier),
		WithClock(f.clock.Now),
	)
}

func TestMachine_Start(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	snap, err := f.m.Start(ctx, 30, "restless")
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	f.m.Wait()

	if snap.Status != constants.StatusRunning {
		t.Errorf("Status = %v, want running", snap.Status)
	}
	if snap.TotalSeconds != 1800 || snap.RemainingSeconds != 1800 {
		t.Errorf("total/remaining = %d/%d, want 1800/1800", snap.TotalSeconds, snap.RemainingSeconds)
	}
	if !snap.TargetTime.Equal(f.clock.Now().Add(30 * time.Minute)) {
		t.Errorf("TargetTime = %v", snap.TargetTime)
	}
	if f.calc.remaining[0] != 1800 || f.calc.total[0] != 1800 {
		t.Errorf("Compute(remaining=%v, total=%v), want 1800/1800", f.calc.remaining[0], f.calc.total[0])
	}
	if snap.ActiveDose != 1.1 {
		t.Errorf("ActiveDose = %v, want the most recent sample 1.1", snap.ActiveDose)
	}
	if got := f.sender.calls(); len(got) != 1 || got[0] != 1.1 {
		t.Errorf("dispatched %v, want exactly [1.1]", got)
	}
	if got := f.m.Snapshot().Dispatch; got != DispatchSent {
		t.Errorf("Dispatch = %q, want sent", got)
	}
	if kinds := f.notifier.kinds(); len(kinds) != 1 || kinds[0] != EventDispatched {
		t.Errorf("notifications = %v, want [dispatched]", kinds)
	}
	if f.notifier.items[0].Message != "Sent 1.10 mg/hour to actuator" {
		t.Errorf("message = %q", f.notifier.items[0].Message)
	}

	runs, _ := f.store.ListDoseRuns(ctx, 10)
	if len(runs) != 1 || !runs[0].Dispatched || runs[0].SessionID != snap.ID {
		t.Errorf("history = %+v, want one dispatched run for %s", runs, snap.ID)
	}
	rec, _ := f.store.LoadSession(ctx, constants.SessionRecordKey)
	if rec == nil || rec.ID != snap.ID || rec.RemainingSeconds != 1800 {
		t.Errorf("persisted record = %+v", rec)
	}
}

func TestMachine_Start_InvalidInput(t *testing.T) {
	f := newFixture(t)
	for _, minutes := range []int{0, -5} {
		if _, err := f.m.Start(context.Background(), minutes, ""); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("Start(%d) error = %v, want ErrInvalidInput", minutes, err)
		}
	}
	if got := f.m.Snapshot().Status; got != constants.StatusIdle {
		t.Errorf("Status = %v, want idle", got)
	}
	if len(f.calc.total) != 0 {
		t.Error("invalid input should not compute a dose")
	}
}

func TestMachine_Start_AlreadyActive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.m.Start(ctx, 10, ""); err != nil {
		t.Fatal(err)
	}
	f.m.Wait()
	f.m.Tick(ctx)
	before := f.m.Snapshot()

	if _, err := f.m.Start(ctx, 20, ""); !errors.Is(err, ErrSessionAlreadyActive) {
		t.Fatalf("second Start() error = %v, want ErrSessionAlreadyActive", err)
	}
	after := f.m.Snapshot()
	if after.RemainingSeconds != before.RemainingSeconds || after.ID != before.ID {
		t.Errorf("second Start() changed the session: %+v -> %+v", before, after)
	}
	if len(f.sender.calls()) != 1 {
		t.Errorf("dispatch count = %d, want 1", len(f.sender.calls()))
	}
}

func TestMachine_Start_ComputeError(t *testing.T) {
	f := newFixture(t)
	f.calc.err = errors.New("insufficient biometric data")

	if _, err := f.m.Start(context.Background(), 10, ""); err == nil {
		t.Fatal("Start() should fail when the dose cannot be computed")
	}
	if got := f.m.Snapshot().Status; got != constants.StatusIdle {
		t.Errorf("Status = %v, want idle", got)
	}
	if len(f.sender.calls()) != 0 {
		t.Error("nothing should be dispatched")
	}
}

func TestMachine_Tick_CompletesAtZero(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.m.Start(ctx, 1, ""); err != nil {
		t.Fatal(err)
	}
	f.m.Wait()

	var snap Snapshot
	for i := 0; i < 59; i++ {
		snap = f.m.Tick(ctx)
		if snap.Status != constants.StatusRunning {
			t.Fatalf("tick %d: Status = %v, want running", i, snap.Status)
		}
	}
	if snap.RemainingSeconds != 1 || snap.ElapsedSeconds != 59 {
		t.Errorf("remaining/elapsed = %d/%d, want 1/59", snap.RemainingSeconds, snap.ElapsedSeconds)
	}

	snap = f.m.Tick(ctx)
	if snap.Status != constants.StatusCompleted || snap.RemainingSeconds != 0 {
		t.Errorf("final tick = %+v, want completed at 0", snap)
	}
	if rec, _ := f.store.LoadSession(ctx, constants.SessionRecordKey); rec != nil {
		t.Error("completed session should delete its record")
	}
	kinds := f.notifier.kinds()
	if kinds[len(kinds)-1] != EventCompleted {
		t.Errorf("notifications = %v, want completed last", kinds)
	}

	// Further ticks do nothing.
	if again := f.m.Tick(ctx); again.Status != constants.StatusCompleted || again.RemainingSeconds != 0 {
		t.Errorf("tick after completion = %+v", again)
	}
	if len(f.calc.total) != 1 {
		t.Error("ticking should never recompute the dose")
	}
}

func TestMachine_Cancel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.m.Cancel(ctx); !errors.Is(err, ErrNotRunning) {
		t.Errorf("Cancel(idle) error = %v, want ErrNotRunning", err)
	}

	if _, err := f.m.Start(ctx, 5, ""); err != nil {
		t.Fatal(err)
	}
	f.m.Wait()

	snap, err := f.m.Cancel(ctx)
	if err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
	if snap.Status != constants.StatusCancelled || snap.Series != nil {
		t.Errorf("Cancel() = %+v, want cancelled with no series", snap)
	}
	if rec, _ := f.store.LoadSession(ctx, constants.SessionRecordKey); rec != nil {
		t.Error("cancel should delete the persisted record")
	}
	if _, err := f.m.Cancel(ctx); !errors.Is(err, ErrNotRunning) {
		t.Errorf("second Cancel() error = %v, want ErrNotRunning", err)
	}
}

func TestMachine_CancelDuringDispatch(t *testing.T) {
	f := newFixture(t)
	f.sender.release = make(chan struct{})
	f.sender.entered = make(chan struct{})
	ctx := context.Background()

	if _, err := f.m.Start(ctx, 5, ""); err != nil {
		t.Fatal(err)
	}
	<-f.sender.entered

	if _, err := f.m.Cancel(ctx); err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
	close(f.sender.release)
	f.m.Wait()

	snap := f.m.Snapshot()
	if snap.Status != constants.StatusCancelled {
		t.Errorf("Status = %v, want cancelled", snap.Status)
	}
	if snap.Dispatch != DispatchPending {
		t.Errorf("Dispatch = %q, late result should be discarded", snap.Dispatch)
	}
	for _, k := range f.notifier.kinds() {
		if k == EventDispatched || k == EventDispatchFailed {
			t.Errorf("late dispatch produced notification %v", k)
		}
	}
}

func TestMachine_UnreachableActuatorKeepsRunning(t *testing.T) {
	f := newFixture(t)
	f.sender.err = &actuator.DispatchError{
		Kind:    actuator.ErrDeviceUnreachable,
		Address: "http://192.168.4.1",
		Err:     errors.New("connect: no route to host"),
	}
	ctx := context.Background()

	if _, err := f.m.Start(ctx, 5, ""); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	f.m.Wait()

	snap := f.m.Snapshot()
	if snap.Status != constants.StatusRunning {
		t.Errorf("Status = %v, want running", snap.Status)
	}
	if snap.Dispatch != DispatchFailed {
		t.Errorf("Dispatch = %q, want failed", snap.Dispatch)
	}
	kinds := f.notifier.kinds()
	if len(kinds) != 1 || kinds[0] != EventDispatchFailed {
		t.Fatalf("notifications = %v, want [dispatch_failed]", kinds)
	}
	if !errors.Is(f.notifier.items[0].Err, actuator.ErrDeviceUnreachable) {
		t.Errorf("notification error = %v", f.notifier.items[0].Err)
	}

	runs, _ := f.store.ListDoseRuns(ctx, 1)
	if runs[0].Dispatched || runs[0].DispatchError == "" {
		t.Errorf("history = %+v, want failed dispatch recorded", runs[0])
	}
}

func TestMachine_SuspendResume(t *testing.T) {
	tests := []struct {
		name          string
		gap           time.Duration
		wantRemaining int64
		wantStatus    constants.SessionStatus
	}{
		{"no gap", 0, 590, constants.StatusRunning},
		{"whole seconds", 90 * time.Second, 500, constants.StatusRunning},
		{"partial second floors", 2500 * time.Millisecond, 588, constants.StatusRunning},
		{"exactly used up", 590 * time.Second, 0, constants.StatusCompleted},
		{"long past", 3 * time.Hour, 0, constants.StatusCompleted},
		{"clock went backwards", -time.Minute, 590, constants.StatusRunning},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()

			if _, err := f.m.Start(ctx, 10, ""); err != nil {
				t.Fatal(err)
			}
			f.m.Wait()
			for range 10 {
				f.m.Tick(ctx)
			}
			id := f.m.Snapshot().ID
			if err := f.m.Suspend(ctx); err != nil {
				t.Fatalf("Suspend() error = %v", err)
			}

			f.clock.Advance(tt.gap)
			m2 := f.newMachine()
			snap, err := m2.Resume(ctx)
			if err != nil {
				t.Fatalf("Resume() error = %v", err)
			}

			if snap.Status != tt.wantStatus {
				t.Errorf("Status = %v, want %v", snap.Status, tt.wantStatus)
			}
			if snap.RemainingSeconds != tt.wantRemaining {
				t.Errorf("RemainingSeconds = %d, want %d", snap.RemainingSeconds, tt.wantRemaining)
			}
			if snap.ID != id {
				t.Errorf("ID = %q, want %q", snap.ID, id)
			}
			if snap.ActiveDose != 1.1 {
				t.Errorf("ActiveDose = %v, want 1.1", snap.ActiveDose)
			}
			rec, _ := f.store.LoadSession(ctx, constants.SessionRecordKey)
			if tt.wantStatus == constants.StatusCompleted && rec != nil {
				t.Error("completed resume should delete the record")
			}
			if len(f.sender.calls()) != 1 {
				t.Error("resume must not dispatch again")
			}
		})
	}
}

func TestMachine_ResumeKeepsZeroDose(t *testing.T) {
	f := newFixture(t)
	f.calc.series = dose.Series{{HourLabel: 1, Dose: 0.4}, {HourLabel: 0, Dose: 0}}
	ctx := context.Background()

	if _, err := f.m.Start(ctx, 10, ""); err != nil {
		t.Fatal(err)
	}
	f.m.Wait()
	if err := f.m.Suspend(ctx); err != nil {
		t.Fatalf("Suspend() error = %v", err)
	}

	snap, err := f.newMachine().Resume(ctx)
	if err != nil {
		t.Fatalf("Resume() error = %v", err)
	}
	if !snap.HasDose || snap.ActiveDose != 0 {
		t.Errorf("HasDose/ActiveDose = %v/%v, want true/0", snap.HasDose, snap.ActiveDose)
	}
}

func TestMachine_Resume_NothingPersisted(t *testing.T) {
	f := newFixture(t)
	snap, err := f.m.Resume(context.Background())
	if err != nil {
		t.Fatalf("Resume() error = %v", err)
	}
	if snap.Status != constants.StatusIdle {
		t.Errorf("Status = %v, want idle", snap.Status)
	}
}

func TestMachine_PersistenceFailureIsNotFatal(t *testing.T) {
	f := newFixture(t)
	f.store.FailSessionWrites = true
	ctx := context.Background()

	if _, err := f.m.Start(ctx, 1, ""); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	f.m.Wait()
	if err := f.m.Suspend(ctx); err == nil {
		t.Error("Suspend() should report the write failure")
	}
	if got := f.m.Snapshot().Status; got != constants.StatusRunning {
		t.Errorf("Status = %v, want running", got)
	}
	if _, err := f.m.Cancel(ctx); err != nil {
		t.Errorf("Cancel() error = %v", err)
	}
}

func TestMachine_ClearAndRestart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.m.Start(ctx, 1, ""); err != nil {
		t.Fatal(err)
	}
	f.m.Wait()
	if err := f.m.Clear(); !errors.Is(err, ErrSessionAlreadyActive) {
		t.Errorf("Clear(running) error = %v, want ErrSessionAlreadyActive", err)
	}
	if _, err := f.m.Cancel(ctx); err != nil {
		t.Fatal(err)
	}
	if err := f.m.Clear(); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	if got := f.m.Snapshot(); got.Status != constants.StatusIdle || got.ID != "" {
		t.Errorf("after Clear() = %+v, want empty idle", got)
	}

	if _, err := f.m.Start(ctx, 2, ""); err != nil {
		t.Fatalf("Start() after clear error = %v", err)
	}
	f.m.Wait()
	if len(f.sender.calls()) != 2 {
		t.Errorf("dispatch count = %d, want one per session", len(f.sender.calls()))
	}
}

func TestProject(t *testing.T) {
	start := time.Date(2025, 3, 1, 22, 0, 0, 0, time.UTC)
	rec := store.SessionRecord{RemainingSeconds: 100, TotalSeconds: 120, ElapsedSeconds: 20, StartEpochMillis: start.UnixMilli()}

	got := Project(rec, start.Add(30*time.Second+999*time.Millisecond))
	if got.RemainingSeconds != 70 || got.ElapsedSeconds != 50 {
		t.Errorf("Project() = %+v, want remaining 70 elapsed 50", got)
	}

	got = Project(rec, start.Add(time.Hour))
	if got.ElapsedSeconds != 120 {
		t.Errorf("ElapsedSeconds = %d, want capped at 120", got.ElapsedSeconds)
	}
}

func TestSnapshot_Format(t *testing.T) {
	s := Snapshot{RemainingSeconds: 3599, TotalSeconds: 3600}
	if got := s.Ratio(); got != "59:59/60:00" {
		t.Errorf("Ratio() = %q, want 59:59/60:00", got)
	}
	if got := FormatClock(-3); got != "00:00" {
		t.Errorf("FormatClock(-3) = %q", got)
	}
	if p := (Snapshot{RemainingSeconds: 30, TotalSeconds: 120}).Progress(); p != 0.75 {
		t.Errorf("Progress() = %v, want 0.75", p)
	}
}
