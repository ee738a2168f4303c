package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"

	"github.com/nvandessel/sleepsync/internal/constants"
	"github.com/nvandessel/sleepsync/internal/devicesim"
	"github.com/nvandessel/sleepsync/internal/feedback"
	"github.com/nvandessel/sleepsync/internal/store"
)

// isolateHome points the data directory at a temp dir so tests never touch
// the real ~/.sleepsync/. MUST be called for any test that creates stores.
func isolateHome(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv(store.DataDirEnv, dir)
	t.Setenv("SLEEPSYNC_FEEDBACK_PROVIDER", "fallback")
	t.Setenv("SLEEPSYNC_BIOMETRICS_ENDPOINT", "")
	return dir
}

// useDeviceSim serves a simulated pump and points the actuator at it.
func useDeviceSim(t *testing.T) *devicesim.Simulator {
	t.Helper()
	sim := devicesim.New()
	srv := httptest.NewServer(sim.Router())
	t.Cleanup(srv.Close)
	pointActuator(t, srv.URL)
	return sim
}

func pointActuator(t *testing.T, rawURL string) {
	t.Helper()
	u, err := url.Parse(rawURL)
	if err != nil {
		t.Fatalf("parse server URL: %v", err)
	}
	host, port, err := net.SplitHostPort(u.Host)
	if err != nil {
		t.Fatalf("split host: %v", err)
	}
	t.Setenv("SLEEPSYNC_ACTUATOR_ADDRESS", host)
	t.Setenv("SLEEPSYNC_ACTUATOR_PORT", port)
	t.Setenv("SLEEPSYNC_ACTUATOR_TIMEOUT", "2s")
}

// runCLI executes the root command with args and returns stdout.
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	err := root.ExecuteContext(t.Context())
	return out.String(), err
}

func mustRunCLI(t *testing.T, args ...string) string {
	t.Helper()
	out, err := runCLI(t, args...)
	if err != nil {
		t.Fatalf("sleepsync %s: %v\noutput: %s", strings.Join(args, " "), err, out)
	}
	return out
}

func TestRootCommands(t *testing.T) {
	root := newRootCmd()
	want := []string{
		"version", "start", "run", "status", "cancel", "clear", "dose",
		"feedback", "history", "config", "setup", "mcp-server", "device-sim",
	}
	for _, name := range want {
		cmd, _, err := root.Find([]string{name})
		if err != nil || cmd == root {
			t.Errorf("missing %q subcommand", name)
		}
	}
	for _, flag := range []string{"json", "data-dir"} {
		if root.PersistentFlags().Lookup(flag) == nil {
			t.Errorf("missing --%s persistent flag", flag)
		}
	}
}

func TestNewStartCmd(t *testing.T) {
	cmd := newStartCmd()
	if cmd.Use != "start <minutes>" {
		t.Errorf("Use = %q, want %q", cmd.Use, "start <minutes>")
	}
	for _, flag := range []string{"description", "watch", "plain"} {
		if cmd.Flags().Lookup(flag) == nil {
			t.Errorf("missing --%s flag", flag)
		}
	}
	if f := cmd.Flags().ShorthandLookup("d"); f == nil || f.Name != "description" {
		t.Error("missing -d shorthand for --description")
	}
}

func TestVersionJSON(t *testing.T) {
	out := mustRunCLI(t, "version", "--json")
	var got map[string]string
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("version --json output not JSON: %v (%q)", err, out)
	}
	if got["version"] != version {
		t.Errorf("version = %q, want %q", got["version"], version)
	}
}

func TestStartRejectsInvalidMinutes(t *testing.T) {
	isolateHome(t)
	for _, arg := range []string{"0", "-5", "abc", "1.5"} {
		t.Run(arg, func(t *testing.T) {
			if _, err := runCLI(t, "start", "--", arg); err == nil {
				t.Errorf("start %q succeeded, want error", arg)
			}
		})
	}
}

func TestSessionLifecycle(t *testing.T) {
	isolateHome(t)
	sim := useDeviceSim(t)

	out := mustRunCLI(t, "start", "30")
	if !strings.Contains(out, "Sent ") || !strings.Contains(out, "mg/hour to actuator") {
		t.Errorf("start output missing dispatch confirmation:\n%s", out)
	}
	if !strings.Contains(out, "Session running: 30:00/30:00") {
		t.Errorf("start output missing countdown:\n%s", out)
	}
	if !sim.Status().Received {
		t.Error("device simulator did not receive a dose")
	}

	var view statusView
	if err := json.Unmarshal([]byte(mustRunCLI(t, "status", "--json")), &view); err != nil {
		t.Fatalf("status --json: %v", err)
	}
	if view.Status != constants.StatusRunning {
		t.Errorf("status = %q, want %q", view.Status, constants.StatusRunning)
	}
	if view.TotalSeconds != 1800 {
		t.Errorf("TotalSeconds = %d, want 1800", view.TotalSeconds)
	}
	if view.RemainingSeconds > 1800 || view.RemainingSeconds < 1790 {
		t.Errorf("RemainingSeconds = %d, want within 10s of 1800", view.RemainingSeconds)
	}
	if view.ActiveDose != sim.Status().Plan.DoseMg {
		t.Errorf("ActiveDose = %v, device got %v", view.ActiveDose, sim.Status().Plan.DoseMg)
	}

	if _, err := runCLI(t, "start", "10"); err == nil || !strings.Contains(err.Error(), "already running") {
		t.Errorf("second start error = %v, want already running", err)
	}
	if _, err := runCLI(t, "clear"); err == nil {
		t.Error("clear of a running session succeeded, want error")
	}

	out = mustRunCLI(t, "cancel")
	if !strings.Contains(out, "Sleep session cancelled.") {
		t.Errorf("cancel output = %q", out)
	}
	out = mustRunCLI(t, "status")
	if !strings.Contains(out, "No session.") {
		t.Errorf("status after cancel = %q, want No session.", out)
	}

	if _, err := runCLI(t, "cancel"); err == nil || !strings.Contains(err.Error(), "no sleep session") {
		t.Errorf("cancel with no session error = %v", err)
	}
	if out := mustRunCLI(t, "clear"); !strings.Contains(out, "Session cleared.") {
		t.Errorf("clear output = %q", out)
	}
}

func TestStartReportsDispatchFailure(t *testing.T) {
	isolateHome(t)
	srv := httptest.NewServer(devicesim.New().Router())
	addr := srv.URL
	srv.Close()
	pointActuator(t, addr)

	out := mustRunCLI(t, "start", "15")
	if strings.Contains(out, "mg/hour to actuator") {
		t.Errorf("start reported success against a closed server:\n%s", out)
	}
	if !strings.Contains(out, "Session running") {
		t.Errorf("session should run despite dispatch failure:\n%s", out)
	}

	out = mustRunCLI(t, "history", "--json")
	var got struct {
		Runs  []store.DoseRun `json:"runs"`
		Count int             `json:"count"`
	}
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("history --json: %v", err)
	}
	if got.Count != 1 {
		t.Fatalf("history count = %d, want 1", got.Count)
	}
	if got.Runs[0].Dispatched || got.Runs[0].DispatchError == "" {
		t.Errorf("run dispatch = %v/%q, want failed", got.Runs[0].Dispatched, got.Runs[0].DispatchError)
	}
	if got.Runs[0].TotalSeconds != 900 {
		t.Errorf("TotalSeconds = %v, want 900", got.Runs[0].TotalSeconds)
	}
}

func TestStartWithDescriptionScoresFeedback(t *testing.T) {
	isolateHome(t)
	useDeviceSim(t)

	out := mustRunCLI(t, "start", "20", "-d", "terrible restless night, woke three times")
	if !strings.Contains(out, "Sleep feedback score: 1.00") {
		t.Errorf("start output missing feedback score:\n%s", out)
	}

	out = mustRunCLI(t, "feedback")
	if !strings.Contains(out, "Stored feedback score: 1.00") {
		t.Errorf("feedback output = %q, want persisted score", out)
	}
}

func TestFeedbackCmd(t *testing.T) {
	isolateHome(t)

	out := mustRunCLI(t, "feedback", "slept", "great,", "felt", "rested", "and", "refreshed")
	if !strings.Contains(out, "Sleep feedback score: -1.00") {
		t.Errorf("feedback output = %q", out)
	}

	var got map[string]float64
	if err := json.Unmarshal([]byte(mustRunCLI(t, "feedback", "--json")), &got); err != nil {
		t.Fatalf("feedback --json: %v", err)
	}
	if got["score"] != -1 {
		t.Errorf("stored score = %v, want -1", got["score"])
	}

	if _, err := runCLI(t, "feedback", "   "); err == nil {
		t.Error("feedback with blank description succeeded, want error")
	}
}

func TestDoseCmd(t *testing.T) {
	isolateHome(t)

	out := mustRunCLI(t, "dose", "--remaining", "30", "--total", "60")
	for _, want := range []string{"Base dose:", "Source: http+", "Active dose:"} {
		if !strings.Contains(out, want) {
			t.Errorf("dose output missing %q:\n%s", want, out)
		}
	}

	var res struct {
		Series []json.RawMessage `json:"series"`
	}
	if err := json.Unmarshal([]byte(mustRunCLI(t, "dose", "--json")), &res); err != nil {
		t.Fatalf("dose --json: %v", err)
	}
	if len(res.Series) == 0 {
		t.Error("dose --json returned an empty series")
	}
}

func TestHistoryEmpty(t *testing.T) {
	isolateHome(t)
	if out := mustRunCLI(t, "history"); !strings.Contains(out, "No dose runs recorded.") {
		t.Errorf("history output = %q", out)
	}
	if _, err := runCLI(t, "history", "--id", "42"); err == nil {
		t.Error("history --id for a missing run succeeded, want error")
	}
}

func TestHistoryRequiresSQLite(t *testing.T) {
	isolateHome(t)
	t.Setenv("SLEEPSYNC_SESSION_STORAGE", "file")
	if _, err := runCLI(t, "history"); err == nil || !strings.Contains(err.Error(), "sqlite") {
		t.Errorf("history with file storage error = %v, want sqlite requirement", err)
	}
}

func TestConfigSetGet(t *testing.T) {
	isolateHome(t)

	mustRunCLI(t, "config", "set", "dose.base_dose", "1.5")
	mustRunCLI(t, "config", "set", "actuator.address", "10.0.0.42")

	out := mustRunCLI(t, "config", "get", "dose.base_dose")
	if strings.TrimSpace(out) != "dose.base_dose = 1.5" {
		t.Errorf("config get = %q", out)
	}

	var got map[string]any
	if err := json.Unmarshal([]byte(mustRunCLI(t, "config", "get", "actuator.address", "--json")), &got); err != nil {
		t.Fatalf("config get --json: %v", err)
	}
	if got["value"] != "10.0.0.42" {
		t.Errorf("actuator.address = %v, want 10.0.0.42", got["value"])
	}

	if _, err := runCLI(t, "config", "get", "nope"); err == nil {
		t.Error("config get of unknown key succeeded, want error")
	}
	if _, err := runCLI(t, "config", "set", "feedback.provider", "carrier-pigeon"); err == nil {
		t.Error("config set of invalid provider succeeded, want error")
	}
}

func TestConfigListRedactsSecrets(t *testing.T) {
	isolateHome(t)
	mustRunCLI(t, "config", "set", "feedback.api_key", "sk-secret-value-1234")

	out := mustRunCLI(t, "config", "list")
	if strings.Contains(out, "sk-secret-value-1234") {
		t.Errorf("config list leaked the API key:\n%s", out)
	}
	if !strings.Contains(out, "feedback.api_key") {
		t.Errorf("config list missing feedback.api_key:\n%s", out)
	}
}

// newTestApp builds the app the way a command would, without running one.
func newTestApp(t *testing.T, logs io.Writer, opts ...appOption) *app {
	t.Helper()
	cmd := &cobra.Command{}
	cmd.SetContext(t.Context())
	cmd.SetErr(logs)
	a, err := newApp(cmd, opts...)
	if err != nil {
		t.Fatalf("newApp() error = %v", err)
	}
	t.Cleanup(func() { a.Close() })
	return a
}

func TestFeedbackRestoreIgnoresUnavailableAnalysis(t *testing.T) {
	isolateHome(t)

	mustRunCLI(t, "feedback", "terrible restless night, woke three times")

	// A later analysis whose backend failed leaves the score untouched.
	first := newTestApp(t, io.Discard)
	if err := first.feedLog.RecordFeedback(t.Context(), feedback.Event{
		Description: "slept badly", Score: 0, Provider: "anthropic", Outcome: feedback.OutcomeUnavailable,
	}); err != nil {
		t.Fatalf("RecordFeedback() error = %v", err)
	}

	next := newTestApp(t, io.Discard)
	if got := next.feedback.Get(); got != 1 {
		t.Errorf("restored feedback = %v, want 1 from the last scored analysis", got)
	}
}

func TestLogNotifierReplacesCountdownBridge(t *testing.T) {
	isolateHome(t)
	useDeviceSim(t)

	var logs bytes.Buffer
	a := newTestApp(t, &logs, withLogNotifier())
	if _, err := a.machine.Start(t.Context(), 5, ""); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	a.machine.Wait()

	if held := a.bridge.Drain(); len(held) != 0 {
		t.Errorf("bridge held %d notifications, want none", len(held))
	}
	if !strings.Contains(logs.String(), "to actuator") || !strings.Contains(logs.String(), "kind=dispatched") {
		t.Errorf("logs missing dispatch notification:\n%s", logs.String())
	}
	if _, err := a.machine.Cancel(t.Context()); err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
}

func TestCurrentStatusProjection(t *testing.T) {
	isolateHome(t)

	cmd := &cobra.Command{}
	cmd.SetContext(t.Context())
	cmd.SetErr(io.Discard)
	a, err := newApp(cmd)
	if err != nil {
		t.Fatalf("newApp() error = %v", err)
	}
	defer a.Close()

	now := time.Now()
	ctx := t.Context()

	view, err := currentStatus(ctx, a, now)
	if err != nil {
		t.Fatalf("currentStatus() error = %v", err)
	}
	if view.Status != constants.StatusIdle || view.Ratio != "00:00/00:00" {
		t.Errorf("idle view = %+v", view)
	}

	tests := []struct {
		name          string
		remaining     int64
		savedAgo      time.Duration
		wantStatus    constants.SessionStatus
		wantRemaining int64
		wantRatio     string
	}{
		{"charged for suspension", 600, 100 * time.Second, constants.StatusRunning, 500, "08:20/10:00"},
		{"ran out while suspended", 50, 100 * time.Second, constants.StatusCompleted, 0, "00:00/10:00"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := store.SessionRecord{
				ID:               "s1",
				RemainingSeconds: tt.remaining,
				TotalSeconds:     600,
				ElapsedSeconds:   600 - tt.remaining,
				StartEpochMillis: now.Add(-tt.savedAgo).UnixMilli(),
				ActiveDose:       1.25,
			}
			if err := a.sessions.SaveSession(ctx, constants.SessionRecordKey, rec); err != nil {
				t.Fatalf("SaveSession() error = %v", err)
			}

			view, err := currentStatus(ctx, a, now)
			if err != nil {
				t.Fatalf("currentStatus() error = %v", err)
			}
			if view.Status != tt.wantStatus {
				t.Errorf("Status = %q, want %q", view.Status, tt.wantStatus)
			}
			if view.RemainingSeconds != tt.wantRemaining {
				t.Errorf("RemainingSeconds = %d, want %d", view.RemainingSeconds, tt.wantRemaining)
			}
			if view.Ratio != tt.wantRatio {
				t.Errorf("Ratio = %q, want %q", view.Ratio, tt.wantRatio)
			}

			// status never writes the projection back
			got, err := a.sessions.LoadSession(ctx, constants.SessionRecordKey)
			if err != nil || got == nil {
				t.Fatalf("LoadSession() = %v, %v", got, err)
			}
			if got.RemainingSeconds != tt.remaining {
				t.Errorf("stored RemainingSeconds = %d, want %d", got.RemainingSeconds, tt.remaining)
			}
		})
	}
}

func TestSetupLocalModelCheck(t *testing.T) {
	isolateHome(t)
	out := mustRunCLI(t, "setup", "local-model", "--check")
	if !strings.Contains(out, "not installed") {
		t.Errorf("setup --check output = %q", out)
	}
}
