package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/nvandessel/sleepsync/internal/constants"
	"github.com/nvandessel/sleepsync/internal/session"
	"github.com/nvandessel/sleepsync/internal/ui"
)

func newStartCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start <minutes>",
		Short: "Start a sleep session and send the dose to the actuator",
		Long: `Start a sleep session of the given length.

The dose series is computed from your biometric history, the most recent
hour's dose is sent to the actuator, and the countdown begins. With
--description, the text is scored first and the score adjusts this and
later doses.

Examples:
  sleepsync start 480
  sleepsync start 30 --description "woke up three times" --watch`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			minutes, err := strconv.Atoi(args[0])
			if err != nil || minutes <= 0 {
				return fmt.Errorf("minutes must be a positive integer, got %q", args[0])
			}
			description, _ := cmd.Flags().GetString("description")
			watch, _ := cmd.Flags().GetBool("watch")
			plain, _ := cmd.Flags().GetBool("plain")
			jsonOut, _ := cmd.Flags().GetBool("json")

			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()
			out := cmd.OutOrStdout()

			if snap, err := a.machine.Resume(ctx); err == nil && snap.Status == constants.StatusRunning {
				return fmt.Errorf("a sleep session is already running (%s remaining); use 'sleepsync cancel' first", snap.Ratio())
			}

			var feedbackErr error
			if description != "" {
				score, err := a.analyzer.Analyze(ctx, description)
				feedbackErr = err
				if !jsonOut {
					if err != nil {
						fmt.Fprintf(out, "Could not score sleep description: %v\n", err)
					} else {
						fmt.Fprintf(out, "Sleep feedback score: %.2f\n", score)
					}
				}
			}

			snap, err := a.machine.Start(ctx, minutes, description)
			if err != nil {
				if errors.Is(err, session.ErrSessionAlreadyActive) {
					return fmt.Errorf("a sleep session is already running; use 'sleepsync cancel' first")
				}
				return fmt.Errorf("failed to start session: %w", err)
			}

			if watch && !jsonOut {
				fmt.Fprintf(out, "Session started: %s at %.2f mg/hour\n", snap.Ratio(), snap.ActiveDose)
				return watchSession(ctx, a, plain, out)
			}

			a.machine.Wait()
			snap = a.machine.Snapshot()
			notes := a.bridge.Drain()

			if jsonOut {
				result := map[string]any{"session": snap}
				if feedbackErr != nil {
					result["feedback_error"] = feedbackErr.Error()
				} else if description != "" {
					result["feedback_score"] = a.feedback.Get()
				}
				return json.NewEncoder(out).Encode(result)
			}

			for _, n := range notes {
				fmt.Fprintln(out, n.Message)
			}
			fmt.Fprintf(out, "Session running: %s, wake at %s\n", snap.Ratio(), snap.TargetTime.Local().Format("15:04"))
			fmt.Fprintln(out, "Run 'sleepsync run' to watch the countdown.")
			return nil
		},
	}

	cmd.Flags().StringP("description", "d", "", "How you slept last night (scored before computing the dose)")
	cmd.Flags().Bool("watch", false, "Show the countdown in the foreground")
	cmd.Flags().Bool("plain", false, "With --watch, print status lines instead of the interactive view")

	return cmd
}

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Resume the running session and show the countdown",
		Long: `Resume the persisted sleep session, charging it for the time that
passed since it was last saved, and count it down in the foreground.

Press q or send SIGINT/SIGTERM to suspend: the session is saved and keeps
counting while sleepsync is not running. Press c to cancel it.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			plain, _ := cmd.Flags().GetBool("plain")

			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()
			out := cmd.OutOrStdout()

			snap, err := a.machine.Resume(ctx)
			if err != nil {
				return fmt.Errorf("failed to resume session: %w", err)
			}
			switch snap.Status {
			case constants.StatusRunning:
				return watchSession(ctx, a, plain, out)
			case constants.StatusCompleted:
				fmt.Fprintln(out, "Session complete.")
			default:
				fmt.Fprintln(out, "No running session. Start one with 'sleepsync start <minutes>'.")
			}
			return nil
		},
	}

	cmd.Flags().Bool("plain", false, "Print status lines instead of the interactive view")
	return cmd
}

// watchSession counts the machine's running session down in the
// foreground until it ends or the user leaves.
func watchSession(ctx context.Context, a *app, plain bool, out io.Writer) error {
	var (
		exit ui.Exit
		snap session.Snapshot
		err  error
	)
	if plain || !isTerminal(out) {
		exit, snap, err = ui.RunPlain(ctx, a.machine, a.bridge, constants.TickInterval, out)
	} else {
		exit, snap, err = ui.Run(ctx, a.machine, ui.Options{Bridge: a.bridge, Output: out})
	}
	if err != nil {
		return err
	}

	switch exit {
	case ui.ExitSuspended:
		fmt.Fprintf(out, "Session suspended with %s remaining. Run 'sleepsync run' to resume.\n", snap.Ratio())
	case ui.ExitCancelled:
		fmt.Fprintln(out, "Sleep session cancelled.")
	default:
		if snap.Status == constants.StatusCompleted {
			fmt.Fprintln(out, "Sleep session complete.")
		}
	}
	return nil
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	info, err := f.Stat()
	return err == nil && info.Mode()&os.ModeCharDevice != 0
}

// statusView is what status prints.
type statusView struct {
	Status           constants.SessionStatus `json:"status"`
	ID               string                  `json:"id,omitempty"`
	RemainingSeconds int64                   `json:"remaining_seconds"`
	TotalSeconds     int64                   `json:"total_seconds"`
	Ratio            string                  `json:"ratio"`
	ActiveDose       float64                 `json:"active_dose,omitempty"`
	WakeAt           time.Time               `json:"wake_at,omitzero"`
	Description      string                  `json:"description,omitempty"`
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the current session without changing it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			view, err := currentStatus(cmd.Context(), a, time.Now())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOut {
				return json.NewEncoder(out).Encode(view)
			}
			switch view.Status {
			case constants.StatusIdle:
				fmt.Fprintln(out, "No session.")
			case constants.StatusCompleted:
				fmt.Fprintf(out, "Session complete (R/T %s)\n", view.Ratio)
			default:
				fmt.Fprintf(out, "Session %s: R/T %s\n", view.Status, view.Ratio)
				if view.ActiveDose != 0 {
					fmt.Fprintf(out, "Dose: %.2f mg/hour\n", view.ActiveDose)
				}
				fmt.Fprintf(out, "Wake at: %s\n", view.WakeAt.Local().Format("15:04"))
			}
			return nil
		},
	}
}

// currentStatus projects the persisted session to now without writing.
func currentStatus(ctx context.Context, a *app, now time.Time) (statusView, error) {
	rec, err := a.sessions.LoadSession(ctx, constants.SessionRecordKey)
	if err != nil {
		return statusView{}, fmt.Errorf("failed to load session: %w", err)
	}
	if rec == nil {
		return statusView{Status: constants.StatusIdle, Ratio: session.FormatClock(0) + "/" + session.FormatClock(0)}, nil
	}

	p := session.Project(*rec, now)
	view := statusView{
		Status:           constants.StatusRunning,
		ID:               p.ID,
		RemainingSeconds: max(p.RemainingSeconds, 0),
		TotalSeconds:     p.TotalSeconds,
		ActiveDose:       p.ActiveDose,
		Description:      p.Description,
	}
	if p.RemainingSeconds <= 0 {
		view.Status = constants.StatusCompleted
	} else {
		view.WakeAt = now.Add(time.Duration(p.RemainingSeconds) * time.Second)
	}
	view.Ratio = session.FormatClock(view.RemainingSeconds) + "/" + session.FormatClock(view.TotalSeconds)
	return view, nil
}

func newCancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel",
		Short: "Cancel the running session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			if _, err := a.machine.Resume(ctx); err != nil {
				return fmt.Errorf("failed to resume session: %w", err)
			}
			snap, err := a.machine.Cancel(ctx)
			if errors.Is(err, session.ErrNotRunning) {
				return fmt.Errorf("no sleep session is running")
			}
			if err != nil {
				return err
			}

			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]any{"session": snap})
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Sleep session cancelled.")
			return nil
		},
	}
}

func newClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Discard a finished session",
		Long:  `Discard a completed session's saved state. A running session must be cancelled first.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			snap, err := a.machine.Resume(ctx)
			if err != nil {
				return fmt.Errorf("failed to resume session: %w", err)
			}
			if err := a.machine.Clear(); err != nil {
				return fmt.Errorf("session still running (%s remaining); use 'sleepsync cancel' first", snap.Ratio())
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Session cleared.")
			return nil
		},
	}
}
