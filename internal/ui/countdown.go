// Package ui renders the foreground sleep countdown.
package ui

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/nvandessel/sleepsync/internal/constants"
	"github.com/nvandessel/sleepsync/internal/session"
)

// Sessions is what the countdown drives. *session.Machine satisfies it.
type Sessions interface {
	Tick(ctx context.Context) session.Snapshot
	Snapshot() session.Snapshot
	Suspend(ctx context.Context) error
	Cancel(ctx context.Context) (session.Snapshot, error)
}

const barWidth = 30

type tickMsg time.Time

type notificationsMsg []session.Notification

type stopMsg struct{}

// Exit describes how the countdown ended.
type Exit int

const (
	ExitFinished  Exit = iota // session reached a terminal status
	ExitSuspended             // user or signal left a running session persisted
	ExitCancelled             // user cancelled from the countdown
)

// Model is the bubbletea countdown model.
type Model struct {
	ctx      context.Context
	sessions Sessions
	interval time.Duration
	bridge   *Bridge
	stop     <-chan struct{}
	snap     session.Snapshot
	notes    []string
	exit     Exit
	err      error
	done     bool
}

// NewModel creates a countdown over sessions.
func NewModel(ctx context.Context, sessions Sessions, interval time.Duration) Model {
	if interval <= 0 {
		interval = constants.TickInterval
	}
	return Model{ctx: ctx, sessions: sessions, interval: interval, snap: sessions.Snapshot()}
}

func (m Model) tick() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// listen waits for the next batch of notifications, if a bridge is set.
func (m Model) listen() tea.Cmd {
	if m.bridge == nil {
		return nil
	}
	return m.bridge.next(m.stop)
}

// Init starts the tick loop and picks up notifications held so far.
func (m Model) Init() tea.Cmd {
	if m.snap.Status != constants.StatusRunning {
		return tea.Quit
	}
	return tea.Batch(m.tick(), m.listen())
}

// Update handles ticks, keys and notifications.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tickMsg:
		if m.done {
			return m, nil
		}
		m.snap = m.sessions.Tick(m.ctx)
		if m.snap.Status.Terminal() {
			m.done = true
			m.exit = ExitFinished
			return m, tea.Quit
		}
		return m, m.tick()

	case notificationsMsg:
		for _, n := range msg {
			m.notes = append(m.notes, n.Message)
		}
		if m.done {
			return m, nil
		}
		m.snap = m.sessions.Snapshot()
		return m, m.listen()

	case stopMsg:
		return m.suspend()

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m.suspend()
		case "c":
			snap, err := m.sessions.Cancel(m.ctx)
			if err == nil {
				m.snap = snap
			}
			m.done = true
			m.exit = ExitCancelled
			m.err = err
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m Model) suspend() (tea.Model, tea.Cmd) {
	if m.done {
		return m, tea.Quit
	}
	m.done = true
	m.exit = ExitSuspended
	m.err = m.sessions.Suspend(context.WithoutCancel(m.ctx))
	return m, tea.Quit
}

// View renders the countdown pane.
func (m Model) View() string {
	var b strings.Builder
	b.WriteString(Title.Render("sleepsync"))
	b.WriteString("  ")
	b.WriteString(Muted.Render(m.snap.Status.String()))
	b.WriteString("\n\n")

	b.WriteString(Clock.Render(session.FormatClock(m.snap.RemainingSeconds)))
	b.WriteString(Muted.Render(" / " + session.FormatClock(m.snap.TotalSeconds)))
	b.WriteString("\n")
	b.WriteString(ProgressBar(m.snap.Progress(), barWidth))
	b.WriteString("\n\n")

	if m.snap.HasDose {
		b.WriteString(Hot.Render(fmt.Sprintf("%.2f mg/hour", m.snap.ActiveDose)))
		b.WriteString("  ")
		b.WriteString(dispatchLabel(m.snap))
		b.WriteString("\n")
	}
	if !m.snap.TargetTime.IsZero() {
		b.WriteString(Muted.Render("wake " + m.snap.TargetTime.Local().Format("15:04")))
		b.WriteString("\n")
	}
	for _, n := range m.notes {
		b.WriteString("\n" + n)
	}

	b.WriteString("\n\n")
	b.WriteString(Muted.Render("q suspend · c cancel"))
	return Pane.Render(b.String()) + "\n"
}

func dispatchLabel(s session.Snapshot) string {
	switch s.Dispatch {
	case session.DispatchPending:
		return Muted.Render("sending…")
	case session.DispatchSent:
		return Good.Render("sent")
	case session.DispatchFailed:
		return Bad.Render("not delivered")
	default:
		return ""
	}
}

// ProgressBar renders frac in [0, 1] as a fixed-width bar.
func ProgressBar(frac float64, width int) string {
	filled := int(min(1, max(0, frac)) * float64(width))
	return BarFull.Render(strings.Repeat("█", filled)) + BarEmpty.Render(strings.Repeat("░", width-filled))
}

// Bridge carries session notifications to whoever displays them. It is
// handed to the session machine before any countdown exists, so Notify
// never blocks: notifications are held until a countdown or Drain takes
// them.
type Bridge struct {
	mu      sync.Mutex
	pending []session.Notification
	wake    chan struct{}
}

// Notify implements session.Notifier.
func (b *Bridge) Notify(n session.Notification) {
	b.mu.Lock()
	b.pending = append(b.pending, n)
	wake := b.wakeLocked()
	b.mu.Unlock()

	select {
	case wake <- struct{}{}:
	default:
	}
}

func (b *Bridge) wakeLocked() chan struct{} {
	if b.wake == nil {
		b.wake = make(chan struct{}, 1)
	}
	return b.wake
}

// next returns a command that waits for held notifications and delivers
// them as one notificationsMsg. It returns nil once stop is closed.
func (b *Bridge) next(stop <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		b.mu.Lock()
		wake := b.wakeLocked()
		b.mu.Unlock()
		for {
			if ns := b.Drain(); len(ns) > 0 {
				return notificationsMsg(ns)
			}
			select {
			case <-wake:
			case <-stop:
				return nil
			}
		}
	}
}

// Drain returns and clears notifications held while detached.
func (b *Bridge) Drain() []session.Notification {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.pending
	b.pending = nil
	return out
}

// Options configures Run.
type Options struct {
	Bridge   *Bridge
	Interval time.Duration
	Input    io.Reader
	Output   io.Writer
}

// Run shows the countdown until the session finishes, the user leaves, or
// ctx is cancelled. Leaving or cancellation suspends a running session.
func Run(ctx context.Context, sessions Sessions, opts Options) (Exit, session.Snapshot, error) {
	stop := make(chan struct{})
	defer close(stop)

	model := NewModel(ctx, sessions, opts.Interval)
	model.bridge = opts.Bridge
	model.stop = stop

	var progOpts []tea.ProgramOption
	if opts.Input != nil {
		progOpts = append(progOpts, tea.WithInput(opts.Input))
	}
	if opts.Output != nil {
		progOpts = append(progOpts, tea.WithOutput(opts.Output))
	}
	p := tea.NewProgram(model, progOpts...)

	go func() {
		select {
		case <-ctx.Done():
			p.Send(stopMsg{})
		case <-stop:
		}
	}()

	final, err := p.Run()
	if err != nil {
		return ExitSuspended, sessions.Snapshot(), fmt.Errorf("running countdown: %w", err)
	}
	fm := final.(Model)
	if !fm.done {
		// Program ended before any tick (not running at start).
		return ExitFinished, fm.snap, nil
	}
	return fm.exit, fm.snap, fm.err
}

// RunPlain is the non-interactive countdown: it ticks every interval and
// writes a status line each minute and on every notification.
func RunPlain(ctx context.Context, sessions Sessions, bridge *Bridge, interval time.Duration, w io.Writer) (Exit, session.Snapshot, error) {
	if interval <= 0 {
		interval = constants.TickInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	snap := sessions.Snapshot()
	if snap.Status != constants.StatusRunning {
		return ExitFinished, snap, nil
	}
	fmt.Fprintf(w, "%s remaining\n", snap.Ratio())

	for {
		select {
		case <-ctx.Done():
			err := sessions.Suspend(context.WithoutCancel(ctx))
			return ExitSuspended, sessions.Snapshot(), err
		case <-ticker.C:
			snap = sessions.Tick(ctx)
			if bridge != nil {
				for _, n := range bridge.Drain() {
					fmt.Fprintln(w, n.Message)
				}
			}
			if snap.Status.Terminal() {
				fmt.Fprintf(w, "Session %s.\n", snap.Status)
				return ExitFinished, snap, nil
			}
			if snap.RemainingSeconds%constants.SecondsPerMinute == 0 {
				fmt.Fprintf(w, "%s remaining\n", snap.Ratio())
			}
		}
	}
}
