// Package devicesim serves the actuator's HTTP contract locally so sessions
// can be exercised without pump hardware.
package devicesim

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"github.com/nvandessel/sleepsync/internal/constants"
	"github.com/nvandessel/sleepsync/internal/ratelimit"
)

// PumpPlan is how the device spreads one hourly dose across pulses.
type PumpPlan struct {
	DoseMg        float64       `json:"dose_mg"`
	Calls         int           `json:"calls"`
	MgPerCall     float64       `json:"mg_per_call"`
	PulseDuration time.Duration `json:"pulse_duration_ns"`
	PulseInterval time.Duration `json:"pulse_interval_ns"`
}

// ComputePumpPlan mirrors the firmware's arithmetic: pulse length is
// mg-per-call times concentration over pump rate, and the remainder of the
// hour is split evenly between pulses. Non-positive doses do not pump.
func ComputePumpPlan(doseMg float64) PumpPlan {
	plan := PumpPlan{DoseMg: doseMg, Calls: constants.PumpCallsPerHour}
	if doseMg <= 0 {
		plan.Calls = 0
		return plan
	}
	plan.MgPerCall = doseMg / float64(constants.PumpCallsPerHour)
	pulseMs := int64((plan.MgPerCall * constants.PumpMgPerML / constants.PumpRateMLPerSecond) * 1000)
	gapMs := int64(math.Round(float64(time.Hour.Milliseconds()-pulseMs*int64(plan.Calls)) / float64(plan.Calls)))
	plan.PulseDuration = time.Duration(pulseMs) * time.Millisecond
	plan.PulseInterval = time.Duration(gapMs) * time.Millisecond
	return plan
}

// Status is the body of GET /status.
type Status struct {
	Received   bool      `json:"received"`
	RawValue   string    `json:"raw_value,omitempty"`
	ReceivedAt time.Time `json:"received_at,omitzero"`
	Requests   int       `json:"requests"`
	Plan       PumpPlan  `json:"plan"`
}

// Simulator is the in-process device.
type Simulator struct {
	mu       sync.Mutex
	status   Status
	limiter  *ratelimit.Limiter
	logger   *slog.Logger
	nowFunc  func() time.Time
	onDose   func(float64)
	readyMsg string
}

// Option configures a Simulator.
type Option func(*Simulator)

// WithLogger sets the request logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Simulator) { s.logger = l }
}

// WithLimiter throttles /dose per client host. Rejected requests get 429.
func WithLimiter(l *ratelimit.Limiter) Option {
	return func(s *Simulator) { s.limiter = l }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Simulator) { s.nowFunc = now }
}

// OnDose registers a callback run after each accepted dose.
func OnDose(fn func(float64)) Option {
	return func(s *Simulator) { s.onDose = fn }
}

// New creates a simulator with an empty pump plan.
func New(opts ...Option) *Simulator {
	s := &Simulator{
		logger:   slog.Default(),
		nowFunc:  time.Now,
		readyMsg: "sleepsync device simulator",
	}
	for _, opt := range opts {
		opt(s)
	}
	s.status.Plan = ComputePumpPlan(0)
	return s
}

// Status returns the last accepted dose and its pump plan.
func (s *Simulator) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Router returns the device's routes.
func (s *Simulator) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(corsMiddleware)

	r.HandleFunc("/", s.handleRoot).Methods(http.MethodGet)
	r.HandleFunc("/dose", s.handleDose).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)

	return r
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		next.ServeHTTP(w, r)
	})
}

func (s *Simulator) handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	fmt.Fprintln(w, s.readyMsg)
}

func (s *Simulator) handleDose(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}

	if s.limiter != nil && !s.limiter.Allow(clientHost(r)) {
		http.Error(w, "Too many dose requests", http.StatusTooManyRequests)
		return
	}

	raw := r.URL.Query().Get("value")
	if !r.URL.Query().Has("value") {
		s.logger.Warn("dose request without value", "remote", r.RemoteAddr)
		http.Error(w, "Missing 'value' parameter", http.StatusBadRequest)
		return
	}

	// Unparsable values count as zero, as on the device.
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(value) || math.IsInf(value, 0) {
		value = 0
	}

	s.mu.Lock()
	s.status.Received = true
	s.status.RawValue = raw
	s.status.ReceivedAt = s.nowFunc()
	s.status.Requests++
	s.status.Plan = ComputePumpPlan(value)
	plan := s.status.Plan
	s.mu.Unlock()

	s.logger.Info("dose received", "value", value, "remote", r.RemoteAddr,
		"pulse", plan.PulseDuration, "interval", plan.PulseInterval)
	if s.onDose != nil {
		s.onDose(value)
	}

	w.Header().Set("Content-Type", "text/plain")
	fmt.Fprintf(w, "Dose received: %s", raw)
}

func (s *Simulator) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.Status()); err != nil {
		s.logger.Warn("failed to encode status", "error", err)
	}
}

func clientHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// ListenAndServe serves the simulator on addr until ctx is cancelled.
func (s *Simulator) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled, then shuts down gracefully.
func (s *Simulator) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("device simulator listening", "addr", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down simulator: %w", err)
		}
		return nil
	}
}
