// Package actuator sends dose values to the network-attached pump.
//
// A dispatch is a reachability probe followed by a single value request.
// The device's reply body is not interpreted: any HTTP response to the
// value request counts as delivered.
package actuator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/nvandessel/sleepsync/internal/constants"
)

var (
	// ErrDeviceUnreachable is returned when the reachability probe fails.
	ErrDeviceUnreachable = errors.New("actuator unreachable")

	// ErrDeviceSendFailed is returned when the value request fails after a
	// successful probe.
	ErrDeviceSendFailed = errors.New("actuator send failed")
)

// Config locates the device.
type Config struct {
	Address   string        `yaml:"address" env:"ADDRESS"`
	Port      int           `yaml:"port" env:"PORT"`
	ValuePath string        `yaml:"value_path" env:"VALUE_PATH"`
	Timeout   time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// DefaultConfig returns the access-point defaults of the device firmware.
func DefaultConfig() Config {
	return Config{
		Address:   constants.DefaultActuatorAddress,
		Port:      constants.DefaultActuatorPort,
		ValuePath: constants.DefaultActuatorValuePath,
		Timeout:   constants.ActuatorRequestTimeout,
	}
}

// BaseURL returns the device root URL. An address that already carries a
// scheme is used as is, and the port is omitted when it is 80.
func (c Config) BaseURL() string {
	addr := strings.TrimRight(c.Address, "/")
	if strings.Contains(addr, "://") {
		return addr
	}
	if c.Port > 0 && c.Port != 80 {
		addr = net.JoinHostPort(addr, strconv.Itoa(c.Port))
	}
	return "http://" + addr
}

// DispatchError describes a failed dispatch.
type DispatchError struct {
	// Kind is ErrDeviceUnreachable or ErrDeviceSendFailed.
	Kind    error
	Address string
	Err     error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("%v at %s: %v", e.Kind, e.Address, e.Err)
}

// Unwrap exposes both the kind and the transport cause.
func (e *DispatchError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

// Diagnostic returns the message shown to the user.
func (e *DispatchError) Diagnostic() string {
	if errors.Is(e.Kind, ErrDeviceUnreachable) {
		return fmt.Sprintf("Cannot reach the actuator at %s. Check that:\n"+
			"  - the device is powered on\n"+
			"  - this machine is connected to the device's network\n"+
			"  - the configured address is correct (sleepsync config get actuator.address)", e.Address)
	}
	return "Failed to send to actuator. Please check your connection."
}

// Sender delivers a dose to the device.
type Sender interface {
	Dispatch(ctx context.Context, dose float64) error
}

// Client talks to the device over HTTP.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a Client. Zero config fields take their defaults.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	def := DefaultConfig()
	if cfg.Address == "" {
		cfg.Address = def.Address
	}
	if cfg.Port == 0 {
		cfg.Port = def.Port
	}
	if cfg.ValuePath == "" {
		cfg.ValuePath = def.ValuePath
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
	}
}

// Config returns the effective configuration.
func (c *Client) Config() Config {
	return c.cfg
}

// Probe checks that the device answers at all.
func (c *Client) Probe(ctx context.Context) error {
	base := c.cfg.BaseURL()
	if err := c.get(ctx, base+"/"); err != nil {
		return &DispatchError{Kind: ErrDeviceUnreachable, Address: base, Err: err}
	}
	return nil
}

// Dispatch probes the device and sends dose once. No retry.
func (c *Client) Dispatch(ctx context.Context, dose float64) error {
	if err := c.Probe(ctx); err != nil {
		c.logger.Warn("actuator probe failed", "address", c.cfg.BaseURL(), "error", err)
		return err
	}

	target := c.valueURL(dose)
	if err := c.get(ctx, target); err != nil {
		c.logger.Warn("actuator value request failed", "url", target, "error", err)
		return &DispatchError{Kind: ErrDeviceSendFailed, Address: c.cfg.BaseURL(), Err: err}
	}
	c.logger.Info("dose sent to actuator", "dose", dose, "url", target)
	return nil
}

func (c *Client) valueURL(dose float64) string {
	path := c.cfg.ValuePath
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	q := url.Values{}
	q.Set("value", strconv.FormatFloat(dose, 'f', -1, 64))
	return c.cfg.BaseURL() + path + "?" + q.Encode()
}

// get performs a bounded GET. Any HTTP status is a completed request.
func (c *Client) get(ctx context.Context, target string) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode >= 300 {
		c.logger.Warn("actuator returned non-success status", "url", target, "status", resp.StatusCode)
	}
	return nil
}

// SuccessMessage is the user-facing confirmation for a delivered dose.
func SuccessMessage(dose float64) string {
	return fmt.Sprintf("Sent %.2f mg/hour to actuator", dose)
}

// FailureMessage returns the user-facing text for a dispatch error.
func FailureMessage(err error) string {
	var de *DispatchError
	if errors.As(err, &de) {
		return de.Diagnostic()
	}
	return "Failed to send to actuator. Please check your connection."
}
