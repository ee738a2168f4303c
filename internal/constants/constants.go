// Package constants provides named constants used throughout the sleepsync codebase.
// This centralizes magic numbers for better maintainability and documentation.
package constants

import "time"

// Biometric aggregation constants
const (
	// RecentWindowSize is the number of most recent samples used as the
	// "current" readings for a dose series. Shorter series use every sample.
	RecentWindowSize = 24

	// DefaultBaseDose is the base dose (mg) used when neither the config nor
	// the biometric dataset provides one.
	DefaultBaseDose = 1.0
)

// Feedback score bounds.
const (
	// MinFeedbackScore is the lowest feedback score (good sleep, decrease dose).
	MinFeedbackScore = -1.0

	// MaxFeedbackScore is the highest feedback score (poor sleep, increase dose).
	MaxFeedbackScore = 1.0

	// NeutralFeedbackScore is the score used at startup and after analyzer failures.
	NeutralFeedbackScore = 0.0
)

// Actuator constants
const (
	// DefaultActuatorAddress is the address the actuator listens on when it
	// runs its own access point.
	DefaultActuatorAddress = "192.168.4.1"

	// DefaultActuatorPort is the actuator's HTTP port.
	DefaultActuatorPort = 80

	// DefaultActuatorValuePath is the value-sink path on the actuator.
	DefaultActuatorValuePath = "/dose"

	// ActuatorRequestTimeout bounds both the reachability probe and the value request.
	ActuatorRequestTimeout = 5 * time.Second
)

// Session constants
const (
	// SecondsPerMinute converts the requested duration to countdown seconds.
	SecondsPerMinute = 60

	// TickInterval is the foreground countdown cadence.
	TickInterval = time.Second

	// SessionRecordKey is the persistence key for the single active session record.
	SessionRecordKey = "active"
)

// Device pump parameters mirrored by the simulator.
const (
	// PumpCallsPerHour is the number of pulses the pump spreads one hourly dose across.
	PumpCallsPerHour = 10

	// PumpMgPerML is the concentration of the dispensed solution.
	PumpMgPerML = 0.5

	// PumpRateMLPerSecond is the pump's flow rate.
	PumpRateMLPerSecond = 1.5
)
