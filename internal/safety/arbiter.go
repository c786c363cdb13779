// v0
// arbiter.go
package safety

import (
	"github.com/MaulikItaliya/phreg/internal/config"
	"github.com/MaulikItaliya/phreg/internal/fsm"
)

// Inputs is everything the arbiter needs to decide one reactor's final
// gas commands for a tick. DesiredAir/DesiredCO2 are the rate-limited
// control outputs; they are suggestions, never commands.
type Inputs struct {
	Enabled     bool
	State       fsm.State
	SensorValid bool

	DesiredAir float64
	DesiredCO2 float64

	AirBaseline float64
	LastAir     float64 // last arbited AIR value, for hold-don't-increase
}

// Decision is the final pair of flow commands plus the override reason.
type Decision struct {
	Air    float64
	CO2    float64
	Reason string
}

// Arbitrate converts state, control output and fault knowledge into the
// command actually issued. It is the only place allowed to produce a final
// actuator value; every rule enforces "uncertain means do nothing
// dangerous". Checks are ordered by priority and short-circuit.
func Arbitrate(in Inputs) Decision {
	// 1. Operator disable dominates everything: both channels off.
	if !in.Enabled {
		return Decision{Air: 0, CO2: 0, Reason: "reactor disabled"}
	}

	// 2. FAILSAFE ignores upstream computation entirely.
	if in.State == fsm.Failsafe {
		return Decision{Air: config.AirMin, CO2: 0, Reason: "failsafe"}
	}

	// 3. INIT permits no control action; outputs stay at the safe baseline.
	if in.State == fsm.Init {
		return Decision{Air: in.AirBaseline, CO2: 0, Reason: "init"}
	}

	// 4. Invalid/stale sensor or a degraded reactor suspends gas injection.
	// AIR holds its last value and is never increased while blind.
	if !in.SensorValid || in.State == fsm.Degraded {
		reason := "degraded"
		if !in.SensorValid {
			reason = "sensor invalid"
		}
		return Decision{Air: in.LastAir, CO2: 0, Reason: reason}
	}

	// 5. Nominal pass-through, clamped to the physical channel limits with
	// AIR never below its configured baseline.
	air := clamp(in.DesiredAir, in.AirBaseline, config.AirMax)
	co2 := clamp(in.DesiredCO2, config.CO2Min, config.CO2Max)
	return Decision{Air: air, CO2: co2, Reason: "run"}
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
