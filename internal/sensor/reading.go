// v0
// reading.go
package sensor

import (
	"time"
)

// Plausible pH bounds; anything outside is a transmitter fault, not chemistry.
const (
	PHMin = 0.0
	PHMax = 14.0
)

// Invalidity reasons carried on a Reading for telemetry and logs.
const (
	ReasonNone   = ""
	ReasonNoData = "no-data"
	ReasonParse  = "parse-failed"
	ReasonRange  = "out-of-range"
	ReasonStale  = "stale"
)

// Reading is a validated snapshot of one reactor's pH/DO measurement.
// Invalid readings are values, not errors: downstream logic branches on
// Valid instead of handling exceptions, so "uncertain" stays first-class.
type Reading struct {
	Reactor   string    `json:"reactorId"`
	PH        float64   `json:"ph"`
	DO        float64   `json:"do"` // monitored only, never drives control
	Timestamp time.Time `json:"timestamp"`
	Valid     bool      `json:"valid"`
	Reason    string    `json:"reason,omitempty"`
}

// Invalid builds an invalid reading placeholder for a reactor.
func Invalid(reactor, reason string) Reading {
	return Reading{Reactor: reactor, Valid: false, Reason: reason}
}

// Validate re-checks a reading against the tick time. A reading passes only
// if its source parse succeeded, pH is physically plausible, and it is no
// older than the staleness timeout. The result is a new value; Validate has
// no side effects.
func Validate(r Reading, tick time.Time, staleness time.Duration) Reading {
	if !r.Valid {
		if r.Reason == ReasonNone {
			r.Reason = ReasonParse
		}
		return r
	}
	if r.PH < PHMin || r.PH > PHMax {
		r.Valid = false
		r.Reason = ReasonRange
		return r
	}
	if tick.Sub(r.Timestamp) > staleness {
		r.Valid = false
		r.Reason = ReasonStale
		return r
	}
	r.Reason = ReasonNone
	return r
}
