// v0
// pid.go
package control

import "math"

// PIDConfig holds the per-reactor control-law tunables.
type PIDConfig struct {
	Kp float64
	Ki float64
	Kd float64

	IntegratorMin float64
	IntegratorMax float64
	OutputMin     float64
	OutputMax     float64
	Deadband      float64
}

// PIDState is the mutable controller memory. One instance per reactor,
// owned by that reactor's pipeline and never shared.
type PIDState struct {
	Integrator float64
	PrevErr    float64
	PrevOutput float64
	HasPrev    bool
}

// Reset clears the controller memory. Called on INIT entry and whenever a
// reactor is disabled then re-enabled.
func (s *PIDState) Reset() {
	s.Integrator = 0
	s.PrevErr = 0
	s.PrevOutput = 0
	s.HasPrev = false
}

// Update evaluates one PID step.
//
//	err = measured pH - setpoint
//	+u  -> pH too high -> CO2 injection (mapped by the caller)
//	-u  -> pH too low  -> AIR above baseline
//
// Inside the deadband the error is treated as zero and the returned output
// is zero, so the actuators never chatter around the setpoint. The
// integrator is clamped before the output is computed: a single error spike
// cannot latch a saturated integrator that then refuses to unwind.
//
// Update is a pure function of its inputs plus the caller-owned state. It
// performs no staleness check; the state machine must never invoke it with
// an invalid reading.
func Update(cfg PIDConfig, st *PIDState, measured, setpoint, dt float64) float64 {
	err := measured - setpoint
	if math.Abs(err) < cfg.Deadband {
		st.PrevErr = 0
		st.HasPrev = true
		st.PrevOutput = 0
		return 0
	}

	st.Integrator = clamp(st.Integrator+err*dt, cfg.IntegratorMin, cfg.IntegratorMax)

	var dTerm float64
	if st.HasPrev {
		dTerm = cfg.Kd * (err - st.PrevErr)
	}

	u := cfg.Kp*err + cfg.Ki*st.Integrator + dTerm
	u = clamp(u, cfg.OutputMin, cfg.OutputMax)

	st.PrevErr = err
	st.HasPrev = true
	st.PrevOutput = u
	return u
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
