// v0
// fsm.go
package fsm

// State is a reactor's position in the control lifecycle. One machine per
// reactor; no state is shared across reactors.
type State int

const (
	Init State = iota
	Run
	Degraded
	Failsafe
)

func (s State) String() string {
	switch s {
	case Init:
		return "INIT"
	case Run:
		return "RUN"
	case Degraded:
		return "DEGRADED"
	case Failsafe:
		return "FAILSAFE"
	default:
		return "UNKNOWN"
	}
}

// Input carries the per-tick observations the machine transitions on.
type Input struct {
	SensorValid bool
	CommFailing bool // last actuator write failed after bounded retries
	// Unrecoverable escalates straight to FAILSAFE: repeated write failures
	// past the configured limit, or an invalid hardware configuration.
	Unrecoverable bool
}

// Machine implements the INIT/RUN/DEGRADED/FAILSAFE transition table.
// FAILSAFE is terminal until an external restart; there is no automatic
// recovery path out of it.
type Machine struct {
	state      State
	cleanTicks int
}

// New returns a machine in INIT. No control action is permitted until the
// hardware init outcome is reported.
func New() *Machine {
	return &Machine{state: Init}
}

// State returns the current state.
func (m *Machine) State() State { return m.state }

// Reset puts the machine back to INIT. Used when a reactor is re-enabled
// after an operator disable.
func (m *Machine) Reset() {
	m.state = Init
	m.cleanTicks = 0
}

// HardwareReady moves INIT -> RUN once serial/MFC setup succeeded.
func (m *Machine) HardwareReady() {
	if m.state == Init {
		m.state = Run
		m.cleanTicks = 0
	}
}

// HardwareFailed moves INIT -> FAILSAFE when setup could not complete.
func (m *Machine) HardwareFailed() {
	if m.state == Init {
		m.state = Failsafe
	}
}

// Step advances the machine for one tick. Transitions take effect
// immediately in the tick they are detected; FAILSAFE in particular is
// never deferred.
func (m *Machine) Step(in Input) State {
	switch m.state {
	case Init, Failsafe:
		// INIT leaves only via HardwareReady/HardwareFailed; FAILSAFE is terminal.
	case Run:
		if in.Unrecoverable {
			m.state = Failsafe
		} else if !in.SensorValid || in.CommFailing {
			m.state = Degraded
			m.cleanTicks = 0
		}
	case Degraded:
		if in.Unrecoverable {
			m.state = Failsafe
		} else if in.SensorValid && !in.CommFailing {
			// The fault must stay clear for one full tick before resuming.
			if m.cleanTicks >= 1 {
				m.state = Run
				m.cleanTicks = 0
			} else {
				m.cleanTicks++
			}
		} else {
			m.cleanTicks = 0
		}
	}
	return m.state
}
