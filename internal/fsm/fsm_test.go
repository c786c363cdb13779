// v0
// fsm_test.go
package fsm

import "testing"

func TestInitTransitions(t *testing.T) {
	t.Run("hardware ready enters RUN", func(t *testing.T) {
		m := New()
		if m.State() != Init {
			t.Fatalf("new machine must start in INIT, got %s", m.State())
		}
		m.HardwareReady()
		if m.State() != Run {
			t.Fatalf("expected RUN, got %s", m.State())
		}
	})
	t.Run("hardware failure enters FAILSAFE", func(t *testing.T) {
		m := New()
		m.HardwareFailed()
		if m.State() != Failsafe {
			t.Fatalf("expected FAILSAFE, got %s", m.State())
		}
	})
	t.Run("step does not leave INIT", func(t *testing.T) {
		m := New()
		m.Step(Input{SensorValid: true})
		if m.State() != Init {
			t.Fatalf("INIT must only leave via hardware outcome, got %s", m.State())
		}
	})
}

func TestRunDegradesOnFault(t *testing.T) {
	cases := []struct {
		name string
		in   Input
	}{
		{"sensor invalid", Input{SensorValid: false}},
		{"actuator comm failing", Input{SensorValid: true, CommFailing: true}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := New()
			m.HardwareReady()
			if got := m.Step(tc.in); got != Degraded {
				t.Fatalf("expected DEGRADED, got %s", got)
			}
		})
	}
}

func TestDegradedRecoveryNeedsFullCleanTick(t *testing.T) {
	m := New()
	m.HardwareReady()
	m.Step(Input{SensorValid: false})
	if m.State() != Degraded {
		t.Fatalf("setup: expected DEGRADED")
	}

	clean := Input{SensorValid: true}
	if got := m.Step(clean); got != Degraded {
		t.Fatalf("first clean tick must stay DEGRADED, got %s", got)
	}
	if got := m.Step(clean); got != Run {
		t.Fatalf("second clean tick must resume RUN, got %s", got)
	}
}

func TestDegradedRecoveryResetsOnRelapse(t *testing.T) {
	m := New()
	m.HardwareReady()
	m.Step(Input{SensorValid: false})
	m.Step(Input{SensorValid: true})  // clean tick counted
	m.Step(Input{SensorValid: false}) // relapse clears the streak
	if got := m.Step(Input{SensorValid: true}); got != Degraded {
		t.Fatalf("relapse must restart the clean-tick requirement, got %s", got)
	}
}

func TestUnrecoverableEntersFailsafeImmediately(t *testing.T) {
	for _, from := range []State{Run, Degraded} {
		m := New()
		m.HardwareReady()
		if from == Degraded {
			m.Step(Input{SensorValid: false})
		}
		if got := m.Step(Input{SensorValid: true, CommFailing: true, Unrecoverable: true}); got != Failsafe {
			t.Fatalf("from %s: expected FAILSAFE, got %s", from, got)
		}
	}
}

func TestFailsafeIsTerminal(t *testing.T) {
	m := New()
	m.HardwareReady()
	m.Step(Input{Unrecoverable: true})
	for i := 0; i < 10; i++ {
		if got := m.Step(Input{SensorValid: true}); got != Failsafe {
			t.Fatalf("tick %d: FAILSAFE must not self-recover, got %s", i, got)
		}
	}
}

func TestResetReturnsToInit(t *testing.T) {
	m := New()
	m.HardwareReady()
	m.Step(Input{Unrecoverable: true})
	m.Reset()
	if m.State() != Init {
		t.Fatalf("expected INIT after reset, got %s", m.State())
	}
}

func TestStateString(t *testing.T) {
	want := map[State]string{Init: "INIT", Run: "RUN", Degraded: "DEGRADED", Failsafe: "FAILSAFE"}
	for st, s := range want {
		if st.String() != s {
			t.Fatalf("state %d: got %s want %s", int(st), st.String(), s)
		}
	}
}
