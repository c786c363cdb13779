// v0
// alarm_test.go
package alarm

import (
	"testing"
	"time"
)

func TestAlarmRaisesImmediately(t *testing.T) {
	s := NewSet("R1")
	now := time.Now()
	s.Update(StaleSensor, true, now)
	if !s.IsActive(StaleSensor) {
		t.Fatalf("alarm must raise on first observation")
	}
	active := s.Active()
	if len(active) != 1 || active[0].Kind != StaleSensor || !active[0].RaisedAt.Equal(now) {
		t.Fatalf("unexpected active set: %+v", active)
	}
}

func TestAlarmClearsAfterFullCleanTick(t *testing.T) {
	s := NewSet("R1")
	t0 := time.Now()
	s.Update(ActuatorComm, true, t0)

	s.Update(ActuatorComm, false, t0.Add(time.Second))
	if !s.IsActive(ActuatorComm) {
		t.Fatalf("alarm must persist until condition clear for a full tick")
	}
	t2 := t0.Add(2 * time.Second)
	s.Update(ActuatorComm, false, t2)
	if s.IsActive(ActuatorComm) {
		t.Fatalf("alarm must clear after two clean observations")
	}
	all := s.All()
	if len(all) != 1 || !all[0].ClearedAt.Equal(t2) {
		t.Fatalf("cleared timestamp not recorded: %+v", all)
	}
}

func TestFlappingConditionKeepsAlarmRaised(t *testing.T) {
	s := NewSet("R1")
	now := time.Now()
	s.Update(StaleSensor, true, now)
	for i := 0; i < 6; i++ {
		s.Update(StaleSensor, i%2 == 0, now.Add(time.Duration(i)*time.Second))
		if !s.IsActive(StaleSensor) {
			t.Fatalf("flapping condition must not clear the alarm (step %d)", i)
		}
	}
}

func TestReRaiseAfterClear(t *testing.T) {
	s := NewSet("R1")
	now := time.Now()
	s.Update(ReactorDisabled, true, now)
	s.Update(ReactorDisabled, false, now.Add(time.Second))
	s.Update(ReactorDisabled, false, now.Add(2*time.Second))
	if s.IsActive(ReactorDisabled) {
		t.Fatalf("setup: alarm should be clear")
	}
	t3 := now.Add(3 * time.Second)
	s.Update(ReactorDisabled, true, t3)
	if !s.IsActive(ReactorDisabled) {
		t.Fatalf("alarm must re-raise")
	}
	active := s.Active()
	if len(active) != 1 || !active[0].RaisedAt.Equal(t3) {
		t.Fatalf("re-raise must carry the new timestamp: %+v", active)
	}
}

func TestActiveIsSortedByKind(t *testing.T) {
	s := NewSet("R1")
	now := time.Now()
	s.Update(StaleSensor, true, now)
	s.Update(ActuatorComm, true, now)
	s.Update(ConfigInvalid, true, now)
	active := s.Active()
	for i := 1; i < len(active); i++ {
		if active[i-1].Kind > active[i].Kind {
			t.Fatalf("active alarms not sorted: %+v", active)
		}
	}
}
