// v0
// alarm.go
package alarm

import (
	"sort"
	"time"
)

// Kind identifies the fault class behind an alarm.
type Kind string

const (
	StaleSensor     Kind = "STALE_SENSOR"
	ActuatorComm    Kind = "ACTUATOR_COMM_FAILURE"
	ReactorDisabled Kind = "REACTOR_DISABLED"
	ConfigInvalid   Kind = "CONFIG_INVALID"
)

// Alarm is one level-triggered alarm entry for a reactor.
type Alarm struct {
	Kind      Kind      `json:"kind"`
	Reactor   string    `json:"reactorId"`
	RaisedAt  time.Time `json:"raisedAt"`
	ClearedAt time.Time `json:"clearedAt,omitempty"`
	Active    bool      `json:"active"`
}

// Set tracks the alarms of a single reactor. Alarms raise immediately but
// only clear after their condition has been observed clear for one full
// tick, so a flapping fault cannot blink in and out of the alarm list.
type Set struct {
	reactor     string
	alarms      map[Kind]*Alarm
	clearStreak map[Kind]int
}

// NewSet builds an empty alarm set for a reactor.
func NewSet(reactor string) *Set {
	return &Set{
		reactor:     reactor,
		alarms:      map[Kind]*Alarm{},
		clearStreak: map[Kind]int{},
	}
}

// Update feeds one tick's observation of a fault condition into the set.
func (s *Set) Update(k Kind, conditionActive bool, now time.Time) {
	a := s.alarms[k]
	if conditionActive {
		s.clearStreak[k] = 0
		if a == nil || !a.Active {
			s.alarms[k] = &Alarm{Kind: k, Reactor: s.reactor, RaisedAt: now, Active: true}
		}
		return
	}
	if a == nil || !a.Active {
		return
	}
	s.clearStreak[k]++
	if s.clearStreak[k] >= 2 {
		a.Active = false
		a.ClearedAt = now
		s.clearStreak[k] = 0
	}
}

// IsActive reports whether an alarm of the given kind is currently raised.
func (s *Set) IsActive(k Kind) bool {
	a := s.alarms[k]
	return a != nil && a.Active
}

// Active returns the currently raised alarms, ordered by kind for stable
// telemetry output.
func (s *Set) Active() []Alarm {
	out := make([]Alarm, 0, len(s.alarms))
	for _, a := range s.alarms {
		if a.Active {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Kind < out[j].Kind })
	return out
}

// All returns every alarm ever raised, active or cleared, ordered by kind.
func (s *Set) All() []Alarm {
	out := make([]Alarm, 0, len(s.alarms))
	for _, a := range s.alarms {
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Kind < out[j].Kind })
	return out
}
