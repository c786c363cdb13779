// v0
// commands.go
package supervisor

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/MaulikItaliya/phreg/internal/alarm"
	"github.com/MaulikItaliya/phreg/internal/config"
)

// Runtime-mutable fields an operator command may target.
const (
	FieldSetpoint = "setpoint"
	FieldBaseline = "baseline"
	FieldEnabled  = "enabled"
)

// ErrUnknownReactor is returned for commands naming an unconfigured reactor.
var ErrUnknownReactor = errors.New("unknown reactorId")

// ErrUnknownField is returned for commands targeting an unsupported field.
var ErrUnknownField = errors.New("unknown command field")

// ErrOutOfRange is returned when a command value fails range validation.
var ErrOutOfRange = errors.New("value outside permitted range")

// Command is one validated operator command. Commands are queued by the
// I/O layer and drained by the supervisor at the next tick boundary, so a
// command is either fully visible to a tick or not visible at all.
type Command struct {
	ID         string    `json:"id"`
	Reactor    string    `json:"reactorId"`
	Field      string    `json:"field"`
	Value      float64   `json:"value,omitempty"`
	Enable     bool      `json:"enable,omitempty"`
	ReceivedAt time.Time `json:"receivedAt"`
}

// Enqueue validates and queues an operator command. Invalid commands are
// rejected here and never reach the tick loop; they cannot disturb other
// reactors.
func (s *Supervisor) Enqueue(reactor, field string, value float64, enable bool) (Command, error) {
	if err := s.validateCommand(reactor, field, value); err != nil {
		s.met.CommandRejected()
		s.lg.Warn("command rejected", "reactor", reactor, "field", field, "error", err)
		return Command{}, err
	}
	cmd := Command{
		ID:         uuid.New().String(),
		Reactor:    reactor,
		Field:      field,
		Value:      value,
		Enable:     enable,
		ReceivedAt: time.Now(),
	}
	s.mu.Lock()
	s.queue = append(s.queue, cmd)
	s.mu.Unlock()
	s.lg.Info("command queued", "id", cmd.ID, "reactor", reactor, "field", field, "value", value, "enable", enable)
	return cmd, nil
}

func (s *Supervisor) validateCommand(reactor, field string, value float64) error {
	if _, ok := s.cfg.Reactor(reactor); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownReactor, reactor)
	}
	switch field {
	case FieldSetpoint:
		if value < s.cfg.SetpointMin || value > s.cfg.SetpointMax {
			return fmt.Errorf("%w: setpoint %.2f not in %.2f..%.2f", ErrOutOfRange, value, s.cfg.SetpointMin, s.cfg.SetpointMax)
		}
	case FieldBaseline:
		if value < config.AirMin || value > config.AirMax {
			return fmt.Errorf("%w: baseline %.1f not in %.1f..%.1f", ErrOutOfRange, value, config.AirMin, config.AirMax)
		}
	case FieldEnabled:
		// no range to check
	default:
		return fmt.Errorf("%w: %s", ErrUnknownField, field)
	}
	return nil
}

// applyQueued drains the queue at a tick boundary, applying commands in
// receipt order. Values are re-validated against the live configuration;
// a rejection affects only the offending command.
func (s *Supervisor) applyQueued(now time.Time) {
	s.mu.Lock()
	pending := s.queue
	s.queue = nil
	s.mu.Unlock()

	for _, cmd := range pending {
		r := s.runtimeFor(cmd.Reactor)
		if r == nil {
			s.met.CommandRejected()
			continue
		}
		if err := s.validateCommand(cmd.Reactor, cmd.Field, cmd.Value); err != nil {
			s.met.CommandRejected()
			r.alarms.Update(alarm.ConfigInvalid, true, now)
			s.lg.Warn("queued command invalid at apply", "id", cmd.ID, "error", err)
			continue
		}
		r.alarms.Update(alarm.ConfigInvalid, false, now)

		switch cmd.Field {
		case FieldSetpoint:
			r.cfg.Setpoint = cmd.Value
			s.lg.Info("setpoint applied", "reactor", cmd.Reactor, "setpoint", cmd.Value)
		case FieldBaseline:
			r.cfg.AirBaseline = cmd.Value
			s.lg.Info("air baseline applied", "reactor", cmd.Reactor, "baseline", cmd.Value)
		case FieldEnabled:
			s.applyEnable(r, cmd.Enable)
		}
	}
}

// applyEnable toggles a reactor. Re-enabling is the external intervention
// that releases a FAILSAFE: the pipeline restarts from INIT with fresh PID
// state and a new hardware bring-up.
func (s *Supervisor) applyEnable(r *reactorRuntime, enable bool) {
	if r.cfg.Enabled == enable {
		return
	}
	r.cfg.Enabled = enable
	if enable {
		r.machine.Reset()
		r.pid.Reset()
		r.commFails = 0
		r.failsafeCause = ""
		r.lastAir = 0
		r.lastCO2 = 0
		s.lg.Info("reactor re-enabled; restarting from INIT", "reactor", r.cfg.Name)
		return
	}
	s.lg.Info("reactor disabled; outputs isolated", "reactor", r.cfg.Name)
}

func (s *Supervisor) runtimeFor(name string) *reactorRuntime {
	for _, r := range s.reactors {
		if r.cfg.Name == name {
			return r
		}
	}
	return nil
}
