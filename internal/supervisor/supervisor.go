// v0
// supervisor.go
package supervisor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/MaulikItaliya/phreg/internal/alarm"
	"github.com/MaulikItaliya/phreg/internal/config"
	"github.com/MaulikItaliya/phreg/internal/control"
	"github.com/MaulikItaliya/phreg/internal/fsm"
	"github.com/MaulikItaliya/phreg/internal/observability"
	"github.com/MaulikItaliya/phreg/internal/safety"
	"github.com/MaulikItaliya/phreg/internal/sensor"
)

// Gas channel names on emitted actuator commands.
const (
	ChannelAir = "AIR"
	ChannelCO2 = "CO2"
)

// SensorSource hands the supervisor the latest reading per reactor. The
// kernel never talks to a transport itself.
type SensorSource interface {
	Latest(reactor string) (sensor.Reading, bool)
}

// Transport carries actuator commands to hardware. Implementations must
// bound every call with their own timeouts and retries; an error here means
// the bounded retries are already exhausted.
type Transport interface {
	Init(ctx context.Context, reactor string) error
	WriteFlow(ctx context.Context, reactor, channel string, value float64) error
}

// Telemetry receives one snapshot per reactor per tick. Publishing is
// best-effort and must never influence control flow.
type Telemetry interface {
	Publish(ctx context.Context, snap Snapshot) error
}

// ActuatorCommand is one issued flow command. Seq strictly increases per
// (reactor, channel) so consumers can detect gaps and replays.
type ActuatorCommand struct {
	Reactor  string    `json:"reactorId"`
	Channel  string    `json:"channel"`
	Value    float64   `json:"value"`
	Seq      uint64    `json:"seq"`
	IssuedAt time.Time `json:"issuedAt"`
}

// Snapshot is the externally observable state of one reactor after a tick.
type Snapshot struct {
	Reactor      string            `json:"reactorId"`
	State        string            `json:"state"`
	Enabled      bool              `json:"enabled"`
	Setpoint     float64           `json:"setpoint"`
	AirBaseline  float64           `json:"airBaseline"`
	Alarms       []alarm.Alarm     `json:"alarms"`
	LastReading  sensor.Reading    `json:"lastReading"`
	LastCommands []ActuatorCommand `json:"lastCommands"`
	Reason       string            `json:"reason"`
	Tick         uint64            `json:"tick"`
	Timestamp    time.Time         `json:"timestamp"`
}

// reactorRuntime is one reactor's pipeline state. It is touched only by the
// tick goroutine; command handlers reach it solely through the queue.
type reactorRuntime struct {
	cfg     config.ReactorConfig
	machine *fsm.Machine
	pid     control.PIDState
	alarms  *alarm.Set

	reading  sensor.Reading
	lastAir  float64
	lastCO2  float64
	lastCmds []ActuatorCommand
	seq      map[string]uint64

	commFails     int    // consecutive ticks whose actuator writes failed
	failsafeCause string // "" until the reactor latched FAILSAFE
	lastReason    string
}

// Supervisor drives the control tick across all configured reactors.
// Reactors are mutually isolated: each owns disjoint state and a fault in
// one never blocks or corrupts another.
type Supervisor struct {
	cfg *config.AppConfig
	lg  *slog.Logger
	src SensorSource
	tr  Transport
	tel Telemetry // optional
	met *observability.Metrics

	reactors []*reactorRuntime

	mu    sync.Mutex // guards queue and snaps; reactor state stays tick-private
	queue []Command
	snaps map[string]Snapshot

	tick     uint64
	lastTick time.Time
}

// New wires the supervisor. tel may be nil when no telemetry sink is
// configured.
func New(cfg *config.AppConfig, lg *slog.Logger, src SensorSource, tr Transport, tel Telemetry, met *observability.Metrics) *Supervisor {
	s := &Supervisor{
		cfg:   cfg,
		lg:    lg.With("component", "supervisor"),
		src:   src,
		tr:    tr,
		tel:   tel,
		met:   met,
		snaps: map[string]Snapshot{},
	}
	for _, rc := range cfg.Reactors {
		s.reactors = append(s.reactors, &reactorRuntime{
			cfg:     rc,
			machine: fsm.New(),
			alarms:  alarm.NewSet(rc.Name),
			seq:     map[string]uint64{},
		})
	}
	return s
}

// Run executes the tick loop until the context is cancelled, then parks
// every reactor before returning. Cancellation takes effect at a tick
// boundary: the in-flight tick completes, and the final safe writes run on
// this goroutine so they never interleave with reactor state updates.
func (s *Supervisor) Run(ctx context.Context) {
	s.lg.Info("control loop starting", "interval", s.cfg.TickInterval.String(), "reactors", len(s.reactors))
	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			// Each write inside Shutdown is bounded by writeBudget, so
			// parking terminates even with a dead bus.
			s.Shutdown(context.Background())
			s.lg.Info("control loop exited")
			return
		case now := <-ticker.C:
			s.Tick(ctx, now)
		}
	}
}

// Tick runs one complete synchronous control cycle: queued commands are
// applied first, then every reactor pipeline is evaluated to completion.
func (s *Supervisor) Tick(ctx context.Context, now time.Time) {
	dt := now.Sub(s.lastTick)
	if s.lastTick.IsZero() || dt <= 0 {
		dt = s.cfg.TickInterval
	}

	s.applyQueued(now)

	for _, r := range s.reactors {
		s.tickReactor(ctx, r, now, dt)
	}

	s.lastTick = now
	s.met.TickCompleted()

	s.mu.Lock()
	s.tick++
	for _, r := range s.reactors {
		snap := s.snapshotFor(r, now)
		s.snaps[r.cfg.Name] = snap
	}
	snaps := make([]Snapshot, 0, len(s.reactors))
	for _, r := range s.reactors {
		snaps = append(snaps, s.snaps[r.cfg.Name])
	}
	s.mu.Unlock()

	if s.tel != nil {
		for _, snap := range snaps {
			pctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
			if err := s.tel.Publish(pctx, snap); err != nil {
				s.met.TelemetryError()
				s.lg.Warn("telemetry publish failed", "reactor", snap.Reactor, "error", err)
			}
			cancel()
		}
	}
}

// tickReactor runs one reactor's pipeline: reading -> state machine ->
// (if permitted) PID -> rate limiter -> safety arbiter -> transport.
func (s *Supervisor) tickReactor(ctx context.Context, r *reactorRuntime, now time.Time, dt time.Duration) {
	name := r.cfg.Name

	// INIT: bring up hardware, no control action this tick.
	if r.machine.State() == fsm.Init && r.cfg.Enabled {
		ictx, cancel := context.WithTimeout(ctx, s.writeBudget())
		err := s.tr.Init(ictx, name)
		cancel()
		if err != nil {
			r.machine.HardwareFailed()
			r.failsafeCause = "hardware-init"
			s.lg.Error("hardware init failed", "reactor", name, "error", err)
		} else {
			r.machine.HardwareReady()
			r.lastAir = r.cfg.AirBaseline
			r.lastCO2 = 0
			s.lg.Info("hardware init ok", "reactor", name)
		}
	}

	raw, ok := s.src.Latest(name)
	if !ok {
		raw = sensor.Invalid(name, sensor.ReasonNoData)
	}
	reading := sensor.Validate(raw, now, r.cfg.Staleness)
	r.reading = reading

	st := r.machine.Step(fsm.Input{
		SensorValid:   reading.Valid,
		CommFailing:   r.commFails > 0,
		Unrecoverable: r.commFails >= s.cfg.CommFailLimit,
	})
	if st == fsm.Failsafe && r.failsafeCause == "" {
		r.failsafeCause = "actuator-comm"
	}

	// Control law only runs for an enabled reactor in RUN with a valid
	// reading; everything else flows through the arbiter as a safe default.
	desiredAir, desiredCO2 := r.cfg.AirBaseline, 0.0
	if st == fsm.Run && r.cfg.Enabled && reading.Valid {
		u := control.Update(pidConfig(r.cfg), &r.pid, reading.PH, r.cfg.Setpoint, dt.Seconds())
		wantAir, wantCO2 := control.SplitRange(u, r.cfg.AirBaseline, config.AirMax, config.CO2Max, r.cfg.Mode == config.ModeCO2Only)
		desiredAir = control.RateLimit(wantAir, r.lastAir, r.cfg.AirSlewPerS, dt)
		desiredCO2 = control.RateLimit(wantCO2, r.lastCO2, r.cfg.CO2SlewPerS, dt)
	}

	dec := safety.Arbitrate(safety.Inputs{
		Enabled:     r.cfg.Enabled,
		State:       st,
		SensorValid: reading.Valid,
		DesiredAir:  desiredAir,
		DesiredCO2:  desiredCO2,
		AirBaseline: r.cfg.AirBaseline,
		LastAir:     r.lastAir,
	})

	if err := s.issue(ctx, r, now, dec); err != nil {
		r.commFails++
		s.met.CommFailure(name)
		s.lg.Warn("actuator write failed", "reactor", name, "consecutive", r.commFails, "error", err)

		// Escalation is synchronous: re-step with the fresh failure so a
		// FAILSAFE latches in the same tick it was detected.
		st = r.machine.Step(fsm.Input{
			SensorValid:   reading.Valid,
			CommFailing:   true,
			Unrecoverable: r.commFails >= s.cfg.CommFailLimit,
		})
		if st == fsm.Failsafe {
			if r.failsafeCause == "" {
				r.failsafeCause = "actuator-comm"
			}
			forced := safety.Arbitrate(safety.Inputs{
				Enabled:     r.cfg.Enabled,
				State:       st,
				SensorValid: reading.Valid,
				AirBaseline: r.cfg.AirBaseline,
				LastAir:     r.lastAir,
			})
			// Best effort: the bus may be down, but we still try to park
			// the valves before giving up on this reactor.
			_ = s.issue(ctx, r, now, forced)
			dec = forced
		}
	} else {
		r.commFails = 0
	}
	r.lastReason = dec.Reason

	r.alarms.Update(alarm.StaleSensor, !reading.Valid, now)
	r.alarms.Update(alarm.ActuatorComm, r.commFails > 0 || r.failsafeCause != "", now)
	r.alarms.Update(alarm.ReactorDisabled, !r.cfg.Enabled, now)

	s.met.SetReactorState(name, int(r.machine.State()))
	for _, k := range []alarm.Kind{alarm.StaleSensor, alarm.ActuatorComm, alarm.ReactorDisabled, alarm.ConfigInvalid} {
		s.met.SetAlarm(name, string(k), r.alarms.IsActive(k))
	}
}

// issue writes both gas channels for one arbiter decision and records the
// commands. lastAir/lastCO2 always track the arbited values: failure paths
// only ever move them to safer levels.
func (s *Supervisor) issue(ctx context.Context, r *reactorRuntime, now time.Time, dec safety.Decision) error {
	pairs := []struct {
		ch  string
		val float64
	}{
		{ChannelAir, dec.Air},
		{ChannelCO2, dec.CO2},
	}

	var firstErr error
	cmds := make([]ActuatorCommand, 0, 2)
	for _, p := range pairs {
		r.seq[p.ch]++
		cmd := ActuatorCommand{
			Reactor:  r.cfg.Name,
			Channel:  p.ch,
			Value:    p.val,
			Seq:      r.seq[p.ch],
			IssuedAt: now,
		}
		cmds = append(cmds, cmd)

		wctx, cancel := context.WithTimeout(ctx, s.writeBudget())
		err := s.tr.WriteFlow(wctx, r.cfg.Name, p.ch, p.val)
		cancel()
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		s.met.CommandIssued(r.cfg.Name, p.ch)
	}

	r.lastCmds = cmds
	r.lastAir = dec.Air
	r.lastCO2 = dec.CO2
	return firstErr
}

// Shutdown drives every reactor to its FAILSAFE-equivalent output before
// the transports are released. It runs even for reactors already in
// FAILSAFE. Shutdown touches reactor state, so it must never execute
// concurrently with ticks: Run calls it on the tick goroutine after
// cancellation, and callers driving Tick directly own the same constraint.
func (s *Supervisor) Shutdown(ctx context.Context) {
	s.lg.Info("safe shutdown: parking all reactors")
	for _, r := range s.reactors {
		dec := safety.Arbitrate(safety.Inputs{
			Enabled:     true,
			State:       fsm.Failsafe,
			AirBaseline: r.cfg.AirBaseline,
			LastAir:     r.lastAir,
		})
		if err := s.issue(ctx, r, time.Now(), dec); err != nil {
			s.lg.Error("shutdown write failed", "reactor", r.cfg.Name, "error", err)
		}
	}
}

// Snapshot returns the last published snapshot for a reactor.
func (s *Supervisor) Snapshot(reactor string) (Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, ok := s.snaps[reactor]
	return snap, ok
}

// Snapshots returns the last published snapshot of every reactor in
// configuration order.
func (s *Supervisor) Snapshots() []Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Snapshot, 0, len(s.reactors))
	for _, r := range s.reactors {
		if snap, ok := s.snaps[r.cfg.Name]; ok {
			out = append(out, snap)
		}
	}
	return out
}

// Ticks returns the number of completed control ticks.
func (s *Supervisor) Ticks() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tick
}

func (s *Supervisor) snapshotFor(r *reactorRuntime, now time.Time) Snapshot {
	cmds := make([]ActuatorCommand, len(r.lastCmds))
	copy(cmds, r.lastCmds)
	return Snapshot{
		Reactor:      r.cfg.Name,
		State:        r.machine.State().String(),
		Enabled:      r.cfg.Enabled,
		Setpoint:     r.cfg.Setpoint,
		AirBaseline:  r.cfg.AirBaseline,
		Alarms:       r.alarms.Active(),
		LastReading:  r.reading,
		LastCommands: cmds,
		Reason:       r.lastReason,
		Tick:         s.tick,
		Timestamp:    now,
	}
}

// writeBudget bounds one transport call: all retries plus their backoffs.
func (s *Supervisor) writeBudget() time.Duration {
	per := s.cfg.MFCTimeout + s.cfg.RetryBackoff
	return time.Duration(s.cfg.WriteRetries)*per + 100*time.Millisecond
}

func pidConfig(rc config.ReactorConfig) control.PIDConfig {
	return control.PIDConfig{
		Kp:            rc.Kp,
		Ki:            rc.Ki,
		Kd:            rc.Kd,
		IntegratorMin: rc.IntegratorMin,
		IntegratorMax: rc.IntegratorMax,
		OutputMin:     rc.OutputMin,
		OutputMax:     rc.OutputMax,
		Deadband:      rc.Deadband,
	}
}
