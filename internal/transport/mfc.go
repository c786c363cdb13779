// v0
// mfc.go
package transport

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/goburrow/modbus"

	"github.com/MaulikItaliya/phreg/internal/breaker"
	"github.com/MaulikItaliya/phreg/internal/config"
)

// MFC holding registers (instrument-specific, hi_lo float word order).
const (
	RegFlowActual uint16 = 0x0000
	RegValveCmd   uint16 = 0x000A
	RegCtrlMode   uint16 = 0x000E
)

// CtrlModeDigital selects setpoint-over-bus operation on the MFC.
const CtrlModeDigital uint16 = 1

// Gas channel names on the wire and in telemetry.
const (
	ChannelAir = "AIR"
	ChannelCO2 = "CO2"
)

// MFCPool drives all mass-flow controllers on one RTU bus. The serial line
// is shared, so every transaction swaps the slave id under a mutex. Writes
// are retried a bounded number of times and guarded by a circuit breaker;
// the pool never blocks a control tick indefinitely.
type MFCPool struct {
	cfg *config.AppConfig
	lg  *slog.Logger
	brk *breaker.Breaker

	mu      sync.Mutex
	handler *modbus.RTUClientHandler
	client  modbus.Client

	units map[string]byte // "<reactor>/<channel>" -> modbus unit id
}

// NewMFCPool opens the RTU port and indexes the per-reactor unit ids.
func NewMFCPool(cfg *config.AppConfig, lg *slog.Logger) (*MFCPool, error) {
	handler := modbus.NewRTUClientHandler(cfg.MFCPort)
	handler.BaudRate = cfg.MFCBaud
	handler.DataBits = 8
	handler.Parity = "N"
	handler.StopBits = 2
	handler.Timeout = cfg.MFCTimeout

	if err := handler.Connect(); err != nil {
		return nil, fmt.Errorf("open MFC port %s: %w", cfg.MFCPort, err)
	}

	p := &MFCPool{
		cfg:     cfg,
		lg:      lg.With("component", "mfc-pool"),
		handler: handler,
		client:  modbus.NewClient(handler),
		units:   map[string]byte{},
	}
	for _, r := range cfg.Reactors {
		p.units[unitKey(r.Name, ChannelAir)] = byte(r.AirAddr)
		p.units[unitKey(r.Name, ChannelCO2)] = byte(r.CO2Addr)
	}
	p.brk = breaker.New("mfc-bus", breaker.Config{
		MaxFailures:  cfg.CommFailLimit,
		ResetTimeout: 10 * time.Second,
	}, lg, p.probe)
	p.lg.Info("mfc pool ready", "port", cfg.MFCPort, "baud", cfg.MFCBaud, "units", len(p.units))
	return p, nil
}

// Init puts both of a reactor's MFCs into digital control mode and verifies
// the bus answers by reading back the actual flow. Called once per reactor
// at INIT; failure sends that reactor to FAILSAFE.
func (p *MFCPool) Init(ctx context.Context, reactor string) error {
	for _, ch := range []string{ChannelAir, ChannelCO2} {
		unit, ok := p.units[unitKey(reactor, ch)]
		if !ok {
			return fmt.Errorf("no MFC unit mapped for %s/%s", reactor, ch)
		}
		if err := p.withRetries(ctx, func() error {
			p.mu.Lock()
			defer p.mu.Unlock()
			p.handler.SlaveId = unit
			if _, err := p.client.WriteSingleRegister(RegCtrlMode, CtrlModeDigital); err != nil {
				return err
			}
			_, err := p.client.ReadHoldingRegisters(RegFlowActual, 2)
			return err
		}); err != nil {
			return fmt.Errorf("init %s/%s (unit %d): %w", reactor, ch, unit, err)
		}
	}
	return nil
}

// WriteFlow commands a flow value on one gas channel. The float is packed
// hi_lo into two holding registers, the way the instruments expect it.
func (p *MFCPool) WriteFlow(ctx context.Context, reactor, channel string, value float64) error {
	unit, ok := p.units[unitKey(reactor, channel)]
	if !ok {
		return fmt.Errorf("no MFC unit mapped for %s/%s", reactor, channel)
	}
	return p.brk.Execute(ctx, func(ctx context.Context) error {
		return p.withRetries(ctx, func() error {
			p.mu.Lock()
			defer p.mu.Unlock()
			p.handler.SlaveId = unit
			_, err := p.client.WriteMultipleRegisters(RegValveCmd, 2, packFloat32(value))
			return err
		})
	})
}

// BreakerState exposes the bus breaker state for the metrics gauge.
func (p *MFCPool) BreakerState() breaker.State { return p.brk.State() }

// Close releases the serial port.
func (p *MFCPool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.handler.Close()
}

// probe reads the actual-flow register of the first mapped unit to check
// the bus is back before the breaker closes again.
func (p *MFCPool) probe(ctx context.Context) error {
	for _, unit := range p.units {
		p.mu.Lock()
		p.handler.SlaveId = unit
		_, err := p.client.ReadHoldingRegisters(RegFlowActual, 2)
		p.mu.Unlock()
		return err
	}
	return nil
}

func (p *MFCPool) withRetries(ctx context.Context, op func() error) error {
	var lastErr error
	for attempt := 0; attempt < p.cfg.WriteRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if lastErr = op(); lastErr == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.cfg.RetryBackoff):
		}
	}
	return fmt.Errorf("after %d attempts: %w", p.cfg.WriteRetries, lastErr)
}

func packFloat32(v float64) []byte {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, math.Float32bits(float32(v)))
	return buf
}

func unitKey(reactor, channel string) string { return reactor + "/" + channel }
