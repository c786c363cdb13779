// v0
// noop.go
package transport

import (
	"context"
	"log/slog"

	"github.com/MaulikItaliya/phreg/internal/breaker"
)

// Noop is the --no-mfc transport: it accepts every command and only logs.
// Used for MM44-only bench runs where no gas hardware is attached.
type Noop struct {
	lg *slog.Logger
}

// NewNoop builds the logging-only transport.
func NewNoop(lg *slog.Logger) *Noop {
	return &Noop{lg: lg.With("component", "mfc-noop")}
}

func (n *Noop) Init(ctx context.Context, reactor string) error { return nil }

func (n *Noop) WriteFlow(ctx context.Context, reactor, channel string, value float64) error {
	n.lg.Info("flow command (dry run)", "reactor", reactor, "channel", channel, "value", value)
	return nil
}

func (n *Noop) BreakerState() breaker.State { return breaker.Closed }

func (n *Noop) Close() error { return nil }
