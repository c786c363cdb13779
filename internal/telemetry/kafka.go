// v0
// kafka.go
package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/segmentio/kafka-go"

	"github.com/MaulikItaliya/phreg/internal/config"
	"github.com/MaulikItaliya/phreg/internal/supervisor"
)

// KafkaSink publishes per-tick reactor snapshots to a Kafka topic, keyed by
// reactor id so each reactor's history lands on a stable partition.
// Publishing is best-effort: the supervisor logs and counts failures but a
// dead broker never touches control flow.
type KafkaSink struct {
	lg     *slog.Logger
	writer *kafka.Writer
}

// NewKafkaSink builds the snapshot writer.
func NewKafkaSink(cfg *config.AppConfig, lg *slog.Logger) *KafkaSink {
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.TelemetryTopic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		Async:        false,
	}
	return &KafkaSink{
		lg:     lg.With("component", "telemetry"),
		writer: w,
	}
}

// Publish writes one reactor snapshot.
func (k *KafkaSink) Publish(ctx context.Context, snap supervisor.Snapshot) error {
	b, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	return k.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(snap.Reactor),
		Value: b,
	})
}

// Close flushes and closes the writer.
func (k *KafkaSink) Close() error {
	err := k.writer.Close()
	k.lg.Info("telemetry writer closed")
	return err
}
