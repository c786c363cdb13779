// v0
// breaker_test.go
package breaker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func failing(err error) func(ctx context.Context) error {
	return func(ctx context.Context) error { return err }
}

func succeeding() func(ctx context.Context) error {
	return func(ctx context.Context) error { return nil }
}

func TestOpensAfterMaxFailures(t *testing.T) {
	b := New("mfc", Config{MaxFailures: 3, ResetTimeout: time.Minute}, quietLogger(), nil)
	boom := errors.New("timeout")
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := b.Execute(ctx, failing(boom)); !errors.Is(err, boom) {
			t.Fatalf("attempt %d: got %v", i, err)
		}
	}
	if b.State() != Open {
		t.Fatalf("expected Open after 3 failures, got %s", b.State())
	}
	if err := b.Execute(ctx, succeeding()); !errors.Is(err, ErrOpen) {
		t.Fatalf("open breaker must fast-fail, got %v", err)
	}
}

func TestSuccessResetsFailureCount(t *testing.T) {
	b := New("mfc", Config{MaxFailures: 3, ResetTimeout: time.Minute}, quietLogger(), nil)
	boom := errors.New("timeout")
	ctx := context.Background()

	b.Execute(ctx, failing(boom))
	b.Execute(ctx, failing(boom))
	b.Execute(ctx, succeeding())
	b.Execute(ctx, failing(boom))
	b.Execute(ctx, failing(boom))
	if b.State() != Closed {
		t.Fatalf("interleaved success must reset the streak, got %s", b.State())
	}
}

func TestClosesAfterProbeSucceeds(t *testing.T) {
	probes := 0
	probe := func(ctx context.Context) error { probes++; return nil }
	b := New("mfc", Config{MaxFailures: 1, ResetTimeout: 10 * time.Millisecond}, quietLogger(), probe)
	ctx := context.Background()

	b.Execute(ctx, failing(errors.New("timeout")))
	if b.State() != Open {
		t.Fatalf("setup: expected Open")
	}

	time.Sleep(20 * time.Millisecond)
	if err := b.Execute(ctx, succeeding()); err != nil {
		t.Fatalf("post-timeout execute: %v", err)
	}
	if b.State() != Closed || probes != 1 {
		t.Fatalf("expected Closed after one probe, got state=%s probes=%d", b.State(), probes)
	}
}

func TestReopensWhenProbeFails(t *testing.T) {
	probe := func(ctx context.Context) error { return errors.New("still dead") }
	b := New("mfc", Config{MaxFailures: 1, ResetTimeout: 10 * time.Millisecond}, quietLogger(), probe)
	ctx := context.Background()

	b.Execute(ctx, failing(errors.New("timeout")))
	time.Sleep(20 * time.Millisecond)
	if err := b.Execute(ctx, succeeding()); !errors.Is(err, ErrOpen) {
		t.Fatalf("failed probe must reopen, got %v", err)
	}
	if b.State() != Open {
		t.Fatalf("expected Open, got %s", b.State())
	}
}

func TestHalfOpenOpFailureReopens(t *testing.T) {
	b := New("mfc", Config{MaxFailures: 1, ResetTimeout: 10 * time.Millisecond}, quietLogger(), nil)
	ctx := context.Background()
	boom := errors.New("timeout")

	b.Execute(ctx, failing(boom))
	time.Sleep(20 * time.Millisecond)
	if err := b.Execute(ctx, failing(boom)); !errors.Is(err, boom) {
		t.Fatalf("half-open op error must surface, got %v", err)
	}
	if b.State() != Open {
		t.Fatalf("expected Open, got %s", b.State())
	}
}
