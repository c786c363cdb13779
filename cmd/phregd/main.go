// v0
// cmd/phregd/main.go
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MaulikItaliya/phreg/internal/breaker"
	"github.com/MaulikItaliya/phreg/internal/config"
	"github.com/MaulikItaliya/phreg/internal/httpapi"
	"github.com/MaulikItaliya/phreg/internal/ingest"
	"github.com/MaulikItaliya/phreg/internal/logging"
	"github.com/MaulikItaliya/phreg/internal/observability"
	"github.com/MaulikItaliya/phreg/internal/supervisor"
	"github.com/MaulikItaliya/phreg/internal/telemetry"
	"github.com/MaulikItaliya/phreg/internal/transport"
)

func main() {
	noMFC := flag.Bool("no-mfc", false, "run MM44 only; log flow commands instead of writing the bus")
	flag.Parse()

	lg, lf := logging.Init()
	defer func(lf *os.File) {
		if err := lf.Close(); err != nil {
			lg.Error("log file close", "error", err)
		}
	}(lf)
	lg.Info("PHREG controller starting")

	cfg, err := config.LoadEnvAndFiles()
	if err != nil {
		lg.Error("config", "error", err)
		os.Exit(1)
	}
	reactorNames := make([]string, 0, len(cfg.Reactors))
	for _, r := range cfg.Reactors {
		reactorNames = append(reactorNames, r.Name)
	}
	lg.Info("config loaded", "reactors", reactorNames, "tick", cfg.TickInterval.String())

	met := observability.NewMetrics()

	var tr supervisor.Transport
	var bus interface{ BreakerState() breaker.State }
	var pool *transport.MFCPool
	if *noMFC {
		lg.Info("running without MFC bus (dry run)")
		noop := transport.NewNoop(lg)
		tr, bus = noop, noop
	} else {
		pool, err = transport.NewMFCPool(cfg, lg)
		if err != nil {
			lg.Error("mfc", "error", err)
			os.Exit(1)
		}
		tr, bus = pool, pool
	}

	src := ingest.New(cfg, lg, met)
	if err := src.Start(); err != nil {
		lg.Error("ingest", "error", err)
		os.Exit(1)
	}
	defer src.Stop()

	var tel supervisor.Telemetry
	var sink *telemetry.KafkaSink
	if len(cfg.KafkaBrokers) > 0 {
		sink = telemetry.NewKafkaSink(cfg, lg)
		tel = sink
		lg.Info("telemetry enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.TelemetryTopic)
	} else {
		lg.Info("telemetry disabled (no KAFKA_BROKERS)")
	}

	sup := supervisor.New(cfg, lg, src, tr, tel, met)

	ctx, cancel := context.WithCancel(context.Background())
	loopDone := make(chan struct{})
	go func() {
		sup.Run(ctx)
		close(loopDone)
	}()

	go func() {
		t := time.NewTicker(cfg.TickInterval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				met.SetBreakerState("mfc-bus", int(bus.BreakerState()))
			}
		}
	}()

	srv := httpapi.NewServer(cfg, lg, sup, met)
	go func() {
		if err := srv.Start(); err != nil {
			lg.Warn("http server stopped", "error", err)
		}
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	<-sigs
	lg.Info("shutdown requested; parking all reactors before exit")

	cancel()
	shCtx, shCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shCancel()

	// The loop parks every reactor (CO2=0, AIR=safe-minimum) before it
	// returns; nothing below may release a transport until that finished.
	select {
	case <-loopDone:
	case <-shCtx.Done():
		lg.Error("control loop did not exit within the shutdown budget")
	}

	if err := srv.Stop(shCtx); err != nil {
		lg.Warn("http stop", "error", err)
	}
	if sink != nil {
		if err := sink.Close(); err != nil {
			lg.Warn("telemetry close", "error", err)
		}
	}
	if pool != nil {
		if err := pool.Close(); err != nil {
			lg.Warn("mfc close", "error", err)
		}
	}
	lg.Info("PHREG controller stopped")
}
