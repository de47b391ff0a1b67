package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mfg-ops/ordrefab/lifecycle"
	"github.com/mfg-ops/ordrefab/services"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// watchContext returns the context watch runs under until it is cancelled
var watchContext = func(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func runWatch(ctx context.Context, a *app, args []string) int {
	fs := a.flags("watch")
	schedule := fs.String("schedule", a.cfg.SweepSchedule, "cron schedule of the sweep")
	metricsAddr := fs.String("metrics-addr", a.cfg.MetricsAddr, "serve /metrics on this address when set")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	ctx, stop := watchContext(ctx)
	defer stop()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics, err := lifecycle.NewMetrics(registry)
	if err != nil {
		return a.fail(err)
	}
	engine := lifecycle.NewEngine(a.client, a.orders,
		lifecycle.WithClock(clock),
		lifecycle.WithLogger(a.logger.Named("lifecycle")),
		lifecycle.WithConcurrency(a.cfg.SweepConcurrency),
		lifecycle.WithMetrics(metrics),
		lifecycle.WithGuard(a.engine.Guard()),
	)

	opts := []lifecycle.SchedulerOption{
		lifecycle.WithRefresh(),
		lifecycle.WithSchedulerLogger(a.logger.Named("scheduler")),
	}
	if a.cfg.ArchiveEnabled() {
		archive, err := services.NewS3SweepArchive(ctx, a.cfg)
		if err != nil {
			return a.fail(fmt.Errorf("sweep archive: %w", err))
		}
		opts = append(opts, lifecycle.WithSink(archive))
		a.logger.Info("archiving sweep reports", zap.String("bucket", a.cfg.AWSS3Bucket))
	}
	scheduler, err := lifecycle.NewScheduler(engine, *schedule, opts...)
	if err != nil {
		return a.fail(err)
	}

	var metricsServer *http.Server
	if *metricsAddr != "" {
		listener, err := net.Listen("tcp", *metricsAddr)
		if err != nil {
			return a.fail(fmt.Errorf("metrics listener: %w", err))
		}
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))
		metricsServer = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := metricsServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.logger.Error("metrics server stopped", zap.Error(err))
			}
		}()
		fmt.Fprintf(a.stdout, "metrics on http://%s/metrics\n", listener.Addr())
	}

	report := scheduler.RunNow(ctx)
	printTransitions(a.stdout, report)
	if err := engine.LastError(); err != nil {
		fmt.Fprintf(a.stderr, "warning: %v\n", err)
	}

	if err := scheduler.Start(ctx); err != nil {
		return a.fail(err)
	}
	fmt.Fprintf(a.stdout, "sweeping %s, interrupt to stop\n", *schedule)

	<-ctx.Done()
	scheduler.Stop()
	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}
	fmt.Fprintln(a.stdout, "stopped")
	return exitOK
}
