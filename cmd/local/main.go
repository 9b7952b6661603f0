// cmd/local runs the control plane as a single always-on process: the
// httpapi server alongside ticker-driven production/consumption loops for
// the autoscaler, launcher and sanity queues plus the metrics refresh loop.
// This is the profile for a single-replica or docker-compose deployment;
// cmd/lambda, cmd/cloudrun and cmd/azurefunc instead trigger one
// Bootstrap.RunOnce pass per invocation and rely on an external scheduler
// for cadence.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	cmdinternal "github.com/jitsi-contrib/autoscaler/cmd/internal"
	"github.com/jitsi-contrib/autoscaler/internal/tracing"
)

func main() {
	debug := flag.Bool("d", false, "enable debug tracing (logs spans to stdout)")
	flag.BoolVar(debug, "debug", false, "enable debug tracing (logs spans to stdout)")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	boot, err := cmdinternal.New(ctx, logger, prometheus.DefaultRegisterer)
	if err != nil {
		logger.Error("could not assemble control plane", "error", err)
		os.Exit(1)
	}

	tp := initTracer(ctx, logger, *debug, boot)
	if tp != nil {
		defer func(ctx context.Context) {
			if err := tp.Shutdown(ctx); err != nil {
				logger.Error("error shutting down tracer provider", "error", err)
			}
		}(context.Background())
	}

	t := otel.Tracer("local")
	runCtx, span := t.Start(ctx, "control-plane")

	mux := boot.HTTP.Mux()
	mux.Handle("GET /metrics", promhttp.Handler())
	handler := otelhttp.NewHandler(mux, "autoscaler-http-api")

	server := &http.Server{
		Addr:        boot.Config.HTTPAddr,
		Handler:     handler,
		ReadTimeout: 30 * time.Second,
		BaseContext: func(_ net.Listener) context.Context { return runCtx },
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("starting HTTP server", "addr", boot.Config.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	loopsDone := runLoops(runCtx, boot, logger)

	var exitCode int
	select {
	case err := <-serverErr:
		logger.Error("server error", "error", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "")
		exitCode = 1
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}
	stop()
	<-loopsDone
	span.End()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("forced shutdown due to timeout", "error", err)
		exitCode = 1
	} else {
		logger.Info("stopped gracefully")
	}
	os.Exit(exitCode)
}

// initTracer picks a tracer provider: stdout when -debug is set (for local
// inspection), the AWS X-Ray exporter when AWS is one of the configured
// cloud providers, or none at all otherwise.
func initTracer(ctx context.Context, logger *slog.Logger, debug bool, boot *cmdinternal.Bootstrap) *sdktrace.TracerProvider {
	if debug {
		exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			logger.Error("failed to create stdout trace exporter", "error", err)
			return nil
		}
		tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
		otel.SetTracerProvider(tp)
		logger.Info("debug tracing enabled, spans will be logged to stdout")
		return tp
	}

	for _, provider := range boot.Config.CloudProviders {
		if provider == "aws" {
			return tracing.InitOtelXrayTracer(ctx, logger, false)
		}
	}
	return nil
}

// runLoops starts one goroutine per ticker-driven loop and returns a
// channel closed once all of them have observed ctx.Done and returned.
func runLoops(ctx context.Context, boot *cmdinternal.Bootstrap, logger *slog.Logger) <-chan struct{} {
	cfg := boot.Config
	done := make(chan struct{})

	loops := []struct {
		name     string
		interval time.Duration
		run      func(context.Context) error
	}{
		{"job-production-and-consumption", time.Duration(cfg.AutoscalerIntervalSec) * time.Second, boot.RunOnce},
		{"metrics-refresh", time.Duration(cfg.MetricsIntervalSec) * time.Second, boot.Metrics.Refresh},
	}

	var wg sync.WaitGroup
	for _, l := range loops {
		wg.Add(1)
		go func(name string, interval time.Duration, run func(context.Context) error) {
			defer wg.Done()
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			log := logger.With("loop", name)
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					if err := run(ctx); err != nil {
						log.Error("loop iteration failed", "error", err)
					}
				}
			}
		}(l.name, l.interval, l.run)
	}

	go func() {
		wg.Wait()
		close(done)
	}()
	return done
}
