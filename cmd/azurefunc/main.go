package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	cmdinternal "github.com/jitsi-contrib/autoscaler/cmd/internal"
)

// Azure Functions custom handler for the control plane.
// This implements the Azure Functions custom handler protocol, which expects
// an HTTP server listening on the port specified by FUNCTIONS_CUSTOMHANDLER_PORT.
//
// For timer triggers, Azure Functions sends a POST request to /{functionName}
// with invocation metadata in the request body; each invocation runs one
// Bootstrap.RunOnce pass.

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	boot, err := cmdinternal.New(ctx, logger, prometheus.DefaultRegisterer)
	if err != nil {
		logger.Error("could not assemble control plane", "error", err)
		os.Exit(1)
	}

	port := os.Getenv("FUNCTIONS_CUSTOMHANDLER_PORT")
	if port == "" {
		port = "8080"
	}

	mux := http.NewServeMux()

	mux.HandleFunc("/AutoscalerTimer", func(w http.ResponseWriter, r *http.Request) {
		handleAutoscaler(w, r, logger, boot)
	})

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("autoscaler control plane - Azure Function"))
	})

	server := &http.Server{
		Addr:         ":" + port,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("starting Azure Functions custom handler", "port", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		logger.Error("server error", "error", err)
		os.Exit(1)
	case <-ctx.Done():
		logger.Info("shutdown signal received, starting graceful shutdown")
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("forced shutdown due to timeout", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped gracefully")
}

func handleAutoscaler(w http.ResponseWriter, r *http.Request, logger *slog.Logger, boot *cmdinternal.Bootstrap) {
	startTime := time.Now()
	ctx := r.Context()

	invocationID := r.Header.Get("x-azure-functions-invocationid")
	if invocationID != "" {
		logger = logger.With("invocation_id", invocationID)
	}

	logger.Info("control plane pass invoked")

	if err := boot.RunOnce(ctx); err != nil {
		logger.Error("control plane pass failed", "error", err, "duration", time.Since(startTime))

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]string{
			"error": err.Error(),
		})
		return
	}

	logger.Info("control plane pass completed", "duration", time.Since(startTime))

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":   "success",
		"duration": time.Since(startTime).String(),
	})
}
