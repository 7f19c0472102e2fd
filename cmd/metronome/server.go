package main

import (
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"metronome/pkg/logx"
)

// startMetricsServer serves /metrics and /healthz on addr. The returned
// server is shut down by the shutdown manager.
func startMetricsServer(addr string, logger *logx.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", handleHealthz)

	server := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	// Start server in a goroutine (non-blocking).
	go func() {
		logger.Info("📊 Metrics server listening on %s", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server error: %v", err)
		}
	}()

	return server
}

// handleHealthz answers liveness probes.
func handleHealthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}
