package main

import (
	"net/http"

	"github.com/cuemby/fuzzmux/pkg/metrics"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// serveMetrics starts the shared /metrics, /health, /ready, /live HTTP
// endpoint in the background if --metrics-addr was set on the root
// command; it is a no-op otherwise.
func serveMetrics(cmd *cobra.Command, logger zerolog.Logger) {
	addr, _ := cmd.Root().PersistentFlags().GetString("metrics-addr")
	if addr == "" {
		return
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/health", metrics.HealthHandler())
	mux.Handle("/ready", metrics.ReadyHandler())
	mux.Handle("/live", metrics.LivenessHandler())

	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.Warn().Err(err).Msg("metrics server stopped")
		}
	}()
	logger.Info().Str("addr", addr).Msg("metrics server listening")
}
