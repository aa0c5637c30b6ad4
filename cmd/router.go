package main

import (
	"log/slog"
	"net/http"

	"github.com/angeloszaimis/chat-proxy/config"
	"github.com/angeloszaimis/chat-proxy/internal/backend"
	"github.com/angeloszaimis/chat-proxy/internal/handler"
	"github.com/angeloszaimis/chat-proxy/internal/metrics"
	"github.com/angeloszaimis/chat-proxy/internal/static"
)

// setupRouter wires the dispatcher. The upgrader is returned separately so
// the caller can end its sessions on shutdown.
func setupRouter(log *slog.Logger, cfg *config.Config, page *static.Responder, metricsCollector *metrics.Collector) (http.Handler, *backend.Upgrader) {
	opts := []backend.Option{
		backend.WithLogger(log),
		backend.WithCollector(metricsCollector),
		backend.WithTimeout(cfg.BackendTimeout()),
	}

	forwarder := backend.NewForwarder(cfg.BackendAddr(), opts...)
	upgrader := backend.NewUpgrader(cfg.BackendAddr(), opts...)

	return handler.New(log, page, forwarder, upgrader, metricsCollector), upgrader
}
