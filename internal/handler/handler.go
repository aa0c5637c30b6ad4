package handler

import (
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/angeloszaimis/chat-proxy/internal/backend"
	"github.com/angeloszaimis/chat-proxy/internal/metrics"
	"github.com/angeloszaimis/chat-proxy/internal/static"
)

type GatewayHandler struct {
	logger           *slog.Logger
	static           *static.Responder
	forwarder        http.Handler
	upgrader         http.Handler
	metricsCollector *metrics.Collector
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (h *GatewayHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	route := h.route(r)

	level := slog.LevelInfo
	if route == metrics.RoutePage || route == metrics.RouteHealth {
		level = slog.LevelDebug
	}
	h.logger.Log(r.Context(), level, "Received request",
		slog.String("route", string(route)),
		slog.String("from", extractClientIP(r)),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("proto", r.Proto),
		slog.String("user_agent", r.UserAgent()))

	h.metricsCollector.Emit(metrics.MetricEvent{
		Type:  metrics.EventRequestReceived,
		Route: route,
	})

	switch route {
	case metrics.RouteUpgrade:
		// The upgrader needs the raw ResponseWriter to hijack it.
		h.upgrader.ServeHTTP(w, r)
		return
	case metrics.RoutePage, metrics.RouteHealth:
		h.static.ServeHTTP(w, r)
		return
	}

	start := time.Now()
	wrapped := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
	h.forwarder.ServeHTTP(wrapped, r)

	h.metricsCollector.Emit(metrics.MetricEvent{
		Type:       metrics.EventResponseCompleted,
		Route:      route,
		Duration:   time.Since(start),
		StatusCode: wrapped.statusCode,
	})
}

// route checks for an upgrade first so that no other handler reads from a
// connection that is about to switch protocols.
func (h *GatewayHandler) route(r *http.Request) metrics.Route {
	switch {
	case backend.IsUpgradeRequest(r):
		return metrics.RouteUpgrade
	case h.static.Claims(r) && r.URL.Path == static.HealthPath:
		return metrics.RouteHealth
	case h.static.Claims(r):
		return metrics.RoutePage
	default:
		return metrics.RouteForward
	}
}

func extractClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return strings.TrimSpace(strings.Split(xff, ",")[0])
	}

	host, _, _ := net.SplitHostPort(r.RemoteAddr)
	return host
}

func (r *statusRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}

// Unwrap lets http.ResponseController reach the underlying Flusher, which
// the forwarder relies on for streamed responses.
func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

func New(logger *slog.Logger, page *static.Responder, forwarder, upgrader http.Handler, collector *metrics.Collector) *GatewayHandler {
	return &GatewayHandler{
		logger:           logger,
		static:           page,
		forwarder:        forwarder,
		upgrader:         upgrader,
		metricsCollector: collector,
	}
}
