package healthcheck

import (
	"context"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/angeloszaimis/chat-proxy/internal/metrics"
)

const maxDialTimeout = 2 * time.Second

// Status is the last observed reachability of the gateway.
type Status struct {
	mutex   sync.Mutex
	known   bool
	healthy bool
}

// Set records an observation and reports whether it differs from the
// previous one. The first observation always counts as a change.
func (s *Status) Set(healthy bool) (changed bool) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.known && s.healthy == healthy {
		return false
	}

	s.known = true
	s.healthy = healthy
	return true
}

// Healthy returns the last observation; ok is false before the first one.
func (s *Status) Healthy() (healthy, ok bool) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.healthy, s.known
}

// Probe dials addr immediately and then every interval until ctx is done,
// logging transitions and reporting them to collector, which may be nil.
func Probe(
	ctx context.Context,
	addr string,
	interval time.Duration,
	status *Status,
	collector *metrics.Collector,
	logger *slog.Logger,
) {
	dialer := &net.Dialer{Timeout: min(interval, maxDialTimeout)}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		healthy := check(ctx, dialer, addr)
		if ctx.Err() != nil {
			logger.Debug("Gateway probe stopped", slog.String("gateway", addr))
			return
		}

		if status.Set(healthy) {
			collector.Emit(metrics.MetricEvent{
				Type:    metrics.EventHealthChanged,
				Healthy: healthy,
			})

			if healthy {
				logger.Info("Gateway is up", slog.String("gateway", addr))
			} else {
				logger.Warn("Gateway is down", slog.String("gateway", addr))
			}
		}

		select {
		case <-ctx.Done():
			logger.Debug("Gateway probe stopped", slog.String("gateway", addr))
			return
		case <-ticker.C:
		}
	}
}

func check(ctx context.Context, dialer *net.Dialer, addr string) bool {
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}
