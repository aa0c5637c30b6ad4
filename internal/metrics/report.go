package metrics

import (
	"context"
	"log/slog"
	"time"
)

// Report logs a snapshot every interval until ctx is done, then logs a
// final one. There is no HTTP surface for metrics; the log is the sink.
func (c *Collector) Report(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.Wait()
			c.LogSnapshot(slog.LevelInfo, "Final traffic summary")
			return
		case <-ticker.C:
			c.LogSnapshot(slog.LevelInfo, "Traffic summary")
		}
	}
}

// LogSnapshot writes the current snapshot as one structured line.
func (c *Collector) LogSnapshot(level slog.Level, msg string) {
	snap := c.Snapshot()

	attrs := []slog.Attr{
		slog.Int64("total_requests", snap.TotalRequests),
		slog.Duration("uptime", snap.Uptime.Round(time.Second)),
	}

	if snap.GatewayHealthy != nil {
		attrs = append(attrs, slog.Bool("gateway_healthy", *snap.GatewayHealthy))
	}

	for _, route := range []Route{RoutePage, RouteHealth, RouteForward, RouteUpgrade} {
		rm, ok := snap.Routes[route]
		if !ok {
			continue
		}
		attrs = append(attrs, slog.Group(string(route),
			slog.Int64("requests", rm.Requests),
			slog.Int64("unavailable", rm.Unavailable),
			slog.Duration("p50", rm.P50Response),
			slog.Duration("p95", rm.P95Response),
		))
	}

	attrs = append(attrs, slog.Group("sessions",
		slog.Int64("closed", snap.Upgrades.Closed),
		slog.Int64("open", snap.Upgrades.Unfinished),
		slog.Int64("bytes_up", snap.Upgrades.BytesUp),
		slog.Int64("bytes_down", snap.Upgrades.BytesDown),
	))

	c.logger.LogAttrs(context.Background(), level, msg, attrs...)
}
