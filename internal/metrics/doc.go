// Package metrics collects in-process traffic statistics for the proxy.
//
// Handlers emit events on a buffered channel without blocking the request
// path; a single goroutine folds them into counters:
//   - Requests per route (page, health, forward, upgrade)
//   - Forwarded response times with percentiles (P50, P95, P99)
//   - Status code distribution
//   - Requests that could not reach the gateway
//   - Bytes relayed by finished upgrade sessions
//   - The last observed gateway reachability
//
// Snapshots are written to the log periodically by Report. The proxy owns
// only two routes, so metrics are never served over HTTP.
//
//	collector := metrics.NewCollector(1000, logger)
//	collector.Start(ctx)
//	go collector.Report(ctx, time.Minute)
//
//	collector.Emit(metrics.MetricEvent{
//		Type:       metrics.EventResponseCompleted,
//		Route:      metrics.RouteForward,
//		Duration:   150 * time.Millisecond,
//		StatusCode: 200,
//	})
package metrics
