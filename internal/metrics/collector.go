package metrics

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type EventType string

const (
	EventRequestReceived    EventType = "request_received"
	EventResponseCompleted  EventType = "response_completed"
	EventBackendUnavailable EventType = "backend_unavailable"
	EventUpgradeClosed      EventType = "upgrade_closed"
	EventHealthChanged      EventType = "health_changed"
)

type MetricEvent struct {
	Type       EventType
	Timestamp  time.Time
	Route      Route
	Duration   time.Duration
	StatusCode int
	BytesUp    int64
	BytesDown  int64
	Healthy    bool
}

type Collector struct {
	eventCh chan MetricEvent
	metrics *Metrics
	logger  *slog.Logger
	wg      sync.WaitGroup
}

func NewCollector(bufferSize int, logger *slog.Logger) *Collector {
	return &Collector{
		eventCh: make(chan MetricEvent, bufferSize),
		metrics: NewMetrics(),
		logger:  logger,
	}
}

// Emit queues event without blocking; events are dropped when the buffer
// is full. A nil Collector discards everything.
func (c *Collector) Emit(event MetricEvent) {
	if c == nil {
		return
	}

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case c.eventCh <- event:
	default:
	}
}

func (c *Collector) Start(ctx context.Context) {
	c.wg.Go(func() {
		c.run(ctx)
	})
}

// Wait blocks until the collector started by Start has drained and
// stopped. It returns immediately if Start was never called.
func (c *Collector) Wait() {
	c.wg.Wait()
}

func (c *Collector) run(ctx context.Context) {
	c.logger.Debug("Metrics collector started")
	defer c.logger.Debug("Metrics collector stopped")

	for {
		select {
		case event := <-c.eventCh:
			c.processEvent(event)
		case <-ctx.Done():
			// Drain remaining events before shutdown
			c.drain()
			return
		}
	}
}

func (c *Collector) processEvent(event MetricEvent) {
	switch event.Type {
	case EventRequestReceived:
		c.metrics.IncrementRequests(event.Route)

	case EventResponseCompleted:
		c.metrics.RecordResponse(event.Route, event.Duration, event.StatusCode)

	case EventBackendUnavailable:
		c.metrics.RecordUnavailable(event.Route)

	case EventUpgradeClosed:
		c.metrics.RecordUpgradeClosed(event.BytesUp, event.BytesDown)

	case EventHealthChanged:
		c.metrics.UpdateGatewayHealth(event.Healthy)
	}
}

func (c *Collector) drain() {
	for {
		select {
		case event := <-c.eventCh:
			c.processEvent(event)
		default:
			return
		}
	}
}

func (c *Collector) Snapshot() Snapshot {
	return c.metrics.Snapshot()
}
