package metrics

import (
	"sort"
	"sync"
	"time"
)

// Route names the path a request took through the proxy.
type Route string

const (
	RoutePage    Route = "page"
	RouteHealth  Route = "health"
	RouteForward Route = "forward"
	RouteUpgrade Route = "upgrade"
)

// maxSamples bounds the latency window kept per route.
const maxSamples = 1000

type Metrics struct {
	mutex          sync.RWMutex
	requests       map[Route]int64
	responseTimes  map[Route][]time.Duration
	statusCodes    map[Route]map[int]int64
	unavailable    map[Route]int64
	upgradesClosed int64
	bytesUp        int64
	bytesDown      int64
	gatewayHealthy *bool
	startTime      time.Time
}

type Snapshot struct {
	TotalRequests int64                  `json:"total_requests"`
	Uptime        time.Duration          `json:"uptime"`
	Routes        map[Route]RouteMetrics `json:"routes"`
	Upgrades      UpgradeMetrics         `json:"upgrades"`
	// GatewayHealthy is nil until the first probe result arrives.
	GatewayHealthy *bool `json:"gateway_healthy,omitempty"`
}

type RouteMetrics struct {
	Requests    int64         `json:"requests"`
	Unavailable int64         `json:"unavailable"`
	AvgResponse time.Duration `json:"avg_response"`
	P50Response time.Duration `json:"p50_response"`
	P95Response time.Duration `json:"p95_response"`
	P99Response time.Duration `json:"p99_response"`
	StatusCodes map[int]int64 `json:"status_codes"`
}

type UpgradeMetrics struct {
	Closed     int64 `json:"closed"`
	BytesUp    int64 `json:"bytes_up"`
	BytesDown  int64 `json:"bytes_down"`
	Unfinished int64 `json:"unfinished"`
}

func (m *Metrics) IncrementRequests(route Route) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.requests[route]++
}

func (m *Metrics) RecordResponse(route Route, duration time.Duration, statusCode int) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.responseTimes[route] = append(m.responseTimes[route], duration)

	if len(m.responseTimes[route]) > maxSamples {
		m.responseTimes[route] = m.responseTimes[route][1:]
	}

	if m.statusCodes[route] == nil {
		m.statusCodes[route] = make(map[int]int64)
	}
	m.statusCodes[route][statusCode]++
}

// RecordUnavailable counts a request that could not reach the gateway.
func (m *Metrics) RecordUnavailable(route Route) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.unavailable[route]++
}

// RecordUpgradeClosed accounts for a finished duplex session.
func (m *Metrics) RecordUpgradeClosed(bytesUp, bytesDown int64) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.upgradesClosed++
	m.bytesUp += bytesUp
	m.bytesDown += bytesDown
}

func (m *Metrics) UpdateGatewayHealth(healthy bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.gatewayHealthy = &healthy
}

func (m *Metrics) Snapshot() Snapshot {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	snap := Snapshot{
		Uptime: time.Since(m.startTime),
		Routes: make(map[Route]RouteMetrics),
		Upgrades: UpgradeMetrics{
			Closed:    m.upgradesClosed,
			BytesUp:   m.bytesUp,
			BytesDown: m.bytesDown,
		},
	}

	if m.gatewayHealthy != nil {
		healthy := *m.gatewayHealthy
		snap.GatewayHealthy = &healthy
	}

	allRoutes := make(map[Route]bool)
	for route := range m.requests {
		allRoutes[route] = true
	}
	for route := range m.responseTimes {
		allRoutes[route] = true
	}
	for route := range m.unavailable {
		allRoutes[route] = true
	}

	for route := range allRoutes {
		snap.TotalRequests += m.requests[route]

		rm := RouteMetrics{
			Requests:    m.requests[route],
			Unavailable: m.unavailable[route],
			StatusCodes: make(map[int]int64, len(m.statusCodes[route])),
		}
		for code, n := range m.statusCodes[route] {
			rm.StatusCodes[code] = n
		}

		durations := m.responseTimes[route]
		if len(durations) > 0 {
			sorted := make([]time.Duration, len(durations))
			copy(sorted, durations)
			sort.Slice(sorted, func(i, j int) bool {
				return sorted[i] < sorted[j]
			})

			rm.AvgResponse = average(sorted)
			rm.P50Response = percentile(sorted, 0.50)
			rm.P95Response = percentile(sorted, 0.95)
			rm.P99Response = percentile(sorted, 0.99)
		}

		snap.Routes[route] = rm
	}

	// Upgrade requests that neither failed to dial nor finished yet.
	open := m.requests[RouteUpgrade] - m.unavailable[RouteUpgrade] - m.upgradesClosed
	if open > 0 {
		snap.Upgrades.Unfinished = open
	}

	return snap
}

func NewMetrics() *Metrics {
	return &Metrics{
		requests:      make(map[Route]int64),
		responseTimes: make(map[Route][]time.Duration),
		statusCodes:   make(map[Route]map[int]int64),
		unavailable:   make(map[Route]int64),
		startTime:     time.Now(),
	}
}

func average(durations []time.Duration) time.Duration {
	if len(durations) == 0 {
		return 0
	}

	var sum time.Duration
	for _, d := range durations {
		sum += d
	}

	return sum / time.Duration(len(durations))
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}

	index := int(float64(len(sorted)) * p)
	if index >= len(sorted) {
		index = len(sorted) - 1
	}

	return sorted[index]
}
