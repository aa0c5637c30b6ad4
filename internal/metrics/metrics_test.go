package metrics_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/chat-proxy/internal/metrics"
)

var _ = Describe("Metrics", func() {
	var m *metrics.Metrics

	BeforeEach(func() {
		m = metrics.NewMetrics()
	})

	Describe("IncrementRequests", func() {
		It("should track routes separately", func() {
			m.IncrementRequests(metrics.RouteForward)
			m.IncrementRequests(metrics.RoutePage)
			m.IncrementRequests(metrics.RouteForward)

			snap := m.Snapshot()
			Expect(snap.TotalRequests).To(Equal(int64(3)))
			Expect(snap.Routes[metrics.RouteForward].Requests).To(Equal(int64(2)))
			Expect(snap.Routes[metrics.RoutePage].Requests).To(Equal(int64(1)))
		})
	})

	Describe("RecordResponse", func() {
		It("should record response time and status code", func() {
			m.RecordResponse(metrics.RouteForward, 100*time.Millisecond, 200)
			m.RecordResponse(metrics.RouteForward, 200*time.Millisecond, 200)

			route := m.Snapshot().Routes[metrics.RouteForward]
			Expect(route.AvgResponse).To(Equal(150 * time.Millisecond))
			Expect(route.StatusCodes[200]).To(Equal(int64(2)))
		})

		It("should track different status codes", func() {
			m.RecordResponse(metrics.RouteForward, 100*time.Millisecond, 200)
			m.RecordResponse(metrics.RouteForward, 150*time.Millisecond, 404)
			m.RecordResponse(metrics.RouteForward, 200*time.Millisecond, 502)

			route := m.Snapshot().Routes[metrics.RouteForward]
			Expect(route.StatusCodes).To(HaveLen(3))
			Expect(route.StatusCodes[502]).To(Equal(int64(1)))
		})

		It("should compute percentiles", func() {
			for i := 1; i <= 100; i++ {
				m.RecordResponse(metrics.RouteForward, time.Duration(i)*time.Millisecond, 200)
			}

			route := m.Snapshot().Routes[metrics.RouteForward]
			Expect(route.P50Response).To(Equal(51 * time.Millisecond))
			Expect(route.P95Response).To(Equal(96 * time.Millisecond))
			Expect(route.P99Response).To(Equal(100 * time.Millisecond))
		})

		It("should keep a bounded sample window", func() {
			for i := 0; i < 1500; i++ {
				m.RecordResponse(metrics.RouteForward, time.Second, 200)
			}
			m.RecordResponse(metrics.RouteForward, time.Second, 200)

			route := m.Snapshot().Routes[metrics.RouteForward]
			Expect(route.AvgResponse).To(Equal(time.Second))
			Expect(route.StatusCodes[200]).To(Equal(int64(1501)))
		})
	})

	Describe("upgrade sessions", func() {
		It("should count unfinished sessions", func() {
			m.IncrementRequests(metrics.RouteUpgrade)
			m.IncrementRequests(metrics.RouteUpgrade)
			m.IncrementRequests(metrics.RouteUpgrade)
			m.RecordUnavailable(metrics.RouteUpgrade)
			m.RecordUpgradeClosed(5, 7)

			snap := m.Snapshot()
			Expect(snap.Upgrades.Closed).To(Equal(int64(1)))
			Expect(snap.Upgrades.Unfinished).To(Equal(int64(1)))
			Expect(snap.Upgrades.BytesUp).To(Equal(int64(5)))
			Expect(snap.Upgrades.BytesDown).To(Equal(int64(7)))
			Expect(snap.Routes[metrics.RouteUpgrade].Unavailable).To(Equal(int64(1)))
		})
	})

	Describe("UpdateGatewayHealth", func() {
		It("should be unknown until reported", func() {
			Expect(m.Snapshot().GatewayHealthy).To(BeNil())
		})

		It("should keep the last reported state", func() {
			m.UpdateGatewayHealth(true)
			m.UpdateGatewayHealth(false)
			Expect(m.Snapshot().GatewayHealthy).To(HaveValue(BeFalse()))
		})
	})

	Describe("Snapshot", func() {
		It("should not share status maps with the live metrics", func() {
			m.RecordResponse(metrics.RouteForward, time.Millisecond, 200)
			snap := m.Snapshot()
			snap.Routes[metrics.RouteForward].StatusCodes[200] = 99

			Expect(m.Snapshot().Routes[metrics.RouteForward].StatusCodes[200]).To(Equal(int64(1)))
		})

		It("should report uptime", func() {
			Expect(m.Snapshot().Uptime).To(BeNumerically(">=", 0))
		})
	})
})
