package healthcheck_test

import (
	"context"
	"log/slog"
	"net"
	"os"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/chat-proxy/internal/healthcheck"
	"github.com/angeloszaimis/chat-proxy/internal/metrics"
)

var _ = Describe("Healthcheck", func() {
	var (
		log    *slog.Logger
		ctx    context.Context
		cancel context.CancelFunc
		status *healthcheck.Status
	)

	BeforeEach(func() {
		log = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
		ctx, cancel = context.WithCancel(context.Background())
		status = &healthcheck.Status{}
	})

	AfterEach(func() {
		cancel()
	})

	Describe("Status", func() {
		It("should be unknown before the first observation", func() {
			_, ok := status.Healthy()
			Expect(ok).To(BeFalse())
		})

		It("should report the first observation as a change", func() {
			Expect(status.Set(false)).To(BeTrue())
			healthy, ok := status.Healthy()
			Expect(ok).To(BeTrue())
			Expect(healthy).To(BeFalse())
		})

		It("should return false when setting same status", func() {
			status.Set(true)
			Expect(status.Set(true)).To(BeFalse())
			Expect(status.Set(false)).To(BeTrue())
		})
	})

	Describe("Probe", func() {
		It("should mark a listening gateway as healthy", func() {
			ln, err := net.Listen("tcp", "127.0.0.1:0")
			Expect(err).NotTo(HaveOccurred())
			defer ln.Close()
			go func() {
				for {
					c, err := ln.Accept()
					if err != nil {
						return
					}
					c.Close()
				}
			}()

			collector := metrics.NewCollector(10, log)
			collector.Start(ctx)

			go healthcheck.Probe(ctx, ln.Addr().String(), 50*time.Millisecond, status, collector, log)

			Eventually(func() bool {
				healthy, _ := status.Healthy()
				return healthy
			}).Should(BeTrue())
			Eventually(func() *bool {
				return collector.Snapshot().GatewayHealthy
			}).Should(HaveValue(BeTrue()))
		})

		It("should notice the gateway going away", func() {
			ln, err := net.Listen("tcp", "127.0.0.1:0")
			Expect(err).NotTo(HaveOccurred())
			addr := ln.Addr().String()

			go healthcheck.Probe(ctx, addr, 50*time.Millisecond, status, nil, log)

			Eventually(func() bool {
				healthy, _ := status.Healthy()
				return healthy
			}).Should(BeTrue())

			ln.Close()

			Eventually(func() bool {
				healthy, _ := status.Healthy()
				return healthy
			}).Should(BeFalse())
		})

		It("should stop when context is cancelled", func() {
			done := make(chan struct{})
			go func() {
				healthcheck.Probe(ctx, "127.0.0.1:1", 50*time.Millisecond, status, nil, log)
				close(done)
			}()

			Eventually(func() bool {
				_, ok := status.Healthy()
				return ok
			}).Should(BeTrue())
			cancel()
			Eventually(done).Should(BeClosed())
		})
	})
})
