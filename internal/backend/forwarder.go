package backend

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"github.com/angeloszaimis/chat-proxy/internal/metrics"
)

// DefaultTimeout bounds the wait for the gateway's response headers.
const DefaultTimeout = 120 * time.Second

// ErrBackendTimeout is the cancellation cause of a request whose response
// headers did not arrive within the forwarder's timeout.
var ErrBackendTimeout = errors.New("backend: timed out waiting for gateway response")

var unavailableBody = []byte(`{"error":"gateway unavailable"}`)

// forwardedHeaders are dropped by ReverseProxy before Rewrite runs. The
// gateway sees them exactly as the client sent them.
var forwardedHeaders = []string{"Forwarded", "X-Forwarded-For", "X-Forwarded-Host", "X-Forwarded-Proto"}

type timerKey struct{}

// Forwarder relays plain HTTP requests to one loopback backend.
type Forwarder struct {
	target    *url.URL
	timeout   time.Duration
	proxy     *httputil.ReverseProxy
	logger    *slog.Logger
	collector *metrics.Collector
}

type Option func(*options)

type options struct {
	timeout   time.Duration
	logger    *slog.Logger
	collector *metrics.Collector
}

// WithTimeout sets how long to wait for response headers.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.timeout = d
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithCollector reports gateway failures to collector.
func WithCollector(collector *metrics.Collector) Option {
	return func(o *options) {
		o.collector = collector
	}
}

func buildOptions(opts []Option) options {
	o := options{
		timeout: DefaultTimeout,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// NewForwarder creates a forwarder for the backend at addr (host:port).
func NewForwarder(addr string, opts ...Option) *Forwarder {
	o := buildOptions(opts)

	f := &Forwarder{
		target:    &url.URL{Scheme: "http", Host: addr},
		timeout:   o.timeout,
		logger:    o.logger,
		collector: o.collector,
	}

	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   o.timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   100,
		IdleConnTimeout:       90 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		// Accept-Encoding and Content-Encoding pass through untouched.
		DisableCompression: true,
	}

	f.proxy = &httputil.ReverseProxy{
		Rewrite:        f.rewrite,
		Transport:      transport,
		FlushInterval:  -1,
		ModifyResponse: stopHeaderTimer,
		ErrorHandler:   f.handleError,
		ErrorLog:       slog.NewLogLogger(o.logger.Handler(), slog.LevelWarn),
	}

	return f
}

// ServeHTTP forwards r. The timeout covers only the wait for response
// headers; once they arrive the body streams for as long as it takes.
func (f *Forwarder) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithCancelCause(r.Context())
	defer cancel(nil)

	timer := time.AfterFunc(f.timeout, func() {
		cancel(ErrBackendTimeout)
	})
	defer timer.Stop()

	ctx = context.WithValue(ctx, timerKey{}, timer)
	f.proxy.ServeHTTP(w, r.WithContext(ctx))
}

func (f *Forwarder) rewrite(pr *httputil.ProxyRequest) {
	pr.SetURL(f.target)

	for _, name := range forwardedHeaders {
		if values, ok := pr.In.Header[name]; ok {
			pr.Out.Header[name] = values
		}
	}
}

func stopHeaderTimer(res *http.Response) error {
	if timer, ok := res.Request.Context().Value(timerKey{}).(*time.Timer); ok {
		timer.Stop()
	}
	return nil
}

// handleError runs only when no response headers have been written.
// Failures after that point abort the connection inside ReverseProxy.
func (f *Forwarder) handleError(w http.ResponseWriter, r *http.Request, err error) {
	if cause := context.Cause(r.Context()); errors.Is(cause, ErrBackendTimeout) {
		err = cause
	}

	if errors.Is(err, context.Canceled) {
		f.logger.Debug("Client went away before gateway responded",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path))
	} else {
		f.logger.Warn("Gateway unavailable",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("gateway", f.target.Host),
			slog.Any("err", err))
	}

	f.collector.Emit(metrics.MetricEvent{
		Type:  metrics.EventBackendUnavailable,
		Route: metrics.RouteForward,
	})

	WriteUnavailable(w)
}

// WriteUnavailable writes the proxy's 502 response.
func WriteUnavailable(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadGateway)
	w.Write(unavailableBody)
}
