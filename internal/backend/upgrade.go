package backend

import (
	"bufio"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/net/http/httpguts"

	"github.com/angeloszaimis/chat-proxy/internal/metrics"
	"github.com/angeloszaimis/chat-proxy/internal/relay"
)

// ErrHijackUnsupported is logged when the ResponseWriter cannot hand over
// its connection, as with HTTP/2.
var ErrHijackUnsupported = errors.New("backend: connection does not support hijacking")

const dialTimeout = 10 * time.Second

// IsUpgradeRequest reports whether r asks for a protocol switch: an
// Upgrade header plus the "upgrade" token in Connection.
func IsUpgradeRequest(r *http.Request) bool {
	return r.Header.Get("Upgrade") != "" &&
		httpguts.HeaderValuesContainsToken(r.Header["Connection"], "upgrade")
}

// session pairs a client connection with its backend connection. Both are
// closed together.
type session struct {
	client  net.Conn
	backend net.Conn
}

func (s *session) close() {
	s.client.Close()
	s.backend.Close()
}

// Upgrader relays protocol-upgrade requests to the backend over raw TCP.
type Upgrader struct {
	addr      string
	dialer    *net.Dialer
	logger    *slog.Logger
	collector *metrics.Collector

	mutex    sync.Mutex
	sessions map[*session]struct{}
	closed   bool
}

// NewUpgrader creates an upgrader for the backend at addr (host:port).
// WithTimeout does not apply: established sessions never time out.
func NewUpgrader(addr string, opts ...Option) *Upgrader {
	o := buildOptions(opts)

	return &Upgrader{
		addr:      addr,
		dialer:    &net.Dialer{Timeout: dialTimeout},
		logger:    o.logger,
		collector: o.collector,
		sessions:  make(map[*session]struct{}),
	}
}

// ServeHTTP takes over the client connection for the rest of its life.
// Nothing is written to the client unless the backend writes it.
func (u *Upgrader) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	hijacker, ok := w.(http.Hijacker)
	if !ok {
		u.logger.Error("Cannot take over connection for upgrade",
			slog.String("proto", r.Proto),
			slog.Any("err", ErrHijackUnsupported))
		http.Error(w, "upgrade not supported", http.StatusInternalServerError)
		return
	}

	clientConn, clientBuf, err := hijacker.Hijack()
	if err != nil {
		u.logger.Error("Hijack failed", slog.Any("err", err))
		return
	}
	// Header read deadlines set by the server must not cut the relay short.
	clientConn.SetDeadline(time.Time{})

	backendConn, err := u.dialer.Dial("tcp", u.addr)
	if err != nil {
		u.logger.Warn("Gateway unavailable for upgrade",
			slog.String("path", r.URL.Path),
			slog.String("upgrade", r.Header.Get("Upgrade")),
			slog.String("gateway", u.addr),
			slog.Any("err", err))
		u.collector.Emit(metrics.MetricEvent{
			Type:  metrics.EventBackendUnavailable,
			Route: metrics.RouteUpgrade,
		})
		clientConn.Close()
		return
	}

	s := &session{client: clientConn, backend: backendConn}
	if !u.track(s) {
		s.close()
		return
	}
	defer u.untrack(s)

	start := time.Now()

	if err := writeHandshake(backendConn, r, clientBuf.Reader); err != nil {
		u.logger.Warn("Failed to replay upgrade handshake",
			slog.String("path", r.URL.Path),
			slog.Any("err", err))
		s.close()
		return
	}

	u.logger.Debug("Upgrade session opened",
		slog.String("path", r.URL.Path),
		slog.String("upgrade", r.Header.Get("Upgrade")))

	res := relay.Conns(clientConn, backendConn)

	attrs := []any{
		slog.String("path", r.URL.Path),
		slog.Duration("duration", time.Since(start)),
		slog.Int64("bytes_up", res.Upstream),
		slog.Int64("bytes_down", res.Downstream),
	}
	if res.Err != nil {
		attrs = append(attrs, slog.Any("err", res.Err))
	}
	u.logger.Debug("Upgrade session closed", attrs...)

	u.collector.Emit(metrics.MetricEvent{
		Type:      metrics.EventUpgradeClosed,
		Route:     metrics.RouteUpgrade,
		Duration:  time.Since(start),
		BytesUp:   res.Upstream,
		BytesDown: res.Downstream,
	})
}

// writeHandshake sends the request line, the original headers and any
// bytes the server had already buffered past the header block.
func writeHandshake(conn net.Conn, r *http.Request, buffered *bufio.Reader) error {
	bw := bufio.NewWriter(conn)

	fmt.Fprintf(bw, "%s %s HTTP/%d.%d\r\n", r.Method, r.RequestURI, r.ProtoMajor, r.ProtoMinor)

	// net/http moves Host and Transfer-Encoding out of the header map.
	if r.Host != "" {
		fmt.Fprintf(bw, "Host: %s\r\n", r.Host)
	}
	if len(r.TransferEncoding) > 0 {
		for _, te := range r.TransferEncoding {
			fmt.Fprintf(bw, "Transfer-Encoding: %s\r\n", te)
		}
	}

	if err := r.Header.Write(bw); err != nil {
		return err
	}
	if _, err := bw.WriteString("\r\n"); err != nil {
		return err
	}

	if n := buffered.Buffered(); n > 0 {
		pending, err := buffered.Peek(n)
		if err != nil {
			return err
		}
		if _, err := bw.Write(pending); err != nil {
			return err
		}
		if _, err := buffered.Discard(n); err != nil {
			return err
		}
	}

	return bw.Flush()
}

func (u *Upgrader) track(s *session) bool {
	u.mutex.Lock()
	defer u.mutex.Unlock()

	if u.closed {
		return false
	}
	u.sessions[s] = struct{}{}
	return true
}

func (u *Upgrader) untrack(s *session) {
	u.mutex.Lock()
	defer u.mutex.Unlock()
	delete(u.sessions, s)
}

// ActiveSessions returns the number of relays in progress.
func (u *Upgrader) ActiveSessions() int {
	u.mutex.Lock()
	defer u.mutex.Unlock()
	return len(u.sessions)
}

// Close ends every active session and refuses new ones. http.Server does
// not track hijacked connections, so the front door calls this on shutdown.
func (u *Upgrader) Close() {
	u.mutex.Lock()
	defer u.mutex.Unlock()

	u.closed = true
	for s := range u.sessions {
		s.close()
	}
}
