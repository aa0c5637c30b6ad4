package static

import (
	"fmt"
	"net/http"
	"os"
	"strconv"
)

const (
	PagePath   = "/"
	HealthPath = "/health"
)

var healthBody = []byte(`{"ok":true}`)

// Responder serves a page loaded once at startup. The buffer is never
// written after Load returns, so concurrent handlers read it unsynchronized.
type Responder struct {
	page []byte
}

// Load reads the page at path. A missing or unreadable page is fatal for
// the caller: the proxy must not start without it.
func Load(path string) (*Responder, error) {
	page, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load static page: %w", err)
	}
	return New(page), nil
}

func New(page []byte) *Responder {
	return &Responder{page: page}
}

// Claims reports whether r is answered locally rather than forwarded.
// Only GET and HEAD are claimed on the page path.
func (s *Responder) Claims(r *http.Request) bool {
	switch r.URL.Path {
	case HealthPath:
		return true
	case PagePath:
		return r.Method == http.MethodGet || r.Method == http.MethodHead
	default:
		return false
	}
}

func (s *Responder) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case HealthPath:
		s.Health(w, r)
	default:
		s.Page(w, r)
	}
}

// Page writes the static chat page; HEAD gets headers only.
func (s *Responder) Page(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Content-Length", strconv.Itoa(len(s.page)))
	w.WriteHeader(http.StatusOK)

	if r.Method == http.MethodHead {
		return
	}
	w.Write(s.page)
}

func (s *Responder) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(healthBody)
}
