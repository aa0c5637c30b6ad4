package relay

import (
	"errors"
	"io"
	"net"
	"syscall"
)

// Result describes a finished relay. Upstream counts bytes copied from A
// to B and Downstream from B to A.
type Result struct {
	Upstream   int64
	Downstream int64
	// Err is the first unexpected error, nil for routine teardown.
	Err error
}

type copyResult struct {
	upstream bool
	n        int64
	err      error
}

// Bridge copies readerA into b and readerB into a. The readers may differ
// from the connections when bytes were already buffered off the wire.
//
// When either direction finishes both connections are closed, and Bridge
// waits for the other direction before returning, so no goroutine outlives
// the session.
func Bridge(a net.Conn, readerA io.Reader, b net.Conn, readerB io.Reader) Result {
	done := make(chan copyResult, 2)

	go func() {
		n, err := io.Copy(b, readerA)
		done <- copyResult{upstream: true, n: n, err: err}
	}()

	go func() {
		n, err := io.Copy(a, readerB)
		done <- copyResult{upstream: false, n: n, err: err}
	}()

	first := <-done
	a.Close()
	b.Close()
	second := <-done

	var res Result
	for _, r := range []copyResult{first, second} {
		if r.upstream {
			res.Upstream = r.n
		} else {
			res.Downstream = r.n
		}
	}

	if first.err != nil && !IsExpectedCloseError(first.err) {
		res.Err = first.err
	}

	return res
}

// Conns bridges two connections with no buffered data.
func Conns(a, b net.Conn) Result {
	return Bridge(a, a, b, b)
}

// IsExpectedCloseError reports whether err is ordinary connection teardown:
// EOF, use of a closed connection, broken pipe or reset by peer.
func IsExpectedCloseError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
		return true
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno == syscall.EPIPE || errno == syscall.ECONNRESET
	}
	return false
}
