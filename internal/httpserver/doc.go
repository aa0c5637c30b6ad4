// Package httpserver is the proxy's front door: a loopback-only HTTP
// listener with graceful shutdown.
package httpserver
