// Package healthcheck watches whether the gateway backend accepts TCP
// connections. It only reports; the proxy never changes routing on the
// result, since the gateway's lifecycle belongs to the service manager.
package healthcheck
