// Package handler implements the proxy's request dispatcher. It decides
// per request between the static responder, the upgrade relay and the
// HTTP forwarder, and records what happened.
package handler
