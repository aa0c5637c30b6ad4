// Package backend forwards traffic to the gateway on its loopback port.
//
// Forwarder relays ordinary HTTP requests through httputil.ReverseProxy,
// streaming bodies both ways and answering 502 when the gateway cannot be
// reached in time. Upgrader takes over connections that ask for a protocol
// switch, replays the handshake on a raw TCP connection to the gateway and
// then relays bytes until either side closes.
package backend
