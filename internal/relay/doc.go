// Package relay copies bytes in both directions between two connections
// until either side ends, then closes both. It does not interpret the
// stream.
package relay
