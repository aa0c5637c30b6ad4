// Package static answers the two routes the proxy owns itself: the chat
// page at "/" and the liveness probe at "/health". Neither touches the
// gateway backend.
package static
