// Package tracking is the public edge of engagement tracking: the open pixel
// and click redirect endpoints, and the sinks that carry events from those
// endpoints to the recorder. Requests never wait on persistence.
package tracking
