package catalog

import "time"

// ClientHealth represents the current health state of the catalog client.
// It is used by the health check endpoints to determine overall system health.
type ClientHealth struct {
	// Provider is the name of the backend ("catalogs")
	Provider string

	// LastSuccess is the timestamp of the last successful API call
	LastSuccess time.Time

	// LastFailure is the timestamp of the last failed API call
	LastFailure time.Time

	// LastError contains the error message from the last failure, if any
	LastError string

	// LastDuration is the latency of the last API call
	LastDuration time.Duration

	// ConsecutiveFailures is the count of consecutive failed API calls
	ConsecutiveFailures int

	// CircuitState is the current state of the circuit breaker (Closed, Open, HalfOpen)
	CircuitState string
}
