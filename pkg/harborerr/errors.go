// Package harborerr defines the sentinel error taxonomy the API layer
// maps onto HTTP status codes via errors.Is/errors.As.
package harborerr

import "errors"

var (
	// ErrNotFound means the requested Ship, Binding, or session has no
	// matching record. Maps to HTTP 404.
	ErrNotFound = errors.New("not found")

	// ErrShipNotRunning means an operation was attempted against a Ship
	// that is not currently Running. Maps to HTTP 409.
	ErrShipNotRunning = errors.New("ship is not running")

	// ErrSessionNotBound means the caller's session has no binding to
	// the target Ship. Maps to HTTP 403.
	ErrSessionNotBound = errors.New("session is not bound to this ship")

	// ErrAtCapacity means the ship cap has been reached and the
	// configured behavior is "reject". Maps to HTTP 503.
	ErrAtCapacity = errors.New("ship capacity reached")

	// ErrCapacityWaitTimeout means the caller waited for a free slot
	// under the "wait" behavior and none became available in time.
	// Maps to HTTP 503.
	ErrCapacityWaitTimeout = errors.New("timed out waiting for ship capacity")

	// ErrUpstreamForward means a request forwarded to a Ship's HTTP API
	// failed at the transport or protocol level. Maps to HTTP 400.
	ErrUpstreamForward = errors.New("forwarding request to ship failed")

	// ErrUploadTooLarge means an uploaded file exceeded the configured
	// maximum. Maps to HTTP 413.
	ErrUploadTooLarge = errors.New("upload exceeds maximum size")

	// ErrUnauthorized means the caller's access token did not match.
	// Maps to HTTP 401.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrHealthTimeout means a ship's container started but never passed
	// its health probe within the configured grace period. Maps to HTTP 408.
	ErrHealthTimeout = errors.New("ship health probe timed out")
)
