/*
Package health provides the HTTP readiness probe the Resolver uses to
decide when a freshly created or restored Ship's container is ready to
serve requests.

# Checker

	type Checker interface {
		Check(ctx context.Context) Result
		Type() CheckType
	}

HTTPChecker is the only implementation Harbor wires up: it polls a URL
built from the Ship's container IP and the configured health check path
(ship_health_check_path), expecting a 2xx/3xx status within the
configured timeout and polling interval (ship_health_check_timeout and
ship_health_check_interval, both in seconds). A successful Result unblocks the
Resolver's creation/restore path; a timed-out probe surfaces as
harborerr.ErrHealthTimeout.

# See also

  - pkg/resolver - the only caller, via NewHTTPChecker(url).WithTimeout
*/
package health
