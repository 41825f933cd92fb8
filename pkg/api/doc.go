/*
Package api implements Harbor's HTTP surface over a single *core.Core:
Ship lifecycle, session introspection, execution history annotation,
and the terminal websocket proxy, following the routes and status codes
laid out for the external interfaces.

Unlike the teacher's gRPC+mTLS control plane, Harbor exposes a single
bearer-token-authenticated REST API — there is no cluster membership to
authenticate peers against, so NewServer wires a plain stdlib
http.ServeMux using Go's method+path route patterns instead of a
protobuf service definition.

# Routing

GET /health and GET /stat are unauthenticated (liveness/version probes),
as is /metrics; the terminal route takes the access token as a "token"
query parameter, checked by pkg/proxy; every other route requires the
configured access token as a bearer token. Path parameters are read with r.PathValue; JSON bodies are
decoded with DisallowUnknownFields so that extra fields in a request
are rejected rather than silently ignored.

# Error mapping

Handlers return early on error after calling writeError, which maps the
pkg/harborerr sentinel taxonomy onto HTTP status codes via errors.Is.
Unrecognized errors fall back to 500 without leaking internal detail.

# See also

  - pkg/core - the wired dependency every handler reads from
  - pkg/resolver - backs POST /ship and POST /ship/{id}/start
  - pkg/proxy - backs exec/upload/download and the terminal route
*/
package api
