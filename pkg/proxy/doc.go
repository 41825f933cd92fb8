/*
Package proxy forwards client operations to the Ship container backing
a session, and proxies the interactive terminal over a pair of
websockets.

# Request forwarding

Exec, Upload, and Download all share the same authorization shape:
look up the Ship (must be Running), look up the caller's Binding to it
(must exist and be unexpired), forward the operation downstream over
plain HTTP with the session id in a header, and on success refresh the
Binding and recompute the Ship's cleanup schedule (see pkg/scheduler).
Exec persists an ExecutionRecord on success, tagged with the submitted
exec type, for audit and later annotation by the client. Upload and
Download only refresh the binding — spec §4.6 scopes the audit trail
to exec calls.

# Terminal proxy

ServeTerminal upgrades the inbound HTTP request to a websocket only
after validating the access token, Ship status, and session binding. A
failed check returns a TerminalError with a distinct code per failure
and the request is never upgraded, so the client sees an HTTP status
(mapped by pkg/api), not a websocket close code. Once both ends are connected, two goroutines forward
frames in each direction, preserving text/binary framing; either side
closing or erroring cancels a shared context that closes both
connections, which stops both loops.

# See also

  - pkg/resolver - produces the Ship and Binding this package forwards against
  - pkg/scheduler - the TTL refresh every successful forward triggers
*/
package proxy
