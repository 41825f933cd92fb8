/*
Package scheduler arms and fires the deferred cleanup of Ships once
every Binding to them has expired.

Unlike the original fixed-interval scheduling loop this package is
descended from, Harbor's scheduler keeps no ticker: each Ship gets its
own time.AfterFunc timer, rearmed whenever Schedule is called (a new
Binding created, an existing one's TTL extended, a session released).
This keeps cleanup precise to the second rather than bounded by a poll
interval, while keeping the same mutex-guarded map and Start/Stop-style
lifecycle the rest of the codebase uses for background work.

# Effective expiry

A Ship may be shared in its history by more than one session's Binding
(though never concurrently, per the one-session-one-ship invariant), so
its effective expiry is the latest ExpiresAt across all of its current
Bindings. Schedule recomputes this on every call; fire() double-checks
it immediately before acting, since a concurrent Schedule call could
have rearmed a later timer between this one being queued and running.

# See also

  - pkg/resolver, which calls Schedule after creating/restoring a binding
  - pkg/reconciler, the periodic backstop for drift this scheduler does
    not by itself correct (a cleanup action that fails, a process crash
    between arming and firing)
*/
package scheduler
