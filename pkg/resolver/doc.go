/*
Package resolver implements Harbor's core decision ladder: given a
session, a requested TTL, and a resource spec, produce a Running Ship
bound to that session. The ladder tries four rungs in order and stops
at the first that succeeds:

 1. Reuse — the session already holds an active Binding to a Ship
    whose container is still running.
 2. Restore — the session's most recently Stopped Ship still has its
    on-disk data; recreate the container over it.
 3. Warm-pool takeover — attach to any Running Ship nobody currently
    holds an active Binding to, re-verifying it's still alive right
    before committing (a concurrent resolver may have already taken it).
 4. Create — enforce the configured ship cap (reject or wait), then
    allocate a brand new Ship end to end: persist, create the backing
    container, probe health, bind, and schedule cleanup.

ForceCreate skips straight to rung 4, used when a caller explicitly
wants a fresh Ship regardless of what it already holds.

Rungs 2-4 call pkg/scheduler.Schedule before returning, since a new or
refreshed Binding changes the Ship's effective expiry. Rung 1 only
updates the Binding's LastActivity and leaves the schedule as it is.

# See also

  - pkg/scheduler - cleanup scheduling invoked after every successful bind
  - pkg/storage - the composite queries this ladder is built from
  - pkg/runtime - Driver, consulted to re-verify liveness at each rung
*/
package resolver
