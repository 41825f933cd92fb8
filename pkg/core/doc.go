/*
Package core wires Harbor's subsystems together into the single value
the rest of the process depends on.

There is no cluster membership or consensus layer here, unlike the
teacher this package is adapted from: Harbor runs as one process per
deployment, backed by one embedded store. Core exists so pkg/api's
handlers have exactly one thing to hold a reference to rather than six.

# Wiring order

	Store (BoltDB)
	  -> Driver        (container runtime, selected by config)
	  -> Scheduler      (depends on Store, Driver)
	  -> Resolver       (depends on Store, Driver, Scheduler, Config)
	  -> Reconciler     (depends on Store, Driver)
	  -> Proxy          (depends on Store, Scheduler, Config)

New constructs all of the above but starts nothing. Start arms cleanup
timers for every Ship left not Stopped by a prior run and begins
the Reconciler's background sweep; Stop tears both down and closes the
store.

# See also

  - pkg/resolver - session-to-Ship binding decisions
  - pkg/reconciler - background drift repair
  - pkg/scheduler - per-Ship TTL cleanup timers
  - pkg/proxy - request forwarding and the terminal proxy
*/
package core
