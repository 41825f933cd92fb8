/*
Package reconciler periodically repairs drift between a Ship's
recorded Status and the actual state of its backing container, and
backstops pkg/scheduler for bindings that expire without a timer ever
firing for them.

# Drift repair

On every sweep, each active Ship's container is probed via the
configured Driver. Three disagreements are corrected:

  - Status is Running but the container is not: demoted to Stopped.
  - Status is Stopped but the container is running: promoted to
    Running (a process restart can lose in-memory scheduler timers
    while the container keeps running).
  - Status is Running with no ContainerID recorded at all: demoted to
    Stopped without probing anything.

This is level-triggered: the reconciler re-derives the correct state
from current observations every cycle rather than reacting to a
specific transition, so a missed cycle or a restart doesn't lose any
information — the next cycle converges regardless.

# Orphaned binding backstop

The scheduler's per-ship timers live only in process memory. A crash
or restart between a Binding's creation and its expiry loses the timer
entirely, leaving a Stopped ship (demoted by drift repair, or already
stopped before the restart) with Binding rows that were never deleted.
The reconciler's second pass expires these directly: any Binding on a
Stopped ship whose ExpiresAt is still in the future has its ExpiresAt
set to the current time; Bindings that have already expired are left
as they are. Bindings on a Running ship are left to the scheduler — this pass is strictly a
second line of defense, not a race with it.

# See also

  - pkg/scheduler - the primary, precise expiry mechanism this package
    backstops
  - pkg/runtime - the Driver interface queried for IsContainerRunning
*/
package reconciler
