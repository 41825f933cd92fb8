/*
Package types defines Harbor's domain model: the three persisted
entities (Ship, Binding, ExecutionRecord) plus the enums and value
types the rest of the packages pass between each other.

# Core Types

Ship lifecycle:
  - Ship: an allocated sandbox — a container (once started) plus the
    persistent data directory backing it.
  - ShipStatus: Creating, Running, or Stopped.
  - ShipSpec: the requested resource envelope (Cpus, Memory, Disk);
    Memory/Disk are free-form strings normalized by the driver.

Session binding:
  - Binding: ties exactly one Session to exactly one Ship at a time.
    There is no standalone Session row — a Session's current state is
    always read off its most recent Binding.

Audit trail:
  - ExecutionRecord: one forwarded exec call, tagged with the submitted
    exec type (e.g. "shell/exec", "ipython/exec"), its outcome, and the
    optional description/tags/notes annotations a caller can attach
    after the fact via the history PATCH endpoint. Upload and download
    never produce one.

Configuration enums:
  - DriverKind: which container runtime backs Ship creation (docker,
    docker-host, podman, podman-host, containerd, kubernetes).
  - MaxShipBehavior: what happens to a creation request once the ship
    cap is hit (reject or wait).

# Design Patterns

Enums are typed string constants, matching the teacher's convention:

	type ShipStatus string
	const (
		ShipRunning ShipStatus = "running"
	)

All types are plain value types with no ORM tags: pkg/storage persists
them as JSON, so field names alone define the wire/storage shape.

# See Also

  - pkg/storage for persistence
  - pkg/api for the HTTP view types built from these
  - pkg/resolver and pkg/scheduler for Ship/Binding lifecycle logic
*/
package types
