package types

import "time"

// Ship represents a single allocated sandbox: a running (or formerly
// running) container plus the persistent data directory backing it.
type Ship struct {
	ID          string
	Status      ShipStatus
	ContainerID string // empty until the driver has created the backing container
	IPAddress   string // host:port or bare IP depending on the driver's address mode
	Spec        ShipSpec
	TTL         int // seconds, as requested when the Ship was created; effective expiry comes from its bindings
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ShipStatus is the lifecycle state of a Ship.
type ShipStatus string

const (
	ShipStopped  ShipStatus = "stopped"
	ShipRunning  ShipStatus = "running"
	ShipCreating ShipStatus = "creating"
)

// ShipSpec describes the resource envelope requested for a Ship.
// Memory and Disk are free-form strings ("512m", "1Gi", "2g") normalized
// by the driver at creation time; Cpus is a fractional core count.
type ShipSpec struct {
	Cpus   float64
	Memory string
	Disk   string
}

// Binding ties a client Session to exactly one Ship. A Session never
// holds more than one active Binding at a time (the one-ship-per-session
// invariant); Bindings to the same Ship from prior Sessions may persist
// in Stopped/expired form for history purposes only.
type Binding struct {
	ID           string
	SessionID    string
	ShipID       string
	CreatedAt    time.Time
	LastActivity time.Time
	ExpiresAt    time.Time
	InitialTTL   int // seconds, the TTL requested when this binding was created/extended
}

// ExecutionRecord is an audit trail entry for one forwarded operation.
type ExecutionRecord struct {
	ID              string
	SessionID       string
	ShipID          string
	Kind            ExecutionKind
	Command         string
	Success         bool
	ExecutionTimeMS int64
	CreatedAt       time.Time
	Description     string
	Error           string
	Tags            []string
	Notes           string
}

// ExecutionKind is the submitted operation type for an exec call, e.g.
// "shell/exec" or "ipython/exec" — whatever the caller passed as the
// request's type field. Upload and download never produce an
// ExecutionRecord, so no fixed enum of kinds is needed here.
type ExecutionKind string

// DriverKind selects which container runtime backs Ship creation.
type DriverKind string

const (
	DriverDocker       DriverKind = "docker"
	DriverDockerHost   DriverKind = "docker-host"
	DriverPodman       DriverKind = "podman"
	DriverPodmanHost   DriverKind = "podman-host"
	DriverContainerd   DriverKind = "containerd"
	DriverKubernetes   DriverKind = "kubernetes"
)

// MaxShipBehavior controls admission once the ship cap is reached.
type MaxShipBehavior string

const (
	BehaviorReject MaxShipBehavior = "reject"
	BehaviorWait   MaxShipBehavior = "wait"
)

// ContainerInfo is what a Driver returns after successfully starting a
// backing container for a Ship.
type ContainerInfo struct {
	ContainerID string
	IPAddress   string
	Status      string
}
