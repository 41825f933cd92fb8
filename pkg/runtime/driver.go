package runtime

import (
	"context"
	"fmt"
	"io"

	"github.com/harborctl/harbor/pkg/config"
	"github.com/harborctl/harbor/pkg/types"
)

// Driver abstracts the container runtime used to back a Ship. Each
// selectable DriverKind (docker, docker-host, podman, podman-host,
// containerd, kubernetes) implements this contract.
type Driver interface {
	// CreateShipContainer creates and starts the backing container/pod
	// for a new or restored Ship, returning its runtime handle and address.
	CreateShipContainer(ctx context.Context, shipID string, spec types.ShipSpec) (types.ContainerInfo, error)

	// StopShipContainer stops (and, where applicable, removes) the
	// backing container. Treats "already gone" as success.
	StopShipContainer(ctx context.Context, containerID string) error

	// IsContainerRunning reports whether the backing container is
	// currently in a running state. Never returns an error: a container
	// that cannot be reached is simply not running.
	IsContainerRunning(ctx context.Context, containerID string) bool

	// GetContainerLogs returns recent log output for the container.
	GetContainerLogs(ctx context.Context, containerID string) (io.ReadCloser, error)

	// ShipDataExists reports whether a persisted data directory already
	// exists for shipID (used by the Resolver to decide restore-vs-create).
	ShipDataExists(shipID string) bool

	// EnsureShipDirs creates the persisted home/metadata directories for
	// shipID if they don't already exist.
	EnsureShipDirs(shipID string) error

	// DeleteShipData permanently destroys shipID's persisted data
	// (volume, PVC, or data directory, depending on the driver). Only a
	// permanent Ship delete may call this; stopping a container for TTL
	// expiry, soft delete, or scheduler cleanup must never reach it.
	DeleteShipData(ctx context.Context, shipID string) error
}

// NewDriver constructs the Driver selected by cfg.ContainerDriver.
func NewDriver(cfg *config.Config) (Driver, error) {
	switch cfg.ContainerDriver {
	case types.DriverDocker:
		return newDockerCompatibleDriver(dockerCompatibleOptions{
			socketPath:  cfg.DockerSocketPath,
			addressMode: addressModeInternal,
			network:     cfg.DockerNetwork,
			image:       cfg.DockerImage,
			port:        cfg.ShipContainerPort,
			dataDir:     cfg.ShipDataDir,
		})
	case types.DriverDockerHost:
		return newDockerCompatibleDriver(dockerCompatibleOptions{
			socketPath:  cfg.DockerSocketPath,
			addressMode: addressModeHostPort,
			network:     cfg.DockerNetwork,
			image:       cfg.DockerImage,
			port:        cfg.ShipContainerPort,
			dataDir:     cfg.ShipDataDir,
		})
	case types.DriverPodman:
		return newDockerCompatibleDriver(dockerCompatibleOptions{
			socketPath:  cfg.PodmanSocketPath,
			addressMode: addressModeInternal,
			network:     cfg.DockerNetwork,
			image:       cfg.DockerImage,
			port:        cfg.ShipContainerPort,
			dataDir:     cfg.ShipDataDir,
		})
	case types.DriverPodmanHost:
		return newDockerCompatibleDriver(dockerCompatibleOptions{
			socketPath:  cfg.PodmanSocketPath,
			addressMode: addressModeHostPort,
			network:     cfg.DockerNetwork,
			image:       cfg.DockerImage,
			port:        cfg.ShipContainerPort,
			dataDir:     cfg.ShipDataDir,
		})
	case types.DriverContainerd:
		return NewContainerdDriver(cfg)
	case types.DriverKubernetes:
		return NewKubernetesDriver(cfg)
	default:
		return nil, fmt.Errorf("unsupported container driver: %q", cfg.ContainerDriver)
	}
}
