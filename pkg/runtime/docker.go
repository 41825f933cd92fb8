package runtime

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/docker/docker/api/types/container"
	dockernetwork "github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"

	"github.com/harborctl/harbor/pkg/log"
	"github.com/harborctl/harbor/pkg/types"
)

// addressMode controls how a Ship's address is derived from a created
// container, mirroring the two Docker/Podman variants in the original
// driver family.
type addressMode int

const (
	// addressModeInternal reads the container's network-internal IP, for
	// Harbor processes that share the Docker/Podman bridge network.
	addressModeInternal addressMode = iota
	// addressModeHostPort reads the host-published port and builds a
	// 127.0.0.1:port address, for Harbor processes running on the host.
	addressModeHostPort
)

type dockerCompatibleOptions struct {
	socketPath  string
	addressMode addressMode
	network     string
	image       string
	port        int
	dataDir     string
}

// dockerCompatibleDriver backs all four docker/docker-host/podman/
// podman-host variants with a single implementation. Podman's Go client
// speaks the same Engine API as Docker (original_source confirms the
// Python podman driver is just a Docker driver subclass pointed at a
// different socket), so only the socket path and address mode vary.
type dockerCompatibleDriver struct {
	cli  *client.Client
	opts dockerCompatibleOptions
}

func newDockerCompatibleDriver(opts dockerCompatibleOptions) (Driver, error) {
	cli, err := client.NewClientWithOpts(
		client.WithHost("unix://"+opts.socketPath),
		client.WithAPIVersionNegotiation(),
	)
	if err != nil {
		return nil, fmt.Errorf("creating docker-compatible client for %s: %w", opts.socketPath, err)
	}
	return &dockerCompatibleDriver{cli: cli, opts: opts}, nil
}

func (d *dockerCompatibleDriver) CreateShipContainer(ctx context.Context, shipID string, spec types.ShipSpec) (types.ContainerInfo, error) {
	logger := log.WithComponent("runtime.docker").With().Str("ship_id", shipID).Logger()

	homeDir, metadataDir, err := ensureShipDirs(d.opts.dataDir, shipID)
	if err != nil {
		return types.ContainerInfo{}, err
	}

	memBytes, err := parseAndEnforceMinimumMemory(spec.Memory)
	if err != nil {
		return types.ContainerInfo{}, fmt.Errorf("parsing memory spec: %w", err)
	}
	diskBytes, err := parseAndEnforceMinimumDisk(spec.Disk)
	if err != nil {
		return types.ContainerInfo{}, fmt.Errorf("parsing disk spec: %w", err)
	}

	containerName := "ship-" + shipID
	portKey := nat.Port(fmt.Sprintf("%d/tcp", d.opts.port))

	containerID, err := d.createAndStart(ctx, containerName, homeDir, metadataDir, memBytes, diskBytes, spec, portKey, true)
	if err != nil && isStorageOptUnsupported(err) {
		// Mirrors the original driver's fallback: some storage drivers
		// (e.g. overlay2 without pquota) reject --storage-opt entirely.
		// Retry once without a disk quota rather than failing the request.
		logger.Warn().Err(err).Msg("disk quota unsupported by storage driver, retrying without it")
		containerID, err = d.createAndStart(ctx, containerName, homeDir, metadataDir, memBytes, diskBytes, spec, portKey, false)
	}
	if err != nil {
		return types.ContainerInfo{}, err
	}

	ip, err := d.resolveAddress(ctx, containerID, portKey)
	if err != nil {
		_ = d.StopShipContainer(ctx, containerID)
		return types.ContainerInfo{}, fmt.Errorf("resolving ship address: %w", err)
	}

	return types.ContainerInfo{ContainerID: containerID, IPAddress: ip, Status: "running"}, nil
}

func (d *dockerCompatibleDriver) createAndStart(
	ctx context.Context,
	name, homeDir, metadataDir string,
	memBytes, diskBytes int64,
	spec types.ShipSpec,
	portKey nat.Port,
	withDiskQuota bool,
) (string, error) {
	exposedPorts := nat.PortSet{portKey: struct{}{}}
	hostConfig := &container.HostConfig{
		RestartPolicy: container.RestartPolicy{Name: "no"},
		PortBindings: nat.PortMap{
			portKey: []nat.PortBinding{{HostIP: "0.0.0.0", HostPort: ""}},
		},
		Binds: []string{
			homeDir + ":/home/ship",
			metadataDir + ":/var/lib/ship/metadata",
		},
		Resources: container.Resources{
			Memory:   memBytes,
			NanoCPUs: int64(spec.Cpus * 1e9),
		},
	}
	if withDiskQuota {
		hostConfig.StorageOpt = map[string]string{"size": fmt.Sprintf("%d", diskBytes)}
	}

	networkConfig := &dockernetwork.NetworkingConfig{
		EndpointsConfig: map[string]*dockernetwork.EndpointSettings{
			d.opts.network: {},
		},
	}

	resp, err := d.cli.ContainerCreate(ctx, &container.Config{
		Image:        d.opts.image,
		ExposedPorts: exposedPorts,
	}, hostConfig, networkConfig, nil, name)
	if err != nil {
		return "", fmt.Errorf("creating container: %w", err)
	}

	if err := d.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return "", fmt.Errorf("starting container: %w", err)
	}

	return resp.ID, nil
}

func isStorageOptUnsupported(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "storage-opt") || strings.Contains(msg, "storageopt")
}

func (d *dockerCompatibleDriver) resolveAddress(ctx context.Context, containerID string, portKey nat.Port) (string, error) {
	info, err := d.cli.ContainerInspect(ctx, containerID)
	if err != nil {
		return "", fmt.Errorf("inspecting container: %w", err)
	}

	switch d.opts.addressMode {
	case addressModeHostPort:
		bindings, ok := info.NetworkSettings.Ports[portKey]
		if !ok || len(bindings) == 0 {
			return "", fmt.Errorf("no published host port found for %s", portKey)
		}
		return fmt.Sprintf("127.0.0.1:%s", bindings[0].HostPort), nil
	default:
		if net, ok := info.NetworkSettings.Networks[d.opts.network]; ok && net.IPAddress != "" {
			return net.IPAddress, nil
		}
		if info.NetworkSettings.IPAddress != "" {
			return info.NetworkSettings.IPAddress, nil
		}
		return "", fmt.Errorf("no network-internal IP address found for container")
	}
}

func (d *dockerCompatibleDriver) StopShipContainer(ctx context.Context, containerID string) error {
	if containerID == "" {
		return nil
	}
	timeoutSeconds := 10
	if err := d.cli.ContainerStop(ctx, containerID, container.StopOptions{Timeout: &timeoutSeconds}); err != nil {
		if !isNoSuchContainer(err) {
			return fmt.Errorf("stopping container %s: %w", containerID, err)
		}
	}
	if err := d.cli.ContainerRemove(ctx, containerID, container.RemoveOptions{Force: true}); err != nil {
		if !isNoSuchContainer(err) {
			return fmt.Errorf("removing container %s: %w", containerID, err)
		}
	}
	return nil
}

func isNoSuchContainer(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "no such container")
}

func (d *dockerCompatibleDriver) IsContainerRunning(ctx context.Context, containerID string) bool {
	if containerID == "" {
		return false
	}
	info, err := d.cli.ContainerInspect(ctx, containerID)
	if err != nil {
		return false
	}
	return info.State != nil && info.State.Running
}

func (d *dockerCompatibleDriver) GetContainerLogs(ctx context.Context, containerID string) (io.ReadCloser, error) {
	return d.cli.ContainerLogs(ctx, containerID, container.LogsOptions{ShowStdout: true, ShowStderr: true, Tail: "200"})
}

func (d *dockerCompatibleDriver) ShipDataExists(shipID string) bool {
	return shipDataExists(d.opts.dataDir, shipID)
}

func (d *dockerCompatibleDriver) EnsureShipDirs(shipID string) error {
	_, _, err := ensureShipDirs(d.opts.dataDir, shipID)
	return err
}

func (d *dockerCompatibleDriver) DeleteShipData(ctx context.Context, shipID string) error {
	return deleteShipData(d.opts.dataDir, shipID)
}
