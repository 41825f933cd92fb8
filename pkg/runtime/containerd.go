package runtime

import (
	"context"
	"fmt"
	"io"
	"net"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/containerd/containerd"
	"github.com/containerd/containerd/cio"
	"github.com/containerd/containerd/namespaces"
	"github.com/containerd/containerd/oci"
	specs "github.com/opencontainers/runtime-spec/specs-go"

	"github.com/harborctl/harbor/pkg/config"
	"github.com/harborctl/harbor/pkg/log"
	"github.com/harborctl/harbor/pkg/types"
)

// ContainerdDriver implements Driver directly against containerd,
// bypassing a Docker-compatible daemon entirely.
type ContainerdDriver struct {
	client    *containerd.Client
	namespace string
	image     string
	dataDir   string
}

// NewContainerdDriver creates a new containerd-backed Driver.
func NewContainerdDriver(cfg *config.Config) (*ContainerdDriver, error) {
	socketPath := cfg.ContainerdSocket
	if socketPath == "" {
		socketPath = "/run/containerd/containerd.sock"
	}

	client, err := containerd.New(socketPath)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to containerd: %w", err)
	}

	namespace := cfg.ContainerdNamespace
	if namespace == "" {
		namespace = "harbor"
	}

	return &ContainerdDriver{
		client:    client,
		namespace: namespace,
		image:     cfg.DockerImage,
		dataDir:   cfg.ShipDataDir,
	}, nil
}

// Close closes the containerd client connection.
func (r *ContainerdDriver) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

func (r *ContainerdDriver) CreateShipContainer(ctx context.Context, shipID string, spec types.ShipSpec) (types.ContainerInfo, error) {
	ctx = namespaces.WithNamespace(ctx, r.namespace)
	logger := log.WithComponent("runtime.containerd").With().Str("ship_id", shipID).Logger()

	homeDir, metadataDir, err := ensureShipDirs(r.dataDir, shipID)
	if err != nil {
		return types.ContainerInfo{}, err
	}

	memBytes, err := parseAndEnforceMinimumMemory(spec.Memory)
	if err != nil {
		return types.ContainerInfo{}, fmt.Errorf("parsing memory spec: %w", err)
	}

	image, err := r.client.GetImage(ctx, r.image)
	if err != nil {
		logger.Info().Str("image", r.image).Msg("image not present locally, pulling")
		image, err = r.client.Pull(ctx, r.image, containerd.WithPullUnpack)
		if err != nil {
			return types.ContainerInfo{}, fmt.Errorf("pulling image %s: %w", r.image, err)
		}
	}

	containerName := "ship-" + shipID
	shares := uint64(spec.Cpus * 1024)
	quota := int64(spec.Cpus * 100000)
	period := uint64(100000)

	opts := []oci.SpecOpts{
		oci.WithImageConfig(image),
		oci.WithCPUShares(shares),
		oci.WithCPUCFS(quota, period),
		oci.WithMemoryLimit(uint64(memBytes)),
		oci.WithMounts([]specs.Mount{
			{Source: homeDir, Destination: "/home/ship", Type: "bind", Options: []string{"rbind"}},
			{Source: metadataDir, Destination: "/var/lib/ship/metadata", Type: "bind", Options: []string{"rbind"}},
		}),
	}

	ctrdContainer, err := r.client.NewContainer(
		ctx,
		containerName,
		containerd.WithImage(image),
		containerd.WithNewSnapshot(containerName+"-snapshot", image),
		containerd.WithNewSpec(opts...),
	)
	if err != nil {
		return types.ContainerInfo{}, fmt.Errorf("failed to create container: %w", err)
	}

	task, err := ctrdContainer.NewTask(ctx, cio.NullIO)
	if err != nil {
		return types.ContainerInfo{}, fmt.Errorf("failed to create task: %w", err)
	}
	if err := task.Start(ctx); err != nil {
		return types.ContainerInfo{}, fmt.Errorf("failed to start task: %w", err)
	}

	ip, err := r.getContainerIP(ctx, task.Pid())
	if err != nil {
		_ = r.StopShipContainer(ctx, containerName)
		return types.ContainerInfo{}, fmt.Errorf("resolving ship address: %w", err)
	}

	return types.ContainerInfo{ContainerID: containerName, IPAddress: ip, Status: "running"}, nil
}

func (r *ContainerdDriver) StopShipContainer(ctx context.Context, containerID string) error {
	ctx = namespaces.WithNamespace(ctx, r.namespace)

	container, err := r.client.LoadContainer(ctx, containerID)
	if err != nil {
		return nil // already gone
	}

	task, err := container.Task(ctx, nil)
	if err == nil {
		stopCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()

		if err := task.Kill(stopCtx, syscall.SIGTERM); err == nil {
			statusC, waitErr := task.Wait(stopCtx)
			if waitErr == nil {
				select {
				case <-statusC:
				case <-stopCtx.Done():
					_ = task.Kill(ctx, syscall.SIGKILL)
				}
			}
		}
		_, _ = task.Delete(ctx)
	}

	if err := container.Delete(ctx, containerd.WithSnapshotCleanup); err != nil {
		return fmt.Errorf("failed to delete container: %w", err)
	}
	return nil
}

func (r *ContainerdDriver) IsContainerRunning(ctx context.Context, containerID string) bool {
	ctx = namespaces.WithNamespace(ctx, r.namespace)

	container, err := r.client.LoadContainer(ctx, containerID)
	if err != nil {
		return false
	}
	task, err := container.Task(ctx, nil)
	if err != nil {
		return false
	}
	status, err := task.Status(ctx)
	if err != nil {
		return false
	}
	return status.Status == containerd.Running
}

func (r *ContainerdDriver) GetContainerLogs(ctx context.Context, containerID string) (io.ReadCloser, error) {
	return nil, fmt.Errorf("log retrieval not supported by the containerd driver; use the docker or podman driver instead")
}

func (r *ContainerdDriver) ShipDataExists(shipID string) bool {
	return shipDataExists(r.dataDir, shipID)
}

func (r *ContainerdDriver) EnsureShipDirs(shipID string) error {
	_, _, err := ensureShipDirs(r.dataDir, shipID)
	return err
}

func (r *ContainerdDriver) DeleteShipData(ctx context.Context, shipID string) error {
	return deleteShipData(r.dataDir, shipID)
}

func (r *ContainerdDriver) getContainerIP(ctx context.Context, pid uint32) (string, error) {
	if pid == 0 {
		return "", fmt.Errorf("container task has no PID")
	}

	cmd := exec.CommandContext(ctx, "nsenter", "-t", fmt.Sprintf("%d", pid), "-n", "ip", "-4", "addr", "show", "eth0")
	output, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("failed to get container IP: %w (output: %s)", err, string(output))
	}

	lines := strings.Split(string(output), "\n")
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "inet ") {
			parts := strings.Fields(line)
			if len(parts) >= 2 {
				ip, _, err := net.ParseCIDR(parts[1])
				if err != nil {
					return "", fmt.Errorf("failed to parse IP address %s: %w", parts[1], err)
				}
				return ip.String(), nil
			}
		}
	}

	return "", fmt.Errorf("no IP address found for container")
}
