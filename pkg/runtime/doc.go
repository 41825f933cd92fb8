/*
Package runtime implements Harbor's Driver abstraction: the container
runtime integration that actually creates, stops, and inspects the
container or pod backing a Ship.

# Variants

Six concrete drivers are selectable via configuration, refining the
three address-mode families from the original design into the six
driver_type strings the prior implementation supported:

	docker        daemon-socket, network-internal IP
	docker-host   daemon-socket, host-published port
	podman        daemon-socket (Podman's Docker-compatible API), internal IP
	podman-host   daemon-socket (Podman), host-published port
	containerd    direct containerd client, no intermediate daemon
	kubernetes    orchestrator, Pod + PersistentVolumeClaim

docker/docker-host/podman/podman-host share a single implementation
(dockerCompatibleDriver in docker.go) parameterized by socket path and
address mode, since Podman speaks the identical Engine API as Docker and
only the two address-resolution strategies differ.

# Resource normalization

Every driver enforces the 128MiB memory floor before handing a ShipSpec
to its runtime; the 100MiB disk floor is enforced by the
docker-compatible drivers, the only ones that apply a disk quota. Both
are implemented once in spec.go. The Kubernetes driver additionally
rewrites the Docker-style "m" and "mi" suffixes to "Mi" (and "mb" to
"M") before constructing a resource.Quantity, and passes a value raised
to the floor as a raw byte count — Kubernetes treats a bare "m" suffix
as milli- (1/1000), which would silently turn "512m" into a fraction of
a byte.

# See also

  - pkg/resolver, pkg/scheduler, pkg/reconciler and pkg/api, the callers
    of Driver
  - pkg/config for the per-driver settings
*/
package runtime
