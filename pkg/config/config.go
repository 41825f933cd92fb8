// Package config loads Harbor's runtime configuration from a YAML file,
// environment variables, and CLI flags, in that order of increasing
// precedence.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/harborctl/harbor/pkg/types"
)

// Config is Harbor's full configuration surface.
type Config struct {
	Host  string `yaml:"host"`
	Port  int    `yaml:"port"`
	Debug bool   `yaml:"debug"`

	MaxShipNum            int                   `yaml:"max_ship_num"`
	BehaviorAfterMaxShip  types.MaxShipBehavior `yaml:"behavior_after_max_ship"`
	AccessToken           string                `yaml:"access_token"`
	DataDir               string                `yaml:"data_dir"`

	ContainerDriver types.DriverKind `yaml:"container_driver"`

	KubeNamespace        string `yaml:"kube_namespace"`
	KubeConfigPath       string `yaml:"kube_config_path"`
	KubeImagePullPolicy  string `yaml:"kube_image_pull_policy"`
	KubePVCSize          string `yaml:"kube_pvc_size"`
	KubeStorageClass     string `yaml:"kube_storage_class"`

	DockerImage        string `yaml:"docker_image"`
	DockerNetwork      string `yaml:"docker_network"`
	DockerSocketPath   string `yaml:"docker_socket_path"`
	PodmanSocketPath   string `yaml:"podman_socket_path"`
	ContainerdSocket   string `yaml:"containerd_socket"`
	ContainerdNamespace string `yaml:"containerd_namespace"`
	ShipContainerPort  int    `yaml:"ship_container_port"`

	DefaultShipTTL    int     `yaml:"default_ship_ttl"`
	DefaultShipCpus   float64 `yaml:"default_ship_cpus"`
	DefaultShipMemory string  `yaml:"default_ship_memory"`
	DefaultShipDisk   string  `yaml:"default_ship_disk"`

	ShipHealthCheckTimeout  int    `yaml:"ship_health_check_timeout"`
	ShipHealthCheckInterval int    `yaml:"ship_health_check_interval"`
	ShipHealthCheckPath     string `yaml:"ship_health_check_path"`

	AdmissionWaitTimeout int `yaml:"admission_wait_timeout_seconds"`
	AdmissionWaitPoll    int `yaml:"admission_wait_poll_seconds"`

	ForwardExecTimeout    int `yaml:"forward_exec_timeout_seconds"`
	ForwardTransferTimeout int `yaml:"forward_transfer_timeout_seconds"`

	MaxUploadSize int64  `yaml:"max_upload_size"`
	ShipDataDir   string `yaml:"ship_data_dir"`

	ReconcileInterval int `yaml:"reconcile_interval_seconds"`
}

// Default returns the configuration used when no file is provided,
// mirroring the original implementation's field defaults.
func Default() *Config {
	return &Config{
		Host:  "0.0.0.0",
		Port:  8156,
		Debug: false,

		MaxShipNum:           10,
		BehaviorAfterMaxShip: types.BehaviorWait,
		AccessToken:          "secret-token",
		DataDir:              "./harbor-data",

		ContainerDriver: types.DriverDocker,

		KubeNamespace:       "default",
		KubeImagePullPolicy: "IfNotPresent",
		KubePVCSize:         "1Gi",

		DockerImage:         "ship:latest",
		DockerNetwork:       "harbor",
		DockerSocketPath:    "/var/run/docker.sock",
		PodmanSocketPath:    "/run/podman/podman.sock",
		ContainerdSocket:    "/run/containerd/containerd.sock",
		ContainerdNamespace: "harbor",
		ShipContainerPort:   8123,

		DefaultShipTTL:    3600,
		DefaultShipCpus:   1.0,
		DefaultShipMemory: "512m",
		DefaultShipDisk:   "1g",

		ShipHealthCheckTimeout:  60,
		ShipHealthCheckInterval: 2,
		ShipHealthCheckPath:     "/health",

		AdmissionWaitTimeout: 300,
		AdmissionWaitPoll:    5,

		ForwardExecTimeout:     30,
		ForwardTransferTimeout: 120,

		MaxUploadSize: 100 * 1024 * 1024,
		ShipDataDir:   "~/ship_data",

		ReconcileInterval: 60,
	}
}

// Load reads a YAML file at path (if non-empty and present) over the
// defaults, then applies environment variable overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("reading config file: %w", err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("HARBOR_ACCESS_TOKEN"); v != "" {
		cfg.AccessToken = v
	}
	if v := os.Getenv("HARBOR_CONTAINER_DRIVER"); v != "" {
		cfg.ContainerDriver = types.DriverKind(v)
	}
	if v := os.Getenv("HARBOR_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("HARBOR_HOST"); v != "" {
		cfg.Host = v
	}
}
