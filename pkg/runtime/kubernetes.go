package runtime

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"

	"github.com/harborctl/harbor/pkg/config"
	"github.com/harborctl/harbor/pkg/log"
	"github.com/harborctl/harbor/pkg/types"
)

const inClusterNamespaceFile = "/var/run/secrets/kubernetes.io/serviceaccount/namespace"

// KubernetesDriver backs a Ship with a Pod + PersistentVolumeClaim pair,
// for deployments where Harbor itself runs inside the cluster it
// schedules Ships into.
type KubernetesDriver struct {
	clientset    *kubernetes.Clientset
	namespace    string
	image        string
	pullPolicy   string
	pvcSize      string
	storageClass string
	port         int
}

// NewKubernetesDriver builds a Kubernetes-backed Driver, preferring
// in-cluster config and falling back to a kubeconfig file.
func NewKubernetesDriver(cfg *config.Config) (*KubernetesDriver, error) {
	restConfig, err := rest.InClusterConfig()
	if err != nil {
		restConfig, err = clientcmd.BuildConfigFromFlags("", cfg.KubeConfigPath)
		if err != nil {
			return nil, fmt.Errorf("loading kubeconfig: %w", err)
		}
	}

	clientset, err := kubernetes.NewForConfig(restConfig)
	if err != nil {
		return nil, fmt.Errorf("creating kubernetes client: %w", err)
	}

	namespace := currentNamespace(cfg.KubeNamespace)

	return &KubernetesDriver{
		clientset:    clientset,
		namespace:    namespace,
		image:        cfg.DockerImage,
		pullPolicy:   cfg.KubeImagePullPolicy,
		pvcSize:      cfg.KubePVCSize,
		storageClass: cfg.KubeStorageClass,
		port:         cfg.ShipContainerPort,
	}, nil
}

func currentNamespace(fallback string) string {
	data, err := os.ReadFile(inClusterNamespaceFile)
	if err != nil {
		return fallback
	}
	return string(data)
}

func podName(shipID string) string { return "ship-" + shipID }
func pvcName(shipID string) string { return "ship-" + shipID }

func (k *KubernetesDriver) CreateShipContainer(ctx context.Context, shipID string, spec types.ShipSpec) (types.ContainerInfo, error) {
	logger := log.WithComponent("runtime.kubernetes").With().Str("ship_id", shipID).Logger()
	pods := k.clientset.CoreV1().Pods(k.namespace)
	pvcs := k.clientset.CoreV1().PersistentVolumeClaims(k.namespace)

	pvc := k.buildPVCManifest(shipID)
	pvcCreated := true
	if _, err := pvcs.Create(ctx, pvc, metav1.CreateOptions{}); err != nil {
		if !apierrors.IsAlreadyExists(err) {
			return types.ContainerInfo{}, fmt.Errorf("creating PVC for ship %s: %w", shipID, err)
		}
		pvcCreated = false
		logger.Warn().Msg("PVC already exists, reusing")
	}

	pod, err := k.buildPodManifest(shipID, spec)
	if err != nil {
		return types.ContainerInfo{}, err
	}
	if _, err := pods.Create(ctx, pod, metav1.CreateOptions{}); err != nil {
		if !apierrors.IsAlreadyExists(err) {
			// Clean up the PVC we just created so it doesn't orphan.
			if pvcCreated {
				_ = pvcs.Delete(ctx, pvcName(shipID), metav1.DeleteOptions{})
			}
			return types.ContainerInfo{}, fmt.Errorf("creating pod for ship %s: %w", shipID, err)
		}
		logger.Warn().Msg("Pod already exists")
	}

	ip, err := k.waitForPodReady(ctx, shipID)
	if err != nil {
		_ = k.StopShipContainer(ctx, podName(shipID))
		return types.ContainerInfo{}, fmt.Errorf("waiting for pod ready: %w", err)
	}

	return types.ContainerInfo{ContainerID: podName(shipID), IPAddress: ip, Status: "running"}, nil
}

func (k *KubernetesDriver) buildPVCManifest(shipID string) *corev1.PersistentVolumeClaim {
	pvc := &corev1.PersistentVolumeClaim{
		ObjectMeta: metav1.ObjectMeta{
			Name:   pvcName(shipID),
			Labels: map[string]string{"harbor.io/ship-id": shipID},
		},
		Spec: corev1.PersistentVolumeClaimSpec{
			AccessModes: []corev1.PersistentVolumeAccessMode{corev1.ReadWriteOnce},
			Resources: corev1.VolumeResourceRequirements{
				Requests: corev1.ResourceList{
					corev1.ResourceStorage: resource.MustParse(k.pvcSize),
				},
			},
		},
	}
	if k.storageClass != "" {
		pvc.Spec.StorageClassName = &k.storageClass
	}
	return pvc
}

func (k *KubernetesDriver) buildPodManifest(shipID string, spec types.ShipSpec) (*corev1.Pod, error) {
	memoryQuantity, err := normalizeMemoryForK8s(spec.Memory)
	if err != nil {
		return nil, fmt.Errorf("normalizing memory spec: %w", err)
	}

	resources := corev1.ResourceRequirements{
		Limits: corev1.ResourceList{
			corev1.ResourceMemory: resource.MustParse(memoryQuantity),
		},
	}
	if spec.Cpus > 0 {
		resources.Limits[corev1.ResourceCPU] = *resource.NewMilliQuantity(int64(spec.Cpus*1000), resource.DecimalSI)
	}

	return &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Name:   podName(shipID),
			Labels: map[string]string{"harbor.io/ship-id": shipID},
		},
		Spec: corev1.PodSpec{
			RestartPolicy: corev1.RestartPolicyNever,
			Containers: []corev1.Container{{
				Name:            "ship",
				Image:           k.image,
				ImagePullPolicy: corev1.PullPolicy(k.pullPolicy),
				Ports:           []corev1.ContainerPort{{ContainerPort: int32(k.port)}},
				Resources:       resources,
				VolumeMounts: []corev1.VolumeMount{
					{Name: "ship-data", MountPath: "/home/ship"},
				},
			}},
			Volumes: []corev1.Volume{{
				Name: "ship-data",
				VolumeSource: corev1.VolumeSource{
					PersistentVolumeClaim: &corev1.PersistentVolumeClaimVolumeSource{
						ClaimName: pvcName(shipID),
					},
				},
			}},
		},
	}, nil
}

func (k *KubernetesDriver) waitForPodReady(ctx context.Context, shipID string) (string, error) {
	pods := k.clientset.CoreV1().Pods(k.namespace)
	deadline := time.Now().Add(60 * time.Second)
	for time.Now().Before(deadline) {
		pod, err := pods.Get(ctx, podName(shipID), metav1.GetOptions{})
		ready := err == nil && pod.Status.Phase == corev1.PodRunning && pod.Status.PodIP != "" &&
			len(pod.Status.ContainerStatuses) > 0
		if ready {
			for _, cs := range pod.Status.ContainerStatuses {
				ready = ready && cs.Ready
			}
		}
		if ready {
			return pod.Status.PodIP, nil
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}
	return "", fmt.Errorf("pod did not become ready within timeout")
}

// StopShipContainer deletes the Pod only. The PVC backing a Ship's data
// survives a stop — TTL expiry, soft delete, and scheduler cleanup all
// call this, and none of them may destroy user data (see DeleteShipData).
func (k *KubernetesDriver) StopShipContainer(ctx context.Context, containerID string) error {
	if containerID == "" {
		return nil
	}
	pods := k.clientset.CoreV1().Pods(k.namespace)
	if err := pods.Delete(ctx, containerID, metav1.DeleteOptions{}); err != nil && !apierrors.IsNotFound(err) {
		return fmt.Errorf("deleting pod %s: %w", containerID, err)
	}
	return nil
}

// DeleteShipData deletes the PersistentVolumeClaim backing shipID.
// Called only from a permanent Ship delete.
func (k *KubernetesDriver) DeleteShipData(ctx context.Context, shipID string) error {
	pvcs := k.clientset.CoreV1().PersistentVolumeClaims(k.namespace)
	if err := pvcs.Delete(ctx, pvcName(shipID), metav1.DeleteOptions{}); err != nil && !apierrors.IsNotFound(err) {
		return fmt.Errorf("deleting pvc for ship %s: %w", shipID, err)
	}
	return nil
}

func (k *KubernetesDriver) IsContainerRunning(ctx context.Context, containerID string) bool {
	if containerID == "" {
		return false
	}
	pod, err := k.clientset.CoreV1().Pods(k.namespace).Get(ctx, containerID, metav1.GetOptions{})
	if err != nil {
		return false
	}
	return pod.Status.Phase == corev1.PodRunning
}

func (k *KubernetesDriver) GetContainerLogs(ctx context.Context, containerID string) (io.ReadCloser, error) {
	req := k.clientset.CoreV1().Pods(k.namespace).GetLogs(containerID, &corev1.PodLogOptions{TailLines: int64Ptr(200)})
	return req.Stream(ctx)
}

func int64Ptr(v int64) *int64 { return &v }

// ShipDataExists checks for PVC existence rather than a local directory,
// since Kubernetes mode has no local filesystem notion of ship data.
func (k *KubernetesDriver) ShipDataExists(shipID string) bool {
	_, err := k.clientset.CoreV1().PersistentVolumeClaims(k.namespace).Get(context.Background(), pvcName(shipID), metav1.GetOptions{})
	return err == nil
}

// EnsureShipDirs is a no-op under Kubernetes: the PVC is created lazily
// by CreateShipContainer, there is no separate directory-preparation step.
func (k *KubernetesDriver) EnsureShipDirs(shipID string) error {
	return nil
}
