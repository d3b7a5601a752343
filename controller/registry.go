package controller

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/types"
	corev1ac "k8s.io/client-go/applyconfigurations/core/v1"
	metav1ac "k8s.io/client-go/applyconfigurations/meta/v1"
	rbacv1ac "k8s.io/client-go/applyconfigurations/rbac/v1"
	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

const (
	// fieldManager identifies this controller's server-side-apply ownership.
	fieldManager = "computercraft-controller"

	// computerClusterRole is the pre-installed ClusterRole granting computers
	// their API access.
	computerClusterRole = "computer"

	serviceAccountTokenAnnotation = "kubernetes.io/service-account.name"
)

// Registry wraps the Kubernetes API for the cluster and computer custom
// resources plus the per-cluster RBAC objects.
type Registry struct {
	dyn       dynamic.Interface
	clientset kubernetes.Interface
	logger    *zap.Logger
}

// NewRegistry builds a registry from in-cluster configuration, falling back
// to the given kubeconfig path (or the standard loading rules when empty).
func NewRegistry(kubeconfigPath string, logger *zap.Logger) (*Registry, error) {
	restCfg, err := rest.InClusterConfig()
	if err != nil {
		loadingRules := clientcmd.NewDefaultClientConfigLoadingRules()
		if kubeconfigPath != "" {
			loadingRules.ExplicitPath = kubeconfigPath
		}
		restCfg, err = clientcmd.NewNonInteractiveDeferredLoadingClientConfig(
			loadingRules, &clientcmd.ConfigOverrides{},
		).ClientConfig()
		if err != nil {
			return nil, fmt.Errorf("loading kubernetes configuration: %w", err)
		}
	}

	dyn, err := dynamic.NewForConfig(restCfg)
	if err != nil {
		return nil, fmt.Errorf("creating dynamic client: %w", err)
	}

	clientset, err := kubernetes.NewForConfig(restCfg)
	if err != nil {
		return nil, fmt.Errorf("creating clientset: %w", err)
	}

	return NewRegistryWithClients(dyn, clientset, logger), nil
}

// NewRegistryWithClients builds a registry over pre-constructed clients.
func NewRegistryWithClients(dyn dynamic.Interface, clientset kubernetes.Interface, logger *zap.Logger) *Registry {
	return &Registry{
		dyn:       dyn,
		clientset: clientset,
		logger:    logger,
	}
}

// GetCluster fetches a cluster. Kubernetes API errors are returned
// unwrapped so callers can test them with apierrors.IsNotFound.
func (r *Registry) GetCluster(ctx context.Context, namespace, name string) (*Cluster, error) {
	obj, err := r.dyn.Resource(ClusterGVR).Namespace(namespace).Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return nil, err
	}

	var cluster Cluster
	if err := runtime.DefaultUnstructuredConverter.FromUnstructured(obj.Object, &cluster); err != nil {
		return nil, fmt.Errorf("decoding cluster %s/%s: %w", namespace, name, err)
	}
	return &cluster, nil
}

// ListClusters lists every cluster in the namespace.
func (r *Registry) ListClusters(ctx context.Context, namespace string) ([]Cluster, error) {
	list, err := r.dyn.Resource(ClusterGVR).Namespace(namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("listing clusters in %s: %w", namespace, err)
	}

	clusters := make([]Cluster, 0, len(list.Items))
	for _, item := range list.Items {
		var cluster Cluster
		if err := runtime.DefaultUnstructuredConverter.FromUnstructured(item.Object, &cluster); err != nil {
			return nil, fmt.Errorf("decoding cluster %s: %w", item.GetName(), err)
		}
		clusters = append(clusters, cluster)
	}
	return clusters, nil
}

// ListComputers lists every computer in the namespace.
func (r *Registry) ListComputers(ctx context.Context, namespace string) ([]Computer, error) {
	list, err := r.dyn.Resource(ComputerGVR).Namespace(namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("listing computers in %s: %w", namespace, err)
	}

	computers := make([]Computer, 0, len(list.Items))
	for _, item := range list.Items {
		var computer Computer
		if err := runtime.DefaultUnstructuredConverter.FromUnstructured(item.Object, &computer); err != nil {
			return nil, fmt.Errorf("decoding computer %s: %w", item.GetName(), err)
		}
		computers = append(computers, computer)
	}
	return computers, nil
}

// RegisterComputer applies a computer resource owned by the cluster. Apply
// semantics make registration idempotent across agent restarts.
func (r *Registry) RegisterComputer(ctx context.Context, cluster *Cluster, spec ComputerSpec) (*Computer, error) {
	name := ComputerName(cluster.Name, spec.ID)

	computer := Computer{
		TypeMeta: metav1.TypeMeta{
			APIVersion: Group + "/" + Version,
			Kind:       "Computer",
		},
		ObjectMeta: metav1.ObjectMeta{
			Name:            name,
			Namespace:       cluster.Namespace,
			OwnerReferences: []metav1.OwnerReference{clusterOwnerReference(cluster)},
		},
		Spec: spec,
	}

	obj, err := runtime.DefaultUnstructuredConverter.ToUnstructured(&computer)
	if err != nil {
		return nil, fmt.Errorf("encoding computer %s: %w", name, err)
	}

	applied, err := r.dyn.Resource(ComputerGVR).Namespace(cluster.Namespace).Apply(
		ctx, name, &unstructured.Unstructured{Object: obj},
		metav1.ApplyOptions{FieldManager: fieldManager, Force: true},
	)
	if err != nil {
		return nil, fmt.Errorf("registering computer %s: %w", name, err)
	}

	var out Computer
	if err := runtime.DefaultUnstructuredConverter.FromUnstructured(applied.Object, &out); err != nil {
		return nil, fmt.Errorf("decoding registered computer %s: %w", name, err)
	}

	r.logger.Info("computer registered",
		zap.String("cluster", cluster.Name),
		zap.String("computer", name),
		zap.String("kind", string(spec.Kind)),
	)
	return &out, nil
}

// SetComputerOnline patches a computer's online flag.
func (r *Registry) SetComputerOnline(ctx context.Context, namespace, name string, online bool) error {
	patch := fmt.Sprintf(`{"status":{"online":%t}}`, online)
	return r.patchComputerStatus(ctx, namespace, name, []byte(patch))
}

// Heartbeat records a heartbeat on the computer's status.
func (r *Registry) Heartbeat(ctx context.Context, namespace, name string) error {
	patch := fmt.Sprintf(`{"status":{"online":true,"last_heartbeat_unix_sec":%d}}`, time.Now().Unix())
	return r.patchComputerStatus(ctx, namespace, name, []byte(patch))
}

// ReportComputerState records the configuration the computer last applied.
func (r *Registry) ReportComputerState(ctx context.Context, namespace, name string, state ComputerState) error {
	body, err := runtime.DefaultUnstructuredConverter.ToUnstructured(&Computer{Status: &ComputerStatus{State: state}})
	if err != nil {
		return fmt.Errorf("encoding computer state: %w", err)
	}

	obj := &unstructured.Unstructured{Object: map[string]any{
		"apiVersion": Group + "/" + Version,
		"kind":       "Computer",
		"metadata":   map[string]any{"name": name, "namespace": namespace},
		"status":     body["status"],
	}}

	_, err = r.dyn.Resource(ComputerGVR).Namespace(namespace).Apply(
		ctx, name, obj,
		metav1.ApplyOptions{FieldManager: fieldManager, Force: true},
		"status",
	)
	if err != nil {
		return fmt.Errorf("reporting state for computer %s: %w", name, err)
	}
	return nil
}

func (r *Registry) patchComputerStatus(ctx context.Context, namespace, name string, patch []byte) error {
	_, err := r.dyn.Resource(ComputerGVR).Namespace(namespace).Patch(
		ctx, name, types.MergePatchType, patch,
		metav1.PatchOptions{FieldManager: fieldManager},
		"status",
	)
	if err != nil {
		return fmt.Errorf("patching status of computer %s/%s: %w", namespace, name, err)
	}
	return nil
}

// EnsureClusterRBAC applies the per-cluster service account, its cluster
// role binding, and a token secret, all owned by the cluster so they are
// garbage-collected with it.
func (r *Registry) EnsureClusterRBAC(ctx context.Context, cluster *Cluster) error {
	name := ServiceAccountName(cluster.Name)
	owner := clusterOwnerReferenceAC(cluster)
	opts := metav1.ApplyOptions{FieldManager: fieldManager, Force: true}

	sa := corev1ac.ServiceAccount(name, cluster.Namespace).
		WithOwnerReferences(owner)
	if _, err := r.clientset.CoreV1().ServiceAccounts(cluster.Namespace).Apply(ctx, sa, opts); err != nil {
		return fmt.Errorf("applying service account %s: %w", name, err)
	}

	crb := rbacv1ac.ClusterRoleBinding(name).
		WithOwnerReferences(owner).
		WithRoleRef(rbacv1ac.RoleRef().
			WithAPIGroup("rbac.authorization.k8s.io").
			WithKind("ClusterRole").
			WithName(computerClusterRole)).
		WithSubjects(rbacv1ac.Subject().
			WithKind("ServiceAccount").
			WithName(name).
			WithNamespace(cluster.Namespace))
	if _, err := r.clientset.RbacV1().ClusterRoleBindings().Apply(ctx, crb, opts); err != nil {
		return fmt.Errorf("applying cluster role binding %s: %w", name, err)
	}

	secret := corev1ac.Secret(name, cluster.Namespace).
		WithOwnerReferences(owner).
		WithAnnotations(map[string]string{serviceAccountTokenAnnotation: name}).
		WithType(corev1.SecretTypeServiceAccountToken)
	if _, err := r.clientset.CoreV1().Secrets(cluster.Namespace).Apply(ctx, secret, opts); err != nil {
		return fmt.Errorf("applying token secret %s: %w", name, err)
	}

	return nil
}

// ComputerName is the resource name for a computer registered under a
// cluster.
func ComputerName(cluster, computerID string) string {
	return fmt.Sprintf("%s-%s", cluster, computerID)
}

// ServiceAccountName is the per-cluster service account (and binding and
// secret) name.
func ServiceAccountName(cluster string) string {
	return fmt.Sprintf("computer-%s", cluster)
}

func clusterOwnerReference(cluster *Cluster) metav1.OwnerReference {
	return metav1.OwnerReference{
		APIVersion: Group + "/" + Version,
		Kind:       "Cluster",
		Name:       cluster.Name,
		UID:        cluster.UID,
	}
}

func clusterOwnerReferenceAC(cluster *Cluster) *metav1ac.OwnerReferenceApplyConfiguration {
	return metav1ac.OwnerReference().
		WithAPIVersion(Group + "/" + Version).
		WithKind("Cluster").
		WithName(cluster.Name).
		WithUID(cluster.UID)
}
