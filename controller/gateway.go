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
	"k8s.io/apimachinery/pkg/util/intstr"
	appsv1ac "k8s.io/client-go/applyconfigurations/apps/v1"
	corev1ac "k8s.io/client-go/applyconfigurations/core/v1"
	metav1ac "k8s.io/client-go/applyconfigurations/meta/v1"
	"sigs.k8s.io/yaml"
)

const (
	// gatewayFieldManager identifies the gateway reconciler's server-side
	// apply ownership, distinct from the cluster reconciler's.
	gatewayFieldManager = "cc-gateway-controller"

	// webGatewayName is the shared Gateway API listener every hub route
	// attaches to.
	webGatewayName = "cc-web-gateway"

	// DefaultGatewayImage runs the HTTP-over-rednet hub. Overridable per
	// deployment via controller.gateway_image or --gateway-image.
	DefaultGatewayImage = "registry.digitalocean.com/suremarc/computercraft-gateway:latest"

	// gatewayResync re-checks converged hubs; gatewayRetry re-checks after
	// a failed pass.
	gatewayResync = 5 * time.Minute
	gatewayRetry  = 10 * time.Second
)

// GatewayHubName is the shared name of a hub's config map, deployment,
// service, and route.
func GatewayHubName(gateway string) string {
	return fmt.Sprintf("rednet-gateway-%s", gateway)
}

// ListGateways lists every computer gateway in the namespace.
func (r *Registry) ListGateways(ctx context.Context, namespace string) ([]ComputerGateway, error) {
	list, err := r.dyn.Resource(GatewayGVR).Namespace(namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("listing gateways in %s: %w", namespace, err)
	}

	gateways := make([]ComputerGateway, 0, len(list.Items))
	for _, item := range list.Items {
		var gw ComputerGateway
		if err := runtime.DefaultUnstructuredConverter.FromUnstructured(item.Object, &gw); err != nil {
			return nil, fmt.Errorf("decoding gateway %s: %w", item.GetName(), err)
		}
		gateways = append(gateways, gw)
	}
	return gateways, nil
}

// EnsureGatewayHub applies the hub behind a gateway: a config map carrying
// the route table, a single-replica deployment of the hub image, a
// ClusterIP service, and an HTTPRoute attaching it to the shared web
// gateway. Everything is owned by the ComputerGateway so deleting it tears
// the hub down.
func (r *Registry) EnsureGatewayHub(ctx context.Context, gw *ComputerGateway, controllerNamespace, image string) error {
	name := GatewayHubName(gw.Name)
	opts := metav1.ApplyOptions{FieldManager: gatewayFieldManager, Force: true}

	cm, err := gatewayConfigMap(gw)
	if err != nil {
		return err
	}
	if _, err := r.clientset.CoreV1().ConfigMaps(gw.Namespace).Apply(ctx, cm, opts); err != nil {
		return fmt.Errorf("applying hub config map %s: %w", name, err)
	}

	if _, err := r.clientset.AppsV1().Deployments(gw.Namespace).Apply(ctx, gatewayDeployment(gw, image), opts); err != nil {
		return fmt.Errorf("applying hub deployment %s: %w", name, err)
	}

	if _, err := r.clientset.CoreV1().Services(gw.Namespace).Apply(ctx, gatewayService(gw), opts); err != nil {
		return fmt.Errorf("applying hub service %s: %w", name, err)
	}

	if _, err := r.dyn.Resource(HTTPRouteGVR).Namespace(gw.Namespace).Apply(
		ctx, name, gatewayHTTPRoute(gw, controllerNamespace), opts,
	); err != nil {
		return fmt.Errorf("applying hub route %s: %w", name, err)
	}

	r.logger.Debug("gateway hub ensured",
		zap.String("gateway", gw.Name),
		zap.String("namespace", gw.Namespace),
	)
	return nil
}

// gatewayConfigData is the document mounted into the hub at
// /etc/config/rednet.
type gatewayConfigData struct {
	Routes []RednetRoute `json:"routes"`
}

func gatewayConfigMap(gw *ComputerGateway) (*corev1ac.ConfigMapApplyConfiguration, error) {
	doc, err := yaml.Marshal(gatewayConfigData{Routes: gw.Spec.Routes})
	if err != nil {
		return nil, fmt.Errorf("encoding route table for gateway %s: %w", gw.Name, err)
	}

	return corev1ac.ConfigMap(GatewayHubName(gw.Name), gw.Namespace).
		WithOwnerReferences(gatewayOwnerReferenceAC(gw)).
		WithData(map[string]string{"rednet": string(doc)}), nil
}

func gatewayDeployment(gw *ComputerGateway, image string) *appsv1ac.DeploymentApplyConfiguration {
	name := GatewayHubName(gw.Name)
	labels := map[string]string{"app": name}

	return appsv1ac.Deployment(name, gw.Namespace).
		WithOwnerReferences(gatewayOwnerReferenceAC(gw)).
		WithSpec(appsv1ac.DeploymentSpec().
			WithReplicas(1).
			WithSelector(metav1ac.LabelSelector().WithMatchLabels(labels)).
			WithTemplate(corev1ac.PodTemplateSpec().
				WithLabels(labels).
				WithSpec(corev1ac.PodSpec().
					WithContainers(corev1ac.Container().
						WithName("rednet-gateway").
						WithImage(image).
						// The hub image reads its route table and bind
						// address from these.
						WithEnv(
							corev1ac.EnvVar().WithName("ROCKET_REDNET").WithValue("/etc/config/rednet"),
							corev1ac.EnvVar().WithName("ROCKET_ADDRESS").WithValue("0.0.0.0"),
						).
						WithVolumeMounts(corev1ac.VolumeMount().
							WithName("config").
							WithMountPath("/etc/config"))).
					WithVolumes(corev1ac.Volume().
						WithName("config").
						WithConfigMap(corev1ac.ConfigMapVolumeSource().WithName(name))))))
}

func gatewayService(gw *ComputerGateway) *corev1ac.ServiceApplyConfiguration {
	name := GatewayHubName(gw.Name)

	return corev1ac.Service(name, gw.Namespace).
		WithOwnerReferences(gatewayOwnerReferenceAC(gw)).
		WithSpec(corev1ac.ServiceSpec().
			WithType(corev1.ServiceTypeClusterIP).
			WithSelector(map[string]string{"app": name}).
			WithPorts(corev1ac.ServicePort().
				WithPort(8000).
				WithTargetPort(intstr.FromInt32(8000))))
}

// gatewayHTTPRoute exposes the hub under /<gateway name> on the shared web
// gateway, redirecting so the hub itself sees prefix-stripped paths.
func gatewayHTTPRoute(gw *ComputerGateway, controllerNamespace string) *unstructured.Unstructured {
	name := GatewayHubName(gw.Name)

	return &unstructured.Unstructured{Object: map[string]any{
		"apiVersion": HTTPRouteGVR.Group + "/" + HTTPRouteGVR.Version,
		"kind":       "HTTPRoute",
		"metadata": map[string]any{
			"name":      name,
			"namespace": gw.Namespace,
			"ownerReferences": []any{map[string]any{
				"apiVersion": Group + "/" + Version,
				"kind":       "ComputerGateway",
				"name":       gw.Name,
				"uid":        string(gw.UID),
			}},
		},
		"spec": map[string]any{
			"parentRefs": []any{map[string]any{
				"name":        webGatewayName,
				"namespace":   controllerNamespace,
				"sectionName": webGatewayName,
			}},
			"rules": []any{map[string]any{
				"matches": []any{map[string]any{
					"path": map[string]any{"value": "/" + gw.Name},
				}},
				"filters": []any{map[string]any{
					"type": "RequestRedirect",
					"requestRedirect": map[string]any{
						"path": map[string]any{
							"type":               "ReplacePrefixMatch",
							"replacePrefixMatch": "/",
						},
						"statusCode": int64(302),
					},
				}},
				"backendRefs": []any{map[string]any{
					"name": name,
					"port": int64(8000),
				}},
			}},
		},
	}}
}

func gatewayOwnerReferenceAC(gw *ComputerGateway) *metav1ac.OwnerReferenceApplyConfiguration {
	return metav1ac.OwnerReference().
		WithAPIVersion(Group + "/" + Version).
		WithKind("ComputerGateway").
		WithName(gw.Name).
		WithUID(gw.UID)
}

// GatewayStore is the registry surface the gateway reconciler needs.
type GatewayStore interface {
	ListGateways(ctx context.Context, namespace string) ([]ComputerGateway, error)
	EnsureGatewayHub(ctx context.Context, gw *ComputerGateway, controllerNamespace, image string) error
}

// GatewayReconciler keeps every gateway's hub provisioned.
type GatewayReconciler struct {
	store     GatewayStore
	namespace string
	image     string
	logger    *zap.Logger
}

// GatewayReconcilerConfig is the configuration options for the gateway
// reconciler.
type GatewayReconcilerConfig struct {
	Store GatewayStore

	// Namespace is the control-plane namespace, both where gateways are
	// listed and where the shared web gateway lives.
	Namespace string

	// Image overrides DefaultGatewayImage when non-empty.
	Image string

	Logger *zap.Logger
}

// NewGatewayReconciler creates a gateway reconciler from its configuration.
func NewGatewayReconciler(c *GatewayReconcilerConfig) *GatewayReconciler {
	image := c.Image
	if image == "" {
		image = DefaultGatewayImage
	}

	return &GatewayReconciler{
		store:     c.Store,
		namespace: c.Namespace,
		image:     image,
		logger:    c.Logger,
	}
}

// Reconcile makes one pass over every gateway in the namespace. A failing
// hub does not stop the others; the first error is returned so the loop
// retries sooner.
func (g *GatewayReconciler) Reconcile(ctx context.Context) error {
	gateways, err := g.store.ListGateways(ctx, g.namespace)
	if err != nil {
		return err
	}

	var firstErr error
	for i := range gateways {
		gw := &gateways[i]
		if err := g.store.EnsureGatewayHub(ctx, gw, g.namespace, g.image); err != nil {
			g.logger.Error("gateway hub reconcile failed",
				zap.String("gateway", gw.Name),
				zap.Error(err),
			)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// Run reconciles until the context is cancelled, backing off to a slow
// resync while everything is provisioned.
func (g *GatewayReconciler) Run(ctx context.Context) error {
	g.logger.Info("gateway reconciler started",
		zap.String("namespace", g.namespace),
		zap.String("image", g.image),
	)

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			g.logger.Info("gateway reconciler stopping")
			return nil

		case <-timer.C:
			delay := gatewayResync
			if err := g.Reconcile(ctx); err != nil {
				delay = gatewayRetry
			}
			timer.Reset(delay)
		}
	}
}
