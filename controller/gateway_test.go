package controller

import (
	"context"
	"errors"
	"strings"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/types"
)

type hubCall struct {
	gateway   string
	namespace string
	image     string
}

// fakeGatewayStore is an in-memory GatewayStore.
type fakeGatewayStore struct {
	mu       sync.Mutex
	gateways []ComputerGateway
	listErr  error
	failFor  map[string]error

	calls []hubCall
}

func (s *fakeGatewayStore) ListGateways(_ context.Context, _ string) ([]ComputerGateway, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	return s.gateways, nil
}

func (s *fakeGatewayStore) EnsureGatewayHub(_ context.Context, gw *ComputerGateway, controllerNamespace, image string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, hubCall{gateway: gw.Name, namespace: controllerNamespace, image: image})
	if err, ok := s.failFor[gw.Name]; ok {
		return err
	}
	return nil
}

func (s *fakeGatewayStore) hubCalls() []hubCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]hubCall(nil), s.calls...)
}

func gatewayFixture(name string) ComputerGateway {
	return ComputerGateway{
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: "fleet",
			UID:       types.UID("uid-" + name),
		},
		Spec: GatewaySpec{
			Routes: []RednetRoute{
				{
					Prefix:  "/mail",
					Backend: RednetBackend{Computer: &ComputerBackend{ID: "7"}},
				},
				{
					Prefix:  "/dns",
					Backend: RednetBackend{Anycast: &AnycastBackend{Protocol: "dns"}},
				},
			},
		},
	}
}

var _ = Describe("GatewayReconciler", func() {
	var (
		store      *fakeGatewayStore
		reconciler *GatewayReconciler
	)

	BeforeEach(func() {
		store = &fakeGatewayStore{
			gateways: []ComputerGateway{gatewayFixture("hub1"), gatewayFixture("hub2")},
		}
		reconciler = NewGatewayReconciler(&GatewayReconcilerConfig{
			Store:     store,
			Namespace: "control",
			Logger:    zap.NewNop(),
		})
	})

	It("provisions a hub for every gateway", func() {
		Expect(reconciler.Reconcile(context.Background())).To(Succeed())

		calls := store.hubCalls()
		Expect(calls).To(HaveLen(2))
		Expect(calls[0].gateway).To(Equal("hub1"))
		Expect(calls[1].gateway).To(Equal("hub2"))
		for _, call := range calls {
			Expect(call.namespace).To(Equal("control"))
			Expect(call.image).To(Equal(DefaultGatewayImage))
		}
	})

	It("deploys the configured image", func() {
		reconciler = NewGatewayReconciler(&GatewayReconcilerConfig{
			Store:     store,
			Namespace: "control",
			Image:     "registry.example.com/hub:v2",
			Logger:    zap.NewNop(),
		})

		Expect(reconciler.Reconcile(context.Background())).To(Succeed())
		Expect(store.hubCalls()[0].image).To(Equal("registry.example.com/hub:v2"))
	})

	It("keeps provisioning the rest when one hub fails", func() {
		boom := errors.New("boom")
		store.failFor = map[string]error{"hub1": boom}

		err := reconciler.Reconcile(context.Background())
		Expect(err).To(MatchError(boom))
		Expect(store.hubCalls()).To(HaveLen(2))
	})

	It("propagates list errors", func() {
		store.listErr = errors.New("api unavailable")
		Expect(reconciler.Reconcile(context.Background())).To(MatchError(store.listErr))
	})

	It("reconciles on start when run", func() {
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- reconciler.Run(ctx) }()

		Eventually(store.hubCalls).Should(HaveLen(2))
		cancel()
		Eventually(done).Should(Receive(BeNil()))
	})
})

var _ = Describe("gateway hub resources", func() {
	gw := gatewayFixture("hub1")

	It("shares the hub name across resources", func() {
		Expect(GatewayHubName("hub1")).To(Equal("rednet-gateway-hub1"))
	})

	It("renders the route table into the config map", func() {
		cm, err := gatewayConfigMap(&gw)
		Expect(err).NotTo(HaveOccurred())
		Expect(*cm.Name).To(Equal("rednet-gateway-hub1"))

		doc := cm.Data["rednet"]
		Expect(doc).To(ContainSubstring("routes:"))
		Expect(doc).To(ContainSubstring("prefix: /mail"))
		Expect(doc).To(ContainSubstring("computer:"))
		Expect(doc).To(ContainSubstring("anycast:"))
		Expect(doc).To(ContainSubstring("protocol: dns"))

		Expect(cm.OwnerReferences).To(HaveLen(1))
		Expect(*cm.OwnerReferences[0].Kind).To(Equal("ComputerGateway"))
		Expect(*cm.OwnerReferences[0].Name).To(Equal("hub1"))
	})

	It("mounts the config map into the hub deployment", func() {
		dep := gatewayDeployment(&gw, "registry.example.com/hub:v2")

		Expect(*dep.Name).To(Equal("rednet-gateway-hub1"))
		Expect(*dep.Spec.Replicas).To(Equal(int32(1)))
		Expect(dep.Spec.Selector.MatchLabels).To(HaveKeyWithValue("app", "rednet-gateway-hub1"))

		container := dep.Spec.Template.Spec.Containers[0]
		Expect(*container.Image).To(Equal("registry.example.com/hub:v2"))
		Expect(*container.VolumeMounts[0].MountPath).To(Equal("/etc/config"))

		envNames := make([]string, 0, len(container.Env))
		for _, env := range container.Env {
			envNames = append(envNames, *env.Name)
		}
		Expect(envNames).To(ConsistOf("ROCKET_REDNET", "ROCKET_ADDRESS"))

		volume := dep.Spec.Template.Spec.Volumes[0]
		Expect(*volume.ConfigMap.Name).To(Equal("rednet-gateway-hub1"))
	})

	It("exposes the hub on port 8000", func() {
		svc := gatewayService(&gw)

		Expect(svc.Spec.Selector).To(HaveKeyWithValue("app", "rednet-gateway-hub1"))
		Expect(*svc.Spec.Ports[0].Port).To(Equal(int32(8000)))
	})

	It("routes the gateway's prefix through the shared web gateway", func() {
		route := gatewayHTTPRoute(&gw, "control")

		Expect(route.GetAPIVersion()).To(Equal("gateway.networking.k8s.io/v1"))
		Expect(route.GetKind()).To(Equal("HTTPRoute"))
		Expect(route.GetName()).To(Equal("rednet-gateway-hub1"))
		Expect(route.GetNamespace()).To(Equal("fleet"))

		refs, found, err := unstructured.NestedSlice(route.Object, "spec", "parentRefs")
		Expect(err).NotTo(HaveOccurred())
		Expect(found).To(BeTrue())
		parent := refs[0].(map[string]any)
		Expect(parent["name"]).To(Equal("cc-web-gateway"))
		Expect(parent["namespace"]).To(Equal("control"))

		rules, _, err := unstructured.NestedSlice(route.Object, "spec", "rules")
		Expect(err).NotTo(HaveOccurred())
		rule := rules[0].(map[string]any)

		match := rule["matches"].([]any)[0].(map[string]any)
		path := match["path"].(map[string]any)
		Expect(path["value"]).To(Equal("/hub1"))

		backend := rule["backendRefs"].([]any)[0].(map[string]any)
		Expect(backend["name"]).To(Equal("rednet-gateway-hub1"))
		Expect(backend["port"]).To(Equal(int64(8000)))

		owners := route.GetOwnerReferences()
		Expect(owners).To(HaveLen(1))
		Expect(owners[0].Kind).To(Equal("ComputerGateway"))
		Expect(strings.HasPrefix(string(owners[0].UID), "uid-")).To(BeTrue())
	})
})
