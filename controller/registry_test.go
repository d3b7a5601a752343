package controller

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/apimachinery/pkg/types"
	dynamicfake "k8s.io/client-go/dynamic/fake"
	k8sfake "k8s.io/client-go/kubernetes/fake"
)

func clusterObject(namespace, name, uid string) *unstructured.Unstructured {
	return &unstructured.Unstructured{Object: map[string]any{
		"apiVersion": Group + "/" + Version,
		"kind":       "Cluster",
		"metadata": map[string]any{
			"name":      name,
			"namespace": namespace,
			"uid":       uid,
		},
		"spec": map[string]any{},
	}}
}

func computerObject(namespace, name, id string) *unstructured.Unstructured {
	return &unstructured.Unstructured{Object: map[string]any{
		"apiVersion": Group + "/" + Version,
		"kind":       "Computer",
		"metadata": map[string]any{
			"name":      name,
			"namespace": namespace,
		},
		"spec": map[string]any{
			"id":    id,
			"kind":  "worker",
			"state": map[string]any{"label": "drone"},
		},
	}}
}

var _ = Describe("Registry", func() {
	var (
		registry  *Registry
		clientset *k8sfake.Clientset
	)

	newRegistry := func(objects ...runtime.Object) {
		scheme := runtime.NewScheme()
		dyn := dynamicfake.NewSimpleDynamicClientWithCustomListKinds(scheme,
			map[schema.GroupVersionResource]string{
				ClusterGVR:  "ClusterList",
				ComputerGVR: "ComputerList",
			},
			objects...,
		)
		clientset = k8sfake.NewClientset()
		registry = NewRegistryWithClients(dyn, clientset, zap.NewNop())
	}

	Describe("GetCluster", func() {
		It("decodes an existing cluster", func() {
			newRegistry(clusterObject("computercraft", "mine", "uid-mine"))

			cluster, err := registry.GetCluster(context.Background(), "computercraft", "mine")
			Expect(err).NotTo(HaveOccurred())
			Expect(cluster.Name).To(Equal("mine"))
			Expect(cluster.UID).To(Equal(types.UID("uid-mine")))
		})

		It("surfaces not-found as a kubernetes api error", func() {
			newRegistry()

			_, err := registry.GetCluster(context.Background(), "computercraft", "nope")
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("ListComputers", func() {
		It("decodes every computer in the namespace", func() {
			newRegistry(
				computerObject("computercraft", "mine-7", "7"),
				computerObject("computercraft", "mine-8", "8"),
			)

			computers, err := registry.ListComputers(context.Background(), "computercraft")
			Expect(err).NotTo(HaveOccurred())
			Expect(computers).To(HaveLen(2))
			Expect(computers[0].Spec.Kind).To(Equal(KindWorker))
			Expect(computers[0].Spec.State.Label).To(Equal("drone"))
		})
	})

	Describe("SetComputerOnline", func() {
		It("patches the online flag", func() {
			newRegistry(computerObject("computercraft", "mine-7", "7"))

			Expect(registry.SetComputerOnline(context.Background(), "computercraft", "mine-7", false)).To(Succeed())
		})
	})

	Describe("EnsureClusterRBAC", func() {
		cluster := &Cluster{ObjectMeta: metav1.ObjectMeta{
			Name:      "mine",
			Namespace: "computercraft",
			UID:       types.UID("uid-mine"),
		}}

		BeforeEach(func() {
			newRegistry()
			Expect(registry.EnsureClusterRBAC(context.Background(), cluster)).To(Succeed())
		})

		It("creates a cluster-owned service account", func() {
			sa, err := clientset.CoreV1().ServiceAccounts("computercraft").Get(context.Background(), "computer-mine", metav1.GetOptions{})
			Expect(err).NotTo(HaveOccurred())
			Expect(sa.OwnerReferences).To(HaveLen(1))
			Expect(sa.OwnerReferences[0].Name).To(Equal("mine"))
			Expect(sa.OwnerReferences[0].UID).To(Equal(types.UID("uid-mine")))
		})

		It("binds the service account to the computer cluster role", func() {
			crb, err := clientset.RbacV1().ClusterRoleBindings().Get(context.Background(), "computer-mine", metav1.GetOptions{})
			Expect(err).NotTo(HaveOccurred())
			Expect(crb.RoleRef.Kind).To(Equal("ClusterRole"))
			Expect(crb.RoleRef.Name).To(Equal("computer"))
			Expect(crb.Subjects).To(HaveLen(1))
			Expect(crb.Subjects[0].Name).To(Equal("computer-mine"))
			Expect(crb.Subjects[0].Namespace).To(Equal("computercraft"))
		})

		It("creates a token secret for the service account", func() {
			secret, err := clientset.CoreV1().Secrets("computercraft").Get(context.Background(), "computer-mine", metav1.GetOptions{})
			Expect(err).NotTo(HaveOccurred())
			Expect(string(secret.Type)).To(Equal("kubernetes.io/service-account-token"))
			Expect(secret.Annotations).To(HaveKeyWithValue("kubernetes.io/service-account.name", "computer-mine"))
		})

		It("is idempotent", func() {
			Expect(registry.EnsureClusterRBAC(context.Background(), cluster)).To(Succeed())
		})
	})

	Describe("names", func() {
		It("derives computer and service account names", func() {
			Expect(ComputerName("mine", "7")).To(Equal("mine-7"))
			Expect(ServiceAccountName("mine")).To(Equal("computer-mine"))
		})
	})
})
