package controller

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

// fakeClusterGetter serves a fixed set of clusters.
type fakeClusterGetter struct {
	clusters map[string]*Cluster
	err      error
}

func (f *fakeClusterGetter) GetCluster(_ context.Context, namespace, name string) (*Cluster, error) {
	if f.err != nil {
		return nil, f.err
	}
	if cluster, ok := f.clusters[namespace+"/"+name]; ok {
		return cluster, nil
	}
	return nil, apierrors.NewNotFound(schema.GroupResource{Group: Group, Resource: "clusters"}, name)
}

var _ = Describe("Bridge", func() {
	var (
		getter *fakeClusterGetter
		bridge *Bridge
		server *httptest.Server
	)

	BeforeEach(func() {
		getter = &fakeClusterGetter{clusters: map[string]*Cluster{
			"computercraft/mine": {},
		}}
		bridge = NewBridge(getter, zap.NewNop())
		server = httptest.NewServer(bridge.Handler())
	})

	AfterEach(func() {
		server.Close()
	})

	wsURL := func(path string) string {
		return "ws://" + strings.TrimPrefix(server.URL, "http://") + path
	}

	dial := func(ctx context.Context, path string) *websocket.Conn {
		conn, _, err := websocket.Dial(ctx, wsURL(path), nil)
		Expect(err).NotTo(HaveOccurred())
		return conn
	}

	It("rejects a subscription for an unknown cluster", func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		_, resp, err := websocket.Dial(ctx, wsURL("/bridge/computercraft/nope"), nil)
		Expect(err).To(HaveOccurred())
		Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
	})

	It("fails closed when the cluster lookup errors", func() {
		getter.err = errors.New("api unavailable")

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		_, resp, err := websocket.Dial(ctx, wsURL("/bridge/computercraft/mine"), nil)
		Expect(err).To(HaveOccurred())
		Expect(resp.StatusCode).To(Equal(http.StatusInternalServerError))
	})

	It("sends the latest command list to a new subscriber", func() {
		bridge.Publish("computercraft", "mine", []Command{WakeComputer("7")})

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		conn := dial(ctx, "/bridge/computercraft/mine")
		defer conn.Close(websocket.StatusNormalClosure, "")

		var commands []Command
		Expect(wsjson.Read(ctx, conn, &commands)).To(Succeed())
		Expect(commands).To(HaveLen(1))
		Expect(commands[0].Wake).NotTo(BeNil())
		Expect(commands[0].Wake.ComputerID).To(Equal("7"))
	})

	It("streams subsequent publishes", func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		conn := dial(ctx, "/bridge/computercraft/mine")
		defer conn.Close(websocket.StatusNormalClosure, "")

		// Initial frame is the (empty) latest list.
		var commands []Command
		Expect(wsjson.Read(ctx, conn, &commands)).To(Succeed())
		Expect(commands).To(BeEmpty())

		bridge.Publish("computercraft", "mine", []Command{WakeComputer("7"), WakeComputer("8")})

		Expect(wsjson.Read(ctx, conn, &commands)).To(Succeed())
		Expect(commands).To(HaveLen(2))
		Expect(commands[1].Wake.ComputerID).To(Equal("8"))
	})

	It("replaces unread commands with the latest publish", func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		conn := dial(ctx, "/bridge/computercraft/mine")
		defer conn.Close(websocket.StatusNormalClosure, "")

		var commands []Command
		Expect(wsjson.Read(ctx, conn, &commands)).To(Succeed())

		// The subscriber is not reading while both publishes happen; it
		// must see only the newest list.
		bridge.Publish("computercraft", "mine", []Command{WakeComputer("old")})
		bridge.Publish("computercraft", "mine", []Command{WakeComputer("new")})

		Eventually(func() string {
			if err := wsjson.Read(ctx, conn, &commands); err != nil {
				return ""
			}
			if len(commands) == 0 || commands[0].Wake == nil {
				return ""
			}
			return commands[0].Wake.ComputerID
		}).Should(Equal("new"))
	})

	It("notifies on each new subscriber", func() {
		var (
			mu         sync.Mutex
			subscribed []string
		)
		bridge.OnSubscribe = func(namespace, cluster string) {
			mu.Lock()
			defer mu.Unlock()
			subscribed = append(subscribed, namespace+"/"+cluster)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		conn := dial(ctx, "/bridge/computercraft/mine")
		defer conn.Close(websocket.StatusNormalClosure, "")

		Eventually(func() []string {
			mu.Lock()
			defer mu.Unlock()
			return append([]string(nil), subscribed...)
		}).Should(ConsistOf("computercraft/mine"))
	})
})
