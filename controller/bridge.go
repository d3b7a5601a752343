package controller

import (
	"context"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

// ClusterGetter fetches one cluster. *Registry implements it.
type ClusterGetter interface {
	GetCluster(ctx context.Context, namespace, name string) (*Cluster, error)
}

// Bridge is the command-and-control endpoint. In-game listeners open a
// websocket per cluster and receive the latest command list as JSON; each
// publish replaces whatever a slow subscriber has not read yet.
type Bridge struct {
	store  ClusterGetter
	logger *zap.Logger

	// OnSubscribe, when set, is called for each new subscriber so the
	// controller can reconcile the cluster immediately.
	OnSubscribe func(namespace, cluster string)

	mu     sync.Mutex
	topics map[clusterRef]*topic
}

// topic carries the latest commands for one cluster and its subscribers.
type topic struct {
	latest      []Command
	subscribers map[string]chan []Command
}

// NewBridge creates a bridge over the given cluster store.
func NewBridge(store ClusterGetter, logger *zap.Logger) *Bridge {
	return &Bridge{
		store:  store,
		logger: logger,
		topics: map[clusterRef]*topic{},
	}
}

// Publish replaces the command list for a cluster and notifies every
// subscriber. Subscribers that have not read the previous list get only
// the new one.
func (b *Bridge) Publish(namespace, cluster string, commands []Command) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t := b.topic(clusterRef{namespace: namespace, name: cluster})
	t.latest = commands

	for _, ch := range t.subscribers {
		select {
		case ch <- commands:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- commands
		}
	}
}

// Handler returns the HTTP handler serving the bridge route.
func (b *Bridge) Handler() http.Handler {
	router := mux.NewRouter()
	router.HandleFunc("/bridge/{namespace}/{cluster}", b.handleBridge).Methods(http.MethodGet)
	return router
}

func (b *Bridge) handleBridge(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	namespace, cluster := vars["namespace"], vars["cluster"]

	if _, err := b.store.GetCluster(r.Context(), namespace, cluster); err != nil {
		if apierrors.IsNotFound(err) {
			http.Error(w, "cluster not found", http.StatusNotFound)
			return
		}
		b.logger.Error("fetching cluster failed",
			zap.String("namespace", namespace),
			zap.String("cluster", cluster),
			zap.Error(err),
		)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		b.logger.Error("websocket accept failed", zap.Error(err))
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	id, ch, latest := b.subscribe(namespace, cluster)
	defer b.unsubscribe(namespace, cluster, id)

	if b.OnSubscribe != nil {
		b.OnSubscribe(namespace, cluster)
	}

	b.logger.Info("bridge subscriber connected",
		zap.String("namespace", namespace),
		zap.String("cluster", cluster),
		zap.String("subscriber", id),
	)

	ctx := r.Context()
	commands := latest
	for {
		if err := wsjson.Write(ctx, conn, commands); err != nil {
			b.logger.Debug("bridge subscriber gone",
				zap.String("subscriber", id),
				zap.Error(err),
			)
			return
		}

		select {
		case <-ctx.Done():
			return
		case commands = <-ch:
		}
	}
}

// subscribe registers a new subscriber and returns its id, channel, and the
// current command list.
func (b *Bridge) subscribe(namespace, cluster string) (string, chan []Command, []Command) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t := b.topic(clusterRef{namespace: namespace, name: cluster})

	id := uuid.NewString()
	ch := make(chan []Command, 1)
	t.subscribers[id] = ch

	return id, ch, t.latest
}

func (b *Bridge) unsubscribe(namespace, cluster, id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if t, ok := b.topics[clusterRef{namespace: namespace, name: cluster}]; ok {
		delete(t.subscribers, id)
	}
}

// topic returns the topic for a cluster, creating it on first use.
// Callers must hold b.mu.
func (b *Bridge) topic(ref clusterRef) *topic {
	t, ok := b.topics[ref]
	if !ok {
		t = &topic{subscribers: map[string]chan []Command{}}
		b.topics[ref] = t
	}
	return t
}
