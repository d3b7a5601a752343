package controller

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultHeartbeatWindow is how stale a heartbeat may be before the
	// computer is considered offline.
	DefaultHeartbeatWindow = 5 * time.Minute

	// requeueActive re-checks quickly while commands are outstanding;
	// requeueConverged backs off once a cluster is in its desired state.
	requeueActive    = 10 * time.Second
	requeueConverged = 5 * time.Minute
)

// Store is the registry surface the reconciler needs. *Registry implements
// it; tests substitute an in-memory fake.
type Store interface {
	ListClusters(ctx context.Context, namespace string) ([]Cluster, error)
	ListComputers(ctx context.Context, namespace string) ([]Computer, error)
	SetComputerOnline(ctx context.Context, namespace, name string, online bool) error
	EnsureClusterRBAC(ctx context.Context, cluster *Cluster) error
}

// Publisher delivers commands to a cluster's bridge subscribers.
type Publisher interface {
	Publish(namespace, cluster string, commands []Command)
}

// Reconciler drives every cluster in a namespace toward its desired state.
type Reconciler struct {
	store           Store
	publisher       Publisher
	namespace       string
	heartbeatWindow time.Duration
	logger          *zap.Logger

	kicks chan clusterRef
	now   func() time.Time
}

type clusterRef struct {
	namespace string
	name      string
}

// ReconcilerConfig is the configuration options for the reconciler.
type ReconcilerConfig struct {
	Store     Store
	Publisher Publisher

	// Namespace is the control-plane namespace to reconcile.
	Namespace string

	// HeartbeatWindow overrides DefaultHeartbeatWindow when non-zero.
	HeartbeatWindow time.Duration

	Logger *zap.Logger
}

// NewReconciler creates a reconciler from its configuration.
func NewReconciler(c *ReconcilerConfig) *Reconciler {
	window := c.HeartbeatWindow
	if window == 0 {
		window = DefaultHeartbeatWindow
	}

	return &Reconciler{
		store:           c.Store,
		publisher:       c.Publisher,
		namespace:       c.Namespace,
		heartbeatWindow: window,
		logger:          c.Logger,
		kicks:           make(chan clusterRef, 64),
		now:             time.Now,
	}
}

// Kick schedules an immediate reconcile of one cluster, used when a new
// bridge subscriber connects.
func (r *Reconciler) Kick(namespace, cluster string) {
	select {
	case r.kicks <- clusterRef{namespace: namespace, name: cluster}:
	default:
		// A full pass is already pending; the kick is redundant.
	}
}

// Run polls the namespace until the context is cancelled. Each cluster is
// reconciled when its requeue interval elapses or a kick arrives.
func (r *Reconciler) Run(ctx context.Context) error {
	r.logger.Info("reconciler started",
		zap.String("namespace", r.namespace),
		zap.Duration("heartbeat_window", r.heartbeatWindow),
	)

	next := map[string]time.Time{}

	ticker := time.NewTicker(requeueActive)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("reconciler stopping")
			return nil

		case ref := <-r.kicks:
			delete(next, ref.name)
			r.pass(ctx, next)

		case <-ticker.C:
			r.pass(ctx, next)
		}
	}
}

// pass reconciles every due cluster once. Per-cluster failures are logged
// and retried on the next tick.
func (r *Reconciler) pass(ctx context.Context, next map[string]time.Time) {
	clusters, err := r.store.ListClusters(ctx, r.namespace)
	if err != nil {
		r.logger.Error("listing clusters failed", zap.Error(err))
		return
	}

	seen := map[string]bool{}
	for i := range clusters {
		cluster := &clusters[i]
		seen[cluster.Name] = true

		if due, ok := next[cluster.Name]; ok && r.now().Before(due) {
			continue
		}

		requeue, err := r.ReconcileCluster(ctx, cluster)
		if err != nil {
			r.logger.Error("reconcile failed",
				zap.String("cluster", cluster.Name),
				zap.Error(err),
			)
			requeue = requeueActive
		}
		next[cluster.Name] = r.now().Add(requeue)
	}

	for name := range next {
		if !seen[name] {
			delete(next, name)
		}
	}
}

// ReconcileCluster brings one cluster toward its desired state and returns
// the interval until the next check.
func (r *Reconciler) ReconcileCluster(ctx context.Context, cluster *Cluster) (time.Duration, error) {
	if err := r.store.EnsureClusterRBAC(ctx, cluster); err != nil {
		return 0, fmt.Errorf("ensuring rbac for cluster %s: %w", cluster.Name, err)
	}

	commands, err := r.clusterDiff(ctx, cluster)
	if err != nil {
		return 0, err
	}

	if len(commands) == 0 {
		return requeueConverged, nil
	}

	r.logger.Info("issuing commands",
		zap.String("cluster", cluster.Name),
		zap.Int("commands", len(commands)),
	)
	r.publisher.Publish(cluster.Namespace, cluster.Name, commands)

	return requeueActive, nil
}

// clusterDiff compares each owned computer's status against its spec and
// collects wake commands, patching online flags as a side effect.
func (r *Reconciler) clusterDiff(ctx context.Context, cluster *Cluster) ([]Command, error) {
	computers, err := r.store.ListComputers(ctx, cluster.Namespace)
	if err != nil {
		return nil, fmt.Errorf("listing computers for cluster %s: %w", cluster.Name, err)
	}

	var commands []Command
	owned := 0

	for i := range computers {
		computer := &computers[i]
		if !computer.OwnedBy(cluster) {
			continue
		}
		owned++

		if computer.Status == nil || computer.Status.State != computer.Spec.State {
			commands = append(commands, WakeComputer(computer.Spec.ID))
			continue
		}

		isOnline := r.heartbeatFresh(computer.Status.LastHeartbeatUnixSec)
		if computer.Status.Online != isOnline {
			if err := r.store.SetComputerOnline(ctx, cluster.Namespace, computer.Name, isOnline); err != nil {
				return nil, fmt.Errorf("marking computer %s online=%t: %w", computer.Name, isOnline, err)
			}
			if !isOnline {
				commands = append(commands, WakeComputer(computer.Spec.ID))
			}
		}
	}

	if owned == 0 {
		r.logger.Info("no computers found for cluster", zap.String("cluster", cluster.Name))
	}

	return commands, nil
}

func (r *Reconciler) heartbeatFresh(lastHeartbeatUnixSec *int64) bool {
	if lastHeartbeatUnixSec == nil {
		return false
	}
	cutoff := r.now().Unix() - int64(r.heartbeatWindow/time.Second)
	return *lastHeartbeatUnixSec >= cutoff
}
