package controller

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// DefaultHeartbeatInterval keeps heartbeats comfortably inside the
// reconciler's freshness window.
const DefaultHeartbeatInterval = time.Minute

// AgentStore is the registry surface the agent needs. *Registry implements
// it.
type AgentStore interface {
	GetCluster(ctx context.Context, namespace, name string) (*Cluster, error)
	RegisterComputer(ctx context.Context, cluster *Cluster, spec ComputerSpec) (*Computer, error)
	ReportComputerState(ctx context.Context, namespace, name string, state ComputerState) error
	Heartbeat(ctx context.Context, namespace, name string) error
}

// AgentConfig is the configuration options for the agent.
type AgentConfig struct {
	Store AgentStore

	// Namespace and Cluster identify the pre-existing cluster to join.
	Namespace string
	Cluster   string

	// Spec describes this computer.
	Spec ComputerSpec

	// HeartbeatInterval overrides DefaultHeartbeatInterval when non-zero.
	HeartbeatInterval time.Duration

	Logger *zap.Logger
}

// Agent self-registers a computer under its cluster and keeps its status
// fresh with periodic heartbeats.
type Agent struct {
	config   *AgentConfig
	interval time.Duration
	logger   *zap.Logger
}

// NewAgent creates an agent from its configuration.
func NewAgent(c *AgentConfig) *Agent {
	interval := c.HeartbeatInterval
	if interval == 0 {
		interval = DefaultHeartbeatInterval
	}

	return &Agent{
		config:   c,
		interval: interval,
		logger:   c.Logger,
	}
}

// Run registers the computer and heartbeats until the context is
// cancelled. Registration requires the cluster to already exist; agents
// never create clusters.
func (a *Agent) Run(ctx context.Context) error {
	cluster, err := a.config.Store.GetCluster(ctx, a.config.Namespace, a.config.Cluster)
	if err != nil {
		return fmt.Errorf("fetching cluster %s/%s: %w", a.config.Namespace, a.config.Cluster, err)
	}

	computer, err := a.config.Store.RegisterComputer(ctx, cluster, a.config.Spec)
	if err != nil {
		return err
	}

	if err := a.config.Store.ReportComputerState(ctx, computer.Namespace, computer.Name, a.config.Spec.State); err != nil {
		return err
	}

	if err := a.config.Store.Heartbeat(ctx, computer.Namespace, computer.Name); err != nil {
		return err
	}

	a.logger.Info("agent registered",
		zap.String("cluster", cluster.Name),
		zap.String("computer", computer.Name),
		zap.Duration("heartbeat_interval", a.interval),
	)

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			a.logger.Info("agent stopping")
			return nil
		case <-ticker.C:
			if err := a.config.Store.Heartbeat(ctx, computer.Namespace, computer.Name); err != nil {
				// Transient API failures are survivable; the next beat retries.
				a.logger.Error("heartbeat failed",
					zap.String("computer", computer.Name),
					zap.Error(err),
				)
			}
		}
	}
}
