// Package agentcmder provides the agent command for registering a computer
// under its cluster and keeping its heartbeat fresh.
package agentcmder

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/suremarc/computercraft/controller"
	"github.com/suremarc/computercraft/pkg/config"
	"github.com/suremarc/computercraft/pkg/logger"
)

type AgentCommander struct {
	cluster           string
	computerID        string
	kind              string
	label             string
	script            string
	namespace         string
	kubeconfig        string
	heartbeatInterval time.Duration
	debug             bool
	configDir         string
	logger            *zap.Logger
}

const agentLongDesc string = `Register this computer under its cluster and heartbeat.

The cluster must already exist in the control-plane namespace; agents
join clusters, they never create them. Registration is idempotent and
applies an owner reference to the cluster, so deleting the cluster
garbage-collects its computers.`

const agentShortDesc string = "Register this computer and heartbeat"

func NewAgentCmd() *cobra.Command {
	cmder := &AgentCommander{}

	cmd := &cobra.Command{
		Use:   "agent",
		Short: agentShortDesc,
		Long:  agentLongDesc,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %v", err)
			}
			cmder.configDir, _ = cmd.Flags().GetString("config-dir")
			return cmder.run(cmd)
		},
	}

	cmd.Flags().StringVarP(&cmder.cluster, "cluster", "c", "", "Cluster to register under")
	cmd.Flags().StringVar(&cmder.computerID, "computer-id", "", "In-game computer id")
	cmd.Flags().StringVar(&cmder.kind, "kind", "", "Computer kind (worker or gateway)")
	cmd.Flags().StringVar(&cmder.label, "label", "", "Label this computer applies to itself")
	cmd.Flags().StringVar(&cmder.script, "script", "", "Script this computer runs")
	cmd.Flags().StringVarP(&cmder.namespace, "namespace", "n", "", "Control-plane namespace")
	cmd.Flags().StringVar(&cmder.kubeconfig, "kubeconfig", "", "Path to kubeconfig (default: in-cluster, then standard loading rules)")
	cmd.Flags().DurationVar(&cmder.heartbeatInterval, "heartbeat-interval", controller.DefaultHeartbeatInterval, "Interval between heartbeats")

	return cmd
}

func (c *AgentCommander) run(cmd *cobra.Command) error {
	c.logger = logger.NewLogger(c.debug)
	defer c.logger.Sync()

	if err := c.loadConfig(cmd); err != nil {
		return err
	}

	if c.cluster == "" {
		return errors.New("cluster is required; pass --cluster or set agent.cluster")
	}
	if c.computerID == "" {
		return errors.New("computer id is required; pass --computer-id or set agent.computer_id")
	}

	kind := controller.ComputerKind(c.kind)
	switch kind {
	case controller.KindWorker, controller.KindGateway:
	default:
		return fmt.Errorf("invalid kind %q: must be %q or %q", c.kind, controller.KindWorker, controller.KindGateway)
	}

	registry, err := controller.NewRegistry(c.kubeconfig, c.logger)
	if err != nil {
		return err
	}

	agent := controller.NewAgent(&controller.AgentConfig{
		Store:     registry,
		Namespace: c.namespace,
		Cluster:   c.cluster,
		Spec: controller.ComputerSpec{
			ID:   c.computerID,
			Kind: kind,
			State: controller.ComputerState{
				Label:  c.label,
				Script: c.script,
			},
		},
		HeartbeatInterval: c.heartbeatInterval,
		Logger:            c.logger,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return agent.Run(ctx)
}

func (c *AgentCommander) loadConfig(cmd *cobra.Command) error {
	cfger, err := config.NewConfiger(c.configDir)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	cfg, err := cfger.LoadConfig()
	if err != nil {
		return err
	}

	if !cmd.Flags().Changed("cluster") {
		c.cluster = cfg.Agent.Cluster
	}
	if !cmd.Flags().Changed("computer-id") {
		c.computerID = cfg.Agent.ComputerID
	}
	if !cmd.Flags().Changed("kind") {
		c.kind = cfg.Agent.Kind
	}
	if !cmd.Flags().Changed("namespace") {
		c.namespace = cfg.Controller.Namespace
	}
	if !cmd.Flags().Changed("kubeconfig") {
		c.kubeconfig = cfg.Controller.Kubeconfig
	}

	return nil
}
