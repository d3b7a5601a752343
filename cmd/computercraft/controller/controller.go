// Package controllercmder provides the controller command for running the
// cluster reconciler and the command bridge.
package controllercmder

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/suremarc/computercraft/controller"
	"github.com/suremarc/computercraft/pkg/config"
	"github.com/suremarc/computercraft/pkg/logger"
)

type ControllerCommander struct {
	listen          string
	namespace       string
	kubeconfig      string
	gatewayImage    string
	heartbeatWindow time.Duration
	debug           bool
	configDir       string
	logger          *zap.Logger
}

const controllerLongDesc string = `Run the cluster controller.

The controller reconciles every cluster in the control-plane namespace:
it provisions per-cluster RBAC, compares each computer's reported state
against its spec, marks computers with stale heartbeats offline, and
issues wake commands. Commands stream to in-game listeners over the
websocket bridge at /bridge/{namespace}/{cluster}.

For every ComputerGateway it also provisions an HTTP-over-rednet hub:
a config map with the route table, a deployment of the hub image, a
service, and an HTTPRoute on the shared web gateway.`

const controllerShortDesc string = "Run the cluster controller and command bridge"

func NewControllerCmd() *cobra.Command {
	cmder := &ControllerCommander{}

	cmd := &cobra.Command{
		Use:   "controller",
		Short: controllerShortDesc,
		Long:  controllerLongDesc,
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

	cmd.Flags().StringVarP(&cmder.listen, "listen", "l", "", "Address for the bridge to listen on")
	cmd.Flags().StringVarP(&cmder.namespace, "namespace", "n", "", "Control-plane namespace")
	cmd.Flags().StringVar(&cmder.kubeconfig, "kubeconfig", "", "Path to kubeconfig (default: in-cluster, then standard loading rules)")
	cmd.Flags().StringVar(&cmder.gatewayImage, "gateway-image", "", "HTTP-over-rednet hub image deployed for each gateway")

	return cmd
}

func (c *ControllerCommander) run(cmd *cobra.Command) error {
	c.logger = logger.NewLogger(c.debug)
	defer c.logger.Sync()

	if err := c.loadConfig(cmd); err != nil {
		return err
	}

	registry, err := controller.NewRegistry(c.kubeconfig, c.logger)
	if err != nil {
		return err
	}

	bridge := controller.NewBridge(registry, c.logger)

	reconciler := controller.NewReconciler(&controller.ReconcilerConfig{
		Store:           registry,
		Publisher:       bridge,
		Namespace:       c.namespace,
		HeartbeatWindow: c.heartbeatWindow,
		Logger:          c.logger,
	})
	bridge.OnSubscribe = reconciler.Kick

	gatewayReconciler := controller.NewGatewayReconciler(&controller.GatewayReconcilerConfig{
		Store:     registry,
		Namespace: c.namespace,
		Image:     c.gatewayImage,
		Logger:    c.logger,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server := &http.Server{
		Addr:    c.listen,
		Handler: bridge.Handler(),
	}

	errChan := make(chan error, 3)

	go func() {
		if err := reconciler.Run(ctx); err != nil {
			errChan <- fmt.Errorf("reconciler error: %w", err)
		}
	}()

	go func() {
		if err := gatewayReconciler.Run(ctx); err != nil {
			errChan <- fmt.Errorf("gateway reconciler error: %w", err)
		}
	}()

	go func() {
		c.logger.Info("bridge listening", zap.String("addr", c.listen))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("bridge error: %w", err)
		}
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		c.logger.Info("received signal, shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	}
}

func (c *ControllerCommander) loadConfig(cmd *cobra.Command) error {
	cfger, err := config.NewConfiger(c.configDir)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	cfg, err := cfger.LoadConfig()
	if err != nil {
		return err
	}

	if !cmd.Flags().Changed("listen") {
		c.listen = cfg.Controller.Listen
	}
	if c.listen == "" {
		c.listen = ":8080"
	}
	if !cmd.Flags().Changed("namespace") {
		c.namespace = cfg.Controller.Namespace
	}
	if !cmd.Flags().Changed("kubeconfig") {
		c.kubeconfig = cfg.Controller.Kubeconfig
	}
	if !cmd.Flags().Changed("gateway-image") {
		c.gatewayImage = cfg.Controller.GatewayImage
	}
	c.heartbeatWindow = time.Duration(cfg.Controller.HeartbeatWindowSec) * time.Second

	return nil
}
