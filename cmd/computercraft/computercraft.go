// Package computercraftcmder
package computercraftcmder

import (
	"github.com/spf13/cobra"

	agentcmder "github.com/suremarc/computercraft/cmd/computercraft/agent"
	authcmder "github.com/suremarc/computercraft/cmd/computercraft/auth"
	configcmder "github.com/suremarc/computercraft/cmd/computercraft/config"
	controllercmder "github.com/suremarc/computercraft/cmd/computercraft/controller"
	conversationcmder "github.com/suremarc/computercraft/cmd/computercraft/conversation"
	relaycmder "github.com/suremarc/computercraft/cmd/computercraft/relay"
	versioncmder "github.com/suremarc/computercraft/cmd/version"
)

const computercraftLongDesc string = `Computercraft bridges in-game computers with the outside world.

Run services using:
  computercraft relay         Run the chat-relay bot
  computercraft controller    Run the cluster controller and command bridge
  computercraft agent         Register this computer and heartbeat`

const computercraftShortDesc string = "Computercraft - chat relay and cluster control plane"

func NewComputercraftCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "computercraft",
		Short: computercraftShortDesc,
		Long:  computercraftLongDesc,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Override the .computercraft directory location")

	// Add subcommands
	cmd.AddCommand(relaycmder.NewRelayCmd())
	cmd.AddCommand(controllercmder.NewControllerCmd())
	cmd.AddCommand(agentcmder.NewAgentCmd())
	cmd.AddCommand(authcmder.NewAuthCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(conversationcmder.NewConversationCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
