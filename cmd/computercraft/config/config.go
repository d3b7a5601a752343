// Package configcmder provides the config command for managing persistent
// computercraft configuration stored in the .computercraft/ directory.
package configcmder

import (
	"github.com/spf13/cobra"
)

const configLongDesc string = `Manage persistent computercraft configuration.

Configuration is stored as config.toml in the .computercraft/ directory
and provides default values for command flags. CLI flags always take
precedence over config file values.

Keys use dotted notation matching the TOML section structure:
  relay.chat_url, relay.bot_name, relay.upstream, relay.model,
  relay.instructions,
  discord.webhook_id,
  controller.listen, controller.namespace, controller.kubeconfig,
  controller.heartbeat_window_sec,
  agent.cluster, agent.computer_id, agent.kind

Use subcommands to get, set, or list configuration values:
  computercraft config set <key> <value>    Set a configuration value
  computercraft config get <key>            Get a configuration value
  computercraft config list                 List all configuration values

Examples:
  computercraft config set relay.bot_name computer
  computercraft config set controller.namespace computercraft
  computercraft config get relay.model
  computercraft config list`

const configShortDesc string = "Manage persistent computercraft configuration"

func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: configShortDesc,
		Long:  configLongDesc,
	}

	cmd.AddCommand(newSetCmd())
	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newListCmd())

	return cmd
}
