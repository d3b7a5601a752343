// Package conversationcmder provides the conversation command for managing
// the stored upstream conversation id.
package conversationcmder

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/suremarc/computercraft/pkg/cliui"
	"github.com/suremarc/computercraft/pkg/dotdir"
)

const conversationLongDesc string = `Manage the stored conversation id.

The relay carries a server-side conversation id on every upstream
request so the bot keeps context between chat lines. The id is stored
as conversation.json in the .computercraft/ directory.

Examples:
  computercraft conversation get             Show the stored id
  computercraft conversation set conv_123    Store an id
  computercraft conversation clear           Forget the stored id`

const conversationShortDesc string = "Manage the stored conversation id"

func NewConversationCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "conversation",
		Short: conversationShortDesc,
		Long:  conversationLongDesc,
	}

	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newSetCmd())
	cmd.AddCommand(newClearCmd())

	return cmd
}

func newGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get",
		Short: "Show the stored conversation id",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")

			state, err := dotdir.NewManager().LoadConversationState(configDir)
			if err != nil {
				return err
			}
			if state == nil || state.ConversationID == "" {
				fmt.Printf("\n  %s\n\n", cliui.DimStyle.Render("No conversation stored."))
				return nil
			}

			fmt.Printf("\n  %s  %s\n\n",
				cliui.NameStyle.Render(state.ConversationID),
				cliui.DimStyle.Render("(updated "+state.UpdatedAt.Format("2006-01-02 15:04:05")+")"),
			)
			return nil
		},
	}
}

func newSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <conversation-id>",
		Short: "Store a conversation id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")

			state := &dotdir.ConversationState{ConversationID: args[0]}
			if err := dotdir.NewManager().SaveConversationState(state, configDir); err != nil {
				return err
			}

			fmt.Printf("\n  %s Stored conversation %s\n\n",
				cliui.SuccessMark,
				cliui.NameStyle.Render(args[0]),
			)
			return nil
		},
	}
}

func newClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Forget the stored conversation id",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")

			if err := dotdir.NewManager().ClearConversationState(configDir); err != nil {
				return err
			}

			fmt.Printf("\n  %s Conversation cleared.\n\n", cliui.SuccessMark)
			return nil
		},
	}
}
