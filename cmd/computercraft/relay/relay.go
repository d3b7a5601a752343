// Package relaycmder provides the relay command for running the chat-relay bot.
package relaycmder

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/suremarc/computercraft/pkg/config"
	"github.com/suremarc/computercraft/pkg/credentials"
	"github.com/suremarc/computercraft/pkg/dotdir"
	"github.com/suremarc/computercraft/pkg/logger"
	"github.com/suremarc/computercraft/pkg/responses"
	"github.com/suremarc/computercraft/relay"
	"github.com/suremarc/computercraft/relay/worker"
)

type RelayCommander struct {
	chatURL      string
	botName      string
	upstream     string
	model        string
	instructions string
	webhookID    string
	debug        bool
	configDir    string
	logger       *zap.Logger
}

const relayLongDesc string = `Run the chat-relay bot.

The bot connects to the in-game chat bridge over a websocket, answers
messages addressed to it using the configured LLM upstream, and mirrors
each exchange to a Discord webhook.

Flags override values from config.toml; credentials come from
credentials.toml or the OPENAI_API_KEY / DISCORD_WEBHOOK_TOKEN
environment variables. The stored conversation id (see
'computercraft conversation') is carried on every upstream request.`

const relayShortDesc string = "Run the chat-relay bot"

func NewRelayCmd() *cobra.Command {
	cmder := &RelayCommander{}

	cmd := &cobra.Command{
		Use:   "relay",
		Short: relayShortDesc,
		Long:  relayLongDesc,
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

	cmd.Flags().StringVar(&cmder.chatURL, "chat-url", "", "Websocket URL of the in-game chat bridge")
	cmd.Flags().StringVar(&cmder.botName, "bot-name", "", "Chat name the bot answers to")
	cmd.Flags().StringVarP(&cmder.upstream, "upstream", "u", "", "Upstream LLM provider URL")
	cmd.Flags().StringVarP(&cmder.model, "model", "m", "", "Model for reply generation")
	cmd.Flags().StringVar(&cmder.instructions, "instructions", "", "System instructions for the bot")
	cmd.Flags().StringVar(&cmder.webhookID, "webhook-id", "", "Discord webhook id for mirroring")

	return cmd
}

func (c *RelayCommander) run(cmd *cobra.Command) error {
	c.logger = logger.NewLogger(c.debug)
	defer c.logger.Sync()

	cfg, err := c.loadConfig(cmd)
	if err != nil {
		return err
	}

	creds, err := credentials.NewManager(c.configDir)
	if err != nil {
		return err
	}

	apiKey, err := creds.GetKey(credentials.ProviderOpenAI)
	if err != nil {
		return err
	}
	if apiKey == "" {
		return errors.New("no OpenAI API key configured; run 'computercraft auth openai' or set OPENAI_API_KEY")
	}

	conversation, err := c.conversationID()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	chatbox, err := relay.DialChatbox(ctx, c.chatURL, c.logger)
	if err != nil {
		return err
	}
	defer chatbox.Close()

	client := responses.NewClient(c.upstream, apiKey, c.logger)

	pool, err := c.createMirrorPool(creds, cfg)
	if err != nil {
		return err
	}

	relayConfig := &relay.Config{
		Chatbox:      chatbox,
		Client:       client,
		BotName:      c.botName,
		Model:        c.model,
		Instructions: c.instructions,
		Conversation: conversation,
		Logger:       c.logger,
	}
	if pool != nil {
		relayConfig.Pool = pool
		defer pool.Close()
	}

	return relay.NewRelay(relayConfig).Run(ctx)
}

// loadConfig merges config.toml values under explicitly set flags.
func (c *RelayCommander) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfger, err := config.NewConfiger(c.configDir)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	cfg, err := cfger.LoadConfig()
	if err != nil {
		return nil, err
	}

	if !cmd.Flags().Changed("chat-url") {
		c.chatURL = cfg.Relay.ChatURL
	}
	if !cmd.Flags().Changed("bot-name") {
		c.botName = cfg.Relay.BotName
	}
	if !cmd.Flags().Changed("upstream") {
		c.upstream = cfg.Relay.Upstream
	}
	if !cmd.Flags().Changed("model") {
		c.model = cfg.Relay.Model
	}
	if !cmd.Flags().Changed("instructions") {
		c.instructions = cfg.Relay.Instructions
	}
	if !cmd.Flags().Changed("webhook-id") {
		c.webhookID = cfg.Discord.WebhookID
	}

	return cfg, nil
}

func (c *RelayCommander) conversationID() (string, error) {
	state, err := dotdir.NewManager().LoadConversationState(c.configDir)
	if err != nil {
		return "", err
	}
	if state == nil {
		return "", nil
	}
	return state.ConversationID, nil
}

// createMirrorPool wires Discord mirroring when both the webhook id and its
// token are configured. Missing either just disables mirroring.
func (c *RelayCommander) createMirrorPool(creds *credentials.Manager, _ *config.Config) (*worker.Pool, error) {
	if c.webhookID == "" {
		c.logger.Info("no discord webhook configured, mirroring disabled")
		return nil, nil
	}

	token, err := creds.GetKey(credentials.ProviderDiscord)
	if err != nil {
		return nil, err
	}
	if token == "" {
		c.logger.Warn("discord webhook id set but no token stored, mirroring disabled",
			zap.String("webhook_id", c.webhookID),
		)
		return nil, nil
	}

	mirror, err := relay.NewDiscordMirror(c.webhookID, token, c.botName, c.logger)
	if err != nil {
		return nil, err
	}

	return worker.NewPool(&worker.Config{
		Mirror: mirror,
		Logger: c.logger,
	})
}
