package relay

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"github.com/suremarc/computercraft/pkg/chat"
)

// DiscordMirror mirrors chat exchanges to a Discord channel through a
// webhook. Webhook execution needs no bot token, only the webhook id and
// its secret.
type DiscordMirror struct {
	session   *discordgo.Session
	webhookID string
	token     string
	botName   string
	logger    *zap.Logger
}

// NewDiscordMirror creates a webhook-only Discord session.
func NewDiscordMirror(webhookID, token, botName string, logger *zap.Logger) (*DiscordMirror, error) {
	session, err := discordgo.New("")
	if err != nil {
		return nil, fmt.Errorf("creating discord session: %w", err)
	}

	return &DiscordMirror{
		session:   session,
		webhookID: webhookID,
		token:     token,
		botName:   botName,
		logger:    logger,
	}, nil
}

// Mirror posts the user's line and the bot's reply to the webhook.
// Generated images are attached as files on the reply message.
func (d *DiscordMirror) Mirror(ctx context.Context, username, message string, reply *chat.Reply) error {
	_, err := d.session.WebhookExecute(d.webhookID, d.token, false, &discordgo.WebhookParams{
		Username: username,
		Content:  message,
	}, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("mirroring user message: %w", err)
	}

	if reply == nil {
		return nil
	}

	files := make([]*discordgo.File, 0, len(reply.Images))
	for _, img := range reply.Images {
		data, err := base64.StdEncoding.DecodeString(img.Data)
		if err != nil {
			d.logger.Warn("skipping undecodable image attachment",
				zap.String("filename", img.Filename),
				zap.Error(err),
			)
			continue
		}
		files = append(files, &discordgo.File{
			Name:        img.Filename,
			ContentType: "image/png",
			Reader:      bytes.NewReader(data),
		})
	}

	_, err = d.session.WebhookExecute(d.webhookID, d.token, false, &discordgo.WebhookParams{
		Username: d.botName,
		Content:  reply.PlainText(),
		Files:    files,
	}, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("mirroring bot reply: %w", err)
	}

	return nil
}
