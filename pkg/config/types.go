package config

import (
	"fmt"
	"strconv"
)

// Config represents the persistent computercraft configuration stored as
// config.toml in the .computercraft/ directory. The TOML layout uses
// sections for logical grouping.
type Config struct {
	Version    int              `toml:"version"`
	Relay      RelayConfig      `toml:"relay"`
	Discord    DiscordConfig    `toml:"discord"`
	Controller ControllerConfig `toml:"controller"`
	Agent      AgentConfig      `toml:"agent"`
}

// RelayConfig holds chat-relay bot settings.
type RelayConfig struct {
	// ChatURL is the websocket endpoint of the in-game chat bridge.
	ChatURL string `toml:"chat_url,omitempty"`

	// BotName is the name chat messages must address to trigger the bot.
	BotName string `toml:"bot_name,omitempty"`

	// Upstream is the hosted LLM API base URL.
	Upstream string `toml:"upstream,omitempty"`

	// Model is the model name passed on every request.
	Model string `toml:"model,omitempty"`

	// Instructions is an optional system prompt.
	Instructions string `toml:"instructions,omitempty"`
}

// DiscordConfig holds the webhook used to mirror chat traffic to Discord.
// The webhook token lives in credentials.toml, not here.
type DiscordConfig struct {
	WebhookID string `toml:"webhook_id,omitempty"`
}

// ControllerConfig holds cluster controller settings.
type ControllerConfig struct {
	// Listen is the bridge server address (e.g. ":8780").
	Listen string `toml:"listen,omitempty"`

	// Namespace is the control-plane namespace holding Cluster and
	// Computer resources.
	Namespace string `toml:"namespace,omitempty"`

	// Kubeconfig points to a kubeconfig file; empty uses in-cluster or
	// default resolution.
	Kubeconfig string `toml:"kubeconfig,omitempty"`

	// HeartbeatWindowSec is how stale a computer heartbeat may be before
	// the computer is considered offline.
	HeartbeatWindowSec uint `toml:"heartbeat_window_sec,omitempty"`

	// GatewayImage is the HTTP-over-rednet hub image the gateway
	// reconciler deploys. Empty uses the built-in default.
	GatewayImage string `toml:"gateway_image,omitempty"`
}

// AgentConfig holds node-side registration settings.
type AgentConfig struct {
	// Cluster is the pre-existing cluster identity to register under.
	Cluster string `toml:"cluster,omitempty"`

	// ComputerID is this node's stable identifier.
	ComputerID string `toml:"computer_id,omitempty"`

	// Kind is "worker" or "gateway".
	Kind string `toml:"kind,omitempty"`
}

// configKeyInfo maps a user-facing dotted key name to a getter and setter on *Config.
type configKeyInfo struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

// configKeys is the authoritative map of all supported config keys.
// Keys use dotted notation matching the TOML section structure.
var configKeys = map[string]configKeyInfo{
	"relay.chat_url": {
		get: func(c *Config) string { return c.Relay.ChatURL },
		set: func(c *Config, v string) error { c.Relay.ChatURL = v; return nil },
	},
	"relay.bot_name": {
		get: func(c *Config) string { return c.Relay.BotName },
		set: func(c *Config, v string) error { c.Relay.BotName = v; return nil },
	},
	"relay.upstream": {
		get: func(c *Config) string { return c.Relay.Upstream },
		set: func(c *Config, v string) error { c.Relay.Upstream = v; return nil },
	},
	"relay.model": {
		get: func(c *Config) string { return c.Relay.Model },
		set: func(c *Config, v string) error { c.Relay.Model = v; return nil },
	},
	"relay.instructions": {
		get: func(c *Config) string { return c.Relay.Instructions },
		set: func(c *Config, v string) error { c.Relay.Instructions = v; return nil },
	},
	"discord.webhook_id": {
		get: func(c *Config) string { return c.Discord.WebhookID },
		set: func(c *Config, v string) error { c.Discord.WebhookID = v; return nil },
	},
	"controller.listen": {
		get: func(c *Config) string { return c.Controller.Listen },
		set: func(c *Config, v string) error { c.Controller.Listen = v; return nil },
	},
	"controller.namespace": {
		get: func(c *Config) string { return c.Controller.Namespace },
		set: func(c *Config, v string) error { c.Controller.Namespace = v; return nil },
	},
	"controller.kubeconfig": {
		get: func(c *Config) string { return c.Controller.Kubeconfig },
		set: func(c *Config, v string) error { c.Controller.Kubeconfig = v; return nil },
	},
	"controller.heartbeat_window_sec": {
		get: func(c *Config) string {
			if c.Controller.HeartbeatWindowSec == 0 {
				return ""
			}
			return strconv.FormatUint(uint64(c.Controller.HeartbeatWindowSec), 10)
		},
		set: func(c *Config, v string) error {
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid value for controller.heartbeat_window_sec: %w", err)
			}
			c.Controller.HeartbeatWindowSec = uint(n)
			return nil
		},
	},
	"controller.gateway_image": {
		get: func(c *Config) string { return c.Controller.GatewayImage },
		set: func(c *Config, v string) error { c.Controller.GatewayImage = v; return nil },
	},
	"agent.cluster": {
		get: func(c *Config) string { return c.Agent.Cluster },
		set: func(c *Config, v string) error { c.Agent.Cluster = v; return nil },
	},
	"agent.computer_id": {
		get: func(c *Config) string { return c.Agent.ComputerID },
		set: func(c *Config, v string) error { c.Agent.ComputerID = v; return nil },
	},
	"agent.kind": {
		get: func(c *Config) string { return c.Agent.Kind },
		set: func(c *Config, v string) error {
			if v != "worker" && v != "gateway" {
				return fmt.Errorf("invalid value for agent.kind: %q", v)
			}
			c.Agent.Kind = v
			return nil
		},
	},
}
