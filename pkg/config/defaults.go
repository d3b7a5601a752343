package config

const (
	defaultChatURL  = "ws://localhost:8764/chat"
	defaultBotName  = "computer"
	defaultUpstream = "https://api.openai.com"
	defaultModel    = "gpt-4.1-mini"

	defaultControllerListen   = ":8780"
	defaultNamespace          = "computercraft"
	defaultHeartbeatWindowSec = 300

	defaultAgentKind = "worker"
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		Relay: RelayConfig{
			ChatURL:  defaultChatURL,
			BotName:  defaultBotName,
			Upstream: defaultUpstream,
			Model:    defaultModel,
		},
		Controller: ControllerConfig{
			Listen:             defaultControllerListen,
			Namespace:          defaultNamespace,
			HeartbeatWindowSec: defaultHeartbeatWindowSec,
		},
		Agent: AgentConfig{
			Kind: defaultAgentKind,
		},
	}
}
