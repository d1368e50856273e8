package llm

import "codeberg.org/coursepilot/server/internal/config"

// builds the generator settings from the server configuration
func ConfigFromServer(cfg *config.ServerConfig) AnthropicConfig {
	return AnthropicConfig{
		APIKey:      cfg.AnthropicKey,
		Model:       cfg.GeneratorModel,
		MaxTokens:   cfg.GeneratorMaxTokens,
		Temperature: cfg.GeneratorTemp,
	}
}
