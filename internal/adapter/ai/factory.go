package ai

import (
	"fmt"
	"strings"

	"github.com/stackops/stackops/internal/ports"
)

// NewOracle selects the oracle implementation named by config.Provider
func NewOracle(config ports.OracleConfig) (ports.Oracle, error) {
	switch strings.ToLower(config.Provider) {
	case "openai":
		if config.APIKey == "" {
			return nil, fmt.Errorf("openai provider requires an API key")
		}
		return NewOpenAIAdapter(config), nil
	case "anthropic":
		if config.APIKey == "" {
			return nil, fmt.Errorf("anthropic provider requires an API key")
		}
		return NewAnthropicAdapter(config), nil
	case "", "mock":
		return NewMockOracle(config), nil
	default:
		return nil, fmt.Errorf("unsupported AI provider: %s", config.Provider)
	}
}
