package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/v0xg/sessionrec/internal/session"
)

// Summary is a short natural-language account of a recorded session
type Summary struct {
	Title   string `json:"title"`
	Summary string `json:"summary"`
}

// Provider defines the interface for session summarisers
type Provider interface {
	Summarize(ctx context.Context, exp session.Export) (Summary, error)
}

// NewProvider creates a new AI provider based on the provider name
func NewProvider(name, model, apiKey string) (Provider, error) {
	switch strings.ToLower(name) {
	case "claude", "anthropic":
		return NewClaudeProvider(model, apiKey)
	case "openai", "gpt":
		return NewOpenAIProvider(model, apiKey)
	default:
		return nil, fmt.Errorf("unknown provider: %s (supported: claude, openai)", name)
	}
}
