package ai

import (
	"context"
	"errors"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/v0xg/sessionrec/internal/session"
)

// ClaudeProvider implements the Provider interface using Anthropic's Claude
type ClaudeProvider struct {
	client *anthropic.Client
	model  string
}

// NewClaudeProvider creates a new Claude provider
func NewClaudeProvider(model, apiKey string) (*ClaudeProvider, error) {
	if apiKey == "" {
		return nil, errors.New("SESSIONREC_ANTHROPIC_API_KEY or ANTHROPIC_API_KEY environment variable required")
	}

	client := anthropic.NewClient(option.WithAPIKey(apiKey))

	if model == "" {
		model = string(anthropic.ModelClaudeSonnet4_20250514)
	}

	return &ClaudeProvider{
		client: &client,
		model:  model,
	}, nil
}

// Summarize asks Claude for a title and summary of exp
func (p *ClaudeProvider) Summarize(ctx context.Context, exp session.Export) (Summary, error) {
	resp, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		MaxTokens: 512,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(buildUserPrompt(exp))),
		},
	})
	if err != nil {
		return Summary{}, fmt.Errorf("Claude API error: %w", err)
	}

	var responseText string
	for _, block := range resp.Content {
		if block.Type == "text" {
			responseText = block.Text
			break
		}
	}
	if responseText == "" {
		return Summary{}, errors.New("empty response from Claude")
	}

	summary, err := parseSummary(responseText)
	if err != nil {
		return Summary{}, fmt.Errorf("failed to parse Claude response: %w", err)
	}
	return summary, nil
}
