package ai

import (
	"context"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/v0xg/sessionrec/internal/session"
)

// OpenAIProvider implements the Provider interface using OpenAI
type OpenAIProvider struct {
	client *openai.Client
	model  string
}

// NewOpenAIProvider creates a new OpenAI provider
func NewOpenAIProvider(model, apiKey string) (*OpenAIProvider, error) {
	if apiKey == "" {
		return nil, errors.New("SESSIONREC_OPENAI_API_KEY or OPENAI_API_KEY environment variable required")
	}

	if model == "" {
		model = "gpt-4o"
	}

	return &OpenAIProvider{
		client: openai.NewClient(apiKey),
		model:  model,
	}, nil
}

// Summarize asks OpenAI for a title and summary of exp
func (p *OpenAIProvider) Summarize(ctx context.Context, exp session.Export) (Summary, error) {
	resp, err := p.client.CreateChatCompletion(
		ctx,
		openai.ChatCompletionRequest{
			Model: p.model,
			Messages: []openai.ChatCompletionMessage{
				{
					Role:    openai.ChatMessageRoleSystem,
					Content: systemPrompt,
				},
				{
					Role:    openai.ChatMessageRoleUser,
					Content: buildUserPrompt(exp),
				},
			},
			MaxTokens: 512,
		},
	)
	if err != nil {
		return Summary{}, fmt.Errorf("OpenAI API error: %w", err)
	}

	if len(resp.Choices) == 0 {
		return Summary{}, errors.New("empty response from OpenAI")
	}

	summary, err := parseSummary(resp.Choices[0].Message.Content)
	if err != nil {
		return Summary{}, fmt.Errorf("failed to parse OpenAI response: %w", err)
	}
	return summary, nil
}
