package ai

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/v0xg/sessionrec/internal/action"
	"github.com/v0xg/sessionrec/internal/session"
)

func TestBuildUserPrompt(t *testing.T) {
	exp := session.Export{
		URL:      "https://shop.test/",
		Duration: 12000,
		Metadata: session.Metadata{Title: "Shop"},
		Actions: []action.Record{
			{Kind: action.KindInput, URL: "https://shop.test/", Target: &action.Target{Selector: "#q"}, Payload: action.Payload{Value: "shoes"}},
			{Kind: action.KindClick, URL: "https://shop.test/results", Target: &action.Target{Selector: ".item", Text: "Red shoes"}},
		},
	}

	got := buildUserPrompt(exp)
	assert.Equal(t, "Start page: https://shop.test/\n"+
		"Page title: Shop\n"+
		"Duration: 12s\n\n"+
		"Actions:\n"+
		"1. Type \"shoes\" into #q\n"+
		"   (now on https://shop.test/results)\n"+
		"2. Click \"Red shoes\" (.item)\n", got)

	assert.Contains(t, buildUserPrompt(session.Export{URL: "https://a.test"}), "(none)")
}

func TestParseSummary(t *testing.T) {
	tests := []struct {
		name     string
		response string
		want     Summary
		wantErr  bool
	}{
		{
			name:     "plain",
			response: `{"title":"Search shoes","summary":"The user searched."}`,
			want:     Summary{Title: "Search shoes", Summary: "The user searched."},
		},
		{
			name:     "fenced",
			response: "Here you go:\n```json\n{\"title\": \"Log in\", \"summary\": \"Signs in {twice}.\"}\n```",
			want:     Summary{Title: "Log in", Summary: "Signs in {twice}."},
		},
		{name: "no object", response: "I cannot help", wantErr: true},
		{name: "unterminated", response: `{"title": "x"`, wantErr: true},
		{name: "empty summary", response: `{"title":"x","summary":" "}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseSummary(tt.response)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewProvider(t *testing.T) {
	_, err := NewProvider("gemini", "", "k")
	assert.Error(t, err)

	_, err = NewProvider("claude", "", "")
	assert.Error(t, err)

	p, err := NewProvider("OpenAI", "", "sk-test")
	require.NoError(t, err)
	assert.IsType(t, &OpenAIProvider{}, p)
}
