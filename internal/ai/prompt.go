package ai

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/v0xg/sessionrec/internal/export"
	"github.com/v0xg/sessionrec/internal/session"
)

const systemPrompt = `You write short descriptions of recorded browser sessions for test and support documentation.

You will receive the page the session started on and a numbered list of the user's actions. Sensitive values are already masked with asterisks; never guess them.

Output a JSON object with:
- "title": an imperative title of at most 8 words, e.g. "Sign in and open billing settings"
- "summary": two or three plain sentences describing what the user did and in which order

Respond ONLY with the JSON object, no explanation or markdown.`

// buildUserPrompt lists the session's steps the way the Markdown export does
func buildUserPrompt(exp session.Export) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Start page: %s\n", exp.URL)
	if exp.Metadata.Title != "" {
		fmt.Fprintf(&b, "Page title: %s\n", exp.Metadata.Title)
	}
	fmt.Fprintf(&b, "Duration: %s\n\nActions:\n", exp.Elapsed())
	if len(exp.Actions) == 0 {
		b.WriteString("(none)\n")
	}
	last := exp.URL
	for i, rec := range exp.Actions {
		if rec.URL != "" && rec.URL != last {
			fmt.Fprintf(&b, "   (now on %s)\n", rec.URL)
			last = rec.URL
		}
		fmt.Fprintf(&b, "%d. %s\n", i+1, export.Describe(rec))
	}
	return b.String()
}

// parseSummary extracts the JSON object from a response that may contain surrounding text
func parseSummary(response string) (Summary, error) {
	var s Summary
	if err := json.Unmarshal([]byte(response), &s); err == nil {
		return s, validate(s)
	}

	start := strings.Index(response, "{")
	if start == -1 {
		return Summary{}, errors.New("no JSON object found in response")
	}

	// find the matching closing brace, skipping braces inside strings
	depth, end := 0, -1
	inString, escaped := false, false
	for i := start; i < len(response) && end == -1; i++ {
		c := response[i]
		switch {
		case escaped:
			escaped = false
		case inString && c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				end = i + 1
			}
		}
	}
	if end == -1 {
		return Summary{}, errors.New("no matching closing brace found")
	}

	if err := json.Unmarshal([]byte(response[start:end]), &s); err != nil {
		return Summary{}, fmt.Errorf("failed to parse extracted JSON: %w", err)
	}
	return s, validate(s)
}

func validate(s Summary) error {
	if strings.TrimSpace(s.Summary) == "" {
		return errors.New("response has no summary")
	}
	return nil
}
