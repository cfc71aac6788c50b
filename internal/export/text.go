package export

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/v0xg/sessionrec/internal/session"
)

// WriteJSON writes the export document, screenshots included
func WriteJSON(w io.Writer, exp session.Export) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(exp); err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	return nil
}

// WriteMarkdown writes a numbered step list
func WriteMarkdown(w io.Writer, exp session.Export, opts Options) error {
	bw := bufio.NewWriter(w)

	fmt.Fprintf(bw, "# %s\n\n", opts.title(exp))
	fmt.Fprintf(bw, "- URL: %s\n", exp.URL)
	fmt.Fprintf(bw, "- Recorded: %s\n", exp.StartTime.UTC().Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(bw, "- Duration: %s\n", exp.Elapsed())
	if len(exp.Metadata.Tags) > 0 {
		fmt.Fprintf(bw, "- Tags: %s\n", strings.Join(exp.Metadata.Tags, ", "))
	}
	if opts.Summary != "" {
		fmt.Fprintf(bw, "\n%s\n", strings.TrimSpace(opts.Summary))
	}

	fmt.Fprintf(bw, "\n## Steps\n\n")
	if len(exp.Actions) == 0 {
		fmt.Fprintln(bw, "_No actions recorded._")
	}
	for i, rec := range exp.Actions {
		fmt.Fprintf(bw, "%d. `%s` %s\n", i+1, offset(exp, rec), Describe(rec))
	}

	return bw.Flush()
}
