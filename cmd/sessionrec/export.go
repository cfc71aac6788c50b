package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/v0xg/sessionrec/internal/ai"
	"github.com/v0xg/sessionrec/internal/export"
	"github.com/v0xg/sessionrec/internal/session"
)

var (
	format    string
	output    string
	summarize bool
	provider  string
	model     string
)

var extensions = map[string]string{
	"json": ".json",
	"md":   ".md",
	"html": ".html",
	"gif":  ".gif",
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export <session-id>",
		Short: "Render an archived session",
		Long: `Renders an archived session as JSON, a Markdown step list, an HTML page
with annotated screenshots, or an annotated GIF. The id may be a unique prefix.`,
		Args: cobra.ExactArgs(1),
		RunE: runExport,
	}
	cmd.Flags().StringVarP(&format, "format", "f", "json", "Output format: json, md, html, gif")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file, - for stdout (default: <out_dir>/<id>.<ext>)")
	cmd.Flags().BoolVar(&summarize, "summarize", false, "Add an AI written title and summary (md, html)")
	cmd.Flags().StringVar(&provider, "provider", "", "AI provider: claude, openai (default: from config)")
	cmd.Flags().StringVar(&model, "model", "", "Specific model override")
	return cmd
}

func runExport(cmd *cobra.Command, args []string) error {
	ext, ok := extensions[format]
	if !ok {
		return fmt.Errorf("unknown format: %s (supported: json, md, html, gif)", format)
	}

	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := cmd.Context()
	exp, err := st.FindSession(ctx, args[0])
	if err != nil {
		return err
	}

	opts := export.Options{
		ThumbnailWidth: cfg.Export.ThumbnailWidth,
		FrameDelay:     time.Duration(cfg.Export.ReplayFrameMs) * time.Millisecond,
		MaxColors:      cfg.Export.ReplayMaxColors,
		MaxWidth:       cfg.Export.ThumbnailWidth,
	}
	if summarize && (format == "md" || format == "html") {
		sum, err := summary(ctx, exp)
		if err != nil {
			return err
		}
		opts.Title, opts.Summary = sum.Title, sum.Summary
	}

	path := output
	if path == "" {
		path = filepath.Join(cfg.Export.OutDir, exp.ID+ext)
	}

	write := func(w io.Writer) error {
		switch format {
		case "md":
			return export.WriteMarkdown(w, exp, opts)
		case "html":
			return export.WriteHTML(w, exp, opts)
		case "gif":
			return export.WriteGIF(w, exp, opts)
		default:
			return export.WriteJSON(w, exp)
		}
	}

	if path == "-" {
		return write(os.Stdout)
	}

	fmt.Printf("→ Writing %s... ", format)
	if err := writeFile(path, write); err != nil {
		fmt.Println("failed")
		return err
	}
	fmt.Println("done")
	fmt.Printf("✓ Saved to %s\n", path)
	return nil
}

func summary(ctx context.Context, exp session.Export) (ai.Summary, error) {
	name := provider
	if name == "" {
		name = cfg.AI.Provider
	}
	m := model
	if m == "" {
		m = cfg.AI.Model
	}

	fmt.Printf("→ Summarizing via %s... ", name)
	p, err := ai.NewProvider(name, m, cfg.AI.APIKey)
	if err != nil {
		fmt.Println("failed")
		return ai.Summary{}, fmt.Errorf("AI provider init failed: %w", err)
	}
	sum, err := p.Summarize(ctx, exp)
	if err != nil {
		fmt.Println("failed")
		return ai.Summary{}, fmt.Errorf("summary failed: %w", err)
	}
	fmt.Println("done")
	logger.Debug("session summarized", zap.String("session", exp.ID), zap.String("title", sum.Title))
	return sum, nil
}

func writeFile(path string, write func(io.Writer) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	bw := bufio.NewWriter(f)
	if err := write(bw); err != nil {
		f.Close()
		return err
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
