package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/v0xg/sessionrec/internal/browser"
	"github.com/v0xg/sessionrec/internal/replay"
)

func replayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replay <session-id>",
		Short: "Replay an archived session in a new tab",
		Args:  cobra.ExactArgs(1),
		RunE:  runReplay,
	}
	cmd.Flags().BoolVar(&headless, "headless", false, "Run the browser headless")
	cmd.Flags().StringVar(&profile, "profile", "", "Chrome/Chromium profile directory for authenticated sessions (close browser first)")
	return cmd
}

func runReplay(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	exp, err := st.FindSession(ctx, args[0])
	if err != nil {
		return err
	}

	bopts := browser.Options{
		Bin:        cfg.Browser.Bin,
		Headless:   headless || cfg.Browser.Headless,
		Width:      cfg.Browser.Width,
		Height:     cfg.Browser.Height,
		ProfileDir: cfg.Browser.ProfileDir,
		Logger:     logger,
	}
	if profile != "" {
		bopts.ProfileDir = profile
	}
	b, err := browser.Launch(bopts)
	if err != nil {
		return err
	}
	defer b.Close()

	tab, err := b.Open(ctx, "")
	if err != nil {
		return err
	}

	fmt.Printf("→ Replaying %d actions on %s\n", len(exp.Actions), exp.URL)
	player := replay.New(tab.Page(), replay.Options{
		Logger: logger,
		OnStep: func(s replay.Step) {
			mark := "✓"
			switch s.Status {
			case replay.StatusSkipped:
				mark = "-"
			case replay.StatusFailed:
				mark = "✗"
			}
			line := fmt.Sprintf("  [%d/%d] %s %s", s.Index+1, len(exp.Actions), mark, s.Kind)
			if s.Locator != "" {
				line += " " + s.Locator
			}
			if s.Reason != "" {
				line += " (" + s.Reason + ")"
			}
			fmt.Println(line)
		},
	})

	steps, err := player.Play(ctx, exp)
	if err != nil {
		return err
	}

	failed := 0
	for _, s := range steps {
		if s.Status == replay.StatusFailed {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d actions failed", failed, len(steps))
	}
	fmt.Println("✓ Replay finished")
	return nil
}
