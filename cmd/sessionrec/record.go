package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/v0xg/sessionrec/internal/action"
	"github.com/v0xg/sessionrec/internal/browser"
	"github.com/v0xg/sessionrec/internal/capture"
	"github.com/v0xg/sessionrec/internal/gifgen"
	"github.com/v0xg/sessionrec/internal/readiness"
	"github.com/v0xg/sessionrec/internal/screencast"
	"github.com/v0xg/sessionrec/internal/session"
)

var (
	duration time.Duration
	video    bool
	tags     []string
	headless bool
	profile  string
)

func recordCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "record <url>",
		Short: "Open url and record a session",
		Long: `Opens url in a new tab and records until stopped.

Type a command and press enter while recording:
  p   pause
  r   resume
  s   stop and save

Ctrl-C also stops and saves the session.`,
		Args: cobra.ExactArgs(1),
		RunE: runRecord,
	}
	cmd.Flags().DurationVarP(&duration, "duration", "d", 0, "Stop automatically after this long")
	cmd.Flags().BoolVar(&video, "video", false, "Also record a companion video")
	cmd.Flags().StringSliceVarP(&tags, "tag", "t", nil, "Tag the session (repeatable)")
	cmd.Flags().BoolVar(&headless, "headless", false, "Run the browser headless")
	cmd.Flags().StringVar(&profile, "profile", "", "Chrome/Chromium profile directory for authenticated sessions (close browser first)")
	return cmd
}

// recording holds what the attacher wires up for one session
type recording struct {
	tab    *browser.Tab
	video  *screencast.Recorder
	result screencast.Video
}

func runRecord(cmd *cobra.Command, args []string) error {
	url := args[0]

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

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

	fmt.Printf("→ Opening %s... ", url)
	b, err := browser.Launch(bopts)
	if err != nil {
		fmt.Println("failed")
		return err
	}
	defer b.Close()

	tab, err := b.Open(ctx, url)
	if err != nil {
		fmt.Println("failed")
		return err
	}
	tab.SetScreenshotFormat(cfg.Recorder.ScreenshotFormat)
	fmt.Println("done")

	meta, err := tab.Metadata(ctx)
	if err != nil {
		logger.Warn("page metadata unavailable", zap.Error(err))
	}
	meta.Tags = tags

	rec := &recording{tab: tab}
	registry := session.NewRegistry(
		session.WithLogger(logger),
		session.WithAttacher(rec.attacher(ctx)),
		session.WithJournal(func(sessionID string, r action.Record) {
			if err := st.JournalAction(context.Background(), sessionID, r); err != nil {
				logger.Warn("journal action", zap.String("session", sessionID), zap.Error(err))
			}
			logVerbose("  [%s] %s", r.Kind, locatorOf(r))
		}),
	)

	if _, err := registry.HandleSignal(session.Signal{
		Kind: session.SignalStart, TabID: tab.ID(), URL: url, Metadata: meta,
	}); err != nil {
		return fmt.Errorf("start recording: %w", err)
	}
	fmt.Println("→ Recording... (p pause, r resume, s stop)")

	exp, err := control(ctx, registry, tab)
	if err != nil {
		return err
	}

	fmt.Printf("→ Saving %d actions... ", len(exp.Actions))
	if err := st.SaveSession(context.Background(), *exp); err != nil {
		fmt.Println("failed")
		return err
	}
	fmt.Println("done")

	if rec.video != nil {
		if err := writeVideo(*exp, rec.result); err != nil {
			logger.Warn("companion video", zap.Error(err))
		}
	}

	fmt.Printf("✓ Session %s (%s, %d actions)\n", exp.ID, exp.Elapsed().Round(time.Second), len(exp.Actions))
	return nil
}

// attacher subscribes the normalizer (and the video recorder) to the tab.
// Subscriptions are released in reverse: video first, then the probe, then
// the normalizer drains.
func (r *recording) attacher(ctx context.Context) session.Attacher {
	return func(s *session.Session) ([]session.Subscription, error) {
		var subs []session.Subscription

		norm := capture.New(s,
			capture.WithConfig(cfg.NormalizerConfig()),
			capture.WithStabilizer(r.tab.Stabilizer(readiness.WithTimings(cfg.Timings()))),
			capture.WithCapturer(r.tab),
			capture.WithTooltipProbe(r.tab),
			capture.WithGate(s.Recording),
			capture.WithLogger(logger.With(zap.String("session", s.ID()))),
		)
		subs = append(subs, session.ReleaseFunc(func() error {
			norm.Close()
			return nil
		}))

		release, err := r.tab.Attach(ctx, norm.Handle)
		if err != nil {
			return subs, err
		}
		subs = append(subs, session.ReleaseFunc(release))

		if video {
			r.video = screencast.Start(ctx, r.tab, screencast.Options{FPS: cfg.Recorder.VideoFPS, Logger: logger})
			subs = append(subs, session.ReleaseFunc(func() error {
				r.result = r.video.Stop()
				return nil
			}))
		}
		return subs, nil
	}
}

// control turns stdin commands, interrupts and --duration into signals
// until the session stops
func control(ctx context.Context, registry *session.Registry, tab *browser.Tab) (*session.Export, error) {
	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	var deadline <-chan time.Time
	if duration > 0 {
		timer := time.NewTimer(duration)
		defer timer.Stop()
		deadline = timer.C
	}

	stopSignal := session.Signal{Kind: session.SignalStop, TabID: tab.ID()}
	for {
		select {
		case <-ctx.Done():
			fmt.Println()
			return registry.HandleSignal(stopSignal)
		case <-deadline:
			return registry.HandleSignal(stopSignal)
		case line := <-lines:
			if line == "" {
				continue
			}
			kind, err := session.ParseSignalKind(line)
			if err != nil || kind == session.SignalStart {
				fmt.Println("  commands: p pause, r resume, s stop")
				continue
			}
			exp, err := registry.HandleSignal(session.Signal{Kind: kind, TabID: tab.ID()})
			switch {
			case errors.Is(err, session.ErrNotRecording), errors.Is(err, session.ErrNotPaused):
				fmt.Printf("  %v\n", err)
			case err != nil:
				return nil, err
			case exp != nil:
				return exp, nil
			case kind == session.SignalPause:
				tab.SetBadge("PAUSED")
				fmt.Println("  paused")
			case kind == session.SignalResume:
				tab.SetBadge("REC")
				fmt.Println("  recording")
			}
		}
	}
}

func writeVideo(exp session.Export, v screencast.Video) error {
	dir := cfg.Export.OutDir
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	frames := screencast.Render(v, exp.Actions, exp.Metadata.Viewport.Width)
	path := filepath.Join(dir, exp.ID+".video.gif")
	fmt.Printf("→ Generating video (%d frames)... ", len(frames))
	size, err := gifgen.WriteFile(path, frames, gifgen.Options{MaxWidth: cfg.Export.ThumbnailWidth, MaxColors: cfg.Export.ReplayMaxColors})
	if err != nil {
		fmt.Println("failed")
		return err
	}
	fmt.Println("done")

	marks, err := json.MarshalIndent(screencast.Correlate(v, exp.Actions), "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, exp.ID+".video.json"), marks, 0644); err != nil {
		return err
	}
	fmt.Printf("✓ Video saved to %s (%.1f MB)\n", path, float64(size)/(1024*1024))
	return nil
}

func locatorOf(r action.Record) string {
	if r.Target == nil {
		return ""
	}
	if r.Target.Selector != "" {
		return r.Target.Selector
	}
	return r.Target.FallbackLocator
}
