// Package browser hosts recorded tabs in a Chromium instance driven over the
// DevTools protocol.
package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"
)

// Options configures the browser launch
type Options struct {
	Bin        string // empty: look up a local Chrome, or let rod download one
	Headless   bool
	Width      int
	Height     int
	ProfileDir string // Chrome/Chromium profile directory for authenticated sessions
	Timeout    time.Duration
	Logger     *zap.Logger
}

// Browser wraps the Rod browser for reuse
type Browser struct {
	browser *rod.Browser
	opts    Options
	logger  *zap.Logger
}

// Launch starts Chromium and connects to it
func Launch(opts Options) (*Browser, error) {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	bin := opts.Bin
	if bin == "" {
		bin, _ = launcher.LookPath()
	}
	l := launcher.New().Headless(opts.Headless)
	if bin != "" {
		l = l.Bin(bin)
	}
	if opts.ProfileDir != "" {
		l = l.UserDataDir(opts.ProfileDir)
	}

	u, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}
	b := rod.New().ControlURL(u)
	if err := b.Connect(); err != nil {
		return nil, fmt.Errorf("connect browser: %w", err)
	}

	opts.Logger.Debug("browser connected", zap.String("control_url", u), zap.Bool("headless", opts.Headless))
	return &Browser{browser: b, opts: opts, logger: opts.Logger}, nil
}

// Close cleans up browser resources
func (b *Browser) Close() error {
	if b.browser == nil {
		return nil
	}
	return b.browser.Close()
}

// Open creates a new tab, sizes it and navigates to url
func (b *Browser) Open(ctx context.Context, url string) (*Tab, error) {
	page, err := b.browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return nil, fmt.Errorf("open tab: %w", err)
	}

	err = page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             b.opts.Width,
		Height:            b.opts.Height,
		DeviceScaleFactor: 1,
	})
	if err != nil {
		page.Close()
		return nil, fmt.Errorf("set viewport: %w", err)
	}

	tab := newTab(page, b.logger)
	if url != "" {
		if err := tab.Navigate(ctx, url, b.opts.Timeout); err != nil {
			page.Close()
			return nil, err
		}
	}
	return tab, nil
}
