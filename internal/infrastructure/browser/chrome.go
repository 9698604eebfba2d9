package browser

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
)

// ChromeSession implements Session on top of chromedp.
type ChromeSession struct {
	cfg         Config
	logger      *slog.Logger
	allocCtx    context.Context
	allocCancel context.CancelFunc
	tabCtx      context.Context
	tabCancel   context.CancelFunc
}

var _ Session = (*ChromeSession)(nil)

// NewChromeSession launches (or attaches to) Chrome and opens one tab.
func NewChromeSession(cfg Config, logger *slog.Logger) (*ChromeSession, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.OpTimeout <= 0 {
		cfg.OpTimeout = defaultOpTimeout
	}

	s := &ChromeSession{cfg: cfg, logger: logger}

	if cfg.RemoteURL != "" {
		s.allocCtx, s.allocCancel = chromedp.NewRemoteAllocator(context.Background(), cfg.RemoteURL)
	} else {
		opts := append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", cfg.Headless),
			chromedp.Flag("disable-dev-shm-usage", true),
			chromedp.Flag("disable-blink-features", "AutomationControlled"),
			chromedp.Flag("window-size", "1920,1080"),
			chromedp.Flag("no-first-run", true),
			chromedp.Flag("disable-extensions", true),
		)
		if cfg.NoSandbox {
			opts = append(opts, chromedp.Flag("no-sandbox", true))
		}
		if cfg.UserDataDir != "" {
			opts = append(opts, chromedp.UserDataDir(cfg.UserDataDir))
		}
		s.allocCtx, s.allocCancel = chromedp.NewExecAllocator(context.Background(), opts...)
	}

	s.tabCtx, s.tabCancel = chromedp.NewContext(s.allocCtx)

	// Force browser startup now so a broken Chrome install fails fast.
	if err := chromedp.Run(s.tabCtx); err != nil {
		s.tabCancel()
		s.allocCancel()
		return nil, fmt.Errorf("starting chrome: %w", err)
	}

	logger.Debug("chrome session started", "headless", cfg.Headless, "remote", cfg.RemoteURL != "")
	return s, nil
}

// run executes chromedp actions against the session tab, bounded by the
// operation timeout and cancellable through the caller's context.
func (s *ChromeSession) run(ctx context.Context, actions ...chromedp.Action) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	opCtx, cancel := context.WithTimeout(s.tabCtx, s.cfg.OpTimeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	return chromedp.Run(opCtx, actions...)
}

// Navigate loads the URL and waits for the navigation to commit.
func (s *ChromeSession) Navigate(ctx context.Context, url string) error {
	if err := s.run(ctx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigating to %s: %w", url, err)
	}
	return nil
}

// CurrentURL returns the tab's current location.
func (s *ChromeSession) CurrentURL(ctx context.Context) (string, error) {
	var loc string
	if err := s.run(ctx, chromedp.Location(&loc)); err != nil {
		return "", fmt.Errorf("reading location: %w", err)
	}
	return loc, nil
}

// PageSource returns the serialized document.
func (s *ChromeSession) PageSource(ctx context.Context) (string, error) {
	var html string
	if err := s.run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("reading page source: %w", err)
	}
	return html, nil
}

// WaitReady blocks until the selector matches or the timeout elapses.
func (s *ChromeSession) WaitReady(ctx context.Context, selector string, timeout time.Duration) error {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return s.run(waitCtx, chromedp.WaitReady(selector, chromedp.ByQuery))
}

// Texts returns innerHTML (or textContent) of all elements matching the
// selector. Elements with no content yield empty strings.
func (s *ChromeSession) Texts(ctx context.Context, selector string) ([]string, error) {
	expr := fmt.Sprintf(
		`Array.from(document.querySelectorAll(%q)).map(e => e.innerHTML || e.textContent || "")`,
		selector,
	)
	var texts []string
	if err := s.run(ctx, chromedp.Evaluate(expr, &texts)); err != nil {
		return nil, fmt.Errorf("collecting %s: %w", selector, err)
	}
	return texts, nil
}

// Evaluate runs an expression in the page and unmarshals the result.
func (s *ChromeSession) Evaluate(ctx context.Context, expr string, out any) error {
	if out == nil {
		return s.run(ctx, chromedp.Evaluate(expr, nil))
	}
	return s.run(ctx, chromedp.Evaluate(expr, out))
}

// EvaluateAsync runs a Promise-producing expression and waits for it.
func (s *ChromeSession) EvaluateAsync(ctx context.Context, expr string, out any) error {
	await := func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
		return p.WithAwaitPromise(true)
	}
	if out == nil {
		return s.run(ctx, chromedp.Evaluate(expr, nil, await))
	}
	return s.run(ctx, chromedp.Evaluate(expr, out, await))
}

// Close tears down the tab and browser process.
func (s *ChromeSession) Close() error {
	s.tabCancel()
	s.allocCancel()
	s.logger.Debug("chrome session closed")
	return nil
}
