// Package browser drives a Chrome session over the DevTools protocol.
//
// The RPA core only depends on the Session interface; ChromeSession is
// the production implementation and tests substitute fakes.
package browser

import (
	"context"
	"time"
)

// Session is the browser-driving collaborator the RPA core calls.
// All blocking operations honor the passed context.
type Session interface {
	// Navigate loads a URL in the session's tab.
	Navigate(ctx context.Context, url string) error
	// CurrentURL returns the tab's current location.
	CurrentURL(ctx context.Context) (string, error)
	// PageSource returns the full serialized document.
	PageSource(ctx context.Context) (string, error)
	// WaitReady blocks until an element matching the selector exists,
	// or the timeout elapses.
	WaitReady(ctx context.Context, selector string, timeout time.Duration) error
	// Texts returns the inner HTML (falling back to text content) of
	// every element matching the CSS selector.
	Texts(ctx context.Context, selector string) ([]string, error)
	// Evaluate runs a JavaScript expression and unmarshals its result
	// into out. Pass nil to discard the result.
	Evaluate(ctx context.Context, expr string, out any) error
	// EvaluateAsync runs an expression that yields a Promise and waits
	// for it to settle before unmarshaling the result.
	EvaluateAsync(ctx context.Context, expr string, out any) error
	// Close tears down the tab and, for locally launched browsers, the
	// browser process.
	Close() error
}

// Config contains settings for launching a Chrome session.
type Config struct {
	// Headless runs Chrome without a visible window.
	Headless bool
	// NoSandbox runs Chrome without sandbox (required for Docker/root).
	NoSandbox bool
	// RemoteURL attaches to an already-running Chrome instance instead
	// of launching one.
	RemoteURL string
	// UserDataDir preserves cookies between runs when set.
	UserDataDir string
	// OpTimeout bounds each individual browser operation.
	OpTimeout time.Duration
}

const defaultOpTimeout = 60 * time.Second
