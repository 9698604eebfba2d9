package rpa

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/orderbridge/rpa-backend/internal/infrastructure/browser"
)

// Navigator drives the browser through login and onto the scrape
// targets. Its methods report readiness rather than hard errors:
// a login wait that times out is logged and treated as "proceed",
// matching the operator-in-the-loop login flow.
type Navigator struct {
	session browser.Session
	logger  *slog.Logger

	// LoginWait bounds how long ensureLoggedIn polls before giving up
	// and proceeding anyway.
	LoginWait time.Duration
	// AdminURLMarkers are substrings whose presence in the current URL
	// means the back-office shell has loaded.
	AdminURLMarkers []string
	// PollInterval is the pause between login checks.
	PollInterval time.Duration
	// Sleep is the suspension primitive, replaceable in tests.
	Sleep func(context.Context, time.Duration)
}

// Paths that look like an admin URL but are still part of the
// authentication flow.
var twoFactorMarkers = []string{"verify_two_factor", "two_factor"}

// bodyReadyTimeout bounds the DOM-ready wait on the target page.
const bodyReadyTimeout = 15 * time.Second

func NewNavigator(session browser.Session, logger *slog.Logger, loginWait time.Duration) *Navigator {
	return &Navigator{
		session:         session,
		logger:          logger,
		LoginWait:       loginWait,
		AdminURLMarkers: []string{"shop_admin", "/dashboard"},
		PollInterval:    time.Second,
		Sleep:           sleepCtx,
	}
}

// NavigateToLogin opens the login page and waits for the operator to
// complete authentication. Returns false only when the browser itself
// failed; an expired wait returns true with a warning so the run can
// attempt the scrape regardless.
func (n *Navigator) NavigateToLogin(ctx context.Context, loginURL string) bool {
	n.logger.Info("opening login page", "url", loginURL)
	if err := n.session.Navigate(ctx, loginURL); err != nil {
		n.logger.Error("failed to open login page", "url", loginURL, "error", err)
		return false
	}
	n.Sleep(ctx, 3*time.Second)

	if n.waitForLogin(ctx) {
		n.logger.Info("login detected")
	} else {
		n.logger.Warn("login wait expired, proceeding anyway", "wait", n.LoginWait)
	}
	return true
}

// NavigateToTarget loads a scrape target, waits for the document body
// to exist and lets the page settle. Returns false when navigation
// failed or the body never appeared.
func (n *Navigator) NavigateToTarget(ctx context.Context, targetURL string) bool {
	n.logger.Info("navigating to target", "url", targetURL)
	if err := n.session.Navigate(ctx, targetURL); err != nil {
		n.logger.Error("failed to navigate to target", "url", targetURL, "error", err)
		return false
	}
	n.Sleep(ctx, 5*time.Second)
	if err := n.session.WaitReady(ctx, "body", bodyReadyTimeout); err != nil {
		n.logger.Error("target page never became ready", "url", targetURL, "error", err)
		return false
	}
	n.Sleep(ctx, 3*time.Second)
	return true
}

// waitForLogin polls the session until the current URL looks like the
// back-office shell and the login form is gone, or the wait expires.
func (n *Navigator) waitForLogin(ctx context.Context) bool {
	deadline := time.Now().Add(n.LoginWait)
	for time.Now().Before(deadline) {
		if ctx.Err() != nil {
			return false
		}
		if n.loggedIn(ctx) {
			return true
		}
		n.Sleep(ctx, n.PollInterval)
	}
	return false
}

func (n *Navigator) loggedIn(ctx context.Context) bool {
	currentURL, err := n.session.CurrentURL(ctx)
	if err != nil {
		return false
	}

	for _, marker := range twoFactorMarkers {
		if strings.Contains(currentURL, marker) {
			return false
		}
	}

	inAdmin := false
	for _, marker := range n.AdminURLMarkers {
		if strings.Contains(currentURL, marker) {
			inAdmin = true
			break
		}
	}
	if !inAdmin {
		return false
	}

	// A visible password field means we are still on (or were bounced
	// back to) the login form.
	var hasPassword bool
	expr := `document.querySelector('input[type="password"]') !== null`
	if err := n.session.Evaluate(ctx, expr, &hasPassword); err != nil {
		return false
	}
	return !hasPassword
}

func sleepCtx(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
