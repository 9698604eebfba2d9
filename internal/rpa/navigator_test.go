package rpa

import (
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type navFakeSession struct {
	urls         []string // successive CurrentURL answers, last repeats
	urlIndex     int
	hasPassword  bool
	navErr       error
	navigated    []string
	texts        map[string][]string
	pageSource   string
	readyErr     error
	readyWaits   []string
	readyTimeout time.Duration
}

func (f *navFakeSession) Navigate(ctx context.Context, url string) error {
	f.navigated = append(f.navigated, url)
	return f.navErr
}

func (f *navFakeSession) CurrentURL(ctx context.Context) (string, error) {
	if len(f.urls) == 0 {
		return "", nil
	}
	url := f.urls[f.urlIndex]
	if f.urlIndex < len(f.urls)-1 {
		f.urlIndex++
	}
	return url, nil
}

func (f *navFakeSession) PageSource(ctx context.Context) (string, error) {
	return f.pageSource, nil
}

func (f *navFakeSession) WaitReady(ctx context.Context, selector string, timeout time.Duration) error {
	f.readyWaits = append(f.readyWaits, selector)
	f.readyTimeout = timeout
	return f.readyErr
}

func (f *navFakeSession) Texts(ctx context.Context, selector string) ([]string, error) {
	return f.texts[selector], nil
}

func (f *navFakeSession) Evaluate(ctx context.Context, expr string, out any) error {
	if b, ok := out.(*bool); ok {
		*b = f.hasPassword
	}
	return nil
}

func (f *navFakeSession) EvaluateAsync(ctx context.Context, expr string, out any) error {
	return nil
}

func (f *navFakeSession) Close() error { return nil }

func newTestNavigator(session *navFakeSession, wait time.Duration) *Navigator {
	nav := NewNavigator(session, slog.New(slog.DiscardHandler), wait)
	nav.PollInterval = time.Millisecond
	nav.Sleep = func(context.Context, time.Duration) {}
	return nav
}

func TestNavigateToLoginDetectsAdminURL(t *testing.T) {
	session := &navFakeSession{
		urls: []string{
			"https://example.com/login",
			"https://example.com/shop_admin/home",
		},
	}
	nav := newTestNavigator(session, time.Second)

	assert.True(t, nav.NavigateToLogin(context.Background(), "https://example.com/login"))
	assert.Equal(t, []string{"https://example.com/login"}, session.navigated)
}

func TestNavigateToLoginTimeoutStillProceeds(t *testing.T) {
	session := &navFakeSession{urls: []string{"https://example.com/login"}}
	nav := newTestNavigator(session, 10*time.Millisecond)

	assert.True(t, nav.NavigateToLogin(context.Background(), "https://example.com/login"))
}

func TestNavigateToLoginBrowserFailure(t *testing.T) {
	session := &navFakeSession{navErr: fmt.Errorf("tab crashed")}
	nav := newTestNavigator(session, time.Second)

	assert.False(t, nav.NavigateToLogin(context.Background(), "https://example.com/login"))
}

func TestLoggedInRejectsTwoFactorPage(t *testing.T) {
	session := &navFakeSession{
		urls: []string{"https://example.com/shop_admin/verify_two_factor"},
	}
	nav := newTestNavigator(session, time.Second)

	assert.False(t, nav.loggedIn(context.Background()))
}

func TestLoggedInRejectsLingeringPasswordField(t *testing.T) {
	session := &navFakeSession{
		urls:        []string{"https://example.com/dashboard"},
		hasPassword: true,
	}
	nav := newTestNavigator(session, time.Second)

	assert.False(t, nav.loggedIn(context.Background()))
}

func TestNavigateToTarget(t *testing.T) {
	session := &navFakeSession{}
	nav := newTestNavigator(session, time.Second)

	assert.True(t, nav.NavigateToTarget(context.Background(), "https://example.com/orders/1"))
	assert.Equal(t, []string{"https://example.com/orders/1"}, session.navigated)

	session.navErr = fmt.Errorf("net::ERR_CONNECTION_RESET")
	assert.False(t, nav.NavigateToTarget(context.Background(), "https://example.com/orders/2"))
}

func TestNavigateToTargetWaitsForBody(t *testing.T) {
	session := &navFakeSession{}
	nav := newTestNavigator(session, time.Second)

	assert.True(t, nav.NavigateToTarget(context.Background(), "https://example.com/orders/1"))
	assert.Equal(t, []string{"body"}, session.readyWaits)
	assert.Equal(t, 15*time.Second, session.readyTimeout)
}

func TestNavigateToTargetBodyNeverReady(t *testing.T) {
	session := &navFakeSession{readyErr: fmt.Errorf("context deadline exceeded")}
	nav := newTestNavigator(session, time.Second)

	assert.False(t, nav.NavigateToTarget(context.Background(), "https://example.com/orders/1"))
}
