package platforms

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/orderbridge/rpa-backend/internal/infrastructure/browser"
	"github.com/orderbridge/rpa-backend/internal/infrastructure/config"
	"github.com/orderbridge/rpa-backend/internal/rpa"
)

// Inserter is the slice of the remote store the platform flow needs.
type Inserter interface {
	Insert(ctx context.Context, table string, row map[string]any) error
}

// Flow runs the per-platform list scrape: open the login page, wait
// for the operator, jump to the order list, read rows and insert them
// into the store one by one.
type Flow struct {
	cfg          *config.Config
	store        Inserter
	logger       *slog.Logger
	newSession   rpa.SessionFactory
	newNavigator func(browser.Session, Platform) *rpa.Navigator
}

func NewFlow(cfg *config.Config, store Inserter, logger *slog.Logger) *Flow {
	f := &Flow{
		cfg:    cfg,
		store:  store,
		logger: logger,
		newSession: func(bcfg browser.Config, l *slog.Logger) (browser.Session, error) {
			return browser.NewChromeSession(bcfg, l)
		},
	}
	f.newNavigator = func(s browser.Session, p Platform) *rpa.Navigator {
		nav := rpa.NewNavigator(s, f.logger, f.cfg.RPA.LoginWait())
		nav.AdminURLMarkers = p.AdminURLMarkers()
		return nav
	}
	return f
}

// Run executes the list scrape for the named platform. It reports
// whether any rows were persisted; errors are logged, not returned,
// since the flow runs fire-and-forget in the background.
func (f *Flow) Run(ctx context.Context, platformName, userID, jobID string) bool {
	platform, ok := Lookup(platformName)
	if !ok {
		f.logger.Error("unsupported platform", "platform", platformName)
		return false
	}
	logger := f.logger.With("platform", platform.Name(), "job_id", jobID)
	logger.Info("starting platform scrape")

	session, err := f.newSession(browser.Config{
		Headless:    f.cfg.Browser.Headless,
		NoSandbox:   f.cfg.Browser.NoSandbox,
		RemoteURL:   f.cfg.Browser.RemoteURL,
		UserDataDir: f.cfg.Browser.UserDataDir,
	}, logger)
	if err != nil {
		logger.Error("failed to open browser session", "error", err)
		return false
	}
	defer session.Close()

	nav := f.newNavigator(session, platform)
	if !nav.NavigateToLogin(ctx, platform.LoginURL()) {
		return false
	}
	if !nav.NavigateToTarget(ctx, platform.OrdersURL()) {
		return false
	}

	orders, err := platform.ScrapeOrders(ctx, session, defaultScrapeLimit)
	if err != nil {
		logger.Error("order list scrape failed", "error", err)
		return false
	}
	if len(orders) == 0 {
		logger.Warn("no orders found on list page")
		return false
	}

	saved := 0
	for _, order := range orders {
		row := map[string]any{
			"platform":      platform.Name(),
			"order_id":      order.OrderID,
			"customer_name": order.Customer,
			"total":         order.Total,
		}
		if userID != "" {
			row["user_id"] = userID
		}
		if jobID != "" {
			row["job_id"] = jobID
		}
		if err := f.store.Insert(ctx, "orders", row); err != nil {
			logger.Error("order insert failed", "order_id", order.OrderID, "error", err)
			continue
		}
		saved++
	}

	logger.Info("platform scrape finished",
		"scraped", len(orders), "saved", saved,
		"summary", fmt.Sprintf("%d/%d", saved, len(orders)))
	return saved > 0
}
