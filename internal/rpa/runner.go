package rpa

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/orderbridge/rpa-backend/internal/infrastructure/browser"
	"github.com/orderbridge/rpa-backend/internal/infrastructure/config"
	"github.com/orderbridge/rpa-backend/internal/rpa/extract"
	"github.com/orderbridge/rpa-backend/internal/rpa/normalize"
	"github.com/orderbridge/rpa-backend/internal/rpa/persist"
)

// Request describes one scrape job.
type Request struct {
	LoginURL  string `json:"login_url"`
	TargetURL string `json:"target_url"`
	Headless  bool   `json:"headless"`
	Platform  string `json:"platform"`
	UserID    string `json:"user_id"`
	JobID     string `json:"job_id"`
}

// Result is the structured outcome every run produces, failure or not.
type Result struct {
	Success      bool                 `json:"success"`
	SavedRecords persist.SavedRecords `json:"saved_records"`
	Message      string               `json:"message"`
}

// SessionFactory opens a browser session for one run.
type SessionFactory func(cfg browser.Config, logger *slog.Logger) (browser.Session, error)

// Runner executes a complete scrape job: open browser, log in, reach
// the target page, extract the embedded payload, normalize it and
// write it to the store. Each run owns its own session; there is no
// shared state between concurrent runs.
type Runner struct {
	cfg          *config.Config
	store        persist.Store
	logger       *slog.Logger
	newSession   SessionFactory
	newNavigator func(browser.Session) *Navigator
	now          func() time.Time
}

func NewRunner(cfg *config.Config, store persist.Store, logger *slog.Logger) *Runner {
	r := &Runner{
		cfg:    cfg,
		store:  store,
		logger: logger,
		newSession: func(bcfg browser.Config, l *slog.Logger) (browser.Session, error) {
			return browser.NewChromeSession(bcfg, l)
		},
		now: time.Now,
	}
	r.newNavigator = func(s browser.Session) *Navigator {
		return NewNavigator(s, r.logger, r.cfg.RPA.LoginWait())
	}
	return r
}

// Run executes the job end to end. It never panics outward: any
// unexpected failure is converted into a failure Result carrying the
// message.
func (r *Runner) Run(ctx context.Context, req Request) (result Result) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("run panicked", "job_id", req.JobID, "panic", rec)
			result = failure(fmt.Sprintf("実行中に予期しないエラーが発生しました: %v", rec))
		}
	}()

	r.logger.Info("starting rpa run",
		"login_url", req.LoginURL, "target_url", req.TargetURL,
		"platform", req.Platform, "job_id", req.JobID, "headless", req.Headless)

	session, err := r.newSession(browser.Config{
		Headless:    req.Headless,
		NoSandbox:   r.cfg.Browser.NoSandbox,
		RemoteURL:   r.cfg.Browser.RemoteURL,
		UserDataDir: r.cfg.Browser.UserDataDir,
	}, r.logger)
	if err != nil {
		r.logger.Error("failed to open browser session", "error", err)
		return failure(fmt.Sprintf("ブラウザの起動に失敗しました: %v", err))
	}
	defer session.Close()

	nav := r.newNavigator(session)
	if !nav.NavigateToLogin(ctx, req.LoginURL) {
		return failure("ログイン後URLへの移動に失敗しました")
	}
	if !nav.NavigateToTarget(ctx, req.TargetURL) {
		return failure("ターゲットURLへの移動に失敗しました")
	}

	extractor := extract.NewExtractor(session, r.logger)
	extractor.Platform = req.Platform
	payload, err := extractor.Extract(ctx)
	if err != nil {
		r.dumpPageSource(ctx, session)
		return failure("ページからJSONデータを取得できませんでした")
	}
	r.dumpPayload(payload)

	canonical := normalize.Normalize(payload)
	r.logger.Info("payload normalized",
		"customer_empty", canonical.Customer.IsEmpty(),
		"order_id", canonical.Order.OrderID,
		"items", len(canonical.Items))

	upserter := persist.NewUpserter(r.store, r.logger)
	saved := upserter.Save(ctx, canonical, req.Platform, req.UserID, req.JobID)

	if saved.Total() == 0 {
		return Result{
			Success:      false,
			SavedRecords: saved,
			Message:      "データが保存されませんでした",
		}
	}
	return Result{
		Success:      true,
		SavedRecords: saved,
		Message: fmt.Sprintf("RPA実行が完了しました。保存レコード: 顧客=%d, 注文=%d, 商品=%d",
			saved.Customers, saved.Orders, saved.Items),
	}
}

// dumpPageSource saves the page for offline inspection after an
// extraction miss. Diagnostic only, failures are logged and ignored.
func (r *Runner) dumpPageSource(ctx context.Context, session browser.Session) {
	source, err := session.PageSource(ctx)
	if err != nil {
		r.logger.Debug("could not capture page source", "error", err)
		return
	}
	path := filepath.Join(r.cfg.RPA.DebugDir, "debug_page_source.html")
	if err := os.WriteFile(path, []byte(source), 0o644); err != nil {
		r.logger.Debug("could not write page source dump", "path", path, "error", err)
		return
	}
	r.logger.Info("page source saved for inspection", "path", path)
}

// dumpPayload archives the extracted JSON under the debug directory.
func (r *Runner) dumpPayload(payload json.RawMessage) {
	dir := filepath.Join(r.cfg.RPA.DebugDir, "debug_json")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		r.logger.Debug("could not create debug dir", "dir", dir, "error", err)
		return
	}
	path := filepath.Join(dir, fmt.Sprintf("order_data_%d.json", r.now().Unix()))
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		r.logger.Debug("could not write payload dump", "path", path, "error", err)
		return
	}
	r.logger.Info("payload saved", "path", path)
}

func failure(message string) Result {
	return Result{Success: false, Message: message}
}
