package platforms

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orderbridge/rpa-backend/internal/infrastructure/browser"
	"github.com/orderbridge/rpa-backend/internal/infrastructure/config"
	"github.com/orderbridge/rpa-backend/internal/rpa"
)

func TestLookup(t *testing.T) {
	for _, name := range []string{"base", "rakuten", "tabechoku"} {
		t.Run(name, func(t *testing.T) {
			p, ok := Lookup(name)
			require.True(t, ok)
			assert.Equal(t, name, p.Name())
			assert.NotEmpty(t, p.LoginURL())
			assert.NotEmpty(t, p.OrdersURL())
			assert.NotEmpty(t, p.AdminURLMarkers())
		})
	}

	_, ok := Lookup("shopify")
	assert.False(t, ok)

	p, ok := Lookup("BASE")
	require.True(t, ok)
	assert.Equal(t, "base", p.Name())
}

func TestNames(t *testing.T) {
	assert.ElementsMatch(t, []string{"base", "rakuten", "tabechoku"}, Names())
}

// scrapeFakeSession answers the in-page walk with canned rows.
type scrapeFakeSession struct {
	rows     []OrderSummary
	evalErr  error
	lastExpr string
}

func (f *scrapeFakeSession) Navigate(ctx context.Context, url string) error { return nil }

func (f *scrapeFakeSession) CurrentURL(ctx context.Context) (string, error) { return "", nil }

func (f *scrapeFakeSession) PageSource(ctx context.Context) (string, error) { return "", nil }

func (f *scrapeFakeSession) WaitReady(ctx context.Context, selector string, timeout time.Duration) error {
	return nil
}

func (f *scrapeFakeSession) Texts(ctx context.Context, selector string) ([]string, error) {
	return nil, nil
}

func (f *scrapeFakeSession) Evaluate(ctx context.Context, expr string, out any) error {
	f.lastExpr = expr
	if f.evalErr != nil {
		return f.evalErr
	}
	if rows, ok := out.(*[]OrderSummary); ok {
		*rows = append([]OrderSummary(nil), f.rows...)
	}
	return nil
}

func (f *scrapeFakeSession) EvaluateAsync(ctx context.Context, expr string, out any) error {
	return nil
}

func (f *scrapeFakeSession) Close() error { return nil }

func TestScrapeOrdersFillsPlaceholders(t *testing.T) {
	p, _ := Lookup("base")
	session := &scrapeFakeSession{rows: []OrderSummary{
		{OrderID: "A1", Customer: "山田", Total: "¥1,200"},
		{}, // all cells missing
	}}

	orders, err := p.ScrapeOrders(context.Background(), session, 10)
	require.NoError(t, err)
	require.Len(t, orders, 2)

	assert.Equal(t, OrderSummary{OrderID: "A1", Customer: "山田", Total: "¥1,200"}, orders[0])
	assert.True(t, strings.HasPrefix(orders[1].OrderID, "BASE-2-"))
	assert.Equal(t, "取得不可", orders[1].Customer)
	assert.Equal(t, "取得不可", orders[1].Total)
}

func TestScrapeOrdersScriptCarriesSelectors(t *testing.T) {
	p, _ := Lookup("tabechoku")
	session := &scrapeFakeSession{}

	_, err := p.ScrapeOrders(context.Background(), session, 0)
	require.NoError(t, err)

	assert.Contains(t, session.lastExpr, `".order-list-row"`)
	assert.Contains(t, session.lastExpr, `".user-name"`)
	assert.Contains(t, session.lastExpr, "const limit = 10")

	// The selector arrays are embedded as their exact JSON encodings.
	v := registry["tabechoku"]
	assert.Contains(t, session.lastExpr, mustJSON(v.rowSelectors))
	assert.Contains(t, session.lastExpr, mustJSON(v.customerSelectors))
}

func TestScrapeOrdersEvaluateError(t *testing.T) {
	p, _ := Lookup("rakuten")
	session := &scrapeFakeSession{evalErr: fmt.Errorf("execution context destroyed")}

	_, err := p.ScrapeOrders(context.Background(), session, 10)
	assert.ErrorContains(t, err, "rakuten")
}

type fakeInserter struct {
	rows  []map[string]any
	errOn string // order_id that fails
}

func (f *fakeInserter) Insert(ctx context.Context, table string, row map[string]any) error {
	if row["order_id"] == f.errOn {
		return fmt.Errorf("duplicate key")
	}
	f.rows = append(f.rows, row)
	return nil
}

func newTestFlow(session *scrapeFakeSession, store *fakeInserter) *Flow {
	cfg := &config.Config{}
	f := NewFlow(cfg, store, slog.New(slog.DiscardHandler))
	f.newSession = func(browser.Config, *slog.Logger) (browser.Session, error) {
		return session, nil
	}
	f.newNavigator = func(s browser.Session, p Platform) *rpa.Navigator {
		nav := rpa.NewNavigator(s, f.logger, time.Millisecond)
		nav.PollInterval = time.Millisecond
		nav.Sleep = func(context.Context, time.Duration) {}
		return nav
	}
	return f
}

func TestFlowRun(t *testing.T) {
	session := &scrapeFakeSession{rows: []OrderSummary{
		{OrderID: "T1", Customer: "佐藤", Total: "3000"},
	}}
	store := &fakeInserter{}

	ok := newTestFlow(session, store).Run(context.Background(), "tabechoku", "U1", "J1")

	assert.True(t, ok)
	require.Len(t, store.rows, 1)
	assert.Equal(t, "tabechoku", store.rows[0]["platform"])
	assert.Equal(t, "T1", store.rows[0]["order_id"])
	assert.Equal(t, "佐藤", store.rows[0]["customer_name"])
	assert.Equal(t, "U1", store.rows[0]["user_id"])
	assert.Equal(t, "J1", store.rows[0]["job_id"])
}

func TestFlowRunUnsupportedPlatform(t *testing.T) {
	ok := newTestFlow(&scrapeFakeSession{}, &fakeInserter{}).Run(context.Background(), "shopify", "", "")
	assert.False(t, ok)
}

func TestFlowRunNoOrders(t *testing.T) {
	ok := newTestFlow(&scrapeFakeSession{}, &fakeInserter{}).Run(context.Background(), "base", "", "")
	assert.False(t, ok)
}

func TestFlowRunPartialInsertFailure(t *testing.T) {
	session := &scrapeFakeSession{rows: []OrderSummary{
		{OrderID: "B1", Customer: "a", Total: "1"},
		{OrderID: "B2", Customer: "b", Total: "2"},
	}}
	store := &fakeInserter{errOn: "B1"}

	ok := newTestFlow(session, store).Run(context.Background(), "base", "", "")

	assert.True(t, ok, "one persisted row is still a success")
	require.Len(t, store.rows, 1)
	assert.Equal(t, "B2", store.rows[0]["order_id"])
}
