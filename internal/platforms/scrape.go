package platforms

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/orderbridge/rpa-backend/internal/infrastructure/browser"
)

const defaultScrapeLimit = 10

// Selectors are tried in order until one matches; vendors rename
// their CSS classes often enough that a single selector is brittle.
const scrapeScript = `(() => {
	const rowSelectors = %s;
	const idSelectors = %s;
	const customerSelectors = %s;
	const totalSelectors = %s;
	const limit = %d;

	let rows = [];
	for (const sel of rowSelectors) {
		rows = Array.from(document.querySelectorAll(sel));
		if (rows.length > 0) break;
	}

	const pick = (row, selectors) => {
		for (const sel of selectors) {
			const el = row.querySelector(sel);
			if (el) {
				const text = (el.textContent || "").trim();
				if (text) return text;
			}
		}
		return "";
	};

	return rows.slice(0, limit).map(row => ({
		order_id: pick(row, idSelectors),
		customer: pick(row, customerSelectors),
		total: pick(row, totalSelectors),
	}));
})()`

// ScrapeOrders walks the order list in-page and returns up to limit
// rows. Missing cells get placeholder values rather than dropping the
// row; an empty order id is synthesized so the insert stays keyed.
func (v *variant) ScrapeOrders(ctx context.Context, session browser.Session, limit int) ([]OrderSummary, error) {
	if limit <= 0 {
		limit = defaultScrapeLimit
	}

	expr := fmt.Sprintf(scrapeScript,
		mustJSON(v.rowSelectors),
		mustJSON(v.idSelectors),
		mustJSON(v.customerSelectors),
		mustJSON(v.totalSelectors),
		limit,
	)

	var orders []OrderSummary
	if err := session.Evaluate(ctx, expr, &orders); err != nil {
		return nil, fmt.Errorf("scraping %s order list: %w", v.name, err)
	}

	now := time.Now().Unix()
	for i := range orders {
		if orders[i].OrderID == "" {
			orders[i].OrderID = fmt.Sprintf("%s-%d-%d", v.idPrefix, i+1, now)
		}
		if orders[i].Customer == "" {
			orders[i].Customer = "取得不可"
		}
		if orders[i].Total == "" {
			orders[i].Total = "取得不可"
		}
	}
	return orders, nil
}

func mustJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return string(data)
}
