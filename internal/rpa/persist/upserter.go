package persist

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/orderbridge/rpa-backend/internal/rpa/normalize"
)

// Store is the slice of the remote store the upserter needs. The
// returned rows are the authoritative record of what was persisted.
type Store interface {
	Upsert(ctx context.Context, table string, rows []map[string]any) ([]map[string]any, error)
}

// SavedRecords counts what a save actually persisted, per table.
type SavedRecords struct {
	Customers int `json:"customers"`
	Orders    int `json:"orders"`
	Items     int `json:"items"`
}

func (s SavedRecords) Total() int {
	return s.Customers + s.Orders + s.Items
}

// Upserter writes a canonical order into the remote store in
// dependency order: customer first, then the order referencing it,
// then the line items referencing the order. A failure at one level
// does not abort the levels that can still proceed, except that line
// items are skipped when no order row exists to parent them.
type Upserter struct {
	store  Store
	logger *slog.Logger
}

func NewUpserter(store Store, logger *slog.Logger) *Upserter {
	return &Upserter{store: store, logger: logger}
}

// Save persists the canonical triple and reports per-table counts
// taken from the store's returned rows, not from the input.
func (u *Upserter) Save(ctx context.Context, c *normalize.Canonical, platform, userID, jobID string) SavedRecords {
	var saved SavedRecords

	customerID := u.saveCustomer(ctx, c.Customer)
	if customerID != "" {
		saved.Customers = 1
	}

	orderID := u.saveOrder(ctx, c.Order, customerID, platform, userID, jobID)
	if orderID != "" {
		saved.Orders = 1
		saved.Items = u.saveItems(ctx, c.Items, orderID)
	} else if len(c.Items) > 0 {
		u.logger.Warn("skipping line items, no persisted order to attach them to", "items", len(c.Items))
	}

	u.logger.Info("save complete",
		"customers", saved.Customers, "orders", saved.Orders, "items", saved.Items)
	return saved
}

func (u *Upserter) saveCustomer(ctx context.Context, customer normalize.Customer) string {
	id := customer.ID
	if id == "" {
		if customer.Email == "" {
			u.logger.Warn("customer has neither id nor email, skipping")
			return ""
		}
		// Email doubles as the id when the vendor gave us none.
		id = customer.Email
		u.logger.Info("using email as customer id", "email", customer.Email)
	}

	row := stripEmpty(map[string]any{
		"id":          id,
		"name":        customer.Name,
		"email":       customer.Email,
		"phone":       customer.Phone,
		"postal_code": customer.PostalCode,
		"address":     customer.Address,
	})

	rows, err := u.store.Upsert(ctx, "customers", []map[string]any{row})
	if err != nil {
		u.logger.Error("customer upsert failed", "id", id, "error", err)
		return ""
	}
	if len(rows) == 0 {
		return ""
	}
	return rowID(rows[0], id)
}

func (u *Upserter) saveOrder(ctx context.Context, order normalize.Order, customerID, platform, userID, jobID string) string {
	if order.OrderID == "" {
		u.logger.Warn("order has no id, skipping order and line items")
		return ""
	}

	status := order.Status
	if status == "" {
		status = "未処理"
	}

	row := stripEmpty(map[string]any{
		"id":             order.OrderID,
		"order_number":   order.OrderNumber,
		"platform":       platform,
		"customer_id":    customerID,
		"order_date":     order.OrderDate,
		"status":         status,
		"total_amount":   order.TotalAmount,
		"payment_method": order.PaymentMethod,
		"shipping_fee":   order.ShippingFee,
		"tax":            order.Tax,
		"user_id":        userID,
		"job_id":         jobID,
	})

	rows, err := u.store.Upsert(ctx, "orders", []map[string]any{row})
	if err != nil {
		u.logger.Error("order upsert failed", "id", order.OrderID, "error", err)
		return ""
	}
	if len(rows) == 0 {
		return ""
	}
	return rowID(rows[0], order.OrderID)
}

func (u *Upserter) saveItems(ctx context.Context, items []normalize.LineItem, orderID string) int {
	if len(items) == 0 {
		return 0
	}

	rows := make([]map[string]any, 0, len(items))
	for idx, item := range items {
		quantity := item.Quantity
		if quantity == 0 {
			quantity = 1
		}
		rows = append(rows, stripEmpty(map[string]any{
			"id":           fmt.Sprintf("%s-%d", orderID, idx+1),
			"order_id":     orderID,
			"product_id":   item.ProductID,
			"product_name": item.ProductName,
			"quantity":     quantity,
			"unit":         item.Unit,
			"price":        item.Price,
			"subtotal":     item.Subtotal,
			"sku":          item.SKU,
		}))
	}

	persisted, err := u.store.Upsert(ctx, "order_items", rows)
	if err != nil {
		u.logger.Error("line item upsert failed", "order_id", orderID, "error", err)
		return 0
	}
	return len(persisted)
}

// stripEmpty drops keys whose string value is empty so the upsert does
// not overwrite existing columns with blanks.
func stripEmpty(row map[string]any) map[string]any {
	for key, value := range row {
		if s, ok := value.(string); ok && s == "" {
			delete(row, key)
		}
	}
	return row
}

// rowID reads the id the store reported back, falling back to the id
// we sent.
func rowID(row map[string]any, fallback string) string {
	if id, ok := row["id"].(string); ok && id != "" {
		return id
	}
	return fallback
}
