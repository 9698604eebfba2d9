// Package normalize maps vendor order payloads into the canonical
// customer/order/line-item shape shared by every platform.
package normalize

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Customer is the canonical customer record. Fields absent in the
// source stay empty and are stripped before persistence.
type Customer struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Email      string `json:"email"`
	Phone      string `json:"phone"`
	PostalCode string `json:"postal_code"`
	Address    string `json:"address"`
}

// IsEmpty reports whether no customer data was found in the payload.
func (c Customer) IsEmpty() bool {
	return c == Customer{}
}

// Order is the canonical order record.
type Order struct {
	OrderID       string  `json:"order_id"`
	OrderNumber   string  `json:"order_number"`
	OrderDate     string  `json:"order_date"`
	Status        string  `json:"status"`
	TotalAmount   float64 `json:"total_amount"`
	PaymentMethod string  `json:"payment_method"`
	ShippingFee   float64 `json:"shipping_fee"`
	Tax           float64 `json:"tax"`
}

// IsEmpty reports whether no order data was found in the payload.
func (o Order) IsEmpty() bool {
	return o == Order{}
}

// LineItem is one canonical order line.
type LineItem struct {
	ProductID   string  `json:"product_id"`
	ProductName string  `json:"product_name"`
	Quantity    float64 `json:"quantity"`
	Unit        string  `json:"unit"`
	Price       float64 `json:"price"`
	Subtotal    float64 `json:"subtotal"`
	SKU         string  `json:"sku"`
}

// Canonical bundles the normalized triple plus the original payload,
// which is kept verbatim for audit and debugging.
type Canonical struct {
	Customer Customer        `json:"customer"`
	Order    Order           `json:"order"`
	Items    []LineItem      `json:"order_items"`
	Raw      json.RawMessage `json:"raw_data"`
}

// Status labels keyed by the vendor's order status code. The first
// sub-order's status stands in for the whole order, multi-shipment
// orders included.
var statusLabels = map[string]string{
	"unpaid":     "入金待ち",
	"pending":    "未対応",
	"dealing":    "対応中",
	"dispatched": "対応済",
	"cancelled":  "キャンセル",
}

// Payment method labels keyed by the vendor's payment code. Unmapped
// codes pass through verbatim.
var paymentLabels = map[string]string{
	"base_bt":    "BASE銀行振込",
	"creditcard": "クレジットカード",
	"cvs":        "コンビニ決済",
	"bnpl":       "BNPL",
	"carrier":    "キャリア決済",
	"paypal":     "PayPal",
	"amazon_pay": "AmazonPay",
}

const (
	statusUnprocessed  = "未処理"
	unknownProductName = "商品名不明"
	defaultUnit        = "個"
)

// Normalize converts a raw vendor payload into the canonical triple.
// It is a total function: any unrecognized or malformed shape yields
// empty sub-records with the raw payload passed through, never an error.
func Normalize(raw json.RawMessage) *Canonical {
	result := &Canonical{Raw: raw}

	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return result
	}

	header := unwrap(payload)

	result.Customer = extractCustomer(header)
	result.Order = extractOrder(header)
	result.Items = extractItems(header)
	return result
}

// unwrap locates the order container: an explicit order_header field,
// else the payload itself (which covers the bare API-response shape
// that carries a top-level status field).
func unwrap(payload map[string]any) map[string]any {
	if header := getMap(payload, "order_header"); header != nil {
		return header
	}
	return payload
}

func extractCustomer(header map[string]any) Customer {
	if crm := getMap(header, "crm_customer"); crm != nil {
		buyer := getMap(header, "buyer")
		addr := getMap(buyer, "address")
		return Customer{
			ID:         getString(crm, "customer_id", "id"),
			Name:       getString(crm, "name"),
			Email:      firstNonEmpty(getString(crm, "mail_address", "email"), getString(buyer, "mail_address")),
			Phone:      firstNonEmpty(getString(crm, "tel", "phone"), getString(buyer, "tel")),
			PostalCode: getString(addr, "zip_code", "postal_code"),
			Address:    formatAddress(addr),
		}
	}

	if buyer := getMap(header, "buyer"); buyer != nil {
		addr := getMap(buyer, "address")
		name := strings.TrimSpace(getString(buyer, "last_name") + " " + getString(buyer, "first_name"))
		return Customer{
			ID:         getString(buyer, "id", "buyer_id"),
			Name:       name,
			Email:      getString(buyer, "mail_address", "email"),
			Phone:      getString(buyer, "tel", "phone"),
			PostalCode: getString(addr, "zip_code", "postal_code"),
			Address:    formatAddress(addr),
		}
	}

	return Customer{}
}

func extractOrder(header map[string]any) Order {
	if len(header) == 0 {
		return Order{}
	}

	timeInfo := getMap(header, "time_info")
	priceInfo := getMap(header, "price_info")

	orderID := getString(header, "unique_key", "order_id", "id")

	status := statusUnprocessed
	if orders := getSlice(header, "orders"); len(orders) > 0 {
		if first := asMap(orders[0]); first != nil {
			code := getString(first, "status")
			if label, ok := statusLabels[code]; ok {
				status = label
			} else if code != "" {
				status = code
			}
		}
	}

	payment := getString(header, "payment")
	if label, ok := paymentLabels[payment]; ok {
		payment = label
	}

	return Order{
		OrderID:       orderID,
		OrderNumber:   firstNonEmpty(getString(header, "unique_key"), orderID),
		OrderDate:     firstNonEmpty(getString(timeInfo, "ordered"), getString(header, "order_date")),
		Status:        status,
		TotalAmount:   firstNonZero(getFloat(priceInfo, "total"), getFloat(header, "total_amount")),
		PaymentMethod: payment,
		ShippingFee:   firstNonZero(getFloat(priceInfo, "shipping_fee"), getFloat(header, "shipping_fee")),
		Tax:           firstNonZero(getFloat(priceInfo, "tax"), getFloat(header, "tax_amount")),
	}
}

func extractItems(header map[string]any) []LineItem {
	// The orders sub-array is the primary source, one entry per line.
	// The generically named items array is consulted only when the
	// orders key is absent entirely.
	if entries, ok := header["orders"].([]any); ok {
		return collectItems(entries, []string{"variation_id", "item_identifier", "barcode"})
	}
	if entries, ok := header["items"].([]any); ok {
		return collectItems(entries, []string{"variation_id", "item_identifier"})
	}
	return nil
}

func collectItems(entries []any, skuKeys []string) []LineItem {
	var items []LineItem
	for _, entry := range entries {
		m := asMap(entry)
		if m == nil {
			continue
		}

		quantity := firstNonZero(getFloat(m, "amount"), getFloat(m, "quantity"))
		if quantity == 0 {
			quantity = 1
		}
		price := firstNonZero(getFloat(m, "price"), getFloat(m, "unit_price"))

		// An explicit subtotal from the vendor wins over the computed one.
		subtotal := firstNonZero(getFloat(m, "subtotal"), getFloat(m, "price_total"))
		if subtotal == 0 {
			subtotal = price * quantity
		}

		items = append(items, LineItem{
			ProductID:   getString(m, "item_id", "id"),
			ProductName: firstNonEmpty(getString(m, "name"), unknownProductName),
			Quantity:    quantity,
			Unit:        firstNonEmpty(getString(m, "unit"), defaultUnit),
			Price:       price,
			Subtotal:    subtotal,
			SKU:         getString(m, skuKeys...),
		})
	}
	return items
}

func formatAddress(addr map[string]any) string {
	var parts []string
	for _, key := range []string{"prefecture", "address_1", "address_2"} {
		if v := getString(addr, key); v != "" {
			parts = append(parts, v)
		}
	}
	return strings.Join(parts, " ")
}

// asMap returns v as an object, or nil.
func asMap(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

func getMap(m map[string]any, key string) map[string]any {
	if m == nil {
		return nil
	}
	return asMap(m[key])
}

func getSlice(m map[string]any, key string) []any {
	if m == nil {
		return nil
	}
	s, _ := m[key].([]any)
	return s
}

// getString returns the first non-empty value among keys, coercing
// JSON numbers to their string form (ids arrive as either).
func getString(m map[string]any, keys ...string) string {
	for _, key := range keys {
		if s := stringValue(m[key]); s != "" {
			return s
		}
	}
	return ""
}

func stringValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		if val == math.Trunc(val) {
			return strconv.FormatFloat(val, 'f', 0, 64)
		}
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}

// getFloat coerces the value at key to a float, 0 on missing/null or
// anything non-numeric.
func getFloat(m map[string]any, key string) float64 {
	if m == nil {
		return 0
	}
	switch val := m[key].(type) {
	case float64:
		return val
	case string:
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return 0
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstNonZero(values ...float64) float64 {
	for _, v := range values {
		if v != 0 {
			return v
		}
	}
	return 0
}
