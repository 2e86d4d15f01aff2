package pos

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xelth-com/eckpos/internal/models"
)

// OfflineMarker is printed on receipts for sales waiting to sync
const OfflineMarker = "offline — pending sync"

// Receipt is the proof of a completed sale
type Receipt struct {
	OrderNumber     string `json:"order_number"`
	ServerID        int64  `json:"server_id,omitempty"`
	LocalID         uint   `json:"local_id,omitempty"`
	Offline         bool   `json:"offline"`
	ClientReference string `json:"client_reference"`

	CustomerName string             `json:"customer_name,omitempty"`
	Items        []models.OrderItem `json:"items"`

	Subtotal      decimal.Decimal      `json:"subtotal"`
	TaxRate       decimal.Decimal      `json:"tax_rate"`
	Tax           decimal.Decimal      `json:"tax_amount"`
	Total         decimal.Decimal      `json:"total_amount"`
	PaymentMethod models.PaymentMethod `json:"payment_method"`
	Paid          decimal.Decimal      `json:"paid_amount"`
	Change        decimal.Decimal      `json:"change_amount"`
	Currency      string               `json:"currency"`
	IssuedAt      time.Time            `json:"issued_at"`
}

// Status returns OfflineMarker for offline sales and "" otherwise
func (r *Receipt) Status() string {
	if r.Offline {
		return OfflineMarker
	}
	return ""
}

func (r *Receipt) money(d decimal.Decimal) string {
	if r.Currency == "" {
		return d.StringFixed(2)
	}
	return r.Currency + " " + d.StringFixed(2)
}

// Text renders the receipt for a narrow thermal printer
func (r *Receipt) Text() string {
	var b strings.Builder
	rule := strings.Repeat("-", 32)

	fmt.Fprintf(&b, "%s\n", r.IssuedAt.Format("2006-01-02 15:04"))
	fmt.Fprintf(&b, "Order #%s\n", r.OrderNumber)
	if r.Offline {
		fmt.Fprintf(&b, "*** %s ***\n", strings.ToUpper(OfflineMarker))
	}
	if r.CustomerName != "" {
		fmt.Fprintf(&b, "Customer: %s\n", r.CustomerName)
	}
	b.WriteString(rule + "\n")

	for _, item := range r.Items {
		fmt.Fprintf(&b, "%-20s x%d\n", item.Name, item.Quantity)
		fmt.Fprintf(&b, "  @ %s = %s\n", r.money(item.UnitPrice), r.money(item.LineTotal()))
	}
	b.WriteString(rule + "\n")

	fmt.Fprintf(&b, "Subtotal: %s\n", r.money(r.Subtotal))
	fmt.Fprintf(&b, "Tax (%s%%): %s\n", r.TaxRate.Mul(decimal.NewFromInt(100)).String(), r.money(r.Tax))
	fmt.Fprintf(&b, "TOTAL: %s\n", r.money(r.Total))
	fmt.Fprintf(&b, "Payment: %s\n", strings.ToUpper(string(r.PaymentMethod)))
	if r.PaymentMethod.Tendered() {
		fmt.Fprintf(&b, "Cash received: %s\n", r.money(r.Paid))
		fmt.Fprintf(&b, "Change: %s\n", r.money(r.Change))
	}
	return b.String()
}
