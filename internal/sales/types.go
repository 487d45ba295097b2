package sales

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/roach88/stockbook/internal/apperr"
	"github.com/roach88/stockbook/internal/store"
)

// PaymentType is how a sale was paid.
type PaymentType string

const (
	OnCredit   PaymentType = "on_credit"
	PaidInFull PaymentType = "paid_in_full"
)

// Valid reports whether p is a known payment type.
func (p PaymentType) Valid() bool {
	return p == OnCredit || p == PaidInFull
}

// ParsePaymentType accepts the stored names; "" means PaidInFull.
func ParsePaymentType(s string) (PaymentType, error) {
	p := PaymentType(strings.ToLower(strings.TrimSpace(s)))
	if p == "" {
		return PaidInFull, nil
	}
	if !p.Valid() {
		return "", apperr.Validation("unknown payment type %q (want %s or %s)", s, OnCredit, PaidInFull)
	}
	return p, nil
}

// LineItemInput is one requested line of a sale.
type LineItemInput struct {
	ProductID int64           `json:"product_id"`
	Quantity  int64           `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// Subtotal is Quantity × UnitPrice.
func (li LineItemInput) Subtotal() decimal.Decimal {
	return li.UnitPrice.Mul(decimal.NewFromInt(li.Quantity))
}

// SaleInput is a sale to record. A zero Date means now; an empty
// PaymentType means PaidInFull.
type SaleInput struct {
	Date         time.Time
	CustomerName string
	PaymentType  PaymentType
	Items        []LineItemInput
}

// Total is the exact sum of the line subtotals.
func (in SaleInput) Total() decimal.Decimal {
	total := decimal.Zero
	for _, li := range in.Items {
		total = total.Add(li.Subtotal())
	}
	return total
}

// validate runs the checks that need no store access.
func (in SaleInput) validate() error {
	if len(in.Items) == 0 {
		return apperr.Validation("sale must contain at least one item")
	}
	for i, li := range in.Items {
		if li.Quantity <= 0 {
			return apperr.Validation("item %d: quantity must be positive, got %d", i+1, li.Quantity)
		}
		if li.UnitPrice.IsNegative() {
			return apperr.Validation("item %d: unit price must not be negative, got %s", i+1, li.UnitPrice)
		}
	}
	if in.PaymentType != "" && !in.PaymentType.Valid() {
		return apperr.Validation("unknown payment type %q", in.PaymentType)
	}
	return nil
}

// Receipt confirms a recorded sale.
type Receipt struct {
	SaleID        int64           `json:"sale_id"`
	Total         decimal.Decimal `json:"total"`
	ItemsRecorded int             `json:"items_recorded"`
}

// Sale is a recorded sale header.
type Sale struct {
	ID           int64           `db:"id" json:"id"`
	Date         store.Time      `db:"date" json:"date"`
	CustomerName string          `db:"customer_name" json:"customer_name"`
	Total        decimal.Decimal `db:"total" json:"total"`
	PaymentType  PaymentType     `db:"payment_type" json:"payment_type"`
}

// LineItem is a recorded line of a sale. NameSnapshot is the product name at
// the time of sale and never changes afterwards.
type LineItem struct {
	ID           int64           `db:"id" json:"id"`
	SaleID       int64           `db:"sale_id" json:"sale_id"`
	ProductID    int64           `db:"product_id" json:"product_id"`
	NameSnapshot string          `db:"name_snapshot" json:"name_snapshot"`
	Quantity     int64           `db:"quantity" json:"quantity"`
	UnitPrice    decimal.Decimal `db:"unit_price" json:"unit_price"`
	Subtotal     decimal.Decimal `db:"subtotal" json:"subtotal"`
}

// Detail is a sale with its line items.
type Detail struct {
	Sale
	Items []LineItem `json:"items"`
}

// HeaderUpdate carries the editable header fields. Total is not editable.
type HeaderUpdate struct {
	Date         time.Time
	CustomerName string
	PaymentType  PaymentType
}

// ProductTotal is one row of the best-sellers report.
type ProductTotal struct {
	Name     string          `json:"name"`
	Quantity int64           `json:"quantity"`
	Revenue  decimal.Decimal `json:"revenue"`
}

// Totals sums sales over a period.
type Totals struct {
	Since  time.Time       `json:"since"`
	Count  int             `json:"count"`
	Amount decimal.Decimal `json:"amount"`
}

// Summary is the dashboard pair: today and the last 30 days.
type Summary struct {
	Today      Totals `json:"today"`
	Last30Days Totals `json:"last_30_days"`
}

func (s Sale) String() string {
	return fmt.Sprintf("sale %d on %s: %s (%s)", s.ID, s.Date, s.Total.StringFixed(2), s.PaymentType)
}
