package draft

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// paymentTolerance is the largest payments/total difference still considered balanced
var paymentTolerance = decimal.New(1, -2)

// ItemsTotal sums price*quantity over all items, rounded to cents half-up
func (d Document) ItemsTotal() decimal.Decimal {
	sum := decimal.Zero
	for _, item := range d.Items() {
		sum = sum.Add(item.Amount())
	}
	return sum.Round(2)
}

// RecomputeTotals returns a copy of the document whose total is derived from items.
// A single payment follows the total, a missing payment list gets one cashless payment,
// and multi-payment drafts are left for the user to reconcile. Without items the
// document is returned as is.
func (d Document) RecomputeTotals() Document {
	items, _ := d[FieldItems].([]any)
	if len(items) == 0 {
		return d
	}

	total := d.ItemsTotal()
	out := d.With(map[string]any{FieldTotal: Money(total)})

	payments, _ := d[FieldPayments].([]any)
	switch len(payments) {
	case 0:
		out[FieldPayments] = []any{
			map[string]any{"type": string(PaymentCashless), "sum": Money(total)},
		}
	case 1:
		entry := map[string]any{}
		if obj, ok := payments[0].(map[string]any); ok {
			for k, v := range obj {
				entry[k] = v
			}
		}
		if _, ok := entry["type"]; !ok {
			entry["type"] = string(PaymentCashless)
		}
		entry["sum"] = Money(total)
		out[FieldPayments] = []any{entry}
	}
	return out
}

// Balance compares the payments against the total
type Balance struct {
	Total    decimal.Decimal `json:"total"`
	Paid     decimal.Decimal `json:"paid"`
	Balanced bool            `json:"balanced"`
}

// PaymentsBalance reports whether payments add up to the total within one kopeck
func (d Document) PaymentsBalance() Balance {
	paid := decimal.Zero
	for _, p := range d.Payments() {
		paid = paid.Add(p.Sum)
	}
	total := d.Total()
	return Balance{
		Total:    total,
		Paid:     paid,
		Balanced: paid.Sub(total).Abs().LessThan(paymentTolerance),
	}
}

// Issue is a soft validation warning shown next to a field
type Issue struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

// Validate lists warnings for the editor. None of them block editing.
func (d Document) Validate() []Issue {
	var issues []Issue

	if op := d.OperationType(); op != "" && !op.Valid() {
		issues = append(issues, Issue{Path: FieldOperationType, Message: fmt.Sprintf("неизвестный тип операции %q", op)})
	}

	for i, obj := range d.objects(FieldItems) {
		if price, ok := number(obj["price"]); ok && price.IsNegative() {
			issues = append(issues, Issue{Path: fmt.Sprintf("items.%d.price", i), Message: "цена не может быть отрицательной"})
		}
		if qty, ok := number(obj["quantity"]); ok && !qty.IsPositive() {
			issues = append(issues, Issue{Path: fmt.Sprintf("items.%d.quantity", i), Message: "количество должно быть больше нуля"})
		}
	}

	if len(d.objects(FieldPayments)) > 0 {
		if b := d.PaymentsBalance(); !b.Balanced {
			issues = append(issues, Issue{
				Path:    FieldPayments,
				Message: fmt.Sprintf("сумма оплат %s не равна итогу %s", b.Paid.StringFixed(2), b.Total.StringFixed(2)),
			})
		}
	}
	return issues
}
