package draft

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Top-level fields of a receipt draft
const (
	FieldItems             = "items"
	FieldPayments          = "payments"
	FieldTotal             = "total"
	FieldClient            = "client"
	FieldCompany           = "company"
	FieldOperationType     = "operation_type"
	FieldTypeName          = "type_name"
	FieldBulkCount         = "bulk_count"
	FieldOriginalReceiptID = "original_uuid"
)

// LineItem is a typed view of one entry of the items array
type LineItem struct {
	Name            string          `json:"name"`
	Price           decimal.Decimal `json:"price"`
	Quantity        decimal.Decimal `json:"quantity"`
	MeasurementUnit MeasurementUnit `json:"measurement_unit"`
	VAT             VATType         `json:"vat"`
	PaymentObject   PaymentObject   `json:"payment_object"`
	PaymentMethod   PaymentMethod   `json:"payment_method"`
}

// Amount is price multiplied by quantity
func (i LineItem) Amount() decimal.Decimal {
	return i.Price.Mul(i.Quantity)
}

// PaymentEntry is a typed view of one entry of the payments array
type PaymentEntry struct {
	Type PaymentType     `json:"type"`
	Sum  decimal.Decimal `json:"sum"`
}

// Client is the buyer contact the receipt is sent to
type Client struct {
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// Company is the seller block of the receipt
type Company struct {
	INN            string    `json:"inn,omitempty"`
	TaxScheme      TaxScheme `json:"sno,omitempty"`
	PaymentAddress string    `json:"payment_address,omitempty"`
}

// BulkCopy describes a request to clone an existing receipt several times
type BulkCopy struct {
	Count             int    `json:"bulk_count"`
	OriginalReceiptID string `json:"original_uuid"`
}

// number reads a numeric value the way the editor inputs produce them:
// json.Number from the API, float64 from JSON bodies, or a numeric string.
func number(v any) (decimal.Decimal, bool) {
	switch n := v.(type) {
	case json.Number:
		d, err := decimal.NewFromString(n.String())
		return d, err == nil
	case float64:
		return decimal.NewFromFloat(n), true
	case float32:
		return decimal.NewFromFloat32(n), true
	case int:
		return decimal.NewFromInt(int64(n)), true
	case int64:
		return decimal.NewFromInt(n), true
	case decimal.Decimal:
		return n, true
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(n))
		return d, err == nil
	}
	return decimal.Zero, false
}

// text reads a scalar as a string, rendering numeric codes such as measurement units
func text(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case json.Number:
		return s.String()
	case float64:
		return decimal.NewFromFloat(s).String()
	case int:
		return fmt.Sprintf("%d", s)
	case nil:
		return ""
	}
	return fmt.Sprint(v)
}

// Money renders a decimal as a JSON number literal
func Money(d decimal.Decimal) json.Number {
	return json.Number(d.String())
}

func (d Document) objects(field string) []map[string]any {
	arr, _ := d[field].([]any)
	out := make([]map[string]any, 0, len(arr))
	for _, el := range arr {
		obj, _ := el.(map[string]any)
		out = append(out, obj)
	}
	return out
}

// Items returns typed line items. Missing or invalid prices read as 0 and
// missing, invalid or zero quantities as 1, matching what the editor shows.
func (d Document) Items() []LineItem {
	objs := d.objects(FieldItems)
	items := make([]LineItem, 0, len(objs))
	for _, obj := range objs {
		price, ok := number(obj["price"])
		if !ok {
			price = decimal.Zero
		}
		qty, ok := number(obj["quantity"])
		if !ok || qty.IsZero() {
			qty = decimal.NewFromInt(1)
		}

		item := LineItem{
			Name:            text(obj["name"]),
			Price:           price,
			Quantity:        qty,
			MeasurementUnit: MeasurementUnit(text(obj["measurement_unit"])),
			VAT:             VATNone,
			PaymentObject:   PaymentObject(text(obj["payment_object"])),
			PaymentMethod:   PaymentMethod(text(obj["payment_method"])),
		}
		if item.MeasurementUnit == "" {
			item.MeasurementUnit = "0"
		}
		if vat, ok := obj["vat"].(map[string]any); ok && text(vat["type"]) != "" {
			item.VAT = VATType(text(vat["type"]))
		}
		if item.PaymentObject == "" {
			item.PaymentObject = "commodity"
		}
		if item.PaymentMethod == "" {
			item.PaymentMethod = "full_payment"
		}
		items = append(items, item)
	}
	return items
}

// Payments returns typed payment entries
func (d Document) Payments() []PaymentEntry {
	objs := d.objects(FieldPayments)
	payments := make([]PaymentEntry, 0, len(objs))
	for _, obj := range objs {
		sum, ok := number(obj["sum"])
		if !ok {
			sum = decimal.Zero
		}
		payments = append(payments, PaymentEntry{Type: PaymentType(text(obj["type"])), Sum: sum})
	}
	return payments
}

// Total returns the stored total, or zero when absent
func (d Document) Total() decimal.Decimal {
	t, ok := number(d[FieldTotal])
	if !ok {
		return decimal.Zero
	}
	return t
}

// OperationType returns the operation type stored in the draft
func (d Document) OperationType() OperationType {
	return OperationType(text(d[FieldOperationType]))
}

// Client returns the buyer contact block
func (d Document) Client() Client {
	obj, _ := d[FieldClient].(map[string]any)
	return Client{Email: text(obj["email"]), Phone: text(obj["phone"])}
}

// Company returns the seller block
func (d Document) Company() Company {
	obj, _ := d[FieldCompany].(map[string]any)
	return Company{
		INN:            text(obj["inn"]),
		TaxScheme:      TaxScheme(text(obj["sno"])),
		PaymentAddress: text(obj["payment_address"]),
	}
}

// Bulk reports whether the draft asks to clone an existing receipt
func (d Document) Bulk() (BulkCopy, bool) {
	count, ok := number(d[FieldBulkCount])
	original := text(d[FieldOriginalReceiptID])
	if !ok || count.IntPart() <= 0 || original == "" {
		return BulkCopy{}, false
	}
	return BulkCopy{Count: int(count.IntPart()), OriginalReceiptID: original}, true
}
