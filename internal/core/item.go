package core

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// RawItem is a candidate budget line before normalization: user input,
// a bulk-import row, or a stored record being revalidated. Fields hold
// whatever the caller had; Normalize repairs them.
type RawItem struct {
	UID           string    `json:"uid,omitempty"`
	Stage         string    `json:"etapa"`
	Concept       string    `json:"concepto"`
	Account       string    `json:"cuenta"`
	Entity        string    `json:"entidad"`
	PaymentMethod string    `json:"payment_method"`
	Invoiced      bool      `json:"facturado"`
	TaxRate       string    `json:"iva_tipo"`
	UnitCents     int64     `json:"monto_unitario_cents"`
	Quantity      int64     `json:"cantidad"`
	TermType      string    `json:"plazo_tipo"`
	TermQty       int64     `json:"plazo_cantidad"`
	CreatedAt     time.Time `json:"created_at,omitempty"`
	UpdatedAt     time.Time `json:"updated_at,omitempty"`
}

// Item is a fully normalized budget line. Subtotal, tax and total are
// derived, never trusted from input.
type Item struct {
	UID           string        `json:"uid"`
	Stage         Stage         `json:"etapa"`
	Concept       string        `json:"concepto"`
	Account       string        `json:"cuenta"`
	Entity        string        `json:"entidad"`
	PaymentMethod PaymentMethod `json:"payment_method"`
	Invoiced      bool          `json:"facturado"`
	TaxRate       TaxRate       `json:"iva_tipo"`
	UnitCents     int64         `json:"monto_unitario_cents"`
	Quantity      int64         `json:"cantidad"`
	TermType      TermType      `json:"plazo_tipo"`
	TermQty       int64         `json:"plazo_cantidad"`
	SubtotalCents int64         `json:"subtotal_cents"`
	TaxCents      int64         `json:"iva_cents"`
	TotalCents    int64         `json:"total_cents"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// Raw converts an item back to its raw form, e.g. to re-enter the
// normalizer after an edit merged new field values in.
func (it Item) Raw() RawItem {
	return RawItem{
		UID:           it.UID,
		Stage:         string(it.Stage),
		Concept:       it.Concept,
		Account:       it.Account,
		Entity:        it.Entity,
		PaymentMethod: string(it.PaymentMethod),
		Invoiced:      it.Invoiced,
		TaxRate:       string(it.TaxRate),
		UnitCents:     it.UnitCents,
		Quantity:      it.Quantity,
		TermType:      string(it.TermType),
		TermQty:       it.TermQty,
		CreatedAt:     it.CreatedAt,
		UpdatedAt:     it.UpdatedAt,
	}
}

// Normalize turns a raw line into a consistent Item. It is total: bad
// input is repaired by clamping or defaulting, never rejected. Running
// it again on its own output changes nothing.
//
// Business rules, applied regardless of what the caller passed:
//   - in-kind contributions carry no invoice and are tax exempt
//   - without an invoice there is no VAT to credit, so the rate is 0
//   - with an invoice the caller-chosen rate stands (default 16)
//   - a per-project term is a single flat charge (term quantity 1)
//
// The account is carried as-is; entry points validate it against the
// chart of accounts before calling Normalize (a default account would
// corrupt financial categorization, so the normalizer never picks one).
func Normalize(raw RawItem) Item {
	return normalizeAt(raw, time.Now().UTC())
}

func normalizeAt(raw RawItem, now time.Time) Item {
	uid := strings.TrimSpace(raw.UID)
	if uid == "" {
		uid = uuid.NewString()
	}

	stage, err := ResolveStage(raw.Stage)
	if err != nil {
		stage = StagePre
	}

	pm, err := ResolvePaymentMethod(raw.PaymentMethod)
	if err != nil {
		pm = PaymentTransfer
	}
	inKind := pm == PaymentInKind

	invoiced := raw.Invoiced && !inKind

	var rate TaxRate
	switch {
	case inKind:
		rate = TaxExempt
	case !invoiced:
		rate = Tax0
	default:
		rate = Tax16
		if r, err := ResolveTaxRate(raw.TaxRate); err == nil && r != TaxExempt {
			rate = r
		}
	}

	qty := raw.Quantity
	if qty < 1 {
		qty = 1
	}

	term := ResolveTermType(raw.TermType)
	termQty := raw.TermQty
	if term == TermProject || termQty < 1 {
		termQty = 1
	}

	unit := ClampCents(raw.UnitCents, MinUnitCents)

	subtotal := unit * qty * termQty
	tax := PercentOf(subtotal, rate.Percent())

	created := raw.CreatedAt
	if created.IsZero() {
		created = now
	}
	updated := raw.UpdatedAt
	if updated.IsZero() {
		updated = now
	}

	return Item{
		UID:           uid,
		Stage:         stage,
		Concept:       strings.TrimSpace(raw.Concept),
		Account:       strings.TrimSpace(raw.Account),
		Entity:        strings.TrimSpace(raw.Entity),
		PaymentMethod: pm,
		Invoiced:      invoiced,
		TaxRate:       rate,
		UnitCents:     unit,
		Quantity:      qty,
		TermType:      term,
		TermQty:       termQty,
		SubtotalCents: subtotal,
		TaxCents:      tax,
		TotalCents:    subtotal + tax,
		CreatedAt:     created,
		UpdatedAt:     updated,
	}
}
