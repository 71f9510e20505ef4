package core

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// legacyItem is the v1 stored shape: entity-based payment semantics,
// unit amount and day count kept as separate multipliers, floats for
// every number. The version tag on the envelope decides once, at load
// time, whether items are read with this shape or the current one.
type legacyItem struct {
	UID       string  `json:"uid"`
	Etapa     string  `json:"etapa"`
	Concepto  string  `json:"concepto"`
	Cuenta    string  `json:"cuenta"`
	Entidad   string  `json:"entidad"`
	FormaPago string  `json:"formaPago"`
	Monto     float64 `json:"monto"`
	Plazo     float64 `json:"plazo"`
	Cantidad  float64 `json:"cantidad"`
	CreatedAt int64   `json:"createdAt"`
}

type stateEnvelope struct {
	Version string            `json:"version"`
	Seq     int64             `json:"seq"`
	Items   []json.RawMessage `json:"items"`
	Meta    Meta              `json:"meta"`
}

// MigrateState decodes a stored snapshot and brings it to the current
// schema. The returned bool reports whether a legacy migration ran (so
// the caller can persist the rewritten snapshot right away). Absent
// state (nil or empty) yields a fresh empty snapshot.
//
// Migration is idempotent at the state level: the output carries the
// current version tag, so a second pass only revalidates.
func MigrateState(raw []byte) (State, bool, error) {
	if len(raw) == 0 {
		return NewState(), false, nil
	}

	var env stateEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return State{}, false, fmt.Errorf("decode snapshot: %w", err)
	}

	if env.Version == CurrentVersion {
		state := State{Version: env.Version, Seq: env.Seq, Meta: env.Meta}
		for i, msg := range env.Items {
			var it Item
			if err := json.Unmarshal(msg, &it); err != nil {
				return State{}, false, fmt.Errorf("decode partida %d: %w", i+1, err)
			}
			state.Items = append(state.Items, it)
		}
		return state.Renormalize(), false, nil
	}

	state := State{Version: CurrentVersion, Seq: env.Seq, Meta: env.Meta}
	for i, msg := range env.Items {
		var old legacyItem
		if err := json.Unmarshal(msg, &old); err != nil {
			return State{}, false, fmt.Errorf("decode partida legacy %d: %w", i+1, err)
		}
		item, err := migrateLegacyItem(old)
		if err != nil {
			// A historical budget line that cannot be mapped blocks the
			// migration; dropping it silently would lose money.
			return State{}, false, fmt.Errorf("partida %d (%q): %w", i+1, old.Concepto, err)
		}
		state.Items = append(state.Items, item)
	}
	return state, true, nil
}

func migrateLegacyItem(old legacyItem) (Item, error) {
	stage, err := ResolveStage(old.Etapa)
	if err != nil {
		return Item{}, err
	}
	account, err := ResolveAccount(old.Cuenta)
	if err != nil {
		return Item{}, err
	}

	pm := migratePaymentMethod(old.FormaPago, old.Entidad)

	// The legacy day count is folded into the unit amount so the
	// historical total survives exactly; the new term multiplier stays
	// at the per-project default for migrated rows.
	monto := old.Monto
	if !(monto > 0) || math.IsInf(monto, 0) || math.IsNaN(monto) {
		monto = 0.01
	}
	plazo := math.Floor(old.Plazo)
	if plazo < 1 || math.IsNaN(plazo) || math.IsInf(plazo, 0) {
		plazo = 1
	}
	unitCents := ClampCents(int64(math.Round(monto*plazo*100)), MinUnitCents)

	qty := int64(math.Floor(old.Cantidad))
	if qty < 1 {
		qty = 1
	}

	// Migration never assumes invoices existed; the operator must
	// reconfirm each line. In-kind rows stay exempt, the rest default
	// to 16 and pick up rate 0 in the normalizer until invoiced.
	taxRate := string(Tax16)
	if pm == PaymentInKind {
		taxRate = string(TaxExempt)
	}

	var created time.Time
	if old.CreatedAt > 0 {
		created = time.UnixMilli(old.CreatedAt).UTC()
	}

	return Normalize(RawItem{
		UID:           old.UID,
		Stage:         string(stage),
		Concept:       old.Concepto,
		Account:       account,
		Entity:        old.Entidad,
		PaymentMethod: string(pm),
		Invoiced:      false,
		TaxRate:       taxRate,
		UnitCents:     unitCents,
		Quantity:      qty,
		TermType:      string(TermProject),
		TermQty:       1,
		CreatedAt:     created,
	}), nil
}

// migratePaymentMethod maps the v1 formaPago + entidad pair to the
// current payment method. The fixed production-company placeholder
// entity was always an in-kind contribution.
func migratePaymentMethod(formaPago, entidad string) PaymentMethod {
	if Fold(formaPago) == "ESPECIE" || Fold(entidad) == "CENTRO" {
		return PaymentInKind
	}
	if Fold(formaPago) == "EFECTIVO" {
		return PaymentCash
	}
	return PaymentTransfer
}
