package core

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

type (
	Stage         string
	PaymentMethod string
	TaxRate       string
	TermType      string
)

const (
	StagePre  Stage = "PREPRODUCCIÓN"
	StageProd Stage = "PRODUCCIÓN"
	StagePost Stage = "POSTPRODUCCIÓN"

	PaymentTransfer PaymentMethod = "transferencia"
	PaymentCash     PaymentMethod = "efectivo"
	PaymentInKind   PaymentMethod = "especie_productora"

	Tax16     TaxRate = "16"
	Tax8      TaxRate = "8"
	Tax0      TaxRate = "0"
	TaxExempt TaxRate = "exento"

	TermProject TermType = "proyecto"
	TermDays    TermType = "dias"
)

// Stages in chronological order. Summary sections follow this order.
var Stages = []Stage{StagePre, StageProd, StagePost}

// Accounts is the closed, ordered chart of accounts. Budget items must
// reference one of these exact strings; free text is rejected.
var Accounts = []string{
	"DESARROLLO",
	"PREPRODUCCIÓN",
	"PERSONAL DE DIRECCIÓN",
	"PERSONAL DE CÁMARA",
	"PERSONAL DE ARTE",
	"PERSONAL DE SONIDO",
	"PERSONAL DE DATA MANAGER",
	"PERSONAL FOTO FIJA Y MAKING OF",
	"REPARTO",
	"EQUIPO DE CÁMARA",
	"EQUIPO DE SONIDO",
	"GASTOS DE DISEÑO DE PRODUCCIÓN",
	"LOCACIONES",
	"TRANSPORTE RODAJE",
	"ALIMENTACIÓN",
	"HOSPEDAJE",
	"GASTOS EXTRA DE PRODUCCIÓN",
	"GASTOS CONTABLES",
	"GASTOS LEGALES",
	"EDICIÓN",
	"POSTPRODUCCIÓN DE SONIDO",
	"POSTPRODUCCIÓN DE IMAGEN",
	"CRÉDITOS",
	"SUBTÍTULOS",
	"PRESS KIT",
	"DELIVERIES",
	"RESGUARDO Y PROMOCIÓN IMCINE",
	"PÓLIZA DE SEGURO",
	"CIERRE ADMINISTRATIVO",
}

var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Fold normalizes a user-entered value for catalog matching: trimmed,
// upper-cased, inner whitespace collapsed, diacritics removed.
func Fold(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	s = strings.Join(strings.Fields(s), " ")
	if out, _, err := transform.String(stripMarks, s); err == nil {
		return out
	}
	return s
}

var accountIndex = func() map[string]string {
	m := make(map[string]string, len(Accounts))
	for _, a := range Accounts {
		m[Fold(a)] = a
	}
	return m
}()

// ResolveAccount maps input to the canonical chart-of-accounts entry.
// Unknown accounts are an error, never silently coerced: substituting a
// default would miscategorize the money.
func ResolveAccount(v string) (string, error) {
	if a, ok := accountIndex[Fold(v)]; ok {
		return a, nil
	}
	return "", fmt.Errorf("cuenta fuera de catálogo: %q", strings.TrimSpace(v))
}

// ResolveStage maps input to a canonical stage. Accepts unaccented and
// hyphen/space variants ("PRE PRODUCCION", "POST-PRODUCCION").
func ResolveStage(v string) (Stage, error) {
	s := strings.ReplaceAll(Fold(v), "-", " ")
	switch s {
	case "PREPRODUCCION", "PRE PRODUCCION":
		return StagePre, nil
	case "PRODUCCION":
		return StageProd, nil
	case "POSTPRODUCCION", "POST PRODUCCION":
		return StagePost, nil
	}
	return "", fmt.Errorf("etapa inválida: %q", strings.TrimSpace(v))
}

// ResolvePaymentMethod maps input to a canonical payment method,
// accepting the legacy CSV aliases still found in old files.
func ResolvePaymentMethod(v string) (PaymentMethod, error) {
	switch Fold(v) {
	case "TRANSFERENCIA":
		return PaymentTransfer, nil
	case "EFECTIVO":
		return PaymentCash, nil
	case "ESPECIE_PRODUCTORA", "ESPECIE PRODUCTORA", "ESPECIE":
		return PaymentInKind, nil
	case "TARJETA", "DEPOSITO", "PAYPAL", "SPEI", "BANCO":
		return PaymentTransfer, nil
	}
	return "", fmt.Errorf("método de pago inválido: %q", strings.TrimSpace(v))
}

// ResolveTaxRate maps input to a tax rate.
func ResolveTaxRate(v string) (TaxRate, error) {
	switch Fold(v) {
	case "16":
		return Tax16, nil
	case "8":
		return Tax8, nil
	case "0":
		return Tax0, nil
	case "EXENTO":
		return TaxExempt, nil
	}
	return "", fmt.Errorf("iva inválido: %q", strings.TrimSpace(v))
}

// Percent returns the integer percentage for a rate; exempt is 0.
func (t TaxRate) Percent() int64 {
	switch t {
	case Tax16:
		return 16
	case Tax8:
		return 8
	}
	return 0
}

// ResolveTermType is total: anything that is not "dias" is a flat
// per-project charge.
func ResolveTermType(v string) TermType {
	if Fold(v) == "DIAS" {
		return TermDays
	}
	return TermProject
}

// ParseBool interprets the FACTURADO column. Unrecognized values map to
// false (invoice status must be reconfirmed, never guessed).
func ParseBool(v string) bool {
	switch Fold(v) {
	case "SI", "TRUE", "1", "YES":
		return true
	}
	return false
}

// AccountRank returns the chart position of a canonical account, used
// to keep report rows in chart-of-accounts order.
func AccountRank(account string) int {
	for i, a := range Accounts {
		if a == account {
			return i
		}
	}
	return len(Accounts)
}
