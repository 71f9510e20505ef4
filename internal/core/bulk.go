package core

import (
	"fmt"
	"strconv"
	"strings"
)

// BulkHeader is the canonical import layout. Files may reorder columns
// when they carry a header row; without one the positions are fixed.
var BulkHeader = []string{
	"ETAPA", "CONCEPTO", "CUENTA", "ENTIDAD",
	"PAYMENT_METHOD", "FACTURADO", "MONTO", "CANTIDAD", "IVA_TIPO",
}

// Legacy files used different header names for two columns; both are
// still accepted.
var headerAliases = map[string]string{
	"FORMA_PAGO": "PAYMENT_METHOD",
	"FORMA":      "PAYMENT_METHOD",
	"IVA":        "IVA_TIPO",
}

// HasHeader reports whether the first row looks like a header.
func HasHeader(rows [][]string) bool {
	if len(rows) == 0 {
		return false
	}
	for _, cell := range rows[0] {
		switch Fold(cell) {
		case "ETAPA", "CONCEPTO":
			return true
		}
	}
	return false
}

// BulkResult carries the outcome of a bulk parse: rows that validated,
// plus one human-readable message per row that did not. Failing rows
// are excluded; the rest of the batch still goes through.
type BulkResult struct {
	Items  []RawItem
	Errors []string
}

// ParseBulk validates a 2D grid of candidate budget lines. Header
// matching is case/diacritic-insensitive and order-independent; with
// no header the canonical column order applies. Row numbers in error
// messages are 1-indexed over the input grid. It never fails as a
// whole.
func ParseBulk(rows [][]string, hasHeader bool) BulkResult {
	var res BulkResult

	colIdx := make(map[string]int, len(BulkHeader))
	for i, name := range BulkHeader {
		colIdx[name] = i
	}
	start := 0
	if hasHeader && len(rows) > 0 {
		colIdx = make(map[string]int, len(rows[0]))
		for i, cell := range rows[0] {
			name := Fold(cell)
			if canonical, ok := headerAliases[name]; ok {
				name = canonical
			}
			if name != "" {
				colIdx[name] = i
			}
		}
		start = 1
	}

	get := func(row []string, name string) string {
		i, ok := colIdx[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	for i := start; i < len(rows); i++ {
		row := rows[i]
		num := i + 1

		stageRaw := get(row, "ETAPA")
		concept := get(row, "CONCEPTO")
		accountRaw := get(row, "CUENTA")
		entity := get(row, "ENTIDAD")
		pmRaw := get(row, "PAYMENT_METHOD")
		invoicedRaw := get(row, "FACTURADO")
		amountRaw := get(row, "MONTO")
		qtyRaw := get(row, "CANTIDAD")
		taxRaw := get(row, "IVA_TIPO")

		// Fully empty rows (trailing blanks in spreadsheets) are skipped
		// without an error.
		if stageRaw == "" && concept == "" && accountRaw == "" && pmRaw == "" && amountRaw == "" {
			continue
		}

		if len(row) < 7 {
			res.Errors = append(res.Errors, fmt.Sprintf("Fila %d: faltan columnas (se esperan al menos 7).", num))
			continue
		}

		var rowErrs []string

		stage, err := ResolveStage(stageRaw)
		if err != nil {
			rowErrs = append(rowErrs, fmt.Sprintf("Fila %d: ETAPA inválida %q.", num, stageRaw))
		}
		if concept == "" {
			rowErrs = append(rowErrs, fmt.Sprintf("Fila %d: CONCEPTO vacío.", num))
		}
		account, err := ResolveAccount(accountRaw)
		if err != nil {
			rowErrs = append(rowErrs, fmt.Sprintf("Fila %d: CUENTA fuera de catálogo %q.", num, accountRaw))
		}
		pm, err := ResolvePaymentMethod(pmRaw)
		if err != nil {
			rowErrs = append(rowErrs, fmt.Sprintf("Fila %d: PAYMENT_METHOD inválido %q. Usa transferencia/efectivo/especie_productora.", num, pmRaw))
		}
		amountCents, err := ParseDecimalToCents(amountRaw)
		if err != nil {
			rowErrs = append(rowErrs, fmt.Sprintf("Fila %d: MONTO debe ser > 0.", num))
		}
		qty := int64(1)
		if qtyRaw != "" {
			qty, err = strconv.ParseInt(qtyRaw, 10, 64)
			if err != nil || qty < 1 {
				rowErrs = append(rowErrs, fmt.Sprintf("Fila %d: CANTIDAD debe ser >= 1.", num))
			}
		}

		if len(rowErrs) > 0 {
			res.Errors = append(res.Errors, rowErrs...)
			continue
		}

		if taxRaw == "" {
			taxRaw = string(Tax16)
		}
		res.Items = append(res.Items, RawItem{
			Stage:         string(stage),
			Concept:       concept,
			Account:       account,
			Entity:        entity,
			PaymentMethod: string(pm),
			Invoiced:      ParseBool(invoicedRaw),
			TaxRate:       taxRaw,
			UnitCents:     amountCents,
			Quantity:      qty,
			TermType:      string(TermProject),
		})
	}

	return res
}

// ParseDelimited splits raw import text into a grid. The separator is
// detected from the first line: tab wins, then semicolon vs comma by
// count outside quotes. Quoted fields may contain the separator,
// doubled quotes and newlines. A leading BOM is dropped, as are rows
// with no content.
func ParseDelimited(text string) [][]string {
	s := strings.TrimPrefix(text, "\uFEFF")
	if strings.TrimSpace(s) == "" {
		return nil
	}

	firstLine, _, _ := strings.Cut(s, "\n")
	sep := detectSeparator(firstLine)

	var rows [][]string
	var row []string
	var cur strings.Builder
	inQuotes := false

	flushField := func() {
		row = append(row, strings.TrimSpace(cur.String()))
		cur.Reset()
	}
	flushRow := func() {
		flushField()
		for _, c := range row {
			if c != "" {
				rows = append(rows, row)
				break
			}
		}
		row = nil
	}

	for i := 0; i < len(s); i++ {
		ch := s[i]
		if inQuotes {
			if ch == '"' {
				if i+1 < len(s) && s[i+1] == '"' {
					cur.WriteByte('"')
					i++
				} else {
					inQuotes = false
				}
			} else {
				cur.WriteByte(ch)
			}
			continue
		}
		switch ch {
		case '"':
			inQuotes = true
		case sep:
			flushField()
		case '\n':
			flushRow()
		case '\r':
		default:
			cur.WriteByte(ch)
		}
	}
	flushRow()
	return rows
}

func detectSeparator(line string) byte {
	if strings.ContainsRune(line, '\t') {
		return '\t'
	}
	inQ := false
	comma, semi := 0, 0
	for i := 0; i < len(line); i++ {
		switch line[i] {
		case '"':
			inQ = !inQ
		case ',':
			if !inQ {
				comma++
			}
		case ';':
			if !inQ {
				semi++
			}
		}
	}
	if semi > comma {
		return ';'
	}
	return ','
}

// TemplateCSV returns the canonical import template with one sample
// row, for users to download and fill in.
func TemplateCSV() string {
	sample := []string{
		"PREPRODUCCIÓN", "Renta cámara", "EQUIPO DE CÁMARA", "Proveedor XYZ",
		"transferencia", "false", "5000", "1", "16",
	}
	return strings.Join(BulkHeader, ",") + "\n" + strings.Join(sample, ",") + "\n"
}
