package core

import (
	"bytes"
	"encoding/csv"
	"strconv"
)

var exportHeader = []string{
	"UID", "ETAPA", "CONCEPTO", "CUENTA", "ENTIDAD",
	"PAYMENT_METHOD", "FACTURADO", "IVA_TIPO",
	"MONTO_UNITARIO", "CANTIDAD", "PLAZO_TIPO", "PLAZO_CANTIDAD",
	"SUBTOTAL", "IVA", "TOTAL",
}

// FlattenRows renders items as export rows, header first, amounts in
// decimal pesos. Insertion order is preserved. Spreadsheet export and
// CSV download share this layout.
func FlattenRows(items []Item) [][]string {
	rows := make([][]string, 0, len(items)+1)
	rows = append(rows, exportHeader)
	for _, it := range items {
		invoiced := "NO"
		if it.Invoiced {
			invoiced = "SI"
		}
		rows = append(rows, []string{
			it.UID,
			string(it.Stage),
			it.Concept,
			it.Account,
			it.Entity,
			string(it.PaymentMethod),
			invoiced,
			string(it.TaxRate),
			FormatDecimal(it.UnitCents),
			strconv.FormatInt(it.Quantity, 10),
			string(it.TermType),
			strconv.FormatInt(it.TermQty, 10),
			FormatDecimal(it.SubtotalCents),
			FormatDecimal(it.TaxCents),
			FormatDecimal(it.TotalCents),
		})
	}
	return rows
}

// ExportCSV renders items as a CSV document.
func ExportCSV(items []Item) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.WriteAll(FlattenRows(items)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
