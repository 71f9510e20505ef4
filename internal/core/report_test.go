package core

import (
	"bytes"
	"encoding/csv"
	"testing"
	"time"
)

func TestBuildReport(t *testing.T) {
	items := []Item{
		Normalize(RawItem{Stage: "PRODUCCIÓN", Concept: "Catering", Account: "ALIMENTACIÓN", UnitCents: 30000}),
		Normalize(RawItem{Stage: "PRODUCCIÓN", Concept: "Cámara", Account: "EQUIPO DE CÁMARA", UnitCents: 50000}),
		Normalize(RawItem{Stage: "PREPRODUCCIÓN", Concept: "Guion", Account: "DESARROLLO", UnitCents: 20000}),
	}
	now := time.Date(2026, 5, 10, 9, 0, 0, 0, time.UTC)
	rep := BuildReport("Cortometraje X", items, now)

	if len(rep.Sections) != 2 {
		t.Fatalf("sections = %d, expected 2 (empty stages omitted)", len(rep.Sections))
	}
	if rep.Sections[0].Stage != StagePre || rep.Sections[1].Stage != StageProd {
		t.Fatalf("sections out of production order: %+v", rep.Sections)
	}

	// Within a stage, rows follow the chart of accounts, not entry order.
	prod := rep.Sections[1]
	if prod.Items[0].Account != "EQUIPO DE CÁMARA" || prod.Items[1].Account != "ALIMENTACIÓN" {
		t.Fatalf("rows not in chart order: %q, %q", prod.Items[0].Account, prod.Items[1].Account)
	}
	if prod.TotalCents != 80000 {
		t.Fatalf("section total = %d, expected 80000", prod.TotalCents)
	}
	if rep.Summary.GrandCents != 100000 {
		t.Fatalf("summary grand = %d, expected 100000", rep.Summary.GrandCents)
	}
	if !rep.GeneratedAt.Equal(now) {
		t.Fatalf("generated at = %v", rep.GeneratedAt)
	}
}

func TestExportCSV(t *testing.T) {
	items := []Item{
		Normalize(RawItem{Stage: "PRODUCCIÓN", Concept: "Renta, con coma", Account: "LOCACIONES",
			Invoiced: true, TaxRate: "16", UnitCents: 150000, Quantity: 2}),
	}
	out, err := ExportCSV(items)
	if err != nil {
		t.Fatalf("export: %v", err)
	}

	rows, err := csv.NewReader(bytes.NewReader(out)).ReadAll()
	if err != nil {
		t.Fatalf("re-read: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %d, expected header + 1", len(rows))
	}
	header, row := rows[0], rows[1]
	if header[0] != "UID" || header[len(header)-1] != "TOTAL" {
		t.Fatalf("unexpected header: %v", header)
	}
	if len(row) != len(header) {
		t.Fatalf("row width %d != header width %d", len(row), len(header))
	}
	if row[2] != "Renta, con coma" {
		t.Fatalf("comma field mangled: %q", row[2])
	}
	if row[len(row)-1] != "3480.00" { // 3000 + 16%
		t.Fatalf("total = %q, expected 3480.00", row[len(row)-1])
	}
}
