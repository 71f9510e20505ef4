package core

import "testing"

func TestSummarize(t *testing.T) {
	items := []Item{
		Normalize(RawItem{Stage: "PREPRODUCCIÓN", Concept: "a", Account: "DESARROLLO",
			PaymentMethod: "transferencia", UnitCents: 10000, Quantity: 1}),
		Normalize(RawItem{Stage: "PRODUCCIÓN", Concept: "b", Account: "LOCACIONES",
			PaymentMethod: "efectivo", UnitCents: 20000, Quantity: 2}),
		Normalize(RawItem{Stage: "PRODUCCIÓN", Concept: "c", Account: "EQUIPO DE CÁMARA",
			PaymentMethod: "especie_productora", UnitCents: 30000, Quantity: 1}),
	}
	sum := Summarize(items)

	if sum.CashCents != 50000 {
		t.Fatalf("cash = %d, expected 50000", sum.CashCents)
	}
	if sum.InKindCents != 30000 {
		t.Fatalf("in-kind = %d, expected 30000", sum.InKindCents)
	}
	if sum.GrandCents != 80000 {
		t.Fatalf("grand = %d, expected 80000", sum.GrandCents)
	}

	// Every peso lands in exactly one stage bucket.
	var staged int64
	for _, st := range sum.Stages {
		staged += st.TotalCents
	}
	if staged != sum.GrandCents {
		t.Fatalf("stage totals %d != grand %d", staged, sum.GrandCents)
	}

	if sum.ByAccount["LOCACIONES"] != 40000 {
		t.Fatalf("LOCACIONES = %d, expected 40000", sum.ByAccount["LOCACIONES"])
	}

	// Account totals also reconcile to the grand total.
	var byAcct int64
	for _, v := range sum.ByAccount {
		byAcct += v
	}
	if byAcct != sum.GrandCents {
		t.Fatalf("account totals %d != grand %d", byAcct, sum.GrandCents)
	}
}

func TestSummarizeEmpty(t *testing.T) {
	sum := Summarize(nil)
	if sum.GrandCents != 0 || len(sum.ByAccount) != 0 {
		t.Fatalf("expected zero summary, got %+v", sum)
	}
}
