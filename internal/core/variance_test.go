package core

import "testing"

func TestVarianceThresholds(t *testing.T) {
	cases := []struct {
		approved, executed int64
		status             VarianceStatus
	}{
		{100000, 50000, StatusOK},
		{100000, 69999, StatusOK},
		{100000, 70000, StatusAttention},
		{100000, 89999, StatusAttention},
		{100000, 90000, StatusCritical},
		{100000, 99999, StatusCritical},
		{100000, 100000, StatusExceeded},
		{100000, 130000, StatusExceeded},
		{100000, 0, StatusOK},
		{0, 0, StatusOK},
	}
	for _, tc := range cases {
		row := varianceRow("X", tc.approved, tc.executed)
		if row.Status != tc.status {
			t.Fatalf("approved=%d executed=%d: status %q, expected %q",
				tc.approved, tc.executed, row.Status, tc.status)
		}
	}
}

func TestVarianceUnbudgetedSpend(t *testing.T) {
	row := varianceRow("DRONES", 0, 5000)
	if !row.Unbudgeted {
		t.Fatal("spend without budget must be flagged")
	}
	if row.Percent != UnbudgetedPercent {
		t.Fatalf("percent = %v, expected sentinel %v", row.Percent, UnbudgetedPercent)
	}
	if row.Status != StatusExceeded {
		t.Fatalf("status = %q, expected EXCEDIDO", row.Status)
	}
	if row.AvailableCents != -5000 {
		t.Fatalf("available = %d, expected -5000", row.AvailableCents)
	}
}

func TestComputeVariance(t *testing.T) {
	approved := map[string]int64{
		"ALIMENTACIÓN": 100000,
		"LOCACIONES":   200000,
		"HOSPEDAJE":    50000,
	}
	executed := map[string]int64{
		"ALIMENTACIÓN": 95000,
		"LOCACIONES":   0,
		"VIÁTICOS":     7000, // no budget line
	}
	rep := ComputeVariance(approved, executed)

	if len(rep.Rows) != 3 {
		t.Fatalf("rows = %d, expected 3", len(rep.Rows))
	}
	if len(rep.Unbudgeted) != 1 || rep.Unbudgeted[0].Account != "VIÁTICOS" {
		t.Fatalf("unbudgeted = %+v", rep.Unbudgeted)
	}

	// Sorted by account, budgeted-but-unspent accounts included.
	if rep.Rows[0].Account != "ALIMENTACIÓN" || rep.Rows[2].Account != "LOCACIONES" {
		t.Fatalf("unexpected row order: %+v", rep.Rows)
	}
	if rep.Rows[0].Status != StatusCritical {
		t.Fatalf("ALIMENTACIÓN at 95%%: status %q", rep.Rows[0].Status)
	}
	if rep.Rows[2].ExecutedCents != 0 || rep.Rows[2].Status != StatusOK {
		t.Fatalf("LOCACIONES row wrong: %+v", rep.Rows[2])
	}

	// Totals cover both sides of the union.
	if rep.Totals.ApprovedCents != 350000 {
		t.Fatalf("total approved = %d", rep.Totals.ApprovedCents)
	}
	if rep.Totals.ExecutedCents != 102000 {
		t.Fatalf("total executed = %d", rep.Totals.ExecutedCents)
	}
}
