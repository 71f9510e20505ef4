package core

import "sort"

// VarianceStatus is the four-tier traffic light for execution levels.
type VarianceStatus string

const (
	StatusOK        VarianceStatus = "OK"
	StatusAttention VarianceStatus = "ATENCIÓN"
	StatusCritical  VarianceStatus = "CRÍTICO"
	StatusExceeded  VarianceStatus = "EXCEDIDO"
)

// UnbudgetedPercent is the out-of-band marker for money spent against
// an account with no approved budget. Kept as a raw percentage for
// callers relying on the numeric value; such rows are additionally
// separated into Report.Unbudgeted.
const UnbudgetedPercent = 999

// VarianceRow compares approved budget against executed spend for one
// account.
type VarianceRow struct {
	Account        string         `json:"cuenta"`
	ApprovedCents  int64          `json:"aprobado_cents"`
	ExecutedCents  int64          `json:"ejecutado_cents"`
	AvailableCents int64          `json:"disponible_cents"`
	Percent        float64        `json:"pct_ejecucion"`
	Status         VarianceStatus `json:"estado"`
	Unbudgeted     bool           `json:"sin_partida,omitempty"`
}

// VarianceReport is the execution-vs-budget comparison. Unbudgeted
// spend is surfaced in its own section rather than blended into the
// main table: spending without an approved line is a control failure,
// not just a high percentage.
type VarianceReport struct {
	Rows       []VarianceRow `json:"filas"`
	Unbudgeted []VarianceRow `json:"sin_partida"`
	Totals     VarianceRow   `json:"totales"`
}

func statusFor(pct float64) VarianceStatus {
	switch {
	case pct >= 100:
		return StatusExceeded
	case pct >= 90:
		return StatusCritical
	case pct >= 70:
		return StatusAttention
	}
	return StatusOK
}

func varianceRow(account string, approved, executed int64) VarianceRow {
	row := VarianceRow{
		Account:        account,
		ApprovedCents:  approved,
		ExecutedCents:  executed,
		AvailableCents: approved - executed,
	}
	switch {
	case approved > 0:
		row.Percent = float64(executed) / float64(approved) * 100
	case executed > 0:
		row.Percent = UnbudgetedPercent
		row.Unbudgeted = true
	}
	row.Status = statusFor(row.Percent)
	return row
}

// ComputeVariance builds the execution report from per-account approved
// and executed totals (both in cents). The union of accounts is
// covered; no account is dropped from either side.
func ComputeVariance(approved, executed map[string]int64) VarianceReport {
	accounts := make([]string, 0, len(approved)+len(executed))
	seen := make(map[string]bool)
	for a := range approved {
		accounts = append(accounts, a)
		seen[a] = true
	}
	for a := range executed {
		if !seen[a] {
			accounts = append(accounts, a)
		}
	}
	sort.Strings(accounts)

	var report VarianceReport
	var totalApproved, totalExecuted int64
	for _, account := range accounts {
		row := varianceRow(account, approved[account], executed[account])
		totalApproved += row.ApprovedCents
		totalExecuted += row.ExecutedCents
		if row.Unbudgeted {
			report.Unbudgeted = append(report.Unbudgeted, row)
		} else {
			report.Rows = append(report.Rows, row)
		}
	}

	report.Totals = varianceRow("TOTAL GENERAL", totalApproved, totalExecuted)
	return report
}
