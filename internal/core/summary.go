package core

import "strings"

// StageTotals splits one stage's budget into the two funding buckets
// the production company reports on: cash-equivalent money (transfer +
// cash) versus in-kind contributions.
type StageTotals struct {
	Stage       Stage `json:"etapa"`
	CashCents   int64 `json:"efectivo_cents"`
	InKindCents int64 `json:"especie_cents"`
	TotalCents  int64 `json:"total_cents"`
}

// Summary aggregates a normalized item collection along both reporting
// axes in a single pass.
type Summary struct {
	Stages      []StageTotals    `json:"por_etapa"`
	CashCents   int64            `json:"total_efectivo_cents"`
	InKindCents int64            `json:"total_especie_cents"`
	GrandCents  int64            `json:"total_proyecto_cents"`
	ByAccount   map[string]int64 `json:"por_cuenta"`
}

// Summarize groups item totals by stage and payment bucket, and by
// account for execution reporting. Every item lands in exactly one
// stage and exactly one bucket, so the grand total always equals the
// plain sum of item totals.
func Summarize(items []Item) Summary {
	sum := Summary{ByAccount: make(map[string]int64)}

	idx := make(map[Stage]int, len(Stages))
	for i, st := range Stages {
		sum.Stages = append(sum.Stages, StageTotals{Stage: st})
		idx[st] = i
	}

	for _, it := range items {
		i, ok := idx[it.Stage]
		if !ok {
			// Normalized items always carry a catalog stage; guard for
			// callers aggregating hand-built slices.
			i = 0
		}
		if it.PaymentMethod == PaymentInKind {
			sum.Stages[i].InKindCents += it.TotalCents
			sum.InKindCents += it.TotalCents
		} else {
			sum.Stages[i].CashCents += it.TotalCents
			sum.CashCents += it.TotalCents
		}
		sum.Stages[i].TotalCents += it.TotalCents

		sum.ByAccount[strings.TrimSpace(it.Account)] += it.TotalCents
	}

	sum.GrandCents = sum.CashCents + sum.InKindCents
	return sum
}
