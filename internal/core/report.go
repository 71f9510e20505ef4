package core

import (
	"sort"
	"time"
)

// StageSection groups a report's lines for one production stage.
type StageSection struct {
	Stage         Stage  `json:"etapa"`
	Items         []Item `json:"partidas"`
	SubtotalCents int64  `json:"subtotal_cents"`
	TaxCents      int64  `json:"iva_cents"`
	TotalCents    int64  `json:"total_cents"`
}

// Report is the printable budget: one section per stage in production
// order, rows within a section in chart-of-accounts order.
type Report struct {
	Project     string         `json:"proyecto,omitempty"`
	GeneratedAt time.Time      `json:"generado_en"`
	Sections    []StageSection `json:"secciones"`
	Summary     Summary        `json:"resumen"`
}

// BuildReport lays items out for presentation. Stages with no lines
// are omitted.
func BuildReport(project string, items []Item, now time.Time) Report {
	rep := Report{
		Project:     project,
		GeneratedAt: now.UTC(),
		Summary:     Summarize(items),
	}
	for _, stage := range Stages {
		var sec StageSection
		sec.Stage = stage
		for _, it := range items {
			if it.Stage != stage {
				continue
			}
			sec.Items = append(sec.Items, it)
			sec.SubtotalCents += it.SubtotalCents
			sec.TaxCents += it.TaxCents
			sec.TotalCents += it.TotalCents
		}
		if len(sec.Items) == 0 {
			continue
		}
		sort.SliceStable(sec.Items, func(i, j int) bool {
			return AccountRank(sec.Items[i].Account) < AccountRank(sec.Items[j].Account)
		})
		rep.Sections = append(rep.Sections, sec)
	}
	return rep
}
