package core

import "strings"

// DefaultPageSize is the page length used when a query does not set one.
const DefaultPageSize = 20

// Query filters and paginates budget lines. Search is matched
// case/diacritic-insensitively against concept, account, entity, stage
// and payment method. All disables pagination.
type Query struct {
	Search   string
	Stage    string
	Page     int
	PageSize int
	All      bool
}

// Page is one window of query results. Total counts all matches, not
// just the window.
type Page struct {
	Items      []Item
	Total      int
	Page       int
	TotalPages int
}

// Select applies q to items, preserving their order.
func Select(items []Item, q Query) Page {
	var stage Stage
	if q.Stage != "" {
		stage, _ = ResolveStage(q.Stage)
	}
	needle := Fold(q.Search)

	matched := make([]Item, 0, len(items))
	for _, it := range items {
		if stage != "" && it.Stage != stage {
			continue
		}
		if needle != "" && !matchesItem(it, needle) {
			continue
		}
		matched = append(matched, it)
	}

	total := len(matched)
	if q.All {
		return Page{Items: matched, Total: total, Page: 1, TotalPages: 1}
	}

	size := q.PageSize
	if size < 1 {
		size = DefaultPageSize
	}
	pages := (total + size - 1) / size
	if pages < 1 {
		pages = 1
	}
	page := q.Page
	if page < 1 {
		page = 1
	}
	if page > pages {
		page = pages
	}
	lo := (page - 1) * size
	hi := lo + size
	if hi > total {
		hi = total
	}
	return Page{Items: matched[lo:hi], Total: total, Page: page, TotalPages: pages}
}

func matchesItem(it Item, needle string) bool {
	for _, field := range []string{
		it.Concept, it.Account, it.Entity, string(it.Stage), string(it.PaymentMethod),
	} {
		if strings.Contains(Fold(field), needle) {
			return true
		}
	}
	return false
}
