package catalog

import (
	"sort"
	"strings"
	"time"
)

// Sort orders understood by ApplyFilters.
const (
	OrderTitleAsc   = "title"
	OrderTitleDesc  = "-title"
	OrderDateDesc   = "release_date_desc"
	OrderDateAsc    = "release_date_asc"
	OrderRatingDesc = "vote_average"
)

// Character favorites use the Marvel field names for the same orders.
var orderAliases = map[string]string{
	"name":      OrderTitleAsc,
	"-name":     OrderTitleDesc,
	"modified":  OrderDateAsc,
	"-modified": OrderDateDesc,
}

// FilterState is the client-side filter and sort applied to the favorites list.
type FilterState struct {
	SearchTerm       string `json:"query"`
	OrderBy          string `json:"order_by"`
	OnlyWithSynopsis bool   `json:"with_synopsis"`
	// DateFloor drops items dated before it. The zero value disables the filter.
	DateFloor time.Time `json:"since"`
}

// DefaultFilterState returns the favorites page defaults.
func DefaultFilterState() FilterState {
	return FilterState{OrderBy: OrderTitleAsc}
}

// NormalizeOrder resolves aliases and reports whether the order is known.
func NormalizeOrder(orderBy string) (string, bool) {
	trimmed := strings.TrimSpace(orderBy)
	if alias, ok := orderAliases[trimmed]; ok {
		return alias, true
	}
	switch trimmed {
	case OrderTitleAsc, OrderTitleDesc, OrderDateDesc, OrderDateAsc, OrderRatingDesc:
		return trimmed, true
	default:
		return trimmed, false
	}
}

// ApplyFilters returns a filtered and sorted copy of items: text match on the
// title, optional non-empty synopsis, optional date floor, then sort. The
// source slice is never modified. Ordering among equal keys is unspecified.
func ApplyFilters(items []Item, state FilterState) []Item {
	filtered := make([]Item, 0, len(items))

	term := strings.ToLower(strings.TrimSpace(state.SearchTerm))
	for _, item := range items {
		if term != "" && !strings.Contains(strings.ToLower(item.Title()), term) {
			continue
		}
		if state.OnlyWithSynopsis && strings.TrimSpace(item.Synopsis()) == "" {
			continue
		}
		if !state.DateFloor.IsZero() {
			date, ok := item.Date()
			if !ok || date.Before(state.DateFloor) {
				continue
			}
		}
		filtered = append(filtered, item)
	}

	if less := comparator(state.OrderBy); less != nil {
		sort.SliceStable(filtered, func(a, b int) bool {
			return less(filtered[a], filtered[b])
		})
	}
	return filtered
}

func comparator(orderBy string) func(a, b Item) bool {
	order, ok := NormalizeOrder(orderBy)
	if !ok {
		return nil
	}
	switch order {
	case OrderTitleAsc:
		return func(a, b Item) bool { return strings.Compare(a.Title(), b.Title()) < 0 }
	case OrderTitleDesc:
		return func(a, b Item) bool { return strings.Compare(b.Title(), a.Title()) < 0 }
	case OrderDateDesc:
		return func(a, b Item) bool { return dateOf(b).Before(dateOf(a)) }
	case OrderDateAsc:
		return func(a, b Item) bool { return dateOf(a).Before(dateOf(b)) }
	case OrderRatingDesc:
		return func(a, b Item) bool { return b.Rating() < a.Rating() }
	default:
		return nil
	}
}

func dateOf(item Item) time.Time {
	date, _ := item.Date()
	return date
}
