package core

import (
	"sort"

	"github.com/google/uuid"
)

// CategoryAmount represents an amount aggregated by category name.
type CategoryAmount struct {
	Name   string
	Amount Money
}

// MonthOverview is a compact summary for a specific year+month.
type MonthOverview struct {
	Year       int
	Month      int // 1-12
	Total      Money
	ByCategory []CategoryAmount
}

// NewMonthOverview derives the overview of one calendar month from an expense
// snapshot. names maps category ids to display names; expenses whose category
// is missing from the map are shown under their id. Categories are ordered by
// amount descending, name ascending on ties.
func NewMonthOverview(expenses []Expense, names map[uuid.UUID]string, year, month int) MonthOverview {
	ov := MonthOverview{Year: year, Month: month}

	sums := make(map[uuid.UUID]int64)
	for _, e := range expenses {
		if e.OccurredOn.Year() != year || e.OccurredOn.Month() != month {
			continue
		}
		sums[e.CategoryID] += e.Amount.Cents
		ov.Total.Cents += e.Amount.Cents
	}

	for id, cents := range sums {
		name, ok := names[id]
		if !ok {
			name = id.String()
		}
		ov.ByCategory = append(ov.ByCategory, CategoryAmount{Name: name, Amount: Money{Cents: cents}})
	}
	sort.Slice(ov.ByCategory, func(i, j int) bool {
		if ov.ByCategory[i].Amount.Cents != ov.ByCategory[j].Amount.Cents {
			return ov.ByCategory[i].Amount.Cents > ov.ByCategory[j].Amount.Cents
		}
		return ov.ByCategory[i].Name < ov.ByCategory[j].Name
	})
	return ov
}
