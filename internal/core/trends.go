// Trend aggregation over expense snapshots.
//
// Each function takes an in-memory slice of one user's expenses and derives
// an ordered series of bucketed totals. Nothing here touches storage or
// mutates its input; results are recomputed per call and never persisted.
package core

import (
	"sort"

	"github.com/google/uuid"
)

type (
	// CategoryTotal is the summed amount of one category within a period.
	CategoryTotal struct {
		CategoryID uuid.UUID
		Total      Money
	}

	// MonthTotal is the summed amount of one calendar month (1-12).
	MonthTotal struct {
		Month int
		Total Money
	}

	// YearTotal is the summed amount of one calendar year.
	YearTotal struct {
		Year  int
		Total Money
	}
)

// CategoryTotals groups the expenses falling inside [start, end] (bounds
// inclusive) by category and sums their amounts. The result is ordered by
// total descending; equal totals are ordered by category id ascending so
// the output is deterministic. Returns ErrInvalidRange when start is after
// end.
func CategoryTotals(expenses []Expense, start, end Date) ([]CategoryTotal, error) {
	if start.Time.After(end.Time) {
		return nil, ErrInvalidRange
	}

	sums := make(map[uuid.UUID]int64)
	for _, e := range expenses {
		d := e.OccurredOn.Time
		if d.Before(start.Time) || d.After(end.Time) {
			continue
		}
		sums[e.CategoryID] += e.Amount.Cents
	}

	totals := make([]CategoryTotal, 0, len(sums))
	for id, cents := range sums {
		totals = append(totals, CategoryTotal{CategoryID: id, Total: Money{Cents: cents}})
	}
	sort.Slice(totals, func(i, j int) bool {
		if totals[i].Total.Cents != totals[j].Total.Cents {
			return totals[i].Total.Cents > totals[j].Total.Cents
		}
		return totals[i].CategoryID.String() < totals[j].CategoryID.String()
	})
	return totals, nil
}

// MonthlyTotals sums the expenses of one calendar year per month. The result
// always has exactly 12 entries ordered January through December; months
// without expenses carry a zero total.
func MonthlyTotals(expenses []Expense, year int) []MonthTotal {
	var byMonth [12]int64
	for _, e := range expenses {
		if e.OccurredOn.Year() != year {
			continue
		}
		byMonth[e.OccurredOn.Month()-1] += e.Amount.Cents
	}

	totals := make([]MonthTotal, 12)
	for i := range byMonth {
		totals[i] = MonthTotal{Month: i + 1, Total: Money{Cents: byMonth[i]}}
	}
	return totals
}

// YearlyTotals sums all expenses per calendar year, ordered by year
// ascending. Only years with at least one expense appear.
func YearlyTotals(expenses []Expense) []YearTotal {
	sums := make(map[int]int64)
	for _, e := range expenses {
		sums[e.OccurredOn.Year()] += e.Amount.Cents
	}

	totals := make([]YearTotal, 0, len(sums))
	for year, cents := range sums {
		totals = append(totals, YearTotal{Year: year, Total: Money{Cents: cents}})
	}
	sort.Slice(totals, func(i, j int) bool { return totals[i].Year < totals[j].Year })
	return totals
}
