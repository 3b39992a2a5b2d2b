package core

import (
	"errors"
	"testing"

	"github.com/google/uuid"
)

var (
	catA = uuid.MustParse("11111111-1111-1111-1111-111111111111")
	catB = uuid.MustParse("22222222-2222-2222-2222-222222222222")
	catC = uuid.MustParse("33333333-3333-3333-3333-333333333333")
)

func expense(cat uuid.UUID, cents int64, year, month, day int) Expense {
	return Expense{
		ID:          uuid.New(),
		Description: "test",
		Amount:      Money{Cents: cents},
		CategoryID:  cat,
		OccurredOn:  NewDate(year, month, day),
		UserID:      uuid.New(),
	}
}

func TestCategoryTotals(t *testing.T) {
	expenses := []Expense{
		expense(catA, 1000, 2024, 1, 5),
		expense(catB, 500, 2024, 1, 10),
		expense(catA, 300, 2024, 2, 1),
	}

	got, err := CategoryTotals(expenses, NewDate(2024, 1, 1), NewDate(2024, 1, 31))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []CategoryTotal{
		{CategoryID: catA, Total: Money{Cents: 1000}},
		{CategoryID: catB, Total: Money{Cents: 500}},
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d totals, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("total %d: expected %+v, got %+v", i, want[i], got[i])
		}
	}
}

func TestCategoryTotalsInvalidRange(t *testing.T) {
	_, err := CategoryTotals(nil, NewDate(2024, 2, 1), NewDate(2024, 1, 1))
	if !errors.Is(err, ErrInvalidRange) {
		t.Fatalf("expected ErrInvalidRange, got %v", err)
	}
}

func TestCategoryTotalsBoundsInclusive(t *testing.T) {
	expenses := []Expense{
		expense(catA, 100, 2024, 1, 1),  // on start
		expense(catA, 200, 2024, 1, 31), // on end
		expense(catA, 400, 2023, 12, 31),
		expense(catA, 800, 2024, 2, 1),
	}
	got, err := CategoryTotals(expenses, NewDate(2024, 1, 1), NewDate(2024, 1, 31))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0].Total.Cents != 300 {
		t.Fatalf("expected single total of 300 cents, got %+v", got)
	}
}

func TestCategoryTotalsTieBreak(t *testing.T) {
	// Equal totals must come out ordered by category id ascending.
	expenses := []Expense{
		expense(catC, 500, 2024, 3, 1),
		expense(catA, 500, 2024, 3, 2),
		expense(catB, 500, 2024, 3, 3),
	}
	got, err := CategoryTotals(expenses, NewDate(2024, 1, 1), NewDate(2024, 12, 31))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	wantOrder := []uuid.UUID{catA, catB, catC}
	for i, id := range wantOrder {
		if got[i].CategoryID != id {
			t.Fatalf("position %d: expected %s, got %s", i, id, got[i].CategoryID)
		}
	}
}

func TestCategoryTotalsSingleDayRange(t *testing.T) {
	expenses := []Expense{
		expense(catA, 250, 2024, 6, 15),
		expense(catA, 250, 2024, 6, 16),
	}
	got, err := CategoryTotals(expenses, NewDate(2024, 6, 15), NewDate(2024, 6, 15))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0].Total.Cents != 250 {
		t.Fatalf("expected single total of 250 cents, got %+v", got)
	}
}

func TestMonthlyTotalsAlwaysTwelve(t *testing.T) {
	cases := []struct {
		name     string
		expenses []Expense
	}{
		{"empty", nil},
		{"one month", []Expense{expense(catA, 100, 2024, 7, 1)}},
		{"other year only", []Expense{expense(catA, 100, 2023, 7, 1)}},
	}
	for _, tc := range cases {
		got := MonthlyTotals(tc.expenses, 2024)
		if len(got) != 12 {
			t.Fatalf("%s: expected 12 entries, got %d", tc.name, len(got))
		}
		for i, mt := range got {
			if mt.Month != i+1 {
				t.Fatalf("%s: entry %d has month %d", tc.name, i, mt.Month)
			}
		}
	}
}

func TestMonthlyTotalsZeroFill(t *testing.T) {
	expenses := []Expense{
		expense(catA, 1000, 2024, 1, 5),
		expense(catB, 500, 2024, 1, 10),
		expense(catA, 300, 2024, 2, 1),
	}
	got := MonthlyTotals(expenses, 2024)
	if got[0].Total.Cents != 1500 {
		t.Fatalf("january: expected 1500, got %d", got[0].Total.Cents)
	}
	if got[1].Total.Cents != 300 {
		t.Fatalf("february: expected 300, got %d", got[1].Total.Cents)
	}
	for i := 2; i < 12; i++ {
		if got[i].Total.Cents != 0 {
			t.Fatalf("month %d: expected 0, got %d", i+1, got[i].Total.Cents)
		}
	}
}

func TestYearlyTotals(t *testing.T) {
	expenses := []Expense{
		expense(catA, 1000, 2024, 1, 5),
		expense(catB, 500, 2024, 1, 10),
		expense(catA, 300, 2024, 2, 1),
	}
	got := YearlyTotals(expenses)
	if len(got) != 1 {
		t.Fatalf("expected 1 year, got %d", len(got))
	}
	if got[0].Year != 2024 || got[0].Total.Cents != 1800 {
		t.Fatalf("expected {2024 1800}, got %+v", got[0])
	}
}

func TestYearlyTotalsAscendingNonEmptyOnly(t *testing.T) {
	expenses := []Expense{
		expense(catA, 100, 2025, 1, 1),
		expense(catA, 200, 2021, 6, 1),
		expense(catB, 300, 2023, 3, 1),
	}
	got := YearlyTotals(expenses)
	wantYears := []int{2021, 2023, 2025}
	if len(got) != len(wantYears) {
		t.Fatalf("expected %d years, got %d", len(wantYears), len(got))
	}
	for i, y := range wantYears {
		if got[i].Year != y {
			t.Fatalf("position %d: expected year %d, got %d", i, y, got[i].Year)
		}
	}
}

func TestMonthlySumMatchesYearlyTotal(t *testing.T) {
	expenses := []Expense{
		expense(catA, 123, 2024, 1, 1),
		expense(catB, 456, 2024, 5, 12),
		expense(catC, 789, 2024, 12, 31),
		expense(catA, 999, 2023, 6, 6),
	}

	var monthlySum int64
	for _, mt := range MonthlyTotals(expenses, 2024) {
		monthlySum += mt.Total.Cents
	}

	for _, yt := range YearlyTotals(expenses) {
		if yt.Year != 2024 {
			continue
		}
		if yt.Total.Cents != monthlySum {
			t.Fatalf("yearly total %d != sum of monthly totals %d", yt.Total.Cents, monthlySum)
		}
	}
}

func TestCategoryTotalsPreserveSum(t *testing.T) {
	expenses := []Expense{
		expense(catA, 100, 2024, 1, 1),
		expense(catB, 200, 2024, 1, 2),
		expense(catC, 300, 2024, 1, 3),
		expense(catA, 400, 2024, 1, 4),
	}
	got, err := CategoryTotals(expenses, NewDate(2024, 1, 1), NewDate(2024, 1, 31))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var sum int64
	for _, ct := range got {
		sum += ct.Total.Cents
	}
	if sum != 1000 {
		t.Fatalf("totals sum to %d, expected 1000", sum)
	}
}
