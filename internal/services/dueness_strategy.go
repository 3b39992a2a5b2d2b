// Package services provides business logic and orchestration services.
//
// This file implements the strategy pattern for recurring expense dueness
// checking. Each frequency (daily, weekly, monthly, yearly) has its own
// strategy encapsulating the logic for deciding whether a template fires.

package services

import (
	"fmt"
	"time"

	"outlay/internal/core"
)

// DuenessChecker is the strategy interface for checking if a recurring
// expense is due. Each implementation encapsulates the algorithm for a
// specific frequency.
type DuenessChecker interface {
	// IsDue returns true if the template should fire given the date of
	// its last materialized expense and the current time.
	IsDue(lastRun, now time.Time, startDate core.Date) bool
}

// DailyChecker implements DuenessChecker for daily recurring expenses.
type DailyChecker struct{}

// IsDue returns true if the last run was before today.
func (DailyChecker) IsDue(lastRun, now time.Time, _ core.Date) bool {
	if lastRun.IsZero() {
		return true
	}
	return lastRun.Format("2006-01-02") != now.Format("2006-01-02")
}

// WeeklyChecker implements DuenessChecker for weekly recurring expenses.
type WeeklyChecker struct{}

// IsDue returns true if 7 or more days have passed since the last run.
func (WeeklyChecker) IsDue(lastRun, now time.Time, _ core.Date) bool {
	if lastRun.IsZero() {
		return true
	}
	daysSince := now.Sub(lastRun).Hours() / 24
	return daysSince >= 7
}

// MonthlyChecker implements DuenessChecker for monthly recurring expenses.
type MonthlyChecker struct{}

// IsDue returns true in a new month once the target day is reached. A
// target day the month doesn't have clamps to the month's last day, so a
// template anchored on the 31st fires on Feb 28/29, Apr 30, and so on.
func (MonthlyChecker) IsDue(lastRun, now time.Time, startDate core.Date) bool {
	if lastRun.IsZero() {
		return true
	}

	// Already fired this month?
	if lastRun.Year() == now.Year() && lastRun.Month() == now.Month() {
		return false
	}

	targetDay := startDate.Day()
	lastDayOfMonth := time.Date(now.Year(), now.Month()+1, 0, 0, 0, 0, 0, time.UTC).Day()
	if targetDay > lastDayOfMonth {
		targetDay = lastDayOfMonth
	}

	return now.Day() >= targetDay
}

// YearlyChecker implements DuenessChecker for yearly recurring expenses.
type YearlyChecker struct{}

// IsDue returns true in a new year once the target month and day are
// reached, with the same month-end clamping as the monthly checker.
func (YearlyChecker) IsDue(lastRun, now time.Time, startDate core.Date) bool {
	if lastRun.IsZero() {
		return true
	}

	// Already fired this year?
	if lastRun.Year() == now.Year() {
		return false
	}

	targetMonth := startDate.Month()
	targetDay := startDate.Day()

	if int(now.Month()) < targetMonth {
		return false
	}

	if int(now.Month()) == targetMonth {
		lastDayOfMonth := time.Date(now.Year(), now.Month()+1, 0, 0, 0, 0, 0, time.UTC).Day()
		if targetDay > lastDayOfMonth {
			targetDay = lastDayOfMonth
		}
		return now.Day() >= targetDay
	}

	// Past the target month.
	return true
}

// duenessStrategies maps frequencies to their checkers.
var duenessStrategies = map[core.Frequency]DuenessChecker{
	core.Daily:   DailyChecker{},
	core.Weekly:  WeeklyChecker{},
	core.Monthly: MonthlyChecker{},
	core.Yearly:  YearlyChecker{},
}

// GetDuenessChecker returns the checker for a frequency, or an error for
// frequencies nothing is registered for.
func GetDuenessChecker(frequency core.Frequency) (DuenessChecker, error) {
	checker, ok := duenessStrategies[frequency]
	if !ok {
		return nil, fmt.Errorf("unknown frequency: %s", frequency)
	}
	return checker, nil
}

// RegisterDuenessChecker registers a custom checker for a new frequency.
func RegisterDuenessChecker(frequency core.Frequency, checker DuenessChecker) {
	duenessStrategies[frequency] = checker
}
