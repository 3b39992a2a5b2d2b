package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"outlay/internal/cache"
	"outlay/internal/core"
	"outlay/internal/log"
	"outlay/internal/storage"
)

// UserChecker reports whether a user id exists. Implemented by
// auth.Directory; queries for unknown users fail with core.ErrNotFound.
type UserChecker interface {
	Exists(ctx context.Context, id uuid.UUID) error
}

// TrendService answers the aggregate queries behind the dashboard and
// the trends API. Results are cached per user; every expense write goes
// through InvalidateUser so reads after a write recompute.
type TrendService struct {
	storage    *storage.SQLiteRepository
	users      UserChecker
	byCategory cache.Cache[[]core.CategoryTotal]
	byMonth    cache.Cache[[]core.MonthTotal]
	byYear     cache.Cache[[]core.YearTotal]
	logger     *log.Logger
}

func NewTrendService(
	repo *storage.SQLiteRepository,
	users UserChecker,
	byCategory cache.Cache[[]core.CategoryTotal],
	byMonth cache.Cache[[]core.MonthTotal],
	byYear cache.Cache[[]core.YearTotal],
	logger *log.Logger,
) *TrendService {
	return &TrendService{
		storage:    repo,
		users:      users,
		byCategory: byCategory,
		byMonth:    byMonth,
		byYear:     byYear,
		logger:     logger.WithComponent(log.ComponentTrend),
	}
}

// Cache keys are prefixed per user so one InvalidateUser call can drop
// every cached aggregate the user owns.
func categoryTrendPrefix(userID uuid.UUID) string {
	return fmt.Sprintf("trends:cat:%s:", userID)
}

func categoryTrendKey(userID uuid.UUID, start, end core.Date) string {
	return fmt.Sprintf("%s%s:%s", categoryTrendPrefix(userID), start, end)
}

func monthTrendPrefix(userID uuid.UUID) string {
	return fmt.Sprintf("trends:month:%s:", userID)
}

func monthTrendKey(userID uuid.UUID, year int) string {
	return fmt.Sprintf("%s%d", monthTrendPrefix(userID), year)
}

func yearTrendKey(userID uuid.UUID) string {
	return fmt.Sprintf("trends:year:%s", userID)
}

// CategoryTotals sums the user's expenses per category inside the
// inclusive [start, end] window, ordered by total descending with ties
// broken by category id. A start after end is core.ErrInvalidRange; an
// unknown user is core.ErrNotFound.
func (s *TrendService) CategoryTotals(ctx context.Context, userID uuid.UUID, start, end core.Date) ([]core.CategoryTotal, error) {
	if start.Time.After(end.Time) {
		return nil, core.ErrInvalidRange
	}
	if err := s.users.Exists(ctx, userID); err != nil {
		return nil, err
	}

	key := categoryTrendKey(userID, start, end)
	if totals, ok := s.byCategory.Get(key); ok {
		return totals, nil
	}

	expenses, err := s.storage.ListExpenses(ctx, userID, storage.ExpenseFilter{Start: start, End: end})
	if err != nil {
		return nil, err
	}
	totals, err := core.CategoryTotals(expenses, start, end)
	if err != nil {
		return nil, err
	}

	s.byCategory.Set(key, totals)
	return totals, nil
}

// MonthlyTotals sums one calendar year of the user's expenses per month.
// The result always holds exactly 12 entries, January through December,
// zero-filled where nothing was spent.
func (s *TrendService) MonthlyTotals(ctx context.Context, userID uuid.UUID, year int) ([]core.MonthTotal, error) {
	if err := s.users.Exists(ctx, userID); err != nil {
		return nil, err
	}

	key := monthTrendKey(userID, year)
	if totals, ok := s.byMonth.Get(key); ok {
		return totals, nil
	}

	expenses, err := s.storage.ListExpenses(ctx, userID, storage.ExpenseFilter{
		Start: core.NewDate(year, 1, 1),
		End:   core.NewDate(year, 12, 31),
	})
	if err != nil {
		return nil, err
	}
	totals := core.MonthlyTotals(expenses, year)

	s.byMonth.Set(key, totals)
	return totals, nil
}

// YearlyTotals sums all the user's expenses per calendar year, ascending.
// Years without expenses are absent.
func (s *TrendService) YearlyTotals(ctx context.Context, userID uuid.UUID) ([]core.YearTotal, error) {
	if err := s.users.Exists(ctx, userID); err != nil {
		return nil, err
	}

	key := yearTrendKey(userID)
	if totals, ok := s.byYear.Get(key); ok {
		return totals, nil
	}

	expenses, err := s.storage.ListExpenses(ctx, userID, storage.ExpenseFilter{})
	if err != nil {
		return nil, err
	}
	totals := core.YearlyTotals(expenses)

	s.byYear.Set(key, totals)
	return totals, nil
}

type cacheStatser interface {
	Stats() cache.Stats
}

// CacheStats sums hit/miss/eviction counters across the three trend
// caches. Backends without counters (Redis) contribute nothing.
func (s *TrendService) CacheStats() cache.Stats {
	var total cache.Stats
	for _, c := range []any{s.byCategory, s.byMonth, s.byYear} {
		if cs, ok := c.(cacheStatser); ok {
			st := cs.Stats()
			total.Hits += st.Hits
			total.Misses += st.Misses
			total.Evictions += st.Evictions
		}
	}
	return total
}

// InvalidateUser drops every cached aggregate for the user. The yearly
// key has no variable suffix, so the prefix match hits it exactly.
func (s *TrendService) InvalidateUser(userID uuid.UUID) {
	dropped := s.byCategory.DeletePrefix(categoryTrendPrefix(userID))
	dropped += s.byMonth.DeletePrefix(monthTrendPrefix(userID))
	dropped += s.byYear.DeletePrefix(yearTrendKey(userID))
	if dropped > 0 {
		s.logger.Debug("trend cache invalidated",
			log.FieldUserID, userID.String(),
			"entries", dropped)
	}
}
