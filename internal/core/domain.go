package core

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	Monthly Frequency = "monthly"
	Yearly  Frequency = "yearly"
	Weekly  Frequency = "weekly"
	Daily   Frequency = "daily"
)

type (
	// Frequency is how often a recurring expense fires.
	Frequency string

	Date struct {
		time.Time
	}

	Money struct {
		Cents int64
	}

	// User is an account that owns categories and expenses. Requests are
	// attributed to a user by the auth layer; core only ever sees the id.
	User struct {
		ID       uuid.UUID
		Username string
	}

	// Category is a user-owned expense bucket. Names are unique per user.
	Category struct {
		ID     uuid.UUID
		Name   string
		UserID uuid.UUID
	}

	Expense struct {
		ID          uuid.UUID
		Description string
		Amount      Money
		CategoryID  uuid.UUID
		OccurredOn  Date
		UserID      uuid.UUID
	}

	// RecurringExpense is a template; the scheduler materializes real
	// expenses from it on due dates. EndDate may be zero (no end).
	// LastRunOn is the date of the most recently materialized expense,
	// zero when the template has never fired.
	RecurringExpense struct {
		ID          uuid.UUID
		Description string
		Amount      Money
		CategoryID  uuid.UUID
		UserID      uuid.UUID
		Every       Frequency
		StartDate   Date
		EndDate     Date
		Active      bool
		LastRunOn   Date
	}
)

var (
	// ErrInvalidInput is the umbrella for validation failures without a
	// sentinel of their own; specific cases below wrap or stand alone.
	ErrInvalidInput = errors.New("invalid input")

	ErrNotFound         = errors.New("not found")
	ErrInvalidRange     = errors.New("invalid date range")
	ErrInvalidDay       = errors.New("invalid day")
	ErrInvalidMonth     = errors.New("invalid month")
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrEmptyDescription = errors.New("empty description")
	ErrEmptyName        = errors.New("empty category name")
	ErrDuplicateName    = errors.New("category name already in use")
	ErrCategoryInUse    = errors.New("category has expenses")
	ErrMissingCategory  = errors.New("missing category")
	ErrMissingUser      = errors.New("missing user")
)

func (d Date) Validate() error {
	if d.IsZero() {
		return fmt.Errorf("%w: date cannot be zero", ErrInvalidInput)
	}
	_, month, day := d.Date()
	if day < 1 || day > 31 {
		return ErrInvalidDay
	}
	if month < 1 || month > 12 {
		return ErrInvalidMonth
	}
	return nil
}

// Day returns the day of the month
func (d Date) Day() int {
	return d.Time.Day()
}

// Month returns the month
func (d Date) Month() int {
	return int(d.Time.Month())
}

// Year returns the year
func (d Date) Year() int {
	return d.Time.Year()
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses a calendar date in YYYY-MM-DD form.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", strings.TrimSpace(s))
	if err != nil {
		return Date{}, err
	}
	return Date{Time: t}, nil
}

// String renders the date in YYYY-MM-DD form, the format used on the wire
// and in storage.
func (d Date) String() string {
	return d.Time.Format("2006-01-02")
}

// IsEmpty returns true if the date is zero (for optional dates)
func (d Date) IsEmpty() bool {
	return d.IsZero()
}

func (f Frequency) Valid() bool {
	switch f {
	case Daily, Weekly, Monthly, Yearly:
		return true
	default:
		return false
	}
}

func (m Money) Validate() error {
	if m.Cents < 0 {
		return ErrInvalidAmount
	}
	return nil
}

func (u User) Validate() error {
	if u.ID == uuid.Nil {
		return ErrMissingUser
	}
	if strings.TrimSpace(u.Username) == "" {
		return fmt.Errorf("%w: empty username", ErrInvalidInput)
	}
	return nil
}

func (c Category) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return ErrEmptyName
	}
	if len(c.Name) > 100 {
		return fmt.Errorf("%w: category name too long (max 100 characters)", ErrInvalidInput)
	}
	if c.UserID == uuid.Nil {
		return ErrMissingUser
	}
	return nil
}

func (e Expense) Validate() error {
	if err := e.OccurredOn.Validate(); err != nil {
		return err
	}
	if len(strings.TrimSpace(e.Description)) == 0 {
		return ErrEmptyDescription
	}
	if len(e.Description) > 200 {
		return fmt.Errorf("%w: description too long (max 200 characters)", ErrInvalidInput)
	}
	if err := e.Amount.Validate(); err != nil {
		return err
	}
	if e.CategoryID == uuid.Nil {
		return ErrMissingCategory
	}
	if e.UserID == uuid.Nil {
		return ErrMissingUser
	}
	return nil
}

func (re RecurringExpense) Validate() error {
	if err := re.StartDate.Validate(); err != nil {
		return fmt.Errorf("invalid start date: %w", err)
	}

	if !re.EndDate.IsZero() {
		if err := re.EndDate.Validate(); err != nil {
			return fmt.Errorf("invalid end date: %w", err)
		}
		if re.EndDate.Time.Before(re.StartDate.Time) {
			return fmt.Errorf("%w: end date must not be before start date", ErrInvalidInput)
		}
	}

	if !re.Every.Valid() {
		return fmt.Errorf("%w: unknown frequency %q", ErrInvalidInput, re.Every)
	}

	if len(strings.TrimSpace(re.Description)) == 0 {
		return ErrEmptyDescription
	}
	if len(re.Description) > 200 {
		return fmt.Errorf("%w: description too long (max 200 characters)", ErrInvalidInput)
	}

	if err := re.Amount.Validate(); err != nil {
		return err
	}

	if re.CategoryID == uuid.Nil {
		return ErrMissingCategory
	}
	if re.UserID == uuid.Nil {
		return ErrMissingUser
	}

	return nil
}
