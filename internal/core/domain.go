package core

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ReminderEnabledKey is the settings key gating the daily no-expense reminder.
// The value is "1" (enabled, the default) or "0" (disabled).
const ReminderEnabledKey = "no_expense_reminder_enabled"

type (
	// Date is a calendar date with no time component, rendered as YYYY-MM-DD.
	Date struct {
		time.Time
	}

	// ExpenseRecord is one ledger entry. Amount is a signed decimal; negative
	// values are allowed (refunds, corrections).
	ExpenseRecord struct {
		ID        int64
		UserID    string
		Amount    decimal.Decimal
		Category  string
		Memo      string
		SpentDate Date
		CreatedAt time.Time
	}

	// UserTarget is one registered user, the membership list the reminder
	// scan iterates. Registration is a side effect of any interaction.
	UserTarget struct {
		UserID     string
		CreatedAt  time.Time
		LastSeenAt time.Time
	}

	// ExpensePatch is a partial update for an expense. Nil fields are left
	// unchanged. SpentDate and UserID are never updatable.
	ExpensePatch struct {
		Amount   *decimal.Decimal
		Category *string
		Memo     *string
	}

	// CategoryTotal is one row of a category-statistics report.
	CategoryTotal struct {
		Category string
		Total    decimal.Decimal
		Count    int
	}
)

var (
	ErrNotFound      = errors.New("record not found")
	ErrInvalidAmount = errors.New("invalid amount")
	ErrInvalidDate   = errors.New("invalid date")
	ErrInvalidMonth  = errors.New("invalid year-month")
	ErrEmptyCategory = errors.New("empty category")
	ErrEmptyUserID   = errors.New("empty user id")
)

const dateLayout = "2006-01-02"

// ParseDate parses a YYYY-MM-DD string into a Date.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, ErrInvalidDate
	}
	return Date{Time: t}, nil
}

// NewDate creates a Date from year, month, day.
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates a timestamp to its calendar date.
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), int(t.Month()), t.Day())
}

func (d Date) String() string {
	return d.Format(dateLayout)
}

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrInvalidDate
	}
	return nil
}

// AddDays returns the date shifted by n calendar days.
func (d Date) AddDays(n int) Date {
	return Date{Time: d.Time.AddDate(0, 0, n)}
}

// ParseAmount parses a signed decimal amount: an optional leading minus and an
// optional single decimal point. Anything else fails with ErrInvalidAmount.
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	digits := strings.TrimPrefix(s, "-")
	if digits == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	intPart, fracPart, hasDot := strings.Cut(digits, ".")
	if intPart == "" || (hasDot && fracPart == "") {
		return decimal.Zero, ErrInvalidAmount
	}
	for _, r := range intPart + fracPart {
		if r < '0' || r > '9' {
			return decimal.Zero, ErrInvalidAmount
		}
	}
	v, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	return v, nil
}

// MemoDisplay renders the memo for user-facing output; empty and unset are
// equivalent and render as "-".
func (e ExpenseRecord) MemoDisplay() string {
	if strings.TrimSpace(e.Memo) == "" {
		return "-"
	}
	return e.Memo
}

func (e ExpenseRecord) Validate() error {
	if strings.TrimSpace(e.UserID) == "" {
		return ErrEmptyUserID
	}
	if strings.TrimSpace(e.Category) == "" {
		return ErrEmptyCategory
	}
	return e.SpentDate.Validate()
}
