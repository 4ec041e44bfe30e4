package core

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"byedebt/internal/currency"
)

const (
	StatusPending Status = "pending"
	StatusPaid    Status = "paid"
)

type (
	// Status is the persisted lifecycle of a debt. Only pending and paid are
	// ever stored; "overdue" is derived, see DebtRecord.Overdue.
	Status string

	// Date is a calendar date without a time-of-day component.
	Date struct {
		time.Time
	}

	// DebtRecord is one informal debt between the owner and a named
	// counterparty. Names are denormalized strings; use PartyKey for
	// matching, never raw equality.
	DebtRecord struct {
		ID           string
		OwnerID      string
		DebtorName   string
		CreditorName string
		Amount       decimal.Decimal
		Currency     string
		DueDate      Date
		Status       Status
		Category     string // optional, empty means uncategorized
		Description  string // optional
		CreatedAt    time.Time
		UpdatedAt    time.Time
	}
)

var (
	ErrInvalidAmount       = errors.New("amount must be positive")
	ErrEmptyDebtor         = errors.New("empty debtor name")
	ErrEmptyCreditor       = errors.New("empty creditor name")
	ErrUnsupportedCurrency = errors.New("unsupported currency")
	ErrInvalidDueDate      = errors.New("invalid due date")
	ErrInvalidStatus       = errors.New("invalid status")
)

// NewDate creates a Date from year, month, day in UTC.
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrInvalidDueDate
	}
	return nil
}

// Before reports whether the date falls strictly before the instant t.
func (d Date) Before(t time.Time) bool {
	return d.Time.Before(t)
}

func (s Status) Validate() error {
	switch s {
	case StatusPending, StatusPaid:
		return nil
	default:
		return ErrInvalidStatus
	}
}

func (r DebtRecord) Validate() error {
	if strings.TrimSpace(r.DebtorName) == "" {
		return ErrEmptyDebtor
	}
	if strings.TrimSpace(r.CreditorName) == "" {
		return ErrEmptyCreditor
	}
	if !r.Amount.IsPositive() {
		return ErrInvalidAmount
	}
	if !currency.IsSupported(r.Currency) {
		return ErrUnsupportedCurrency
	}
	if err := r.DueDate.Validate(); err != nil {
		return err
	}
	if err := r.Status.Validate(); err != nil {
		return err
	}
	if len(r.Description) > 500 {
		return errors.New("description too long (max 500 characters)")
	}
	return nil
}

// Overdue is the derived predicate the UI shows as "overdue". It is never
// persisted: a paid debt is never overdue, and a pending one becomes overdue
// the moment its due date passes.
func (r DebtRecord) Overdue(now time.Time) bool {
	return r.Status != StatusPaid && r.DueDate.Before(now)
}

// Counterparty returns the display name of the other party relative to the
// given user name. When the owner appears on both sides (a data-entry
// defect) the record counts as money the user owes, counterparty self.
func (r DebtRecord) Counterparty(userName string) string {
	if PartyKey(r.DebtorName) == PartyKey(userName) {
		return r.CreditorName
	}
	return r.DebtorName
}
