package core

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func validRecord() DebtRecord {
	return DebtRecord{
		ID:           NewID(),
		OwnerID:      "owner-1",
		DebtorName:   "You",
		CreditorName: "Alice",
		Amount:       decimal.NewFromInt(100),
		Currency:     "USD",
		DueDate:      NewDate(2026, 9, 1),
		Status:       StatusPending,
	}
}

func TestDebtRecordValidate(t *testing.T) {
	if err := validRecord().Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*DebtRecord)
		want   error
	}{
		{"empty debtor", func(r *DebtRecord) { r.DebtorName = "  " }, ErrEmptyDebtor},
		{"empty creditor", func(r *DebtRecord) { r.CreditorName = "" }, ErrEmptyCreditor},
		{"zero amount", func(r *DebtRecord) { r.Amount = decimal.Zero }, ErrInvalidAmount},
		{"negative amount", func(r *DebtRecord) { r.Amount = decimal.NewFromInt(-5) }, ErrInvalidAmount},
		{"bad currency", func(r *DebtRecord) { r.Currency = "XXX" }, ErrUnsupportedCurrency},
		{"zero due date", func(r *DebtRecord) { r.DueDate = Date{} }, ErrInvalidDueDate},
		{"bad status", func(r *DebtRecord) { r.Status = "overdue" }, ErrInvalidStatus},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := validRecord()
			tc.mutate(&r)
			if err := r.Validate(); err != tc.want {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestOverdueIsDerived(t *testing.T) {
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)

	r := validRecord()
	r.DueDate = NewDate(2026, 8, 1)
	if !r.Overdue(now) {
		t.Fatal("pending debt past due date should be overdue")
	}

	r.Status = StatusPaid
	if r.Overdue(now) {
		t.Fatal("paid debt must never be overdue")
	}

	r.Status = StatusPending
	r.DueDate = NewDate(2026, 12, 31)
	if r.Overdue(now) {
		t.Fatal("future due date should not be overdue")
	}
}

func TestPartyKey(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"Alice", "alice"},
		{"  alice ", "alice"},
		{"Bob  Smith", "bob smith"},
		{"BOB\tSMITH", "bob smith"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := PartyKey(tc.in); got != tc.want {
			t.Fatalf("PartyKey(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
	if !SameParty("  Alice", "aLiCe") {
		t.Fatal("expected same party")
	}
}

func TestCounterparty(t *testing.T) {
	r := validRecord() // debtor You, creditor Alice
	if got := r.Counterparty("You"); got != "Alice" {
		t.Fatalf("expected Alice, got %q", got)
	}
	r2 := r
	r2.DebtorName, r2.CreditorName = "Alice", "You"
	if got := r2.Counterparty("You"); got != "Alice" {
		t.Fatalf("expected Alice, got %q", got)
	}

	// Owner on both sides: almost certainly a data-entry defect, but it must
	// resolve without panicking, counterparty is self.
	self := r
	self.DebtorName, self.CreditorName = "You", "You"
	if got := self.Counterparty("You"); got != "You" {
		t.Fatalf("expected self counterparty, got %q", got)
	}
}

func TestNewIDShape(t *testing.T) {
	a, b := NewID(), NewID()
	if len(a) != 32 || len(b) != 32 {
		t.Fatalf("expected 32 hex chars, got %d and %d", len(a), len(b))
	}
	if a == b {
		t.Fatal("ids should not collide")
	}
}
