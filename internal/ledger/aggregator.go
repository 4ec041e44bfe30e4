// Package ledger is the pure aggregation core: classification of debt
// records against the current user, totals, per-counterparty summaries,
// category breakdowns and time-bucketed series. It owns no state and performs
// no I/O beyond the injected currency converter; identical inputs always
// produce identical outputs.
package ledger

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"byedebt/internal/core"
	"byedebt/internal/currency"
)

// Direction tells whether a record moves money away from the user or
// towards them.
type Direction int

const (
	Incoming Direction = iota // counterparty owes the user
	Outgoing                  // the user owes the counterparty
)

// Converter normalizes amounts into the display currency before summation.
type Converter interface {
	Convert(ctx context.Context, amount decimal.Decimal, from, to string) currency.Conversion
}

// Totals are the headline figures for one user, in the display currency.
type Totals struct {
	Owing       decimal.Decimal // user owes others, non-paid
	Owed        decimal.Decimal // others owe the user, non-paid
	ActiveOwing int
	ActiveOwed  int
	Currency    string
}

// Net is the overall balance: positive means money is owed to the user.
func (t Totals) Net() decimal.Decimal {
	return t.Owed.Sub(t.Owing)
}

// PersonSummary is the derived per-counterparty view. Recomputed on every
// aggregation pass, never mutated in place.
type PersonSummary struct {
	Name            string
	TotalOwedToUser decimal.Decimal
	TotalUserOwes   decimal.Decimal
	NetBalance      decimal.Decimal
	TotalDebts      int
	ActiveDebts     int
	PaidDebts       int
	LastActivity    time.Time
	Currency        string
}

// Insights are the trust metrics shown alongside the ledger.
type Insights struct {
	OnTimeRate int // share of records settled, percent
	DueSoon    int // non-paid records due within the next 7 days
	Overdue    int // non-paid records past their due date
}

// Aggregator computes derived views over a record set.
type Aggregator struct {
	convert Converter
}

func New(convert Converter) *Aggregator {
	return &Aggregator{convert: convert}
}

// Classify assigns a direction to the record relative to userName and names
// the counterparty. The record carries denormalized name strings, so the user
// name is the classification anchor; when the user appears on both sides the
// record classifies as outgoing with the user as their own counterparty.
func Classify(r core.DebtRecord, userName string) (Direction, string) {
	if core.SameParty(r.DebtorName, userName) {
		return Outgoing, r.CreditorName
	}
	return Incoming, r.DebtorName
}

// Totals sums non-paid records into owing/owed, converted into the display
// currency. An empty user name means no identity is available: the result is
// zero totals, not an error.
func (a *Aggregator) Totals(ctx context.Context, records []core.DebtRecord, userName, display string) Totals {
	t := Totals{Owing: decimal.Zero, Owed: decimal.Zero, Currency: display}
	if core.PartyKey(userName) == "" {
		return t
	}

	for _, r := range records {
		if r.Status == core.StatusPaid {
			continue
		}
		amount := a.convert.Convert(ctx, r.Amount, r.Currency, display).Amount
		dir, _ := Classify(r, userName)
		if dir == Outgoing {
			t.Owing = t.Owing.Add(amount)
			t.ActiveOwing++
		} else {
			t.Owed = t.Owed.Add(amount)
			t.ActiveOwed++
		}
	}
	return t
}

// PersonSummary aggregates the records involving one counterparty,
// case-insensitively matched on name. No matching records yields a zeroed
// summary, not an error.
func (a *Aggregator) PersonSummary(ctx context.Context, records []core.DebtRecord, counterparty, userName, display string) PersonSummary {
	s := PersonSummary{
		Name:            counterparty,
		TotalOwedToUser: decimal.Zero,
		TotalUserOwes:   decimal.Zero,
		Currency:        display,
	}

	for _, r := range records {
		dir, other := Classify(r, userName)
		if !core.SameParty(other, counterparty) {
			continue
		}

		s.TotalDebts++
		if r.CreatedAt.After(s.LastActivity) {
			s.LastActivity = r.CreatedAt
		}
		if r.Status == core.StatusPaid {
			s.PaidDebts++
			continue
		}
		s.ActiveDebts++

		amount := a.convert.Convert(ctx, r.Amount, r.Currency, display).Amount
		if dir == Outgoing {
			s.TotalUserOwes = s.TotalUserOwes.Add(amount)
		} else {
			s.TotalOwedToUser = s.TotalOwedToUser.Add(amount)
		}
	}

	s.NetBalance = s.TotalOwedToUser.Sub(s.TotalUserOwes)
	return s
}

// PersonSummaries computes a summary per counterparty, the user excluded,
// ordered by absolute net balance descending then name.
func (a *Aggregator) PersonSummaries(ctx context.Context, records []core.DebtRecord, userName, display string) []PersonSummary {
	userKey := core.PartyKey(userName)

	names := make(map[string]string) // key -> first seen display name
	for _, r := range records {
		_, other := Classify(r, userName)
		key := core.PartyKey(other)
		if key == "" || key == userKey {
			continue
		}
		if _, seen := names[key]; !seen {
			names[key] = other
		}
	}

	out := make([]PersonSummary, 0, len(names))
	for _, name := range names {
		out = append(out, a.PersonSummary(ctx, records, name, userName, display))
	}
	sort.Slice(out, func(i, j int) bool {
		ai, aj := out[i].NetBalance.Abs(), out[j].NetBalance.Abs()
		if !ai.Equal(aj) {
			return ai.GreaterThan(aj)
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// Persons returns the sorted unique counterparty names across the record set,
// the user excluded.
func Persons(records []core.DebtRecord, userName string) []string {
	userKey := core.PartyKey(userName)
	seen := make(map[string]string)
	for _, r := range records {
		for _, name := range []string{r.DebtorName, r.CreditorName} {
			key := core.PartyKey(name)
			if key == "" || key == userKey {
				continue
			}
			if _, ok := seen[key]; !ok {
				seen[key] = name
			}
		}
	}
	out := make([]string, 0, len(seen))
	for _, name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// ComputeInsights derives the trust metrics: settled share, upcoming dues
// and overdue count.
func ComputeInsights(records []core.DebtRecord, now time.Time) Insights {
	var ins Insights
	if len(records) == 0 {
		return ins
	}

	paid := 0
	horizon := now.Add(7 * 24 * time.Hour)
	for _, r := range records {
		if r.Status == core.StatusPaid {
			paid++
			continue
		}
		if r.Overdue(now) {
			ins.Overdue++
		} else if !r.DueDate.Time.After(horizon) {
			ins.DueSoon++
		}
	}
	ins.OnTimeRate = int(decimal.NewFromInt(int64(paid)).
		Div(decimal.NewFromInt(int64(len(records)))).
		Mul(decimal.NewFromInt(100)).
		Round(0).IntPart())
	return ins
}
