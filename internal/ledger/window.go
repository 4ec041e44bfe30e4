package ledger

import (
	"time"

	"byedebt/internal/core"
)

// Period is a lookback selector for breakdowns and series.
type Period string

const (
	PeriodHour  Period = "1H"
	PeriodDay   Period = "1D"
	PeriodWeek  Period = "1W"
	PeriodMonth Period = "1M"
	PeriodYear  Period = "1Y"
	PeriodAll   Period = "ALL"
)

// ParsePeriod maps the wire value to a Period, defaulting to one month.
func ParsePeriod(s string) Period {
	switch Period(s) {
	case PeriodHour, PeriodDay, PeriodWeek, PeriodMonth, PeriodYear, PeriodAll:
		return Period(s)
	default:
		return PeriodMonth
	}
}

// Window is a bounded time range, From inclusive, To inclusive.
type Window struct {
	From time.Time
	To   time.Time
}

func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.From) && !t.After(w.To)
}

func (w Window) span() time.Duration {
	return w.To.Sub(w.From)
}

// previous returns the immediately preceding window of equal length. The
// shared boundary belongs to the current window, so a record created exactly
// at w.From is counted once.
func (w Window) previous() Window {
	return Window{From: w.From.Add(-w.span()), To: w.From.Add(-time.Nanosecond)}
}

// PeriodWindow resolves a period into [now-span, now]. ALL spans back to the
// earliest record creation, falling back to one year for an empty set.
func PeriodWindow(p Period, now time.Time, records []core.DebtRecord) Window {
	from := now
	switch p {
	case PeriodHour:
		from = now.Add(-time.Hour)
	case PeriodDay:
		from = now.AddDate(0, 0, -1)
	case PeriodWeek:
		from = now.AddDate(0, 0, -7)
	case PeriodMonth:
		from = now.AddDate(0, -1, 0)
	case PeriodYear:
		from = now.AddDate(-1, 0, 0)
	case PeriodAll:
		from = now.AddDate(-1, 0, 0)
		for _, r := range records {
			if !r.CreatedAt.IsZero() && r.CreatedAt.Before(from) {
				from = r.CreatedAt
			}
		}
	default:
		from = now.AddDate(0, -1, 0)
	}
	return Window{From: from, To: now}
}

// inWindow filters records whose creation falls inside w.
func inWindow(records []core.DebtRecord, w Window) []core.DebtRecord {
	out := make([]core.DebtRecord, 0, len(records))
	for _, r := range records {
		if w.Contains(r.CreatedAt) {
			out = append(out, r)
		}
	}
	return out
}
