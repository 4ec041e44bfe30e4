package ledger

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"byedebt/internal/core"
)

// seriesBuckets is the fixed number of sub-intervals a period is divided
// into, matching the four data points the chart renders.
const seriesBuckets = 4

// SeriesPoint is one bucket of a time series: the records created inside the
// sub-interval, summed by native amount.
type SeriesPoint struct {
	Label string
	Total decimal.Decimal
}

// BalanceDelta compares the current period's net balance to the immediately
// preceding period of equal length. Positive means the balance moved in the
// user's favor.
type BalanceDelta struct {
	Percent  float64
	Positive bool
}

// TimeSeries buckets the window [now-span, now] into exactly four equal
// sub-intervals. Bucket boundaries are half-open, so a record lands in one
// bucket only. Label granularity follows the period.
func TimeSeries(records []core.DebtRecord, p Period, now time.Time) []SeriesPoint {
	w := PeriodWindow(p, now, records)
	step := w.span() / seriesBuckets

	out := make([]SeriesPoint, 0, seriesBuckets)
	for i := 0; i < seriesBuckets; i++ {
		start := w.From.Add(time.Duration(i) * step)
		end := w.From.Add(time.Duration(i+1) * step)

		total := decimal.Zero
		for _, r := range records {
			if !r.CreatedAt.Before(start) && r.CreatedAt.Before(end) {
				total = total.Add(r.Amount)
			}
		}
		out = append(out, SeriesPoint{Label: bucketLabel(p, start), Total: total})
	}
	return out
}

func bucketLabel(p Period, start time.Time) string {
	switch p {
	case PeriodHour, PeriodDay:
		return fmt.Sprintf("%02dh", start.Hour())
	case PeriodWeek:
		return start.Format("Mon")
	case PeriodMonth:
		return strconv.Itoa(start.Day())
	default: // 1Y, ALL
		return start.Format("Jan")
	}
}

// Delta computes the period-over-period change of the user's net balance in
// the display currency. A zero previous balance is reported as +0% by
// convention, since there is no meaningful base to compare against.
func (a *Aggregator) Delta(ctx context.Context, records []core.DebtRecord, p Period, now time.Time, userName, display string) BalanceDelta {
	current := PeriodWindow(p, now, records)
	previous := current.previous()

	cur := a.netWithin(ctx, records, current, userName, display)
	prev := a.netWithin(ctx, records, previous, userName, display)

	if prev.IsZero() {
		return BalanceDelta{Percent: 0, Positive: true}
	}

	change := cur.Sub(prev).Div(prev.Abs()).Mul(decimal.NewFromInt(100))
	return BalanceDelta{
		Percent:  change.Abs().InexactFloat64(),
		Positive: !change.IsNegative(),
	}
}

// netWithin is the net balance over the records created inside w.
func (a *Aggregator) netWithin(ctx context.Context, records []core.DebtRecord, w Window, userName, display string) decimal.Decimal {
	return a.Totals(ctx, inWindow(records, w), userName, display).Net()
}
