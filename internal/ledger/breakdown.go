package ledger

import (
	"sort"

	"github.com/shopspring/decimal"

	"byedebt/internal/core"
)

// DefaultCategory labels records saved without a category.
const DefaultCategory = "Other"

// CategoryShare is one row of a category breakdown, ranked by amount
// descending. Percent is rounded to the nearest integer, so a breakdown sums
// to 100 give or take one per category.
type CategoryShare struct {
	Name    string
	Amount  decimal.Decimal
	Percent int
}

// CategoryBreakdown groups the records created inside the window by category
// and sizes each group against the window total. A zero window total yields
// an empty breakdown rather than a division error.
func CategoryBreakdown(records []core.DebtRecord, w Window) []CategoryShare {
	totals := make(map[string]decimal.Decimal)
	windowTotal := decimal.Zero

	for _, r := range inWindow(records, w) {
		name := r.Category
		if name == "" {
			name = DefaultCategory
		}
		totals[name] = totals[name].Add(r.Amount)
		windowTotal = windowTotal.Add(r.Amount)
	}

	if windowTotal.IsZero() {
		return nil
	}

	hundred := decimal.NewFromInt(100)
	out := make([]CategoryShare, 0, len(totals))
	for name, amount := range totals {
		out = append(out, CategoryShare{
			Name:    name,
			Amount:  amount,
			Percent: int(amount.Div(windowTotal).Mul(hundred).Round(0).IntPart()),
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].Amount.Equal(out[j].Amount) {
			return out[i].Amount.GreaterThan(out[j].Amount)
		}
		return out[i].Name < out[j].Name
	})
	return out
}
