package currency

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"
)

// preferenceKey is the kv-store key holding the selected display currency.
const preferenceKey = "currency_preference"

// RateProvider supplies a multiplicative exchange rate from base to target.
// The second return is false when no rate is known for the pair.
type RateProvider interface {
	Rate(ctx context.Context, base, target string) (decimal.Decimal, bool)
}

// PreferenceStore is the persisted key-value collaborator used for the
// display-currency preference.
type PreferenceStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}

// Conversion is the result of a currency conversion. Callers must check
// Converted: when false, Amount carries the original unconverted value and
// Reason says why, so a degraded conversion is never mistaken for a real one.
type Conversion struct {
	Amount    decimal.Decimal
	From      string
	To        string
	Converted bool
	Reason    string
}

// Service normalizes amounts across currencies using a rate provider and a
// persisted display-currency preference.
type Service struct {
	rates RateProvider
	prefs PreferenceStore
}

func NewService(rates RateProvider, prefs PreferenceStore) *Service {
	return &Service{rates: rates, prefs: prefs}
}

// Convert converts amount from one currency to another. Identity when the
// codes match. A missing rate degrades to the original amount with
// Converted=false instead of failing.
func (s *Service) Convert(ctx context.Context, amount decimal.Decimal, from, to string) Conversion {
	if from == to {
		return Conversion{Amount: amount, From: from, To: to, Converted: true}
	}

	rate, ok := s.rates.Rate(ctx, from, to)
	if !ok {
		slog.WarnContext(ctx, "No exchange rate available, returning unconverted amount",
			"from", from, "to", to)
		return Conversion{
			Amount: amount,
			From:   from,
			To:     to,
			Reason: fmt.Sprintf("no rate from %s to %s", from, to),
		}
	}

	return Conversion{
		Amount:    amount.Mul(rate),
		From:      from,
		To:        to,
		Converted: true,
	}
}

// Format renders amount in the given currency.
func (s *Service) Format(amount decimal.Decimal, code string) string {
	return Format(amount, code)
}

// Preferred returns the persisted display currency, or the default when no
// preference has been saved or the saved one is no longer supported.
func (s *Service) Preferred(ctx context.Context) Currency {
	code, found, err := s.prefs.Get(ctx, preferenceKey)
	if err != nil {
		slog.WarnContext(ctx, "Failed to load currency preference", "error", err)
		return Default
	}
	if !found {
		return Default
	}
	cur, ok := ByCode(code)
	if !ok {
		slog.WarnContext(ctx, "Stored currency preference no longer supported", "code", code)
		return Default
	}
	return cur
}

// SetPreferred persists the display currency for subsequent aggregation calls.
func (s *Service) SetPreferred(ctx context.Context, code string) error {
	if !IsSupported(code) {
		return fmt.Errorf("set preferred currency: %w (%s)", errUnsupported, code)
	}
	if err := s.prefs.Set(ctx, preferenceKey, code); err != nil {
		return fmt.Errorf("persist currency preference: %w", err)
	}
	slog.InfoContext(ctx, "Display currency updated", "code", code)
	return nil
}
