// Package rates maintains time-bounded exchange-rate tables for currency
// normalization: fresh tables come from an HTTP rate source, stale ones from
// the persisted cache, and a static table is the last resort.
package rates

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
)

// Source fetches the latest multiplicative rates for a base currency.
type Source interface {
	FetchLatest(ctx context.Context, base string) (map[string]decimal.Decimal, error)
}

// HTTPSource talks to an exchangerate-api style endpoint:
// GET {baseURL}/v4/latest/{BASE} returning {"base": ..., "rates": {...}}.
type HTTPSource struct {
	baseURL string
	client  *http.Client
}

func NewHTTPSource(baseURL string, timeout time.Duration) *HTTPSource {
	return &HTTPSource{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

func (s *HTTPSource) FetchLatest(ctx context.Context, base string) (map[string]decimal.Decimal, error) {
	addr := fmt.Sprintf("%s/v4/latest/%s", s.baseURL, base)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, addr, nil)
	if err != nil {
		return nil, fmt.Errorf("build rates request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch rates: %w", err)
	}
	defer resp.Body.Close()

	// Any non-success response is a fetch failure, same as a network error.
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch rates: unexpected status %d", resp.StatusCode)
	}

	var payload struct {
		Base  string                     `json:"base"`
		Rates map[string]decimal.Decimal `json:"rates"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode rates response: %w", err)
	}
	if len(payload.Rates) == 0 {
		return nil, fmt.Errorf("fetch rates: empty table for %s", base)
	}

	return payload.Rates, nil
}
