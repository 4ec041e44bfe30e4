package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"byedebt/internal/currency"
	"byedebt/internal/feed"
	"byedebt/internal/ledger"
	"byedebt/internal/services"
	"byedebt/internal/storage"
)

type staticRates struct{}

// USD-based table; EUR rate of 0.5 makes conversions easy to assert.
func (staticRates) Rate(_ context.Context, base, target string) (decimal.Decimal, bool) {
	usd := map[string]decimal.Decimal{
		"USD": decimal.NewFromInt(1),
		"EUR": decimal.RequireFromString("0.5"),
	}
	b, okB := usd[base]
	t, okT := usd[target]
	if !okB || !okT {
		return decimal.Decimal{}, false
	}
	return t.Div(b), true
}

func newTestServer(t *testing.T) *Server {
	t.Helper()

	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)

	svc := services.NewLedgerService(repo, feed.NewBus())
	cur := currency.NewService(staticRates{}, repo.Preferences())
	srv := NewServer(Config{
		Addr:             ":0",
		DefaultOwnerID:   "owner-1",
		DefaultOwnerName: "You",
	}, svc, cur, ledger.New(cur), nil)

	t.Cleanup(func() {
		srv.rateLimiter.stop()
		svc.Close()
	})
	return srv
}

func doRequest(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	srv.Server.Handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v))
	return v
}

func newDebtBody(debtor, creditor string, amount float64) map[string]any {
	return map[string]any{
		"debtorName":   debtor,
		"creditorName": creditor,
		"amount":       amount,
		"currency":     "USD",
		"dueDate":      "2026-09-15",
		"category":     "Rent",
	}
}

func TestHealthEndpoints(t *testing.T) {
	srv := newTestServer(t)
	assert.Equal(t, http.StatusOK, doRequest(t, srv, http.MethodGet, "/healthz", nil).Code)
	assert.Equal(t, http.StatusOK, doRequest(t, srv, http.MethodGet, "/readyz", nil).Code)
}

func TestCreateDebt(t *testing.T) {
	srv := newTestServer(t)

	rec := doRequest(t, srv, http.MethodPost, "/api/debts", newDebtBody("You", "Alice", 100))
	require.Equal(t, http.StatusCreated, rec.Code)

	created := decodeBody[debtResponse](t, rec)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "owner-1", created.OwnerID)
	assert.Equal(t, "pending", created.Status)
	assert.Equal(t, "2026-09-15", created.DueDate)
	assert.True(t, created.Amount.Equal(decimal.NewFromInt(100)))
}

func TestCreateDebtValidation(t *testing.T) {
	srv := newTestServer(t)

	rec := doRequest(t, srv, http.MethodPost, "/api/debts", newDebtBody("You", "Alice", -5))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	bad := newDebtBody("You", "Alice", 10)
	bad["dueDate"] = "15/09/2026"
	rec = doRequest(t, srv, http.MethodPost, "/api/debts", bad)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/debts", bytes.NewBufferString("{"))
	raw := httptest.NewRecorder()
	srv.Server.Handler.ServeHTTP(raw, req)
	assert.Equal(t, http.StatusBadRequest, raw.Code)
}

func TestDebtLifecycle(t *testing.T) {
	srv := newTestServer(t)

	created := decodeBody[debtResponse](t,
		doRequest(t, srv, http.MethodPost, "/api/debts", newDebtBody("You", "Alice", 100)))

	rec := doRequest(t, srv, http.MethodPatch, "/api/debts/"+created.ID+"/status",
		map[string]string{"status": "paid"})
	require.Equal(t, http.StatusNoContent, rec.Code)

	got := decodeBody[debtResponse](t,
		doRequest(t, srv, http.MethodGet, "/api/debts/"+created.ID, nil))
	assert.Equal(t, "paid", got.Status)

	rec = doRequest(t, srv, http.MethodPatch, "/api/debts/"+created.ID+"/status",
		map[string]string{"status": "overdue"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	require.Equal(t, http.StatusNoContent,
		doRequest(t, srv, http.MethodDelete, "/api/debts/"+created.ID, nil).Code)
	assert.Equal(t, http.StatusNotFound,
		doRequest(t, srv, http.MethodGet, "/api/debts/"+created.ID, nil).Code)
	assert.Equal(t, http.StatusNotFound,
		doRequest(t, srv, http.MethodDelete, "/api/debts/"+created.ID, nil).Code)
}

func TestTotalsEndpoint(t *testing.T) {
	srv := newTestServer(t)

	doRequest(t, srv, http.MethodPost, "/api/debts", newDebtBody("You", "Alice", 100))
	doRequest(t, srv, http.MethodPost, "/api/debts", newDebtBody("Bob", "You", 40))

	totals := decodeBody[totalsResponse](t,
		doRequest(t, srv, http.MethodGet, "/api/totals", nil))
	assert.True(t, totals.TotalOwing.Equal(decimal.NewFromInt(100)))
	assert.True(t, totals.TotalOwed.Equal(decimal.NewFromInt(40)))
	assert.True(t, totals.NetBalance.Equal(decimal.NewFromInt(-60)))
	assert.Equal(t, "USD", totals.Currency)
	assert.Equal(t, 1, totals.ActiveOwing)
	assert.Equal(t, 1, totals.ActiveOwed)
}

func TestTotalsRespectsDisplayCurrency(t *testing.T) {
	srv := newTestServer(t)

	doRequest(t, srv, http.MethodPost, "/api/debts", newDebtBody("You", "Alice", 100))

	totals := decodeBody[totalsResponse](t,
		doRequest(t, srv, http.MethodGet, "/api/totals?currency=EUR", nil))
	assert.Equal(t, "EUR", totals.Currency)
	assert.True(t, totals.TotalOwing.Equal(decimal.NewFromInt(50)),
		"100 USD at 0.5 should be 50 EUR, got %s", totals.TotalOwing)
}

func TestPersonsEndpoints(t *testing.T) {
	srv := newTestServer(t)

	doRequest(t, srv, http.MethodPost, "/api/debts", newDebtBody("You", "Alice", 100))
	doRequest(t, srv, http.MethodPost, "/api/debts", newDebtBody("alice", "You", 30))
	doRequest(t, srv, http.MethodPost, "/api/debts", newDebtBody("Bob", "You", 40))

	persons := decodeBody[[]personResponse](t,
		doRequest(t, srv, http.MethodGet, "/api/persons", nil))
	require.Len(t, persons, 2)
	assert.True(t, strings.EqualFold(persons[0].Name, "alice"), "largest absolute balance first, got %s", persons[0].Name)

	detail := decodeBody[struct {
		personResponse
		Debts []debtResponse `json:"debts"`
	}](t, doRequest(t, srv, http.MethodGet, "/api/persons/Alice", nil))
	assert.True(t, detail.TotalUserOwes.Equal(decimal.NewFromInt(100)))
	assert.True(t, detail.TotalOwedToUser.Equal(decimal.NewFromInt(30)))
	assert.Len(t, detail.Debts, 2)
}

func TestBreakdownAndTimeSeries(t *testing.T) {
	srv := newTestServer(t)

	doRequest(t, srv, http.MethodPost, "/api/debts", newDebtBody("You", "Alice", 60))
	food := newDebtBody("You", "Bob", 40)
	food["category"] = "Food"
	doRequest(t, srv, http.MethodPost, "/api/debts", food)

	breakdown := decodeBody[struct {
		Period     string                  `json:"period"`
		Categories []categoryShareResponse `json:"categories"`
	}](t, doRequest(t, srv, http.MethodGet, "/api/breakdown?period=1M", nil))
	assert.Equal(t, "1M", breakdown.Period)
	require.Len(t, breakdown.Categories, 2)
	assert.Equal(t, "Rent", breakdown.Categories[0].Name)
	assert.Equal(t, 60, breakdown.Categories[0].Percent)

	series := decodeBody[struct {
		Period string                `json:"period"`
		Points []seriesPointResponse `json:"points"`
	}](t, doRequest(t, srv, http.MethodGet, "/api/timeseries?period=1W", nil))
	assert.Equal(t, "1W", series.Period)
	assert.Len(t, series.Points, 4)
}

func TestCurrencyPreferenceEndpoints(t *testing.T) {
	srv := newTestServer(t)

	current := decodeBody[struct {
		Preferred currencyResponse   `json:"preferred"`
		Supported []currencyResponse `json:"supported"`
	}](t, doRequest(t, srv, http.MethodGet, "/api/currency", nil))
	assert.Equal(t, "USD", current.Preferred.Code)
	assert.Len(t, current.Supported, len(currency.Supported))

	require.Equal(t, http.StatusNoContent,
		doRequest(t, srv, http.MethodPut, "/api/currency", map[string]string{"code": "EUR"}).Code)

	current = decodeBody[struct {
		Preferred currencyResponse   `json:"preferred"`
		Supported []currencyResponse `json:"supported"`
	}](t, doRequest(t, srv, http.MethodGet, "/api/currency", nil))
	assert.Equal(t, "EUR", current.Preferred.Code)

	assert.Equal(t, http.StatusUnprocessableEntity,
		doRequest(t, srv, http.MethodPut, "/api/currency", map[string]string{"code": "XXX"}).Code)
}

func TestConvertAndFormatEndpoints(t *testing.T) {
	srv := newTestServer(t)

	conv := decodeBody[struct {
		Amount    decimal.Decimal `json:"amount"`
		Converted bool            `json:"converted"`
		Formatted string          `json:"formatted"`
	}](t, doRequest(t, srv, http.MethodGet, "/api/convert?amount=100&from=USD&to=EUR", nil))
	assert.True(t, conv.Converted)
	assert.True(t, conv.Amount.Equal(decimal.NewFromInt(50)))

	rec := doRequest(t, srv, http.MethodGet, "/api/convert?amount=abc&from=USD&to=EUR", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	rec = doRequest(t, srv, http.MethodGet, "/api/convert?amount=10&from=USD&to=XXX", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	formatted := decodeBody[struct {
		Formatted string `json:"formatted"`
	}](t, doRequest(t, srv, http.MethodGet, "/api/format?amount=1234.5&currency=USD", nil))
	assert.Equal(t, "$1,234.50", formatted.Formatted)
}

func TestSnapshotUnavailableWithoutCoordinator(t *testing.T) {
	srv := newTestServer(t)
	assert.Equal(t, http.StatusServiceUnavailable,
		doRequest(t, srv, http.MethodGet, "/api/snapshot", nil).Code)
	assert.Equal(t, http.StatusServiceUnavailable,
		doRequest(t, srv, http.MethodPost, "/api/refresh", nil).Code)
}

func TestOwnerHeaderScoping(t *testing.T) {
	srv := newTestServer(t)

	doRequest(t, srv, http.MethodPost, "/api/debts", newDebtBody("You", "Alice", 100))

	req := httptest.NewRequest(http.MethodGet, "/api/debts", nil)
	req.Header.Set("X-Owner-ID", "someone-else")
	rec := httptest.NewRecorder()
	srv.Server.Handler.ServeHTTP(rec, req)

	other := decodeBody[[]debtResponse](t, rec)
	assert.Empty(t, other)

	mine := decodeBody[[]debtResponse](t,
		doRequest(t, srv, http.MethodGet, "/api/debts", nil))
	assert.Len(t, mine, 1)
}
