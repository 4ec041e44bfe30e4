package http

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"byedebt/internal/core"
	"byedebt/internal/currency"
	"byedebt/internal/ledger"
	"byedebt/internal/refresh"
)

const dateLayout = "2006-01-02"

type debtRequest struct {
	DebtorName   string          `json:"debtorName"`
	CreditorName string          `json:"creditorName"`
	Amount       decimal.Decimal `json:"amount"`
	Currency     string          `json:"currency"`
	DueDate      string          `json:"dueDate"`
	Category     string          `json:"category"`
	Description  string          `json:"description"`
}

type debtResponse struct {
	ID           string          `json:"id"`
	OwnerID      string          `json:"ownerId"`
	DebtorName   string          `json:"debtorName"`
	CreditorName string          `json:"creditorName"`
	Amount       decimal.Decimal `json:"amount"`
	Currency     string          `json:"currency"`
	DueDate      string          `json:"dueDate"`
	Status       string          `json:"status"`
	Overdue      bool            `json:"overdue"`
	Category     string          `json:"category,omitempty"`
	Description  string          `json:"description,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}

func (s *Server) toDebtResponse(rec core.DebtRecord) debtResponse {
	return debtResponse{
		ID:           rec.ID,
		OwnerID:      rec.OwnerID,
		DebtorName:   rec.DebtorName,
		CreditorName: rec.CreditorName,
		Amount:       rec.Amount,
		Currency:     rec.Currency,
		DueDate:      rec.DueDate.Format(dateLayout),
		Status:       string(rec.Status),
		Overdue:      rec.Overdue(s.now()),
		Category:     rec.Category,
		Description:  rec.Description,
		CreatedAt:    rec.CreatedAt,
		UpdatedAt:    rec.UpdatedAt,
	}
}

func (s *Server) handleListDebts(w http.ResponseWriter, r *http.Request) {
	records, err := s.debts.ListDebts(r.Context(), s.ownerID(r))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	out := make([]debtResponse, 0, len(records))
	for _, rec := range records {
		out = append(out, s.toDebtResponse(rec))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateDebt(w http.ResponseWriter, r *http.Request) {
	var req debtRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	dueDate, err := time.Parse(dateLayout, req.DueDate)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "dueDate must be YYYY-MM-DD")
		return
	}
	code := req.Currency
	if code == "" {
		code = currency.Default.Code
	}

	created, err := s.debts.CreateDebt(r.Context(), core.DebtRecord{
		OwnerID:      s.ownerID(r),
		DebtorName:   req.DebtorName,
		CreditorName: req.CreditorName,
		Amount:       req.Amount,
		Currency:     code,
		DueDate:      core.Date{Time: dueDate},
		Category:     req.Category,
		Description:  req.Description,
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, s.toDebtResponse(created))
}

func (s *Server) handleGetDebt(w http.ResponseWriter, r *http.Request) {
	rec, err := s.debts.GetDebt(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.toDebtResponse(rec))
}

func (s *Server) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.debts.MarkStatus(r.Context(), r.PathValue("id"), core.Status(req.Status)); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteDebt(w http.ResponseWriter, r *http.Request) {
	if err := s.debts.DeleteDebt(r.Context(), r.PathValue("id")); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type totalsResponse struct {
	TotalOwing   decimal.Decimal `json:"totalOwing"`
	TotalOwed    decimal.Decimal `json:"totalOwed"`
	NetBalance   decimal.Decimal `json:"netBalance"`
	ActiveOwing  int             `json:"activeOwing"`
	ActiveOwed   int             `json:"activeOwed"`
	Currency     string          `json:"currency"`
	FormattedNet string          `json:"formattedNet"`
}

func (s *Server) toTotalsResponse(t ledger.Totals) totalsResponse {
	return totalsResponse{
		TotalOwing:   t.Owing,
		TotalOwed:    t.Owed,
		NetBalance:   t.Net(),
		ActiveOwing:  t.ActiveOwing,
		ActiveOwed:   t.ActiveOwed,
		Currency:     t.Currency,
		FormattedNet: s.currencies.Format(t.Net(), t.Currency),
	}
}

func (s *Server) handleTotals(w http.ResponseWriter, r *http.Request) {
	records, err := s.debts.ListDebts(r.Context(), s.ownerID(r))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	totals := s.agg.Totals(r.Context(), records, s.ownerName(r), s.displayCurrency(r))
	writeJSON(w, http.StatusOK, s.toTotalsResponse(totals))
}

type personResponse struct {
	Name            string          `json:"name"`
	TotalOwedToUser decimal.Decimal `json:"totalOwedToUser"`
	TotalUserOwes   decimal.Decimal `json:"totalUserOwes"`
	NetBalance      decimal.Decimal `json:"netBalance"`
	TotalDebts      int             `json:"totalDebts"`
	ActiveDebts     int             `json:"activeDebts"`
	PaidDebts       int             `json:"paidDebts"`
	LastActivity    time.Time       `json:"lastActivity"`
	Currency        string          `json:"currency"`
}

func toPersonResponse(p ledger.PersonSummary) personResponse {
	return personResponse{
		Name:            p.Name,
		TotalOwedToUser: p.TotalOwedToUser,
		TotalUserOwes:   p.TotalUserOwes,
		NetBalance:      p.NetBalance,
		TotalDebts:      p.TotalDebts,
		ActiveDebts:     p.ActiveDebts,
		PaidDebts:       p.PaidDebts,
		LastActivity:    p.LastActivity,
		Currency:        p.Currency,
	}
}

func (s *Server) handlePersons(w http.ResponseWriter, r *http.Request) {
	records, err := s.debts.ListDebts(r.Context(), s.ownerID(r))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	summaries := s.agg.PersonSummaries(r.Context(), records, s.ownerName(r), s.displayCurrency(r))
	out := make([]personResponse, 0, len(summaries))
	for _, p := range summaries {
		out = append(out, toPersonResponse(p))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handlePersonDetail(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	ownerID := s.ownerID(r)

	records, err := s.debts.ListDebts(r.Context(), ownerID)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	shared, err := s.debts.ListWithParty(r.Context(), ownerID, name)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	summary := s.agg.PersonSummary(r.Context(), records, name, s.ownerName(r), s.displayCurrency(r))
	debts := make([]debtResponse, 0, len(shared))
	for _, rec := range shared {
		debts = append(debts, s.toDebtResponse(rec))
	}

	writeJSON(w, http.StatusOK, struct {
		personResponse
		Debts []debtResponse `json:"debts"`
	}{toPersonResponse(summary), debts})
}

type categoryShareResponse struct {
	Name    string          `json:"name"`
	Amount  decimal.Decimal `json:"amount"`
	Percent int             `json:"percent"`
}

func (s *Server) handleBreakdown(w http.ResponseWriter, r *http.Request) {
	records, err := s.debts.ListDebts(r.Context(), s.ownerID(r))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	period := ledger.ParsePeriod(r.URL.Query().Get("period"))
	window := ledger.PeriodWindow(period, s.now(), records)
	shares := ledger.CategoryBreakdown(records, window)

	out := make([]categoryShareResponse, 0, len(shares))
	for _, share := range shares {
		out = append(out, categoryShareResponse{
			Name:    share.Name,
			Amount:  share.Amount,
			Percent: share.Percent,
		})
	}
	writeJSON(w, http.StatusOK, struct {
		Period     string                  `json:"period"`
		Categories []categoryShareResponse `json:"categories"`
	}{string(period), out})
}

type seriesPointResponse struct {
	Label string          `json:"label"`
	Total decimal.Decimal `json:"total"`
}

func (s *Server) handleTimeSeries(w http.ResponseWriter, r *http.Request) {
	records, err := s.debts.ListDebts(r.Context(), s.ownerID(r))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	period := ledger.ParsePeriod(r.URL.Query().Get("period"))
	now := s.now()
	points := ledger.TimeSeries(records, period, now)
	delta := s.agg.Delta(r.Context(), records, period, now, s.ownerName(r), s.displayCurrency(r))

	out := make([]seriesPointResponse, 0, len(points))
	for _, p := range points {
		out = append(out, seriesPointResponse{Label: p.Label, Total: p.Total})
	}
	writeJSON(w, http.StatusOK, struct {
		Period        string                `json:"period"`
		Points        []seriesPointResponse `json:"points"`
		ChangePercent float64               `json:"changePercent"`
		ChangeUpward  bool                  `json:"changeUpward"`
	}{string(period), out, delta.Percent, delta.Positive})
}

func (s *Server) handleInsights(w http.ResponseWriter, r *http.Request) {
	records, err := s.debts.ListDebts(r.Context(), s.ownerID(r))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	insights := ledger.ComputeInsights(records, s.now())
	writeJSON(w, http.StatusOK, struct {
		OnTimeRate int `json:"onTimeRate"`
		DueSoon    int `json:"dueSoon"`
		Overdue    int `json:"overdue"`
	}{insights.OnTimeRate, insights.DueSoon, insights.Overdue})
}

func (s *Server) handleConvert(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	amount, err := decimal.NewFromString(q.Get("amount"))
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "amount must be a decimal number")
		return
	}
	from, to := q.Get("from"), q.Get("to")
	if !currency.IsSupported(from) || !currency.IsSupported(to) {
		writeError(w, http.StatusUnprocessableEntity, "unsupported currency code")
		return
	}

	conv := s.currencies.Convert(r.Context(), amount, from, to)
	writeJSON(w, http.StatusOK, struct {
		Amount    decimal.Decimal `json:"amount"`
		From      string          `json:"from"`
		To        string          `json:"to"`
		Converted bool            `json:"converted"`
		Reason    string          `json:"reason,omitempty"`
		Formatted string          `json:"formatted"`
	}{conv.Amount, conv.From, conv.To, conv.Converted, conv.Reason,
		s.currencies.Format(conv.Amount, displayCode(conv))})
}

// displayCode picks the code the converted amount is denominated in: the
// target when conversion happened, the source when it degraded.
func displayCode(conv currency.Conversion) string {
	if conv.Converted {
		return conv.To
	}
	return conv.From
}

func (s *Server) handleFormat(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	amount, err := decimal.NewFromString(q.Get("amount"))
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "amount must be a decimal number")
		return
	}
	code := q.Get("currency")
	if code == "" {
		code = s.currencies.Preferred(r.Context()).Code
	}
	if !currency.IsSupported(code) {
		writeError(w, http.StatusUnprocessableEntity, "unsupported currency code")
		return
	}

	writeJSON(w, http.StatusOK, struct {
		Formatted string `json:"formatted"`
	}{s.currencies.Format(amount, code)})
}

type currencyResponse struct {
	Code   string `json:"code"`
	Name   string `json:"name"`
	Symbol string `json:"symbol"`
}

func (s *Server) handleGetCurrency(w http.ResponseWriter, r *http.Request) {
	preferred := s.currencies.Preferred(r.Context())

	supported := make([]currencyResponse, 0, len(currency.Supported))
	for _, cur := range currency.Supported {
		supported = append(supported, currencyResponse{
			Code:   cur.Code,
			Name:   cur.Name,
			Symbol: cur.Symbol,
		})
	}
	writeJSON(w, http.StatusOK, struct {
		Preferred currencyResponse   `json:"preferred"`
		Supported []currencyResponse `json:"supported"`
	}{currencyResponse{preferred.Code, preferred.Name, preferred.Symbol}, supported})
}

func (s *Server) handleSetCurrency(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code string `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.currencies.SetPreferred(r.Context(), req.Code); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if s.coordinator == nil {
		writeError(w, http.StatusServiceUnavailable, "live aggregation not running")
		return
	}
	snap := s.coordinator.Latest()
	if snap == nil {
		writeError(w, http.StatusServiceUnavailable, "no snapshot computed yet")
		return
	}
	writeJSON(w, http.StatusOK, s.toSnapshotResponse(*snap))
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if s.coordinator == nil {
		writeError(w, http.StatusServiceUnavailable, "live aggregation not running")
		return
	}
	s.coordinator.Refresh()
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) toSnapshotResponse(snap refresh.Snapshot) any {
	persons := make([]personResponse, 0, len(snap.Persons))
	for _, p := range snap.Persons {
		persons = append(persons, toPersonResponse(p))
	}
	return struct {
		Totals     totalsResponse   `json:"totals"`
		Persons    []personResponse `json:"persons"`
		OnTimeRate int              `json:"onTimeRate"`
		DueSoon    int              `json:"dueSoon"`
		Overdue    int              `json:"overdue"`
		ComputedAt time.Time        `json:"computedAt"`
	}{
		Totals:     s.toTotalsResponse(snap.Totals),
		Persons:    persons,
		OnTimeRate: snap.Insights.OnTimeRate,
		DueSoon:    snap.Insights.DueSoon,
		Overdue:    snap.Insights.Overdue,
		ComputedAt: snap.ComputedAt,
	}
}
