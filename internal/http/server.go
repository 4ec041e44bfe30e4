package http

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"byedebt/internal/core"
	"byedebt/internal/currency"
	"byedebt/internal/ledger"
	"byedebt/internal/refresh"
	"byedebt/internal/storage"
)

const (
	ownerIDHeader   = "X-Owner-ID"
	ownerNameHeader = "X-Owner-Name"
)

// DebtService covers the write and read operations the API exposes over
// debt records. *services.LedgerService satisfies it.
type DebtService interface {
	CreateDebt(ctx context.Context, rec core.DebtRecord) (core.DebtRecord, error)
	MarkStatus(ctx context.Context, id string, status core.Status) error
	DeleteDebt(ctx context.Context, id string) error
	GetDebt(ctx context.Context, id string) (core.DebtRecord, error)
	ListDebts(ctx context.Context, ownerID string) ([]core.DebtRecord, error)
	ListWithParty(ctx context.Context, ownerID, name string) ([]core.DebtRecord, error)
}

// Config carries the server address and the owner identity used when a
// request does not set the owner headers.
type Config struct {
	Addr             string
	DefaultOwnerID   string
	DefaultOwnerName string
}

type Server struct {
	http.Server
	cfg         Config
	debts       DebtService
	currencies  *currency.Service
	agg         *ledger.Aggregator
	coordinator *refresh.Coordinator
	rateLimiter *rateLimiter
	now         func() time.Time
}

// NewServer configures routes, returning a ready-to-run http.Server. The
// coordinator is optional: without it the snapshot endpoints report
// unavailable.
func NewServer(cfg Config, debts DebtService, currencies *currency.Service, agg *ledger.Aggregator, coordinator *refresh.Coordinator) *Server {
	mux := http.NewServeMux()

	s := &Server{
		Server: http.Server{
			Addr:    cfg.Addr,
			Handler: mux,
		},
		cfg:         cfg,
		debts:       debts,
		currencies:  currencies,
		agg:         agg,
		coordinator: coordinator,
		rateLimiter: newRateLimiter(),
		now:         time.Now,
	}

	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", handleReady)

	mux.HandleFunc("GET /api/debts", s.withRequestLogging(s.handleListDebts))
	mux.HandleFunc("POST /api/debts", s.withRequestLogging(s.handleCreateDebt))
	mux.HandleFunc("GET /api/debts/{id}", s.withRequestLogging(s.handleGetDebt))
	mux.HandleFunc("PATCH /api/debts/{id}/status", s.withRequestLogging(s.handleUpdateStatus))
	mux.HandleFunc("DELETE /api/debts/{id}", s.withRequestLogging(s.handleDeleteDebt))

	mux.HandleFunc("GET /api/totals", s.withRequestLogging(s.handleTotals))
	mux.HandleFunc("GET /api/persons", s.withRequestLogging(s.handlePersons))
	mux.HandleFunc("GET /api/persons/{name}", s.withRequestLogging(s.handlePersonDetail))
	mux.HandleFunc("GET /api/breakdown", s.withRequestLogging(s.handleBreakdown))
	mux.HandleFunc("GET /api/timeseries", s.withRequestLogging(s.handleTimeSeries))
	mux.HandleFunc("GET /api/insights", s.withRequestLogging(s.handleInsights))

	mux.HandleFunc("GET /api/convert", s.withRequestLogging(s.handleConvert))
	mux.HandleFunc("GET /api/format", s.withRequestLogging(s.handleFormat))
	mux.HandleFunc("GET /api/currency", s.withRequestLogging(s.handleGetCurrency))
	mux.HandleFunc("PUT /api/currency", s.withRequestLogging(s.handleSetCurrency))

	mux.HandleFunc("GET /api/snapshot", s.withRequestLogging(s.handleSnapshot))
	mux.HandleFunc("POST /api/refresh", s.withRequestLogging(s.handleRefresh))

	return s
}

// Shutdown stops the rate limiter cleanup goroutine and the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.rateLimiter != nil {
		s.rateLimiter.stop()
	}
	return s.Server.Shutdown(ctx)
}

func isWrite(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

// withRequestLogging adds request IDs, rate limiting on writes, and request
// logging.
func (s *Server) withRequestLogging(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		clientIP := r.Header.Get("X-Forwarded-For")
		if clientIP == "" {
			clientIP = r.Header.Get("X-Real-IP")
		}
		if clientIP == "" {
			clientIP = r.RemoteAddr
		}

		requestID := generateRequestID()
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		slog.InfoContext(ctx, "Request started",
			"request_id", requestID,
			"method", r.Method,
			"url", r.URL.Path,
			"client_ip", clientIP)

		if isWrite(r.Method) && !s.rateLimiter.allow(clientIP) {
			slog.WarnContext(ctx, "Rate limit exceeded",
				"client_ip", clientIP, "method", r.Method, "url", r.URL.Path)
			w.Header().Set("Retry-After", "60")
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		w.Header().Set("X-Content-Type-Options", "nosniff")

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next(rw, r)

		slog.InfoContext(ctx, "Request completed",
			"request_id", requestID,
			"method", r.Method,
			"url", r.URL.Path,
			"status", rw.statusCode,
			"duration_ms", time.Since(start).Milliseconds())
	}
}

type requestIDKey struct{}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func generateRequestID() string {
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		return fmt.Sprintf("req_%d", time.Now().UnixNano())
	}
	return "req_" + hex.EncodeToString(bytes)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func handleReady(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// ownerID resolves the owner scope from headers, falling back to the
// configured default.
func (s *Server) ownerID(r *http.Request) string {
	if id := r.Header.Get(ownerIDHeader); id != "" {
		return id
	}
	return s.cfg.DefaultOwnerID
}

func (s *Server) ownerName(r *http.Request) string {
	if name := r.Header.Get(ownerNameHeader); name != "" {
		return name
	}
	return s.cfg.DefaultOwnerName
}

// displayCurrency resolves the target currency: an explicit query parameter
// wins, otherwise the stored preference.
func (s *Server) displayCurrency(r *http.Request) string {
	if code := r.URL.Query().Get("currency"); code != "" && currency.IsSupported(code) {
		return code
	}
	return s.currencies.Preferred(r.Context()).Code
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

var validationErrors = []error{
	core.ErrInvalidAmount,
	core.ErrEmptyDebtor,
	core.ErrEmptyCreditor,
	core.ErrUnsupportedCurrency,
	core.ErrInvalidDueDate,
	core.ErrInvalidStatus,
}

// writeDomainError maps service errors onto HTTP statuses.
func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "debt record not found")
		return
	}
	for _, sentinel := range validationErrors {
		if errors.Is(err, sentinel) {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
	}
	slog.ErrorContext(r.Context(), "Request failed",
		"method", r.Method, "url", r.URL.Path, "error", err)
	writeError(w, http.StatusInternalServerError, "internal error")
}
