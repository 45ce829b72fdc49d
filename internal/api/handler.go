package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/opensource-finance/riskscore/internal/circuit"
	"github.com/opensource-finance/riskscore/internal/domain"
	"github.com/opensource-finance/riskscore/internal/repository"
)

// Scorer calculates a risk score for a validated transaction.
type Scorer interface {
	CalculateRiskScore(ctx context.Context, tx *domain.Transaction) (domain.RiskScore, error)
}

// ScoreReader reads persisted audit records.
type ScoreReader interface {
	GetRiskScore(ctx context.Context, transactionID string) (*domain.AuditRecord, error)
}

// Pinger is a backing service that can report its health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the collaborators the handlers call. Scorer is required.
type Deps struct {
	Scorer   Scorer
	Scores   ScoreReader
	Breakers *circuit.Registry
	Metrics  http.Handler

	// Checked by /health and /ready, keyed by component name.
	Checks map[string]Pinger
}

// Handler holds dependencies for API handlers.
type Handler struct {
	deps    Deps
	version string
}

// NewHandler creates a new API handler.
func NewHandler(deps Deps, version string) *Handler {
	return &Handler{deps: deps, version: version}
}

var minAmount = decimal.RequireFromString("0.01")

// ScoreRequest is the request body for POST /v1/scores/calculate.
type ScoreRequest struct {
	TransactionID   string           `json:"transactionId"`
	ClientID        string           `json:"clientId"`
	BeneficiaryID   string           `json:"beneficiaryId"`
	Amount          *decimal.Decimal `json:"amount"`
	Currency        string           `json:"currency"`
	TransactionTime *time.Time       `json:"transactionTime"`
	Country         string           `json:"country"`
}

// Validate checks the request and returns the first problem found.
func (req *ScoreRequest) Validate() error {
	switch {
	case strings.TrimSpace(req.TransactionID) == "":
		return errors.New("transactionId is required")
	case strings.TrimSpace(req.ClientID) == "":
		return errors.New("clientId is required")
	case strings.TrimSpace(req.BeneficiaryID) == "":
		return errors.New("beneficiaryId is required")
	case req.Amount == nil:
		return errors.New("amount is required")
	case req.Amount.LessThan(minAmount):
		return errors.New("amount must be at least 0.01")
	case strings.TrimSpace(req.Currency) == "":
		return errors.New("currency is required")
	case len([]rune(req.Currency)) != 3:
		return errors.New("currency must be a 3-letter ISO code")
	case req.TransactionTime == nil:
		return errors.New("transactionTime is required")
	case strings.TrimSpace(req.Country) == "":
		return errors.New("country is required")
	case len([]rune(req.Country)) != 2:
		return errors.New("country must be a 2-letter ISO code")
	}
	return nil
}

// Transaction maps the request onto the domain type.
func (req *ScoreRequest) Transaction() *domain.Transaction {
	return &domain.Transaction{
		ID:                 req.TransactionID,
		ClientID:           req.ClientID,
		BeneficiaryID:      req.BeneficiaryID,
		BeneficiaryCountry: req.Country,
		Amount:             *req.Amount,
		Currency:           req.Currency,
		Timestamp:          *req.TransactionTime,
	}
}

// CalculateScore handles POST /v1/scores/calculate.
func (h *Handler) CalculateScore(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req ScoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	score, err := h.deps.Scorer.CalculateRiskScore(ctx, req.Transaction())
	if err != nil {
		slog.Error("risk score calculation failed",
			"transaction_id", req.TransactionID,
			"trace_id", GetTraceID(ctx),
			"error", err,
		)
		writeError(w, http.StatusInternalServerError, "risk score calculation failed")
		return
	}

	writeJSON(w, http.StatusOK, score)
}

// GetScore handles GET /v1/scores/{transactionId}.
func (h *Handler) GetScore(w http.ResponseWriter, r *http.Request) {
	if h.deps.Scores == nil {
		writeError(w, http.StatusServiceUnavailable, "score store not available")
		return
	}

	txID := chi.URLParam(r, "transactionId")
	rec, err := h.deps.Scores.GetRiskScore(r.Context(), txID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) || errors.Is(err, repository.ErrInvalidInput) {
			writeError(w, http.StatusNotFound, "risk score not found")
			return
		}
		slog.Error("failed to get risk score", "transaction_id", txID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get risk score")
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

// ScoresHealth handles GET /v1/scores/health.
func (h *Handler) ScoresHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// Health returns server health status. A failing backing service degrades
// the status but never the HTTP code.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	components := make(map[string]string, len(h.deps.Checks))

	for name, p := range h.deps.Checks {
		if err := p.Ping(r.Context()); err != nil {
			slog.Warn("health check failed", "component", name, "error", err)
			components[name] = "down"
			status = "degraded"
			continue
		}
		components[name] = "up"
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":     status,
		"version":    h.version,
		"components": components,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	for name, p := range h.deps.Checks {
		if err := p.Ping(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"ready": "false",
				"error": fmt.Sprintf("%s unavailable", name),
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

// ListBreakers handles GET /v1/admin/breakers.
func (h *Handler) ListBreakers(w http.ResponseWriter, r *http.Request) {
	snapshots := []circuit.Snapshot{}
	if h.deps.Breakers != nil {
		snapshots = h.deps.Breakers.Snapshots()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"breakers": snapshots,
		"count":    len(snapshots),
	})
}

// ResetBreaker handles POST /v1/admin/breakers/{name}/reset.
func (h *Handler) ResetBreaker(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if h.deps.Breakers == nil || !h.deps.Breakers.Reset(name) {
		writeError(w, http.StatusNotFound, "breaker not found")
		return
	}

	slog.Info("circuit breaker reset by operator",
		"breaker", name,
		"request_id", GetRequestID(r.Context()),
	)
	writeJSON(w, http.StatusOK, map[string]string{
		"name":  name,
		"state": circuit.StateClosed.String(),
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
