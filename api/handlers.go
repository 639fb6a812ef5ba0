package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/seenimoa/barb/internal/backtest"
	"github.com/seenimoa/barb/internal/barbql"
	"github.com/seenimoa/barb/internal/datasource"
	"github.com/seenimoa/barb/internal/market"
	"github.com/seenimoa/barb/internal/query"
	"github.com/seenimoa/barb/internal/report"
	"github.com/seenimoa/barb/internal/table"
	"github.com/seenimoa/barb/pkg/models"
)

// ============================================================
// Request / Response types
// ============================================================

// APIResponse is the standard JSON envelope. Query and backtest failures
// also carry the structured error object in ErrorDetail.
type APIResponse struct {
	Success     bool         `json:"success"`
	Data        any          `json:"data,omitempty"`
	Error       string       `json:"error,omitempty"`
	ErrorDetail *query.Error `json:"error_detail,omitempty"`
}

// QueryRequest is the body for POST /api/v1/query.
type QueryRequest struct {
	Symbol string          `json:"symbol"`
	Query  json.RawMessage `json:"query"`
}

// ValidateRequest is the body for POST /api/v1/validate.
type ValidateRequest struct {
	Query json.RawMessage `json:"query"`
}

// ValidateResponse reports every problem found in a query.
type ValidateResponse struct {
	Valid  bool             `json:"valid"`
	Errors []barbql.Finding `json:"errors"`
}

// BacktestRequest is the body for POST /api/v1/backtest.
type BacktestRequest struct {
	Symbol    string          `json:"symbol"`
	Strategy  json.RawMessage `json:"strategy"`
	Session   string          `json:"session,omitempty"`
	Period    string          `json:"period,omitempty"`
	Timeframe string          `json:"timeframe,omitempty"`
}

// errNotFound is the error type reported for an instrument without data.
const errNotFound = "NotFound"

// ============================================================
// Handlers
// ============================================================

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data: map[string]any{
			"status":      "ok",
			"version":     Version,
			"source":      s.store.Source().Name(),
			"instruments": len(s.store.Registry().Symbols()),
			"functions":   len(s.reg.Names()),
			"ws_clients":  s.hub.count(),
		},
	})
}

func (s *Server) handleFunctions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: s.reg.Catalogue()})
}

func (s *Server) handleInstruments(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: s.store.Registry().List()})
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	if !decodeBody(w, r, &req) {
		return
	}
	resp, err := s.runQuery(r.Context(), req)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: resp})
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	var req ValidateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: s.validate(req.Query)})
}

func (s *Server) handleBacktest(w http.ResponseWriter, r *http.Request) {
	var req BacktestRequest
	if !decodeBody(w, r, &req) {
		return
	}
	res, err := s.runBacktest(r.Context(), req)
	if err != nil {
		writeFailure(w, err)
		return
	}
	if r.URL.Query().Get("format") == "html" {
		s.writeReport(w, res, req.Strategy)
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: res})
}

// writeReport renders res as an HTML page.
func (s *Server) writeReport(w http.ResponseWriter, res *models.BacktestResult, raw json.RawMessage) {
	strat, _ := backtest.DecodeStrategy(raw)
	cfg := report.DefaultConfig()
	cfg.Version = Version

	var buf bytes.Buffer
	if err := report.Backtest(&buf, res, strat, cfg); err != nil {
		s.log.WithError(err).Error("Backtest report failed")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

// ============================================================
// Operations shared by HTTP and WebSocket
// ============================================================

func (s *Server) runQuery(ctx context.Context, req QueryRequest) (resp *query.Response, err error) {
	started := time.Now()
	defer func() {
		s.metrics.observeQuery(resp, err, time.Since(started))
	}()

	if len(bytes.TrimSpace(req.Query)) == 0 {
		return nil, &query.Error{Type: query.TypeValidation, Step: "request", Message: "query is required"}
	}
	q, err := query.Decode(req.Query)
	if err != nil {
		return nil, err
	}
	if err := query.Validate(q, s.reg); err != nil {
		return nil, query.AsError(err)
	}
	t, sessions, err := s.load(ctx, req.Symbol)
	if err != nil {
		return nil, err
	}
	return s.exec.Execute(q, t, sessions)
}

func (s *Server) validate(raw json.RawMessage) ValidateResponse {
	findings := query.Check(raw, s.reg)
	return ValidateResponse{Valid: len(findings) == 0, Errors: findings}
}

func (s *Server) runBacktest(ctx context.Context, req BacktestRequest) (res *models.BacktestResult, err error) {
	started := time.Now()
	defer func() {
		s.metrics.observeBacktest(res, err, time.Since(started))
	}()

	if len(bytes.TrimSpace(req.Strategy)) == 0 {
		return nil, &query.Error{Type: query.TypeValidation, Step: "request", Message: "strategy is required"}
	}
	strat, err := backtest.DecodeStrategy(req.Strategy)
	if err != nil {
		return nil, err
	}
	if err := strat.Validate(s.reg); err != nil {
		return nil, err
	}
	t, sessions, err := s.load(ctx, req.Symbol)
	if err != nil {
		return nil, err
	}
	return s.engine.Run(t, strat, backtest.RunOptions{
		Symbol:    market.NormalizeSymbol(req.Symbol),
		Sessions:  sessions,
		Session:   req.Session,
		Period:    req.Period,
		Timeframe: models.Timeframe(req.Timeframe),
	})
}

// load returns symbol's bars and sessions. Unregistered symbols load with
// no sessions.
func (s *Server) load(ctx context.Context, symbol string) (*table.Table, market.Sessions, error) {
	if market.NormalizeSymbol(symbol) == "" {
		return nil, nil, &query.Error{Type: query.TypeValidation, Step: "request", Message: "symbol is required"}
	}
	t, err := s.store.Load(ctx, symbol)
	if err != nil {
		return nil, nil, err
	}
	sessions, _ := s.store.Registry().Sessions(symbol)
	return t, sessions, nil
}

// ============================================================
// Helpers
// ============================================================

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.WithError(err).Warn("failed to write JSON response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, APIResponse{
		Success: false,
		Error:   msg,
	})
}

// writeFailure reports a query or backtest failure with its error object.
func writeFailure(w http.ResponseWriter, err error) {
	detail := describe(err)
	writeJSON(w, statusFor(err, detail), APIResponse{
		Success:     false,
		Error:       detail.Message,
		ErrorDetail: detail,
	})
}

// describe turns any failure into the structured error object.
func describe(err error) *query.Error {
	switch {
	case errors.Is(err, datasource.ErrNotFound):
		return &query.Error{Type: errNotFound, Step: "load", Message: err.Error()}
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return &query.Error{Type: query.TypeInternal, Step: "load", Message: fmt.Sprintf("request cancelled: %v", err)}
	}
	return query.AsError(err)
}

func statusFor(err error, detail *query.Error) int {
	switch {
	case detail.Type == errNotFound:
		return http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case detail.Type == query.TypeInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}
