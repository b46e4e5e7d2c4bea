// Package httpapi exposes the rewrite core over HTTP: POST /evaluate runs
// a single evaluation against the rules in the request body, or the host's
// currently loaded rules when the body carries none, GET
// /status reports liveness, and GET /metrics (wired by the caller via
// promhttp) exports the counters and histograms this package records.
package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/chilledornaments/htaccess-tester-core/internal/config"
	"github.com/chilledornaments/htaccess-tester-core/pkg/rewrite"
)

var (
	evaluateRequestsMetric = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "evaluate_requests_total",
			Help: "Number of /evaluate requests by outcome",
		},
		[]string{"status"},
	)
	evaluateDurationMetric = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name: "evaluate_duration_milliseconds",
			Help: "Duration of /evaluate requests",
		})
)

type evaluateRequest struct {
	URL             string            `json:"url"`
	Rules           string            `json:"rules"`
	ServerVariables map[string]string `json:"serverVariables"`
	Limits          *requestLimits    `json:"limits"`
}

// requestLimits mirrors rewrite.Limits for callers that want to override
// the host's configured defaults for a single call.
type requestLimits struct {
	MaxIterations         int `json:"maxIterations"`
	MaxURLLength          int `json:"maxUrlLength"`
	MaxRegexSubjectLength int `json:"maxRegexSubjectLength"`
	MaxRuleCount          int `json:"maxRuleCount"`
}

func (l requestLimits) asLimits() rewrite.Limits {
	return rewrite.Limits{
		MaxIterations:         l.MaxIterations,
		MaxURLLength:          l.MaxURLLength,
		MaxRegexSubjectLength: l.MaxRegexSubjectLength,
		MaxRuleCount:          l.MaxRuleCount,
	}
}

type evaluateResponse struct {
	FinalURL   string             `json:"finalUrl"`
	Status     rewrite.Status     `json:"status"`
	StatusCode *int               `json:"statusCode"`
	Trace      []rewrite.TraceLine `json:"trace"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// HandleEvaluate runs every request's URL against the request's own rules
// and limits when it supplies them, and otherwise against the rules and
// limits the store currently holds. Each request is logged with a
// correlation ID and counted by outcome status.
func HandleEvaluate(logger *slog.Logger, store *config.Store) http.Handler {
	logger = logger.WithGroup("evaluate")

	f := func(w http.ResponseWriter, r *http.Request) {
		correlationID := uuid.New().String()
		reqLogger := logger.With("correlation_id", correlationID)

		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		var req evaluateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			reqLogger.Warn("malformed request body", "err", err)
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed request body"})
			return
		}

		cfg := store.Get()

		rulesText := cfg.RulesText
		if strings.TrimSpace(req.Rules) != "" {
			rulesText = req.Rules
		}

		limits := cfg.Limits.AsLimits()
		if req.Limits != nil {
			limits = req.Limits.asLimits()
		}

		start := time.Now()
		out, err := rewrite.Evaluate(rewrite.Input{
			URL:             req.URL,
			Rules:           rulesText,
			ServerVariables: req.ServerVariables,
		}, limits)
		evaluateDurationMetric.Observe(float64(time.Since(start).Milliseconds()))

		if err != nil {
			reqLogger.Info("rejected malformed evaluate input", "url", req.URL, "err", err)
			evaluateRequestsMetric.With(prometheus.Labels{"status": "rejected"}).Inc()
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
			return
		}

		reqLogger.Debug("evaluated request", "url", req.URL, "final_url", out.FinalURL, "status", out.Status)
		evaluateRequestsMetric.With(prometheus.Labels{"status": string(out.Status)}).Inc()

		writeJSON(w, http.StatusOK, evaluateResponse{
			FinalURL:   out.FinalURL,
			Status:     out.Status,
			StatusCode: out.StatusCode,
			Trace:      out.Trace,
		})
	}

	return http.HandlerFunc(f)
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}
