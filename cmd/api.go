package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/sells-group/payout-recon/internal/ledger"
	"github.com/sells-group/payout-recon/internal/metrics"
	"github.com/sells-group/payout-recon/internal/model"
	"github.com/sells-group/payout-recon/internal/override"
	"github.com/sells-group/payout-recon/internal/report"
)

const maxBodyBytes = 32 << 20

// api serves one override session shared by every request.
type api struct {
	env *reconEnv
}

// newRouter registers every route on a chi router.
func newRouter(env *reconEnv) http.Handler {
	a := &api{env: env}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "Authorization"},
		MaxAge:         300,
	}))

	r.Get("/health", a.health)
	r.Get("/runs", a.listRuns)
	r.Post("/runs", a.createRun)
	r.Get("/overrides", a.listOverrides)
	r.Put("/overrides", a.putOverride)
	r.Post("/overrides/export", a.exportOverrides)
	r.Delete("/overrides/{client}/{order}", a.deleteOverride)
	r.Post("/exclusions", a.addExclusion)
	r.Delete("/exclusions/{client}/{order}", a.removeExclusion)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

// writeJSON encodes v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %s", err))
		return false
	}
	return true
}

// GET /health
func (a *api) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type runRequest struct {
	Account string                    `json:"account"`
	Records []model.OperationalRecord `json:"records"`
	From    string                    `json:"from,omitempty"`
	To      string                    `json:"to,omitempty"`
}

// POST /runs reconciles the posted records against a fresh ledger snapshot.
func (a *api) createRun(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if len(req.Records) == 0 {
		writeError(w, http.StatusBadRequest, "records is required")
		return
	}
	window, err := parseWindow(req.From, req.To)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := a.env.reconcile(r.Context(), req.Account, req.Records, window)
	if err != nil {
		status := http.StatusInternalServerError
		if ledger.IsUnavailable(err) {
			status = http.StatusServiceUnavailable
		}
		zap.L().Error("run failed", zap.String("account", req.Account), zap.Error(err))
		writeError(w, status, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := report.WriteJSON(w, res); err != nil {
		zap.L().Error("write run response", zap.String("run_id", res.RunID), zap.Error(err))
	}
}

// GET /runs?limit=N
func (a *api) listRuns(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	runs, err := a.env.Store.ListRuns(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if runs == nil {
		runs = []model.RunSummary{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

type sessionResponse struct {
	Overrides  []model.Override `json:"overrides"`
	Exclusions []model.Key      `json:"exclusions"`
}

// GET /overrides
func (a *api) listOverrides(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, sessionResponse{
		Overrides:  a.env.Overrides.All(),
		Exclusions: a.env.Overrides.Excluded(),
	})
}

type overrideRequest struct {
	Client string `json:"client_code"`
	Order  string `json:"order_number"`
	Status string `json:"status"`
	Reason string `json:"reason"`
}

// PUT /overrides records one manual decision in the session.
func (a *api) putOverride(w http.ResponseWriter, r *http.Request) {
	var req overrideRequest
	if !decodeBody(w, r, &req) {
		return
	}
	key := model.Key{Client: req.Client, Order: req.Order}
	status := model.PaymentStatus(strings.ToUpper(strings.TrimSpace(req.Status)))
	if err := a.env.Overrides.Set(key, status, req.Reason); err != nil {
		if override.IsValidation(err) {
			metrics.OverridesRejected.Inc()
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	ov, _ := a.env.Overrides.Get(key)
	writeJSON(w, http.StatusOK, ov)
}

// DELETE /overrides/{client}/{order}
func (a *api) deleteOverride(w http.ResponseWriter, r *http.Request) {
	a.env.Overrides.Delete(pathKey(r))
	w.WriteHeader(http.StatusNoContent)
}

// POST /overrides/export persists the session to the store.
func (a *api) exportOverrides(w http.ResponseWriter, r *http.Request) {
	if err := a.env.Overrides.Export(r.Context(), a.env.Store); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{
		"overrides":  len(a.env.Overrides.All()),
		"exclusions": len(a.env.Overrides.Excluded()),
	})
}

type keyRequest struct {
	Client string `json:"client_code"`
	Order  string `json:"order_number"`
}

// POST /exclusions confirms that a flagged order is dropped.
func (a *api) addExclusion(w http.ResponseWriter, r *http.Request) {
	var req keyRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := a.env.Overrides.Exclude(model.Key{Client: req.Client, Order: req.Order}); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"exclusions": a.env.Overrides.Excluded()})
}

// DELETE /exclusions/{client}/{order}
func (a *api) removeExclusion(w http.ResponseWriter, r *http.Request) {
	a.env.Overrides.Include(pathKey(r))
	w.WriteHeader(http.StatusNoContent)
}

func pathKey(r *http.Request) model.Key {
	return model.Key{Client: chi.URLParam(r, "client"), Order: chi.URLParam(r, "order")}
}
