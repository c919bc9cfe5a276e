// Package httpapi exposes the orchestrator's Go API (C11) over HTTP for
// callers that are not the CLI. It is additive: every route is a thin
// adapter onto Orchestrator methods, not a parallel implementation.
package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/polzovatel/browser-orchestrator/internal/model"
	"github.com/polzovatel/browser-orchestrator/internal/orchestrator"
)

// Config controls router construction.
type Config struct {
	Logger     zerolog.Logger
	EnableCORS bool
	Gatherer   prometheus.Gatherer // nil disables /metrics
}

// NewRouter builds the chi router exposing the orchestrator's surface.
func NewRouter(orch *orchestrator.Orchestrator, cfg Config) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(requestLogger(cfg.Logger))
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(5 * time.Minute))

	if cfg.EnableCORS {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "POST"},
			AllowedHeaders: []string{"Accept", "Content-Type"},
			MaxAge:         300,
		}))
	}

	r.Get("/health", healthHandler)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/execute", executeHandler(orch))
		r.Post("/execute/{approach}", executeWithApproachHandler(orch))
		r.Get("/analytics", analyticsHandler(orch))
		r.Post("/history/clear", clearHistoryHandler(orch))
	})

	if cfg.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	return r
}

func requestLogger(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Dur("elapsed", time.Since(start)).
				Msg("http request")
		})
	}
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// actionRequestDTO mirrors model.ActionRequest with JSON tags for the wire
// format; the core model package stays free of marshaling concerns.
type actionRequestDTO struct {
	URL                 string         `json:"url"`
	TaskDescription     string         `json:"task_description"`
	ActionType          string         `json:"action_type"`
	TargetDescription   string         `json:"target_description"`
	ActionData          map[string]any `json:"action_data,omitempty"`
	ConfidenceThreshold float64        `json:"confidence_threshold,omitempty"`
	ShowBrowser         bool           `json:"show_browser,omitempty"`
	ForceApproach       string         `json:"force_approach,omitempty"`
}

func (d actionRequestDTO) toModel() model.ActionRequest {
	req := model.ActionRequest{
		URL:                 d.URL,
		TaskDescription:     d.TaskDescription,
		ActionType:          model.ActionType(d.ActionType),
		TargetDescription:   d.TargetDescription,
		ActionData:          d.ActionData,
		ConfidenceThreshold: d.ConfidenceThreshold,
		ShowBrowser:         d.ShowBrowser,
	}
	if d.ForceApproach != "" {
		approach := model.Approach(d.ForceApproach)
		req.ForceApproach = &approach
	}
	return req
}

type actionResultDTO struct {
	Success        bool           `json:"success"`
	ApproachUsed   string         `json:"approach_used,omitempty"`
	Confidence     float64        `json:"confidence"`
	ExecutionTime  string         `json:"execution_time"`
	ResultData     map[string]any `json:"result_data,omitempty"`
	ErrorMessage   string         `json:"error_message,omitempty"`
	Recommendation string         `json:"recommendation,omitempty"`
}

func toResultDTO(r model.ActionResult) actionResultDTO {
	return actionResultDTO{
		Success:        r.Success,
		ApproachUsed:   string(r.ApproachUsed),
		Confidence:     r.Confidence,
		ExecutionTime:  r.ExecutionTime.String(),
		ResultData:     r.ResultData,
		ErrorMessage:   r.ErrorMessage,
		Recommendation: r.Recommendation,
	}
}

func executeHandler(orch *orchestrator.Orchestrator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var dto actionRequestDTO
		if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}
		result, err := orch.Execute(r.Context(), dto.toModel())
		writeExecuteResult(w, result, err)
	}
}

func executeWithApproachHandler(orch *orchestrator.Orchestrator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		approach := model.Approach(chi.URLParam(r, "approach"))
		var dto actionRequestDTO
		if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}
		result, err := orch.ExecuteWithApproach(r.Context(), dto.toModel(), approach)
		writeExecuteResult(w, result, err)
	}
}

// writeExecuteResult always emits the result body. A failed ActionResult
// that carries an ErrorMessage is a 200 with Success=false, not an HTTP
// error; a non-nil err with an empty ErrorMessage is answered with 500.
func writeExecuteResult(w http.ResponseWriter, result model.ActionResult, err error) {
	status := http.StatusOK
	if err != nil && result.ErrorMessage == "" {
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, toResultDTO(result))
}

func analyticsHandler(orch *orchestrator.Orchestrator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, orch.Analytics())
	}
}

func clearHistoryHandler(orch *orchestrator.Orchestrator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orch.ClearHistory()
		writeJSON(w, http.StatusOK, map[string]bool{"cleared": true})
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
