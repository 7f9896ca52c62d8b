package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/ILLUVRSE/leadops/internal/auth"
	"github.com/ILLUVRSE/leadops/internal/campaign"
	"github.com/ILLUVRSE/leadops/internal/dispatch"
	"github.com/ILLUVRSE/leadops/internal/models"
	"github.com/ILLUVRSE/leadops/internal/optimizer"
	"github.com/ILLUVRSE/leadops/internal/routing"
	"github.com/ILLUVRSE/leadops/internal/supervisor"
)

// Pinger reports whether an external store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Dependencies struct {
	Engine     *routing.Engine
	Scheduler  *campaign.Scheduler
	Optimizer  *optimizer.Optimizer
	Supervisor *supervisor.Supervisor
	Dispatcher *dispatch.Dispatcher
	// Verifier guards operator mutations. Nil leaves every route open.
	Verifier *auth.Verifier
	Store    Pinger
}

type Server struct {
	deps    Dependencies
	timeout time.Duration
	logger  *log.Logger
}

func New(deps Dependencies, timeout time.Duration, logger *log.Logger) *Server {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = log.New(os.Stdout, "[http] ", log.LstdFlags)
	}
	return &Server{deps: deps, timeout: timeout, logger: logger}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.timeout))

	r.Get("/health", s.handleHealth)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/leads/analyze", s.handleAnalyze)
		r.Post("/leads/dispatch", s.handleDispatch)
		r.Post("/feedback", s.handleFeedback)

		r.Get("/rules", s.handleListRules)
		r.Get("/rules/{id}", s.handleGetRule)

		r.Get("/campaigns", s.handleListCampaigns)
		r.Get("/campaigns/{id}", s.handleGetCampaign)
		r.Get("/campaigns/{id}/performance", s.handleCampaignPerformance)
		r.Post("/campaigns/{id}/enroll", s.handleEnroll)
		r.Get("/callbacks", s.handleListCallbacks)
		r.Get("/appointments/upcoming", s.handleUpcomingAppointments)
		r.Get("/appointments/{id}", s.handleGetAppointment)
		r.Post("/appointments", s.handleBookAppointment)
		r.Post("/appointments/{id}/{action}", s.handleAppointmentAction)

		r.Get("/optimizer/summary", s.handleOptimizerSummary)
		r.Get("/optimizer/recommendations", s.handleListRecommendations)
		r.Get("/optimizer/results", s.handleListResults)

		r.Get("/supervisor/dashboard", s.handleDashboard)
		r.Get("/supervisor/health", s.handleHealthScore)
		r.Get("/supervisor/agents", s.handleListAgents)
		r.Put("/supervisor/agents/{id}/status", s.handleUpdateAgentStatus)
		r.Get("/supervisor/alerts", s.handleListAlerts)
		r.Get("/supervisor/overrides", s.handleListOverrides)
		r.Get("/supervisor/directives", s.handleListDirectives)

		r.Group(func(r chi.Router) {
			r.Use(s.operatorAuth)
			r.Post("/rules", s.handleUpsertRule)
			r.Delete("/rules/{id}", s.handleRemoveRule)

			r.Post("/campaigns", s.handleCreateCampaign)
			r.Put("/campaigns/{id}/status", s.handleCampaignStatus)
			r.Post("/campaigns/{id}/run", s.handleRunCampaign)

			r.Post("/optimizer/cycle", s.handleRunCycle)
			r.Post("/optimizer/recommendations/{id}/approve", s.handleApproveRecommendation)
			r.Post("/optimizer/recommendations/{id}/reject", s.handleRejectRecommendation)
			r.Post("/optimizer/results/{id}/notes", s.handleAddResultNote)

			r.Post("/supervisor/alerts", s.handleRaiseAlert)
			r.Post("/supervisor/alerts/{id}/ack", s.handleAcknowledgeAlert)
			r.Post("/supervisor/alerts/{id}/resolve", s.handleResolveAlert)
			r.Post("/supervisor/overrides", s.handleIssueOverride)
			r.Post("/supervisor/overrides/{id}/cancel", s.handleCancelOverride)
			r.Post("/supervisor/directives", s.handleIssueDirective)
			r.Delete("/supervisor/directives/{id}", s.handleRevokeDirective)
			r.Post("/supervisor/reports", s.handleGenerateReport)
		})
	})

	return r
}

func (s *Server) operatorAuth(next http.Handler) http.Handler {
	if s.deps.Verifier == nil {
		return next
	}
	return s.deps.Verifier.RequireRole(auth.RoleOperator)(next)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	status := map[string]interface{}{
		"ok":   true,
		"time": time.Now().UTC(),
	}
	if s.deps.Supervisor != nil {
		status["systemStatus"] = s.deps.Supervisor.SystemStatus()
	}
	if s.deps.Store != nil {
		if err := s.deps.Store.Ping(ctx); err != nil {
			status["ok"] = false
			status["db"] = err.Error()
			respondJSON(w, http.StatusServiceUnavailable, status)
			return
		}
	}
	respondJSON(w, http.StatusOK, status)
}

// actor names the caller for audit fields, preferring the verified principal.
func actor(r *http.Request, fallback string) string {
	if p := auth.FromContext(r.Context()); p != nil {
		return p.Subject
	}
	return fallback
}

func queryBool(r *http.Request, key string) bool {
	b, _ := strconv.ParseBool(r.URL.Query().Get(key))
	return b
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}

// respondErr maps domain errors onto status codes.
func (s *Server) respondErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrValidation):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, models.ErrNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, campaign.ErrPaused):
		respondError(w, http.StatusConflict, err.Error())
	default:
		s.logger.Printf("internal error: %v", err)
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}
