package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ILLUVRSE/leadops/internal/models"
	"github.com/ILLUVRSE/leadops/internal/supervisor"
)

func (s *Server) handleOptimizerSummary(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.deps.Optimizer.Summary())
}

func (s *Server) handleListRecommendations(w http.ResponseWriter, r *http.Request) {
	status := models.RecommendationStatus(r.URL.Query().Get("status"))
	out := []models.OptimizationRecommendation{}
	for _, rec := range s.deps.Optimizer.Recommendations() {
		if status == "" || rec.Status == status {
			out = append(out, rec)
		}
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleListResults(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.deps.Optimizer.Results())
}

func (s *Server) handleRunCycle(w http.ResponseWriter, r *http.Request) {
	report, err := s.deps.Optimizer.RunOptimizationCycle(r.Context())
	if err != nil {
		s.respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, report)
}

func (s *Server) handleApproveRecommendation(w http.ResponseWriter, r *http.Request) {
	rec, err := s.deps.Optimizer.ApproveRecommendation(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, rec)
}

func (s *Server) handleRejectRecommendation(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Reason string `json:"reason"`
	}
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	rec, err := s.deps.Optimizer.RejectRecommendation(chi.URLParam(r, "id"), req.Reason)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, rec)
}

func (s *Server) handleAddResultNote(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Note string `json:"note"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.deps.Optimizer.AddResultNote(chi.URLParam(r, "id"), req.Note); err != nil {
		s.respondErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.deps.Supervisor.GetDashboardMetrics(r.Context()))
}

func (s *Server) handleHealthScore(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"score":  s.deps.Supervisor.GetSystemHealthScore(),
		"status": s.deps.Supervisor.SystemStatus(),
	})
}

func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.deps.Supervisor.Agents())
}

func (s *Server) handleUpdateAgentStatus(w http.ResponseWriter, r *http.Request) {
	var req supervisor.AgentStatusUpdate
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	a, err := s.deps.Supervisor.UpdateAgentStatus(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, a)
}

func (s *Server) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.deps.Supervisor.GetAlerts(queryBool(r, "all")))
}

func (s *Server) handleRaiseAlert(w http.ResponseWriter, r *http.Request) {
	var req models.SystemAlert
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	a, err := s.deps.Supervisor.RaiseAlert(r.Context(), req)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, a)
}

func (s *Server) handleAcknowledgeAlert(w http.ResponseWriter, r *http.Request) {
	a, err := s.deps.Supervisor.AcknowledgeAlert(chi.URLParam(r, "id"), actor(r, "operator"))
	if err != nil {
		s.respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, a)
}

func (s *Server) handleResolveAlert(w http.ResponseWriter, r *http.Request) {
	a, err := s.deps.Supervisor.ResolveAlert(chi.URLParam(r, "id"))
	if err != nil {
		s.respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, a)
}

func (s *Server) handleListOverrides(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.deps.Supervisor.GetOverrides(queryBool(r, "active")))
}

func (s *Server) handleIssueOverride(w http.ResponseWriter, r *http.Request) {
	var req supervisor.OverrideRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	req.IssuedBy = actor(r, req.IssuedBy)
	o, err := s.deps.Supervisor.IssueSystemOverride(r.Context(), req)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, o)
}

func (s *Server) handleCancelOverride(w http.ResponseWriter, r *http.Request) {
	o, err := s.deps.Supervisor.CancelOverride(r.Context(), chi.URLParam(r, "id"), actor(r, "operator"))
	if err != nil {
		s.respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, o)
}

func (s *Server) handleListDirectives(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.deps.Supervisor.Directives(queryBool(r, "active")))
}

func (s *Server) handleIssueDirective(w http.ResponseWriter, r *http.Request) {
	var req supervisor.DirectiveRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	req.IssuedBy = actor(r, req.IssuedBy)
	d, err := s.deps.Supervisor.IssueDirective(r.Context(), req)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, d)
}

func (s *Server) handleRevokeDirective(w http.ResponseWriter, r *http.Request) {
	d, err := s.deps.Supervisor.RevokeDirective(chi.URLParam(r, "id"))
	if err != nil {
		s.respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, d)
}

type reportRequest struct {
	Type   supervisor.ReportType `json:"type"`
	Period models.DateRange      `json:"period"`
}

func (s *Server) handleGenerateReport(w http.ResponseWriter, r *http.Request) {
	var req reportRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	rep, err := s.deps.Supervisor.GenerateExecutiveReport(r.Context(), req.Type, req.Period)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, rep)
}
