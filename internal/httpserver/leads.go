package httpserver

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ILLUVRSE/leadops/internal/campaign"
	"github.com/ILLUVRSE/leadops/internal/models"
	"github.com/ILLUVRSE/leadops/internal/routing"
)

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var lead models.LeadSnapshot
	if err := decodeJSON(w, r, &lead); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	decision, err := s.deps.Engine.Analyze(r.Context(), lead)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, decision)
}

func (s *Server) handleDispatch(w http.ResponseWriter, r *http.Request) {
	var lead models.LeadSnapshot
	if err := decodeJSON(w, r, &lead); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := s.deps.Dispatcher.Dispatch(r.Context(), lead)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	status := http.StatusOK
	if res.Held {
		status = http.StatusAccepted
	}
	respondJSON(w, status, res)
}

func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	var fb models.PerformanceFeedback
	if err := decodeJSON(w, r, &fb); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.deps.Dispatcher.RecordOutcome(r.Context(), fb); err != nil {
		s.respondErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.deps.Engine.Rules())
}

func (s *Server) handleGetRule(w http.ResponseWriter, r *http.Request) {
	rule, err := s.deps.Engine.Rule(chi.URLParam(r, "id"))
	if err != nil {
		s.respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, rule)
}

func (s *Server) handleUpsertRule(w http.ResponseWriter, r *http.Request) {
	var spec routing.RuleSpec
	if err := decodeJSON(w, r, &spec); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := spec.Validate(); err != nil {
		s.respondErr(w, err)
		return
	}
	if err := s.deps.Engine.AddRoutingRule(spec.Rule()); err != nil {
		s.respondErr(w, err)
		return
	}
	s.logger.Printf("rule %s upserted by %s", spec.ID, actor(r, "anonymous"))
	rule, err := s.deps.Engine.Rule(spec.ID)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, rule)
}

func (s *Server) handleRemoveRule(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !s.deps.Engine.RemoveRoutingRule(id) {
		s.respondErr(w, models.NotFound("rule", id))
		return
	}
	s.logger.Printf("rule %s removed by %s", id, actor(r, "anonymous"))
	w.WriteHeader(http.StatusNoContent)
}

type createCampaignRequest struct {
	Name           string                `json:"name"`
	Type           string                `json:"type"`
	TargetAudience models.TargetAudience `json:"targetAudience"`
	Steps          []models.CampaignStep `json:"steps"`
}

func (s *Server) handleCreateCampaign(w http.ResponseWriter, r *http.Request) {
	var req createCampaignRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	c, err := s.deps.Scheduler.CreateCampaign(r.Context(), req.Name, req.Type, req.TargetAudience, req.Steps)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, c)
}

func (s *Server) handleListCampaigns(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.deps.Scheduler.Campaigns())
}

func (s *Server) handleGetCampaign(w http.ResponseWriter, r *http.Request) {
	c, err := s.deps.Scheduler.Campaign(chi.URLParam(r, "id"))
	if err != nil {
		s.respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, c)
}

func (s *Server) handleCampaignPerformance(w http.ResponseWriter, r *http.Request) {
	perf, err := s.deps.Scheduler.GetCampaignPerformance(chi.URLParam(r, "id"))
	if err != nil {
		s.respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, perf)
}

func (s *Server) handleCampaignStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status models.CampaignStatus `json:"status"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	id := chi.URLParam(r, "id")
	if err := s.deps.Scheduler.SetCampaignStatus(r.Context(), id, req.Status); err != nil {
		s.respondErr(w, err)
		return
	}
	s.handleGetCampaign(w, r)
}

func (s *Server) handleEnroll(w http.ResponseWriter, r *http.Request) {
	var req struct {
		LeadID string `json:"leadId"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	p, err := s.deps.Scheduler.EnrollLead(r.Context(), chi.URLParam(r, "id"), req.LeadID)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

func (s *Server) handleRunCampaign(w http.ResponseWriter, r *http.Request) {
	var req struct {
		LeadIDs []string `json:"leadIds"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	results, err := s.deps.Scheduler.RunCampaign(r.Context(), chi.URLParam(r, "id"), req.LeadIDs)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, results)
}

func (s *Server) handleListCallbacks(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.deps.Scheduler.Callbacks(r.URL.Query().Get("leadId")))
}

func (s *Server) handleUpcomingAppointments(w http.ResponseWriter, r *http.Request) {
	hours := 24.0
	if v := r.URL.Query().Get("hours"); v != "" {
		h, err := strconv.ParseFloat(v, 64)
		if err != nil || h <= 0 {
			respondError(w, http.StatusBadRequest, "hours must be a positive number")
			return
		}
		hours = h
	}
	respondJSON(w, http.StatusOK, s.deps.Scheduler.GetUpcomingAppointments(hours))
}

func (s *Server) handleGetAppointment(w http.ResponseWriter, r *http.Request) {
	a, err := s.deps.Scheduler.Appointment(chi.URLParam(r, "id"))
	if err != nil {
		s.respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, a)
}

func (s *Server) handleBookAppointment(w http.ResponseWriter, r *http.Request) {
	var req campaign.AppointmentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	a, err := s.deps.Scheduler.BookAppointment(r.Context(), req)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, a)
}

type appointmentActionRequest struct {
	ScheduledAt time.Time `json:"scheduledAt"`
	Reason      string    `json:"reason"`
}

func (s *Server) handleAppointmentAction(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req appointmentActionRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	var (
		a   models.Appointment
		err error
	)
	ctx := r.Context()
	switch chi.URLParam(r, "action") {
	case "confirm":
		a, err = s.deps.Scheduler.ConfirmAppointment(ctx, id)
	case "reschedule":
		a, err = s.deps.Scheduler.RescheduleAppointment(ctx, id, req.ScheduledAt, req.Reason)
	case "cancel":
		a, err = s.deps.Scheduler.CancelAppointment(ctx, id, req.Reason)
	case "complete":
		a, err = s.deps.Scheduler.CompleteAppointment(ctx, id)
	case "no-show":
		a, err = s.deps.Scheduler.MarkNoShow(ctx, id)
	default:
		respondError(w, http.StatusNotFound, "unknown appointment action")
		return
	}
	if err != nil {
		s.respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, a)
}
