package campaign

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ILLUVRSE/leadops/internal/audit"
	"github.com/ILLUVRSE/leadops/internal/messaging"
	"github.com/ILLUVRSE/leadops/internal/models"
)

// PollResult counts the work done by one processing pass.
type PollResult struct {
	Attempted int `json:"attempted"`
	Succeeded int `json:"succeeded"`
	Retrying  int `json:"retrying"`
	Failed    int `json:"failed"`
}

// ScheduleCallback creates a pending callback. maxAttempts <= 0 uses the configured default.
func (s *Scheduler) ScheduleCallback(ctx context.Context, leadID string, at time.Time, campaignID string, maxAttempts int) (models.Callback, error) {
	if strings.TrimSpace(leadID) == "" {
		return models.Callback{}, models.Validation("lead id is required")
	}
	if at.IsZero() {
		return models.Callback{}, models.Validation("callback time is required")
	}
	if maxAttempts <= 0 {
		maxAttempts = s.cfg.DefaultMaxAttempts
	}

	s.mu.Lock()
	cb := &models.Callback{
		ID:          uuid.NewString(),
		LeadID:      leadID,
		CampaignID:  campaignID,
		ScheduledAt: at.UTC(),
		Status:      models.CallbackPending,
		MaxAttempts: maxAttempts,
		CreatedAt:   s.now(),
	}
	s.callbacks[cb.ID] = cb
	out := *cb
	s.mu.Unlock()

	s.recordStatus(ctx, audit.StatusChange{EntityType: "callback", EntityID: out.ID, LeadID: leadID, To: string(out.Status)})
	return out, nil
}

func (s *Scheduler) Callback(id string) (models.Callback, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cb, ok := s.callbacks[id]
	if !ok {
		return models.Callback{}, models.NotFound("callback", id)
	}
	return copyCallback(cb), nil
}

// Callbacks lists callbacks by scheduled time. An empty leadID lists all.
func (s *Scheduler) Callbacks(leadID string) []models.Callback {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Callback, 0, len(s.callbacks))
	for _, cb := range s.callbacks {
		if leadID != "" && cb.LeadID != leadID {
			continue
		}
		out = append(out, copyCallback(cb))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ScheduledAt.Equal(out[j].ScheduledAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].ScheduledAt.Before(out[j].ScheduledAt)
	})
	return out
}

// ProcessPendingCallbacks attempts every pending callback that is due. A failed
// attempt stays pending until MaxAttempts is reached; there is no delay between
// attempts beyond the poll cadence. Callbacks being attempted by a concurrent
// pass are skipped.
func (s *Scheduler) ProcessPendingCallbacks(ctx context.Context) PollResult {
	s.mu.Lock()
	now := s.now()
	var due []models.Callback
	for _, cb := range s.callbacks {
		if cb.Status == models.CallbackPending && !cb.ScheduledAt.After(now) && !s.claimed[callbackClaim(cb.ID)] {
			s.claimed[callbackClaim(cb.ID)] = true
			due = append(due, copyCallback(cb))
		}
	}
	s.mu.Unlock()
	sort.Slice(due, func(i, j int) bool { return due[i].ScheduledAt.Before(due[j].ScheduledAt) })

	var res PollResult
	for n, cb := range due {
		if ctx.Err() != nil {
			s.mu.Lock()
			for _, rest := range due[n:] {
				delete(s.claimed, callbackClaim(rest.ID))
			}
			s.mu.Unlock()
			break
		}
		ok, err := s.attempter.Attempt(ctx, cb)
		if err != nil {
			s.logger.Printf("callback %s for lead %s attempt failed: %v", cb.ID, cb.LeadID, err)
			ok = false
		}

		s.mu.Lock()
		delete(s.claimed, callbackClaim(cb.ID))
		cur, exists := s.callbacks[cb.ID]
		if !exists || cur.Status != models.CallbackPending {
			s.mu.Unlock()
			continue
		}
		attemptAt := s.now()
		cur.Attempts++
		cur.LastAttemptAt = &attemptAt
		from := cur.Status
		switch {
		case ok:
			cur.Status = models.CallbackCompleted
		case cur.Attempts >= cur.MaxAttempts:
			cur.Status = models.CallbackFailed
			cur.Notes = fmt.Sprintf("gave up after %d attempts", cur.Attempts)
		}
		to := cur.Status
		attempts := cur.Attempts
		s.mu.Unlock()

		res.Attempted++
		switch to {
		case models.CallbackCompleted:
			res.Succeeded++
		case models.CallbackFailed:
			res.Failed++
			s.logger.Printf("callback %s for lead %s failed after %d attempts", cb.ID, cb.LeadID, attempts)
		default:
			res.Retrying++
		}
		if to != from {
			s.recordStatus(ctx, audit.StatusChange{EntityType: "callback", EntityID: cb.ID, LeadID: cb.LeadID, From: string(from), To: string(to)})
		}
	}
	return res
}

func callbackClaim(id string) string { return "callback:" + id }

// notifyCallback is the default attempter: it texts the lead that the team is
// calling back.
func (s *Scheduler) notifyCallback(ctx context.Context, cb models.Callback) (bool, error) {
	if s.sender == nil {
		return false, fmt.Errorf("no message sender configured")
	}
	info, ok := s.contacts.Contact(cb.LeadID)
	if !ok || info.Phone == "" {
		return false, fmt.Errorf("lead %s has no phone number", cb.LeadID)
	}
	content := "We tried to reach you for your requested callback. Reply with a good time to talk."
	if info.Name != "" {
		content = fmt.Sprintf("Hi %s, we tried to reach you for your requested callback. Reply with a good time to talk.", info.Name)
	}
	return s.sender.Send(ctx, models.ChannelSMS, info.Phone, messaging.Message{Content: content})
}

func copyCallback(cb *models.Callback) models.Callback {
	out := *cb
	if cb.LastAttemptAt != nil {
		t := *cb.LastAttemptAt
		out.LastAttemptAt = &t
	}
	return out
}
