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

type AppointmentRequest struct {
	LeadID          string    `json:"leadId"`
	CampaignID      string    `json:"campaignId,omitempty"`
	Type            string    `json:"type"`
	ScheduledAt     time.Time `json:"scheduledAt"`
	DurationMinutes int       `json:"durationMinutes,omitempty"`
	Notes           string    `json:"notes,omitempty"`
}

// BookAppointment creates the appointment and its reminder sequence in one step.
func (s *Scheduler) BookAppointment(ctx context.Context, req AppointmentRequest) (models.Appointment, error) {
	if strings.TrimSpace(req.LeadID) == "" {
		return models.Appointment{}, models.Validation("lead id is required")
	}
	if req.ScheduledAt.IsZero() {
		return models.Appointment{}, models.Validation("appointment time is required")
	}
	if req.Type == "" {
		req.Type = "consultation"
	}
	if req.DurationMinutes <= 0 {
		req.DurationMinutes = s.cfg.DefaultDurationMinutes
	}

	s.mu.Lock()
	now := s.now()
	appt := &models.Appointment{
		ID:              uuid.NewString(),
		LeadID:          req.LeadID,
		CampaignID:      req.CampaignID,
		Type:            req.Type,
		ScheduledAt:     req.ScheduledAt.UTC(),
		DurationMinutes: req.DurationMinutes,
		Status:          models.AppointmentScheduled,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if req.Notes != "" {
		appt.Notes = []string{req.Notes}
	}
	seq := &models.ReminderSequence{
		ID:            uuid.NewString(),
		AppointmentID: appt.ID,
		LeadID:        appt.LeadID,
		Status:        models.SequenceActive,
		CreatedAt:     now,
	}
	for _, offset := range s.cfg.ReminderOffsets {
		seq.Reminders = append(seq.Reminders, models.Reminder{
			OffsetHours: offset,
			SendAt:      appt.ScheduledAt.Add(-time.Duration(offset) * time.Hour),
		})
	}
	s.appointments[appt.ID] = appt
	s.sequences[appt.ID] = seq
	out := appt.Clone()
	s.mu.Unlock()

	s.logger.Printf("appointment %s (%s) booked for lead %s at %s", out.ID, out.Type, out.LeadID, out.ScheduledAt.Format(time.RFC3339))
	s.recordStatus(ctx, audit.StatusChange{EntityType: "appointment", EntityID: out.ID, LeadID: out.LeadID, To: string(out.Status)})
	return out, nil
}

// RescheduleAppointment moves the appointment and re-times reminders that have not fired.
func (s *Scheduler) RescheduleAppointment(ctx context.Context, id string, at time.Time, reason string) (models.Appointment, error) {
	if at.IsZero() {
		return models.Appointment{}, models.Validation("appointment time is required")
	}
	s.mu.Lock()
	appt, ok := s.appointments[id]
	if !ok {
		s.mu.Unlock()
		return models.Appointment{}, models.NotFound("appointment", id)
	}
	if terminal(appt.Status) {
		s.mu.Unlock()
		return models.Appointment{}, models.Validation("appointment %s is %s", id, appt.Status)
	}
	from := appt.Status
	previous := appt.ScheduledAt
	appt.ScheduledAt = at.UTC()
	appt.Status = models.AppointmentRescheduled
	appt.UpdatedAt = s.now()
	note := fmt.Sprintf("Rescheduled from %s to %s", previous.Format(time.RFC3339), appt.ScheduledAt.Format(time.RFC3339))
	if reason != "" {
		note += ": " + reason
	}
	appt.Notes = append(appt.Notes, note)
	if seq, ok := s.sequences[id]; ok && seq.Status == models.SequenceActive {
		for i := range seq.Reminders {
			if !seq.Reminders[i].Sent {
				seq.Reminders[i].SendAt = appt.ScheduledAt.Add(-time.Duration(seq.Reminders[i].OffsetHours) * time.Hour)
			}
		}
	}
	out := appt.Clone()
	s.mu.Unlock()

	s.recordStatus(ctx, audit.StatusChange{EntityType: "appointment", EntityID: id, LeadID: out.LeadID, From: string(from), To: string(out.Status), Reason: reason})
	return out, nil
}

// ConfirmAppointment marks the appointment confirmed and sends a best-effort confirmation.
func (s *Scheduler) ConfirmAppointment(ctx context.Context, id string) (models.Appointment, error) {
	s.mu.Lock()
	appt, ok := s.appointments[id]
	if !ok {
		s.mu.Unlock()
		return models.Appointment{}, models.NotFound("appointment", id)
	}
	if terminal(appt.Status) {
		s.mu.Unlock()
		return models.Appointment{}, models.Validation("appointment %s is %s", id, appt.Status)
	}
	from := appt.Status
	appt.Status = models.AppointmentConfirmed
	appt.ConfirmationSent = true
	appt.UpdatedAt = s.now()
	out := appt.Clone()
	s.mu.Unlock()

	content := fmt.Sprintf("Your %s is confirmed for %s.", out.Type, out.ScheduledAt.Format("Mon Jan 2 15:04 MST"))
	if sent, err := s.notifyLead(ctx, out.LeadID, "Appointment confirmed", content); err != nil || !sent {
		s.logger.Printf("confirmation for appointment %s not delivered: %v", id, err)
	}
	s.recordStatus(ctx, audit.StatusChange{EntityType: "appointment", EntityID: id, LeadID: out.LeadID, From: string(from), To: string(out.Status)})
	return out, nil
}

// CancelAppointment cancels the appointment and its reminder sequence.
func (s *Scheduler) CancelAppointment(ctx context.Context, id, reason string) (models.Appointment, error) {
	return s.closeAppointment(ctx, id, models.AppointmentCancelled, reason)
}

func (s *Scheduler) CompleteAppointment(ctx context.Context, id string) (models.Appointment, error) {
	return s.closeAppointment(ctx, id, models.AppointmentCompleted, "")
}

func (s *Scheduler) MarkNoShow(ctx context.Context, id string) (models.Appointment, error) {
	return s.closeAppointment(ctx, id, models.AppointmentNoShow, "")
}

func (s *Scheduler) closeAppointment(ctx context.Context, id string, status models.AppointmentStatus, reason string) (models.Appointment, error) {
	s.mu.Lock()
	appt, ok := s.appointments[id]
	if !ok {
		s.mu.Unlock()
		return models.Appointment{}, models.NotFound("appointment", id)
	}
	if terminal(appt.Status) {
		s.mu.Unlock()
		return models.Appointment{}, models.Validation("appointment %s is already %s", id, appt.Status)
	}
	from := appt.Status
	appt.Status = status
	appt.UpdatedAt = s.now()
	if reason != "" {
		appt.Notes = append(appt.Notes, fmt.Sprintf("%s: %s", status, reason))
	}
	if seq, ok := s.sequences[id]; ok && seq.Status == models.SequenceActive {
		seq.Status = models.SequenceCancelled
	}
	out := appt.Clone()
	s.mu.Unlock()

	s.recordStatus(ctx, audit.StatusChange{EntityType: "appointment", EntityID: id, LeadID: out.LeadID, From: string(from), To: string(status), Reason: reason})
	return out, nil
}

func (s *Scheduler) Appointment(id string) (models.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	appt, ok := s.appointments[id]
	if !ok {
		return models.Appointment{}, models.NotFound("appointment", id)
	}
	return appt.Clone(), nil
}

// ReminderSequence returns the sequence attached to an appointment.
func (s *Scheduler) ReminderSequence(appointmentID string) (models.ReminderSequence, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seq, ok := s.sequences[appointmentID]
	if !ok {
		return models.ReminderSequence{}, models.NotFound("reminder sequence for appointment", appointmentID)
	}
	return seq.Clone(), nil
}

// GetUpcomingAppointments returns live appointments with scheduledAt in
// [now, now+windowHours], earliest first.
func (s *Scheduler) GetUpcomingAppointments(windowHours float64) []models.Appointment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	now := s.now()
	end := now.Add(time.Duration(windowHours * float64(time.Hour)))
	var out []models.Appointment
	for _, appt := range s.appointments {
		if !upcomingStatus(appt.Status) {
			continue
		}
		if appt.ScheduledAt.Before(now) || appt.ScheduledAt.After(end) {
			continue
		}
		out = append(out, appt.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledAt.Before(out[j].ScheduledAt) })
	return out
}

type pendingReminder struct {
	appointmentID string
	index         int
	appt          models.Appointment
	offset        int
}

// ProcessPendingReminders fires at most one due reminder per active sequence.
// A failed send leaves the reminder unsent for the next pass. Reminders being
// sent by a concurrent pass are skipped.
func (s *Scheduler) ProcessPendingReminders(ctx context.Context) PollResult {
	s.mu.Lock()
	now := s.now()
	var due []pendingReminder
	for apptID, seq := range s.sequences {
		if seq.Status != models.SequenceActive || s.claimed[reminderClaim(apptID)] {
			continue
		}
		for i, r := range seq.Reminders {
			if r.Sent {
				continue
			}
			if !r.SendAt.After(now) {
				s.claimed[reminderClaim(apptID)] = true
				due = append(due, pendingReminder{appointmentID: apptID, index: i, appt: s.appointments[apptID].Clone(), offset: r.OffsetHours})
			}
			break
		}
	}
	s.mu.Unlock()
	sort.Slice(due, func(i, j int) bool { return due[i].appt.ScheduledAt.Before(due[j].appt.ScheduledAt) })

	var res PollResult
	for n, p := range due {
		if ctx.Err() != nil {
			s.mu.Lock()
			for _, rest := range due[n:] {
				delete(s.claimed, reminderClaim(rest.appointmentID))
			}
			s.mu.Unlock()
			break
		}
		res.Attempted++
		content := fmt.Sprintf("Reminder: your %s is scheduled for %s.", p.appt.Type, p.appt.ScheduledAt.Format("Mon Jan 2 15:04 MST"))
		sent, err := s.notifyLead(ctx, p.appt.LeadID, "Appointment reminder", content)
		if err != nil || !sent {
			s.logger.Printf("reminder (%dh) for appointment %s not delivered: %v", p.offset, p.appointmentID, err)
			s.mu.Lock()
			delete(s.claimed, reminderClaim(p.appointmentID))
			s.mu.Unlock()
			res.Retrying++
			continue
		}

		s.mu.Lock()
		delete(s.claimed, reminderClaim(p.appointmentID))
		seq := s.sequences[p.appointmentID]
		if seq.Status != models.SequenceActive || seq.Reminders[p.index].Sent {
			s.mu.Unlock()
			continue
		}
		sentAt := s.now()
		seq.Reminders[p.index].Sent = true
		seq.Reminders[p.index].SentAt = &sentAt
		s.appointments[p.appointmentID].RemindersSent++
		allSent := true
		for _, r := range seq.Reminders {
			if !r.Sent {
				allSent = false
				break
			}
		}
		if allSent {
			seq.Status = models.SequenceCompleted
		}
		s.mu.Unlock()
		res.Succeeded++
	}
	return res
}

func reminderClaim(appointmentID string) string { return "reminder:" + appointmentID }

// notifyLead sends over SMS when the lead has a phone number, otherwise email.
func (s *Scheduler) notifyLead(ctx context.Context, leadID, subject, content string) (bool, error) {
	if s.sender == nil {
		return false, fmt.Errorf("no message sender configured")
	}
	info, _ := s.contacts.Contact(leadID)
	switch {
	case info.Phone != "":
		return s.sender.Send(ctx, models.ChannelSMS, info.Phone, messaging.Message{Content: content})
	case info.Email != "":
		return s.sender.Send(ctx, models.ChannelEmail, info.Email, messaging.Message{Subject: subject, Content: content})
	}
	return false, fmt.Errorf("lead %s has no contact details", leadID)
}

func terminal(status models.AppointmentStatus) bool {
	switch status {
	case models.AppointmentCancelled, models.AppointmentCompleted, models.AppointmentNoShow:
		return true
	}
	return false
}

func upcomingStatus(status models.AppointmentStatus) bool {
	return !terminal(status)
}
