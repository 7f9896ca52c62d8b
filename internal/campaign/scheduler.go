package campaign

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ILLUVRSE/leadops/internal/audit"
	"github.com/ILLUVRSE/leadops/internal/messaging"
	"github.com/ILLUVRSE/leadops/internal/models"
)

var (
	// ErrPaused is returned by step execution while an operator pause is in effect.
	ErrPaused = errors.New("scheduler paused")

	ErrAlreadyStarted = errors.New("scheduler already started")
)

// Scheduler owns campaigns, per-lead progress, callbacks, appointments and
// reminder sequences. All maps are guarded by mu; collaborator I/O happens
// outside the lock.
type Scheduler struct {
	cfg       Config
	sender    messaging.Sender
	contacts  ContactDirectory
	attempter Attempter
	logger    *log.Logger

	mu            sync.RWMutex
	campaigns     map[string]*models.Campaign
	campaignOrder []string
	progress      map[progressKey]*models.LeadCampaignProgress
	callbacks     map[string]*models.Callback
	appointments  map[string]*models.Appointment
	sequences     map[string]*models.ReminderSequence // keyed by appointment id
	claimed       map[string]bool                     // reminders and callbacks being sent
	tuning        Tuning
	paused        bool
	pauseReason   string

	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}

	now func() time.Time
}

type progressKey struct {
	campaignID string
	leadID     string
}

// StepResult reports one lead's step execution inside RunCampaign.
type StepResult struct {
	LeadID  string `json:"leadId"`
	StepID  string `json:"stepId,omitempty"`
	Success bool   `json:"success"`
	Done    bool   `json:"done,omitempty"`
	Error   string `json:"error,omitempty"`
}

func New(cfg Config, sender messaging.Sender, contacts ContactDirectory, logger *log.Logger) *Scheduler {
	if logger == nil {
		logger = log.New(os.Stdout, "[campaign] ", log.LstdFlags)
	}
	if contacts == nil {
		contacts = NewDirectory()
	}
	cfg = cfg.withDefaults()
	s := &Scheduler{
		cfg:          cfg,
		sender:       sender,
		contacts:     contacts,
		logger:       logger,
		campaigns:    map[string]*models.Campaign{},
		progress:     map[progressKey]*models.LeadCampaignProgress{},
		callbacks:    map[string]*models.Callback{},
		appointments: map[string]*models.Appointment{},
		sequences:    map[string]*models.ReminderSequence{},
		claimed:      map[string]bool{},
		tuning:       Tuning{StepDelayFactor: 1},
		now:          func() time.Time { return time.Now().UTC() },
	}
	s.attempter = cfg.Attempter
	if s.attempter == nil {
		s.attempter = AttempterFunc(s.notifyCallback)
	}
	return s
}

// SetClock overrides the time source; intended for tests.
func (s *Scheduler) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *Scheduler) clock() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.now()
}

// CreateCampaign registers a campaign template. Steps keep their given order and
// receive fresh ids.
func (s *Scheduler) CreateCampaign(ctx context.Context, name, campaignType string, audience models.TargetAudience, steps []models.CampaignStep) (models.Campaign, error) {
	if strings.TrimSpace(name) == "" {
		return models.Campaign{}, models.Validation("campaign name is required")
	}
	if len(steps) == 0 {
		return models.Campaign{}, models.Validation("campaign %s has no steps", name)
	}
	out := make([]models.CampaignStep, len(steps))
	for i, step := range steps {
		switch step.Type {
		case models.StepCallback, models.StepAppointment, models.StepMessage, models.StepEmail, models.StepWait:
		default:
			return models.Campaign{}, models.Validation("step %d has unknown type %q", i, step.Type)
		}
		if step.DelayHours < 0 {
			return models.Campaign{}, models.Validation("step %d has negative delay", i)
		}
		step.ID = uuid.NewString()
		out[i] = step
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	c := &models.Campaign{
		ID:             uuid.NewString(),
		Name:           name,
		Type:           campaignType,
		TargetAudience: audience,
		Steps:          out,
		Status:         models.CampaignActive,
		CreatedAt:      s.now(),
	}
	c.Performance.CampaignID = c.ID
	s.campaigns[c.ID] = c
	s.campaignOrder = append(s.campaignOrder, c.ID)
	s.logger.Printf("campaign %s (%s) created with %d steps", c.ID, name, len(out))
	return c.Clone(), nil
}

func (s *Scheduler) Campaign(id string) (models.Campaign, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.campaigns[id]
	if !ok {
		return models.Campaign{}, models.NotFound("campaign", id)
	}
	return s.snapshotLocked(c), nil
}

// Campaigns lists campaigns in creation order.
func (s *Scheduler) Campaigns() []models.Campaign {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Campaign, 0, len(s.campaignOrder))
	for _, id := range s.campaignOrder {
		out = append(out, s.snapshotLocked(s.campaigns[id]))
	}
	return out
}

func (s *Scheduler) SetCampaignStatus(ctx context.Context, id string, status models.CampaignStatus) error {
	switch status {
	case models.CampaignActive, models.CampaignPaused, models.CampaignCompleted:
	default:
		return models.Validation("unknown campaign status %q", status)
	}
	s.mu.Lock()
	c, ok := s.campaigns[id]
	if !ok {
		s.mu.Unlock()
		return models.NotFound("campaign", id)
	}
	from := c.Status
	c.Status = status
	s.mu.Unlock()

	s.recordStatus(ctx, audit.StatusChange{EntityType: "campaign", EntityID: id, From: string(from), To: string(status)})
	return nil
}

// MatchCampaign returns the first active campaign, in creation order, whose audience includes the lead.
func (s *Scheduler) MatchCampaign(lead models.LeadSnapshot, effective models.LeadType) (models.Campaign, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, id := range s.campaignOrder {
		c := s.campaigns[id]
		if c.Status != models.CampaignActive {
			continue
		}
		if c.TargetAudience.Matches(lead, effective) {
			return s.snapshotLocked(c), true
		}
	}
	return models.Campaign{}, false
}

// EnrollLead starts a lead on a campaign. Enrolling twice returns the existing progress.
func (s *Scheduler) EnrollLead(ctx context.Context, campaignID, leadID string) (models.LeadCampaignProgress, error) {
	if strings.TrimSpace(leadID) == "" {
		return models.LeadCampaignProgress{}, models.Validation("lead id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.campaigns[campaignID]
	if !ok {
		return models.LeadCampaignProgress{}, models.NotFound("campaign", campaignID)
	}
	return cloneProgress(s.enrollLocked(c, leadID)), nil
}

func (s *Scheduler) enrollLocked(c *models.Campaign, leadID string) *models.LeadCampaignProgress {
	key := progressKey{campaignID: c.ID, leadID: leadID}
	if p, ok := s.progress[key]; ok {
		return p
	}
	p := &models.LeadCampaignProgress{
		LeadID:     leadID,
		CampaignID: c.ID,
		Status:     models.ProgressActive,
		EnrolledAt: s.now(),
	}
	s.progress[key] = p
	c.Performance.TotalLeads++
	return p
}

func (s *Scheduler) Progress(campaignID, leadID string) (models.LeadCampaignProgress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.progress[progressKey{campaignID: campaignID, leadID: leadID}]
	if !ok {
		return models.LeadCampaignProgress{}, models.NotFound("progress", campaignID+"/"+leadID)
	}
	return cloneProgress(p), nil
}

// ExecuteCampaignStep runs one step for one lead. Delivery failures are logged
// and reported as false with a nil error; only unknown ids, an inactive
// campaign or an operator pause return an error.
func (s *Scheduler) ExecuteCampaignStep(ctx context.Context, campaignID, leadID, stepID string) (bool, error) {
	if strings.TrimSpace(leadID) == "" {
		return false, models.Validation("lead id is required")
	}

	s.mu.Lock()
	if s.paused {
		s.mu.Unlock()
		return false, ErrPaused
	}
	c, ok := s.campaigns[campaignID]
	if !ok {
		s.mu.Unlock()
		return false, models.NotFound("campaign", campaignID)
	}
	stepIdx := -1
	for i, st := range c.Steps {
		if st.ID == stepID {
			stepIdx = i
			break
		}
	}
	if stepIdx < 0 {
		s.mu.Unlock()
		return false, models.NotFound("step", stepID)
	}
	if c.Status != models.CampaignActive {
		s.mu.Unlock()
		return false, models.Validation("campaign %s is %s", campaignID, c.Status)
	}
	step := c.Steps[stepIdx]
	s.enrollLocked(c, leadID)
	factor := s.tuning.StepDelayFactor
	now := s.now()
	s.mu.Unlock()

	at := now.Add(time.Duration(step.DelayHours * factor * float64(time.Hour)))

	var (
		success bool
		err     error
	)
	switch step.Type {
	case models.StepCallback:
		_, err = s.ScheduleCallback(ctx, leadID, at, campaignID, 0)
		success = err == nil
	case models.StepAppointment:
		apptType := step.Content
		if apptType == "" {
			apptType = "consultation"
		}
		_, err = s.BookAppointment(ctx, AppointmentRequest{
			LeadID:      leadID,
			CampaignID:  campaignID,
			Type:        apptType,
			ScheduledAt: at,
		})
		success = err == nil
	case models.StepMessage, models.StepEmail:
		success, err = s.deliverStep(ctx, leadID, step)
	case models.StepWait:
		success = true
	}
	if err != nil {
		s.logger.Printf("campaign %s step %s (%s) for lead %s failed: %v", campaignID, step.ID, step.Type, leadID, err)
		success = false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	c = s.campaigns[campaignID]
	if !success {
		c.Performance.FailedSteps++
		if err == nil {
			s.logger.Printf("campaign %s step %s (%s) for lead %s not delivered", campaignID, step.ID, step.Type, leadID)
		}
		return false, nil
	}
	c.Performance.CompletedSteps++
	switch step.Type {
	case models.StepCallback:
		c.Performance.CallbacksScheduled++
	case models.StepAppointment:
		c.Performance.AppointmentsBooked++
	case models.StepMessage, models.StepEmail:
		c.Performance.MessagesSent++
	}
	p := s.enrollLocked(c, leadID)
	if !containsString(p.CompletedSteps, step.ID) {
		p.CompletedSteps = append(p.CompletedSteps, step.ID)
	}
	if stepIdx+1 > p.CurrentStep {
		p.CurrentStep = stepIdx + 1
	}
	stepAt := s.now()
	p.LastStepAt = &stepAt
	if len(p.CompletedSteps) >= len(c.Steps) {
		p.Status = models.ProgressCompleted
	}
	return true, nil
}

// ExecuteNextStep runs the lead's next pending step, enrolling it if needed.
func (s *Scheduler) ExecuteNextStep(ctx context.Context, campaignID, leadID string) (StepResult, error) {
	progress, err := s.EnrollLead(ctx, campaignID, leadID)
	if err != nil {
		return StepResult{LeadID: leadID}, err
	}
	s.mu.RLock()
	c := s.campaigns[campaignID]
	if progress.CurrentStep >= len(c.Steps) {
		s.mu.RUnlock()
		return StepResult{LeadID: leadID, Done: true}, nil
	}
	stepID := c.Steps[progress.CurrentStep].ID
	s.mu.RUnlock()

	ok, err := s.ExecuteCampaignStep(ctx, campaignID, leadID, stepID)
	res := StepResult{LeadID: leadID, StepID: stepID, Success: ok}
	if err != nil {
		res.Error = err.Error()
	}
	return res, err
}

// RunCampaign advances every lead by one step concurrently. A failure for one
// lead is reported in its result and never blocks the others.
func (s *Scheduler) RunCampaign(ctx context.Context, campaignID string, leadIDs []string) ([]StepResult, error) {
	if _, err := s.Campaign(campaignID); err != nil {
		return nil, err
	}
	if s.Paused() {
		return nil, ErrPaused
	}

	results := make([]StepResult, len(leadIDs))
	sem := make(chan struct{}, s.cfg.MaxConcurrency)
	var wg sync.WaitGroup
	for i, leadID := range leadIDs {
		sem <- struct{}{}
		wg.Add(1)
		go func(i int, leadID string) {
			defer func() {
				<-sem
				wg.Done()
			}()
			res, err := s.ExecuteNextStep(ctx, campaignID, leadID)
			if err != nil {
				s.logger.Printf("run campaign %s lead %s: %v", campaignID, leadID, err)
				res.Error = err.Error()
			}
			results[i] = res
		}(i, leadID)
	}
	wg.Wait()
	return results, nil
}

// GetCampaignPerformance is a pure snapshot of the campaign counters.
func (s *Scheduler) GetCampaignPerformance(campaignID string) (models.CampaignPerformance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.campaigns[campaignID]
	if !ok {
		return models.CampaignPerformance{}, models.NotFound("campaign", campaignID)
	}
	return performance(c), nil
}

func (s *Scheduler) Tuning() Tuning {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tuning
}

// SetTuning replaces the tuning and returns the previous value.
func (s *Scheduler) SetTuning(t Tuning) (Tuning, error) {
	if t.StepDelayFactor <= 0 {
		return Tuning{}, models.Validation("step delay factor must be positive")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.tuning
	s.tuning = t
	s.logger.Printf("step delay factor %.2f -> %.2f", prev.StepDelayFactor, t.StepDelayFactor)
	return prev, nil
}

// Pause halts step execution and background polling until Resume.
func (s *Scheduler) Pause(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.paused {
		s.logger.Printf("paused: %s", reason)
	}
	s.paused = true
	s.pauseReason = reason
}

func (s *Scheduler) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.paused {
		s.logger.Printf("resumed")
	}
	s.paused = false
	s.pauseReason = ""
}

func (s *Scheduler) Paused() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.paused
}

// Summary aggregates scheduler state for the supervisor dashboard.
type Summary struct {
	Campaigns               int    `json:"campaigns"`
	ActiveCampaigns         int    `json:"activeCampaigns"`
	EnrolledLeads           int    `json:"enrolledLeads"`
	CompletedSteps          int    `json:"completedSteps"`
	FailedSteps             int    `json:"failedSteps"`
	PendingCallbacks        int    `json:"pendingCallbacks"`
	CompletedCallbacks      int    `json:"completedCallbacks"`
	FailedCallbacks         int    `json:"failedCallbacks"`
	ScheduledAppointments   int    `json:"scheduledAppointments"`
	AppointmentsNext24h     int    `json:"appointmentsNext24h"`
	ActiveReminderSequences int    `json:"activeReminderSequences"`
	Paused                  bool   `json:"paused"`
	PauseReason             string `json:"pauseReason,omitempty"`
}

func (s *Scheduler) Summary() Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	now := s.now()
	sum := Summary{
		Campaigns:     len(s.campaigns),
		EnrolledLeads: len(s.progress),
		Paused:        s.paused,
		PauseReason:   s.pauseReason,
	}
	for _, c := range s.campaigns {
		if c.Status == models.CampaignActive {
			sum.ActiveCampaigns++
		}
		sum.CompletedSteps += c.Performance.CompletedSteps
		sum.FailedSteps += c.Performance.FailedSteps
	}
	for _, cb := range s.callbacks {
		switch cb.Status {
		case models.CallbackPending:
			sum.PendingCallbacks++
		case models.CallbackCompleted:
			sum.CompletedCallbacks++
		case models.CallbackFailed:
			sum.FailedCallbacks++
		}
	}
	for _, a := range s.appointments {
		if !upcomingStatus(a.Status) {
			continue
		}
		sum.ScheduledAppointments++
		if !a.ScheduledAt.Before(now) && !a.ScheduledAt.After(now.Add(24*time.Hour)) {
			sum.AppointmentsNext24h++
		}
	}
	for _, seq := range s.sequences {
		if seq.Status == models.SequenceActive {
			sum.ActiveReminderSequences++
		}
	}
	return sum
}

func (s *Scheduler) deliverStep(ctx context.Context, leadID string, step models.CampaignStep) (bool, error) {
	if s.sender == nil {
		return false, fmt.Errorf("no message sender configured")
	}
	channel := step.Channel
	if channel == "" {
		channel = models.ChannelSMS
		if step.Type == models.StepEmail {
			channel = models.ChannelEmail
		}
	}
	info, _ := s.contacts.Contact(leadID)
	dest := destination(info, channel)
	if dest == "" {
		return false, fmt.Errorf("lead %s has no %s destination", leadID, channel)
	}
	msg := messaging.Message{Content: step.Content}
	if channel == models.ChannelEmail {
		msg.Subject = firstLine(step.Content)
	}
	return s.sender.Send(ctx, channel, dest, msg)
}

func (s *Scheduler) recordStatus(ctx context.Context, change audit.StatusChange) {
	if s.cfg.StatusRecorder == nil {
		return
	}
	if change.Timestamp.IsZero() {
		change.Timestamp = s.clock()
	}
	if err := s.cfg.StatusRecorder.RecordStatusChange(ctx, change); err != nil {
		s.logger.Printf("record %s %s status change: %v", change.EntityType, change.EntityID, err)
	}
}

func (s *Scheduler) snapshotLocked(c *models.Campaign) models.Campaign {
	out := c.Clone()
	out.Performance = performance(c)
	return out
}

func performance(c *models.Campaign) models.CampaignPerformance {
	perf := c.Performance
	perf.CampaignID = c.ID
	if perf.TotalLeads > 0 {
		perf.AppointmentRate = float64(perf.AppointmentsBooked) / float64(perf.TotalLeads)
	}
	return perf
}

func cloneProgress(p *models.LeadCampaignProgress) models.LeadCampaignProgress {
	out := *p
	out.CompletedSteps = append([]string(nil), p.CompletedSteps...)
	if p.LastStepAt != nil {
		t := *p.LastStepAt
		out.LastStepAt = &t
	}
	return out
}

func destination(info models.ContactInfo, channel models.Channel) string {
	if channel == models.ChannelEmail {
		return info.Email
	}
	return info.Phone
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if len(s) > 60 {
		s = s[:60]
	}
	return s
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
