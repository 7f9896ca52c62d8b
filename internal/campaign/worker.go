package campaign

import (
	"context"
	"time"
)

// Poll runs one callback pass and one reminder pass. It does nothing while paused.
func (s *Scheduler) Poll(ctx context.Context) (callbacks, reminders PollResult) {
	if s.Paused() {
		return PollResult{}, PollResult{}
	}
	callbacks = s.ProcessPendingCallbacks(ctx)
	reminders = s.ProcessPendingReminders(ctx)
	if callbacks.Attempted > 0 || reminders.Attempted > 0 {
		s.logger.Printf("poll: callbacks %d attempted (%d ok, %d retrying, %d failed), reminders %d attempted (%d sent)",
			callbacks.Attempted, callbacks.Succeeded, callbacks.Retrying, callbacks.Failed,
			reminders.Attempted, reminders.Succeeded)
	}
	return callbacks, reminders
}

// Start launches the background poll loop. The first pass runs after one interval.
func (s *Scheduler) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	stopCh := make(chan struct{})
	doneCh := make(chan struct{})
	s.running = true
	s.stopCh = stopCh
	s.doneCh = doneCh
	interval := s.cfg.PollInterval
	s.mu.Unlock()

	s.logger.Printf("poll loop started (interval=%s)", interval)
	go s.run(ctx, interval, stopCh, doneCh)
	return nil
}

// Stop halts the poll loop and waits for an in-flight pass to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	stopCh := s.stopCh
	doneCh := s.doneCh
	s.running = false
	s.stopCh = nil
	s.doneCh = nil
	s.mu.Unlock()

	close(stopCh)
	<-doneCh
	s.logger.Printf("poll loop stopped")
}

func (s *Scheduler) run(ctx context.Context, interval time.Duration, stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			s.Poll(ctx)
		}
	}
}
