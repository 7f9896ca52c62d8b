package messaging

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/ILLUVRSE/leadops/internal/models"
)

type Message struct {
	Subject string `json:"subject,omitempty"`
	Content string `json:"content"`
}

// Sender delivers a message to a lead. A false result without error means the
// provider accepted the request but did not deliver. Retried sends are not
// de-duplicated.
type Sender interface {
	Send(ctx context.Context, channel models.Channel, destination string, msg Message) (bool, error)
}

const defaultSimulatedDelay = 50 * time.Millisecond

// LogSender stands in for a real provider: it logs the message after a bounded delay.
type LogSender struct {
	Delay  time.Duration
	Logger *log.Logger
}

func NewLogSender(delay time.Duration, logger *log.Logger) *LogSender {
	if delay < 0 {
		delay = defaultSimulatedDelay
	}
	if logger == nil {
		logger = log.New(os.Stdout, "[messaging] ", log.LstdFlags)
	}
	return &LogSender{Delay: delay, Logger: logger}
}

func (s *LogSender) Send(ctx context.Context, channel models.Channel, destination string, msg Message) (bool, error) {
	if destination == "" {
		return false, nil
	}
	if s.Delay > 0 {
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(s.Delay):
		}
	}
	s.Logger.Printf("%s -> %s: %s", channel, destination, truncate(msg.Content, 80))
	return true, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
