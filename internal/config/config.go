package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Addr           string
	Environment    string
	RequestTimeout time.Duration

	// DatabaseURL enables the Postgres audit sink; empty keeps audit records in memory.
	DatabaseURL string

	KafkaBrokers []string
	KafkaTopic   string

	ArchiveBucket string
	ArchivePrefix string

	MessagingURL       string
	MessagingAPIKey    string
	MessagingRetries   int
	SimulatedSendDelay time.Duration

	WorkflowURL    string
	WorkflowAPIKey string
	WorkflowID     string

	// RulesFile is a YAML routing rule set replacing the built-in rules.
	RulesFile string

	PollInterval      time.Duration
	OptimizerEnabled  bool
	OptimizerInterval time.Duration

	AuthSecret    string
	AuthIssuer    string
	DevAllowLocal bool
}

const (
	defaultAddr               = ":8090"
	defaultEnvironment        = "development"
	defaultRequestTimeout     = 30 * time.Second
	defaultKafkaTopic         = "leadops.events"
	defaultArchivePrefix      = "leadops"
	defaultMessagingRetries   = 2
	defaultSimulatedSendDelay = 50 * time.Millisecond
	defaultWorkflowID         = "lead-intake"
	defaultPollInterval       = time.Minute
	defaultOptimizerInterval  = 24 * time.Hour
	defaultAuthIssuer         = "leadops"
)

func Load() (Config, error) {
	cfg := Config{
		Addr:               getEnv("LEADOPS_ADDR", defaultAddr),
		Environment:        getEnv("LEADOPS_ENV", defaultEnvironment),
		RequestTimeout:     getDuration("LEADOPS_REQUEST_TIMEOUT", defaultRequestTimeout),
		DatabaseURL:        firstNonEmpty(os.Getenv("LEADOPS_DATABASE_URL"), os.Getenv("DATABASE_URL")),
		KafkaBrokers:       parseCSV(os.Getenv("LEADOPS_KAFKA_BROKERS")),
		KafkaTopic:         getEnv("LEADOPS_KAFKA_TOPIC", defaultKafkaTopic),
		ArchiveBucket:      os.Getenv("LEADOPS_ARCHIVE_BUCKET"),
		ArchivePrefix:      getEnv("LEADOPS_ARCHIVE_PREFIX", defaultArchivePrefix),
		MessagingURL:       os.Getenv("LEADOPS_MESSAGING_URL"),
		MessagingAPIKey:    os.Getenv("LEADOPS_MESSAGING_API_KEY"),
		MessagingRetries:   getInt("LEADOPS_MESSAGING_RETRIES", defaultMessagingRetries),
		SimulatedSendDelay: getDuration("LEADOPS_SIMULATED_SEND_DELAY", defaultSimulatedSendDelay),
		WorkflowURL:        os.Getenv("LEADOPS_WORKFLOW_URL"),
		WorkflowAPIKey:     os.Getenv("LEADOPS_WORKFLOW_API_KEY"),
		WorkflowID:         getEnv("LEADOPS_WORKFLOW_ID", defaultWorkflowID),
		RulesFile:          os.Getenv("LEADOPS_RULES_FILE"),
		PollInterval:       getDuration("LEADOPS_POLL_INTERVAL", defaultPollInterval),
		OptimizerEnabled:   getBool("LEADOPS_OPTIMIZER_ENABLED", true),
		OptimizerInterval:  getDuration("LEADOPS_OPTIMIZER_INTERVAL", defaultOptimizerInterval),
		AuthSecret:         os.Getenv("LEADOPS_AUTH_SECRET"),
		AuthIssuer:         getEnv("LEADOPS_AUTH_ISSUER", defaultAuthIssuer),
		DevAllowLocal:      getBool("LEADOPS_DEV_ALLOW_LOCAL", false),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.AuthSecret == "" && !c.DevAllowLocal {
		return fmt.Errorf("LEADOPS_AUTH_SECRET required unless LEADOPS_DEV_ALLOW_LOCAL=true")
	}
	if c.Production() && c.DevAllowLocal {
		return fmt.Errorf("LEADOPS_DEV_ALLOW_LOCAL must be off in production")
	}
	if c.Production() && len(c.KafkaBrokers) == 0 {
		return fmt.Errorf("LEADOPS_KAFKA_BROKERS required in production")
	}
	if c.PollInterval < time.Second {
		return fmt.Errorf("LEADOPS_POLL_INTERVAL must be at least 1s, got %s", c.PollInterval)
	}
	if c.OptimizerInterval < time.Minute {
		return fmt.Errorf("LEADOPS_OPTIMIZER_INTERVAL must be at least 1m, got %s", c.OptimizerInterval)
	}
	return nil
}

func (c Config) Production() bool {
	return c.Environment == "production"
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func getInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func parseCSV(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
