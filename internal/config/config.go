package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config carries everything the assessor service and dispatch worker need.
// All values come from the environment in the usual twelve-factor way.
type Config struct {
	Addr        string
	DatabaseURL string

	BundleBucket string
	BundlePrefix string

	ConfirmationSecret string
	SessionDuration    time.Duration

	RoleARNPattern   string
	StackNamePattern string

	AuthSecret string
	AuthScope  string

	KafkaBrokers []string
	KafkaTopic   string
	KafkaGroupID string

	ScheduleInterval    time.Duration
	ScheduleDefinitions []string
	DefaultDefinitionID string
	ResourceNamePrefix  string
	DispatchMaxInFlight int
	EvalConcurrency     int
}

const (
	defaultAddr             = ":8070"
	defaultSessionMinutes   = 15
	defaultScheduleInterval = 15 * time.Minute
	defaultResourcePrefix   = "subject-stack-"
	defaultMaxInFlight      = 16
)

func Load() (Config, error) {
	cfg := Config{
		Addr:        getEnv("ASSESSOR_ADDR", defaultAddr),
		DatabaseURL: firstNonEmpty(os.Getenv("ASSESSOR_DATABASE_URL"), os.Getenv("DATABASE_URL")),

		BundleBucket: os.Getenv("ASSESSOR_BUNDLE_BUCKET"),
		BundlePrefix: os.Getenv("ASSESSOR_BUNDLE_PREFIX"),

		ConfirmationSecret: os.Getenv("ASSESSOR_CONFIRMATION_SECRET"),
		SessionDuration:    time.Duration(getInt("ASSESSOR_SESSION_MINUTES", defaultSessionMinutes)) * time.Minute,

		RoleARNPattern:   getEnv("ASSESSOR_ROLE_ARN_PATTERN", "arn:aws:iam::%s:role/assessment-audit"),
		StackNamePattern: getEnv("ASSESSOR_STACK_PATTERN", defaultResourcePrefix+"%s"),

		AuthSecret: os.Getenv("ASSESSOR_AUTH_SECRET"),
		AuthScope:  getEnv("ASSESSOR_AUTH_SCOPE", "assessments:run"),

		KafkaBrokers: splitList(os.Getenv("ASSESSOR_KAFKA_BROKERS")),
		KafkaTopic:   getEnv("ASSESSOR_KAFKA_TOPIC", "resource-changes"),
		KafkaGroupID: getEnv("ASSESSOR_KAFKA_GROUP", "opsgrade-dispatch"),

		ScheduleInterval:    getDuration("ASSESSOR_SCHEDULE_INTERVAL", defaultScheduleInterval),
		ScheduleDefinitions: splitList(os.Getenv("ASSESSOR_SCHEDULE_DEFINITIONS")),
		DefaultDefinitionID: os.Getenv("ASSESSOR_DEFAULT_DEFINITION"),
		ResourceNamePrefix:  getEnv("ASSESSOR_RESOURCE_PREFIX", defaultResourcePrefix),
		DispatchMaxInFlight: getInt("ASSESSOR_DISPATCH_MAX_INFLIGHT", defaultMaxInFlight),
		EvalConcurrency:     getInt("ASSESSOR_EVAL_CONCURRENCY", 4),
	}
	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL or ASSESSOR_DATABASE_URL required")
	}
	if cfg.BundleBucket == "" {
		return Config{}, fmt.Errorf("ASSESSOR_BUNDLE_BUCKET required")
	}
	if cfg.ConfirmationSecret == "" {
		return Config{}, fmt.Errorf("ASSESSOR_CONFIRMATION_SECRET required")
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
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
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return fallback
}

func splitList(val string) []string {
	if val == "" {
		return nil
	}
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
