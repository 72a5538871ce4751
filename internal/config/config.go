// Package config provides configuration management for the automation service.
// It loads configuration from environment variables with sensible defaults and
// validates the result before the application starts.
//
// Environment Variables:
//
// Application Settings:
//   - PORT: Server port (default: 8080)
//   - LOG_LEVEL: Logging level (default: info)
//   - LOG_FILE: Optional log file path (default: stdout)
//
// Database Configuration:
//   - DATABASE_TYPE: "memory", "sqlite" or "postgres" (default: sqlite)
//   - DATABASE_PATH: SQLite database file path (default: ./automation.db)
//   - POSTGRES_HOST: PostgreSQL host (required if using PostgreSQL)
//   - POSTGRES_PORT: PostgreSQL port (default: 5432)
//   - POSTGRES_DB: PostgreSQL database name (required if using PostgreSQL)
//   - POSTGRES_USER: PostgreSQL username (required if using PostgreSQL)
//   - POSTGRES_PASSWORD: PostgreSQL password
//   - POSTGRES_SSL_MODE: PostgreSQL SSL mode (default: disable)
//
// Redis Configuration (event deduplication, optional):
//   - REDIS_ENABLED: Use Redis for dedup state (default: false)
//   - REDIS_ADDRESS: Redis server address (default: localhost:6379)
//   - REDIS_PASSWORD: Redis password
//   - REDIS_DB: Redis database number 0-15 (default: 0)
//   - REDIS_POOL_SIZE: Redis connection pool size (default: 10)
//
// Approval Tokens:
//   - APPROVAL_SECRET: Signing secret for approval tokens (required, minimum 32 characters)
//   - APPROVAL_TTL: Token lifetime, 0 means no expiry (default: 0)
//
// Workflow Execution:
//   - STEP_TIMEOUT: Per-step execution timeout (default: 30s)
//
// Scheduling:
//   - WORK_DAY_START: First working hour, 0-23 (default: 8)
//   - WORK_DAY_END: Last working hour, exclusive, 1-24 (default: 20)
//   - SLOT_GRANULARITY_MINUTES: Candidate slot alignment (default: 30)
//   - SCHEDULER_LOOKAHEAD_DAYS: How far ahead to search for a slot (default: 14)
//
// Monitoring:
//   - MONITOR_POLL_INTERVAL: Poll interval for monitors (default: 60s, minimum 5s)
//   - IMAP_SERVER / IMAP_USERNAME / IMAP_PASSWORD / IMAP_FOLDER: Email monitor account
//   - VOICEMAIL_API_URL / VOICEMAIL_API_KEY: Voicemail provider endpoint
//
// Notifications:
//   - SMTP_HOST / SMTP_PORT / SMTP_USERNAME / SMTP_PASSWORD / SMTP_FROM: Outbound email
//
// Extraction:
//   - EXTRACTOR: "openai" or "heuristic" (default: heuristic)
//   - OPENAI_API_KEY: API key for the OpenAI extractor
//   - OPENAI_MODEL: Model name (default: gpt-4o-mini)
//
// Calendar:
//   - CALDAV_URL / CALDAV_USERNAME / CALDAV_PASSWORD: CalDAV calendar account
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration values for the automation service.
type Config struct {
	// Application settings
	Port     string
	LogLevel string
	LogFile  string

	// Database configuration
	DatabaseType     string
	DatabasePath     string
	PostgresHost     string
	PostgresPort     string
	PostgresDB       string
	PostgresUser     string
	PostgresPassword string
	PostgresSSLMode  string

	// Redis configuration for shared dedup state
	RedisEnabled  bool
	RedisAddress  string
	RedisPassword string
	RedisDB       string
	RedisPoolSize string

	// Approval token configuration
	ApprovalSecret string
	ApprovalTTL    time.Duration

	// Workflow execution
	StepTimeout time.Duration

	// Scheduling window
	WorkDayStart    int
	WorkDayEnd      int
	SlotGranularity time.Duration
	LookaheadDays   int

	// Monitoring
	MonitorPollInterval time.Duration
	IMAPServer          string
	IMAPUsername        string
	IMAPPassword        string
	IMAPFolder          string
	VoicemailAPIURL     string
	VoicemailAPIKey     string

	// Outbound email
	SMTPHost     string
	SMTPPort     string
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string

	// Extraction
	Extractor    string
	OpenAIAPIKey string
	OpenAIModel  string

	// Calendar
	CalDAVURL      string
	CalDAVUsername string
	CalDAVPassword string
}

// Load creates a new Config with values loaded from environment variables.
// It does not validate the configuration; call Validate() before use.
func Load() *Config {
	return &Config{
		Port:     getEnv("PORT", "8080"),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		LogFile:  getEnv("LOG_FILE", ""),

		DatabaseType:     getEnv("DATABASE_TYPE", "sqlite"),
		DatabasePath:     getEnv("DATABASE_PATH", "./automation.db"),
		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresDB:       getEnv("POSTGRES_DB", "automation"),
		PostgresUser:     getEnv("POSTGRES_USER", "postgres"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", ""),
		PostgresSSLMode:  getEnv("POSTGRES_SSL_MODE", "disable"),

		RedisEnabled:  getBoolEnv("REDIS_ENABLED", false),
		RedisAddress:  getEnv("REDIS_ADDRESS", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnv("REDIS_DB", "0"),
		RedisPoolSize: getEnv("REDIS_POOL_SIZE", "10"),

		ApprovalSecret: getEnv("APPROVAL_SECRET", ""),
		ApprovalTTL:    getDurationEnv("APPROVAL_TTL", 0),

		StepTimeout: getDurationEnv("STEP_TIMEOUT", 30*time.Second),

		WorkDayStart:    getIntEnv("WORK_DAY_START", 8),
		WorkDayEnd:      getIntEnv("WORK_DAY_END", 20),
		SlotGranularity: time.Duration(getIntEnv("SLOT_GRANULARITY_MINUTES", 30)) * time.Minute,
		LookaheadDays:   getIntEnv("SCHEDULER_LOOKAHEAD_DAYS", 14),

		MonitorPollInterval: getDurationEnv("MONITOR_POLL_INTERVAL", 60*time.Second),
		IMAPServer:          getEnv("IMAP_SERVER", ""),
		IMAPUsername:        getEnv("IMAP_USERNAME", ""),
		IMAPPassword:        getEnv("IMAP_PASSWORD", ""),
		IMAPFolder:          getEnv("IMAP_FOLDER", "INBOX"),
		VoicemailAPIURL:     getEnv("VOICEMAIL_API_URL", ""),
		VoicemailAPIKey:     getEnv("VOICEMAIL_API_KEY", ""),

		SMTPHost:     getEnv("SMTP_HOST", ""),
		SMTPPort:     getEnv("SMTP_PORT", "587"),
		SMTPUsername: getEnv("SMTP_USERNAME", ""),
		SMTPPassword: getEnv("SMTP_PASSWORD", ""),
		SMTPFrom:     getEnv("SMTP_FROM", ""),

		Extractor:    getEnv("EXTRACTOR", "heuristic"),
		OpenAIAPIKey: getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:  getEnv("OPENAI_MODEL", "gpt-4o-mini"),

		CalDAVURL:      getEnv("CALDAV_URL", ""),
		CalDAVUsername: getEnv("CALDAV_USERNAME", ""),
		CalDAVPassword: getEnv("CALDAV_PASSWORD", ""),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// Validate checks required fields, value ranges and cross-field dependencies.
// The application should call it after Load and before starting.
func (c *Config) Validate() error {
	if c.ApprovalSecret == "" {
		return fmt.Errorf("APPROVAL_SECRET environment variable is required")
	}
	if len(c.ApprovalSecret) < 32 {
		return fmt.Errorf("APPROVAL_SECRET must be at least 32 characters long")
	}

	if port, err := strconv.Atoi(c.Port); err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("PORT must be a valid port number between 1 and 65535")
	}

	switch c.DatabaseType {
	case "memory", "sqlite", "postgres", "postgresql":
	default:
		return fmt.Errorf("DATABASE_TYPE must be 'memory', 'sqlite' or 'postgres'")
	}

	if c.DatabaseType == "postgres" || c.DatabaseType == "postgresql" {
		if c.PostgresHost == "" {
			return fmt.Errorf("POSTGRES_HOST is required when using PostgreSQL")
		}
		if c.PostgresDB == "" {
			return fmt.Errorf("POSTGRES_DB is required when using PostgreSQL")
		}
		if c.PostgresUser == "" {
			return fmt.Errorf("POSTGRES_USER is required when using PostgreSQL")
		}
		if port, err := strconv.Atoi(c.PostgresPort); err != nil || port < 1 || port > 65535 {
			return fmt.Errorf("POSTGRES_PORT must be a valid port number")
		}
	}

	if c.RedisEnabled {
		if db, err := strconv.Atoi(c.RedisDB); err != nil || db < 0 || db > 15 {
			return fmt.Errorf("REDIS_DB must be a number between 0 and 15")
		}
	}

	if c.WorkDayStart < 0 || c.WorkDayStart > 23 {
		return fmt.Errorf("WORK_DAY_START must be between 0 and 23")
	}
	if c.WorkDayEnd < 1 || c.WorkDayEnd > 24 || c.WorkDayEnd <= c.WorkDayStart {
		return fmt.Errorf("WORK_DAY_END must be after WORK_DAY_START and at most 24")
	}
	if c.SlotGranularity < time.Minute {
		return fmt.Errorf("SLOT_GRANULARITY_MINUTES must be at least 1")
	}
	if c.LookaheadDays < 1 {
		return fmt.Errorf("SCHEDULER_LOOKAHEAD_DAYS must be at least 1")
	}

	if c.StepTimeout <= 0 {
		return fmt.Errorf("STEP_TIMEOUT must be positive")
	}

	if c.MonitorPollInterval < 5*time.Second {
		c.MonitorPollInterval = 5 * time.Second
	}

	if c.Extractor != "openai" && c.Extractor != "heuristic" {
		return fmt.Errorf("EXTRACTOR must be 'openai' or 'heuristic'")
	}
	if c.Extractor == "openai" && c.OpenAIAPIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required when EXTRACTOR is 'openai'")
	}

	return nil
}

// RedisSettings returns the parsed Redis connection settings.
func (c *Config) RedisSettings() (address, password string, db, poolSize int) {
	db, _ = strconv.Atoi(c.RedisDB)
	poolSize, _ = strconv.Atoi(c.RedisPoolSize)
	return c.RedisAddress, c.RedisPassword, db, poolSize
}
