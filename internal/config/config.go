package config

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/deskpilot/support-triage/internal/domain"
)

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Logging  LoggingConfig  `yaml:"logging"`
	Triage   TriageConfig   `yaml:"triage"`
	Queue    QueueConfig    `yaml:"queue"`
	Notify   NotifyConfig   `yaml:"notify"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port           int      `yaml:"port"`
	Host           string   `yaml:"host"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// GetHost returns the server host, with container detection
func (c ServerConfig) GetHost() string {
	// On ECS/container, listen on all interfaces
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return "0.0.0.0"
	}
	if host := os.Getenv("SERVER_HOST"); host != "" {
		return host
	}
	return c.Host
}

// DatabaseConfig holds PostgreSQL connection settings
type DatabaseConfig struct {
	URL                    string `yaml:"url"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
}

// ConnMaxLifetime returns the pool connection lifetime as a duration
func (c DatabaseConfig) ConnMaxLifetime() time.Duration {
	return time.Duration(c.ConnMaxLifetimeMinutes) * time.Minute
}

// RedisConfig holds the Redis used for conversation leases and the task queue.
// An empty URL falls back to in-process leases and no follow-up queue.
type RedisConfig struct {
	URL string `yaml:"url"`
}

// LoggingConfig holds logger settings
type LoggingConfig struct {
	Level     string `yaml:"level"`
	RedactPII bool   `yaml:"redact_pii"`
}

// TriageConfig holds the engine tuning. The threshold fields are fallbacks
// for keys missing from the settings table; the table always wins.
type TriageConfig struct {
	AutoReplyEnabled      *bool   `yaml:"auto_reply_enabled"`
	ConfidenceThreshold   float64 `yaml:"confidence_threshold"`
	EscalationFloor       float64 `yaml:"escalation_floor"`
	MaxAIResponses        int     `yaml:"max_ai_responses"`
	CategoryExactWeight   float64 `yaml:"category_exact_weight"`
	CategoryFuzzyWeight   float64 `yaml:"category_fuzzy_weight"`
	DefaultLanguage       string  `yaml:"default_language"`
	TimeoutSeconds        int     `yaml:"timeout_seconds"`
	MaxArticleSuggestions int     `yaml:"max_article_suggestions"`
	SupportEmail          string  `yaml:"support_email"`
	LeaseTTLSeconds       int     `yaml:"lease_ttl_seconds"`
	LeaseWaitMillis       int     `yaml:"lease_wait_millis"`
}

// Fallback returns the settings used when the settings table has no value.
func (c TriageConfig) Fallback() domain.Settings {
	s := domain.DefaultSettings()
	if c.AutoReplyEnabled != nil {
		s.AutoReplyEnabled = *c.AutoReplyEnabled
	}
	if c.ConfidenceThreshold > 0 {
		s.ConfidenceThreshold = c.ConfidenceThreshold
	}
	if c.EscalationFloor > 0 {
		s.EscalationFloor = c.EscalationFloor
	}
	if c.MaxAIResponses > 0 {
		s.MaxAIResponses = c.MaxAIResponses
	}
	if c.CategoryExactWeight > 0 {
		s.CategoryExactWeight = c.CategoryExactWeight
	}
	if c.CategoryFuzzyWeight > 0 {
		s.CategoryFuzzyWeight = c.CategoryFuzzyWeight
	}
	if c.DefaultLanguage != "" {
		s.DefaultLanguage = c.DefaultLanguage
	}
	if c.TimeoutSeconds > 0 {
		s.EvaluationTimeout = time.Duration(c.TimeoutSeconds) * time.Second
	}
	if c.MaxArticleSuggestions > 0 {
		s.MaxArticleSuggestions = c.MaxArticleSuggestions
	}
	if c.SupportEmail != "" {
		s.SupportEmail = c.SupportEmail
	}
	return s
}

// LeaseTTL returns how long a conversation lease is held at most
func (c TriageConfig) LeaseTTL() time.Duration {
	return time.Duration(c.LeaseTTLSeconds) * time.Second
}

// LeaseWait returns how long a trigger waits for a busy lease
func (c TriageConfig) LeaseWait() time.Duration {
	return time.Duration(c.LeaseWaitMillis) * time.Millisecond
}

// QueueConfig holds the asynq follow-up queue settings
type QueueConfig struct {
	Enabled            bool   `yaml:"enabled"`
	RunWorkerInServer  bool   `yaml:"run_worker_in_server"`
	Concurrency        int    `yaml:"concurrency"`
	Queues             string `yaml:"queues"`
	DelaySeconds       int    `yaml:"delay_seconds"`
	UniqueTTLSeconds   int    `yaml:"unique_ttl_seconds"`
	MaxRetry           int    `yaml:"max_retry"`
	TaskTimeoutSeconds int    `yaml:"task_timeout_seconds"`
}

// Delay returns the follow-up delay as a duration
func (c QueueConfig) Delay() time.Duration {
	return time.Duration(c.DelaySeconds) * time.Second
}

// UniqueTTL returns the follow-up dedupe window as a duration
func (c QueueConfig) UniqueTTL() time.Duration {
	return time.Duration(c.UniqueTTLSeconds) * time.Second
}

// TaskTimeout returns the per-task deadline as a duration
func (c QueueConfig) TaskTimeout() time.Duration {
	return time.Duration(c.TaskTimeoutSeconds) * time.Second
}

// NotifyConfig holds escalation notice delivery settings
type NotifyConfig struct {
	QueueSize          int           `yaml:"queue_size"`
	Workers            int           `yaml:"workers"`
	SendTimeoutSeconds int           `yaml:"send_timeout_seconds"`
	Log                bool          `yaml:"log"`
	SES                SESConfig     `yaml:"ses"`
	SQS                SQSConfig     `yaml:"sqs"`
	Kafka              KafkaConfig   `yaml:"kafka"`
	Webhook            WebhookConfig `yaml:"webhook"`
}

// SendTimeout returns the per-notice delivery timeout
func (c NotifyConfig) SendTimeout() time.Duration {
	return time.Duration(c.SendTimeoutSeconds) * time.Second
}

// SESConfig holds AWS SES email settings for the support inbox
type SESConfig struct {
	Enabled    bool     `yaml:"enabled"`
	Region     string   `yaml:"region"`
	AccessKey  string   `yaml:"access_key"`
	SecretKey  string   `yaml:"secret_key"`
	FromEmail  string   `yaml:"from_email"`
	FromName   string   `yaml:"from_name"`
	Recipients []string `yaml:"recipients"`
	AdminURL   string   `yaml:"admin_url"`
}

// SQSConfig holds the human work queue settings
type SQSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Region   string `yaml:"region"`
	QueueURL string `yaml:"queue_url"`
}

// KafkaConfig holds the escalation event stream settings
type KafkaConfig struct {
	Enabled bool     `yaml:"enabled"`
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// WebhookConfig holds the chat/ticketing webhook settings
type WebhookConfig struct {
	Enabled    bool   `yaml:"enabled"`
	URL        string `yaml:"url"`
	Secret     string `yaml:"secret"`
	MaxRetries int    `yaml:"max_retries"`
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	// Set defaults
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 20
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetimeMinutes == 0 {
		cfg.Database.ConnMaxLifetimeMinutes = 30
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Triage.LeaseTTLSeconds == 0 {
		cfg.Triage.LeaseTTLSeconds = 30
	}
	if cfg.Triage.LeaseWaitMillis == 0 {
		cfg.Triage.LeaseWaitMillis = 2000
	}
	if cfg.Queue.Concurrency == 0 {
		cfg.Queue.Concurrency = 10
	}
	if cfg.Queue.Queues == "" {
		cfg.Queue.Queues = "triage=6,default=1"
	}
	if cfg.Queue.DelaySeconds == 0 {
		cfg.Queue.DelaySeconds = 2
	}
	if cfg.Queue.UniqueTTLSeconds == 0 {
		cfg.Queue.UniqueTTLSeconds = 30
	}
	if cfg.Queue.MaxRetry == 0 {
		cfg.Queue.MaxRetry = 10
	}
	if cfg.Queue.TaskTimeoutSeconds == 0 {
		cfg.Queue.TaskTimeoutSeconds = 30
	}
	if cfg.Notify.QueueSize == 0 {
		cfg.Notify.QueueSize = 256
	}
	if cfg.Notify.Workers == 0 {
		cfg.Notify.Workers = 4
	}
	if cfg.Notify.SendTimeoutSeconds == 0 {
		cfg.Notify.SendTimeoutSeconds = 10
	}
	if cfg.Notify.SES.Region == "" {
		cfg.Notify.SES.Region = "us-west-2"
	}
	if cfg.Notify.SQS.Region == "" {
		cfg.Notify.SQS.Region = cfg.Notify.SES.Region
	}
	if cfg.Notify.Webhook.MaxRetries == 0 {
		cfg.Notify.Webhook.MaxRetries = 3
	}
	if cfg.Notify.Kafka.Topic == "" {
		cfg.Notify.Kafka.Topic = "support.escalations"
	}

	return &cfg, nil
}

// LoadFromEnv loads configuration with environment variable overrides.
// It automatically loads a .env file (if present) before reading env vars,
// so secrets can live in .env locally and in real env vars on ECS.
func LoadFromEnv(path string) (*Config, error) {
	// Load .env file if it exists (no error if missing)
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Redis.URL = v
		cfg.Queue.Enabled = true
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("SUPPORT_EMAIL"); v != "" {
		cfg.Triage.SupportEmail = v
	}

	// Notifier overrides
	if v := os.Getenv("AWS_SES_ACCESS_KEY"); v != "" {
		cfg.Notify.SES.AccessKey = v
	}
	if v := os.Getenv("AWS_SES_SECRET_KEY"); v != "" {
		cfg.Notify.SES.SecretKey = v
	}
	if v := os.Getenv("AWS_SES_REGION"); v != "" {
		cfg.Notify.SES.Region = v
	}
	if v := os.Getenv("SUPPORT_SQS_QUEUE_URL"); v != "" {
		cfg.Notify.SQS.QueueURL = v
		cfg.Notify.SQS.Enabled = true
	}
	if v := os.Getenv("SUPPORT_WEBHOOK_URL"); v != "" {
		cfg.Notify.Webhook.URL = v
		cfg.Notify.Webhook.Enabled = true
	}
	if v := os.Getenv("SUPPORT_WEBHOOK_SECRET"); v != "" {
		cfg.Notify.Webhook.Secret = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		cfg.Notify.Kafka.Brokers = splitList(v)
		cfg.Notify.Kafka.Enabled = true
	}

	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
