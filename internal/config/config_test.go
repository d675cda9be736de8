package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deskpilot/support-triage/internal/service/settings"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
  host: "0.0.0.0"
  allowed_origins: ["https://support.example.com"]

database:
  url: "postgres://localhost/support?sslmode=disable"
  max_open_conns: 8

redis:
  url: "redis://localhost:6379/0"

triage:
  auto_reply_enabled: false
  confidence_threshold: 0.8
  max_ai_responses: 3
  default_language: "en"
  timeout_seconds: 7

queue:
  enabled: true
  queues: "triage=10"

notify:
  workers: 2
  ses:
    enabled: true
    from_email: "noreply@example.com"
    recipients: ["support@example.com"]
  kafka:
    enabled: true
    brokers: ["kafka:9092"]
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, []string{"https://support.example.com"}, cfg.Server.AllowedOrigins)

	assert.Equal(t, "postgres://localhost/support?sslmode=disable", cfg.Database.URL)
	assert.Equal(t, 8, cfg.Database.MaxOpenConns)
	assert.Equal(t, "redis://localhost:6379/0", cfg.Redis.URL)

	assert.True(t, cfg.Queue.Enabled)
	assert.Equal(t, "triage=10", cfg.Queue.Queues)

	assert.Equal(t, 2, cfg.Notify.Workers)
	assert.True(t, cfg.Notify.SES.Enabled)
	assert.Equal(t, []string{"support@example.com"}, cfg.Notify.SES.Recipients)
	assert.Equal(t, []string{"kafka:9092"}, cfg.Notify.Kafka.Brokers)

	fb := cfg.Triage.Fallback()
	assert.False(t, fb.AutoReplyEnabled)
	assert.Equal(t, 0.8, fb.ConfidenceThreshold)
	assert.Equal(t, 0.5, fb.EscalationFloor)
	assert.Equal(t, 3, fb.MaxAIResponses)
	assert.Equal(t, "en", fb.DefaultLanguage)
	assert.Equal(t, 7*time.Second, fb.EvaluationTimeout)
	assert.NoError(t, fb.Validate())
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "server:\n  port: 0\n"))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "localhost", cfg.Server.Host)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, 30*time.Minute, cfg.Database.ConnMaxLifetime())
	assert.Equal(t, 30*time.Second, cfg.Triage.LeaseTTL())
	assert.Equal(t, 2*time.Second, cfg.Triage.LeaseWait())
	assert.Equal(t, "triage=6,default=1", cfg.Queue.Queues)
	assert.Equal(t, 2*time.Second, cfg.Queue.Delay())
	assert.Equal(t, 30*time.Second, cfg.Queue.UniqueTTL())
	assert.Equal(t, 30*time.Second, cfg.Queue.TaskTimeout())
	assert.Equal(t, 10*time.Second, cfg.Notify.SendTimeout())
	assert.Equal(t, "us-west-2", cfg.Notify.SQS.Region)
	assert.Equal(t, "support.escalations", cfg.Notify.Kafka.Topic)

	fb := cfg.Triage.Fallback()
	assert.True(t, fb.AutoReplyEnabled)
	assert.Equal(t, 0.7, fb.ConfidenceThreshold)
	assert.Equal(t, 5, fb.MaxAIResponses)
	assert.Equal(t, "nl", fb.DefaultLanguage)
}

func TestLoadFromEnv(t *testing.T) {
	path := writeConfig(t, `
database:
  url: "postgres://file"
notify:
  ses:
    region: "eu-west-1"
`)

	t.Setenv("DATABASE_URL", "postgres://env")
	t.Setenv("REDIS_URL", "redis://env:6379")
	t.Setenv("AWS_SES_REGION", "eu-central-1")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("SUPPORT_SQS_QUEUE_URL", "https://sqs.example/queue")

	cfg, err := LoadFromEnv(path)
	require.NoError(t, err)

	assert.Equal(t, "postgres://env", cfg.Database.URL)
	assert.Equal(t, "redis://env:6379", cfg.Redis.URL)
	assert.True(t, cfg.Queue.Enabled)
	assert.Equal(t, "eu-central-1", cfg.Notify.SES.Region)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Notify.Kafka.Brokers)
	assert.True(t, cfg.Notify.Kafka.Enabled)
	assert.True(t, cfg.Notify.SQS.Enabled)
	assert.Equal(t, "https://sqs.example/queue", cfg.Notify.SQS.QueueURL)
}

func TestLoadFileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	assert.Error(t, err)
}

func TestGetHost(t *testing.T) {
	t.Setenv("ECS_CONTAINER_METADATA_URI", "")
	t.Setenv("AWS_EXECUTION_ENV", "")
	t.Setenv("SERVER_HOST", "")
	assert.Equal(t, "localhost", ServerConfig{Host: "localhost"}.GetHost())

	t.Setenv("SERVER_HOST", "10.0.0.5")
	assert.Equal(t, "10.0.0.5", ServerConfig{Host: "localhost"}.GetHost())

	t.Setenv("AWS_EXECUTION_ENV", "AWS_ECS_FARGATE")
	assert.Equal(t, "0.0.0.0", ServerConfig{Host: "localhost"}.GetHost())
}

type emptySettings struct{}

func (emptySettings) Get(context.Context, string) (string, error) { return "", settings.ErrNotFound }
func (emptySettings) Set(context.Context, string, string) error { return nil }

// An empty settings table never fails evaluation: the fallback carries
// every required key even when the file zeroes them.
func TestFallbackCoversRequiredSettings(t *testing.T) {
	path := writeConfig(t, `
database:
  url: "postgres://file"
triage:
  confidence_threshold: 0
  max_ai_responses: 0
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	_, err = settings.NewStore(emptySettings{}, cfg.Triage.Fallback()).Snapshot(context.Background())
	assert.NoError(t, err)
}
