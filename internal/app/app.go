// Package app wires configuration into the running triage stack. The
// server and worker binaries share it so both evaluate conversations the
// same way.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/deskpilot/support-triage/internal/api"
	"github.com/deskpilot/support-triage/internal/config"
	"github.com/deskpilot/support-triage/internal/domain"
	"github.com/deskpilot/support-triage/internal/engine"
	"github.com/deskpilot/support-triage/internal/notify"
	"github.com/deskpilot/support-triage/internal/pkg/distlock"
	"github.com/deskpilot/support-triage/internal/pkg/httpretry"
	"github.com/deskpilot/support-triage/internal/pkg/logger"
	"github.com/deskpilot/support-triage/internal/queue"
	"github.com/deskpilot/support-triage/internal/repository/postgres"
	"github.com/deskpilot/support-triage/internal/service/conversation"
	"github.com/deskpilot/support-triage/internal/service/learning"
	"github.com/deskpilot/support-triage/internal/service/settings"

	_ "github.com/lib/pq" // PostgreSQL driver
)

// App holds the wired services. Close releases everything New opened.
type App struct {
	Config *config.Config
	DB     *sql.DB
	Redis  *redis.Client

	Conversations *conversation.Service
	Learning      *learning.Service
	Settings      *settings.Store
	Dispatcher    *notify.Dispatcher
	Engine        *engine.Engine

	closers []func() error
}

// ConfigureLogging applies the logging section to the package logger.
func ConfigureLogging(cfg config.LoggingConfig) {
	logger.SetLevel(logger.ParseLevel(cfg.Level))
	logger.SetRedactPII(cfg.RedactPII)
}

// OpenDB opens the PostgreSQL pool and verifies it with a ping.
func OpenDB(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, error) {
	if cfg.URL == "" {
		return nil, errors.New("database url is not set")
	}
	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime())

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

// OpenRedis connects to Redis. An empty url returns a nil client, which
// leaves leases process-local and disables follow-up tasks.
func OpenRedis(ctx context.Context, url string) (*redis.Client, error) {
	if url == "" {
		return nil, nil
	}
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opt)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// New opens the database and Redis named in cfg and wires the services
// around them.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	db, err := OpenDB(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	rdb, err := OpenRedis(ctx, cfg.Redis.URL)
	if err != nil {
		db.Close()
		return nil, err
	}
	a, err := Build(ctx, cfg, db, rdb)
	if err != nil {
		if rdb != nil {
			rdb.Close()
		}
		db.Close()
		return nil, err
	}
	a.closers = append(a.closers, db.Close)
	if rdb != nil {
		a.closers = append(a.closers, rdb.Close)
	}
	return a, nil
}

// Build wires the services over already opened connections. rdb may be
// nil. The caller keeps ownership of db and rdb.
func Build(ctx context.Context, cfg *config.Config, db *sql.DB, rdb *redis.Client) (*App, error) {
	a := &App{Config: cfg, DB: db, Redis: rdb}

	convRepo := postgres.NewConversationRepo(db)
	msgRepo := postgres.NewMessageRepo(db)
	patternRepo := postgres.NewPatternRepo(db)

	fallback := cfg.Triage.Fallback()
	a.Settings = settings.NewStore(postgres.NewSettingsRepo(db), fallback)
	a.Learning = learning.NewService(patternRepo, conversationReader{convRepo, msgRepo}, fallback.DefaultLanguage)
	a.Conversations = conversation.NewService(convRepo, msgRepo, a.Learning)

	notifier, closers, err := BuildNotifier(ctx, cfg.Notify)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, closers...)
	a.Dispatcher = notify.NewDispatcher(notifier, notify.DispatcherConfig{
		QueueSize:   cfg.Notify.QueueSize,
		Workers:     cfg.Notify.Workers,
		SendTimeout: cfg.Notify.SendTimeout(),
	})

	var followUp engine.FollowUp
	if cfg.Queue.Enabled && cfg.Redis.URL != "" {
		client, err := queue.NewAsynqClient(cfg.Redis.URL)
		if err != nil {
			a.closeAll()
			return nil, err
		}
		a.closers = append(a.closers, client.Close)
		followUp = newFollowUp(client, cfg.Queue)
	}

	// only Redis leases expire on their own
	var leaseTTL time.Duration
	if rdb != nil {
		leaseTTL = cfg.Triage.LeaseTTL()
	}
	eng, err := engine.New(engine.Config{
		Conversations:   a.Conversations,
		Patterns:        patternRepo,
		Articles:        postgres.NewArticleRepo(db),
		Settings:        a.Settings,
		Locker:          distlock.NewLocker(rdb, db, cfg.Triage.LeaseTTL()),
		Notices:         a.Dispatcher,
		FollowUp:        followUp,
		LeaseWait:       cfg.Triage.LeaseWait(),
		LeaseTTL:        leaseTTL,
		DefaultLanguage: fallback.DefaultLanguage,
	})
	if err != nil {
		a.closeAll()
		return nil, err
	}
	a.Engine = eng
	a.Dispatcher.Start()
	return a, nil
}

func newFollowUp(client *asynq.Client, cfg config.QueueConfig) *queue.Client {
	return queue.NewClient(client, queue.ClientConfig{
		Delay:     cfg.Delay(),
		UniqueTTL: cfg.UniqueTTL(),
		MaxRetry:  cfg.MaxRetry,
	})
}

// BuildNotifier assembles the enabled notice channels. With nothing
// enabled notices are only logged. The returned closers release channel
// resources.
func BuildNotifier(ctx context.Context, cfg config.NotifyConfig) (notify.Notifier, []func() error, error) {
	var (
		channels notify.Multi
		closers  []func() error
	)

	if cfg.SES.Enabled {
		sesCfg := notify.SESConfig{
			Region:     cfg.SES.Region,
			AccessKey:  cfg.SES.AccessKey,
			SecretKey:  cfg.SES.SecretKey,
			FromEmail:  cfg.SES.FromEmail,
			FromName:   cfg.SES.FromName,
			Recipients: cfg.SES.Recipients,
			AdminURL:   cfg.SES.AdminURL,
		}
		client, err := notify.NewSESClient(ctx, sesCfg)
		if err != nil {
			return nil, nil, err
		}
		n, err := notify.NewSESNotifier(client, sesCfg)
		if err != nil {
			return nil, nil, err
		}
		channels = append(channels, n)
		logger.Info("[app] escalation email enabled", "recipients", len(sesCfg.Recipients))
	}

	if cfg.SQS.Enabled {
		client, err := notify.NewSQSClient(ctx, cfg.SQS.Region)
		if err != nil {
			return nil, nil, err
		}
		channels = append(channels, notify.NewSQSNotifier(client, cfg.SQS.QueueURL))
		logger.Info("[app] escalation work queue enabled", "queue_url", cfg.SQS.QueueURL)
	}

	if cfg.Kafka.Enabled {
		if len(cfg.Kafka.Brokers) == 0 {
			return nil, nil, errors.New("kafka notifier enabled without brokers")
		}
		w := notify.NewKafkaWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		closers = append(closers, w.Close)
		channels = append(channels, notify.NewKafkaNotifier(w))
		logger.Info("[app] escalation stream enabled", "topic", cfg.Kafka.Topic)
	}

	if cfg.Webhook.Enabled {
		if cfg.Webhook.URL == "" {
			return nil, nil, errors.New("webhook notifier enabled without url")
		}
		client := httpretry.NewRetryClient(&http.Client{Timeout: 15 * time.Second}, cfg.Webhook.MaxRetries)
		channels = append(channels, notify.NewWebhookNotifier(client, cfg.Webhook.URL, cfg.Webhook.Secret))
		logger.Info("[app] escalation webhook enabled")
	}

	if cfg.Log || len(channels) == 0 {
		channels = append(channels, notify.LogNotifier{})
	}
	if len(channels) == 1 {
		return channels[0], closers, nil
	}
	return channels, closers, nil
}

// Handlers builds the HTTP handlers over the wired services.
func (a *App) Handlers() *api.Handlers {
	return api.NewHandlers(api.Deps{
		Triager:       a.Engine,
		Conversations: a.Conversations,
		Learning:      a.Learning,
		Settings:      a.Settings,
		Notices:       a.Dispatcher,
		Health:        api.NewHealthChecker(a.DB, a.Redis, a.Dispatcher),
	})
}

// RegisterWorker attaches the triage task handler to a queue server.
func (a *App) RegisterWorker(srv *queue.Server) {
	queue.NewHandler(a.Engine, a.Config.Queue.TaskTimeout()).Register(srv.Mux())
}

// Close drains pending notices and releases connections.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.Dispatcher != nil {
		if err := a.Dispatcher.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("drain notices: %w", err))
		}
	}
	if err := a.closeAll(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (a *App) closeAll() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// conversationReader serves the learning service straight from the
// repositories so it does not depend on the conversation service, which
// reports pattern usage back to it.
type conversationReader struct {
	conversations *postgres.ConversationRepo
	messages      *postgres.MessageRepo
}

func (r conversationReader) Get(ctx context.Context, id string) (*domain.Conversation, error) {
	return r.conversations.Get(ctx, id)
}

func (r conversationReader) Messages(ctx context.Context, id string) ([]domain.Message, error) {
	return r.messages.List(ctx, id)
}
