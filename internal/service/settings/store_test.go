package settings_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deskpilot/support-triage/internal/domain"
	"github.com/deskpilot/support-triage/internal/service/settings"
)

type memRepo struct {
	mu     sync.Mutex
	values map[string]string
	err    error
	reads  int
}

func newMemRepo(kv map[string]string) *memRepo {
	if kv == nil {
		kv = map[string]string{}
	}
	return &memRepo{values: kv}
}

func (m *memRepo) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reads++
	if m.err != nil {
		return "", m.err
	}
	v, ok := m.values[key]
	if !ok {
		return "", settings.ErrNotFound
	}
	return v, nil
}

func (m *memRepo) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

func TestSnapshot_FallbackOnly(t *testing.T) {
	store := settings.NewStore(newMemRepo(nil), domain.DefaultSettings())

	got, err := store.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultSettings(), got)
}

func TestSnapshot_StoredValuesWin(t *testing.T) {
	repo := newMemRepo(map[string]string{
		domain.SettingAutoReplyEnabled:    "false",
		domain.SettingConfidenceThreshold: "0.85",
		domain.SettingMaxAIResponses:      "3",
		domain.SettingEvaluationTimeout:   "2",
		domain.SettingDefaultLanguage:     "EN",
		domain.SettingSupportEmail:        "support@example.com",
	})
	store := settings.NewStore(repo, domain.DefaultSettings())

	got, err := store.Snapshot(context.Background())
	require.NoError(t, err)
	assert.False(t, got.AutoReplyEnabled)
	assert.Equal(t, 0.85, got.ConfidenceThreshold)
	assert.Equal(t, 3, got.MaxAIResponses)
	assert.Equal(t, 2*time.Second, got.EvaluationTimeout)
	assert.Equal(t, "en", got.DefaultLanguage)
	assert.Equal(t, "support@example.com", got.SupportEmail)
	assert.Equal(t, 0.5, got.EscalationFloor)
}

func TestSnapshot_ReadsFreshEveryTime(t *testing.T) {
	repo := newMemRepo(map[string]string{domain.SettingMaxAIResponses: "5"})
	store := settings.NewStore(repo, domain.DefaultSettings())
	ctx := context.Background()

	first, err := store.Snapshot(ctx)
	require.NoError(t, err)
	require.NoError(t, repo.Set(ctx, domain.SettingMaxAIResponses, "2"))
	second, err := store.Snapshot(ctx)
	require.NoError(t, err)

	assert.Equal(t, 5, first.MaxAIResponses)
	assert.Equal(t, 2, second.MaxAIResponses)
}

func TestSnapshot_MissingRequired(t *testing.T) {
	store := settings.NewStore(newMemRepo(nil), domain.Settings{EvaluationTimeout: time.Second})

	_, err := store.Snapshot(context.Background())
	require.Error(t, err)
	var ce *settings.ConfigError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, domain.SettingConfidenceThreshold, ce.Key)
	assert.True(t, settings.IsConfigError(err))
}

func TestSnapshot_InvalidValues(t *testing.T) {
	tests := []struct {
		key, value string
	}{
		{domain.SettingConfidenceThreshold, "hoog"},
		{domain.SettingConfidenceThreshold, "1.5"},
		{domain.SettingMaxAIResponses, "0"},
		{domain.SettingAutoReplyEnabled, "misschien"},
		{domain.SettingEvaluationTimeout, "soon"},
	}
	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			store := settings.NewStore(newMemRepo(map[string]string{tt.key: tt.value}), domain.DefaultSettings())
			_, err := store.Snapshot(context.Background())
			assert.True(t, settings.IsConfigError(err), "got %v", err)
		})
	}
}

func TestSnapshot_StorageErrorIsNotConfigError(t *testing.T) {
	repo := newMemRepo(nil)
	repo.err = errors.New("connection refused")
	store := settings.NewStore(repo, domain.DefaultSettings())

	_, err := store.Snapshot(context.Background())
	require.Error(t, err)
	assert.False(t, settings.IsConfigError(err))
}

func TestSet(t *testing.T) {
	repo := newMemRepo(nil)
	store := settings.NewStore(repo, domain.DefaultSettings())
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, domain.SettingConfidenceThreshold, " 0.9 "))
	assert.Equal(t, "0.9", repo.values[domain.SettingConfidenceThreshold])

	assert.True(t, settings.IsConfigError(store.Set(ctx, "unknown_key", "1")))
	assert.True(t, settings.IsConfigError(store.Set(ctx, domain.SettingMaxAIResponses, "veel")))
}

func TestSeed(t *testing.T) {
	repo := newMemRepo(map[string]string{domain.SettingMaxAIResponses: "7"})
	store := settings.NewStore(repo, domain.DefaultSettings())

	n, err := store.Seed(context.Background())
	require.NoError(t, err)
	assert.Equal(t, len(settings.Keys())-1, n)
	assert.Equal(t, "7", repo.values[domain.SettingMaxAIResponses])
	assert.Equal(t, "0.7", repo.values[domain.SettingConfidenceThreshold])
	assert.Equal(t, "5", repo.values[domain.SettingEvaluationTimeout])
	assert.Equal(t, "true", repo.values[domain.SettingAutoReplyEnabled])

	got, err := store.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, got.MaxAIResponses)
}
