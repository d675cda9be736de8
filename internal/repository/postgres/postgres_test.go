package postgres_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deskpilot/support-triage/internal/domain"
	"github.com/deskpilot/support-triage/internal/repository/postgres"
	"github.com/deskpilot/support-triage/internal/service/conversation"
	"github.com/deskpilot/support-triage/internal/service/learning"
	"github.com/deskpilot/support-triage/internal/service/settings"
)

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})
	return db, mock
}

var conversationCols = []string{
	"id", "customer_id", "subject", "language", "status", "priority",
	"category", "handled_by", "last_pattern_id", "pattern_outcome_tracked", "assigned_to",
	"resolved_at", "resolution_type", "resolution_notes",
	"satisfaction_rating", "satisfaction_feedback", "created_at", "updated_at",
	"name", "email", "plan", "language",
}

func TestConversationRepo_Get(t *testing.T) {
	db, mock := newMock(t)
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT c.id").
		WithArgs("conv-1").
		WillReturnRows(sqlmock.NewRows(conversationCols).AddRow(
			"conv-1", "cust-1", "Token verlopen", "nl", "waiting_user", "high",
			"technical", "ai", "p-token", true, nil,
			nil, "", "",
			4, "top", now, now,
			"Sanne", "sanne@example.com", "pro", "nl",
		))

	c, err := postgres.NewConversationRepo(db).Get(context.Background(), "conv-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusWaitingUser, c.Status)
	assert.Equal(t, domain.PriorityHigh, c.Priority)
	assert.Equal(t, domain.HandledByAI, c.HandledBy)
	require.NotNil(t, c.LastPatternID)
	assert.Equal(t, "p-token", *c.LastPatternID)
	assert.True(t, c.PatternOutcomeTracked)
	assert.Nil(t, c.AssignedTo)
	assert.Nil(t, c.ResolvedAt)
	require.NotNil(t, c.SatisfactionRating)
	assert.Equal(t, 4, *c.SatisfactionRating)
	assert.Equal(t, domain.Customer{ID: "cust-1", Name: "Sanne", Email: "sanne@example.com", Plan: "pro", Language: "nl"}, c.Customer)
}

func TestConversationRepo_GetNotFound(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery("SELECT c.id").WillReturnError(sql.ErrNoRows)

	_, err := postgres.NewConversationRepo(db).Get(context.Background(), "missing")
	assert.ErrorIs(t, err, conversation.ErrNotFound)
}

func TestConversationRepo_Create(t *testing.T) {
	db, mock := newMock(t)
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO support_customers").
		WithArgs("cust-1", "Sanne", "sanne@example.com", "", "").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO support_conversations").
		WithArgs(sqlmock.AnyArg(), "cust-1", "Hulp", "", domain.StatusOpen, domain.PriorityNormal,
			domain.CategoryOther, domain.HandledByAI, now, now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO support_messages").
		WithArgs("m-1", sqlmock.AnyArg(), domain.SenderUser, "cust-1", "Mijn token is verlopen",
			sqlmock.AnyArg(), sqlmock.AnyArg(), "[]", false, "", now).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	c := &domain.Conversation{
		CustomerID: "cust-1",
		Customer:   domain.Customer{Name: "Sanne", Email: "sanne@example.com"},
		Subject:    "Hulp",
		Status:     domain.StatusOpen,
		Priority:   domain.PriorityNormal,
		Category:   domain.CategoryOther,
		HandledBy:  domain.HandledByAI,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	first := &domain.Message{
		ID:         "m-1",
		SenderType: domain.SenderUser,
		SenderID:   "cust-1",
		Content:    "Mijn token is verlopen",
		CreatedAt:  now,
	}
	require.NoError(t, postgres.NewConversationRepo(db).Create(context.Background(), c, first))
	assert.NotEmpty(t, c.ID)
	assert.Equal(t, c.ID, first.ConversationID)
}

func TestConversationRepo_CreateRollsBack(t *testing.T) {
	db, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO support_customers").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO support_conversations").WillReturnError(errors.New("fk violation"))
	mock.ExpectRollback()

	err := postgres.NewConversationRepo(db).Create(context.Background(), &domain.Conversation{ID: "c1", CustomerID: "x"}, nil)
	assert.ErrorContains(t, err, "fk violation")
}

func TestConversationRepo_CreateRollsBackWithoutFirstMessage(t *testing.T) {
	db, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO support_customers").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO support_conversations").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO support_messages").WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err := postgres.NewConversationRepo(db).Create(context.Background(),
		&domain.Conversation{ID: "c1", CustomerID: "x"},
		&domain.Message{SenderType: domain.SenderUser, Content: "hallo"})
	assert.ErrorContains(t, err, "disk full")
}

func TestConversationRepo_UpdatePatternOutcome(t *testing.T) {
	db, mock := newMock(t)
	pattern := "p-token"
	tracked := false

	mock.ExpectExec(`SET last_pattern_id = \$1, pattern_outcome_tracked = \$2, updated_at = NOW\(\) WHERE id = \$3`).
		WithArgs(pattern, tracked, "conv-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := postgres.NewConversationRepo(db).Update(context.Background(), "conv-1",
		conversation.UpdateFields{LastPatternID: &pattern, PatternOutcomeTracked: &tracked})
	require.NoError(t, err)
}

func TestConversationRepo_Update(t *testing.T) {
	db, mock := newMock(t)
	status := domain.StatusWaitingSupport
	level := domain.HandledByHybrid

	mock.ExpectExec(`UPDATE support_conversations SET status = \$1, handled_by = \$2, updated_at = NOW\(\) WHERE id = \$3`).
		WithArgs(status, level, "conv-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := postgres.NewConversationRepo(db).Update(context.Background(), "conv-1",
		conversation.UpdateFields{Status: &status, HandledBy: &level})
	require.NoError(t, err)
}

func TestConversationRepo_UpdateClearResolution(t *testing.T) {
	db, mock := newMock(t)
	status := domain.StatusWaitingSupport

	mock.ExpectExec(`SET status = \$1, resolved_at = NULL, resolution_type = '', resolution_notes = '', updated_at = NOW\(\) WHERE id = \$2`).
		WithArgs(status, "conv-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := postgres.NewConversationRepo(db).Update(context.Background(), "conv-1",
		conversation.UpdateFields{Status: &status, ClearResolution: true})
	assert.ErrorIs(t, err, conversation.ErrNotFound)
}

func TestConversationRepo_UpdateNothing(t *testing.T) {
	db, _ := newMock(t)
	assert.NoError(t, postgres.NewConversationRepo(db).Update(context.Background(), "conv-1", conversation.UpdateFields{}))
}

func TestMessageRepo_AddAndList(t *testing.T) {
	db, mock := newMock(t)
	repo := postgres.NewMessageRepo(db)
	conf := 0.8
	pid := "p-token"

	mock.ExpectExec("INSERT INTO support_messages").
		WithArgs(sqlmock.AnyArg(), "conv-1", domain.SenderAI, "", "Vernieuw je token.",
			sqlmock.AnyArg(), sqlmock.AnyArg(), `["api-token"]`, false, "", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	m := &domain.Message{
		ConversationID:    "conv-1",
		SenderType:        domain.SenderAI,
		Content:           "Vernieuw je token.",
		AIConfidence:      &conf,
		PatternID:         &pid,
		SuggestedArticles: []string{"api-token"},
	}
	require.NoError(t, repo.Add(context.Background(), m))
	assert.NotEmpty(t, m.ID)
	assert.False(t, m.CreatedAt.IsZero())

	now := time.Now().UTC()
	mock.ExpectQuery("SELECT id, conversation_id").
		WithArgs("conv-1").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "conversation_id", "sender_type", "sender_id", "content", "ai_confidence",
			"pattern_id", "suggested_articles", "is_internal", "escalation_reason", "created_at",
		}).
			AddRow("m1", "conv-1", "user", "cust-1", "mijn token is verlopen", nil, nil, "[]", false, "", now).
			AddRow("m2", "conv-1", "ai", "", "Vernieuw je token.", 0.8, "p-token", `["api-token"]`, false, "", now).
			AddRow("m3", "conv-1", "system", "", "Een collega neemt het over.", nil, nil, "[]", false, "human_requested", now))

	msgs, err := repo.List(context.Background(), "conv-1")
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, domain.SenderUser, msgs[0].SenderType)
	assert.Nil(t, msgs[0].AIConfidence)
	assert.Empty(t, msgs[0].SuggestedArticles)
	require.NotNil(t, msgs[1].AIConfidence)
	assert.Equal(t, 0.8, *msgs[1].AIConfidence)
	assert.Equal(t, "p-token", *msgs[1].PatternID)
	assert.Equal(t, []string{"api-token"}, msgs[1].SuggestedArticles)
	assert.Equal(t, "human_requested", msgs[2].EscalationReason)
}

var patternCols = []string{
	"id", "name", "keywords", "expression", "error_codes", "category", "responses",
	"min_confidence", "is_active", "times_triggered", "times_resolved", "times_escalated",
	"created_by", "created_at", "updated_at",
}

func TestPatternRepo_ActivePatterns(t *testing.T) {
	db, mock := newMock(t)
	now := time.Now().UTC()

	mock.ExpectQuery("SELECT id, name, keywords").
		WillReturnRows(sqlmock.NewRows(patternCols).AddRow(
			"p-token", "expired token", `["token","verlopen"]`, `token.*verlopen`, `["401"]`, "technical",
			`{"nl":"Vernieuw je token."}`, 0.5, true, 10, 7, 3, "admin-1", now, now,
		))

	ps, err := postgres.NewPatternRepo(db).ActivePatterns(context.Background())
	require.NoError(t, err)
	require.Len(t, ps, 1)
	p := ps[0]
	assert.Equal(t, []string{"token", "verlopen"}, p.Keywords)
	assert.Equal(t, []string{"401"}, p.ErrorCodes)
	assert.Equal(t, map[string]string{"nl": "Vernieuw je token."}, p.Responses)
	assert.Equal(t, 10, p.TimesTriggered)
	assert.True(t, p.IsActive)
}

func TestPatternRepo_TrackUsage(t *testing.T) {
	db, mock := newMock(t)
	repo := postgres.NewPatternRepo(db)

	mock.ExpectExec("UPDATE support_patterns SET").
		WithArgs("p-token", true).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.TrackUsage(context.Background(), "p-token", true))

	mock.ExpectExec("UPDATE support_patterns SET").
		WithArgs("missing", false).
		WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, repo.TrackUsage(context.Background(), "missing", false), learning.ErrPatternNotFound)
}

func TestPatternRepo_Create(t *testing.T) {
	db, mock := newMock(t)

	mock.ExpectExec("INSERT INTO support_patterns").
		WithArgs(sqlmock.AnyArg(), "suggested: token", `["token"]`, "", "[]", domain.CategoryTechnical,
			`{"nl":"Vernieuw je token."}`, 0.6, false, "admin-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	p := &domain.Pattern{
		Name:          "suggested: token",
		Keywords:      []string{"token"},
		Category:      domain.CategoryTechnical,
		Responses:     map[string]string{"nl": "Vernieuw je token."},
		MinConfidence: 0.6,
		CreatedBy:     "admin-1",
	}
	require.NoError(t, postgres.NewPatternRepo(db).Create(context.Background(), p))
	assert.NotEmpty(t, p.ID)
}

func TestArticleRepo_SearchArticles(t *testing.T) {
	db, mock := newMock(t)
	now := time.Now().UTC()

	mock.ExpectQuery("SELECT id, slug, title").
		WithArgs(`%100\%%`, "nl", postgres.DefaultArticleLimit).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "slug", "title", "content", "tags", "published", "view_count", "helpful_count",
			"created_at", "updated_at",
		}).AddRow("a1", "quota", `{"nl":"Quota"}`, `{"nl":"100% van je quota"}`, `["quota"]`, true, 12, 4, now, now))

	arts, err := postgres.NewArticleRepo(db).SearchArticles(context.Background(), "100%", "nl")
	require.NoError(t, err)
	require.Len(t, arts, 1)
	assert.Equal(t, "Quota", arts[0].TitleFor("nl"))
	assert.Equal(t, []string{"quota"}, arts[0].Tags)

	none, err := postgres.NewArticleRepo(db).SearchArticles(context.Background(), "  ", "nl")
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestSettingsRepo(t *testing.T) {
	db, mock := newMock(t)
	repo := postgres.NewSettingsRepo(db)

	mock.ExpectQuery("SELECT value FROM support_settings").
		WithArgs(domain.SettingMaxAIResponses).
		WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow("5"))
	v, err := repo.Get(context.Background(), domain.SettingMaxAIResponses)
	require.NoError(t, err)
	assert.Equal(t, "5", v)

	mock.ExpectQuery("SELECT value FROM support_settings").
		WithArgs("unknown").
		WillReturnError(sql.ErrNoRows)
	_, err = repo.Get(context.Background(), "unknown")
	assert.ErrorIs(t, err, settings.ErrNotFound)

	mock.ExpectExec("INSERT INTO support_settings").
		WithArgs(domain.SettingConfidenceThreshold, "0.8").
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.Set(context.Background(), domain.SettingConfidenceThreshold, "0.8"))
}

func TestSettingsStoreOverPostgres(t *testing.T) {
	db, mock := newMock(t)
	store := settings.NewStore(postgres.NewSettingsRepo(db), domain.DefaultSettings())

	for _, key := range settings.Keys() {
		q := mock.ExpectQuery("SELECT value FROM support_settings").WithArgs(key)
		if key == domain.SettingMaxAIResponses {
			q.WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow("3"))
			continue
		}
		q.WillReturnError(sql.ErrNoRows)
	}

	snap, err := store.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, snap.MaxAIResponses)
	assert.Equal(t, 0.7, snap.ConfidenceThreshold)
}

func TestMigrate(t *testing.T) {
	db, mock := newMock(t)
	mock.MatchExpectationsInOrder(true)
	for _, prefix := range []string{
		"CREATE TABLE IF NOT EXISTS support_customers",
		"CREATE TABLE IF NOT EXISTS support_conversations",
		"CREATE INDEX IF NOT EXISTS idx_support_conversations_queue",
		"CREATE TABLE IF NOT EXISTS support_messages",
		"CREATE INDEX IF NOT EXISTS idx_support_messages_conversation",
		"CREATE TABLE IF NOT EXISTS support_patterns",
		"CREATE TABLE IF NOT EXISTS support_articles",
		"CREATE TABLE IF NOT EXISTS support_settings",
	} {
		mock.ExpectExec(prefix).WillReturnResult(sqlmock.NewResult(0, 0))
	}

	n, err := postgres.Migrate(context.Background(), db)
	require.NoError(t, err)
	assert.Equal(t, 8, n)
}
