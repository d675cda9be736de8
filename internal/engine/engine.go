// Package engine runs one triage evaluation per inbound event: it analyzes
// the latest customer message, matches patterns, lets the guard decide and
// applies exactly one outcome to the conversation under a per-conversation
// lease.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/deskpilot/support-triage/internal/domain"
	"github.com/deskpilot/support-triage/internal/notify"
	"github.com/deskpilot/support-triage/internal/pkg/distlock"
	"github.com/deskpilot/support-triage/internal/pkg/logger"
	"github.com/deskpilot/support-triage/internal/service/conversation"
	"github.com/deskpilot/support-triage/internal/service/settings"
	"github.com/deskpilot/support-triage/internal/triage"
)

const (
	// DefaultLeaseWait bounds how long Trigger waits for a busy lease.
	DefaultLeaseWait = 2 * time.Second

	// articleKeywords is how many leading keywords drive article search.
	articleKeywords = 3

	failSafeTimeout = 5 * time.Second
)

// Skip reasons reported in Result.Skipped.
const (
	SkipTerminal        = "terminal_status"
	SkipNoCustomerInput = "no_customer_message"
	SkipAnswered        = "already_answered"
)

// Config wires an Engine. Conversations, Patterns and Settings are
// required.
type Config struct {
	Conversations ConversationService
	Patterns      PatternSource
	Articles      ArticleSearcher
	Settings      SettingsSource
	Locker        distlock.Locker
	Notices       NoticeQueue
	FollowUp      FollowUp

	// LeaseWait bounds the wait for the conversation lease.
	LeaseWait time.Duration
	// LeaseTTL is how long the Locker keeps a lease without its holder.
	// When set, evaluation and fail-safe together are kept inside it.
	LeaseTTL time.Duration
	// DefaultLanguage is used for fail-safe text when no settings could be
	// read.
	DefaultLanguage string
}

// TriggerInput identifies one evaluation.
type TriggerInput struct {
	ConversationID string       `json:"conversation_id"`
	Source         triage.Source `json:"source"`
}

// InboundInput is a customer message arriving on a channel. An empty
// ConversationID opens a new conversation.
type InboundInput struct {
	ConversationID string          `json:"conversation_id"`
	CustomerID     string          `json:"customer_id"`
	Customer       domain.Customer `json:"customer"`
	Subject        string          `json:"subject"`
	Language       string          `json:"language"`
	Content        string          `json:"content"`
}

// Result describes what one evaluation did. Settled reports that only the
// state change of an answer stored by an earlier attempt was applied.
type Result struct {
	ConversationID string                  `json:"conversation_id"`
	Outcome        triage.Outcome          `json:"outcome,omitempty"`
	Reason         triage.EscalationReason `json:"reason,omitempty"`
	Message        *domain.Message         `json:"message,omitempty"`
	Analysis       *triage.Analysis        `json:"analysis,omitempty"`
	TopPatternID   string                  `json:"top_pattern_id,omitempty"`
	Confidence     float64                 `json:"confidence"`
	Skipped        string                  `json:"skipped,omitempty"`
	NoticeQueued   bool                    `json:"notice_queued"`
	Deferred       bool                    `json:"deferred"`
	Settled        bool                    `json:"settled"`
}

// Engine orchestrates triage evaluations.
type Engine struct {
	conversations ConversationService
	patterns      PatternSource
	articles      ArticleSearcher
	settings      SettingsSource
	locker        distlock.Locker
	notices       NoticeQueue
	followUp      FollowUp

	matcher     *triage.Matcher
	guard       *triage.Guard
	leaseWait   time.Duration
	leaseTTL    time.Duration
	defaultLang string
}

// New creates an engine. A nil Locker falls back to an in-process keyed
// mutex.
func New(cfg Config) (*Engine, error) {
	if cfg.Conversations == nil || cfg.Patterns == nil || cfg.Settings == nil {
		return nil, errors.New("engine: conversations, patterns and settings are required")
	}
	if cfg.Locker == nil {
		cfg.Locker = distlock.NewKeyedMutex()
	}
	if cfg.LeaseWait <= 0 {
		cfg.LeaseWait = DefaultLeaseWait
	}
	if cfg.DefaultLanguage == "" {
		cfg.DefaultLanguage = "nl"
	}
	return &Engine{
		conversations: cfg.Conversations,
		patterns:      cfg.Patterns,
		articles:      cfg.Articles,
		settings:      cfg.Settings,
		locker:        cfg.Locker,
		notices:       cfg.Notices,
		followUp:      cfg.FollowUp,
		matcher:       triage.NewMatcher(),
		guard:         triage.NewGuard(triage.NewRenderer()),
		leaseWait:     cfg.LeaseWait,
		leaseTTL:      cfg.LeaseTTL,
		defaultLang:   cfg.DefaultLanguage,
	}, nil
}

// HandleInbound stores a customer message, opening the conversation when
// needed, and triggers an evaluation. When the lease is busy and a FollowUp
// is configured the evaluation is deferred instead of failing.
func (e *Engine) HandleInbound(ctx context.Context, in InboundInput) (*Result, error) {
	if strings.TrimSpace(in.Content) == "" {
		return nil, fmt.Errorf("%w: empty message", ErrInvalidInput)
	}

	id := in.ConversationID
	if id == "" {
		c, _, err := e.conversations.Create(ctx, conversation.CreateInput{
			CustomerID: in.CustomerID,
			Customer:   in.Customer,
			Subject:    in.Subject,
			Language:   in.Language,
			Content:    in.Content,
		})
		if err != nil {
			return nil, fmt.Errorf("create conversation: %w", err)
		}
		id = c.ID
	} else if _, err := e.conversations.AppendCustomerMessage(ctx, id, in.Content); err != nil {
		return nil, fmt.Errorf("append customer message: %w", err)
	}

	res, err := e.Trigger(ctx, TriggerInput{ConversationID: id, Source: triage.SourceCustomerMessage})
	if errors.Is(err, ErrBusy) && e.followUp != nil {
		if ferr := e.followUp.EnqueueTrigger(ctx, id, triage.SourceFollowUp); ferr != nil {
			return nil, fmt.Errorf("defer evaluation: %w", ferr)
		}
		logger.Info("[engine.Engine] evaluation deferred", "conversation_id", id)
		return &Result{ConversationID: id, Deferred: true}, nil
	}
	return res, err
}

// Trigger evaluates the conversation once. It holds the conversation lease
// for the whole evaluation; ErrBusy means another evaluation holds it.
//
// Evaluation is bounded by the settings timeout. A failure before anything
// customer-facing was stored escalates the conversation as a fail-safe and
// the original error is still returned. Retrying recomputes everything from
// the stored history, so a retry after success or fail-safe is a no-op.
func (e *Engine) Trigger(ctx context.Context, in TriggerInput) (*Result, error) {
	if in.ConversationID == "" {
		return nil, fmt.Errorf("%w: conversation id is required", ErrInvalidInput)
	}
	if in.Source == "" {
		in.Source = triage.SourceCustomerMessage
	}

	leaseCtx, cancelLease := context.WithTimeout(ctx, e.leaseWait)
	release, err := e.locker.Acquire(leaseCtx, leaseKey(in.ConversationID))
	cancelLease()
	if err != nil {
		if errors.Is(err, distlock.ErrNotAcquired) {
			return nil, fmt.Errorf("%w: %s", ErrBusy, in.ConversationID)
		}
		return nil, fmt.Errorf("acquire lease: %w", err)
	}
	defer release()

	snap, err := e.settings.Snapshot(ctx)
	if err != nil {
		if settings.IsConfigError(err) {
			logger.Error("[engine.Engine] configuration error, evaluation refused",
				"conversation_id", in.ConversationID, "error", err)
			return nil, err
		}
		r := &run{id: in.ConversationID, lang: e.defaultLang}
		e.failSafe(ctx, r, err)
		return nil, fmt.Errorf("load settings: %w", err)
	}

	evalCtx, cancel := context.WithTimeout(ctx, e.evaluationTimeout(in.ConversationID, snap.EvaluationTimeout))
	defer cancel()

	r := &run{id: in.ConversationID, source: in.Source, settings: snap, lang: snap.DefaultLanguage}
	res, err := e.evaluate(evalCtx, r)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		if !r.persisted {
			e.failSafe(ctx, r, err)
		}
		return nil, err
	}
	return res, nil
}

// evaluationTimeout caps the configured timeout so that the evaluation and
// a fail-safe after it finish before the lease can expire.
func (e *Engine) evaluationTimeout(id string, configured time.Duration) time.Duration {
	if e.leaseTTL <= 0 {
		return configured
	}
	limit := e.leaseTTL - failSafeTimeout
	if limit <= 0 {
		limit = e.leaseTTL / 2
	}
	if configured <= limit {
		return configured
	}
	logger.Warn("[engine.Engine] evaluation timeout exceeds the lease, capped",
		"conversation_id", id, "configured", configured, "capped", limit, "lease_ttl", e.leaseTTL)
	return limit
}

// run carries the state of one evaluation.
type run struct {
	id       string
	source   triage.Source
	settings domain.Settings
	lang     string

	conversation *domain.Conversation
	history      []domain.Message
	analysis     triage.Analysis
	topPattern   string
	confidence   float64

	// persisted is set once a customer-facing message was stored.
	persisted bool
}

func (e *Engine) evaluate(ctx context.Context, r *run) (*Result, error) {
	c, err := e.conversations.Get(ctx, r.id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load conversation: %w", err)
	}
	r.conversation = c
	r.lang = triage.ReplyLanguage(c, "", r.settings.DefaultLanguage)

	history, err := e.conversations.Messages(ctx, r.id)
	if err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}
	r.history = history

	res := &Result{ConversationID: r.id}
	if c.Status.IsTerminal() {
		res.Skipped = SkipTerminal
		return res, nil
	}
	latest, adminContent, skip := pending(history, r.source)
	if skip == SkipAnswered {
		if err := e.settle(ctx, r, res); err != nil {
			return nil, err
		}
		if res.Settled {
			return res, nil
		}
	}
	if skip != "" {
		res.Skipped = skip
		logger.Debug("[engine.Engine] evaluation skipped", "conversation_id", r.id, "reason", skip)
		return res, nil
	}

	analyzer := triage.NewAnalyzer(r.settings)
	r.analysis = analyzer.Analyze(latest.Content)
	r.lang = triage.ReplyLanguage(c, r.analysis.Language, r.settings.DefaultLanguage)
	res.Analysis = &r.analysis

	matches, articles, err := e.gather(ctx, latest.Content, r.analysis.Keywords, r.lang)
	if err != nil {
		return nil, err
	}
	if top, ok := triage.Top(matches); ok {
		r.topPattern = top.Pattern.ID
		r.confidence = top.Confidence
	}

	if err := e.conversations.Classify(ctx, r.id, r.analysis.Priority, r.analysis.Category, r.analysis.Language); err != nil {
		return nil, fmt.Errorf("classify conversation: %w", err)
	}

	// an admin instruction is triggered by the admin, not by a new customer message
	trigger := latest
	if adminContent != "" {
		trigger = nil
	}
	d := e.guard.Decide(triage.Input{
		Conversation: c,
		Message:      trigger,
		History:      history,
		Source:       r.source,
		AdminContent: adminContent,
		Analysis:     r.analysis,
		Matches:      matches,
		Articles:     articles,
		Settings:     r.settings,
	})

	m, err := e.apply(ctx, r, d)
	if m != nil {
		r.persisted = true
	}
	if err != nil {
		return nil, fmt.Errorf("apply %s: %w", d.Outcome, err)
	}

	res.Outcome = d.Outcome
	res.Reason = d.Reason
	res.Message = m
	res.Confidence = d.Confidence
	res.TopPatternID = r.topPattern
	if d.Escalates() {
		res.NoticeQueued = e.notify(r, d, m)
	}

	logger.Info("[engine.Engine] evaluation complete",
		"conversation_id", r.id,
		"source", r.source,
		"outcome", d.Outcome,
		"reason", d.Reason,
		"confidence", d.Confidence,
		"category", r.analysis.Category,
		"priority", r.analysis.Priority,
	)
	return res, nil
}

// gather matches patterns and searches articles concurrently. Article
// search is best effort; pattern loading is not.
func (e *Engine) gather(ctx context.Context, content string, keywords []string, lang string) ([]triage.Match, []domain.KnowledgeArticle, error) {
	g, gctx := errgroup.WithContext(ctx)

	var matches []triage.Match
	g.Go(func() error {
		patterns, err := e.patterns.ActivePatterns(gctx)
		if err != nil {
			return fmt.Errorf("load patterns: %w", err)
		}
		matches = e.matcher.Match(content, patterns)
		return nil
	})

	if len(keywords) > articleKeywords {
		keywords = keywords[:articleKeywords]
	}
	found := make([][]domain.KnowledgeArticle, len(keywords))
	if e.articles != nil {
		for i, kw := range keywords {
			g.Go(func() error {
				arts, err := e.articles.SearchArticles(gctx, kw, lang)
				if err != nil {
					logger.Warn("[engine.Engine] article search failed", "keyword", kw, "error", err)
					return nil
				}
				found[i] = arts
				return nil
			})
		}
	}

	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, fmt.Errorf("evaluation deadline: %w", err)
	}
	return matches, dedupeArticles(found), nil
}

func (e *Engine) apply(ctx context.Context, r *run, d triage.Decision) (*domain.Message, error) {
	conf := d.Confidence
	switch d.Outcome {
	case triage.OutcomeAutoReply:
		in := conversation.ReplyInput{Content: d.Reply, Sender: d.Sender, Confidence: &conf}
		if d.Pattern != nil {
			in.PatternID = d.Pattern.ID
		}
		return e.conversations.ApplyAutoReply(ctx, r.id, in)
	case triage.OutcomeAdminReply:
		return e.conversations.ApplyAutoReply(ctx, r.id, conversation.ReplyInput{
			Content: d.Reply, Sender: d.Sender, Confidence: &conf,
		})
	case triage.OutcomeSuggestArticles:
		return e.conversations.ApplySuggestion(ctx, r.id, conversation.ReplyInput{
			Content: d.Reply, Sender: d.Sender, Confidence: &conf, SuggestedArticles: d.Articles,
		})
	case triage.OutcomeEscalate:
		return e.conversations.Escalate(ctx, r.id, conversation.EscalateInput{
			Level:             d.HandledBy,
			Reason:            string(d.Reason),
			Content:           d.Reply,
			SuggestedArticles: d.Articles,
		})
	}
	return nil, fmt.Errorf("%w: unknown outcome %q", conversation.ErrInvariantViolation, d.Outcome)
}

// failSafe escalates after a failed evaluation. It runs detached from the
// caller's deadline, which has usually expired by now.
func (e *Engine) failSafe(ctx context.Context, r *run, cause error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), failSafeTimeout)
	defer cancel()

	logger.Error("[engine.Engine] evaluation failed, escalating",
		"conversation_id", r.id, "error", cause)

	if r.conversation == nil {
		c, err := e.conversations.Get(ctx, r.id)
		if err != nil {
			logger.Error("[engine.Engine] fail-safe escalation impossible",
				"conversation_id", r.id, "error", err)
			return
		}
		r.conversation = c
		r.lang = triage.ReplyLanguage(c, "", r.lang)
	}
	if r.conversation.Status.IsTerminal() {
		return
	}
	if r.history == nil {
		history, err := e.conversations.Messages(ctx, r.id)
		if err != nil {
			logger.Error("[engine.Engine] fail-safe escalation impossible",
				"conversation_id", r.id, "error", err)
			return
		}
		r.history = history
	}
	// a previous attempt may already have answered or escalated
	if _, _, skip := pending(r.history, triage.SourceCustomerMessage); skip != "" {
		return
	}

	d := triage.EvaluationFailed(r.lang)
	m, err := e.conversations.Escalate(ctx, r.id, conversation.EscalateInput{
		Level:   d.HandledBy,
		Reason:  string(d.Reason),
		Content: d.Reply,
	})
	if err != nil {
		logger.Error("[engine.Engine] fail-safe escalation failed",
			"conversation_id", r.id, "error", err)
		return
	}
	r.persisted = true
	e.notify(r, d, m)
}

// settle applies the state change of an automated answer that closes the
// history when the conversation does not reflect it yet. That happens when
// an earlier attempt stored the message but failed to update the
// conversation.
func (e *Engine) settle(ctx context.Context, r *run, res *Result) error {
	answer := unsettled(r.history)
	if answer == nil {
		return nil
	}
	c := r.conversation

	switch answer.SenderType {
	case domain.SenderSystem:
		if answer.EscalationReason == "" {
			return nil
		}
		reason := triage.EscalationReason(answer.EscalationReason)
		level := reason.TargetLevel()
		if c.Status == domain.StatusWaitingSupport && c.HandledBy.Max(level) == c.HandledBy {
			return nil
		}
		if _, err := e.conversations.Escalate(ctx, r.id, conversation.EscalateInput{
			Level:  level,
			Reason: string(reason),
		}); err != nil {
			return fmt.Errorf("settle escalation: %w", err)
		}
		if latest := domain.LastBySender(r.history, domain.SenderUser); latest != nil {
			r.analysis = triage.NewAnalyzer(r.settings).Analyze(latest.Content)
		}
		d := triage.Decision{Outcome: triage.OutcomeEscalate, Reason: reason, HandledBy: level}
		res.Outcome = d.Outcome
		res.Reason = d.Reason
		res.NoticeQueued = e.notify(r, d, nil)

	case domain.SenderAI:
		changed, err := e.conversations.Settle(ctx, r.id, *answer)
		if err != nil {
			return fmt.Errorf("settle reply: %w", err)
		}
		if !changed {
			return nil
		}
		res.Outcome = triage.OutcomeAutoReply
		if len(answer.SuggestedArticles) > 0 && answer.PatternID == nil {
			res.Outcome = triage.OutcomeSuggestArticles
		}
		if answer.PatternID != nil {
			res.TopPatternID = *answer.PatternID
		}

	default:
		return nil
	}

	res.Settled = true
	res.Message = answer
	logger.Info("[engine.Engine] stored answer settled",
		"conversation_id", r.id, "message_id", answer.ID, "outcome", res.Outcome)
	return nil
}

// notify enqueues the escalation notice. Delivery never affects the
// conversation state.
func (e *Engine) notify(r *run, d triage.Decision, m *domain.Message) bool {
	if e.notices == nil || r.conversation == nil {
		return false
	}
	c := *r.conversation
	c.Status = domain.StatusWaitingSupport
	c.HandledBy = c.HandledBy.Max(d.HandledBy)

	history := r.history
	if m != nil {
		history = append(append([]domain.Message(nil), history...), *m)
	}
	return e.notices.Enqueue(notify.NewNotice(c, history, notify.Summary{
		Reason:        string(d.Reason),
		Keywords:      r.analysis.Keywords,
		ErrorCodes:    r.analysis.ErrorCodes,
		Category:      r.analysis.Category,
		Priority:      r.analysis.Priority,
		Language:      r.lang,
		Frustrated:    r.analysis.Frustrated,
		TopPatternID:  r.topPattern,
		TopConfidence: r.confidence,
	}))
}

// pending finds the customer message to answer. For customer and follow-up
// triggers that is the latest user message, unless something visible to the
// customer already follows it. Admin instructions relay the latest admin
// message when it is newer than the customer's, unless an ai reply already
// follows it.
func pending(history []domain.Message, src triage.Source) (*domain.Message, string, string) {
	lastUser, lastAdmin := -1, -1
	for i := range history {
		switch history[i].SenderType {
		case domain.SenderUser:
			lastUser = i
		case domain.SenderAdmin:
			lastAdmin = i
		}
	}
	if lastUser < 0 {
		return nil, "", SkipNoCustomerInput
	}

	if src == triage.SourceAdminInstruction && lastAdmin > lastUser {
		for _, m := range history[lastAdmin+1:] {
			if m.SenderType == domain.SenderAI {
				return nil, "", SkipAnswered
			}
		}
		return &history[lastUser], history[lastAdmin].Content, ""
	}

	for _, m := range history[lastUser+1:] {
		switch {
		case m.SenderType == domain.SenderAI, m.SenderType == domain.SenderSystem:
			return nil, "", SkipAnswered
		case m.SenderType == domain.SenderAdmin && !m.IsInternal:
			return nil, "", SkipAnswered
		}
	}
	return &history[lastUser], "", ""
}

// unsettled returns the automated message that closes history, or nil when
// a person spoke last. Internal notes are ignored.
func unsettled(history []domain.Message) *domain.Message {
	for i := len(history) - 1; i >= 0; i-- {
		m := &history[i]
		switch {
		case m.SenderType == domain.SenderAdmin && m.IsInternal:
			continue
		case m.SenderType == domain.SenderAI, m.SenderType == domain.SenderSystem:
			return m
		}
		return nil
	}
	return nil
}

func dedupeArticles(groups [][]domain.KnowledgeArticle) []domain.KnowledgeArticle {
	seen := make(map[string]struct{})
	var out []domain.KnowledgeArticle
	for _, g := range groups {
		for _, a := range g {
			key := a.ID
			if key == "" {
				key = a.Slug
			}
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, a)
		}
	}
	return out
}

func leaseKey(conversationID string) string {
	return "triage:conversation:" + conversationID
}
