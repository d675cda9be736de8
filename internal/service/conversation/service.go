package conversation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/deskpilot/support-triage/internal/domain"
	"github.com/deskpilot/support-triage/internal/pkg/logger"
)

// Service implements the conversation state machine. Create stores the
// conversation and its first message together. Every later mutation appends
// its message first and then updates the conversation, so a persisted
// customer-facing message is never lost to a failed update; Settle applies
// such a lost update from the stored message.
// All public methods are safe for concurrent use if the underlying
// repositories are; callers serialize work per conversation.
type Service struct {
	repo     Repository
	messages MessageRepository
	tracker  UsageTracker
	now      func() time.Time
}

// NewService creates a conversation service. tracker may be nil, in which
// case pattern outcome signals are dropped.
func NewService(repo Repository, messages MessageRepository, tracker UsageTracker) *Service {
	return &Service{repo: repo, messages: messages, tracker: tracker, now: time.Now}
}

// CreateInput holds the fields for opening a conversation.
type CreateInput struct {
	CustomerID string          `json:"customer_id"`
	Customer   domain.Customer `json:"customer"`
	Subject    string          `json:"subject"`
	Language   string          `json:"language"`
	Content    string          `json:"content"`
}

// ReplyInput describes an automated customer-facing message.
type ReplyInput struct {
	Content           string
	Sender            domain.SenderType
	PatternID         string
	Confidence        *float64
	SuggestedArticles []string
}

// EscalateInput describes a hand-off to a human.
type EscalateInput struct {
	Level             domain.HandledBy
	Reason            string
	Content           string
	SuggestedArticles []string
}

// ResolveInput holds the resolution metadata.
type ResolveInput struct {
	Type  domain.ResolutionType `json:"type"`
	Notes string                `json:"notes"`
}

// Get returns a single conversation.
func (s *Service) Get(ctx context.Context, id string) (*domain.Conversation, error) {
	return s.repo.Get(ctx, id)
}

// Messages returns the persisted history of a conversation.
func (s *Service) Messages(ctx context.Context, id string) ([]domain.Message, error) {
	return s.messages.List(ctx, id)
}

// Create opens a conversation in status open, handled by ai, with the
// customer's first message.
func (s *Service) Create(ctx context.Context, in CreateInput) (*domain.Conversation, *domain.Message, error) {
	if in.CustomerID == "" {
		return nil, nil, fmt.Errorf("customer_id is required")
	}
	if strings.TrimSpace(in.Content) == "" {
		return nil, nil, ErrEmptyMessage
	}

	now := s.now().UTC()
	customer := in.Customer
	customer.ID = in.CustomerID
	c := &domain.Conversation{
		ID:         uuid.New().String(),
		CustomerID: in.CustomerID,
		Customer:   customer,
		Subject:    in.Subject,
		Language:   in.Language,
		Status:     domain.StatusOpen,
		Priority:   domain.PriorityNormal,
		Category:   domain.CategoryOther,
		HandledBy:  domain.HandledByAI,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if c.Subject == "" {
		c.Subject = subjectFrom(in.Content)
	}
	m := s.stamp(c.ID, domain.Message{
		SenderType: domain.SenderUser,
		SenderID:   in.CustomerID,
		Content:    in.Content,
	})
	if err := s.repo.Create(ctx, c, &m); err != nil {
		return nil, nil, fmt.Errorf("create conversation: %w", err)
	}
	logger.Info("[conversation.Service] conversation opened", "conversation_id", c.ID, "customer_id", c.CustomerID)
	return c, &m, nil
}

// AppendCustomerMessage records an inbound customer message and moves the
// conversation to waiting_support. A resolved or closed conversation is
// reopened and loses its resolution metadata.
func (s *Service) AppendCustomerMessage(ctx context.Context, id, content string) (*domain.Message, error) {
	if strings.TrimSpace(content) == "" {
		return nil, ErrEmptyMessage
	}
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !CanTransition(c.Status, domain.StatusWaitingSupport) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, c.Status, domain.StatusWaitingSupport)
	}

	m, err := s.append(ctx, id, domain.Message{
		SenderType: domain.SenderUser,
		SenderID:   c.CustomerID,
		Content:    content,
	})
	if err != nil {
		return nil, err
	}

	u := UpdateFields{}
	if c.Status == domain.StatusResolved || c.Status == domain.StatusClosed {
		u.ClearResolution = true
		logger.Info("[conversation.Service] customer reopened conversation", "conversation_id", id, "from", c.Status)
	}
	if err := s.setStatus(ctx, c, domain.StatusWaitingSupport, u); err != nil {
		return m, err
	}
	return m, nil
}

// AppendAdminMessage records a message from support staff. A visible reply
// hands the conversation to a human and waits for the customer; an
// internal note changes nothing but the log.
func (s *Service) AppendAdminMessage(ctx context.Context, id, adminID, content string, internal bool) (*domain.Message, error) {
	if strings.TrimSpace(content) == "" {
		return nil, ErrEmptyMessage
	}
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	m, err := s.append(ctx, id, domain.Message{
		SenderType: domain.SenderAdmin,
		SenderID:   adminID,
		Content:    content,
		IsInternal: internal,
	})
	if err != nil {
		return nil, err
	}
	if internal {
		return m, nil
	}

	human := c.HandledBy.Max(domain.HandledByHuman)
	u := UpdateFields{HandledBy: &human}
	if c.Status.IsTerminal() {
		if err := s.repo.Update(ctx, id, u); err != nil {
			return m, fmt.Errorf("update conversation: %w", err)
		}
		return m, nil
	}
	if err := s.setStatus(ctx, c, domain.StatusWaitingUser, u); err != nil {
		return m, err
	}
	return m, nil
}

// ApplyAutoReply records an automated answer and waits for the customer.
func (s *Service) ApplyAutoReply(ctx context.Context, id string, in ReplyInput) (*domain.Message, error) {
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !CanTransition(c.Status, domain.StatusWaitingUser) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, c.Status, domain.StatusWaitingUser)
	}

	m, err := s.append(ctx, id, replyMessage(in))
	if err != nil {
		return nil, err
	}

	if err := s.setStatus(ctx, c, domain.StatusWaitingUser, replyFields(in.PatternID)); err != nil {
		return m, err
	}
	return m, nil
}

// Settle applies the state change of an automated message that is already
// stored, for when the update after storing it failed. A reply waits for
// the customer and records its pattern; a message with suggested articles
// waits for support. It reports whether anything changed.
func (s *Service) Settle(ctx context.Context, id string, m domain.Message) (bool, error) {
	if m.SenderType != domain.SenderAI {
		return false, fmt.Errorf("%w: settle %s message", ErrInvariantViolation, m.SenderType)
	}
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return false, err
	}

	if len(m.SuggestedArticles) > 0 && m.PatternID == nil {
		if c.Status == domain.StatusWaitingSupport {
			return false, nil
		}
		return true, s.setStatus(ctx, c, domain.StatusWaitingSupport, UpdateFields{})
	}

	patternID := ""
	if m.PatternID != nil {
		patternID = *m.PatternID
	}
	samePattern := patternID == "" || (c.LastPatternID != nil && *c.LastPatternID == patternID)
	if c.Status == domain.StatusWaitingUser && samePattern {
		return false, nil
	}
	if err := s.setStatus(ctx, c, domain.StatusWaitingUser, replyFields(patternID)); err != nil {
		return false, err
	}
	logger.Info("[conversation.Service] stored reply settled", "conversation_id", id, "message_id", m.ID)
	return true, nil
}

// ApplySuggestion records an article-suggestion hand-off. The conversation
// keeps waiting for support and handled_by is unchanged.
func (s *Service) ApplySuggestion(ctx context.Context, id string, in ReplyInput) (*domain.Message, error) {
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !CanTransition(c.Status, domain.StatusWaitingSupport) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, c.Status, domain.StatusWaitingSupport)
	}

	m, err := s.append(ctx, id, replyMessage(in))
	if err != nil {
		return nil, err
	}
	if c.Status == domain.StatusWaitingSupport {
		return m, nil
	}
	if err := s.setStatus(ctx, c, domain.StatusWaitingSupport, UpdateFields{}); err != nil {
		return m, err
	}
	return m, nil
}

// Escalate hands the conversation towards a human: status waiting_support
// and handled_by advanced to at least in.Level. The notice in in.Content is
// appended as a system message when present.
func (s *Service) Escalate(ctx context.Context, id string, in EscalateInput) (*domain.Message, error) {
	if !in.Level.Valid() || in.Level == domain.HandledByAI {
		logger.Error("[conversation.Service] invariant violation: escalation to non-escalated level",
			"conversation_id", id, "level", in.Level)
		return nil, fmt.Errorf("%w: escalate to %q", ErrInvariantViolation, in.Level)
	}
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !CanTransition(c.Status, domain.StatusWaitingSupport) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, c.Status, domain.StatusWaitingSupport)
	}

	var m *domain.Message
	if in.Content != "" {
		m, err = s.append(ctx, id, domain.Message{
			SenderType:        domain.SenderSystem,
			Content:           in.Content,
			SuggestedArticles: in.SuggestedArticles,
			EscalationReason:  in.Reason,
		})
		if err != nil {
			return nil, err
		}
	}

	target := c.HandledBy.Max(in.Level)
	u := UpdateFields{HandledBy: &target}
	// the first hand-off after an automated answer counts against that pattern
	pattern := ""
	if c.HandledBy == domain.HandledByAI {
		pattern = untracked(c, &u)
	}
	if err := s.setStatus(ctx, c, domain.StatusWaitingSupport, u); err != nil {
		return m, err
	}
	logger.Info("[conversation.Service] conversation escalated",
		"conversation_id", id, "reason", in.Reason, "from", c.HandledBy, "to", target)
	s.track(ctx, pattern, false)
	return m, nil
}

// SetHandledBy forces handled_by to level. Moving backwards on the lattice
// is refused with ErrInvariantViolation and never applied.
func (s *Service) SetHandledBy(ctx context.Context, id string, level domain.HandledBy) error {
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if !c.HandledBy.CanAdvanceTo(level) {
		logger.Error("[conversation.Service] invariant violation: handled_by regression refused",
			"conversation_id", id, "from", c.HandledBy, "to", level)
		return fmt.Errorf("%w: handled_by %s -> %s", ErrInvariantViolation, c.HandledBy, level)
	}
	if level == c.HandledBy {
		return nil
	}
	return s.repo.Update(ctx, id, UpdateFields{HandledBy: &level})
}

// Classify stores the analyzer's view of a conversation. Priority only
// ever goes up; category and language are filled when still unknown.
func (s *Service) Classify(ctx context.Context, id string, priority domain.Priority, category domain.Category, language string) error {
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	u := UpdateFields{}
	if priorityRank(priority) > priorityRank(c.Priority) {
		u.Priority = &priority
	}
	if (c.Category == "" || c.Category == domain.CategoryOther) && category != "" && category != c.Category {
		u.Category = &category
	}
	if c.Language == "" && language != "" {
		u.Language = &language
	}
	if u.IsEmpty() {
		return nil
	}
	return s.repo.Update(ctx, id, u)
}

// Resolve marks the conversation resolved with a timestamp.
func (s *Service) Resolve(ctx context.Context, id string, in ResolveInput) error {
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if in.Type == "" {
		in.Type = domain.ResolutionByAdmin
	}
	now := s.now().UTC()
	u := UpdateFields{ResolvedAt: &now, ResolutionType: &in.Type, ResolutionNotes: &in.Notes}
	pattern := ""
	if in.Type == domain.ResolutionByAI {
		pattern = untracked(c, &u)
	}
	if err := s.setStatus(ctx, c, domain.StatusResolved, u); err != nil {
		return err
	}
	s.track(ctx, pattern, true)
	return nil
}

// Reopen returns a finished conversation to open and clears its
// resolution metadata.
func (s *Service) Reopen(ctx context.Context, id string) error {
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	return s.setStatus(ctx, c, domain.StatusOpen, UpdateFields{ClearResolution: true})
}

// Close ends the conversation without a resolution.
func (s *Service) Close(ctx context.Context, id string) error {
	return s.moveTo(ctx, id, domain.StatusClosed)
}

// MarkSpam flags the conversation as spam.
func (s *Service) MarkSpam(ctx context.Context, id string) error {
	return s.moveTo(ctx, id, domain.StatusSpam)
}

// Archive moves the conversation out of every working queue.
func (s *Service) Archive(ctx context.Context, id string) error {
	return s.moveTo(ctx, id, domain.StatusArchived)
}

// Rate stores the customer's satisfaction rating. The status does not
// change; a rating of 4 or 5 counts as a resolution for the last pattern,
// anything lower as an escalation, unless that outcome was already
// counted.
func (s *Service) Rate(ctx context.Context, id string, rating int, feedback string) error {
	if rating < 1 || rating > 5 {
		return ErrInvalidRating
	}
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	u := UpdateFields{SatisfactionRating: &rating, SatisfactionFeedback: &feedback}
	pattern := untracked(c, &u)
	if err := s.repo.Update(ctx, id, u); err != nil {
		return fmt.Errorf("update conversation: %w", err)
	}
	s.track(ctx, pattern, rating >= 4)
	return nil
}

// Assign gives the conversation to a support agent, which makes it at
// least hybrid.
func (s *Service) Assign(ctx context.Context, id, adminID string) error {
	if adminID == "" {
		return fmt.Errorf("admin id is required")
	}
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	level := c.HandledBy.Max(domain.HandledByHybrid)
	return s.repo.Update(ctx, id, UpdateFields{AssignedTo: &adminID, HandledBy: &level})
}

func (s *Service) moveTo(ctx context.Context, id string, to domain.ConversationStatus) error {
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	return s.setStatus(ctx, c, to, UpdateFields{})
}

func (s *Service) setStatus(ctx context.Context, c *domain.Conversation, to domain.ConversationStatus, u UpdateFields) error {
	if !CanTransition(c.Status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, c.Status, to)
	}
	u.Status = &to
	if err := s.repo.Update(ctx, c.ID, u); err != nil {
		return fmt.Errorf("update conversation: %w", err)
	}
	return nil
}

func (s *Service) append(ctx context.Context, conversationID string, m domain.Message) (*domain.Message, error) {
	m = s.stamp(conversationID, m)
	if err := s.messages.Add(ctx, &m); err != nil {
		return nil, fmt.Errorf("add message: %w", err)
	}
	return &m, nil
}

func (s *Service) stamp(conversationID string, m domain.Message) domain.Message {
	m.ID = uuid.New().String()
	m.ConversationID = conversationID
	m.CreatedAt = s.now().UTC()
	return m
}

// untracked returns the last pattern of c when its outcome has not been
// counted yet and marks it counted in u. It returns "" otherwise.
func untracked(c *domain.Conversation, u *UpdateFields) string {
	if c.LastPatternID == nil || *c.LastPatternID == "" || c.PatternOutcomeTracked {
		return ""
	}
	tracked := true
	u.PatternOutcomeTracked = &tracked
	return *c.LastPatternID
}

// replyFields records patternID as the last pattern with its outcome still
// to be counted.
func replyFields(patternID string) UpdateFields {
	if patternID == "" {
		return UpdateFields{}
	}
	tracked := false
	return UpdateFields{LastPatternID: &patternID, PatternOutcomeTracked: &tracked}
}

func (s *Service) track(ctx context.Context, patternID string, resolved bool) {
	if s.tracker == nil || patternID == "" {
		return
	}
	if err := s.tracker.TrackPatternUsage(ctx, patternID, resolved); err != nil {
		logger.Warn("[conversation.Service] pattern usage not tracked",
			"pattern_id", patternID, "resolved", resolved, "error", err)
	}
}

func replyMessage(in ReplyInput) domain.Message {
	m := domain.Message{
		SenderType:        in.Sender,
		Content:           in.Content,
		AIConfidence:      in.Confidence,
		SuggestedArticles: in.SuggestedArticles,
	}
	if m.SenderType == "" {
		m.SenderType = domain.SenderAI
	}
	if in.PatternID != "" {
		id := in.PatternID
		m.PatternID = &id
	}
	return m
}

func priorityRank(p domain.Priority) int {
	switch p {
	case domain.PriorityLow:
		return 0
	case domain.PriorityNormal:
		return 1
	case domain.PriorityHigh:
		return 2
	case domain.PriorityUrgent:
		return 3
	}
	return -1
}

func subjectFrom(content string) string {
	line := strings.TrimSpace(content)
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = strings.TrimSpace(line[:i])
	}
	r := []rune(line)
	if len(r) > 80 {
		return string(r[:77]) + "..."
	}
	return line
}
