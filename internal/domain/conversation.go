package domain

import (
	"time"
)

// ConversationStatus enumerates the lifecycle states of a support conversation.
type ConversationStatus string

const (
	StatusOpen           ConversationStatus = "open"
	StatusWaitingUser    ConversationStatus = "waiting_user"
	StatusWaitingSupport ConversationStatus = "waiting_support"
	StatusResolved       ConversationStatus = "resolved"
	StatusClosed         ConversationStatus = "closed"
	StatusSpam           ConversationStatus = "spam"
	StatusArchived       ConversationStatus = "archived"
)

// Valid reports whether s is a known status.
func (s ConversationStatus) Valid() bool {
	switch s {
	case StatusOpen, StatusWaitingUser, StatusWaitingSupport,
		StatusResolved, StatusClosed, StatusSpam, StatusArchived:
		return true
	}
	return false
}

// IsTerminal returns true for states that end the active lifecycle.
func (s ConversationStatus) IsTerminal() bool {
	return s == StatusResolved || s == StatusClosed || s == StatusSpam || s == StatusArchived
}

// Priority enumerates conversation urgency.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Category enumerates the topic buckets used for routing and reporting.
type Category string

const (
	CategoryTechnical      Category = "technical"
	CategoryBilling        Category = "billing"
	CategoryAccount        Category = "account"
	CategoryFeatureRequest Category = "feature_request"
	CategoryBugReport      Category = "bug_report"
	CategoryGeneral        Category = "general"
	CategoryOther          Category = "other"
)

// HandledBy records who owns a conversation. Values form the lattice
// ai < hybrid < human and may only move forward.
type HandledBy string

const (
	HandledByAI     HandledBy = "ai"
	HandledByHybrid HandledBy = "hybrid"
	HandledByHuman  HandledBy = "human"
)

// Rank returns the lattice position, or -1 for unknown values.
func (h HandledBy) Rank() int {
	switch h {
	case HandledByAI:
		return 0
	case HandledByHybrid:
		return 1
	case HandledByHuman:
		return 2
	}
	return -1
}

// Valid reports whether h is on the lattice.
func (h HandledBy) Valid() bool { return h.Rank() >= 0 }

// CanAdvanceTo reports whether moving from h to next keeps the lattice order.
func (h HandledBy) CanAdvanceTo(next HandledBy) bool {
	return next.Valid() && next.Rank() >= h.Rank()
}

// Max returns the higher of the two lattice positions.
func (h HandledBy) Max(other HandledBy) HandledBy {
	if other.Rank() > h.Rank() {
		return other
	}
	return h
}

// ResolutionType describes how a conversation was resolved.
type ResolutionType string

const (
	ResolutionByAI       ResolutionType = "ai_resolved"
	ResolutionByAdmin    ResolutionType = "admin_resolved"
	ResolutionByCustomer ResolutionType = "customer_resolved"
	ResolutionDuplicate  ResolutionType = "duplicate"
	ResolutionNoResponse ResolutionType = "no_response"
)

// Customer is the owning end user of a conversation. Only the fields the
// engine needs for reply personalization are carried.
type Customer struct {
	ID       string `json:"id" db:"id"`
	Name     string `json:"name" db:"name"`
	Email    string `json:"email" db:"email"`
	Plan     string `json:"plan" db:"plan"`
	Language string `json:"language" db:"language"`
}

// Conversation is one support interaction between a customer and the
// system/support staff.
type Conversation struct {
	ID         string             `json:"id" db:"id"`
	CustomerID string             `json:"customer_id" db:"customer_id"`
	Customer   Customer           `json:"customer"`
	Subject    string             `json:"subject" db:"subject"`
	Language   string             `json:"language" db:"language"`
	Status     ConversationStatus `json:"status" db:"status"`
	Priority   Priority           `json:"priority" db:"priority"`
	Category   Category           `json:"category" db:"category"`
	HandledBy  HandledBy          `json:"handled_by" db:"handled_by"`

	LastPatternID *string `json:"last_pattern_id" db:"last_pattern_id"`
	AssignedTo    *string `json:"assigned_to" db:"assigned_to"`

	// PatternOutcomeTracked is set once the outcome of LastPatternID was
	// counted. A new automated answer clears it.
	PatternOutcomeTracked bool `json:"-" db:"pattern_outcome_tracked"`

	ResolvedAt      *time.Time     `json:"resolved_at" db:"resolved_at"`
	ResolutionType  ResolutionType `json:"resolution_type,omitempty" db:"resolution_type"`
	ResolutionNotes string         `json:"resolution_notes,omitempty" db:"resolution_notes"`

	SatisfactionRating   *int   `json:"satisfaction_rating" db:"satisfaction_rating"`
	SatisfactionFeedback string `json:"satisfaction_feedback,omitempty" db:"satisfaction_feedback"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
