package conversation

import "github.com/deskpilot/support-triage/internal/domain"

var allowed = map[domain.ConversationStatus][]domain.ConversationStatus{
	domain.StatusOpen: {
		domain.StatusWaitingUser, domain.StatusWaitingSupport,
		domain.StatusResolved, domain.StatusClosed, domain.StatusSpam, domain.StatusArchived,
	},
	domain.StatusWaitingUser: {
		domain.StatusWaitingUser, domain.StatusWaitingSupport,
		domain.StatusResolved, domain.StatusClosed, domain.StatusSpam, domain.StatusArchived,
	},
	domain.StatusWaitingSupport: {
		domain.StatusWaitingUser, domain.StatusWaitingSupport,
		domain.StatusResolved, domain.StatusClosed, domain.StatusSpam, domain.StatusArchived,
	},
	domain.StatusResolved: {domain.StatusOpen, domain.StatusWaitingSupport, domain.StatusClosed, domain.StatusArchived},
	domain.StatusClosed:   {domain.StatusOpen, domain.StatusWaitingSupport, domain.StatusArchived},
	domain.StatusSpam:     {domain.StatusOpen, domain.StatusArchived},
	domain.StatusArchived: {domain.StatusOpen},
}

// CanTransition reports whether a conversation may move from one status to
// another. A customer message on a resolved or closed conversation reopens
// it straight into waiting_support; spam and archived conversations only
// come back through an explicit reopen.
func CanTransition(from, to domain.ConversationStatus) bool {
	for _, s := range allowed[from] {
		if s == to {
			return true
		}
	}
	return false
}
