package services

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"refund-review-api/models"
	"refund-review-api/store"
)

// TransactionFilter narrows the scoped transaction list.
type TransactionFilter struct {
	From     time.Time
	Priority models.Priority
	Status   models.Status
	Limit    int
	Cursor   string
}

// ReviewService runs reviewer actions: capability and scope checks, the pure
// transition, optimistic staging, the audited write and the notification fanout.
type ReviewService struct {
	store  store.Store
	audit  *AuditLogWriter
	fanout *NotificationFanout
	now    func() time.Time
}

func NewReviewService(s store.Store, fanout *NotificationFanout) *ReviewService {
	return &ReviewService{
		store:  s,
		audit:  NewAuditLogWriter(s),
		fanout: fanout,
		now:    time.Now,
	}
}

// Audit exposes the writer used for standalone audit entries.
func (s *ReviewService) Audit() *AuditLogWriter { return s.audit }

// ListTransactions returns one page of transactions visible to principal.
func (s *ReviewService) ListTransactions(ctx context.Context, principal *models.Principal, filter TransactionFilter) (store.TransactionPage, error) {
	const op = "list_transactions"
	if principal == nil {
		return store.TransactionPage{}, denied(op, "Sign in to view transactions")
	}
	q, err := buildQuery(op, ResolveScope(*principal), filter)
	if err != nil {
		return store.TransactionPage{}, err
	}
	page, err := s.store.QueryTransactions(ctx, q)
	if err != nil {
		return store.TransactionPage{}, fromStore(op, err)
	}
	if page.Items == nil {
		page.Items = []models.Transaction{}
	}
	return page, nil
}

func buildQuery(op string, pred store.Predicate, filter TransactionFilter) (store.TransactionQuery, error) {
	if filter.Priority != "" && filter.Priority.Rank() < 0 {
		return store.TransactionQuery{}, invalid(op, "Unknown priority %q", filter.Priority)
	}
	switch filter.Status {
	case "", models.StatusPending, models.StatusReviewed, models.StatusEscalated:
	default:
		return store.TransactionQuery{}, invalid(op, "Unknown status %q", filter.Status)
	}
	cursor, err := store.ParseCursor(filter.Cursor)
	if err != nil {
		return store.TransactionQuery{}, invalid(op, "Invalid cursor")
	}
	return store.TransactionQuery{
		Predicate: pred,
		From:      filter.From,
		Priority:  filter.Priority,
		Status:    filter.Status,
		Limit:     filter.Limit,
		Cursor:    cursor,
	}, nil
}

// GetTransaction loads one transaction, refusing ids outside principal's scope.
func (s *ReviewService) GetTransaction(ctx context.Context, principal *models.Principal, id string) (*models.Transaction, error) {
	const op = "get_transaction"
	if principal == nil {
		return nil, denied(op, "Sign in to view transactions")
	}
	return s.loadScoped(ctx, op, *principal, id)
}

// AuditTrail returns the audit entries of a transaction in principal's scope, oldest first.
func (s *ReviewService) AuditTrail(ctx context.Context, principal *models.Principal, id string) ([]models.AuditEntry, error) {
	const op = "audit_trail"
	if principal == nil {
		return nil, denied(op, "Sign in to view the audit trail")
	}
	if _, err := s.loadScoped(ctx, op, *principal, id); err != nil {
		return nil, err
	}
	return s.audit.List(ctx, id)
}

func (s *ReviewService) loadScoped(ctx context.Context, op string, principal models.Principal, id string) (*models.Transaction, error) {
	if strings.TrimSpace(id) == "" {
		return nil, invalid(op, "Transaction id is required")
	}
	tx, err := s.store.GetTransaction(ctx, id)
	if err != nil {
		return nil, fromStore(op, err)
	}
	if !ResolveScope(principal).MatchesTransaction(*tx) {
		return nil, outOfScope(op)
	}
	return tx, nil
}

// requiredActions lists the capabilities op needs beyond viewing.
func requiredActions(op Operation) []string {
	switch o := op.(type) {
	case Escalate:
		return []string{ActionEdit, ActionEscalate}
	case Override:
		return []string{ActionEdit, ActionOverride}
	case SetDecision:
		if o.Decision == models.DecisionEscalated {
			return []string{ActionEdit, ActionEscalate}
		}
	}
	return []string{ActionEdit}
}

func authorize(principal *models.Principal, op Operation) error {
	name := OpName(op)
	if principal == nil {
		return denied(name, "Sign in to review transactions")
	}
	caps := CapabilitiesFor(principal.Role)
	for _, action := range requiredActions(op) {
		if !caps.Allows(action) {
			return denied(name, "Your role cannot "+actionVerb(action))
		}
	}
	return nil
}

func actionVerb(action string) string {
	switch action {
	case ActionEscalate:
		return "escalate transactions"
	case ActionOverride:
		return "override decisions"
	}
	return "edit transactions"
}

// Apply performs op on transaction id for principal. When staging is non-nil the
// resulting patch is staged before the write, confirmed on success and reverted on
// any failure. Notifications still go out when only the audit append failed.
func (s *ReviewService) Apply(ctx context.Context, principal *models.Principal, staging *OptimisticController, id string, op Operation) (*models.Transaction, error) {
	if err := authorize(principal, op); err != nil {
		return nil, err
	}
	name := OpName(op)
	current, err := s.loadScoped(ctx, name, *principal, id)
	if err != nil {
		return nil, err
	}

	now := s.now()
	outcome, err := Transition(*current, op, *principal, now)
	if err != nil {
		return nil, err
	}

	revert := func() {}
	if staging != nil {
		revert = staging.Stage(id, outcome.Patch)
	}

	entry := s.audit.NewEntry(id, *principal, outcome.Action, outcome.Payload, now)
	if err := s.audit.Commit(ctx, name, id, outcome.Patch, entry); err != nil {
		revert()
		log.Printf("[review] %s on %s by %s failed: %v", name, id, principal.ID, err)
		var re *ReviewError
		if errors.As(err, &re) && re.PrimaryCommitted {
			s.notify(ctx, *current, outcome)
		}
		return nil, err
	}
	if staging != nil {
		staging.Confirm(id)
	}
	log.Printf("[review] %s on %s by %s: %s -> %s", name, id, principal.ID, current.Status, outcome.Next.Status)

	s.notify(ctx, *current, outcome)
	next := outcome.Next
	return &next, nil
}

// notify runs the fanout triggers for a committed outcome. Failures are logged; the
// review action itself already succeeded.
func (s *ReviewService) notify(ctx context.Context, before models.Transaction, outcome Outcome) {
	if s.fanout == nil {
		return
	}
	if _, err := s.fanout.OnPriorityChanged(ctx, before, outcome.Next); err != nil {
		log.Printf("[review] priority notification for %s: %v", before.ID, err)
	}
	if before.Status != models.StatusEscalated && outcome.Next.Status == models.StatusEscalated {
		letter := ""
		if outcome.Patch.Escalation != nil {
			letter = outcome.Patch.Escalation.Letter
		}
		if _, err := s.fanout.OnEscalated(ctx, outcome.Next, letter); err != nil {
			log.Printf("[review] escalation notification for %s: %v", before.ID, err)
		}
	}
}
