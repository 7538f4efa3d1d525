package services

import (
	"context"
	"sync"
	"time"

	"refund-review-api/models"
)

// ReviewSession is one reviewer's working context. Its mutations run one at a time
// in the order they were issued, and their optimistic stages live in Staging.
type ReviewSession struct {
	ReviewerID string
	Staging    *OptimisticController

	service  *ReviewService
	mu       sync.Mutex
	lastUsed time.Time
}

// Do applies op to transaction id as principal, who must own the session.
func (s *ReviewSession) Do(ctx context.Context, principal *models.Principal, id string, op Operation) (*models.Transaction, error) {
	if principal == nil || principal.ID != s.ReviewerID {
		return nil, denied(OpName(op), "This review session belongs to another reviewer")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastUsed = s.service.now()
	return s.service.Apply(ctx, principal, s.Staging, id, op)
}

func (s *ReviewSession) SetDecision(ctx context.Context, principal *models.Principal, id string, in SetDecision) (*models.Transaction, error) {
	return s.Do(ctx, principal, id, in)
}

func (s *ReviewSession) SubmitFeedback(ctx context.Context, principal *models.Principal, id string, in SubmitFeedback) (*models.Transaction, error) {
	return s.Do(ctx, principal, id, in)
}

func (s *ReviewSession) Escalate(ctx context.Context, principal *models.Principal, id string, in Escalate) (*models.Transaction, error) {
	return s.Do(ctx, principal, id, in)
}

func (s *ReviewSession) Override(ctx context.Context, principal *models.Principal, id string, in Override) (*models.Transaction, error) {
	return s.Do(ctx, principal, id, in)
}

func (s *ReviewSession) AddNote(ctx context.Context, principal *models.Principal, id string, in AddNote) (*models.Transaction, error) {
	return s.Do(ctx, principal, id, in)
}

func (s *ReviewSession) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUsed
}

// SessionRegistry holds one ReviewSession per reviewer.
type SessionRegistry struct {
	service  *ReviewService
	mu       sync.Mutex
	sessions map[string]*ReviewSession
}

func NewSessionRegistry(service *ReviewService) *SessionRegistry {
	return &SessionRegistry{service: service, sessions: make(map[string]*ReviewSession)}
}

// Session returns the reviewer's session, creating it on first use.
func (r *SessionRegistry) Session(reviewerID string) *ReviewSession {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[reviewerID]; ok {
		return s
	}
	s := &ReviewSession{
		ReviewerID: reviewerID,
		Staging:    NewOptimisticController(),
		service:    r.service,
		lastUsed:   r.service.now(),
	}
	r.sessions[reviewerID] = s
	return s
}

// Sweep drops sessions idle for longer than maxIdle that have nothing staged.
func (r *SessionRegistry) Sweep(maxIdle time.Duration) int {
	cutoff := r.service.now().Add(-maxIdle)
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for id, s := range r.sessions {
		if s.Staging.Pending() == 0 && s.idleSince().Before(cutoff) {
			delete(r.sessions, id)
			removed++
		}
	}
	return removed
}

// Len returns the number of live sessions.
func (r *SessionRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
