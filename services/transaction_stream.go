package services

import (
	"context"
	"strings"
	"time"

	"refund-review-api/models"
	"refund-review-api/store"
)

// TransactionSnapshot is one delivery of a reviewer's live transaction list.
type TransactionSnapshot struct {
	Items      []models.Transaction `json:"items"`
	NextCursor string               `json:"nextCursor,omitempty"`
	Scope      string               `json:"scope"`
	Pending    int                  `json:"pending"`
	Error      string               `json:"error,omitempty"`
	At         time.Time            `json:"at"`
}

// TransactionStream pushes the scoped, filtered transaction list whenever the store
// or the session's staged patches change.
type TransactionStream struct {
	service *ReviewService
	feed    store.Feed
}

func NewTransactionStream(service *ReviewService, feed store.Feed) *TransactionStream {
	return &TransactionStream{service: service, feed: feed}
}

// Subscribe starts a stream for reviewerID. Staged patches from staging (may be nil)
// are overlaid on every delivery.
func (t *TransactionStream) Subscribe(ctx context.Context, reviewerID string, filter TransactionFilter, staging *OptimisticController) (*Subscription[TransactionSnapshot], error) {
	const op = "transactions_stream"
	if strings.TrimSpace(reviewerID) == "" {
		return nil, denied(op, "Sign in to view transactions")
	}
	if _, err := buildQuery(op, store.MatchNone(), filter); err != nil {
		return nil, err
	}
	if _, err := t.service.store.GetReviewer(ctx, reviewerID); err != nil {
		return nil, fromStore(op, err)
	}

	changes, release := t.feed.Subscribe(32)
	var (
		staged      <-chan struct{}
		stopWatcher = func() {}
	)
	if staging != nil {
		staged, stopWatcher = staging.Watch()
	}

	return startSubscription(ctx, 1, func(ctx context.Context, emit func(TransactionSnapshot) bool) {
		defer release()
		defer stopWatcher()
		if !emit(t.snapshot(ctx, reviewerID, filter, staging)) {
			return
		}
		for {
			select {
			case <-ctx.Done():
				return
			case c, ok := <-changes:
				if !ok {
					return
				}
				if !transactionRelevant(c, reviewerID) || !drainChanges(changes) {
					continue
				}
			case <-staged:
			}
			if !emit(t.snapshot(ctx, reviewerID, filter, staging)) {
				return
			}
		}
	}), nil
}

func (t *TransactionStream) snapshot(ctx context.Context, reviewerID string, filter TransactionFilter, staging *OptimisticController) TransactionSnapshot {
	now := t.service.now().UTC()
	reviewer, err := t.service.store.GetReviewer(ctx, reviewerID)
	if err != nil {
		return TransactionSnapshot{Items: []models.Transaction{}, Error: ReasonOf(fromStore("transactions_stream", err)), At: now}
	}
	principal := reviewer.Principal()
	page, err := t.service.ListTransactions(ctx, &principal, filter)
	if err != nil {
		return TransactionSnapshot{Items: []models.Transaction{}, Error: ReasonOf(err), At: now}
	}

	snap := TransactionSnapshot{
		Items: page.Items,
		Scope: ResolveScope(principal).String(),
		At:    now,
	}
	if page.Next != nil {
		snap.NextCursor = page.Next.Encode()
	}
	if staging != nil {
		for i := range snap.Items {
			snap.Items[i] = staging.Overlay(snap.Items[i])
		}
		snap.Pending = staging.Pending()
	}
	return snap
}

func transactionRelevant(c store.Change, reviewerID string) bool {
	switch c.Kind {
	case store.ChangeTransactionCreated, store.ChangeTransactionUpdated:
		return true
	case store.ChangeReviewerUpdated:
		return c.ReviewerID == reviewerID
	}
	return false
}
