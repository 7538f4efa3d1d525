package services

import (
	"context"
	"testing"
	"time"

	"refund-review-api/models"
	"refund-review-api/store"
)

var fixedNow = time.Date(2026, 4, 1, 9, 30, 0, 0, time.UTC)

func strPtr(s string) *string { return &s }

func principal(id string, role models.Role, warehouse, region string) *models.Principal {
	p := &models.Principal{ID: id, Email: id + "@example.com", DisplayName: id, Role: role}
	if warehouse != "" {
		p.AssignedWarehouseID = strPtr(warehouse)
	}
	if region != "" {
		p.AssignedRegionID = strPtr(region)
	}
	return p
}

func opsManager() *models.Principal {
	return principal("ops", models.RoleOperationsManager, "", "")
}

func pendingTx(id string) models.Transaction {
	return models.Transaction{
		ID:                  id,
		CreatedAt:           fixedNow.Add(-time.Hour),
		UpdatedAt:           fixedNow.Add(-time.Hour),
		TransactionCode:     "RF-" + id,
		WarehouseID:         "W-11",
		RegionID:            "R-01",
		RefundAmount:        1250,
		Currency:            "USD",
		RiskScore:           0.42,
		Priority:            models.PriorityLow,
		ModelRecommendation: models.RecommendReview,
		Status:              models.StatusPending,
	}
}

type harness struct {
	store    *store.MemoryStore
	feed     *store.LocalFeed
	fanout   *NotificationFanout
	reviews  *ReviewService
	sessions *SessionRegistry
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	feed := store.NewLocalFeed()
	t.Cleanup(func() { _ = feed.Close() })
	st := store.NewMemoryStore(feed)
	fanout := NewNotificationFanout(st, feed)
	fanout.now = func() time.Time { return fixedNow }
	reviews := NewReviewService(st, fanout)
	reviews.now = func() time.Time { return fixedNow }
	reviews.audit.now = reviews.now
	return &harness{
		store:    st,
		feed:     feed,
		fanout:   fanout,
		reviews:  reviews,
		sessions: NewSessionRegistry(reviews),
	}
}

func (h *harness) seed(t *testing.T, txs ...models.Transaction) {
	t.Helper()
	for i := range txs {
		tx := txs[i]
		if err := h.store.CreateTransaction(context.Background(), &tx); err != nil {
			t.Fatalf("seed %s: %v", tx.ID, err)
		}
	}
}

func (h *harness) saveReviewer(t *testing.T, p *models.Principal) {
	t.Helper()
	r := &models.Reviewer{
		ID:                  p.ID,
		Email:               p.Email,
		DisplayName:         p.DisplayName,
		Role:                p.Role,
		AssignedWarehouseID: p.AssignedWarehouseID,
		AssignedRegionID:    p.AssignedRegionID,
	}
	if err := h.store.SaveReviewer(context.Background(), r); err != nil {
		t.Fatalf("save reviewer: %v", err)
	}
}

func (h *harness) get(t *testing.T, id string) models.Transaction {
	t.Helper()
	tx, err := h.store.GetTransaction(context.Background(), id)
	if err != nil {
		t.Fatalf("get %s: %v", id, err)
	}
	return *tx
}

func (h *harness) audit(t *testing.T, id string) []models.AuditEntry {
	t.Helper()
	entries, err := h.store.ListAudit(context.Background(), id)
	if err != nil {
		t.Fatalf("audit %s: %v", id, err)
	}
	return entries
}
