package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"refund-review-api/models"
)

func seedTransactions(t *testing.T, s *MemoryStore, region string, n int, base time.Time) {
	t.Helper()
	for i := 0; i < n; i++ {
		tx := &models.Transaction{
			ID:          fmt.Sprintf("%s-%03d", region, i),
			CreatedAt:   base.Add(time.Duration(i) * time.Minute),
			WarehouseID: "W-" + region,
			RegionID:    region,
			Priority:    models.PriorityLow,
			Status:      models.StatusPending,
		}
		if err := s.CreateTransaction(context.Background(), tx); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
}

func TestMemoryQueryRespectsPredicate(t *testing.T) {
	s := NewMemoryStore(nil)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	seedTransactions(t, s, "R-01", 40, base)
	seedTransactions(t, s, "R-02", 3, base)

	page, err := s.QueryTransactions(context.Background(), TransactionQuery{Predicate: RegionEquals("R-02"), Limit: 100})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(page.Items) != 3 {
		t.Fatalf("expected 3 R-02 rows, got %d", len(page.Items))
	}
	for _, tx := range page.Items {
		if tx.RegionID != "R-02" {
			t.Fatalf("leaked %s from %s", tx.ID, tx.RegionID)
		}
	}

	for _, p := range []Predicate{{}, MatchNone(), WarehouseEquals(""), RegionEquals("  ")} {
		page, err := s.QueryTransactions(context.Background(), TransactionQuery{Predicate: p})
		if err != nil {
			t.Fatalf("query: %v", err)
		}
		if len(page.Items) != 0 {
			t.Fatalf("predicate %+v should match nothing, got %d rows", p, len(page.Items))
		}
	}
}

func TestMemoryQueryPaginatesNewestFirst(t *testing.T) {
	s := NewMemoryStore(nil)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	seedTransactions(t, s, "R-01", 30, base)

	first, err := s.QueryTransactions(context.Background(), TransactionQuery{Predicate: MatchAll()})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(first.Items) != DefaultPageSize || first.Next == nil {
		t.Fatalf("expected full first page with cursor, got %d next=%v", len(first.Items), first.Next)
	}
	if first.Items[0].ID != "R-01-029" {
		t.Fatalf("expected newest first, got %s", first.Items[0].ID)
	}

	cursor, err := ParseCursor(first.Next.Encode())
	if err != nil {
		t.Fatalf("parse cursor: %v", err)
	}
	second, err := s.QueryTransactions(context.Background(), TransactionQuery{Predicate: MatchAll(), Cursor: cursor})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(second.Items) != 5 || second.Next != nil {
		t.Fatalf("expected last 5 rows without cursor, got %d next=%v", len(second.Items), second.Next)
	}
	if second.Items[0].ID != "R-01-004" {
		t.Fatalf("second page should continue after cursor, got %s", second.Items[0].ID)
	}
}

func TestParseCursorRejectsGarbage(t *testing.T) {
	if c, err := ParseCursor(""); err != nil || c != nil {
		t.Fatalf("empty cursor should be nil, got %v %v", c, err)
	}
	if _, err := ParseCursor("not-base64!"); err == nil {
		t.Fatalf("expected error for malformed cursor")
	}
}

func TestMemoryAuditOrderedByTimeThenInsertion(t *testing.T) {
	s := NewMemoryStore(nil)
	ctx := context.Background()
	t0 := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)

	for i, at := range []time.Time{t0.Add(time.Minute), t0, t0, t0.Add(-time.Minute)} {
		_, err := s.AppendAudit(ctx, &models.AuditEntry{
			TransactionID: "T1",
			At:            at,
			Action:        models.AuditNoteAdded,
			Payload:       map[string]interface{}{"n": i},
		})
		if err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	entries, err := s.ListAudit(ctx, "T1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	want := []int{3, 1, 2, 0}
	for i, e := range entries {
		if e.Payload["n"] != want[i] {
			t.Fatalf("position %d: got payload %v want %d", i, e.Payload["n"], want[i])
		}
		if i > 0 && e.At.Before(entries[i-1].At) {
			t.Fatalf("audit not in time order at %d", i)
		}
	}
}

func TestMemoryInjectFaultIsOneShot(t *testing.T) {
	s := NewMemoryStore(nil)
	ctx := context.Background()
	seedTransactions(t, s, "R-01", 1, time.Now())
	status := models.StatusReviewed

	s.InjectFault(OpWriteTransaction, nil)
	if err := s.WriteTransaction(ctx, "R-01-000", models.TransactionPatch{Status: &status}); !errors.Is(err, ErrInjected) {
		t.Fatalf("expected injected error, got %v", err)
	}
	got, _ := s.GetTransaction(ctx, "R-01-000")
	if got.Status != models.StatusPending {
		t.Fatalf("failed write must not change status, got %s", got.Status)
	}
	if err := s.WriteTransaction(ctx, "R-01-000", models.TransactionPatch{Status: &status}); err != nil {
		t.Fatalf("second write should succeed: %v", err)
	}
}

func TestMemoryReadStateIsPerReviewer(t *testing.T) {
	s := NewMemoryStore(nil)
	ctx := context.Background()
	w, r := "W-1", "R-1"
	id, err := s.AppendNotification(ctx, &models.Notification{
		CreatedAt:   time.Now(),
		Type:        models.NotificationHighRisk,
		WarehouseID: &w,
		RegionID:    &r,
	})
	if err != nil {
		t.Fatalf("append: %v", err)
	}

	if err := s.MarkNotificationsRead(ctx, "alice", []string{id}, time.Now()); err != nil {
		t.Fatalf("mark: %v", err)
	}
	alice, _ := s.QueryNotifications(ctx, NotificationQuery{Predicate: MatchAll(), ReviewerID: "alice"})
	bob, _ := s.QueryNotifications(ctx, NotificationQuery{Predicate: MatchAll(), ReviewerID: "bob"})
	if len(alice) != 1 || alice[0].ReadAt == nil {
		t.Fatalf("alice should see the notification read")
	}
	if len(bob) != 1 || bob[0].ReadAt != nil {
		t.Fatalf("bob's read state must be independent")
	}

	if err := s.MarkNotificationsRead(ctx, "alice", []string{"nope"}, time.Now()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown id, got %v", err)
	}
}

func TestMemoryClonesOnReadAndWrite(t *testing.T) {
	s := NewMemoryStore(nil)
	ctx := context.Background()
	tx := &models.Transaction{ID: "T1", RegionID: "R", WarehouseID: "W", Flags: []string{"a"}}
	if err := s.CreateTransaction(ctx, tx); err != nil {
		t.Fatalf("create: %v", err)
	}
	tx.Flags[0] = "mutated"

	got, _ := s.GetTransaction(ctx, "T1")
	if got.Flags[0] != "a" {
		t.Fatalf("store shares memory with caller")
	}
	got.Flags[0] = "again"
	again, _ := s.GetTransaction(ctx, "T1")
	if again.Flags[0] != "a" {
		t.Fatalf("reads share memory with the store")
	}
}
