package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"refund-review-api/models"
)

func TestSessionRejectsOtherReviewer(t *testing.T) {
	h := newHarness(t)
	h.seed(t, pendingTx("T1"))
	session := h.sessions.Session("ops")

	_, err := session.AddNote(context.Background(), principal("intruder", models.RoleOperationsManager, "", ""), "T1", AddNote{Note: "n"})
	if !errorIs(err, ErrAccessDenied) {
		t.Fatalf("expected denial, got %v", err)
	}
	if h.sessions.Session("ops") != session {
		t.Fatalf("registry returned a different session for the same reviewer")
	}
}

func TestSessionSerializesMutations(t *testing.T) {
	h := newHarness(t)
	h.seed(t, pendingTx("T1"))
	session := h.sessions.Session("ops")
	ops := opsManager()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := session.AddNote(context.Background(), ops, "T1", AddNote{Note: fmt.Sprintf("note %d", i)}); err != nil {
				t.Errorf("note %d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	entries := h.audit(t, "T1")
	if len(entries) != 20 {
		t.Fatalf("expected 20 audit entries, got %d", len(entries))
	}
	for i := 1; i < len(entries); i++ {
		if entries[i].Seq <= entries[i-1].Seq {
			t.Fatalf("audit entries out of order at %d", i)
		}
	}
	if session.Staging.Pending() != 0 {
		t.Fatalf("confirmed notes left staged patches")
	}
}

func TestSweepDropsIdleSessions(t *testing.T) {
	h := newHarness(t)
	h.sessions.Session("a")
	busy := h.sessions.Session("b")
	busy.Staging.Stage("T1", notePatch("in flight"))

	h.reviews.now = func() time.Time { return fixedNow.Add(2 * time.Hour) }
	if removed := h.sessions.Sweep(time.Hour); removed != 1 {
		t.Fatalf("expected one idle session swept, got %d", removed)
	}
	if h.sessions.Len() != 1 {
		t.Fatalf("session with staged work was swept")
	}
}
