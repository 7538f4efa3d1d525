package services

import (
	"context"
	"testing"

	"refund-review-api/models"
	"refund-review-api/store"
)

func TestEscalateByRegionalManager(t *testing.T) {
	h := newHarness(t)
	h.seed(t, pendingTx("T1"))
	rm := principal("rm", models.RoleRegionalManager, "", "R-01")

	got, err := h.reviews.Apply(context.Background(), rm, nil, "T1", Escalate{Reason: "Receipt mismatch"})
	if err != nil {
		t.Fatalf("escalate: %v", err)
	}
	if got.Status != models.StatusEscalated {
		t.Fatalf("returned status %s", got.Status)
	}

	stored := h.get(t, "T1")
	if stored.Status != models.StatusEscalated {
		t.Fatalf("stored status %s", stored.Status)
	}
	if stored.Escalation == nil || stored.Escalation.Reason != "Receipt mismatch" {
		t.Fatalf("escalation not stored: %+v", stored.Escalation)
	}
	if stored.HumanDecision == nil || stored.HumanDecision.Decision != models.DecisionEscalated {
		t.Fatalf("decision not stored: %+v", stored.HumanDecision)
	}

	entries := h.audit(t, "T1")
	if len(entries) != 1 || entries[0].Action != models.AuditEscalated || entries[0].By != "rm" {
		t.Fatalf("expected exactly one ESCALATED entry by rm, got %+v", entries)
	}

	feed, err := h.fanout.Feed(context.Background(), rm, 0)
	if err != nil {
		t.Fatalf("feed: %v", err)
	}
	if len(feed.Items) != 1 || feed.Items[0].Type != models.NotificationEscalation {
		t.Fatalf("expected one escalation notification, got %+v", feed.Items)
	}
}

func TestOverrideRecordsPreviousDecision(t *testing.T) {
	h := newHarness(t)
	tx := pendingTx("T1")
	h.seed(t, tx)
	ctx := context.Background()
	ops := opsManager()

	if _, err := h.reviews.Apply(ctx, ops, nil, "T1", SetDecision{Decision: models.DecisionFraud, Notes: "stolen card"}); err != nil {
		t.Fatalf("decide: %v", err)
	}
	got, err := h.reviews.Apply(ctx, ops, nil, "T1", Override{Next: models.DecisionValid, Notes: "card owner confirmed"})
	if err != nil {
		t.Fatalf("override: %v", err)
	}
	if got.HumanDecision.Decision != models.DecisionValid || got.Status != models.StatusReviewed {
		t.Fatalf("unexpected result %+v", got)
	}

	entries := h.audit(t, "T1")
	if len(entries) != 2 {
		t.Fatalf("expected 2 audit entries, got %d", len(entries))
	}
	last := entries[1]
	if last.Action != models.AuditOverridden {
		t.Fatalf("last action %s", last.Action)
	}
	if last.Payload["previousDecision"] != "fraud" || last.Payload["nextDecision"] != "valid" {
		t.Fatalf("unexpected override payload %+v", last.Payload)
	}
}

func TestDeniedOperationsDoNotMutate(t *testing.T) {
	cases := []struct {
		name string
		p    *models.Principal
		op   Operation
	}{
		{"executive edits", principal("exec", models.RoleExecutive, "", ""), SetDecision{Decision: models.DecisionFraud}},
		{"warehouse escalates", principal("wm", models.RoleWarehouseManager, "W-11", ""), Escalate{Reason: "x"}},
		{"warehouse escalated decision", principal("wm", models.RoleWarehouseManager, "W-11", ""), SetDecision{Decision: models.DecisionEscalated}},
		{"regional overrides", principal("rm", models.RoleRegionalManager, "", "R-01"), Override{Next: models.DecisionValid}},
		{"anonymous", nil, AddNote{Note: "n"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)
			h.seed(t, pendingTx("T1"))
			staging := NewOptimisticController()

			_, err := h.reviews.Apply(context.Background(), tc.p, staging, "T1", tc.op)
			if !errorIs(err, ErrAccessDenied) {
				t.Fatalf("expected access denied, got %v", err)
			}
			if errorIs(err, ErrScopeViolation) {
				t.Fatalf("capability failure reported as scope violation")
			}
			if got := h.get(t, "T1"); got.Status != models.StatusPending || got.HumanDecision != nil {
				t.Fatalf("transaction mutated: %+v", got)
			}
			if n := len(h.audit(t, "T1")); n != 0 {
				t.Fatalf("expected no audit entries, got %d", n)
			}
			if staging.Pending() != 0 {
				t.Fatalf("denied operation left a staged patch")
			}
		})
	}
}

func TestOutOfScopeMutationIsRejected(t *testing.T) {
	h := newHarness(t)
	h.seed(t, pendingTx("T1"))
	wm := principal("wm", models.RoleWarehouseManager, "W-99", "")

	_, err := h.reviews.Apply(context.Background(), wm, nil, "T1", AddNote{Note: "n"})
	if !errorIs(err, ErrScopeViolation) {
		t.Fatalf("expected scope violation, got %v", err)
	}
	if len(h.audit(t, "T1")) != 0 {
		t.Fatalf("out-of-scope note was audited")
	}
}

func TestApplyUnknownTransaction(t *testing.T) {
	h := newHarness(t)
	_, err := h.reviews.Apply(context.Background(), opsManager(), nil, "missing", AddNote{Note: "n"})
	if !errorIs(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestFailedWriteRevertsStagedPatch(t *testing.T) {
	h := newHarness(t)
	h.seed(t, pendingTx("T1"))
	h.store.InjectFault(store.OpWriteTransaction, nil)
	staging := NewOptimisticController()

	_, err := h.reviews.Apply(context.Background(), opsManager(), staging, "T1", SetDecision{Decision: models.DecisionFraud})
	if !errorIs(err, ErrUnavailable) {
		t.Fatalf("expected unavailable, got %v", err)
	}
	if _, ok := staging.Staged("T1"); ok {
		t.Fatalf("staged patch survived a failed write")
	}
	if got := h.get(t, "T1"); got.Status != models.StatusPending || got.HumanDecision != nil {
		t.Fatalf("store changed after failed write: %+v", got)
	}
	if len(h.audit(t, "T1")) != 0 {
		t.Fatalf("failed write was audited")
	}

	// The next attempt goes through once the fault is consumed.
	if _, err := h.reviews.Apply(context.Background(), opsManager(), staging, "T1", SetDecision{Decision: models.DecisionFraud}); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if staging.Pending() != 0 {
		t.Fatalf("confirmed patch still staged")
	}
}

func TestAuditFailureIsPartialWrite(t *testing.T) {
	h := newHarness(t)
	h.seed(t, pendingTx("T1"))
	h.store.InjectFault(store.OpAppendAudit, nil)
	staging := NewOptimisticController()

	_, err := h.reviews.Apply(context.Background(), opsManager(), staging, "T1", AddNote{Note: "checked CCTV"})
	if !errorIs(err, ErrPartialWrite) {
		t.Fatalf("expected partial write, got %v", err)
	}
	var re *ReviewError
	if !asReviewError(err, &re) || !re.PrimaryCommitted || re.AuditCommitted {
		t.Fatalf("expected primary committed without audit, got %+v", re)
	}
	if got := h.get(t, "T1"); got.LastNote == nil || got.LastNote.Note != "checked CCTV" {
		t.Fatalf("primary write missing: %+v", got.LastNote)
	}
	if len(h.audit(t, "T1")) != 0 {
		t.Fatalf("audit entry should be missing")
	}
	if staging.Pending() != 0 {
		t.Fatalf("partial write left a staged patch")
	}
}

func TestDecisionRaisingPriorityNotifies(t *testing.T) {
	h := newHarness(t)
	h.seed(t, pendingTx("T1"))
	risk := 0.8

	if _, err := h.reviews.Apply(context.Background(), opsManager(), nil, "T1", SetDecision{Decision: models.DecisionFraud, RiskScore: &risk}); err != nil {
		t.Fatalf("decide: %v", err)
	}
	feed, err := h.fanout.Feed(context.Background(), opsManager(), 0)
	if err != nil {
		t.Fatalf("feed: %v", err)
	}
	if len(feed.Items) != 1 || feed.Items[0].Type != models.NotificationHighRisk || feed.Items[0].Priority != models.PriorityHigh {
		t.Fatalf("expected one high-risk notification, got %+v", feed.Items)
	}
}

func TestListTransactionsValidatesFilter(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	for _, f := range []TransactionFilter{
		{Priority: "urgent"},
		{Status: "closed"},
		{Cursor: "!!not-a-cursor"},
	} {
		if _, err := h.reviews.ListTransactions(ctx, opsManager(), f); !errorIs(err, ErrInvalidInput) {
			t.Fatalf("filter %+v: expected invalid input, got %v", f, err)
		}
	}
	if _, err := h.reviews.ListTransactions(ctx, nil, TransactionFilter{}); !errorIs(err, ErrAccessDenied) {
		t.Fatalf("anonymous list: expected access denied, got %v", err)
	}
}

func TestAuditTrailIsScoped(t *testing.T) {
	h := newHarness(t)
	h.seed(t, pendingTx("T1"))
	ctx := context.Background()
	if _, err := h.reviews.Apply(ctx, opsManager(), nil, "T1", AddNote{Note: "n"}); err != nil {
		t.Fatalf("note: %v", err)
	}

	entries, err := h.reviews.AuditTrail(ctx, principal("wm", models.RoleWarehouseManager, "W-11", ""), "T1")
	if err != nil || len(entries) != 1 {
		t.Fatalf("in-scope trail: %v %d", err, len(entries))
	}
	if _, err := h.reviews.AuditTrail(ctx, principal("wm", models.RoleWarehouseManager, "W-12", ""), "T1"); !errorIs(err, ErrScopeViolation) {
		t.Fatalf("expected scope violation, got %v", err)
	}
}

func TestPartialWriteStillNotifies(t *testing.T) {
	h := newHarness(t)
	h.seed(t, pendingTx("T1"))
	h.store.InjectFault(store.OpAppendAudit, nil)
	risk := 0.91

	_, err := h.reviews.Apply(context.Background(), opsManager(), nil, "T1", SetDecision{Decision: models.DecisionFraud, RiskScore: &risk})
	if !errorIs(err, ErrPartialWrite) {
		t.Fatalf("expected partial write, got %v", err)
	}
	if got := h.get(t, "T1"); got.Priority != models.PriorityCritical {
		t.Fatalf("rescore not committed: %s", got.Priority)
	}
	feed, err := h.fanout.Feed(context.Background(), opsManager(), 0)
	if err != nil {
		t.Fatalf("feed: %v", err)
	}
	if len(feed.Items) != 1 || feed.Items[0].Type != models.NotificationHighRisk {
		t.Fatalf("committed rescore did not fan out: %+v", feed.Items)
	}
}

func TestDecisionMovesEscalatedToReviewed(t *testing.T) {
	h := newHarness(t)
	h.seed(t, pendingTx("T1"))
	ctx := context.Background()
	ops := opsManager()

	if _, err := h.reviews.Apply(ctx, ops, nil, "T1", Escalate{Reason: "second opinion"}); err != nil {
		t.Fatalf("escalate: %v", err)
	}
	got, err := h.reviews.Apply(ctx, ops, nil, "T1", SetDecision{Decision: models.DecisionFraud})
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if got.Status != models.StatusReviewed || h.get(t, "T1").Status != models.StatusReviewed {
		t.Fatalf("expected reviewed after fraud decision, got %s", got.Status)
	}

	if _, err := h.reviews.Apply(ctx, ops, nil, "T1", Escalate{Reason: "again"}); err != nil {
		t.Fatalf("re-escalate: %v", err)
	}
	got, err = h.reviews.Apply(ctx, ops, nil, "T1", SubmitFeedback{Feedback: models.Feedback{TransactionReviewed: true}})
	if err != nil {
		t.Fatalf("feedback: %v", err)
	}
	if got.Status != models.StatusEscalated {
		t.Fatalf("feedback lowered an escalated transaction to %s", got.Status)
	}
}
