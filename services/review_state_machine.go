package services

import (
	"time"

	"refund-review-api/models"
	"refund-review-api/utils"
)

// Operation is one reviewer action on a transaction.
type Operation interface {
	opName() string
}

// SetDecision records a human decision. RiskScore optionally rescores the transaction.
type SetDecision struct {
	Decision  models.Decision `json:"decision"`
	Notes     string          `json:"notes"`
	RiskScore *float64        `json:"riskScore,omitempty"`
}

// SubmitFeedback stores the reviewer's feedback form.
type SubmitFeedback struct {
	Feedback models.Feedback `json:"feedback"`
}

// Escalate forwards the transaction for secondary review.
type Escalate struct {
	Reason string `json:"reason"`
	Notes  string `json:"notes"`
}

// Override replaces the current decision with fraud or valid.
type Override struct {
	Next  models.Decision `json:"nextDecision"`
	Notes string          `json:"notes"`
}

// AddNote sets the last note without touching status.
type AddNote struct {
	Note string `json:"note"`
}

func (SetDecision) opName() string    { return "set_decision" }
func (SubmitFeedback) opName() string { return "submit_feedback" }
func (Escalate) opName() string       { return "escalate" }
func (Override) opName() string       { return "override" }
func (AddNote) opName() string        { return "add_note" }

// OpName returns the stable name of op used in errors and logs.
func OpName(op Operation) string {
	if op == nil {
		return "unknown"
	}
	return op.opName()
}

// Outcome is the result of a transition: what to write, what it yields and what to audit.
type Outcome struct {
	Patch   models.TransactionPatch
	Next    models.Transaction
	Action  models.AuditAction
	Payload map[string]interface{}
}

// Transition computes the effect of op on current. It never touches a store.
// Every status accepts every operation; only malformed input is rejected.
func Transition(current models.Transaction, op Operation, actor models.Principal, now time.Time) (Outcome, error) {
	now = now.UTC()
	patch := models.TransactionPatch{UpdatedAt: &now}

	var (
		action  models.AuditAction
		payload map[string]interface{}
	)

	switch o := op.(type) {
	case SetDecision:
		if !o.Decision.Valid() {
			return Outcome{}, invalid(o.opName(), "Unknown decision %q", o.Decision)
		}
		notes, ok := utils.SanitizeFreeText(o.Notes)
		if !ok {
			return Outcome{}, invalid(o.opName(), "Notes are too long")
		}
		patch.HumanDecision = decisionBy(actor, o.Decision, notes, now)
		patch.Status = statusPtr(statusAfterDecision(o.Decision))
		if o.RiskScore != nil {
			risk := utils.Clamp01(*o.RiskScore)
			priority := models.PriorityForRisk(risk)
			patch.RiskScore = &risk
			patch.Priority = &priority
		}
		action = models.AuditDecisionSet
		if o.Decision == models.DecisionEscalated {
			action = models.AuditEscalated
		}
		payload = map[string]interface{}{"decision": string(o.Decision), "notes": notes}

	case SubmitFeedback:
		fb := o.Feedback
		switch fb.Suspicious {
		case "", models.SuspicionYes, models.SuspicionNo, models.SuspicionUnsure:
		default:
			return Outcome{}, invalid(o.opName(), "Unknown suspicion verdict %q", fb.Suspicious)
		}
		text, ok := utils.SanitizeFreeText(fb.ReviewerFeedback)
		if !ok {
			return Outcome{}, invalid(o.opName(), "Feedback is too long")
		}
		fb.ReviewerFeedback = text
		next := current.Status
		if fb.TransactionReviewed && current.Status != models.StatusEscalated {
			next = models.StatusReviewed
		}
		patch.Feedback = &fb
		patch.Status = statusPtr(next)
		action = models.AuditFeedbackUpdated
		payload = map[string]interface{}{
			"transactionReviewed": fb.TransactionReviewed,
			"letterSent":          fb.LetterSent,
			"suspicious":          string(fb.Suspicious),
			"reviewerFeedback":    fb.ReviewerFeedback,
			"statusAfter":         string(next),
		}

	case Escalate:
		reason, ok := utils.SanitizeFreeText(o.Reason)
		if reason == "" {
			return Outcome{}, invalid(o.opName(), "Escalation reason is required")
		}
		if !ok {
			return Outcome{}, invalid(o.opName(), "Escalation reason is too long")
		}
		notes, ok := utils.SanitizeFreeText(o.Notes)
		if !ok {
			return Outcome{}, invalid(o.opName(), "Notes are too long")
		}
		letter := GenerateEscalationLetter(current, reason)
		patch.Escalation = &models.Escalation{
			EscalatedAt:      now,
			EscalatedBy:      actor.ID,
			EscalatedByEmail: actor.Email,
			Reason:           reason,
			Letter:           letter,
		}
		patch.HumanDecision = decisionBy(actor, models.DecisionEscalated, notes, now)
		patch.Status = statusPtr(models.StatusEscalated)
		action = models.AuditEscalated
		payload = map[string]interface{}{"reason": reason, "letter": letter, "notes": notes}

	case Override:
		if o.Next != models.DecisionFraud && o.Next != models.DecisionValid {
			return Outcome{}, invalid(o.opName(), "Override must be fraud or valid, got %q", o.Next)
		}
		notes, ok := utils.SanitizeFreeText(o.Notes)
		if !ok {
			return Outcome{}, invalid(o.opName(), "Notes are too long")
		}
		var previous interface{}
		if current.HumanDecision != nil {
			previous = string(current.HumanDecision.Decision)
		}
		patch.HumanDecision = decisionBy(actor, o.Next, notes, now)
		patch.Status = statusPtr(models.StatusReviewed)
		action = models.AuditOverridden
		payload = map[string]interface{}{
			"previousDecision": previous,
			"nextDecision":     string(o.Next),
			"notes":            notes,
		}

	case AddNote:
		note, ok := utils.SanitizeFreeText(o.Note)
		if note == "" {
			return Outcome{}, invalid(o.opName(), "Note is empty")
		}
		if !ok {
			return Outcome{}, invalid(o.opName(), "Note is too long")
		}
		patch.LastNote = &models.Note{At: now, By: actor.ID, ByEmail: actor.Email, Note: note}
		action = models.AuditNoteAdded
		payload = map[string]interface{}{"note": note}

	default:
		return Outcome{}, invalid(OpName(op), "Unsupported operation")
	}

	return Outcome{
		Patch:   patch,
		Next:    patch.Apply(current),
		Action:  action,
		Payload: payload,
	}, nil
}

// statusAfterDecision maps a recorded decision onto a status. Unlike feedback, a
// fraud or valid decision moves an escalated transaction back to reviewed.
func statusAfterDecision(d models.Decision) models.Status {
	if d == models.DecisionEscalated {
		return models.StatusEscalated
	}
	return models.StatusReviewed
}

func decisionBy(actor models.Principal, d models.Decision, notes string, now time.Time) *models.HumanDecision {
	return &models.HumanDecision{
		Decision:       d,
		DecidedAt:      now,
		DecidedBy:      actor.ID,
		DecidedByEmail: actor.Email,
		Notes:          notes,
	}
}

func statusPtr(s models.Status) *models.Status { return &s }
