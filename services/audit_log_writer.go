package services

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"refund-review-api/models"
	"refund-review-api/store"
)

// AuditLogWriter appends exactly one audit entry per mutating operation and ties it
// to the primary write.
type AuditLogWriter struct {
	store store.Store
	now   func() time.Time
}

func NewAuditLogWriter(s store.Store) *AuditLogWriter {
	return &AuditLogWriter{store: s, now: time.Now}
}

// NewEntry builds an unsaved audit entry.
func (w *AuditLogWriter) NewEntry(transactionID string, actor models.Principal, action models.AuditAction, payload map[string]interface{}, at time.Time) *models.AuditEntry {
	if at.IsZero() {
		at = w.now()
	}
	return &models.AuditEntry{
		ID:            uuid.NewString(),
		TransactionID: transactionID,
		At:            at.UTC(),
		By:            actor.ID,
		ByEmail:       actor.Email,
		Action:        action,
		Payload:       payload,
	}
}

// Append records a standalone audit entry.
func (w *AuditLogWriter) Append(ctx context.Context, transactionID string, actor *models.Principal, action models.AuditAction, payload map[string]interface{}) (string, error) {
	const op = "audit_append"
	if actor == nil {
		return "", denied(op, "Sign in to record audit entries")
	}
	if !action.Valid() {
		return "", invalid(op, "Unknown audit action %q", action)
	}
	if transactionID == "" {
		return "", invalid(op, "Transaction id is required")
	}
	id, err := w.store.AppendAudit(ctx, w.NewEntry(transactionID, *actor, action, payload, time.Time{}))
	if err != nil {
		return "", fromStore(op, err)
	}
	return id, nil
}

// Commit writes the primary patch together with its audit entry. Stores implementing
// store.AtomicWriter commit both in one transaction; otherwise the patch is written
// first and a failed audit append is reported as a partial write.
func (w *AuditLogWriter) Commit(ctx context.Context, op, transactionID string, patch models.TransactionPatch, entry *models.AuditEntry) error {
	if atomic, ok := w.store.(store.AtomicWriter); ok {
		if err := atomic.WriteWithAudit(ctx, transactionID, patch, entry); err != nil {
			return fromStore(op, err)
		}
		return nil
	}

	if err := w.store.WriteTransaction(ctx, transactionID, patch); err != nil {
		return fromStore(op, err)
	}
	if _, err := w.store.AppendAudit(ctx, entry); err != nil {
		log.Printf("[audit] %s on %s committed without audit entry: %v", op, transactionID, err)
		return &ReviewError{
			Kind:             KindPartialWrite,
			Op:               op,
			Reason:           "The change was saved but its audit entry was not recorded",
			Err:              err,
			PrimaryCommitted: true,
		}
	}
	return nil
}

// List returns the audit trail of one transaction, oldest first.
func (w *AuditLogWriter) List(ctx context.Context, transactionID string) ([]models.AuditEntry, error) {
	entries, err := w.store.ListAudit(ctx, transactionID)
	if err != nil {
		return nil, fromStore("audit_list", err)
	}
	return entries, nil
}
