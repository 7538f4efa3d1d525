package models

import "time"

// AuditAction is the closed set of mutating operations recorded on a transaction.
type AuditAction string

const (
	AuditDecisionSet     AuditAction = "DECISION_SET"
	AuditNoteAdded       AuditAction = "NOTE_ADDED"
	AuditEscalated       AuditAction = "ESCALATED"
	AuditOverridden      AuditAction = "OVERRIDDEN"
	AuditFeedbackUpdated AuditAction = "FEEDBACK_UPDATED"
)

func (a AuditAction) Valid() bool {
	switch a {
	case AuditDecisionSet, AuditNoteAdded, AuditEscalated, AuditOverridden, AuditFeedbackUpdated:
		return true
	}
	return false
}

// AuditEntry is an append-only record of one mutating operation.
// Seq is assigned by the store and breaks ties between equal timestamps.
type AuditEntry struct {
	Seq           uint64                 `gorm:"primaryKey;autoIncrement;column:seq" json:"seq"`
	ID            string                 `gorm:"column:id;uniqueIndex;size:64" json:"id"`
	TransactionID string                 `gorm:"column:transaction_id;size:64;index:idx_audit_tx_at" json:"transactionId"`
	At            time.Time              `gorm:"column:at;index:idx_audit_tx_at" json:"at"`
	By            string                 `gorm:"column:by_reviewer;size:64" json:"by"`
	ByEmail       string                 `gorm:"column:by_email" json:"byEmail,omitempty"`
	Action        AuditAction            `gorm:"column:action;size:32" json:"action"`
	Payload       map[string]interface{} `gorm:"column:payload;serializer:json" json:"payload,omitempty"`
}

func (AuditEntry) TableName() string { return "transaction_audit" }
