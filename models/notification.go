package models

import "time"

type NotificationType string

const (
	NotificationHighRisk      NotificationType = "HIGH_RISK"
	NotificationPendingReview NotificationType = "PENDING_REVIEW"
	NotificationEscalation    NotificationType = "ESCALATION"
)

// Notification is created once per qualifying transaction event.
// ReadAt is not stored on the row; it is filled per reviewer from NotificationRead.
type Notification struct {
	ID            string           `gorm:"primaryKey;column:id;size:64" json:"id"`
	CreatedAt     time.Time        `gorm:"column:created_at;index" json:"createdAt"`
	Message       string           `gorm:"column:message" json:"message"`
	Type          NotificationType `gorm:"column:type;size:32" json:"type"`
	Priority      Priority         `gorm:"column:priority;size:16" json:"priority"`
	TransactionID *string          `gorm:"column:transaction_id;size:64" json:"transactionId,omitempty"`
	WarehouseID   *string          `gorm:"column:warehouse_id;size:64;index" json:"warehouseId,omitempty"`
	RegionID      *string          `gorm:"column:region_id;size:64;index" json:"regionId,omitempty"`
	ReadAt        *time.Time       `gorm:"-" json:"readAt,omitempty"`
}

func (Notification) TableName() string { return "notifications" }

// NotificationRead tracks read state per reviewer-notification pair.
type NotificationRead struct {
	NotificationID string    `gorm:"primaryKey;column:notification_id;size:64" json:"notificationId"`
	ReviewerID     string    `gorm:"primaryKey;column:reviewer_id;size:64" json:"reviewerId"`
	ReadAt         time.Time `gorm:"column:read_at" json:"readAt"`
}

func (NotificationRead) TableName() string { return "notification_reads" }
