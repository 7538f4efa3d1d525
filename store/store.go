// Package store is the scoped persistence boundary for the review workflow.
// Every read that can leak records across reviewers takes a Predicate, so scope is
// enforced where the rows are fetched and not only by callers.
package store

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"refund-review-api/models"
)

// ErrNotFound is returned when an id does not resolve.
var ErrNotFound = errors.New("store: record not found")

type ScopeKind string

const (
	ScopeNone      ScopeKind = "none"
	ScopeWarehouse ScopeKind = "warehouse"
	ScopeRegion    ScopeKind = "region"
	ScopeAll       ScopeKind = "all"
)

// Predicate restricts the records a reviewer may read. The zero value matches nothing.
type Predicate struct {
	Kind  ScopeKind `json:"kind"`
	Value string    `json:"value,omitempty"`
}

func MatchAll() Predicate  { return Predicate{Kind: ScopeAll} }
func MatchNone() Predicate { return Predicate{Kind: ScopeNone} }

func WarehouseEquals(id string) Predicate { return Predicate{Kind: ScopeWarehouse, Value: id} }
func RegionEquals(id string) Predicate    { return Predicate{Kind: ScopeRegion, Value: id} }

// MatchesNothing reports whether the predicate is fail-closed.
func (p Predicate) MatchesNothing() bool {
	switch p.Kind {
	case ScopeAll:
		return false
	case ScopeWarehouse, ScopeRegion:
		return p.Value == ""
	}
	return true
}

func (p Predicate) match(warehouseID, regionID string) bool {
	if p.MatchesNothing() {
		return false
	}
	switch p.Kind {
	case ScopeAll:
		return true
	case ScopeWarehouse:
		return warehouseID == p.Value
	case ScopeRegion:
		return regionID == p.Value
	}
	return false
}

func (p Predicate) MatchesTransaction(tx models.Transaction) bool {
	return p.match(tx.WarehouseID, tx.RegionID)
}

// MatchesNotification treats a missing tag as not matching a narrowed scope.
func (p Predicate) MatchesNotification(n models.Notification) bool {
	return p.match(deref(n.WarehouseID), deref(n.RegionID))
}

func (p Predicate) String() string {
	if p.MatchesNothing() {
		return "none"
	}
	if p.Kind == ScopeAll {
		return "all"
	}
	return string(p.Kind) + "=" + p.Value
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// Cursor marks the last row of a page ordered by createdAt DESC, id DESC.
type Cursor struct {
	CreatedAt time.Time
	ID        string
}

// Encode renders the cursor as an opaque token for clients.
func (c Cursor) Encode() string {
	raw := strconv.FormatInt(c.CreatedAt.UnixNano(), 10) + ":" + c.ID
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// ParseCursor decodes a token produced by Cursor.Encode.
func ParseCursor(token string) (*Cursor, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("invalid cursor: %w", err)
	}
	nanos, id, ok := strings.Cut(string(raw), ":")
	if !ok || id == "" {
		return nil, errors.New("invalid cursor")
	}
	n, err := strconv.ParseInt(nanos, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid cursor: %w", err)
	}
	return &Cursor{CreatedAt: time.Unix(0, n).UTC(), ID: id}, nil
}

// before reports whether a row sorts after the cursor in DESC order.
func (c Cursor) before(createdAt time.Time, id string) bool {
	if createdAt.Before(c.CreatedAt) {
		return true
	}
	return createdAt.Equal(c.CreatedAt) && id < c.ID
}

const (
	DefaultPageSize = 25
	MaxPageSize     = 100
)

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultPageSize
	}
	if limit > MaxPageSize {
		return MaxPageSize
	}
	return limit
}

type TransactionQuery struct {
	Predicate Predicate
	From      time.Time       // zero means no lower bound
	Priority  models.Priority // empty means all
	Status    models.Status   // empty means all
	Limit     int
	Cursor    *Cursor
}

type TransactionPage struct {
	Items []models.Transaction `json:"items"`
	Next  *Cursor              `json:"-"`
}

type NotificationQuery struct {
	Predicate  Predicate
	ReviewerID string // read state owner
	UnreadOnly bool
	Limit      int
}

// Store is the scoped store consumed by the review core.
type Store interface {
	GetReviewer(ctx context.Context, id string) (*models.Reviewer, error)
	GetReviewerByEmail(ctx context.Context, email string) (*models.Reviewer, error)
	SaveReviewer(ctx context.Context, r *models.Reviewer) error

	QueryTransactions(ctx context.Context, q TransactionQuery) (TransactionPage, error)
	GetTransaction(ctx context.Context, id string) (*models.Transaction, error)
	CreateTransaction(ctx context.Context, tx *models.Transaction) error
	WriteTransaction(ctx context.Context, id string, patch models.TransactionPatch) error

	AppendAudit(ctx context.Context, entry *models.AuditEntry) (string, error)
	ListAudit(ctx context.Context, transactionID string) ([]models.AuditEntry, error)

	AppendNotification(ctx context.Context, n *models.Notification) (string, error)
	GetNotification(ctx context.Context, id string) (*models.Notification, error)
	QueryNotifications(ctx context.Context, q NotificationQuery) ([]models.Notification, error)
	MarkNotificationsRead(ctx context.Context, reviewerID string, ids []string, at time.Time) error
}

// AtomicWriter is implemented by stores that can commit the primary patch and its
// audit entry in one transaction.
type AtomicWriter interface {
	WriteWithAudit(ctx context.Context, id string, patch models.TransactionPatch, entry *models.AuditEntry) error
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
