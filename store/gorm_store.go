package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"refund-review-api/models"
)

// GormStore persists the review collections in MySQL or Postgres through gorm.
type GormStore struct {
	db   *gorm.DB
	feed Feed
}

func NewGormStore(db *gorm.DB, feed Feed) *GormStore {
	return &GormStore{db: db, feed: feed}
}

// Migrate creates or updates the review tables.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Reviewer{},
		&models.Transaction{},
		&models.AuditEntry{},
		&models.Notification{},
		&models.NotificationRead{},
	)
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w", op, err)
}

// scoped narrows q by the predicate. Anything that does not resolve to a
// concrete scope becomes an always-false condition.
func scoped(q *gorm.DB, p Predicate, warehouseCol, regionCol string) *gorm.DB {
	if p.MatchesNothing() {
		return q.Where("1 = 0")
	}
	switch p.Kind {
	case ScopeAll:
		return q
	case ScopeWarehouse:
		return q.Where(warehouseCol+" = ?", p.Value)
	case ScopeRegion:
		return q.Where(regionCol+" = ?", p.Value)
	}
	return q.Where("1 = 0")
}

func (s *GormStore) GetReviewer(ctx context.Context, id string) (*models.Reviewer, error) {
	var r models.Reviewer
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&r).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, unavailable("load reviewer", err)
	}
	return &r, nil
}

func (s *GormStore) GetReviewerByEmail(ctx context.Context, email string) (*models.Reviewer, error) {
	var r models.Reviewer
	if err := s.db.WithContext(ctx).Where("email = ?", email).First(&r).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, unavailable("load reviewer", err)
	}
	return &r, nil
}

func (s *GormStore) SaveReviewer(ctx context.Context, r *models.Reviewer) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = now
	if err := s.db.WithContext(ctx).Save(r).Error; err != nil {
		return unavailable("save reviewer", err)
	}
	publish(ctx, s.feed, Change{Kind: ChangeReviewerUpdated, ID: r.ID, ReviewerID: r.ID})
	return nil
}

func (s *GormStore) QueryTransactions(ctx context.Context, q TransactionQuery) (TransactionPage, error) {
	limit := clampLimit(q.Limit)

	query := scoped(s.db.WithContext(ctx).Model(&models.Transaction{}), q.Predicate, "warehouse_id", "region_id")
	if !q.From.IsZero() {
		query = query.Where("created_at >= ?", q.From)
	}
	if q.Priority != "" {
		query = query.Where("priority = ?", string(q.Priority))
	}
	if q.Status != "" {
		query = query.Where("status = ?", string(q.Status))
	}
	if q.Cursor != nil {
		query = query.Where("(created_at < ? OR (created_at = ? AND id < ?))",
			q.Cursor.CreatedAt, q.Cursor.CreatedAt, q.Cursor.ID)
	}

	var rows []models.Transaction
	if err := query.Order("created_at DESC, id DESC").Limit(limit).Find(&rows).Error; err != nil {
		return TransactionPage{}, unavailable("query transactions", err)
	}

	page := TransactionPage{Items: rows}
	if len(rows) == limit {
		last := rows[len(rows)-1]
		page.Next = &Cursor{CreatedAt: last.CreatedAt, ID: last.ID}
	}
	return page, nil
}

func (s *GormStore) GetTransaction(ctx context.Context, id string) (*models.Transaction, error) {
	var tx models.Transaction
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&tx).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, unavailable("load transaction", err)
	}
	return &tx, nil
}

func (s *GormStore) CreateTransaction(ctx context.Context, tx *models.Transaction) error {
	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	if err := s.db.WithContext(ctx).Create(tx).Error; err != nil {
		return unavailable("create transaction", err)
	}
	publish(ctx, s.feed, Change{Kind: ChangeTransactionCreated, ID: tx.ID, WarehouseID: tx.WarehouseID, RegionID: tx.RegionID})
	return nil
}

func writePatch(db *gorm.DB, id string, patch models.TransactionPatch) error {
	cols, err := patch.Columns()
	if err != nil {
		return fmt.Errorf("encode patch: %w", err)
	}
	if len(cols) == 0 {
		return nil
	}
	res := db.Model(&models.Transaction{}).Where("id = ?", id).Updates(cols)
	if res.Error != nil {
		return unavailable("update transaction", res.Error)
	}
	if res.RowsAffected == 0 {
		var n int64
		if err := db.Model(&models.Transaction{}).Where("id = ?", id).Count(&n).Error; err != nil {
			return unavailable("update transaction", err)
		}
		if n == 0 {
			return ErrNotFound
		}
	}
	return nil
}

func (s *GormStore) WriteTransaction(ctx context.Context, id string, patch models.TransactionPatch) error {
	if err := writePatch(s.db.WithContext(ctx), id, patch); err != nil {
		return err
	}
	s.publishUpdated(ctx, id)
	return nil
}

// WriteWithAudit commits the patch and its audit entry in one database transaction.
func (s *GormStore) WriteWithAudit(ctx context.Context, id string, patch models.TransactionPatch, entry *models.AuditEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := writePatch(tx, id, patch); err != nil {
			return err
		}
		if err := tx.Create(entry).Error; err != nil {
			return unavailable("append audit", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.publishUpdated(ctx, id)
	return nil
}

func (s *GormStore) publishUpdated(ctx context.Context, id string) {
	if s.feed == nil {
		return
	}
	c := Change{Kind: ChangeTransactionUpdated, ID: id}
	var row struct {
		WarehouseID string
		RegionID    string
	}
	if err := s.db.WithContext(ctx).Model(&models.Transaction{}).
		Select("warehouse_id, region_id").Where("id = ?", id).Scan(&row).Error; err == nil {
		c.WarehouseID = row.WarehouseID
		c.RegionID = row.RegionID
	}
	publish(ctx, s.feed, c)
}

func (s *GormStore) AppendAudit(ctx context.Context, entry *models.AuditEntry) (string, error) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		return "", unavailable("append audit", err)
	}
	return entry.ID, nil
}

func (s *GormStore) ListAudit(ctx context.Context, transactionID string) ([]models.AuditEntry, error) {
	var entries []models.AuditEntry
	if err := s.db.WithContext(ctx).
		Where("transaction_id = ?", transactionID).
		Order("at ASC, seq ASC").
		Find(&entries).Error; err != nil {
		return nil, unavailable("list audit", err)
	}
	return entries, nil
}

func (s *GormStore) AppendNotification(ctx context.Context, n *models.Notification) (string, error) {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if err := s.db.WithContext(ctx).Create(n).Error; err != nil {
		return "", unavailable("append notification", err)
	}
	publish(ctx, s.feed, Change{
		Kind:        ChangeNotificationCreated,
		ID:          n.ID,
		WarehouseID: deref(n.WarehouseID),
		RegionID:    deref(n.RegionID),
	})
	return n.ID, nil
}

func (s *GormStore) GetNotification(ctx context.Context, id string) (*models.Notification, error) {
	var n models.Notification
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&n).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, unavailable("load notification", err)
	}
	return &n, nil
}

func (s *GormStore) QueryNotifications(ctx context.Context, q NotificationQuery) ([]models.Notification, error) {
	limit := clampLimit(q.Limit)

	query := scoped(s.db.WithContext(ctx).Model(&models.Notification{}), q.Predicate, "warehouse_id", "region_id")
	if q.UnreadOnly && q.ReviewerID != "" {
		query = query.Where(`NOT EXISTS (SELECT 1 FROM notification_reads r
			WHERE r.notification_id = notifications.id AND r.reviewer_id = ?)`, q.ReviewerID)
	}

	var items []models.Notification
	if err := query.Order("created_at DESC, id DESC").Limit(limit).Find(&items).Error; err != nil {
		return nil, unavailable("query notifications", err)
	}
	if len(items) == 0 || q.ReviewerID == "" {
		return items, nil
	}

	ids := make([]string, len(items))
	for i, n := range items {
		ids[i] = n.ID
	}
	var reads []models.NotificationRead
	if err := s.db.WithContext(ctx).
		Where("reviewer_id = ? AND notification_id IN ?", q.ReviewerID, ids).
		Find(&reads).Error; err != nil {
		return nil, unavailable("load read state", err)
	}
	readAt := make(map[string]time.Time, len(reads))
	for _, r := range reads {
		readAt[r.NotificationID] = r.ReadAt
	}
	for i := range items {
		if at, ok := readAt[items[i].ID]; ok {
			at := at
			items[i].ReadAt = &at
		}
	}
	return items, nil
}

func (s *GormStore) MarkNotificationsRead(ctx context.Context, reviewerID string, ids []string, at time.Time) error {
	ids = uniqueIDs(ids)
	if len(ids) == 0 {
		return nil
	}
	var known int64
	if err := s.db.WithContext(ctx).Model(&models.Notification{}).
		Where("id IN ?", ids).Count(&known).Error; err != nil {
		return unavailable("mark read", err)
	}
	if int(known) != len(ids) {
		return ErrNotFound
	}

	rows := make([]models.NotificationRead, len(ids))
	for i, id := range ids {
		rows[i] = models.NotificationRead{NotificationID: id, ReviewerID: reviewerID, ReadAt: at}
	}
	if err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&rows).Error; err != nil {
		return unavailable("mark read", err)
	}
	for _, id := range ids {
		publish(ctx, s.feed, Change{Kind: ChangeNotificationRead, ID: id, ReviewerID: reviewerID})
	}
	return nil
}
