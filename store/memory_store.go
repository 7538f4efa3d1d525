package store

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"refund-review-api/models"
)

// Op names a MemoryStore operation that can be made to fail.
type Op string

const (
	OpWriteTransaction   Op = "write_transaction"
	OpAppendAudit        Op = "append_audit"
	OpQueryTransactions  Op = "query_transactions"
	OpQueryNotifications Op = "query_notifications"
	OpAppendNotification Op = "append_notification"
	OpMarkRead           Op = "mark_read"
)

// ErrInjected is the default error produced by InjectFault.
var ErrInjected = errors.New("store: injected failure")

// MemoryStore keeps every collection in process memory. It has no multi-record
// transactions, so it does not implement AtomicWriter.
type MemoryStore struct {
	mu            sync.RWMutex
	reviewers     map[string]models.Reviewer
	transactions  map[string]models.Transaction
	audit         map[string][]models.AuditEntry
	notifications []storedNotification
	reads         map[string]map[string]time.Time // notification -> reviewer -> readAt
	seq           uint64
	faults        map[Op][]error
	feed          Feed
}

type storedNotification struct {
	seq uint64
	n   models.Notification
}

// NewMemoryStore returns an empty store publishing to feed (may be nil).
func NewMemoryStore(feed Feed) *MemoryStore {
	return &MemoryStore{
		reviewers:    make(map[string]models.Reviewer),
		transactions: make(map[string]models.Transaction),
		audit:        make(map[string][]models.AuditEntry),
		reads:        make(map[string]map[string]time.Time),
		faults:       make(map[Op][]error),
		feed:         feed,
	}
}

// InjectFault makes the next call of op fail with err (ErrInjected when nil).
func (s *MemoryStore) InjectFault(op Op, err error) {
	if err == nil {
		err = ErrInjected
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults[op] = append(s.faults[op], err)
}

// fault pops a queued failure; caller holds the write lock.
func (s *MemoryStore) fault(op Op) error {
	queue := s.faults[op]
	if len(queue) == 0 {
		return nil
	}
	s.faults[op] = queue[1:]
	return queue[0]
}

func (s *MemoryStore) takeFault(op Op) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fault(op)
}

func (s *MemoryStore) GetReviewer(_ context.Context, id string) (*models.Reviewer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.reviewers[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &r, nil
}

func (s *MemoryStore) GetReviewerByEmail(_ context.Context, email string) (*models.Reviewer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.reviewers {
		if strings.EqualFold(r.Email, email) {
			found := r
			return &found, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) SaveReviewer(ctx context.Context, r *models.Reviewer) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = now

	s.mu.Lock()
	s.reviewers[r.ID] = *r
	s.mu.Unlock()

	publish(ctx, s.feed, Change{Kind: ChangeReviewerUpdated, ID: r.ID, ReviewerID: r.ID})
	return nil
}

func (s *MemoryStore) QueryTransactions(_ context.Context, q TransactionQuery) (TransactionPage, error) {
	if err := s.takeFault(OpQueryTransactions); err != nil {
		return TransactionPage{}, err
	}
	limit := clampLimit(q.Limit)

	s.mu.RLock()
	rows := make([]models.Transaction, 0, len(s.transactions))
	for _, tx := range s.transactions {
		if !q.Predicate.MatchesTransaction(tx) {
			continue
		}
		if !q.From.IsZero() && tx.CreatedAt.Before(q.From) {
			continue
		}
		if q.Priority != "" && tx.Priority != q.Priority {
			continue
		}
		if q.Status != "" && tx.Status != q.Status {
			continue
		}
		if q.Cursor != nil && !q.Cursor.before(tx.CreatedAt, tx.ID) {
			continue
		}
		rows = append(rows, cloneTransaction(tx))
	}
	s.mu.RUnlock()

	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].CreatedAt.Equal(rows[j].CreatedAt) {
			return rows[i].CreatedAt.After(rows[j].CreatedAt)
		}
		return rows[i].ID > rows[j].ID
	})

	page := TransactionPage{Items: rows}
	if len(rows) > limit {
		page.Items = rows[:limit]
	}
	if len(page.Items) == limit {
		last := page.Items[len(page.Items)-1]
		page.Next = &Cursor{CreatedAt: last.CreatedAt, ID: last.ID}
	}
	return page, nil
}

func (s *MemoryStore) GetTransaction(_ context.Context, id string) (*models.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tx, ok := s.transactions[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := cloneTransaction(tx)
	return &out, nil
}

func (s *MemoryStore) CreateTransaction(ctx context.Context, tx *models.Transaction) error {
	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	s.mu.Lock()
	if _, exists := s.transactions[tx.ID]; exists {
		s.mu.Unlock()
		return errors.New("store: transaction already exists")
	}
	s.transactions[tx.ID] = cloneTransaction(*tx)
	s.mu.Unlock()

	publish(ctx, s.feed, Change{Kind: ChangeTransactionCreated, ID: tx.ID, WarehouseID: tx.WarehouseID, RegionID: tx.RegionID})
	return nil
}

func (s *MemoryStore) WriteTransaction(ctx context.Context, id string, patch models.TransactionPatch) error {
	s.mu.Lock()
	if err := s.fault(OpWriteTransaction); err != nil {
		s.mu.Unlock()
		return err
	}
	tx, ok := s.transactions[id]
	if !ok {
		s.mu.Unlock()
		return ErrNotFound
	}
	tx = patch.Apply(tx)
	s.transactions[id] = tx
	s.mu.Unlock()

	publish(ctx, s.feed, Change{Kind: ChangeTransactionUpdated, ID: id, WarehouseID: tx.WarehouseID, RegionID: tx.RegionID})
	return nil
}

func (s *MemoryStore) AppendAudit(_ context.Context, entry *models.AuditEntry) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault(OpAppendAudit); err != nil {
		return "", err
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	s.seq++
	entry.Seq = s.seq
	stored := *entry
	stored.Payload = clonePayload(entry.Payload)
	s.audit[entry.TransactionID] = append(s.audit[entry.TransactionID], stored)
	return entry.ID, nil
}

func (s *MemoryStore) ListAudit(_ context.Context, transactionID string) ([]models.AuditEntry, error) {
	s.mu.RLock()
	entries := make([]models.AuditEntry, len(s.audit[transactionID]))
	copy(entries, s.audit[transactionID])
	s.mu.RUnlock()

	sort.SliceStable(entries, func(i, j int) bool {
		if !entries[i].At.Equal(entries[j].At) {
			return entries[i].At.Before(entries[j].At)
		}
		return entries[i].Seq < entries[j].Seq
	})
	return entries, nil
}

func (s *MemoryStore) AppendNotification(ctx context.Context, n *models.Notification) (string, error) {
	s.mu.Lock()
	if err := s.fault(OpAppendNotification); err != nil {
		s.mu.Unlock()
		return "", err
	}
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	s.seq++
	stored := *n
	stored.ReadAt = nil
	s.notifications = append(s.notifications, storedNotification{seq: s.seq, n: stored})
	s.mu.Unlock()

	publish(ctx, s.feed, Change{
		Kind:        ChangeNotificationCreated,
		ID:          n.ID,
		WarehouseID: deref(n.WarehouseID),
		RegionID:    deref(n.RegionID),
	})
	return n.ID, nil
}

func (s *MemoryStore) GetNotification(_ context.Context, id string) (*models.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sn := range s.notifications {
		if sn.n.ID == id {
			n := sn.n
			return &n, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) QueryNotifications(_ context.Context, q NotificationQuery) ([]models.Notification, error) {
	if err := s.takeFault(OpQueryNotifications); err != nil {
		return nil, err
	}
	limit := clampLimit(q.Limit)

	s.mu.RLock()
	matched := make([]storedNotification, 0)
	for _, sn := range s.notifications {
		if !q.Predicate.MatchesNotification(sn.n) {
			continue
		}
		n := sn.n
		if at, ok := s.reads[n.ID][q.ReviewerID]; ok && q.ReviewerID != "" {
			readAt := at
			n.ReadAt = &readAt
		}
		if q.UnreadOnly && n.ReadAt != nil {
			continue
		}
		matched = append(matched, storedNotification{seq: sn.seq, n: n})
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].n.CreatedAt.Equal(matched[j].n.CreatedAt) {
			return matched[i].n.CreatedAt.After(matched[j].n.CreatedAt)
		}
		return matched[i].seq > matched[j].seq
	})
	if len(matched) > limit {
		matched = matched[:limit]
	}
	out := make([]models.Notification, len(matched))
	for i, sn := range matched {
		out[i] = sn.n
	}
	return out, nil
}

func (s *MemoryStore) MarkNotificationsRead(ctx context.Context, reviewerID string, ids []string, at time.Time) error {
	ids = uniqueIDs(ids)
	s.mu.Lock()
	if err := s.fault(OpMarkRead); err != nil {
		s.mu.Unlock()
		return err
	}
	known := make(map[string]bool, len(s.notifications))
	for _, sn := range s.notifications {
		known[sn.n.ID] = true
	}
	for _, id := range ids {
		if !known[id] {
			s.mu.Unlock()
			return ErrNotFound
		}
	}
	for _, id := range ids {
		byReviewer, ok := s.reads[id]
		if !ok {
			byReviewer = make(map[string]time.Time)
			s.reads[id] = byReviewer
		}
		if _, already := byReviewer[reviewerID]; !already {
			byReviewer[reviewerID] = at
		}
	}
	s.mu.Unlock()

	for _, id := range ids {
		publish(ctx, s.feed, Change{Kind: ChangeNotificationRead, ID: id, ReviewerID: reviewerID})
	}
	return nil
}

func cloneTransaction(tx models.Transaction) models.Transaction {
	if tx.ModelExplanation != nil {
		v := *tx.ModelExplanation
		v.Reasons = append([]string(nil), v.Reasons...)
		tx.ModelExplanation = &v
	}
	if tx.Flags != nil {
		tx.Flags = append([]string(nil), tx.Flags...)
	}
	if tx.HumanDecision != nil {
		v := *tx.HumanDecision
		tx.HumanDecision = &v
	}
	if tx.Escalation != nil {
		v := *tx.Escalation
		tx.Escalation = &v
	}
	if tx.Feedback != nil {
		v := *tx.Feedback
		tx.Feedback = &v
	}
	if tx.LastNote != nil {
		v := *tx.LastNote
		tx.LastNote = &v
	}
	return tx
}

func clonePayload(p map[string]interface{}) map[string]interface{} {
	if p == nil {
		return nil
	}
	out := make(map[string]interface{}, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}
