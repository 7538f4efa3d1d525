package services

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"refund-review-api/models"
	"refund-review-api/store"
	"refund-review-api/utils"
)

// MailSender delivers a plain-text message; config.SendMail satisfies it.
type MailSender func(to []string, subject, body string) error

// NotificationFeed is one delivery of a reviewer's notification stream.
// Error is set when the feed could not be loaded so the view can show a failure
// state instead of an empty list.
type NotificationFeed struct {
	Items       []models.Notification `json:"items"`
	UnreadCount int                   `json:"unreadCount"`
	Scope       string                `json:"scope"`
	Error       string                `json:"error,omitempty"`
	At          time.Time             `json:"at"`
}

// NotificationFanout synthesizes notifications for qualifying transaction events and
// delivers them to reviewers through their resolved scope.
type NotificationFanout struct {
	store  store.Store
	feed   store.Feed
	now    func() time.Time
	mail   MailSender
	mailTo []string
	mailWG sync.WaitGroup
}

func NewNotificationFanout(s store.Store, feed store.Feed) *NotificationFanout {
	return &NotificationFanout{store: s, feed: feed, now: time.Now}
}

// WithEscalationMail emails escalation letters to recipients when a transaction is escalated.
func (f *NotificationFanout) WithEscalationMail(send MailSender, recipients []string) *NotificationFanout {
	f.mail = send
	f.mailTo = recipients
	return f
}

// OnTransactionCreated emits a HIGH_RISK notification for high and critical arrivals.
func (f *NotificationFanout) OnTransactionCreated(ctx context.Context, tx models.Transaction) (*models.Notification, error) {
	if !tx.Priority.Elevated() {
		return nil, nil
	}
	return f.emit(ctx, tx, models.NotificationHighRisk, highRiskMessage(tx))
}

// OnPriorityChanged emits a HIGH_RISK notification when priority rises into high or critical.
func (f *NotificationFanout) OnPriorityChanged(ctx context.Context, before, after models.Transaction) (*models.Notification, error) {
	if before.Priority.Elevated() || !after.Priority.Elevated() {
		return nil, nil
	}
	return f.emit(ctx, after, models.NotificationHighRisk, highRiskMessage(after))
}

// OnEscalated emits an ESCALATION notification. A non-empty letter is mailed to the
// escalation recipients when mail is configured.
func (f *NotificationFanout) OnEscalated(ctx context.Context, tx models.Transaction, letter string) (*models.Notification, error) {
	n, err := f.emit(ctx, tx, models.NotificationEscalation,
		fmt.Sprintf("Refund escalated for secondary review: %s", displayCode(tx)))
	if letter != "" && f.mail != nil && len(f.mailTo) > 0 {
		f.sendLetterAsync(tx, letter)
	}
	return n, err
}

func (f *NotificationFanout) emit(ctx context.Context, tx models.Transaction, kind models.NotificationType, message string) (*models.Notification, error) {
	txID, warehouse, region := tx.ID, tx.WarehouseID, tx.RegionID
	n := &models.Notification{
		CreatedAt:     f.now().UTC(),
		Message:       message,
		Type:          kind,
		Priority:      tx.Priority,
		TransactionID: &txID,
		WarehouseID:   &warehouse,
		RegionID:      &region,
	}
	if _, err := f.store.AppendNotification(ctx, n); err != nil {
		log.Printf("[fanout] %s notification for %s failed: %v", kind, tx.ID, err)
		return nil, fromStore("notify", err)
	}
	log.Printf("[fanout] %s notification %s for %s (%s/%s)", kind, n.ID, tx.ID, warehouse, region)
	return n, nil
}

func (f *NotificationFanout) sendLetterAsync(tx models.Transaction, body string) {
	subject := fmt.Sprintf("Refund Transaction Escalation Review: %s", displayCode(tx))
	to := append([]string(nil), f.mailTo...)
	f.mailWG.Add(1)
	go func() {
		defer f.mailWG.Done()
		if err := f.mail(to, subject, body); err != nil {
			log.Printf("[fanout] escalation email send failed (subject=%q to=%v): %v", subject, to, err)
		}
	}()
}

// WaitMail blocks until queued escalation emails have been attempted.
func (f *NotificationFanout) WaitMail() { f.mailWG.Wait() }

func highRiskMessage(tx models.Transaction) string {
	return fmt.Sprintf("High-risk refund flagged (%s): %s", utils.FormatPercent(tx.RiskScore), displayCode(tx))
}

func displayCode(tx models.Transaction) string {
	if code := strings.TrimSpace(tx.TransactionCode); code != "" {
		return code
	}
	return tx.ID
}

// Feed returns the scoped notification window for principal, newest first.
// The unread count covers the returned window.
func (f *NotificationFanout) Feed(ctx context.Context, principal *models.Principal, limit int) (NotificationFeed, error) {
	if principal == nil {
		return NotificationFeed{}, denied("notifications", "Sign in to view notifications")
	}
	pred := ResolveScope(*principal)
	items, err := f.store.QueryNotifications(ctx, store.NotificationQuery{
		Predicate:  pred,
		ReviewerID: principal.ID,
		Limit:      limit,
	})
	if err != nil {
		return NotificationFeed{}, fromStore("notifications", err)
	}
	if items == nil {
		items = []models.Notification{}
	}
	return NotificationFeed{
		Items:       items,
		UnreadCount: countUnread(items),
		Scope:       pred.String(),
		At:          f.now().UTC(),
	}, nil
}

func countUnread(items []models.Notification) int {
	unread := 0
	for _, n := range items {
		if n.ReadAt == nil {
			unread++
		}
	}
	return unread
}

// MarkRead sets readAt for principal on one notification inside their scope.
func (f *NotificationFanout) MarkRead(ctx context.Context, principal *models.Principal, id string) error {
	const op = "mark_read"
	if principal == nil {
		return denied(op, "Sign in to update notifications")
	}
	n, err := f.store.GetNotification(ctx, id)
	if err != nil {
		return fromStore(op, err)
	}
	if !ResolveScope(*principal).MatchesNotification(*n) {
		return outOfScope(op)
	}
	if err := f.store.MarkNotificationsRead(ctx, principal.ID, []string{id}, f.now().UTC()); err != nil {
		return fromStore(op, err)
	}
	return nil
}

// MarkAllRead marks every unread notification in principal's window as read.
func (f *NotificationFanout) MarkAllRead(ctx context.Context, principal *models.Principal) (int, error) {
	const op = "mark_all_read"
	if principal == nil {
		return 0, denied(op, "Sign in to update notifications")
	}
	unread, err := f.store.QueryNotifications(ctx, store.NotificationQuery{
		Predicate:  ResolveScope(*principal),
		ReviewerID: principal.ID,
		UnreadOnly: true,
		Limit:      store.MaxPageSize,
	})
	if err != nil {
		return 0, fromStore(op, err)
	}
	if len(unread) == 0 {
		return 0, nil
	}
	ids := make([]string, len(unread))
	for i, n := range unread {
		ids[i] = n.ID
	}
	if err := f.store.MarkNotificationsRead(ctx, principal.ID, ids, f.now().UTC()); err != nil {
		return 0, fromStore(op, err)
	}
	return len(ids), nil
}

// Subscribe streams reviewerID's notification feed. The reviewer is reloaded and the
// scope re-resolved on every delivery, so assignment changes apply without reconnecting.
func (f *NotificationFanout) Subscribe(ctx context.Context, reviewerID string, limit int) (*Subscription[NotificationFeed], error) {
	if strings.TrimSpace(reviewerID) == "" {
		return nil, denied("notifications_stream", "Sign in to view notifications")
	}
	if _, err := f.store.GetReviewer(ctx, reviewerID); err != nil {
		return nil, fromStore("notifications_stream", err)
	}

	changes, release := f.feed.Subscribe(32)
	return startSubscription(ctx, 1, func(ctx context.Context, emit func(NotificationFeed) bool) {
		defer release()
		if !emit(f.snapshot(ctx, reviewerID, limit)) {
			return
		}
		for {
			select {
			case <-ctx.Done():
				return
			case c, ok := <-changes:
				if !ok {
					return
				}
				if !notificationRelevant(c, reviewerID) || !drainChanges(changes) {
					continue
				}
				if !emit(f.snapshot(ctx, reviewerID, limit)) {
					return
				}
			}
		}
	}), nil
}

func (f *NotificationFanout) snapshot(ctx context.Context, reviewerID string, limit int) NotificationFeed {
	reviewer, err := f.store.GetReviewer(ctx, reviewerID)
	if err != nil {
		return NotificationFeed{Items: []models.Notification{}, Error: ReasonOf(fromStore("notifications_stream", err)), At: f.now().UTC()}
	}
	principal := reviewer.Principal()
	feed, err := f.Feed(ctx, &principal, limit)
	if err != nil {
		return NotificationFeed{Items: []models.Notification{}, Error: ReasonOf(err), At: f.now().UTC()}
	}
	return feed
}

func notificationRelevant(c store.Change, reviewerID string) bool {
	switch c.Kind {
	case store.ChangeNotificationCreated:
		return true
	case store.ChangeNotificationRead, store.ChangeReviewerUpdated:
		return c.ReviewerID == reviewerID
	}
	return false
}

// drainChanges discards changes already queued so a burst produces one refresh.
// It returns false if the feed was closed.
func drainChanges(changes <-chan store.Change) bool {
	for {
		select {
		case _, ok := <-changes:
			if !ok {
				return false
			}
		default:
			return true
		}
	}
}
