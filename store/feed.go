package store

import (
	"context"
	"log"
	"sync"
	"time"
)

type ChangeKind string

const (
	ChangeTransactionCreated  ChangeKind = "transaction.created"
	ChangeTransactionUpdated  ChangeKind = "transaction.updated"
	ChangeNotificationCreated ChangeKind = "notification.created"
	ChangeNotificationRead    ChangeKind = "notification.read"
	ChangeReviewerUpdated     ChangeKind = "reviewer.updated"
)

// Change is one event on the store's change feed.
type Change struct {
	Kind        ChangeKind `json:"kind"`
	ID          string     `json:"id"`
	ReviewerID  string     `json:"reviewerId,omitempty"`
	WarehouseID string     `json:"warehouseId,omitempty"`
	RegionID    string     `json:"regionId,omitempty"`
	At          time.Time  `json:"at"`
}

// Feed carries store changes to live subscribers.
type Feed interface {
	Publish(ctx context.Context, c Change) error
	// Subscribe returns a buffered channel of changes and an idempotent cancel.
	Subscribe(buffer int) (<-chan Change, func())
	Close() error
}

// LocalFeed fans changes out to in-process subscribers.
// Slow subscribers lose events instead of blocking publishers; consumers re-query
// the store on each event, so a dropped event only delays a refresh.
type LocalFeed struct {
	mu     sync.RWMutex
	subs   map[chan Change]struct{}
	closed bool
}

func NewLocalFeed() *LocalFeed {
	return &LocalFeed{subs: make(map[chan Change]struct{})}
}

func (f *LocalFeed) Publish(_ context.Context, c Change) error {
	f.deliver(c)
	return nil
}

func (f *LocalFeed) deliver(c Change) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.closed {
		return
	}
	for ch := range f.subs {
		select {
		case ch <- c:
		default:
			log.Printf("[feed] subscriber buffer full, dropped %s %s", c.Kind, c.ID)
		}
	}
}

func (f *LocalFeed) Subscribe(buffer int) (<-chan Change, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Change, buffer)

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	f.subs[ch] = struct{}{}
	f.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			f.mu.Lock()
			defer f.mu.Unlock()
			if _, ok := f.subs[ch]; ok {
				delete(f.subs, ch)
				close(ch)
			}
		})
	}
	return ch, cancel
}

// Subscribers returns the number of live subscriptions.
func (f *LocalFeed) Subscribers() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subs)
}

func (f *LocalFeed) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil
	}
	f.closed = true
	for ch := range f.subs {
		delete(f.subs, ch)
		close(ch)
	}
	return nil
}

func publish(ctx context.Context, feed Feed, c Change) {
	if feed == nil {
		return
	}
	if c.At.IsZero() {
		c.At = time.Now().UTC()
	}
	if err := feed.Publish(ctx, c); err != nil {
		log.Printf("[feed] publish %s %s failed: %v", c.Kind, c.ID, err)
	}
}
