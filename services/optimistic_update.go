package services

import (
	"sync"

	"refund-review-api/models"
)

// OptimisticController stages tentative patches for a reviewer session ahead of the
// authoritative write. Each id holds at most one entry; layered stages merge into it and
// one revert removes it entirely.
type OptimisticController struct {
	mu       sync.Mutex
	entries  map[string]*stagedPatch
	nextGen  uint64
	watchers map[chan struct{}]struct{}
}

type stagedPatch struct {
	patch models.TransactionPatch
	gen   uint64 // generation of the first stage in this layer group
}

func NewOptimisticController() *OptimisticController {
	return &OptimisticController{
		entries:  make(map[string]*stagedPatch),
		watchers: make(map[chan struct{}]struct{}),
	}
}

// Stage layers patch over whatever is staged for id and returns its revert.
// Revert restores the state from before the first outstanding stage of id, is
// idempotent, and does nothing once the entry was confirmed or replaced.
func (c *OptimisticController) Stage(id string, patch models.TransactionPatch) func() {
	c.mu.Lock()
	entry, ok := c.entries[id]
	if !ok {
		c.nextGen++
		entry = &stagedPatch{gen: c.nextGen}
		c.entries[id] = entry
	}
	entry.patch = entry.patch.Merge(patch)
	gen := entry.gen
	c.mu.Unlock()
	c.notify()

	var once sync.Once
	return func() {
		once.Do(func() {
			if c.drop(id, gen) {
				c.notify()
			}
		})
	}
}

// Confirm discards the staged entry after the authoritative write succeeded.
func (c *OptimisticController) Confirm(id string) {
	c.mu.Lock()
	_, ok := c.entries[id]
	delete(c.entries, id)
	c.mu.Unlock()
	if ok {
		c.notify()
	}
}

func (c *OptimisticController) drop(id string, gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[id]
	if !ok || entry.gen != gen {
		return false
	}
	delete(c.entries, id)
	return true
}

// Staged returns the merged outstanding patch for id.
func (c *OptimisticController) Staged(id string) (models.TransactionPatch, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[id]
	if !ok {
		return models.TransactionPatch{}, false
	}
	return entry.patch, true
}

// Pending returns the number of ids with a staged patch.
func (c *OptimisticController) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Overlay returns tx as the session should see it.
func (c *OptimisticController) Overlay(tx models.Transaction) models.Transaction {
	if patch, ok := c.Staged(tx.ID); ok {
		return patch.Apply(tx)
	}
	return tx
}

// Watch returns a channel pulsed whenever staged state changes.
func (c *OptimisticController) Watch() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	c.mu.Lock()
	c.watchers[ch] = struct{}{}
	c.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.watchers, ch)
			c.mu.Unlock()
		})
	}
}

func (c *OptimisticController) notify() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for ch := range c.watchers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
