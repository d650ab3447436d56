package ledger

import (
	"sync"

	"github.com/appdevgbb/event-driven-architecture/internal/message"
)

// DefaultMaxInventory is the demo warehouse capacity.
const DefaultMaxInventory = 1000

// StockGuard decides whether a proposed inventory count may be committed.
// It runs under the stock lock; nil always commits.
type StockGuard func(next int) bool

// NonNegativeCount is the reservation guard: stock may not go below zero.
func NonNegativeCount(next int) bool {
	return next >= 0
}

// Stock is the inventory participant's state: a single item count.
type Stock struct {
	mu    sync.Mutex
	max   int
	count int
}

// NewStock starts a full warehouse of the given capacity.
func NewStock(max int) *Stock {
	return &Stock{max: max, count: max}
}

// Adjust applies amount to the count if the guard admits the result. A
// rejected guard reports INSUFFICIENT_INVENTORY and leaves the count
// untouched.
func (s *Stock) Adjust(amount int, guard StockGuard) message.InventoryStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.count + amount
	if guard != nil && !guard(next) {
		return message.InsufficientInventory
	}

	s.count = next
	return message.InventorySuccess
}

// Count returns the current inventory level.
func (s *Stock) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

// Max returns the warehouse capacity.
func (s *Stock) Max() int {
	return s.max
}
