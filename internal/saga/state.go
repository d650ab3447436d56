// Package saga drives the order transaction: reserve inventory, debit the
// account, and compensate whichever step succeeded if the other fails.
// All per-order state lives in the session scratch slot; the orchestrator
// itself is stateless between messages.
package saga

import (
	"github.com/govalues/decimal"

	"github.com/appdevgbb/event-driven-architecture/internal/message"
)

// UnitPrice is the fixed price charged per item. A real system would look
// this up per product.
var UnitPrice = decimal.MustNew(5000, 2) // 50.00

// Phase is the saga lifecycle position. PROCESSING moves to exactly one of
// the terminal phases and never back.
type Phase string

const (
	PhaseProcessing Phase = "PROCESSING"
	PhaseCompleted  Phase = "COMPLETED"
	PhaseRejected   Phase = "REJECTED"
)

// Terminal reports whether the phase permits no further mutation.
func (p Phase) Terminal() bool {
	return p == PhaseCompleted || p == PhaseRejected
}

// State is the per-order saga record persisted in the session scratch
// slot. Empty status fields mean the corresponding reply is outstanding.
type State struct {
	Order                     message.OrderCreatedEvent `json:"order"`
	Phase                     Phase                     `json:"phase"`
	InventoryAdjustmentAmount int                       `json:"inventoryAdjustmentAmount"`
	InventoryStatus           message.InventoryStatus   `json:"inventoryStatus,omitempty"`
	AccountAdjustmentAmount   decimal.Decimal           `json:"accountAdjustmentAmount"`
	AccountStatus             message.AccountStatus     `json:"accountStatus,omitempty"`
	RejectedReason            message.RejectReason      `json:"rejectedReason,omitempty"`
}

func newState(ev message.OrderCreatedEvent, inventoryAmount int, accountAmount decimal.Decimal) State {
	return State{
		Order:                     ev,
		Phase:                     PhaseProcessing,
		InventoryAdjustmentAmount: inventoryAmount,
		AccountAdjustmentAmount:   accountAmount,
	}
}
