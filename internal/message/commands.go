package message

import "github.com/govalues/decimal"

// InventoryAdjustmentCommand asks the inventory participant to apply a
// signed adjustment to the stock count. Negative amounts are guarded
// reservations, positive amounts are compensations or restocking.
type InventoryAdjustmentCommand struct {
	AdjustmentAmount int `json:"adjustmentAmount"`
}

// AccountAdjustmentCommand asks the account participant to apply a signed
// adjustment to one account balance. Negative amounts are guarded debits,
// positive amounts are compensations or payments.
type AccountAdjustmentCommand struct {
	AccountNumber    int             `json:"accountNumber"`
	AdjustmentAmount decimal.Decimal `json:"adjustmentAmount"`
}

// InventoryAdjustmentReply reports the outcome of an inventory adjustment.
type InventoryAdjustmentReply struct {
	AdjustmentAmount int             `json:"adjustmentAmount"`
	Status           InventoryStatus `json:"inventoryAdjustmentStatus"`
}

// AccountAdjustmentReply reports the outcome of an account adjustment.
type AccountAdjustmentReply struct {
	AdjustmentAmount decimal.Decimal `json:"adjustmentAmount"`
	Status           AccountStatus   `json:"accountAdjustmentStatus"`
}
