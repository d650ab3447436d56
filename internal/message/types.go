// Package message defines the wire contracts shared by the saga
// orchestrator, the ledger participants and the surrounding pipeline.
// Every message travels as JSON with its kind carried out-of-band in the
// transport envelope, so the set of type tags below is closed: senders and
// receivers dispatch on these constants, never on payload shape.
package message

// Message type tags. The values are stable logical identifiers and must not
// change across implementations.
const (
	TypeOrderCreated             = "OrderCreatedEvent"
	TypeOrderCompleted           = "OrderCompletedEvent"
	TypeOrderRejected            = "OrderRejectedEvent"
	TypeInventoryAdjustmentCmd   = "InventoryAdjustmentCommand"
	TypeAccountAdjustmentCmd     = "AccountAdjustmentCommand"
	TypeInventoryAdjustmentReply = "InventoryAdjustmentReply"
	TypeAccountAdjustmentReply   = "AccountAdjustmentReply"
)

// InventoryStatus is the outcome of an inventory adjustment. The empty
// string means no reply has been received yet.
type InventoryStatus string

const (
	InventorySuccess      InventoryStatus = "SUCCESS"
	InsufficientInventory InventoryStatus = "INSUFFICIENT_INVENTORY"
)

// AccountStatus is the outcome of an account adjustment. The empty string
// means no reply has been received yet.
type AccountStatus string

const (
	AccountSuccess       AccountStatus = "SUCCESS"
	InvalidAccountNumber AccountStatus = "INVALID_ACCOUNT_NUMBER"
	InsufficientCredit   AccountStatus = "INSUFFICIENT_CREDIT"
)

// RejectReason explains why an order was rejected.
type RejectReason string

const (
	RejectInvalidAccountNumber RejectReason = "INVALID_ACCOUNT_NUMBER"
	RejectInsufficientCredit   RejectReason = "INSUFFICIENT_CREDIT"
	RejectInsufficientStock    RejectReason = "INSUFFICIENT_INVENTORY"
	RejectInsufficientBoth     RejectReason = "INSUFFICIENT_CREDIT_INSUFFICIENT_INVENTORY"
)
