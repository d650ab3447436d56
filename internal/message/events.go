package message

import "github.com/google/uuid"

// OrderCreatedEvent enters the orchestration queue once per order. The
// order id doubles as the session key, so everything about one order is
// handled by a single consumer in arrival order.
type OrderCreatedEvent struct {
	OrderID       uuid.UUID `json:"orderId"`
	AccountNumber int       `json:"accountNumber"`
	Quantity      int       `json:"quantity"`
}

// OrderCompletedEvent is published to the orders topic when both the
// inventory reservation and the account debit succeeded.
type OrderCompletedEvent struct {
	OrderID       uuid.UUID `json:"orderId"`
	AccountNumber int       `json:"accountNumber"`
	Quantity      int       `json:"quantity"`
}

// OrderRejectedEvent is published to the orders topic when the saga ends in
// rejection.
type OrderRejectedEvent struct {
	OrderID       uuid.UUID    `json:"orderId"`
	AccountNumber int          `json:"accountNumber"`
	Quantity      int          `json:"quantity"`
	Reason        RejectReason `json:"orderRejectedReason"`
}

// CompletedFrom derives the completion event from the originating order.
func CompletedFrom(ev OrderCreatedEvent) OrderCompletedEvent {
	return OrderCompletedEvent{
		OrderID:       ev.OrderID,
		AccountNumber: ev.AccountNumber,
		Quantity:      ev.Quantity,
	}
}

// RejectedFrom derives the rejection event from the originating order.
func RejectedFrom(ev OrderCreatedEvent, reason RejectReason) OrderRejectedEvent {
	return OrderRejectedEvent{
		OrderID:       ev.OrderID,
		AccountNumber: ev.AccountNumber,
		Quantity:      ev.Quantity,
		Reason:        reason,
	}
}
