package saga

import "github.com/appdevgbb/event-driven-architecture/internal/message"

// Decision is the action required after a reply has been recorded: the
// phase to move to, the rejection reason if any, and which participants
// must be compensated before the outcome is published.
type Decision struct {
	Phase               Phase
	Reason              message.RejectReason
	CompensateAccount   bool
	CompensateInventory bool
}

// Decide evaluates the outcome table against the accumulated replies. It
// returns a PROCESSING decision (no action) until enough information has
// arrived, so callers re-evaluate after every reply. Only meaningful while
// the saga is still in PROCESSING.
//
// An invalid account number rejects immediately, before the inventory
// reply is awaited: the account was never debited. A reservation already
// recorded must still be released; one whose reply has not arrived yet is
// handled when it eventually does.
func Decide(st State) Decision {
	if st.AccountStatus == message.InvalidAccountNumber {
		return Decision{
			Phase:               PhaseRejected,
			Reason:              message.RejectInvalidAccountNumber,
			CompensateInventory: st.InventoryStatus == message.InventorySuccess,
		}
	}

	if st.AccountStatus == "" || st.InventoryStatus == "" {
		return Decision{Phase: PhaseProcessing}
	}

	accountOK := st.AccountStatus == message.AccountSuccess
	inventoryOK := st.InventoryStatus == message.InventorySuccess

	switch {
	case accountOK && !inventoryOK:
		return Decision{Phase: PhaseRejected, Reason: message.RejectInsufficientStock, CompensateAccount: true}
	case !accountOK && inventoryOK:
		return Decision{Phase: PhaseRejected, Reason: message.RejectInsufficientCredit, CompensateInventory: true}
	case !accountOK && !inventoryOK:
		return Decision{Phase: PhaseRejected, Reason: message.RejectInsufficientBoth}
	default:
		return Decision{Phase: PhaseCompleted}
	}
}
