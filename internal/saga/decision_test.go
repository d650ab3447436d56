package saga

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/appdevgbb/event-driven-architecture/internal/message"
)

func TestDecide(t *testing.T) {
	tests := []struct {
		name      string
		account   message.AccountStatus
		inventory message.InventoryStatus
		want      Decision
	}{
		{
			name:    "invalid account rejects before inventory reply",
			account: message.InvalidAccountNumber,
			want:    Decision{Phase: PhaseRejected, Reason: message.RejectInvalidAccountNumber},
		},
		{
			name:      "invalid account releases a recorded reservation",
			account:   message.InvalidAccountNumber,
			inventory: message.InventorySuccess,
			want:      Decision{Phase: PhaseRejected, Reason: message.RejectInvalidAccountNumber, CompensateInventory: true},
		},
		{
			name:      "invalid account with failed reservation releases nothing",
			account:   message.InvalidAccountNumber,
			inventory: message.InsufficientInventory,
			want:      Decision{Phase: PhaseRejected, Reason: message.RejectInvalidAccountNumber},
		},
		{
			name:      "insufficient inventory compensates account",
			account:   message.AccountSuccess,
			inventory: message.InsufficientInventory,
			want:      Decision{Phase: PhaseRejected, Reason: message.RejectInsufficientStock, CompensateAccount: true},
		},
		{
			name:      "insufficient credit compensates inventory",
			account:   message.InsufficientCredit,
			inventory: message.InventorySuccess,
			want:      Decision{Phase: PhaseRejected, Reason: message.RejectInsufficientCredit, CompensateInventory: true},
		},
		{
			name:      "both failed needs no compensation",
			account:   message.InsufficientCredit,
			inventory: message.InsufficientInventory,
			want:      Decision{Phase: PhaseRejected, Reason: message.RejectInsufficientBoth},
		},
		{
			name:      "both succeeded completes",
			account:   message.AccountSuccess,
			inventory: message.InventorySuccess,
			want:      Decision{Phase: PhaseCompleted},
		},
		{
			name: "no replies yet waits",
			want: Decision{Phase: PhaseProcessing},
		},
		{
			name:      "inventory alone waits",
			inventory: message.InsufficientInventory,
			want:      Decision{Phase: PhaseProcessing},
		},
		{
			name:    "account success alone waits",
			account: message.AccountSuccess,
			want:    Decision{Phase: PhaseProcessing},
		},
		{
			name:    "insufficient credit alone waits for inventory",
			account: message.InsufficientCredit,
			want:    Decision{Phase: PhaseProcessing},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := State{
				Phase:           PhaseProcessing,
				AccountStatus:   tt.account,
				InventoryStatus: tt.inventory,
			}
			assert.Equal(t, tt.want, Decide(st))
		})
	}
}

func TestPhaseTerminal(t *testing.T) {
	assert.False(t, PhaseProcessing.Terminal())
	assert.True(t, PhaseCompleted.Terminal())
	assert.True(t, PhaseRejected.Terminal())
}
