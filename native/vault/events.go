package vault

import (
	"encoding/hex"
	"math/big"
	"strconv"

	"omnivault/core/types"
	"omnivault/crypto"
)

const (
	EventTypeDeposited         = "vault.deposited"
	EventTypeWithdrawRequested = "vault.withdraw_requested"
	EventTypeWithdrawn         = "vault.withdrawn"
	EventTypeRebalanceExecuted = "vault.rebalance_executed"
)

type vaultEvent struct {
	evt *types.Event
}

func (e vaultEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e vaultEvent) Event() *types.Event { return e.evt }

// NewDepositedEvent returns the canonical event payload for a completed
// deposit.
func NewDepositedEvent(account crypto.Address, amount, shares *big.Int) *types.Event {
	return &types.Event{Type: EventTypeDeposited, Attributes: map[string]string{
		"account": account.String(),
		"amount":  bigString(amount),
		"shares":  bigString(shares),
	}}
}

// NewWithdrawRequestedEvent returns the event payload emitted when shares are
// locked behind a withdrawal request.
func NewWithdrawRequestedEvent(account crypto.Address, shares *big.Int, requestID [32]byte) *types.Event {
	return &types.Event{Type: EventTypeWithdrawRequested, Attributes: map[string]string{
		"account":   account.String(),
		"shares":    bigString(shares),
		"requestId": hex.EncodeToString(requestID[:]),
	}}
}

// NewWithdrawnEvent returns the event payload for a completed withdrawal.
func NewWithdrawnEvent(account crypto.Address, requestID [32]byte, assets *big.Int) *types.Event {
	return &types.Event{Type: EventTypeWithdrawn, Attributes: map[string]string{
		"account":   account.String(),
		"requestId": hex.EncodeToString(requestID[:]),
		"assets":    bigString(assets),
	}}
}

// NewRebalanceExecutedEvent returns the event payload for capital moved in or
// out of the local pool representation.
func NewRebalanceExecutedEvent(destination string, amount *big.Int, direction string) *types.Event {
	return &types.Event{Type: EventTypeRebalanceExecuted, Attributes: map[string]string{
		"destination": destination,
		"amount":      bigString(amount),
		"direction":   direction,
	}}
}

func bigString(v *big.Int) string {
	if v == nil {
		return strconv.Itoa(0)
	}
	return v.String()
}
