package vault

import (
	"math/big"

	"omnivault/crypto"
)

// Account maintains the share position for an individual depositor. Amounts
// are expressed as big integers to match on-chain precision. Accounts are
// never deleted; an empty account is simply zero-valued.
type Account struct {
	// Owner is the unique depositor identity within the vault.
	Owner crypto.Address
	// Shares is the freely transferable share balance.
	Shares *big.Int
	// PendingShares is the share amount locked behind an open withdrawal
	// request. Locked shares are excluded from the free balance.
	PendingShares *big.Int
	// PendingRequest identifies the open withdrawal request, zero when the
	// account has no withdrawal in flight. One slot per account.
	PendingRequest [32]byte
}

// PoolState captures the global accounting for the pooled vault.
type PoolState struct {
	// TotalAssets is the pooled asset balance currently held on this domain.
	TotalAssets *big.Int
	// TotalShares is the aggregate of all account shares, free and pending.
	TotalShares *big.Int
	// Reserved is the asset amount frozen for open withdrawal requests. It
	// remains part of TotalAssets but is unavailable to rebalancing.
	Reserved *big.Int
	// InFlight tracks capital sent to another domain whose application has
	// not been observed locally. There is no reversal path for it.
	InFlight *big.Int
	// CurrentDestination is the protocol identifier the deployed capital
	// currently occupies, empty when idle.
	CurrentDestination string
	// LastRebalanceTime records when capital last moved, in unix seconds.
	LastRebalanceTime int64
}

// WithdrawalRequest is the cross-call record created by RequestWithdraw and
// consumed exactly once by CompleteWithdraw. The payout is frozen at request
// time so intervening deposits cannot change it.
type WithdrawalRequest struct {
	ID     [32]byte
	Owner  crypto.Address
	Shares *big.Int
	// Assets is the payout computed at request-time share price. It is never
	// recomputed.
	Assets      *big.Int
	RequestedAt int64
}

// PoolSnapshot is a read-only copy of the pool totals handed to queries.
type PoolSnapshot struct {
	TotalAssets        *big.Int
	TotalShares        *big.Int
	Reserved           *big.Int
	InFlight           *big.Int
	CurrentDestination string
	LastRebalanceTime  int64
}

// AccountSnapshot is a read-only copy of a depositor position.
type AccountSnapshot struct {
	Owner          crypto.Address
	Shares         *big.Int
	PendingShares  *big.Int
	PendingRequest [32]byte
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
