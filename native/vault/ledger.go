package vault

import (
	"errors"
	"math/big"

	"omnivault/crypto"
)

// Storage abstracts the subset of state manager functionality required by the
// vault ledger.
type Storage interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVDelete(key []byte) error
}

var (
	accountKeyPrefix    = []byte("vault/account/")
	poolKey             = []byte("vault/pool")
	withdrawalKeyPrefix = []byte("vault/withdrawal/")
)

var errNilStorage = errors.New("vault ledger: storage not configured")

// Ledger is the persistent balance book owned by the vault engine. All
// mutation funnels through the engine operations; other components only ever
// see snapshots.
type Ledger struct {
	store Storage
}

// NewLedger binds the ledger to a keyed storage backend.
func NewLedger(store Storage) *Ledger {
	return &Ledger{store: store}
}

type accountRecord struct {
	Shares         *big.Int
	PendingShares  *big.Int
	PendingRequest [32]byte
}

type poolRecord struct {
	TotalAssets        *big.Int
	TotalShares        *big.Int
	Reserved           *big.Int
	InFlight           *big.Int
	CurrentDestination string
	LastRebalanceTime  uint64
}

type withdrawalRecord struct {
	Owner       [20]byte
	Shares      *big.Int
	Assets      *big.Int
	RequestedAt uint64
}

func accountKey(addr crypto.Address) []byte {
	return append(append([]byte(nil), accountKeyPrefix...), addr.Bytes()...)
}

func withdrawalKey(id [32]byte) []byte {
	return append(append([]byte(nil), withdrawalKeyPrefix...), id[:]...)
}

// GetAccount loads a depositor record, returning nil when the account has
// never been touched.
func (l *Ledger) GetAccount(addr crypto.Address) (*Account, error) {
	if l == nil || l.store == nil {
		return nil, errNilStorage
	}
	var rec accountRecord
	found, err := l.store.KVGet(accountKey(addr), &rec)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return &Account{
		Owner:          addr,
		Shares:         cloneBigInt(rec.Shares),
		PendingShares:  cloneBigInt(rec.PendingShares),
		PendingRequest: rec.PendingRequest,
	}, nil
}

// PutAccount persists a depositor record.
func (l *Ledger) PutAccount(account *Account) error {
	if l == nil || l.store == nil {
		return errNilStorage
	}
	if account == nil {
		return errors.New("vault ledger: nil account")
	}
	rec := accountRecord{
		Shares:         cloneBigInt(account.Shares),
		PendingShares:  cloneBigInt(account.PendingShares),
		PendingRequest: account.PendingRequest,
	}
	return l.store.KVPut(accountKey(account.Owner), &rec)
}

// GetPool loads the pool totals, returning nil before the first write.
func (l *Ledger) GetPool() (*PoolState, error) {
	if l == nil || l.store == nil {
		return nil, errNilStorage
	}
	var rec poolRecord
	found, err := l.store.KVGet(poolKey, &rec)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return &PoolState{
		TotalAssets:        cloneBigInt(rec.TotalAssets),
		TotalShares:        cloneBigInt(rec.TotalShares),
		Reserved:           cloneBigInt(rec.Reserved),
		InFlight:           cloneBigInt(rec.InFlight),
		CurrentDestination: rec.CurrentDestination,
		LastRebalanceTime:  int64(rec.LastRebalanceTime),
	}, nil
}

// PutPool persists the pool totals.
func (l *Ledger) PutPool(pool *PoolState) error {
	if l == nil || l.store == nil {
		return errNilStorage
	}
	if pool == nil {
		return errors.New("vault ledger: nil pool state")
	}
	rec := poolRecord{
		TotalAssets:        cloneBigInt(pool.TotalAssets),
		TotalShares:        cloneBigInt(pool.TotalShares),
		Reserved:           cloneBigInt(pool.Reserved),
		InFlight:           cloneBigInt(pool.InFlight),
		CurrentDestination: pool.CurrentDestination,
		LastRebalanceTime:  uint64(pool.LastRebalanceTime),
	}
	return l.store.KVPut(poolKey, &rec)
}

// GetWithdrawal loads an open withdrawal request, returning nil when the id
// is unknown or already consumed.
func (l *Ledger) GetWithdrawal(id [32]byte) (*WithdrawalRequest, error) {
	if l == nil || l.store == nil {
		return nil, errNilStorage
	}
	var rec withdrawalRecord
	found, err := l.store.KVGet(withdrawalKey(id), &rec)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return &WithdrawalRequest{
		ID:          id,
		Owner:       crypto.NewAddress(crypto.VaultPrefix, append([]byte(nil), rec.Owner[:]...)),
		Shares:      cloneBigInt(rec.Shares),
		Assets:      cloneBigInt(rec.Assets),
		RequestedAt: int64(rec.RequestedAt),
	}, nil
}

// PutWithdrawal persists an open withdrawal request.
func (l *Ledger) PutWithdrawal(req *WithdrawalRequest) error {
	if l == nil || l.store == nil {
		return errNilStorage
	}
	if req == nil {
		return errors.New("vault ledger: nil withdrawal request")
	}
	rec := withdrawalRecord{
		Shares:      cloneBigInt(req.Shares),
		Assets:      cloneBigInt(req.Assets),
		RequestedAt: uint64(req.RequestedAt),
	}
	copy(rec.Owner[:], req.Owner.Bytes())
	return l.store.KVPut(withdrawalKey(req.ID), &rec)
}

// DeleteWithdrawal consumes a withdrawal request record.
func (l *Ledger) DeleteWithdrawal(id [32]byte) error {
	if l == nil || l.store == nil {
		return errNilStorage
	}
	return l.store.KVDelete(withdrawalKey(id))
}
