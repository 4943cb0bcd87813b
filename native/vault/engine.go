package vault

import (
	"encoding/binary"
	"errors"
	"math/big"
	"sync"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"omnivault/core/events"
	"omnivault/core/types"
	"omnivault/crypto"
	nativecommon "omnivault/native/common"
)

var (
	errNilState              = errors.New("vault engine: state not configured")
	ErrInvalidAmount         = errors.New("vault engine: amount must be positive")
	ErrInvalidReceiver       = errors.New("vault engine: receiver must be a non-zero address")
	ErrInsufficientShares    = errors.New("vault engine: insufficient unlocked shares")
	ErrWithdrawPending       = errors.New("vault engine: account already has a pending withdrawal")
	ErrNoPendingWithdrawal   = errors.New("vault engine: no pending withdrawal for request")
	ErrInsufficientLiquidity = errors.New("vault engine: insufficient unreserved assets")
	ErrReentrantCall         = errors.New("vault engine: nested call rejected")
)

const moduleName = "vault"

var zeroRequestID [32]byte

type engineState interface {
	GetAccount(addr crypto.Address) (*Account, error)
	PutAccount(account *Account) error
	GetPool() (*PoolState, error)
	PutPool(pool *PoolState) error
	GetWithdrawal(id [32]byte) (*WithdrawalRequest, error)
	PutWithdrawal(req *WithdrawalRequest) error
	DeleteWithdrawal(id [32]byte) error
}

// Engine orchestrates the share-accounted vault state transitions. All share
// price arithmetic truncates toward zero so rounding always favours the pool.
type Engine struct {
	state   engineState
	emitter events.Emitter
	pauses  nativecommon.PauseView
	nowFn   func() int64

	batchThreshold *big.Int

	mu           sync.Mutex
	requestNonce uint64
	inProgress   map[string]struct{}
	evalHint     bool
}

// NewEngine creates a vault engine with a no-op emitter. Callers can override
// the emitter via SetEmitter.
func NewEngine() *Engine {
	return &Engine{
		emitter:    events.NoopEmitter{},
		nowFn:      func() int64 { return time.Now().Unix() },
		inProgress: make(map[string]struct{}),
	}
}

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetPauses wires the shared pause view consulted before every mutation.
func (e *Engine) SetPauses(p nativecommon.PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
}

// SetEmitter configures the event emitter used by the engine. Passing nil
// resets the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the time source used by the engine. Primarily intended
// for tests to provide deterministic timestamps.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetBatchThreshold configures the deposit size that marks an eager strategy
// evaluation hint. A nil threshold disables the hint.
func (e *Engine) SetBatchThreshold(threshold *big.Int) {
	if e == nil {
		return
	}
	if threshold == nil || threshold.Sign() <= 0 {
		e.batchThreshold = nil
		return
	}
	e.batchThreshold = new(big.Int).Set(threshold)
}

// TakeEvaluationHint reports and clears the eager-evaluation flag set by
// threshold-crossing deposits. The hint is an optimisation for the external
// trigger, not a correctness signal.
func (e *Engine) TakeEvaluationHint() bool {
	if e == nil {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	hint := e.evalHint
	e.evalHint = false
	return hint
}

func (e *Engine) begin(key string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, busy := e.inProgress[key]; busy {
		return ErrReentrantCall
	}
	e.inProgress[key] = struct{}{}
	return nil
}

func (e *Engine) end(key string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.inProgress, key)
}

// Deposit mints shares for receiver against the current share price. The
// first deposit into an empty pool mints shares one-to-one.
func (e *Engine) Deposit(receiver crypto.Address, amount *big.Int) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	if receiver.IsZero() {
		return nil, ErrInvalidReceiver
	}
	if err := e.begin("account/" + string(receiver.Bytes())); err != nil {
		return nil, err
	}
	defer e.end("account/" + string(receiver.Bytes()))

	pool, err := e.ensurePool()
	if err != nil {
		return nil, err
	}

	// Capital in flight to another domain still backs the outstanding
	// shares, so the share price is computed over the managed total. A pool
	// fully rebalanced away keeps TotalAssets at zero without making shares
	// free.
	basis := managedAssets(pool)
	minted := new(big.Int)
	if pool.TotalShares.Sign() == 0 {
		minted.Set(amount)
	} else {
		if basis.Sign() == 0 {
			return nil, ErrInsufficientLiquidity
		}
		minted.Mul(amount, pool.TotalShares)
		minted.Quo(minted, basis)
	}
	// A deposit too small to mint a single share would be a pure donation to
	// the pool; reject it instead.
	if minted.Sign() == 0 {
		return nil, ErrInvalidAmount
	}

	account, err := e.ensureAccount(receiver)
	if err != nil {
		return nil, err
	}
	account.Shares = new(big.Int).Add(account.Shares, minted)
	pool.TotalAssets = new(big.Int).Add(pool.TotalAssets, amount)
	pool.TotalShares = new(big.Int).Add(pool.TotalShares, minted)

	if err := e.state.PutAccount(account); err != nil {
		return nil, err
	}
	if err := e.state.PutPool(pool); err != nil {
		return nil, err
	}

	if e.batchThreshold != nil && amount.Cmp(e.batchThreshold) >= 0 {
		e.mu.Lock()
		e.evalHint = true
		e.mu.Unlock()
	}

	e.emit(NewDepositedEvent(receiver, amount, minted))
	return minted, nil
}

// RequestWithdraw locks shares and freezes their asset payout at the current
// share price. The returned request id must be presented to CompleteWithdraw
// by the same owner. There is no cancellation path.
func (e *Engine) RequestWithdraw(owner crypto.Address, shares *big.Int) ([32]byte, error) {
	if e == nil || e.state == nil {
		return zeroRequestID, errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return zeroRequestID, err
	}
	if shares == nil || shares.Sign() <= 0 {
		return zeroRequestID, ErrInvalidAmount
	}
	if err := e.begin("account/" + string(owner.Bytes())); err != nil {
		return zeroRequestID, err
	}
	defer e.end("account/" + string(owner.Bytes()))

	account, err := e.ensureAccount(owner)
	if err != nil {
		return zeroRequestID, err
	}
	if account.PendingRequest != zeroRequestID {
		return zeroRequestID, ErrWithdrawPending
	}
	if account.Shares.Cmp(shares) < 0 {
		return zeroRequestID, ErrInsufficientShares
	}

	pool, err := e.ensurePool()
	if err != nil {
		return zeroRequestID, err
	}

	// Freeze the payout at the request-time price over the managed total.
	// Truncation favours the pool.
	assets := new(big.Int).Mul(shares, managedAssets(pool))
	assets.Quo(assets, pool.TotalShares)

	// The frozen payout must be coverable by local unreserved assets; a
	// pool whose capital is in flight cannot honour the completion, so the
	// request is refused rather than locked against nothing.
	available := new(big.Int).Sub(pool.TotalAssets, pool.Reserved)
	if available.Cmp(assets) < 0 {
		return zeroRequestID, ErrInsufficientLiquidity
	}

	now := e.now()
	id := e.newRequestID(owner, shares, now)

	account.Shares = new(big.Int).Sub(account.Shares, shares)
	account.PendingShares = new(big.Int).Add(account.PendingShares, shares)
	account.PendingRequest = id
	pool.Reserved = new(big.Int).Add(pool.Reserved, assets)

	req := &WithdrawalRequest{
		ID:          id,
		Owner:       owner,
		Shares:      new(big.Int).Set(shares),
		Assets:      assets,
		RequestedAt: now,
	}
	if err := e.state.PutWithdrawal(req); err != nil {
		return zeroRequestID, err
	}
	if err := e.state.PutAccount(account); err != nil {
		return zeroRequestID, err
	}
	if err := e.state.PutPool(pool); err != nil {
		return zeroRequestID, err
	}

	e.emit(NewWithdrawRequestedEvent(owner, shares, id))
	return id, nil
}

// CompleteWithdraw consumes a withdrawal request one time, burning the locked
// shares and releasing the payout frozen at request time.
func (e *Engine) CompleteWithdraw(owner crypto.Address, requestID [32]byte) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if err := e.begin("account/" + string(owner.Bytes())); err != nil {
		return nil, err
	}
	defer e.end("account/" + string(owner.Bytes()))

	req, err := e.state.GetWithdrawal(requestID)
	if err != nil {
		return nil, err
	}
	if req == nil || !req.Owner.Equal(owner) {
		return nil, ErrNoPendingWithdrawal
	}

	account, err := e.ensureAccount(owner)
	if err != nil {
		return nil, err
	}
	pool, err := e.ensurePool()
	if err != nil {
		return nil, err
	}

	account.PendingShares = new(big.Int).Sub(account.PendingShares, req.Shares)
	if account.PendingShares.Sign() < 0 {
		account.PendingShares = big.NewInt(0)
	}
	account.PendingRequest = zeroRequestID

	pool.TotalShares = new(big.Int).Sub(pool.TotalShares, req.Shares)
	pool.TotalAssets = new(big.Int).Sub(pool.TotalAssets, req.Assets)
	pool.Reserved = new(big.Int).Sub(pool.Reserved, req.Assets)
	if pool.Reserved.Sign() < 0 {
		pool.Reserved = big.NewInt(0)
	}

	if err := e.state.DeleteWithdrawal(requestID); err != nil {
		return nil, err
	}
	if err := e.state.PutAccount(account); err != nil {
		return nil, err
	}
	if err := e.state.PutPool(pool); err != nil {
		return nil, err
	}

	assets := new(big.Int).Set(req.Assets)
	e.emit(NewWithdrawnEvent(owner, requestID, assets))
	return assets, nil
}

// ApplyRebalanceInbound executes a verified cross-domain rebalance
// instruction list against the local pool. It is invoked only by the router
// after message verification; nested entry while an application is
// outstanding is rejected.
func (e *Engine) ApplyRebalanceInbound(instructions []types.RebalanceInstruction) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if err := types.ValidateInstructions(instructions); err != nil {
		return err
	}
	if err := e.begin("rebalance-inbound"); err != nil {
		return err
	}
	defer e.end("rebalance-inbound")

	pool, err := e.ensurePool()
	if err != nil {
		return err
	}

	// All local mutation completes against the loaded copy before anything
	// is persisted or any downstream call happens.
	for _, in := range instructions {
		switch in.Action {
		case types.RebalanceActionDeposit, types.RebalanceActionMigrate:
			pool.TotalAssets = new(big.Int).Add(pool.TotalAssets, in.Amount)
			pool.CurrentDestination = in.Destination
		case types.RebalanceActionWithdraw:
			available := new(big.Int).Sub(pool.TotalAssets, pool.Reserved)
			if available.Cmp(in.Amount) < 0 {
				return ErrInsufficientLiquidity
			}
			pool.TotalAssets = new(big.Int).Sub(pool.TotalAssets, in.Amount)
		}
	}
	pool.LastRebalanceTime = e.now()

	if err := e.state.PutPool(pool); err != nil {
		return err
	}

	for _, in := range instructions {
		e.emit(NewRebalanceExecutedEvent(in.Destination, in.Amount, "inbound"))
	}
	return nil
}

// ApplyRebalanceOutbound moves capital out of the local representation ahead
// of a cross-domain send. The amount leaves TotalAssets and is tracked as
// in flight; there is no timeout-driven reversal for it.
func (e *Engine) ApplyRebalanceOutbound(destination string, amount *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if err := e.begin("rebalance-outbound"); err != nil {
		return err
	}
	defer e.end("rebalance-outbound")

	pool, err := e.ensurePool()
	if err != nil {
		return err
	}
	available := new(big.Int).Sub(pool.TotalAssets, pool.Reserved)
	if available.Cmp(amount) < 0 {
		return ErrInsufficientLiquidity
	}

	pool.TotalAssets = new(big.Int).Sub(pool.TotalAssets, amount)
	pool.InFlight = new(big.Int).Add(pool.InFlight, amount)
	pool.CurrentDestination = destination
	pool.LastRebalanceTime = e.now()

	if err := e.state.PutPool(pool); err != nil {
		return err
	}

	e.emit(NewRebalanceExecutedEvent(destination, amount, "outbound"))
	return nil
}

// PoolSnapshot returns a copy of the pool totals. Callers never receive a
// live reference into ledger state.
func (e *Engine) PoolSnapshot() (PoolSnapshot, error) {
	if e == nil || e.state == nil {
		return PoolSnapshot{}, errNilState
	}
	pool, err := e.ensurePool()
	if err != nil {
		return PoolSnapshot{}, err
	}
	return PoolSnapshot{
		TotalAssets:        cloneBigInt(pool.TotalAssets),
		TotalShares:        cloneBigInt(pool.TotalShares),
		Reserved:           cloneBigInt(pool.Reserved),
		InFlight:           cloneBigInt(pool.InFlight),
		CurrentDestination: pool.CurrentDestination,
		LastRebalanceTime:  pool.LastRebalanceTime,
	}, nil
}

// AccountSnapshot returns a copy of a depositor position.
func (e *Engine) AccountSnapshot(owner crypto.Address) (AccountSnapshot, error) {
	if e == nil || e.state == nil {
		return AccountSnapshot{}, errNilState
	}
	account, err := e.ensureAccount(owner)
	if err != nil {
		return AccountSnapshot{}, err
	}
	return AccountSnapshot{
		Owner:          owner,
		Shares:         cloneBigInt(account.Shares),
		PendingShares:  cloneBigInt(account.PendingShares),
		PendingRequest: account.PendingRequest,
	}, nil
}

func (e *Engine) ensurePool() (*PoolState, error) {
	pool, err := e.state.GetPool()
	if err != nil {
		return nil, err
	}
	if pool == nil {
		pool = &PoolState{}
	}
	if pool.TotalAssets == nil {
		pool.TotalAssets = big.NewInt(0)
	}
	if pool.TotalShares == nil {
		pool.TotalShares = big.NewInt(0)
	}
	if pool.Reserved == nil {
		pool.Reserved = big.NewInt(0)
	}
	if pool.InFlight == nil {
		pool.InFlight = big.NewInt(0)
	}
	return pool, nil
}

// managedAssets is the share-price basis: local assets plus capital in
// flight to another domain.
func managedAssets(pool *PoolState) *big.Int {
	return new(big.Int).Add(pool.TotalAssets, pool.InFlight)
}

func (e *Engine) ensureAccount(addr crypto.Address) (*Account, error) {
	account, err := e.state.GetAccount(addr)
	if err != nil {
		return nil, err
	}
	if account == nil {
		account = &Account{Owner: addr}
	}
	if account.Shares == nil {
		account.Shares = big.NewInt(0)
	}
	if account.PendingShares == nil {
		account.PendingShares = big.NewInt(0)
	}
	return account, nil
}

func (e *Engine) newRequestID(owner crypto.Address, shares *big.Int, now int64) [32]byte {
	e.mu.Lock()
	e.requestNonce++
	nonce := e.requestNonce
	e.mu.Unlock()

	var ts, n [8]byte
	binary.BigEndian.PutUint64(ts[:], uint64(now))
	binary.BigEndian.PutUint64(n[:], nonce)

	var id [32]byte
	copy(id[:], ethcrypto.Keccak256(owner.Bytes(), shares.Bytes(), ts[:], n[:]))
	return id
}

func (e *Engine) emit(event *types.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(vaultEvent{evt: event})
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}
