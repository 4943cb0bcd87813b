package core

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"omnivault/config"
	"omnivault/core/events"
	"omnivault/core/types"
	"omnivault/crypto"
	"omnivault/native/bridge"
	nativecommon "omnivault/native/common"
	"omnivault/native/strategy"
	"omnivault/native/vault"
	"omnivault/observability"
	"omnivault/state"
	"omnivault/storage"
)

// Node owns one execution domain: the vault ledger, the strategy engine and
// the cross-domain router, bound to a single storage backend. All state
// mutation on a domain runs through the node as a strict serial sequence.
type Node struct {
	cfg      *config.Config
	logger   *slog.Logger
	vault    *vault.Engine
	strategy *strategy.Engine
	router   *bridge.Router
	adapters *strategy.AdapterRegistry
	pauses   *nativecommon.PauseRegistry

	batchThreshold *big.Int
	riskTolerance  uint8
}

// NewNode wires the engines over the shared storage backend.
func NewNode(db storage.Database, cfg *config.Config, logger *slog.Logger) (*Node, error) {
	if logger == nil {
		logger = slog.Default()
	}
	manager := state.NewManager(db)
	pauses := nativecommon.NewPauseRegistry()
	emitter := &logEmitter{logger: logger}

	vaultEngine := vault.NewEngine()
	vaultEngine.SetState(vault.NewLedger(manager))
	vaultEngine.SetPauses(pauses)
	vaultEngine.SetEmitter(emitter)

	threshold, err := cfg.Vault.BatchThreshold()
	if err != nil {
		return nil, err
	}
	vaultEngine.SetBatchThreshold(threshold)

	params, err := cfg.Strategy.Parameters()
	if err != nil {
		return nil, err
	}
	strategyEngine := strategy.NewEngine(params)
	strategyEngine.SetEmitter(emitter)

	fees, err := cfg.Bridge.Parameters()
	if err != nil {
		return nil, err
	}
	var localAddr [20]byte
	if cfg.RouterAddress != "" {
		decoded, err := crypto.DecodeAddress(cfg.RouterAddress)
		if err != nil {
			return nil, fmt.Errorf("core: RouterAddress: %w", err)
		}
		copy(localAddr[:], decoded.Bytes())
	}
	router := bridge.NewRouter(cfg.LocalDomain, localAddr, fees)
	router.SetState(bridge.NewStore(manager))
	router.SetPauses(pauses)
	router.SetEmitter(emitter)

	adapters := strategy.NewAdapterRegistry()
	router.SetApplier(&inboundApplier{
		vault:    vaultEngine,
		adapters: adapters,
		logger:   logger,
	})
	strategyEngine.SetCostEstimator(&relayCostEstimator{router: router})

	node := &Node{
		cfg:            cfg,
		logger:         logger,
		vault:          vaultEngine,
		strategy:       strategyEngine,
		router:         router,
		adapters:       adapters,
		pauses:         pauses,
		batchThreshold: threshold,
		riskTolerance:  cfg.Vault.RiskTolerance,
	}

	for _, entry := range cfg.Domains {
		domainCfg, err := entry.DomainConfig()
		if err != nil {
			return nil, err
		}
		if err := router.ConfigureDomain(domainCfg); err != nil {
			return nil, err
		}
	}
	return node, nil
}

// SetTransport wires the outbound delivery channel for the router.
func (n *Node) SetTransport(t bridge.Transport) { n.router.SetTransport(t) }

// Vault exposes the vault engine for read paths.
func (n *Node) Vault() *vault.Engine { return n.vault }

// Strategy exposes the strategy engine.
func (n *Node) Strategy() *strategy.Engine { return n.strategy }

// Router exposes the cross-domain router.
func (n *Node) Router() *bridge.Router { return n.router }

// Adapters exposes the protocol adapter registry.
func (n *Node) Adapters() *strategy.AdapterRegistry { return n.adapters }

// Deposit mints shares for receiver.
func (n *Node) Deposit(receiver crypto.Address, amount *big.Int) (*big.Int, error) {
	started := time.Now()
	shares, err := n.vault.Deposit(receiver, amount)
	observability.VaultMetrics().Observe("deposit", err, started)
	return shares, err
}

// RequestWithdraw locks shares behind a withdrawal request.
func (n *Node) RequestWithdraw(owner crypto.Address, shares *big.Int) ([32]byte, error) {
	started := time.Now()
	id, err := n.vault.RequestWithdraw(owner, shares)
	observability.VaultMetrics().Observe("request_withdraw", err, started)
	return id, err
}

// CompleteWithdraw consumes a withdrawal request.
func (n *Node) CompleteWithdraw(owner crypto.Address, requestID [32]byte) (*big.Int, error) {
	started := time.Now()
	assets, err := n.vault.CompleteWithdraw(owner, requestID)
	observability.VaultMetrics().Observe("complete_withdraw", err, started)
	return assets, err
}

// CheckResult reports the outcome of one rebalance check.
type CheckResult struct {
	Rebalanced bool
	Reason     string
	Plan       strategy.AllocationPlan
	MessageID  [32]byte
}

// CheckRebalance is the entry point for the external automation trigger. It
// asks the strategy engine whether moving the unreserved pool is worth the
// relay cost and, if so, sends the rebalance instruction to the destination
// domain. An unprofitable check is a normal false result; the trigger is
// expected to call again later.
func (n *Node) CheckRebalance(ctx context.Context) (CheckResult, error) {
	if n.vault.TakeEvaluationHint() {
		n.logger.Info("rebalance check follows batch deposit hint")
	}

	pool, err := n.vault.PoolSnapshot()
	if err != nil {
		return CheckResult{}, err
	}
	available := new(big.Int).Sub(pool.TotalAssets, pool.Reserved)
	if available.Sign() <= 0 {
		observability.StrategyMetrics().RecordEvaluation("no_capital")
		return CheckResult{Reason: "no unreserved capital"}, nil
	}

	ok, plan, err := n.strategy.ShouldRebalance(pool.CurrentDestination, available, n.riskTolerance)
	if err != nil {
		observability.StrategyMetrics().RecordEvaluation("error")
		return CheckResult{}, err
	}
	if !ok {
		observability.StrategyMetrics().RecordEvaluation("hold")
		return CheckResult{Reason: "not profitable after relay cost", Plan: plan}, nil
	}

	instructions := []types.RebalanceInstruction{{
		Action:      types.RebalanceActionMigrate,
		Destination: plan.Destination,
		Amount:      plan.Amount,
	}}
	payload, err := bridge.EncodeInstructions(instructions)
	if err != nil {
		return CheckResult{}, err
	}

	// Pre-flight the send before releasing capital: a destination the
	// router would reject synchronously must leave the pool untouched.
	if err := n.router.Sendable(plan.Domain); err != nil {
		return CheckResult{Plan: plan}, err
	}

	if err := n.vault.ApplyRebalanceOutbound(plan.Destination, plan.Amount); err != nil {
		return CheckResult{}, err
	}

	id, err := n.router.Send(ctx, plan.Domain, payload)
	observability.BridgeMetrics().RecordSent(err)
	if err != nil {
		// A transport refusal after the hand-off leaves the capital in
		// flight; the message may still be delivered, so there is no
		// reversal path once the local representation has released it.
		return CheckResult{Plan: plan}, err
	}

	observability.StrategyMetrics().RecordEvaluation("rebalance")
	n.logger.Info("rebalance dispatched",
		slog.String("destination", plan.Destination),
		slog.Uint64("domain", plan.Domain),
		slog.String("amount", plan.Amount.String()))
	return CheckResult{Rebalanced: true, Plan: plan, MessageID: id}, nil
}

// ReceiveMessage applies an inbound cross-domain message. Safe to call
// redundantly; duplicates report applied=false without error.
func (n *Node) ReceiveMessage(ctx context.Context, msg bridge.Message) (bool, error) {
	applied, err := n.router.Receive(ctx, msg)
	observability.BridgeMetrics().RecordReceived(applied, err)
	return applied, err
}

// Pause flips the circuit breaker for the vault and bridge modules.
func (n *Node) Pause() {
	n.pauses.SetPaused("vault", true)
	n.pauses.SetPaused("bridge", true)
	n.logger.Warn("modules paused by operator")
}

// Resume clears the circuit breaker.
func (n *Node) Resume() {
	n.pauses.SetPaused("vault", false)
	n.pauses.SetPaused("bridge", false)
	n.logger.Info("modules resumed by operator")
}

// ConfigureDomain upserts a remote domain configuration.
func (n *Node) ConfigureDomain(cfg bridge.DomainConfig) error {
	return n.router.ConfigureDomain(cfg)
}

// RefreshCatalog replaces or upserts the strategy destination catalog.
func (n *Node) RefreshCatalog(list []strategy.Destination) {
	n.strategy.Ingest(list)
}

// inboundApplier completes the vault's local state mutation before making
// any external protocol adapter call, per the re-entrancy rule.
type inboundApplier struct {
	vault    *vault.Engine
	adapters *strategy.AdapterRegistry
	logger   *slog.Logger
}

func (a *inboundApplier) ApplyRebalanceInbound(instructions []types.RebalanceInstruction) error {
	if err := a.vault.ApplyRebalanceInbound(instructions); err != nil {
		return err
	}
	for _, in := range instructions {
		adapter, err := a.adapters.Lookup(in.Destination)
		if err != nil {
			// No local adapter means the capital motion settles purely in
			// the ledger representation.
			continue
		}
		ctx := context.Background()
		switch in.Action {
		case types.RebalanceActionWithdraw:
			err = adapter.Withdraw(ctx, in.Amount)
		default:
			err = adapter.Deposit(ctx, in.Amount)
		}
		if err != nil {
			a.logger.Error("protocol adapter call failed after ledger apply",
				slog.String("destination", in.Destination),
				slog.Any("error", err))
		}
	}
	return nil
}

// relayCostEstimator prices a rebalance by sizing the instruction payload it
// would produce and asking the router for the relay fee.
type relayCostEstimator struct {
	router *bridge.Router
}

func (c *relayCostEstimator) EstimateRebalanceCost(domain uint64, amount *big.Int) *big.Int {
	payload, err := bridge.EncodeInstructions([]types.RebalanceInstruction{{
		Action:      types.RebalanceActionMigrate,
		Destination: "estimate",
		Amount:      amount,
	}})
	if err != nil {
		return big.NewInt(0)
	}
	return c.router.EstimateFee(domain, len(payload))
}

// logEmitter forwards module events to the structured logger.
type logEmitter struct {
	logger *slog.Logger
}

type typedEvent interface {
	events.Event
	Event() *types.Event
}

func (l *logEmitter) Emit(evt events.Event) {
	if l == nil || l.logger == nil || evt == nil {
		return
	}
	attrs := []any{}
	if typed, ok := evt.(typedEvent); ok && typed.Event() != nil {
		for k, v := range typed.Event().Attributes {
			attrs = append(attrs, slog.String(k, v))
		}
	}
	l.logger.Info(evt.EventType(), attrs...)
}
