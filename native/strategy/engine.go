package strategy

import (
	"errors"
	"math/big"
	"sync"
	"time"

	"omnivault/core/events"
	"omnivault/core/types"
)

var (
	ErrNoEligibleDestination = errors.New("strategy engine: no eligible destination")
	errNilAmount             = errors.New("strategy engine: pool amount must be positive")
)

var secondsPerYear = big.NewInt(365 * 24 * 60 * 60)

var basisPoints = big.NewInt(10_000)

// CostEstimator prices the relay and settlement cost of moving capital to a
// destination domain. The router provides the production implementation.
type CostEstimator interface {
	EstimateRebalanceCost(domain uint64, amount *big.Int) *big.Int
}

// Engine maintains the destination catalog and implements the greedy
// selection rule with the cost-aware rebalance gate. It is a single
// destination allocator, not a portfolio optimizer.
type Engine struct {
	mu      sync.RWMutex
	catalog map[string]Destination

	params  Params
	costs   CostEstimator
	emitter events.Emitter
	nowFn   func() int64
}

// NewEngine constructs a strategy engine with the provided parameters and a
// no-op emitter.
func NewEngine(params Params) *Engine {
	return &Engine{
		catalog: make(map[string]Destination),
		params:  params,
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetCostEstimator wires the cross-domain cost source used by the rebalance
// gate. Without one, cost is treated as zero.
func (e *Engine) SetCostEstimator(costs CostEstimator) {
	if e == nil {
		return
	}
	e.costs = costs
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

// SetNowFunc overrides the time source, primarily for deterministic tests.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// Ingest upserts the destination catalog. Each entry is stamped with the
// ingestion time; a pure data refresh with no side effects on the vault.
func (e *Engine) Ingest(list []Destination) {
	if e == nil {
		return
	}
	now := e.now()
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, dest := range list {
		if dest.ID == "" {
			continue
		}
		dest.TVL = cloneBigInt(dest.TVL)
		dest.LastUpdate = now
		e.catalog[dest.ID] = dest
	}
}

// Catalog returns a copy of the current destination catalog.
func (e *Engine) Catalog() []Destination {
	if e == nil {
		return nil
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]Destination, 0, len(e.catalog))
	for _, dest := range e.catalog {
		dest.TVL = cloneBigInt(dest.TVL)
		out = append(out, dest)
	}
	return out
}

// Evaluate selects the highest-APY destination whose risk score fits within
// the caller's tolerance and whose data is fresh. Ties break by higher TVL,
// then lower risk.
func (e *Engine) Evaluate(poolAmount *big.Int, riskTolerance uint8) (AllocationPlan, error) {
	if poolAmount == nil || poolAmount.Sign() <= 0 {
		return AllocationPlan{}, errNilAmount
	}
	now := e.now()

	e.mu.RLock()
	var best *Destination
	for id := range e.catalog {
		dest := e.catalog[id]
		if dest.RiskScore > riskTolerance {
			continue
		}
		if now-dest.LastUpdate > e.params.FreshnessWindowSeconds {
			continue
		}
		if best == nil || better(dest, *best) {
			candidate := dest
			best = &candidate
		}
	}
	e.mu.RUnlock()

	if best == nil {
		return AllocationPlan{}, ErrNoEligibleDestination
	}

	plan := AllocationPlan{
		Destination:    best.ID,
		Domain:         best.Domain,
		Amount:         new(big.Int).Set(poolAmount),
		ExpectedAPYBps: best.APYBps,
		Confidence:     e.confidence(*best, poolAmount, now),
	}
	e.emit(NewRebalanceEvaluatedEvent(plan))
	return plan, nil
}

// ShouldRebalance applies the cost-aware gate on top of Evaluate. An
// unprofitable move is a false return, not an error; the automation caller
// simply retries later.
func (e *Engine) ShouldRebalance(currentDestination string, poolAmount *big.Int, riskTolerance uint8) (bool, AllocationPlan, error) {
	plan, err := e.Evaluate(poolAmount, riskTolerance)
	if err != nil {
		return false, AllocationPlan{}, err
	}
	if plan.Destination == currentDestination {
		return false, plan, nil
	}

	var currentAPY uint32
	e.mu.RLock()
	if current, ok := e.catalog[currentDestination]; ok {
		currentAPY = current.APYBps
	}
	e.mu.RUnlock()

	if plan.ExpectedAPYBps <= currentAPY {
		return false, plan, nil
	}
	diff := plan.ExpectedAPYBps - currentAPY
	if diff <= e.params.MinDifferentialBps {
		return false, plan, nil
	}

	// Expected value of the differential over the holding horizon:
	// amount * diffBps / 10000 * horizon / year.
	value := new(big.Int).Mul(poolAmount, new(big.Int).SetUint64(uint64(diff)))
	value.Mul(value, big.NewInt(e.params.HoldingHorizonSeconds))
	value.Quo(value, basisPoints)
	value.Quo(value, secondsPerYear)

	fee := big.NewInt(0)
	if e.costs != nil {
		if estimated := e.costs.EstimateRebalanceCost(plan.Domain, poolAmount); estimated != nil {
			fee = estimated
		}
	}

	// Gate: fee must stay under CostRatioBps of the expected value.
	// Rebalancing on any improvement thrashes the pool and burns more in
	// relay fees than it gains.
	bound := new(big.Int).Mul(value, new(big.Int).SetUint64(uint64(e.params.CostRatioBps)))
	scaledFee := new(big.Int).Mul(fee, basisPoints)
	if scaledFee.Cmp(bound) >= 0 {
		return false, plan, nil
	}
	return true, plan, nil
}

// better reports whether a should be preferred over b.
func better(a, b Destination) bool {
	if a.APYBps != b.APYBps {
		return a.APYBps > b.APYBps
	}
	if cmp := cloneBigInt(a.TVL).Cmp(cloneBigInt(b.TVL)); cmp != 0 {
		return cmp > 0
	}
	return a.RiskScore < b.RiskScore
}

// confidence combines TVL adequacy (up to 40), inverse risk (up to 35) and
// freshness (up to 25) into a 0-100 score.
func (e *Engine) confidence(dest Destination, poolAmount *big.Int, now int64) uint8 {
	score := int64(0)

	// TVL adequacy: full marks when the destination holds at least ten times
	// the amount being allocated.
	adequacyTarget := new(big.Int).Mul(poolAmount, big.NewInt(10))
	tvl := cloneBigInt(dest.TVL)
	if tvl.Cmp(adequacyTarget) >= 0 {
		score += 40
	} else if adequacyTarget.Sign() > 0 {
		part := new(big.Int).Mul(tvl, big.NewInt(40))
		part.Quo(part, adequacyTarget)
		score += part.Int64()
	}

	risk := int64(dest.RiskScore)
	if risk > 100 {
		risk = 100
	}
	score += (100 - risk) * 35 / 100

	age := now - dest.LastUpdate
	window := e.params.FreshnessWindowSeconds
	if window > 0 && age >= 0 && age <= window {
		score += (window - age) * 25 / window
	}

	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return uint8(score)
}

func (e *Engine) emit(event *types.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(strategyEvent{evt: event})
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}
