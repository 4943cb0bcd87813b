package strategy

import "math/big"

// Destination describes a candidate yield venue in the catalog. Entries go
// stale after the configured freshness window and are excluded from selection
// until refreshed.
type Destination struct {
	// ID is the protocol identifier used for adapter and catalog lookups.
	ID string
	// Domain is the execution domain the protocol lives on.
	Domain uint64
	// APYBps is the advertised yield in basis points.
	APYBps uint32
	// TVL is the total value locked in the protocol.
	TVL *big.Int
	// RiskScore grades the protocol from 0 (safest) to 100.
	RiskScore uint8
	// LastUpdate is the unix time the entry was last ingested.
	LastUpdate int64
}

// AllocationPlan is the ephemeral output of a strategy evaluation. It is
// computed per call and not persisted beyond the rebalance it triggers.
type AllocationPlan struct {
	Destination    string
	Domain         uint64
	Amount         *big.Int
	ExpectedAPYBps uint32
	// Confidence is a heuristic 0-100 estimate combining TVL adequacy,
	// inverse risk and data freshness. It is not a statistical guarantee.
	Confidence uint8
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
