package types

import (
	"errors"
	"math/big"
)

// RebalanceAction identifies the operation encoded in a rebalance
// instruction entry.
type RebalanceAction uint8

const (
	// RebalanceActionDeposit allocates capital into a destination protocol.
	RebalanceActionDeposit RebalanceAction = 1
	// RebalanceActionWithdraw pulls capital out of a destination protocol.
	RebalanceActionWithdraw RebalanceAction = 2
	// RebalanceActionMigrate moves capital between destinations in one step.
	RebalanceActionMigrate RebalanceAction = 3
)

// MaxRebalanceInstructions bounds the length of an instruction list accepted
// by the vault. Longer lists are rejected before any entry executes.
const MaxRebalanceInstructions = 16

var (
	ErrInvalidInstruction   = errors.New("rebalance: invalid instruction")
	ErrInstructionListBound = errors.New("rebalance: instruction list exceeds bound")
)

// RebalanceInstruction is a single entry of a cross-domain rebalance order.
// Unrecognised actions fail closed during validation and are never skipped.
type RebalanceInstruction struct {
	Action      RebalanceAction
	Destination string
	Amount      *big.Int
	Params      []byte
}

// Validate checks the per-entry bounds for an instruction.
func (in RebalanceInstruction) Validate() error {
	switch in.Action {
	case RebalanceActionDeposit, RebalanceActionWithdraw, RebalanceActionMigrate:
	default:
		return ErrInvalidInstruction
	}
	if in.Destination == "" {
		return ErrInvalidInstruction
	}
	if in.Amount == nil || in.Amount.Sign() <= 0 {
		return ErrInvalidInstruction
	}
	return nil
}

// ValidateInstructions checks the list length and every entry. Validation is
// all-or-nothing: a single invalid entry rejects the whole list.
func ValidateInstructions(list []RebalanceInstruction) error {
	if len(list) == 0 {
		return ErrInvalidInstruction
	}
	if len(list) > MaxRebalanceInstructions {
		return ErrInstructionListBound
	}
	for _, in := range list {
		if err := in.Validate(); err != nil {
			return err
		}
	}
	return nil
}
