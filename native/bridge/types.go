package bridge

import (
	"fmt"
	"math/big"
	"strings"
)

// Message is the cross-domain envelope carried by the external relay. The
// transport offers best-effort delivery: a message may arrive out of order,
// more than once, or never.
type Message struct {
	// ID is derived deterministically from (SourceDomain, Sender, Nonce,
	// payload hash) so both sides can reproduce it.
	ID           [32]byte
	SourceDomain uint64
	DestDomain   uint64
	Sender       [20]byte
	Receiver     [20]byte
	// Payload is an encoded rebalance instruction list.
	Payload []byte
	Nonce   uint64
}

// DomainConfig describes a remote execution domain. Configured by an
// operator; consumed read-only by the router.
type DomainConfig struct {
	DomainID     uint64
	RemoteVault  [20]byte
	RemoteRouter [20]byte
	// GasLimit caps execution on the remote domain. It is carried for the
	// relay, which prices remote gas itself; the local fee estimate is
	// base plus per-byte only.
	GasLimit uint64
	Enabled  bool
}

// Outbound message statuses recorded by the router. A sent message has no
// confirmation path; it stays unconfirmed until the remote side is observed
// out of band.
const (
	OutboundStatusSent = "sent_unconfirmed"
)

// OutboundRecord captures the metadata stored for every message handed to
// the transport.
type OutboundRecord struct {
	ID         [32]byte
	DestDomain uint64
	Nonce      uint64
	Status     string
	SentAt     int64
}

// FeeConfig captures the operator-defined relay pricing parsed from
// configuration. Amounts are decimal wei strings.
type FeeConfig struct {
	BaseFeeWei    string `toml:"BaseFeeWei"`
	PerByteFeeWei string `toml:"PerByteFeeWei"`
}

// FeeParams represents the runtime-ready relay pricing.
type FeeParams struct {
	BaseFee    *big.Int
	PerByteFee *big.Int
}

// Parameters converts the textual fee configuration into runtime integers.
func (fc FeeConfig) Parameters() (FeeParams, error) {
	params := FeeParams{BaseFee: big.NewInt(0), PerByteFee: big.NewInt(0)}
	if raw := strings.TrimSpace(fc.BaseFeeWei); raw != "" {
		amount, err := parseWeiAmount(raw)
		if err != nil {
			return params, fmt.Errorf("bridge: invalid BaseFeeWei: %w", err)
		}
		params.BaseFee = amount
	}
	if raw := strings.TrimSpace(fc.PerByteFeeWei); raw != "" {
		amount, err := parseWeiAmount(raw)
		if err != nil {
			return params, fmt.Errorf("bridge: invalid PerByteFeeWei: %w", err)
		}
		params.PerByteFee = amount
	}
	return params, nil
}

func parseWeiAmount(raw string) (*big.Int, error) {
	value, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return nil, fmt.Errorf("not a base-10 integer: %q", raw)
	}
	if value.Sign() < 0 {
		return nil, fmt.Errorf("amount must not be negative: %q", raw)
	}
	return value, nil
}
