package bridge

import (
	"encoding/binary"
	"fmt"
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"omnivault/core/types"
)

// MessageID derives the deterministic message identifier both sides can
// reproduce: keccak(sourceDomain || sender || nonce || keccak(payload)).
func MessageID(sourceDomain uint64, sender [20]byte, nonce uint64, payload []byte) [32]byte {
	var domain, n [8]byte
	binary.BigEndian.PutUint64(domain[:], sourceDomain)
	binary.BigEndian.PutUint64(n[:], nonce)
	payloadHash := ethcrypto.Keccak256(payload)

	var id [32]byte
	copy(id[:], ethcrypto.Keccak256(domain[:], sender[:], n[:], payloadHash))
	return id
}

// EncodeMessage serialises the envelope for the wire.
func EncodeMessage(msg Message) ([]byte, error) {
	return rlp.EncodeToBytes(&msg)
}

// DecodeMessage deserialises a wire envelope.
func DecodeMessage(raw []byte) (Message, error) {
	var msg Message
	if err := rlp.DecodeBytes(raw, &msg); err != nil {
		return Message{}, fmt.Errorf("bridge: decode message: %w", err)
	}
	return msg, nil
}

type instructionRecord struct {
	Action      uint8
	Destination string
	Amount      *big.Int
	Params      []byte
}

// EncodeInstructions serialises a validated rebalance instruction list into a
// message payload.
func EncodeInstructions(list []types.RebalanceInstruction) ([]byte, error) {
	if err := types.ValidateInstructions(list); err != nil {
		return nil, err
	}
	records := make([]instructionRecord, 0, len(list))
	for _, in := range list {
		records = append(records, instructionRecord{
			Action:      uint8(in.Action),
			Destination: in.Destination,
			Amount:      new(big.Int).Set(in.Amount),
			Params:      append([]byte(nil), in.Params...),
		})
	}
	return rlp.EncodeToBytes(records)
}

// DecodeInstructions deserialises and validates a message payload.
// Unrecognised actions fail closed; nothing is silently skipped.
func DecodeInstructions(payload []byte) ([]types.RebalanceInstruction, error) {
	var records []instructionRecord
	if err := rlp.DecodeBytes(payload, &records); err != nil {
		return nil, fmt.Errorf("bridge: decode instructions: %w", err)
	}
	list := make([]types.RebalanceInstruction, 0, len(records))
	for _, rec := range records {
		list = append(list, types.RebalanceInstruction{
			Action:      types.RebalanceAction(rec.Action),
			Destination: rec.Destination,
			Amount:      rec.Amount,
			Params:      rec.Params,
		})
	}
	if err := types.ValidateInstructions(list); err != nil {
		return nil, err
	}
	return list, nil
}
