package strategy

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
)

// ErrUnknownProtocol is returned when no adapter is registered for a
// destination identifier.
var ErrUnknownProtocol = errors.New("strategy engine: unknown protocol")

// ProtocolAdapter is the capability surface a destination protocol exposes to
// the vault. One variant exists per destination, selected by id through the
// registry.
type ProtocolAdapter interface {
	Deposit(ctx context.Context, amount *big.Int) error
	Withdraw(ctx context.Context, amount *big.Int) error
	CurrentAPY(ctx context.Context) (uint32, error)
}

// AdapterRegistry dispatches to the per-protocol adapter implementations.
type AdapterRegistry struct {
	mu       sync.RWMutex
	adapters map[string]ProtocolAdapter
}

func NewAdapterRegistry() *AdapterRegistry {
	return &AdapterRegistry{adapters: make(map[string]ProtocolAdapter)}
}

// Register binds an adapter to a protocol identifier. Re-registering an id is
// an error.
func (r *AdapterRegistry) Register(id string, adapter ProtocolAdapter) error {
	if id == "" || adapter == nil {
		return fmt.Errorf("strategy engine: invalid adapter registration")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.adapters[id]; exists {
		return fmt.Errorf("strategy engine: adapter %q already registered", id)
	}
	r.adapters[id] = adapter
	return nil
}

// Lookup resolves the adapter for a protocol identifier.
func (r *AdapterRegistry) Lookup(id string) (ProtocolAdapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	adapter, ok := r.adapters[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProtocol, id)
	}
	return adapter, nil
}

// StaticAdapter is a fixed-rate adapter whose deposit and withdraw calls are
// bookkeeping-only. It backs destinations whose capital motions settle
// entirely through cross-domain messages.
type StaticAdapter struct {
	APYBps uint32
}

func (a StaticAdapter) Deposit(context.Context, *big.Int) error  { return nil }
func (a StaticAdapter) Withdraw(context.Context, *big.Int) error { return nil }

func (a StaticAdapter) CurrentAPY(context.Context) (uint32, error) {
	return a.APYBps, nil
}
