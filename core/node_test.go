package core

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"testing"

	"omnivault/config"
	"omnivault/core/types"
	"omnivault/crypto"
	"omnivault/native/bridge"
	nativecommon "omnivault/native/common"
	"omnivault/native/strategy"
	"omnivault/storage"
)

type capturingTransport struct {
	sent []bridge.Message
}

func (t *capturingTransport) Send(_ context.Context, msg bridge.Message) error {
	t.sent = append(t.sent, msg)
	return nil
}

func testAddr(b byte) crypto.Address {
	return crypto.NewAddress(crypto.VaultPrefix, bytes.Repeat([]byte{b}, 20))
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestNode(t *testing.T, localDomain uint64, routerAddr crypto.Address) *Node {
	t.Helper()
	cfg := &config.Config{
		LocalDomain:   localDomain,
		RouterAddress: routerAddr.String(),
		Vault:         config.VaultConfig{RiskTolerance: 30},
	}
	node, err := NewNode(storage.NewMemDB(), cfg, testLogger())
	if err != nil {
		t.Fatalf("node construction failed: %v", err)
	}
	return node
}

// wireNodes builds a node pair on domains 1 and 2 whose routers trust each
// other, with node A's transport captured.
func wireNodes(t *testing.T) (*Node, *Node, *capturingTransport) {
	t.Helper()
	addrA := testAddr(0xaa)
	addrB := testAddr(0xbb)

	nodeA := newTestNode(t, 1, addrA)
	nodeB := newTestNode(t, 2, addrB)

	var remoteA, remoteB [20]byte
	copy(remoteA[:], addrA.Bytes())
	copy(remoteB[:], addrB.Bytes())

	if err := nodeA.ConfigureDomain(bridge.DomainConfig{DomainID: 2, RemoteRouter: remoteB, Enabled: true}); err != nil {
		t.Fatalf("configure node A: %v", err)
	}
	if err := nodeB.ConfigureDomain(bridge.DomainConfig{DomainID: 1, RemoteRouter: remoteA, Enabled: true}); err != nil {
		t.Fatalf("configure node B: %v", err)
	}

	transport := &capturingTransport{}
	nodeA.SetTransport(transport)
	return nodeA, nodeB, transport
}

func TestCheckRebalanceWithoutCapital(t *testing.T) {
	nodeA, _, _ := wireNodes(t)

	result, err := nodeA.CheckRebalance(context.Background())
	if err != nil {
		t.Fatalf("check failed: %v", err)
	}
	if result.Rebalanced || result.Reason != "no unreserved capital" {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestRebalanceAcrossDomains(t *testing.T) {
	nodeA, nodeB, transport := wireNodes(t)
	depositor := testAddr(0x01)
	amount := big.NewInt(1_000_000)

	if _, err := nodeA.Deposit(depositor, amount); err != nil {
		t.Fatalf("deposit failed: %v", err)
	}
	nodeA.RefreshCatalog([]strategy.Destination{{
		ID:        "aave-v3",
		Domain:    2,
		APYBps:    500,
		TVL:       new(big.Int).Mul(amount, big.NewInt(100)),
		RiskScore: 20,
	}})

	result, err := nodeA.CheckRebalance(context.Background())
	if err != nil {
		t.Fatalf("check failed: %v", err)
	}
	if !result.Rebalanced || result.Plan.Destination != "aave-v3" {
		t.Fatalf("expected dispatched rebalance, got %+v", result)
	}
	if len(transport.sent) != 1 {
		t.Fatalf("expected one message on the wire, got %d", len(transport.sent))
	}

	// The capital has left node A's pool representation and is in flight.
	poolA, err := nodeA.Vault().PoolSnapshot()
	if err != nil {
		t.Fatalf("snapshot failed: %v", err)
	}
	if poolA.TotalAssets.Sign() != 0 || poolA.InFlight.Cmp(amount) != 0 {
		t.Fatalf("unexpected node A pool: %+v", poolA)
	}

	// Delivery on node B settles the move exactly once.
	applied, err := nodeB.ReceiveMessage(context.Background(), transport.sent[0])
	if err != nil || !applied {
		t.Fatalf("delivery failed, applied=%v err=%v", applied, err)
	}
	poolB, err := nodeB.Vault().PoolSnapshot()
	if err != nil {
		t.Fatalf("snapshot failed: %v", err)
	}
	if poolB.TotalAssets.Cmp(amount) != 0 || poolB.CurrentDestination != "aave-v3" {
		t.Fatalf("unexpected node B pool: %+v", poolB)
	}

	// The transport redelivers; nothing changes.
	applied, err = nodeB.ReceiveMessage(context.Background(), transport.sent[0])
	if err != nil {
		t.Fatalf("duplicate delivery must not error: %v", err)
	}
	if applied {
		t.Fatalf("duplicate delivery must not apply")
	}
	poolB, err = nodeB.Vault().PoolSnapshot()
	if err != nil {
		t.Fatalf("snapshot failed: %v", err)
	}
	if poolB.TotalAssets.Cmp(amount) != 0 {
		t.Fatalf("duplicate changed totals: %+v", poolB)
	}
}

func TestCheckRebalanceHoldsOnUnprofitableMove(t *testing.T) {
	addrA := testAddr(0xaa)
	cfg := &config.Config{
		LocalDomain:   1,
		RouterAddress: addrA.String(),
		Vault:         config.VaultConfig{RiskTolerance: 30},
		// A crushing relay fee keeps every move below the profit gate.
		Bridge: bridge.FeeConfig{BaseFeeWei: "1000000000000000000"},
	}
	node, err := NewNode(storage.NewMemDB(), cfg, testLogger())
	if err != nil {
		t.Fatalf("node construction failed: %v", err)
	}

	if _, err := node.Deposit(testAddr(0x01), big.NewInt(1_000_000)); err != nil {
		t.Fatalf("deposit failed: %v", err)
	}
	node.RefreshCatalog([]strategy.Destination{{
		ID:        "aave-v3",
		Domain:    2,
		APYBps:    500,
		TVL:       big.NewInt(1_000_000_000),
		RiskScore: 20,
	}})

	result, err := node.CheckRebalance(context.Background())
	if err != nil {
		t.Fatalf("check failed: %v", err)
	}
	if result.Rebalanced {
		t.Fatalf("fee-dominated move must hold, got %+v", result)
	}
	pool, err := node.Vault().PoolSnapshot()
	if err != nil {
		t.Fatalf("snapshot failed: %v", err)
	}
	if pool.TotalAssets.Cmp(big.NewInt(1_000_000)) != 0 || pool.InFlight.Sign() != 0 {
		t.Fatalf("holding must leave the pool untouched: %+v", pool)
	}
}

func TestCheckRebalanceRejectedDomainLeavesPoolIntact(t *testing.T) {
	nodeA, _, transport := wireNodes(t)
	amount := big.NewInt(1_000_000)

	if _, err := nodeA.Deposit(testAddr(0x01), amount); err != nil {
		t.Fatalf("deposit failed: %v", err)
	}
	// The catalog points at a domain the router has no configuration for;
	// the check must fail before any capital leaves the pool.
	nodeA.RefreshCatalog([]strategy.Destination{{
		ID:        "mystery-farm",
		Domain:    9,
		APYBps:    900,
		TVL:       new(big.Int).Mul(amount, big.NewInt(100)),
		RiskScore: 10,
	}})

	if _, err := nodeA.CheckRebalance(context.Background()); !errors.Is(err, bridge.ErrUnsupportedDomain) {
		t.Fatalf("expected ErrUnsupportedDomain, got %v", err)
	}
	if len(transport.sent) != 0 {
		t.Fatalf("no message must reach the transport")
	}
	pool, err := nodeA.Vault().PoolSnapshot()
	if err != nil {
		t.Fatalf("snapshot failed: %v", err)
	}
	if pool.TotalAssets.Cmp(amount) != 0 || pool.InFlight.Sign() != 0 {
		t.Fatalf("rejected send must leave the pool untouched: %+v", pool)
	}
}

func TestCheckRebalanceWithoutTransportLeavesPoolIntact(t *testing.T) {
	addrA := testAddr(0xaa)
	node := newTestNode(t, 1, addrA)
	remote := testAddr(0xbb)
	var remoteB [20]byte
	copy(remoteB[:], remote.Bytes())
	if err := node.ConfigureDomain(bridge.DomainConfig{DomainID: 2, RemoteRouter: remoteB, Enabled: true}); err != nil {
		t.Fatalf("configure failed: %v", err)
	}

	amount := big.NewInt(1_000_000)
	if _, err := node.Deposit(testAddr(0x01), amount); err != nil {
		t.Fatalf("deposit failed: %v", err)
	}
	node.RefreshCatalog([]strategy.Destination{{
		ID:        "aave-v3",
		Domain:    2,
		APYBps:    500,
		TVL:       new(big.Int).Mul(amount, big.NewInt(100)),
		RiskScore: 20,
	}})

	if _, err := node.CheckRebalance(context.Background()); !errors.Is(err, bridge.ErrNilTransport) {
		t.Fatalf("expected ErrNilTransport, got %v", err)
	}
	pool, err := node.Vault().PoolSnapshot()
	if err != nil {
		t.Fatalf("snapshot failed: %v", err)
	}
	if pool.TotalAssets.Cmp(amount) != 0 || pool.InFlight.Sign() != 0 {
		t.Fatalf("missing transport must leave the pool untouched: %+v", pool)
	}
}

func TestPauseStopsVaultAndBridge(t *testing.T) {
	nodeA, nodeB, transport := wireNodes(t)
	depositor := testAddr(0x01)

	if _, err := nodeA.Deposit(depositor, big.NewInt(1_000)); err != nil {
		t.Fatalf("deposit failed: %v", err)
	}

	nodeA.Pause()
	if _, err := nodeA.Deposit(depositor, big.NewInt(1_000)); !errors.Is(err, nativecommon.ErrModulePaused) {
		t.Fatalf("expected ErrModulePaused, got %v", err)
	}

	nodeA.Resume()
	if _, err := nodeA.Deposit(depositor, big.NewInt(1_000)); err != nil {
		t.Fatalf("deposit after resume failed: %v", err)
	}

	// A paused receiver rejects inbound messages too.
	nodeA.RefreshCatalog([]strategy.Destination{{
		ID: "aave-v3", Domain: 2, APYBps: 500, TVL: big.NewInt(1_000_000_000), RiskScore: 20,
	}})
	if _, err := nodeA.CheckRebalance(context.Background()); err != nil {
		t.Fatalf("check failed: %v", err)
	}
	if len(transport.sent) == 0 {
		t.Fatalf("expected a dispatched message")
	}
	nodeB.Pause()
	if _, err := nodeB.ReceiveMessage(context.Background(), transport.sent[0]); !errors.Is(err, nativecommon.ErrModulePaused) {
		t.Fatalf("expected ErrModulePaused on paused receiver, got %v", err)
	}
	// Trust failures and pauses never burn the id; the redelivery after
	// resume applies cleanly.
	nodeB.Resume()
	applied, err := nodeB.ReceiveMessage(context.Background(), transport.sent[0])
	if err != nil || !applied {
		t.Fatalf("expected apply after resume, applied=%v err=%v", applied, err)
	}
}

func TestInboundApplierDrivesAdapters(t *testing.T) {
	_, nodeB, _ := wireNodes(t)

	recorder := &recordingAdapter{}
	if err := nodeB.Adapters().Register("aave-v3", recorder); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	applier := &inboundApplier{
		vault:    nodeB.Vault(),
		adapters: nodeB.Adapters(),
		logger:   testLogger(),
	}
	err := applier.ApplyRebalanceInbound([]types.RebalanceInstruction{{
		Action:      types.RebalanceActionDeposit,
		Destination: "aave-v3",
		Amount:      big.NewInt(500),
	}})
	if err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	if recorder.deposits != 1 {
		t.Fatalf("expected one adapter deposit, got %d", recorder.deposits)
	}
}

type recordingAdapter struct {
	deposits  int
	withdraws int
}

func (a *recordingAdapter) Deposit(context.Context, *big.Int) error {
	a.deposits++
	return nil
}

func (a *recordingAdapter) Withdraw(context.Context, *big.Int) error {
	a.withdraws++
	return nil
}

func (a *recordingAdapter) CurrentAPY(context.Context) (uint32, error) { return 500, nil }
