package bridge

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"sync"
	"time"

	"omnivault/core/events"
	"omnivault/core/types"
	nativecommon "omnivault/native/common"
)

var (
	errNilState           = errors.New("bridge router: state not configured")
	ErrNilTransport       = errors.New("bridge router: transport not configured")
	ErrUnsupportedDomain  = errors.New("bridge router: destination domain not enabled")
	ErrWrongDestination   = errors.New("bridge router: message not addressed to this domain")
	ErrUntrustedSender    = errors.New("bridge router: sender is not the trusted remote router")
	ErrMessageIDMismatch  = errors.New("bridge router: message id does not match its contents")
	ErrEmptyPayload       = errors.New("bridge router: payload must not be empty")
	errApplierUnavailable = errors.New("bridge router: inbound applier not configured")
)

const moduleName = "bridge"

type routerState interface {
	IsProcessed(id [32]byte) (bool, error)
	MarkProcessed(id [32]byte) error
	NextNonce(domain uint64) (uint64, error)
	GetDomain(domain uint64) (*DomainConfig, error)
	PutDomain(cfg *DomainConfig) error
	ListDomains() ([]DomainConfig, error)
	PutOutbound(rec *OutboundRecord) error
	GetOutbound(id [32]byte) (*OutboundRecord, error)
}

// Transport is the opaque delivery channel between domains. Delivery is
// best-effort: possibly duplicated, possibly reordered, possibly lost. Retry
// is the transport's responsibility, never the router's.
type Transport interface {
	Send(ctx context.Context, msg Message) error
}

// InboundApplier executes a verified rebalance instruction list against the
// local vault. The vault engine provides the production implementation.
type InboundApplier interface {
	ApplyRebalanceInbound(instructions []types.RebalanceInstruction) error
}

// Router builds outbound rebalance messages and applies inbound ones exactly
// once. Exactly-once semantics come from "mark, then act": the processed-set
// insert always precedes payload execution.
type Router struct {
	mu sync.Mutex

	state       routerState
	localDomain uint64
	localAddr   [20]byte
	transport   Transport
	applier     InboundApplier
	fees        FeeParams
	emitter     events.Emitter
	pauses      nativecommon.PauseView
	nowFn       func() int64
}

// NewRouter constructs a router for the local domain with a no-op emitter.
func NewRouter(localDomain uint64, localAddr [20]byte, fees FeeParams) *Router {
	return &Router{
		localDomain: localDomain,
		localAddr:   localAddr,
		fees:        fees,
		emitter:     events.NoopEmitter{},
		nowFn:       func() int64 { return time.Now().Unix() },
	}
}

// SetState wires the router to the external persistence layer.
func (r *Router) SetState(state routerState) { r.state = state }

// SetTransport wires the outbound delivery channel.
func (r *Router) SetTransport(t Transport) { r.transport = t }

// SetApplier wires the local vault entry point for verified inbound messages.
func (r *Router) SetApplier(a InboundApplier) { r.applier = a }

// SetPauses wires the shared pause view.
func (r *Router) SetPauses(p nativecommon.PauseView) {
	if r == nil {
		return
	}
	r.pauses = p
}

// SetEmitter configures the event emitter used by the router. Passing nil
// resets the emitter to a no-op implementation.
func (r *Router) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		r.emitter = events.NoopEmitter{}
		return
	}
	r.emitter = emitter
}

// SetNowFunc overrides the time source, primarily for deterministic tests.
func (r *Router) SetNowFunc(now func() int64) {
	if now == nil {
		r.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	r.nowFn = now
}

// LocalDomain returns the domain this router serves.
func (r *Router) LocalDomain() uint64 { return r.localDomain }

// Sendable reports whether an outbound message for destDomain would pass
// Send's synchronous validation: a transport is wired and the domain is
// enabled. Callers that release state ahead of a Send use it to avoid
// debiting against a message that can never be created.
func (r *Router) Sendable(destDomain uint64) error {
	if r == nil || r.state == nil {
		return errNilState
	}
	if r.transport == nil {
		return ErrNilTransport
	}
	cfg, err := r.state.GetDomain(destDomain)
	if err != nil {
		return err
	}
	if cfg == nil || !cfg.Enabled {
		return ErrUnsupportedDomain
	}
	return nil
}

// Send builds the envelope for destDomain, records it as sent-unconfirmed
// and hands it to the transport. It returns as soon as the transport accepts
// the message; delivery is not guaranteed synchronously and an in-flight
// message cannot be aborted.
func (r *Router) Send(ctx context.Context, destDomain uint64, payload []byte) ([32]byte, error) {
	var id [32]byte
	if r == nil || r.state == nil {
		return id, errNilState
	}
	if err := nativecommon.Guard(r.pauses, moduleName); err != nil {
		return id, err
	}
	if r.transport == nil {
		return id, ErrNilTransport
	}
	if len(payload) == 0 {
		return id, ErrEmptyPayload
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	cfg, err := r.state.GetDomain(destDomain)
	if err != nil {
		return id, err
	}
	if cfg == nil || !cfg.Enabled {
		return id, ErrUnsupportedDomain
	}

	nonce, err := r.state.NextNonce(destDomain)
	if err != nil {
		return id, err
	}
	id = MessageID(r.localDomain, r.localAddr, nonce, payload)
	msg := Message{
		ID:           id,
		SourceDomain: r.localDomain,
		DestDomain:   destDomain,
		Sender:       r.localAddr,
		Receiver:     cfg.RemoteRouter,
		Payload:      append([]byte(nil), payload...),
		Nonce:        nonce,
	}

	if err := r.state.PutOutbound(&OutboundRecord{
		ID:         id,
		DestDomain: destDomain,
		Nonce:      nonce,
		Status:     OutboundStatusSent,
		SentAt:     r.now(),
	}); err != nil {
		return id, err
	}

	if err := r.transport.Send(ctx, msg); err != nil {
		return id, err
	}

	r.emit(NewMessageSentEvent(id, destDomain))
	return id, nil
}

// Receive verifies and applies an inbound message exactly once. A duplicate
// id is a silent no-op reporting applied=false; trust failures are rejected
// without marking the id, so a properly authenticated resend can still
// succeed later.
func (r *Router) Receive(ctx context.Context, msg Message) (bool, error) {
	_ = ctx
	if r == nil || r.state == nil {
		return false, errNilState
	}
	if err := nativecommon.Guard(r.pauses, moduleName); err != nil {
		return false, err
	}
	if msg.DestDomain != r.localDomain {
		return false, ErrWrongDestination
	}

	cfg, err := r.state.GetDomain(msg.SourceDomain)
	if err != nil {
		return false, err
	}
	if cfg == nil || !cfg.Enabled {
		return false, ErrUnsupportedDomain
	}
	if !bytes.Equal(msg.Sender[:], cfg.RemoteRouter[:]) {
		return false, ErrUntrustedSender
	}
	if MessageID(msg.SourceDomain, msg.Sender, msg.Nonce, msg.Payload) != msg.ID {
		return false, ErrMessageIDMismatch
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	processed, err := r.state.IsProcessed(msg.ID)
	if err != nil {
		return false, err
	}
	if processed {
		r.emit(NewMessageAppliedEvent(msg.ID, false))
		return false, nil
	}

	// Mark, then act. A failure below stays marked so a redelivery cannot
	// double-apply a partially executed payload.
	if err := r.state.MarkProcessed(msg.ID); err != nil {
		return false, err
	}

	if r.applier == nil {
		r.emit(NewMessageAppliedEvent(msg.ID, false))
		return false, errApplierUnavailable
	}

	instructions, err := DecodeInstructions(msg.Payload)
	if err != nil {
		r.emit(NewMessageAppliedEvent(msg.ID, false))
		return false, err
	}
	if err := r.applier.ApplyRebalanceInbound(instructions); err != nil {
		r.emit(NewMessageAppliedEvent(msg.ID, false))
		return false, err
	}

	r.emit(NewMessageAppliedEvent(msg.ID, true))
	return true, nil
}

// EstimateFee prices a message of payloadSize bytes to destDomain: a fixed
// base fee plus a per-byte marginal fee.
func (r *Router) EstimateFee(destDomain uint64, payloadSize int) *big.Int {
	_ = destDomain
	if r == nil || payloadSize < 0 {
		return big.NewInt(0)
	}
	fee := new(big.Int).Mul(r.fees.PerByteFee, big.NewInt(int64(payloadSize)))
	return fee.Add(fee, r.fees.BaseFee)
}

// ConfigureDomain upserts a domain configuration. Operator surface only.
func (r *Router) ConfigureDomain(cfg DomainConfig) error {
	if r == nil || r.state == nil {
		return errNilState
	}
	return r.state.PutDomain(&cfg)
}

// Domains lists the configured destination domains.
func (r *Router) Domains() ([]DomainConfig, error) {
	if r == nil || r.state == nil {
		return nil, errNilState
	}
	return r.state.ListDomains()
}

// Outbound returns the record for a previously sent message, nil when
// unknown.
func (r *Router) Outbound(id [32]byte) (*OutboundRecord, error) {
	if r == nil || r.state == nil {
		return nil, errNilState
	}
	return r.state.GetOutbound(id)
}

func (r *Router) emit(event *types.Event) {
	if r == nil || r.emitter == nil || event == nil {
		return
	}
	r.emitter.Emit(bridgeEvent{evt: event})
}

func (r *Router) now() int64 {
	if r == nil || r.nowFn == nil {
		return time.Now().Unix()
	}
	return r.nowFn()
}
