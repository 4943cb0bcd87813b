package rpc

import (
	"encoding/hex"
	"errors"
	"math/big"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"omnivault/crypto"
	nativecommon "omnivault/native/common"
	"omnivault/native/vault"
)

type depositRequest struct {
	Receiver string `json:"receiver"`
	Amount   string `json:"amount"`
}

type depositResponse struct {
	Shares string `json:"shares"`
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	var req depositRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	receiver, err := crypto.DecodeAddress(strings.TrimSpace(req.Receiver))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid receiver address")
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	shares, err := s.node.Deposit(receiver, amount)
	if err != nil {
		writeVaultError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, depositResponse{Shares: shares.String()})
}

type withdrawRequest struct {
	Owner  string `json:"owner"`
	Shares string `json:"shares"`
}

type withdrawResponse struct {
	RequestID string `json:"requestId"`
}

func (s *Server) handleRequestWithdraw(w http.ResponseWriter, r *http.Request) {
	var req withdrawRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	owner, err := crypto.DecodeAddress(strings.TrimSpace(req.Owner))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid owner address")
		return
	}
	shares, err := parseAmount(req.Shares)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	id, err := s.node.RequestWithdraw(owner, shares)
	if err != nil {
		writeVaultError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, withdrawResponse{RequestID: hex.EncodeToString(id[:])})
}

type completeWithdrawRequest struct {
	Owner     string `json:"owner"`
	RequestID string `json:"requestId"`
}

type completeWithdrawResponse struct {
	Assets string `json:"assets"`
}

func (s *Server) handleCompleteWithdraw(w http.ResponseWriter, r *http.Request) {
	var req completeWithdrawRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	owner, err := crypto.DecodeAddress(strings.TrimSpace(req.Owner))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid owner address")
		return
	}
	id, err := parseRequestID(req.RequestID)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	assets, err := s.node.CompleteWithdraw(owner, id)
	if err != nil {
		writeVaultError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, completeWithdrawResponse{Assets: assets.String()})
}

type poolResponse struct {
	TotalAssets        string `json:"totalAssets"`
	TotalShares        string `json:"totalShares"`
	Reserved           string `json:"reserved"`
	InFlight           string `json:"inFlight"`
	CurrentDestination string `json:"currentDestination"`
	LastRebalanceTime  int64  `json:"lastRebalanceTime"`
}

func (s *Server) handlePool(w http.ResponseWriter, _ *http.Request) {
	pool, err := s.node.Vault().PoolSnapshot()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, poolResponse{
		TotalAssets:        pool.TotalAssets.String(),
		TotalShares:        pool.TotalShares.String(),
		Reserved:           pool.Reserved.String(),
		InFlight:           pool.InFlight.String(),
		CurrentDestination: pool.CurrentDestination,
		LastRebalanceTime:  pool.LastRebalanceTime,
	})
}

type accountResponse struct {
	Owner          string `json:"owner"`
	Shares         string `json:"shares"`
	PendingShares  string `json:"pendingShares"`
	PendingRequest string `json:"pendingRequest,omitempty"`
}

func (s *Server) handleAccount(w http.ResponseWriter, r *http.Request) {
	owner, err := crypto.DecodeAddress(chi.URLParam(r, "address"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid account address")
		return
	}
	snapshot, err := s.node.Vault().AccountSnapshot(owner)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	resp := accountResponse{
		Owner:         owner.String(),
		Shares:        snapshot.Shares.String(),
		PendingShares: snapshot.PendingShares.String(),
	}
	var zero [32]byte
	if snapshot.PendingRequest != zero {
		resp.PendingRequest = hex.EncodeToString(snapshot.PendingRequest[:])
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeVaultError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, nativecommon.ErrModulePaused):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, vault.ErrNoPendingWithdrawal):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, vault.ErrInsufficientShares),
		errors.Is(err, vault.ErrWithdrawPending),
		errors.Is(err, vault.ErrInvalidAmount),
		errors.Is(err, vault.ErrInvalidReceiver):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, vault.ErrReentrantCall),
		errors.Is(err, vault.ErrInsufficientLiquidity):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func parseAmount(raw string) (*big.Int, error) {
	value, ok := new(big.Int).SetString(strings.TrimSpace(raw), 10)
	if !ok || value.Sign() <= 0 {
		return nil, errors.New("amount must be a positive base-10 integer")
	}
	return value, nil
}

func parseRequestID(raw string) ([32]byte, error) {
	var id [32]byte
	decoded, err := hex.DecodeString(strings.TrimSpace(raw))
	if err != nil || len(decoded) != len(id) {
		return id, errors.New("requestId must be 32 hex-encoded bytes")
	}
	copy(id[:], decoded)
	return id, nil
}
