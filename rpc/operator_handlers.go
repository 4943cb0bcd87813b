package rpc

import (
	"math/big"
	"net/http"
	"strings"

	"omnivault/crypto"
	"omnivault/native/bridge"
	"omnivault/native/strategy"
)

func (s *Server) handlePause(w http.ResponseWriter, _ *http.Request) {
	s.node.Pause()
	writeJSON(w, http.StatusOK, map[string]string{"status": "paused"})
}

func (s *Server) handleResume(w http.ResponseWriter, _ *http.Request) {
	s.node.Resume()
	writeJSON(w, http.StatusOK, map[string]string{"status": "resumed"})
}

type domainRequest struct {
	DomainID     uint64 `json:"domainId"`
	RemoteVault  string `json:"remoteVault"`
	RemoteRouter string `json:"remoteRouter"`
	GasLimit     uint64 `json:"gasLimit"`
	Enabled      bool   `json:"enabled"`
}

func (s *Server) handlePutDomain(w http.ResponseWriter, r *http.Request) {
	var req domainRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.DomainID == 0 {
		writeError(w, http.StatusBadRequest, "domainId must be non-zero")
		return
	}
	cfg := bridge.DomainConfig{
		DomainID: req.DomainID,
		GasLimit: req.GasLimit,
		Enabled:  req.Enabled,
	}
	vaultAddr, err := crypto.DecodeAddress(strings.TrimSpace(req.RemoteVault))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid remoteVault address")
		return
	}
	routerAddr, err := crypto.DecodeAddress(strings.TrimSpace(req.RemoteRouter))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid remoteRouter address")
		return
	}
	copy(cfg.RemoteVault[:], vaultAddr.Bytes())
	copy(cfg.RemoteRouter[:], routerAddr.Bytes())

	if err := s.node.ConfigureDomain(cfg); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "configured"})
}

type destinationEntry struct {
	ID        string `json:"id"`
	Domain    uint64 `json:"domain"`
	APYBps    uint32 `json:"apyBps"`
	TVL       string `json:"tvl"`
	RiskScore uint8  `json:"riskScore"`
}

func (s *Server) handleRefreshCatalog(w http.ResponseWriter, r *http.Request) {
	var entries []destinationEntry
	if err := decodeBody(r, &entries); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	list := make([]strategy.Destination, 0, len(entries))
	for _, entry := range entries {
		tvl := new(big.Int)
		if raw := strings.TrimSpace(entry.TVL); raw != "" {
			parsed, ok := new(big.Int).SetString(raw, 10)
			if !ok || parsed.Sign() < 0 {
				writeError(w, http.StatusBadRequest, "tvl must be a non-negative base-10 integer")
				return
			}
			tvl = parsed
		}
		list = append(list, strategy.Destination{
			ID:        entry.ID,
			Domain:    entry.Domain,
			APYBps:    entry.APYBps,
			TVL:       tvl,
			RiskScore: entry.RiskScore,
		})
	}
	s.node.RefreshCatalog(list)
	writeJSON(w, http.StatusOK, map[string]int{"ingested": len(list)})
}
