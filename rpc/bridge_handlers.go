package rpc

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"omnivault/native/bridge"
)

type rebalanceCheckResponse struct {
	Rebalanced  bool   `json:"rebalanced"`
	Reason      string `json:"reason,omitempty"`
	Destination string `json:"destination,omitempty"`
	Amount      string `json:"amount,omitempty"`
	Confidence  uint8  `json:"confidence,omitempty"`
	MessageID   string `json:"messageId,omitempty"`
}

// handleRebalanceCheck serves the external automation trigger. "Not worth
// it" is a normal 200 response, never an error.
func (s *Server) handleRebalanceCheck(w http.ResponseWriter, r *http.Request) {
	result, err := s.node.CheckRebalance(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	resp := rebalanceCheckResponse{
		Rebalanced: result.Rebalanced,
		Reason:     result.Reason,
	}
	if result.Plan.Destination != "" {
		resp.Destination = result.Plan.Destination
		resp.Confidence = result.Plan.Confidence
		if result.Plan.Amount != nil {
			resp.Amount = result.Plan.Amount.String()
		}
	}
	var zero [32]byte
	if result.MessageID != zero {
		resp.MessageID = hex.EncodeToString(result.MessageID[:])
	}
	writeJSON(w, http.StatusOK, resp)
}

type inboundMessageResponse struct {
	Applied bool `json:"applied"`
}

// handleInboundMessage accepts an RLP-encoded cross-domain envelope from the
// relay. Duplicate deliveries are silent no-ops reporting applied=false.
func (s *Server) handleInboundMessage(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable message body")
		return
	}
	msg, err := bridge.DecodeMessage(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	applied, err := s.node.ReceiveMessage(r.Context(), msg)
	if err != nil {
		writeBridgeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, inboundMessageResponse{Applied: applied})
}

func writeBridgeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, bridge.ErrUntrustedSender):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, bridge.ErrWrongDestination),
		errors.Is(err, bridge.ErrUnsupportedDomain),
		errors.Is(err, bridge.ErrMessageIDMismatch):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func decodeBody(r *http.Request, out interface{}) error {
	defer r.Body.Close()
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return errors.New("invalid request body")
	}
	return nil
}
