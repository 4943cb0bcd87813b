package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"omnivault/config"
	"omnivault/core"
	"omnivault/crypto"
	"omnivault/native/bridge"
	"omnivault/storage"
)

type noopTransport struct{}

func (noopTransport) Send(context.Context, bridge.Message) error { return nil }

func newTestServer(t *testing.T, operatorToken string) *Server {
	t.Helper()
	cfg := &config.Config{
		LocalDomain: 1,
		Vault:       config.VaultConfig{RiskTolerance: 30},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	node, err := core.NewNode(storage.NewMemDB(), cfg, logger)
	require.NoError(t, err)
	node.SetTransport(noopTransport{})
	return NewServer(node, logger, operatorToken)
}

func doJSON(t *testing.T, handler http.Handler, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out))
}

func testBech32(b byte) string {
	return crypto.NewAddress(crypto.VaultPrefix, bytes.Repeat([]byte{b}, 20)).String()
}

func TestHealthz(t *testing.T) {
	handler := newTestServer(t, "").Handler()
	rec := doJSON(t, handler, http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ok", rec.Body.String())
	require.NotEmpty(t, rec.Header().Get("X-Request-Id"))
}

func TestDepositWithdrawFlow(t *testing.T) {
	handler := newTestServer(t, "").Handler()
	owner := testBech32(0x01)

	rec := doJSON(t, handler, http.MethodPost, "/v1/vault/deposits",
		`{"receiver":"`+owner+`","amount":"1000"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var deposit struct {
		Shares string `json:"shares"`
	}
	decodeResponse(t, rec, &deposit)
	require.Equal(t, "1000", deposit.Shares)

	rec = doJSON(t, handler, http.MethodGet, "/v1/vault/pool", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var pool struct {
		TotalAssets string `json:"totalAssets"`
		TotalShares string `json:"totalShares"`
		Reserved    string `json:"reserved"`
	}
	decodeResponse(t, rec, &pool)
	require.Equal(t, "1000", pool.TotalAssets)
	require.Equal(t, "1000", pool.TotalShares)

	rec = doJSON(t, handler, http.MethodPost, "/v1/vault/withdrawals",
		`{"owner":"`+owner+`","shares":"400"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var withdraw struct {
		RequestID string `json:"requestId"`
	}
	decodeResponse(t, rec, &withdraw)
	require.Len(t, withdraw.RequestID, 64)

	rec = doJSON(t, handler, http.MethodGet, "/v1/vault/accounts/"+owner, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var account struct {
		Shares         string `json:"shares"`
		PendingShares  string `json:"pendingShares"`
		PendingRequest string `json:"pendingRequest"`
	}
	decodeResponse(t, rec, &account)
	require.Equal(t, "600", account.Shares)
	require.Equal(t, "400", account.PendingShares)
	require.Equal(t, withdraw.RequestID, account.PendingRequest)

	rec = doJSON(t, handler, http.MethodPost, "/v1/vault/withdrawals/complete",
		`{"owner":"`+owner+`","requestId":"`+withdraw.RequestID+`"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var complete struct {
		Assets string `json:"assets"`
	}
	decodeResponse(t, rec, &complete)
	require.Equal(t, "400", complete.Assets)

	// The request is consumed; completing it again is a 404.
	rec = doJSON(t, handler, http.MethodPost, "/v1/vault/withdrawals/complete",
		`{"owner":"`+owner+`","requestId":"`+withdraw.RequestID+`"}`, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDepositValidation(t *testing.T) {
	handler := newTestServer(t, "").Handler()

	rec := doJSON(t, handler, http.MethodPost, "/v1/vault/deposits",
		`{"receiver":"garbage","amount":"1000"}`, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, handler, http.MethodPost, "/v1/vault/deposits",
		`{"receiver":"`+testBech32(0x01)+`","amount":"-5"}`, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, handler, http.MethodPost, "/v1/vault/deposits",
		`{"receiver":"`+testBech32(0x01)+`","amount":"1000","extra":true}`, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, handler, http.MethodPost, "/v1/vault/withdrawals",
		`{"owner":"`+testBech32(0x01)+`","shares":"10"}`, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRebalanceCheckHoldIsOK(t *testing.T) {
	handler := newTestServer(t, "").Handler()

	rec := doJSON(t, handler, http.MethodPost, "/v1/rebalance/check", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var check struct {
		Rebalanced bool   `json:"rebalanced"`
		Reason     string `json:"reason"`
	}
	decodeResponse(t, rec, &check)
	require.False(t, check.Rebalanced)
	require.Equal(t, "no unreserved capital", check.Reason)
}

func TestInboundMessageRejectsGarbage(t *testing.T) {
	handler := newTestServer(t, "").Handler()
	rec := doJSON(t, handler, http.MethodPost, "/v1/bridge/messages", "\x00\x01", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOperatorSurfaceDisabledWithoutToken(t *testing.T) {
	handler := newTestServer(t, "").Handler()
	rec := doJSON(t, handler, http.MethodPost, "/v1/admin/pause", "", nil)
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestOperatorAuth(t *testing.T) {
	handler := newTestServer(t, "hunter2").Handler()

	rec := doJSON(t, handler, http.MethodPost, "/v1/admin/pause", "", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(t, handler, http.MethodPost, "/v1/admin/pause", "",
		map[string]string{"Authorization": "Bearer wrong"})
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	auth := map[string]string{"Authorization": "Bearer hunter2"}
	rec = doJSON(t, handler, http.MethodPost, "/v1/admin/pause", "", auth)
	require.Equal(t, http.StatusOK, rec.Code)

	// The circuit breaker is live: depositor surface now refuses writes.
	rec = doJSON(t, handler, http.MethodPost, "/v1/vault/deposits",
		`{"receiver":"`+testBech32(0x01)+`","amount":"1000"}`, nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = doJSON(t, handler, http.MethodPost, "/v1/admin/resume", "", auth)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = doJSON(t, handler, http.MethodPost, "/v1/vault/deposits",
		`{"receiver":"`+testBech32(0x01)+`","amount":"1000"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestOperatorDomainAndCatalog(t *testing.T) {
	handler := newTestServer(t, "hunter2").Handler()
	auth := map[string]string{"Authorization": "Bearer hunter2"}
	remote := testBech32(0x22)

	rec := doJSON(t, handler, http.MethodPut, "/v1/admin/domains",
		`{"domainId":2,"remoteVault":"`+remote+`","remoteRouter":"`+remote+`","gasLimit":400000,"enabled":true}`, auth)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doJSON(t, handler, http.MethodPut, "/v1/admin/domains",
		`{"domainId":0,"remoteVault":"`+remote+`","remoteRouter":"`+remote+`"}`, auth)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, handler, http.MethodPost, "/v1/admin/destinations",
		`[{"id":"aave-v3","domain":2,"apyBps":500,"tvl":"1000000000","riskScore":20}]`, auth)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var ingested struct {
		Ingested int `json:"ingested"`
	}
	decodeResponse(t, rec, &ingested)
	require.Equal(t, 1, ingested.Ingested)

	rec = doJSON(t, handler, http.MethodPost, "/v1/admin/destinations",
		`[{"id":"x","tvl":"not-a-number"}]`, auth)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
