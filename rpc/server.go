package rpc

import (
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"omnivault/core"
)

// Server exposes the depositor, trigger and operator surfaces over HTTP.
type Server struct {
	node          *core.Node
	logger        *slog.Logger
	operatorToken string
}

// NewServer builds the HTTP surface for a node. The operator token guards
// the admin routes; an empty token disables them entirely.
func NewServer(node *core.Node, logger *slog.Logger, operatorToken string) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{node: node, logger: logger, operatorToken: strings.TrimSpace(operatorToken)}
}

// Handler assembles the route tree.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(s.requestID)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(v1 chi.Router) {
		v1.Post("/vault/deposits", s.handleDeposit)
		v1.Post("/vault/withdrawals", s.handleRequestWithdraw)
		v1.Post("/vault/withdrawals/complete", s.handleCompleteWithdraw)
		v1.Get("/vault/pool", s.handlePool)
		v1.Get("/vault/accounts/{address}", s.handleAccount)

		v1.Post("/rebalance/check", s.handleRebalanceCheck)
		v1.Post("/bridge/messages", s.handleInboundMessage)

		v1.Route("/admin", func(admin chi.Router) {
			admin.Use(s.requireOperator)
			admin.Post("/pause", s.handlePause)
			admin.Post("/resume", s.handleResume)
			admin.Put("/domains", s.handlePutDomain)
			admin.Post("/destinations", s.handleRefreshCatalog)
		})
	})
	return r
}

func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-Id")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", id)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requireOperator(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.operatorToken == "" {
			writeError(w, http.StatusForbidden, "operator surface disabled")
			return
		}
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(strings.TrimSpace(token)), []byte(s.operatorToken)) != 1 {
			writeError(w, http.StatusUnauthorized, "invalid operator token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
