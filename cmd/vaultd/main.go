package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"omnivault/config"
	"omnivault/core"
	"omnivault/native/bridge"
	"omnivault/observability/logging"
	"omnivault/rpc"
	"omnivault/storage"
)

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("OMNIVAULT_ENV"))

	cfg, err := config.Load(*configFile)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	logger := logging.SetupWithFile("vaultd", env, cfg.LogFile)

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		panic(fmt.Sprintf("Failed to open database: %v", err))
	}
	defer db.Close()

	node, err := core.NewNode(db, cfg, logger)
	if err != nil {
		logger.Error("Failed to assemble node", slog.Any("error", err))
		os.Exit(1)
	}
	node.SetTransport(newTransport(cfg.RelayURL, logger))

	server := &http.Server{
		Addr:              cfg.RPCAddress,
		Handler:           rpc.NewServer(node, logger, cfg.OperatorToken).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("rpc listening", slog.String("address", cfg.RPCAddress), slog.Uint64("domain", cfg.LocalDomain))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("rpc server stopped", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown incomplete", slog.Any("error", err))
	}
	logger.Info("vaultd stopped")
}

func newTransport(relayURL string, logger *slog.Logger) bridge.Transport {
	relayURL = strings.TrimSpace(relayURL)
	if relayURL == "" {
		return dropTransport{logger: logger}
	}
	return &httpRelay{
		url:    relayURL,
		client: &http.Client{Timeout: 30 * time.Second},
		logger: logger,
	}
}

// httpRelay hands envelopes to an external relay endpoint. Delivery beyond
// the hand-off, including retries, is the relay's responsibility.
type httpRelay struct {
	url    string
	client *http.Client
	logger *slog.Logger
}

func (t *httpRelay) Send(ctx context.Context, msg bridge.Message) error {
	raw, err := bridge.EncodeMessage(msg)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("relay rejected message: %s", resp.Status)
	}
	return nil
}

// dropTransport logs outbound envelopes and drops them. Useful for a single
// domain deployment with no relay configured.
type dropTransport struct {
	logger *slog.Logger
}

func (t dropTransport) Send(_ context.Context, msg bridge.Message) error {
	t.logger.Warn("no relay configured, outbound message dropped",
		slog.Uint64("destDomain", msg.DestDomain),
		slog.Uint64("nonce", msg.Nonce))
	return nil
}
