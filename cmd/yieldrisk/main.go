// cmd/yieldrisk/main.go
//
// yieldrisk runs the YieldRisk agent node: the escrow ledger, identity,
// reputation and validation registries, the SQLite protocol/report store,
// the LLM analysis worker, and the HTTP API.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/aegis-agents/yieldrisk/internal/analysis"
	"github.com/aegis-agents/yieldrisk/internal/bank"
	"github.com/aegis-agents/yieldrisk/internal/escrow"
	"github.com/aegis-agents/yieldrisk/internal/events"
	"github.com/aegis-agents/yieldrisk/internal/registry"
	"github.com/aegis-agents/yieldrisk/internal/reputation"
	"github.com/aegis-agents/yieldrisk/internal/server"
	"github.com/aegis-agents/yieldrisk/internal/storage"
	"github.com/aegis-agents/yieldrisk/internal/wallet"
)

func main() {
	port := envOr("PORT", "8080")
	dataDir := envOr("YIELDRISK_DATA_DIR", "data")
	keystorePath := envOr("YIELDRISK_KEYSTORE", filepath.Join(dataDir, "keystore.json"))

	password := os.Getenv("YIELDRISK_PASSWORD")
	if password == "" {
		log.Fatal("YIELDRISK_PASSWORD environment variable is required")
	}

	llmBaseURL := os.Getenv("LLM_BASE_URL")
	llmModel := os.Getenv("LLM_MODEL")
	if llmBaseURL == "" || llmModel == "" {
		log.Fatal("LLM_BASE_URL and LLM_MODEL environment variables are required")
	}

	fee, ok := new(big.Int).SetString(envOr("SERVICE_FEE_WEI", "1000000000000000"), 10)
	if !ok {
		log.Fatal("SERVICE_FEE_WEI is not a valid decimal wei amount")
	}
	timeoutSecs, err := strconv.ParseInt(envOr("ESCROW_TIMEOUT_SECONDS", "86400"), 10, 64)
	if err != nil {
		log.Fatalf("ESCROW_TIMEOUT_SECONDS: %v", err)
	}
	chainID, ok := new(big.Int).SetString(envOr("CHAIN_ID", "31337"), 10)
	if !ok {
		log.Fatal("CHAIN_ID is not a valid decimal integer")
	}
	registryAddrHex := envOr("IDENTITY_REGISTRY_ADDR", "0x5FbDB2315678afecb367f032d93F642f64180aa3")
	if !common.IsHexAddress(registryAddrHex) {
		log.Fatal("IDENTITY_REGISTRY_ADDR is not a valid address")
	}

	if err := os.MkdirAll(dataDir, 0700); err != nil {
		log.Fatalf("Failed to create data dir: %v", err)
	}

	w, err := loadOrCreateWallet(keystorePath, password)
	if err != nil {
		log.Fatalf("Failed to open wallet: %v", err)
	}
	log.Printf("Agent owner address: %s", w.Address.Hex())

	db, err := storage.NewDB(filepath.Join(dataDir, "yieldrisk.db"))
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	feed := events.NewFeed()
	ledger := bank.New()

	identity := registry.NewIdentityRegistry()
	agentID := identity.Register(w.Address, envOr("AGENT_METADATA_URI", ""))

	verifier := reputation.NewAuthVerifier(chainID, common.HexToAddress(registryAddrHex), identity)
	rep := reputation.NewRegistry(identity, verifier, feed)
	validation := registry.NewValidationRegistry(identity, feed)

	core, err := escrow.New(agentID, identity, rep, ledger, feed, escrow.Config{
		ServiceFee:    fee,
		EscrowTimeout: time.Duration(timeoutSecs) * time.Second,
	})
	if err != nil {
		log.Fatalf("Failed to create escrow service: %v", err)
	}

	analyzer, err := analysis.NewAnalyzer(analysis.Config{
		BaseURL: llmBaseURL,
		APIKey:  os.Getenv("LLM_API_KEY"),
		Model:   llmModel,
	}, nil)
	if err != nil {
		log.Fatalf("Failed to create analyzer: %v", err)
	}
	if err := analyzer.TestConnection(context.Background()); err != nil {
		log.Printf("WARNING: LLM connection test failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv := server.New(server.Deps{
		DB:         db,
		Core:       core,
		Identity:   identity,
		Validation: validation,
		Reputation: rep,
		Bank:       ledger,
		Feed:       feed,
	})
	worker := server.NewWorker(db, core, analyzer, w.Address, feed)
	go worker.Run(ctx)

	httpSrv := &http.Server{Addr: ":" + port, Handler: srv}

	// Graceful shutdown on SIGINT/SIGTERM.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("Shutting down...")
		cancel()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		httpSrv.Shutdown(shutdownCtx)
	}()

	fmt.Printf("YieldRisk agent %d running on http://localhost:%s\n", agentID, port)
	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal(err)
	}
}

// loadOrCreateWallet opens the keystore, generating a fresh key on first run.
func loadOrCreateWallet(path, password string) (*wallet.Wallet, error) {
	if _, err := os.Stat(path); err == nil {
		return wallet.Load(path, password)
	}
	w, err := wallet.New()
	if err != nil {
		return nil, err
	}
	if err := w.Save(path, password, time.Now().Unix()); err != nil {
		return nil, err
	}
	log.Printf("Generated new keystore at %s", path)
	return w, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
