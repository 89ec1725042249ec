// Package main runs the trade engine server:
// - Ingestion (continuous): per-contract event subscriptions, dedup, ledger
// - Candles: OHLCV aggregation across all timeframes
// - Financials: snapshot computation with cache invalidation
// - Broadcast: websocket publications per entity
//
// The node-facing chain client is an external collaborator consumed through
// the chain.Client interface; the built-in stub serves dev and test runs.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"artist-shares-engine/internal/broadcast"
	"artist-shares-engine/internal/candles"
	"artist-shares-engine/internal/chain"
	"artist-shares-engine/internal/chain/stub"
	"artist-shares-engine/internal/financials"
	"artist-shares-engine/internal/ingestion"
	"artist-shares-engine/internal/observability"
	"artist-shares-engine/internal/storage"
	"artist-shares-engine/internal/storage/memory"
	"artist-shares-engine/internal/storage/migrations"
	pgstore "artist-shares-engine/internal/storage/postgres"
)

// Server holds all components of the engine.
type Server struct {
	httpAddr        string
	backfillTimeout time.Duration

	stores  *allStores
	manager *ingestion.Manager
	hub     *broadcast.Hub
	logger  *log.Logger

	mu             sync.Mutex
	started        time.Time
	backfillDone   bool
	backfillResult *ingestion.BackfillResult
}

// allStores holds all storage implementations.
type allStores struct {
	trades   storage.TradeStore
	candles  storage.CandleStore
	registry storage.ContractRegistry
}

func main() {
	// Load .env file if it exists; system env vars win.
	_ = godotenv.Load()

	httpAddr := flag.String("http-addr", envOr("HTTP_ADDR", ":8080"), "HTTP address for websocket/health/metrics endpoints")
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of PostgreSQL")
	chainMode := flag.String("chain", envOr("CHAIN_MODE", "stub"), "Chain client mode (stub)")
	backfillTimeout := flag.Duration("backfill-timeout", 60*time.Second, "Max time to wait for startup backfill before serving degraded")

	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lshortfile)

	if !*useMemory && *postgresDSN == "" {
		logger.Fatal("--postgres-dsn is required (use --use-memory for in-memory storage)")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stores, cleanup, err := createStores(ctx, *postgresDSN, *useMemory)
	if err != nil {
		logger.Fatalf("Failed to create stores: %v", err)
	}
	defer cleanup()

	chainClient, err := createChainClient(*chainMode)
	if err != nil {
		logger.Fatalf("Failed to create chain client: %v", err)
	}

	hub := broadcast.NewHub(broadcast.HubOptions{
		Logger: log.New(os.Stdout, "[broadcast] ", log.LstdFlags),
	})
	defer hub.Close()

	aggregator := candles.NewAggregator(candles.AggregatorOptions{
		CandleStore: stores.candles,
		TradeStore:  stores.trades,
	})

	computer := financials.NewComputer(financials.ComputerOptions{
		ChainClient: chainClient,
		Registry:    stores.registry,
		TradeStore:  stores.trades,
		Logger:      log.New(os.Stdout, "[financials] ", log.LstdFlags),
	})

	manager := ingestion.NewManager(ingestion.ManagerOptions{
		ChainClient: chainClient,
		TradeStore:  stores.trades,
		Registry:    stores.registry,
		Aggregator:  aggregator,
		Computer:    computer,
		Sink:        hub,
		Logger:      log.New(os.Stdout, "[ingestion] ", log.LstdFlags|log.Lshortfile),
	})

	backfiller := ingestion.NewBackfiller(ingestion.BackfillOptions{
		ChainClient: chainClient,
		TradeStore:  stores.trades,
		Registry:    stores.registry,
		Aggregator:  aggregator,
		Logger:      log.New(os.Stdout, "[backfill] ", log.LstdFlags),
	})

	server := &Server{
		httpAddr:        *httpAddr,
		backfillTimeout: *backfillTimeout,
		stores:          stores,
		manager:         manager,
		hub:             hub,
		logger:          logger,
		started:         time.Now(),
	}

	done := make(chan error, 1)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, initiating graceful shutdown...", sig)
		cancel()

		select {
		case sig := <-sigCh:
			logger.Printf("Received second signal %v, forcing immediate shutdown", sig)
			os.Exit(1)
		case <-time.After(30 * time.Second):
			logger.Println("Graceful shutdown timed out after 30s, forcing exit")
			os.Exit(1)
		case <-done:
			// Normal shutdown completed
		}
	}()

	go server.startHTTPServer()

	err = server.Run(ctx, backfiller)
	done <- err

	manager.Wait()

	if err != nil && err != context.Canceled {
		logger.Fatalf("Server error: %v", err)
	}

	logger.Println("Shutdown complete")
}

// Run performs the bounded startup backfill, seeds subscriptions for every
// registered contract, and blocks until shutdown.
func (s *Server) Run(ctx context.Context, backfiller *ingestion.Backfiller) error {
	// Backfill runs in its own goroutine; the server waits up to the
	// configured timeout, then continues serving with whatever landed.
	backfillCh := make(chan *ingestion.BackfillResult, 1)
	go func() {
		result, err := backfiller.Run(ctx)
		if err != nil && err != context.Canceled {
			s.logger.Printf("Backfill error: %v", err)
		}
		backfillCh <- result
	}()

	select {
	case result := <-backfillCh:
		s.mu.Lock()
		s.backfillDone = true
		s.backfillResult = result
		s.mu.Unlock()
	case <-time.After(s.backfillTimeout):
		s.logger.Printf("Backfill still running after %v, continuing startup", s.backfillTimeout)
		go func() {
			result := <-backfillCh
			s.mu.Lock()
			s.backfillDone = true
			s.backfillResult = result
			s.mu.Unlock()
		}()
	case <-ctx.Done():
		return ctx.Err()
	}

	subscribed, err := s.manager.SubscribeAll(ctx)
	if err != nil {
		return fmt.Errorf("subscribe contracts: %w", err)
	}
	s.logger.Printf("Serving: %d contract subscriptions live", subscribed)

	<-ctx.Done()
	return ctx.Err()
}

// createStores creates all required stores.
func createStores(ctx context.Context, postgresDSN string, useMemory bool) (*allStores, func(), error) {
	if useMemory {
		stores := &allStores{
			trades:   memory.NewTradeStore(),
			candles:  memory.NewCandleStore(),
			registry: memory.NewContractRegistry(),
		}
		return stores, func() {}, nil
	}

	pool, err := pgstore.NewPool(ctx, postgresDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("run migrations: %w", err)
	}

	stores := &allStores{
		trades:   pgstore.NewTradeStore(pool),
		candles:  pgstore.NewCandleStore(pool),
		registry: pgstore.NewContractRegistry(pool),
	}

	return stores, pool.Close, nil
}

// createChainClient resolves the chain client mode. Production deployments
// inject a real node client behind chain.Client; the stub covers dev runs.
func createChainClient(mode string) (chain.Client, error) {
	switch mode {
	case "stub":
		return stub.NewClient(), nil
	default:
		return nil, fmt.Errorf("unknown chain mode %q (external node client required)", mode)
	}
}

// startHTTPServer starts the HTTP server for websocket/health/metrics/status.
func (s *Server) startHTTPServer() {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	mux.Handle("/metrics", observability.Handler())
	mux.Handle("/ws", s.hub)
	mux.HandleFunc("/status", s.handleStatus)

	s.logger.Printf("Starting HTTP server on %s", s.httpAddr)
	if err := http.ListenAndServe(s.httpAddr, mux); err != nil && err != http.ErrServerClosed {
		s.logger.Printf("HTTP server error: %v", err)
	}
}

// StatusResponse is the JSON response for the /status endpoint.
type StatusResponse struct {
	Status           string `json:"status"`
	Uptime           string `json:"uptime"`
	BackfillDone     bool   `json:"backfill_done"`
	BackfillTrades   int    `json:"backfill_trades,omitempty"`
	BackfillErrors   int    `json:"backfill_errors,omitempty"`
	ConnectedClients int    `json:"connected_clients"`
}

// handleStatus returns server status as JSON.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	resp := StatusResponse{
		Status:       "running",
		Uptime:       time.Since(s.started).String(),
		BackfillDone: s.backfillDone,
	}
	if s.backfillResult != nil {
		resp.BackfillTrades = s.backfillResult.TradesIngested
		resp.BackfillErrors = s.backfillResult.Errors
	}
	s.mu.Unlock()

	resp.ConnectedClients = s.hub.ClientCount()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
