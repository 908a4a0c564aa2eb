// Command watcher runs the copy-trading agent: it tails exchange logs for the
// watched wallets, routes their trades through the copy engine and serves the
// control API.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/AzrielTheHellrazor/polymarket-agent/api"
	"github.com/AzrielTheHellrazor/polymarket-agent/config"
	"github.com/AzrielTheHellrazor/polymarket-agent/handlers"
	"github.com/AzrielTheHellrazor/polymarket-agent/middleware"
	"github.com/AzrielTheHellrazor/polymarket-agent/storage"
	"github.com/AzrielTheHellrazor/polymarket-agent/syncer"
)

func main() {
	_ = godotenv.Load()

	var (
		configPath = flag.String("config", os.Getenv("CONFIG_PATH"), "path to yaml config")
		fromBlock  = flag.Uint64("from", 0, "backfill start block (0 = head minus lookback)")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("[Main] config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("[Main] config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	chain, err := api.DialChain(ctx, cfg.Chain.RPCURL)
	if err != nil {
		log.Fatalf("[Main] chain dial: %v", err)
	}

	var heads *api.BlockHeadsClient
	if cfg.Chain.WSURL != "" {
		heads = api.NewBlockHeadsClient(cfg.Chain.WSURL, nil)
	}

	market := api.NewMarketClient(cfg.Metadata.ClobURL, cfg.Metadata.DataAPIURL)
	gamma := api.NewGammaClient(cfg.Metadata.GammaURL)
	executor := api.NewExecutorClient(cfg.Executor.URL, cfg.Executor.Timeout)
	cache := syncer.NewMetadataCache(market, gamma, cfg.Metadata.TTL)

	var audit storage.TradeLog
	if os.Getenv("DATABASE_URL") != "" {
		pg, err := storage.NewPostgres(ctx)
		if err != nil {
			log.Printf("[Main] postgres unavailable, running without audit log: %v", err)
		} else {
			audit = pg
			defer pg.Close()
		}
	}

	openingBalance := 0.0
	if cfg.Copy.WalletAddress != "" {
		if bal, err := market.GetBalance(ctx, cfg.Copy.WalletAddress); err == nil {
			openingBalance = bal
			log.Printf("[Main] opening balance %.2f", bal)
		} else {
			log.Printf("[Main] balance lookup failed, starting at 0: %v", err)
		}
	}
	book := syncer.NewPositionBook(openingBalance)

	engine, err := syncer.NewEngine(cfg.Copy, market, cache, executor, book, audit)
	if err != nil {
		log.Fatalf("[Main] engine: %v", err)
	}

	scanner, err := syncer.NewBlockLogScanner(chain, heads, syncer.ScannerConfig{
		ExchangeContracts: cfg.Chain.ExchangeContracts,
		TransferContracts: cfg.Chain.TransferContracts,
		WindowBlocks:      cfg.Chain.WindowBlocks,
		LookbackBlocks:    cfg.Chain.LookbackBlocks,
		PollInterval:      cfg.Chain.PollInterval,
	})
	if err != nil {
		log.Fatalf("[Main] scanner: %v", err)
	}

	router := syncer.NewRouter(scanner, engine, audit)
	for _, w := range cfg.Wallets {
		if err := router.SetWallet(w); err != nil {
			log.Printf("[Main] skipping wallet %s: %v", w.Address, err)
		}
	}

	if err := router.Start(ctx, *fromBlock); err != nil {
		log.Fatalf("[Main] start: %v", err)
	}

	if cfg.Metrics.RedisAddr != "" {
		store, err := syncer.NewMetricsStore(ctx, cfg.Metrics.RedisAddr)
		if err != nil {
			log.Printf("[Main] redis unavailable, metrics publishing disabled: %v", err)
		} else {
			defer store.Close()
			go store.PublishLoop(ctx, cfg.Metrics.PublishInterval, func() syncer.MetricsSnapshot {
				hits, misses, _ := cache.Stats()
				day := book.Day()
				return syncer.MetricsSnapshot{
					Scanner:       scanner.Metrics(),
					Router:        router.Metrics(),
					Engine:        engine.Metrics(),
					CacheHits:     hits,
					CacheMisses:   misses,
					OpenPositions: len(book.Positions()),
					DayBalance:    day.Balance,
					DayLoss:       day.Loss,
					DayProfit:     day.Profit,
				}
			})
		}
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	h := handlers.New(scanner, router, engine, cache, audit)
	h.RegisterRoutes(r, middleware.BasicAuth(cfg.Server.AuthUser, cfg.Server.AuthPass))

	srv := &http.Server{Addr: cfg.Server.Addr, Handler: r}
	go func() {
		log.Printf("[Main] control API listening on %s", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("[Main] http server: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Printf("[Main] shutting down")

	router.Stop()
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = srv.Shutdown(shutdownCtx)
}
