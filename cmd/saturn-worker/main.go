package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/go-redis/redis"

	"saturn/internal/config"
	"saturn/internal/crawl"
	"saturn/internal/domain"
	"saturn/internal/fabric"
	"saturn/internal/provider/alpaca"
	"saturn/internal/provider/briefwire"
	"saturn/internal/provider/finnhub"
	"saturn/internal/ratelimit"
	"saturn/internal/store"
	"saturn/internal/util"
)

func main() {
	cfgPath := "config/saturn.yaml"
	if p := os.Getenv("SATURN_CONFIG"); p != "" {
		cfgPath = p
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	logger := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping().Err(); err != nil {
		log.Fatalf("redis unreachable at %s: %v", cfg.Redis.Addr, err)
	}

	st, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
	if err != nil {
		log.Fatalf("failed to open store: %v", err)
	}
	defer st.Close()
	if cfg.Storage.DataDir != "" {
		st.AttachArchive(store.NewCandleArchive(cfg.Storage.DataDir))
	}

	limiterStore := ratelimit.NewRedisStore(rdb)
	fh := finnhub.New(finnhub.Config{
		APIKey:  cfg.Finnhub.APIKey,
		BaseURL: cfg.Finnhub.BaseURL,
		Limiter: ratelimit.New("finnhub", limiterStore, finnhub.DefaultWindows("fh")...),
	})
	alp := alpaca.New(alpaca.Config{
		APIKey:    cfg.Alpaca.APIKey,
		APISecret: cfg.Alpaca.APISecret,
		BaseURL:   cfg.Alpaca.DataURL,
		Limiter:   ratelimit.New("alpaca", limiterStore, alpaca.DefaultWindows("alp")...),
	})
	bw := briefwire.New(briefwire.Config{
		Token:   cfg.Briefwire.Token,
		BaseURL: cfg.Briefwire.BaseURL,
		Limiter: ratelimit.New("briefwire", limiterStore, briefwire.DefaultWindows("bw")...),
	})

	// Finnhub serves everything except news, which comes from Alpaca.
	mux := crawl.NewSourceMux()
	mux.Route(fh,
		domain.SeriesCandles,
		domain.SeriesDividends,
		domain.SeriesSplits,
		domain.SeriesEarnings,
		domain.SeriesFilingSentiments,
		domain.SeriesUpgradesDowngrades,
		domain.SeriesBalanceSheets,
		domain.SeriesIncomeStatements,
		domain.SeriesCashFlows,
		domain.SeriesSimilarities,
		domain.SeriesTrends,
		domain.SeriesEPSSurprises,
		domain.SeriesEPSEstimates,
		domain.SeriesRevenueEstimates,
	)
	mux.Route(alp, domain.SeriesNews)

	queue := fabric.NewRedisQueue(rdb, fabric.Lanes)
	backfill := crawl.NewBackfill(mux, st, queue, logger)
	catchup := crawl.NewCatchUp(mux, st, logger)
	cursor := crawl.NewCursorCatchUp(bw, st, logger)

	concurrency := cfg.Worker.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		worker := fabric.NewWorker(queue, logger.With("worker", i))
		crawl.RegisterHandlers(worker, backfill, catchup, cursor)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := worker.Run(ctx); err != nil && ctx.Err() == nil {
				logger.Error("worker stopped", "err", err)
			}
		}()
	}

	logger.Info("saturn-worker started", "concurrency", concurrency)
	wg.Wait()
	logger.Info("saturn-worker stopped")
}
