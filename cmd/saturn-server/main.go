package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-redis/redis"

	"saturn/internal/api"
	"saturn/internal/config"
	"saturn/internal/fabric"
	"saturn/internal/provider/alpaca"
	"saturn/internal/provider/briefwire"
	"saturn/internal/provider/finnhub"
	"saturn/internal/ratelimit"
	"saturn/internal/register"
	"saturn/internal/scheduler"
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

	limiterStore := ratelimit.NewRedisStore(rdb)
	fhLimiter := ratelimit.New("finnhub", limiterStore, finnhub.DefaultWindows("fh")...)
	alpLimiter := ratelimit.New("alpaca", limiterStore, alpaca.DefaultWindows("alp")...)
	bwLimiter := ratelimit.New("briefwire", limiterStore, briefwire.DefaultWindows("bw")...)

	fh := finnhub.New(finnhub.Config{
		APIKey:  cfg.Finnhub.APIKey,
		BaseURL: cfg.Finnhub.BaseURL,
		Limiter: fhLimiter,
	})

	queue := fabric.NewRedisQueue(rdb, fabric.Lanes)
	registrar := register.New(fh, st, queue)
	sched := scheduler.New(st, queue, briefwire.Feeds)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := api.NewServer(addr, registrar, st, fhLimiter, alpLimiter, bwLimiter)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := sched.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error("scheduler stopped", "err", err)
			stop()
		}
	}()

	if err := server.ListenAndServe(ctx); err != nil {
		log.Fatalf("server failed: %v", err)
	}
	logger.Info("saturn-server stopped")
}
