package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog/log"

	"gexmap/config"
	"gexmap/logging"
	"gexmap/massive"
	"gexmap/schwab"
	"gexmap/web"
)

func main() {
	configPath := flag.String("config", "", "Optional YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	logging.Setup(logging.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		File:   cfg.Logging.File,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	chains := schwab.NewClient(schwab.Options{
		BaseURL:           cfg.Schwab.BaseURL,
		TokenPath:         cfg.Schwab.TokenPath,
		RequestsPerSecond: cfg.Schwab.RequestsPerSecond,
		BreakerTimeout:    cfg.Stream.ReconnectTimeout,
	})

	var candles web.CandleSource
	if cfg.Massive.APIKey != "" {
		mc, err := massive.NewClient(massive.Options{
			APIKey:            cfg.Massive.APIKey,
			BaseURL:           cfg.Massive.BaseURL,
			RequestsPerMinute: cfg.Massive.RequestsPerMinute,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create candle client")
		}
		candles = mc
	} else {
		log.Warn().Msg("MASSIVE_API_KEY not set, heat endpoints are disabled")
	}

	server := web.NewServer(cfg, chains, candles, newCache(ctx, cfg.Cache.RedisAddr), web.NewMetrics())
	if err := server.ListenAndServe(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("Server failed")
	}
}

// newCache uses Redis when an address is configured and reachable, else process memory
func newCache(ctx context.Context, addr string) web.Cache {
	if addr == "" {
		return web.NewMemoryCache()
	}

	rc := web.NewRedisCache(redis.NewClient(&redis.Options{Addr: addr}), "gexmap:")
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rc.Ping(pingCtx); err != nil {
		log.Warn().Err(err).Str("addr", addr).Msg("Redis unavailable, caching in memory")
		return web.NewMemoryCache()
	}
	log.Info().Str("addr", addr).Msg("Caching responses in Redis")
	return rc
}
