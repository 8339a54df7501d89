package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"orderflow-be/internal/analytics"
	"orderflow-be/internal/api"
	"orderflow-be/internal/auth"
	"orderflow-be/internal/changefeed"
	"orderflow-be/internal/config"
	"orderflow-be/internal/fulfillment"
	"orderflow-be/internal/logger"
	"orderflow-be/internal/menu"
	"orderflow-be/internal/metrics"
	"orderflow-be/internal/middleware"
	"orderflow-be/internal/order"
	"orderflow-be/internal/projection"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	driverLocal    = "local"
	driverNone     = "none"
	driverPostgres = "postgres"
	driverRabbit   = "rabbitmq"
	driverRedis    = "redis"
)

type app struct {
	handler http.Handler
	feed    *changefeed.Manager
	cancel  context.CancelFunc
	closers []func()
}

// Close stops background work and releases connections in reverse order.
func (a *app) Close() {
	a.cancel()
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// newApp wires the stores, services, change feed and HTTP stack. Background
// goroutines run until ctx ends or Close is called.
func newApp(parent context.Context, cfg *config.Config, database *sql.DB) (*app, error) {
	ctx, cancel := context.WithCancel(parent)
	a := &app{cancel: cancel}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	log := logger.Named("server")
	registry := metrics.Default
	loc := cfg.Location()

	a.feed = changefeed.NewManager(registry)

	var rdb *redis.Client
	if cfg.ChangeFeedDriver == driverRedis || cfg.EventsDriver == driverRedis || cfg.ReportCache == driverRedis {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		a.closers = append(a.closers, func() { _ = rdb.Close() })
	}

	var rabbit *changefeed.RabbitClient
	if cfg.ChangeFeedDriver == driverRabbit || cfg.EventsDriver == driverRabbit {
		var err error
		rabbit, err = changefeed.DialRabbit(cfg.RabbitURL, cfg.RabbitExchange)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, rabbit.Close)
	}

	var publishers changefeed.MultiPublisher
	switch cfg.ChangeFeedDriver {
	case driverLocal:
		publishers = append(publishers, a.feed)
	case driverPostgres:
		dsn := cfg.DBURL
		if dsn == "" {
			dsn = changefeed.PostgresDSN(cfg.DBHost, cfg.DBPort, cfg.DBUser, cfg.DBPassword, cfg.DBName)
		}
		a.listen(ctx, changefeed.NewPostgresSource(dsn, cfg.ChangeFeedChannel))
	case driverRabbit:
		a.listen(ctx, rabbit.Source())
	case driverRedis:
		a.listen(ctx, changefeed.NewRedisSource(rdb, cfg.ChangeFeedChannel))
	default:
		return nil, fmt.Errorf("unknown change feed driver %q", cfg.ChangeFeedDriver)
	}

	switch cfg.EventsDriver {
	case driverNone, "":
	case driverRabbit:
		p, err := rabbit.Publisher()
		if err != nil {
			return nil, err
		}
		publishers = append(publishers, p)
	case driverRedis:
		publishers = append(publishers, changefeed.NewRedisPublisher(rdb, cfg.ChangeFeedChannel))
	default:
		return nil, fmt.Errorf("unknown events driver %q", cfg.EventsDriver)
	}

	var publisher changefeed.Publisher
	if len(publishers) > 0 {
		publisher = publishers
	}

	menuRepo := menu.NewRepository(database)
	orderRepo := order.NewRepository(database)
	orderSvc := order.NewService(orderRepo, menuRepo, publisher)
	engine := fulfillment.NewEngine(orderRepo, publisher, registry)

	var cache analytics.Cache = analytics.NopCache{}
	if cfg.ReportCache == driverRedis {
		cache = analytics.NewRedisCache(rdb, "orderflow")
	}
	analyticsSvc := analytics.NewService(analytics.NewRepository(database), cache, cfg.ReportCacheTTL, loc)

	poller, err := projection.NewCronPoller()
	if err != nil {
		return nil, fmt.Errorf("start poller: %w", err)
	}
	a.closers = append(a.closers, func() {
		if err := poller.Shutdown(); err != nil {
			log.Warn("poller shutdown failed", zap.Error(err))
		}
	})

	tokens, err := auth.NewTokens(cfg.JWTSecret, cfg.TokenTTL)
	if err != nil {
		return nil, err
	}

	handler := api.NewHandler(api.Deps{
		Orders:    orderSvc,
		Items:     engine,
		Menu:      menuRepo,
		Analytics: analyticsSvc,
		Views: &projection.Factory{
			Fetcher:         orderSvc,
			Feed:            a.feed,
			Poller:          poller,
			PollInterval:    cfg.PollInterval,
			HighlightWindow: cfg.HighlightWindow,
			Registry:        registry,
		},
		Registry:      registry,
		Location:      loc,
		AllowedOrigin: cfg.CORSOrigin,
	})

	limiter := middleware.NewRateLimiter(cfg.InternalKey)
	go limiter.Cleanup(ctx, time.Minute)

	a.handler = middleware.Chain(handler.Routes(),
		logger.RequestIDMiddleware,
		logger.LoggingMiddleware,
		middleware.CORS(cfg.CORSOrigin),
		middleware.Auth(tokens),
		limiter.Middleware,
	)

	log.Info("application wired",
		zap.String("changefeed", cfg.ChangeFeedDriver),
		zap.String("events", cfg.EventsDriver),
		zap.String("report_cache", cfg.ReportCache),
	)
	ok = true
	return a, nil
}

// listen pumps src into the feed. Close waits for the pump to exit.
func (a *app) listen(ctx context.Context, src changefeed.Source) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := a.feed.Run(ctx, src); err != nil {
			logger.Named("changefeed").Error("change feed stopped", zap.Error(err))
		}
	}()
	a.closers = append(a.closers, func() { <-done })
}
