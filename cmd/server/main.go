package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"papertrade/internal/auth"
	"papertrade/internal/cache"
	"papertrade/internal/client/binance"
	"papertrade/internal/client/secondme"
	"papertrade/internal/config"
	cronrunner "papertrade/internal/cron"
	"papertrade/internal/db"
	"papertrade/internal/handler"
	"papertrade/internal/logger"
	gormrepository "papertrade/internal/repository/gorm"
	"papertrade/internal/trading"
)

func main() {
	cfgPath := os.Getenv("PT_CONFIG")
	if cfgPath == "" {
		cfgPath = "config/config.yaml"
	}

	envOnly := false
	if envOnlyRaw := os.Getenv("PT_ENV_ONLY"); envOnlyRaw != "" {
		envOnly = strings.EqualFold(envOnlyRaw, "true") || envOnlyRaw == "1"
	}

	cfg, err := config.Load(cfgPath, envOnly)
	if err != nil {
		panic(err)
	}

	logger, err := logger.New(cfg.Log)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	dbConn, err := db.Open(cfg.DB)
	if err != nil {
		logger.Fatal("db open failed", zap.Error(err))
	}
	defer dbConn.Close()

	if err := dbConn.SetTimezone(cfg.DB.Timezone); err != nil {
		logger.Warn("failed to set timezone", zap.Error(err))
	}
	if err := db.AutoMigrate(dbConn); err != nil {
		logger.Fatal("auto-migrate failed", zap.Error(err))
	}

	store := gormrepository.New(dbConn.Gorm)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	binanceHTTP := &http.Client{Timeout: cfg.Binance.Timeout}
	binanceClient := binance.NewClient(binanceHTTP, cfg.Binance.BaseURL)
	if cfg.Redis.Enabled {
		priceCache := cache.NewPriceCache(cfg.Redis)
		defer priceCache.Close()
		binanceClient = binanceClient.WithPriceCache(priceCache)
	}
	if cfg.Binance.StreamEnabled {
		stream := binance.NewStream(cfg.Binance.StreamURL, cfg.Binance.StreamMaxAge, logger)
		binanceClient = binanceClient.WithStream(stream)
		go stream.Run(ctx, cfg.Binance.TopSymbols)
	}

	secondmeHTTP := &http.Client{Timeout: cfg.SecondMe.Timeout}
	secondmeClient := secondme.NewClient(secondmeHTTP, cfg.SecondMe)

	sessions := auth.NewSessions(cfg.Session.JWTSecret, cfg.Session.TTL)

	executor := &trading.Executor{
		Repo:     store,
		Oracle:   binanceClient,
		Logger:   logger,
		MinSpend: decimal.NewFromFloat(cfg.Trading.MinSpend),
	}
	monitor := &trading.Monitor{Repo: store, Logger: logger}
	recorder := &trading.Recorder{Repo: store, Logger: logger}
	orchestrator := &trading.Orchestrator{
		Repo:       store,
		Oracle:     binanceClient,
		Decisions:  secondmeClient,
		Executor:   executor,
		Monitor:    monitor,
		Recorder:   recorder,
		Logger:     logger,
		Cfg:        cfg.Trading,
		TopSymbols: cfg.Binance.TopSymbols,
	}

	if strings.EqualFold(cfg.App.Env, "dev") {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(corsMiddleware())

	healthHandler := &handler.HealthHandler{DB: dbConn.Gorm}
	healthHandler.Register(engine)
	authHandler := &handler.AuthHandler{
		Repo:     store,
		SecondMe: secondmeClient,
		Sessions: sessions,
		Logger:   logger,
		Session:  cfg.Session,
		Trading:  cfg.Trading,
	}
	authHandler.Register(engine)
	profileHandler := &handler.ProfileHandler{
		Repo:     store,
		Sessions: sessions,
		Session:  cfg.Session,
	}
	profileHandler.Register(engine)
	marketHandler := &handler.MarketHandler{
		Oracle:     binanceClient,
		TopSymbols: cfg.Binance.TopSymbols,
	}
	marketHandler.Register(engine)
	portfolioHandler := &handler.PortfolioHandler{
		Repo:     store,
		Oracle:   binanceClient,
		Sessions: sessions,
		Session:  cfg.Session,
		Trading:  cfg.Trading,
	}
	portfolioHandler.Register(engine)
	tradeHandler := &handler.TradeHandler{
		Repo:     store,
		Executor: executor,
		Monitor:  monitor,
		Oracle:   binanceClient,
		Sessions: sessions,
		Session:  cfg.Session,
	}
	tradeHandler.Register(engine)
	leaderboardHandler := &handler.LeaderboardHandler{
		Repo:        store,
		Oracle:      binanceClient,
		Logger:      logger,
		InitialFund: cfg.Trading.InitialFund,
	}
	leaderboardHandler.Register(engine)
	traderHandler := &handler.TraderHandler{Repo: store, Oracle: binanceClient}
	traderHandler.Register(engine)
	cronHandler := &handler.CronHandler{
		Repo:         store,
		Orchestrator: orchestrator,
		Recorder:     recorder,
		Oracle:       binanceClient,
		Secret:       cfg.Server.CronSecret,
	}
	cronHandler.Register(engine)

	srv := &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: engine,
	}

	cronRunner := cronrunner.New(logger, ctx)
	if cfg.Cron.Enabled {
		if _, err := cronRunner.Add(cfg.Cron.TradeBatch, func(ctx context.Context) {
			if _, err := orchestrator.RunBatch(ctx); err != nil {
				logger.Warn("cron trade batch failed", zap.Error(err))
			}
		}); err != nil {
			logger.Warn("cron register trade batch failed", zap.Error(err))
		}
		if _, err := cronRunner.Add(cfg.Cron.Snapshot, func(ctx context.Context) {
			if err := snapshotAll(ctx, store, binanceClient, recorder); err != nil {
				logger.Warn("cron snapshot failed", zap.Error(err))
			}
		}); err != nil {
			logger.Warn("cron register snapshot failed", zap.Error(err))
		}
		cronRunner.Start()
		defer cronRunner.Stop()
	}

	go func() {
		logger.Info("http server listening", zap.String("addr", cfg.Server.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("http server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown failed", zap.Error(err))
	}
}

func snapshotAll(ctx context.Context, store *gormrepository.Store, oracle trading.PriceOracle, recorder *trading.Recorder) error {
	prices := map[string]decimal.Decimal{}
	held, err := store.ListHeldSymbols(ctx)
	if err != nil {
		return err
	}
	if len(held) > 0 {
		if fetched, err := oracle.GetPrices(ctx, held); err == nil {
			prices = fetched
		}
	}
	return recorder.RecordAll(ctx, prices)
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,PATCH,DELETE,OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}
