package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"RosterMail/internal/api"
	"RosterMail/internal/config"
	"RosterMail/internal/dispatch"
	"RosterMail/internal/draft"
	"RosterMail/internal/ledger"
	"RosterMail/internal/metrics"
	"RosterMail/internal/transport"
)

func main() {

	// ------------------------------------------------
	// Logger
	// ------------------------------------------------
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	// ------------------------------------------------
	// Config
	// ------------------------------------------------
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	// ------------------------------------------------
	// Root Context + Shutdown
	// ------------------------------------------------
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logger.Info("shutdown signal received", zap.String("signal", sig.String()))
		cancel()
	}()

	// ------------------------------------------------
	// Ledger
	// ------------------------------------------------
	var campaignLedger ledger.Ledger
	if cfg.DatabaseURL != "" {
		pg, err := ledger.NewPG(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("database connection failed", zap.Error(err))
		}
		defer pg.Close()
		campaignLedger = pg
	} else {
		logger.Warn("DATABASE_URL not set, campaigns will not survive restarts")
		campaignLedger = ledger.NewMemory()
	}

	// ------------------------------------------------
	// Metrics
	// ------------------------------------------------
	metrics.Init()

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())

	metricsServer := &http.Server{
		Addr:    ":" + cfg.MetricsPort,
		Handler: metricsMux,
	}

	go func() {
		logger.Info("metrics server started", zap.String("port", cfg.MetricsPort))
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("metrics server error", zap.Error(err))
		}
	}()

	// ------------------------------------------------
	// Transport + Credentials
	// ------------------------------------------------
	var (
		mailTransport transport.Transport
		tokens        transport.TokenProvider
	)
	if cfg.MailAPIBase != "" {
		oauth := transport.NewOAuth(cfg.TokenEndpoint, cfg.ClientID, cfg.ClientSecret, cfg.RefreshToken, logger)
		mailTransport = transport.NewAPI(cfg.MailAPIBase, oauth, logger)
		tokens = oauth
	} else {
		mailTransport = &transport.SMTP{
			Host: cfg.SMTPHost,
			Port: cfg.SMTPPort,
			User: cfg.SMTPUser,
			Pass: cfg.SMTPPassword,
			From: cfg.SMTPFrom,
		}
		tokens = &transport.Static{}
	}

	// ------------------------------------------------
	// Dispatch Engine
	// ------------------------------------------------
	engine := dispatch.New(campaignLedger, mailTransport, tokens, logger)
	engine.Interval = cfg.SendInterval
	engine.TrackingBase = cfg.TrackingBase
	engine.DatasetID = cfg.DatasetID
	engine.FixedCc = cfg.FixedCcEmail

	// ------------------------------------------------
	// Draft Store
	// ------------------------------------------------
	blobs, err := draft.NewFileBlobStore(cfg.DraftDir)
	if err != nil {
		logger.Fatal("draft store init failed", zap.Error(err))
	}
	drafts := draft.NewStore(blobs, cfg.DraftKey, cfg.DraftInterval, logger)

	// ------------------------------------------------
	// HTTP API Server
	// ------------------------------------------------
	apiHandler := &api.Handler{
		Ledger: campaignLedger,
		Engine: engine,
		Drafts: drafts,
		Log:    logger,
	}

	apiMux := http.NewServeMux()
	apiHandler.Register(apiMux)

	apiServer := &http.Server{
		Addr:    ":" + cfg.APIPort,
		Handler: apiMux,
	}

	go func() {
		logger.Info("api server started", zap.String("port", cfg.APIPort))
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("api server error", zap.Error(err))
		}
	}()

	// ------------------------------------------------
	// Wait for shutdown
	// ------------------------------------------------
	<-ctx.Done()

	logger.Info("shutting down services...")

	// Flush any pending draft snapshot before exit
	if err := drafts.Flush(); err != nil {
		logger.Error("draft flush failed", zap.Error(err))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("api shutdown failed", zap.Error(err))
	}

	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics shutdown failed", zap.Error(err))
	}

	logger.Info("application shutdown complete")
}
