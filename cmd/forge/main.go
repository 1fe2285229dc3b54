package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"forge/internal/api"
	"forge/internal/config"
	"forge/internal/domain"
	"forge/internal/engine"
	"forge/internal/feed"
	"forge/internal/ingest"
)

func main() {
	// Configure zerolog
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	// Set log level
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	log.Info().
		Str("port", cfg.HTTPPort).
		Str("environment", cfg.Environment).
		Str("feed", cfg.FeedSource).
		Strs("symbols", cfg.Symbols).
		Float64("initial_balance", cfg.InitialBalance).
		Msg("starting forge paper-trading engine")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Signal handling
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Connect to NATS when it is needed as a tick source or event sink
	var nc *nats.Conn
	if cfg.FeedSource == "nats" || cfg.PublishEvents {
		nc, err = ingest.ConnectNATS(cfg.NATSURLs, cfg.NATSCredsFile, cfg.NATSCreds)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to NATS")
		}
		defer nc.Close()
		log.Info().Str("url", nc.ConnectedUrl()).Msg("connected to NATS")
	}

	var notifier engine.Notifier
	if cfg.PublishEvents {
		notifier = ingest.NewPublisher(nc)
	}

	// Create the trading session
	session := engine.NewSession(engine.Config{
		InitialBalance:                cfg.InitialBalance,
		FeeRate:                       cfg.FeeRate,
		MaintenanceMarginRate:         cfg.MaintenanceMarginRate,
		MaxDrawdown:                   cfg.MaxDrawdown,
		MaxLeverage:                   cfg.MaxLeverage,
		ConversionRate:                cfg.ConversionRate,
		RecomputeLiquidationOnAverage: cfg.RecomputeLiqOnAverage,
	}, notifier)

	// Start the price feed
	if cfg.FeedSource == "nats" {
		consumer := ingest.NewConsumer(nc, session)
		go func() {
			if err := consumer.Start(ctx); err != nil {
				log.Error().Err(err).Msg("NATS tick consumer error")
			}
		}()
	} else {
		stream := feed.NewStream(cfg.BinanceWSURL, cfg.Symbols, func(tick domain.PriceTick) {
			session.ProcessTick(tick)
		})
		go func() {
			if err := stream.Run(ctx); err != nil && ctx.Err() == nil {
				log.Error().Err(err).Msg("price stream error")
			}
		}()
	}

	// Start HTTP server
	srv := api.NewServer(session, nc)
	httpServer := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: srv.Router(),
	}

	go func() {
		log.Info().Str("port", cfg.HTTPPort).Msg("starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server error")
		}
	}()

	// Wait for shutdown signal
	<-sigChan
	log.Info().Msg("shutting down...")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	log.Info().Msg("shutdown complete")
}
