package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"pingpay/internal/api"
	"pingpay/internal/chain"
	"pingpay/internal/config"
	"pingpay/internal/custodian"
	"pingpay/internal/database"
	"pingpay/internal/emitters"
	"pingpay/internal/events"
	"pingpay/internal/health"
	"pingpay/internal/interpreter"
	"pingpay/internal/lifecycle"
	"pingpay/internal/logger"
	"pingpay/internal/notify"
)

func main() {
	cfg := config.Load()
	logger.Init(cfg.LogLevel)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	store, err := database.NewStore(cfg.Database)
	if err != nil {
		logger.GetLogger().Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer store.Close()

	if err := store.Migrate(cfg.Database.DBName); err != nil {
		logger.GetLogger().Fatal().Err(err).Msg("Failed to run migrations")
	}

	chainClient, err := chain.Dial(ctx, cfg.Chain, logger.Component("chain"))
	if err != nil {
		logger.GetLogger().Fatal().Err(err).Msg("Failed to connect to chain RPC")
	}

	wallets := custodian.New(store, chainClient, logger.Component("custodian"))

	var notifier notify.Notifier = notify.Nop{}
	if cfg.Telegram.BotToken != "" {
		telegram := notify.NewTelegram(cfg.Telegram, store, logger.Component("telegram"))
		go telegram.Run(ctx)
		notifier = telegram
	} else {
		logger.GetLogger().Warn().Msg("Telegram bot token not configured, notifications disabled")
	}

	emitter := &events.LogEmitter{Logger: logger.Component("events")}
	if cfg.Kafka.Enabled {
		kafkaEmitter := emitters.NewKafkaEmitter(cfg.Kafka.BrokerAddress, cfg.Kafka.Topic)
		defer kafkaEmitter.Close()
		emitter.Wrapped = kafkaEmitter
	}

	manager := lifecycle.NewManager(store, wallets, chainClient, notifier, emitter, logger.Component("lifecycle"))

	health.Watch(ctx, chainClient.Head, store.Ping)
	health.SetReady(true)

	server := &http.Server{
		Addr:         cfg.HTTP.ListenAddr,
		Handler:      api.NewServer(manager, interpreter.NewRegexParser(), logger.Component("api")).Handler(),
		ReadTimeout:  cfg.HTTP.Timeout,
		WriteTimeout: cfg.HTTP.Timeout,
	}

	go func() {
		logger.GetLogger().Info().Str("addr", cfg.HTTP.ListenAddr).Msg("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.GetLogger().Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	<-ctx.Done()
	health.SetReady(false)
	logger.GetLogger().Info().Msg("Shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.HTTP.Timeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.GetLogger().Error().Err(err).Msg("HTTP server shutdown failed")
	}
}
