package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"ledgerbot/internal/amqp"
	"ledgerbot/internal/bot"
	"ledgerbot/internal/chitchat"
	"ledgerbot/internal/clock"
	"ledgerbot/internal/config"
	apphttp "ledgerbot/internal/http"
	"ledgerbot/internal/line"
	"ledgerbot/internal/scheduler"
	"ledgerbot/internal/storage"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	logger.Info("Starting ledgerbot")

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}
	if cfg.LineChannelSecret == "" || cfg.LineChannelToken == "" {
		logger.Error("LINE_CHANNEL_SECRET and LINE_CHANNEL_ACCESS_TOKEN are required")
		os.Exit(1)
	}

	store, err := storage.Open(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to open database", "error", err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer store.Close()

	clk, err := clock.New(cfg.Timezone)
	if err != nil {
		logger.Error("Failed to load timezone", "error", err, "timezone", cfg.Timezone)
		os.Exit(1)
	}

	// The AMQP bus is optional; without it expenses are only mirrored by the
	// worker's periodic scan.
	var events bot.EventPublisher
	if cfg.AMQPURL != "" {
		amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", "error", err)
			os.Exit(1)
		}
		defer amqpClient.Close()
		events = amqpClient
		logger.Info("AMQP mirror bus connected", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
	} else {
		logger.Info("AMQP disabled - no AMQP_URL provided")
	}

	lineClient := line.NewClient(line.Config{ChannelToken: cfg.LineChannelToken})
	botSvc := bot.NewService(store, clk, events)
	chatSvc := chitchat.New(store, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reminder := scheduler.NewReminder(store, lineClient, clk, cfg.ReminderHour, cfg.ReminderMinute, cfg.NotifyTimeout)
	reminder.Start(ctx)
	defer reminder.Stop()

	srv := apphttp.NewServer(":"+cfg.Port, cfg.LineChannelSecret, botSvc, chatSvc, lineClient)
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		cancel()
	}()

	logger.Info("Starting webhook server", "port", cfg.Port,
		"reminder_hour", cfg.ReminderHour, "timezone", cfg.Timezone)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}

	<-ctx.Done()
	logger.Info("Server stopped gracefully")
}
