package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"finance-sync/pkg/app"
	"finance-sync/pkg/config"
	"finance-sync/pkg/logging"

	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	envFile := flag.String("env", ".env", "dotenv file loaded before the environment")
	once := flag.Bool("once", false, "sync once, print a summary and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath, *envFile)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()
	logging.SetGlobal(logger)

	a, err := app.New(cfg, app.Options{})
	if err != nil {
		logger.Fatal("Failed to build app", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.Start(ctx); err != nil {
		a.Close()
		logger.Fatal("Failed to start", zap.Error(err))
	}

	readyCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	if err := a.Session.WaitReady(readyCtx); err != nil {
		logger.Warn("session not ready", zap.Error(err))
	}
	cancel()

	if email := os.Getenv("FINSYNC_EMAIL"); email != "" && a.Session.User() == nil {
		if err := a.Session.Login(ctx, email, os.Getenv("FINSYNC_PASSWORD")); err != nil {
			logger.Error("login failed", zap.String("email", email), zap.Error(err))
		}
	}

	logger.Info("finance sync started",
		zap.String("api", cfg.API.BaseURL),
		zap.String("store", a.Store.Name()),
		zap.String("session", a.Session.State().String()),
		zap.String("inspect", cfg.Server.Addr),
	)

	if *once {
		err := a.Sync(ctx)
		if err != nil {
			logger.Error("sync failed", zap.Error(err))
		}
		writeSummary(os.Stdout, a.Prefs.Symbol(), a.Cache, time.Now())
		if closeErr := a.Close(); closeErr != nil {
			logger.Error("close failed", zap.Error(closeErr))
		}
		if err != nil {
			os.Exit(1)
		}
		return
	}

	<-ctx.Done()
	logger.Info("shutting down")

	if err := a.Close(); err != nil {
		logger.Error("close failed", zap.Error(err))
	}
}
