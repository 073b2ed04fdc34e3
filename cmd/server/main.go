// Package main starts the GuiaTrack API server.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/andrescamacho/guiatrack/internal/auth"
	"github.com/andrescamacho/guiatrack/internal/config"
	"github.com/andrescamacho/guiatrack/internal/dispatch"
	"github.com/andrescamacho/guiatrack/internal/notify"
	"github.com/andrescamacho/guiatrack/internal/postgres"
	"github.com/andrescamacho/guiatrack/internal/pricing"
	"github.com/andrescamacho/guiatrack/internal/server"
	"github.com/andrescamacho/guiatrack/internal/service"
	"github.com/andrescamacho/guiatrack/internal/signing"
	"github.com/andrescamacho/guiatrack/internal/store"
)

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("load config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	recordStore, cleanup, err := buildStore(ctx, cfg)
	if err != nil {
		log.WithError(err).Fatal("init record store")
	}
	defer cleanup()

	rates, err := cfg.Rates()
	if err != nil {
		log.WithError(err).Fatal("parse unit rates")
	}
	engine, err := pricing.NewEngine(rates, cfg.TolerancePercent)
	if err != nil {
		log.WithError(err).Fatal("init pricing engine")
	}

	notifier, closeNotifier := buildNotifier(ctx, cfg, log)
	defer closeNotifier()

	svc, err := service.New(ctx, service.Config{
		Store:      recordStore,
		Pricing:    engine,
		Notifier:   notifier,
		Log:        log,
		StaffEmail: cfg.AdminEmail,
	})
	if err != nil {
		log.WithError(err).Fatal("load shipment collections")
	}

	provider := auth.NewProvider(svc, cfg.AdminEmail, cfg.AdminPassword, []byte(cfg.JWTSecret), cfg.TokenTTL)
	signer := signing.NewSigner([]byte(cfg.SigningSecret))

	srv := server.New(cfg, svc, provider, signer, log)
	if err := srv.Serve(ctx); err != nil {
		log.WithError(err).Error("server stopped")
		os.Exit(1)
	}
}

// buildStore selects the snapshot driver. The returned cleanup releases any
// backing connections.
func buildStore(ctx context.Context, cfg *config.Config) (store.Store, func(), error) {
	switch cfg.StoreDriver {
	case "memory":
		return store.NewMemoryStore(), func() {}, nil
	case "csv":
		s, err := store.NewCSVStore(cfg.DataDir)
		if err != nil {
			return nil, nil, err
		}
		return s, func() {}, nil
	case "postgres":
		pool, err := postgres.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		if err := postgres.EnsureSchema(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return postgres.NewStore(pool), pool.Close, nil
	}
	return nil, nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
}

// buildNotifier assembles the notification path for the configured mode. The
// log and smtp modes deliver through an in-process pool; queue mode hands off
// to the worker binary via Redis.
func buildNotifier(ctx context.Context, cfg *config.Config, log *logrus.Logger) (notify.Notifier, func()) {
	if cfg.NotifierMode == "queue" {
		client := asynq.NewClient(asynq.RedisClientOpt{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		return &notify.QueueNotifier{Client: client}, func() { _ = client.Close() }
	}
	var base notify.Notifier = &notify.LogNotifier{Log: log}
	if cfg.NotifierMode == "smtp" {
		base = &notify.SMTPNotifier{Addr: cfg.SMTPAddr, From: cfg.SMTPFrom}
	}
	pool := dispatch.NewPool(base, cfg.Workers, log)
	pool.Start(ctx)
	return pool, func() {}
}
