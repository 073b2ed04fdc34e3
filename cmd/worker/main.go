// Package main starts the GuiaTrack notification worker: it drains the Redis
// queue the API server enqueues to and delivers the messages.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/andrescamacho/guiatrack/internal/config"
	"github.com/andrescamacho/guiatrack/internal/notify"
	"github.com/andrescamacho/guiatrack/internal/worker"
)

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("load config")
	}

	var mailer notify.Notifier = &notify.LogNotifier{Log: log}
	if cfg.SMTPAddr != "" {
		mailer = &notify.SMTPNotifier{Addr: cfg.SMTPAddr, From: cfg.SMTPFrom}
	}

	srv := asynq.NewServer(asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, asynq.Config{
		Concurrency: cfg.Workers,
	})

	go func() {
		<-ctx.Done()
		srv.Shutdown()
	}()

	log.WithField("redis", cfg.RedisAddr).Info("worker consuming notification queue")
	if err := srv.Run(worker.NewProcessor(mailer, log).Handler()); err != nil {
		log.WithError(err).Error("worker stopped")
		os.Exit(1)
	}
}
