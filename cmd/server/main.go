package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bmlam89/ebay-deletion-handler/app"
	"github.com/bmlam89/ebay-deletion-handler/internal/engine"
	"github.com/bmlam89/ebay-deletion-handler/internal/handler"
	"github.com/bmlam89/ebay-deletion-handler/internal/jobs"
	"github.com/bmlam89/ebay-deletion-handler/internal/repo"
	"github.com/bmlam89/ebay-deletion-handler/internal/store"
	"github.com/bmlam89/ebay-deletion-handler/router"
	"github.com/sirupsen/logrus"
)

func main() {
	cfg := app.Load()

	ctx := context.Background()
	db, err := store.Connect(ctx, cfg.Mongo.URI, cfg.Mongo.Database)
	if err != nil {
		logrus.WithError(err).Fatal("failed to connect to mongodb")
	}

	notifications := repo.NewNotificationRepo(db)
	deletionLogs := repo.NewDeletionLogRepo(db)

	fields, err := engine.ParseFieldRefs(cfg.Deletion.FieldRefs)
	if err != nil {
		logrus.WithError(err).Fatal("invalid IDENTITY_FIELDS")
	}

	eng := engine.New(db, deletionLogs, engine.Config{
		Policy:            cfg.Deletion.Policy,
		Concurrency:       cfg.Deletion.Concurrency,
		CollectionTimeout: cfg.Deletion.CollectionTimeout,
		Fields:            fields,
	})
	processor := jobs.NewProcessor(eng, notifications)

	var queue jobs.Queue
	if len(cfg.Kafka.Brokers) > 0 {
		queue = jobs.NewKafkaQueue(processor, cfg.Kafka.Brokers, cfg.Kafka.GroupID, cfg.Kafka.Topic, 1)
	} else {
		queue = jobs.NewInProcessQueue(processor, cfg.Deletion.QueueBuffer)
	}
	queue.Start()

	deletion := handler.NewDeletion(cfg.Webhook, notifications, queue)
	fiberApp := router.New(cfg.Webhook, deletion)

	go func() {
		if err := fiberApp.Listen(":" + cfg.Webhook.Port); err != nil {
			logrus.WithError(err).Fatal("server stopped")
		}
	}()
	logrus.WithField("port", cfg.Webhook.Port).Info("webhook server listening")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logrus.Info("shutting down")
	if err := fiberApp.ShutdownWithTimeout(10 * time.Second); err != nil {
		logrus.WithError(err).Error("server shutdown failed")
	}
	queue.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.Close(shutdownCtx); err != nil {
		logrus.WithError(err).Error("mongodb disconnect failed")
	}
	logrus.Info("shutdown complete")
}
