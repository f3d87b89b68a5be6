package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"classattend/internal/audit"
	"classattend/internal/config"
	"classattend/internal/logging"
	"classattend/internal/queue"
	"classattend/internal/store"
)

// Worker consumes audit events published by the submission pipeline and
// persists them to the audit log. It is deliberately decoupled: a dead worker
// delays audit rows but never blocks a submission.
func main() {
	cfg := config.Load()
	log := logging.New(cfg.LogLevel, cfg.LogFormat)
	defer log.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("shutdown signal received")
		cancel()
	}()

	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		log.Fatal("db connect failed", zap.Error(err))
	}
	defer db.Close()
	if err := db.EnsureSchema(ctx); err != nil {
		log.Fatal("schema apply failed", zap.Error(err))
	}

	redisClient := store.NewRedis(cfg.RedisAddr)
	defer redisClient.Close()

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, cfg.AuditQueueKey)
	}

	repo := audit.NewRepository(db.Client)

	messages, err := q.Consume(ctx)
	if err != nil {
		log.Fatal("queue consume init failed", zap.Error(err))
	}

	log.Info("audit worker started")
	for msg := range messages {
		if msg.Type != audit.TypeSubmission {
			continue
		}

		var evt audit.Event
		if err := json.Unmarshal(msg.Body, &evt); err != nil {
			log.Warn("undecodable audit event", zap.Error(err))
			continue
		}

		if err := repo.Insert(ctx, evt); err != nil {
			log.Warn("audit insert failed",
				zap.String("session_id", evt.SessionID), zap.Error(err))
			continue
		}
		log.Debug("audit event stored",
			zap.String("session_id", evt.SessionID),
			zap.String("outcome", evt.Outcome))
	}

	log.Info("audit worker stopped")
}
