// Command worker runs the background side of the service: thumbnail tasks
// from asynq and plan changes from the billing queue.
package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/iliyamo/real-estate-listings/internal/billing"
	"github.com/iliyamo/real-estate-listings/internal/config"
	"github.com/iliyamo/real-estate-listings/internal/database"
	"github.com/iliyamo/real-estate-listings/internal/logging"
	"github.com/iliyamo/real-estate-listings/internal/queue"
	"github.com/iliyamo/real-estate-listings/internal/repository"
	"github.com/iliyamo/real-estate-listings/internal/storage"
	"github.com/iliyamo/real-estate-listings/internal/tasks"
)

func main() {
	cfg := config.Load()
	log := logging.New(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		log.Error("open storage", "err", err)
		os.Exit(1)
	}

	srv := tasks.NewServer(cfg.Redis.AsynqOpt(), cfg.WorkerConcur, log)
	if err := srv.Start(tasks.NewProcessor(store, log).Mux()); err != nil {
		log.Error("start task server", "err", err)
		os.Exit(1)
	}
	defer srv.Shutdown()
	log.Info("task server started", "redis", cfg.Redis.Addr, "concurrency", cfg.WorkerConcur)

	if cfg.RabbitURL == "" {
		log.Info("RABBITMQ_URL not set; plan changes are not consumed")
		<-ctx.Done()
		return
	}

	db, dialect, err := database.Connect(cfg.DBDriver, cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName, cfg.SQLitePath)
	if err != nil {
		log.Error("connect database", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	events := queue.NewPublisher(cfg.RabbitURL, queue.ListingEventsQueue, log)
	bill := billing.NewService(db, repository.NewUserRepo(db, dialect), events, log)
	log.Info("consuming plan changes", "queue", queue.PlanChangedQueue)
	if err := queue.StartPlanChangeConsumer(ctx, cfg.RabbitURL, bill, log); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("plan consumer stopped", "err", err)
	}
}
