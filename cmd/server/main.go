package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/iliyamo/real-estate-listings/internal/billing"
	"github.com/iliyamo/real-estate-listings/internal/config"
	"github.com/iliyamo/real-estate-listings/internal/database"
	"github.com/iliyamo/real-estate-listings/internal/handler"
	"github.com/iliyamo/real-estate-listings/internal/listing"
	"github.com/iliyamo/real-estate-listings/internal/logging"
	"github.com/iliyamo/real-estate-listings/internal/middleware"
	"github.com/iliyamo/real-estate-listings/internal/moderation"
	"github.com/iliyamo/real-estate-listings/internal/queue"
	"github.com/iliyamo/real-estate-listings/internal/quota"
	"github.com/iliyamo/real-estate-listings/internal/repository"
	"github.com/iliyamo/real-estate-listings/internal/router"
	"github.com/iliyamo/real-estate-listings/internal/storage"
	"github.com/iliyamo/real-estate-listings/internal/tasks"
)

func main() {
	cfg := config.Load()
	log := logging.New(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(log)

	db, dialect, err := database.Connect(cfg.DBDriver, cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName, cfg.SQLitePath)
	if err != nil {
		log.Error("connect database", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		log.Error("open storage", "err", err)
		os.Exit(1)
	}

	var events listing.Events = queue.Discard{}
	if cfg.RabbitURL != "" {
		events = queue.NewPublisher(cfg.RabbitURL, queue.ListingEventsQueue, log)
	} else {
		log.Info("RABBITMQ_URL not set; events are discarded")
	}

	rdb := config.NewRedisClient(cfg.Redis)
	if rdb == nil {
		log.Warn("redis unreachable; response cache off, local rate limiting, no thumbnails", "addr", cfg.Redis.Addr)
	} else {
		defer rdb.Close()
	}
	var thumbs listing.Thumbnails
	if rdb != nil {
		tc := tasks.NewClient(cfg.Redis.AsynqOpt())
		defer tc.Close()
		thumbs = tc
	}

	users := repository.NewUserRepo(db, dialect)
	tokens := repository.NewTokenRepo(db)
	listings := repository.NewListingRepo(db, dialect)
	images := repository.NewImageRepo(db)
	stats := repository.NewStatRepo(db, dialect)
	favorites := repository.NewFavoriteRepo(db)

	guard := quota.NewGuard(db, users, listings, images)
	bill := billing.NewService(db, users, events, log)
	listingSvc := listing.NewService(listing.Deps{
		DB: db, Users: users, Listings: listings, Images: images, Guard: guard,
		Files: store, Events: events, Thumbnails: thumbs, Log: log,
	})
	workflow := moderation.NewWorkflow(moderation.Deps{
		DB: db, Users: users, Listings: listings, Tokens: tokens, Billing: bill,
		Events: events, Log: log,
	})

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())
	e.Use(echomw.BodyLimit(cfg.BodyLimit))
	e.Use(middleware.RequestLogger(log))
	if cfg.RateLimit.Enabled {
		e.Use(middleware.NewTokenBucket(cfg.RateLimit, rdb, log))
	}
	if local, ok := store.(*storage.LocalStore); ok {
		e.Static(cfg.Storage.LocalBaseURL, local.Root())
	}

	router.RegisterRoutes(e)
	router.RegisterAuth(e, handler.NewAuthHandler(cfg, users, tokens, log), cfg.JWTSecret)
	router.RegisterPublic(e,
		handler.NewPublicHandler(listings, images, stats, store, log),
		middleware.NewRedisCache(cfg.Cache, rdb))
	router.RegisterOwner(e,
		handler.NewOwnerHandler(listingSvc, guard, images, stats, store, log),
		handler.NewFavoriteHandler(favorites, listings, stats, log),
		cfg.JWTSecret)
	router.RegisterAdmin(e, handler.NewAdminHandler(workflow, log), cfg.JWTSecret)

	addr := ":" + cfg.Port
	go func() {
		log.Info("listening", "addr", addr, "env", cfg.Env, "db", string(dialect), "storage", cfg.Storage.Driver)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server stopped", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown", "err", err)
	}
}
