package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/iliyamo/recital-program/internal/auth"
	"github.com/iliyamo/recital-program/internal/catalog"
	"github.com/iliyamo/recital-program/internal/config"
	"github.com/iliyamo/recital-program/internal/database"
	"github.com/iliyamo/recital-program/internal/favorites"
	"github.com/iliyamo/recital-program/internal/handler"
	"github.com/iliyamo/recital-program/internal/livestatus"
	"github.com/iliyamo/recital-program/internal/logging"
	"github.com/iliyamo/recital-program/internal/middleware"
	"github.com/iliyamo/recital-program/internal/queue"
	"github.com/iliyamo/recital-program/internal/repository"
	"github.com/iliyamo/recital-program/internal/router"
	"github.com/iliyamo/recital-program/internal/service"
)

func main() {
	logger := logging.FromEnv(nil)
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	loc, err := cfg.Location()
	if err != nil {
		logger.Fatal("catalog timezone", "err", err)
	}
	cat, err := catalog.LoadFile(cfg.CatalogPath, loc)
	if err != nil {
		logger.Fatal("load catalog", "path", cfg.CatalogPath, "err", err)
	}
	logger.Info("catalog loaded", "shows", cat.Len(), "tz", loc)

	// Redis backs live status, response caching and rate limiting.
	rdb := config.NewRedisClient()
	var store livestatus.Store
	health := &handler.HealthHandler{Shows: cat.Len()}
	if rdb != nil {
		defer rdb.Close()
		store = livestatus.NewRedisStore(rdb, logging.Component(logger, "livestatus"))
		health.LiveStore = "redis"
	} else {
		logger.Warn("redis unavailable, live status is process-local")
		store = livestatus.NewMemoryStore(logging.Component(logger, "livestatus"))
		health.LiveStore = "memory"
	}

	iss := auth.NewIssuer(cfg.JWTSecret,
		time.Duration(cfg.AccessTTLMin)*time.Minute,
		time.Duration(cfg.RefreshTTLDays)*24*time.Hour)
	allow := auth.NewAllowList(cfg.AuthorizedUsers)
	authH := &handler.AuthHandler{
		Issuer:     iss,
		Google:     auth.NewGoogleProvider(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.GoogleRedirectURL),
		Allow:      allow,
		BcryptCost: cfg.BcryptCost,
		Log:        logging.Component(logger, "auth"),
	}

	prefs := handler.PrefsFunc(favorites.NewMemoryStorage().Scoped)
	if cfg.HasDatabase() {
		db, err := database.Open(ctx, cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
		if err != nil {
			logger.Fatal("open database", "err", err)
		}
		defer db.Close()
		authH.Users = repository.NewUserRepo(db)
		authH.Tokens = repository.NewTokenRepo(db)
		prefs = repository.NewPrefsRepo(db).For
		health.Database = true
	} else {
		logger.Warn("DB_HOST not set, accounts are disabled and preferences are process-local")
	}

	live := &handler.LiveHandler{
		Store:       store,
		AppID:       cfg.AppID,
		Allow:       allow,
		Log:         logging.Component(logger, "live"),
		FirstUpdate: 5 * time.Second,
		KeepAlive:   25 * time.Second,
	}
	if pub := service.NewPublisher(cfg.RabbitMQURL, logging.Component(logger, "publisher")); pub != nil {
		live.Events = pub
		health.Events = true
		go func() {
			if err := queue.StartLiveStatusConsumer(ctx, cfg.RabbitMQURL, "logs", logging.Component(logger, "consumer")); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("live status consumer stopped", "err", err)
			}
		}()
	}

	shows := handler.NewCatalogHandler(cat)
	live.Shows = shows

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.RequestLogger(logging.Component(logger, "http")))
	e.Use(echomw.Recover())

	mw := router.Middleware{
		Cache:     middleware.NewRedisCache(config.LoadCacheConfig(), rdb),
		RateLimit: middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb, logging.Component(logger, "ratelimit")),
	}

	router.RegisterRoutes(e, router.Handlers{
		Health:  health,
		Catalog: shows,
		Session: &handler.SessionHandler{
			Shows: shows,
			Live:  live,
			Prefs: prefs,
			Allow: allow,
			Log:   logging.Component(logger, "session"),
		},
		Live: live,
		Auth: authH,
	}, iss, mw)

	addr := ":" + cfg.Port
	go func() {
		logger.Info("listening", "addr", addr, "env", cfg.Env, "authorized_users", allow.Len())
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server stopped", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", "err", err)
	}
}
