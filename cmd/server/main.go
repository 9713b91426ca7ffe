package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/v2/mongo"

	echoapi "go.wtyk.dev/authd/api/echo"
	"go.wtyk.dev/authd/cache"
	redisstore "go.wtyk.dev/authd/cache/redis"
	"go.wtyk.dev/authd/client"
	"go.wtyk.dev/authd/config"
	"go.wtyk.dev/authd/domain"
	"go.wtyk.dev/authd/internal/metrics"
	"go.wtyk.dev/authd/internal/server"
	"go.wtyk.dev/authd/log"
	"go.wtyk.dev/authd/mongodb"
	"go.wtyk.dev/authd/services"
	"go.wtyk.dev/authd/sqlite"
	"go.wtyk.dev/authd/tracing"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		bootLogger := zerolog.New(os.Stdout).With().Timestamp().Logger()
		bootLogger.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logLevel, parseErr := zerolog.ParseLevel(cfg.LogLevel)
	if parseErr != nil {
		logLevel = zerolog.InfoLevel
	}
	appLogger := log.NewZerologAdapter(logLevel, cfg.LogPretty)

	ctx := context.Background()
	appLogger.Info(ctx, "starting authd", map[string]interface{}{
		"http_port":       cfg.HTTPPort,
		"cache_backend":   cfg.CacheBackend,
		"storage_backend": cfg.StorageBackend,
		"clients":         len(cfg.Clients),
	})

	tracerProvider, err := tracing.InitTracerProvider(cfg.OtelServiceName)
	if err != nil {
		appLogger.Fatal(ctx, "failed to initialize tracing", err)
	}

	metrics.Register(prometheus.DefaultRegisterer)

	// Credential store.
	var store cache.TokenStore
	switch cfg.CacheBackend {
	case "redis":
		store, err = redisstore.NewTokenStore(ctx, redisstore.Config{
			Addr:      cfg.RedisAddr,
			Password:  cfg.RedisPassword,
			DB:        cfg.RedisDB,
			KeyPrefix: cfg.RedisKeyPrefix,
		})
		if err != nil {
			appLogger.Fatal(ctx, "failed to connect to redis", err)
		}
	case "memory":
		store = cache.NewMemoryTokenStore()
	default:
		appLogger.Fatal(ctx, "unknown CACHE_BACKEND", nil, map[string]interface{}{
			"cache_backend": cfg.CacheBackend,
		})
	}
	defer store.Close()

	// User directory.
	var (
		userRepo    domain.UserRepository
		apiKeyRepo  domain.APIKeyRepository
		mongoClient *mongo.Client
	)
	switch cfg.StorageBackend {
	case "mongo":
		var db *mongo.Database
		mongoClient, db, err = mongodb.Connect(ctx, cfg.MongoURI, cfg.MongoDBName)
		if err != nil {
			appLogger.Fatal(ctx, "failed to connect to mongodb", err)
		}
		userRepo, err = mongodb.NewUserRepository(ctx, db, appLogger)
		if err != nil {
			appLogger.Fatal(ctx, "failed to initialize user repository", err)
		}
		apiKeyRepo, err = mongodb.NewAPIKeyRepository(ctx, db, appLogger)
		if err != nil {
			appLogger.Fatal(ctx, "failed to initialize api key repository", err)
		}
	case "sqlite":
		db, oerr := sqlite.Open(cfg.SQLitePath)
		if oerr != nil {
			appLogger.Fatal(ctx, "failed to open sqlite database", oerr)
		}
		userRepo = sqlite.NewUserRepository(db)
		apiKeyRepo = sqlite.NewAPIKeyRepository(db)
	default:
		appLogger.Fatal(ctx, "unknown STORAGE_BACKEND", nil, map[string]interface{}{
			"storage_backend": cfg.StorageBackend,
		})
	}

	registry := client.NewRegistry(cfg.Clients, appLogger)

	tokenSvc := services.NewTokenService(store,
		time.Duration(cfg.AccessTokenTTLSec)*time.Second,
		time.Duration(cfg.RefreshTokenTTLSec)*time.Second)
	oauthSvc := services.NewOAuthService(store, tokenSvc, registry,
		time.Duration(cfg.AuthCodeTTLSec)*time.Second, appLogger)
	apiKeySvc := services.NewAPIKeyService(apiKeyRepo, userRepo, appLogger)
	userSvc := services.NewUserService(userRepo, apiKeySvc, appLogger)
	sessionSvc := services.NewSessionService(store, userRepo, time.Duration(cfg.SessionTTLSec)*time.Second)
	gate := services.NewAccessGate(tokenSvc, apiKeySvc, userRepo, appLogger)

	oauthAPI := echoapi.NewOAuth2API(oauthSvc, gate, sessionSvc, nil,
		cfg.LoginURL, cfg.SessionCookie, appLogger)
	keyAPI := echoapi.NewAPIKeyAPI(apiKeySvc, sessionSvc, cfg.SessionCookie, appLogger)
	accountAPI := echoapi.NewAccountAPI(userSvc, sessionSvc, cfg.SessionCookie, appLogger)

	httpServer := server.NewHTTPServer(cfg, appLogger, oauthAPI, keyAPI, accountAPI)

	go func() {
		appLogger.Info(ctx, "http server listening", map[string]interface{}{"addr": httpServer.Addr})
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Fatal(ctx, "http server failed", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLogger.Info(ctx, "shutting down")

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		appLogger.Error(shutdownCtx, "http server shutdown failed", err)
	}
	if mongoClient != nil {
		if err := mongoClient.Disconnect(shutdownCtx); err != nil {
			appLogger.Error(shutdownCtx, "mongodb disconnect failed", err)
		}
	}
	if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
		appLogger.Error(shutdownCtx, "tracer provider shutdown failed", err)
	}
	appLogger.Info(shutdownCtx, "shutdown complete")
}
