// @title           Meet Backend API
// @version         1.0
// @description     Bookings, accounts and provider webhooks for the meeting service.
// @BasePath        /api
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @securityDefinitions.apikey SharedSecret
// @in header
// @name Authorization
package main

import (
	"context"
	"errors"
	"log"
	"meet-backend/internal/api"
	"meet-backend/internal/auth"
	"meet-backend/internal/config"
	"meet-backend/internal/crm"
	"meet-backend/internal/database"
	"meet-backend/internal/keycloak"
	"meet-backend/internal/logger"
	"meet-backend/internal/paddle"
	"meet-backend/internal/telemetry"
	"meet-backend/internal/tokencache"
	"meet-backend/internal/websocket"
	"meet-backend/internal/worker"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	_ "meet-backend/docs"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	zlog, err := logger.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer zlog.Sync()

	shutdownTelemetry := telemetry.Setup(cfg.Telemetry, zlog)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTelemetry(ctx)
	}()

	dbpool, err := pgxpool.New(context.Background(), cfg.DB.Source)
	if err != nil {
		zlog.Fatal("connect database", zap.Error(err))
	}
	defer dbpool.Close()

	if err := dbpool.Ping(context.Background()); err != nil {
		zlog.Fatal("ping database", zap.Error(err))
	}
	zlog.Info("database connected")

	tokens := newTokenCache(cfg.Redis, zlog)

	httpClient := &http.Client{
		Timeout:   20 * time.Second,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}

	providers := api.Providers{
		Identity: keycloak.NewClient(keycloak.Config{
			BaseURL:      cfg.Keycloak.BaseURL,
			Realm:        cfg.Keycloak.Realm,
			ClientID:     cfg.Keycloak.ClientID,
			ClientSecret: cfg.Keycloak.ClientSecret,
		}, tokens, httpClient),
		Billing:  paddle.NewClient(cfg.Paddle.BaseURL, cfg.Paddle.APIKey, httpClient),
		Contacts: crm.NewClient(cfg.CRM.BaseURL, cfg.CRM.APIKey, cfg.CRM.ListID, httpClient),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	verifierCfg := auth.VerifierConfig{
		Secret:   cfg.JWT.Secret,
		Issuer:   cfg.JWT.Issuer,
		Audience: cfg.JWT.Audience,
	}
	if u := jwksURL(cfg); u != "" {
		verifierCfg.JWKS, err = auth.NewJWKS(ctx, u, httpClient, zlog)
		if err != nil {
			zlog.Fatal("init jwks", zap.String("url", u), zap.Error(err))
		}
	} else {
		zlog.Warn("no jwks configured, only HS256 tokens are accepted")
	}
	verifier := auth.NewVerifier(verifierCfg)

	wsHub := websocket.NewHub(zlog)
	go wsHub.Run(ctx)

	runner := worker.NewRunner(zlog, cfg.Server.TaskTimeout)
	store := database.NewStore(dbpool)
	server := api.NewServer(cfg, zlog, store, providers, verifier, runner, wsHub)

	httpServer := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      otelhttp.NewHandler(server.Routes(), "meet-backend"),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		zlog.Info("server listening", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zlog.Fatal("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	zlog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		zlog.Error("http shutdown", zap.Error(err))
	}
	if err := runner.Wait(shutdownCtx); err != nil {
		zlog.Error("background tasks still running at exit", zap.Error(err))
	}
}

// newTokenCache keeps provider access tokens in Redis when configured, so
// replicas share them, and in process memory otherwise.
func newTokenCache(cfg config.RedisConfig, zlog *zap.Logger) *tokencache.Cache {
	if cfg.Addr == "" {
		zlog.Info("token cache in memory")
		return tokencache.New(tokencache.NewMemoryStore())
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		zlog.Warn("redis unreachable, token cache falls back to fetching", zap.Error(err))
	}
	return tokencache.New(tokencache.NewRedisStore(rdb))
}

// jwksURL is the configured JWK Set, else the realm's certs endpoint, else
// empty when no identity provider is configured.
func jwksURL(cfg *config.Config) string {
	if cfg.JWT.JWKSURL != "" {
		return cfg.JWT.JWKSURL
	}
	if cfg.Keycloak.BaseURL == "" {
		return ""
	}
	base := strings.TrimSuffix(cfg.Keycloak.BaseURL, "/")
	return base + "/realms/" + url.PathEscape(cfg.Keycloak.Realm) + "/protocol/openid-connect/certs"
}
