package main

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	echoapi "github.com/hirokazu-kobayashi-koba-hiro/idp-server-sub023/api/echo"
	"github.com/hirokazu-kobayashi-koba-hiro/idp-server-sub023/cache"
	rediscache "github.com/hirokazu-kobayashi-koba-hiro/idp-server-sub023/cache/redis"
	"github.com/hirokazu-kobayashi-koba-hiro/idp-server-sub023/config"
	"github.com/hirokazu-kobayashi-koba-hiro/idp-server-sub023/jose"
	applog "github.com/hirokazu-kobayashi-koba-hiro/idp-server-sub023/log"
	"github.com/hirokazu-kobayashi-koba-hiro/idp-server-sub023/mongodb"
	"github.com/hirokazu-kobayashi-koba-hiro/idp-server-sub023/services"
	"github.com/hirokazu-kobayashi-koba-hiro/idp-server-sub023/tracing"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "idp-server",
		Short: "Multi-tenant OAuth 2.0 / OIDC authorization server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context())
		},
	}

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "server failed:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := applog.NewZerologAdapter(applog.ParseLevel(cfg.LogLevel), cfg.LogPretty)
	logger.Info(ctx, "Starting idp-server", map[string]interface{}{
		"http_port":     cfg.HTTPPort,
		"mongo_db_name": cfg.MongoDBName,
		"log_level":     cfg.LogLevel,
	})

	tp, err := tracing.InitTracerProvider("idp-server")
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tp.Shutdown(shutdownCtx)
	}()

	client, db, err := mongodb.Connect(ctx, cfg.MongoURI, cfg.MongoDBName)
	if err != nil {
		return fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	defer func() { _ = client.Disconnect(context.Background()) }()

	if err := mongodb.EnsureIndexes(ctx, db); err != nil {
		return fmt.Errorf("failed to ensure indexes: %w", err)
	}

	configRepo := mongodb.NewConfigurationRepository(db)
	requestRepo := mongodb.NewAuthorizationRequestRepository(db)
	codeRepo := mongodb.NewAuthorizationCodeRepository(db)
	tokenRepo := mongodb.NewTokenRepository(db)
	cibaRepo := mongodb.NewCibaGrantRepository(db)
	userRepo := mongodb.NewUserRepository(db)

	replayCache, stopCache, err := buildReplayCache(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer stopCache()

	signer, err := buildSigner(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize token signer: %w", err)
	}

	tokenCreator := services.NewTokenCreator(signer, tokenRepo, logger)
	authenticator := services.NewClientAuthenticator(replayCache, logger)
	registry := services.NewGrantRegistry(
		services.NewAuthorizationCodeGrantService(codeRepo, tokenCreator, logger),
		services.NewClientCredentialsGrantService(tokenCreator, logger),
		services.NewRefreshTokenGrantService(tokenRepo, tokenCreator, logger),
		services.NewCibaGrantService(cibaRepo, tokenCreator, logger),
	)

	builder := services.NewRequestContextBuilder(configRepo, services.NewHTTPRequestObjectFetcher(5*time.Second), logger)
	pipeline := services.NewVerificationPipeline()

	authorizationService := services.NewAuthorizationService(builder, pipeline, configRepo, requestRepo, codeRepo, logger)
	tokenEndpointService := services.NewTokenEndpointService(configRepo, authenticator, registry, logger)

	notifier := services.NewHTTPNotificationClient(time.Duration(cfg.NotificationTimeoutSec)*time.Second, logger)
	hintResolver := services.NewUserHintResolver(userRepo, signer, logger)
	cibaService := services.NewCibaService(configRepo, cibaRepo, hintResolver, tokenCreator, notifier, logger)

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	echoapi.NewOAuth2API(authorizationService, tokenEndpointService, cibaService).RegisterRoutes(e)

	jwks, err := jose.PublicJWKS(signer.PublicKeys())
	if err != nil {
		return fmt.Errorf("failed to render jwks: %w", err)
	}
	echoapi.NewDiscoveryAPI(configRepo, jwks).RegisterRoutes(e)
	echoapi.NewUserInfoAPI(tokenRepo, userRepo).RegisterRoutes(e)

	errCh := make(chan error, 1)
	go func() {
		if err := e.Start(":" + cfg.HTTPPort); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("http server failed: %w", err)
	case sig := <-stop:
		logger.Info(ctx, "Shutting down", map[string]interface{}{"signal": sig.String()})
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}

func buildReplayCache(ctx context.Context, cfg *config.ServerConfig, logger applog.Logger) (cache.ReplayCache, func(), error) {
	if cfg.RedisAddr == "" {
		mem := cache.NewMemoryReplayCache()
		return mem, mem.Stop, nil
	}

	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	logger.Info(ctx, "Redis replay cache enabled", map[string]interface{}{"addr": cfg.RedisAddr})
	return rediscache.NewReplayCache(client, "idp"), func() { _ = client.Close() }, nil
}

// buildSigner loads the configured RSA signing key, or generates an
// ephemeral one so development setups work without key material. Tokens
// signed with an ephemeral key do not survive a restart.
func buildSigner(cfg *config.ServerConfig) (*services.TokenSigner, error) {
	signer := services.NewTokenSigner()

	if cfg.SigningKeyPEM == "" {
		key, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			return nil, err
		}
		signer.AddRSAKeySigner(cfg.SigningKeyID, key)
		return signer, nil
	}

	block, _ := pem.Decode([]byte(cfg.SigningKeyPEM))
	if block == nil {
		return nil, fmt.Errorf("SIGNING_KEY_PEM is not valid PEM")
	}

	var key *rsa.PrivateKey
	switch block.Type {
	case "RSA PRIVATE KEY":
		parsed, err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if err != nil {
			return nil, err
		}
		key = parsed
	default:
		parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, err
		}
		rsaKey, ok := parsed.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("signing key must be RSA")
		}
		key = rsaKey
	}

	signer.AddRSAKeySigner(cfg.SigningKeyID, key)
	return signer, nil
}
