package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"

	cacheadapter "github.com/JuhanV/Sleep-Game/internal/adapter/cache"
	oauthadapter "github.com/JuhanV/Sleep-Game/internal/adapter/oauth"
	"github.com/JuhanV/Sleep-Game/internal/adapter/oura"
	"github.com/JuhanV/Sleep-Game/internal/bootstrap"
	"github.com/JuhanV/Sleep-Game/internal/config"
	domainoauth "github.com/JuhanV/Sleep-Game/internal/domain/oauth"
	httptransport "github.com/JuhanV/Sleep-Game/internal/http"
	"github.com/JuhanV/Sleep-Game/internal/http/handler"
	httpmiddleware "github.com/JuhanV/Sleep-Game/internal/http/middleware"
	"github.com/JuhanV/Sleep-Game/internal/jwt"
	"github.com/JuhanV/Sleep-Game/internal/metrics"
	apimiddleware "github.com/JuhanV/Sleep-Game/internal/middleware"
	"github.com/JuhanV/Sleep-Game/internal/repository"
	"github.com/JuhanV/Sleep-Game/internal/server"
	"github.com/JuhanV/Sleep-Game/internal/service"
	authservice "github.com/JuhanV/Sleep-Game/internal/service/auth"
	"github.com/JuhanV/Sleep-Game/internal/telemetry"
	"github.com/JuhanV/Sleep-Game/internal/tokencipher"
)

const identityPath = "/v2/usercollection/personal_info"

func newApp() *fx.App {
	return fx.New(
		fx.Provide(
			newConfig,
			newLogger,
			newTelemetry,
			newSnowflake,
			newPGXPool,
			newProfileRepository,
			newFriendshipRepository,
			newRedisClient,
			newOAuthStateStore,
			newMetricsCache,
			metrics.New,
			newProviderConfig,
			newTokenCipher,
			newOAuthProviderClient,
			newExchanger,
			newSessionGenerator,
			newOAuthService,
			newTokenProvider,
			newOuraClient,
			newDashboardService,
			service.NewSocialService,
			newAdminService,
			newSyncWorker,
			newRateLimiter,
			newAuthMiddleware,
			handler.NewAuthHandler,
			handler.NewAPIHandler,
			httptransport.NewRouter,
			server.NewHTTPServer,
		),
		fx.Invoke(useTelemetry, bootstrap.EnsureSchema, bootstrap.EnsureAdmin, startSyncWorker, startHTTPServer),
	)
}

func newConfig() (config.Config, error) {
	return config.Load()
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	var (
		logger *zap.Logger
		err    error
	)
	if cfg.Environment == "development" {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return nil, err
	}
	zap.ReplaceGlobals(logger)
	return logger, nil
}

func newTelemetry(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger) (*telemetry.Provider, error) {
	provider, err := telemetry.New(context.Background(), cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("telemetry init: %w", err)
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			return provider.Shutdown(stopCtx)
		},
	})

	return provider, nil
}

func newSnowflake() (*snowflake.Node, error) {
	return snowflake.NewNode(1)
}

func newPGXPool(lc fx.Lifecycle, cfg config.Config) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			pool.Close()
			return nil
		},
	})

	return pool, nil
}

func newProfileRepository(pool *pgxpool.Pool) repository.ProfileRepository {
	return repository.NewPostgresProfileRepo(pool)
}

func newFriendshipRepository(pool *pgxpool.Pool) repository.FriendshipRepository {
	return repository.NewPostgresFriendshipRepo(pool)
}

func newRedisClient(lc fx.Lifecycle, cfg config.Config) (redis.UniversalClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})
	return client, nil
}

func newOAuthStateStore(client redis.UniversalClient) repository.OAuthStateStore {
	return cacheadapter.NewRedisStateStore(client)
}

func newMetricsCache(client redis.UniversalClient) repository.MetricsCache {
	return cacheadapter.NewRedisMetricsCache(client)
}

func newProviderConfig(cfg config.Config) domainoauth.ProviderConfig {
	return domainoauth.ProviderConfig{
		Name:         "oura",
		ClientID:     cfg.OuraClientID,
		ClientSecret: cfg.OuraClientSecret,
		AuthURL:      cfg.OuraAuthURL,
		TokenURL:     cfg.OuraTokenURL,
		IdentityURL:  cfg.OuraAPIURL + identityPath,
		RedirectURI:  cfg.OuraRedirectURI,
		Scopes:       cfg.OuraScopes,
	}
}

func newTokenCipher(cfg config.Config) (*tokencipher.Cipher, error) {
	return tokencipher.New(cfg.TokenCipherKey)
}

func newOAuthProviderClient() oauthadapter.ProviderClient {
	return oauthadapter.NewHTTPProviderClient(nil)
}

func newExchanger(client oauthadapter.ProviderClient, provider domainoauth.ProviderConfig, m *metrics.Metrics, logger *zap.Logger) *authservice.Exchanger {
	return authservice.NewExchanger(client, provider,
		authservice.WithExchangeMetrics(m),
		authservice.WithExchangeLogger(logger),
	)
}

func newSessionGenerator(cfg config.Config) (*jwt.Generator, error) {
	return jwt.NewGenerator([]byte(cfg.SessionSecret), cfg.PublicURL, cfg.SessionTTL)
}

func newOAuthService(
	stateStore repository.OAuthStateStore,
	exchanger *authservice.Exchanger,
	cipher *tokencipher.Cipher,
	profiles repository.ProfileRepository,
	node *snowflake.Node,
	sessions *jwt.Generator,
	provider domainoauth.ProviderConfig,
	cfg config.Config,
	logger *zap.Logger,
) authservice.OAuthService {
	return authservice.NewOAuthService(stateStore, exchanger, cipher, profiles, node, sessions, authservice.OAuthServiceConfig{
		Provider:   provider,
		AdminEmail: cfg.AdminEmail,
	}, logger)
}

func newTokenProvider(
	cipher *tokencipher.Cipher,
	provider domainoauth.ProviderConfig,
	profiles repository.ProfileRepository,
	m *metrics.Metrics,
	logger *zap.Logger,
) *service.TokenProvider {
	return service.NewTokenProvider(cipher, provider, profiles, &http.Client{Timeout: 15 * time.Second}, m, logger)
}

func newOuraClient(cfg config.Config, m *metrics.Metrics) *oura.Client {
	return oura.NewClient(cfg.OuraAPIURL, m)
}

func newDashboardService(
	profiles repository.ProfileRepository,
	friends repository.FriendshipRepository,
	tokens *service.TokenProvider,
	client *oura.Client,
	cache repository.MetricsCache,
	cfg config.Config,
	logger *zap.Logger,
) *service.DashboardService {
	return service.NewDashboardService(profiles, friends, tokens, client, cache, cfg.MetricsCacheTTL, logger)
}

func newAdminService(
	profiles repository.ProfileRepository,
	tokens *service.TokenProvider,
	dashboard *service.DashboardService,
	logger *zap.Logger,
) *service.AdminService {
	return service.NewAdminService(profiles, tokens, dashboard, logger)
}

func newSyncWorker(
	profiles repository.ProfileRepository,
	dashboard *service.DashboardService,
	cfg config.Config,
	m *metrics.Metrics,
	logger *zap.Logger,
) *service.SyncWorker {
	return service.NewSyncWorker(profiles, dashboard, cfg.SyncInterval, cfg.SyncConcurrency, m, logger)
}

func newRateLimiter(cfg config.Config) *apimiddleware.RateLimiter {
	return apimiddleware.NewRateLimiter(apimiddleware.RateLimitPolicy{
		RequestsPerMinute: cfg.RateLimitRPM,
		LoginPerMinute:    cfg.LoginRateLimitRPM,
		Exempt:            []string{"/healthz", "/metrics"},
	})
}

func newAuthMiddleware(sessions *jwt.Generator, cfg config.Config) *httpmiddleware.Auth {
	return &httpmiddleware.Auth{Sessions: sessions, CookieSecure: cfg.CookieSecure}
}

// runInBackground ties a long-running function to the fx lifecycle.
func runInBackground(lc fx.Lifecycle, run func(ctx context.Context)) {
	var (
		cancel context.CancelFunc
		done   chan struct{}
	)

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			runCtx, stop := context.WithCancel(context.Background())
			cancel = stop
			done = make(chan struct{})

			go func() {
				defer close(done)
				run(runCtx)
			}()

			return nil
		},
		OnStop: func(ctx context.Context) error {
			if cancel != nil {
				cancel()
			}
			if done == nil {
				return nil
			}
			select {
			case <-done:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	})
}

func startSyncWorker(lc fx.Lifecycle, worker *service.SyncWorker) {
	if !worker.Enabled() {
		return
	}
	runInBackground(lc, worker.Run)
}

func startHTTPServer(lc fx.Lifecycle, srv *server.HTTPServer, shutdowner fx.Shutdowner, logger *zap.Logger) {
	runInBackground(lc, func(ctx context.Context) {
		serveHTTP(ctx, srv, shutdowner, logger)
	})
}

// serveHTTP stops the whole app with exit code 1 when the server cannot run,
// so the sync worker never keeps a process without a listener alive.
func serveHTTP(ctx context.Context, srv *server.HTTPServer, shutdowner fx.Shutdowner, logger *zap.Logger) {
	if err := srv.Run(ctx); err != nil {
		logger.Error("http server stopped", zap.String("addr", srv.Addr()), zap.Error(err))
		if err := shutdowner.Shutdown(fx.ExitCode(1)); err != nil {
			logger.Error("failed to request shutdown", zap.Error(err))
		}
	}
}

func useTelemetry(*telemetry.Provider) {}
