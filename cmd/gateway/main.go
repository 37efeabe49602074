package main

import (
	"context"
	"crypto/rsa"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"route-gateway/internal/config"
	"route-gateway/internal/handler"
	"route-gateway/internal/metrics"
	"route-gateway/internal/middleware"
	"route-gateway/internal/middleware/auth"
	"route-gateway/internal/routing"
	"route-gateway/internal/transport"
	"route-gateway/internal/watcher"
	"route-gateway/pkg/logger"
	"route-gateway/pkg/redis"
)

const version = "0.2.0"

func main() {
	// コマンドライン引数のパース
	configPath := flag.String("config", config.ConfigPath("configs/gateway.yaml"), "path to config file")
	flag.Parse()

	// 設定ファイルの読み込み
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// ロガーの初期化
	log := logger.New(logger.Config{
		Level:   logger.LogLevel(cfg.Logging.Level),
		Format:  cfg.Logging.Format,
		Service: "route-gateway",
	})

	if err := run(cfg, log); err != nil {
		log.Error("Gateway stopped with error", slog.String("error", err.Error()))
		os.Exit(1)
	}
	log.Info("Server exited")
}

func run(cfg *config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("Starting route gateway",
		slog.String("version", version),
		slog.String("host", cfg.Server.Host),
		slog.Int("port", cfg.Server.Port),
		slog.String("source", cfg.Routing.Source),
		slog.String("trie", string(cfg.Routing.Trie.Kind)),
	)

	// ルート定義の取得元
	var (
		source      routing.Source
		redisSource *routing.RedisSource
		checkers    = map[string]handler.HealthChecker{}
	)
	switch cfg.Routing.Source {
	case config.SourceRedis:
		redisClient, err := redis.NewClient(ctx, redis.Config{
			Host:         cfg.Redis.Host,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize redis client: %w", err)
		}
		defer redisClient.Close()

		redisSource = routing.NewRedisSource(redisClient, cfg.Redis.KeyPrefix+cfg.Routing.RedisKey)
		source = redisSource
		checkers["redis"] = redisClient
		log.Info("Redis connected successfully", slog.String("key", redisSource.Key()))
	default:
		source = routing.NewFileSource(cfg.Routing.ConfigFile)
	}

	gatewayMetrics := metrics.New(nil)

	// ロケーターの初期化
	// 管理APIからの再読み込みも含め、全ての Refresh がメトリクスに記録される
	locator, err := routing.NewLocator(routing.LocatorConfig{
		ServletPath: cfg.Routing.ServletPath,
		Prefix:      cfg.Routing.Prefix,
		StripPrefix: cfg.Routing.StripPrefix,
		Retryable:   cfg.Routing.Retryable,
		Trie:        cfg.Routing.Trie,
	}, source, logger.Component(log, "locator"), routing.WithRefreshObserver(gatewayMetrics.ObserveRefresh))
	if err != nil {
		return fmt.Errorf("failed to create route locator: %w", err)
	}

	if err := locator.Refresh(ctx); err != nil {
		return fmt.Errorf("failed to load routes: %w", err)
	}

	refresh := func(ctx context.Context) {
		if err := locator.Refresh(ctx); err != nil {
			log.Error("Failed to refresh routes, keeping previous routes", slog.String("error", err.Error()))
		}
	}

	// ルート定義の変更監視
	if redisSource != nil {
		go func() {
			err := redisSource.Watch(ctx, func() { refresh(ctx) })
			if err != nil {
				log.Error("Route change subscription stopped", slog.String("error", err.Error()))
			}
		}()
	}
	if cfg.Routing.EnableHotReload {
		w, err := watcher.New(logger.Component(log, "watcher"))
		if err != nil {
			return fmt.Errorf("failed to create watcher: %w", err)
		}
		defer w.Close()

		if err := w.Add(cfg.Routing.ConfigFile, watcher.ListenerFunc(func(ctx context.Context, _ string) {
			refresh(ctx)
		})); err != nil {
			return fmt.Errorf("failed to watch routing config: %w", err)
		}
		w.Start(ctx)
		log.Info("Hot reload enabled", slog.String("file", cfg.Routing.ConfigFile))
	}

	// JWT公開鍵の読み込み（設定がある場合）
	var jwtPublicKeys map[string]*rsa.PublicKey
	if len(cfg.Admin.PublicKeyFiles) > 0 {
		keys, err := auth.LoadPublicKeysFromFiles(cfg.Admin.PublicKeyFiles)
		if err != nil {
			return fmt.Errorf("failed to load JWT public keys: %w", err)
		}
		jwtPublicKeys = keys
		log.Info("JWT public keys loaded", slog.Int("count", len(keys)))
	}

	// ミドルウェアファクトリーの初期化
	middlewareFactory := middleware.NewFactory(middleware.FactoryConfig{
		JWTPublicKeys: jwtPublicKeys,
		Logger:        log,
	})

	// Gatewayハンドラの初期化
	gateway := handler.NewGateway(locator, transport.NewHTTPTransporter(), middlewareFactory, logger.Component(log, "gateway"),
		handler.WithMetrics(gatewayMetrics))

	mux := http.NewServeMux()
	mux.Handle("GET /healthz", handler.NewHealthHandler(locator, checkers))
	mux.Handle("GET /metrics", metrics.Handler(nil))
	if cfg.Admin.Enabled {
		jwtMiddleware := auth.NewJWTMiddleware(auth.JWTConfig{
			PublicKeys:     jwtPublicKeys,
			RequiredClaims: []string{"sub"},
		})
		handler.NewAdminRoutesHandler(handler.AdminRoutesConfig{
			Locator:      locator,
			Authenticate: jwtMiddleware.Handler,
			Authorize:    auth.RequireScope,
			Logger:       logger.Component(log, "admin"),
		}).Register(mux, cfg.Admin.PathPrefix)
		log.Info("Admin endpoints enabled", slog.String("prefix", cfg.Admin.PathPrefix))
	}
	mux.Handle("/", gateway)

	// HTTPサーバの設定
	server := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      mux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// サーバの起動
	errCh := make(chan error, 1)
	go func() {
		log.Info("Server starting", slog.String("address", server.Addr), slog.Int("routes", len(locator.Routes())))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// グレースフルシャットダウン
	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	return nil
}
