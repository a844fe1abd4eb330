package initapp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"review-proxy/internal/cache"
	"review-proxy/internal/compression"
	"review-proxy/internal/config"
	"review-proxy/internal/constants"
	"review-proxy/internal/handler"
	"review-proxy/internal/logging"
	"review-proxy/internal/middleware"
	"review-proxy/internal/router"
	"review-proxy/internal/security"
	"review-proxy/internal/snapshot"
	"review-proxy/internal/storage"
	"review-proxy/internal/upstream"
	"strconv"
	"sync/atomic"

	"github.com/rs/zerolog"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

// App 组装好的服务进程
type App struct {
	configManager *config.ConfigManager
	logger        zerolog.Logger

	Registry *cache.Registry[json.RawMessage]
	Handler  http.Handler

	client      atomic.Pointer[upstream.Client]
	compManager atomic.Pointer[compression.Manager]
	limiter     *security.RefreshLimiter
	history     *storage.HistoryDB
	store       snapshot.Store
	saver       *snapshot.Saver
}

// New 根据配置创建缓存、存储以及 HTTP 处理链
func New(ctx context.Context, cm *config.ConfigManager, version string, logger zerolog.Logger) (*App, error) {
	cfg := cm.GetConfig()
	app := &App{
		configManager: cm,
		logger:        logger,
	}

	app.client.Store(upstream.NewClient(cfg.UpstreamClientConfig(), logging.Component(logger, "upstream")))
	if cfg.Upstream.Token == "" {
		logger.Warn().Msg("APIFY_TOKEN is not set, refreshes will fail until it is configured")
	}

	fetcher := cache.FetcherFunc[json.RawMessage](func(ctx context.Context, key string) ([]json.RawMessage, error) {
		return app.client.Load().Fetch(ctx, key)
	})
	app.Registry = cache.NewRegistry[json.RawMessage](fetcher, cfg.CacheOptions(logging.Component(logger, "cache")), cfg.Reviews.MaxPlaces)

	if err := app.setupSnapshots(ctx, cfg); err != nil {
		app.Close()
		return nil, err
	}
	if err := app.setupHistory(cfg); err != nil {
		app.Close()
		return nil, err
	}

	if limitCfg := cfg.RefreshLimiterConfig(); limitCfg != nil {
		app.limiter = security.NewRefreshLimiter(limitCfg, logging.Component(logger, "security"))
	}
	app.compManager.Store(compression.NewManager(cfg.CompressionSettings()))

	var history handler.HistoryReader
	if app.history != nil {
		history = app.history
	}
	var limiter handler.RefreshLimitAdmin
	if app.limiter != nil {
		limiter = app.limiter
	}
	handlers := router.Handlers{
		Reviews: handler.NewReviewsHandler(app.Registry, func() string {
			return cm.GetConfig().Reviews.DefaultPlaceID
		}),
		Health:       handler.NewHealthHandler(app.Registry, version),
		CacheAdmin:   handler.NewCacheAdminHandler(app.Registry),
		History:      handler.NewHistoryHandler(history),
		RefreshLimit: handler.NewRefreshLimitHandler(limiter),
		Security: middleware.NewSecurityMiddleware(app.limiter, func() string {
			return cm.GetConfig().Security.AdminToken
		}),
	}
	app.Handler = router.New(handlers, &app.compManager, logging.Component(logger, "http"))

	cm.RegisterUpdateCallback(app.onConfigUpdate)
	return app, nil
}

func (a *App) setupSnapshots(ctx context.Context, cfg *config.Config) error {
	switch cfg.Snapshot.Backend {
	case "file":
		store, err := snapshot.NewFileStore(cfg.Snapshot.Dir)
		if err != nil {
			return fmt.Errorf("snapshot store: %w", err)
		}
		a.store = store
	case "s3":
		store, err := snapshot.NewS3Store(ctx, cfg.S3Config())
		if err != nil {
			return fmt.Errorf("snapshot store: %w", err)
		}
		if err := store.TestConnection(ctx); err != nil {
			a.logger.Warn().Err(err).Str("bucket", cfg.Snapshot.S3.Bucket).Msg("snapshot bucket not reachable")
		}
		a.store = store
	default:
		return nil
	}

	logger := logging.Component(a.logger, "snapshot")
	restored, err := snapshot.Restore(ctx, a.store, a.Registry, logger)
	if err != nil {
		logger.Warn().Err(err).Msg("failed to restore snapshots")
	} else if restored > 0 {
		logger.Info().Int("restored", restored).Msg("snapshots restored")
	}

	a.saver = snapshot.NewSaver(a.store, logger)
	a.Registry.OnRefresh(a.saver.Hook)
	return nil
}

func (a *App) setupHistory(cfg *config.Config) error {
	if cfg.History.Path == "" {
		return nil
	}
	history, err := storage.Open(cfg.History.Path, cfg.History.Retention.Std(), logging.Component(a.logger, "history"))
	if err != nil {
		return fmt.Errorf("refresh history: %w", err)
	}
	a.history = history
	a.Registry.OnRefresh(storage.RefreshHook[json.RawMessage](history))
	return nil
}

// onConfigUpdate 热更新上游凭据和压缩设置；TTL 等缓存参数需要重启
func (a *App) onConfigUpdate(cfg *config.Config) {
	a.client.Store(upstream.NewClient(cfg.UpstreamClientConfig(), logging.Component(a.logger, "upstream")))
	a.compManager.Store(compression.NewManager(cfg.CompressionSettings()))

	if cfg.Reviews.CacheTTL.Std() != a.Registry.TTL() {
		a.logger.Warn().
			Dur("configured", cfg.Reviews.CacheTTL.Std()).
			Dur("active", a.Registry.TTL()).
			Msg("cache TTL change takes effect after restart")
	}
	a.logger.Info().Msg("runtime config applied")
}

// Server 创建 HTTP 服务器，按配置启用 h2c
func (a *App) Server() *http.Server {
	cfg := a.configManager.GetConfig()

	h := a.Handler
	if cfg.Server.EnableH2C {
		h = h2c.NewHandler(h, &http2.Server{})
	}

	return &http.Server{
		Addr:              net.JoinHostPort("", strconv.Itoa(cfg.Server.Port)),
		Handler:           h,
		ReadHeaderTimeout: constants.ReadHeaderTimeout,
		IdleTimeout:       constants.IdleTimeout,
	}
}

// Run 监听配置的端口并提供服务，ctx 取消后优雅关闭
func (a *App) Run(ctx context.Context) error {
	server := a.Server()
	ln, err := net.Listen("tcp", server.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", server.Addr, err)
	}
	return a.serve(ctx, server, ln)
}

// Serve 在给定的 listener 上提供服务
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	return a.serve(ctx, a.Server(), ln)
}

func (a *App) serve(ctx context.Context, server *http.Server, ln net.Listener) error {
	cfg := a.configManager.GetConfig()

	warmCtx, cancelWarm := context.WithCancel(ctx)
	defer cancelWarm()
	if delay := cfg.Reviews.WarmupDelay.Std(); delay > 0 {
		cache.WarmUp[json.RawMessage](warmCtx, a.Registry, cfg.Reviews.DefaultPlaceID, delay, logging.Component(a.logger, "warmup"))
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info().
			Str("addr", ln.Addr().String()).
			Bool("h2c", cfg.Server.EnableH2C).
			Dur("ttl", a.Registry.TTL()).
			Msg("review proxy listening")
		errCh <- server.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	a.logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		a.logger.Warn().Err(err).Msg("graceful shutdown failed")
		return server.Close()
	}
	return nil
}

// Close 释放后台资源，等待快照写完
func (a *App) Close() {
	if a.limiter != nil {
		a.limiter.Stop()
	}
	if a.saver != nil {
		a.saver.Wait()
	}
	if a.history != nil {
		if err := a.history.Close(); err != nil {
			a.logger.Warn().Err(err).Msg("failed to close history db")
		}
	}
}
