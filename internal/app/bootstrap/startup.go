// internal/app/bootstrap/startup.go
package bootstrap

import (
	"context"
	"fmt"

	"github.com/dalemusser/stratapage/internal/app/catalog"
	"github.com/dalemusser/stratapage/internal/app/editor"
	"github.com/dalemusser/stratapage/internal/app/store/mediadeletions"
	pagestore "github.com/dalemusser/stratapage/internal/app/store/pages"
	"github.com/dalemusser/stratapage/internal/app/system/invalidate"
	"github.com/dalemusser/stratapage/internal/app/system/media"
	"github.com/dalemusser/stratapage/internal/app/system/pagecache"
	"github.com/dalemusser/stratapage/internal/app/system/tasks"
	"github.com/dalemusser/stratapage/internal/app/system/timeouts"
	"github.com/dalemusser/waffle/config"
	"go.uber.org/zap"
)

// services are the long-lived page builder components shared by the
// HTTP handlers and background jobs.
type services struct {
	pages     *pagestore.Store
	cache     pagecache.Cache
	// pageInv is told about section writes made outside the catalog. It
	// evicts the page cache and marks the catalog stale.
	pageInv   invalidate.Invalidator
	catalog   *catalog.Catalog
	editors   *editor.Registry
	media     *media.Service
	deletions *mediadeletions.Store
}

var (
	// app is built in Startup and read by BuildHandler and Shutdown.
	app *services
	// taskRunner is the global task runner instance, used for graceful shutdown.
	taskRunner *tasks.Runner
)

// Startup runs once after DB connections and schema/index setup are complete,
// but before the HTTP handler is built and requests are served.
//
// It connects the page cache, builds the catalog, editor registry, and media
// service, warms the catalog, and starts the background jobs. Returning an
// error aborts startup.
func Startup(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	timeouts.Configure(timeouts.Config{
		Probe:      appCfg.ProbeTimeout,
		Background: appCfg.BackgroundTimeout,
		Job:        appCfg.JobTimeout,
	})

	cache, mem, err := openPageCache(ctx, appCfg, logger)
	if err != nil {
		return err
	}

	pages := pagestore.New(deps.MongoDatabase)
	cacheInv := pagecache.Invalidator(cache)
	cat := catalog.New(pages, cacheInv, logger)
	pageInv := invalidate.Multi{cacheInv, cat}
	editors := editor.NewRegistry(pages, pageInv, logger)

	deletions := mediadeletions.New(deps.MongoDatabase)
	mediaSvc, err := media.New(deps.FileStorage, deletions, media.Config{
		PublicKey:     appCfg.MediaPublicKey,
		SigningKey:    []byte(appCfg.MediaSigningKey),
		CredentialTTL: appCfg.MediaUploadTTL,
		MaxUploadSize: appCfg.MediaMaxUploadSize,
	}, logger)
	if err != nil {
		return fmt.Errorf("media service: %w", err)
	}

	// A cold catalog is not fatal; the first List retries the load.
	if err := cat.Load(ctx); err != nil {
		logger.Warn("initial page catalog load failed", zap.Error(err))
	}

	app = &services{
		pages:     pages,
		cache:     cache,
		pageInv:   pageInv,
		catalog:   cat,
		editors:   editors,
		media:     mediaSvc,
		deletions: deletions,
	}

	startTaskRunner(appCfg, mem, logger)
	return nil
}

// openPageCache connects Redis when configured and falls back to an
// in-process cache otherwise. mem is non-nil only for the in-process cache,
// which needs a sweep job.
func openPageCache(ctx context.Context, appCfg AppConfig, logger *zap.Logger) (pagecache.Cache, *pagecache.Memory, error) {
	if appCfg.CacheRedisAddr == "" {
		logger.Info("using in-process page cache", zap.Duration("ttl", appCfg.CacheTTL))
		mem := pagecache.NewMemory(appCfg.CacheTTL)
		return mem, mem, nil
	}
	rc, err := pagecache.NewRedis(ctx, pagecache.RedisConfig{
		Addr:     appCfg.CacheRedisAddr,
		Password: appCfg.CacheRedisPassword,
		DB:       appCfg.CacheRedisDB,
		TTL:      appCfg.CacheTTL,
	})
	if err != nil {
		logger.Error("failed to connect page cache", zap.String("addr", appCfg.CacheRedisAddr), zap.Error(err))
		return nil, nil, fmt.Errorf("page cache: %w", err)
	}
	logger.Info("connected Redis page cache",
		zap.String("addr", appCfg.CacheRedisAddr),
		zap.Duration("ttl", appCfg.CacheTTL),
	)
	return rc, nil, nil
}

// startTaskRunner initializes and starts the background task runner.
func startTaskRunner(appCfg AppConfig, mem *pagecache.Memory, logger *zap.Logger) {
	taskRunner = tasks.New(logger)

	taskRunner.Register(tasks.MediaDeleteRetryJob(app.media, app.deletions, appCfg.MediaDeleteRetryPeriod, logger))
	if appCfg.EditorIdleTimeout > 0 {
		taskRunner.Register(tasks.EditorReapJob(app.editors, appCfg.EditorIdleTimeout))
	}
	if mem != nil {
		taskRunner.Register(tasks.CacheSweepJob(mem, appCfg.CacheTTL, logger))
	}

	taskRunner.Start()
}
