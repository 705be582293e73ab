// internal/app/bootstrap/routes.go
package bootstrap

import (
	"errors"
	"net/http"
	"time"

	editorfeature "github.com/dalemusser/stratapage/internal/app/features/editor"
	errorsfeature "github.com/dalemusser/stratapage/internal/app/features/errors"
	healthfeature "github.com/dalemusser/stratapage/internal/app/features/health"
	jobsfeature "github.com/dalemusser/stratapage/internal/app/features/jobs"
	ledgerfeature "github.com/dalemusser/stratapage/internal/app/features/ledger"
	mediaapifeature "github.com/dalemusser/stratapage/internal/app/features/mediaapi"
	pageadminfeature "github.com/dalemusser/stratapage/internal/app/features/pageadmin"
	pagesfeature "github.com/dalemusser/stratapage/internal/app/features/pages"
	statusfeature "github.com/dalemusser/stratapage/internal/app/features/status"
	"github.com/dalemusser/stratapage/internal/app/render"
	appresources "github.com/dalemusser/stratapage/internal/app/resources"
	ledgerstore "github.com/dalemusser/stratapage/internal/app/store/ledger"
	"github.com/dalemusser/stratapage/internal/app/store/ratelimit"
	"github.com/dalemusser/stratapage/internal/app/system/apicors"
	"github.com/dalemusser/stratapage/internal/app/system/auth"
	"github.com/dalemusser/stratapage/internal/app/system/ledger"
	"github.com/dalemusser/stratapage/internal/domain/models"
	"github.com/dalemusser/waffle/config"
	"github.com/dalemusser/waffle/middleware"
	"github.com/dalemusser/waffle/pantry/fileserver"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// BuildHandler constructs the root HTTP handler for this WAFFLE app.
//
// WAFFLE calls this after configuration, DB connections, schema setup, and
// Startup have completed. The router serves three audiences:
//   - Visitors: published pages as HTML at /{slug} and / (the home page)
//   - Browsers uploading media: POST /api/media/upload with signed credentials
//   - Editors: the JSON admin API under /api/admin, guarded by the API key
//
// Public API routes get permissive CORS via apicors; the admin API adds
// API key auth and the request ledger.
func BuildHandler(coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) (http.Handler, error) {
	if app == nil {
		return nil, errors.New("bootstrap: Startup has not run")
	}

	renderer, err := render.New(
		render.WithAssetBase("/assets"),
		render.WithUnknownHandler(func(s models.Section) {
			logger.Warn("skipping section with unknown type",
				zap.String("section_id", s.ID),
				zap.String("type", string(s.Type)))
		}),
	)
	if err != nil {
		logger.Error("page renderer init failed", zap.Error(err))
		return nil, err
	}

	errLog := errorsfeature.NewErrorLogger(logger)
	errorsHandler := errorsfeature.NewHandler(renderer, errLog)

	r := chi.NewRouter()

	// Global middleware.
	// Request timeout: cancel the context of requests that run too long.
	r.Use(chimw.Timeout(30 * time.Second))

	// CORS for the HTML side comes from WAFFLE core config.
	r.Use(middleware.CORSFromConfig(coreCfg))

	// Security headers (X-Frame-Options, CSP, etc.)
	r.Use(middleware.SecurityHeadersFromConfig(coreCfg))

	// Health checks. The page cache is reported but never fails readiness;
	// the resolver falls back to MongoDB without it.
	healthHandler := healthfeature.NewHandler(logger,
		healthfeature.Mongo(deps.MongoClient),
		healthfeature.Optional("page_cache", app.cache),
	)
	r.Mount("/health", healthfeature.Routes(healthHandler))
	healthfeature.MountRootEndpoints(r, healthHandler)

	// Embedded stylesheet for rendered pages.
	r.Handle("/assets/*", appresources.AssetsHandler("/assets"))

	// Uploaded media, when stored on local disk.
	if appCfg.StorageType == "local" || appCfg.StorageType == "" {
		r.Handle(appCfg.StorageLocalURL+"/*", fileserver.Handler(appCfg.StorageLocalURL, appCfg.StorageLocalPath))
	}

	resolver := pagesfeature.NewResolver(app.pages, app.cache, logger)
	pagesHandler := pagesfeature.NewHandler(resolver, renderer, errorsHandler, logger,
		pagesfeature.WithHomeSlug(appCfg.HomeSlug))
	var mediaOpts []mediaapifeature.Option
	if appCfg.UploadMaxFailures > 0 {
		mediaOpts = append(mediaOpts, mediaapifeature.WithLimiter(ratelimit.New(deps.MongoDatabase, ratelimit.Config{
			MaxFailures: appCfg.UploadMaxFailures,
			Window:      appCfg.UploadFailureWindow,
			Lockout:     appCfg.UploadLockout,
		})))
	}
	mediaHandler := mediaapifeature.NewHandler(app.media, appCfg.MediaMaxUploadSize, errorsHandler, logger, mediaOpts...)

	// Public JSON API.
	r.Group(func(r chi.Router) {
		r.Use(apicors.Middleware(appCfg.APICORSOrigins...))
		r.Mount("/api/pages", pagesfeature.APIRoutes(pagesHandler))
		r.Mount("/api/media", mediaapifeature.UploadRoutes(mediaHandler))
	})

	// Admin JSON API. Without a key there is nothing to authenticate
	// against, so the routes are not mounted at all.
	if appCfg.APIKey != "" {
		ledgerStore := ledgerstore.New(deps.MongoDatabase)
		pageAdmin := pageadminfeature.NewHandler(app.catalog, app.pages, app.media, app.pageInv, errorsHandler, logger)
		editorHandler := editorfeature.NewHandler(app.editors, errorsHandler, logger)
		ledgerHandler := ledgerfeature.NewHandler(ledgerStore, errorsHandler)
		jobsHandler := jobsfeature.NewHandler(taskRunner, errorsHandler, logger)
		statusHandler := statusfeature.NewHandler(statusfeature.Sources{
			Mongo:     deps.MongoClient,
			Catalog:   app.catalog,
			Editors:   app.editors,
			Deletions: app.deletions,
			Cache:     app.cache,
		}, appCfg.BaseURL, statusConfig(coreCfg, appCfg), logger)

		r.Route("/api/admin", func(r chi.Router) {
			r.Use(apicors.Middleware(appCfg.APICORSOrigins...))
			r.Use(auth.APIKeyAuth(appCfg.APIKey, logger))
			r.Use(ledger.Middleware(ledger.DefaultConfig(ledgerStore, logger)))

			r.Mount("/pages", pageadminfeature.Routes(pageAdmin))
			r.Mount("/editor", editorfeature.Routes(editorHandler))
			r.Mount("/media", mediaapifeature.AdminRoutes(mediaHandler))
			r.Mount("/ledger", ledgerfeature.Routes(ledgerHandler))
			r.Mount("/jobs", jobsfeature.Routes(jobsHandler))
			r.Mount("/status", statusfeature.Routes(statusHandler))
		})
	}

	// Published pages. Mounted last so it only sees what nothing else claimed.
	r.Mount("/", pagesfeature.Routes(pagesHandler))

	r.NotFound(errorsHandler.NotFound)
	r.MethodNotAllowed(errorsHandler.MethodNotAllowed)

	logger.Info("routes registered",
		zap.Bool("admin_api", appCfg.APIKey != ""),
		zap.String("home_slug", appCfg.HomeSlug),
	)
	return r, nil
}
