// internal/app/bootstrap/config.go
package bootstrap

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dalemusser/stratapage/internal/app/system/auth"
	"github.com/dalemusser/stratapage/internal/app/system/media"
	"github.com/dalemusser/stratapage/internal/app/system/timeouts"
	"github.com/dalemusser/waffle/config"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.uber.org/zap"
)

// EnvVarPrefix is the prefix for environment variables.
const EnvVarPrefix = "STRATAPAGE"

// appConfigKeys defines the configuration keys for this application.
// These are loaded via WAFFLE's config system with support for:
//   - Config files: mongo_uri, storage_type, etc.
//   - Environment variables: STRATAPAGE_MONGO_URI, STRATAPAGE_STORAGE_TYPE, etc.
//   - Command-line flags: --mongo_uri, --storage_type, etc.
var appConfigKeys = []config.AppKey{
	{Name: "mongo_uri", Default: "mongodb://localhost:27017", Desc: "MongoDB connection URI"},
	{Name: "mongo_database", Default: "stratapage", Desc: "MongoDB database name"},
	{Name: "mongo_max_pool_size", Default: 100, Desc: "MongoDB max connection pool size (default: 100)"},
	{Name: "mongo_min_pool_size", Default: 10, Desc: "MongoDB min connection pool size (default: 10)"},

	// Admin API
	{Name: "api_key", Default: "", Desc: "Bearer key for /api/admin (leave empty to disable the admin API)"},
	{Name: "api_cors_origins", Default: "", Desc: "Comma-separated origins allowed to call the API (blank allows any)"},

	// File storage configuration
	{Name: "storage_type", Default: "local", Desc: "Storage backend: 'local' or 's3'"},
	{Name: "storage_local_path", Default: "./uploads", Desc: "Local storage path for uploaded files"},
	{Name: "storage_local_url", Default: "/files", Desc: "URL prefix for serving local files"},

	// S3/CloudFront configuration
	{Name: "storage_s3_region", Default: "", Desc: "AWS region for S3"},
	{Name: "storage_s3_bucket", Default: "", Desc: "S3 bucket name"},
	{Name: "storage_s3_prefix", Default: "uploads/", Desc: "S3 key prefix"},
	{Name: "storage_cf_url", Default: "", Desc: "CloudFront distribution URL"},
	{Name: "storage_cf_keypair_id", Default: "", Desc: "CloudFront key pair ID"},
	{Name: "storage_cf_key_path", Default: "", Desc: "Path to CloudFront private key file"},

	// Media uploads
	{Name: "media_public_key", Default: "stratapage", Desc: "Public key echoed in upload credentials"},
	{Name: "media_signing_key", Default: "dev-only-media-signing-key-change-me-0123456789", Desc: "Upload credential signing key (32+ bytes)"},
	{Name: "media_upload_ttl", Default: "30m", Desc: "How long upload credentials stay valid"},
	{Name: "media_max_upload_size", Default: media.DefaultMaxUploadSize, Desc: "Largest accepted upload in bytes"},
	{Name: "media_delete_retry_interval", Default: "5m", Desc: "How often failed media deletions are retried"},
	{Name: "upload_max_failures", Default: 10, Desc: "Bad upload credentials allowed per client before lockout (0 disables)"},
	{Name: "upload_failure_window", Default: "15m", Desc: "Window for counting bad upload credentials"},
	{Name: "upload_lockout", Default: "15m", Desc: "How long a client is locked out of uploads"},

	// Page cache
	{Name: "cache_redis_addr", Default: "", Desc: "Redis address for the page cache (blank uses an in-process cache)"},
	{Name: "cache_redis_password", Default: "", Desc: "Redis password"},
	{Name: "cache_redis_db", Default: 0, Desc: "Redis database number"},
	{Name: "cache_ttl", Default: "10m", Desc: "How long published pages stay cached"},

	// Editor
	{Name: "editor_idle_timeout", Default: "2h", Desc: "Close editing sessions idle for this long"},

	// Timeouts
	{Name: "timeout_probe", Default: "3s", Desc: "Deadline for health and status probes"},
	{Name: "timeout_background", Default: "5s", Desc: "Deadline for background writes such as ledger entries"},
	{Name: "timeout_job", Default: "2m", Desc: "Deadline for one run of a background job"},

	{Name: "base_url", Default: "", Desc: "Public site URL, used to report its TLS certificate"},

	// Home page
	{Name: "home_slug", Default: "home", Desc: "Slug of the page served at /"},
	{Name: "seed_home_page", Default: true, Desc: "Create an unpublished home page on first start"},
}

// LoadConfig loads WAFFLE core config and app-specific config.
//
// WAFFLE's config.LoadWithAppConfig merges flags > env > files > defaults,
// reading WAFFLE_* for core settings and STRATAPAGE_* for the keys above.
func LoadConfig(logger *zap.Logger) (*config.CoreConfig, AppConfig, error) {
	coreCfg, appValues, err := config.LoadWithAppConfig(logger, EnvVarPrefix, appConfigKeys)
	if err != nil {
		return nil, AppConfig{}, err
	}

	appCfg := AppConfig{
		MongoURI:         appValues.String("mongo_uri"),
		MongoDatabase:    appValues.String("mongo_database"),
		MongoMaxPoolSize: uint64(appValues.Int("mongo_max_pool_size")),
		MongoMinPoolSize: uint64(appValues.Int("mongo_min_pool_size")),

		APIKey:         appValues.String("api_key"),
		APICORSOrigins: splitList(appValues.String("api_cors_origins")),

		// File storage
		StorageType:      appValues.String("storage_type"),
		StorageLocalPath: appValues.String("storage_local_path"),
		StorageLocalURL:  appValues.String("storage_local_url"),

		// S3/CloudFront
		StorageS3Region:    appValues.String("storage_s3_region"),
		StorageS3Bucket:    appValues.String("storage_s3_bucket"),
		StorageS3Prefix:    appValues.String("storage_s3_prefix"),
		StorageCFURL:       appValues.String("storage_cf_url"),
		StorageCFKeyPairID: appValues.String("storage_cf_keypair_id"),
		StorageCFKeyPath:   appValues.String("storage_cf_key_path"),

		// Media
		MediaPublicKey:         appValues.String("media_public_key"),
		MediaSigningKey:        appValues.String("media_signing_key"),
		MediaUploadTTL:         appValues.Duration("media_upload_ttl", media.DefaultCredentialTTL),
		MediaMaxUploadSize:     int64(appValues.Int("media_max_upload_size")),
		MediaDeleteRetryPeriod: appValues.Duration("media_delete_retry_interval", 5*time.Minute),

		UploadMaxFailures:   appValues.Int("upload_max_failures"),
		UploadFailureWindow: appValues.Duration("upload_failure_window", 15*time.Minute),
		UploadLockout:       appValues.Duration("upload_lockout", 15*time.Minute),

		// Page cache
		CacheRedisAddr:     appValues.String("cache_redis_addr"),
		CacheRedisPassword: appValues.String("cache_redis_password"),
		CacheRedisDB:       appValues.Int("cache_redis_db"),
		CacheTTL:           appValues.Duration("cache_ttl", 10*time.Minute),

		EditorIdleTimeout: appValues.Duration("editor_idle_timeout", 2*time.Hour),

		ProbeTimeout:      appValues.Duration("timeout_probe", timeouts.DefaultProbe),
		BackgroundTimeout: appValues.Duration("timeout_background", timeouts.DefaultBackground),
		JobTimeout:        appValues.Duration("timeout_job", timeouts.DefaultJob),

		BaseURL: strings.TrimSpace(appValues.String("base_url")),

		HomeSlug:     strings.TrimSpace(appValues.String("home_slug")),
		SeedHomePage: appValues.Bool("seed_home_page"),
	}

	return coreCfg, appCfg, nil
}

// ValidateConfig performs app-specific config validation.
//
// Return nil to accept the loaded config, or an error to abort startup.
func ValidateConfig(coreCfg *config.CoreConfig, appCfg AppConfig, logger *zap.Logger) error {
	if err := wafflemongo.ValidateURI(appCfg.MongoURI); err != nil {
		logger.Error("invalid MongoDB URI", zap.Error(err))
		return fmt.Errorf("invalid MongoDB URI: %w", err)
	}

	switch appCfg.StorageType {
	case "local", "":
	case "s3":
		if appCfg.StorageS3Bucket == "" || appCfg.StorageS3Region == "" {
			return errors.New("s3 storage requires storage_s3_bucket and storage_s3_region")
		}
	default:
		return fmt.Errorf("unknown storage type: %s", appCfg.StorageType)
	}

	if len(appCfg.MediaSigningKey) < 32 {
		return errors.New("media_signing_key must be at least 32 bytes")
	}
	if strings.HasPrefix(appCfg.MediaSigningKey, "dev-only") {
		if coreCfg.Env == "prod" {
			return errors.New("media_signing_key must be changed in production")
		}
		logger.Warn("using the development media signing key")
	}

	switch {
	case appCfg.APIKey == "":
		logger.Warn("api_key is empty; the admin API is disabled")
	case auth.IsWeakKey(appCfg.APIKey):
		logger.Warn("api_key is weak; use at least 32 random characters")
	}

	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
