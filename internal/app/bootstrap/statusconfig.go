// internal/app/bootstrap/statusconfig.go
package bootstrap

import (
	"strconv"
	"strings"

	statusfeature "github.com/dalemusser/stratapage/internal/app/features/status"
	"github.com/dalemusser/waffle/config"
)

// statusConfig lists the effective configuration for the status report.
// Secrets are masked.
func statusConfig(coreCfg *config.CoreConfig, appCfg AppConfig) []statusfeature.ConfigGroup {
	mask := statusfeature.Mask
	item := func(name, value string) statusfeature.ConfigItem {
		return statusfeature.ConfigItem{Name: name, Value: value}
	}

	var groups []statusfeature.ConfigGroup
	if coreCfg != nil {
		groups = append(groups, statusfeature.ConfigGroup{
			Name: "Environment",
			Items: []statusfeature.ConfigItem{
				item("env", coreCfg.Env),
				item("log_level", coreCfg.LogLevel),
			},
		})
	}

	cacheBackend := "memory"
	if appCfg.CacheRedisAddr != "" {
		cacheBackend = "redis " + appCfg.CacheRedisAddr
	}

	groups = append(groups,
		statusfeature.ConfigGroup{Name: "MongoDB", Items: []statusfeature.ConfigItem{
			item("mongo_uri", mask(appCfg.MongoURI)),
			item("mongo_database", appCfg.MongoDatabase),
			item("mongo_max_pool_size", strconv.FormatUint(appCfg.MongoMaxPoolSize, 10)),
			item("mongo_min_pool_size", strconv.FormatUint(appCfg.MongoMinPoolSize, 10)),
		}},
		statusfeature.ConfigGroup{Name: "Admin API", Items: []statusfeature.ConfigItem{
			item("api_key", mask(appCfg.APIKey)),
			item("api_cors_origins", strings.Join(appCfg.APICORSOrigins, ", ")),
		}},
		statusfeature.ConfigGroup{Name: "Storage", Items: []statusfeature.ConfigItem{
			item("storage_type", appCfg.StorageType),
			item("storage_local_path", appCfg.StorageLocalPath),
			item("storage_local_url", appCfg.StorageLocalURL),
			item("storage_s3_region", appCfg.StorageS3Region),
			item("storage_s3_bucket", appCfg.StorageS3Bucket),
			item("storage_s3_prefix", appCfg.StorageS3Prefix),
			item("storage_cf_url", appCfg.StorageCFURL),
			item("storage_cf_keypair_id", mask(appCfg.StorageCFKeyPairID)),
		}},
		statusfeature.ConfigGroup{Name: "Media", Items: []statusfeature.ConfigItem{
			item("media_public_key", appCfg.MediaPublicKey),
			item("media_signing_key", mask(appCfg.MediaSigningKey)),
			item("media_upload_ttl", appCfg.MediaUploadTTL.String()),
			item("media_max_upload_size", strconv.FormatInt(appCfg.MediaMaxUploadSize, 10)),
			item("media_delete_retry_interval", appCfg.MediaDeleteRetryPeriod.String()),
			item("upload_max_failures", strconv.Itoa(appCfg.UploadMaxFailures)),
			item("upload_failure_window", appCfg.UploadFailureWindow.String()),
			item("upload_lockout", appCfg.UploadLockout.String()),
		}},
		statusfeature.ConfigGroup{Name: "Pages", Items: []statusfeature.ConfigItem{
			item("cache", cacheBackend),
			item("cache_ttl", appCfg.CacheTTL.String()),
			item("editor_idle_timeout", appCfg.EditorIdleTimeout.String()),
			item("timeout_probe", appCfg.ProbeTimeout.String()),
			item("timeout_job", appCfg.JobTimeout.String()),
			item("home_slug", appCfg.HomeSlug),
			item("seed_home_page", strconv.FormatBool(appCfg.SeedHomePage)),
			item("base_url", appCfg.BaseURL),
		}},
	)
	return groups
}
