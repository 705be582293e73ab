// internal/app/bootstrap/appconfig.go
package bootstrap

import "time"

// AppConfig holds service-specific configuration for this WAFFLE app.
//
// These values come from environment variables, configuration files, or
// command-line flags (loaded in LoadConfig). WAFFLE's CoreConfig covers
// ports, TLS, logging, CORS, and body limits; everything the page builder
// itself needs lives here.
type AppConfig struct {
	// MongoDB connection configuration
	MongoURI         string // MongoDB connection string (e.g., mongodb://localhost:27017)
	MongoDatabase    string // Database name within MongoDB
	MongoMaxPoolSize uint64 // Maximum connections in pool (default: 100)
	MongoMinPoolSize uint64 // Minimum connections to keep warm (default: 10)

	// APIKey guards /api/admin/*. Empty disables the admin API entirely.
	APIKey string
	// APICORSOrigins lists origins allowed to call the JSON API. Empty
	// means any origin.
	APICORSOrigins []string

	// File storage configuration
	StorageType      string // Storage backend: "local" or "s3"
	StorageLocalPath string // Local storage path (e.g., "./uploads")
	StorageLocalURL  string // URL prefix for serving local files (e.g., "/files")

	// S3/CloudFront configuration (only used if StorageType is "s3")
	StorageS3Region    string
	StorageS3Bucket    string
	StorageS3Prefix    string
	StorageCFURL       string
	StorageCFKeyPairID string
	StorageCFKeyPath   string

	// Media uploads
	MediaPublicKey         string        // Echoed in upload credentials
	MediaSigningKey        string        // Signs upload credentials (32+ bytes)
	MediaUploadTTL         time.Duration // Lifetime of upload credentials (default: 30m)
	MediaMaxUploadSize     int64         // Largest accepted upload in bytes (default: 64 MiB)
	MediaDeleteRetryPeriod time.Duration // How often failed blob deletions are retried (default: 5m)

	// Upload lockout after repeated bad credentials, per client IP.
	// UploadMaxFailures of zero disables it.
	UploadMaxFailures   int
	UploadFailureWindow time.Duration
	UploadLockout       time.Duration

	// Published page cache. CacheRedisAddr selects Redis; blank keeps the
	// cache in process.
	CacheRedisAddr     string
	CacheRedisPassword string
	CacheRedisDB       int
	CacheTTL           time.Duration

	// EditorIdleTimeout closes editing sessions nobody has touched for this long.
	EditorIdleTimeout time.Duration

	// Deadlines for dependency probes, background writes and job runs.
	ProbeTimeout      time.Duration
	BackgroundTimeout time.Duration
	JobTimeout        time.Duration

	// BaseURL is the public site address. When set, the status report
	// includes its TLS certificate.
	BaseURL string

	// HomeSlug is the page served at "/" and seeded on first start.
	HomeSlug string
	// SeedHomePage creates an unpublished home page when none exists.
	SeedHomePage bool
}
