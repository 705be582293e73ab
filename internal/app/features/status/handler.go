// internal/app/features/status/handler.go
package status

import (
	"context"
	"net/http"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/dalemusser/stratapage/internal/app/catalog"
	"github.com/dalemusser/stratapage/internal/app/system/certcheck"
	"github.com/dalemusser/stratapage/internal/app/system/jsonutil"
	"github.com/dalemusser/stratapage/internal/app/system/pagecache"
	"github.com/dalemusser/stratapage/internal/app/system/timeouts"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"
)

var startTime = time.Now()

// Sources are the components the report reads. Nil members are reported
// as absent.
type Sources struct {
	Mongo     *mongo.Client
	Catalog   interface{ List(ctx context.Context) ([]catalog.Summary, error) }
	Editors   interface{ Len() int }
	Deletions interface {
		Count(ctx context.Context) (int64, error)
	}
	Cache pagecache.Cache
}

// Handler serves the operator status report.
type Handler struct {
	src     Sources
	baseURL string
	config  []ConfigGroup
	log     *zap.Logger
}

// NewHandler creates a status handler. baseURL, when set, is the public
// site whose TLS certificate is reported. config is shown as given, so
// secrets must already be masked.
func NewHandler(src Sources, baseURL string, config []ConfigGroup, logger *zap.Logger) *Handler {
	return &Handler{src: src, baseURL: baseURL, config: config, log: logger}
}

// Routes returns the status router. Authentication is applied by the caller.
func Routes(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Get("/", h.Serve)
	return r
}

// ConfigItem is one displayed setting.
type ConfigItem struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// ConfigGroup is a titled list of settings.
type ConfigGroup struct {
	Name  string       `json:"name"`
	Items []ConfigItem `json:"items"`
}

// Report is the status document.
type Report struct {
	GoVersion     string `json:"goVersion"`
	Uptime        string `json:"uptime"`
	UptimeSeconds int64  `json:"uptimeSeconds"`
	NumGoroutine  int    `json:"numGoroutine"`
	MemAlloc      string `json:"memAlloc"`

	Database DatabaseStatus `json:"database"`
	Pages    PageStatus     `json:"pages"`
	Cache    CacheStatus    `json:"cache"`

	EditorSessions        int   `json:"editorSessions"`
	PendingMediaDeletions int64 `json:"pendingMediaDeletions"`

	Certificate *certcheck.CertInfo `json:"certificate,omitempty"`
	Config      []ConfigGroup       `json:"config"`
}

// DatabaseStatus describes the MongoDB connection.
type DatabaseStatus struct {
	Connected bool   `json:"connected"`
	PingMS    int64  `json:"pingMs"`
	Version   string `json:"version,omitempty"`
	Error     string `json:"error,omitempty"`
}

// PageStatus counts catalog pages.
type PageStatus struct {
	Total     int    `json:"total"`
	Published int    `json:"published"`
	Error     string `json:"error,omitempty"`
}

// CacheStatus describes the published page cache.
type CacheStatus struct {
	Backend string `json:"backend"`
	Healthy bool   `json:"healthy"`
	// Entries is reported by the in-process cache only.
	Entries *int   `json:"entries,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Serve handles GET /.
func (h *Handler) Serve(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Probe())
	defer cancel()

	up := time.Since(startTime)
	rep := Report{
		GoVersion:     runtime.Version(),
		Uptime:        formatDuration(up),
		UptimeSeconds: int64(up.Seconds()),
		NumGoroutine:  runtime.NumGoroutine(),
		Config:        h.config,
	}

	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	rep.MemAlloc = formatBytes(m.Alloc)

	rep.Database = h.database(ctx)
	rep.Pages = h.pages(ctx)
	rep.Cache = h.cache(ctx)

	if h.src.Editors != nil {
		rep.EditorSessions = h.src.Editors.Len()
	}
	if h.src.Deletions != nil {
		n, err := h.src.Deletions.Count(ctx)
		if err != nil {
			h.log.Warn("status: count pending media deletions", zap.Error(err))
		}
		rep.PendingMediaDeletions = n
	}

	if h.baseURL != "" {
		info := certcheck.Check(ctx, h.baseURL)
		rep.Certificate = &info
	}

	w.Header().Set("Cache-Control", "no-store")
	jsonutil.OK(w, rep)
}

func (h *Handler) database(ctx context.Context) DatabaseStatus {
	if h.src.Mongo == nil {
		return DatabaseStatus{Error: "not configured"}
	}
	var st DatabaseStatus
	start := time.Now()
	if err := h.src.Mongo.Ping(ctx, readpref.Primary()); err != nil {
		h.log.Warn("status: database ping failed", zap.Error(err))
		st.Error = "ping failed"
		return st
	}
	st.Connected = true
	st.PingMS = time.Since(start).Milliseconds()

	var info bson.M
	if err := h.src.Mongo.Database("admin").RunCommand(ctx, bson.D{{Key: "buildInfo", Value: 1}}).Decode(&info); err == nil {
		if v, ok := info["version"].(string); ok {
			st.Version = v
		}
	}
	return st
}

func (h *Handler) pages(ctx context.Context) PageStatus {
	if h.src.Catalog == nil {
		return PageStatus{}
	}
	list, err := h.src.Catalog.List(ctx)
	st := PageStatus{Total: len(list)}
	if err != nil {
		st.Error = "catalog unavailable"
	}
	for _, p := range list {
		if p.IsPublished {
			st.Published++
		}
	}
	return st
}

func (h *Handler) cache(ctx context.Context) CacheStatus {
	switch c := h.src.Cache.(type) {
	case nil:
		return CacheStatus{Backend: "none"}
	case *pagecache.Memory:
		n := c.Len()
		return CacheStatus{Backend: "memory", Healthy: true, Entries: &n}
	default:
		st := CacheStatus{Backend: "redis", Healthy: true}
		if err := c.Ping(ctx); err != nil {
			st.Healthy = false
			st.Error = "ping failed"
		}
		return st
	}
}

// Mask hides all but the ends of a secret.
func Mask(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 4 {
		return "****"
	}
	return s[:2] + strings.Repeat("*", len(s)-4) + s[len(s)-2:]
}

func formatDuration(d time.Duration) string {
	days := int(d.Hours() / 24)
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60

	if days > 0 {
		return formatPlural(days, "day") + " " + formatPlural(hours, "hour")
	}
	if hours > 0 {
		return formatPlural(hours, "hour") + " " + formatPlural(minutes, "min")
	}
	return formatPlural(minutes, "min")
}

func formatPlural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return strconv.Itoa(n) + " " + unit + "s"
}

func formatBytes(b uint64) string {
	const unit = 1024
	if b < unit {
		return strconv.Itoa(int(b)) + " B"
	}
	div, exp := uint64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	tenths := int(float64(b) / float64(div) * 10)
	return strconv.Itoa(tenths/10) + "." + strconv.Itoa(tenths%10) + " " + string("KMGTPE"[exp]) + "iB"
}
