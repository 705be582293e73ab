// Package ledger records admin API requests that fail, so an integrator's
// "it returned 400" can be traced to the request that caused it. Every
// request gets an X-Request-ID response header; only failures are stored.
package ledger

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"strings"
	"time"

	ledgerstore "github.com/dalemusser/stratapage/internal/app/store/ledger"
	"github.com/dalemusser/stratapage/internal/app/system/network"
	"github.com/dalemusser/stratapage/internal/app/system/timeouts"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type ctxKey int

const ctxKeyEntry ctxKey = iota

// maxCapturedBody is the largest body hashed and previewed. Larger bodies
// are recorded by size only.
const maxCapturedBody = 1 << 20

// Recorder persists entries.
type Recorder interface {
	Create(ctx context.Context, e ledgerstore.Entry) error
}

// Config holds configuration for the ledger middleware.
type Config struct {
	Store  Recorder
	Logger *zap.Logger

	// MaxBodyPreview is how many characters of a JSON body are kept.
	// Zero disables the preview.
	MaxBodyPreview int

	// HeadersToCapture are copied into the entry. Authorization is
	// always redacted.
	HeadersToCapture []string

	// RecordAll stores successful requests too.
	RecordAll bool
}

// DefaultConfig returns the configuration used for the admin API.
func DefaultConfig(store Recorder, logger *zap.Logger) Config {
	return Config{
		Store:          store,
		Logger:         logger,
		MaxBodyPreview: 500,
		HeadersToCapture: []string{
			"Content-Type",
			"User-Agent",
			"Authorization",
			"X-Forwarded-For",
		},
	}
}

// Middleware returns HTTP middleware that records requests to the ledger.
func Middleware(cfg Config) func(http.Handler) http.Handler {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			entry := &ledgerstore.Entry{
				RequestID:       uuid.NewString(),
				ClientRequestID: r.Header.Get("X-Request-ID"),
				Method:          r.Method,
				Path:            r.URL.Path,
				Query:           r.URL.RawQuery,
				Headers:         captureHeaders(r, cfg.HeadersToCapture),
				RemoteIP:        network.ClientIP(r),
			}
			captureBody(r, entry, cfg.MaxBodyPreview)

			w.Header().Set("X-Request-ID", entry.RequestID)
			wrapped := &responseWrapper{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(wrapped, r.WithContext(context.WithValue(r.Context(), ctxKeyEntry, entry)))

			entry.Status = wrapped.statusCode
			entry.ResponseSize = wrapped.bytesWritten
			entry.DurationMs = float64(time.Since(start).Microseconds()) / 1000.0
			entry.CreatedAt = start.UTC()
			if entry.Status < 400 && !cfg.RecordAll {
				return
			}
			if entry.Status >= 400 && entry.ErrorKind == "" {
				entry.ErrorKind = kindForStatus(entry.Status)
			}

			// Stored off the request path; a slow ledger never delays the
			// response.
			e := *entry
			go func() {
				ctx, cancel := timeouts.WithTimeout(context.Background(), timeouts.Background(), cfg.Logger, "store ledger entry")
				defer cancel()
				if err := cfg.Store.Create(ctx, e); err != nil {
					cfg.Logger.Warn("failed to store ledger entry",
						zap.String("request_id", e.RequestID),
						zap.Error(err))
				}
			}()
		})
	}
}

func captureHeaders(r *http.Request, names []string) map[string]string {
	if len(names) == 0 {
		return nil
	}
	headers := make(map[string]string, len(names))
	for _, name := range names {
		v := r.Header.Get(name)
		if v == "" {
			continue
		}
		if strings.EqualFold(name, "Authorization") {
			v = "[redacted]"
		}
		headers[name] = v
	}
	return headers
}

// captureBody records size, hash and preview of a JSON body and restores
// it for the handler.
func captureBody(r *http.Request, e *ledgerstore.Entry, preview int) {
	if r.Body == nil || r.ContentLength <= 0 {
		return
	}
	e.BodySize = r.ContentLength
	if r.ContentLength > maxCapturedBody || !strings.Contains(r.Header.Get("Content-Type"), "json") {
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return
	}
	r.Body = io.NopCloser(bytes.NewReader(body))

	sum := sha256.Sum256(body)
	e.BodyHash = hex.EncodeToString(sum[:])[:8]
	if preview > 0 {
		p := string(body)
		if len(p) > preview {
			p = p[:preview] + "..."
		}
		e.BodyPreview = p
	}
}

func kindForStatus(status int) string {
	switch {
	case status == http.StatusBadRequest:
		return "validation"
	case status == http.StatusUnauthorized:
		return "auth"
	case status == http.StatusNotFound:
		return "not_found"
	case status == http.StatusConflict:
		return "conflict"
	case status >= 500:
		return "internal"
	default:
		return "client_error"
	}
}

type responseWrapper struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int64
	wroteHeader  bool
}

func (rw *responseWrapper) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.statusCode = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWrapper) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += int64(n)
	return n, err
}

// Flush implements http.Flusher.
func (rw *responseWrapper) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}


// SetErrorKind tags the current request's entry with an error kind. It is
// a no-op outside the middleware.
func SetErrorKind(ctx context.Context, kind string) {
	if entry, ok := ctx.Value(ctxKeyEntry).(*ledgerstore.Entry); ok {
		entry.ErrorKind = kind
	}
}

// RequestID returns the ledger's id for the current request, or "".
func RequestID(ctx context.Context) string {
	if entry, ok := ctx.Value(ctxKeyEntry).(*ledgerstore.Entry); ok {
		return entry.RequestID
	}
	return ""
}
