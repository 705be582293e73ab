// Package mediaapi serves the media store over HTTP.
//
// The admin side (API key required) issues upload credentials and deletes
// blobs. The upload endpoint itself is public: browsers post files straight
// to it with single-use credentials obtained from the admin side.
//
//   - GET    /api/admin/media/upload-auth     - fresh credentials
//   - DELETE /api/admin/media?fileId=...      - delete a blob
//   - POST   /api/media/upload                - multipart upload
//
// With a Limiter, clients that keep presenting bad credentials are locked
// out of the upload endpoint for a while.
package mediaapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	errorsfeature "github.com/dalemusser/stratapage/internal/app/features/errors"
	"github.com/dalemusser/stratapage/internal/app/system/apperr"
	"github.com/dalemusser/stratapage/internal/app/system/jsonutil"
	"github.com/dalemusser/stratapage/internal/app/store/ratelimit"
	"github.com/dalemusser/stratapage/internal/app/system/media"
	"github.com/dalemusser/stratapage/internal/app/system/network"
	"github.com/dalemusser/stratapage/internal/domain/models"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const (
	// formMemory is how much of a multipart body is kept in memory before
	// spilling to temp files.
	formMemory = 8 << 20
	// formOverhead allows for the non-file parts of an upload form.
	formOverhead = 1 << 20
)

// Service is the media store as the handlers use it.
type Service interface {
	UploadAuth() (media.Credentials, error)
	Upload(ctx context.Context, name string, r io.Reader, creds media.Credentials) (media.Result, error)
	Replace(ctx context.Context, old *models.MediaFile, name string, r io.Reader, creds media.Credentials) (media.Result, error)
	Delete(ctx context.Context, fileID string) error
}

// Limiter counts credential failures per client.
type Limiter interface {
	Check(ctx context.Context, key string) (ratelimit.Decision, error)
	RecordFailure(ctx context.Context, key string) (ratelimit.Decision, error)
	Clear(ctx context.Context, key string) error
}

// Handler serves media endpoints.
type Handler struct {
	svc       Service
	maxUpload int64
	limiter   Limiter
	errs      *errorsfeature.Handler
	logger    *zap.Logger
}

// Option configures a Handler.
type Option func(*Handler)

// WithLimiter locks out clients after repeated credential failures.
func WithLimiter(l Limiter) Option {
	return func(h *Handler) { h.limiter = l }
}

// NewHandler creates a media handler. maxUpload bounds the request body
// and should match the service's own limit.
func NewHandler(svc Service, maxUpload int64, errs *errorsfeature.Handler, logger *zap.Logger, opts ...Option) *Handler {
	if maxUpload <= 0 {
		maxUpload = media.DefaultMaxUploadSize
	}
	h := &Handler{svc: svc, maxUpload: maxUpload, errs: errs, logger: logger}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// AdminRoutes returns the credential and delete routes.
func AdminRoutes(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Get("/upload-auth", h.UploadAuth)
	r.Delete("/", h.Delete)
	return r
}

// UploadRoutes returns the public upload route.
func UploadRoutes(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Post("/upload", h.Upload)
	return r
}

// UploadAuth handles GET /upload-auth.
func (h *Handler) UploadAuth(w http.ResponseWriter, r *http.Request) {
	creds, err := h.svc.UploadAuth()
	if err != nil {
		h.errs.Fail(w, r, "issue upload credentials", err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	jsonutil.OK(w, creds)
}

// Delete handles DELETE /?fileId=.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	fileID := strings.TrimSpace(r.URL.Query().Get("fileId"))
	if err := h.svc.Delete(r.Context(), fileID); err != nil {
		h.errs.Fail(w, r, "delete media", err, zap.String("file_id", fileID))
		return
	}
	jsonutil.Success(w, http.StatusOK, "File deleted", map[string]string{"fileId": fileID})
}

// Upload handles POST /upload. The form carries the credential fields
// (token, expire, signature, publicKey), the file, and optionally
// replaceFileId naming a blob the new one supersedes.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	client := network.ClientIP(r)
	if !h.allow(w, r, client) {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload+formOverhead)
	if err := r.ParseMultipartForm(formMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || r.ContentLength > h.maxUpload+formOverhead {
			h.errs.Fail(w, r, "parse upload", apperr.Invalid("file", "file is too large"))
			return
		}
		h.errs.Fail(w, r, "parse upload", apperr.Invalid("body", "expected a multipart form"))
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	creds, err := credentialsFrom(r)
	if err != nil {
		h.fail(w, r, client, "parse upload", err)
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		h.errs.Fail(w, r, "parse upload", apperr.Invalid("file", "file is required"))
		return
	}
	defer file.Close()

	var res media.Result
	if old := strings.TrimSpace(r.FormValue("replaceFileId")); old != "" {
		res, err = h.svc.Replace(r.Context(), &models.MediaFile{FileID: old}, header.Filename, file, creds)
	} else {
		res, err = h.svc.Upload(r.Context(), header.Filename, file, creds)
	}
	if err != nil {
		h.fail(w, r, client, "upload media", err, zap.String("filename", header.Filename))
		return
	}
	if h.limiter != nil {
		if err := h.limiter.Clear(r.Context(), client); err != nil {
			h.logger.Warn("clear upload rate limit", zap.String("client", client), zap.Error(err))
		}
	}
	jsonutil.Success(w, http.StatusCreated, "File uploaded", res)
}

// allow rejects locked-out clients. A limiter that cannot be read lets the
// request through.
func (h *Handler) allow(w http.ResponseWriter, r *http.Request, client string) bool {
	if h.limiter == nil {
		return true
	}
	d, err := h.limiter.Check(r.Context(), client)
	if err != nil {
		h.logger.Warn("check upload rate limit", zap.String("client", client), zap.Error(err))
		return true
	}
	if d.Allowed {
		return true
	}
	if d.LockedUntil != nil {
		secs := int(time.Until(*d.LockedUntil).Seconds()) + 1
		w.Header().Set("Retry-After", strconv.Itoa(max(secs, 1)))
	}
	h.errs.Fail(w, r, "upload media", fmt.Errorf("client %s: %w", client, apperr.ErrRateLimited))
	return false
}

// fail reports err, counting it against the client when it is a
// credential failure.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, client, msg string, err error, fields ...zap.Field) {
	if h.limiter != nil && isCredentialError(err) {
		if _, lerr := h.limiter.RecordFailure(r.Context(), client); lerr != nil {
			h.logger.Warn("record upload rate limit failure", zap.String("client", client), zap.Error(lerr))
		}
	}
	h.errs.Fail(w, r, msg, err, fields...)
}

var credentialFields = []string{"token", "expire", "signature", "publicKey"}

func isCredentialError(err error) bool {
	fields := apperr.Fields(err)
	for _, f := range credentialFields {
		if _, ok := fields[f]; ok {
			return true
		}
	}
	return false
}

func credentialsFrom(r *http.Request) (media.Credentials, error) {
	c := media.Credentials{
		Token:     strings.TrimSpace(r.FormValue("token")),
		Signature: strings.TrimSpace(r.FormValue("signature")),
		PublicKey: strings.TrimSpace(r.FormValue("publicKey")),
	}
	raw := strings.TrimSpace(r.FormValue("expire"))
	if raw == "" {
		return c, apperr.Invalid("expire", "upload credentials are required")
	}
	exp, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return c, apperr.Invalid("expire", "must be a unix timestamp")
	}
	c.Expire = exp
	return c, nil
}
