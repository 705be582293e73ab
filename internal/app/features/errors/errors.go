// Package errors logs request failures and writes the error responses of the
// public site and the JSON API.
package errors

import (
	"net/http"
	"strings"

	"github.com/dalemusser/stratapage/internal/app/render"
	"github.com/dalemusser/stratapage/internal/app/system/apperr"
	"github.com/dalemusser/stratapage/internal/app/system/jsonutil"
	"github.com/dalemusser/stratapage/internal/app/system/ledger"
	"go.uber.org/zap"
)

// ErrorLogger wraps the zap logger for request-scoped error logging.
type ErrorLogger struct {
	logger *zap.Logger
}

// NewErrorLogger creates a new ErrorLogger.
func NewErrorLogger(logger *zap.Logger) *ErrorLogger {
	return &ErrorLogger{logger: logger}
}

// Log logs err at error level with the request's path and method.
func (e *ErrorLogger) Log(r *http.Request, msg string, err error) {
	e.LogWithFields(r, msg, err)
}

// LogWithFields is Log with extra fields.
func (e *ErrorLogger) LogWithFields(r *http.Request, msg string, err error, fields ...zap.Field) {
	e.logger.Error(msg, requestFields(r, err, fields)...)
}

// Report logs err at a level chosen by its kind: caller mistakes (not found,
// conflict, validation) are Debug, lockouts are Info, collaborator failures
// (store, media) are Warn, and anything unclassified is Error.
func (e *ErrorLogger) Report(r *http.Request, msg string, err error, fields ...zap.Field) {
	kind := apperr.KindOf(err)
	all := requestFields(r, err, append(fields, zap.String("kind", string(kind))))
	switch kind {
	case apperr.KindNone:
	case apperr.KindNotFound, apperr.KindConflict, apperr.KindValidation:
		e.logger.Debug(msg, all...)
	case apperr.KindRateLimited:
		e.logger.Info(msg, all...)
	case apperr.KindStoreUnavailable, apperr.KindMediaOperation:
		e.logger.Warn(msg, all...)
	default:
		e.logger.Error(msg, all...)
	}
}

func requestFields(r *http.Request, err error, extra []zap.Field) []zap.Field {
	fields := []zap.Field{
		zap.Error(err),
		zap.String("path", r.URL.Path),
		zap.String("method", r.Method),
	}
	if id := ledger.RequestID(r.Context()); id != "" {
		fields = append(fields, zap.String("request_id", id))
	}
	return append(fields, extra...)
}

// Handler writes error responses. Requests under /api/ get JSON bodies;
// everything else gets an HTML page.
type Handler struct {
	renderer *render.Renderer
	errLog   *ErrorLogger
}

// NewHandler creates a new error Handler.
func NewHandler(renderer *render.Renderer, errLog *ErrorLogger) *Handler {
	return &Handler{renderer: renderer, errLog: errLog}
}

// NotFound writes the 404 response. It doubles as the router's NotFound
// handler.
func (h *Handler) NotFound(w http.ResponseWriter, r *http.Request) {
	h.write(w, r, http.StatusNotFound, "Page not found", "The page you are looking for does not exist.")
}

// MethodNotAllowed writes the 405 response.
func (h *Handler) MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	h.write(w, r, http.StatusMethodNotAllowed, "Method not allowed", "")
}

// InternalError writes the 500 response.
func (h *Handler) InternalError(w http.ResponseWriter, r *http.Request) {
	h.write(w, r, http.StatusInternalServerError, "Server error", "Something went wrong. Please try again later.")
}

// Unavailable writes the 503 response.
func (h *Handler) Unavailable(w http.ResponseWriter, r *http.Request) {
	h.write(w, r, http.StatusServiceUnavailable, "Temporarily unavailable", "Please try again in a moment.")
}

// Fail reports err and writes the response its kind calls for. fields are
// added to the log entry only.
func (h *Handler) Fail(w http.ResponseWriter, r *http.Request, msg string, err error, fields ...zap.Field) {
	h.errLog.Report(r, msg, err, fields...)
	if kind := apperr.KindOf(err); kind != apperr.KindNone {
		ledger.SetErrorKind(r.Context(), string(kind))
	}
	if IsAPI(r) {
		jsonutil.Fail(w, err, "")
		return
	}
	switch apperr.KindOf(err) {
	case apperr.KindNotFound:
		h.NotFound(w, r)
	case apperr.KindStoreUnavailable:
		h.Unavailable(w, r)
	default:
		h.InternalError(w, r)
	}
}

func (h *Handler) write(w http.ResponseWriter, r *http.Request, status int, title, message string) {
	if IsAPI(r) {
		jsonutil.Error(w, status, strings.ToLower(title))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if h.renderer == nil {
		_, _ = w.Write([]byte(title))
		return
	}
	if err := h.renderer.Error(w, status, title, message); err != nil {
		h.errLog.Log(r, "render error page", err)
	}
}

// IsAPI reports whether r targets the JSON API.
func IsAPI(r *http.Request) bool {
	return r.URL.Path == "/api" || strings.HasPrefix(r.URL.Path, "/api/")
}
