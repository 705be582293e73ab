// Package jsonutil writes the JSON bodies of the admin and public APIs.
//
// Successful mutations answer with a Notice; failures go through Fail so the
// status and body follow the error's apperr kind.
package jsonutil

import (
	"encoding/json"
	"net/http"

	"github.com/dalemusser/stratapage/internal/app/system/apperr"
)

// JSON writes data with the given status.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// OK writes data with status 200.
func OK(w http.ResponseWriter, data any) {
	JSON(w, http.StatusOK, data)
}

// Error writes {"ok": false, "error": message}. Prefer Fail when an error
// value is at hand.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]any{"ok": false, "error": message})
}

// Unauthorized writes a 401 with message.
func Unauthorized(w http.ResponseWriter, message string) {
	Error(w, http.StatusUnauthorized, message)
}

// Decode decodes the request body into v.
func Decode(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}

// Notice is the body of a successful mutation: a short message for the
// admin UI's transient notification plus the affected resource.
type Notice struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Success writes a Notice with the given status.
func Success(w http.ResponseWriter, status int, message string, data any) {
	JSON(w, status, Notice{OK: true, Message: message, Data: data})
}

// kindMessages are the public messages used when a handler gives none.
var kindMessages = map[apperr.Kind]string{
	apperr.KindNotFound:         "not found",
	apperr.KindConflict:         "conflict",
	apperr.KindValidation:       "validation failed",
	apperr.KindStoreUnavailable: "storage is temporarily unavailable; try again",
	apperr.KindMediaOperation:   "media operation failed",
	apperr.KindRateLimited:      "too many failed attempts; try again later",
	apperr.KindInternal:         "internal server error",
}

// Fail writes err as an error response whose status follows the error's
// kind. Validation failures carry their field messages. Other kinds use msg,
// or a generic message for the kind when msg is empty; the error text itself
// is never sent because it may carry driver detail.
func Fail(w http.ResponseWriter, err error, msg string) {
	kind := apperr.KindOf(err)
	if msg == "" {
		msg = kindMessages[kind]
	}
	body := map[string]any{
		"ok":    false,
		"error": msg,
		"kind":  string(kind),
	}
	if kind == apperr.KindValidation {
		if fields := apperr.Fields(err); fields != nil {
			body["fields"] = fields
		}
	}
	JSON(w, apperr.HTTPStatus(err), body)
}
