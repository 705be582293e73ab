package jsonutil

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dalemusser/stratapage/internal/app/system/apperr"
)

func TestJSON(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		data     any
		wantBody string
	}{
		{"object", http.StatusOK, map[string]string{"slug": "about"}, `{"slug":"about"}`},
		{"list", http.StatusOK, []int{1, 2}, `[1,2]`},
		{"nil writes no body", http.StatusAccepted, nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			JSON(rec, tt.status, tt.data)

			if rec.Code != tt.status {
				t.Errorf("status = %d, want %d", rec.Code, tt.status)
			}
			if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %q", ct)
			}
			if got := strings.TrimSpace(rec.Body.String()); got != tt.wantBody {
				t.Errorf("body = %q, want %q", got, tt.wantBody)
			}
		})
	}
}

func TestUnauthorized(t *testing.T) {
	rec := httptest.NewRecorder()
	Unauthorized(rec, "invalid API key")

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
	var got map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("json unmarshal error: %v", err)
	}
	if got["ok"] != false || got["error"] != "invalid API key" {
		t.Errorf("body = %v", got)
	}
}

func TestDecode(t *testing.T) {
	var in struct {
		Title string `json:"title"`
	}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"title":"About"}`))
	if err := Decode(req, &in); err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if in.Title != "About" {
		t.Errorf("Title = %q", in.Title)
	}

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"title":`))
	if err := Decode(req, &in); err == nil {
		t.Error("Decode() of truncated body should fail")
	}
}

func TestSuccess(t *testing.T) {
	rec := httptest.NewRecorder()
	Success(rec, http.StatusCreated, "Page created", map[string]string{"id": "p1"})

	if rec.Code != http.StatusCreated {
		t.Errorf("status = %d, want 201", rec.Code)
	}
	var got struct {
		OK      bool              `json:"ok"`
		Message string            `json:"message"`
		Data    map[string]string `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("json unmarshal error: %v", err)
	}
	if !got.OK || got.Message != "Page created" || got.Data["id"] != "p1" {
		t.Errorf("body = %+v", got)
	}
}

func TestFail(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		msg        string
		wantStatus int
		wantError  string
		wantKind   string
	}{
		{"not found with message", fmt.Errorf("page x: %w", apperr.ErrNotFound), "page not found", http.StatusNotFound, "page not found", "not_found"},
		{"conflict hides driver text", fmt.Errorf("insert page: %w: E11000 dup key", apperr.ErrConflict), "", http.StatusConflict, "conflict", "conflict"},
		{"store unavailable", fmt.Errorf("find: %w: server selection timeout", apperr.ErrStoreUnavailable), "", http.StatusServiceUnavailable, "storage is temporarily unavailable; try again", "store_unavailable"},
		{"media", fmt.Errorf("store x: %w", apperr.ErrMediaOperation), "", http.StatusBadGateway, "media operation failed", "media_operation"},
		{"rate limited", fmt.Errorf("client 10.0.0.1: %w", apperr.ErrRateLimited), "", http.StatusTooManyRequests, "too many failed attempts; try again later", "rate_limited"},
		{"internal", errors.New("boom"), "", http.StatusInternalServerError, "internal server error", "internal"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			Fail(rec, tt.err, tt.msg)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			var got map[string]any
			if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
				t.Fatalf("json unmarshal error: %v", err)
			}
			if got["error"] != tt.wantError {
				t.Errorf("error = %v, want %q", got["error"], tt.wantError)
			}
			if got["kind"] != tt.wantKind {
				t.Errorf("kind = %v, want %q", got["kind"], tt.wantKind)
			}
			if got["ok"] != false {
				t.Errorf("ok = %v, want false", got["ok"])
			}
			if strings.Contains(rec.Body.String(), "E11000") || strings.Contains(rec.Body.String(), "timeout") {
				t.Errorf("driver detail leaked: %s", rec.Body.String())
			}
		})
	}
}

func TestFail_Validation(t *testing.T) {
	rec := httptest.NewRecorder()
	err := fmt.Errorf("create page: %w", errors.Join(apperr.Invalid("title", "required"), apperr.Invalid("slug", "required")))
	Fail(rec, err, "")

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	var got struct {
		Error  string            `json:"error"`
		Fields map[string]string `json:"fields"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("json unmarshal error: %v", err)
	}
	if got.Error != "validation failed" {
		t.Errorf("error = %q", got.Error)
	}
	if got.Fields["title"] != "required" || got.Fields["slug"] != "required" {
		t.Errorf("fields = %v", got.Fields)
	}
}
