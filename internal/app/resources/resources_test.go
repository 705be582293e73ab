package resources

import (
	"io/fs"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestAssets(t *testing.T) {
	data, err := fs.ReadFile(Assets(), "css/page.css")
	if err != nil {
		t.Fatalf("read page.css: %v", err)
	}
	// Classes the section templates depend on.
	for _, class := range []string{".container", ".grid-cols-1", `.md\:grid-cols-2`, `.lg\:grid-cols-4`, ".prose"} {
		if !strings.Contains(string(data), class) {
			t.Errorf("page.css is missing %s", class)
		}
	}
}

func TestAssetsHandler(t *testing.T) {
	h := AssetsHandler("/assets")
	tests := []struct {
		path string
		want int
	}{
		{"/assets/css/page.css", http.StatusOK},
		{"/assets/css/missing.css", http.StatusNotFound},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
		if rec.Code != tt.want {
			t.Errorf("GET %s = %d, want %d", tt.path, rec.Code, tt.want)
		}
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/assets/css/page.css", nil))
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/css") {
		t.Errorf("Content-Type = %q", ct)
	}
}
