package testutil

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// TestAPIKey is the admin key used by handler tests.
const TestAPIKey = "test-api-key-7f3a9c2e1b5d"

// NewJSONRequest builds a request whose body is v encoded as JSON. A string
// v is sent as-is so tests can post malformed bodies.
func NewJSONRequest(t *testing.T, method, target string, v any) *http.Request {
	t.Helper()
	var body []byte
	switch b := v.(type) {
	case nil:
	case string:
		body = []byte(b)
	default:
		var err error
		if body, err = json.Marshal(v); err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

// WithAPIKey sets the admin bearer token on r.
func WithAPIKey(r *http.Request) *http.Request {
	r.Header.Set("Authorization", "Bearer "+TestAPIKey)
	return r
}

// ResponseRecorder wraps httptest.ResponseRecorder with helper methods.
type ResponseRecorder struct {
	*httptest.ResponseRecorder
}

// NewRecorder creates a new ResponseRecorder.
func NewRecorder() *ResponseRecorder {
	return &ResponseRecorder{httptest.NewRecorder()}
}

// Serve runs r through h and returns the recorded response.
func Serve(h http.Handler, r *http.Request) *ResponseRecorder {
	rec := NewRecorder()
	h.ServeHTTP(rec, r)
	return rec
}

// AssertStatus checks the response status code.
func (r *ResponseRecorder) AssertStatus(t testing.TB, expected int) {
	t.Helper()
	if r.Code != expected {
		t.Errorf("status code: got %d, want %d (body %s)", r.Code, expected, r.Body.String())
	}
}

// AssertContains checks that the response body contains the expected string.
func (r *ResponseRecorder) AssertContains(t testing.TB, expected string) {
	t.Helper()
	if !strings.Contains(r.Body.String(), expected) {
		t.Errorf("response body does not contain %q", expected)
	}
}

// DecodeJSON decodes the response body into v.
func (r *ResponseRecorder) DecodeJSON(t testing.TB, v any) {
	t.Helper()
	if err := json.Unmarshal(r.Body.Bytes(), v); err != nil {
		t.Fatalf("decode response %q: %v", r.Body.String(), err)
	}
}

// Notice is the envelope of a mutation response, success or failure. Data
// is left raw for the caller to decode.
type Notice struct {
	OK      bool              `json:"ok"`
	Message string            `json:"message"`
	Data    json.RawMessage   `json:"data"`
	Error   string            `json:"error"`
	Kind    string            `json:"kind"`
	Fields  map[string]string `json:"fields"`
}

// Notice decodes the response as a notification envelope.
func (r *ResponseRecorder) Notice(t testing.TB) Notice {
	t.Helper()
	var n Notice
	r.DecodeJSON(t, &n)
	return n
}
