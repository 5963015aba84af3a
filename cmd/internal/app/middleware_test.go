package app

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestRequestLogMeta(t *testing.T) {
	t.Parallel()

	cases := []struct {
		pattern   string
		status    int
		wantRoute string
		wantClass string
	}{
		{pattern: "GET /share/{token}", status: 200, wantRoute: "/share/{token}", wantClass: "2xx"},
		{pattern: "/healthz", status: 302, wantRoute: "/healthz", wantClass: "3xx"},
		{pattern: "", status: 404, wantRoute: "unmatched", wantClass: "4xx"},
		{pattern: "POST /api/share-tokens", status: 503, wantRoute: "/api/share-tokens", wantClass: "5xx"},
	}

	for _, tc := range cases {
		r := httptest.NewRequest(http.MethodGet, "/x", nil)
		r.Pattern = tc.pattern
		meta := requestLogMeta(r, tc.status)
		if meta.route != tc.wantRoute || meta.class != tc.wantClass {
			t.Fatalf("pattern=%q status=%d got route=%q class=%q; want %q %q",
				tc.pattern, tc.status, meta.route, meta.class, tc.wantRoute, tc.wantClass)
		}
	}

	if got := statusClass(42); got != "unknown" {
		t.Fatalf("statusClass(42)=%q want unknown", got)
	}
}

func TestWithRequestLogging_DoesNotLogRawTokenPath(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&buf, nil))

	mux := http.NewServeMux()
	mux.HandleFunc("GET /share/{token}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	h := WithRequestLogging(mux, log, nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/share/secret-token-value", nil))

	if rr.Code != http.StatusNotFound {
		t.Fatalf("status=%d want 404", rr.Code)
	}
	if strings.Contains(buf.String(), "secret-token-value") {
		t.Fatalf("request log leaked token: %s", buf.String())
	}

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if line["path"] != "/share/{token}" || line["status_class"] != "4xx" {
		t.Fatalf("unexpected log line: %v", line)
	}
}

func TestWithCORS_PreflightAllowed(t *testing.T) {
	t.Parallel()

	cfg := Config{
		CORSAllowedOrigins: []string{"https://app.example.com"},
		CORSMaxAgeSeconds:  600,
	}

	h := WithCORS(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
		t.Fatalf("next handler should not be called for preflight")
	}), cfg)

	req := httptest.NewRequest(http.MethodOptions, "/share/abc/actions", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d", rr.Code)
	}
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example.com" {
		t.Fatalf("allow-origin mismatch: %q", got)
	}
	if got := rr.Header().Get("Access-Control-Max-Age"); got != "600" {
		t.Fatalf("max-age mismatch: %q", got)
	}
	if got := rr.Header().Get("Access-Control-Allow-Credentials"); got != "" {
		t.Fatalf("credentials must not be allowed, got %q", got)
	}
}

func TestWithCORS_DisallowedOrigin(t *testing.T) {
	t.Parallel()

	cfg := Config{CORSAllowedOrigins: []string{"https://app.example.com"}}

	called := false
	h := WithCORS(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}), cfg)

	req := httptest.NewRequest(http.MethodGet, "/share/abc", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if !called {
		t.Fatalf("expected next handler to run for simple request")
	}
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("unexpected allow-origin: %q", got)
	}

	pre := httptest.NewRequest(http.MethodOptions, "/share/abc", nil)
	pre.Header.Set("Origin", "https://evil.example.com")
	pre.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, pre)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("preflight from disallowed origin: status=%d want 403", rr.Code)
	}
}

func TestWithCORS_DisabledWhenNoOrigins(t *testing.T) {
	t.Parallel()

	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	h := WithCORS(next, Config{})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Origin", "https://app.example.com")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusTeapot || rr.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Fatalf("cors should be a passthrough, got status=%d headers=%v", rr.Code, rr.Header())
	}
}
