package app

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("DECISIONLOGR_HTTP_ADDR", "127.0.0.1:9999")
	t.Setenv("DECISIONLOGR_LOG_FORMAT", "pretty")
	t.Setenv("DECISIONLOGR_DB_MAX_CONNS", "4")
	t.Setenv("DECISIONLOGR_SQLITE_PATH", "/var/lib/decisionlogr/share.db")
	t.Setenv("DECISIONLOGR_CORS_ALLOWED_ORIGINS", " https://a.example.com, ,https://b.example.com ")
	t.Setenv("DECISIONLOGR_HTTP_SHUTDOWN_TIMEOUT", "3s")
	t.Setenv("DECISIONLOGR_METRICS_ENABLED", "false")

	cfg := LoadConfig()
	if cfg.HTTPAddr != "127.0.0.1:9999" || cfg.LogFormat != "pretty" {
		t.Fatalf("unexpected addr/format: %+v", cfg)
	}
	if cfg.DBMaxConns != 4 || cfg.DBSchema != "decisionlogr" {
		t.Fatalf("unexpected db config: max=%d schema=%q", cfg.DBMaxConns, cfg.DBSchema)
	}
	if cfg.SQLitePath != "/var/lib/decisionlogr/share.db" {
		t.Fatalf("sqlite path=%q", cfg.SQLitePath)
	}
	want := []string{"https://a.example.com", "https://b.example.com"}
	if !reflect.DeepEqual(cfg.CORSAllowedOrigins, want) {
		t.Fatalf("origins=%v want=%v", cfg.CORSAllowedOrigins, want)
	}
	if cfg.ShutdownTimeout != 3*time.Second || cfg.MetricsEnabled {
		t.Fatalf("shutdown=%v metrics=%v", cfg.ShutdownTimeout, cfg.MetricsEnabled)
	}
}

func TestValidateSecurityConfig(t *testing.T) {
	cases := []struct {
		name    string
		require bool
		key     string
		argonKB string
		wantErr string
	}{
		{name: "not required", require: false},
		{name: "required and missing", require: true, wantErr: "is missing"},
		{name: "required and short", require: true, key: "short", wantErr: "too short"},
		{name: "required and ok", require: true, key: strings.Repeat("k", 32)},
		{name: "bad argon2 env", require: false, argonKB: "12", wantErr: "passcode hashing"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("DECISIONLOGR_TOKEN_HMAC_KEY", tc.key)
			if tc.argonKB != "" {
				t.Setenv("DECISIONLOGR_ARGON2_MEMORY_KIB", tc.argonKB)
			}
			err := ValidateSecurityConfig(Config{RequireTokenHMAC: tc.require})
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("err=%v want containing %q", err, tc.wantErr)
			}
		})
	}
}

func newTestApp(t *testing.T, cfg Config, be backend) *httptest.Server {
	t.Helper()

	t.Setenv("DECISIONLOGR_SERVICE_KEY", "test-service-key")
	t.Setenv("DECISIONLOGR_ARGON2_MEMORY_KIB", "8192")
	t.Setenv("DECISIONLOGR_ARGON2_ITERATIONS", "1")

	a, err := newWithBackend(cfg, discardLogger(), be)
	if err != nil {
		t.Fatalf("newWithBackend: %v", err)
	}
	srv := httptest.NewServer(a.Handler())
	t.Cleanup(func() {
		srv.Close()
		a.Close()
	})
	return srv
}

func getStatus(t *testing.T, url string) (int, string) {
	t.Helper()
	res, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer func() { _ = res.Body.Close() }()
	body, _ := io.ReadAll(res.Body)
	return res.StatusCode, string(body)
}

func TestApp_HealthAndReadiness(t *testing.T) {
	srv := newTestApp(t, Config{MetricsEnabled: true}, memoryBackend())

	if code, _ := getStatus(t, srv.URL+"/healthz"); code != http.StatusOK {
		t.Fatalf("healthz=%d", code)
	}
	if code, _ := getStatus(t, srv.URL+"/readyz"); code != http.StatusOK {
		t.Fatalf("readyz=%d", code)
	}
}

func TestApp_ReadinessRequiresDB(t *testing.T) {
	srv := newTestApp(t, Config{ReadinessRequireDB: true}, memoryBackend())

	if code, _ := getStatus(t, srv.URL+"/readyz"); code != http.StatusServiceUnavailable {
		t.Fatalf("readyz without db=%d want 503", code)
	}
	if code, _ := getStatus(t, srv.URL+"/metrics"); code != http.StatusNotFound {
		t.Fatalf("metrics disabled, got %d", code)
	}
}

func TestApp_SQLiteBackendReady(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "share.db")

	be, err := newBackend(ctx, Config{SQLitePath: path}, discardLogger())
	if err != nil {
		t.Fatalf("newBackend: %v", err)
	}
	if be.name != "sqlite" {
		t.Fatalf("backend=%q want sqlite", be.name)
	}

	srv := newTestApp(t, Config{ReadinessRequireDB: true}, be)
	if code, body := getStatus(t, srv.URL+"/readyz"); code != http.StatusOK {
		t.Fatalf("readyz=%d body=%q", code, body)
	}
}

func TestApp_ShareFlowAndMetrics(t *testing.T) {
	srv := newTestApp(t, Config{MetricsEnabled: true}, memoryBackend())

	body, _ := json.Marshal(map[string]any{
		"decision_id":     "dec-42",
		"allowed_actions": []string{"confirm_choice"},
	})
	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/api/share-tokens", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer test-service-key")
	req.Header.Set("X-Actor-ID", "owner-1")
	req.Header.Set("Content-Type", "application/json")

	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer func() { _ = res.Body.Close() }()
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create status=%d", res.StatusCode)
	}
	var created struct {
		Token     string `json:"token"`
		SharePath string `json:"share_path"`
	}
	if err := json.NewDecoder(res.Body).Decode(&created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if created.Token == "" || created.SharePath == "" {
		t.Fatalf("missing token in response: %+v", created)
	}

	code, view := getStatus(t, srv.URL+created.SharePath)
	if code != http.StatusOK || !strings.Contains(view, `"state":"valid"`) {
		t.Fatalf("view status=%d body=%s", code, view)
	}

	code, unknown := getStatus(t, srv.URL+"/share/not-a-real-token")
	if code != http.StatusNotFound || !strings.Contains(unknown, `"state":"unavailable"`) {
		t.Fatalf("unknown status=%d body=%s", code, unknown)
	}

	code, metrics := getStatus(t, srv.URL+"/metrics")
	if code != http.StatusOK {
		t.Fatalf("metrics=%d", code)
	}
	for _, want := range []string{
		"decisionlogr_share_gate_outcomes_total",
		"decisionlogr_http_requests_total",
		"go_goroutines",
	} {
		if !strings.Contains(metrics, want) {
			t.Fatalf("metrics missing %q", want)
		}
	}
	if strings.Contains(metrics, created.Token) {
		t.Fatalf("metrics leaked a share token")
	}
}
