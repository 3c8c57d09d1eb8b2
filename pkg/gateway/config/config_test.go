package config

import (
	"strings"
	"testing"
	"time"
)

var gatewayEnvKeys = []string{
	"FIXPILOT_ADDR",
	"FIXPILOT_AUTH_MODE",
	"FIXPILOT_API_KEYS",
	"FIXPILOT_CORS_ORIGINS",
	"GEMINI_API_KEY",
	"FIXPILOT_GEMINI_MODEL",
	"FIXPILOT_LIVE_HANDSHAKE_TIMEOUT",
	"FIXPILOT_LIVE_MAX_JSON_MESSAGE_BYTES",
	"FIXPILOT_LIVE_MAX_FRAME_BYTES",
	"FIXPILOT_LIVE_MAX_FRAME_FPS",
	"FIXPILOT_LIVE_WS_PING_INTERVAL",
	"FIXPILOT_LIVE_WS_WRITE_TIMEOUT",
	"FIXPILOT_LIVE_WS_READ_TIMEOUT",
	"FIXPILOT_WS_MAX_DURATION",
	"FIXPILOT_WS_MAX_SESSIONS_PER_PRINCIPAL",
	"FIXPILOT_RATE_LIMIT_RPS",
	"FIXPILOT_RATE_LIMIT_BURST",
	"FIXPILOT_READ_HEADER_TIMEOUT",
	"FIXPILOT_READ_TIMEOUT",
	"FIXPILOT_SHUTDOWN_GRACE_PERIOD",
	"FIXPILOT_DATABASE_URL",
}

func clearGatewayEnv(t *testing.T) {
	t.Helper()
	for _, key := range gatewayEnvKeys {
		t.Setenv(key, "")
	}
}

func TestLoadFromEnvDefaults(t *testing.T) {
	clearGatewayEnv(t)
	t.Setenv("GEMINI_API_KEY", "test-key")
	t.Setenv("FIXPILOT_API_KEYS", "fp_sk_test")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() error = %v", err)
	}

	if cfg.Addr != ":8080" {
		t.Fatalf("Addr = %q, want :8080", cfg.Addr)
	}
	if cfg.AuthMode != AuthModeRequired {
		t.Fatalf("AuthMode = %q, want %q", cfg.AuthMode, AuthModeRequired)
	}
	if _, ok := cfg.APIKeys["fp_sk_test"]; !ok {
		t.Fatalf("APIKeys missing fp_sk_test: %v", cfg.APIKeys)
	}
	if cfg.LiveHandshakeTimeout != 5*time.Second {
		t.Fatalf("LiveHandshakeTimeout = %v, want 5s", cfg.LiveHandshakeTimeout)
	}
	if cfg.LiveMaxJSONMessageBytes != 64*1024 {
		t.Fatalf("LiveMaxJSONMessageBytes = %d, want %d", cfg.LiveMaxJSONMessageBytes, 64*1024)
	}
	if cfg.LiveMaxFrameBytes != 2<<20 {
		t.Fatalf("LiveMaxFrameBytes = %d, want %d", cfg.LiveMaxFrameBytes, 2<<20)
	}
	if cfg.LiveMaxFrameFPS != 4 {
		t.Fatalf("LiveMaxFrameFPS = %d, want 4", cfg.LiveMaxFrameFPS)
	}
	if cfg.WSMaxSessionDuration != 2*time.Hour {
		t.Fatalf("WSMaxSessionDuration = %v, want 2h", cfg.WSMaxSessionDuration)
	}
	if cfg.WSMaxSessionsPerPrincipal != 2 {
		t.Fatalf("WSMaxSessionsPerPrincipal = %d, want 2", cfg.WSMaxSessionsPerPrincipal)
	}
	if cfg.LimitRPS != 2.0 || cfg.LimitBurst != 4 {
		t.Fatalf("limits = %v/%d, want 2.0/4", cfg.LimitRPS, cfg.LimitBurst)
	}
	if cfg.DatabaseURL != "" {
		t.Fatalf("DatabaseURL = %q, want empty", cfg.DatabaseURL)
	}
}

func TestLoadFromEnvOverrides(t *testing.T) {
	clearGatewayEnv(t)
	t.Setenv("GEMINI_API_KEY", "test-key")
	t.Setenv("FIXPILOT_AUTH_MODE", "disabled")
	t.Setenv("FIXPILOT_ADDR", ":9191")
	t.Setenv("FIXPILOT_LIVE_WS_PING_INTERVAL", "7s")
	t.Setenv("FIXPILOT_CORS_ORIGINS", "https://app.example.com, https://staging.example.com")
	t.Setenv("FIXPILOT_DATABASE_URL", "postgres://localhost/fixpilot")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() error = %v", err)
	}
	if cfg.Addr != ":9191" {
		t.Fatalf("Addr = %q, want :9191", cfg.Addr)
	}
	if cfg.LiveWSPingInterval != 7*time.Second {
		t.Fatalf("LiveWSPingInterval = %v, want 7s", cfg.LiveWSPingInterval)
	}
	if len(cfg.CORSAllowedOrigins) != 2 {
		t.Fatalf("CORSAllowedOrigins = %v, want 2 entries", cfg.CORSAllowedOrigins)
	}
	if _, ok := cfg.CORSAllowedOrigins["https://staging.example.com"]; !ok {
		t.Fatalf("missing trimmed origin: %v", cfg.CORSAllowedOrigins)
	}
	if cfg.DatabaseURL != "postgres://localhost/fixpilot" {
		t.Fatalf("DatabaseURL = %q", cfg.DatabaseURL)
	}
}

func TestLoadFromEnvRejectsBadValues(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
		want string
	}{
		{
			name: "missing gemini key",
			env:  map[string]string{"FIXPILOT_AUTH_MODE": "disabled"},
			want: "GEMINI_API_KEY",
		},
		{
			name: "bad auth mode",
			env:  map[string]string{"GEMINI_API_KEY": "k", "FIXPILOT_AUTH_MODE": "sometimes"},
			want: "FIXPILOT_AUTH_MODE",
		},
		{
			name: "required auth without keys",
			env:  map[string]string{"GEMINI_API_KEY": "k", "FIXPILOT_AUTH_MODE": "required"},
			want: "FIXPILOT_API_KEYS",
		},
		{
			name: "zero handshake timeout",
			env: map[string]string{
				"GEMINI_API_KEY":                  "k",
				"FIXPILOT_AUTH_MODE":              "disabled",
				"FIXPILOT_LIVE_HANDSHAKE_TIMEOUT": "-1s",
			},
			want: "FIXPILOT_LIVE_HANDSHAKE_TIMEOUT",
		},
		{
			name: "negative rate limit",
			env: map[string]string{
				"GEMINI_API_KEY":          "k",
				"FIXPILOT_AUTH_MODE":      "disabled",
				"FIXPILOT_RATE_LIMIT_RPS": "-1",
			},
			want: "FIXPILOT_RATE_LIMIT_RPS",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			clearGatewayEnv(t)
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := LoadFromEnv()
			if err == nil {
				t.Fatalf("LoadFromEnv() succeeded, want error mentioning %s", tc.want)
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error = %v, want mention of %s", err, tc.want)
			}
		})
	}
}
