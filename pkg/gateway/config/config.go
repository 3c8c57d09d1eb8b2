package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type AuthMode string

const (
	AuthModeRequired AuthMode = "required"
	AuthModeOptional AuthMode = "optional"
	AuthModeDisabled AuthMode = "disabled"
)

type Config struct {
	Addr string

	AuthMode AuthMode
	APIKeys  map[string]struct{}

	// CORS origin allowlist for the websocket upgrade. Empty => any
	// browser origin is rejected; non-browser clients send no Origin.
	CORSAllowedOrigins map[string]struct{}

	// Gemini upstream.
	GeminiAPIKey string
	GeminiModel  string

	// Live WebSocket surface (/v1/live).
	LiveHandshakeTimeout    time.Duration
	LiveMaxJSONMessageBytes int64
	LiveMaxFrameBytes       int
	LiveMaxFrameFPS         int
	LiveWSPingInterval      time.Duration
	LiveWSWriteTimeout      time.Duration
	LiveWSReadTimeout       time.Duration

	WSMaxSessionDuration      time.Duration
	WSMaxSessionsPerPrincipal int

	// In-memory limits (per principal).
	LimitRPS   float64
	LimitBurst int

	// Operational defaults.
	ReadHeaderTimeout   time.Duration
	ReadTimeout         time.Duration
	ShutdownGracePeriod time.Duration

	// Optional session-history store. Empty => history disabled.
	DatabaseURL string
}

func LoadFromEnv() (Config, error) {
	cfg := Config{
		Addr:                      envOr("FIXPILOT_ADDR", ":8080"),
		AuthMode:                  AuthMode(envOr("FIXPILOT_AUTH_MODE", string(AuthModeRequired))),
		APIKeys:                   make(map[string]struct{}),
		CORSAllowedOrigins:        make(map[string]struct{}),
		GeminiAPIKey:              strings.TrimSpace(os.Getenv("GEMINI_API_KEY")),
		GeminiModel:               envOr("FIXPILOT_GEMINI_MODEL", ""),
		LiveHandshakeTimeout:      envDurationOr("FIXPILOT_LIVE_HANDSHAKE_TIMEOUT", 5*time.Second),
		LiveMaxJSONMessageBytes:   envInt64Or("FIXPILOT_LIVE_MAX_JSON_MESSAGE_BYTES", 64*1024),
		LiveMaxFrameBytes:         envIntOr("FIXPILOT_LIVE_MAX_FRAME_BYTES", 2<<20), // 2 MiB JPEG
		LiveMaxFrameFPS:           envIntOr("FIXPILOT_LIVE_MAX_FRAME_FPS", 4),
		LiveWSPingInterval:        envDurationOr("FIXPILOT_LIVE_WS_PING_INTERVAL", 20*time.Second),
		LiveWSWriteTimeout:        envDurationOr("FIXPILOT_LIVE_WS_WRITE_TIMEOUT", 5*time.Second),
		LiveWSReadTimeout:         envDurationOr("FIXPILOT_LIVE_WS_READ_TIMEOUT", 60*time.Second),
		WSMaxSessionDuration:      envDurationOr("FIXPILOT_WS_MAX_DURATION", 2*time.Hour),
		WSMaxSessionsPerPrincipal: envIntOr("FIXPILOT_WS_MAX_SESSIONS_PER_PRINCIPAL", 2),
		LimitRPS:                  envFloat64Or("FIXPILOT_RATE_LIMIT_RPS", 2.0),
		LimitBurst:                envIntOr("FIXPILOT_RATE_LIMIT_BURST", 4),
		ReadHeaderTimeout:         envDurationOr("FIXPILOT_READ_HEADER_TIMEOUT", 10*time.Second),
		ReadTimeout:               envDurationOr("FIXPILOT_READ_TIMEOUT", 30*time.Second),
		ShutdownGracePeriod:       envDurationOr("FIXPILOT_SHUTDOWN_GRACE_PERIOD", 30*time.Second),
		DatabaseURL:               strings.TrimSpace(os.Getenv("FIXPILOT_DATABASE_URL")),
	}

	switch cfg.AuthMode {
	case AuthModeRequired, AuthModeOptional, AuthModeDisabled:
	default:
		return Config{}, fmt.Errorf("FIXPILOT_AUTH_MODE must be one of required|optional|disabled")
	}

	for _, key := range splitCSV(os.Getenv("FIXPILOT_API_KEYS")) {
		cfg.APIKeys[key] = struct{}{}
	}
	for _, origin := range splitCSV(os.Getenv("FIXPILOT_CORS_ORIGINS")) {
		cfg.CORSAllowedOrigins[origin] = struct{}{}
	}

	if cfg.GeminiAPIKey == "" {
		return Config{}, fmt.Errorf("GEMINI_API_KEY must be set")
	}
	if cfg.LiveHandshakeTimeout <= 0 {
		return Config{}, fmt.Errorf("FIXPILOT_LIVE_HANDSHAKE_TIMEOUT must be > 0")
	}
	if cfg.LiveMaxJSONMessageBytes <= 0 {
		return Config{}, fmt.Errorf("FIXPILOT_LIVE_MAX_JSON_MESSAGE_BYTES must be > 0")
	}
	if cfg.LiveMaxFrameBytes <= 0 {
		return Config{}, fmt.Errorf("FIXPILOT_LIVE_MAX_FRAME_BYTES must be > 0")
	}
	if cfg.LiveMaxFrameFPS < 0 {
		return Config{}, fmt.Errorf("FIXPILOT_LIVE_MAX_FRAME_FPS must be >= 0")
	}
	if cfg.LiveWSPingInterval <= 0 {
		return Config{}, fmt.Errorf("FIXPILOT_LIVE_WS_PING_INTERVAL must be > 0")
	}
	if cfg.LiveWSWriteTimeout <= 0 {
		return Config{}, fmt.Errorf("FIXPILOT_LIVE_WS_WRITE_TIMEOUT must be > 0")
	}
	if cfg.LiveWSReadTimeout < 0 {
		return Config{}, fmt.Errorf("FIXPILOT_LIVE_WS_READ_TIMEOUT must be >= 0")
	}
	if cfg.WSMaxSessionDuration <= 0 {
		return Config{}, fmt.Errorf("FIXPILOT_WS_MAX_DURATION must be > 0")
	}
	if cfg.WSMaxSessionsPerPrincipal <= 0 {
		return Config{}, fmt.Errorf("FIXPILOT_WS_MAX_SESSIONS_PER_PRINCIPAL must be > 0")
	}
	if cfg.LimitRPS < 0 {
		return Config{}, fmt.Errorf("FIXPILOT_RATE_LIMIT_RPS must be >= 0")
	}
	if cfg.LimitBurst < 0 {
		return Config{}, fmt.Errorf("FIXPILOT_RATE_LIMIT_BURST must be >= 0")
	}
	if cfg.ReadHeaderTimeout <= 0 {
		return Config{}, fmt.Errorf("FIXPILOT_READ_HEADER_TIMEOUT must be > 0")
	}
	if cfg.ReadTimeout <= 0 {
		return Config{}, fmt.Errorf("FIXPILOT_READ_TIMEOUT must be > 0")
	}
	if cfg.ShutdownGracePeriod <= 0 {
		return Config{}, fmt.Errorf("FIXPILOT_SHUTDOWN_GRACE_PERIOD must be > 0")
	}
	if cfg.AuthMode == AuthModeRequired && len(cfg.APIKeys) == 0 {
		return Config{}, fmt.Errorf("FIXPILOT_API_KEYS must be set when FIXPILOT_AUTH_MODE=required")
	}

	return cfg, nil
}

func envOr(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envInt64Or(key string, def int64) int64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func envIntOr(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func envFloat64Or(key string, def float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return def
	}
	return n
}

func envDurationOr(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return d
}

func splitCSV(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
