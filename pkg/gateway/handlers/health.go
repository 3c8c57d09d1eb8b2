package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/fixpilot-ai/fixpilot/pkg/gateway/config"
	"github.com/fixpilot-ai/fixpilot/pkg/gateway/lifecycle"
	"github.com/fixpilot-ai/fixpilot/pkg/gateway/live/sessions"
)

type HealthHandler struct{}

func (h HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

type ReadyHandler struct {
	Config       config.Config
	Lifecycle    *lifecycle.Lifecycle
	LiveSessions *sessions.Tracker
}

func (h ReadyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	type readyResp struct {
		OK             bool     `json:"ok"`
		Draining       bool     `json:"draining"`
		AuthMode       string   `json:"auth_mode"`
		ActiveSessions int      `json:"active_sessions"`
		Issues         []string `json:"issues,omitempty"`
	}

	issues := make([]string, 0, 4)

	switch h.Config.AuthMode {
	case config.AuthModeRequired, config.AuthModeOptional, config.AuthModeDisabled:
	default:
		issues = append(issues, "invalid auth_mode")
	}
	if h.Config.AuthMode == config.AuthModeRequired && len(h.Config.APIKeys) == 0 {
		issues = append(issues, "auth_mode=required but no api keys configured")
	}
	if h.Config.GeminiAPIKey == "" {
		issues = append(issues, "gemini api key is not configured")
	}
	if h.Config.LiveHandshakeTimeout <= 0 {
		issues = append(issues, "live handshake timeout must be > 0")
	}
	if h.Config.LiveMaxJSONMessageBytes <= 0 || h.Config.LiveMaxFrameBytes <= 0 {
		issues = append(issues, "live message budgets must be > 0")
	}
	if h.Config.LiveWSPingInterval <= 0 || h.Config.LiveWSWriteTimeout <= 0 {
		issues = append(issues, "live ws timeouts must be > 0")
	}
	if h.Config.WSMaxSessionDuration <= 0 {
		issues = append(issues, "ws max session duration must be > 0")
	}
	if h.Config.WSMaxSessionsPerPrincipal <= 0 {
		issues = append(issues, "ws max sessions per principal must be > 0")
	}
	if h.Config.ReadHeaderTimeout <= 0 || h.Config.ReadTimeout <= 0 {
		issues = append(issues, "timeouts must be > 0")
	}

	draining := h.Lifecycle.IsDraining()
	ok := len(issues) == 0 && !draining
	status := http.StatusOK
	if !ok {
		status = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(readyResp{
		OK:             ok,
		Draining:       draining,
		AuthMode:       string(h.Config.AuthMode),
		ActiveSessions: h.LiveSessions.Count(),
		Issues:         issues,
	})
}
