package handlers

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/fixpilot-ai/fixpilot/pkg/core"
	"github.com/fixpilot-ai/fixpilot/pkg/core/guide"
	"github.com/fixpilot-ai/fixpilot/pkg/gateway/config"
	"github.com/fixpilot-ai/fixpilot/pkg/gateway/lifecycle"
	"github.com/fixpilot-ai/fixpilot/pkg/gateway/live/protocol"
	"github.com/fixpilot-ai/fixpilot/pkg/gateway/live/session"
	"github.com/fixpilot-ai/fixpilot/pkg/gateway/live/sessions"
	"github.com/fixpilot-ai/fixpilot/pkg/gateway/metrics"
	"github.com/fixpilot-ai/fixpilot/pkg/gateway/mw"
	"github.com/fixpilot-ai/fixpilot/pkg/gateway/ratelimit"
)

// LiveHandler handles /v1/live websocket repair sessions.
type LiveHandler struct {
	Config       config.Config
	Providers    core.Providers
	Engine       guide.Config
	Logger       *slog.Logger
	Limiter      *ratelimit.Limiter
	Lifecycle    *lifecycle.Lifecycle
	LiveSessions *sessions.Tracker
	Metrics      *metrics.Metrics
	Recorder     session.Recorder
}

func (h LiveHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.Lifecycle != nil && h.Lifecycle.IsDraining() {
		http.Error(w, "gateway is draining", http.StatusServiceUnavailable)
		return
	}
	if !h.originAllowed(r) {
		http.Error(w, "origin is not allowed", http.StatusForbidden)
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(*http.Request) bool { return true },
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	if h.Config.LiveMaxJSONMessageBytes > 0 {
		conn.SetReadLimit(h.Config.LiveMaxJSONMessageBytes)
	}

	handshakeTimeout := h.Config.LiveHandshakeTimeout
	if handshakeTimeout <= 0 {
		handshakeTimeout = 5 * time.Second
	}
	_ = conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	messageType, firstFrame, err := conn.ReadMessage()
	if err != nil {
		h.writeWSError(conn, "session", "bad_request", "failed to read hello", true)
		return
	}
	if messageType != websocket.TextMessage {
		h.writeWSError(conn, "session", "bad_request", "first frame must be hello", true)
		return
	}

	decoded, err := protocol.DecodeClientMessage(firstFrame)
	if err != nil {
		h.writeWSError(conn, "session", "bad_request", "invalid hello frame", true)
		return
	}
	hello, ok := decoded.(protocol.ClientHello)
	if !ok {
		h.writeWSError(conn, "session", "bad_request", "first frame must be hello", true)
		return
	}
	if strings.TrimSpace(hello.ProtocolVersion) != protocol.ProtocolVersion1 {
		h.writeWSError(conn, "session", "unsupported_version", "unsupported protocol_version", true)
		return
	}

	apiKey := h.resolveGatewayKey(r, hello)
	principalKey, authErr := h.resolvePrincipal(apiKey)
	if authErr != nil {
		h.writeWSError(conn, "session", "unauthorized", authErr.Error(), true)
		return
	}

	var sessionPermit *ratelimit.Permit
	if h.Limiter != nil && h.Config.WSMaxSessionsPerPrincipal > 0 {
		dec := h.Limiter.AcquireSession(principalKey, time.Now())
		if !dec.Allowed {
			h.Metrics.RecordRateLimitHit("session")
			h.writeWSError(conn, "session", "rate_limited", "too many active repair sessions", true)
			return
		}
		sessionPermit = dec.Permit
		defer sessionPermit.Release()
	}

	bridge, err := session.New(session.Dependencies{
		Conn:       conn,
		Logger:     h.Logger,
		Providers:  h.Providers,
		Engine:     h.Engine,
		Hello:      hello,
		Principal:  principalKey,
		AllowFrame: h.frameGate(principalKey),
		Metrics:    h.Metrics,
		Recorder:   h.Recorder,
		Config: session.Config{
			MaxJSONMessageBytes: h.Config.LiveMaxJSONMessageBytes,
			MaxFrameBytes:       h.Config.LiveMaxFrameBytes,
			PingInterval:        h.Config.LiveWSPingInterval,
			WriteTimeout:        h.Config.LiveWSWriteTimeout,
			ReadTimeout:         h.Config.LiveWSReadTimeout,
			MaxSessionDuration:  h.Config.WSMaxSessionDuration,
			OutboundQueueSize:   128,
		},
	})
	if err != nil {
		h.writeWSError(conn, "session", "internal", "failed to initialize repair session", true)
		return
	}

	ack := protocol.ServerHelloAck{
		Type:            "hello_ack",
		ProtocolVersion: protocol.ProtocolVersion1,
		SessionID:       bridge.SessionID(),
		Limits: &protocol.HelloAckLimits{
			MaxFrameBytes:       h.Config.LiveMaxFrameBytes,
			MaxJSONMessageBytes: h.Config.LiveMaxJSONMessageBytes,
			MaxFrameFPS:         h.Config.LiveMaxFrameFPS,
			ScanIntervalMS:      h.Engine.ScanIntervalMs,
		},
	}
	if err := conn.WriteJSON(ack); err != nil {
		return
	}
	_ = conn.SetReadDeadline(time.Time{})

	unregister := func() {}
	if h.LiveSessions != nil {
		unregister = h.LiveSessions.Register(bridge.SessionID(), sessions.Handle{
			Cancel: bridge.Cancel,
			Warn:   bridge.SendWarning,
		})
	}
	defer unregister()

	if h.Logger != nil {
		h.Logger.Info("live session opened",
			"session_id", bridge.SessionID(),
			"request_id", requestIDFromContext(r),
			"hello", hello.RedactedForLog(),
		)
	}
	if err := bridge.Run(); err != nil {
		if h.Logger != nil {
			h.Logger.Warn("live session ended with error", "session_id", bridge.SessionID(), "error", err)
		}
	}
}

// frameGate binds the per-principal frame bucket to a bridge callback.
func (h LiveHandler) frameGate(principal string) func(time.Time) (bool, int) {
	if h.Limiter == nil {
		return nil
	}
	return func(now time.Time) (bool, int) {
		dec := h.Limiter.AllowFrame(principal, now)
		return dec.Allowed, dec.RetryAfter
	}
}

func (h LiveHandler) originAllowed(r *http.Request) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	if len(h.Config.CORSAllowedOrigins) == 0 {
		return false
	}
	_, ok := h.Config.CORSAllowedOrigins[origin]
	return ok
}

func (h LiveHandler) resolveGatewayKey(r *http.Request, hello protocol.ClientHello) string {
	if hello.Auth != nil && strings.TrimSpace(hello.Auth.GatewayAPIKey) != "" {
		return strings.TrimSpace(hello.Auth.GatewayAPIKey)
	}
	return strings.TrimSpace(r.URL.Query().Get("gateway_api_key"))
}

func (h LiveHandler) resolvePrincipal(apiKey string) (string, error) {
	apiKey = strings.TrimSpace(apiKey)
	switch h.Config.AuthMode {
	case config.AuthModeRequired:
		if apiKey == "" {
			return "", fmt.Errorf("missing gateway api key")
		}
		if _, ok := h.Config.APIKeys[apiKey]; !ok {
			return "", fmt.Errorf("invalid gateway api key")
		}
		return ratelimit.PrincipalKeyFromAPIKey(apiKey), nil
	case config.AuthModeOptional:
		if apiKey != "" {
			if _, ok := h.Config.APIKeys[apiKey]; !ok {
				return "", fmt.Errorf("invalid gateway api key")
			}
			return ratelimit.PrincipalKeyFromAPIKey(apiKey), nil
		}
		return "anonymous", nil
	case config.AuthModeDisabled:
		return "anonymous", nil
	default:
		return "", fmt.Errorf("invalid auth mode")
	}
}

func (h LiveHandler) writeWSError(conn *websocket.Conn, scope, code, message string, close bool) {
	_ = conn.WriteJSON(protocol.ServerError{Type: "error", Scope: scope, Code: code, Message: message, Close: close})
	if close {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, message), time.Now().Add(2*time.Second))
	}
}

func requestIDFromContext(r *http.Request) string {
	if id, ok := mw.RequestIDFrom(r.Context()); ok {
		return id
	}
	return ""
}
