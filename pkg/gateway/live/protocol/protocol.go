package protocol

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fixpilot-ai/fixpilot/pkg/core/guide"
)

const ProtocolVersion1 = "1"

type DecodeError struct {
	Code    string
	Message string
	Param   string
}

func (e *DecodeError) Error() string {
	if e == nil {
		return ""
	}
	if strings.TrimSpace(e.Param) == "" {
		return e.Message
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Param)
}

func badRequest(message, param string) *DecodeError {
	return &DecodeError{Code: "bad_request", Message: message, Param: param}
}

func unsupported(message, param string) *DecodeError {
	return &DecodeError{Code: "unsupported", Message: message, Param: param}
}

type HelloAuth struct {
	GatewayAPIKey string `json:"gateway_api_key,omitempty"`
}

// HelloStart seeds the repair session. Mirrors guide.StartParams.
type HelloStart struct {
	Category     string `json:"category"`
	Problem      string `json:"problem"`
	LikelyCause  string `json:"likely_cause,omitempty"`
	ExpectedItem string `json:"expected_item"`
}

type ClientHello struct {
	Type            string     `json:"type"`
	ProtocolVersion string     `json:"protocol_version"`
	Auth            *HelloAuth `json:"auth,omitempty"`
	Start           HelloStart `json:"start"`
	VoiceEnabled    *bool      `json:"voice_enabled,omitempty"`
}

// RedactedForLog strips credentials for access logging.
func (h ClientHello) RedactedForLog() map[string]any {
	return map[string]any{
		"type":             h.Type,
		"protocol_version": h.ProtocolVersion,
		"category":         h.Start.Category,
		"expected_item":    h.Start.ExpectedItem,
		"has_gateway_key":  h.Auth != nil && strings.TrimSpace(h.Auth.GatewayAPIKey) != "",
	}
}

// ClientFrame is one camera frame push, base64 JPEG.
type ClientFrame struct {
	Type        string `json:"type"`
	DataB64     string `json:"data_b64"`
	TimestampMS *int64 `json:"timestamp_ms,omitempty"`
}

// ClientAction carries a user interaction to dispatch into the engine.
// Name matches the engine action names; the optional fields are read per
// action.
type ClientAction struct {
	Type string `json:"type"`
	Name string `json:"name"`

	Reason   string `json:"reason,omitempty"`   // pause
	Item     string `json:"item,omitempty"`     // toggle_item
	Question string `json:"question,omitempty"` // question_captured
	Enabled  *bool  `json:"enabled,omitempty"`  // set_voice_enabled
}

// ClientSpeechMark acknowledges utterance playback on the client.
type ClientSpeechMark struct {
	Type        string `json:"type"`
	UtteranceID string `json:"utterance_id"`
	State       string `json:"state"` // "finished" or "failed"
}

type ClientControl struct {
	Type string `json:"type"`
	Op   string `json:"op"`
}

func DecodeClientMessage(data []byte) (any, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, badRequest("invalid json frame", "")
	}
	typ := strings.TrimSpace(envelope.Type)
	if typ == "" {
		return nil, badRequest("missing type", "type")
	}

	switch typ {
	case "hello":
		var msg ClientHello
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid hello frame", "")
		}
		if err := ValidateHello(msg); err != nil {
			return nil, err
		}
		return msg, nil
	case "camera_frame":
		var msg ClientFrame
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid camera_frame", "")
		}
		if strings.TrimSpace(msg.DataB64) == "" {
			return nil, badRequest("camera_frame.data_b64 is required", "data_b64")
		}
		return msg, nil
	case "action":
		var msg ClientAction
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid action", "")
		}
		if _, err := ActionFromClient(msg); err != nil {
			return nil, err
		}
		return msg, nil
	case "speech_mark":
		var msg ClientSpeechMark
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid speech_mark", "")
		}
		if strings.TrimSpace(msg.UtteranceID) == "" {
			return nil, badRequest("speech_mark.utterance_id is required", "utterance_id")
		}
		switch strings.TrimSpace(msg.State) {
		case "finished", "failed":
		default:
			return nil, badRequest("speech_mark.state must be finished or failed", "state")
		}
		return msg, nil
	case "control":
		var msg ClientControl
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid control", "")
		}
		op := strings.TrimSpace(msg.Op)
		if op == "" {
			return nil, badRequest("control.op is required", "op")
		}
		switch op {
		case "end_session":
		default:
			return nil, unsupported("unsupported control operation", "op")
		}
		msg.Op = op
		return msg, nil
	default:
		return nil, badRequest("unsupported message type", "type")
	}
}

func ValidateHello(msg ClientHello) error {
	if strings.TrimSpace(msg.ProtocolVersion) == "" {
		return badRequest("hello.protocol_version is required", "protocol_version")
	}
	if strings.TrimSpace(msg.Start.Category) == "" {
		return badRequest("hello.start.category is required", "start.category")
	}
	if strings.TrimSpace(msg.Start.Problem) == "" {
		return badRequest("hello.start.problem is required", "start.problem")
	}
	if strings.TrimSpace(msg.Start.ExpectedItem) == "" {
		return badRequest("hello.start.expected_item is required", "start.expected_item")
	}
	return nil
}

// ActionFromClient maps a decoded action message onto an engine action.
func ActionFromClient(msg ClientAction) (guide.Action, error) {
	name := strings.TrimSpace(msg.Name)
	switch name {
	case "retry":
		return guide.ActionRetry{}, nil
	case "permissions_granted":
		return guide.ActionPermissionsGranted{}, nil
	case "permissions_denied":
		return guide.ActionPermissionsDenied{}, nil
	case "identity_override":
		return guide.ActionIdentityOverride{}, nil
	case "identity_rescan":
		return guide.ActionIdentityRescan{}, nil
	case "confirm_completion":
		return guide.ActionConfirmCompletion{}, nil
	case "decline_completion":
		return guide.ActionDeclineCompletion{}, nil
	case "request_override":
		return guide.ActionRequestOverride{}, nil
	case "override_confirmed":
		return guide.ActionOverrideConfirmed{}, nil
	case "override_cancelled":
		return guide.ActionOverrideCancelled{}, nil
	case "pause":
		reason := guide.PauseReason(strings.TrimSpace(msg.Reason))
		switch reason {
		case "":
			reason = guide.PauseManual
		case guide.PauseManual, guide.PauseWorkingOnStep:
		default:
			return nil, badRequest("pause.reason must be manual or working_on_step", "reason")
		}
		return guide.ActionPause{Reason: reason}, nil
	case "toggle_item":
		if strings.TrimSpace(msg.Item) == "" {
			return nil, badRequest("toggle_item.item is required", "item")
		}
		return guide.ActionToggleItem{Item: msg.Item}, nil
	case "resume":
		return guide.ActionResume{}, nil
	case "update_plan":
		return guide.ActionUpdatePlan{}, nil
	case "find_substitute":
		return guide.ActionFindSubstitute{}, nil
	case "start_listening":
		return guide.ActionStartListening{}, nil
	case "question_captured":
		if strings.TrimSpace(msg.Question) == "" {
			return nil, badRequest("question_captured.question is required", "question")
		}
		return guide.ActionQuestionCaptured{Question: msg.Question}, nil
	case "cancel_listening":
		return guide.ActionCancelListening{}, nil
	case "close_answer":
		return guide.ActionCloseAnswer{}, nil
	case "open_conversation":
		return guide.ActionOpenConversation{}, nil
	case "close_conversation":
		return guide.ActionCloseConversation{}, nil
	case "begin_substitute_scan":
		return guide.ActionBeginSubstituteScan{}, nil
	case "substitute_confirm":
		return guide.ActionSubstituteConfirm{}, nil
	case "substitute_reject":
		return guide.ActionSubstituteReject{}, nil
	case "substitute_retry":
		return guide.ActionSubstituteRetry{}, nil
	case "substitute_skip":
		return guide.ActionSubstituteSkip{}, nil
	case "acknowledge_new_plan":
		return guide.ActionAcknowledgeNewPlan{}, nil
	case "open_voice_settings":
		return guide.ActionOpenVoiceSettings{}, nil
	case "close_voice_settings":
		return guide.ActionCloseVoiceSettings{}, nil
	case "set_voice_enabled":
		if msg.Enabled == nil {
			return nil, badRequest("set_voice_enabled.enabled is required", "enabled")
		}
		return guide.ActionSetVoiceEnabled{Enabled: *msg.Enabled}, nil
	case "end_session":
		return guide.ActionEndSession{}, nil
	case "":
		return nil, badRequest("action.name is required", "name")
	default:
		return nil, unsupported("unsupported action", "name")
	}
}

// --- server -> client ---

type HelloAckLimits struct {
	MaxFrameBytes       int   `json:"max_frame_bytes"`
	MaxJSONMessageBytes int64 `json:"max_json_message_bytes"`
	MaxFrameFPS         int   `json:"max_frame_fps,omitempty"`
	ScanIntervalMS      int   `json:"scan_interval_ms"`
}

type ServerHelloAck struct {
	Type            string          `json:"type"`
	ProtocolVersion string          `json:"protocol_version"`
	SessionID       string          `json:"session_id"`
	Limits          *HelloAckLimits `json:"limits,omitempty"`
}

// ServerEvent wraps one engine event for the wire: the event type string
// plus the event struct's own JSON shape.
type ServerEvent struct {
	Type  string          `json:"type"`
	Event string          `json:"event"`
	State string          `json:"state,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// EncodeEvent builds the wire form of an engine event. state is the
// machine state after the event, by name.
func EncodeEvent(e guide.Event, state string) (ServerEvent, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return ServerEvent{}, err
	}
	return ServerEvent{
		Type:  "event",
		Event: e.EventType(),
		State: state,
		Data:  data,
	}, nil
}

// ServerSpeak asks the client to play one utterance.
type ServerSpeak struct {
	Type        string `json:"type"`
	UtteranceID string `json:"utterance_id"`
	Text        string `json:"text"`
	Urgent      bool   `json:"urgent,omitempty"`
}

// ServerSpeechCancel tells the client to stop playing an utterance.
type ServerSpeechCancel struct {
	Type        string `json:"type"`
	UtteranceID string `json:"utterance_id"`
}

type ServerError struct {
	Type    string `json:"type"`
	Scope   string `json:"scope"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Param   string `json:"param,omitempty"`
	Close   bool   `json:"close,omitempty"`
}
