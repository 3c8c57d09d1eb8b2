package protocol

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/fixpilot-ai/fixpilot/pkg/core/guide"
)

func TestDecodeClientMessageHello(t *testing.T) {
	raw := []byte(`{
		"type": "hello",
		"protocol_version": "1",
		"auth": {"gateway_api_key": "fp_sk_test"},
		"start": {
			"category": "plumbing",
			"problem": "leaking trap",
			"expected_item": "kitchen sink"
		}
	}`)

	decoded, err := DecodeClientMessage(raw)
	if err != nil {
		t.Fatalf("DecodeClientMessage() error = %v", err)
	}
	hello, ok := decoded.(ClientHello)
	if !ok {
		t.Fatalf("decoded type = %T, want ClientHello", decoded)
	}
	if hello.Start.Category != "plumbing" || hello.Start.ExpectedItem != "kitchen sink" {
		t.Fatalf("start = %+v", hello.Start)
	}

	redacted := hello.RedactedForLog()
	if redacted["has_gateway_key"] != true {
		t.Fatalf("redacted = %v", redacted)
	}
	if _, leaked := redacted["gateway_api_key"]; leaked {
		t.Fatalf("api key leaked into log form")
	}
}

func TestDecodeClientMessageRejections(t *testing.T) {
	cases := []struct {
		name  string
		raw   string
		param string
	}{
		{"not json", `{`, ""},
		{"missing type", `{"foo": 1}`, "type"},
		{"unknown type", `{"type": "telemetry"}`, "type"},
		{"hello without version", `{"type":"hello","start":{"category":"a","problem":"b","expected_item":"c"}}`, "protocol_version"},
		{"hello without category", `{"type":"hello","protocol_version":"1","start":{"problem":"b","expected_item":"c"}}`, "start.category"},
		{"hello without expected item", `{"type":"hello","protocol_version":"1","start":{"category":"a","problem":"b"}}`, "start.expected_item"},
		{"frame without data", `{"type":"camera_frame"}`, "data_b64"},
		{"action without name", `{"type":"action"}`, "name"},
		{"unknown action", `{"type":"action","name":"reboot"}`, "name"},
		{"speech mark without id", `{"type":"speech_mark","state":"finished"}`, "utterance_id"},
		{"speech mark bad state", `{"type":"speech_mark","utterance_id":"u1","state":"maybe"}`, "state"},
		{"control bad op", `{"type":"control","op":"restart"}`, "op"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := DecodeClientMessage([]byte(tc.raw))
			if err == nil {
				t.Fatalf("DecodeClientMessage(%q) succeeded", tc.raw)
			}
			var de *DecodeError
			if !errors.As(err, &de) {
				t.Fatalf("error type = %T, want *DecodeError", err)
			}
			if de.Param != tc.param {
				t.Fatalf("param = %q, want %q", de.Param, tc.param)
			}
		})
	}
}

func TestActionFromClient(t *testing.T) {
	on := true
	cases := []struct {
		name string
		msg  ClientAction
		want guide.Action
	}{
		{"resume", ClientAction{Name: "resume"}, guide.ActionResume{}},
		{"pause default", ClientAction{Name: "pause"}, guide.ActionPause{Reason: guide.PauseManual}},
		{"pause working", ClientAction{Name: "pause", Reason: "working_on_step"}, guide.ActionPause{Reason: guide.PauseWorkingOnStep}},
		{"toggle item", ClientAction{Name: "toggle_item", Item: "bucket"}, guide.ActionToggleItem{Item: "bucket"}},
		{"question", ClientAction{Name: "question_captured", Question: "which washer?"}, guide.ActionQuestionCaptured{Question: "which washer?"}},
		{"voice toggle", ClientAction{Name: "set_voice_enabled", Enabled: &on}, guide.ActionSetVoiceEnabled{Enabled: true}},
		{"substitute confirm", ClientAction{Name: "substitute_confirm"}, guide.ActionSubstituteConfirm{}},
		{"acknowledge plan", ClientAction{Name: "acknowledge_new_plan"}, guide.ActionAcknowledgeNewPlan{}},
		{"end session", ClientAction{Name: "end_session"}, guide.ActionEndSession{}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ActionFromClient(tc.msg)
			if err != nil {
				t.Fatalf("ActionFromClient() error = %v", err)
			}
			if got != tc.want {
				t.Fatalf("action = %#v, want %#v", got, tc.want)
			}
		})
	}
}

func TestActionFromClientRejections(t *testing.T) {
	cases := []struct {
		name  string
		msg   ClientAction
		param string
	}{
		{"pause do_task is engine-only", ClientAction{Name: "pause", Reason: "do_task"}, "reason"},
		{"toggle without item", ClientAction{Name: "toggle_item"}, "item"},
		{"question without text", ClientAction{Name: "question_captured"}, "question"},
		{"voice toggle without flag", ClientAction{Name: "set_voice_enabled"}, "enabled"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ActionFromClient(tc.msg)
			var de *DecodeError
			if !errors.As(err, &de) {
				t.Fatalf("error = %v, want *DecodeError", err)
			}
			if de.Param != tc.param {
				t.Fatalf("param = %q, want %q", de.Param, tc.param)
			}
		})
	}
}

func TestEncodeEvent(t *testing.T) {
	ev := &guide.StepAdvancedEvent{StepIndex: 2, TotalSteps: 5, PlanRevision: 1, Method: "confirmed"}
	enc, err := EncodeEvent(ev, "STEP_ACTIVE")
	if err != nil {
		t.Fatalf("EncodeEvent() error = %v", err)
	}
	if enc.Type != "event" || enc.Event != "step.advanced" || enc.State != "STEP_ACTIVE" {
		t.Fatalf("envelope = %+v", enc)
	}

	var payload struct {
		StepIndex    int    `json:"step_index"`
		TotalSteps   int    `json:"total_steps"`
		PlanRevision int    `json:"plan_revision"`
		Method       string `json:"method"`
	}
	if err := json.Unmarshal(enc.Data, &payload); err != nil {
		t.Fatalf("data unmarshal: %v", err)
	}
	if payload.StepIndex != 2 || payload.PlanRevision != 1 || payload.Method != "confirmed" {
		t.Fatalf("payload = %+v", payload)
	}
}
