package protocol

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestParse(t *testing.T) {
	raw := []byte(`{"type":"chat-message","timestamp":1700000000000,"data":{"content":"hi"}}`)

	env, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if env.Type != TypeChatMessage {
		t.Errorf("Type = %q, want %q", env.Type, TypeChatMessage)
	}
	if env.Timestamp != 1700000000000 {
		t.Errorf("Timestamp = %d, want 1700000000000", env.Timestamp)
	}

	var data map[string]string
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatalf("unmarshal data: %v", err)
	}
	if data["content"] != "hi" {
		t.Errorf("data.content = %q, want %q", data["content"], "hi")
	}
}

func TestParseClientReady(t *testing.T) {
	env, err := Parse([]byte(`{"type":"client-ready","clientType":"viewer"}`))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if env.Type != TypeClientReady {
		t.Errorf("Type = %q, want %q", env.Type, TypeClientReady)
	}
	if env.ClientType != "viewer" {
		t.Errorf("ClientType = %q, want %q", env.ClientType, "viewer")
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"malformed json", `{"type":`},
		{"missing type", `{"data":{"content":"hi"}}`},
		{"empty type", `{"type":"","data":{}}`},
		{"not an object", `[1,2,3]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.raw))
			if err == nil {
				t.Fatal("Parse succeeded, want error")
			}
			var pe *ParseError
			if !errors.As(err, &pe) {
				t.Errorf("error type = %T, want *ParseError", err)
			}
		})
	}
}

func TestTypeKnown(t *testing.T) {
	known := []Type{
		TypeClientReady, TypeChatMessage, TypeOrderSubmit, TypeDashboardData,
		TypeVideoFrame, TypeOrderConfirmation, TypeOrderStatus, TypeRemoteOrder,
		TypeWorldData, TypeWorldStatus, TypeServerStatus,
	}
	for _, typ := range known {
		if !typ.Known() {
			t.Errorf("Known(%q) = false, want true", typ)
		}
	}

	for _, typ := range []Type{"", "ping", "chat_message", "CHAT-MESSAGE"} {
		if typ.Known() {
			t.Errorf("Known(%q) = true, want false", typ)
		}
	}
}

func TestNewAndEncode(t *testing.T) {
	env, err := New(TypeServerStatus, map[string]bool{"remoteServerConnected": true})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if env.Timestamp == 0 {
		t.Error("Timestamp = 0, want current epoch-ms")
	}

	raw, err := env.Encode()
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	round, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse of encoded envelope failed: %v", err)
	}
	if round.Type != TypeServerStatus {
		t.Errorf("Type = %q, want %q", round.Type, TypeServerStatus)
	}

	var data map[string]bool
	if err := json.Unmarshal(round.Data, &data); err != nil {
		t.Fatalf("unmarshal data: %v", err)
	}
	if !data["remoteServerConnected"] {
		t.Error("remoteServerConnected = false, want true")
	}
}
