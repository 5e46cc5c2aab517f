package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// Type is a downstream message type. The vocabulary is closed: dispatch
// switches over these constants with an explicit unknown arm, never on raw
// strings.
type Type string

// Client-emitted types.
const (
	TypeClientReady   Type = "client-ready"
	TypeChatMessage   Type = "chat-message"
	TypeOrderSubmit   Type = "order-submit"
	TypeDashboardData Type = "dashboard-data"
	TypeVideoFrame    Type = "video-frame"
)

// Server-emitted types.
const (
	TypeOrderConfirmation Type = "order-confirmation"
	TypeOrderStatus       Type = "order-status"
	TypeRemoteOrder       Type = "remote-order"
	TypeWorldData         Type = "world-data"
	TypeWorldStatus       Type = "world-status"
	TypeServerStatus      Type = "server-status"
)

// Known reports whether t belongs to the closed downstream vocabulary.
func (t Type) Known() bool {
	switch t {
	case TypeClientReady, TypeChatMessage, TypeOrderSubmit, TypeDashboardData,
		TypeVideoFrame, TypeOrderConfirmation, TypeOrderStatus, TypeRemoteOrder,
		TypeWorldData, TypeWorldStatus, TypeServerStatus:
		return true
	}
	return false
}

// Envelope is the wire unit for client connections. Envelopes are immutable
// once parsed; enrichment (server timestamps, processed flags) always mints a
// new envelope rather than mutating the sender's original.
type Envelope struct {
	Type       Type            `json:"type"`
	Timestamp  int64           `json:"timestamp,omitempty"`
	ClientType string          `json:"clientType,omitempty"`
	Data       json.RawMessage `json:"data,omitempty"`
}

// ParseError describes an inbound frame that could not be decoded. It is
// logged and discarded by the caller; the connection stays open.
type ParseError struct {
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse envelope: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("parse envelope: %s", e.Reason)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Parse decodes a raw frame into an Envelope. Malformed JSON or a missing
// type field yields a *ParseError.
func Parse(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, &ParseError{Reason: "malformed json", Err: err}
	}
	if env.Type == "" {
		return Envelope{}, &ParseError{Reason: "missing type"}
	}
	return env, nil
}

// New builds an envelope of type t around data, stamped with the current
// epoch-millisecond timestamp. data must marshal cleanly; callers pass maps
// or structs they control.
func New(t Type, data any) (Envelope, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s data: %w", t, err)
	}
	return Envelope{
		Type:      t,
		Timestamp: time.Now().UnixMilli(),
		Data:      raw,
	}, nil
}

// Encode serializes the envelope for the wire.
func (e Envelope) Encode() ([]byte, error) {
	return json.Marshal(e)
}
