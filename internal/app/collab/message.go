/*
Package collab contains the real-time collaboration engine: the wire envelope, the
connection registry that binds sockets to sessions and users, the message router,
and the WebSocket-backed connection implementation.

This file defines the CollaborationMessage envelope, its payload shapes and the
parsing and validation rules applied to inbound frames.
*/
package collab

import (
	"bytes"
	"encoding/json"
	"fmt"

	"bpmncollab/internal/app/user"
	"bpmncollab/internal/pkg/errs"
)

// MessageType identifies the kind of a collaboration envelope.
type MessageType string

const (
	TypeJoin    MessageType = "join"
	TypeLeave   MessageType = "leave"
	TypeSync    MessageType = "sync"
	TypeCursor  MessageType = "cursor"
	TypeCommand MessageType = "command"
	TypeLock    MessageType = "lock"
	TypeUnlock  MessageType = "unlock"

	// TypeError is sent by the server only, and only to the offending sender.
	TypeError MessageType = "error"
)

// SystemUserID is the userId carried by envelopes the server originates on nobody's behalf.
const SystemUserID = "system"

// clientTypes are the types a client may send.
var clientTypes = map[MessageType]struct{}{
	TypeJoin:    {},
	TypeLeave:   {},
	TypeSync:    {},
	TypeCursor:  {},
	TypeCommand: {},
	TypeLock:    {},
	TypeUnlock:  {},
}

// ExcludesSender reports whether a relayed message of this type skips the sender's
// connections. These types describe an action the sender already applied locally.
func (t MessageType) ExcludesSender() bool {
	switch t {
	case TypeCommand, TypeCursor, TypeLock, TypeUnlock:
		return true
	default:
		return false
	}
}

// Message is the JSON envelope exchanged in both directions.
type Message struct {
	Type      MessageType     `json:"type"`
	UserID    string          `json:"userId"`
	SessionID string          `json:"sessionId"`
	Payload   json.RawMessage `json:"payload"`
}

// JoinSelfPayload is sent to a joining connection only.
type JoinSelfPayload struct {
	User          user.User   `json:"user"`
	ExistingUsers []user.User `json:"existingUsers"`
}

// JoinPayload announces a joining user to the rest of the session.
type JoinPayload struct {
	User user.User `json:"user"`
}

// LeavePayload is always empty.
type LeavePayload struct{}

// SyncPayload carries a full diagram document.
type SyncPayload struct {
	XML string `json:"xml"`
}

// CursorPayload is a pointer position on the canvas.
type CursorPayload struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// CommandPayload is an editor command the sender already executed locally.
type CommandPayload struct {
	Command string          `json:"command"`
	Context json.RawMessage `json:"context,omitempty"`
}

// LockPayload names the diagram element being locked or unlocked.
type LockPayload struct {
	ElementID string `json:"elementId"`
}

// ErrorPayload describes why a frame was rejected.
type ErrorPayload struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}

var emptyObject = json.RawMessage("{}")

// NewMessage builds an envelope with the payload marshaled to JSON.
func NewMessage(t MessageType, sessionID, userID string, payload any) (Message, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Message{}, fmt.Errorf("marshal %s payload: %w", t, err)
	}

	return Message{
		Type:      t,
		UserID:    userID,
		SessionID: sessionID,
		Payload:   raw,
	}, nil
}

// Encode serializes the envelope for a text frame.
func (m Message) Encode() ([]byte, error) {
	if len(m.Payload) == 0 {
		m.Payload = emptyObject
	}
	return json.Marshal(m)
}

// ParseMessage decodes an inbound frame into an envelope.
// It checks the envelope structure and the message type; payload shape is checked by Validate.
func ParseMessage(raw []byte) (Message, *errs.CustomError) {
	var msg Message

	if err := json.Unmarshal(raw, &msg); err != nil {
		return Message{}, errs.NewError(errs.ErrMalformedEnvelope, err)
	}

	if msg.Type == "" {
		return Message{}, errs.NewError(errs.ErrMalformedEnvelope, "missing type")
	}

	if msg.Type == TypeError {
		return Message{}, errs.NewError(errs.ErrServerOnlyMessageType, string(msg.Type))
	}

	if _, ok := clientTypes[msg.Type]; !ok {
		return Message{}, errs.NewError(errs.ErrUnknownMessageType, string(msg.Type))
	}

	payload := bytes.TrimSpace(msg.Payload)
	switch {
	case len(payload) == 0 || bytes.Equal(payload, []byte("null")):
		msg.Payload = emptyObject
	case payload[0] != '{':
		return Message{}, errs.NewError(errs.ErrInvalidPayload, msg.Type, "payload must be an object")
	default:
		msg.Payload = payload
	}

	return msg, nil
}

// Validate checks the payload against the shape required by the message type.
func (m Message) Validate() *errs.CustomError {
	invalid := func(reason string) *errs.CustomError {
		return errs.NewError(errs.ErrInvalidPayload, m.Type, reason)
	}

	switch m.Type {
	case TypeCursor:
		var p struct {
			X *float64 `json:"x"`
			Y *float64 `json:"y"`
		}
		if err := json.Unmarshal(m.Payload, &p); err != nil || p.X == nil || p.Y == nil {
			return invalid("x and y must be numbers")
		}

	case TypeCommand:
		var p struct {
			Command *string         `json:"command"`
			Context json.RawMessage `json:"context"`
		}
		if err := json.Unmarshal(m.Payload, &p); err != nil || p.Command == nil || *p.Command == "" {
			return invalid("command must be a non-empty string")
		}
		if ctx := bytes.TrimSpace(p.Context); len(ctx) > 0 && !bytes.Equal(ctx, []byte("null")) && ctx[0] != '{' {
			return invalid("context must be an object")
		}

	case TypeLock, TypeUnlock:
		var p struct {
			ElementID *string `json:"elementId"`
		}
		if err := json.Unmarshal(m.Payload, &p); err != nil || p.ElementID == nil || *p.ElementID == "" {
			return invalid("elementId must be a non-empty string")
		}

	case TypeSync:
		var p struct {
			XML *string `json:"xml"`
		}
		if err := json.Unmarshal(m.Payload, &p); err != nil || p.XML == nil {
			return invalid("xml must be a string")
		}

	case TypeJoin, TypeLeave:
		// free-form object, already checked by ParseMessage

	default:
		return errs.NewError(errs.ErrUnknownMessageType, string(m.Type))
	}

	return nil
}
