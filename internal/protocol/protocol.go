// Package protocol defines the JSON frames exchanged with editing clients.
//
// Every frame is {"type": <Type>, "data": {...}}. Inbound frames are decoded
// into typed requests and validated before any room state is touched.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Type names a frame.
type Type string

// Inbound frame types.
const (
	TypeJoin   Type = "join"
	TypeEdit   Type = "edit"
	TypeCursor Type = "cursor"
	TypeSave   Type = "save"
)

// Outbound frame types. Edit and cursor broadcasts reuse the inbound names.
const (
	TypeRoomState      Type = "roomState"
	TypeUserJoined     Type = "userJoined"
	TypeUserLeft       Type = "userLeft"
	TypePresenceUpdate Type = "presenceUpdate"
	TypeSaved          Type = "saved"
	TypeError          Type = "error"
)

var (
	// ErrMalformed is returned when a frame is not valid JSON of the expected shape.
	ErrMalformed = errors.New("malformed message")

	// ErrUnknownType is returned for frames with an unrecognised type.
	ErrUnknownType = errors.New("unknown message type")
)

// ValidationError reports a request that decoded but failed validation.
type ValidationError struct {
	Type Type
	Err  error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s message: %v", e.Type, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// Envelope is the outer shape of every frame.
type Envelope struct {
	Type Type            `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

var validate = validator.New()

// Decode parses a raw inbound frame into one of *JoinRequest, *EditRequest,
// *CursorRequest or *SaveRequest.
func Decode(raw []byte) (interface{}, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", ErrMalformed)
	}

	var req interface{}
	switch env.Type {
	case TypeJoin:
		req = &JoinRequest{}
	case TypeEdit:
		req = &EditRequest{}
	case TypeCursor:
		req = &CursorRequest{}
	case TypeSave:
		req = &SaveRequest{}
	default:
		return nil, fmt.Errorf("%q: %w", env.Type, ErrUnknownType)
	}

	if len(env.Data) == 0 {
		return nil, &ValidationError{Type: env.Type, Err: ErrMalformed}
	}
	if err := json.Unmarshal(env.Data, req); err != nil {
		return nil, &ValidationError{Type: env.Type, Err: fmt.Errorf("%w: %v", ErrMalformed, err)}
	}
	if err := validate.Struct(req); err != nil {
		return nil, &ValidationError{Type: env.Type, Err: err}
	}

	return req, nil
}

// Encode builds an outbound frame.
func Encode(t Type, payload interface{}) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", t, err)
	}

	frame, err := json.Marshal(Envelope{Type: t, Data: data})
	if err != nil {
		return nil, fmt.Errorf("encode %s frame: %w", t, err)
	}
	return frame, nil
}
