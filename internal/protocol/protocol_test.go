package protocol_test

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/manpreetbhatti/codetogether/internal/change"
	"github.com/manpreetbhatti/codetogether/internal/protocol"
)

func TestDecode(t *testing.T) {
	t.Run("join", func(t *testing.T) {
		req, err := protocol.Decode([]byte(`{"type":"join","data":{"roomId":"r1","userId":"A"}}`))
		require.NoError(t, err)
		assert.Equal(t, &protocol.JoinRequest{RoomID: "r1", UserID: "A"}, req)
	})

	t.Run("edit", func(t *testing.T) {
		req, err := protocol.Decode([]byte(
			`{"type":"edit","data":{"roomId":"r1","userId":"A","edits":[{"from":1,"to":2,"insert":"X"}]}}`,
		))
		require.NoError(t, err)

		edit := req.(*protocol.EditRequest)
		assert.Equal(t, "r1", edit.RoomID)
		assert.Equal(t, []change.Edit{{From: 1, To: 2, Insert: "X"}}, edit.Edits)
	})

	t.Run("cursor at zero", func(t *testing.T) {
		req, err := protocol.Decode([]byte(`{"type":"cursor","data":{"roomId":"r1","position":0}}`))
		require.NoError(t, err)
		assert.Equal(t, 0, *req.(*protocol.CursorRequest).Position)
	})

	t.Run("save with empty content", func(t *testing.T) {
		req, err := protocol.Decode([]byte(`{"type":"save","data":{"roomId":"r1","content":"","cursorPosition":3}}`))
		require.NoError(t, err)

		save := req.(*protocol.SaveRequest)
		assert.Equal(t, "", *save.Content)
		assert.Equal(t, 3, save.CursorPosition)
	})
}

func TestDecodeRejects(t *testing.T) {
	tests := []struct {
		name       string
		raw        string
		validation bool
	}{
		{"not json", `hello`, false},
		{"unknown type", `{"type":"dance","data":{}}`, false},
		{"missing data", `{"type":"join"}`, true},
		{"join without room", `{"type":"join","data":{"userId":"A"}}`, true},
		{"join without user", `{"type":"join","data":{"roomId":"r1"}}`, true},
		{"edit empty batch", `{"type":"edit","data":{"roomId":"r1","edits":[]}}`, true},
		{"edit not an array", `{"type":"edit","data":{"roomId":"r1","edits":{"from":1}}}`, true},
		{"edit without room", `{"type":"edit","data":{"edits":[{"from":0,"to":0,"insert":"a"}]}}`, true},
		{"edit missing batch", `{"type":"edit","data":{"roomId":"r1"}}`, true},
		{"cursor negative", `{"type":"cursor","data":{"roomId":"r1","position":-1}}`, true},
		{"cursor not numeric", `{"type":"cursor","data":{"roomId":"r1","position":"2"}}`, true},
		{"cursor missing position", `{"type":"cursor","data":{"roomId":"r1"}}`, true},
		{"save without content", `{"type":"save","data":{"roomId":"r1"}}`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := protocol.Decode([]byte(tt.raw))
			require.Error(t, err)

			var verr *protocol.ValidationError
			assert.Equal(t, tt.validation, errors.As(err, &verr))
		})
	}
}

func TestEncode(t *testing.T) {
	frame, err := protocol.Encode(protocol.TypeCursor, protocol.CursorBroadcast{
		UserID:   "A",
		Position: 2,
		Color:    "#FF6B6B",
	})
	require.NoError(t, err)

	var env protocol.Envelope
	require.NoError(t, json.Unmarshal(frame, &env))
	assert.Equal(t, protocol.TypeCursor, env.Type)
	assert.JSONEq(t, `{"userId":"A","position":2,"color":"#FF6B6B"}`, string(env.Data))
}
