package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPeerIDAcceptsNumberAndString(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"number", `7`, "7"},
		{"string", `"7"`, "7"},
		{"large number", `9007199254740993`, "9007199254740993"},
		{"null", `null`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var p PeerID
			require.NoError(t, json.Unmarshal([]byte(tt.input), &p))
			assert.Equal(t, tt.expected, p.String())
		})
	}
}

func TestPeerIDIsZero(t *testing.T) {
	assert.True(t, PeerID("").IsZero())
	assert.True(t, PeerID("0").IsZero())
	assert.False(t, PeerID("7").IsZero())
	assert.False(t, PeerID("alice").IsZero())
}

func TestParseChatMessage(t *testing.T) {
	payload, err := ParseChatMessage([]byte(`{"id":"m1","senderId":7,"receiverId":"42","content":"hi","createdAt":"2026-08-31T10:00:00Z"}`))
	require.NoError(t, err)
	assert.Equal(t, "m1", payload.ID)
	assert.Equal(t, "7", payload.SenderID.String())
	assert.Equal(t, "42", payload.ReceiverID.String())
	assert.Equal(t, "hi", payload.Content)
}

func TestParseChatMessageRejectsMissingFields(t *testing.T) {
	_, err := ParseChatMessage([]byte(`{"senderId":7,"content":"hi"}`))
	assert.Error(t, err)

	_, err = ParseChatMessage([]byte(`{"id":"m1","content":"hi"}`))
	assert.Error(t, err)

	_, err = ParseChatMessage([]byte(`not json`))
	assert.Error(t, err)
}

func TestParseDeliveryReceipt(t *testing.T) {
	payload, err := ParseDeliveryReceipt([]byte(`{"messageId":"m1","receiverId":42}`))
	require.NoError(t, err)
	assert.Equal(t, "m1", payload.MessageID)

	_, err = ParseDeliveryReceipt([]byte(`{}`))
	assert.Error(t, err)
}

func TestParseReadReceiptKeyFallback(t *testing.T) {
	payload, err := ParseReadReceipt([]byte(`{"id":"m1","read":true}`))
	require.NoError(t, err)
	assert.Equal(t, "m1", payload.Key())

	payload, err = ParseReadReceipt([]byte(`{"messageId":"m2","read":true}`))
	require.NoError(t, err)
	assert.Equal(t, "m2", payload.Key())

	_, err = ParseReadReceipt([]byte(`{"read":true}`))
	assert.Error(t, err)
}

func TestParseTyping(t *testing.T) {
	payload, err := ParseTyping([]byte(`{"userId":7,"receiverId":42,"isTyping":true}`))
	require.NoError(t, err)
	assert.Equal(t, "7", payload.UserID.String())
	assert.True(t, payload.IsTyping)

	_, err = ParseTyping([]byte(`{"isTyping":true}`))
	assert.Error(t, err)
}

func TestParseMessageUpdate(t *testing.T) {
	payload, err := ParseMessageUpdate([]byte(`{"id":"m1","content":"edited"}`))
	require.NoError(t, err)
	assert.Equal(t, "edited", payload.Content)

	_, err = ParseMessageUpdate([]byte(`{"content":"edited"}`))
	assert.Error(t, err)
}

func TestConnectionStateStatusText(t *testing.T) {
	assert.Equal(t, "Connected", StateConnected.StatusText())
	assert.Equal(t, "Connecting...", StateConnecting.StatusText())
	assert.Equal(t, "Disconnected", StateDisconnected.StatusText())
	assert.Equal(t, "connected", StateConnected.StatusClass())
}
