// ABOUTME: Tests for stream frame decoding into typed events.
// ABOUTME: Covers every variant, heartbeat filtering, and unknown frame handling.

package guestchat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeEvent_Heartbeat(t *testing.T) {
	ev, err := DecodeEvent([]byte(`{"topicName":"channel.metadata","eventBody":{"message":"WebSocket Heartbeat"}}`))
	require.NoError(t, err)
	assert.Nil(t, ev, "heartbeat frames carry no event")
}

func TestDecodeEvent_MemberJoined(t *testing.T) {
	raw := `{
		"topicName": "v2.conversations.chats",
		"metadata": {"type": "message"},
		"eventBody": {
			"bodyType": "member-join",
			"sender": {"id": "member-9"},
			"conversation": {"id": "chat-1"}
		}
	}`

	ev, err := DecodeEvent([]byte(raw))
	require.NoError(t, err)

	joined, ok := ev.(MemberJoined)
	require.True(t, ok, "expected MemberJoined, got %T", ev)
	assert.Equal(t, "chat-1", joined.ChatID())
	assert.Equal(t, "member-9", joined.MemberID)
}

func TestDecodeEvent_MemberLeft(t *testing.T) {
	raw := `{
		"metadata": {"type": "message"},
		"eventBody": {
			"bodyType": "member-leave",
			"sender": {"id": "member-9"},
			"conversation": {"id": "chat-1"}
		}
	}`

	ev, err := DecodeEvent([]byte(raw))
	require.NoError(t, err)

	left, ok := ev.(MemberLeft)
	require.True(t, ok, "expected MemberLeft, got %T", ev)
	assert.Equal(t, "member-9", left.MemberID)
}

func TestDecodeEvent_MessagePosted(t *testing.T) {
	raw := `{
		"metadata": {"type": "message"},
		"eventBody": {
			"bodyType": "standard",
			"body": "hello from the agent",
			"sender": {"id": "agent-1"},
			"conversation": {"id": "chat-1"}
		}
	}`

	ev, err := DecodeEvent([]byte(raw))
	require.NoError(t, err)

	msg, ok := ev.(MessagePosted)
	require.True(t, ok, "expected MessagePosted, got %T", ev)
	assert.Equal(t, "chat-1", msg.ChatID())
	assert.Equal(t, "agent-1", msg.SenderID)
	assert.Equal(t, "hello from the agent", msg.Body)
}

func TestDecodeEvent_TypingIndicator(t *testing.T) {
	raw := `{
		"metadata": {"type": "typing-indicator"},
		"eventBody": {
			"sender": {"id": "agent-1"},
			"conversation": {"id": "chat-1"}
		}
	}`

	ev, err := DecodeEvent([]byte(raw))
	require.NoError(t, err)

	typing, ok := ev.(TypingIndicator)
	require.True(t, ok, "expected TypingIndicator, got %T", ev)
	assert.Equal(t, "chat-1", typing.ChatID())
	assert.Equal(t, "agent-1", typing.SenderID)
}

func TestDecodeEvent_MemberStateChanged(t *testing.T) {
	raw := `{
		"metadata": {"type": "member-change"},
		"eventBody": {
			"member": {"id": "agent-1", "state": "CONNECTED"},
			"conversation": {"id": "chat-1"}
		}
	}`

	ev, err := DecodeEvent([]byte(raw))
	require.NoError(t, err)

	change, ok := ev.(MemberStateChanged)
	require.True(t, ok, "expected MemberStateChanged, got %T", ev)
	assert.Equal(t, "agent-1", change.MemberID)
	assert.Equal(t, StateConnected, change.State)
}

func TestDecodeEvent_UnknownMetadataType(t *testing.T) {
	ev, err := DecodeEvent([]byte(`{"topicName":"t","metadata":{"type":"presence"},"eventBody":{}}`))
	require.NoError(t, err)

	unknown, ok := ev.(UnknownEvent)
	require.True(t, ok, "expected UnknownEvent, got %T", ev)
	assert.Equal(t, "presence", unknown.MetadataType)
}

func TestDecodeEvent_UnknownBodyType(t *testing.T) {
	raw := `{
		"metadata": {"type": "message"},
		"eventBody": {
			"bodyType": "member-update",
			"conversation": {"id": "chat-1"}
		}
	}`

	ev, err := DecodeEvent([]byte(raw))
	require.NoError(t, err)

	unknown, ok := ev.(UnknownEvent)
	require.True(t, ok, "expected UnknownEvent, got %T", ev)
	assert.Equal(t, "member-update", unknown.BodyType)
	assert.Equal(t, "chat-1", unknown.ChatID())
}

func TestDecodeEvent_MalformedJSON(t *testing.T) {
	_, err := DecodeEvent([]byte(`{not json`))
	require.Error(t, err)
}
