// ABOUTME: Typed events decoded from raw guest chat stream frames.
// ABOUTME: Closed variant set; heartbeat frames are filtered out at this boundary.

package guestchat

import (
	"encoding/json"
	"fmt"
)

// heartbeatTopic marks transport-level keepalive frames that carry no
// application event.
const heartbeatTopic = "channel.metadata"

// Event is one application-level occurrence on a guest chat stream. The
// concrete types below form a closed set; anything the decoder does not
// recognize becomes an UnknownEvent so callers can log and move on.
type Event interface {
	// ChatID returns the guest chat conversation the event belongs to.
	ChatID() string
}

// MemberJoined reports a new participant in the chat.
type MemberJoined struct {
	ChatConversationID string
	MemberID           string
}

// MemberLeft reports a participant leaving the chat.
type MemberLeft struct {
	ChatConversationID string
	MemberID           string
}

// MessagePosted carries a standard text message added to the chat.
type MessagePosted struct {
	ChatConversationID string
	SenderID           string
	Body               string
}

// TypingIndicator reports that a participant started typing.
type TypingIndicator struct {
	ChatConversationID string
	SenderID           string
}

// MemberStateChanged reports a participant state transition
// (StateAlerting, StateConnected, StateDisconnected).
type MemberStateChanged struct {
	ChatConversationID string
	MemberID           string
	State              string
}

// UnknownEvent is produced for frame shapes the decoder does not handle.
type UnknownEvent struct {
	ChatConversationID string
	Topic              string
	MetadataType       string
	BodyType           string
}

func (e MemberJoined) ChatID() string       { return e.ChatConversationID }
func (e MemberLeft) ChatID() string         { return e.ChatConversationID }
func (e MessagePosted) ChatID() string      { return e.ChatConversationID }
func (e TypingIndicator) ChatID() string    { return e.ChatConversationID }
func (e MemberStateChanged) ChatID() string { return e.ChatConversationID }
func (e UnknownEvent) ChatID() string       { return e.ChatConversationID }

// frame is the raw envelope of every stream message.
type frame struct {
	TopicName string `json:"topicName"`
	Metadata  struct {
		Type string `json:"type"`
	} `json:"metadata"`
	EventBody json.RawMessage `json:"eventBody"`
}

// messageBody is the eventBody shape for metadata type "message".
type messageBody struct {
	BodyType string `json:"bodyType"`
	Body     string `json:"body"`
	Sender   struct {
		ID string `json:"id"`
	} `json:"sender"`
	Conversation struct {
		ID string `json:"id"`
	} `json:"conversation"`
}

// memberChangeBody is the eventBody shape for metadata type "member-change".
type memberChangeBody struct {
	Member struct {
		ID    string `json:"id"`
		State string `json:"state"`
	} `json:"member"`
	Conversation struct {
		ID string `json:"id"`
	} `json:"conversation"`
}

// typingBody is the eventBody shape for metadata type "typing-indicator".
type typingBody struct {
	Sender struct {
		ID string `json:"id"`
	} `json:"sender"`
	Conversation struct {
		ID string `json:"id"`
	} `json:"conversation"`
}

// DecodeEvent parses one raw stream frame into a typed Event. Heartbeat
// frames return (nil, nil) and are meant to be discarded silently. Malformed
// JSON returns an error; structurally valid but unrecognized frames return
// an UnknownEvent.
func DecodeEvent(data []byte) (Event, error) {
	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decoding stream frame: %w", err)
	}

	if f.TopicName == heartbeatTopic {
		return nil, nil
	}

	switch f.Metadata.Type {
	case "message":
		return decodeMessage(f)
	case "typing-indicator":
		var body typingBody
		if err := json.Unmarshal(f.EventBody, &body); err != nil {
			return nil, fmt.Errorf("decoding typing-indicator body: %w", err)
		}
		return TypingIndicator{
			ChatConversationID: body.Conversation.ID,
			SenderID:           body.Sender.ID,
		}, nil
	case "member-change":
		var body memberChangeBody
		if err := json.Unmarshal(f.EventBody, &body); err != nil {
			return nil, fmt.Errorf("decoding member-change body: %w", err)
		}
		return MemberStateChanged{
			ChatConversationID: body.Conversation.ID,
			MemberID:           body.Member.ID,
			State:              body.Member.State,
		}, nil
	default:
		return UnknownEvent{Topic: f.TopicName, MetadataType: f.Metadata.Type}, nil
	}
}

// decodeMessage splits metadata type "message" frames by bodyType.
func decodeMessage(f frame) (Event, error) {
	var body messageBody
	if err := json.Unmarshal(f.EventBody, &body); err != nil {
		return nil, fmt.Errorf("decoding message body: %w", err)
	}

	switch body.BodyType {
	case "member-join":
		return MemberJoined{
			ChatConversationID: body.Conversation.ID,
			MemberID:           body.Sender.ID,
		}, nil
	case "member-leave":
		return MemberLeft{
			ChatConversationID: body.Conversation.ID,
			MemberID:           body.Sender.ID,
		}, nil
	case MessageTypeStandard:
		return MessagePosted{
			ChatConversationID: body.Conversation.ID,
			SenderID:           body.Sender.ID,
			Body:               body.Body,
		}, nil
	default:
		return UnknownEvent{
			ChatConversationID: body.Conversation.ID,
			Topic:              f.TopicName,
			MetadataType:       f.Metadata.Type,
			BodyType:           body.BodyType,
		}, nil
	}
}
