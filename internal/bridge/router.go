// ABOUTME: Event router and state machine at the heart of the bridge.
// ABOUTME: Classifies platform events, mutates the registry, and triggers relays.

package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/2389/chat-bridge/internal/guestchat"
	"github.com/2389/chat-bridge/internal/registry"
	"github.com/2389/chat-bridge/internal/session"
)

// Conversational notices relayed to either side.
const (
	noticeAgentLeft    = "Agent: %s has left this conversation."
	noticeCustomerLeft = "Customer: %s has left this conversation."
	noticeGreeting     = "Hello, my name is %s. How can I help you?"
	noticeWelcome      = "Welcome!"
	noticeQueueing     = "Please wait for an available agent..."
	noticeDisconnected = "%s has disconnected"
)

// MessengerClient is what the router needs from the customer platform side.
type MessengerClient interface {
	SendText(ctx context.Context, appID, userID, text string) error
	SendTypingStart(ctx context.Context, appID, userID string) error
	SendTypingStop(ctx context.Context, appID, userID string) error
}

// ChatClient is what the router needs from the contact-center side.
type ChatClient interface {
	CreateChat(ctx context.Context, firstName, lastName string) (*guestchat.Chat, error)
	PostMessage(ctx context.Context, token, chatID, memberID, body, msgType string) error
	GetMemberInfo(ctx context.Context, token, chatID, memberID string) (*guestchat.MemberInfo, error)
}

// SessionOpener opens the event stream for a newly created guest chat.
type SessionOpener interface {
	Open(ctx context.Context, messengerConversationID, streamURI string, handler session.EventHandler) (registry.StreamSession, error)
}

// CustomerMessage is the normalized inbound webhook event.
type CustomerMessage struct {
	ConversationID string
	AppID          string
	UserID         string
	FirstName      string
	LastName       string
	Text           string
}

// Router drives all conversation state transitions. Every event, from either
// platform, is funneled onto the owning conversation's worker queue and
// processed there sequentially.
type Router struct {
	registry  *registry.Registry
	messenger MessengerClient
	chats     ChatClient
	sessions  SessionOpener
	workers   *workerPool

	typingStopDelay time.Duration
	logger          *slog.Logger
}

// RouterConfig carries the router's collaborators.
type RouterConfig struct {
	Registry        *registry.Registry
	Messenger       MessengerClient
	Chats           ChatClient
	Sessions        SessionOpener
	TypingStopDelay time.Duration
	Logger          *slog.Logger
}

// NewRouter creates a Router.
func NewRouter(cfg RouterConfig) *Router {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	delay := cfg.TypingStopDelay
	if delay <= 0 {
		delay = 5 * time.Second
	}
	return &Router{
		registry:        cfg.Registry,
		messenger:       cfg.Messenger,
		chats:           cfg.Chats,
		sessions:        cfg.Sessions,
		workers:         newWorkerPool(logger),
		typingStopDelay: delay,
		logger:          logger.With("component", "router"),
	}
}

// HandleCustomerMessage enqueues an inbound customer message. The webhook
// handler returns immediately; all work happens on the conversation's worker.
func (r *Router) HandleCustomerMessage(msg CustomerMessage) {
	r.workers.Dispatch(msg.ConversationID, func() {
		r.processCustomerMessage(context.Background(), msg)
	})
}

// HandleStreamEvent implements session.EventHandler.
func (r *Router) HandleStreamEvent(messengerConversationID string, event guestchat.Event) {
	r.workers.Dispatch(messengerConversationID, func() {
		r.processStreamEvent(context.Background(), messengerConversationID, event)
	})
}

// HandleStreamClosed implements session.EventHandler. An abrupt close with no
// preceding disconnect event would otherwise leave the record's center fields
// stale, so the binding is cleared and the next customer message starts fresh.
func (r *Router) HandleStreamClosed(messengerConversationID string) {
	r.workers.Dispatch(messengerConversationID, func() {
		rec, ok := r.registry.FindByMessengerID(messengerConversationID)
		if !ok || rec.Center == nil {
			return
		}
		r.logger.Warn("event stream closed without disconnect event, clearing chat binding",
			"messenger_conversation_id", messengerConversationID,
			"chat_id", rec.Center.ConversationID,
		)
		r.registry.ClearCenter(messengerConversationID)
	})
}

// Close drains the worker queues.
func (r *Router) Close() {
	r.workers.Close()
}

// processCustomerMessage relays a customer message into the bound guest chat,
// or creates a new chat (and opens its event stream) if none is bound yet.
func (r *Router) processCustomerMessage(ctx context.Context, msg CustomerMessage) {
	rec := r.registry.CreateIfAbsent(msg.ConversationID, msg.AppID, msg.UserID, msg.FirstName, msg.LastName)

	if rec.Center != nil && rec.Center.ConversationID != "" {
		err := r.chats.PostMessage(ctx, rec.Center.Token, rec.Center.ConversationID,
			rec.Center.ExternalMemberID, msg.Text, guestchat.MessageTypeStandard)
		if errors.Is(err, guestchat.ErrChatNotActive) {
			// The chat ended remotely; drop the binding so the next message
			// opens a fresh one. The in-flight message is not retried.
			r.logger.Warn("guest chat no longer active, clearing binding",
				"messenger_conversation_id", msg.ConversationID,
				"chat_id", rec.Center.ConversationID,
			)
			r.registry.ClearCenter(msg.ConversationID)
			return
		}
		if err != nil {
			r.logger.Error("relaying customer message failed",
				"messenger_conversation_id", msg.ConversationID,
				"error", err,
			)
		}
		return
	}

	r.createChat(ctx, msg)
}

// createChat opens a new guest chat for the conversation and binds its
// identity. The triggering message is buffered until an agent connects,
// because the chat API rejects posts before then.
func (r *Router) createChat(ctx context.Context, msg CustomerMessage) {
	chat, err := r.chats.CreateChat(ctx, msg.FirstName, msg.LastName)
	if err != nil {
		r.logger.Error("creating guest chat failed",
			"messenger_conversation_id", msg.ConversationID,
			"error", err,
		)
		return
	}

	if _, err := r.registry.BindCenter(msg.ConversationID, registry.CenterBinding{
		ConversationID:   chat.ID,
		Token:            chat.Token,
		ExternalMemberID: chat.MemberID,
		PendingText:      msg.Text,
	}); err != nil {
		r.logger.Error("binding new guest chat failed",
			"messenger_conversation_id", msg.ConversationID,
			"chat_id", chat.ID,
			"error", err,
		)
		return
	}

	sess, err := r.sessions.Open(ctx, msg.ConversationID, chat.EventStreamURI, r)
	if err != nil {
		// Without the stream the chat never gets queued; surface and undo.
		r.logger.Error("opening event stream failed",
			"messenger_conversation_id", msg.ConversationID,
			"chat_id", chat.ID,
			"error", err,
		)
		r.registry.ClearCenter(msg.ConversationID)
		return
	}

	if _, err := r.registry.BindCenter(msg.ConversationID, registry.CenterBinding{Session: sess}); err != nil {
		r.logger.Error("binding session failed",
			"messenger_conversation_id", msg.ConversationID,
			"error", err,
		)
	}
}

// processStreamEvent applies one guest chat event to the conversation.
func (r *Router) processStreamEvent(ctx context.Context, messengerID string, event guestchat.Event) {
	rec, ok := r.registry.FindByMessengerID(messengerID)
	if !ok || rec.Center == nil {
		// Cleared while the event was in flight; not an error.
		r.logger.Debug("stream event for unbound conversation dropped",
			"messenger_conversation_id", messengerID,
		)
		return
	}

	switch ev := event.(type) {
	case guestchat.MemberJoined:
		r.handleMemberJoined(ctx, rec, ev)
	case guestchat.MemberLeft:
		r.handleMemberLeft(ctx, rec, ev)
	case guestchat.MessagePosted:
		r.handleMessagePosted(ctx, rec, ev)
	case guestchat.TypingIndicator:
		r.handleTyping(ctx, rec)
	case guestchat.MemberStateChanged:
		r.handleMemberStateChanged(ctx, rec, ev)
	case guestchat.UnknownEvent:
		r.logger.Warn("unhandled stream event",
			"messenger_conversation_id", rec.MessengerConversationID,
			"topic", ev.Topic,
			"metadata_type", ev.MetadataType,
			"body_type", ev.BodyType,
		)
	}
}

// handleMemberJoined is informational only; joins become customer-visible
// when the member reaches CONNECTED.
func (r *Router) handleMemberJoined(ctx context.Context, rec *registry.Conversation, ev guestchat.MemberJoined) {
	info, err := r.memberInfo(ctx, rec, ev.MemberID)
	if err != nil {
		return
	}
	r.logger.Info("participant joined guest chat",
		"messenger_conversation_id", rec.MessengerConversationID,
		"member_id", info.ID,
		"role", info.Role,
	)
}

func (r *Router) handleMemberLeft(ctx context.Context, rec *registry.Conversation, ev guestchat.MemberLeft) {
	info, err := r.memberInfo(ctx, rec, ev.MemberID)
	if err != nil {
		return
	}

	switch info.Role {
	case guestchat.RoleAgent:
		r.sendText(ctx, rec, fmt.Sprintf(noticeAgentLeft, info.DisplayName))
	case guestchat.RoleCustomer:
		r.sendText(ctx, rec, fmt.Sprintf(noticeCustomerLeft, info.DisplayName))
	case guestchat.RoleACD, guestchat.RoleWorkflow:
		r.logger.Info("participant left guest chat",
			"messenger_conversation_id", rec.MessengerConversationID,
			"role", info.Role,
		)
	default:
		r.logger.Warn("unknown role for leaving participant",
			"messenger_conversation_id", rec.MessengerConversationID,
			"member_id", info.ID,
			"role", info.Role,
		)
	}
}

// handleMessagePosted relays agent and workflow text to the customer. Any
// other sender is ignored; in particular this keeps the customer's own
// relayed messages from echoing back.
func (r *Router) handleMessagePosted(ctx context.Context, rec *registry.Conversation, ev guestchat.MessagePosted) {
	fromAgent := rec.Center.AgentMemberID != "" && ev.SenderID == rec.Center.AgentMemberID
	fromWorkflow := rec.Center.WorkflowMemberID != "" && ev.SenderID == rec.Center.WorkflowMemberID
	if !fromAgent && !fromWorkflow {
		r.logger.Debug("chat message from unrelayed sender ignored",
			"messenger_conversation_id", rec.MessengerConversationID,
			"sender_id", ev.SenderID,
		)
		return
	}

	r.sendText(ctx, rec, ev.Body)
}

// handleTyping forwards a typing-start and schedules a one-shot stop after a
// fixed delay. Each typing event is an independent signal; a new one does not
// reset an earlier timer, and duplicate stops are harmless.
func (r *Router) handleTyping(ctx context.Context, rec *registry.Conversation) {
	if err := r.messenger.SendTypingStart(ctx, rec.AppID, rec.UserID); err != nil {
		r.logger.Error("sending typing start failed",
			"messenger_conversation_id", rec.MessengerConversationID,
			"error", err,
		)
		return
	}

	appID, userID, convID := rec.AppID, rec.UserID, rec.MessengerConversationID
	time.AfterFunc(r.typingStopDelay, func() {
		if err := r.messenger.SendTypingStop(context.Background(), appID, userID); err != nil {
			r.logger.Error("sending typing stop failed",
				"messenger_conversation_id", convID,
				"error", err,
			)
		}
	})
}

func (r *Router) handleMemberStateChanged(ctx context.Context, rec *registry.Conversation, ev guestchat.MemberStateChanged) {
	switch ev.State {
	case guestchat.StateAlerting:
		r.logger.Info("participant alerting",
			"messenger_conversation_id", rec.MessengerConversationID,
			"member_id", ev.MemberID,
		)
	case guestchat.StateConnected:
		r.handleMemberConnected(ctx, rec, ev)
	case guestchat.StateDisconnected:
		r.handleMemberDisconnected(ctx, rec, ev)
	default:
		r.logger.Warn("unknown member state",
			"messenger_conversation_id", rec.MessengerConversationID,
			"member_id", ev.MemberID,
			"state", ev.State,
		)
	}
}

func (r *Router) handleMemberConnected(ctx context.Context, rec *registry.Conversation, ev guestchat.MemberStateChanged) {
	info, err := r.memberInfo(ctx, rec, ev.MemberID)
	if err != nil {
		return
	}

	switch info.Role {
	case guestchat.RoleAgent:
		updated, err := r.registry.BindCenter(rec.MessengerConversationID,
			registry.CenterBinding{AgentMemberID: ev.MemberID})
		if err != nil {
			return
		}
		rec = updated

		// The message that triggered chat creation was buffered because the
		// chat was not active yet; hand it to the agent now.
		if pending := r.registry.TakePendingText(rec.MessengerConversationID); pending != "" {
			if err := r.chats.PostMessage(ctx, rec.Center.Token, rec.Center.ConversationID,
				rec.Center.ExternalMemberID, pending, guestchat.MessageTypeNotice); err != nil {
				r.logger.Error("relaying buffered message failed",
					"messenger_conversation_id", rec.MessengerConversationID,
					"error", err,
				)
			}
		}

		r.sendText(ctx, rec, fmt.Sprintf(noticeGreeting, info.DisplayName))
	case guestchat.RoleCustomer:
		r.sendText(ctx, rec, noticeWelcome)
	case guestchat.RoleACD:
		r.sendText(ctx, rec, noticeQueueing)
	case guestchat.RoleWorkflow:
		_, _ = r.registry.BindCenter(rec.MessengerConversationID,
			registry.CenterBinding{WorkflowMemberID: ev.MemberID})
	default:
		r.logger.Warn("unknown role for connected participant",
			"messenger_conversation_id", rec.MessengerConversationID,
			"member_id", ev.MemberID,
			"role", info.Role,
		)
	}
}

func (r *Router) handleMemberDisconnected(ctx context.Context, rec *registry.Conversation, ev guestchat.MemberStateChanged) {
	info, err := r.memberInfo(ctx, rec, ev.MemberID)
	if err != nil {
		return
	}

	switch info.Role {
	case guestchat.RoleAgent:
		// Clearing must complete before any further event for this
		// conversation is processed, which worker serialization guarantees.
		r.registry.ClearCenter(rec.MessengerConversationID)
		r.sendText(ctx, rec, fmt.Sprintf(noticeDisconnected, info.DisplayName))
	case guestchat.RoleCustomer:
		if rec.Center.ConversationID != "" {
			name := fmt.Sprintf("%s %s", rec.FirstName, rec.LastName)
			if err := r.chats.PostMessage(ctx, rec.Center.Token, rec.Center.ConversationID,
				rec.Center.ExternalMemberID, fmt.Sprintf(noticeDisconnected, name),
				guestchat.MessageTypeNotice); err != nil {
				r.logger.Error("relaying customer disconnect failed",
					"messenger_conversation_id", rec.MessengerConversationID,
					"error", err,
				)
			}
		}
	case guestchat.RoleACD, guestchat.RoleWorkflow:
		r.logger.Info("participant disconnected",
			"messenger_conversation_id", rec.MessengerConversationID,
			"role", info.Role,
		)
	default:
		r.logger.Warn("unknown role for disconnected participant",
			"messenger_conversation_id", rec.MessengerConversationID,
			"member_id", ev.MemberID,
			"role", info.Role,
		)
	}
}

// memberInfo fetches participant info for the record's bound chat, logging
// and swallowing failures (the event is dropped without state change).
func (r *Router) memberInfo(ctx context.Context, rec *registry.Conversation, memberID string) (*guestchat.MemberInfo, error) {
	info, err := r.chats.GetMemberInfo(ctx, rec.Center.Token, rec.Center.ConversationID, memberID)
	if err != nil {
		r.logger.Error("member info lookup failed",
			"messenger_conversation_id", rec.MessengerConversationID,
			"chat_id", rec.Center.ConversationID,
			"member_id", memberID,
			"error", err,
		)
		return nil, err
	}
	return info, nil
}

// sendText relays text to the customer platform, logging delivery failures.
func (r *Router) sendText(ctx context.Context, rec *registry.Conversation, text string) {
	if err := r.messenger.SendText(ctx, rec.AppID, rec.UserID, text); err != nil {
		r.logger.Error("sending messenger text failed",
			"messenger_conversation_id", rec.MessengerConversationID,
			"error", err,
		)
	}
}
