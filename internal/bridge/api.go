// ABOUTME: HTTP handlers for the inbound webhook, health checks, and introspection.
// ABOUTME: Webhook delivery is fire-and-forget: the caller always gets a generic ack.

package bridge

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"
)

// webhookTriggerUserMessage is the only webhook trigger the bridge acts on.
const webhookTriggerUserMessage = "message:appUser"

// webhookPayload is the messaging platform's webhook envelope, reduced to the
// fields the bridge consumes.
type webhookPayload struct {
	Trigger string `json:"trigger"`
	App     struct {
		ID string `json:"_id"`
	} `json:"app"`
	Conversation struct {
		ID string `json:"_id"`
	} `json:"conversation"`
	AppUser struct {
		ID        string `json:"_id"`
		GivenName string `json:"givenName"`
		Surname   string `json:"surname"`
	} `json:"appUser"`
	Messages []struct {
		Text string `json:"text"`
	} `json:"messages"`
}

// handleWebhook handles POST /messages deliveries from the messaging
// platform. Processing is asynchronous; no core error is ever surfaced back
// to the webhook caller beyond this generic acknowledgment.
func (b *Bridge) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var payload webhookPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}

	deliveryID := uuid.NewString()

	if payload.Trigger != webhookTriggerUserMessage {
		b.logger.Debug("webhook trigger ignored",
			"delivery_id", deliveryID,
			"trigger", payload.Trigger,
		)
		w.WriteHeader(http.StatusOK)
		return
	}
	if len(payload.Messages) == 0 || payload.Conversation.ID == "" {
		b.logger.Warn("webhook payload missing message or conversation",
			"delivery_id", deliveryID,
		)
		w.WriteHeader(http.StatusOK)
		return
	}

	b.logger.Info("customer message received",
		"delivery_id", deliveryID,
		"messenger_conversation_id", payload.Conversation.ID,
		"user_id", payload.AppUser.ID,
	)

	b.router.HandleCustomerMessage(CustomerMessage{
		ConversationID: payload.Conversation.ID,
		AppID:          payload.App.ID,
		UserID:         payload.AppUser.ID,
		FirstName:      payload.AppUser.GivenName,
		LastName:       payload.AppUser.Surname,
		Text:           payload.Messages[0].Text,
	})

	w.WriteHeader(http.StatusOK)
}

// handleHealth returns 200 OK if the server is alive.
func (b *Bridge) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReady reports readiness along with the number of active guest chats.
func (b *Bridge) handleReady(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "ready (%d active chats)", b.registry.ActiveCount())
}

// ConversationResponse is the JSON shape for GET /api/conversations.
type ConversationResponse struct {
	MessengerConversationID string `json:"messenger_conversation_id"`
	UserID                  string `json:"user_id"`
	FirstName               string `json:"first_name"`
	LastName                string `json:"last_name"`
	ChatID                  string `json:"chat_id,omitempty"`
	AgentMemberID           string `json:"agent_member_id,omitempty"`
	WorkflowMemberID        string `json:"workflow_member_id,omitempty"`
	StreamOpen              bool   `json:"stream_open"`
}

// handleListConversations handles GET /api/conversations requests, returning
// a snapshot of every tracked conversation for operational debugging.
func (b *Bridge) handleListConversations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	records := b.registry.List()
	out := make([]ConversationResponse, 0, len(records))
	for _, rec := range records {
		resp := ConversationResponse{
			MessengerConversationID: rec.MessengerConversationID,
			UserID:                  rec.UserID,
			FirstName:               rec.FirstName,
			LastName:                rec.LastName,
		}
		if rec.Center != nil {
			resp.ChatID = rec.Center.ConversationID
			resp.AgentMemberID = rec.Center.AgentMemberID
			resp.WorkflowMemberID = rec.Center.WorkflowMemberID
			resp.StreamOpen = rec.Center.Session != nil
		}
		out = append(out, resp)
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(out); err != nil {
		b.logger.Error("encoding conversations response", "error", err)
	}
}
