// ABOUTME: REST client for the contact-center guest chat API.
// ABOUTME: Creates chats, posts messages, and fetches member info with per-chat tokens.

package guestchat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// ErrChatNotActive indicates the guest chat rejected a request because the
// conversation is no longer active on the contact-center side. Callers clear
// the center binding so a later customer message opens a fresh chat.
var ErrChatNotActive = errors.New("guest chat is no longer active")

// Participant roles as reported by the member info endpoint.
const (
	RoleAgent    = "AGENT"
	RoleCustomer = "CUSTOMER"
	RoleACD      = "ACD"
	RoleWorkflow = "WORKFLOW"
)

// Member states carried by member-change stream events.
const (
	StateAlerting     = "ALERTING"
	StateConnected    = "CONNECTED"
	StateDisconnected = "DISCONNECTED"
)

// MessageTypeStandard and MessageTypeNotice are the supported bodyType values
// for posted messages.
const (
	MessageTypeStandard = "standard"
	MessageTypeNotice   = "notice"
)

// Chat is the result of creating a guest chat conversation.
type Chat struct {
	ID             string
	MemberID       string
	Token          string
	EventStreamURI string
}

// MemberInfo describes one participant of a guest chat.
type MemberInfo struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Role        string `json:"role"`
}

// Client talks to the guest chat REST API for one deployment.
type Client struct {
	apiBase      string
	orgID        string
	deploymentID string
	queueName    string
	httpClient   *http.Client
	logger       *slog.Logger
}

// NewClient creates a guest chat client for the given deployment.
func NewClient(apiBase, orgID, deploymentID, queueName string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		apiBase:      strings.TrimSuffix(apiBase, "/"),
		orgID:        orgID,
		deploymentID: deploymentID,
		queueName:    queueName,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		logger:       logger.With("component", "guestchat"),
	}
}

// createChatRequest is the JSON request body for POST /conversations.
type createChatRequest struct {
	OrganizationID string        `json:"organizationId"`
	DeploymentID   string        `json:"deploymentId"`
	RoutingTarget  routingTarget `json:"routingTarget"`
	MemberInfo     memberInfo    `json:"memberInfo"`
}

type routingTarget struct {
	TargetType    string `json:"targetType"`
	TargetAddress string `json:"targetAddress"`
}

type memberInfo struct {
	DisplayName  string            `json:"displayName"`
	CustomFields map[string]string `json:"customFields,omitempty"`
}

// createChatResponse is the JSON response body for POST /conversations.
type createChatResponse struct {
	ID             string `json:"id"`
	JWT            string `json:"jwt"`
	EventStreamURI string `json:"eventStreamUri"`
	Member         struct {
		ID string `json:"id"`
	} `json:"member"`
}

// CreateChat opens a new guest chat routed to the configured queue and
// returns its identity, the per-chat access token, and the event stream URI.
func (c *Client) CreateChat(ctx context.Context, firstName, lastName string) (*Chat, error) {
	reqBody := createChatRequest{
		OrganizationID: c.orgID,
		DeploymentID:   c.deploymentID,
		RoutingTarget: routingTarget{
			TargetType:    "QUEUE",
			TargetAddress: c.queueName,
		},
		MemberInfo: memberInfo{
			DisplayName: strings.TrimSpace(firstName + " " + lastName),
			CustomFields: map[string]string{
				"customField1Label": "First Name",
				"customField1":      firstName,
				"customField2Label": "Last Name",
				"customField2":      lastName,
			},
		},
	}

	var resp createChatResponse
	if err := c.post(ctx, c.apiBase+"/conversations", "", reqBody, &resp); err != nil {
		return nil, fmt.Errorf("creating guest chat: %w", err)
	}

	c.logger.Info("guest chat created",
		"chat_id", resp.ID,
		"member_id", resp.Member.ID,
	)

	return &Chat{
		ID:             resp.ID,
		MemberID:       resp.Member.ID,
		Token:          resp.JWT,
		EventStreamURI: resp.EventStreamURI,
	}, nil
}

// postMessageRequest is the JSON request body for posting a chat message.
type postMessageRequest struct {
	Body     string `json:"body"`
	BodyType string `json:"bodyType"`
}

// PostMessage posts a message into an existing guest chat on behalf of the
// given member. msgType is MessageTypeStandard or MessageTypeNotice.
// Returns ErrChatNotActive if the chat has ended on the remote side.
func (c *Client) PostMessage(ctx context.Context, token, chatID, memberID, body, msgType string) error {
	url := fmt.Sprintf("%s/conversations/%s/members/%s/messages", c.apiBase, chatID, memberID)

	c.logger.Debug("posting guest chat message",
		"chat_id", chatID,
		"member_id", memberID,
		"body_type", msgType,
	)

	if err := c.post(ctx, url, token, postMessageRequest{Body: body, BodyType: msgType}, nil); err != nil {
		return fmt.Errorf("posting guest chat message: %w", err)
	}
	return nil
}

// GetMemberInfo fetches display name and role for one chat participant.
func (c *Client) GetMemberInfo(ctx context.Context, token, chatID, memberID string) (*MemberInfo, error) {
	url := fmt.Sprintf("%s/conversations/%s/members/%s", c.apiBase, chatID, memberID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building member info request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching member info: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp)
	}

	var info MemberInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("decoding member info: %w", err)
	}
	return &info, nil
}

// post sends a JSON request and decodes the response into out (when non-nil).
// An empty token omits the Authorization header (chat creation is unauthenticated).
func (c *Client) post(ctx context.Context, url, token string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return statusError(resp)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}
	return nil
}

// statusError converts a non-200 response into an error, mapping the
// "conversation not active" rejection to ErrChatNotActive.
func statusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode >= 400 && resp.StatusCode < 500 &&
		strings.Contains(strings.ToLower(string(body)), "not active") {
		return ErrChatNotActive
	}
	return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
}
