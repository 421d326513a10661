// ABOUTME: REST client for the customer messaging platform.
// ABOUTME: Sends app-role text messages and typing activity, authenticated with an app-scope JWT.

package messenger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Activity types accepted by the conversation activity endpoint.
const (
	activityTypingStart = "typing:start"
	activityTypingStop  = "typing:stop"
)

// roleAppMaker marks outbound content as coming from the app, not the user.
const roleAppMaker = "appMaker"

// Client talks to the customer messaging platform on behalf of one app.
type Client struct {
	apiBase    string
	token      string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a messenger client. The key id and secret are exchanged
// for an app-scope JWT carried on every request; the token has no expiry
// claim, matching the platform's long-lived app credential model.
func NewClient(apiBase, keyID, secret string, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"scope": "app",
	})
	tok.Header["kid"] = keyID

	signed, err := tok.SignedString([]byte(secret))
	if err != nil {
		return nil, fmt.Errorf("signing app token: %w", err)
	}

	return &Client{
		apiBase:    strings.TrimSuffix(apiBase, "/"),
		token:      signed,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		logger:     logger.With("component", "messenger"),
	}, nil
}

// messagePayload is the JSON request body for posting a message.
type messagePayload struct {
	Role string `json:"role"`
	Type string `json:"type"`
	Text string `json:"text"`
}

// activityPayload is the JSON request body for conversation activity.
type activityPayload struct {
	Role string `json:"role"`
	Type string `json:"type"`
}

// SendText delivers a text message to the given app user.
func (c *Client) SendText(ctx context.Context, appID, userID, text string) error {
	c.logger.Debug("sending messenger text", "app_id", appID, "user_id", userID)

	url := fmt.Sprintf("%s/v1/apps/%s/appusers/%s/messages", c.apiBase, appID, userID)
	payload := messagePayload{
		Role: roleAppMaker,
		Type: "text",
		Text: text,
	}
	if err := c.post(ctx, url, payload); err != nil {
		return fmt.Errorf("sending messenger text: %w", err)
	}
	return nil
}

// SendTypingStart signals to the app user that the remote side started typing.
func (c *Client) SendTypingStart(ctx context.Context, appID, userID string) error {
	if err := c.sendActivity(ctx, appID, userID, activityTypingStart); err != nil {
		return fmt.Errorf("sending typing start: %w", err)
	}
	return nil
}

// SendTypingStop signals that the remote side stopped typing. Duplicate stop
// signals are tolerated by the platform.
func (c *Client) SendTypingStop(ctx context.Context, appID, userID string) error {
	if err := c.sendActivity(ctx, appID, userID, activityTypingStop); err != nil {
		return fmt.Errorf("sending typing stop: %w", err)
	}
	return nil
}

func (c *Client) sendActivity(ctx context.Context, appID, userID, activity string) error {
	url := fmt.Sprintf("%s/v1/apps/%s/appusers/%s/conversation/activity", c.apiBase, appID, userID)
	return c.post(ctx, url, activityPayload{Role: roleAppMaker, Type: activity})
}

func (c *Client) post(ctx context.Context, url string, in any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}
