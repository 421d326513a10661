// ABOUTME: Tests for the websocket session manager.
// ABOUTME: Covers event dispatch, heartbeat discard, local close, and remote close.

package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/chat-bridge/internal/guestchat"
)

// recordingHandler collects dispatched events and close notifications.
type recordingHandler struct {
	mu     sync.Mutex
	events []guestchat.Event
	convs  []string
	closed []string
	gotOne chan struct{}
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{gotOne: make(chan struct{}, 16)}
}

func (h *recordingHandler) HandleStreamEvent(convID string, ev guestchat.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.convs = append(h.convs, convID)
	h.events = append(h.events, ev)
	h.gotOne <- struct{}{}
}

func (h *recordingHandler) HandleStreamClosed(convID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = append(h.closed, convID)
	h.gotOne <- struct{}{}
}

func (h *recordingHandler) snapshot() ([]guestchat.Event, []string, []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]guestchat.Event(nil), h.events...),
		append([]string(nil), h.convs...),
		append([]string(nil), h.closed...)
}

func (h *recordingHandler) wait(t *testing.T) {
	t.Helper()
	select {
	case <-h.gotOne:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for handler call")
	}
}

var upgrader = websocket.Upgrader{}

// streamServer upgrades one connection and feeds it the given frames.
func streamServer(t *testing.T, frames []string, closeAfter bool) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)

		for _, f := range frames {
			require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(f)))
		}
		if closeAfter {
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			_ = conn.Close()
		} else {
			// Hold the connection open until the client goes away.
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}
	}))
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestOpen_DispatchesEventsAndDiscardsHeartbeats(t *testing.T) {
	frames := []string{
		`{"topicName":"channel.metadata","eventBody":{"message":"WebSocket Heartbeat"}}`,
		`{"metadata":{"type":"typing-indicator"},"eventBody":{"sender":{"id":"agent-1"},"conversation":{"id":"chat-1"}}}`,
		`{"metadata":{"type":"message"},"eventBody":{"bodyType":"standard","body":"hi","sender":{"id":"agent-1"},"conversation":{"id":"chat-1"}}}`,
	}
	srv := streamServer(t, frames, false)
	defer srv.Close()

	handler := newRecordingHandler()
	m := NewManager(nil)

	sess, err := m.Open(context.Background(), "conv-1", wsURL(srv), handler)
	require.NoError(t, err)
	defer func() { _ = sess.Close() }()

	handler.wait(t)
	handler.wait(t)

	events, convs, closed := handler.snapshot()
	require.Len(t, events, 2, "heartbeat must not reach the handler")
	assert.Equal(t, []string{"conv-1", "conv-1"}, convs)
	assert.Empty(t, closed)

	_, ok := events[0].(guestchat.TypingIndicator)
	assert.True(t, ok, "expected TypingIndicator, got %T", events[0])
	msg, ok := events[1].(guestchat.MessagePosted)
	require.True(t, ok, "expected MessagePosted, got %T", events[1])
	assert.Equal(t, "hi", msg.Body)
}

func TestRemoteClose_NotifiesHandler(t *testing.T) {
	srv := streamServer(t, nil, true)
	defer srv.Close()

	handler := newRecordingHandler()
	m := NewManager(nil)

	_, err := m.Open(context.Background(), "conv-1", wsURL(srv), handler)
	require.NoError(t, err)

	handler.wait(t)

	_, _, closed := handler.snapshot()
	assert.Equal(t, []string{"conv-1"}, closed)
}

func TestLocalClose_IsSilentAndIdempotent(t *testing.T) {
	srv := streamServer(t, nil, false)
	defer srv.Close()

	handler := newRecordingHandler()
	m := NewManager(nil)

	sess, err := m.Open(context.Background(), "conv-1", wsURL(srv), handler)
	require.NoError(t, err)

	require.NoError(t, sess.Close())
	assert.NoError(t, sess.Close(), "second close is a no-op")

	// Give the read loop a moment to observe the close.
	time.Sleep(100 * time.Millisecond)

	_, _, closed := handler.snapshot()
	assert.Empty(t, closed, "local close must not notify the handler")
}

func TestOpen_DialFailure(t *testing.T) {
	handler := newRecordingHandler()
	m := NewManager(nil)

	_, err := m.Open(context.Background(), "conv-1", "ws://127.0.0.1:1/stream", handler)
	require.Error(t, err)
}
