// ABOUTME: Owns the websocket event-stream connection opened per guest chat.
// ABOUTME: Dials, decodes frames, dispatches application events, and detects close.

package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/2389/chat-bridge/internal/guestchat"
)

// EventHandler receives application-level stream events, tagged with the
// messenger conversation that owns the session. HandleStreamClosed fires at
// most once, and only for remote closes; a locally requested Close is silent.
type EventHandler interface {
	HandleStreamEvent(messengerConversationID string, event guestchat.Event)
	HandleStreamClosed(messengerConversationID string)
}

// Manager opens event-stream sessions. One session exists per active guest
// chat; the registry holds the handle and closes it when the chat is cleared.
type Manager struct {
	dialer *websocket.Dialer
	logger *slog.Logger
}

// NewManager creates a session manager.
func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		dialer: &websocket.Dialer{HandshakeTimeout: 15 * time.Second},
		logger: logger.With("component", "session"),
	}
}

// Open dials the stream endpoint and starts the read loop. A dial failure is
// returned to the caller; nothing is retried here.
func (m *Manager) Open(ctx context.Context, messengerConversationID, streamURI string, handler EventHandler) (*Session, error) {
	conn, resp, err := m.dialer.DialContext(ctx, streamURI, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("dialing event stream: %w", err)
	}

	s := &Session{
		messengerConversationID: messengerConversationID,
		conn:                    conn,
		handler:                 handler,
		logger: m.logger.With(
			"messenger_conversation_id", messengerConversationID,
		),
		localClose: make(chan struct{}),
	}

	s.logger.Info("event stream opened", "stream_uri", streamURI)
	go s.readLoop()

	return s, nil
}

// Session is one open event-stream connection. It is safe to Close from any
// goroutine, and Close is idempotent.
type Session struct {
	messengerConversationID string
	conn                    *websocket.Conn
	handler                 EventHandler
	logger                  *slog.Logger

	closeOnce  sync.Once
	localClose chan struct{}
}

// readLoop pumps frames until the connection dies. Heartbeat frames decode to
// nil and are dropped without reaching the handler.
func (s *Session) readLoop() {
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			select {
			case <-s.localClose:
				s.logger.Debug("event stream closed locally")
			default:
				s.logger.Warn("event stream closed by remote", "error", err)
				s.handler.HandleStreamClosed(s.messengerConversationID)
			}
			return
		}

		event, err := guestchat.DecodeEvent(data)
		if err != nil {
			s.logger.Warn("undecodable stream frame dropped", "error", err)
			continue
		}
		if event == nil {
			continue // heartbeat
		}

		s.handler.HandleStreamEvent(s.messengerConversationID, event)
	}
}

// Close tears down the connection. After Close returns, no further events are
// dispatched for this session and HandleStreamClosed will not fire.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.localClose)
		deadline := time.Now().Add(time.Second)
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		err = s.conn.Close()
		s.logger.Info("event stream closed")
	})
	return err
}
