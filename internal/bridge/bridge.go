// ABOUTME: Bridge orchestrator wiring registry, router, clients, and HTTP server.
// ABOUTME: Owns startup, the webhook/health endpoints, and graceful shutdown.

package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/2389/chat-bridge/internal/config"
	"github.com/2389/chat-bridge/internal/guestchat"
	"github.com/2389/chat-bridge/internal/messenger"
	"github.com/2389/chat-bridge/internal/registry"
	"github.com/2389/chat-bridge/internal/session"
)

// Bridge orchestrates the chat-bridge server components: the conversation
// registry, the event router, both platform clients, and the HTTP server
// that receives webhooks and serves health checks.
type Bridge struct {
	config     *config.Config
	registry   *registry.Registry
	router     *Router
	httpServer *http.Server
	logger     *slog.Logger

	// serverID identifies this bridge instance in logs
	serverID string
}

// sessionOpener adapts session.Manager to the router's SessionOpener.
type sessionOpener struct {
	manager *session.Manager
}

func (o sessionOpener) Open(ctx context.Context, messengerConversationID, streamURI string, handler session.EventHandler) (registry.StreamSession, error) {
	return o.manager.Open(ctx, messengerConversationID, streamURI, handler)
}

// New creates a new Bridge instance with the given configuration.
func New(cfg *config.Config, logger *slog.Logger) (*Bridge, error) {
	reg := registry.New(logger)

	msgr, err := messenger.NewClient(cfg.Messenger.APIBase, cfg.Messenger.KeyID, cfg.Messenger.Secret, logger)
	if err != nil {
		return nil, fmt.Errorf("creating messenger client: %w", err)
	}

	chats := guestchat.NewClient(cfg.GuestChat.APIBase, cfg.GuestChat.OrgID,
		cfg.GuestChat.DeploymentID, cfg.GuestChat.QueueName, logger)

	sessions := session.NewManager(logger)

	router := NewRouter(RouterConfig{
		Registry:        reg,
		Messenger:       msgr,
		Chats:           chats,
		Sessions:        sessionOpener{manager: sessions},
		TypingStopDelay: cfg.Messenger.TypingStopDelay,
		Logger:          logger,
	})

	b := &Bridge{
		config:   cfg,
		registry: reg,
		router:   router,
		logger:   logger.With("component", "bridge"),
		serverID: generateServerID(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/messages", b.handleWebhook)
	mux.HandleFunc("/health", b.handleHealth)
	mux.HandleFunc("/health/ready", b.handleReady)
	mux.HandleFunc("/api/conversations", b.handleListConversations)

	b.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return b, nil
}

// Run starts the HTTP server and blocks until the context is canceled.
// Returns nil on graceful shutdown, or an error if the server fails.
func (b *Bridge) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", b.config.Server.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listening on HTTP address: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		b.logger.Info("HTTP server listening", "addr", ln.Addr().String(), "server_id", b.serverID)
		if err := b.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	var serverErr error
	select {
	case <-ctx.Done():
		b.logger.Info("context canceled, initiating shutdown")
	case serverErr = <-errCh:
		b.logger.Error("server error", "error", serverErr)
	}

	shutdownErr := b.gracefulShutdown()
	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// gracefulShutdown performs shutdown with a fresh context and timeout.
// Uses context.Background() intentionally since the original context is already canceled.
func (b *Bridge) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return b.Shutdown(ctx)
}

// Shutdown stops the HTTP server, drains the event workers, and closes any
// open chat sessions by clearing their bindings.
func (b *Bridge) Shutdown(ctx context.Context) error {
	b.logger.Info("shutting down bridge")

	err := b.httpServer.Shutdown(ctx)

	b.router.Close()

	for _, rec := range b.registry.List() {
		if rec.Center != nil {
			b.registry.ClearCenter(rec.MessengerConversationID)
		}
	}

	if err != nil {
		return fmt.Errorf("HTTP shutdown: %w", err)
	}
	return nil
}

// generateServerID creates a unique identifier for this bridge instance.
func generateServerID() string {
	return "chat-bridge-" + uuid.NewString()[:8]
}
