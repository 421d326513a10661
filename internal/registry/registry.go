// ABOUTME: In-memory registry correlating messenger conversations with guest chats.
// ABOUTME: Dual-keyed lookup, incremental center binding, and unit clear semantics.

package registry

import (
	"errors"
	"log/slog"
	"sync"
)

// ErrConversationNotFound indicates no record exists for the given messenger conversation id.
var ErrConversationNotFound = errors.New("conversation not found")

// StreamSession is the handle the registry holds for an open event-stream
// connection. Clearing a center binding closes the session first.
type StreamSession interface {
	Close() error
}

// Conversation correlates one messenger-side conversation with at most one
// active guest chat. Messenger-side fields are set once at creation and live
// for the process lifetime; the Center binding comes and goes.
type Conversation struct {
	MessengerConversationID string
	AppID                   string
	UserID                  string
	FirstName               string
	LastName                string

	// Center is nil until a guest chat has been created for this conversation.
	Center *CenterChat
}

// CenterChat holds the guest-chat side of a bridged conversation. All fields
// are bound incrementally as platform events arrive and are cleared together.
type CenterChat struct {
	ConversationID   string
	Token            string
	ExternalMemberID string
	AgentMemberID    string
	WorkflowMemberID string

	// PendingText buffers the customer message that triggered chat creation
	// until an agent connects; the chat API rejects posts before that.
	PendingText string

	Session StreamSession
}

// CenterBinding is a partial update for a record's center fields. Empty
// string fields and a nil Session leave the existing values untouched, so
// identity can be learned across several out-of-order platform events.
type CenterBinding struct {
	ConversationID   string
	Token            string
	ExternalMemberID string
	AgentMemberID    string
	WorkflowMemberID string
	PendingText      string
	Session          StreamSession
}

// Registry is the process-wide conversation store. All access goes through
// its methods; the mutex gives per-record mutual exclusion in place of the
// single-threaded scheduling the original design relied on.
type Registry struct {
	mu       sync.RWMutex
	records  map[string]*Conversation // keyed by messenger conversation id
	byCenter map[string]string        // center conversation id -> messenger conversation id
	logger   *slog.Logger
}

// New creates an empty Registry.
func New(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		records:  make(map[string]*Conversation),
		byCenter: make(map[string]string),
		logger:   logger.With("component", "registry"),
	}
}

// FindByMessengerID returns a snapshot of the record for the given messenger
// conversation id, or false if none exists. No side effects.
func (r *Registry) FindByMessengerID(id string) (*Conversation, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.records[id]
	if !ok {
		return nil, false
	}
	return rec.snapshot(), true
}

// FindByCenterID returns a snapshot of the record whose center binding holds
// the given guest chat id. Valid only while the center fields are populated.
func (r *Registry) FindByCenterID(id string) (*Conversation, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	messengerID, ok := r.byCenter[id]
	if !ok {
		return nil, false
	}
	rec, ok := r.records[messengerID]
	if !ok || rec.Center == nil {
		return nil, false
	}
	return rec.snapshot(), true
}

// CreateIfAbsent returns the record for the given messenger conversation id,
// creating it if this id has not been seen before. Idempotent: a second call
// with the same id returns the existing record and never overwrites the
// customer-side fields.
func (r *Registry) CreateIfAbsent(id, appID, userID, firstName, lastName string) *Conversation {
	r.mu.Lock()
	defer r.mu.Unlock()

	if rec, ok := r.records[id]; ok {
		return rec.snapshot()
	}

	rec := &Conversation{
		MessengerConversationID: id,
		AppID:                   appID,
		UserID:                  userID,
		FirstName:               firstName,
		LastName:                lastName,
	}
	r.records[id] = rec

	r.logger.Info("conversation registered",
		"messenger_conversation_id", id,
		"user_id", userID,
		"total_conversations", len(r.records),
	)
	return rec.snapshot()
}

// BindCenter applies a partial update to the record's center fields. Each
// non-empty field of the binding overwrites the corresponding record field;
// the rest keep their current values. Returns ErrConversationNotFound (and
// logs) if no record exists for the messenger conversation id.
func (r *Registry) BindCenter(messengerID string, b CenterBinding) (*Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[messengerID]
	if !ok {
		r.logger.Warn("bind for unknown conversation ignored",
			"messenger_conversation_id", messengerID,
			"center_conversation_id", b.ConversationID,
		)
		return nil, ErrConversationNotFound
	}

	if rec.Center == nil {
		rec.Center = &CenterChat{}
	}
	c := rec.Center

	if b.ConversationID != "" && b.ConversationID != c.ConversationID {
		if c.ConversationID != "" {
			delete(r.byCenter, c.ConversationID)
		}
		c.ConversationID = b.ConversationID
		r.byCenter[b.ConversationID] = messengerID
	}
	if b.Token != "" {
		c.Token = b.Token
	}
	if b.ExternalMemberID != "" {
		c.ExternalMemberID = b.ExternalMemberID
	}
	if b.AgentMemberID != "" {
		c.AgentMemberID = b.AgentMemberID
	}
	if b.WorkflowMemberID != "" {
		c.WorkflowMemberID = b.WorkflowMemberID
	}
	if b.PendingText != "" {
		c.PendingText = b.PendingText
	}
	if b.Session != nil {
		c.Session = b.Session
	}

	r.logger.Debug("center binding updated",
		"messenger_conversation_id", messengerID,
		"center_conversation_id", c.ConversationID,
		"agent_member_id", c.AgentMemberID,
	)
	return rec.snapshot(), nil
}

// ClearCenter drops the record's entire center binding. A bound session is
// closed before the fields are released, so an agent-joined-but-chat-cleared
// state is unreachable. No-op if the record or its binding is absent.
func (r *Registry) ClearCenter(messengerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[messengerID]
	if !ok || rec.Center == nil {
		return
	}

	if rec.Center.Session != nil {
		if err := rec.Center.Session.Close(); err != nil {
			r.logger.Warn("closing session during clear",
				"messenger_conversation_id", messengerID,
				"error", err,
			)
		}
	}
	if rec.Center.ConversationID != "" {
		delete(r.byCenter, rec.Center.ConversationID)
	}
	rec.Center = nil

	r.logger.Info("center binding cleared", "messenger_conversation_id", messengerID)
}

// TakePendingText returns the buffered initial message for the conversation
// and clears it, so it is relayed at most once. Empty if nothing is buffered.
func (r *Registry) TakePendingText(messengerID string) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[messengerID]
	if !ok || rec.Center == nil || rec.Center.PendingText == "" {
		return ""
	}
	text := rec.Center.PendingText
	rec.Center.PendingText = ""
	return text
}

// List returns snapshots of all records, for introspection endpoints.
func (r *Registry) List() []*Conversation {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Conversation, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, rec.snapshot())
	}
	return out
}

// ActiveCount returns the number of records with a live center binding.
func (r *Registry) ActiveCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, rec := range r.records {
		if rec.Center != nil {
			n++
		}
	}
	return n
}

// snapshot returns a copy safe to use outside the registry lock.
func (c *Conversation) snapshot() *Conversation {
	cp := *c
	if c.Center != nil {
		center := *c.Center
		cp.Center = &center
	}
	return &cp
}
